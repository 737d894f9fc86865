package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	ti, err := NewTokenIssuer(testSecret, "mindful", time.Hour)
	require.NoError(t, err)
	return ti
}

func TestNewTokenIssuer_ShortSecret(t *testing.T) {
	_, err := NewTokenIssuer("short", "mindful", time.Hour)
	assert.Error(t, err)
}

func TestIssueVerify(t *testing.T) {
	ti := newTestIssuer(t)

	token, err := ti.Issue(Claims{UserID: 42, Email: "asha@example.com", Role: RoleExpert})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))

	claims, err := ti.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "asha@example.com", claims.Email)
	assert.Equal(t, RoleExpert, claims.Role)
}

func TestIssue_RequiresUser(t *testing.T) {
	ti := newTestIssuer(t)
	_, err := ti.Issue(Claims{Email: "nobody@example.com"})
	assert.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	ti := newTestIssuer(t)
	ti.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := ti.Issue(Claims{UserID: 1})
	require.NoError(t, err)

	ti.now = time.Now
	_, err = ti.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerify_Rejects(t *testing.T) {
	ti := newTestIssuer(t)
	token, err := ti.Issue(Claims{UserID: 1})
	require.NoError(t, err)

	other, err := NewTokenIssuer("ffffffffffffffffffffffffffffffff", "mindful", time.Hour)
	require.NoError(t, err)
	forged, err := other.Issue(Claims{UserID: 1, Role: RoleAdmin})
	require.NoError(t, err)

	otherIssuer, err := NewTokenIssuer(testSecret, "someone-else", time.Hour)
	require.NoError(t, err)
	foreign, err := otherIssuer.Issue(Claims{UserID: 1})
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":       "not-a-jwt",
		"empty":         "",
		"wrong key":     forged,
		"wrong issuer":  foreign,
		"tampered body": token[:strings.Index(token, ".")+1] + "eyJ1c2VyX2lkIjoyfQ" + token[strings.LastIndex(token, "."):],
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ti.Verify(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestClaims_HasRole(t *testing.T) {
	var nilClaims *Claims
	assert.False(t, nilClaims.HasRole(RoleUser))

	assert.True(t, (&Claims{}).HasRole(RoleUser))
	assert.False(t, (&Claims{}).HasRole(RoleExpert))
	assert.True(t, (&Claims{Role: RoleExpert}).HasRole(RoleExpert))
	assert.False(t, (&Claims{Role: RoleUser}).HasRole(RoleExpert))
	assert.True(t, (&Claims{Role: RoleAdmin}).HasRole(RoleExpert))
}
