package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeContent(t *testing.T) {
	got, err := NormalizeContent("  hello \n")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	for _, blank := range []string{"", "   ", "\t\n"} {
		_, err := NormalizeContent(blank)
		assert.ErrorIs(t, err, ErrEmptyContent)
	}
}

func TestSenderValid(t *testing.T) {
	assert.True(t, SenderUser.Valid())
	assert.True(t, SenderExpert.Valid())
	assert.False(t, Sender("bot").Valid())
}
