// Package auth issues and verifies session tokens.
//
// A session token is an HS256 JWT whose payload carries user_id, email,
// role and the registered exp/iat/iss claims. Browsers receive it in the
// access_token cookie; API clients may send it as a Bearer token.
//
//	issuer, err := auth.NewTokenIssuer(secret, "mindful", time.Hour)
//	token, err := issuer.Issue(auth.Claims{UserID: 7, Email: "a@b.c", Role: auth.RoleUser})
//	claims, err := issuer.Verify(token)
//
// Verify rejects tokens with a bad signature, a different issuer or an
// expired exp claim with ErrInvalidToken or ErrExpiredToken.
package auth
