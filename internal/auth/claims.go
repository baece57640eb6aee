// Package auth implements the relay's symmetric identity verifier.
//
// Unlike the Auth0/JWKS validator this is adapted from, tokens here are
// signed with a single process-wide HMAC secret: the relay mints its own
// tokens at the GitHub OAuth callback and only ever verifies tokens it
// signed itself (see internal/githubauth).
package auth

import "github.com/golang-jwt/jwt/v5"

// IdentityClaims is the claim set carried by a signed identity token.
type IdentityClaims struct {
	Username  string `json:"username"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	jwt.RegisteredClaims
}
