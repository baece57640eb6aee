package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Validator validates bearer identity tokens against a process-wide
// symmetric secret. It never distinguishes "expired" from "wrong secret"
// in its returned error, per the relay's error handling design.
type Validator struct {
	secret []byte
}

// NewValidator builds a Validator from the configured JWT secret.
func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// ValidateToken parses and validates tokenString, returning its claims.
func (v *Validator) ValidateToken(tokenString string) (*IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))

	if err != nil {
		return nil, errors.New("invalid identity token")
	}
	if !token.Valid {
		return nil, errors.New("invalid identity token")
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok {
		return nil, errors.New("invalid identity token")
	}

	return claims, nil
}

// IssueToken mints a new identity token for the given subject, signed with
// the validator's secret. Used only by the GitHub OAuth callback.
func (v *Validator) IssueToken(subject, username, name, avatarURL string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &IdentityClaims{
		Username:  username,
		Name:      name,
		AvatarURL: avatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign identity token: %w", err)
	}
	return signed, nil
}
