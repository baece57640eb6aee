package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_IssueAndValidateRoundTrip(t *testing.T) {
	v := NewValidator("a-very-long-test-secret-that-is-32-bytes-plus")

	token, err := v.IssueToken("user-1", "octocat", "The Octocat", "https://example.com/a.png", time.Hour)
	require.NoError(t, err)

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "octocat", claims.Username)
}

func TestValidator_RejectsExpiredToken(t *testing.T) {
	v := NewValidator("a-very-long-test-secret-that-is-32-bytes-plus")

	token, err := v.IssueToken("user-1", "octocat", "", "", -time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidator_RejectsWrongSecret(t *testing.T) {
	signer := NewValidator("secret-one-that-is-at-least-32-bytes-long")
	verifier := NewValidator("secret-two-that-is-at-least-32-bytes-long")

	token, err := signer.IssueToken("user-1", "octocat", "", "", time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidator_RejectsGarbage(t *testing.T) {
	v := NewValidator("a-very-long-test-secret-that-is-32-bytes-plus")
	_, err := v.ValidateToken("not.a.token")
	assert.Error(t, err)
}
