package identity_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beisanytime/shiurhub"
	"github.com/beisanytime/shiurhub/identity"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	verifier := identity.NewVerifier(identity.Config{TokenSecret: "secret"})

	token, err := verifier.GenerateToken("a@example.com", time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	email, err := verifier.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", email)
}

func TestFromRequestAnonymous(t *testing.T) {
	t.Parallel()

	verifier := identity.NewVerifier(identity.Config{TokenSecret: "secret"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	email, err := verifier.FromRequest(r)
	require.NoError(t, err)
	assert.Empty(t, email)
}

func TestFromRequestRejectsBadToken(t *testing.T) {
	t.Parallel()

	verifier := identity.NewVerifier(identity.Config{TokenSecret: "secret"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")

	_, err := verifier.FromRequest(r)
	require.ErrorIs(t, err, shiurhub.ErrUnauthorized)
}

func TestFromRequestRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	other := identity.NewVerifier(identity.Config{TokenSecret: "other"})
	token, err := other.GenerateToken("a@example.com", time.Hour)
	require.NoError(t, err)

	verifier := identity.NewVerifier(identity.Config{TokenSecret: "secret"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	_, err = verifier.FromRequest(r)
	require.ErrorIs(t, err, shiurhub.ErrUnauthorized)
}

func TestFromRequestRejectsUnsignedAlgorithm(t *testing.T) {
	t.Parallel()

	verifier := identity.NewVerifier(identity.Config{TokenSecret: "secret"})

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"email": "a@example.com"})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+unsigned)

	_, err = verifier.FromRequest(r)
	require.ErrorIs(t, err, shiurhub.ErrUnauthorized)
}

func TestFromRequestRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	verifier := identity.NewVerifier(identity.Config{TokenSecret: "secret"})
	token, err := verifier.GenerateToken("a@example.com", -time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	_, err = verifier.FromRequest(r)
	require.ErrorIs(t, err, shiurhub.ErrUnauthorized)
}

func TestHeaderFallback(t *testing.T) {
	t.Parallel()

	t.Run("disabled by default", func(t *testing.T) {
		t.Parallel()
		verifier := identity.NewVerifier(identity.Config{})

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-User-Email", "a@example.com")

		email, err := verifier.FromRequest(r)
		require.NoError(t, err)
		assert.Empty(t, email)
	})

	t.Run("enabled", func(t *testing.T) {
		t.Parallel()
		verifier := identity.NewVerifier(identity.Config{AllowHeaderFallback: true})

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-User-Email", "a@example.com")

		email, err := verifier.FromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", email)
	})

	t.Run("bearer token wins over header", func(t *testing.T) {
		t.Parallel()
		verifier := identity.NewVerifier(identity.Config{TokenSecret: "secret", AllowHeaderFallback: true})
		token, err := verifier.GenerateToken("token@example.com", time.Hour)
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		r.Header.Set("X-User-Email", "header@example.com")

		email, err := verifier.FromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "token@example.com", email)
	})
}

func TestIsAdmin(t *testing.T) {
	t.Parallel()

	verifier := identity.NewVerifier(identity.Config{
		AdminEmail: "admin@example.com",
		AdminKey:   "s3cret-key",
	})

	plain := httptest.NewRequest(http.MethodGet, "/", nil)

	assert.True(t, verifier.IsAdmin(plain, "admin@example.com"))
	assert.True(t, verifier.IsAdmin(plain, "Admin@Example.com"))
	assert.False(t, verifier.IsAdmin(plain, "user@example.com"))
	assert.False(t, verifier.IsAdmin(plain, ""))

	keyed := httptest.NewRequest(http.MethodGet, "/", nil)
	keyed.Header.Set("X-Admin-Key", "s3cret-key")
	assert.True(t, verifier.IsAdmin(keyed, ""))

	wrongKey := httptest.NewRequest(http.MethodGet, "/", nil)
	wrongKey.Header.Set("X-Admin-Key", "wrong")
	assert.False(t, verifier.IsAdmin(wrongKey, ""))
}

func TestIsAdminUnconfigured(t *testing.T) {
	t.Parallel()

	verifier := identity.NewVerifier(identity.Config{})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Admin-Key", "")
	assert.False(t, verifier.IsAdmin(r, "anyone@example.com"))
}

func TestGenerateTokenRequiresSecret(t *testing.T) {
	t.Parallel()

	verifier := identity.NewVerifier(identity.Config{})
	_, err := verifier.GenerateToken("a@example.com", time.Hour)
	require.ErrorIs(t, err, shiurhub.ErrConfiguration)
}
