package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

func newTestAuth(ttl time.Duration) *Authenticator {
	return NewAuthenticator(models.AuthConfig{JWTSecret: "test-secret", Issuer: "test", TokenTTL: ttl})
}

func TestGenerateAndParse(t *testing.T) {
	a := newTestAuth(time.Hour)
	token, err := a.GenerateToken(models.UserRef{ID: "u-1", Email: "ana@example.com"})
	require.NoError(t, err)

	claims, err := a.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, "test", claims.Issuer)
}

func TestParseToken_Rejects(t *testing.T) {
	a := newTestAuth(time.Hour)
	token, err := a.GenerateToken(models.UserRef{ID: "u-1"})
	require.NoError(t, err)

	other := NewAuthenticator(models.AuthConfig{JWTSecret: "other", Issuer: "test", TokenTTL: time.Hour})
	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := NewAuthenticator(models.AuthConfig{JWTSecret: "test-secret", Issuer: "elsewhere", TokenTTL: time.Hour})
	_, err = wrongIssuer.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := newTestAuth(-time.Minute)
	old, err := expired.GenerateToken(models.UserRef{ID: "u-1"})
	require.NoError(t, err)
	_, err = a.ParseToken(old)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	a := newTestAuth(time.Hour)
	var seen models.UserRef
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		require.True(t, ok)
		seen = u
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := a.GenerateToken(models.UserRef{ID: "u-7", Email: "luis@example.com"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u-7", seen.ID)
}

func TestUserFromContext_Empty(t *testing.T) {
	_, ok := UserFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
