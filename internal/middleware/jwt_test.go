package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"crewdesk/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTokenRoundTrip(t *testing.T) {
	userID := uuid.New()

	token, err := GenerateToken(userID, models.RoleStaff)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := ValidateToken(token)
	assert.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, models.RoleStaff, claims.Role)
}

func TestValidateTokenRejectsUnknownRole(t *testing.T) {
	token, err := GenerateToken(uuid.New(), models.Role("intern"))
	assert.NoError(t, err)

	_, err = ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	token, err := GenerateToken(uuid.New(), models.RoleAdmin)
	assert.NoError(t, err)

	_, err = ValidateToken(token + "x")
	assert.Error(t, err)
}

func TestJWTMiddlewareInjectsIdentity(t *testing.T) {
	userID := uuid.New()
	token, err := GenerateToken(userID, models.RoleClient)
	assert.NoError(t, err)

	called := false
	handler := ApplyJWTMiddleware(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotRole, ok := IdentityFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, userID, gotID)
		assert.Equal(t, models.RoleClient, gotRole)
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTMiddlewareRejectsMissingOrMalformedHeader(t *testing.T) {
	handler := ApplyJWTMiddleware(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("Handler must not run without a valid token")
	})

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/conversations", nil)
	req.Header.Set("Authorization", "token-without-scheme")
	rec = httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
