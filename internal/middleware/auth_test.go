package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyroom-backend/internal/models"
)

func TestJWTAuth_VerifyIdentity_RoundTrip(t *testing.T) {
	auth := NewJWTAuth("test-secret", time.Hour)
	userID := uuid.New()

	token, err := auth.GenerateAccessToken(userID, "t@example.com", models.RoleTeacher)
	require.NoError(t, err)

	identity, err := auth.VerifyIdentity(token)
	require.NoError(t, err)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, models.RoleTeacher, identity.Role)
}

func TestJWTAuth_VerifyIdentity_Rejects(t *testing.T) {
	auth := NewJWTAuth("test-secret", time.Hour)
	other := NewJWTAuth("other-secret", time.Hour)

	foreign, err := other.GenerateAccessToken(uuid.New(), "s@example.com", models.RoleStudent)
	require.NoError(t, err)

	_, err = auth.VerifyIdentity(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.VerifyIdentity("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := &JWTAuth{Secret: []byte("test-secret"), AccessTTL: -time.Minute}
	stale, err := expired.GenerateAccessToken(uuid.New(), "s@example.com", models.RoleStudent)
	require.NoError(t, err)
	_, err = auth.VerifyIdentity(stale)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestMiddleware_AttachesIdentity(t *testing.T) {
	auth := NewJWTAuth("test-secret", time.Hour)
	userID := uuid.New()
	token, err := auth.GenerateAccessToken(userID, "s@example.com", models.RoleStudent)
	require.NoError(t, err)

	var gotID uuid.UUID
	var gotRole models.Role
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = GetUserID(r.Context())
		gotRole = GetRole(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, userID, gotID)
	assert.Equal(t, models.RoleStudent, gotRole)
}

func TestMiddleware_MissingHeader(t *testing.T) {
	auth := NewJWTAuth("test-secret", time.Hour)
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	var body map[string]map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "UNAUTHORIZED", body["error"]["code"])
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(models.RoleTeacher)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms", nil)
	req = req.WithContext(WithIdentity(req.Context(), models.Identity{UserID: uuid.New(), Role: models.RoleStudent}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req = req.WithContext(WithIdentity(req.Context(), models.Identity{UserID: uuid.New(), Role: models.RoleTeacher}))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws/rooms?token=abc", nil)
	assert.Equal(t, "abc", BearerToken(req))

	req.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "xyz", BearerToken(req))
}
