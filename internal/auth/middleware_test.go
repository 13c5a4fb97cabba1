package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osteo-training-backend/internal/platform/logger"
	"osteo-training-backend/internal/store"
	"osteo-training-backend/internal/store/storetest"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, subject, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func echoProfile() (http.Handler, *Profile) {
	captured := &Profile{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := FromContext(r.Context()); p != nil {
			*captured = *p
		}
		w.WriteHeader(http.StatusOK)
	}), captured
}

func TestMiddlewareCreatesProfileOnFirstSight(t *testing.T) {
	mem := storetest.New()
	a := NewAuthenticator(mem, logger.NewNop(), testSecret)
	next, captured := echoProfile()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "user-1", "new@example.org"))
	rec := httptest.NewRecorder()
	a.Middleware(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", captured.UserID)
	assert.Equal(t, RoleStudent, captured.Role)
	assert.Equal(t, "autre", captured.Level)
	assert.Equal(t, "fr", captured.PreferredLanguage)

	row, err := mem.SelectOne(context.Background(), "profiles", nil, store.Query{
		Filters: []store.Filter{store.Eq("user_id", "user-1")},
	})
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "new@example.org", store.AsString(row["email"]))
}

func TestMiddlewareLoadsExistingProfile(t *testing.T) {
	mem := storetest.New()
	require.NoError(t, mem.Insert(context.Background(), "profiles", []store.Row{{
		"user_id":            "user-2",
		"email":              "existing@example.org",
		"role":               RoleAdmin,
		"level":              "5e",
		"preferred_language": "en",
	}}))
	a := NewAuthenticator(mem, logger.NewNop(), testSecret)
	next, captured := echoProfile()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "user-2", "existing@example.org"))
	rec := httptest.NewRecorder()
	a.Middleware(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, RoleAdmin, captured.Role)
	assert.Equal(t, "5e", captured.Level)
	assert.Equal(t, "en", captured.PreferredLanguage)
}

func TestMiddlewareRejects(t *testing.T) {
	a := NewAuthenticator(storetest.New(), logger.NewNop(), testSecret)
	next, _ := echoProfile()

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc123",
		"garbage token":  "Bearer not.a.jwt",
		"wrong secret":   "Bearer " + signToken(t, "other-secret", "user-1", ""),
		"no subject":     "Bearer " + signToken(t, testSecret, "", ""),
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		a.Middleware(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	a := NewAuthenticator(storetest.New(), logger.NewNop(), testSecret)
	next, _ := echoProfile()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	a.Middleware(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	a := NewAuthenticator(storetest.New(), logger.NewNop(), testSecret)
	next, _ := echoProfile()
	guarded := a.RequireAdmin(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	student := &Profile{UserID: "u1", Role: RoleStudent}
	guarded.ServeHTTP(rec, req.WithContext(WithProfile(req.Context(), student)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	admin := &Profile{UserID: "u2", Role: RoleAdmin}
	guarded.ServeHTTP(rec, req.WithContext(WithProfile(req.Context(), admin)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
