package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osteo-training-backend/internal/auth"
	"osteo-training-backend/internal/platform/logger"
)

func testRouter(f *fixture, p *auth.Profile) http.Handler {
	h := NewHandler(logger.NewNop(), f.engine, f.orchestrator, f.gate)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithProfile(req.Context(), p)))
		})
	})
	RegisterRoutes(r, h)
	return r
}

func TestDashboard(t *testing.T) {
	f := newFixture()
	router := testRouter(f, profile("u1"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/student/dashboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Completed              int              `json:"completed"`
		AvailableSessionNumber int              `json:"available_session_number"`
		Sessions               []sessionSummary `json:"sessions"`
		Badges                 []string         `json:"badges"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Completed)
	assert.Equal(t, 1, resp.AvailableSessionNumber)
	require.Len(t, resp.Sessions, 16)
	assert.Equal(t, "available", resp.Sessions[0].Status)
	assert.Empty(t, resp.Badges)

	// Hidden prompt parameters must never reach the student payload.
	body := rec.Body.String()
	assert.NotContains(t, body, "difficulty")
	assert.NotContains(t, body, "reorientation")
}

func TestCurrentSession(t *testing.T) {
	f := newFixture()
	router := testRouter(f, profile("u1"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/student/sessions/current", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["session_number"])
	assert.NotEmpty(t, resp["session_id"])
}

func TestSendChatValidation(t *testing.T) {
	f := newFixture()
	router := testRouter(f, profile("u1"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/student/sessions/abc/chat", strings.NewReader(`{"message": ""}`))
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateFeedbackEndpointHidesInternals(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := profile("u1")
	router := testRouter(f, p)

	s, err := f.engine.ActiveSession(ctx, p.UserID)
	require.NoError(t, err)
	require.NoError(t, f.engine.StartOrResume(ctx, s))
	require.NoError(t, f.engine.Complete(ctx, s))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/student/sessions/"+s.ID+"/generate-feedback", nil)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "internal_scores")
	assert.NotContains(t, body, "skill_indicators")
	assert.NotContains(t, body, "kpis")
}
