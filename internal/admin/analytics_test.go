package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osteo-training-backend/internal/platform/logger"
	"osteo-training-backend/internal/store"
	"osteo-training-backend/internal/store/storetest"
)

func seedAnalytics(t *testing.T, mem *storetest.Memory) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, mem.Insert(ctx, "profiles", []store.Row{
		{"user_id": "u1", "role": "student", "level": "4e", "email": "a@x.org", "preferred_language": "fr"},
		{"user_id": "u2", "role": "student", "level": "5e", "email": "b@x.org", "preferred_language": "fr"},
	}))
	require.NoError(t, mem.Insert(ctx, "sessions", []store.Row{
		{"id": "s1", "user_id": "u1", "session_number": 1, "status": "completed", "difficulty": "L1",
			"reorientation": "none", "patient_age": 32, "patient_gender": "female", "patient_opening_starts": false},
		{"id": "s2", "user_id": "u2", "session_number": 1, "status": "completed", "difficulty": "L1",
			"reorientation": "none", "patient_age": 41, "patient_gender": "male", "patient_opening_starts": true},
	}))
	mustScores := func(e, s, a int) []byte {
		b, err := json.Marshal(map[string]int{"empathy": e, "structure": s, "alliance": a})
		require.NoError(t, err)
		return b
	}
	require.NoError(t, mem.Insert(ctx, "feedback", []store.Row{
		{"session_id": "s1", "user_id": "u1", "language": "fr", "internal_scores": mustScores(4, 2, 3),
			"student_facing": []byte(`{}`), "skill_indicators": []byte(`{}`), "kpis": []byte(`{}`)},
		{"session_id": "s2", "user_id": "u2", "language": "fr", "internal_scores": mustScores(2, 4, 3),
			"student_facing": []byte(`{}`), "skill_indicators": []byte(`{}`), "kpis": []byte(`{}`)},
	}))
}

func TestAnalyticsSummary(t *testing.T) {
	mem := storetest.New()
	seedAnalytics(t, mem)
	h := NewHandler(mem, logger.NewNop(), nil, nil, nil)
	r := chi.NewRouter()
	RegisterRoutes(r, h)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/analytics/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		FeedbackCount   int                           `json:"feedback_count"`
		Averages        map[string]float64            `json:"averages"`
		ByLevel         map[string]map[string]float64 `json:"by_level"`
		BySessionNumber map[string]map[string]float64 `json:"by_session_number"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 2, resp.FeedbackCount)
	assert.InDelta(t, 3.0, resp.Averages["empathy"], 1e-9)
	assert.InDelta(t, 3.0, resp.Averages["structure"], 1e-9)
	assert.InDelta(t, 3.0, resp.Averages["alliance"], 1e-9)

	assert.InDelta(t, 4.0, resp.ByLevel["4e"]["empathy"], 1e-9)
	assert.InDelta(t, 2.0, resp.ByLevel["5e"]["empathy"], 1e-9)

	assert.InDelta(t, 3.0, resp.BySessionNumber["1"]["alliance"], 1e-9)
}

func TestStats(t *testing.T) {
	mem := storetest.New()
	seedAnalytics(t, mem)
	h := NewHandler(mem, logger.NewNop(), nil, nil, nil)
	r := chi.NewRouter()
	RegisterRoutes(r, h)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp["students"])
	assert.Equal(t, 2, resp["sessions_completed"])
}
