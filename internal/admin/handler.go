// Package admin exposes the administrator surface: aggregates, student
// listings, full feedback records and PDF exports.
package admin

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"osteo-training-backend/internal/apperr"
	"osteo-training-backend/internal/feedback"
	"osteo-training-backend/internal/httpx"
	"osteo-training-backend/internal/platform/logger"
	"osteo-training-backend/internal/progression"
	"osteo-training-backend/internal/report"
	"osteo-training-backend/internal/store"
	"osteo-training-backend/internal/transcript"
)

type Handler struct {
	store      store.Gateway
	log        *logger.Logger
	gate       *feedback.Gate
	engine     *progression.Engine
	transcript *transcript.Sequencer
}

func NewHandler(gw store.Gateway, log *logger.Logger, gate *feedback.Gate, engine *progression.Engine, seq *transcript.Sequencer) *Handler {
	return &Handler{
		store:      gw,
		log:        log.With("handler", "admin"),
		gate:       gate,
		engine:     engine,
		transcript: seq,
	}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/admin/stats", h.Stats)
	r.Get("/admin/students", h.Students)
	r.Get("/admin/student/{userID}/sessions", h.StudentSessions)
	r.Get("/admin/student/{userID}/summary-pdf", h.StudentSummaryPDF)
	r.Get("/admin/sessions/{sessionID}/feedback", h.SessionFeedback)
	r.Get("/admin/sessions/{sessionID}/pdf", h.SessionPDF)
	r.Get("/admin/analytics/summary", h.AnalyticsSummary)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	students, err := h.store.Count(r.Context(), "profiles", store.Query{
		Filters: []store.Filter{store.Eq("role", "student")},
	})
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	completed, err := h.store.Count(r.Context(), "sessions", store.Query{
		Filters: []store.Filter{store.Eq("status", string(progression.StatusCompleted))},
	})
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{
		"students":           students,
		"sessions_completed": completed,
	})
}

func (h *Handler) Students(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.Select(r.Context(), "profiles",
		[]string{"user_id", "email", "level", "preferred_language", "created_at"},
		store.Query{
			Filters: []store.Filter{store.Eq("role", "student")},
			Order:   &store.Order{Col: "created_at", Desc: true},
		})
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	students := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		entry := map[string]any{
			"user_id":            store.AsString(row["user_id"]),
			"email":              store.AsString(row["email"]),
			"level":              store.AsString(row["level"]),
			"preferred_language": store.AsString(row["preferred_language"]),
		}
		if t, ok := store.AsTime(row["created_at"]); ok {
			entry["created_at"] = t.UTC().Format(time.RFC3339)
		}
		students = append(students, entry)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"students": students})
}

func (h *Handler) StudentSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.engine.Sessions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	out := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		entry := map[string]any{
			"id":             s.ID,
			"session_number": s.Number,
			"status":         string(s.Status),
			"difficulty":     string(s.Difficulty),
			"reorientation":  string(s.Reorientation),
			"patient_age":    s.PatientAge,
			"patient_gender": string(s.PatientGender),
		}
		if s.EndedAt != nil {
			entry["ended_at"] = s.EndedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (h *Handler) SessionFeedback(w http.ResponseWriter, r *http.Request) {
	fb, err := h.gate.BySession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fb.AdminView())
}

// sessionByID resolves any session regardless of owner; admin only.
func (h *Handler) sessionByID(r *http.Request, sessionID string) (*progression.Session, error) {
	row, err := h.store.SelectOne(r.Context(), "sessions", nil, store.Query{
		Filters: []store.Filter{store.Eq("id", sessionID)},
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apperr.New(apperr.KindNotFound, "session not found")
	}
	return progression.SessionFromRow(row)
}

func (h *Handler) SessionPDF(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionByID(r, chi.URLParam(r, "sessionID"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	fb, err := h.gate.BySession(r.Context(), session.ID)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	messages, err := h.transcript.History(r.Context(), session.ID, 0)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	level := ""
	profileRow, err := h.store.SelectOne(r.Context(), "profiles", []string{"level"}, store.Query{
		Filters: []store.Filter{store.Eq("user_id", session.UserID)},
	})
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	if profileRow != nil {
		level = store.AsString(profileRow["level"])
	}

	endedAt := ""
	if session.EndedAt != nil {
		endedAt = session.EndedAt.UTC().Format(time.RFC3339)
	}
	admin := fb.AdminView()
	meta := []report.MetaItem{
		{Label: "Student (user_id)", Value: session.UserID},
		{Label: "Session", Value: fmt.Sprintf("%d", session.Number)},
		{Label: "Date", Value: endedAt},
		{Label: "Level(hidden)", Value: string(session.Difficulty)},
		{Label: "Academic year", Value: level},
		{Label: "Scores", Value: fmt.Sprintf("%v", admin.InternalScores)},
		{Label: "Indicators", Value: fmt.Sprintf("%v", admin.SkillIndicators)},
	}

	pdfBytes, err := report.BuildSessionPDF(
		fmt.Sprintf("Training Report — Session %d", session.Number),
		meta, fb.StudentFacing, messages,
	)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	_, _ = w.Write(pdfBytes)
}

func (h *Handler) StudentSummaryPDF(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	sessions, err := h.engine.Sessions(r.Context(), userID)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	if len(sessions) == 0 {
		httpx.Error(w, h.log, apperr.New(apperr.KindNotFound, "student has no sessions"))
		return
	}

	sessionIDs := make([]any, 0, len(sessions))
	for _, s := range sessions {
		sessionIDs = append(sessionIDs, s.ID)
	}
	fbRows, err := h.store.Select(r.Context(), "feedback",
		[]string{"session_id", "internal_scores", "skill_indicators"},
		store.Query{Filters: []store.Filter{store.In("session_id", sessionIDs)}})
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	type fbData struct {
		scores     map[string]int
		indicators map[string]bool
	}
	fbBySession := make(map[string]fbData, len(fbRows))
	for _, row := range fbRows {
		var d fbData
		_ = store.AsJSON(row["internal_scores"], &d.scores)
		_ = store.AsJSON(row["skill_indicators"], &d.indicators)
		fbBySession[store.AsString(row["session_id"])] = d
	}

	email, level := "", ""
	profileRow, err := h.store.SelectOne(r.Context(), "profiles", []string{"email", "level"}, store.Query{
		Filters: []store.Filter{store.Eq("user_id", userID)},
	})
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	if profileRow != nil {
		email = store.AsString(profileRow["email"])
		level = store.AsString(profileRow["level"])
	}

	completed := 0
	rows := make([]report.SummaryRow, 0, len(sessions))
	for _, s := range sessions {
		ended := ""
		if s.EndedAt != nil {
			completed++
			ended = s.EndedAt.UTC().Format(time.RFC3339)
		}
		d := fbBySession[s.ID]
		rows = append(rows, report.SummaryRow{
			SessionNumber:   s.Number,
			EndedAt:         ended,
			Difficulty:      string(s.Difficulty),
			InternalScores:  d.scores,
			SkillIndicators: d.indicators,
		})
	}

	meta := []report.MetaItem{
		{Label: "Student (user_id)", Value: userID},
		{Label: "Email", Value: email},
		{Label: "Academic year", Value: level},
		{Label: "Completed sessions", Value: fmt.Sprintf("%d/%d", completed, progression.SessionCount)},
	}
	pdfBytes, err := report.BuildSummaryPDF("Training Summary Report (16 sessions)", meta, rows)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	_, _ = w.Write(pdfBytes)
}
