package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"osteo-training-backend/internal/auth"
	"osteo-training-backend/internal/feedback"
	"osteo-training-backend/internal/httpx"
	"osteo-training-backend/internal/platform/logger"
	"osteo-training-backend/internal/progression"
)

type Handler struct {
	log          *logger.Logger
	engine       *progression.Engine
	orchestrator *Orchestrator
	gate         *feedback.Gate
}

func NewHandler(log *logger.Logger, engine *progression.Engine, orchestrator *Orchestrator, gate *feedback.Gate) *Handler {
	return &Handler{
		log:          log.With("handler", "student"),
		engine:       engine,
		orchestrator: orchestrator,
		gate:         gate,
	}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/student/dashboard", h.Dashboard)
	r.Get("/student/sessions/current", h.CurrentSession)
	r.Get("/student/badges", h.Badges)
	r.Post("/student/sessions/{sessionID}/chat", h.SendChat)
	r.Post("/student/sessions/{sessionID}/end", h.EndSession)
	r.Post("/student/sessions/{sessionID}/generate-feedback", h.GenerateFeedback)
	r.Post("/student/sessions/{sessionID}/questionnaire", h.SubmitQuestionnaire)
}

type sessionSummary struct {
	ID                 string `json:"id"`
	SessionNumber      int    `json:"session_number"`
	Status             string `json:"status"`
	PatientAge         int    `json:"patient_age"`
	PatientGenderLabel string `json:"patient_gender_label"`
}

type dashboardResponse struct {
	Completed              int              `json:"completed"`
	AvailableSessionNumber int              `json:"available_session_number"`
	Sessions               []sessionSummary `json:"sessions"`
	Badges                 []string         `json:"badges"`
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := h.engine.EnsureSeeded(r.Context(), p.UserID); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	sessions, err := h.engine.Sessions(r.Context(), p.UserID)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	resp := dashboardResponse{Sessions: make([]sessionSummary, 0, len(sessions))}
	available := 0
	for _, s := range sessions {
		if s.Status == progression.StatusCompleted {
			resp.Completed++
		}
		if available == 0 && (s.Status == progression.StatusAvailable || s.Status == progression.StatusInProgress) {
			available = s.Number
		}
		resp.Sessions = append(resp.Sessions, sessionSummary{
			ID:                 s.ID,
			SessionNumber:      s.Number,
			Status:             string(s.Status),
			PatientAge:         s.PatientAge,
			PatientGenderLabel: s.PatientLabel(p.PreferredLanguage),
		})
	}
	// Display-only fallback when nothing is active.
	if available == 0 {
		if resp.Completed == progression.SessionCount {
			available = progression.SessionCount
		} else {
			available = 1
		}
	}
	resp.AvailableSessionNumber = available

	badges, err := h.engine.BadgeCodes(r.Context(), p.UserID)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	resp.Badges = badges

	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	session, err := h.engine.ActiveSession(r.Context(), p.UserID)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	if session == nil {
		httpx.JSON(w, http.StatusOK, map[string]bool{"done": true})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"session_id":           session.ID,
		"session_number":       session.Number,
		"status":               string(session.Status),
		"patient_age":          session.PatientAge,
		"patient_gender_label": session.PatientLabel(p.PreferredLanguage),
	})
}

func (h *Handler) Badges(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	badges, err := h.engine.BadgeCodes(r.Context(), p.UserID)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string][]string{"badges": badges})
}

type sendChatRequest struct {
	Message string `json:"message" validate:"required,min=1,max=4000"`
}

func (h *Handler) SendChat(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	var req sendChatRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	result, err := h.orchestrator.SendTurn(r.Context(), p, chi.URLParam(r, "sessionID"), req.Message)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	session, err := h.orchestrator.EndSession(r.Context(), p, chi.URLParam(r, "sessionID"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"session_id": session.ID,
		"status":     string(session.Status),
	})
}

func (h *Handler) GenerateFeedback(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	session, err := h.engine.SessionByID(r.Context(), p.UserID, chi.URLParam(r, "sessionID"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	fb, err := h.gate.RequestFeedback(r.Context(), p, session)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fb.StudentView())
}

type questionnaireRequest struct {
	Q1         int    `json:"q1" validate:"required,min=1,max=5"`
	Q2         int    `json:"q2" validate:"required,min=1,max=5"`
	OpenAnswer string `json:"open_answer" validate:"max=2000"`
}

func (h *Handler) SubmitQuestionnaire(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	var req questionnaireRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	err := h.gate.SubmitQuestionnaire(r.Context(), p, chi.URLParam(r, "sessionID"), req.Q1, req.Q2, req.OpenAnswer)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}
