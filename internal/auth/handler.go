package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"osteo-training-backend/internal/httpx"
	"osteo-training-backend/internal/store"
)

type profileUpdateRequest struct {
	Level             string `json:"level" validate:"required,oneof=4e 5e autre"`
	PreferredLanguage string `json:"preferred_language" validate:"omitempty,oneof=fr en"`
}

func RegisterRoutes(r chi.Router, a *Authenticator) {
	r.Post("/me/profile", a.UpdateProfile)
}

// UpdateProfile lets the authenticated user set their academic level and
// preferred language.
func (a *Authenticator) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p := FromContext(r.Context())
	var req profileUpdateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, a.log, err)
		return
	}
	lang := req.PreferredLanguage
	if lang == "" {
		lang = "fr"
	}
	err := a.store.Upsert(r.Context(), "profiles", store.Row{
		"user_id":            p.UserID,
		"email":              p.Email,
		"level":              req.Level,
		"preferred_language": lang,
	}, []string{"user_id"})
	if err != nil {
		httpx.Error(w, a.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}
