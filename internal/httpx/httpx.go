// Package httpx holds the JSON request/response helpers shared by all
// handlers: encode, error mapping, and payload validation.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"osteo-training-backend/internal/apperr"
	"osteo-training-backend/internal/platform/logger"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// JSON writes v as a JSON response.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error maps err through the apperr taxonomy and writes a stable
// `{"error": ..., "kind": ...}` body. Internal detail stays in the log.
func Error(w http.ResponseWriter, log *logger.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "err", err)
	} else {
		log.Debug("request rejected", "err", err)
	}
	JSON(w, status, map[string]string{
		"error": apperr.Message(err),
		"kind":  apperr.KindOf(err).String(),
	})
}

// Decode parses the JSON body into dst and runs struct validation.
func Decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid request body", err)
	}
	if err := validate.Struct(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, "request failed validation", err)
	}
	return nil
}
