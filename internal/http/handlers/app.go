package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"spriteforge/internal/batch"
	"spriteforge/internal/capability"
	"spriteforge/internal/comfy"
	"spriteforge/internal/domain"
	"spriteforge/internal/infra"
)

// App carries the dependencies shared by all HTTP handlers.
type App struct {
	Repo       domain.AssetRepository
	Supervisor *batch.Supervisor
	Caps       *capability.Checker
	Comfy      *comfy.Client
	Logger     infra.Logger
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain sentinels to HTTP statuses. Anything unclassified
// is a 500 with a generic body; details stay in the logs.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrBatchTooLarge),
		errors.Is(err, domain.ErrTemplateNotFound):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		msg = err.Error()
	}
	if status == http.StatusInternalServerError {
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("handler error")
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ErrValidation
	}
	return nil
}
