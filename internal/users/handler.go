package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"

	"chat-backend/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

// IdentityFunc resolves the authenticated user id placed on the request
// context by the access guard.
type IdentityFunc func(ctx context.Context) (string, bool)

type Handler struct {
	service  *Service
	identity IdentityFunc
	logger   *observability.Logger
}

func NewHandler(service *Service, identity IdentityFunc, logger *observability.Logger) *Handler {
	return &Handler{service: service, identity: identity, logger: logger}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile, err := h.service.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.writeUnexpected(w, r, "get_profile_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body ProfileUpdate
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	profile, err := h.service.Update(r.Context(), userID, body)
	if err != nil {
		var validationErr *ValidationError
		var dupErr *DuplicateError
		switch {
		case errors.As(err, &validationErr):
			WriteValidationError(w, validationErr)
		case errors.As(err, &dupErr):
			writeError(w, http.StatusBadRequest, dupErr.Error())
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			h.writeUnexpected(w, r, "update_profile_failed", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) writeUnexpected(w http.ResponseWriter, r *http.Request, event string, err error) {
	h.logger.Error(event, map[string]any{"error": err.Error(), "path": r.URL.Path})
	sentry.CaptureException(err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// WriteValidationError renders a 400 with the per-field messages.
func WriteValidationError(w http.ResponseWriter, err *ValidationError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"fields": err.Fields,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
