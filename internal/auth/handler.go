package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"chat-backend/internal/observability"
	"chat-backend/internal/users"
)

const (
	maxJSONBodyBytes = 1 << 20

	AccessCookieName  = "accessToken"
	RefreshCookieName = "refreshToken"
)

type Handler struct {
	service *Service
	logger  *observability.Logger
	secure  bool
}

// NewHandler builds the /auth handlers. secureCookies sets the Secure
// attribute on credential cookies and should be on in production.
func NewHandler(service *Service, logger *observability.Logger, secureCookies bool) *Handler {
	return &Handler{service: service, logger: logger, secure: secureCookies}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	var v users.Validator
	v.Name(body.Name)
	v.Email(body.Email)
	v.Password(body.Password)
	if !validated(w, &v) {
		return
	}

	session, err := h.service.Register(r.Context(), body.Name, body.Email, body.Password)
	if err != nil {
		var dup *DuplicateCredentialError
		if errors.As(err, &dup) {
			writeError(w, http.StatusBadRequest, dup.Error())
			return
		}
		h.writeUnexpected(w, r, "register_failed", err, "registration failed")
		return
	}

	h.setSessionCookies(w, session.TokenPair)
	writeJSON(w, http.StatusOK, userResponse{User: session.User})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	var v users.Validator
	v.Email(body.Email)
	v.Required("password", body.Password)
	if !validated(w, &v) {
		return
	}

	session, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.writeUnexpected(w, r, "login_failed", err, "failed to login")
		return
	}

	h.setSessionCookies(w, session.TokenPair)
	writeJSON(w, http.StatusOK, userResponse{User: session.User})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := cookieValue(r, RefreshCookieName)
	if refreshToken == "" {
		writeError(w, http.StatusUnauthorized, "refresh token not found")
		return
	}

	pair, err := h.service.Refresh(r.Context(), refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidToken):
			h.logger.Info("refresh_rejected", map[string]any{"reason": err.Error()})
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
		case errors.Is(err, ErrUserNotFound):
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
		case errors.Is(err, ErrRevocationUnavailable):
			h.writeUnavailable(w, r, "refresh_revocation_unavailable", err)
		default:
			h.writeUnexpected(w, r, "refresh_failed", err, "failed to refresh token")
		}
		return
	}

	h.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, messageResponse{Message: "token refreshed successfully"})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	accessToken := cookieValue(r, AccessCookieName)
	refreshToken := cookieValue(r, RefreshCookieName)

	h.clearSessionCookies(w)

	if err := h.service.Logout(r.Context(), accessToken, refreshToken); err != nil {
		if errors.Is(err, ErrNoCredentials) {
			writeError(w, http.StatusUnauthorized, "no authentication tokens found")
			return
		}
		if errors.Is(err, ErrRevocationUnavailable) {
			h.writeUnavailable(w, r, "logout_revocation_unavailable", err)
			return
		}
		h.writeUnexpected(w, r, "logout_failed", err, "failed to logout")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out successfully"})
}

// DeleteAccount must run behind the guard; it removes the authenticated user
// and ends the session that made the request.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	err := h.service.DeleteAccount(r.Context(), identity.UserID,
		requestToken(r), cookieValue(r, RefreshCookieName))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		if !errors.Is(err, ErrRevocationUnavailable) {
			h.writeUnexpected(w, r, "delete_account_failed", err, "internal server error")
			return
		}
		// The account is gone; the guard's liveness check rejects the tokens.
		h.logger.Warn("delete_account_revoke_failed", map[string]any{"error": err.Error()})
	}

	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "user deleted successfully"})
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, pair TokenPair) {
	tokens := h.service.Tokens()
	http.SetCookie(w, h.cookie(AccessCookieName, pair.AccessToken, tokens.AccessTTL()))
	http.SetCookie(w, h.cookie(RefreshCookieName, pair.RefreshToken, tokens.RefreshTTL()))
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		c := h.cookie(name, "", 0)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (h *Handler) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) writeUnexpected(w http.ResponseWriter, r *http.Request, event string, err error, message string) {
	h.logger.Error(event, map[string]any{"error": err.Error(), "path": r.URL.Path})
	sentry.CaptureException(err)
	writeError(w, http.StatusInternalServerError, message)
}

func (h *Handler) writeUnavailable(w http.ResponseWriter, r *http.Request, event string, err error) {
	h.logger.Error(event, map[string]any{"error": err.Error(), "path": r.URL.Path})
	sentry.CaptureException(err)
	writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
}

func validated(w http.ResponseWriter, v *users.Validator) bool {
	var invalid *users.ValidationError
	if errors.As(v.Err(), &invalid) {
		users.WriteValidationError(w, invalid)
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
