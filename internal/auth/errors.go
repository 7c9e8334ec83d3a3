package auth

import (
	"errors"
	"fmt"
	"strings"

	"chat-backend/internal/users"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoCredentials      = errors.New("no authentication tokens found")
	ErrUserNotFound       = errors.New("user not found")

	// ErrInvalidToken is the single client-visible token failure. The cause
	// (expired, bad signature, wrong type, blacklisted) is wrapped for logging.
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenBlacklisted = errors.New("token blacklisted")

	ErrRevocationUnavailable = errors.New("revocation store unavailable")
)

// DuplicateCredentialError is returned by registration when the email or the
// name is already taken.
type DuplicateCredentialError = users.DuplicateError

// ForbiddenError reports a role mismatch on a role-gated route.
type ForbiddenError struct {
	Required []string
	Actual   string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("required role: %s, user role: %s", strings.Join(e.Required, " or "), e.Actual)
}

func invalidToken(cause error) error {
	return fmt.Errorf("%w: %w", ErrInvalidToken, cause)
}
