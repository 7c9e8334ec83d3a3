package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"chat-backend/internal/users"
)

const defaultBcryptCost = bcrypt.DefaultCost

// Service runs the session protocol: register, login, refresh, logout and
// account removal.
type Service struct {
	users         users.Store
	tokens        *TokenService
	revocations   RevocationStore
	bcryptCost    int
	revokeRotated bool
	dummyHash     []byte
}

func NewService(store users.Store, tokens *TokenService, revocations RevocationStore) *Service {
	s := &Service{
		users:         store,
		tokens:        tokens,
		revocations:   revocations,
		bcryptCost:    defaultBcryptCost,
		revokeRotated: true,
	}
	s.dummyHash = s.mustDummyHash()
	return s
}

// WithSecurityConfig overrides the bcrypt cost (values below bcrypt.MinCost
// are ignored) and whether a refresh blacklists the token it replaces.
func (s *Service) WithSecurityConfig(bcryptCost int, revokeRotatedRefresh bool) {
	if bcryptCost >= bcrypt.MinCost && bcryptCost <= bcrypt.MaxCost {
		s.bcryptCost = bcryptCost
		s.dummyHash = s.mustDummyHash()
	}
	s.revokeRotated = revokeRotatedRefresh
}

func (s *Service) Tokens() *TokenService {
	return s.tokens
}

func (s *Service) Register(ctx context.Context, name, email, password string) (Session, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	existing, err := s.users.FindByEmailOrName(ctx, email, name)
	switch {
	case err == nil:
		if existing.Email == email {
			return Session{}, &DuplicateCredentialError{Field: "email"}
		}
		return Session{}, &DuplicateCredentialError{Field: "name"}
	case !errors.Is(err, users.ErrNotFound):
		return Session{}, fmt.Errorf("registration failed: check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("registration failed: hash password: %w", err)
	}

	user, err := s.users.Create(ctx, users.NewUser{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         users.DefaultRole,
	})
	if err != nil {
		var dup *DuplicateCredentialError
		if errors.As(err, &dup) {
			return Session{}, dup
		}
		return Session{}, fmt.Errorf("registration failed: create user: %w", err)
	}

	return s.newSession(user)
}

// Login returns ErrInvalidCredentials for both an unknown email and a wrong
// password. Unknown emails still pay for a bcrypt comparison.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("authentication failed: find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	return s.newSession(user)
}

// Refresh exchanges a valid refresh token for a brand-new pair. With rotation
// revocation enabled the presented token is consumed atomically, so a replay
// of the same token fails even under concurrent requests. The token is only
// consumed once the new pair exists; a failed lookup leaves it usable.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, invalidToken(ErrNoCredentials)
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	if !s.revokeRotated {
		blacklisted, err := s.revocations.IsBlacklisted(ctx, refreshToken)
		if err != nil {
			return TokenPair{}, err
		}
		if blacklisted {
			return TokenPair{}, invalidToken(ErrTokenBlacklisted)
		}
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return TokenPair{}, ErrUserNotFound
		}
		return TokenPair{}, fmt.Errorf("token refresh failed: find user: %w", err)
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return TokenPair{}, err
	}

	if s.revokeRotated {
		claimed, err := s.revocations.BlacklistOnce(ctx, refreshToken, s.tokens.RemainingLifetime(refreshToken))
		if err != nil {
			return TokenPair{}, err
		}
		if !claimed {
			return TokenPair{}, invalidToken(ErrTokenBlacklisted)
		}
	}

	return pair, nil
}

// Logout blacklists whichever tokens are present, concurrently, each for the
// rest of its lifetime. Calling it again with the same tokens is harmless.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	accessToken = strings.TrimSpace(accessToken)
	refreshToken = strings.TrimSpace(refreshToken)
	if accessToken == "" && refreshToken == "" {
		return ErrNoCredentials
	}

	return s.revokeAll(ctx, accessToken, refreshToken)
}

// DeleteAccount removes the user and revokes the tokens of the current session.
func (s *Service) DeleteAccount(ctx context.Context, userID, accessToken, refreshToken string) error {
	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete account: %w", err)
	}

	return s.revokeAll(ctx, strings.TrimSpace(accessToken), strings.TrimSpace(refreshToken))
}

func (s *Service) revokeAll(ctx context.Context, tokens ...string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, token := range tokens {
		if token == "" {
			continue
		}
		g.Go(func() error {
			return s.revocations.Blacklist(gctx, token, s.tokens.RemainingLifetime(token))
		})
	}
	return g.Wait()
}

func (s *Service) newSession(user users.User) (Session, error) {
	pair, err := s.issuePair(user)
	if err != nil {
		return Session{}, err
	}

	return Session{
		User:      SessionUser{ID: user.ID, Name: user.Name, Email: user.Email},
		TokenPair: pair,
	}, nil
}

func (s *Service) issuePair(user users.User) (TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user.ID, user.Role)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) mustDummyHash() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("timing-equalizer"), s.bcryptCost)
	if err != nil {
		panic(fmt.Sprintf("generate dummy bcrypt hash: %v", err))
	}
	return hash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
