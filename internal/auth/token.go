package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
	minSecretBytes    = 32

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	// ErrTokenSignature covers bad signatures, unexpected algorithms and
	// tokens that cannot be parsed at all.
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenType      = errors.New("unexpected token type")
)

// Claims is the payload of both token kinds. Role is empty on refresh tokens.
type Claims struct {
	UserID    string `json:"userId"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"tokenType"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 access and refresh tokens. It holds no
// state besides the secret and is safe for concurrent use.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretBytes)
	}
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}

	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock replaces the time source used for issuing and verifying.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *TokenService) IssueAccessToken(userID, role string) (string, error) {
	return s.sign(Claims{UserID: userID, Role: role, TokenType: tokenTypeAccess}, s.accessTTL)
}

func (s *TokenService) IssueRefreshToken(userID string) (string, error) {
	return s.sign(Claims{UserID: userID, TokenType: tokenTypeRefresh}, s.refreshTTL)
}

func (s *TokenService) sign(claims Claims, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return encoded, nil
}

// Verify checks signature and expiry. It returns ErrTokenExpired or
// ErrTokenSignature; the token type is not inspected.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenSignature, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrTokenSignature
	}

	return claims, nil
}

func (s *TokenService) VerifyAccess(tokenStr string) (*Claims, error) {
	return s.verifyType(tokenStr, tokenTypeAccess)
}

func (s *TokenService) VerifyRefresh(tokenStr string) (*Claims, error) {
	return s.verifyType(tokenStr, tokenTypeRefresh)
}

func (s *TokenService) verifyType(tokenStr, want string) (*Claims, error) {
	claims, err := s.Verify(tokenStr)
	if err != nil {
		return nil, invalidToken(err)
	}
	if claims.TokenType != want {
		return nil, invalidToken(ErrTokenType)
	}
	return claims, nil
}

// RemainingLifetime returns how long a still-valid token has left, rounded up
// to a whole second. Tokens that no longer verify return zero.
func (s *TokenService) RemainingLifetime(tokenStr string) time.Duration {
	claims, err := s.Verify(tokenStr)
	if err != nil || claims.ExpiresAt == nil {
		return 0
	}

	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining <= 0 {
		return 0
	}
	if frac := remaining % time.Second; frac != 0 {
		remaining += time.Second - frac
	}
	return remaining
}
