package auth

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chat-backend/internal/observability"
	"chat-backend/internal/users/userstest"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fixture struct {
	store       *userstest.Store
	redis       *miniredis.Miniredis
	client      *redis.Client
	tokens      *TokenService
	revocations *RedisRevocationStore
	service     *Service
	logger      *observability.Logger
}

func newTestTokens(t *testing.T) *TokenService {
	t.Helper()
	tokens, err := NewTokenService(testSecret, time.Hour, 7*24*time.Hour)
	require.NoError(t, err)
	return tokens
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, client := newTestRedis(t)

	f := &fixture{
		store:       userstest.NewStore(),
		redis:       mr,
		client:      client,
		tokens:      newTestTokens(t),
		revocations: NewRedisRevocationStore(client),
		logger:      observability.NewLoggerTo(io.Discard),
	}
	f.service = NewService(f.store, f.tokens, f.revocations)
	f.service.WithSecurityConfig(bcrypt.MinCost, true)
	return f
}

func (f *fixture) register(t *testing.T, name, email, password string) Session {
	t.Helper()
	session, err := f.service.Register(context.Background(), name, email, password)
	require.NoError(t, err)
	return session
}
