package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chat-backend/internal/users"
	"chat-backend/internal/users/userstest"
)

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.register(t, "Ada", "ADA@x.com", "Secret1!")
	assert.Equal(t, "Ada", session.User.Name)
	assert.Equal(t, "ada@x.com", session.User.Email)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)

	stored, err := f.store.FindByID(ctx, session.User.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "Secret1!", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("Secret1!")))
	assert.Equal(t, users.DefaultRole, stored.Role)

	login, err := f.service.Login(ctx, " Ada@X.com ", "Secret1!")
	require.NoError(t, err)
	assert.Equal(t, session.User, login.User)

	claims, err := f.tokens.VerifyAccess(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.UserID)
	assert.Equal(t, users.DefaultRole, claims.Role)
}

func TestRegisterDuplicate(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Ada", "ADA@x.com", "Secret1!")

	tests := []struct {
		name      string
		userName  string
		email     string
		wantField string
	}{
		{name: "email differs only in case", userName: "Bob", email: "ada@x.com", wantField: "email"},
		{name: "name taken", userName: "Ada", email: "other@x.com", wantField: "name"},
		{name: "both taken reports email", userName: "Ada", email: "ada@x.com", wantField: "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Register(context.Background(), tt.userName, tt.email, "Other2!")
			var dup *DuplicateCredentialError
			require.True(t, errors.As(err, &dup))
			assert.Equal(t, tt.wantField, dup.Field)
		})
	}
}

func TestRegisterStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.Err = userstest.ErrUnavailable

	_, err := f.service.Register(context.Background(), "Ada", "ada@x.com", "Secret1!")
	require.Error(t, err)
	assert.ErrorIs(t, err, userstest.ErrUnavailable)

	var dup *DuplicateCredentialError
	assert.False(t, errors.As(err, &dup))
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Ada", "ada@x.com", "Secret1!")
	ctx := context.Background()

	_, err := f.service.Login(ctx, "ada@x.com", "Wrong1!x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.service.Login(ctx, "nobody@x.com", "Secret1!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.service.Login(ctx, "ada@x.com", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshRotatesPair(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "Ada", "ada@x.com", "Secret1!")
	ctx := context.Background()

	pair, err := f.service.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.AccessToken, pair.AccessToken)
	assert.NotEqual(t, session.RefreshToken, pair.RefreshToken)

	claims, err := f.tokens.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.UserID)

	_, err = f.service.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, ErrTokenBlacklisted)

	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshConcurrentReplayHasOneWinner(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "Ada", "ada@x.com", "Secret1!")

	var wg sync.WaitGroup
	var wins atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.Refresh(context.Background(), session.RefreshToken); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestRefreshWithoutRotationRevocation(t *testing.T) {
	f := newFixture(t)
	f.service.WithSecurityConfig(bcrypt.MinCost, false)
	session := f.register(t, "Ada", "ada@x.com", "Secret1!")
	ctx := context.Background()

	_, err := f.service.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	_, err = f.service.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, "", session.RefreshToken))
	_, err = f.service.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenBlacklisted)
}

func TestRefreshRejects(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "Ada", "ada@x.com", "Secret1!")
	ctx := context.Background()

	_, err := f.service.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = f.service.Refresh(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, ErrTokenType)

	_, err = f.service.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshDeletedUser(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "Ada", "ada@x.com", "Secret1!")
	require.NoError(t, f.store.Delete(context.Background(), session.User.ID))

	_, err := f.service.Refresh(context.Background(), session.RefreshToken)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRefreshStoreFailureKeepsTokenUsable(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "Ada", "ada@x.com", "Secret1!")
	ctx := context.Background()

	f.store.Err = userstest.ErrUnavailable
	_, err := f.service.Refresh(ctx, session.RefreshToken)
	require.ErrorIs(t, err, userstest.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidToken)

	blacklisted, err := f.revocations.IsBlacklisted(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.False(t, blacklisted)

	f.store.Err = nil
	pair, err := f.service.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.RefreshToken)

	_, err = f.service.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenBlacklisted)
}

func TestRefreshRevocationUnavailable(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "Ada", "ada@x.com", "Secret1!")
	require.NoError(t, f.client.Close())

	_, err := f.service.Refresh(context.Background(), session.RefreshToken)
	assert.ErrorIs(t, err, ErrRevocationUnavailable)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "Ada", "ada@x.com", "Secret1!")
	ctx := context.Background()

	require.NoError(t, f.service.Logout(ctx, session.AccessToken, session.RefreshToken))
	require.NoError(t, f.service.Logout(ctx, session.AccessToken, session.RefreshToken))

	for _, token := range []string{session.AccessToken, session.RefreshToken} {
		blacklisted, err := f.revocations.IsBlacklisted(ctx, token)
		require.NoError(t, err)
		assert.True(t, blacklisted)
	}

	_, err := f.service.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenBlacklisted)

	assert.ErrorIs(t, f.service.Logout(ctx, "", " "), ErrNoCredentials)
}

func TestLogoutSingleToken(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "Ada", "ada@x.com", "Secret1!")
	ctx := context.Background()

	require.NoError(t, f.service.Logout(ctx, session.AccessToken, ""))

	blacklisted, err := f.revocations.IsBlacklisted(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.False(t, blacklisted)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "Ada", "ada@x.com", "Secret1!")
	ctx := context.Background()

	require.NoError(t, f.service.DeleteAccount(ctx, session.User.ID, session.AccessToken, session.RefreshToken))

	_, err := f.store.FindByID(ctx, session.User.ID)
	assert.ErrorIs(t, err, users.ErrNotFound)

	blacklisted, err := f.revocations.IsBlacklisted(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.True(t, blacklisted)

	err = f.service.DeleteAccount(ctx, session.User.ID, "", "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
