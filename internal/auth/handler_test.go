package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/users"
)

func newTestMux(f *fixture) http.Handler {
	handler := NewHandler(f.service, f.logger, true)
	guard := NewGuard(f.tokens, f.revocations, f.store, f.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", handler.Register)
	mux.HandleFunc("POST /auth/login", handler.Login)
	mux.HandleFunc("POST /auth/refresh", handler.Refresh)
	mux.HandleFunc("POST /auth/logout", handler.Logout)
	mux.Handle("DELETE /user", guard.Middleware(http.HandlerFunc(handler.DeleteAccount)))
	return mux
}

func send(handler http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func responseCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

const adaRegistration = `{"name":"Ada","email":"ADA@x.com","password":"Secret1!"}`

func TestRegisterHandlerSetsCookies(t *testing.T) {
	f := newFixture(t)
	mux := newTestMux(f)

	rec := send(mux, http.MethodPost, "/auth/register", adaRegistration)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		User map[string]any `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Ada", body.User["name"])
	assert.Equal(t, "ada@x.com", body.User["email"])
	assert.NotEmpty(t, body.User["id"])
	assert.NotContains(t, body.User, "password")
	assert.NotContains(t, rec.Body.String(), "Secret1!")

	cookies := responseCookies(rec)
	access, refresh := cookies[AccessCookieName], cookies[RefreshCookieName]
	require.NotNil(t, access)
	require.NotNil(t, refresh)

	for _, c := range []*http.Cookie{access, refresh} {
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		assert.Equal(t, "/", c.Path)
	}
	assert.Equal(t, 3600, access.MaxAge)
	assert.Equal(t, 7*24*3600, refresh.MaxAge)
}

func TestRegisterHandlerRejects(t *testing.T) {
	f := newFixture(t)
	mux := newTestMux(f)
	require.Equal(t, http.StatusOK, send(mux, http.MethodPost, "/auth/register", adaRegistration).Code)

	rec := send(mux, http.MethodPost, "/auth/register", `{"name":"Bob","email":"ada@x.com","password":"Other2!x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"email already registered"}`, rec.Body.String())
	assert.Empty(t, rec.Result().Cookies())

	rec = send(mux, http.MethodPost, "/auth/register", `{"name":"A","email":"nope","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var invalid struct {
		Error  string             `json:"error"`
		Fields []users.FieldError `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &invalid))
	assert.Len(t, invalid.Fields, 3)

	rec = send(mux, http.MethodPost, "/auth/register", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginHandler(t *testing.T) {
	f := newFixture(t)
	mux := newTestMux(f)
	require.Equal(t, http.StatusOK, send(mux, http.MethodPost, "/auth/register", adaRegistration).Code)

	rec := send(mux, http.MethodPost, "/auth/login", `{"email":"ada@x.com","password":"Wrong1!x"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, rec.Body.String())
	assert.Empty(t, rec.Result().Cookies())

	rec = send(mux, http.MethodPost, "/auth/login", `{"email":"ada@x.com","password":"Secret1!"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, responseCookies(rec), 2)
}

func TestRefreshHandler(t *testing.T) {
	f := newFixture(t)
	mux := newTestMux(f)
	registered := responseCookies(send(mux, http.MethodPost, "/auth/register", adaRegistration))

	rec := send(mux, http.MethodPost, "/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"refresh token not found"}`, rec.Body.String())

	rec = send(mux, http.MethodPost, "/auth/refresh", "", registered[RefreshCookieName])
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"token refreshed successfully"}`, rec.Body.String())
	rotated := responseCookies(rec)
	assert.NotEqual(t, registered[RefreshCookieName].Value, rotated[RefreshCookieName].Value)

	rec = send(mux, http.MethodPost, "/auth/refresh", "", registered[RefreshCookieName])
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid refresh token"}`, rec.Body.String())

	require.NoError(t, f.client.Close())
	rec = send(mux, http.MethodPost, "/auth/refresh", "", rotated[RefreshCookieName])
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLogoutHandler(t *testing.T) {
	f := newFixture(t)
	mux := newTestMux(f)
	registered := responseCookies(send(mux, http.MethodPost, "/auth/register", adaRegistration))

	rec := send(mux, http.MethodPost, "/auth/logout", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"no authentication tokens found"}`, rec.Body.String())

	rec = send(mux, http.MethodPost, "/auth/logout", "", registered[AccessCookieName], registered[RefreshCookieName])
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"logged out successfully"}`, rec.Body.String())
	for _, c := range responseCookies(rec) {
		assert.Empty(t, c.Value)
		assert.Equal(t, -1, c.MaxAge)
	}

	blacklisted, err := f.revocations.IsBlacklisted(context.Background(), registered[AccessCookieName].Value)
	require.NoError(t, err)
	assert.True(t, blacklisted)

	rec = send(mux, http.MethodPost, "/auth/logout", "", registered[AccessCookieName], registered[RefreshCookieName])
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteAccountHandler(t *testing.T) {
	f := newFixture(t)
	mux := newTestMux(f)
	registered := responseCookies(send(mux, http.MethodPost, "/auth/register", adaRegistration))

	rec := send(mux, http.MethodDelete, "/user", "", registered[AccessCookieName], registered[RefreshCookieName])
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"user deleted successfully"}`, rec.Body.String())

	_, err := f.store.FindByEmail(context.Background(), "ada@x.com")
	assert.ErrorIs(t, err, users.ErrNotFound)

	rec = send(mux, http.MethodDelete, "/user", "", registered[AccessCookieName])
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = send(mux, http.MethodPost, "/auth/login", `{"email":"ada@x.com","password":"Secret1!"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteAccountHandlerRevokesBearerToken(t *testing.T) {
	f := newFixture(t)
	mux := newTestMux(f)
	session := f.register(t, "Ada", "ada@x.com", "Secret1!")

	req := httptest.NewRequest(http.MethodDelete, "/user", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	blacklisted, err := f.revocations.IsBlacklisted(context.Background(), session.AccessToken)
	require.NoError(t, err)
	assert.True(t, blacklisted)
}
