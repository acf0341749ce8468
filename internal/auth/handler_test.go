package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alertas/alertas-admin/internal/apiclient"
	"github.com/alertas/alertas-admin/internal/auth"
	"github.com/alertas/alertas-admin/internal/shared"
	"github.com/alertas/alertas-admin/internal/view"
	_ "github.com/alertas/alertas-admin/testing"
)

type stubBackend struct {
	res       *apiclient.LoginResponse
	err       error
	loggedOut string
}

func (s *stubBackend) Login(ctx context.Context, email, password string) (*apiclient.LoginResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

func (s *stubBackend) Logout(ctx context.Context) error {
	_, s.loggedOut = apiclient.CredentialsFrom(ctx).Tokens()
	return nil
}

func newAuthHandler(t *testing.T, backend auth.Backend) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)
	return auth.NewHandler(nil, backend, templates, sessionManager, csrfManager), sessionManager
}

func withSession(t *testing.T, sm *shared.SessionManager, req *http.Request) (*http.Request, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func loginRequest(email, password string) *http.Request {
	form := url.Values{"email": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLoginPage(t *testing.T) {
	handler, sm := newAuthHandler(t, &stubBackend{})
	req, _ := withSession(t, sm, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	res := httptest.NewRecorder()
	handler.ShowLoginForTest(res, req)

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "<form")
}

func TestLoginInvalidCredentials(t *testing.T) {
	handler, sm := newAuthHandler(t, &stubBackend{err: &apiclient.APIError{Status: http.StatusUnauthorized}})
	req, sess := withSession(t, sm, loginRequest("ana@medios.test", "incorrecta"))

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Correo o contraseña incorrectos")
	assert.Empty(t, sess.User())
}

func TestLoginValidation(t *testing.T) {
	handler, sm := newAuthHandler(t, &stubBackend{})
	req, _ := withSession(t, sm, loginRequest("no-es-correo", "corta"))

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Correo no válido")
	assert.Contains(t, res.Body.String(), "Mínimo 8 caracteres")
}

func TestLoginStoresTokensAndRedirects(t *testing.T) {
	backend := &stubBackend{res: &apiclient.LoginResponse{
		AccessToken:  "acc",
		RefreshToken: "ref",
		User:         apiclient.User{ID: "u-1", Nombre: "Ana"},
	}}
	handler, sm := newAuthHandler(t, backend)
	req, sess := withSession(t, sm, loginRequest("ana@medios.test", "secreta123"))
	sess.Set("after_login", "/medios?tipo=web")

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/medios?tipo=web", res.Header().Get("Location"))
	assert.Equal(t, "u-1", sess.User())
	assert.Equal(t, "Ana", sess.UserName())
	access, refresh := sess.Tokens()
	assert.Equal(t, "acc", access)
	assert.Equal(t, "ref", refresh)
}

func TestLoginRejectsOffsiteRedirect(t *testing.T) {
	backend := &stubBackend{res: &apiclient.LoginResponse{AccessToken: "acc", User: apiclient.User{ID: "u-1"}}}
	handler, sm := newAuthHandler(t, backend)
	req, sess := withSession(t, sm, loginRequest("ana@medios.test", "secreta123"))
	sess.Set("after_login", "//evil.example")

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)
	assert.Equal(t, "/", res.Header().Get("Location"))
}

func TestLogoutRevokesAndDestroys(t *testing.T) {
	backend := &stubBackend{}
	handler, sm := newAuthHandler(t, backend)
	r := chiRouter(handler)

	req, sess := withSession(t, sm, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	sess.SignIn("u-1", "Ana", "acc", "ref")

	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	require.NoError(t, sm.Commit(req.Context(), res, req, sess))

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, auth.LoginPath, res.Header().Get("Location"))
	assert.Equal(t, "ref", backend.loggedOut)
}
