package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alertas/alertas-admin/internal/apiclient"
	"github.com/alertas/alertas-admin/internal/platform/httpx"
	"github.com/alertas/alertas-admin/internal/shared"
)

// RequireLogin rejects anonymous requests and puts the session's tokens on the context
// for the API client. Tokens refreshed during the request are written back to the
// session before the response header goes out.
func RequireLogin(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			access, refresh := sess.Tokens()
			if sess.User() == "" || access == "" {
				if sess != nil && r.Method == http.MethodGet {
					sess.Set(afterLoginKey, r.URL.RequestURI())
				}
				deny(w, r)
				return
			}
			creds := apiclient.NewCredentials(sess.User(), access, refresh)
			ctx := apiclient.WithCredentials(r.Context(), creds)
			tw := &tokenWriter{ResponseWriter: w, sess: sess, creds: creds, logger: logger}
			next.ServeHTTP(tw, r.WithContext(ctx))
			tw.persist()
		})
	}
}

// Expire ends a session whose tokens the backend no longer accepts.
func Expire(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.SignOut()
		sess.AddFlash(shared.FlashMessage{Kind: "warning", Message: "Tu sesión expiró, vuelve a iniciar sesión"})
	}
	deny(w, r)
}

func deny(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

type tokenWriter struct {
	http.ResponseWriter
	sess      *shared.Session
	creds     *apiclient.Credentials
	logger    *slog.Logger
	persisted bool
}

func (w *tokenWriter) persist() {
	if w.persisted {
		return
	}
	w.persisted = true
	if !w.creds.Changed() {
		return
	}
	access, refresh := w.creds.Tokens()
	if w.sess.User() == "" {
		// Signed out during the request.
		return
	}
	w.sess.SetTokens(access, refresh)
	w.logger.Debug("session tokens refreshed", slog.String("user_id", w.sess.User()))
}

func (w *tokenWriter) WriteHeader(status int) {
	w.persist()
	w.ResponseWriter.WriteHeader(status)
}

func (w *tokenWriter) Write(data []byte) (int, error) {
	w.persist()
	return w.ResponseWriter.Write(data)
}

func (w *tokenWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
