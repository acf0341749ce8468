// Package auth signs reviewers in against the alerts backend and keeps their tokens in
// the session.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/alertas/alertas-admin/internal/apiclient"
	"github.com/alertas/alertas-admin/internal/shared"
	"github.com/alertas/alertas-admin/internal/view"
)

const (
	// LoginPath is where unauthenticated requests are sent.
	LoginPath = "/auth/login"

	afterLoginKey = "after_login"
)

// Backend is the part of the API client used for signing in and out.
type Backend interface {
	Login(ctx context.Context, email, password string) (*apiclient.LoginResponse, error)
	Logout(ctx context.Context) error
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	backend        Backend
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, backend Backend, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		backend:        backend,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess.User() != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, loginPageData{Errors: map[string]string{}})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				errs[fieldErr.Field()] = loginMessage(fieldErr.Tag())
			}
		}
	}

	if len(errs) == 0 {
		res, err := h.backend.Login(r.Context(), form.Email, form.Password)
		switch {
		case err == nil && sess != nil:
			name := res.User.Nombre
			if name == "" {
				name = res.User.Email
			}
			next := safeRedirect(sess.Get(afterLoginKey))
			sess.Delete(afterLoginKey)
			sess.SignIn(res.User.ID, name, res.AccessToken, res.RefreshToken)
			sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Bienvenido, " + name})
			h.logger.Info("user signed in", slog.String("user_id", res.User.ID))
			http.Redirect(w, r, next, http.StatusSeeOther)
			return
		case err == nil:
			h.logger.Error("session missing during login")
			errs["general"] = "No se pudo iniciar sesión"
		case apiclient.IsUnauthorized(err) || apiclient.IsValidation(err):
			errs["general"] = "Correo o contraseña incorrectos"
		default:
			h.logger.Error("login backend", slog.Any("error", err))
			errs["general"] = "El servicio no está disponible, inténtalo más tarde"
		}
	}

	form.Password = ""
	h.render(w, r, http.StatusBadRequest, loginPageData{Form: form, Errors: errs})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		access, refresh := sess.Tokens()
		if refresh != "" {
			ctx := apiclient.WithCredentials(r.Context(), apiclient.NewCredentials(sess.User(), access, refresh))
			if err := h.backend.Logout(ctx); err != nil {
				h.logger.Warn("backend logout", slog.Any("error", err))
			}
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data loginPageData) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(sess)
	viewData := view.TemplateData{
		Title:       "Iniciar sesión",
		CSRFToken:   csrfToken,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
	}
}

func loginMessage(tag string) string {
	switch tag {
	case "required":
		return "Campo obligatorio"
	case "email":
		return "Correo no válido"
	case "min":
		return "Mínimo 8 caracteres"
	default:
		return "Valor no válido"
	}
}

// safeRedirect keeps post-login redirects on this site.
func safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}
