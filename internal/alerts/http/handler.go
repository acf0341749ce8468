package alertshttp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alertas/alertas-admin/internal/alerts"
	"github.com/alertas/alertas-admin/internal/apiclient"
	"github.com/alertas/alertas-admin/internal/auth"
	"github.com/alertas/alertas-admin/internal/filters"
	"github.com/alertas/alertas-admin/internal/observability"
	"github.com/alertas/alertas-admin/internal/platform/httpx"
	"github.com/alertas/alertas-admin/internal/shared"
	"github.com/alertas/alertas-admin/internal/view"
)

// Service is what the screens need from alerts.Service.
type Service interface {
	ListProyectos(ctx context.Context, query string, page int) (apiclient.Page[apiclient.Proyecto], error)
	ListMedios(ctx context.Context, query string, page int) (apiclient.Page[apiclient.Medio], error)
	ListRedes(ctx context.Context, query string, page int) (apiclient.Page[apiclient.Red], error)
	ListHistorial(ctx context.Context, query string, page int) (apiclient.Page[apiclient.Envio], error)
	ProyectoOptions(ctx context.Context) ([]apiclient.Proyecto, error)
	Counts(ctx context.Context) (alerts.Counts, error)
	CreateProyecto(ctx context.Context, form alerts.ProyectoForm) (apiclient.Proyecto, error)
	DeleteProyecto(ctx context.Context, id string) error
	QueueIngest(ctx context.Context, form alerts.IngestForm) (bool, error)
	UploadMedios(ctx context.Context, proyectoID, filename string, file io.Reader) error
	Plantillas(ctx context.Context) ([]apiclient.Plantilla, error)
	CreatePlantilla(ctx context.Context, form alerts.PlantillaForm) (apiclient.Plantilla, error)
	DeletePlantilla(ctx context.Context, id string) error
	QueueForward(ctx context.Context, form alerts.ForwardForm) (string, error)
}

// Config tunes the screens.
type Config struct {
	// ExternalSync makes filter posts follow the live address bar.
	ExternalSync bool
	// MaxUploadBytes bounds multipart ingest bodies.
	MaxUploadBytes int64
}

// Handler serves the dashboard screens.
type Handler struct {
	logger    *slog.Logger
	service   Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	metrics   *observability.Metrics
	cfg       Config

	proyectos screen[alerts.ProyectoKey, apiclient.Proyecto]
	medios    screen[alerts.MedioKey, apiclient.Medio]
	redes     screen[alerts.RedKey, apiclient.Red]
	historial screen[alerts.EnvioKey, apiclient.Envio]
}

// NewHandler constructs the screens handler.
func NewHandler(logger *slog.Logger, service Service, templates *view.Engine, csrf *shared.CSRFManager, metrics *observability.Metrics, cfg Config) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	h := &Handler{logger: logger, service: service, templates: templates, csrf: csrf, metrics: metrics, cfg: cfg}
	h.proyectos = screen[alerts.ProyectoKey, apiclient.Proyecto]{
		name: "proyectos", title: "Proyectos", path: "/proyectos", template: "pages/proyectos.html",
		schema: alerts.ProyectosSchema, fetch: service.ListProyectos,
	}
	h.medios = screen[alerts.MedioKey, apiclient.Medio]{
		name: "medios", title: "Medios", path: "/medios", template: "pages/medios.html",
		schema: alerts.MediosSchema, fetch: service.ListMedios, withOptions: true, withPlantillas: true,
	}
	h.redes = screen[alerts.RedKey, apiclient.Red]{
		name: "redes", title: "Redes sociales", path: "/redes", template: "pages/redes.html",
		schema: alerts.RedesSchema, fetch: service.ListRedes, withOptions: true, withPlantillas: true,
	}
	h.historial = screen[alerts.EnvioKey, apiclient.Envio]{
		name: "historial", title: "Historial de envíos", path: "/historial", template: "pages/historial.html",
		schema: alerts.HistorialSchema, fetch: service.ListHistorial, withOptions: true,
	}
	return h
}

// MountRoutes registers every screen. The caller wraps r with auth.RequireLogin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.home)

	r.Route("/proyectos", func(r chi.Router) {
		mountScreen(r, h, h.proyectos)
		r.Get("/new", h.proyectoForm)
		r.Post("/", h.createProyecto)
		r.Post("/{id}/delete", h.deleteProyecto)
	})
	r.Route("/medios", func(r chi.Router) {
		mountScreen(r, h, h.medios)
		r.Post("/ingest", h.ingest)
	})
	r.Route("/redes", func(r chi.Router) {
		mountScreen(r, h, h.redes)
	})
	r.Route("/historial", func(r chi.Router) {
		mountScreen(r, h, h.historial)
	})
	r.Route("/plantillas", func(r chi.Router) {
		r.Get("/", h.plantillas)
		r.Post("/", h.createPlantilla)
		r.Post("/{id}/delete", h.deletePlantilla)
	})
	r.Post("/whatsapp/forward", h.forward)
}

func (h *Handler) storeOptions() []filters.Option {
	return []filters.Option{filters.WithExternalSync(h.cfg.ExternalSync)}
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.Counts(r.Context())
	data := map[string]any{"Counts": counts}
	if err != nil {
		if apiclient.IsUnauthorized(err) {
			auth.Expire(w, r)
			return
		}
		h.logger.Error("load home counts", slog.Any("error", err))
		h.metrics.APIError("home", httpx.StatusFor(err))
		data["Error"] = "No se pudieron cargar los totales"
	}
	h.render(w, r, "pages/home.html", "Inicio", data, http.StatusOK)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(sess)
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		User:        sess.UserName(),
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err), slog.String("template", template))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// apiFailure answers a failed backend call made from a form post.
func (h *Handler) apiFailure(w http.ResponseWriter, r *http.Request, screen, back string, err error) {
	if apiclient.IsUnauthorized(err) {
		auth.Expire(w, r)
		return
	}
	status := httpx.StatusFor(err)
	h.metrics.APIError(screen, status)
	h.logger.Error("backend call failed", slog.String("screen", screen), slog.Int("status", status), slog.Any("error", err))
	message := "El servicio de alertas no respondió, inténtalo de nuevo"
	if status < http.StatusInternalServerError && status != http.StatusBadGateway {
		message = "La operación fue rechazada: " + err.Error()
	}
	h.redirectWithFlash(w, r, back, "error", message)
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// backTarget returns the local URL a form asked to return to, or fallback.
func backTarget(r *http.Request, fallback string) string {
	target := strings.TrimSpace(r.PostFormValue("_back"))
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	return target
}
