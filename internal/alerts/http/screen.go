package alertshttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alertas/alertas-admin/internal/apiclient"
	"github.com/alertas/alertas-admin/internal/auth"
	"github.com/alertas/alertas-admin/internal/filters"
	"github.com/alertas/alertas-admin/internal/platform/httpx"
	"github.com/alertas/alertas-admin/internal/shared"
)

// screen describes one filterable list.
type screen[K ~string, T any] struct {
	name           string
	title          string
	path           string
	template       string
	schema         filters.Schema[K]
	fetch          func(ctx context.Context, query string, page int) (apiclient.Page[T], error)
	withOptions    bool
	withPlantillas bool
}

// listPage is the view model shared by every list screen.
type listPage[T any] struct {
	Screen      string
	Path        string
	Filters     map[string]string
	Query       string
	ActiveCount int
	HasActive   bool
	Items       []T
	Pagination  shared.Pagination
	Proyectos   []apiclient.Proyecto
	Plantillas  []apiclient.Plantilla
	Error       string
}

func mountScreen[K ~string, T any](r chi.Router, h *Handler, sc screen[K, T]) {
	r.Get("/", listHandler(h, sc))
	r.Post("/filters", updateFiltersHandler(h, sc))
	r.Post("/filters/clear", clearFiltersHandler(h, sc))
}

// listHandler mounts the screen's store from the request URL and fetches the page the
// encoded filters describe.
func listHandler[K ~string, T any](h *Handler, sc screen[K, T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		store := filters.New(filters.NewRequestLocation(r, sc.path), sc.schema, h.storeOptions()...)
		query := store.Query()
		page := pageParam(r)

		data := listPage[T]{
			Screen:      sc.name,
			Path:        sc.path,
			Filters:     store.Filters().Strings(),
			Query:       query,
			ActiveCount: store.ActiveCount(),
			HasActive:   store.HasActive(),
		}
		status := http.StatusOK

		result, err := sc.fetch(ctx, query, page)
		if err != nil {
			if apiclient.IsUnauthorized(err) {
				auth.Expire(w, r)
				return
			}
			status = httpx.StatusFor(err)
			h.metrics.APIError(sc.name, status)
			h.logger.Error("list screen", slog.String("screen", sc.name), slog.String("query", query), slog.Any("error", err))
			data.Error = "No se pudo cargar el listado"
			data.Pagination = shared.NewPagination(page, 0, 0).WithBase(sc.path, query)
		} else {
			data.Items = result.Data
			data.Pagination = shared.NewPagination(result.Page, result.PerPage, result.Total).WithBase(sc.path, query)
			if result.TotalPages > 0 {
				data.Pagination.TotalPages = result.TotalPages
			}
		}

		if sc.withOptions {
			opts, err := h.service.ProyectoOptions(ctx)
			if err != nil {
				h.logger.Warn("load proyecto options", slog.Any("error", err))
			}
			data.Proyectos = opts
		}
		if sc.withPlantillas {
			plantillas, err := h.service.Plantillas(ctx)
			if err != nil {
				h.logger.Warn("load plantillas", slog.Any("error", err))
			}
			data.Plantillas = plantillas
		}

		h.render(w, r, sc.template, sc.title, data, status)
	}
}

// updateFiltersHandler applies the submitted filter keys and sends the replaced location
// back. Keys the form did not submit keep their value.
func updateFiltersHandler[K ~string, T any](h *Handler, sc screen[K, T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid form", err.Error())
			return
		}
		loc := filters.NewRequestLocation(r, sc.path)
		store := filters.Mount(loc, sc.schema, h.storeOptions()...)
		store.Update(filters.PatchFromForm(sc.schema, r.PostForm))
		loc.Commit(w, r)
	}
}

// clearFiltersHandler restores the screen's defaults and empties the query string.
func clearFiltersHandler[K ~string, T any](h *Handler, sc screen[K, T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc := filters.NewRequestLocation(r, sc.path)
		filters.Mount(loc, sc.schema, h.storeOptions()...).Clear()
		loc.Commit(w, r)
	}
}
