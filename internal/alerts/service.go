package alerts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/alertas/alertas-admin/internal/apiclient"
	jobmetrics "github.com/alertas/alertas-admin/internal/jobs"
	"github.com/alertas/alertas-admin/internal/platform/cache"
	"github.com/alertas/alertas-admin/internal/shared"
	"github.com/alertas/alertas-admin/jobs"
)

const optionsPageSize = 100

// Enqueuer submits background work.
type Enqueuer interface {
	EnqueueForward(ctx context.Context, payload jobs.ForwardPayload) (string, error)
	EnqueueIngest(ctx context.Context, payload jobs.IngestPayload) (string, error)
}

// Auditor records reviewer actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Idempotency guards against repeated forwards of the same alerts.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Counts feeds the home page.
type Counts struct {
	Proyectos int
	Medios    int
	Redes     int
}

// Service fetches and mutates backend resources for the dashboard screens.
type Service struct {
	api      *apiclient.Client
	cache    *cache.Cache
	queue    Enqueuer
	audit    Auditor
	idem     Idempotency
	metrics  *jobmetrics.Metrics
	logger   *slog.Logger
	validate *validator.Validate
}

// ServiceDeps groups optional collaborators of the service.
type ServiceDeps struct {
	Cache       *cache.Cache
	Queue       Enqueuer
	Audit       Auditor
	Idempotency Idempotency
	Metrics     *jobmetrics.Metrics
	Logger      *slog.Logger
}

// NewService constructs the service.
func NewService(api *apiclient.Client, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:      api,
		cache:    deps.Cache,
		queue:    deps.Queue,
		audit:    deps.Audit,
		idem:     deps.Idempotency,
		metrics:  deps.Metrics,
		logger:   logger,
		validate: validator.New(),
	}
}

// listCached fetches one page of path filtered by query. The cache key holds the user,
// the path, the encoded filters and the page, so identical filters share one fetch.
func listCached[T any](ctx context.Context, s *Service, path, query string, page int) (apiclient.Page[T], error) {
	var out apiclient.Page[T]
	key, err := s.cache.Key(ctx, apiclient.CredentialsFrom(ctx).Subject(), path, query, strconv.Itoa(page))
	if err != nil {
		s.logger.Warn("cache key", slog.Any("error", err))
		return apiclient.List[T](ctx, s.api, path, query, page)
	}
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return apiclient.List[T](ctx, s.api, path, query, page)
	})
	return out, err
}

// ListProyectos returns one page of proyectos.
func (s *Service) ListProyectos(ctx context.Context, query string, page int) (apiclient.Page[apiclient.Proyecto], error) {
	return listCached[apiclient.Proyecto](ctx, s, apiclient.PathProyectos, query, page)
}

// ListMedios returns one page of media alerts.
func (s *Service) ListMedios(ctx context.Context, query string, page int) (apiclient.Page[apiclient.Medio], error) {
	return listCached[apiclient.Medio](ctx, s, apiclient.PathMedios, query, page)
}

// ListRedes returns one page of social network alerts.
func (s *Service) ListRedes(ctx context.Context, query string, page int) (apiclient.Page[apiclient.Red], error) {
	return listCached[apiclient.Red](ctx, s, apiclient.PathRedes, query, page)
}

// ListHistorial returns one page of the WhatsApp delivery history.
func (s *Service) ListHistorial(ctx context.Context, query string, page int) (apiclient.Page[apiclient.Envio], error) {
	return listCached[apiclient.Envio](ctx, s, apiclient.PathHistorial, query, page)
}

// ProyectoOptions lists proyectos for filter and form selects.
func (s *Service) ProyectoOptions(ctx context.Context) ([]apiclient.Proyecto, error) {
	page, err := listCached[apiclient.Proyecto](ctx, s, apiclient.PathProyectos, "per_page="+strconv.Itoa(optionsPageSize), 1)
	if err != nil {
		return nil, err
	}
	return page.Data, nil
}

// Counts fetches the totals of the three collections concurrently.
func (s *Service) Counts(ctx context.Context) (Counts, error) {
	var out Counts
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := listCached[apiclient.Proyecto](ctx, s, apiclient.PathProyectos, "per_page=1", 1)
		out.Proyectos = p.Total
		return err
	})
	g.Go(func() error {
		p, err := listCached[apiclient.Medio](ctx, s, apiclient.PathMedios, "per_page=1", 1)
		out.Medios = p.Total
		return err
	})
	g.Go(func() error {
		p, err := listCached[apiclient.Red](ctx, s, apiclient.PathRedes, "per_page=1", 1)
		out.Redes = p.Total
		return err
	})
	if err := g.Wait(); err != nil {
		return Counts{}, err
	}
	return out, nil
}

// CreateProyecto validates and creates a proyecto.
func (s *Service) CreateProyecto(ctx context.Context, form ProyectoForm) (apiclient.Proyecto, error) {
	form.Nombre = strings.TrimSpace(form.Nombre)
	if err := s.validate.Struct(form); err != nil {
		return apiclient.Proyecto{}, validationError(err)
	}
	created, err := s.api.CreateProyecto(ctx, apiclient.ProyectoInput{
		Nombre:      form.Nombre,
		Descripcion: strings.TrimSpace(form.Descripcion),
		Keywords:    form.KeywordList(),
	})
	if err != nil {
		return apiclient.Proyecto{}, err
	}
	s.invalidate(ctx)
	s.record(ctx, "proyecto.create", "proyecto", created.ID, map[string]any{"nombre": created.Nombre})
	return created, nil
}

// DeleteProyecto removes a proyecto.
func (s *Service) DeleteProyecto(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Fields: map[string]string{"ID": "Campo obligatorio"}}
	}
	if err := s.api.DeleteProyecto(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, "proyecto.delete", "proyecto", id, nil)
	return nil
}

// QueueIngest schedules the backend ingestion of an article URL. queued is false when
// the same URL is already waiting in the queue.
func (s *Service) QueueIngest(ctx context.Context, form IngestForm) (queued bool, err error) {
	form.URL = strings.TrimSpace(form.URL)
	if err := s.validate.Struct(form); err != nil {
		return false, validationError(err)
	}
	if s.queue == nil {
		return false, errors.New("alerts: job queue not configured")
	}
	_, err = s.queue.EnqueueIngest(ctx, jobs.IngestPayload{
		ProyectoID: form.ProyectoID,
		URL:        form.URL,
		Actor:      apiclient.CredentialsFrom(ctx).Subject(),
	})
	switch {
	case errors.Is(err, jobs.ErrDuplicate):
		s.metrics.Enqueued(jobs.TaskMediosIngest, "duplicate")
		return false, nil
	case err != nil:
		s.metrics.Enqueued(jobs.TaskMediosIngest, "error")
		return false, fmt.Errorf("alerts: enqueue ingest: %w", err)
	}
	s.metrics.Enqueued(jobs.TaskMediosIngest, "queued")
	s.record(ctx, "medios.ingest", "proyecto", form.ProyectoID, map[string]any{"url": form.URL})
	return true, nil
}

// UploadMedios streams a file of alerts to the backend for parsing.
func (s *Service) UploadMedios(ctx context.Context, proyectoID, filename string, file io.Reader) error {
	if strings.TrimSpace(proyectoID) == "" {
		return &ValidationError{Fields: map[string]string{"ProyectoID": "Campo obligatorio"}}
	}
	if err := s.api.UploadMedios(ctx, proyectoID, filename, file); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, "medios.upload", "proyecto", proyectoID, map[string]any{"archivo": filename})
	return nil
}

// Plantillas lists WhatsApp templates.
func (s *Service) Plantillas(ctx context.Context) ([]apiclient.Plantilla, error) {
	return s.api.ListPlantillas(ctx)
}

// CreatePlantilla validates and creates a template.
func (s *Service) CreatePlantilla(ctx context.Context, form PlantillaForm) (apiclient.Plantilla, error) {
	form.Nombre = strings.TrimSpace(form.Nombre)
	if err := s.validate.Struct(form); err != nil {
		return apiclient.Plantilla{}, validationError(err)
	}
	created, err := s.api.CreatePlantilla(ctx, apiclient.PlantillaInput{Nombre: form.Nombre, Cuerpo: form.Cuerpo})
	if err != nil {
		return apiclient.Plantilla{}, err
	}
	s.record(ctx, "plantilla.create", "plantilla", created.ID, map[string]any{"nombre": created.Nombre})
	return created, nil
}

// DeletePlantilla removes a template.
func (s *Service) DeletePlantilla(ctx context.Context, id string) error {
	if err := s.api.DeletePlantilla(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "plantilla.delete", "plantilla", id, nil)
	return nil
}

// QueueForward schedules a WhatsApp forward. A forward of the same alerts with the same
// template and destination is accepted once; repeats fail with shared.ErrAlreadyForwarded.
func (s *Service) QueueForward(ctx context.Context, form ForwardForm) (string, error) {
	form.AlertaIDs = compactIDs(form.AlertaIDs)
	if err := s.validate.Struct(form); err != nil {
		return "", validationError(err)
	}
	if s.queue == nil {
		return "", errors.New("alerts: job queue not configured")
	}
	key := shared.ForwardKey(form.Tipo, form.AlertaIDs, form.PlantillaID, form.Destino)
	if s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, key, "whatsapp"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return "", shared.ErrAlreadyForwarded
			}
			return "", fmt.Errorf("alerts: forward guard: %w", err)
		}
	}
	actor := apiclient.CredentialsFrom(ctx).Subject()
	taskID, err := s.queue.EnqueueForward(ctx, jobs.ForwardPayload{
		Key:         key,
		Tipo:        form.Tipo,
		AlertaIDs:   form.AlertaIDs,
		PlantillaID: form.PlantillaID,
		Destino:     form.Destino,
		Actor:       actor,
	})
	if err != nil {
		if errors.Is(err, jobs.ErrDuplicate) {
			s.metrics.Enqueued(jobs.TaskWhatsAppForward, "duplicate")
			return "", shared.ErrAlreadyForwarded
		}
		s.metrics.Enqueued(jobs.TaskWhatsAppForward, "error")
		if s.idem != nil {
			if derr := s.idem.Delete(ctx, key); derr != nil {
				s.logger.Warn("release forward key", slog.Any("error", derr))
			}
		}
		return "", fmt.Errorf("alerts: enqueue forward: %w", err)
	}
	s.metrics.Enqueued(jobs.TaskWhatsAppForward, "queued")
	s.record(ctx, "whatsapp.forward", form.Tipo, taskID, map[string]any{
		"alertas":      form.AlertaIDs,
		"plantilla_id": form.PlantillaID,
		"destino":      form.Destino,
	})
	return taskID, nil
}

func compactIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump list cache", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action, entity, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  apiclient.CredentialsFrom(ctx).Subject(),
		Action:   action,
		Entity:   entity,
		EntityID: id,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
