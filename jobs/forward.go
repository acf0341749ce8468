package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/alertas/alertas-admin/internal/apiclient"
	jobmetrics "github.com/alertas/alertas-admin/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Backend is the part of the alerts API the worker drives.
type Backend interface {
	Forward(ctx context.Context, in apiclient.ForwardRequest) (apiclient.ForwardResponse, error)
	IngestURL(ctx context.Context, in apiclient.IngestRequest) (apiclient.Medio, error)
}

// Invalidator drops cached list pages once a job changed backend data.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Runner carries what the task handlers share.
type Runner struct {
	API          Backend
	Cache        Invalidator
	ServiceToken string
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) metrics() *jobmetrics.Metrics {
	if r.Metrics != nil {
		return r.Metrics
	}
	return defaultJobMetrics
}

// serviceContext authenticates worker calls with the service token on behalf of actor.
func (r *Runner) serviceContext(ctx context.Context, actor string) context.Context {
	return apiclient.WithCredentials(ctx, apiclient.NewCredentials(actor, r.ServiceToken, ""))
}

func (r *Runner) invalidate(ctx context.Context) {
	if r.Cache == nil {
		return
	}
	if err := r.Cache.Bump(ctx); err != nil {
		r.logger().Warn("bump list cache", slog.Any("error", err))
	}
}

// HandleForward processes TaskWhatsAppForward tasks.
func (r *Runner) HandleForward(ctx context.Context, t *asynq.Task) (err error) {
	if r == nil || r.API == nil {
		return errors.New("whatsapp forward: handler not configured")
	}
	var payload ForwardPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("whatsapp forward: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if len(payload.AlertaIDs) == 0 || payload.PlantillaID == "" {
		return fmt.Errorf("whatsapp forward: incomplete payload: %w", asynq.SkipRetry)
	}

	tracker := r.metrics().Track(TaskWhatsAppForward)
	defer func() { err = tracker.End(err) }()

	logger := r.logger().With(slog.String("tipo", payload.Tipo), slog.Int("alertas", len(payload.AlertaIDs)), slog.String("actor", payload.Actor))
	res, err := r.API.Forward(r.serviceContext(ctx, payload.Actor), apiclient.ForwardRequest{
		Tipo:        payload.Tipo,
		AlertaIDs:   payload.AlertaIDs,
		PlantillaID: payload.PlantillaID,
		Destino:     payload.Destino,
	})
	if err != nil {
		if apiclient.IsValidation(err) || apiclient.IsNotFound(err) {
			logger.Error("forward rejected", slog.Any("error", err))
			return fmt.Errorf("whatsapp forward: %v: %w", err, asynq.SkipRetry)
		}
		logger.Warn("forward failed", slog.Any("error", err))
		return err
	}
	logger.Info("forward sent", slog.String("envio_id", res.EnvioID), slog.String("estado", res.Estado))
	r.invalidate(ctx)
	return nil
}

// HandleIngest processes TaskMediosIngest tasks.
func (r *Runner) HandleIngest(ctx context.Context, t *asynq.Task) (err error) {
	if r == nil || r.API == nil {
		return errors.New("medios ingest: handler not configured")
	}
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("medios ingest: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.URL == "" || payload.ProyectoID == "" {
		return fmt.Errorf("medios ingest: incomplete payload: %w", asynq.SkipRetry)
	}

	tracker := r.metrics().Track(TaskMediosIngest)
	defer func() { err = tracker.End(err) }()

	logger := r.logger().With(slog.String("proyecto_id", payload.ProyectoID), slog.String("url", payload.URL))
	medio, err := r.API.IngestURL(r.serviceContext(ctx, payload.Actor), apiclient.IngestRequest{
		ProyectoID: payload.ProyectoID,
		URL:        payload.URL,
	})
	if err != nil {
		if apiclient.IsValidation(err) {
			logger.Error("ingest rejected", slog.Any("error", err))
			return fmt.Errorf("medios ingest: %v: %w", err, asynq.SkipRetry)
		}
		logger.Warn("ingest failed", slog.Any("error", err))
		return err
	}
	logger.Info("article ingested", slog.String("medio_id", medio.ID))
	r.invalidate(ctx)
	return nil
}
