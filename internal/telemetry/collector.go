// Package telemetry receives page visibility beacons from the dashboard's browser script.
package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alertas/alertas-admin/internal/platform/httpx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultQueueSize = 256
	maxBeaconBytes   = 4 << 10
)

// Beacon is one event sent by telemetry.js.
type Beacon struct {
	Event string `json:"event" validate:"required,oneof=visible hidden ping"`
	Path  string `json:"path" validate:"required,startswith=/,max=512"`
	TS    int64  `json:"ts" validate:"gte=0"`
	User  string `json:"user,omitempty" validate:"-"`
}

// Config configures a Collector.
type Config struct {
	// ForwardURL receives accepted beacons; empty disables forwarding.
	ForwardURL string
	QueueSize  int
	Timeout    time.Duration
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// Collector validates and counts beacons and relays them to the external collector.
type Collector struct {
	logger    *slog.Logger
	validate  *validator.Validate
	rest      *resty.Client
	target    string
	queue     chan Beacon
	events    *prometheus.CounterVec
	dropped   prometheus.Counter
	forwarded *prometheus.CounterVec
	userOf    func(*http.Request) string

	once sync.Once
	done chan struct{}
}

// NewCollector registers metrics and prepares the forwarding queue. Call Run to drain it.
func NewCollector(cfg Config) *Collector {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alertas_telemetry_events_total",
		Help: "Accepted telemetry beacons by event.",
	}, []string{"event"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alertas_telemetry_dropped_total",
		Help: "Beacons dropped because the forwarding queue was full.",
	})
	forwarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alertas_telemetry_forwarded_total",
		Help: "Beacons relayed to the external collector by result.",
	}, []string{"result"})
	registerer.MustRegister(events, dropped, forwarded)

	return &Collector{
		logger:    logger.With(slog.String("component", "telemetry")),
		validate:  validator.New(),
		rest:      resty.New().SetTimeout(timeout).SetHeader("Content-Type", "application/json"),
		target:    strings.TrimSpace(cfg.ForwardURL),
		queue:     make(chan Beacon, size),
		events:    events,
		dropped:   dropped,
		forwarded: forwarded,
		done:      make(chan struct{}),
	}
}

// WithUser tags beacons with the signed-in user resolved from the request.
func (c *Collector) WithUser(fn func(*http.Request) string) *Collector {
	c.userOf = fn
	return c
}

// MountRoutes registers the beacon endpoint.
func (c *Collector) MountRoutes(r chi.Router) {
	r.Post("/telemetry", c.Receive)
}

// Receive handles POST /telemetry. sendBeacon posts text/plain, so the body is decoded
// as JSON whatever the content type says.
func (c *Collector) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBeaconBytes+1))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid beacon", err.Error())
		return
	}
	if len(body) > maxBeaconBytes {
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Invalid beacon", "beacon too large")
		return
	}
	var beacon Beacon
	if err := json.Unmarshal(body, &beacon); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid beacon", "malformed JSON")
		return
	}
	if err := c.validate.Struct(beacon); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[strings.ToLower(fe.Field())] = fe.Tag()
			}
			httpx.ValidationProblem(w, fields)
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Invalid beacon", err.Error())
		return
	}
	if beacon.TS == 0 {
		beacon.TS = time.Now().UnixMilli()
	}
	if c.userOf != nil {
		beacon.User = c.userOf(r)
	}
	c.Record(beacon)
	w.WriteHeader(http.StatusNoContent)
}

// Record counts an accepted beacon and queues it for forwarding. It never blocks: a full
// queue drops the beacon.
func (c *Collector) Record(b Beacon) {
	c.events.WithLabelValues(b.Event).Inc()
	if c.target == "" {
		return
	}
	select {
	case c.queue <- b:
	default:
		c.dropped.Inc()
	}
}

// Run drains the queue until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	defer c.once.Do(func() { close(c.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-c.queue:
			c.forward(ctx, b)
		}
	}
}

// Done is closed once Run returns.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

func (c *Collector) forward(ctx context.Context, b Beacon) {
	payload, err := json.Marshal(b)
	if err != nil {
		c.forwarded.WithLabelValues("error").Inc()
		return
	}
	resp, err := c.rest.R().SetContext(ctx).SetBody(payload).Post(c.target)
	if err != nil {
		c.forwarded.WithLabelValues("error").Inc()
		c.logger.Debug("forward beacon", slog.Any("error", err))
		return
	}
	if !resp.IsSuccess() {
		c.forwarded.WithLabelValues("rejected").Inc()
		c.logger.Debug("collector rejected beacon", slog.Int("status", resp.StatusCode()))
		return
	}
	c.forwarded.WithLabelValues("ok").Inc()
}
