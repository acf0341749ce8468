package alerts

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alertas/alertas-admin/internal/apiclient"
	"github.com/alertas/alertas-admin/internal/platform/cache"
	"github.com/alertas/alertas-admin/internal/shared"
	"github.com/alertas/alertas-admin/jobs"
)

type fakeQueue struct {
	mu       sync.Mutex
	forwards []jobs.ForwardPayload
	ingests  []jobs.IngestPayload
	err      error
}

func (q *fakeQueue) EnqueueForward(_ context.Context, p jobs.ForwardPayload) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.forwards = append(q.forwards, p)
	return jobs.TaskID(jobs.TaskWhatsAppForward, p.Key), nil
}

func (q *fakeQueue) EnqueueIngest(_ context.Context, p jobs.IngestPayload) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.ingests = append(q.ingests, p)
	return "task", nil
}

type fakeAudit struct {
	logs []shared.AuditLog
}

func (a *fakeAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type fakeIdem struct {
	keys    map[string]bool
	deleted []string
}

func (f *fakeIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	if f.keys == nil {
		f.keys = map[string]bool{}
	}
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdem) Delete(_ context.Context, key string) error {
	delete(f.keys, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type backend struct {
	hits  atomic.Int32
	delay time.Duration
}

func (b *backend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/medios", func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		time.Sleep(b.delay)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"id":"m1","titulo":"Alerta `+r.URL.Query().Get("q")+`"}],"page":1,"per_page":20,"total":41,"total_pages":3}`)
	})
	mux.HandleFunc("/api/proyectos", func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"nombre":"Minería","descripcion":"","keywords":["cobre","litio"]}`, string(body))
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":"p9","nombre":"Minería"}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":[],"total":4}`)
	})
	mux.HandleFunc("/api/redes", func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[],"total":12}`)
	})
	return mux
}

func newTestService(t *testing.T, b *backend, deps ServiceDeps) *Service {
	t.Helper()
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)
	mr := miniredis.RunT(t)
	if deps.Cache == nil {
		deps.Cache = cache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	}
	return NewService(apiclient.New(apiclient.Config{BaseURL: srv.URL}), deps)
}

func userCtx(subject string) context.Context {
	return apiclient.WithCredentials(context.Background(), apiclient.NewCredentials(subject, "access", "refresh"))
}

func TestListCachesByEncodedFilters(t *testing.T) {
	b := &backend{}
	svc := newTestService(t, b, ServiceDeps{})
	ctx := userCtx("u-1")

	page, err := svc.ListMedios(ctx, "tipo=web&q=cobre", 2)
	require.NoError(t, err)
	assert.Equal(t, 41, page.Total)
	assert.Equal(t, "Alerta cobre", page.Data[0].Titulo)

	_, err = svc.ListMedios(ctx, "tipo=web&q=cobre", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, b.hits.Load(), "same filters must be served from cache")

	_, err = svc.ListMedios(ctx, "tipo=web&q=litio", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, b.hits.Load())

	_, err = svc.ListMedios(userCtx("u-2"), "tipo=web&q=cobre", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, b.hits.Load(), "cache entries are per user")
}

func TestConcurrentIdenticalListsCoalesce(t *testing.T) {
	b := &backend{delay: 50 * time.Millisecond}
	svc := newTestService(t, b, ServiceDeps{})
	ctx := userCtx("u-1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ListMedios(ctx, "proyecto=7", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, b.hits.Load())
}

func TestCountsFetchesConcurrently(t *testing.T) {
	svc := newTestService(t, &backend{}, ServiceDeps{})
	counts, err := svc.Counts(userCtx("u-1"))
	require.NoError(t, err)
	assert.Equal(t, Counts{Proyectos: 4, Medios: 41, Redes: 12}, counts)
}

func TestCreateProyectoBumpsCacheAndAudits(t *testing.T) {
	b := &backend{}
	audit := &fakeAudit{}
	svc := newTestService(t, b, ServiceDeps{Audit: audit})
	ctx := userCtx("u-1")

	_, err := svc.ListProyectos(ctx, "", 1)
	require.NoError(t, err)

	created, err := svc.CreateProyecto(ctx, ProyectoForm{Nombre: " Minería ", Keywords: "cobre, ,litio"})
	require.NoError(t, err)
	assert.Equal(t, "p9", created.ID)

	_, err = svc.ListProyectos(ctx, "", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, b.hits.Load(), "list after create must miss the cache")

	require.Len(t, audit.logs, 1)
	assert.Equal(t, "proyecto.create", audit.logs[0].Action)
	assert.Equal(t, "u-1", audit.logs[0].ActorID)
}

func TestCreateProyectoValidation(t *testing.T) {
	svc := newTestService(t, &backend{}, ServiceDeps{})
	_, err := svc.CreateProyecto(userCtx("u-1"), ProyectoForm{Nombre: "  "})
	fields, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "Campo obligatorio", fields["Nombre"])
}

func TestQueueForwardIsIdempotent(t *testing.T) {
	queue := &fakeQueue{}
	idem := &fakeIdem{}
	audit := &fakeAudit{}
	svc := newTestService(t, &backend{}, ServiceDeps{Queue: queue, Idempotency: idem, Audit: audit})
	ctx := userCtx("u-1")
	form := ForwardForm{Tipo: TipoMedios, AlertaIDs: []string{"b", "a", "a", ""}, PlantillaID: "pl1"}

	id, err := svc.QueueForward(ctx, form)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, queue.forwards, 1)
	assert.Equal(t, []string{"b", "a"}, queue.forwards[0].AlertaIDs)
	assert.Equal(t, "u-1", queue.forwards[0].Actor)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "whatsapp.forward", audit.logs[0].Action)

	form.AlertaIDs = []string{"a", "b"}
	_, err = svc.QueueForward(ctx, form)
	assert.ErrorIs(t, err, shared.ErrAlreadyForwarded)
	assert.Len(t, queue.forwards, 1)
}

func TestQueueForwardReleasesKeyOnEnqueueFailure(t *testing.T) {
	queue := &fakeQueue{err: errors.New("redis down")}
	idem := &fakeIdem{}
	svc := newTestService(t, &backend{}, ServiceDeps{Queue: queue, Idempotency: idem})

	_, err := svc.QueueForward(userCtx("u-1"), ForwardForm{Tipo: TipoRedes, AlertaIDs: []string{"r1"}, PlantillaID: "pl1"})
	require.Error(t, err)
	assert.Len(t, idem.deleted, 1)
	assert.Empty(t, idem.keys)
}

func TestQueueForwardValidation(t *testing.T) {
	svc := newTestService(t, &backend{}, ServiceDeps{Queue: &fakeQueue{}})
	_, err := svc.QueueForward(userCtx("u-1"), ForwardForm{Tipo: "email", AlertaIDs: []string{" "}})
	fields, ok := AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, fields, "Tipo")
	assert.Contains(t, fields, "AlertaIDs")
	assert.Contains(t, fields, "PlantillaID")
}

func TestQueueIngestDuplicate(t *testing.T) {
	queue := &fakeQueue{}
	svc := newTestService(t, &backend{}, ServiceDeps{Queue: queue})

	queued, err := svc.QueueIngest(userCtx("u-1"), IngestForm{ProyectoID: "p1", URL: " https://diario.example/nota "})
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Equal(t, "https://diario.example/nota", queue.ingests[0].URL)

	queue.err = jobs.ErrDuplicate
	queued, err = svc.QueueIngest(userCtx("u-1"), IngestForm{ProyectoID: "p1", URL: "https://diario.example/nota"})
	require.NoError(t, err)
	assert.False(t, queued)

	_, err = svc.QueueIngest(userCtx("u-1"), IngestForm{ProyectoID: "p1", URL: "no es url"})
	fields, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "URL no válida", fields["URL"])
}

func TestKeywordList(t *testing.T) {
	assert.Equal(t, []string{"a", "b c"}, ProyectoForm{Keywords: " a ,, b c ,"}.KeywordList())
	assert.Nil(t, ProyectoForm{}.KeywordList())
	assert.Equal(t, "", MediosSchema.Defaults().Encode())
}
