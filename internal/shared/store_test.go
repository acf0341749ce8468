package shared_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alertas/alertas-admin/internal/shared"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &fakeExecer{}
	logger := shared.NewAuditLogger(db)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	err := logger.Record(context.Background(), shared.AuditLog{
		ActorID: "u-1", Action: "whatsapp.forward", Entity: "envio", EntityID: "e-9",
		Meta: map[string]any{"alertas": 3}, At: at,
	})
	require.NoError(t, err)
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "INSERT INTO audit_logs")
	assert.Equal(t, "u-1", db.calls[0].args[0])
	assert.JSONEq(t, `{"alertas":3}`, string(db.calls[0].args[4].([]byte)))
	assert.Equal(t, at, db.calls[0].args[5])
}

func TestAuditLoggerRequiresIdentity(t *testing.T) {
	logger := shared.NewAuditLogger(&fakeExecer{})
	err := logger.Record(context.Background(), shared.AuditLog{Action: "x"})
	assert.Error(t, err)

	var nilLogger *shared.AuditLogger
	assert.Error(t, nilLogger.Record(context.Background(), shared.AuditLog{}))
}

func TestIdempotencyConflict(t *testing.T) {
	db := &fakeExecer{err: &pgconn.PgError{Code: "23505"}}
	store := shared.NewIdempotencyStore(db)
	err := store.CheckAndInsert(context.Background(), "k", "whatsapp")
	assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	db.err = errors.New("boom")
	err = store.CheckAndInsert(context.Background(), "k", "whatsapp")
	assert.EqualError(t, err, "boom")
}

func TestForwardKeyIgnoresSelectionOrder(t *testing.T) {
	a := shared.ForwardKey("medios", []string{"3", "1", "2"}, "p1", "grupo")
	b := shared.ForwardKey("medios", []string{"1", "2", "3"}, "p1", "grupo")
	c := shared.ForwardKey("redes", []string{"1", "2", "3"}, "p1", "grupo")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
