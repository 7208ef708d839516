package shared

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execRecorder struct {
	sql  string
	args []any
	err  error
}

func (e *execRecorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.sql, e.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), e.err
}

func (e *execRecorder) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not used")
}

func TestAuditRecordRequiresFields(t *testing.T) {
	l := NewAuditLogger(&execRecorder{})
	assert.Error(t, l.Record(context.Background(), AuditLog{Action: "rfp.create"}))

	var nilLogger *AuditLogger
	assert.Error(t, nilLogger.Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"}))
}

func TestAuditRecordNullsEmptyValues(t *testing.T) {
	db := &execRecorder{}
	l := NewAuditLogger(db)
	require.NoError(t, l.Record(context.Background(), AuditLog{Action: "rfp.create", Entity: "rfp", EntityID: "42"}))

	require.Len(t, db.args, 6)
	assert.Nil(t, db.args[0], "system actor")
	assert.Nil(t, db.args[4], "no meta")
	assert.Nil(t, db.args[5], "database clock")
}

func TestAuditRecordEncodesMeta(t *testing.T) {
	db := &execRecorder{}
	actor := uuid.New()
	l := NewAuditLogger(db)
	require.NoError(t, l.Record(context.Background(), AuditLog{
		ActorID: actor, Action: "rfp.status", Entity: "rfp", EntityID: "42",
		Meta: map[string]any{"to": "analyzing"},
	}))
	assert.Equal(t, actor, db.args[0])
	assert.JSONEq(t, `{"to":"analyzing"}`, string(db.args[4].([]byte)))
}

func TestAuditRecordWrapsDatabaseErrors(t *testing.T) {
	l := NewAuditLogger(&execRecorder{err: errors.New("conn reset")})
	err := l.Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"})
	assert.ErrorContains(t, err, "conn reset")
}
