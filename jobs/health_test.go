package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubInspector struct {
	queues map[string]*asynq.QueueInfo
	err    error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.queues[queue]
	if !ok {
		return nil, fmt.Errorf("asynq: %w", asynq.ErrQueueNotFound)
	}
	return info, nil
}

func serveHealth(t *testing.T, h *Handler) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	h.MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	return rec
}

func TestHealthReportsEveryQueue(t *testing.T) {
	h := NewHandler(stubInspector{queues: map[string]*asynq.QueueInfo{
		QueueMail: {Queue: QueueMail, Pending: 3, Retry: 1, Latency: 1500 * time.Millisecond},
	}}, slog.Default())

	rec := serveHealth(t, h)
	require.Equal(t, http.StatusOK, rec.Code)

	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "ok", report.Status)
	require.Len(t, report.Queues, 2)
	assert.Equal(t, QueueHealth{Queue: QueueMail, Pending: 3, Retry: 1, LatencyMS: 1500}, report.Queues[0])
	assert.Equal(t, QueueHealth{Queue: QueueMaintenance}, report.Queues[1])
}

func TestHealthDegradedWhenPaused(t *testing.T) {
	h := NewHandler(stubInspector{queues: map[string]*asynq.QueueInfo{
		QueueMaintenance: {Queue: QueueMaintenance, Paused: true},
	}}, nil)
	report, err := h.Report()
	require.NoError(t, err)
	assert.Equal(t, "degraded", report.Status)
}

func TestHealthUnavailableOnRedisError(t *testing.T) {
	h := NewHandler(stubInspector{err: errors.New("dial tcp: refused")}, slog.Default())
	rec := serveHealth(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Queue unavailable")
}

func TestRedisOptAcceptsURLs(t *testing.T) {
	opt, err := RedisOpt("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 2, opt.DB)

	opt, err = RedisOpt("127.0.0.1:6379")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", opt.Addr)

	_, err = RedisOpt("")
	assert.Error(t, err)
}

func TestNewWorkerRejectsCronWithoutHandler(t *testing.T) {
	_, err := NewWorker(WorkerConfig{
		Redis: asynq.RedisClientOpt{Addr: "127.0.0.1:6379"},
		Cron:  []CronRegistration{SessionsCleanupCron()},
	})
	assert.ErrorContains(t, err, "no handler")

	_, err = NewWorker(WorkerConfig{Redis: asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}, Handlers: []TaskHandler{
		{Type: TaskTypeSendEmail, Handler: (&MailJob{}).Handle},
		{Type: TaskTypeSendEmail, Handler: (&MailJob{}).Handle},
	}})
	assert.ErrorContains(t, err, "duplicate")
}
