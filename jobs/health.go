package jobs

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/rfpdesk/rfpdesk/internal/platform/httpx"
)

// QueueInspector is the slice of asynq.Inspector the health report reads.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// QueueHealth summarises one queue.
type QueueHealth struct {
	Queue     string `json:"queue"`
	Paused    bool   `json:"paused"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthReport is the body of GET /healthz/jobs/health.
type HealthReport struct {
	Status string        `json:"status"`
	Queues []QueueHealth `json:"queues"`
}

// Handler serves queue health for probes and operators.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler builds the health handler.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

// Report inspects every queue. A queue that does not exist yet reports zeros.
func (h *Handler) Report() (HealthReport, error) {
	report := HealthReport{Status: "ok"}
	for _, name := range QueueNames() {
		entry := QueueHealth{Queue: name}
		if h.inspector != nil {
			info, err := h.inspector.GetQueueInfo(name)
			switch {
			case err != nil && !isQueueNotFound(err):
				return HealthReport{}, err
			case info != nil:
				entry.Paused = info.Paused
				entry.Pending = info.Pending
				entry.Active = info.Active
				entry.Scheduled = info.Scheduled
				entry.Retry = info.Retry
				entry.Archived = info.Archived
				entry.LatencyMS = info.Latency.Milliseconds()
			}
		}
		if entry.Paused {
			report.Status = "degraded"
		}
		report.Queues = append(report.Queues, entry)
	}
	return report, nil
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	report, err := h.Report()
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("jobs health", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue unavailable", "The job queue could not be inspected")
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func isQueueNotFound(err error) bool {
	return errors.Is(err, asynq.ErrQueueNotFound)
}
