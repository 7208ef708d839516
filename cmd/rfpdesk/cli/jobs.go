// Package cli holds the operator helpers behind the rfpdesk subcommands.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/rfpdesk/rfpdesk/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI connects to the queue at redisAddr, a host:port or redis URL.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	if redisAddr == "" {
		return nil, errors.New("jobs cli: redis address required")
	}
	opts, err := jobs.RedisOpt(redisAddr)
	if err != nil {
		return nil, fmt.Errorf("jobs cli: %w", err)
	}
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		err = errors.Join(err, c.inspector.Close())
	}
	if c.client != nil {
		err = errors.Join(err, c.client.Close())
	}
	return err
}

// TriggerOptions carries the arguments some jobs need.
type TriggerOptions struct {
	MailTo string
}

// Triggerable lists the job names Trigger accepts.
func Triggerable() []string {
	return []string{jobs.TaskTypeSessionsCleanup, jobs.TaskTypeSendEmail}
}

// BuildTask prepares the task for name.
func BuildTask(name string, opts TriggerOptions) (*asynq.Task, error) {
	switch name {
	case jobs.TaskTypeSessionsCleanup:
		return asynq.NewTask(jobs.TaskTypeSessionsCleanup, nil, asynq.Queue(jobs.QueueMaintenance)), nil
	case jobs.TaskTypeSendEmail:
		return jobs.NewSendEmailTask(jobs.SendEmailPayload{
			To:      opts.MailTo,
			Subject: "rfpdesk test message",
			Text:    "Mail delivery from the rfpdesk worker is working.",
		})
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := BuildTask(name, opts)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// QueueStats summarises one queue.
type QueueStats struct {
	Queue     string
	Paused    bool
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueues reports counters for every queue the worker polls.
func (c *JobsCLI) InspectQueues(context.Context) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	report, err := jobs.NewHandler(c.inspector, nil).Report()
	if err != nil {
		return nil, err
	}
	stats := make([]QueueStats, 0, len(report.Queues))
	for _, q := range report.Queues {
		stats = append(stats, QueueStats{
			Queue:     q.Queue,
			Paused:    q.Paused,
			Pending:   q.Pending,
			Active:    q.Active,
			Scheduled: q.Scheduled,
			Retry:     q.Retry,
			Archived:  q.Archived,
		})
	}
	return stats, nil
}

// ListScheduled returns up to size scheduled tasks from each queue.
func (c *JobsCLI) ListScheduled(_ context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	var out []*asynq.TaskInfo
	for _, queue := range jobs.QueueNames() {
		tasks, err := c.inspector.ListScheduledTasks(queue, asynq.PageSize(size), asynq.Page(1))
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, fmt.Errorf("jobs cli: list %s: %w", queue, err)
		}
		out = append(out, tasks...)
	}
	return out, nil
}
