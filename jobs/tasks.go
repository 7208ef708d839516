package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/rfpdesk/rfpdesk/internal/jobs"
)

const (
	// QueueMail carries outbound email; it is polled ahead of maintenance.
	QueueMail = "mail"
	// QueueMaintenance carries periodic housekeeping.
	QueueMaintenance = "maintenance"
	// TaskTypeSendEmail sends one transactional email.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeSessionsCleanup removes ended refresh sessions.
	TaskTypeSessionsCleanup = "auth:sessions_cleanup"
)

// Queues returns every queue with its polling weight.
func Queues() map[string]int {
	return map[string]int{QueueMail: 6, QueueMaintenance: 1}
}

// QueueNames lists the queues in priority order.
func QueueNames() []string {
	return []string{QueueMail, QueueMaintenance}
}

// SendEmailPayload describes one email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// NewSendEmailTask constructs a mail:send task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if payload.To == "" {
		return nil, errors.New("send email: no recipient")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueMail), asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// Sender delivers an email.
type Sender interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// MailJob handles mail:send tasks.
type MailJob struct {
	Sender  Sender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle delivers the email in t. Malformed payloads are not retried.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sender == nil {
		return errors.New("mail job: sender not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("mail job: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskTypeSendEmail)
	if err := j.Sender.Send(ctx, payload); err != nil {
		if j.Logger != nil {
			j.Logger.Warn("send email", slog.Any("error", err), slog.String("subject", payload.Subject))
		}
		return tracker.End(err)
	}
	return tracker.End(nil)
}

// SessionPurger removes refresh sessions that ended before a cutoff.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// SessionsCleanupJob handles auth:sessions_cleanup tasks.
type SessionsCleanupJob struct {
	Purger  SessionPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	// Retain keeps ended sessions this long for audit before removal.
	Retain time.Duration
	clock  func() time.Time
}

// NewSessionsCleanupJob builds the cleanup handler.
func NewSessionsCleanupJob(purger SessionPurger, retain time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionsCleanupJob {
	return &SessionsCleanupJob{
		Purger:  purger,
		Logger:  logger,
		Metrics: metrics,
		Retain:  retain,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Handle purges sessions that ended before now minus Retain.
func (j *SessionsCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Purger == nil {
		return errors.New("sessions cleanup: purger not configured")
	}
	tracker := j.Metrics.Track(TaskTypeSessionsCleanup)
	cutoff := j.clock().Add(-j.Retain)
	n, err := j.Purger.PurgeExpiredSessions(ctx, cutoff)
	if err != nil {
		return tracker.End(fmt.Errorf("sessions cleanup: %w", err))
	}
	j.Metrics.AddPurgedSessions(n)
	if j.Logger != nil {
		j.Logger.Info("sessions cleanup", slog.Int64("purged", n), slog.Time("cutoff", cutoff))
	}
	return tracker.End(nil)
}

// SessionsCleanupCron runs the cleanup hourly.
func SessionsCleanupCron() CronRegistration {
	return CronRegistration{
		Spec:    "@hourly",
		Task:    asynq.NewTask(TaskTypeSessionsCleanup, nil),
		Options: []asynq.Option{asynq.Queue(QueueMaintenance), asynq.MaxRetry(1)},
	}
}
