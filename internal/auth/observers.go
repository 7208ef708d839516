package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/shared"
)

// LastLoginStamper records successful sign-ins on the profile.
type LastLoginStamper interface {
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// EventCounter counts auth events by type.
type EventCounter interface {
	ObserveAuthEvent(event string)
}

// AuditObserver writes every auth event to the audit log.
func AuditObserver(audit *shared.AuditLogger, logger *slog.Logger) func(identity.Event) {
	return func(ev identity.Event) {
		if audit == nil || ev.UserID == uuid.Nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := audit.Record(ctx, shared.AuditLog{
			ActorID:  ev.UserID,
			Action:   "auth." + string(ev.Type),
			Entity:   "user",
			EntityID: ev.UserID.String(),
			At:       ev.At,
		})
		if err != nil && logger != nil {
			logger.Warn("audit auth event", slog.Any("error", err), slog.String("event", string(ev.Type)))
		}
	}
}

// LastLoginObserver stamps the profile on SIGNED_IN.
func LastLoginObserver(profiles LastLoginStamper, logger *slog.Logger) func(identity.Event) {
	return func(ev identity.Event) {
		if ev.Type != identity.EventSignedIn || ev.UserID == uuid.Nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := profiles.TouchLastLogin(ctx, ev.UserID, ev.At); err != nil && logger != nil {
			logger.Warn("stamp last login", slog.Any("error", err))
		}
	}
}

// MetricsObserver counts auth events.
func MetricsObserver(counter EventCounter) func(identity.Event) {
	return func(ev identity.Event) {
		counter.ObserveAuthEvent(string(ev.Type))
	}
}
