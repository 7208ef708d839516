package clients

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

// Service implements client use cases.
type Service struct {
	repo      Repository
	audit     shared.Auditor
	validator *validator.Validate
	logger    *slog.Logger
}

// NewService constructs a Service. audit may be nil.
func NewService(repo Repository, audit shared.Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, validator: internalShared.NewValidator(), logger: logger}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Client, int, error) {
	return s.repo.List(ctx, filters.Normalize())
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Detail, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	rfps, err := s.repo.ListRFPs(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Client: c, RFPs: rfps}, nil
}

// Options lists every client for select inputs.
func (s *Service) Options(ctx context.Context) ([]Client, error) {
	out, _, err := s.repo.List(ctx, shared.ListFilters{Page: 1, Limit: shared.MaxLimit}.Normalize())
	return out, err
}

func (s *Service) Create(ctx context.Context, actor identity.Identity, form ClientForm) (Client, error) {
	if !actor.Can(authz.PermCreateClient) {
		return Client{}, internalShared.ErrForbidden
	}
	if err := s.validate(&form); err != nil {
		return Client{}, err
	}
	c, err := s.repo.Create(ctx, form)
	if err != nil {
		return Client{}, err
	}
	s.record(ctx, actor, "client.created", c.ID, map[string]any{"name": c.Name})
	return c, nil
}

func (s *Service) Update(ctx context.Context, actor identity.Identity, id uuid.UUID, form ClientForm) (Client, error) {
	if !actor.Can(authz.PermEditClient) {
		return Client{}, internalShared.ErrForbidden
	}
	if err := s.validate(&form); err != nil {
		return Client{}, err
	}
	c, err := s.repo.Update(ctx, id, form)
	if err != nil {
		return Client{}, err
	}
	s.record(ctx, actor, "client.updated", id, nil)
	return c, nil
}

// Delete removes a client. Clients that still have RFPs cannot be deleted.
func (s *Service) Delete(ctx context.Context, actor identity.Identity, id uuid.UUID) error {
	if !actor.Can(authz.PermDeleteClient) {
		return internalShared.ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "client.deleted", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actor identity.Identity, action string, id uuid.UUID, meta map[string]any) {
	shared.Record(ctx, s.audit, s.logger, internalShared.AuditLog{
		ActorID: actor.ID, Action: action, Entity: "client", EntityID: id.String(), Meta: meta,
	})
}
