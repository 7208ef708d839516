package requirements

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

// Service implements requirement use cases. Changing requirements counts
// as editing the RFP.
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

func (s *Service) ListByRFP(ctx context.Context, rfpID uuid.UUID, filter Filter) ([]Requirement, error) {
	return s.repo.ListByRFP(ctx, rfpID, filter)
}

func (s *Service) Get(ctx context.Context, rfpID, id uuid.UUID) (Requirement, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return Requirement{}, err
	}
	if item.RFPID != rfpID {
		return Requirement{}, internalShared.ErrNotFound
	}
	return item, nil
}

func (s *Service) Create(ctx context.Context, actor identity.Identity, rfpID uuid.UUID, form RequirementForm) (Requirement, error) {
	if !actor.Can(authz.PermEditRFP) {
		return Requirement{}, internalShared.ErrForbidden
	}
	in, err := s.validate(form)
	if err != nil {
		return Requirement{}, err
	}
	item, err := s.repo.Create(ctx, rfpID, in)
	if err != nil {
		return Requirement{}, err
	}
	s.record(ctx, actor, "requirement.created", item.ID, map[string]any{"rfp_id": rfpID.String()})
	return item, nil
}

func (s *Service) Update(ctx context.Context, actor identity.Identity, rfpID, id uuid.UUID, form RequirementForm) (Requirement, error) {
	if !actor.Can(authz.PermEditRFP) {
		return Requirement{}, internalShared.ErrForbidden
	}
	in, err := s.validate(form)
	if err != nil {
		return Requirement{}, err
	}
	if _, err := s.Get(ctx, rfpID, id); err != nil {
		return Requirement{}, err
	}
	item, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return Requirement{}, err
	}
	s.record(ctx, actor, "requirement.updated", id, nil)
	return item, nil
}

func (s *Service) Delete(ctx context.Context, actor identity.Identity, rfpID, id uuid.UUID) error {
	if !actor.Can(authz.PermEditRFP) {
		return internalShared.ErrForbidden
	}
	if _, err := s.Get(ctx, rfpID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "requirement.deleted", id, map[string]any{"rfp_id": rfpID.String()})
	return nil
}

// Reorder sets the display order of an RFP's requirements.
func (s *Service) Reorder(ctx context.Context, actor identity.Identity, rfpID uuid.UUID, ids []uuid.UUID) error {
	if !actor.Can(authz.PermEditRFP) {
		return internalShared.ErrForbidden
	}
	if err := validateOrder(ids); err != nil {
		return err
	}
	if err := s.repo.Reorder(ctx, rfpID, ids); err != nil {
		return err
	}
	s.record(ctx, actor, "requirement.reordered", rfpID, map[string]any{"count": len(ids)})
	return nil
}

func (s *Service) record(ctx context.Context, actor identity.Identity, action string, id uuid.UUID, meta map[string]any) {
	shared.Record(ctx, s.audit, s.logger, internalShared.AuditLog{
		ActorID: actor.ID, Action: action, Entity: "requirement", EntityID: id.String(), Meta: meta,
	})
}
