package prototypes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

// ProposalGate reports whether a proposal still accepts changes.
type ProposalGate interface {
	Editable(ctx context.Context, proposalID uuid.UUID) error
}

// Service implements prototype use cases.
type Service struct {
	repo      Repository
	proposals ProposalGate
	audit     shared.Auditor
	validator *validator.Validate
	logger    *slog.Logger
}

// NewService constructs a Service. audit may be nil.
func NewService(repo Repository, proposals ProposalGate, audit shared.Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, proposals: proposals, audit: audit, validator: internalShared.NewValidator(), logger: logger}
}

// List pages prototypes across all proposals.
func (s *Service) List(ctx context.Context, actor identity.Identity, page shared.ListFilters, filter Filter) ([]Prototype, int, error) {
	if !actor.Can(authz.PermViewPrototypes) {
		return nil, 0, internalShared.ErrForbidden
	}
	if filter.Type != "" && !filter.Type.Valid() {
		filter.Type = ""
	}
	if filter.Status != "" && !filter.Status.Valid() {
		filter.Status = ""
	}
	return s.repo.List(ctx, page.Normalize(), filter)
}

func (s *Service) ListByProposal(ctx context.Context, proposalID uuid.UUID) ([]Prototype, error) {
	return s.repo.ListByProposal(ctx, proposalID, Filter{})
}

// ListByType returns the proposal's prototypes of type t.
func (s *Service) ListByType(ctx context.Context, proposalID uuid.UUID, t Type) ([]Prototype, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown prototype type %q", internalShared.ErrValidation, t)
	}
	return s.repo.ListByProposal(ctx, proposalID, Filter{Type: t})
}

// ListAIGenerated returns the prototypes produced by the analysis pipeline.
func (s *Service) ListAIGenerated(ctx context.Context, proposalID uuid.UUID) ([]Prototype, error) {
	return s.repo.ListByProposal(ctx, proposalID, Filter{AIGenerated: true})
}

func (s *Service) Get(ctx context.Context, proposalID, id uuid.UUID) (Prototype, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return Prototype{}, err
	}
	if item.ProposalID != proposalID {
		return Prototype{}, internalShared.ErrNotFound
	}
	return item, nil
}

// Create stores a new draft prototype at the end of the proposal's list.
func (s *Service) Create(ctx context.Context, actor identity.Identity, proposalID uuid.UUID, form PrototypeForm) (Prototype, error) {
	if !actor.Can(authz.PermCreatePrototype) {
		return Prototype{}, internalShared.ErrForbidden
	}
	in, err := s.validate(form)
	if err != nil {
		return Prototype{}, err
	}
	if err := s.proposals.Editable(ctx, proposalID); err != nil {
		return Prototype{}, err
	}
	item, err := s.repo.Create(ctx, proposalID, in, actor.ID)
	if err != nil {
		return Prototype{}, err
	}
	s.record(ctx, actor, "prototype.created", item.ID, map[string]any{"proposal_id": proposalID.String(), "type": string(in.Type)})
	return item, nil
}

func (s *Service) Update(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID, form PrototypeForm) (Prototype, error) {
	if !actor.Can(authz.PermEditPrototype) {
		return Prototype{}, internalShared.ErrForbidden
	}
	in, err := s.validate(form)
	if err != nil {
		return Prototype{}, err
	}
	current, err := s.Get(ctx, proposalID, id)
	if err != nil {
		return Prototype{}, err
	}
	if current.Status == StatusGenerating {
		return Prototype{}, fmt.Errorf("%w: the prototype is still being generated", internalShared.ErrConflict)
	}
	if err := s.proposals.Editable(ctx, proposalID); err != nil {
		return Prototype{}, err
	}
	item, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return Prototype{}, err
	}
	s.record(ctx, actor, "prototype.updated", id, nil)
	return item, nil
}

// SetStatus moves the prototype along the review workflow. Approving needs
// the proposal approval right as well.
func (s *Service) SetStatus(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID, to Status) (Prototype, error) {
	if !actor.Can(authz.PermEditPrototype) {
		return Prototype{}, internalShared.ErrForbidden
	}
	if to == StatusApproved && !actor.Can(authz.PermApproveProposal) {
		return Prototype{}, internalShared.ErrForbidden
	}
	if !to.Valid() {
		return Prototype{}, fmt.Errorf("%w: unknown prototype status %q", internalShared.ErrValidation, to)
	}
	current, err := s.Get(ctx, proposalID, id)
	if err != nil {
		return Prototype{}, err
	}
	if !CanMove(current.Status, to) {
		return Prototype{}, fmt.Errorf("%w: cannot move a %s prototype to %s", internalShared.ErrValidation, current.Status, to)
	}
	if err := s.proposals.Editable(ctx, proposalID); err != nil {
		return Prototype{}, err
	}
	item, err := s.repo.SetStatus(ctx, id, current.Status, to)
	if err != nil {
		return Prototype{}, err
	}
	s.record(ctx, actor, "prototype.status_changed", id, map[string]any{"from": string(current.Status), "to": string(to)})
	return item, nil
}

// Move places the prototype at position (0-based) among the proposal's
// prototypes.
func (s *Service) Move(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID, position int) error {
	if !actor.Can(authz.PermEditPrototype) {
		return internalShared.ErrForbidden
	}
	if err := s.proposals.Editable(ctx, proposalID); err != nil {
		return err
	}
	list, err := s.repo.ListByProposal(ctx, proposalID, Filter{})
	if err != nil {
		return err
	}
	ids := make([]uuid.UUID, len(list))
	for i, item := range list {
		ids[i] = item.ID
	}
	order, ok := shared.MoveTo(ids, id, position)
	if !ok {
		return internalShared.ErrNotFound
	}
	if err := s.repo.Reorder(ctx, proposalID, order); err != nil {
		return err
	}
	s.record(ctx, actor, "prototype.moved", id, map[string]any{"position": position})
	return nil
}

// Position returns the index of id among the proposal's prototypes.
func (s *Service) Position(ctx context.Context, proposalID, id uuid.UUID) (int, error) {
	list, err := s.repo.ListByProposal(ctx, proposalID, Filter{})
	if err != nil {
		return 0, err
	}
	for i, item := range list {
		if item.ID == id {
			return i, nil
		}
	}
	return 0, internalShared.ErrNotFound
}

func (s *Service) Delete(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID) error {
	if !actor.Can(authz.PermDeletePrototype) {
		return internalShared.ErrForbidden
	}
	if _, err := s.Get(ctx, proposalID, id); err != nil {
		return err
	}
	if err := s.proposals.Editable(ctx, proposalID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "prototype.deleted", id, map[string]any{"proposal_id": proposalID.String()})
	return nil
}

func (s *Service) record(ctx context.Context, actor identity.Identity, action string, id uuid.UUID, meta map[string]any) {
	shared.Record(ctx, s.audit, s.logger, internalShared.AuditLog{
		ActorID: actor.ID, Action: action, Entity: "ui_prototype", EntityID: id.String(), Meta: meta,
	})
}
