package sections

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

// ProposalGate reports whether a proposal still accepts changes. It returns
// ErrNotFound for unknown proposals and a conflict once the proposal has a
// result.
type ProposalGate interface {
	Editable(ctx context.Context, proposalID uuid.UUID) error
}

// Service implements section use cases. Writing sections counts as editing
// the proposal; approving one needs the proposal approval right.
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

func (s *Service) ListByProposal(ctx context.Context, proposalID uuid.UUID) ([]Section, error) {
	return s.repo.ListByProposal(ctx, proposalID, Filter{})
}

// ListAIGenerated returns the sections drafted by the analysis pipeline.
func (s *Service) ListAIGenerated(ctx context.Context, proposalID uuid.UUID) ([]Section, error) {
	return s.repo.ListByProposal(ctx, proposalID, Filter{AIGenerated: true})
}

// GetByType returns the proposal's section of type t, or nil.
func (s *Service) GetByType(ctx context.Context, proposalID uuid.UUID, t Type) (*Section, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown section type %q", internalShared.ErrValidation, t)
	}
	return s.repo.GetByType(ctx, proposalID, t)
}

func (s *Service) Get(ctx context.Context, proposalID, id uuid.UUID) (Section, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return Section{}, err
	}
	if item.ProposalID != proposalID {
		return Section{}, internalShared.ErrNotFound
	}
	return item, nil
}

func (s *Service) Create(ctx context.Context, actor identity.Identity, proposalID uuid.UUID, form SectionForm) (Section, error) {
	if !actor.Can(authz.PermEditProposal) {
		return Section{}, internalShared.ErrForbidden
	}
	in, err := s.validate(form)
	if err != nil {
		return Section{}, err
	}
	if err := s.proposals.Editable(ctx, proposalID); err != nil {
		return Section{}, err
	}
	if err := s.checkTypeFree(ctx, proposalID, in.Type, uuid.Nil); err != nil {
		return Section{}, err
	}
	item, err := s.repo.Create(ctx, proposalID, in, actor.ID)
	if err != nil {
		return Section{}, err
	}
	s.record(ctx, actor, "section.created", item.ID, map[string]any{"proposal_id": proposalID.String(), "type": string(in.Type)})
	return item, nil
}

// Update rewrites the section. Changing an approved section sends it back
// to draft.
func (s *Service) Update(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID, form SectionForm) (Section, error) {
	if !actor.Can(authz.PermEditProposal) {
		return Section{}, internalShared.ErrForbidden
	}
	in, err := s.validate(form)
	if err != nil {
		return Section{}, err
	}
	current, err := s.Get(ctx, proposalID, id)
	if err != nil {
		return Section{}, err
	}
	if err := s.proposals.Editable(ctx, proposalID); err != nil {
		return Section{}, err
	}
	if in.Type != current.Type {
		if err := s.checkTypeFree(ctx, proposalID, in.Type, id); err != nil {
			return Section{}, err
		}
	}
	status := current.Status
	if status == StatusApproved && (in.Content != current.Content || in.Title != current.Title || in.Type != current.Type) {
		status = StatusDraft
	}
	item, err := s.repo.Update(ctx, id, in, status)
	if err != nil {
		return Section{}, err
	}
	s.record(ctx, actor, "section.updated", id, nil)
	return item, nil
}

// RequestReview hands a draft section to the reviewers.
func (s *Service) RequestReview(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID) (Section, error) {
	if !actor.Can(authz.PermEditProposal) {
		return Section{}, internalShared.ErrForbidden
	}
	return s.move(ctx, actor, proposalID, id, StatusDraft, StatusReview)
}

// Approve signs off a section under review.
func (s *Service) Approve(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID) (Section, error) {
	if !actor.Can(authz.PermApproveProposal) {
		return Section{}, internalShared.ErrForbidden
	}
	return s.move(ctx, actor, proposalID, id, StatusReview, StatusApproved)
}

func (s *Service) move(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID, from, to Status) (Section, error) {
	current, err := s.Get(ctx, proposalID, id)
	if err != nil {
		return Section{}, err
	}
	if current.Status != from {
		return Section{}, fmt.Errorf("%w: cannot move a %s section to %s", internalShared.ErrValidation, current.Status, to)
	}
	if err := s.proposals.Editable(ctx, proposalID); err != nil {
		return Section{}, err
	}
	item, err := s.repo.SetStatus(ctx, id, from, to)
	if err != nil {
		return Section{}, err
	}
	s.record(ctx, actor, "section.status_changed", id, map[string]any{"from": string(from), "to": string(to)})
	return item, nil
}

// Move places the section at position (0-based) among the proposal's
// sections.
func (s *Service) Move(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID, position int) error {
	if !actor.Can(authz.PermEditProposal) {
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
	s.record(ctx, actor, "section.moved", id, map[string]any{"position": position})
	return nil
}

// Position returns the index of id among the proposal's sections.
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
	if !actor.Can(authz.PermEditProposal) {
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
	s.record(ctx, actor, "section.deleted", id, map[string]any{"proposal_id": proposalID.String()})
	return nil
}

func (s *Service) checkTypeFree(ctx context.Context, proposalID uuid.UUID, t Type, self uuid.UUID) error {
	existing, err := s.repo.GetByType(ctx, proposalID, t)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != self {
		return fmt.Errorf("%w: the proposal already has a %s section", internalShared.ErrConflict, t.Label())
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor identity.Identity, action string, id uuid.UUID, meta map[string]any) {
	shared.Record(ctx, s.audit, s.logger, internalShared.AuditLog{
		ActorID: actor.ID, Action: action, Entity: "proposal_section", EntityID: id.String(), Meta: meta,
	})
}
