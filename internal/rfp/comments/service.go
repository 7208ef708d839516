package comments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

// Service implements comment use cases.
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

// Threads returns the target's comments grouped under their top-level
// comment. Replies whose parent is gone are dropped.
func (s *Service) Threads(ctx context.Context, target TargetType, targetID uuid.UUID) ([]Thread, error) {
	all, err := s.repo.ListByTarget(ctx, target, targetID)
	if err != nil {
		return nil, err
	}
	return buildThreads(all), nil
}

func buildThreads(all []Comment) []Thread {
	index := make(map[uuid.UUID]int)
	var threads []Thread
	for _, c := range all {
		if c.ParentID == nil {
			index[c.ID] = len(threads)
			threads = append(threads, Thread{Comment: c})
		}
	}
	for _, c := range all {
		if c.ParentID == nil {
			continue
		}
		if i, ok := index[*c.ParentID]; ok {
			threads[i].Replies = append(threads[i].Replies, c)
		}
	}
	return threads
}

// Create adds a comment. Replies may only answer top-level comments on the
// same target. Approval and rejection comments need the approve permission.
func (s *Service) Create(ctx context.Context, actor identity.Identity, target TargetType, targetID uuid.UUID, form CommentForm) (Comment, error) {
	if !canView(actor, target) {
		return Comment{}, internalShared.ErrForbidden
	}
	content, typ, err := s.validate(actor, form)
	if err != nil {
		return Comment{}, err
	}
	n := NewComment{TargetType: target, TargetID: targetID, Content: content, Type: typ, AuthorID: actor.ID}
	if form.ParentID != "" {
		parentID := uuid.MustParse(form.ParentID)
		parent, err := s.repo.Get(ctx, parentID)
		if err != nil {
			return Comment{}, err
		}
		if parent.TargetType != target || parent.TargetID != targetID {
			return Comment{}, fmt.Errorf("%w: reply must be on the same item", internalShared.ErrValidation)
		}
		if parent.ParentID != nil {
			return Comment{}, fmt.Errorf("%w: replies cannot be nested", internalShared.ErrValidation)
		}
		n.ParentID = &parentID
	}
	c, err := s.repo.Create(ctx, n)
	if err != nil {
		return Comment{}, err
	}
	s.record(ctx, actor, "comment.created", c, nil)
	return c, nil
}

// Update edits a comment's content. Only the author or an admin may edit.
func (s *Service) Update(ctx context.Context, actor identity.Identity, id uuid.UUID, form CommentForm) (Comment, error) {
	existing, err := s.owned(ctx, actor, id)
	if err != nil {
		return Comment{}, err
	}
	if form.Type == "" {
		form.Type = string(existing.Type)
	}
	content, typ, err := s.validate(actor, form)
	if err != nil {
		return Comment{}, err
	}
	c, err := s.repo.Update(ctx, id, content, typ)
	if err != nil {
		return Comment{}, err
	}
	s.record(ctx, actor, "comment.updated", c, nil)
	return c, nil
}

// Delete removes a comment and its replies. Only the author or an admin may
// delete.
func (s *Service) Delete(ctx context.Context, actor identity.Identity, id uuid.UUID) (Comment, error) {
	existing, err := s.owned(ctx, actor, id)
	if err != nil {
		return Comment{}, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return Comment{}, err
	}
	s.record(ctx, actor, "comment.deleted", existing, nil)
	return existing, nil
}

// ToggleResolved flips the resolved flag. The author and anyone who may
// edit the commented RFP can resolve.
func (s *Service) ToggleResolved(ctx context.Context, actor identity.Identity, id uuid.UUID) (Comment, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Comment{}, err
	}
	if existing.AuthorID != actor.ID && !actor.Can(authz.PermEditRFP) && !actor.Can(authz.PermEditProposal) {
		return Comment{}, internalShared.ErrForbidden
	}
	c, err := s.repo.SetResolved(ctx, id, !existing.IsResolved)
	if err != nil {
		return Comment{}, err
	}
	s.record(ctx, actor, "comment.resolved", c, map[string]any{"resolved": c.IsResolved})
	return c, nil
}

func (s *Service) owned(ctx context.Context, actor identity.Identity, id uuid.UUID) (Comment, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Comment{}, err
	}
	if existing.AuthorID != actor.ID && actor.Role != authz.RoleAdmin {
		return Comment{}, internalShared.ErrForbidden
	}
	return existing, nil
}

func (s *Service) validate(actor identity.Identity, form CommentForm) (string, Type, error) {
	form.Content = strings.TrimSpace(form.Content)
	if err := s.validator.Struct(form); err != nil {
		return "", "", internalShared.Invalid(err)
	}
	typ := Type(form.Type)
	if typ == "" {
		typ = TypeComment
	}
	if (typ == TypeApproval || typ == TypeRejection) && !actor.Can(authz.PermApproveProposal) {
		return "", "", internalShared.ErrForbidden
	}
	return form.Content, typ, nil
}

func canView(actor identity.Identity, target TargetType) bool {
	switch target {
	case TargetRFP, TargetRequirement:
		return actor.Can(authz.PermViewRFPs)
	case TargetProposal:
		return actor.Can(authz.PermViewProposals)
	}
	return false
}

func (s *Service) record(ctx context.Context, actor identity.Identity, action string, c Comment, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["target_type"] = string(c.TargetType)
	meta["target_id"] = c.TargetID.String()
	shared.Record(ctx, s.audit, s.logger, internalShared.AuditLog{
		ActorID: actor.ID, Action: action, Entity: "comment", EntityID: c.ID.String(), Meta: meta,
	})
}
