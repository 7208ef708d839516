package proposals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/rfp/comments"
	"github.com/rfpdesk/rfpdesk/internal/rfp/prototypes"
	"github.com/rfpdesk/rfpdesk/internal/rfp/rfps"
	"github.com/rfpdesk/rfpdesk/internal/rfp/sections"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
	"github.com/rfpdesk/rfpdesk/internal/users"
)

var (
	// ErrStaleStatus reports that the proposal changed state concurrently.
	ErrStaleStatus = fmt.Errorf("%w: proposal status changed, reload and try again", internalShared.ErrConflict)
	// ErrClosed reports an edit to a proposal that already has a result.
	ErrClosed = fmt.Errorf("%w: proposal is closed", internalShared.ErrConflict)
)

// RFPLookup loads the RFP a proposal answers.
type RFPLookup interface {
	Get(ctx context.Context, id uuid.UUID) (rfps.RFP, error)
}

// ProfileLookup resolves users named on a proposal.
type ProfileLookup interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*users.Profile, error)
}

// CommentLister loads comment threads.
type CommentLister interface {
	Threads(ctx context.Context, target comments.TargetType, targetID uuid.UUID) ([]comments.Thread, error)
}

// SectionLister loads the document sections of a proposal.
type SectionLister interface {
	ListByProposal(ctx context.Context, proposalID uuid.UUID) ([]sections.Section, error)
}

// PrototypeLister loads the UI prototypes of a proposal.
type PrototypeLister interface {
	ListByProposal(ctx context.Context, proposalID uuid.UUID) ([]prototypes.Prototype, error)
}

// Mailer queues notification email.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, text, html string) error
}

// Detail is a proposal with everything its page shows.
type Detail struct {
	Proposal   Proposal
	Reviewers  []Reviewer
	Comments   []comments.Thread
	Sections   []sections.Section
	Prototypes []prototypes.Prototype
}

// Service implements proposal use cases.
type Service struct {
	repo       Repository
	rfps       RFPLookup
	profiles   ProfileLookup
	comments   CommentLister
	sections   SectionLister
	prototypes PrototypeLister
	mailer     Mailer
	audit      shared.Auditor
	validator  *validator.Validate
	logger     *slog.Logger
	siteURL    string
	now        func() time.Time
}

// Deps groups the collaborators of Service. Sections, Prototypes, Mailer
// and Audit may be nil.
type Deps struct {
	Repo       Repository
	RFPs       RFPLookup
	Profiles   ProfileLookup
	Comments   CommentLister
	Sections   SectionLister
	Prototypes PrototypeLister
	Mailer     Mailer
	Audit      shared.Auditor
	Logger     *slog.Logger
	SiteURL    string
}

// NewService constructs a Service.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       d.Repo,
		rfps:       d.RFPs,
		profiles:   d.Profiles,
		comments:   d.Comments,
		sections:   d.Sections,
		prototypes: d.Prototypes,
		mailer:     d.Mailer,
		audit:      d.Audit,
		validator:  internalShared.NewValidator(),
		logger:     logger,
		siteURL:    d.SiteURL,
		now:        time.Now,
	}
}

func (s *Service) List(ctx context.Context, page shared.ListFilters, statuses []Status) ([]Proposal, int, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, 0, fmt.Errorf("%w: unknown status %q", internalShared.ErrValidation, st)
		}
	}
	return s.repo.List(ctx, page.Normalize(), statuses)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Proposal, error) {
	return s.repo.Get(ctx, id)
}

// Gate reports whether proposals still accept changes to their sections
// and prototypes. It only needs the repository, so the part services can be
// built before Service.
type Gate struct {
	repo Repository
}

// NewGate returns a Gate over repo.
func NewGate(repo Repository) Gate {
	return Gate{repo: repo}
}

// Editable returns ErrNotFound for unknown proposals and ErrClosed once the
// proposal has a result.
func (g Gate) Editable(ctx context.Context, id uuid.UUID) error {
	p, err := g.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Status.Closed() {
		return ErrClosed
	}
	return nil
}

// Detail loads the proposal with its reviewers, comments, sections and
// prototypes.
func (s *Service) Detail(ctx context.Context, id uuid.UUID) (Detail, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	out := Detail{Proposal: p}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reviewers, err := s.repo.Reviewers(gctx, id)
		if err != nil {
			return fmt.Errorf("load reviewers: %w", err)
		}
		out.Reviewers = reviewers
		return nil
	})
	g.Go(func() error {
		threads, err := s.comments.Threads(gctx, comments.TargetProposal, id)
		if err != nil {
			return fmt.Errorf("load comments: %w", err)
		}
		out.Comments = threads
		return nil
	})
	if s.sections != nil {
		g.Go(func() error {
			list, err := s.sections.ListByProposal(gctx, id)
			if err != nil {
				return fmt.Errorf("load sections: %w", err)
			}
			out.Sections = list
			return nil
		})
	}
	if s.prototypes != nil {
		g.Go(func() error {
			list, err := s.prototypes.ListByProposal(gctx, id)
			if err != nil {
				return fmt.Errorf("load prototypes: %w", err)
			}
			out.Prototypes = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Detail{}, err
	}
	return out, nil
}

// Create starts a proposal for an RFP. An RFP has at most one proposal.
func (s *Service) Create(ctx context.Context, actor identity.Identity, form ProposalForm) (Proposal, error) {
	if !actor.Can(authz.PermCreateProposal) {
		return Proposal{}, internalShared.ErrForbidden
	}
	in, err := s.validate(form)
	if err != nil {
		return Proposal{}, err
	}
	rfp, err := s.rfps.Get(ctx, in.RFPID)
	if err != nil {
		return Proposal{}, err
	}
	if rfp.Status == rfps.StatusRejected {
		return Proposal{}, fmt.Errorf("%w: the RFP was rejected", internalShared.ErrValidation)
	}
	if err := s.checkAssignee(ctx, in.AssigneeID); err != nil {
		return Proposal{}, err
	}
	p, err := s.repo.Create(ctx, in, actor.ID)
	if err != nil {
		return Proposal{}, err
	}
	s.record(ctx, actor, "proposal.created", p.ID, map[string]any{"rfp_id": in.RFPID.String()})
	return p, nil
}

func (s *Service) Update(ctx context.Context, actor identity.Identity, id uuid.UUID, form ProposalForm) (Proposal, error) {
	if !actor.Can(authz.PermEditProposal) {
		return Proposal{}, internalShared.ErrForbidden
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Proposal{}, err
	}
	if current.Status.Closed() {
		return Proposal{}, ErrClosed
	}
	form.RFPID = current.RFPID.String()
	in, err := s.validate(form)
	if err != nil {
		return Proposal{}, err
	}
	if in.AssigneeID != current.AssigneeID {
		if err := s.checkAssignee(ctx, in.AssigneeID); err != nil {
			return Proposal{}, err
		}
	}
	p, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return Proposal{}, err
	}
	s.record(ctx, actor, "proposal.updated", id, nil)
	return p, nil
}

// ChangeStatus moves the proposal along its workflow. Approval and
// delivery go through Approve and Submit.
func (s *Service) ChangeStatus(ctx context.Context, actor identity.Identity, id uuid.UUID, to Status) (Proposal, error) {
	switch to {
	case StatusApproved:
		return s.Approve(ctx, actor, id)
	case StatusDelivered:
		return s.Submit(ctx, actor, id)
	}
	if !to.Valid() {
		return Proposal{}, fmt.Errorf("%w: unknown status %q", internalShared.ErrValidation, to)
	}
	if !actor.Can(authz.PermEditProposal) {
		return Proposal{}, internalShared.ErrForbidden
	}
	var stamps Stamps
	if to.Closed() {
		now := s.now().UTC()
		stamps.ResultDate = &now
	}
	return s.move(ctx, actor, id, to, stamps)
}

// Submit delivers an approved proposal to the client.
func (s *Service) Submit(ctx context.Context, actor identity.Identity, id uuid.UUID) (Proposal, error) {
	if !actor.Can(authz.PermSubmitProposal) {
		return Proposal{}, internalShared.ErrForbidden
	}
	now := s.now().UTC()
	return s.move(ctx, actor, id, StatusDelivered, Stamps{DeliveredAt: &now})
}

// Approve signs off a proposal under review.
func (s *Service) Approve(ctx context.Context, actor identity.Identity, id uuid.UUID) (Proposal, error) {
	if !actor.Can(authz.PermApproveProposal) {
		return Proposal{}, internalShared.ErrForbidden
	}
	now := s.now().UTC()
	by := actor.ID
	return s.move(ctx, actor, id, StatusApproved, Stamps{ApprovedBy: &by, ApprovedAt: &now})
}

func (s *Service) move(ctx context.Context, actor identity.Identity, id uuid.UUID, to Status, stamps Stamps) (Proposal, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Proposal{}, err
	}
	if !CanMove(current.Status, to) {
		return Proposal{}, fmt.Errorf("%w: cannot move a %s proposal to %s", internalShared.ErrValidation, current.Status, to)
	}
	p, err := s.repo.SetStatus(ctx, id, current.Status, to, stamps)
	if err != nil {
		return Proposal{}, err
	}
	s.record(ctx, actor, "proposal.status_changed", id, map[string]any{"from": string(current.Status), "to": string(to)})
	return p, nil
}

// AddReviewer asks reviewerID to review the proposal and emails them. The
// reviewer must be active and allowed to approve proposals.
func (s *Service) AddReviewer(ctx context.Context, actor identity.Identity, id, reviewerID uuid.UUID) error {
	if !actor.Can(authz.PermEditProposal) {
		return internalShared.ErrForbidden
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Status.Closed() {
		return ErrClosed
	}
	profile, err := s.profiles.GetProfile(ctx, reviewerID)
	if err != nil {
		return err
	}
	if profile == nil || !profile.IsActive {
		return fmt.Errorf("%w: reviewer not found", internalShared.ErrValidation)
	}
	if !authz.HasPermission(profile.Role, authz.PermApproveProposal) {
		return fmt.Errorf("%w: %s cannot approve proposals", internalShared.ErrValidation, profile.Name)
	}
	if err := s.repo.AddReviewer(ctx, id, reviewerID); err != nil {
		return err
	}
	s.record(ctx, actor, "proposal.reviewer_added", id, map[string]any{"reviewer_id": reviewerID.String()})
	s.notifyReviewer(ctx, p, *profile)
	return nil
}

func (s *Service) RemoveReviewer(ctx context.Context, actor identity.Identity, id, reviewerID uuid.UUID) error {
	if !actor.Can(authz.PermEditProposal) {
		return internalShared.ErrForbidden
	}
	if err := s.repo.RemoveReviewer(ctx, id, reviewerID); err != nil {
		return err
	}
	s.record(ctx, actor, "proposal.reviewer_removed", id, map[string]any{"reviewer_id": reviewerID.String()})
	return nil
}

func (s *Service) Delete(ctx context.Context, actor identity.Identity, id uuid.UUID) error {
	if !actor.Can(authz.PermDeleteProposal) {
		return internalShared.ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "proposal.deleted", id, nil)
	return nil
}

func (s *Service) checkAssignee(ctx context.Context, id uuid.UUID) error {
	profile, err := s.profiles.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	if profile == nil || !profile.IsActive {
		return internalShared.Invalid(errors.New("assignee must be an active user"))
	}
	return nil
}

func (s *Service) notifyReviewer(ctx context.Context, p Proposal, reviewer users.Profile) {
	if s.mailer == nil || reviewer.Email == "" {
		return
	}
	link := s.siteURL + "/proposals/" + p.ID.String()
	text := fmt.Sprintf("Hello %s,\n\nYou were asked to review the proposal %q for %s.\n\n%s\n", reviewer.Name, p.Title, p.ClientName, link)
	if err := s.mailer.SendMail(ctx, reviewer.Email, "Review requested: "+p.Title, text, ""); err != nil {
		s.logger.Warn("queue reviewer mail", slog.Any("error", err), slog.String("proposal_id", p.ID.String()))
	}
}

func (s *Service) record(ctx context.Context, actor identity.Identity, action string, id uuid.UUID, meta map[string]any) {
	shared.Record(ctx, s.audit, s.logger, internalShared.AuditLog{
		ActorID: actor.ID, Action: action, Entity: "proposal", EntityID: id.String(), Meta: meta,
	})
}
