package rfps

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/rfp/clients"
	"github.com/rfpdesk/rfpdesk/internal/rfp/comments"
	"github.com/rfpdesk/rfpdesk/internal/rfp/requirements"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

// ClientLookup loads the client shown next to an RFP.
type ClientLookup interface {
	Get(ctx context.Context, id uuid.UUID) (clients.Detail, error)
}

// RequirementLister loads an RFP's requirements.
type RequirementLister interface {
	ListByRFP(ctx context.Context, rfpID uuid.UUID, filter requirements.Filter) ([]requirements.Requirement, error)
}

// CommentLister loads comment threads.
type CommentLister interface {
	Threads(ctx context.Context, target comments.TargetType, targetID uuid.UUID) ([]comments.Thread, error)
}

// Detail is an RFP with everything its page shows.
type Detail struct {
	RFP          RFP
	Client       clients.Client
	Requirements []requirements.Requirement
	Comments     []comments.Thread
	Activity     []internalShared.AuditLog
}

const activityLimit = 20

// Service implements RFP use cases.
type Service struct {
	repo         Repository
	clients      ClientLookup
	requirements RequirementLister
	comments     CommentLister
	audit        shared.Auditor
	validator    *validator.Validate
	logger       *slog.Logger
	now          func() time.Time
}

// NewService constructs a Service. audit may be nil.
func NewService(repo Repository, clients ClientLookup, reqs RequirementLister, comments CommentLister, audit shared.Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:         repo,
		clients:      clients,
		requirements: reqs,
		comments:     comments,
		audit:        audit,
		validator:    internalShared.NewValidator(),
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Service) List(ctx context.Context, page shared.ListFilters, filters ListFilters) ([]RFP, int, error) {
	for _, st := range filters.Statuses {
		if !st.Valid() {
			return nil, 0, fmt.Errorf("%w: unknown status %q", internalShared.ErrValidation, st)
		}
	}
	return s.repo.List(ctx, page.Normalize(), filters)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (RFP, error) {
	return s.repo.Get(ctx, id)
}

// Detail loads the RFP, its client, requirements and comments concurrently.
func (s *Service) Detail(ctx context.Context, id uuid.UUID) (Detail, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	out := Detail{RFP: item}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.clients.Get(gctx, item.ClientID)
		if err != nil {
			return fmt.Errorf("load client: %w", err)
		}
		out.Client = c.Client
		return nil
	})
	g.Go(func() error {
		reqs, err := s.requirements.ListByRFP(gctx, id, requirements.Filter{})
		if err != nil {
			return fmt.Errorf("load requirements: %w", err)
		}
		out.Requirements = reqs
		return nil
	})
	g.Go(func() error {
		threads, err := s.comments.Threads(gctx, comments.TargetRFP, id)
		if err != nil {
			return fmt.Errorf("load comments: %w", err)
		}
		out.Comments = threads
		return nil
	})
	if history, ok := s.audit.(shared.HistoryReader); ok {
		g.Go(func() error {
			entries, err := history.History(gctx, "rfp", id.String(), activityLimit)
			if err != nil {
				s.logger.Warn("load rfp activity", slog.Any("error", err), slog.String("rfp_id", id.String()))
				return nil
			}
			out.Activity = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Detail{}, err
	}
	return out, nil
}

// Create registers a newly received RFP.
func (s *Service) Create(ctx context.Context, actor identity.Identity, form RFPForm) (RFP, error) {
	if !actor.Can(authz.PermCreateRFP) {
		return RFP{}, internalShared.ErrForbidden
	}
	in, err := s.validate(form)
	if err != nil {
		return RFP{}, err
	}
	item, err := s.repo.Create(ctx, in)
	if err != nil {
		return RFP{}, err
	}
	s.record(ctx, actor, "rfp.created", item.ID, map[string]any{"title": item.Title, "client_id": item.ClientID.String()})
	return item, nil
}

func (s *Service) Update(ctx context.Context, actor identity.Identity, id uuid.UUID, form RFPForm) (RFP, error) {
	if !actor.Can(authz.PermEditRFP) {
		return RFP{}, internalShared.ErrForbidden
	}
	in, err := s.validate(form)
	if err != nil {
		return RFP{}, err
	}
	item, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return RFP{}, err
	}
	s.record(ctx, actor, "rfp.updated", id, nil)
	return item, nil
}

// ChangeStatus moves the RFP to status. Marking it analyzed needs the
// analyze permission and stamps the analysis time.
func (s *Service) ChangeStatus(ctx context.Context, actor identity.Identity, id uuid.UUID, status Status) (RFP, error) {
	if !status.Valid() {
		return RFP{}, fmt.Errorf("%w: unknown status %q", internalShared.ErrValidation, status)
	}
	required := authz.PermEditRFP
	if status == StatusAnalyzed || status == StatusAnalyzing {
		required = authz.PermAnalyzeRFP
	}
	if !actor.Can(required) {
		return RFP{}, internalShared.ErrForbidden
	}
	var analyzedAt *time.Time
	if status == StatusAnalyzed {
		now := s.now().UTC()
		analyzedAt = &now
	}
	item, err := s.repo.SetStatus(ctx, id, status, analyzedAt)
	if err != nil {
		return RFP{}, err
	}
	s.record(ctx, actor, "rfp.status_changed", id, map[string]any{"status": string(status)})
	return item, nil
}

// SaveAnalysis stores an analysis document. Its shape is not interpreted.
func (s *Service) SaveAnalysis(ctx context.Context, actor identity.Identity, id uuid.UUID, raw string) error {
	if !actor.Can(authz.PermAnalyzeRFP) {
		return internalShared.ErrForbidden
	}
	doc, err := validateAnalysis(raw)
	if err != nil {
		return err
	}
	if err := s.repo.SetAnalysis(ctx, id, doc); err != nil {
		return err
	}
	s.record(ctx, actor, "rfp.analysis_saved", id, nil)
	return nil
}

func (s *Service) Delete(ctx context.Context, actor identity.Identity, id uuid.UUID) error {
	if !actor.Can(authz.PermDeleteRFP) {
		return internalShared.ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "rfp.deleted", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actor identity.Identity, action string, id uuid.UUID, meta map[string]any) {
	shared.Record(ctx, s.audit, s.logger, internalShared.AuditLog{
		ActorID: actor.ID, Action: action, Entity: "rfp", EntityID: id.String(), Meta: meta,
	})
}
