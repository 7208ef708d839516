package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/shared"
)

// RepositoryPort defines data access methods for profiles.
type RepositoryPort interface {
	Get(ctx context.Context, id uuid.UUID) (Profile, error)
	Create(ctx context.Context, p Profile) (Profile, error)
	Update(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (Profile, error)
	List(ctx context.Context, filter ListFilter) ([]Profile, int, error)
	SetRole(ctx context.Context, id uuid.UUID, role authz.Role) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ErrLastAdmin prevents demoting or deactivating oneself out of administration.
var ErrLastAdmin = errors.New("users: administrators cannot remove their own admin access")

// Service is the profile store.
type Service struct {
	repo     RepositoryPort
	cache    Cache
	group    singleflight.Group
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds Service instance. cache may be nil.
func NewService(repo RepositoryPort, cache Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, validate: shared.NewValidator(), logger: logger}
}

// GetProfile returns the profile for id, or nil when none exists.
func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, id); err != nil {
			s.logger.Warn("profile cache get", slog.Any("error", err))
		} else if cached != nil {
			return cached, nil
		}
	}
	v, err, _ := s.group.Do(id.String(), func() (any, error) {
		p, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, p); err != nil {
				s.logger.Warn("profile cache set", slog.Any("error", err))
			}
		}
		return &p, nil
	})
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("users: get profile: %w", err)
	}
	p := *v.(*Profile)
	return &p, nil
}

// CreateProfile inserts the profile created alongside a new account.
func (s *Service) CreateProfile(ctx context.Context, id uuid.UUID, email, name string, role authz.Role) (Profile, error) {
	if !role.Valid() {
		role = authz.RoleWriter
	}
	return s.repo.Create(ctx, Profile{ID: id, Email: strings.ToLower(email), Name: strings.TrimSpace(name), Role: role, IsActive: true})
}

// DeleteProfile removes a profile; used when sign-up fails half way.
func (s *Service) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	s.invalidate(ctx, id)
	return s.repo.Delete(ctx, id)
}

// UpdateProfile validates and writes the self-editable fields.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (Profile, error) {
	upd.Name = strings.TrimSpace(upd.Name)
	upd.Department = strings.TrimSpace(upd.Department)
	upd.Position = strings.TrimSpace(upd.Position)
	upd.Phone = strings.TrimSpace(upd.Phone)
	if err := s.ValidateUpdate(upd); err != nil {
		return Profile{}, err
	}
	p, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		return Profile{}, err
	}
	s.invalidate(ctx, id)
	return p, nil
}

// ValidateUpdate checks upd against the profile field rules.
func (s *Service) ValidateUpdate(upd ProfileUpdate) error {
	return s.validate.Struct(upd)
}

// ListUsers returns profiles matching filter.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) ([]Profile, int, error) {
	return s.repo.List(ctx, filter)
}

// ListByRole returns active and inactive users holding role.
func (s *Service) ListByRole(ctx context.Context, role authz.Role) ([]Profile, error) {
	out, _, err := s.repo.List(ctx, ListFilter{Role: role})
	return out, err
}

// ListActive returns every active user.
func (s *Service) ListActive(ctx context.Context) ([]Profile, error) {
	active := true
	out, _, err := s.repo.List(ctx, ListFilter{IsActive: &active})
	return out, err
}

// SetRole changes the role of target on behalf of actor.
func (s *Service) SetRole(ctx context.Context, actor, target uuid.UUID, role authz.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", shared.ErrValidation, role)
	}
	if actor == target && role != authz.RoleAdmin {
		return ErrLastAdmin
	}
	if err := s.repo.SetRole(ctx, target, role); err != nil {
		return err
	}
	s.invalidate(ctx, target)
	return nil
}

// SetActive activates or deactivates target on behalf of actor.
func (s *Service) SetActive(ctx context.Context, actor, target uuid.UUID, active bool) error {
	if actor == target && !active {
		return ErrLastAdmin
	}
	if err := s.repo.SetActive(ctx, target, active); err != nil {
		return err
	}
	s.invalidate(ctx, target)
	return nil
}

// TouchLastLogin stamps a successful sign-in.
func (s *Service) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := s.repo.TouchLastLogin(ctx, id, at); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("profile cache invalidate", slog.Any("error", err))
	}
}
