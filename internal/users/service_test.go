package users

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]Profile
	gets     int
}

func newMemoryRepo(profiles ...Profile) *memoryRepo {
	repo := &memoryRepo{profiles: make(map[uuid.UUID]Profile)}
	for _, p := range profiles {
		repo.profiles[p.ID] = p
	}
	return repo
}

func (m *memoryRepo) Get(ctx context.Context, id uuid.UUID) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	p, ok := m.profiles[id]
	if !ok {
		return Profile{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) Create(ctx context.Context, p Profile) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
	return p, nil
}

func (m *memoryRepo) Update(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return Profile{}, shared.ErrNotFound
	}
	p.Name, p.Department, p.Position, p.Phone = upd.Name, upd.Department, upd.Position, upd.Phone
	m.profiles[id] = p
	return p, nil
}

func (m *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Profile, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Profile
	for _, p := range m.profiles {
		if filter.Role != "" && p.Role != filter.Role {
			continue
		}
		if filter.IsActive != nil && p.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memoryRepo) SetRole(ctx context.Context, id uuid.UUID, role authz.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.Role = role
	m.profiles[id] = p
	return nil
}

func (m *memoryRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.IsActive = active
	m.profiles[id] = p
	return nil
}

func (m *memoryRepo) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profiles[id]
	p.LastLoginAt = &at
	m.profiles[id] = p
	return nil
}

func (m *memoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.profiles, id)
	return nil
}

func newCachedService(t *testing.T, repo RepositoryPort) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewService(repo, NewRedisCache(client, time.Minute), nil)
}

func TestGetProfileMissingReturnsNil(t *testing.T) {
	svc := newCachedService(t, newMemoryRepo())
	p, err := svc.GetProfile(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestGetProfileUsesCache(t *testing.T) {
	id := uuid.New()
	repo := newMemoryRepo(Profile{ID: id, Name: "Mia", Role: authz.RoleManager, IsActive: true})
	svc := newCachedService(t, repo)

	for i := 0; i < 3; i++ {
		p, err := svc.GetProfile(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, authz.RoleManager, p.Role)
	}
	assert.Equal(t, 1, repo.gets)
}

func TestSetRoleInvalidatesCache(t *testing.T) {
	admin, target := uuid.New(), uuid.New()
	repo := newMemoryRepo(Profile{ID: target, Role: authz.RoleWriter, IsActive: true})
	svc := newCachedService(t, repo)
	ctx := context.Background()

	_, err := svc.GetProfile(ctx, target)
	require.NoError(t, err)
	require.NoError(t, svc.SetRole(ctx, admin, target, authz.RoleReviewer))

	p, err := svc.GetProfile(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, authz.RoleReviewer, p.Role)
}

func TestSetRoleRejectsUnknownRoleAndSelfDemotion(t *testing.T) {
	admin := uuid.New()
	svc := NewService(newMemoryRepo(Profile{ID: admin, Role: authz.RoleAdmin}), nil, nil)

	err := svc.SetRole(context.Background(), admin, admin, authz.Role("owner"))
	assert.ErrorIs(t, err, shared.ErrValidation)

	err = svc.SetRole(context.Background(), admin, admin, authz.RoleWriter)
	assert.ErrorIs(t, err, ErrLastAdmin)

	err = svc.SetActive(context.Background(), admin, admin, false)
	assert.ErrorIs(t, err, ErrLastAdmin)
}

func TestCreateProfileDefaultsToWriter(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	p, err := svc.CreateProfile(context.Background(), uuid.New(), "New@Example.com", " Nia ", "")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleWriter, p.Role)
	assert.True(t, p.IsActive)
	assert.Equal(t, "new@example.com", p.Email)
	assert.Equal(t, "Nia", p.Name)
}

func TestUpdateProfileValidation(t *testing.T) {
	id := uuid.New()
	svc := NewService(newMemoryRepo(Profile{ID: id, Name: "Old"}), nil, nil)

	_, err := svc.UpdateProfile(context.Background(), id, ProfileUpdate{Name: "A", Phone: "abc"})
	require.Error(t, err)
	errs := shared.FieldErrors(err)
	assert.Contains(t, errs, "name")
	assert.Contains(t, errs, "phone")

	p, err := svc.UpdateProfile(context.Background(), id, ProfileUpdate{Name: "  Ana Lee ", Department: "Sales", Phone: "+1 (555) 010-2000"})
	require.NoError(t, err)
	assert.Equal(t, "Ana Lee", p.Name)
	assert.Equal(t, "Sales", p.Department)
}

func TestListHelpers(t *testing.T) {
	repo := newMemoryRepo(
		Profile{ID: uuid.New(), Role: authz.RoleWriter, IsActive: true},
		Profile{ID: uuid.New(), Role: authz.RoleWriter, IsActive: false},
		Profile{ID: uuid.New(), Role: authz.RoleReviewer, IsActive: true},
	)
	svc := NewService(repo, nil, nil)

	writers, err := svc.ListByRole(context.Background(), authz.RoleWriter)
	require.NoError(t, err)
	assert.Len(t, writers, 2)

	active, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 2)
}
