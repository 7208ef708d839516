package requirements

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

type memoryRepo struct {
	items map[uuid.UUID]Requirement
}

func newMemoryRepo() *memoryRepo { return &memoryRepo{items: map[uuid.UUID]Requirement{}} }

func (m *memoryRepo) ListByRFP(_ context.Context, rfpID uuid.UUID, filter Filter) ([]Requirement, error) {
	var out []Requirement
	for _, it := range m.items {
		if it.RFPID != rfpID {
			continue
		}
		if filter.Category != "" && it.Category != filter.Category {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *memoryRepo) Get(_ context.Context, id uuid.UUID) (Requirement, error) {
	it, ok := m.items[id]
	if !ok {
		return Requirement{}, internalShared.ErrNotFound
	}
	return it, nil
}

func (m *memoryRepo) Create(_ context.Context, rfpID uuid.UUID, in Input) (Requirement, error) {
	next := 0
	for _, it := range m.items {
		if it.RFPID == rfpID && it.Order >= next {
			next = it.Order + 1
		}
	}
	it := Requirement{ID: uuid.New(), RFPID: rfpID, Category: in.Category, Priority: in.Priority, Title: in.Title, EstimatedHours: in.EstimatedHours, Order: next}
	m.items[it.ID] = it
	return it, nil
}

func (m *memoryRepo) Update(_ context.Context, id uuid.UUID, in Input) (Requirement, error) {
	it := m.items[id]
	it.Title = in.Title
	it.Priority = in.Priority
	m.items[id] = it
	return it, nil
}

func (m *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *memoryRepo) Reorder(_ context.Context, rfpID uuid.UUID, ids []uuid.UUID) error {
	for i, id := range ids {
		it, ok := m.items[id]
		if !ok || it.RFPID != rfpID {
			return internalShared.ErrValidation
		}
		it.Order = i
		m.items[id] = it
	}
	return nil
}

var editor = identity.Identity{ID: uuid.New(), Role: authz.RoleManager}

func form(title string) RequirementForm {
	return RequirementForm{Category: "functional", Priority: "must", Title: title, Description: "Users can sign in", EstimatedHours: "12.5"}
}

func TestCreateAppendsInOrder(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	rfpID := uuid.New()

	first, err := svc.Create(context.Background(), editor, rfpID, form("Login"))
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), editor, rfpID, form("Logout"))
	require.NoError(t, err)

	assert.Equal(t, 0, first.Order)
	assert.Equal(t, 1, second.Order)
	require.NotNil(t, first.EstimatedHours)
	assert.InDelta(t, 12.5, *first.EstimatedHours, 0.001)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	bad := form("")
	bad.Priority = "urgent"
	bad.Complexity = "extreme"

	_, err := svc.Create(context.Background(), editor, uuid.New(), bad)
	require.ErrorIs(t, err, internalShared.ErrValidation)
	fields := internalShared.FieldErrors(err)
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "priority")
	assert.Contains(t, fields, "complexity")
}

func TestWritersCannotEditRequirements(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	writer := identity.Identity{ID: uuid.New(), Role: authz.RoleWriter}
	_, err := svc.Create(context.Background(), writer, uuid.New(), form("Login"))
	assert.ErrorIs(t, err, internalShared.ErrForbidden)
}

func TestRequirementMustBelongToRFP(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	item, err := svc.Create(context.Background(), editor, uuid.New(), form("Login"))
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), editor, uuid.New(), item.ID, form("Renamed"))
	assert.ErrorIs(t, err, internalShared.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), editor, uuid.New(), item.ID), internalShared.ErrNotFound)
}

func TestReorder(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	rfpID := uuid.New()
	a, _ := svc.Create(context.Background(), editor, rfpID, form("A"))
	b, _ := svc.Create(context.Background(), editor, rfpID, form("B"))

	require.NoError(t, svc.Reorder(context.Background(), editor, rfpID, []uuid.UUID{b.ID, a.ID}))
	list, err := svc.ListByRFP(context.Background(), rfpID, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, []string{list[0].Title, list[1].Title})

	assert.ErrorIs(t, svc.Reorder(context.Background(), editor, rfpID, []uuid.UUID{a.ID, a.ID}), internalShared.ErrValidation)
	assert.ErrorIs(t, svc.Reorder(context.Background(), editor, rfpID, nil), internalShared.ErrValidation)
}
