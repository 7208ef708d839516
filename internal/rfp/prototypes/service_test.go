package prototypes

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

type memoryRepo struct {
	items map[uuid.UUID]Prototype
}

func newMemoryRepo() *memoryRepo { return &memoryRepo{items: map[uuid.UUID]Prototype{}} }

func (m *memoryRepo) matches(p Prototype, filter Filter) bool {
	return (filter.Type == "" || p.Type == filter.Type) &&
		(filter.Status == "" || p.Status == filter.Status) &&
		(!filter.AIGenerated || p.IsAIGenerated)
}

func (m *memoryRepo) List(_ context.Context, page shared.ListFilters, filter Filter) ([]Prototype, int, error) {
	var out []Prototype
	for _, p := range m.items {
		if m.matches(p, filter) && (page.Search == "" || strings.Contains(p.Name, page.Search)) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (m *memoryRepo) ListByProposal(_ context.Context, proposalID uuid.UUID, filter Filter) ([]Prototype, error) {
	var out []Prototype
	for _, p := range m.items {
		if p.ProposalID == proposalID && m.matches(p, filter) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *memoryRepo) Get(_ context.Context, id uuid.UUID) (Prototype, error) {
	p, ok := m.items[id]
	if !ok {
		return Prototype{}, internalShared.ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) Create(_ context.Context, proposalID uuid.UUID, in Input, createdBy uuid.UUID) (Prototype, error) {
	next := 0
	for _, p := range m.items {
		if p.ProposalID == proposalID && p.Order >= next {
			next = p.Order + 1
		}
	}
	p := Prototype{ID: uuid.New(), ProposalID: proposalID, Status: StatusDraft, Order: next, CreatedBy: &createdBy}
	apply(&p, in)
	m.items[p.ID] = p
	return p, nil
}

func (m *memoryRepo) Update(_ context.Context, id uuid.UUID, in Input) (Prototype, error) {
	p, ok := m.items[id]
	if !ok {
		return Prototype{}, internalShared.ErrNotFound
	}
	apply(&p, in)
	m.items[id] = p
	return p, nil
}

func apply(p *Prototype, in Input) {
	p.Name, p.Type, p.Description = in.Name, in.Type, in.Description
	p.ImageURL, p.FigmaURL, p.HTMLCode = in.ImageURL, in.FigmaURL, in.HTMLCode
	p.IsAIGenerated, p.AIPrompt, p.GeneratedFrom = in.IsAIGenerated, in.AIPrompt, in.GeneratedFrom
}

func (m *memoryRepo) SetStatus(_ context.Context, id uuid.UUID, from, to Status) (Prototype, error) {
	p, ok := m.items[id]
	if !ok {
		return Prototype{}, internalShared.ErrNotFound
	}
	if p.Status != from {
		return Prototype{}, ErrStaleStatus
	}
	p.Status = to
	m.items[id] = p
	return p, nil
}

func (m *memoryRepo) Reorder(_ context.Context, _ uuid.UUID, ids []uuid.UUID) error {
	for i, id := range ids {
		p := m.items[id]
		p.Order = i
		m.items[id] = p
	}
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return internalShared.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

type gate map[uuid.UUID]bool

func (g gate) Editable(_ context.Context, id uuid.UUID) error {
	open, ok := g[id]
	switch {
	case !ok:
		return internalShared.ErrNotFound
	case !open:
		return internalShared.ErrConflict
	}
	return nil
}

var (
	admin    = identity.Identity{ID: uuid.New(), Role: authz.RoleAdmin}
	manager  = identity.Identity{ID: uuid.New(), Role: authz.RoleManager}
	writer   = identity.Identity{ID: uuid.New(), Role: authz.RoleWriter}
	reviewer = identity.Identity{ID: uuid.New(), Role: authz.RoleReviewer}
)

func newService(t *testing.T) (*Service, *memoryRepo, uuid.UUID, gate) {
	t.Helper()
	repo := newMemoryRepo()
	proposalID := uuid.New()
	g := gate{proposalID: true}
	return NewService(repo, g, nil, nil), repo, proposalID, g
}

func TestCreatePrototype(t *testing.T) {
	svc, _, proposalID, _ := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, writer, proposalID, PrototypeForm{
		Name: "  Dashboard ", Type: "mockup", FigmaURL: "https://figma.com/file/abc", HTMLCode: "<div></div>\n\n",
	})
	require.NoError(t, err)
	assert.Equal(t, "Dashboard", p.Name)
	assert.Equal(t, TypeMockup, p.Type)
	assert.Equal(t, "<div></div>", p.HTMLCode)
	assert.Equal(t, StatusDraft, p.Status)
	assert.Equal(t, writer.ID, *p.CreatedBy)

	_, err = svc.Create(ctx, writer, proposalID, PrototypeForm{Name: "Bad link", Type: "mockup", ImageURL: "not a url"})
	assert.ErrorIs(t, err, internalShared.ErrValidation)
	assert.Equal(t, "Enter a valid URL", internalShared.FieldErrors(err)["image_url"])

	_, err = svc.Create(ctx, writer, proposalID, PrototypeForm{Name: "Flow", Type: "storyboard"})
	assert.ErrorIs(t, err, internalShared.ErrValidation)

	_, err = svc.Create(ctx, reviewer, proposalID, PrototypeForm{Name: "Flow", Type: "wireframe"})
	assert.ErrorIs(t, err, internalShared.ErrForbidden)

	_, err = svc.Create(ctx, writer, uuid.New(), PrototypeForm{Name: "Flow", Type: "wireframe"})
	assert.ErrorIs(t, err, internalShared.ErrNotFound)
}

func TestPrototypeStatusFlow(t *testing.T) {
	svc, _, proposalID, _ := newService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, writer, proposalID, PrototypeForm{Name: "Checkout", Type: "interactive"})
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, manager, proposalID, p.ID, StatusApproved)
	assert.ErrorIs(t, err, internalShared.ErrValidation, "drafts go to review first")

	p, err = svc.SetStatus(ctx, writer, proposalID, p.ID, StatusReviewing)
	require.NoError(t, err)
	assert.Equal(t, StatusReviewing, p.Status)

	_, err = svc.SetStatus(ctx, writer, proposalID, p.ID, StatusApproved)
	assert.ErrorIs(t, err, internalShared.ErrForbidden, "writers cannot approve")

	_, err = svc.SetStatus(ctx, reviewer, proposalID, p.ID, StatusApproved)
	assert.ErrorIs(t, err, internalShared.ErrForbidden, "reviewers cannot edit prototypes")

	p, err = svc.SetStatus(ctx, manager, proposalID, p.ID, StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, p.Status)

	_, err = svc.SetStatus(ctx, manager, proposalID, p.ID, Status("archived"))
	assert.ErrorIs(t, err, internalShared.ErrValidation)
}

func TestGeneratingPrototypeIsReadOnly(t *testing.T) {
	svc, repo, proposalID, _ := newService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, writer, proposalID, PrototypeForm{Name: "Landing", Type: "wireframe", IsAIGenerated: true})
	require.NoError(t, err)
	p.Status = StatusGenerating
	repo.items[p.ID] = p

	_, err = svc.Update(ctx, writer, proposalID, p.ID, PrototypeForm{Name: "Landing v2", Type: "wireframe"})
	assert.ErrorIs(t, err, internalShared.ErrConflict)

	p, err = svc.SetStatus(ctx, writer, proposalID, p.ID, StatusDraft)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, p.Status)

	p, err = svc.Update(ctx, writer, proposalID, p.ID, PrototypeForm{Name: "Landing v2", Type: "wireframe"})
	require.NoError(t, err)
	assert.Equal(t, "Landing v2", p.Name)
}

func TestClosedProposalRejectsPrototypeChanges(t *testing.T) {
	svc, _, proposalID, g := newService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, writer, proposalID, PrototypeForm{Name: "Search", Type: "mockup"})
	require.NoError(t, err)

	g[proposalID] = false
	_, err = svc.Update(ctx, writer, proposalID, p.ID, PrototypeForm{Name: "Search", Type: "interactive"})
	assert.ErrorIs(t, err, internalShared.ErrConflict)
	assert.ErrorIs(t, svc.Delete(ctx, admin, proposalID, p.ID), internalShared.ErrConflict)
}

func TestListPrototypes(t *testing.T) {
	svc, _, proposalID, g := newService(t)
	ctx := context.Background()
	other := uuid.New()
	g[other] = true
	_, err := svc.Create(ctx, writer, proposalID, PrototypeForm{Name: "A wire", Type: "wireframe"})
	require.NoError(t, err)
	ai, err := svc.Create(ctx, writer, proposalID, PrototypeForm{Name: "B mock", Type: "mockup", IsAIGenerated: true, GeneratedFrom: "requirements"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, writer, other, PrototypeForm{Name: "C mock", Type: "mockup"})
	require.NoError(t, err)

	items, total, err := svc.List(ctx, manager, shared.ListFilters{}, Filter{Type: TypeMockup})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "B mock", items[0].Name)

	_, total, err = svc.List(ctx, manager, shared.ListFilters{}, Filter{Type: "bogus"})
	require.NoError(t, err)
	assert.Equal(t, 3, total, "unknown filters are ignored")

	byType, err := svc.ListByType(ctx, proposalID, TypeWireframe)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "A wire", byType[0].Name)

	generated, err := svc.ListAIGenerated(ctx, proposalID)
	require.NoError(t, err)
	require.Len(t, generated, 1)
	assert.Equal(t, ai.ID, generated[0].ID)

	_, err = svc.ListByType(ctx, proposalID, Type("bogus"))
	assert.ErrorIs(t, err, internalShared.ErrValidation)
}

func TestMoveAndDeletePrototype(t *testing.T) {
	svc, _, proposalID, g := newService(t)
	ctx := context.Background()
	var ids []uuid.UUID
	for _, name := range []string{"one", "two", "three"} {
		p, err := svc.Create(ctx, writer, proposalID, PrototypeForm{Name: name, Type: "wireframe"})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	require.NoError(t, svc.Move(ctx, writer, proposalID, ids[0], 5))
	list, err := svc.ListByProposal(ctx, proposalID)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three", "one"}, []string{list[0].Name, list[1].Name, list[2].Name})
	assert.ErrorIs(t, svc.Move(ctx, reviewer, proposalID, ids[0], 0), internalShared.ErrForbidden)

	assert.ErrorIs(t, svc.Delete(ctx, manager, proposalID, ids[1]), internalShared.ErrForbidden, "only admins delete")
	other := uuid.New()
	g[other] = true
	assert.ErrorIs(t, svc.Delete(ctx, admin, other, ids[1]), internalShared.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, admin, proposalID, ids[1]))

	_, err = svc.Position(ctx, proposalID, ids[1])
	assert.ErrorIs(t, err, internalShared.ErrNotFound)
}
