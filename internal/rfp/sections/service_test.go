package sections

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
	items map[uuid.UUID]Section
}

func newMemoryRepo() *memoryRepo { return &memoryRepo{items: map[uuid.UUID]Section{}} }

func (m *memoryRepo) ListByProposal(_ context.Context, proposalID uuid.UUID, filter Filter) ([]Section, error) {
	var out []Section
	for _, s := range m.items {
		if s.ProposalID != proposalID || (filter.AIGenerated && !s.IsAIGenerated) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *memoryRepo) GetByType(_ context.Context, proposalID uuid.UUID, t Type) (*Section, error) {
	for _, s := range m.items {
		if s.ProposalID == proposalID && s.Type == t {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *memoryRepo) Get(_ context.Context, id uuid.UUID) (Section, error) {
	s, ok := m.items[id]
	if !ok {
		return Section{}, internalShared.ErrNotFound
	}
	return s, nil
}

func (m *memoryRepo) Create(_ context.Context, proposalID uuid.UUID, in Input, createdBy uuid.UUID) (Section, error) {
	next := 0
	for _, s := range m.items {
		if s.ProposalID == proposalID && s.Order >= next {
			next = s.Order + 1
		}
	}
	s := Section{ID: uuid.New(), ProposalID: proposalID, Type: in.Type, Title: in.Title, Content: in.Content,
		IsAIGenerated: in.IsAIGenerated, AIPrompt: in.AIPrompt, Status: StatusDraft, Order: next, CreatedBy: &createdBy}
	m.items[s.ID] = s
	return s, nil
}

func (m *memoryRepo) Update(_ context.Context, id uuid.UUID, in Input, status Status) (Section, error) {
	s := m.items[id]
	s.Type, s.Title, s.Content, s.Status = in.Type, in.Title, in.Content, status
	m.items[id] = s
	return s, nil
}

func (m *memoryRepo) SetStatus(_ context.Context, id uuid.UUID, from, to Status) (Section, error) {
	s, ok := m.items[id]
	if !ok {
		return Section{}, internalShared.ErrNotFound
	}
	if s.Status != from {
		return Section{}, ErrStaleStatus
	}
	s.Status = to
	m.items[id] = s
	return s, nil
}

func (m *memoryRepo) Reorder(_ context.Context, _ uuid.UUID, ids []uuid.UUID) error {
	for i, id := range ids {
		s := m.items[id]
		s.Order = i
		m.items[id] = s
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

// gate allows changes to open proposals only.
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

func TestCreateSection(t *testing.T) {
	svc, _, proposalID, _ := newService(t)
	ctx := context.Background()

	s, err := svc.Create(ctx, writer, proposalID, SectionForm{Type: string(TypePricing), Content: "## Fees\n\n"})
	require.NoError(t, err)
	assert.Equal(t, "Pricing", s.Title, "title defaults to the type label")
	assert.Equal(t, "## Fees", s.Content)
	assert.Equal(t, StatusDraft, s.Status)

	_, err = svc.Create(ctx, writer, proposalID, SectionForm{Type: string(TypePricing)})
	assert.ErrorIs(t, err, internalShared.ErrConflict, "one section per type")

	_, err = svc.Create(ctx, writer, proposalID, SectionForm{Type: "cover-letter"})
	assert.ErrorIs(t, err, internalShared.ErrValidation)

	_, err = svc.Create(ctx, reviewer, proposalID, SectionForm{Type: string(TypeTeam)})
	assert.ErrorIs(t, err, internalShared.ErrForbidden)

	_, err = svc.Create(ctx, writer, uuid.New(), SectionForm{Type: string(TypeTeam)})
	assert.ErrorIs(t, err, internalShared.ErrNotFound)
}

func TestClosedProposalRejectsSectionChanges(t *testing.T) {
	svc, _, proposalID, g := newService(t)
	ctx := context.Background()
	s, err := svc.Create(ctx, writer, proposalID, SectionForm{Type: string(TypeTimeline)})
	require.NoError(t, err)

	g[proposalID] = false
	_, err = svc.Update(ctx, writer, proposalID, s.ID, SectionForm{Type: string(TypeTimeline), Content: "Q3"})
	assert.ErrorIs(t, err, internalShared.ErrConflict)
	assert.ErrorIs(t, svc.Delete(ctx, writer, proposalID, s.ID), internalShared.ErrConflict)
}

func TestSectionReviewFlow(t *testing.T) {
	svc, _, proposalID, _ := newService(t)
	ctx := context.Background()
	s, err := svc.Create(ctx, writer, proposalID, SectionForm{Type: string(TypeTechnicalApproach), Content: "Go services"})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, reviewer, proposalID, s.ID)
	assert.ErrorIs(t, err, internalShared.ErrValidation, "drafts are not approvable")

	s, err = svc.RequestReview(ctx, writer, proposalID, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReview, s.Status)

	_, err = svc.Approve(ctx, writer, proposalID, s.ID)
	assert.ErrorIs(t, err, internalShared.ErrForbidden)

	s, err = svc.Approve(ctx, reviewer, proposalID, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, s.Status)

	s, err = svc.Update(ctx, writer, proposalID, s.ID, SectionForm{Type: string(TypeTechnicalApproach), Content: "Go services"})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, s.Status, "unchanged content keeps approval")

	s, err = svc.Update(ctx, writer, proposalID, s.ID, SectionForm{Type: string(TypeTechnicalApproach), Content: "Rewritten"})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, s.Status)
}

func TestGetByTypeAndAIGenerated(t *testing.T) {
	svc, _, proposalID, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, writer, proposalID, SectionForm{Type: string(TypeTeam)})
	require.NoError(t, err)
	ai, err := svc.Create(ctx, writer, proposalID, SectionForm{Type: string(TypeRequirementAnalysis), IsAIGenerated: true, AIPrompt: "summarise"})
	require.NoError(t, err)

	got, err := svc.GetByType(ctx, proposalID, TypeRequirementAnalysis)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ai.ID, got.ID)

	missing, err := svc.GetByType(ctx, proposalID, TypeAppendix)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = svc.GetByType(ctx, proposalID, Type("bogus"))
	assert.ErrorIs(t, err, internalShared.ErrValidation)

	list, err := svc.ListAIGenerated(ctx, proposalID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ai.ID, list[0].ID)
}

func TestMoveSection(t *testing.T) {
	svc, _, proposalID, _ := newService(t)
	ctx := context.Background()
	var ids []uuid.UUID
	for _, typ := range []Type{TypeExecutiveSummary, TypeTimeline, TypePricing} {
		s, err := svc.Create(ctx, writer, proposalID, SectionForm{Type: string(typ)})
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	require.NoError(t, svc.Move(ctx, writer, proposalID, ids[2], 0))
	list, err := svc.ListByProposal(ctx, proposalID)
	require.NoError(t, err)
	assert.Equal(t, []Type{TypePricing, TypeExecutiveSummary, TypeTimeline}, []Type{list[0].Type, list[1].Type, list[2].Type})

	pos, err := svc.Position(ctx, proposalID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	assert.ErrorIs(t, svc.Move(ctx, writer, proposalID, uuid.New(), 0), internalShared.ErrNotFound)
	assert.ErrorIs(t, svc.Move(ctx, reviewer, proposalID, ids[0], 1), internalShared.ErrForbidden)
}

func TestSectionBelongsToProposal(t *testing.T) {
	svc, _, proposalID, g := newService(t)
	ctx := context.Background()
	s, err := svc.Create(ctx, writer, proposalID, SectionForm{Type: string(TypeAppendix)})
	require.NoError(t, err)

	other := uuid.New()
	g[other] = true
	_, err = svc.Get(ctx, other, s.ID)
	assert.ErrorIs(t, err, internalShared.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, writer, other, s.ID), internalShared.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, writer, proposalID, s.ID))
}
