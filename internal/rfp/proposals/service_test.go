package proposals

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

type memoryRepo struct {
	items     map[uuid.UUID]Proposal
	reviewers map[uuid.UUID][]Reviewer
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: map[uuid.UUID]Proposal{}, reviewers: map[uuid.UUID][]Reviewer{}}
}

func (m *memoryRepo) List(_ context.Context, _ shared.ListFilters, statuses []Status) ([]Proposal, int, error) {
	var out []Proposal
	for _, p := range m.items {
		if len(statuses) == 0 || p.Status == statuses[0] {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, id uuid.UUID) (Proposal, error) {
	p, ok := m.items[id]
	if !ok {
		return Proposal{}, internalShared.ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) Create(_ context.Context, in Input, createdBy uuid.UUID) (Proposal, error) {
	for _, p := range m.items {
		if p.RFPID == in.RFPID {
			return Proposal{}, internalShared.ErrConflict
		}
	}
	p := Proposal{ID: uuid.New(), RFPID: in.RFPID, Title: in.Title, Version: in.Version, AssigneeID: in.AssigneeID,
		WinProbability: in.WinProbability, Status: StatusDrafting, CreatedBy: &createdBy}
	m.items[p.ID] = p
	return p, nil
}

func (m *memoryRepo) Update(_ context.Context, id uuid.UUID, in Input) (Proposal, error) {
	p := m.items[id]
	p.Title = in.Title
	p.AssigneeID = in.AssigneeID
	m.items[id] = p
	return p, nil
}

func (m *memoryRepo) SetStatus(_ context.Context, id uuid.UUID, from, to Status, st Stamps) (Proposal, error) {
	p, ok := m.items[id]
	if !ok {
		return Proposal{}, internalShared.ErrNotFound
	}
	if p.Status != from {
		return Proposal{}, ErrStaleStatus
	}
	p.Status = to
	if st.DeliveredAt != nil {
		p.DeliveredAt = st.DeliveredAt
	}
	if st.ResultDate != nil {
		p.ResultDate = st.ResultDate
	}
	if st.ApprovedBy != nil {
		p.ApprovedBy, p.ApprovedAt = st.ApprovedBy, st.ApprovedAt
	}
	m.items[id] = p
	return p, nil
}

func (m *memoryRepo) Reviewers(_ context.Context, id uuid.UUID) ([]Reviewer, error) {
	return m.reviewers[id], nil
}

func (m *memoryRepo) AddReviewer(_ context.Context, id, reviewerID uuid.UUID) error {
	m.reviewers[id] = append(m.reviewers[id], Reviewer{ProfileID: reviewerID})
	return nil
}

func (m *memoryRepo) RemoveReviewer(_ context.Context, id, reviewerID uuid.UUID) error {
	kept := m.reviewers[id][:0]
	for _, r := range m.reviewers[id] {
		if r.ProfileID != reviewerID {
			kept = append(kept, r)
		}
	}
	m.reviewers[id] = kept
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

type stubRFPs map[uuid.UUID]rfps.RFP

func (s stubRFPs) Get(_ context.Context, id uuid.UUID) (rfps.RFP, error) {
	r, ok := s[id]
	if !ok {
		return rfps.RFP{}, internalShared.ErrNotFound
	}
	return r, nil
}

type stubProfiles map[uuid.UUID]users.Profile

func (s stubProfiles) GetProfile(_ context.Context, id uuid.UUID) (*users.Profile, error) {
	p, ok := s[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type noComments struct{}

func (noComments) Threads(context.Context, comments.TargetType, uuid.UUID) ([]comments.Thread, error) {
	return nil, nil
}

type sentMail struct{ to, subject, text string }

type recordingMailer struct{ sent []sentMail }

func (m *recordingMailer) SendMail(_ context.Context, to, subject, text, _ string) error {
	m.sent = append(m.sent, sentMail{to, subject, text})
	return nil
}

type fixture struct {
	svc      *Service
	repo     *memoryRepo
	mailer   *recordingMailer
	rfpID    uuid.UUID
	profiles stubProfiles
	writer   identity.Identity
	manager  identity.Identity
	reviewer identity.Identity
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemoryRepo(),
		mailer:   &recordingMailer{},
		rfpID:    uuid.New(),
		profiles: stubProfiles{},
		now:      time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	f.writer = f.person(authz.RoleWriter, "Wendy")
	f.manager = f.person(authz.RoleManager, "Min")
	f.reviewer = f.person(authz.RoleReviewer, "Rae")
	f.svc = NewService(Deps{
		Repo:     f.repo,
		RFPs:     stubRFPs{f.rfpID: {ID: f.rfpID, Status: rfps.StatusAnalyzed}},
		Profiles: f.profiles,
		Comments: noComments{},
		Mailer:   f.mailer,
		SiteURL:  "https://rfp.example",
	})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) person(role authz.Role, name string) identity.Identity {
	id := uuid.New()
	f.profiles[id] = users.Profile{ID: id, Name: name, Email: name + "@example.com", Role: role, IsActive: true}
	return identity.Identity{ID: id, Name: name, Role: role}
}

func (f *fixture) form() ProposalForm {
	return ProposalForm{RFPID: f.rfpID.String(), Title: "Portal proposal", AssigneeID: f.writer.ID.String(), WinProbability: "60"}
}

func TestCreateProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, f.writer, f.form())
	require.NoError(t, err)
	assert.Equal(t, StatusDrafting, p.Status)
	assert.Equal(t, "1.0", p.Version)
	require.NotNil(t, p.WinProbability)
	assert.Equal(t, 60, *p.WinProbability)

	_, err = f.svc.Create(ctx, f.manager, f.form())
	assert.ErrorIs(t, err, internalShared.ErrConflict)

	_, err = f.svc.Create(ctx, f.reviewer, f.form())
	assert.ErrorIs(t, err, internalShared.ErrForbidden)
}

func TestCreateProposalValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	form := f.form()
	form.WinProbability = "140"
	_, err := f.svc.Create(ctx, f.writer, form)
	assert.ErrorIs(t, err, internalShared.ErrValidation)

	form = f.form()
	form.StartDate, form.EndDate = "2026-05-01", "2026-04-01"
	_, err = f.svc.Create(ctx, f.writer, form)
	assert.ErrorIs(t, err, internalShared.ErrValidation)

	form = f.form()
	form.RFPID = uuid.NewString()
	_, err = f.svc.Create(ctx, f.writer, form)
	assert.ErrorIs(t, err, internalShared.ErrNotFound)

	form = f.form()
	form.AssigneeID = uuid.NewString()
	_, err = f.svc.Create(ctx, f.writer, form)
	assert.ErrorIs(t, err, internalShared.ErrValidation)
}

func TestProposalWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.writer, f.form())
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, f.reviewer, p.ID)
	assert.ErrorIs(t, err, internalShared.ErrValidation, "drafts cannot be approved")

	p, err = f.svc.ChangeStatus(ctx, f.writer, p.ID, StatusReviewing)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, f.writer, p.ID)
	assert.ErrorIs(t, err, internalShared.ErrForbidden)

	p, err = f.svc.ChangeStatus(ctx, f.reviewer, p.ID, StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, p.Status)
	require.NotNil(t, p.ApprovedBy)
	assert.Equal(t, f.reviewer.ID, *p.ApprovedBy)
	assert.Equal(t, f.now, *p.ApprovedAt)

	_, err = f.svc.Submit(ctx, f.writer, p.ID)
	assert.ErrorIs(t, err, internalShared.ErrForbidden)

	p, err = f.svc.Submit(ctx, f.manager, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, p.Status)
	assert.Equal(t, f.now, *p.DeliveredAt)

	f.now = f.now.AddDate(0, 1, 0)
	p, err = f.svc.ChangeStatus(ctx, f.manager, p.ID, StatusWon)
	require.NoError(t, err)
	assert.Equal(t, f.now, *p.ResultDate)

	_, err = f.svc.Update(ctx, f.manager, p.ID, f.form())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.svc.ChangeStatus(ctx, f.manager, p.ID, StatusLost)
	assert.ErrorIs(t, err, internalShared.ErrValidation)
}

func TestAddReviewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.writer, f.form())
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.AddReviewer(ctx, f.writer, p.ID, f.writer.ID), internalShared.ErrValidation,
		"writers cannot approve")
	assert.ErrorIs(t, f.svc.AddReviewer(ctx, f.reviewer, p.ID, f.reviewer.ID), internalShared.ErrForbidden)

	require.NoError(t, f.svc.AddReviewer(ctx, f.writer, p.ID, f.reviewer.ID))
	detail, err := f.svc.Detail(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, detail.Reviewers, 1)
	assert.Equal(t, f.reviewer.ID, detail.Reviewers[0].ProfileID)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "Rae@example.com", f.mailer.sent[0].to)
	assert.Contains(t, f.mailer.sent[0].text, "https://rfp.example/proposals/"+p.ID.String())

	require.NoError(t, f.svc.RemoveReviewer(ctx, f.writer, p.ID, f.reviewer.ID))
	assert.Empty(t, f.repo.reviewers[p.ID])
}

func TestCanMove(t *testing.T) {
	assert.True(t, CanMove(StatusDrafting, StatusReviewing))
	assert.True(t, CanMove(StatusReviewing, StatusDrafting))
	assert.False(t, CanMove(StatusDrafting, StatusDelivered))
	assert.False(t, CanMove(StatusWon, StatusLost))
	for _, s := range Statuses() {
		assert.True(t, s.Valid())
	}
	assert.False(t, Status("archived").Valid())
}

type stubSections map[uuid.UUID][]sections.Section

func (s stubSections) ListByProposal(_ context.Context, id uuid.UUID) ([]sections.Section, error) {
	return s[id], nil
}

type stubPrototypes map[uuid.UUID][]prototypes.Prototype

func (s stubPrototypes) ListByProposal(_ context.Context, id uuid.UUID) ([]prototypes.Prototype, error) {
	return s[id], nil
}

func TestGateClosesWithResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := NewGate(f.repo)
	p, err := f.svc.Create(ctx, f.writer, f.form())
	require.NoError(t, err)

	require.NoError(t, gate.Editable(ctx, p.ID))
	assert.ErrorIs(t, gate.Editable(ctx, uuid.New()), internalShared.ErrNotFound)

	p.Status = StatusLost
	f.repo.items[p.ID] = p
	err = gate.Editable(ctx, p.ID)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, internalShared.ErrConflict)
}

func TestDetailLoadsParts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.writer, f.form())
	require.NoError(t, err)

	f.svc.sections = stubSections{p.ID: {{Title: "Pricing", Type: sections.TypePricing}}}
	f.svc.prototypes = stubPrototypes{p.ID: {{Name: "Dashboard", Type: prototypes.TypeMockup}}}
	detail, err := f.svc.Detail(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, detail.Sections, 1)
	assert.Equal(t, "Pricing", detail.Sections[0].Title)
	require.Len(t, detail.Prototypes, 1)
	assert.Equal(t, "Dashboard", detail.Prototypes[0].Name)
}
