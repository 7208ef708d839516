package rfps

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/rfp/clients"
	"github.com/rfpdesk/rfpdesk/internal/rfp/comments"
	"github.com/rfpdesk/rfpdesk/internal/rfp/requirements"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

type memoryRepo struct {
	items map[uuid.UUID]RFP
}

func newMemoryRepo() *memoryRepo { return &memoryRepo{items: map[uuid.UUID]RFP{}} }

func (m *memoryRepo) List(_ context.Context, _ shared.ListFilters, f ListFilters) ([]RFP, int, error) {
	var out []RFP
	for _, item := range m.items {
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, item.Status) {
			continue
		}
		out = append(out, item)
	}
	return out, len(out), nil
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *memoryRepo) Get(_ context.Context, id uuid.UUID) (RFP, error) {
	item, ok := m.items[id]
	if !ok {
		return RFP{}, internalShared.ErrNotFound
	}
	return item, nil
}

func (m *memoryRepo) Create(_ context.Context, in Input) (RFP, error) {
	item := RFP{
		ID: uuid.New(), Title: in.Title, ClientID: in.ClientID, ReceivedDate: in.ReceivedDate, DueDate: in.DueDate,
		EstimatedBudget: in.EstimatedBudget, EstimatedDuration: in.EstimatedDuration, Description: in.Description,
		AssigneeID: in.AssigneeID, Status: StatusReceived,
	}
	m.items[item.ID] = item
	return item, nil
}

func (m *memoryRepo) Update(_ context.Context, id uuid.UUID, in Input) (RFP, error) {
	item, ok := m.items[id]
	if !ok {
		return RFP{}, internalShared.ErrNotFound
	}
	item.Title = in.Title
	item.DueDate = in.DueDate
	m.items[id] = item
	return item, nil
}

func (m *memoryRepo) SetStatus(_ context.Context, id uuid.UUID, status Status, analyzedAt *time.Time) (RFP, error) {
	item, ok := m.items[id]
	if !ok {
		return RFP{}, internalShared.ErrNotFound
	}
	item.Status = status
	if analyzedAt != nil {
		item.AnalyzedAt = analyzedAt
	}
	m.items[id] = item
	return item, nil
}

func (m *memoryRepo) SetAnalysis(_ context.Context, id uuid.UUID, doc json.RawMessage) error {
	item, ok := m.items[id]
	if !ok {
		return internalShared.ErrNotFound
	}
	item.AIAnalysis = doc
	m.items[id] = item
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return internalShared.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

type stubClients struct{ err error }

func (s stubClients) Get(_ context.Context, id uuid.UUID) (clients.Detail, error) {
	return clients.Detail{Client: clients.Client{ID: id, Name: "Acme"}}, s.err
}

type stubRequirements struct{}

func (stubRequirements) ListByRFP(_ context.Context, rfpID uuid.UUID, _ requirements.Filter) ([]requirements.Requirement, error) {
	return []requirements.Requirement{{ID: uuid.New(), RFPID: rfpID, Title: "SSO"}}, nil
}

type stubComments struct{}

func (stubComments) Threads(_ context.Context, _ comments.TargetType, id uuid.UUID) ([]comments.Thread, error) {
	return []comments.Thread{{Comment: comments.Comment{ID: uuid.New(), TargetID: id, Content: "Looks good"}}}, nil
}

type recordingAudit struct{ actions []string }

func (a *recordingAudit) Record(_ context.Context, l internalShared.AuditLog) error {
	a.actions = append(a.actions, l.Action)
	return nil
}

type historyAudit struct {
	recordingAudit
	err error
}

func (a *historyAudit) History(_ context.Context, entity, entityID string, _ int) ([]internalShared.AuditLog, error) {
	if a.err != nil {
		return nil, a.err
	}
	return []internalShared.AuditLog{{Action: "rfp.create", Entity: entity, EntityID: entityID}}, nil
}

func actor(role authz.Role) identity.Identity {
	return identity.Identity{ID: uuid.New(), Role: role}
}

func validForm() RFPForm {
	return RFPForm{
		Title:             " Citizen portal rebuild ",
		ClientID:          uuid.NewString(),
		ReceivedDate:      "2026-03-01",
		DueDate:           "2026-03-20",
		EstimatedBudget:   "150000000",
		EstimatedDuration: "6",
		Description:       "Rebuild the portal",
	}
}

func newService(repo Repository, audit shared.Auditor) *Service {
	return NewService(repo, stubClients{}, stubRequirements{}, stubComments{}, audit, nil)
}

func TestCreateRFP(t *testing.T) {
	repo, audit := newMemoryRepo(), &recordingAudit{}
	svc := newService(repo, audit)

	item, err := svc.Create(context.Background(), actor(authz.RoleManager), validForm())
	require.NoError(t, err)
	assert.Equal(t, "Citizen portal rebuild", item.Title)
	assert.Equal(t, StatusReceived, item.Status)
	require.NotNil(t, item.EstimatedBudget)
	assert.InDelta(t, 150000000.0, *item.EstimatedBudget, 0.001)
	require.NotNil(t, item.EstimatedDuration)
	assert.Equal(t, 6, *item.EstimatedDuration)
	assert.Nil(t, item.AssigneeID)
	assert.Equal(t, []string{"rfp.created"}, audit.actions)
}

func TestCreateRFPValidation(t *testing.T) {
	svc := newService(newMemoryRepo(), nil)

	form := validForm()
	form.ClientID = "acme"
	form.ReceivedDate = "03/01/2026"
	_, err := svc.Create(context.Background(), actor(authz.RoleAdmin), form)
	require.ErrorIs(t, err, internalShared.ErrValidation)
	fields := internalShared.FieldErrors(err)
	assert.Contains(t, fields, "client_id")
	assert.Contains(t, fields, "received_date")

	form = validForm()
	form.DueDate = form.ReceivedDate
	_, err = svc.Create(context.Background(), actor(authz.RoleAdmin), form)
	require.ErrorIs(t, err, internalShared.ErrValidation)
	assert.Contains(t, err.Error(), "due date must be after")

	form = validForm()
	form.EstimatedDuration = "0"
	_, err = svc.Create(context.Background(), actor(authz.RoleAdmin), form)
	assert.ErrorIs(t, err, internalShared.ErrValidation)
}

func TestRFPWritesRequirePermissions(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, actor(authz.RoleWriter), validForm())
	assert.ErrorIs(t, err, internalShared.ErrForbidden)
	_, err = svc.Create(ctx, actor(authz.RoleReviewer), validForm())
	assert.ErrorIs(t, err, internalShared.ErrForbidden)

	item, err := svc.Create(ctx, actor(authz.RoleManager), validForm())
	require.NoError(t, err)
	_, err = svc.Update(ctx, actor(authz.RoleWriter), item.ID, validForm())
	assert.ErrorIs(t, err, internalShared.ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, actor(authz.RoleWriter), item.ID), internalShared.ErrForbidden)
	assert.NoError(t, svc.Delete(ctx, actor(authz.RoleManager), item.ID))
}

func TestChangeStatusStampsAnalysis(t *testing.T) {
	repo, audit := newMemoryRepo(), &recordingAudit{}
	svc := newService(repo, audit)
	fixed := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	item, err := svc.Create(ctx, actor(authz.RoleManager), validForm())
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, actor(authz.RoleWriter), item.ID, StatusAnalyzed)
	assert.ErrorIs(t, err, internalShared.ErrForbidden)
	_, err = svc.ChangeStatus(ctx, actor(authz.RoleManager), item.ID, Status("archived"))
	assert.ErrorIs(t, err, internalShared.ErrValidation)

	updated, err := svc.ChangeStatus(ctx, actor(authz.RoleManager), item.ID, StatusAnalyzed)
	require.NoError(t, err)
	assert.Equal(t, StatusAnalyzed, updated.Status)
	require.NotNil(t, updated.AnalyzedAt)
	assert.Equal(t, fixed, *updated.AnalyzedAt)
	assert.Contains(t, audit.actions, "rfp.status_changed")
}

func TestSaveAnalysisRequiresJSON(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo, nil)
	ctx := context.Background()
	item, err := svc.Create(ctx, actor(authz.RoleAdmin), validForm())
	require.NoError(t, err)

	assert.ErrorIs(t, svc.SaveAnalysis(ctx, actor(authz.RoleAdmin), item.ID, "{not json"), internalShared.ErrValidation)
	assert.ErrorIs(t, svc.SaveAnalysis(ctx, actor(authz.RoleReviewer), item.ID, `{}`), internalShared.ErrForbidden)
	require.NoError(t, svc.SaveAnalysis(ctx, actor(authz.RoleManager), item.ID, `{"risk":"low"}`))
	assert.JSONEq(t, `{"risk":"low"}`, string(repo.items[item.ID].AIAnalysis))
}

func TestDetailLoadsRelatedRecords(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo, nil)
	ctx := context.Background()
	item, err := svc.Create(ctx, actor(authz.RoleAdmin), validForm())
	require.NoError(t, err)

	detail, err := svc.Detail(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", detail.Client.Name)
	assert.Len(t, detail.Requirements, 1)
	assert.Len(t, detail.Comments, 1)

	failing := NewService(repo, stubClients{err: errors.New("db down")}, stubRequirements{}, stubComments{}, nil, nil)
	_, err = failing.Detail(ctx, item.ID)
	assert.ErrorContains(t, err, "load client")

	_, err = svc.Detail(ctx, uuid.New())
	assert.ErrorIs(t, err, internalShared.ErrNotFound)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc := newService(newMemoryRepo(), nil)
	_, _, err := svc.List(context.Background(), shared.ListFilters{}, ListFilters{Statuses: []Status{"lost"}})
	assert.ErrorIs(t, err, internalShared.ErrValidation)
}

func TestOverdue(t *testing.T) {
	due := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	item := RFP{DueDate: due, Status: StatusAnalyzing}
	assert.False(t, item.Overdue(due.Add(12*time.Hour)))
	assert.True(t, item.Overdue(due.AddDate(0, 0, 2)))
	item.Status = StatusAnalyzed
	assert.False(t, item.Overdue(due.AddDate(0, 0, 2)))
}

func TestDetailIncludesActivityWhenAuditReadable(t *testing.T) {
	repo := newMemoryRepo()
	audit := &historyAudit{}
	svc := newService(repo, audit)
	ctx := context.Background()
	item, err := svc.Create(ctx, actor(authz.RoleAdmin), validForm())
	require.NoError(t, err)

	detail, err := svc.Detail(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, detail.Activity, 1)
	assert.Equal(t, item.ID.String(), detail.Activity[0].EntityID)

	audit.err = errors.New("audit table locked")
	detail, err = svc.Detail(ctx, item.ID)
	require.NoError(t, err, "activity is best effort")
	assert.Empty(t, detail.Activity)
}
