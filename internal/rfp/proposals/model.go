package proposals

import (
	"time"

	"github.com/google/uuid"
)

// Status is the proposal lifecycle state.
type Status string

const (
	StatusDrafting  Status = "drafting"
	StatusReviewing Status = "reviewing"
	StatusApproved  Status = "approved"
	StatusDelivered Status = "delivered"
	StatusWon       Status = "won"
	StatusLost      Status = "lost"
)

// Statuses lists every status in workflow order.
func Statuses() []Status {
	return []Status{StatusDrafting, StatusReviewing, StatusApproved, StatusDelivered, StatusWon, StatusLost}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Closed reports whether the proposal has a final result.
func (s Status) Closed() bool {
	return s == StatusWon || s == StatusLost
}

// transitions lists the states reachable from each state. Approval and
// delivery have their own operations.
var transitions = map[Status][]Status{
	StatusDrafting:  {StatusReviewing},
	StatusReviewing: {StatusDrafting, StatusApproved},
	StatusApproved:  {StatusReviewing, StatusDelivered},
	StatusDelivered: {StatusWon, StatusLost},
	StatusWon:       nil,
	StatusLost:      nil,
}

// CanMove reports whether from may move to to.
func CanMove(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Proposal is the response prepared for one RFP.
type Proposal struct {
	ID                uuid.UUID  `json:"id"`
	RFPID             uuid.UUID  `json:"rfp_id"`
	RFPTitle          string     `json:"rfp_title"`
	ClientName        string     `json:"client_name"`
	Title             string     `json:"title"`
	Status            Status     `json:"status"`
	Version           string     `json:"version"`
	AssigneeID        uuid.UUID  `json:"assignee_id"`
	AssigneeName      string     `json:"assignee_name"`
	ExecutiveSummary  string     `json:"executive_summary,omitempty"`
	TotalPrice        *float64   `json:"total_price,omitempty"`
	EstimatedDuration *int       `json:"estimated_duration,omitempty"`
	StartDate         *time.Time `json:"start_date,omitempty"`
	EndDate           *time.Time `json:"end_date,omitempty"`
	WinProbability    *int       `json:"win_probability,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	ResultDate        *time.Time `json:"result_date,omitempty"`
	ApprovedBy        *uuid.UUID `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty"`
	CreatedBy         *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Reviewer is a user asked to review a proposal.
type Reviewer struct {
	ProfileID uuid.UUID `json:"profile_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AddedAt   time.Time `json:"added_at"`
}

// ProposalForm is the create and edit form as submitted.
type ProposalForm struct {
	RFPID             string `form:"rfp_id" validate:"required,uuid"`
	Title             string `form:"title" validate:"required,max=300"`
	Version           string `form:"version" validate:"omitempty,max=20"`
	AssigneeID        string `form:"assignee_id" validate:"required,uuid"`
	ExecutiveSummary  string `form:"executive_summary" validate:"max=20000"`
	TotalPrice        string `form:"total_price" validate:"omitempty,numeric"`
	EstimatedDuration string `form:"estimated_duration" validate:"omitempty,number"`
	StartDate         string `form:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate           string `form:"end_date" validate:"omitempty,datetime=2006-01-02"`
	WinProbability    string `form:"win_probability" validate:"omitempty,number"`
}

// Input is a validated ProposalForm.
type Input struct {
	RFPID             uuid.UUID
	Title             string
	Version           string
	AssigneeID        uuid.UUID
	ExecutiveSummary  string
	TotalPrice        *float64
	EstimatedDuration *int
	StartDate         *time.Time
	EndDate           *time.Time
	WinProbability    *int
}

// Stamps are the timestamps written alongside a status change.
type Stamps struct {
	DeliveredAt *time.Time
	ResultDate  *time.Time
	ApprovedBy  *uuid.UUID
	ApprovedAt  *time.Time
}

// FormFrom copies p into a form for editing.
func FormFrom(p Proposal) ProposalForm {
	f := ProposalForm{
		RFPID:            p.RFPID.String(),
		Title:            p.Title,
		Version:          p.Version,
		AssigneeID:       p.AssigneeID.String(),
		ExecutiveSummary: p.ExecutiveSummary,
	}
	if p.TotalPrice != nil {
		f.TotalPrice = formatFloat(*p.TotalPrice)
	}
	if p.EstimatedDuration != nil {
		f.EstimatedDuration = formatInt(*p.EstimatedDuration)
	}
	if p.StartDate != nil {
		f.StartDate = p.StartDate.Format(time.DateOnly)
	}
	if p.EndDate != nil {
		f.EndDate = p.EndDate.Format(time.DateOnly)
	}
	if p.WinProbability != nil {
		f.WinProbability = formatInt(*p.WinProbability)
	}
	return f
}
