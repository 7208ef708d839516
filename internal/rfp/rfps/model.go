package rfps

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the RFP lifecycle state.
type Status string

const (
	StatusReceived  Status = "received"
	StatusAnalyzing Status = "analyzing"
	StatusAnalyzed  Status = "analyzed"
	StatusRejected  Status = "rejected"
)

// Statuses lists every status in workflow order.
func Statuses() []Status {
	return []Status{StatusReceived, StatusAnalyzing, StatusAnalyzed, StatusRejected}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusReceived, StatusAnalyzing, StatusAnalyzed, StatusRejected:
		return true
	}
	return false
}

// RFP is a request for proposal received from a client.
type RFP struct {
	ID                uuid.UUID       `json:"id"`
	Title             string          `json:"title"`
	ClientID          uuid.UUID       `json:"client_id"`
	ClientName        string          `json:"client_name"`
	ReceivedDate      time.Time       `json:"received_date"`
	DueDate           time.Time       `json:"due_date"`
	EstimatedBudget   *float64        `json:"estimated_budget,omitempty"`
	EstimatedDuration *int            `json:"estimated_duration,omitempty"`
	Description       string          `json:"description"`
	Attachments       json.RawMessage `json:"attachments"`
	Status            Status          `json:"status"`
	AIAnalysis        json.RawMessage `json:"ai_analysis,omitempty"`
	AssigneeID        *uuid.UUID      `json:"assignee_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	AnalyzedAt        *time.Time      `json:"analyzed_at,omitempty"`
}

// Overdue reports whether the RFP is past due at now and not yet closed.
func (r RFP) Overdue(now time.Time) bool {
	return r.Status != StatusAnalyzed && r.Status != StatusRejected && now.After(r.DueDate.AddDate(0, 0, 1))
}

// RFPForm is the create and edit form as submitted.
type RFPForm struct {
	Title             string `form:"title" validate:"required,max=300"`
	ClientID          string `form:"client_id" validate:"required,uuid"`
	ReceivedDate      string `form:"received_date" validate:"required,datetime=2006-01-02"`
	DueDate           string `form:"due_date" validate:"required,datetime=2006-01-02"`
	EstimatedBudget   string `form:"estimated_budget" validate:"omitempty,numeric"`
	EstimatedDuration string `form:"estimated_duration" validate:"omitempty,number"`
	Description       string `form:"description" validate:"required,max=20000"`
	AssigneeID        string `form:"assignee_id" validate:"omitempty,uuid"`
}

// Input is a validated RFPForm.
type Input struct {
	Title             string
	ClientID          uuid.UUID
	ReceivedDate      time.Time
	DueDate           time.Time
	EstimatedBudget   *float64
	EstimatedDuration *int
	Description       string
	AssigneeID        *uuid.UUID
}

// ListFilters narrows the RFP list.
type ListFilters struct {
	Statuses   []Status
	ClientID   *uuid.UUID
	AssigneeID *uuid.UUID
	DueFrom    *time.Time
	DueTo      *time.Time
}

// FormFrom copies r into a form for editing.
func FormFrom(r RFP) RFPForm {
	f := RFPForm{
		Title:        r.Title,
		ClientID:     r.ClientID.String(),
		ReceivedDate: r.ReceivedDate.Format(time.DateOnly),
		DueDate:      r.DueDate.Format(time.DateOnly),
		Description:  r.Description,
	}
	if r.EstimatedBudget != nil {
		f.EstimatedBudget = formatFloat(*r.EstimatedBudget)
	}
	if r.EstimatedDuration != nil {
		f.EstimatedDuration = formatInt(*r.EstimatedDuration)
	}
	if r.AssigneeID != nil {
		f.AssigneeID = r.AssigneeID.String()
	}
	return f
}
