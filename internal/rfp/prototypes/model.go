package prototypes

import (
	"time"

	"github.com/google/uuid"
)

// Type is the fidelity of a prototype.
type Type string

const (
	TypeWireframe   Type = "wireframe"
	TypeMockup      Type = "mockup"
	TypeInteractive Type = "interactive"
)

// Types lists every prototype type from lowest fidelity.
func Types() []Type {
	return []Type{TypeWireframe, TypeMockup, TypeInteractive}
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeWireframe, TypeMockup, TypeInteractive:
		return true
	}
	return false
}

// Status is the prototype lifecycle state. Generating is set while the
// analysis pipeline is still producing the prototype.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusDraft      Status = "draft"
	StatusReviewing  Status = "reviewing"
	StatusApproved   Status = "approved"
)

// Statuses lists every status in workflow order.
func Statuses() []Status {
	return []Status{StatusGenerating, StatusDraft, StatusReviewing, StatusApproved}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// transitions lists the states reachable from each state. Approval has its
// own operation and permission.
var transitions = map[Status][]Status{
	StatusGenerating: {StatusDraft},
	StatusDraft:      {StatusReviewing},
	StatusReviewing:  {StatusDraft, StatusApproved},
	StatusApproved:   {StatusReviewing},
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

// Next returns the states reachable from s without approval rights.
func Next(s Status) []Status {
	var out []Status
	for _, to := range transitions[s] {
		if to != StatusApproved {
			out = append(out, to)
		}
	}
	return out
}

// Prototype is a UI design attached to a proposal. HTMLCode is shown as
// source, never rendered into the page.
type Prototype struct {
	ID            uuid.UUID  `json:"id"`
	ProposalID    uuid.UUID  `json:"proposal_id"`
	ProposalTitle string     `json:"proposal_title"`
	Name          string     `json:"name"`
	Type          Type       `json:"type"`
	Order         int        `json:"order"`
	Status        Status     `json:"status"`
	Description   string     `json:"description,omitempty"`
	ImageURL      string     `json:"image_url,omitempty"`
	FigmaURL      string     `json:"figma_url,omitempty"`
	HTMLCode      string     `json:"html_code,omitempty"`
	IsAIGenerated bool       `json:"is_ai_generated"`
	AIPrompt      string     `json:"ai_prompt,omitempty"`
	GeneratedFrom string     `json:"generated_from,omitempty"`
	CreatedBy     *uuid.UUID `json:"created_by,omitempty"`
	CreatorName   string     `json:"creator_name,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// PrototypeForm is the create and edit form.
type PrototypeForm struct {
	Name          string `form:"name" validate:"required,max=200"`
	Type          string `form:"type" validate:"required,oneof=wireframe mockup interactive"`
	Description   string `form:"description" validate:"max=5000"`
	ImageURL      string `form:"image_url" validate:"omitempty,http_url,max=2000"`
	FigmaURL      string `form:"figma_url" validate:"omitempty,http_url,max=2000"`
	HTMLCode      string `form:"html_code" validate:"max=200000"`
	IsAIGenerated bool   `form:"is_ai_generated"`
	AIPrompt      string `form:"ai_prompt" validate:"max=10000"`
	GeneratedFrom string `form:"generated_from" validate:"max=300"`
}

// Input is a validated PrototypeForm.
type Input struct {
	Name          string
	Type          Type
	Description   string
	ImageURL      string
	FigmaURL      string
	HTMLCode      string
	IsAIGenerated bool
	AIPrompt      string
	GeneratedFrom string
}

// Filter narrows prototype lists.
type Filter struct {
	Type        Type
	Status      Status
	AIGenerated bool
}

// FormFrom copies p into a form for editing.
func FormFrom(p Prototype) PrototypeForm {
	return PrototypeForm{
		Name:          p.Name,
		Type:          string(p.Type),
		Description:   p.Description,
		ImageURL:      p.ImageURL,
		FigmaURL:      p.FigmaURL,
		HTMLCode:      p.HTMLCode,
		IsAIGenerated: p.IsAIGenerated,
		AIPrompt:      p.AIPrompt,
		GeneratedFrom: p.GeneratedFrom,
	}
}
