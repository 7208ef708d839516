package sections

import (
	"time"

	"github.com/google/uuid"
)

// Type names the part of the proposal document a section fills. A proposal
// has at most one section of each type.
type Type string

const (
	TypeExecutiveSummary    Type = "executive-summary"
	TypeCompanyIntro        Type = "company-intro"
	TypeRequirementAnalysis Type = "requirement-analysis"
	TypeTechnicalApproach   Type = "technical-approach"
	TypeUIPrototype         Type = "ui-prototype"
	TypeTimeline            Type = "timeline"
	TypePricing             Type = "pricing"
	TypeTeam                Type = "team"
	TypeAppendix            Type = "appendix"
)

var typeLabels = map[Type]string{
	TypeExecutiveSummary:    "Executive summary",
	TypeCompanyIntro:        "Company introduction",
	TypeRequirementAnalysis: "Requirement analysis",
	TypeTechnicalApproach:   "Technical approach",
	TypeUIPrototype:         "UI prototype",
	TypeTimeline:            "Timeline",
	TypePricing:             "Pricing",
	TypeTeam:                "Team",
	TypeAppendix:            "Appendix",
}

// Types lists every section type in document order.
func Types() []Type {
	return []Type{TypeExecutiveSummary, TypeCompanyIntro, TypeRequirementAnalysis, TypeTechnicalApproach,
		TypeUIPrototype, TypeTimeline, TypePricing, TypeTeam, TypeAppendix}
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	_, ok := typeLabels[t]
	return ok
}

// Label is the default heading for t.
func (t Type) Label() string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return string(t)
}

// Status tracks the review of one section.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusReview   Status = "review"
	StatusApproved Status = "approved"
)

// Section is one chapter of a proposal. Content is Markdown.
type Section struct {
	ID            uuid.UUID  `json:"id"`
	ProposalID    uuid.UUID  `json:"proposal_id"`
	Type          Type       `json:"type"`
	Title         string     `json:"title"`
	Order         int        `json:"order"`
	Content       string     `json:"content"`
	IsAIGenerated bool       `json:"is_ai_generated"`
	AIPrompt      string     `json:"ai_prompt,omitempty"`
	Status        Status     `json:"status"`
	CreatedBy     *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// SectionForm is the create and edit form.
type SectionForm struct {
	Type          string `form:"type" validate:"required,oneof=executive-summary company-intro requirement-analysis technical-approach ui-prototype timeline pricing team appendix"`
	Title         string `form:"title" validate:"max=300"`
	Content       string `form:"content" validate:"max=100000"`
	AIPrompt      string `form:"ai_prompt" validate:"max=10000"`
	IsAIGenerated bool   `form:"is_ai_generated"`
}

// Input is a validated SectionForm.
type Input struct {
	Type          Type
	Title         string
	Content       string
	AIPrompt      string
	IsAIGenerated bool
}

// Filter narrows a section list.
type Filter struct {
	AIGenerated bool
}

// FormFrom copies s into a form for editing.
func FormFrom(s Section) SectionForm {
	return SectionForm{
		Type:          string(s.Type),
		Title:         s.Title,
		Content:       s.Content,
		AIPrompt:      s.AIPrompt,
		IsAIGenerated: s.IsAIGenerated,
	}
}
