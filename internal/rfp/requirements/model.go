package requirements

import (
	"time"

	"github.com/google/uuid"
)

// Category groups requirements by nature.
type Category string

const (
	CategoryFunctional    Category = "functional"
	CategoryNonFunctional Category = "non-functional"
	CategoryTechnical     Category = "technical"
	CategoryBusiness      Category = "business"
)

// Priority uses MoSCoW levels.
type Priority string

const (
	PriorityMust   Priority = "must"
	PriorityShould Priority = "should"
	PriorityCould  Priority = "could"
	PriorityWont   Priority = "wont"
)

// Complexity is an optional effort hint.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Categories lists every category.
func Categories() []Category {
	return []Category{CategoryFunctional, CategoryNonFunctional, CategoryTechnical, CategoryBusiness}
}

// Priorities lists every priority from highest.
func Priorities() []Priority {
	return []Priority{PriorityMust, PriorityShould, PriorityCould, PriorityWont}
}

// Requirement is one line item extracted from an RFP.
type Requirement struct {
	ID                 uuid.UUID  `json:"id"`
	RFPID              uuid.UUID  `json:"rfp_id"`
	Category           Category   `json:"category"`
	Priority           Priority   `json:"priority"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	AcceptanceCriteria string     `json:"acceptance_criteria,omitempty"`
	Complexity         Complexity `json:"complexity,omitempty"`
	EstimatedHours     *float64   `json:"estimated_hours,omitempty"`
	SuggestedSolution  string     `json:"suggested_solution,omitempty"`
	Order              int        `json:"order"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// RequirementForm is the create and edit form.
type RequirementForm struct {
	Category           string `form:"category" validate:"required,oneof=functional non-functional technical business"`
	Priority           string `form:"priority" validate:"required,oneof=must should could wont"`
	Title              string `form:"title" validate:"required,max=300"`
	Description        string `form:"description" validate:"required,max=10000"`
	AcceptanceCriteria string `form:"acceptance_criteria" validate:"max=10000"`
	Complexity         string `form:"complexity" validate:"omitempty,oneof=low medium high"`
	EstimatedHours     string `form:"estimated_hours" validate:"omitempty,numeric"`
	SuggestedSolution  string `form:"suggested_solution" validate:"max=10000"`
}

// Input is a validated RequirementForm.
type Input struct {
	Category           Category
	Priority           Priority
	Title              string
	Description        string
	AcceptanceCriteria string
	Complexity         Complexity
	EstimatedHours     *float64
	SuggestedSolution  string
}

// Filter narrows a requirement list.
type Filter struct {
	Category Category
	Priority Priority
}
