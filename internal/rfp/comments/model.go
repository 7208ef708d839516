package comments

import (
	"time"

	"github.com/google/uuid"
)

// TargetType names what a comment is attached to.
type TargetType string

const (
	TargetRFP         TargetType = "rfp"
	TargetRequirement TargetType = "requirement"
	TargetProposal    TargetType = "proposal"
)

// Type classifies a comment.
type Type string

const (
	TypeComment   Type = "comment"
	TypeFeedback  Type = "feedback"
	TypeApproval  Type = "approval"
	TypeRejection Type = "rejection"
)

// Comment is a remark on an RFP, requirement or proposal.
type Comment struct {
	ID           uuid.UUID  `json:"id"`
	TargetType   TargetType `json:"target_type"`
	TargetID     uuid.UUID  `json:"target_id"`
	Content      string     `json:"content"`
	Type         Type       `json:"type"`
	AuthorID     uuid.UUID  `json:"author_id"`
	AuthorName   string     `json:"author_name"`
	AuthorAvatar string     `json:"author_avatar,omitempty"`
	ParentID     *uuid.UUID `json:"parent_id,omitempty"`
	IsResolved   bool       `json:"is_resolved"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Thread is a top-level comment with its replies, oldest first.
type Thread struct {
	Comment
	Replies []Comment
}

// CommentForm is the create and edit form.
type CommentForm struct {
	Content  string `form:"content" validate:"required,max=5000"`
	Type     string `form:"type" validate:"omitempty,oneof=comment feedback approval rejection"`
	ParentID string `form:"parent_id" validate:"omitempty,uuid"`
}

// NewComment is a validated comment ready to insert.
type NewComment struct {
	TargetType TargetType
	TargetID   uuid.UUID
	Content    string
	Type       Type
	AuthorID   uuid.UUID
	ParentID   *uuid.UUID
}
