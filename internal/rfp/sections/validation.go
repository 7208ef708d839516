package sections

import (
	"strings"

	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

func (s *Service) validate(f SectionForm) (Input, error) {
	f.Type = strings.TrimSpace(f.Type)
	f.Title = strings.TrimSpace(f.Title)
	f.AIPrompt = strings.TrimSpace(f.AIPrompt)
	if err := s.validator.Struct(f); err != nil {
		return Input{}, internalShared.Invalid(err)
	}
	in := Input{
		Type:          Type(f.Type),
		Title:         f.Title,
		Content:       strings.TrimRight(f.Content, " \t\r\n"),
		AIPrompt:      f.AIPrompt,
		IsAIGenerated: f.IsAIGenerated,
	}
	if in.Title == "" {
		in.Title = in.Type.Label()
	}
	return in, nil
}
