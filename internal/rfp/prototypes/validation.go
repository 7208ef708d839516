package prototypes

import (
	"strings"

	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

func (s *Service) validate(f PrototypeForm) (Input, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.Type = strings.TrimSpace(f.Type)
	f.Description = strings.TrimSpace(f.Description)
	f.ImageURL = strings.TrimSpace(f.ImageURL)
	f.FigmaURL = strings.TrimSpace(f.FigmaURL)
	f.AIPrompt = strings.TrimSpace(f.AIPrompt)
	f.GeneratedFrom = strings.TrimSpace(f.GeneratedFrom)
	if err := s.validator.Struct(f); err != nil {
		return Input{}, internalShared.Invalid(err)
	}
	return Input{
		Name:          f.Name,
		Type:          Type(f.Type),
		Description:   f.Description,
		ImageURL:      f.ImageURL,
		FigmaURL:      f.FigmaURL,
		HTMLCode:      strings.TrimRight(f.HTMLCode, " \t\r\n"),
		IsAIGenerated: f.IsAIGenerated,
		AIPrompt:      f.AIPrompt,
		GeneratedFrom: f.GeneratedFrom,
	}, nil
}
