package requirements

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

func (s *Service) validate(f RequirementForm) (Input, error) {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	f.EstimatedHours = strings.TrimSpace(f.EstimatedHours)
	if err := s.validator.Struct(f); err != nil {
		return Input{}, internalShared.Invalid(err)
	}
	in := Input{
		Category:           Category(f.Category),
		Priority:           Priority(f.Priority),
		Title:              f.Title,
		Description:        f.Description,
		AcceptanceCriteria: strings.TrimSpace(f.AcceptanceCriteria),
		Complexity:         Complexity(f.Complexity),
		SuggestedSolution:  strings.TrimSpace(f.SuggestedSolution),
	}
	if f.EstimatedHours != "" {
		hours, err := strconv.ParseFloat(f.EstimatedHours, 64)
		if err != nil || hours < 0 {
			return Input{}, fmt.Errorf("%w: estimated hours must be a positive number", internalShared.ErrValidation)
		}
		in.EstimatedHours = &hours
	}
	return in, nil
}

func validateOrder(ids []uuid.UUID) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: order is empty", internalShared.ErrValidation)
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: requirement listed twice", internalShared.ErrValidation)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}
