package rfps

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

func (s *Service) validate(f RFPForm) (Input, error) {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	f.EstimatedBudget = strings.TrimSpace(f.EstimatedBudget)
	f.EstimatedDuration = strings.TrimSpace(f.EstimatedDuration)
	if err := s.validator.Struct(f); err != nil {
		return Input{}, internalShared.Invalid(err)
	}
	received, _ := time.Parse(time.DateOnly, f.ReceivedDate)
	due, _ := time.Parse(time.DateOnly, f.DueDate)
	if !due.After(received) {
		return Input{}, fmt.Errorf("%w: due date must be after the received date", internalShared.ErrValidation)
	}
	in := Input{
		Title:        f.Title,
		ClientID:     uuid.MustParse(f.ClientID),
		ReceivedDate: received,
		DueDate:      due,
		Description:  f.Description,
	}
	if f.EstimatedBudget != "" {
		budget, err := strconv.ParseFloat(f.EstimatedBudget, 64)
		if err != nil || budget < 0 {
			return Input{}, fmt.Errorf("%w: budget must be a positive amount", internalShared.ErrValidation)
		}
		in.EstimatedBudget = &budget
	}
	if f.EstimatedDuration != "" {
		months, err := strconv.Atoi(f.EstimatedDuration)
		if err != nil || months <= 0 {
			return Input{}, fmt.Errorf("%w: duration must be a whole number of months", internalShared.ErrValidation)
		}
		in.EstimatedDuration = &months
	}
	if f.AssigneeID != "" {
		id := uuid.MustParse(f.AssigneeID)
		in.AssigneeID = &id
	}
	return in, nil
}

func validateAnalysis(raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return json.RawMessage("null"), nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("%w: analysis must be valid JSON", internalShared.ErrValidation)
	}
	return json.RawMessage(raw), nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func formatInt(v int) string { return strconv.Itoa(v) }
