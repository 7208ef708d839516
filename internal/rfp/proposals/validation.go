package proposals

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

const defaultVersion = "1.0"

func (s *Service) validate(f ProposalForm) (Input, error) {
	f.Title = strings.TrimSpace(f.Title)
	f.Version = strings.TrimSpace(f.Version)
	f.ExecutiveSummary = strings.TrimSpace(f.ExecutiveSummary)
	if err := s.validator.Struct(f); err != nil {
		return Input{}, internalShared.Invalid(err)
	}
	in := Input{
		RFPID:            uuid.MustParse(f.RFPID),
		Title:            f.Title,
		Version:          f.Version,
		AssigneeID:       uuid.MustParse(f.AssigneeID),
		ExecutiveSummary: f.ExecutiveSummary,
	}
	if in.Version == "" {
		in.Version = defaultVersion
	}
	if f.TotalPrice != "" {
		price, err := strconv.ParseFloat(f.TotalPrice, 64)
		if err != nil || price < 0 {
			return Input{}, fmt.Errorf("%w: price must be a positive amount", internalShared.ErrValidation)
		}
		in.TotalPrice = &price
	}
	if f.EstimatedDuration != "" {
		months, err := strconv.Atoi(f.EstimatedDuration)
		if err != nil || months <= 0 {
			return Input{}, fmt.Errorf("%w: duration must be a whole number of months", internalShared.ErrValidation)
		}
		in.EstimatedDuration = &months
	}
	if f.WinProbability != "" {
		p, err := strconv.Atoi(f.WinProbability)
		if err != nil || p < 0 || p > 100 {
			return Input{}, fmt.Errorf("%w: win probability must be between 0 and 100", internalShared.ErrValidation)
		}
		in.WinProbability = &p
	}
	if f.StartDate != "" {
		t, _ := time.Parse(time.DateOnly, f.StartDate)
		in.StartDate = &t
	}
	if f.EndDate != "" {
		t, _ := time.Parse(time.DateOnly, f.EndDate)
		in.EndDate = &t
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return Input{}, fmt.Errorf("%w: end date must not be before the start date", internalShared.ErrValidation)
	}
	return in, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func formatInt(v int) string { return strconv.Itoa(v) }
