package clients

import (
	"strings"

	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

func (s *Service) validate(f *ClientForm) error {
	f.Name = strings.TrimSpace(f.Name)
	f.BusinessNumber = strings.TrimSpace(f.BusinessNumber)
	f.Industry = strings.TrimSpace(f.Industry)
	f.ContactName = strings.TrimSpace(f.ContactName)
	f.ContactEmail = strings.ToLower(strings.TrimSpace(f.ContactEmail))
	f.ContactPhone = strings.TrimSpace(f.ContactPhone)
	f.ContactPosition = strings.TrimSpace(f.ContactPosition)
	f.Website = strings.TrimSpace(f.Website)
	return internalShared.Invalid(s.validator.Struct(f))
}
