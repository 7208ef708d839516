package clients

import (
	"time"

	"github.com/google/uuid"
)

// Client is an organisation that issues RFPs.
type Client struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	BusinessNumber  string    `json:"business_number"`
	Industry        string    `json:"industry"`
	ContactName     string    `json:"contact_name"`
	ContactEmail    string    `json:"contact_email"`
	ContactPhone    string    `json:"contact_phone"`
	ContactPosition string    `json:"contact_position"`
	Address         string    `json:"address,omitempty"`
	Website         string    `json:"website,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ClientForm is the create and edit form.
type ClientForm struct {
	Name            string `form:"name" validate:"required,max=200"`
	BusinessNumber  string `form:"business_number" validate:"required,bizno"`
	Industry        string `form:"industry" validate:"required,max=100"`
	ContactName     string `form:"contact_name" validate:"required,max=100"`
	ContactEmail    string `form:"contact_email" validate:"required,email"`
	ContactPhone    string `form:"contact_phone" validate:"required,max=30,phone"`
	ContactPosition string `form:"contact_position" validate:"required,max=100"`
	Address         string `form:"address" validate:"max=500"`
	Website         string `form:"website" validate:"omitempty,url"`
	Notes           string `form:"notes" validate:"max=2000"`
}

// RFPSummary is a client's RFP as listed on the client page.
type RFPSummary struct {
	ID           uuid.UUID
	Title        string
	Status       string
	ReceivedDate time.Time
	DueDate      time.Time
}

// Detail is a client with its RFPs.
type Detail struct {
	Client Client
	RFPs   []RFPSummary
}

// FormFrom copies c into a form for editing.
func FormFrom(c Client) ClientForm {
	return ClientForm{
		Name:            c.Name,
		BusinessNumber:  c.BusinessNumber,
		Industry:        c.Industry,
		ContactName:     c.ContactName,
		ContactEmail:    c.ContactEmail,
		ContactPhone:    c.ContactPhone,
		ContactPosition: c.ContactPosition,
		Address:         c.Address,
		Website:         c.Website,
		Notes:           c.Notes,
	}
}
