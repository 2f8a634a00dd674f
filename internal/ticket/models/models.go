package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"gestionale/pkg/platform/page"
)

// Status is the support state of a ticket. Any status may follow any other.
type Status string

const (
	StatusOpen    Status = "open"
	StatusPending Status = "pending"
	StatusClosed  Status = "closed"
)

var Statuses = []Status{StatusOpen, StatusPending, StatusClosed}

func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.TrimSpace(s)); st {
	case StatusOpen, StatusPending, StatusClosed:
		return st, true
	}
	return "", false
}

// Ticket is a support request raised for a customer.
type Ticket struct {
	ID          uuid.UUID  `json:"id"`
	CustomerID  uuid.UUID  `json:"customerId"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      Status     `json:"status"`
	AssigneeID  *uuid.UUID `json:"assigneeId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Party is the compact projection of a related customer or user.
type Party struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// Detail is a ticket with its customer and assignee.
type Detail struct {
	Ticket
	Customer *Party `json:"customer"`
	Assignee *Party `json:"assignee"`
}

// Filter narrows ticket lists. Q matches the title or the customer name.
type Filter struct {
	Q          string
	Statuses   []Status
	AssigneeID *uuid.UUID
}

type Query struct {
	Filter Filter
	Page   page.Request
}
