package models

import (
	"errors"
	"strings"

	"github.com/asaskevich/govalidator"
)

// CreateRequest is the payload for opening a ticket.
type CreateRequest struct {
	CustomerID  string  `json:"customerId"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	AssigneeID  *string `json:"assigneeId"`
}

func (r *CreateRequest) Normalize() {
	r.CustomerID = strings.TrimSpace(r.CustomerID)
	r.Title = strings.TrimSpace(r.Title)
	r.Description = trimOptional(r.Description)
	r.AssigneeID = trimOptional(r.AssigneeID)
}

func (r *CreateRequest) Validate() error {
	if r.CustomerID == "" {
		return errors.New("customerId is required")
	}
	return validateTitle(r.Title)
}

// UpdateRequest is a partial update. An empty assigneeId unassigns the ticket
// and an empty description clears it.
type UpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	AssigneeID  *string `json:"assigneeId"`
}

func (r *UpdateRequest) Normalize() {
	for _, f := range []**string{&r.Title, &r.Description, &r.Status, &r.AssigneeID} {
		if *f != nil {
			v := strings.TrimSpace(**f)
			*f = &v
		}
	}
}

func (r *UpdateRequest) Validate() error {
	if r.Title != nil {
		if err := validateTitle(*r.Title); err != nil {
			return err
		}
	}
	if r.Status != nil {
		if _, ok := ParseStatus(*r.Status); !ok {
			return errors.New("status must be one of open, pending, closed")
		}
	}
	return nil
}

// Apply copies title, description and status onto t. The assignee is
// resolved by the service.
func (r *UpdateRequest) Apply(t *Ticket) {
	if r.Title != nil {
		t.Title = *r.Title
	}
	if r.Description != nil {
		if *r.Description == "" {
			t.Description = nil
		} else {
			v := *r.Description
			t.Description = &v
		}
	}
	if r.Status != nil {
		t.Status = Status(*r.Status)
	}
}

func validateTitle(title string) error {
	if !govalidator.StringLength(title, "3", "300") {
		return errors.New("title must be between 3 and 300 characters")
	}
	return nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
