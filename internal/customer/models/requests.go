package models

import (
	"errors"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"

	"gestionale/pkg/email"
)

// CreateRequest is the payload for creating a customer.
type CreateRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone"`
	Status   string  `json:"status"`
	JoinedAt *string `json:"joinedAt"`
}

// Normalize trims input and applies defaults.
func (r *CreateRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = email.Normalize(r.Email)
	r.Phone = trimOptional(r.Phone)
	r.Status = strings.TrimSpace(r.Status)
	if r.Status == "" {
		r.Status = string(StatusLead)
	}
	r.JoinedAt = trimOptional(r.JoinedAt)
}

func (r *CreateRequest) Validate() error {
	if err := validateName(r.Name); err != nil {
		return err
	}
	if !email.IsValid(r.Email) {
		return errors.New("invalid email")
	}
	if _, ok := ParseStatus(r.Status); !ok {
		return errors.New("status must be one of lead, active, churn")
	}
	if _, err := parseJoinedAt(r.JoinedAt); err != nil {
		return err
	}
	return nil
}

// JoinedAtTime returns the parsed joinedAt; call after Validate.
func (r *CreateRequest) JoinedAtTime() *time.Time {
	t, _ := parseJoinedAt(r.JoinedAt)
	return t
}

// UpdateRequest is a partial update; nil fields are left unchanged.
// An empty phone clears it.
type UpdateRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Status   *string `json:"status"`
	JoinedAt *string `json:"joinedAt"`
}

func (r *UpdateRequest) Normalize() {
	if r.Name != nil {
		v := strings.TrimSpace(*r.Name)
		r.Name = &v
	}
	if r.Email != nil {
		v := email.Normalize(*r.Email)
		r.Email = &v
	}
	if r.Phone != nil {
		v := strings.TrimSpace(*r.Phone)
		r.Phone = &v
	}
	if r.Status != nil {
		v := strings.TrimSpace(*r.Status)
		r.Status = &v
	}
	r.JoinedAt = trimOptional(r.JoinedAt)
}

func (r *UpdateRequest) Validate() error {
	if r.Name != nil {
		if err := validateName(*r.Name); err != nil {
			return err
		}
	}
	if r.Email != nil && !email.IsValid(*r.Email) {
		return errors.New("invalid email")
	}
	if r.Status != nil {
		if _, ok := ParseStatus(*r.Status); !ok {
			return errors.New("status must be one of lead, active, churn")
		}
	}
	if _, err := parseJoinedAt(r.JoinedAt); err != nil {
		return err
	}
	return nil
}

// Apply copies the present fields onto c. Call after Validate.
func (r *UpdateRequest) Apply(c *Customer) {
	if r.Name != nil {
		c.Name = *r.Name
	}
	if r.Email != nil {
		c.Email = *r.Email
	}
	if r.Phone != nil {
		if *r.Phone == "" {
			c.Phone = nil
		} else {
			v := *r.Phone
			c.Phone = &v
		}
	}
	if r.Status != nil {
		c.Status = Status(*r.Status)
	}
	if t, _ := parseJoinedAt(r.JoinedAt); t != nil {
		c.JoinedAt = t
	}
}

func validateName(name string) error {
	if !govalidator.StringLength(name, "2", "200") {
		return errors.New("name must be between 2 and 200 characters")
	}
	return nil
}

func parseJoinedAt(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, errors.New("joinedAt must be an RFC 3339 timestamp")
	}
	t = t.UTC()
	return &t, nil
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
