package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/asaskevich/govalidator"

	"gestionale/pkg/money"
)

// CreateRequest is the payload for creating a product.
// Monthly accepts a JSON number or a numeric string.
type CreateRequest struct {
	Name        string       `json:"name"`
	Description *string      `json:"description"`
	Monthly     *money.Cents `json:"monthly"`
	Kind        string       `json:"kind"`
	IsActive    *bool        `json:"isActive"`
}

func (r *CreateRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = trimOptional(r.Description)
	r.Kind = strings.TrimSpace(r.Kind)
	if r.IsActive == nil {
		active := true
		r.IsActive = &active
	}
}

func (r *CreateRequest) Validate() error {
	if err := validateName(r.Name); err != nil {
		return err
	}
	if r.Monthly == nil {
		return errors.New("monthly is required")
	}
	if err := validateMonthly(*r.Monthly); err != nil {
		return err
	}
	if _, ok := ParseKind(r.Kind); !ok {
		return errors.New("kind must be one of SaaS, Platform")
	}
	return nil
}

// UpdateRequest is a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	Name        *string      `json:"name"`
	Description *string      `json:"description"`
	Monthly     *money.Cents `json:"monthly"`
	Kind        *string      `json:"kind"`
	IsActive    *bool        `json:"isActive"`
}

func (r *UpdateRequest) Normalize() {
	if r.Name != nil {
		v := strings.TrimSpace(*r.Name)
		r.Name = &v
	}
	if r.Description != nil {
		v := strings.TrimSpace(*r.Description)
		r.Description = &v
	}
	if r.Kind != nil {
		v := strings.TrimSpace(*r.Kind)
		r.Kind = &v
	}
}

func (r *UpdateRequest) Validate() error {
	if r.Name != nil {
		if err := validateName(*r.Name); err != nil {
			return err
		}
	}
	if r.Monthly != nil {
		if err := validateMonthly(*r.Monthly); err != nil {
			return err
		}
	}
	if r.Kind != nil {
		if _, ok := ParseKind(*r.Kind); !ok {
			return errors.New("kind must be one of SaaS, Platform")
		}
	}
	return nil
}

// Apply copies the present fields onto p. An empty description clears it.
func (r *UpdateRequest) Apply(p *Product) {
	if r.Name != nil {
		p.Name = *r.Name
	}
	if r.Description != nil {
		if *r.Description == "" {
			p.Description = nil
		} else {
			v := *r.Description
			p.Description = &v
		}
	}
	if r.Monthly != nil {
		p.Monthly = *r.Monthly
	}
	if r.Kind != nil {
		p.Kind = Kind(*r.Kind)
	}
	if r.IsActive != nil {
		p.IsActive = *r.IsActive
	}
}

func validateName(name string) error {
	if !govalidator.StringLength(name, "2", "200") {
		return errors.New("name must be between 2 and 200 characters")
	}
	return nil
}

// MaxMonthly caps the monthly price so that a sale over the longest term
// still has an exact amount.
const MaxMonthly money.Cents = 99_999_999_999

func validateMonthly(m money.Cents) error {
	if m < 0 {
		return errors.New("monthly must be zero or positive")
	}
	if m > MaxMonthly {
		return fmt.Errorf("monthly must not exceed %s", MaxMonthly)
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
