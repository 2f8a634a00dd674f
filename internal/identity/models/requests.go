package models

import (
	"errors"
	"strings"

	"github.com/asaskevich/govalidator"

	"gestionale/internal/policy"
	"gestionale/pkg/email"
)

const minPasswordLength = 3

// LoginRequest is the /auth/login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = email.Normalize(r.Email)
}

func (r *LoginRequest) Validate() error {
	if !govalidator.StringLength(r.Email, "1", "255") || !email.IsValid(r.Email) {
		return errors.New("invalid email")
	}
	if len(r.Password) < minPasswordLength {
		return errors.New("password must be at least 3 characters")
	}
	return nil
}

// CreateUserRequest is the POST /users payload. An empty name is derived
// from the email address.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

func (r *CreateUserRequest) Normalize() {
	r.Email = email.Normalize(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		r.Name = email.DisplayName(r.Email)
	}
	r.Role = strings.ToUpper(strings.TrimSpace(r.Role))
}

func (r *CreateUserRequest) Validate() error {
	if !govalidator.StringLength(r.Email, "1", "255") || !email.IsValid(r.Email) {
		return errors.New("invalid email")
	}
	if !govalidator.StringLength(r.Name, "1", "200") {
		return errors.New("name must be at most 200 characters")
	}
	if _, ok := policy.ParseRole(r.Role); !ok {
		return errors.New("role must be one of ADMIN, SALES, SUPPORT")
	}
	if len(r.Password) < minPasswordLength {
		return errors.New("password must be at least 3 characters")
	}
	return nil
}
