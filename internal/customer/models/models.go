package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"gestionale/pkg/platform/page"
)

// Status is the lifecycle stage of a customer. Any status may follow any other.
type Status string

const (
	StatusLead   Status = "lead"
	StatusActive Status = "active"
	StatusChurn  Status = "churn"
)

// Statuses lists every customer status.
var Statuses = []Status{StatusLead, StatusActive, StatusChurn}

func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.TrimSpace(s)); st {
	case StatusLead, StatusActive, StatusChurn:
		return st, true
	}
	return "", false
}

// Customer is a company or person the business sells to.
type Customer struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     *string    `json:"phone"`
	Status    Status     `json:"status"`
	JoinedAt  *time.Time `json:"joinedAt"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Filter narrows customer lists. Q matches name, email or phone case-insensitively.
type Filter struct {
	Q        string
	Statuses []Status
}

// Query is a filtered, paginated list request.
type Query struct {
	Filter Filter
	Page   page.Request
}
