package models

import (
	"strings"
	"time"
)

// Action is the kind of mutation an audit record describes.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionPay    Action = "PAY"
)

// ParseAction accepts an action name in any case.
func ParseAction(s string) (Action, bool) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionPay:
		return a, true
	}
	return "", false
}

// Entry is what the mutation pipeline hands over after a successful change.
// A nil UserID marks a system-originated action such as a payment webhook.
type Entry struct {
	UserID   *string
	Action   Action
	Entity   string
	EntityID string
	Metadata map[string]any
}

// Record is one immutable audit row.
type Record struct {
	ID        string         `json:"id"`
	UserID    *string        `json:"userId"`
	Action    Action         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entityId"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
	User      *Actor         `json:"user,omitempty"`
}

// Actor is the human-readable projection of the acting user.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Label is the export column value: name, else email, else user id.
func (r Record) Label() string {
	if r.User != nil {
		if r.User.Name != "" {
			return r.User.Name
		}
		if r.User.Email != "" {
			return r.User.Email
		}
	}
	if r.UserID != nil {
		return *r.UserID
	}
	return ""
}

// Filter narrows audit queries; all fields are optional and ANDed.
// Q is a case-insensitive substring match over entity, entity id and metadata text.
// From and To are inclusive.
type Filter struct {
	Q      string
	Entity string
	Action Action
	UserID string
	From   *time.Time
	To     *time.Time
}
