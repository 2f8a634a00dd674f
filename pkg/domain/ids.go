// Package domain holds domain primitives shared by every record kind.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "gestionale/pkg/domain-errors"
)

// ParseID parses the id of a record of the given kind, e.g. "Customer".
// Malformed and nil ids cannot name an existing record, so they are reported
// as "<kind> not found".
func ParseID(kind, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, NotFound(kind)
	}
	return id, nil
}

// ParseOptionalID is ParseID for optional references. Nil or blank input yields nil.
func ParseOptionalID(kind string, raw *string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := ParseID(kind, *raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// NotFound is the error for a missing record of the given kind.
func NotFound(kind string) error {
	return dErrors.New(dErrors.CodeNotFound, kind+" not found")
}
