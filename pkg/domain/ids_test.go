package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "gestionale/pkg/domain-errors"
)

// TestParseID_TrustBoundary validates that ids from paths and bodies are
// either valid non-nil UUIDs or a not-found error naming the record kind.
func TestParseID_TrustBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE customers;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Surrounding whitespace", " 550e8400-e29b-41d4-a716-446655440000 ", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseID("Customer", tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
				assert.Equal(t, "Customer not found", err.Error())
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseOptionalID(t *testing.T) {
	id, err := ParseOptionalID("Assignee", nil)
	require.NoError(t, err)
	assert.Nil(t, id)

	blank := "  "
	id, err = ParseOptionalID("Assignee", &blank)
	require.NoError(t, err)
	assert.Nil(t, id)

	bad := "nope"
	_, err = ParseOptionalID("Assignee", &bad)
	assert.EqualError(t, err, "Assignee not found")

	valid := uuid.New()
	raw := valid.String()
	id, err = ParseOptionalID("Assignee", &raw)
	require.NoError(t, err)
	assert.Equal(t, valid, *id)
}
