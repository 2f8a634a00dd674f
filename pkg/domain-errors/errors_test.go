package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	cause := errors.New("connection refused")

	t.Run("new carries code and message", func(t *testing.T) {
		err := New(CodeNotFound, "Customer not found")
		assert.Equal(t, "Customer not found", err.Error())
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeInternal))
	})

	t.Run("wrap keeps cause reachable", func(t *testing.T) {
		err := Wrap(cause, CodeInternal, "failed to list customers")
		assert.True(t, errors.Is(err, cause))
		assert.Equal(t, "failed to list customers: connection refused", err.Error())
		assert.Equal(t, CodeInternal, CodeOf(err))
	})

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", New(CodeForbidden, "forbidden"))
		assert.Equal(t, CodeForbidden, CodeOf(err))
	})

	t.Run("uncoded errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(cause))
	})
}
