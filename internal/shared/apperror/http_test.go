package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHTTP(t *testing.T) {
	t.Run("app error", func(t *testing.T) {
		err := New(CodeConflict, "already clocked in", http.StatusConflict)
		got := ToHTTP(err)
		assert.Equal(t, http.StatusConflict, got.Status)
		assert.Equal(t, CodeConflict, got.Code)
		assert.Equal(t, "already clocked in", got.Message)
		assert.Nil(t, got.Details)
	})

	t.Run("wrapped app error keeps code", func(t *testing.T) {
		err := fmt.Errorf("service: %w", ErrNotFound)
		got := ToHTTP(err)
		assert.Equal(t, http.StatusNotFound, got.Status)
		assert.Equal(t, CodeNotFound, got.Code)
	})

	t.Run("app error with cause exposes details", func(t *testing.T) {
		err := Wrap(errors.New("parsing time"), CodeInvalidInput, "Invalid date", http.StatusBadRequest)
		got := ToHTTP(err)
		assert.Equal(t, "parsing time", got.Details)
	})

	t.Run("unknown error", func(t *testing.T) {
		got := ToHTTP(errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, got.Status)
		assert.Equal(t, CodeInternalError, got.Code)
		assert.Equal(t, "Internal server error", got.Message)
	})
}

func TestFieldErrors(t *testing.T) {
	assert.Equal(t, "Type is required", RequiredField("Type").Message)
	assert.Equal(t, "From is invalid", InvalidField("From").Message)
	assert.Equal(t, "Recipient Phone", formatFieldName("recipient_phone"))
}
