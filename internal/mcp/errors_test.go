package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"empty query", amerrors.QueryEmptyError(), ErrCodeInvalidParams, "Query is empty"},
		{"invalid name", amerrors.New(amerrors.ErrCodeInvalidName, "name is blank", nil), ErrCodeInvalidParams, "name is blank"},
		{"state write", stateWriteErr(), ErrCodeStateWriteFailed, "state write failed"},
		{"search failed", amerrors.New(amerrors.ErrCodeSearchFailed, "both rankers failed", nil), ErrCodeBackendFailed, "both rankers failed"},
		{"backend", amerrors.BackendError("ollama down", nil), ErrCodeBackendFailed, "ollama down"},
		{"wrapped app error", fmt.Errorf("ctx: %w", amerrors.InternalError("boom", nil)), ErrCodeInternalError, "boom"},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout, "Request timed out."},
		{"canceled", context.Canceled, ErrCodeTimeout, "Request was canceled."},
		{"unknown", errors.New("x"), ErrCodeInternalError, "Internal server error."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Contains(t, got.Message, tt.wantMsg)
		})
	}
}

func TestMapError_NilAndPassthrough(t *testing.T) {
	assert.Nil(t, MapError(nil))

	orig := NewInvalidParamsError("bad")
	assert.Same(t, orig, MapError(fmt.Errorf("wrap: %w", orig)))
}

func TestMCPError_Error(t *testing.T) {
	assert.Equal(t, "MCP error -32601: Tool 'x' not found.", NewMethodNotFoundError("x").Error())
}
