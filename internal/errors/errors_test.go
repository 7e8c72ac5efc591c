package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeStateCorrupt, CategoryIO, SeverityWarning, false},
		{ErrCodeBackendUnavailable, CategoryBackend, SeverityWarning, true},
		{ErrCodeEmbeddingTimeout, CategoryBackend, SeverityWarning, true},
		{ErrCodeQueryEmpty, CategoryValidation, SeverityError, false},
		{ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("search: %w", QueryEmptyError())

	assert.ErrorIs(t, err, ErrQueryEmpty)
	assert.NotErrorIs(t, err, ErrInvalidName)
	assert.True(t, IsValidation(err))
	assert.Equal(t, ErrCodeQueryEmpty, GetCode(err))
	assert.Equal(t, CategoryValidation, GetCategory(err))
}

func TestAppError_UnwrapCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := BackendError("embedding backend unavailable", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.True(t, IsRetryable(err))
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestFormatForCLI(t *testing.T) {
	out := FormatForCLI(QueryEmptyError())

	assert.Contains(t, out, "Error: Query is empty")
	assert.Contains(t, out, "Hint: Provide a non-empty search query")
	assert.Contains(t, out, "Code: ERR_404_QUERY_EMPTY")

	assert.Contains(t, FormatForCLI(errors.New("plain")), "ERR_501_INTERNAL")
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON(t *testing.T) {
	data, err := FormatJSON(CorruptStateError("/tmp/saved_store.json", errors.New("unexpected EOF")))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeStateCorrupt, decoded["code"])
	assert.Equal(t, "unexpected EOF", decoded["cause"])
	assert.Equal(t, map[string]any{"path": "/tmp/saved_store.json"}, decoded["details"])
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(CorruptStateError("p", errors.New("bad json")))

	keys := make([]string, 0, len(attrs))
	for _, a := range attrs {
		keys = append(keys, a.Key)
	}
	assert.Equal(t, []string{"error_code", "error", "category", "retryable", "cause", "detail_path"}, keys)

	plain := LogAttrs(errors.New("x"))
	require.Len(t, plain, 1)
	assert.Equal(t, "error", plain[0].Key)
	assert.Nil(t, LogAttrs(nil))
}
