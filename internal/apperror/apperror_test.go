package apperror_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"taskify/backend/internal/apperror"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_WrappedError(t *testing.T) {
	base := apperror.NotFound("Task is not found")
	wrapped := fmt.Errorf("get task: %w", base)

	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, base))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(errors.New("connection reset")))
}

func TestError_MessageIncludesReason(t *testing.T) {
	err := apperror.Unauthorized(apperror.ReasonSessionExpired, "Session expired, please login again")

	assert.Equal(t, "unauthorized (session_expired): Session expired, please login again", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind     apperror.Kind
		expected int
	}{
		{apperror.KindInput, http.StatusBadRequest},
		{apperror.KindUnauthorized, http.StatusUnauthorized},
		{apperror.KindForbidden, http.StatusForbidden},
		{apperror.KindNotFound, http.StatusNotFound},
		{apperror.KindConflict, http.StatusConflict},
		{apperror.KindTooManyRequests, http.StatusTooManyRequests},
		{apperror.KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.expected, apperror.HTTPStatus(tt.kind))
		})
	}
}
