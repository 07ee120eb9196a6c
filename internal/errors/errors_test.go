package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repovitals/reviver/internal/ml"
)

func TestConstructorsCarryCategoryAndStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		category ErrorCategory
		status   int
	}{
		{"validation", NewValidationError("bad input", nil), CategoryValidation, http.StatusBadRequest},
		{"network", NewNetworkError("connection lost", nil), CategoryNetwork, http.StatusBadGateway},
		{"timeout", NewTimeoutError("too slow", nil), CategoryTimeout, http.StatusGatewayTimeout},
		{"rate limit", NewRateLimitError("60"), CategoryRateLimit, http.StatusTooManyRequests},
		{"external api", NewExternalAPIError("GitHub", nil), CategoryExternalAPI, http.StatusBadGateway},
		{"internal", NewInternalError("boom", nil), CategoryInternal, http.StatusInternalServerError},
		{"insufficient data", NewInsufficientDataError(nil), CategoryTraining, http.StatusUnprocessableEntity},
		{"schema mismatch", NewSchemaMismatchError(nil), CategoryTraining, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.False(t, tt.err.Timestamp.IsZero())
		})
	}
}

func TestErrorMessageIncludesCategory(t *testing.T) {
	err := NewValidationError("owner is required", nil)
	assert.Equal(t, "[VALIDATION] owner is required", err.Error())
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := stderrors.New("root cause")
	err := NewNetworkError("wrapped", cause)
	assert.ErrorIs(t, err, cause)
}

func TestToAppErrorPassesThroughAppErrors(t *testing.T) {
	original := NewValidationError("bad", nil)
	wrapped := fmt.Errorf("handler: %w", original)

	converted := ToAppError(wrapped)
	assert.Same(t, original, converted)
}

func TestToAppErrorClassifiesKnownErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category ErrorCategory
	}{
		{"context canceled", context.Canceled, CategoryTimeout},
		{"deadline exceeded", context.DeadlineExceeded, CategoryTimeout},
		{"connection refused", stderrors.New("dial tcp: connection refused"), CategoryNetwork},
		{"no such host", stderrors.New("lookup api.github.com: no such host"), CategoryNetwork},
		{"timeout string", stderrors.New("i/o timeout"), CategoryTimeout},
		{"unknown", stderrors.New("something odd"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := ToAppError(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.category, appErr.Category)
		})
	}
}

func TestToAppErrorNil(t *testing.T) {
	assert.Nil(t, ToAppError(nil))
}

func TestToAppErrorMapsTrainingFailures(t *testing.T) {
	// Wrapped the way the trainer and predictor actually return them.
	undersized := fmt.Errorf("%w: have 3, need at least 10", ml.ErrInsufficientSamples)
	appErr := ToAppError(undersized)
	assert.Equal(t, CategoryTraining, appErr.Category)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)

	stale := fmt.Errorf("target abandonment: %w",
		fmt.Errorf("%w: model schema version 0 does not match current schema 1; retrain required", ml.ErrSchemaMismatch))
	appErr = ToAppError(stale)
	assert.Equal(t, CategoryTraining, appErr.Category)
	assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(NewNetworkError("down", nil)))
	assert.True(t, IsRetryableError(NewTimeoutError("slow", nil)))
	assert.True(t, IsRetryableError(NewExternalAPIError("GitHub", nil)))
	assert.True(t, IsRetryableError(NewRateLimitError("60")))

	assert.False(t, IsRetryableError(NewValidationError("bad", nil)))
	assert.False(t, IsRetryableError(NewInternalError("boom", nil)))
	assert.False(t, IsRetryableError(NewInsufficientDataError(nil)))
}

func TestGetRetryDelay(t *testing.T) {
	assert.Equal(t, 4*time.Second, GetRetryDelay(NewRateLimitError("60"), 2))
	assert.Equal(t, 800*time.Millisecond, GetRetryDelay(NewNetworkError("down", nil), 2))
	assert.Equal(t, 400*time.Millisecond, GetRetryDelay(NewExternalAPIError("GitHub", nil), 2))
	assert.Equal(t, 200*time.Millisecond, GetRetryDelay(NewInternalError("boom", nil), 2))
}
