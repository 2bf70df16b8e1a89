package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ErrInvalidParam.HTTPStatus)
	assert.Equal(t, http.StatusNotFound, ErrSessionNotFound.HTTPStatus)
	assert.Equal(t, http.StatusConflict, ErrGenerationInFlight.HTTPStatus)
	assert.Equal(t, http.StatusConflict, ErrNoActiveGeneration.HTTPStatus)
	assert.Equal(t, http.StatusServiceUnavailable, ErrServiceUnavailable.HTTPStatus)
	assert.Equal(t, http.StatusInternalServerError, ErrLaunchFailed.HTTPStatus)
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := ErrGenerationInFlight.WithDetail("session s-1")
	wrapped := fmt.Errorf("submit: %w", err)

	assert.True(t, Is(wrapped, ErrGenerationInFlight))
	assert.False(t, Is(wrapped, ErrNoActiveGeneration))
	assert.Equal(t, "", ErrGenerationInFlight.Detail)
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, CodeCacheError, "failed to save session")

	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "[5002] failed to save session: connection refused", err.Error())
	assert.True(t, IsAppError(err))
}

func TestAsAppError(t *testing.T) {
	plain := stderrors.New("boom")
	appErr := AsAppError(plain)
	assert.Equal(t, CodeUnknown, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)

	assert.Same(t, ErrFileNotFound, AsAppError(ErrFileNotFound))
}
