package dto

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hephaestus-forge/pkg/errors"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("request_id", "req-1")
	return c, w
}

func TestAppError_WritesCodeAndRequestID(t *testing.T) {
	c, w := newTestContext()

	handled := AppError(c, errors.ErrGenerationInFlight.WithDetail("session s-1"))
	require.True(t, handled)
	assert.Equal(t, http.StatusConflict, w.Code)

	var env ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, http.StatusConflict, env.Code)
	assert.Equal(t, "req-1", env.RequestID)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(errors.CodeGenerationInFlight), env.Error.ErrorCode)
	assert.Equal(t, "session s-1", env.Error.Details)
}

func TestAppError_IgnoresPlainErrors(t *testing.T) {
	c, w := newTestContext()
	assert.False(t, AppError(c, stderrors.New("boom")))
	assert.Equal(t, 0, w.Body.Len())
}

func TestAccepted(t *testing.T) {
	c, w := newTestContext()
	Accepted(c, map[string]string{"job_id": "j-1"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	var env Response[map[string]string]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "accepted", env.Message)
	assert.Equal(t, "j-1", env.Data["job_id"])
	assert.Equal(t, "req-1", env.RequestID)
}

func TestNewPageMeta(t *testing.T) {
	assert.Equal(t, 3, NewPageMeta(1, 20, 41).TotalPages)
	assert.Equal(t, 2, NewPageMeta(1, 20, 40).TotalPages)
	assert.Equal(t, 0, NewPageMeta(1, 20, 0).TotalPages)
	assert.Equal(t, 0, NewPageMeta(1, 0, 5).TotalPages)
}
