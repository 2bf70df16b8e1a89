package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"hephaestus-forge/internal/config"
)

func TestCORSOptions_Defaults(t *testing.T) {
	opts := corsOptions(config.CORSConfig{})

	assert.Equal(t, []string{"*"}, opts.AllowOrigins)
	assert.Equal(t, []string{"GET", "POST", "DELETE", "OPTIONS"}, opts.AllowMethods)
	assert.Contains(t, opts.AllowHeaders, "Last-Event-ID")
	assert.Contains(t, opts.ExposeHeaders, "X-RateLimit-Remaining")
	assert.False(t, opts.AllowCredentials)
	assert.Equal(t, 12*time.Hour, opts.MaxAge)
}

func TestCORSOptions_ExplicitOriginsAllowCredentials(t *testing.T) {
	opts := corsOptions(config.CORSConfig{
		AllowedOrigins: []string{"http://localhost:5173"},
		MaxAge:         time.Hour,
	})
	assert.True(t, opts.AllowCredentials)
	assert.Equal(t, time.Hour, opts.MaxAge)
}

func TestCORS_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(config.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}}))
	r.DELETE("/v1/session", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/v1/session", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
}
