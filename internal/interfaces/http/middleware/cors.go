// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"hephaestus-forge/internal/config"
)

// forge 路由只用到 GET/POST/DELETE
var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	defaultCORSHeaders = []string{"Origin", "Content-Type", "Accept", "Cache-Control", "Last-Event-ID", "X-Request-ID"}
	corsExposeHeaders  = []string{"X-Request-ID", "X-Trace-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"}
)

// CORS 跨域中间件；允许任意来源时不携带凭据
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	return cors.New(corsOptions(cfg))
}

func corsOptions(cfg config.CORSConfig) cors.Config {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 12 * time.Hour
	}

	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     methods,
		AllowHeaders:     headers,
		ExposeHeaders:    corsExposeHeaders,
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           maxAge,
	}
}
