package logger

import (
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig Sentry 上报配置
type SentryConfig struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
}

// InitSentry 初始化 Sentry；DSN 为空时不启用。返回的函数在退出前刷新缓冲
func InitSentry(cfg SentryConfig) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			if event.Request != nil {
				event.Request.Headers = filterSensitiveHeaders(event.Request.Headers)
			}
			return event
		},
	})
	if err != nil {
		return func() {}, err
	}
	return func() {
		sentry.Flush(2 * time.Second)
	}, nil
}

func filterSensitiveHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		switch strings.ToLower(k) {
		case "authorization", "cookie", "x-api-key":
			out[k] = "[Filtered]"
		default:
			out[k] = v
		}
	}
	return out
}
