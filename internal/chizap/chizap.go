// Package chizap logs requests served by a chi router with zap.
package chizap

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	// SkipPaths are not logged unless the response is an error.
	SkipPaths []string
	// Fields adds request specific fields to each entry.
	Fields       func(r *http.Request) []zapcore.Field
	DefaultLevel zapcore.Level
}

func Chizap(logger *zap.Logger) func(next http.Handler) http.Handler {
	return ChizapWithConfig(logger, &Config{DefaultLevel: zapcore.InfoLevel})
}

func ChizapWithConfig(logger *zap.Logger, conf *Config) func(next http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(conf.SkipPaths))
	for _, p := range conf.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				if _, ok := skip[r.URL.Path]; ok && status < 400 {
					return
				}
				fields := []zapcore.Field{
					zap.Int("status", status),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("ip", r.RemoteAddr),
					zap.String("user-agent", r.UserAgent()),
					zap.Duration("latency", time.Since(start)),
				}
				if reqID := middleware.GetReqID(r.Context()); reqID != "" {
					fields = append(fields, zap.String("request-id", reqID))
				}
				if conf.Fields != nil {
					fields = append(fields, conf.Fields(r)...)
				}
				level := conf.DefaultLevel
				if status >= 500 {
					level = zapcore.ErrorLevel
				} else if status >= 400 {
					level = zapcore.WarnLevel
				}
				logger.Log(level, "request", fields...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
