package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/tgdrive/filebot/internal/chizap"
	"github.com/tgdrive/filebot/internal/metrics"
	"github.com/tgdrive/filebot/internal/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const WebhookPath = "/webhook"

func NewRouter(c *Controller, lg *zap.Logger, webhookSecret string) http.Handler {
	mux := chi.NewRouter()
	mux.Use(chimiddleware.Recoverer)
	mux.Use(chimiddleware.RealIP)
	mux.Use(middleware.InjectLogger(lg))
	mux.Use(metrics.Middleware())
	mux.Use(chizap.ChizapWithConfig(lg, &chizap.Config{
		SkipPaths:    []string{"/", "/healthz", "/metrics"},
		DefaultLevel: zapcore.DebugLevel,
	}))

	mux.Get("/", c.Health)
	mux.Get("/healthz", c.Health)
	mux.Handle("/metrics", metrics.Handler())
	mux.With(middleware.WebhookSecret(webhookSecret)).Post(WebhookPath, c.Webhook)
	return mux
}
