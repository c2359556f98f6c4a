package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/catapult-sh/catapult/pkg/domain/interfaces"
	"github.com/catapult-sh/catapult/pkg/utils/broker"
	"github.com/catapult-sh/catapult/pkg/utils/reaper"
)

// config holds internal HTTP server configuration
type config struct {
	addr          string
	webhookSecret string
}

// Option is a functional option for Server configuration
type Option func(*config)

// WithAddr sets the server address
func WithAddr(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// WithWebhookSecret sets the secret shared with provider webhooks
func WithWebhookSecret(secret string) Option {
	return func(c *config) {
		c.webhookSecret = secret
	}
}

// Server represents the HTTP server
type Server struct {
	*http.Server
}

// NewServer wires the launch, status stream, webhook receiver, health
// and metrics endpoints onto one router
func NewServer(
	ctx context.Context,
	launcher interfaces.LaunchUseCase,
	preparer interfaces.Preparer,
	events *broker.Broker,
	opts ...Option,
) (*Server, error) {
	cfg := &config{
		addr: "localhost:8080",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	metrics := NewMetrics()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggingMiddleware(ctx))
	router.Use(MetricsMiddleware(metrics))
	router.Use(middleware.Recoverer)

	router.Get("/health", handleHealth)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	launchHandler := NewLaunchHandler(launcher, preparer, events, reaper.New(), metrics)
	router.Post("/launcher/launch", launchHandler.HandleLaunch)
	router.Post("/launcher/upload", launchHandler.HandleUpload)
	router.Get("/launcher/status/{uuid}", NewStatusHandler(events).Handle)

	router.Post("/hooks/catapult", NewHookHandler(cfg.webhookSecret).Handle)

	server := &Server{
		Server: &http.Server{
			Addr:              cfg.addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
		},
	}

	return server, nil
}
