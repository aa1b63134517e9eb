package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/fibpay/pkg/health"
	"github.com/utafrali/fibpay/pkg/middleware"
)

// RouterConfig carries the pieces the router wires together.
type RouterConfig struct {
	Payments *PaymentHandler
	Webhook  *WebhookHandler
	Health   *health.Handler
	Logger   *slog.Logger

	// Requests per second allowed per client IP on the callback route.
	WebhookRateLimitRPS int
}

// NewRouter builds the chi router with the shared middleware stack, the
// payment API, the callback endpoint and the operational endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.PrometheusMetrics("fibpay"))

	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Post("/", cfg.Payments.Create)
		r.Get("/{id}", cfg.Payments.Get)

		r.Route("/fib/{fibId}", func(r chi.Router) {
			r.Get("/", cfg.Payments.GetByFIBID)
			r.Post("/check", cfg.Payments.CheckStatus)
			r.Post("/refund", cfg.Payments.Refund)
			r.Get("/refund", cfg.Payments.GetRefund)
			r.Post("/cancel", cfg.Payments.Cancel)
		})

		r.Group(func(r chi.Router) {
			if cfg.WebhookRateLimitRPS > 0 {
				r.Use(middleware.RateLimit(cfg.WebhookRateLimitRPS, cfg.WebhookRateLimitRPS*2, cfg.Logger))
			}
			r.Post("/callback", cfg.Webhook.HandleCallback)
		})
	})

	return r
}
