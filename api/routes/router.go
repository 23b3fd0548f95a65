package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fxmediacalicut-cloud/telegrambot/api/controllers"
	"github.com/fxmediacalicut-cloud/telegrambot/api/middleware"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/config"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/logger"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/metrics"
	pkgredis "github.com/fxmediacalicut-cloud/telegrambot/pkg/redis"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Dedup    pkgredis.DedupStore
	Sink     controllers.UpdateSink
	Metrics  *metrics.TransactionMetrics
	Registry *prometheus.Registry
	// ReadyChecks is probed by the readiness endpoint, keyed by dependency name.
	ReadyChecks map[string]func() error
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Logger),
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(deps.Config))
		r.Get("/ready", controllers.HealthReady(deps.Config, deps.Logger, deps.ReadyChecks))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Post("/webhook/{token}", controllers.TelegramWebhook(
		deps.Config.Bot.Token, deps.Dedup, deps.Sink, deps.Metrics, deps.Logger))

	return r
}
