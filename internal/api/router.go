package api

import (
	"net/http"

	"github.com/ayo6706/transaction-stream-processor/internal/api/handler"
	"github.com/ayo6706/transaction-stream-processor/internal/api/middleware"
	"github.com/ayo6706/transaction-stream-processor/internal/api/spec"
	"github.com/ayo6706/transaction-stream-processor/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type Router struct {
	cfg          *config.Config
	logger       *zap.Logger
	health       *handler.HealthHandler
	transactions *handler.TransactionHandler
}

func NewRouter(cfg *config.Config, logger *zap.Logger, submitter handler.TransactionSubmitter, reader handler.TransactionReader, checks ...handler.Check) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		cfg:          cfg,
		logger:       logger,
		health:       handler.NewHealthHandler(checks...),
		transactions: handler.NewTransactionHandler(submitter, reader),
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	r.Get("/health/live", api.health.Live)
	r.Get("/health/ready", api.health.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Post("/v1/transactions", api.transactions.Create)
		r.Get("/v1/transactions/{id}", api.transactions.Get)
		r.Get("/v1/transactions/{id}/history", api.transactions.History)
	})

	return r
}
