package handler

import (
	"context"
	"net/http"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/observability"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter creates the HTTP router with all routes and middleware.
// store may be nil, in which case health checks only report the API itself.
func NewRouter(customerSvc *service.CustomerService, authSvc *service.AuthService, store Pinger, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(store, logger))
	r.Get("/readyz", readyzHandler(store, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/metrics/customers", customerMetricsHandler(metrics))

	if customerSvc == nil || authSvc == nil {
		return r
	}

	// =============================================
	// Autenticação
	// POST /auth/login
	// =============================================
	r.Post("/auth/login", loginHandler(authSvc, logger))

	// =============================================
	// Clientes
	// =============================================
	r.Route("/customers", func(r chi.Router) {
		// Public: self-registration
		r.Post("/", createCustomerHandler(customerSvc, logger))

		// Protected
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(authSvc, logger))

			r.Get("/", listCustomersHandler(customerSvc, logger))
			r.Get("/search", searchCustomersHandler(customerSvc, logger))
			r.Get("/national_id/{nationalId}", getCustomerByCPFHandler(customerSvc, logger))
			r.Get("/email/{email}", getCustomerByEmailHandler(customerSvc, logger))
			r.Get("/{id}", getCustomerHandler(customerSvc, logger))
			r.Put("/{id}", updateCustomerHandler(customerSvc, logger))
			r.Delete("/{id}", deleteCustomerHandler(customerSvc, logger))
		})
	})

	return r
}
