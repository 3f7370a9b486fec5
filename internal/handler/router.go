package handler

import (
	"net/http"

	"github.com/boddenberg/pj-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pj-ledger-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(accountSvc *service.AccountService, ledgerSvc *service.LedgerService, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(accountSvc))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", listAccountsHandler(accountSvc, logger))
			r.Post("/", createAccountHandler(accountSvc, logger))

			r.Route("/{accountId}", func(r chi.Router) {
				r.Get("/", getAccountHandler(accountSvc, logger))
				r.Put("/", updateAccountHandler(accountSvc, logger))
				r.Delete("/", deleteAccountHandler(accountSvc, logger))
				r.Get("/transactions", listTransactionsHandler(accountSvc, logger))
				r.Get("/statement", getStatementHandler(accountSvc, logger))
				r.Get("/allowance", getAllowanceHandler(ledgerSvc, logger))
				r.Post("/deposit", depositHandler(ledgerSvc, logger))
				r.Post("/withdraw", withdrawHandler(ledgerSvc, logger))
			})
		})

		r.Post("/transfers", transferHandler(ledgerSvc, logger))
		r.Get("/metrics/ledger", ledgerMetricsHandler(metrics))
	})

	return r
}

func healthzHandler(svc *service.AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := svc.Health(r.Context())
		status := http.StatusOK
		if health.Status == "unhealthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, health)
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
