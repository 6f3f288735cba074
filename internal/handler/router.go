package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/rpironato1/credit-ledger-go/internal/domain"
	"github.com/rpironato1/credit-ledger-go/internal/infra/observability"
	"github.com/rpironato1/credit-ledger-go/internal/port"
	"github.com/rpironato1/credit-ledger-go/internal/service"
)

var tracer = otel.Tracer("handler")

// RouterConfig carries the HTTP-surface switches.
type RouterConfig struct {
	JWTSecret      string // empty disables auth (dev mode)
	DevTools       bool
	IdempotencyTTL time.Duration
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(ledger *service.LedgerService, authorizer *service.AuthorizerService, subs *service.SubscriptionService, kv port.KV, metrics *observability.Metrics, cfg RouterConfig, logger *zap.Logger) http.Handler {
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
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", idempotencyHeader},
		MaxAge:         300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// Plan catalog (public)
		r.Get("/plans", plansHandler(logger))

		// Ledger metrics snapshot for dashboards
		r.Get("/metrics/ledger", ledgerMetricsHandler(metrics, logger))

		// Per-user ledger and subscription
		r.Route("/users/{userId}", func(r chi.Router) {
			if cfg.JWTSecret != "" {
				r.Use(JWTAuthMiddleware(cfg.JWTSecret, logger))
				r.Use(RequireUserMatch(logger))
			}
			r.Use(IdempotencyMiddleware(kv, cfg.IdempotencyTTL, logger))

			r.Get("/balance", getBalanceHandler(ledger, logger))
			r.Get("/transactions", listTransactionsHandler(ledger, logger))
			r.Get("/ledger/audit", auditHandler(ledger, logger))
			r.Post("/consume", consumeHandler(authorizer, logger))

			r.Get("/subscription", getSubscriptionHandler(subs, logger))
			r.Post("/subscription", purchaseHandler(subs, logger))
			r.Put("/subscription/plan", changePlanHandler(subs, logger))
			r.Post("/subscription/cancel", cancelHandler(subs, logger))
			r.Post("/subscription/reactivate", reactivateHandler(subs, logger))
		})

		// =============================================
		// Dev Tools (testing helpers)
		// =============================================
		if cfg.DevTools {
			r.Post("/dev/add-credits", devAddCreditsHandler(ledger, logger))
			r.Post("/dev/generate-transactions", devGenerateTransactionsHandler(ledger, logger))
		}
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "credit-ledger",
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// ============================================================
// Plans — GET /v1/plans
// ============================================================

func plansHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/plans")
		defer span.End()

		writeJSON(w, http.StatusOK, map[string]any{
			"plans":   domain.Plans(),
			"actions": domain.Actions(),
		})
	}
}

// ============================================================
// Balance — GET /v1/users/{userId}/balance
// ============================================================

func getBalanceHandler(ledger *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/balance")
		defer span.End()

		balance, err := ledger.GetBalance(ctx, chi.URLParam(r, "userId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, balance)
	}
}

// ============================================================
// Transactions — GET /v1/users/{userId}/transactions
// ============================================================

func listTransactionsHandler(ledger *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/transactions")
		defer span.End()

		txs, err := ledger.ListTransactions(ctx, chi.URLParam(r, "userId"), parseLimit(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"transactions": txs,
			"count":        len(txs),
		})
	}
}

// ============================================================
// Audit — GET /v1/users/{userId}/ledger/audit
// ============================================================

func auditHandler(ledger *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/ledger/audit")
		defer span.End()

		report, err := ledger.Audit(ctx, chi.URLParam(r, "userId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// ============================================================
// Consumption — POST /v1/users/{userId}/consume
// ============================================================

func consumeHandler(authorizer *service.AuthorizerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/users/{userId}/consume")
		defer span.End()

		var req domain.ConsumeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		result, err := authorizer.Consume(ctx, chi.URLParam(r, "userId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// ============================================================
// Subscription lifecycle
// ============================================================

func getSubscriptionHandler(subs *service.SubscriptionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/subscription")
		defer span.End()

		sub, err := subs.Get(ctx, chi.URLParam(r, "userId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

func purchaseHandler(subs *service.SubscriptionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/users/{userId}/subscription")
		defer span.End()

		var req domain.PurchaseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		result, err := subs.Purchase(ctx, chi.URLParam(r, "userId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

func changePlanHandler(subs *service.SubscriptionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/users/{userId}/subscription/plan")
		defer span.End()

		var req domain.ChangePlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		result, err := subs.ChangePlan(ctx, chi.URLParam(r, "userId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func cancelHandler(subs *service.SubscriptionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/users/{userId}/subscription/cancel")
		defer span.End()

		sub, err := subs.Cancel(ctx, chi.URLParam(r, "userId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

func reactivateHandler(subs *service.SubscriptionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/users/{userId}/subscription/reactivate")
		defer span.End()

		sub, err := subs.Reactivate(ctx, chi.URLParam(r, "userId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

// ============================================================
// Metrics snapshot — GET /v1/metrics/ledger
// ============================================================

func ledgerMetricsHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/metrics/ledger")
		defer span.End()

		writeJSON(w, http.StatusOK, metrics.GetLedgerSnapshot())
	}
}

// ============================================================
// Dev Tools
// ============================================================

func devAddCreditsHandler(ledger *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/dev/add-credits")
		defer span.End()

		var req domain.AddCreditsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		resp, err := ledger.DevAddCredits(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func devGenerateTransactionsHandler(ledger *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/dev/generate-transactions")
		defer span.End()

		var req domain.GenerateTransactionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		resp, err := ledger.DevGenerateTransactions(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
