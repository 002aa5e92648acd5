package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(d Deps) http.Handler {
	h := NewHandler(d)

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, requestLogger(h.logg), middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Post("/webhooks/gateway", h.GatewayWebhookHandler)
	r.Post("/provider/callback", h.ProviderCallbackHandler)
	r.Post("/internal/auth-events", h.requireInternalToken(h.AuthEventHandler))

	r.Route("/wallet", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Post("/deposit", h.DepositHandler)
		r.Post("/withdraw", h.WithdrawHandler)
		r.Get("/balance", h.BalanceHandler)
		r.Get("/transactions/{id}", h.TransactionHandler)
		r.Post("/game-session", h.GameSessionHandler)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.authenticate, h.requireAdmin)

		r.Post("/withdrawals/{id}/approve", h.ApproveWithdrawalHandler)
		r.Post("/withdrawals/{id}/reject", h.RejectWithdrawalHandler)
		r.Get("/accounts/{id}/risk-flags", h.ListRiskFlagsHandler)
		r.Get("/accounts/{id}/reconciliation", h.ReconciliationHandler)
		r.Post("/risk-flags/{id}/resolve", h.ResolveRiskFlagHandler)
		r.Post("/risk-flags/{id}/investigate", h.InvestigateRiskFlagHandler)
	})

	return r
}
