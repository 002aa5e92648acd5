package api

import (
	"io"
	"net/http"

	"github.com/Golden-Age-Club/server/internal/apperr"
	"github.com/Golden-Age-Club/server/internal/services/paymentwebhook"
)

type authEventRequest struct {
	AccountID uint64 `json:"account_id" validate:"required"`
	Success   *bool  `json:"success" validate:"required"`
}

// GatewayWebhookHandler handles POST /webhooks/gateway
func (h *HandlerProvider) GatewayWebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(ctx, h.logg, w, apperr.Wrap(apperr.CodeValidation, err, "unreadable body"))
		return
	}

	_, err = h.webhooks.Handle(ctx, paymentwebhook.Delivery{
		AppID:     r.Header.Get("Appid"),
		Timestamp: r.Header.Get("Timestamp"),
		Sign:      r.Header.Get("Sign"),
		Body:      body,
	})
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	writeJSON(ctx, h.logg, w, http.StatusOK, map[string]string{"status": "success"})
}

// ProviderCallbackHandler handles POST /provider/callback. The provider
// only understands HTTP 200 with an in-body result code.
func (h *HandlerProvider) ProviderCallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logg.Warn(ctx, "provider callback body unreadable")
	}

	writeJSON(ctx, h.logg, w, http.StatusOK, h.provider.Handle(ctx, body))
}

// AuthEventHandler handles POST /internal/auth-events
func (h *HandlerProvider) AuthEventHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authEventRequest

	err := decodeJSONBody(w, r, &req)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	err = h.risk.RecordLogin(ctx, req.AccountID, *req.Success)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
