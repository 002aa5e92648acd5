package api

import (
	"net/http"

	"github.com/Golden-Age-Club/server/internal/repos/risklogs"
)

type approveRequest struct {
	Note string `json:"note" validate:"max=500"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type resolveFlagRequest struct {
	Action string `json:"action" validate:"required,oneof=none freeze restrict warn"`
	Note   string `json:"note" validate:"max=1000"`
}

// ApproveWithdrawalHandler handles POST /admin/withdrawals/{id}/approve
func (h *HandlerProvider) ApproveWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	var req approveRequest

	err = decodeOptionalJSONBody(w, r, &req)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	tx, err := h.wallet.ApproveWithdrawal(ctx, id, req.Note, subjectFrom(ctx))
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	writeJSON(ctx, h.logg, w, http.StatusOK, newTransactionView(tx))
}

// RejectWithdrawalHandler handles POST /admin/withdrawals/{id}/reject
func (h *HandlerProvider) RejectWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	var req rejectRequest

	err = decodeJSONBody(w, r, &req)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	tx, err := h.wallet.RejectWithdrawal(ctx, id, req.Reason, subjectFrom(ctx))
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	writeJSON(ctx, h.logg, w, http.StatusOK, newTransactionView(tx))
}

// ListRiskFlagsHandler handles GET /admin/accounts/{id}/risk-flags?open=true
func (h *HandlerProvider) ListRiskFlagsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	openOnly := r.URL.Query().Get("open") == "true"

	flags, err := h.risk.ListFlags(ctx, uint64(id), openOnly)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	out := make([]flagView, 0, len(flags))
	for i := range flags {
		out = append(out, newFlagView(&flags[i]))
	}

	writeJSON(ctx, h.logg, w, http.StatusOK, map[string]any{"flags": out})
}

// ResolveRiskFlagHandler handles POST /admin/risk-flags/{id}/resolve
func (h *HandlerProvider) ResolveRiskFlagHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	var req resolveFlagRequest

	err = decodeJSONBody(w, r, &req)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	flag, err := h.risk.ResolveFlag(ctx, id, risklogs.Action(req.Action), req.Note, subjectFrom(ctx))
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	writeJSON(ctx, h.logg, w, http.StatusOK, newFlagView(flag))
}

// InvestigateRiskFlagHandler handles POST /admin/risk-flags/{id}/investigate
func (h *HandlerProvider) InvestigateRiskFlagHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	flag, err := h.risk.InvestigateFlag(ctx, id)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	writeJSON(ctx, h.logg, w, http.StatusOK, newFlagView(flag))
}

// ReconciliationHandler handles GET /admin/accounts/{id}/reconciliation
func (h *HandlerProvider) ReconciliationHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	rec, err := h.wallet.Reconcile(ctx, uint64(id))
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	writeJSON(ctx, h.logg, w, http.StatusOK, map[string]any{
		"account_id": rec.AccountID,
		"balance":    rec.Balance.StringFixed(2),
		"ledger_sum": rec.LedgerSum.StringFixed(2),
		"difference": rec.Difference.StringFixed(2),
		"consistent": rec.Consistent,
	})
}
