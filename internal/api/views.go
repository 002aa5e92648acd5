package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Golden-Age-Club/server/internal/apperr"
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
	"github.com/Golden-Age-Club/server/internal/repos/risklogs"
	"github.com/go-chi/chi/v5"
)

type transactionView struct {
	ID               int64      `json:"transaction_id"`
	Kind             string     `json:"kind"`
	Amount           string     `json:"amount"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	MerchantOrderID  string     `json:"merchant_order_id,omitempty"`
	GatewayReference string     `json:"gateway_reference,omitempty"`
	Destination      string     `json:"wallet_address,omitempty"`
	FailureReason    string     `json:"failure_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

func newTransactionView(t *ledger.Transaction) transactionView {
	return transactionView{
		ID:               t.ID,
		Kind:             string(t.Kind),
		Amount:           t.Amount.StringFixed(2),
		Currency:         t.Currency,
		Status:           string(t.Status),
		MerchantOrderID:  t.ExternalReference,
		GatewayReference: t.GatewayReference,
		Destination:      t.Destination,
		FailureReason:    t.FailureReason,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		CompletedAt:      t.CompletedAt,
	}
}

type flagView struct {
	ID          int64          `json:"id"`
	AccountID   uint64         `json:"account_id"`
	Rule        string         `json:"rule"`
	Severity    string         `json:"severity"`
	Status      string         `json:"status"`
	ActionTaken string         `json:"action_taken,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Note        string         `json:"note,omitempty"`
	ResolvedBy  string         `json:"resolved_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
}

func newFlagView(f *risklogs.Flag) flagView {
	return flagView{
		ID:          f.ID,
		AccountID:   f.AccountID,
		Rule:        f.Rule,
		Severity:    string(f.Severity),
		Status:      string(f.Status),
		ActionTaken: string(f.ActionTaken),
		Details:     f.Details,
		Note:        f.Note,
		ResolvedBy:  f.ResolvedBy,
		CreatedAt:   f.CreatedAt,
		ResolvedAt:  f.ResolvedAt,
	}
}

// parseIDParam reads a positive numeric chi URL parameter.
func parseIDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.CodeValidation, fmt.Sprintf("invalid %s in path", name))
	}

	return id, nil
}
