package api

import (
	"net/http"

	"github.com/Golden-Age-Club/server/internal/services/wallet"
	"github.com/shopspring/decimal"
)

type depositRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" validate:"required,max=10"`
	ReturnURL string          `json:"return_url" validate:"omitempty,url,max=2048"`
}

type depositResponse struct {
	TransactionID   int64  `json:"transaction_id"`
	Status          string `json:"status"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	PaymentURL      string `json:"payment_url,omitempty"`
	PaymentAddress  string `json:"payment_address,omitempty"`
	MerchantOrderID string `json:"merchant_order_id"`
}

type withdrawRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	WalletAddress string          `json:"wallet_address" validate:"required,min=10,max=128"`
	Currency      string          `json:"currency" validate:"required,max=10"`
}

type gameSessionRequest struct {
	GameID string `json:"game_id" validate:"required,max=64"`
}

// DepositHandler handles POST /wallet/deposit
func (h *HandlerProvider) DepositHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, err := accountFrom(ctx)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	var req depositRequest

	err = decodeJSONBody(w, r, &req)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	res, err := h.wallet.CreateDeposit(ctx, wallet.DepositRequest{
		AccountID: accountID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		ReturnURL: req.ReturnURL,
	})
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	tx := res.Transaction
	writeJSON(ctx, h.logg, w, http.StatusCreated, depositResponse{
		TransactionID:   tx.ID,
		Status:          string(tx.Status),
		Amount:          tx.Amount.StringFixed(2),
		Currency:        tx.Currency,
		PaymentURL:      res.PaymentURL,
		PaymentAddress:  res.PaymentAddress,
		MerchantOrderID: tx.ExternalReference,
	})
}

// WithdrawHandler handles POST /wallet/withdraw
func (h *HandlerProvider) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, err := accountFrom(ctx)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	var req withdrawRequest

	err = decodeJSONBody(w, r, &req)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	tx, err := h.wallet.CreateWithdrawal(ctx, wallet.WithdrawalRequest{
		AccountID: accountID,
		Amount:    req.Amount,
		Address:   req.WalletAddress,
		Currency:  req.Currency,
	})
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	writeJSON(ctx, h.logg, w, http.StatusCreated, newTransactionView(tx))
}

// BalanceHandler handles GET /wallet/balance
func (h *HandlerProvider) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, err := accountFrom(ctx)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	view, err := h.wallet.Balance(ctx, accountID)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	writeJSON(ctx, h.logg, w, http.StatusOK, map[string]any{
		"account_id": view.AccountID,
		"balance":    view.Balance.StringFixed(2),
		"currency":   view.Currency,
	})
}

// TransactionHandler handles GET /wallet/transactions/{id}
func (h *HandlerProvider) TransactionHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, err := accountFrom(ctx)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	tx, err := h.wallet.Transaction(ctx, accountID, id)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	writeJSON(ctx, h.logg, w, http.StatusOK, newTransactionView(tx))
}

// GameSessionHandler handles POST /wallet/game-session
func (h *HandlerProvider) GameSessionHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, err := accountFrom(ctx)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	var req gameSessionRequest

	err = decodeJSONBody(w, r, &req)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	token, err := h.provider.LaunchToken(ctx, accountID, req.GameID)
	if err != nil {
		writeError(ctx, h.logg, w, err)
		return
	}

	writeJSON(ctx, h.logg, w, http.StatusOK, map[string]string{"player_token": token})
}
