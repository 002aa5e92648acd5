package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/Golden-Age-Club/server/internal/apperr"
	"github.com/Golden-Age-Club/server/internal/gateway"
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
	"github.com/google/uuid"
)

// CreateDeposit records a pending deposit and asks the gateway for an
// invoice. The balance only moves when the gateway later confirms payment.
func (s *Service) CreateDeposit(ctx context.Context, req DepositRequest) (*DepositResult, error) {
	err := s.validateAmount(req.Amount, s.cfg.MinDeposit, s.cfg.MaxDeposit)
	if err != nil {
		return nil, err
	}

	currency, err := s.normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	_, err = s.accounts.Get(ctx, s.db, req.AccountID)
	if err != nil {
		return nil, mapAccountErr(err)
	}

	tx := &ledger.Transaction{
		AccountID:         req.AccountID,
		Kind:              ledger.KindDeposit,
		Amount:            req.Amount,
		Currency:          currency,
		Status:            ledger.StatusPending,
		IdempotencyKey:    uuid.NewString(),
		ExternalReference: s.merchantOrderID("DEP", req.AccountID),
		Metadata:          ledger.Metadata{},
	}
	if req.ReturnURL != "" {
		tx.Metadata[metaReturnURL] = req.ReturnURL
	}

	err = s.ledger.Insert(ctx, s.db, tx)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			return nil, apperr.Wrap(apperr.CodeInconsistentState, err, "a deposit was just requested, retry shortly")
		}

		return nil, fmt.Errorf("insert deposit: %w", err)
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"transaction_id":    tx.ID,
		"merchant_order_id": tx.ExternalReference,
	})

	inv, err := s.gateway.CreateInvoice(ctx, gateway.InvoiceRequest{
		MerchantOrderID: tx.ExternalReference,
		Amount:          tx.Amount,
		Currency:        tx.Currency,
		ReturnURL:       req.ReturnURL,
	})
	if err != nil {
		s.logg.Error(ctx, "deposit invoice failed", err)

		_, ferr := s.ledger.Apply(ctx, s.db, ledger.Transition{
			ID:      tx.ID,
			Allowed: []ledger.Status{ledger.StatusPending},
			To:      ledger.StatusFailed,
			Reason:  "gateway invoice failed: " + err.Error(),
		})
		if ferr != nil {
			s.logg.Error(ctx, "mark deposit failed", ferr)
		}

		return nil, apperr.Wrap(apperr.CodeProviderUnavailable, err, "payment provider unavailable")
	}

	meta := ledger.Metadata{
		metaPaymentURL:     inv.PaymentURL,
		metaPaymentAddress: inv.PaymentAddress,
	}

	err = s.ledger.SetGatewayReference(ctx, s.db, tx.ID, inv.OrderID, meta)
	if err != nil {
		return nil, fmt.Errorf("store gateway reference: %w", err)
	}

	tx.GatewayReference = inv.OrderID
	for k, v := range meta {
		tx.Metadata[k] = v
	}

	s.logg.Info(ctx, "deposit created")

	return &DepositResult{
		Transaction:    tx,
		PaymentURL:     inv.PaymentURL,
		PaymentAddress: inv.PaymentAddress,
	}, nil
}
