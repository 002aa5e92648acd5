package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Golden-Age-Club/server/internal/apperr"
	"github.com/Golden-Age-Club/server/internal/gateway"
	"github.com/Golden-Age-Club/server/internal/infra/pgutils"
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
	"github.com/google/uuid"
)

var refundableWithdrawal = []ledger.Status{
	ledger.StatusPending,
	ledger.StatusProcessing,
	ledger.StatusExpired,
}

// CreateWithdrawal reserves the funds and records a pending withdrawal in a
// single database transaction. The payout is only sent once an operator
// approves it.
func (s *Service) CreateWithdrawal(ctx context.Context, req WithdrawalRequest) (*ledger.Transaction, error) {
	err := s.validateAmount(req.Amount, s.cfg.MinWithdrawal, s.cfg.MaxWithdrawal)
	if err != nil {
		return nil, err
	}

	currency, err := s.normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	tx := &ledger.Transaction{
		AccountID:         req.AccountID,
		Kind:              ledger.KindWithdrawal,
		Amount:            req.Amount,
		Currency:          currency,
		Status:            ledger.StatusPending,
		IdempotencyKey:    uuid.NewString(),
		ExternalReference: s.merchantOrderID("WD", req.AccountID),
		Destination:       req.Address,
		Metadata:          ledger.Metadata{},
	}

	err = pgutils.WithTx(ctx, s.db, func(dbtx *sql.Tx) error {
		_, err := s.accounts.Debit(ctx, dbtx, req.AccountID, req.Amount)
		if err != nil {
			return mapAccountErr(err)
		}

		err = s.ledger.Insert(ctx, dbtx, tx)
		if err != nil {
			if errors.Is(err, ledger.ErrDuplicateTransaction) {
				return apperr.Wrap(apperr.CodeInconsistentState, err, "a withdrawal was just requested, retry shortly")
			}

			return fmt.Errorf("insert withdrawal: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transaction_id":    tx.ID,
		"merchant_order_id": tx.ExternalReference,
		"account_id":        tx.AccountID,
	}), "withdrawal requested")

	return tx, nil
}

// ApproveWithdrawal hands a pending withdrawal to the gateway. If the payout
// call fails the reservation is returned behind the processing -> failed
// transition.
func (s *Service) ApproveWithdrawal(ctx context.Context, id int64, note, by string) (*ledger.Transaction, error) {
	tx, err := s.getWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"transaction_id":    tx.ID,
		"merchant_order_id": tx.ExternalReference,
	})

	ok, err := s.ledger.Apply(ctx, s.db, ledger.Transition{
		ID:      tx.ID,
		Allowed: []ledger.Status{ledger.StatusPending},
		To:      ledger.StatusProcessing,
	})
	if err != nil {
		return nil, fmt.Errorf("approve withdrawal: %w", err)
	}
	if !ok {
		return nil, apperr.Newf(apperr.CodeInconsistentState, "withdrawal is %s", tx.Status)
	}

	err = s.ledger.MergeMetadata(ctx, s.db, tx.ID, ledger.Metadata{metaApprovedBy: by, metaApprovalNote: note})
	if err != nil {
		s.logg.Error(ctx, "record approval", err)
	}

	payout, err := s.gateway.CreatePayout(ctx, gateway.PayoutRequest{
		MerchantOrderID: tx.ExternalReference,
		Address:         tx.Destination,
		Amount:          tx.Amount,
		Currency:        tx.Currency,
	})
	if err != nil {
		s.logg.Error(ctx, "payout request failed", err)

		_, cerr := s.refund(ctx, tx, []ledger.Status{ledger.StatusProcessing}, "payout failed: "+err.Error())
		if cerr != nil {
			return nil, fmt.Errorf("compensate failed payout: %w", cerr)
		}

		return nil, apperr.Wrap(apperr.CodeProviderUnavailable, err, "payment provider unavailable")
	}

	err = s.ledger.SetGatewayReference(ctx, s.db, tx.ID, payout.OrderID, ledger.Metadata{metaPayoutStatus: payout.Status})
	if err != nil {
		return nil, fmt.Errorf("store payout reference: %w", err)
	}

	s.logg.Info(ctx, "withdrawal approved")

	return s.reload(ctx, tx.ID)
}

// RejectWithdrawal fails the withdrawal and returns the reservation.
func (s *Service) RejectWithdrawal(ctx context.Context, id int64, reason, by string) (*ledger.Transaction, error) {
	tx, err := s.getWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}

	if reason == "" {
		reason = "rejected by operator"
	}

	ok, err := s.refund(ctx, tx, refundableWithdrawal, reason)
	if err != nil {
		return nil, fmt.Errorf("reject withdrawal: %w", err)
	}
	if !ok {
		current, rerr := s.reload(ctx, tx.ID)
		if rerr != nil {
			return nil, rerr
		}

		return nil, apperr.Newf(apperr.CodeInconsistentState, "withdrawal is %s", current.Status)
	}

	err = s.ledger.MergeMetadata(ctx, s.db, tx.ID, ledger.Metadata{metaRejectedBy: by})
	if err != nil {
		s.logg.Error(ctx, "record rejection", err)
	}

	s.logg.Info(s.logg.WithField(ctx, "transaction_id", tx.ID), "withdrawal rejected")

	return s.reload(ctx, tx.ID)
}

// refund moves the withdrawal to failed and credits the amount back, both or
// neither. It reports whether the transition matched.
func (s *Service) refund(ctx context.Context, tx *ledger.Transaction, from []ledger.Status, reason string) (bool, error) {
	var matched bool

	err := pgutils.WithTx(ctx, s.db, func(dbtx *sql.Tx) error {
		ok, err := s.ledger.Apply(ctx, dbtx, ledger.Transition{
			ID:      tx.ID,
			Allowed: from,
			To:      ledger.StatusFailed,
			Reason:  reason,
		})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		_, err = s.accounts.Credit(ctx, dbtx, tx.AccountID, tx.Amount)
		if err != nil {
			return fmt.Errorf("credit back: %w", err)
		}

		matched = true

		return nil
	})

	return matched, err
}

func (s *Service) getWithdrawal(ctx context.Context, id int64) (*ledger.Transaction, error) {
	tx, err := s.ledger.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, mapLedgerErr(err)
	}

	if tx.Kind != ledger.KindWithdrawal {
		return nil, apperr.New(apperr.CodeNotFound, "withdrawal not found")
	}

	return tx, nil
}

func (s *Service) reload(ctx context.Context, id int64) (*ledger.Transaction, error) {
	tx, err := s.ledger.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, mapLedgerErr(err)
	}

	return tx, nil
}
