// Package paymentwebhook applies payment gateway notifications to the ledger.
// The gateway delivers at least once and in any order; every economic effect
// sits behind a single conditional status write so repeats are harmless.
package paymentwebhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Golden-Age-Club/server/internal/apperr"
	"github.com/Golden-Age-Club/server/internal/config"
	"github.com/Golden-Age-Club/server/internal/infra/logging"
	"github.com/Golden-Age-Club/server/internal/infra/pgutils"
	"github.com/Golden-Age-Club/server/internal/metrics"
	"github.com/Golden-Age-Club/server/internal/repos/accounts"
	pgaccounts "github.com/Golden-Age-Club/server/internal/repos/accounts/postgres"
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
	pgledger "github.com/Golden-Age-Club/server/internal/repos/ledger/postgres"
	"github.com/Golden-Age-Club/server/internal/signature"
)

const activationType = "ActivateWebhookURL"

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeActivated Outcome = "activated"
)

// Delivery is one inbound webhook call as received.
type Delivery struct {
	AppID     string
	Timestamp string
	Sign      string
	Body      []byte
}

type Result struct {
	Outcome     Outcome
	Transaction *ledger.Transaction
}

// RiskHook is notified after a deposit completes.
type RiskHook interface {
	AfterDeposit(ctx context.Context, accountID uint64)
}

type Reconciler struct {
	db       *sql.DB
	accounts accounts.Accounts
	ledger   ledger.Ledger
	cfg      config.GatewayConfig
	risk     RiskHook
	logg     *logging.Logger
	metrics  *metrics.LedgerMetrics
	now      func() time.Time
}

func New(db *sql.DB, cfg config.GatewayConfig, risk RiskHook, logg *logging.Logger, m *metrics.LedgerMetrics) *Reconciler {
	if logg == nil {
		logg = logging.Nop()
	}

	return &Reconciler{
		db:       db,
		accounts: pgaccounts.New(),
		ledger:   pgledger.New(),
		cfg:      cfg,
		risk:     risk,
		logg:     logg,
		metrics:  m,
		now:      time.Now,
	}
}

func (r *Reconciler) Handle(ctx context.Context, d Delivery) (*Result, error) {
	params, err := signature.DecodeParams(d.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, "invalid webhook body")
	}

	if stringParam(params, "type") == activationType {
		return r.activate(ctx, d)
	}

	orderID := stringParam(params, "merchant_order_id")
	status := strings.ToLower(stringParam(params, "order_status"))

	ctx = r.logg.WithFields(ctx, map[string]any{
		"merchant_order_id": orderID,
		"order_status":      status,
	})

	if !signature.VerifyGateway(params, d.Timestamp, d.Sign, r.cfg.AppSecret) {
		r.logg.Warn(ctx, "gateway webhook signature rejected")
		r.metrics.Webhook("unknown", "invalid_signature")

		return nil, apperr.New(apperr.CodeInvalidSignature, "invalid signature")
	}

	if orderID == "" {
		return nil, apperr.New(apperr.CodeValidation, "merchant_order_id is required")
	}

	tx, err := r.ledger.GetByExternalReference(ctx, r.db, orderID)
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			r.logg.Warn(ctx, "gateway webhook for unknown order")
			r.metrics.Webhook("unknown", "not_found")

			return nil, apperr.Wrap(apperr.CodeNotFound, err, "transaction not found")
		}

		return nil, fmt.Errorf("find order: %w", err)
	}

	ctx = r.logg.WithField(ctx, "transaction_id", tx.ID)

	var res *Result
	switch tx.Kind {
	case ledger.KindDeposit:
		res, err = r.reconcileDeposit(ctx, tx, status, d.Body)
	case ledger.KindWithdrawal:
		res, err = r.reconcileWithdrawal(ctx, tx, status, d.Body)
	default:
		err = apperr.Newf(apperr.CodeInconsistentState, "order refers to a %s", tx.Kind)
	}
	if err != nil {
		r.metrics.Webhook(string(tx.Kind), "error")
		return nil, err
	}

	r.metrics.Webhook(string(tx.Kind), string(res.Outcome))
	r.logg.Info(r.logg.WithField(ctx, "outcome", string(res.Outcome)), "gateway webhook reconciled")

	return res, nil
}

func (r *Reconciler) activate(ctx context.Context, d Delivery) (*Result, error) {
	if d.AppID != "" && d.AppID != r.cfg.AppID {
		return nil, apperr.New(apperr.CodeInvalidSignature, "unknown app id")
	}

	if !signature.VerifyActivation(r.cfg.AppID, d.Timestamp, d.Body, d.Sign, r.cfg.AppSecret) {
		r.logg.Warn(ctx, "webhook activation signature rejected")
		return nil, apperr.New(apperr.CodeInvalidSignature, "invalid signature")
	}

	r.logg.Info(ctx, "webhook url activated")

	return &Result{Outcome: OutcomeActivated}, nil
}

func (r *Reconciler) reconcileDeposit(ctx context.Context, tx *ledger.Transaction, status string, raw []byte) (*Result, error) {
	switch status {
	case "paid", "confirmed":
		res, err := r.transition(ctx, tx, ledger.Transition{
			ID:      tx.ID,
			Allowed: []ledger.Status{ledger.StatusPending, ledger.StatusProcessing, ledger.StatusFailed, ledger.StatusExpired},
			To:      ledger.StatusCompleted,
			Payload: raw,
		}, func(dbtx *sql.Tx) error {
			_, err := r.accounts.Credit(ctx, dbtx, tx.AccountID, tx.Amount)
			if err != nil {
				return fmt.Errorf("credit deposit: %w", err)
			}

			return r.accounts.RecordCompletedDeposit(ctx, dbtx, tx.AccountID, r.now())
		})
		if err != nil {
			return nil, err
		}

		if res.Outcome == OutcomeApplied && r.risk != nil {
			r.risk.AfterDeposit(ctx, tx.AccountID)
		}

		return res, nil

	case "expired", "failed":
		return r.transition(ctx, tx, ledger.Transition{
			ID:      tx.ID,
			Allowed: []ledger.Status{ledger.StatusPending, ledger.StatusProcessing, ledger.StatusExpired},
			To:      ledger.StatusFailed,
			Reason:  "gateway reported " + status,
			Payload: raw,
		}, nil)

	default:
		return r.ignore(ctx, tx)
	}
}

func (r *Reconciler) reconcileWithdrawal(ctx context.Context, tx *ledger.Transaction, status string, raw []byte) (*Result, error) {
	open := []ledger.Status{ledger.StatusPending, ledger.StatusProcessing, ledger.StatusExpired}

	switch status {
	case "success", "completed":
		return r.transition(ctx, tx, ledger.Transition{
			ID:      tx.ID,
			Allowed: open,
			To:      ledger.StatusCompleted,
			Payload: raw,
		}, nil)

	case "failed":
		return r.transition(ctx, tx, ledger.Transition{
			ID:      tx.ID,
			Allowed: open,
			To:      ledger.StatusFailed,
			Reason:  "gateway reported payout failure",
			Payload: raw,
		}, func(dbtx *sql.Tx) error {
			_, err := r.accounts.Credit(ctx, dbtx, tx.AccountID, tx.Amount)
			if err != nil {
				return fmt.Errorf("credit back withdrawal: %w", err)
			}

			return nil
		})

	default:
		return r.ignore(ctx, tx)
	}
}

// transition applies t and, only when it matched, effect, in one database
// transaction. A write that matches nothing is a repeated delivery.
func (r *Reconciler) transition(ctx context.Context, tx *ledger.Transaction, t ledger.Transition, effect func(*sql.Tx) error) (*Result, error) {
	var matched bool

	err := pgutils.WithTx(ctx, r.db, func(dbtx *sql.Tx) error {
		ok, err := r.ledger.Apply(ctx, dbtx, t)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		matched = true
		if effect == nil {
			return nil
		}

		return effect(dbtx)
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", tx.Kind, err)
	}

	current, err := r.ledger.GetByID(ctx, r.db, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("reload transaction: %w", err)
	}

	outcome := OutcomeApplied
	if !matched {
		outcome = OutcomeDuplicate
	}

	return &Result{Outcome: outcome, Transaction: current}, nil
}

func (r *Reconciler) ignore(ctx context.Context, tx *ledger.Transaction) (*Result, error) {
	r.logg.Info(ctx, "gateway webhook status ignored")

	return &Result{Outcome: OutcomeIgnored, Transaction: tx}, nil
}

func stringParam(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}
