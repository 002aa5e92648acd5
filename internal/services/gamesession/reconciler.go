// Package gamesession answers the game provider's unified callback. The
// provider retries freely, so wagers and wins are keyed by its transaction
// id and a rollback is a conditional status flip on the original row.
package gamesession

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Golden-Age-Club/server/internal/apperr"
	"github.com/Golden-Age-Club/server/internal/infra/logging"
	"github.com/Golden-Age-Club/server/internal/infra/pgutils"
	"github.com/Golden-Age-Club/server/internal/metrics"
	"github.com/Golden-Age-Club/server/internal/repos/accounts"
	pgaccounts "github.com/Golden-Age-Club/server/internal/repos/accounts/postgres"
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
	pgledger "github.com/Golden-Age-Club/server/internal/repos/ledger/postgres"
	"github.com/shopspring/decimal"
)

const defaultCurrency = "USD"

// TokenResolver maps a player token to an account reference.
type TokenResolver interface {
	Resolve(token string) (string, error)
	Mint(accountID uint64, gameID string) (string, error)
}

// RiskHook is notified after a wager or win is recorded.
type RiskHook interface {
	AfterGameEvent(ctx context.Context, accountID uint64)
}

type Reconciler struct {
	db       *sql.DB
	accounts accounts.Accounts
	ledger   ledger.Ledger
	tokens   TokenResolver
	risk     RiskHook
	logg     *logging.Logger
	metrics  *metrics.LedgerMetrics
}

func New(db *sql.DB, tokens TokenResolver, risk RiskHook, logg *logging.Logger, m *metrics.LedgerMetrics) *Reconciler {
	if logg == nil {
		logg = logging.Nop()
	}

	return &Reconciler{
		db:       db,
		accounts: pgaccounts.New(),
		ledger:   pgledger.New(),
		tokens:   tokens,
		risk:     risk,
		logg:     logg,
		metrics:  m,
	}
}

// LaunchToken issues the player token handed to the provider when a game
// is opened.
func (r *Reconciler) LaunchToken(ctx context.Context, accountID uint64, gameID string) (string, error) {
	_, err := r.accounts.Get(ctx, r.db, accountID)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return "", apperr.Wrap(apperr.CodeNotFound, err, "account not found")
		}

		return "", fmt.Errorf("load account: %w", err)
	}

	token, err := r.tokens.Mint(accountID, gameID)
	if err != nil {
		return "", fmt.Errorf("mint session token: %w", err)
	}

	return token, nil
}

// Handle never fails: every outcome, including internal errors, is carried
// in the response body.
func (r *Reconciler) Handle(ctx context.Context, body []byte) *Response {
	start := time.Now()

	cmd, err := Decode(body)
	if err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "provider callback rejected")
		r.metrics.ProviderCommand("invalid", CodeInvalidCommand, time.Since(start))

		return failure(CodeInvalidCommand, "Invalid command")
	}

	ctx = r.logg.WithField(ctx, "cmd", cmd.Name())

	resp, err := r.dispatch(ctx, cmd, body)
	if err != nil {
		r.logg.Error(ctx, "provider callback failed", err)
		resp = failure(CodeInternal, "Internal error")
	}

	resp.Result = true
	r.metrics.ProviderCommand(cmd.Name(), resp.ErrCode, time.Since(start))

	return resp
}

func (r *Reconciler) dispatch(ctx context.Context, cmd Command, raw []byte) (*Response, error) {
	accountID, found := r.resolve(cmd.Token())
	if !found {
		return failure(CodeNotFound, "Player not found"), nil
	}

	ctx = r.logg.WithAccountID(ctx, accountID)

	switch c := cmd.(type) {
	case Withdraw:
		return r.withdraw(ctx, accountID, c, raw)
	case Deposit:
		return r.deposit(ctx, accountID, c, raw)
	case Rollback:
		return r.rollback(ctx, accountID, c)
	case GetInfo:
		return r.info(ctx, accountID, c)
	default:
		return failure(CodeInvalidCommand, "Invalid command"), nil
	}
}

func (r *Reconciler) resolve(token string) (uint64, bool) {
	if token == "" {
		return 0, false
	}

	ref, err := r.tokens.Resolve(token)
	if err != nil {
		return 0, false
	}

	id, err := strconv.ParseUint(ref, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}

	return id, true
}

// gameEvent is the shared shape of withdraw and deposit.
type gameEvent struct {
	kind          ledger.Kind
	transactionID string
	roundID       string
	gameID        string
	currency      string
	amount        decimal.Decimal
	betInfo       json.RawMessage
}

func (r *Reconciler) withdraw(ctx context.Context, accountID uint64, c Withdraw, raw []byte) (*Response, error) {
	return r.record(ctx, accountID, gameEvent{
		kind:          ledger.KindWager,
		transactionID: c.TransactionID,
		roundID:       c.RoundID,
		gameID:        c.GameID,
		currency:      c.Currency,
		amount:        c.Amount,
		betInfo:       c.BetInfo,
	}, raw)
}

func (r *Reconciler) deposit(ctx context.Context, accountID uint64, c Deposit, raw []byte) (*Response, error) {
	return r.record(ctx, accountID, gameEvent{
		kind:          ledger.KindWin,
		transactionID: c.TransactionID,
		roundID:       c.RoundID,
		gameID:        c.GameID,
		currency:      c.Currency,
		amount:        c.Amount,
		betInfo:       c.BetInfo,
	}, raw)
}

var errRedelivered = errors.New("transaction already recorded")

// record moves the balance and writes the completed wager or win in one
// database transaction. A repeat of the same provider transaction id only
// refreshes metadata.
func (r *Reconciler) record(ctx context.Context, accountID uint64, ev gameEvent, raw []byte) (*Response, error) {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"provider_tx_id": ev.transactionID,
		"round_id":       ev.roundID,
	})

	existing, err := r.ledger.GetByIdempotencyKey(ctx, r.db, ev.transactionID)
	switch {
	case err == nil:
		return r.redeliver(ctx, accountID, existing, ev)
	case !errors.Is(err, ledger.ErrTransactionNotFound):
		return nil, fmt.Errorf("lookup transaction: %w", err)
	}

	var before, after decimal.Decimal

	err = pgutils.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error

		if ev.kind == ledger.KindWager {
			after, err = r.accounts.Debit(ctx, tx, accountID, ev.amount)
			if err != nil {
				return err
			}
			before = after.Add(ev.amount)
		} else {
			after, err = r.accounts.Credit(ctx, tx, accountID, ev.amount)
			if err != nil {
				return err
			}
			before = after.Sub(ev.amount)
		}

		currency := ev.currency
		if currency == "" {
			currency = defaultCurrency
		}

		balanceAfter := after
		err = r.ledger.Insert(ctx, tx, &ledger.Transaction{
			AccountID:          accountID,
			Kind:               ev.kind,
			Amount:             ev.amount,
			Currency:           currency,
			Status:             ledger.StatusCompleted,
			IdempotencyKey:     ev.transactionID,
			ExternalReference:  ev.roundID,
			Metadata:           eventMetadata(ev),
			RawCallbackPayload: raw,
			BalanceAfter:       &balanceAfter,
		})
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			return errRedelivered
		}

		return err
	})

	switch {
	case err == nil:
	case errors.Is(err, errRedelivered):
		// a concurrent delivery won the insert; our balance change rolled back
		existing, err := r.ledger.GetByIdempotencyKey(ctx, r.db, ev.transactionID)
		if err != nil {
			return nil, fmt.Errorf("reload transaction: %w", err)
		}

		return r.redeliver(ctx, accountID, existing, ev)
	case errors.Is(err, accounts.ErrInsufficientBalance):
		r.logg.Info(ctx, "wager rejected for insufficient balance")
		return r.failureWithBalance(ctx, accountID, CodeInsufficientBalance, "Insufficient balance")
	case errors.Is(err, accounts.ErrAccountNotFound):
		return failure(CodeNotFound, "Player not found"), nil
	default:
		return nil, fmt.Errorf("record %s: %w", ev.kind, err)
	}

	r.logg.Debug(ctx, "game event recorded")

	if r.risk != nil {
		r.risk.AfterGameEvent(ctx, accountID)
	}

	return ok(before, after, ev.transactionID), nil
}

func (r *Reconciler) redeliver(ctx context.Context, accountID uint64, existing *ledger.Transaction, ev gameEvent) (*Response, error) {
	if existing.AccountID != accountID || existing.Kind != ev.kind {
		r.logg.Warn(ctx, "provider transaction id reused for a different event")
		return failure(CodeInvalidRollback, "Transaction id already used"), nil
	}

	err := r.ledger.MergeMetadata(ctx, r.db, existing.ID, eventMetadata(ev))
	if err != nil {
		return nil, err
	}

	bal, err := r.accounts.GetBalance(ctx, r.db, accountID)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}

	r.logg.Info(ctx, "provider redelivery acknowledged")

	return ok(bal, bal, ev.transactionID), nil
}

var errRollbackShortfall = errors.New("balance does not cover win rollback")

func (r *Reconciler) rollback(ctx context.Context, accountID uint64, c Rollback) (*Response, error) {
	ctx = r.logg.WithField(ctx, "provider_tx_id", c.TransactionID)

	orig, err := r.ledger.GetByIdempotencyKey(ctx, r.db, c.TransactionID)
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			return failure(CodeNotFound, "Transaction not found"), nil
		}

		return nil, fmt.Errorf("lookup transaction: %w", err)
	}

	if orig.AccountID != accountID {
		return failure(CodeNotFound, "Transaction not found"), nil
	}

	if orig.Kind != ledger.KindWager && orig.Kind != ledger.KindWin {
		r.logg.Warn(ctx, "rollback targets a non game transaction")
		return failure(CodeInvalidRollback, "Invalid rollback"), nil
	}

	var (
		matched       bool
		before, after decimal.Decimal
	)

	err = pgutils.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		applied, err := r.ledger.Apply(ctx, tx, ledger.Transition{
			ID:      orig.ID,
			Allowed: []ledger.Status{ledger.StatusCompleted},
			To:      ledger.StatusRefunded,
			Reason:  "rolled back by provider",
		})
		if err != nil || !applied {
			return err
		}

		matched = true

		if orig.Kind == ledger.KindWager {
			after, err = r.accounts.Credit(ctx, tx, accountID, orig.Amount)
			if err != nil {
				return err
			}
			before = after.Sub(orig.Amount)

			return nil
		}

		after, err = r.accounts.Debit(ctx, tx, accountID, orig.Amount)
		if errors.Is(err, accounts.ErrInsufficientBalance) {
			return errRollbackShortfall
		}
		if err != nil {
			return err
		}
		before = after.Add(orig.Amount)

		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, errRollbackShortfall):
		r.logg.Warn(ctx, "win rollback exceeds balance")
		return r.failureWithBalance(ctx, accountID, CodeRollbackShortfall, "Insufficient balance for rollback")
	default:
		return nil, fmt.Errorf("rollback %s: %w", orig.Kind, err)
	}

	if matched {
		r.logg.Info(r.logg.WithField(ctx, "kind", string(orig.Kind)), "game transaction rolled back")
		return ok(before, after, c.TransactionID), nil
	}

	current, err := r.ledger.GetByID(ctx, r.db, orig.ID)
	if err != nil {
		return nil, fmt.Errorf("reload transaction: %w", err)
	}

	if current.Status == ledger.StatusRefunded {
		bal, err := r.accounts.GetBalance(ctx, r.db, accountID)
		if err != nil {
			return nil, fmt.Errorf("read balance: %w", err)
		}

		return ok(bal, bal, c.TransactionID), nil
	}

	r.logg.Warn(r.logg.WithField(ctx, "status", string(current.Status)), "rollback target in unexpected state")

	return failure(CodeInvalidRollback, "Invalid rollback"), nil
}

func (r *Reconciler) info(ctx context.Context, accountID uint64, c GetInfo) (*Response, error) {
	acct, err := r.accounts.Get(ctx, r.db, accountID)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return failure(CodeNotFound, "Player not found"), nil
		}

		return nil, fmt.Errorf("load account: %w", err)
	}

	currency := c.Currency
	if currency == "" {
		currency = acct.Currency
	}

	resp := ok(acct.Balance, acct.Balance, "")
	resp.Currency = currency
	resp.DisplayName = acct.Username
	resp.PlayerID = strconv.FormatUint(acct.ID, 10)
	resp.Country = acct.Country
	resp.City = acct.City
	resp.Email = acct.Email

	return resp, nil
}

func (r *Reconciler) failureWithBalance(ctx context.Context, accountID uint64, code int, desc string) (*Response, error) {
	bal, err := r.accounts.GetBalance(ctx, r.db, accountID)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return failure(CodeNotFound, "Player not found"), nil
		}

		return nil, fmt.Errorf("read balance: %w", err)
	}

	return failure(code, desc).withBalance(bal), nil
}

func eventMetadata(ev gameEvent) ledger.Metadata {
	meta := ledger.Metadata{
		"game_id":  ev.gameID,
		"round_id": ev.roundID,
	}
	if len(ev.betInfo) > 0 && json.Valid(ev.betInfo) {
		meta["bet_info"] = ev.betInfo
	}

	return meta
}
