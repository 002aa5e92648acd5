// Package risk evaluates gameplay, deposit and login activity against fraud
// heuristics and records flags for manual review. Evaluation never blocks or
// fails the money path: callers fire it and forget.
package risk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
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
	"github.com/Golden-Age-Club/server/internal/repos/risklogs"
	pgrisklogs "github.com/Golden-Age-Club/server/internal/repos/risklogs/postgres"
	"go.uber.org/multierr"
)

type Evaluator struct {
	db       *sql.DB
	accounts accounts.Accounts
	ledger   ledger.Ledger
	flags    risklogs.RiskLogs
	logins   LoginCounter
	cfg      config.RiskConfig
	logg     *logging.Logger
	metrics  *metrics.LedgerMetrics
	now      func() time.Time

	wg sync.WaitGroup
}

func New(db *sql.DB, cfg config.RiskConfig, logins LoginCounter, logg *logging.Logger, m *metrics.LedgerMetrics) *Evaluator {
	if logg == nil {
		logg = logging.Nop()
	}

	return &Evaluator{
		db:       db,
		accounts: pgaccounts.New(),
		ledger:   pgledger.New(),
		flags:    pgrisklogs.New(),
		logins:   logins,
		cfg:      cfg,
		logg:     logg,
		metrics:  m,
		now:      time.Now,
	}
}

// AfterGameEvent schedules the win-rate and bet-variance rules.
func (e *Evaluator) AfterGameEvent(ctx context.Context, accountID uint64) {
	e.spawn(ctx, "gameplay", accountID, e.EvaluateGameplay)
}

// AfterDeposit schedules the rapid-deposit rule.
func (e *Evaluator) AfterDeposit(ctx context.Context, accountID uint64) {
	e.spawn(ctx, "deposit", accountID, e.EvaluateDeposits)
}

// Wait blocks until scheduled evaluations finish or ctx ends.
func (e *Evaluator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait risk evaluations: %w", ctx.Err())
	}
}

func (e *Evaluator) spawn(ctx context.Context, check string, accountID uint64, fn func(context.Context, uint64) error) {
	// detached from the request but keeps its log fields
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.EvaluationTimeout)
	runCtx = e.logg.WithFields(runCtx, map[string]any{"risk_check": check, "account_id": accountID})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		defer func() {
			r := recover()
			if r != nil {
				e.logg.Error(runCtx, "risk evaluation panicked", fmt.Errorf("panic: %v", r))
			}
		}()

		err := fn(runCtx, accountID)
		if err != nil {
			e.logg.Error(runCtx, "risk evaluation failed", err)
		}
	}()
}

func (e *Evaluator) EvaluateGameplay(ctx context.Context, accountID uint64) error {
	var errs error

	events, err := e.ledger.RecentByKinds(ctx, e.db, accountID,
		[]ledger.Kind{ledger.KindWager, ledger.KindWin}, e.cfg.WinRateWindow)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("load game events: %w", err))
	} else if f, ok := winRate(events, e.cfg); ok {
		errs = multierr.Append(errs, e.raise(ctx, accountID, f))
	}

	wagers, err := e.ledger.RecentByKinds(ctx, e.db, accountID,
		[]ledger.Kind{ledger.KindWager}, e.cfg.BetVarianceWindow)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("load wagers: %w", err))
	} else if f, ok := betVariance(wagers, e.cfg); ok {
		errs = multierr.Append(errs, e.raise(ctx, accountID, f))
	}

	return errs
}

func (e *Evaluator) EvaluateDeposits(ctx context.Context, accountID uint64) error {
	since := e.now().Add(-e.cfg.RapidDepositWindow)

	n, err := e.ledger.CountCompletedSince(ctx, e.db, accountID, ledger.KindDeposit, since)
	if err != nil {
		return fmt.Errorf("count deposits: %w", err)
	}

	f, ok := rapidDeposits(n, e.cfg)
	if !ok {
		return nil
	}

	return e.raise(ctx, accountID, f)
}

// RecordLogin feeds the login-failure window. A success clears it.
func (e *Evaluator) RecordLogin(ctx context.Context, accountID uint64, success bool) error {
	now := e.now()

	if success {
		err := e.logins.Reset(ctx, accountID)
		if err != nil {
			return fmt.Errorf("record login: %w", err)
		}

		return e.mirrorFailedLogins(ctx, accountID, 0, now)
	}

	count, err := e.logins.Increment(ctx, accountID)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}

	err = e.mirrorFailedLogins(ctx, accountID, count, now)
	if err != nil {
		return err
	}

	f, ok := failedLogins(count, e.cfg)
	if !ok {
		return nil
	}

	return e.raise(ctx, accountID, f)
}

func (e *Evaluator) mirrorFailedLogins(ctx context.Context, accountID uint64, count int64, at time.Time) error {
	err := e.accounts.SetFailedLogins(ctx, e.db, accountID, count, at)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return apperr.Wrap(apperr.CodeNotFound, err, "account not found")
		}

		return fmt.Errorf("mirror failed logins: %w", err)
	}

	return nil
}

// raise opens a flag unless one is already open for the rule, and escalates
// the account's risk level in the same transaction.
func (e *Evaluator) raise(ctx context.Context, accountID uint64, f Finding) error {
	flag := &risklogs.Flag{
		AccountID:   accountID,
		Rule:        f.Rule,
		Severity:    f.Severity,
		Status:      risklogs.StatusActive,
		ActionTaken: risklogs.ActionNone,
		Details:     f.Details,
	}

	var opened, escalated bool

	err := pgutils.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		var err error

		opened, err = e.flags.OpenIfAbsent(ctx, tx, flag)
		if err != nil {
			return fmt.Errorf("open flag: %w", err)
		}
		if !opened {
			return nil
		}

		escalated, err = e.accounts.EscalateRiskLevel(ctx, tx, accountID, levelFor(f.Severity))
		if err != nil {
			return fmt.Errorf("escalate risk level: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("raise %s: %w", f.Rule, err)
	}

	if opened {
		e.metrics.RiskFlag(f.Rule)
		e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
			"rule":      f.Rule,
			"severity":  string(f.Severity),
			"flag_id":   flag.ID,
			"escalated": escalated,
		}), "risk flag opened")
	}

	return nil
}

func levelFor(s risklogs.Severity) accounts.RiskLevel {
	switch s {
	case risklogs.SeverityHigh:
		return accounts.RiskHigh
	case risklogs.SeverityMedium:
		return accounts.RiskMedium
	default:
		return accounts.RiskLow
	}
}

func (e *Evaluator) ListFlags(ctx context.Context, accountID uint64, openOnly bool) ([]risklogs.Flag, error) {
	flags, err := e.flags.ListByAccount(ctx, e.db, accountID, openOnly)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}

	return flags, nil
}

// ResolveFlag is the only way a flag closes; the account's risk level is left
// as is.
func (e *Evaluator) ResolveFlag(ctx context.Context, id int64, action risklogs.Action, note, by string) (*risklogs.Flag, error) {
	if !action.Valid() {
		return nil, apperr.Newf(apperr.CodeValidation, "unknown action %q", action)
	}

	ok, err := e.flags.Resolve(ctx, e.db, id, action, note, by)
	if err != nil {
		return nil, fmt.Errorf("resolve flag: %w", err)
	}

	flag, err := e.flags.Get(ctx, e.db, id)
	if err != nil {
		if errors.Is(err, risklogs.ErrFlagNotFound) {
			return nil, apperr.Wrap(apperr.CodeNotFound, err, "risk flag not found")
		}

		return nil, fmt.Errorf("get flag: %w", err)
	}

	if !ok {
		return flag, apperr.New(apperr.CodeInconsistentState, "risk flag already resolved")
	}

	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"flag_id": id,
		"action":  string(action),
		"by":      by,
	}), "risk flag resolved")

	return flag, nil
}

// InvestigateFlag moves an active flag under review.
func (e *Evaluator) InvestigateFlag(ctx context.Context, id int64) (*risklogs.Flag, error) {
	ok, err := e.flags.MarkInvestigating(ctx, e.db, id)
	if err != nil {
		return nil, fmt.Errorf("investigate flag: %w", err)
	}

	flag, err := e.flags.Get(ctx, e.db, id)
	if err != nil {
		if errors.Is(err, risklogs.ErrFlagNotFound) {
			return nil, apperr.Wrap(apperr.CodeNotFound, err, "risk flag not found")
		}

		return nil, fmt.Errorf("get flag: %w", err)
	}

	if !ok && flag.Status != risklogs.StatusInvestigating {
		return flag, apperr.Newf(apperr.CodeInconsistentState, "risk flag is %s", flag.Status)
	}

	return flag, nil
}
