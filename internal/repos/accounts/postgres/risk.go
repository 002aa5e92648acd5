package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/Golden-Age-Club/server/internal/infra/pgutils"
	"github.com/Golden-Age-Club/server/internal/repos/accounts"
)

func (r *accountsRepo) EscalateRiskLevel(ctx context.Context, q pgutils.Querier, id uint64, level accounts.RiskLevel) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE accounts
		SET risk_level = $2, updated_at = now()
		WHERE id = $1
		  AND (CASE risk_level WHEN 'high' THEN 2 WHEN 'medium' THEN 1 ELSE 0 END) < $3::int
	`, id, string(level), level.Rank())
	if err != nil {
		return false, fmt.Errorf("escalate risk level: %w", err)
	}

	return pgutils.RowsMatched(res)
}

// RecordCompletedDeposit keeps a rolling 24h deposit counter: the window
// restarts when the previous deposit is older than a day.
func (r *accountsRepo) RecordCompletedDeposit(ctx context.Context, q pgutils.Querier, id uint64, at time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE accounts
		SET deposit_count_24h = CASE
		        WHEN last_deposit_at IS NULL OR last_deposit_at < $2::timestamptz - interval '24 hours' THEN 1
		        ELSE deposit_count_24h + 1
		    END,
		    last_deposit_at = $2::timestamptz,
		    updated_at = now()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("record deposit: %w", err)
	}

	ok, err := pgutils.RowsMatched(res)
	if err != nil {
		return err
	}
	if !ok {
		return accounts.ErrAccountNotFound
	}

	return nil
}

func (r *accountsRepo) SetFailedLogins(ctx context.Context, q pgutils.Querier, id uint64, count int64, at time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE accounts
		SET failed_login_attempts = $2::int,
		    last_failed_login_at = CASE WHEN $2::int > 0 THEN $3::timestamptz ELSE last_failed_login_at END,
		    updated_at = now()
		WHERE id = $1
	`, id, count, at)
	if err != nil {
		return fmt.Errorf("set failed logins: %w", err)
	}

	ok, err := pgutils.RowsMatched(res)
	if err != nil {
		return err
	}
	if !ok {
		return accounts.ErrAccountNotFound
	}

	return nil
}
