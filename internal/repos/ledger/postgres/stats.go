package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/Golden-Age-Club/server/internal/infra/pgutils"
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
	"github.com/shopspring/decimal"
)

const expiredReason = "pending past retention window"

func (r *ledgerRepo) ExpirePending(ctx context.Context, q pgutils.Querier, cutoff time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE ledger_transactions
		SET status = 'expired', failure_reason = $2, updated_at = now()
		WHERE status = 'pending'
		  AND kind IN ('deposit', 'withdrawal')
		  AND created_at < $1
	`, cutoff, expiredReason)
	if err != nil {
		return 0, fmt.Errorf("expire pending: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return n, nil
}

func (r *ledgerRepo) RecentByKinds(ctx context.Context, q pgutils.Querier, accountID uint64, kinds []ledger.Kind, limit int) ([]ledger.Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM ledger_transactions
		WHERE account_id = $1
		  AND kind = ANY($2::text[])
		  AND status = 'completed'
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, accountID, kindStrings(kinds), limit)
	if err != nil {
		return nil, fmt.Errorf("recent transactions: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	out := make([]ledger.Transaction, 0, limit)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *t)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return out, nil
}

func (r *ledgerRepo) CountCompletedSince(ctx context.Context, q pgutils.Querier, accountID uint64, kind ledger.Kind, since time.Time) (int, error) {
	var n int

	err := q.QueryRowContext(ctx, `
		SELECT count(*)
		FROM ledger_transactions
		WHERE account_id = $1
		  AND kind = $2
		  AND status = 'completed'
		  AND completed_at >= $3
	`, accountID, string(kind), since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed: %w", err)
	}

	return n, nil
}

// SignedSum counts completed rows plus withdrawals whose reservation is
// still held (pending, processing or expired).
func (r *ledgerRepo) SignedSum(ctx context.Context, q pgutils.Querier, accountID uint64) (decimal.Decimal, error) {
	var sum decimal.Decimal

	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(
			CASE WHEN kind IN ('deposit', 'win', 'wager_reversal', 'adjustment') THEN amount ELSE -amount END
		), 0)
		FROM ledger_transactions
		WHERE account_id = $1
		  AND (
			status = 'completed'
			OR (kind = 'withdrawal' AND status IN ('pending', 'processing', 'expired'))
		  )
	`, accountID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("signed sum: %w", err)
	}

	return sum, nil
}
