package ledger

import (
	"context"
	"fmt"

	"github.com/Golden-Age-Club/server/internal/infra/pgutils"
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
	"github.com/shopspring/decimal"
)

// Apply is the conditional write every reconciler depends on: the status
// only changes while the row still sits in one of the allowed states, and
// the caller learns whether this call was the one that changed it.
func (r *ledgerRepo) Apply(ctx context.Context, q pgutils.Querier, t ledger.Transition) (bool, error) {
	if len(t.Allowed) == 0 {
		return false, fmt.Errorf("apply transition: no allowed source states")
	}

	res, err := q.ExecContext(ctx, `
		UPDATE ledger_transactions
		SET status = $2::text,
		    failure_reason = COALESCE($3, failure_reason),
		    raw_callback_payload = COALESCE($4::jsonb, raw_callback_payload),
		    completed_at = CASE WHEN $2::text = 'completed' THEN now() ELSE completed_at END,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($5::text[])
	`, t.ID, string(t.To), nullString(t.Reason), nullJSON(t.Payload), statusStrings(t.Allowed))
	if err != nil {
		return false, fmt.Errorf("apply transition: %w", err)
	}

	return pgutils.RowsMatched(res)
}

func (r *ledgerRepo) SetGatewayReference(ctx context.Context, q pgutils.Querier, id int64, ref string, meta ledger.Metadata) error {
	encoded, err := encodeMetadata(meta)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		UPDATE ledger_transactions
		SET gateway_reference = $2,
		    metadata = metadata || $3::jsonb,
		    updated_at = now()
		WHERE id = $1
	`, id, nullString(ref), encoded)
	if err != nil {
		return fmt.Errorf("set gateway reference: %w", err)
	}

	return nil
}

func (r *ledgerRepo) MergeMetadata(ctx context.Context, q pgutils.Querier, id int64, meta ledger.Metadata) error {
	encoded, err := encodeMetadata(meta)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		UPDATE ledger_transactions
		SET metadata = metadata || $2::jsonb, updated_at = now()
		WHERE id = $1
	`, id, encoded)
	if err != nil {
		return fmt.Errorf("merge metadata: %w", err)
	}

	return nil
}

func (r *ledgerRepo) SetBalanceAfter(ctx context.Context, q pgutils.Querier, id int64, balance decimal.Decimal) error {
	_, err := q.ExecContext(ctx, `
		UPDATE ledger_transactions
		SET balance_after = $2, updated_at = now()
		WHERE id = $1
	`, id, balance)
	if err != nil {
		return fmt.Errorf("set balance after: %w", err)
	}

	return nil
}
