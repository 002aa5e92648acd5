package ledger

import (
	"context"
	"fmt"

	"github.com/Golden-Age-Club/server/internal/infra/pgutils"
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
)

// Insert stores tx and fills in its generated fields. A reused idempotency
// key or merchant order id yields ErrDuplicateTransaction.
func (r *ledgerRepo) Insert(ctx context.Context, q pgutils.Querier, tx *ledger.Transaction) error {
	meta, err := encodeMetadata(tx.Metadata)
	if err != nil {
		return err
	}

	var balanceAfter any
	if tx.BalanceAfter != nil {
		balanceAfter = *tx.BalanceAfter
	}

	err = q.QueryRowContext(ctx, `
		INSERT INTO ledger_transactions (
			account_id, kind, amount, currency, status, idempotency_key,
			external_reference, gateway_reference, destination, metadata,
			raw_callback_payload, failure_reason, balance_after, completed_at
		)
		VALUES (
			$1, $2, $3, $4, $5::text, $6,
			$7, $8, $9, $10::jsonb,
			$11::jsonb, $12, $13,
			CASE WHEN $5::text = 'completed' THEN now() END
		)
		RETURNING id, created_at, updated_at, completed_at
	`,
		tx.AccountID, string(tx.Kind), tx.Amount, tx.Currency, string(tx.Status), tx.IdempotencyKey,
		nullString(tx.ExternalReference), nullString(tx.GatewayReference), nullString(tx.Destination), meta,
		nullJSON(tx.RawCallbackPayload), nullString(tx.FailureReason), balanceAfter,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt, &tx.CompletedAt)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return ledger.ErrDuplicateTransaction
		}

		return fmt.Errorf("insert transaction: %w", err)
	}

	return nil
}
