package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Golden-Age-Club/server/internal/infra/pgutils"
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
)

func (r *ledgerRepo) GetByID(ctx context.Context, q pgutils.Querier, id int64) (*ledger.Transaction, error) {
	return r.getOne(ctx, q, `SELECT `+txColumns+` FROM ledger_transactions WHERE id = $1`, id)
}

func (r *ledgerRepo) GetByIdempotencyKey(ctx context.Context, q pgutils.Querier, key string) (*ledger.Transaction, error) {
	return r.getOne(ctx, q, `SELECT `+txColumns+` FROM ledger_transactions WHERE idempotency_key = $1`, key)
}

func (r *ledgerRepo) GetByExternalReference(ctx context.Context, q pgutils.Querier, ref string) (*ledger.Transaction, error) {
	return r.getOne(ctx, q, `
		SELECT `+txColumns+`
		FROM ledger_transactions
		WHERE external_reference = $1
		  AND kind IN ('deposit', 'withdrawal')
	`, ref)
}

func (r *ledgerRepo) getOne(ctx context.Context, q pgutils.Querier, query string, arg any) (*ledger.Transaction, error) {
	t, err := scanTransaction(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrTransactionNotFound
		}

		return nil, fmt.Errorf("get transaction: %w", err)
	}

	return t, nil
}
