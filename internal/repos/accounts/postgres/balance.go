package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Golden-Age-Club/server/internal/infra/pgutils"
	"github.com/Golden-Age-Club/server/internal/repos/accounts"
	"github.com/shopspring/decimal"
)

func (r *accountsRepo) Credit(ctx context.Context, q pgutils.Querier, id uint64, amount decimal.Decimal) (decimal.Decimal, error) {
	var after decimal.Decimal

	err := q.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance = balance + $2, updated_at = now()
		WHERE id = $1
		RETURNING balance
	`, id, amount).Scan(&after)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, accounts.ErrAccountNotFound
		}

		return decimal.Zero, fmt.Errorf("credit balance: %w", err)
	}

	return after, nil
}

func (r *accountsRepo) Debit(ctx context.Context, q pgutils.Querier, id uint64, amount decimal.Decimal) (decimal.Decimal, error) {
	var after decimal.Decimal

	err := q.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance = balance - $2, updated_at = now()
		WHERE id = $1
		  AND balance >= $2
		RETURNING balance
	`, id, amount).Scan(&after)
	if err == nil {
		return after, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("debit balance: %w", err)
	}

	ok, eerr := exists(ctx, q, id)
	if eerr != nil {
		return decimal.Zero, eerr
	}
	if !ok {
		return decimal.Zero, accounts.ErrAccountNotFound
	}

	return decimal.Zero, accounts.ErrInsufficientBalance
}
