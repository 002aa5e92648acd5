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

func (r *accountsRepo) Get(ctx context.Context, q pgutils.Querier, id uint64) (*accounts.Account, error) {
	var (
		a    accounts.Account
		risk string
	)

	err := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id).Scan(
		&a.ID, &a.Username, &a.Email, &a.Currency, &a.Country, &a.City, &a.Balance, &risk,
		&a.FailedLoginAttempts, &a.LastFailedLoginAt, &a.DepositCount24h, &a.LastDepositAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, accounts.ErrAccountNotFound
		}

		return nil, fmt.Errorf("get account: %w", err)
	}

	a.RiskLevel = accounts.RiskLevel(risk)

	return &a, nil
}

func (r *accountsRepo) GetBalance(ctx context.Context, q pgutils.Querier, id uint64) (decimal.Decimal, error) {
	var balance decimal.Decimal

	err := q.QueryRowContext(ctx, `
		SELECT balance
		FROM accounts
		WHERE id = $1
	`, id).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, accounts.ErrAccountNotFound
		}

		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}

func exists(ctx context.Context, q pgutils.Querier, id uint64) (bool, error) {
	var ok bool

	err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}

	return ok, nil
}
