// Package wallet opens deposits and withdrawals against the payment gateway
// and serves the player's balance.
package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Golden-Age-Club/server/internal/apperr"
	"github.com/Golden-Age-Club/server/internal/config"
	"github.com/Golden-Age-Club/server/internal/gateway"
	"github.com/Golden-Age-Club/server/internal/infra/logging"
	"github.com/Golden-Age-Club/server/internal/repos/accounts"
	pgaccounts "github.com/Golden-Age-Club/server/internal/repos/accounts/postgres"
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
	pgledger "github.com/Golden-Age-Club/server/internal/repos/ledger/postgres"
	"github.com/shopspring/decimal"
)

const amountScale = 2

type Service struct {
	db       *sql.DB
	accounts accounts.Accounts
	ledger   ledger.Ledger
	gateway  gateway.Gateway
	cfg      config.WalletConfig
	logg     *logging.Logger
	now      func() time.Time
}

func New(db *sql.DB, gw gateway.Gateway, cfg config.WalletConfig, logg *logging.Logger) *Service {
	if logg == nil {
		logg = logging.Nop()
	}

	return &Service{
		db:       db,
		accounts: pgaccounts.New(),
		ledger:   pgledger.New(),
		gateway:  gw,
		cfg:      cfg,
		logg:     logg,
		now:      time.Now,
	}
}

func (s *Service) Balance(ctx context.Context, accountID uint64) (*BalanceView, error) {
	acct, err := s.accounts.Get(ctx, s.db, accountID)
	if err != nil {
		return nil, mapAccountErr(err)
	}

	return &BalanceView{AccountID: acct.ID, Balance: acct.Balance, Currency: acct.Currency}, nil
}

// Transaction returns one of the account's own ledger rows.
func (s *Service) Transaction(ctx context.Context, accountID uint64, id int64) (*ledger.Transaction, error) {
	tx, err := s.ledger.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, mapLedgerErr(err)
	}

	if tx.AccountID != accountID {
		return nil, apperr.New(apperr.CodeNotFound, "transaction not found")
	}

	return tx, nil
}

func (s *Service) Reconcile(ctx context.Context, accountID uint64) (*Reconciliation, error) {
	bal, err := s.accounts.GetBalance(ctx, s.db, accountID)
	if err != nil {
		return nil, mapAccountErr(err)
	}

	sum, err := s.ledger.SignedSum(ctx, s.db, accountID)
	if err != nil {
		return nil, fmt.Errorf("ledger sum: %w", err)
	}

	return &Reconciliation{
		AccountID:  accountID,
		Balance:    bal,
		LedgerSum:  sum,
		Difference: bal.Sub(sum),
		Consistent: bal.Equal(sum),
	}, nil
}

func (s *Service) validateAmount(amount, minimum, maximum decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.New(apperr.CodeValidation, "amount must be positive")
	}
	if !amount.Equal(amount.Truncate(amountScale)) {
		return apperr.New(apperr.CodeValidation, "amount supports up to 2 decimals")
	}
	if amount.LessThan(minimum) {
		return apperr.Newf(apperr.CodeValidation, "amount below minimum %s", minimum.StringFixed(amountScale))
	}
	if amount.GreaterThan(maximum) {
		return apperr.Newf(apperr.CodeValidation, "amount above maximum %s", maximum.StringFixed(amountScale))
	}

	return nil
}

func (s *Service) normalizeCurrency(currency string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if !slices.Contains(s.cfg.Currencies, c) {
		return "", apperr.Newf(apperr.CodeValidation, "unsupported currency %q", currency)
	}

	return c, nil
}

func (s *Service) merchantOrderID(prefix string, accountID uint64) string {
	return fmt.Sprintf("%s-%d-%d", prefix, s.now().Unix(), accountID)
}

func mapAccountErr(err error) error {
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound):
		return apperr.Wrap(apperr.CodeNotFound, err, "account not found")
	case errors.Is(err, accounts.ErrInsufficientBalance):
		return apperr.Wrap(apperr.CodeInsufficientBalance, err, "insufficient balance")
	default:
		return fmt.Errorf("account: %w", err)
	}
}

func mapLedgerErr(err error) error {
	if errors.Is(err, ledger.ErrTransactionNotFound) {
		return apperr.Wrap(apperr.CodeNotFound, err, "transaction not found")
	}

	return fmt.Errorf("ledger: %w", err)
}
