package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/Golden-Age-Club/server/internal/infra/pgutils"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank orders levels so escalation can be checked numerically.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

type Account struct {
	ID                  uint64
	Username            string
	Email               string
	Currency            string
	Country             string
	City                string
	Balance             decimal.Decimal
	RiskLevel           RiskLevel
	FailedLoginAttempts int
	LastFailedLoginAt   *time.Time
	DepositCount24h     int
	LastDepositAt       *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Accounts never overwrites a balance wholesale: every change is an atomic
// delta, and debits are guarded by balance >= amount.
type Accounts interface {
	Get(ctx context.Context, q pgutils.Querier, id uint64) (*Account, error)
	GetBalance(ctx context.Context, q pgutils.Querier, id uint64) (decimal.Decimal, error)
	// Credit adds amount and returns the post-mutation balance.
	Credit(ctx context.Context, q pgutils.Querier, id uint64, amount decimal.Decimal) (decimal.Decimal, error)
	// Debit subtracts amount only when the balance covers it.
	Debit(ctx context.Context, q pgutils.Querier, id uint64, amount decimal.Decimal) (decimal.Decimal, error)
	// EscalateRiskLevel raises the level and reports whether it changed.
	EscalateRiskLevel(ctx context.Context, q pgutils.Querier, id uint64, level RiskLevel) (bool, error)
	RecordCompletedDeposit(ctx context.Context, q pgutils.Querier, id uint64, at time.Time) error
	SetFailedLogins(ctx context.Context, q pgutils.Querier, id uint64, count int64, at time.Time) error
}
