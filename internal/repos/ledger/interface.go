package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Golden-Age-Club/server/internal/infra/pgutils"
	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrTransactionNotFound  = errors.New("transaction not found")
)

// Transition is a compare-and-set on status: it only applies while the row
// is in one of Allowed.
type Transition struct {
	ID      int64
	Allowed []Status
	To      Status
	// Reason is recorded for failed, expired and refunded outcomes.
	Reason  string
	Payload json.RawMessage
}

type Ledger interface {
	Insert(ctx context.Context, q pgutils.Querier, tx *Transaction) error
	GetByID(ctx context.Context, q pgutils.Querier, id int64) (*Transaction, error)
	GetByIdempotencyKey(ctx context.Context, q pgutils.Querier, key string) (*Transaction, error)
	// GetByExternalReference finds a deposit or withdrawal by merchant order id.
	GetByExternalReference(ctx context.Context, q pgutils.Querier, ref string) (*Transaction, error)

	// Apply runs the transition and reports whether the write matched.
	Apply(ctx context.Context, q pgutils.Querier, t Transition) (bool, error)

	SetGatewayReference(ctx context.Context, q pgutils.Querier, id int64, ref string, meta Metadata) error
	MergeMetadata(ctx context.Context, q pgutils.Querier, id int64, meta Metadata) error
	SetBalanceAfter(ctx context.Context, q pgutils.Querier, id int64, balance decimal.Decimal) error

	// ExpirePending marks pending deposits and withdrawals created before
	// cutoff as expired and returns how many rows changed.
	ExpirePending(ctx context.Context, q pgutils.Querier, cutoff time.Time) (int64, error)

	RecentByKinds(ctx context.Context, q pgutils.Querier, accountID uint64, kinds []Kind, limit int) ([]Transaction, error)
	CountCompletedSince(ctx context.Context, q pgutils.Querier, accountID uint64, kind Kind, since time.Time) (int, error)
	// SignedSum totals the balance effect of every row that currently holds funds.
	SignedSum(ctx context.Context, q pgutils.Querier, accountID uint64) (decimal.Decimal, error)
}
