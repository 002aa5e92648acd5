package ledger

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindDeposit       Kind = "deposit"
	KindWithdrawal    Kind = "withdrawal"
	KindWager         Kind = "wager"
	KindWin           Kind = "win"
	KindWagerReversal Kind = "wager_reversal"
	KindAdjustment    Kind = "adjustment"
)

// Credits reports whether a completed row of this kind adds to the balance.
func (k Kind) Credits() bool {
	switch k {
	case KindDeposit, KindWin, KindWagerReversal, KindAdjustment:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
	StatusRefunded   Status = "refunded"
)

// Terminal reports whether no further transition is expected, except the
// wager/win reversal to refunded.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRefunded
}

// Metadata carries auxiliary, non-financial attributes of a transaction.
type Metadata map[string]any

type Transaction struct {
	ID                 int64
	AccountID          uint64
	Kind               Kind
	Amount             decimal.Decimal
	Currency           string
	Status             Status
	IdempotencyKey     string
	ExternalReference  string
	GatewayReference   string
	Destination        string
	Metadata           Metadata
	RawCallbackPayload json.RawMessage
	FailureReason      string
	BalanceAfter       *decimal.Decimal
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
}

// StringMeta returns a metadata value as a string, or "".
func (t *Transaction) StringMeta(key string) string {
	if t.Metadata == nil {
		return ""
	}

	s, _ := t.Metadata[key].(string)

	return s
}
