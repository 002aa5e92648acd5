package wallet

import (
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
	"github.com/shopspring/decimal"
)

type DepositRequest struct {
	AccountID uint64
	Amount    decimal.Decimal
	Currency  string
	ReturnURL string
}

type DepositResult struct {
	Transaction    *ledger.Transaction
	PaymentURL     string
	PaymentAddress string
}

type WithdrawalRequest struct {
	AccountID uint64
	Amount    decimal.Decimal
	Address   string
	Currency  string
}

// BalanceView is the wallet's read model of an account.
type BalanceView struct {
	AccountID uint64
	Balance   decimal.Decimal
	Currency  string
}

// Reconciliation compares the stored balance with what the ledger implies.
type Reconciliation struct {
	AccountID  uint64
	Balance    decimal.Decimal
	LedgerSum  decimal.Decimal
	Difference decimal.Decimal
	Consistent bool
}

const (
	metaReturnURL      = "return_url"
	metaPaymentURL     = "payment_url"
	metaPaymentAddress = "payment_address"
	metaApprovedBy     = "approved_by"
	metaApprovalNote   = "approval_note"
	metaRejectedBy     = "rejected_by"
	metaPayoutStatus   = "payout_status"
)
