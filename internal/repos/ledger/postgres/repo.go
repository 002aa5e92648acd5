package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Golden-Age-Club/server/internal/repos/ledger"
	"github.com/shopspring/decimal"
)

var _ ledger.Ledger = (*ledgerRepo)(nil)

type ledgerRepo struct{}

func New() *ledgerRepo {
	return &ledgerRepo{}
}

const txColumns = `
	id, account_id, kind, amount, currency, status, idempotency_key,
	external_reference, gateway_reference, destination, metadata, raw_callback_payload,
	failure_reason, balance_after, created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*ledger.Transaction, error) {
	var (
		t                         ledger.Transaction
		kind, status              string
		extRef, gwRef, dest, fail sql.NullString
		meta, raw                 []byte
		balanceAfter              decimal.NullDecimal
	)

	err := row.Scan(
		&t.ID, &t.AccountID, &kind, &t.Amount, &t.Currency, &status, &t.IdempotencyKey,
		&extRef, &gwRef, &dest, &meta, &raw,
		&fail, &balanceAfter, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Kind = ledger.Kind(kind)
	t.Status = ledger.Status(status)
	t.ExternalReference = extRef.String
	t.GatewayReference = gwRef.String
	t.Destination = dest.String
	t.FailureReason = fail.String

	if balanceAfter.Valid {
		b := balanceAfter.Decimal
		t.BalanceAfter = &b
	}

	if len(raw) > 0 {
		t.RawCallbackPayload = json.RawMessage(raw)
	}

	if len(meta) > 0 {
		err = json.Unmarshal(meta, &t.Metadata)
		if err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return &t, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}

	return string(raw)
}

func encodeMetadata(meta ledger.Metadata) (string, error) {
	if meta == nil {
		return "{}", nil
	}

	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	return string(b), nil
}

func statusStrings(in []ledger.Status) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}

	return out
}

func kindStrings(in []ledger.Kind) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		out = append(out, string(k))
	}

	return out
}
