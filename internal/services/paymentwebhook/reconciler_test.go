package paymentwebhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Golden-Age-Club/server/internal/apperr"
	"github.com/Golden-Age-Club/server/internal/config"
	"github.com/Golden-Age-Club/server/internal/infra/pgtestutil"
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
	pgledger "github.com/Golden-Age-Club/server/internal/repos/ledger/postgres"
	"github.com/Golden-Age-Club/server/internal/signature"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAppID  = "app-1"
	testSecret = "webhook-secret"
	testTS     = "1700000000000"
)

type riskSpy struct {
	calls atomic.Int32
}

func (s *riskSpy) AfterDeposit(context.Context, uint64) {
	s.calls.Add(1)
}

func newReconciler(t *testing.T, balance string) (*Reconciler, *sql.DB, *riskSpy) {
	t.Helper()

	db := pgtestutil.NewTestDB(t)
	pgtestutil.SeedAccount(t, db, 1, balance)

	spy := &riskSpy{}
	cfg := config.GatewayConfig{AppID: testAppID, AppSecret: testSecret}

	return New(db, cfg, spy, nil, nil), db, spy
}

func seedTx(t *testing.T, db *sql.DB, kind ledger.Kind, status ledger.Status, ref, amount string) *ledger.Transaction {
	t.Helper()

	tx := &ledger.Transaction{
		AccountID:         1,
		Kind:              kind,
		Amount:            decimal.RequireFromString(amount),
		Currency:          "USDT",
		Status:            status,
		IdempotencyKey:    "key-" + ref,
		ExternalReference: ref,
	}
	require.NoError(t, pgledger.New().Insert(t.Context(), db, tx))

	return tx
}

func signedDelivery(t *testing.T, body map[string]any) Delivery {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	params, err := signature.DecodeParams(raw)
	require.NoError(t, err)

	return Delivery{
		Timestamp: testTS,
		Sign:      signature.GatewaySign(params, testTS, testSecret),
		Body:      raw,
	}
}

func TestHandle_ConcurrentPaidCreditsOnce(t *testing.T) {
	t.Parallel()

	r, db, spy := newReconciler(t, "0")
	seedTx(t, db, ledger.KindDeposit, ledger.StatusPending, "DEP-1700000000-1", "50.00")

	d := signedDelivery(t, map[string]any{
		"merchant_order_id": "DEP-1700000000-1",
		"order_status":      "paid",
		"order_amount":      "50.00",
	})

	var (
		wg      sync.WaitGroup
		applied atomic.Int32
	)

	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			res, err := r.Handle(t.Context(), d)
			if err != nil {
				t.Errorf("handle: %v", err)
				return
			}
			if res.Outcome == OutcomeApplied {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), applied.Load())
	assert.Equal(t, int32(1), spy.calls.Load())
	assert.True(t, pgtestutil.Balance(t, db, 1).Equal(decimal.RequireFromString("50.00")))

	tx, err := pgledger.New().GetByExternalReference(t.Context(), db, "DEP-1700000000-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, tx.Status)
	assert.NotNil(t, tx.CompletedAt)
	assert.JSONEq(t, string(d.Body), string(tx.RawCallbackPayload))
}

func TestHandle_Deposit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		seedStatus  ledger.Status
		orderStatus string
		wantOutcome Outcome
		wantStatus  ledger.Status
		wantBalance string
	}{
		{"confirmed_after_expiry", ledger.StatusExpired, "confirmed", OutcomeApplied, ledger.StatusCompleted, "60"},
		{"paid_after_gateway_failure", ledger.StatusFailed, "paid", OutcomeApplied, ledger.StatusCompleted, "60"},
		{"paid_twice", ledger.StatusCompleted, "paid", OutcomeDuplicate, ledger.StatusCompleted, "10"},
		{"expired", ledger.StatusPending, "expired", OutcomeApplied, ledger.StatusFailed, "10"},
		{"failed_after_completion", ledger.StatusCompleted, "failed", OutcomeDuplicate, ledger.StatusCompleted, "10"},
		{"unknown_status", ledger.StatusPending, "partially_paid", OutcomeIgnored, ledger.StatusPending, "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, db, _ := newReconciler(t, "10")
			seedTx(t, db, ledger.KindDeposit, tt.seedStatus, "DEP-1-1", "50")

			res, err := r.Handle(t.Context(), signedDelivery(t, map[string]any{
				"merchant_order_id": "DEP-1-1",
				"order_status":      tt.orderStatus,
			}))
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, res.Outcome)
			assert.Equal(t, tt.wantStatus, res.Transaction.Status)
			assert.True(t, pgtestutil.Balance(t, db, 1).Equal(decimal.RequireFromString(tt.wantBalance)))
		})
	}
}

func TestHandle_WithdrawalFailureCompensatesOnce(t *testing.T) {
	t.Parallel()

	// 100 seeded, 40 already reserved at creation
	r, db, _ := newReconciler(t, "60")
	seedTx(t, db, ledger.KindWithdrawal, ledger.StatusProcessing, "WD-1-1", "40")

	d := signedDelivery(t, map[string]any{"merchant_order_id": "WD-1-1", "order_status": "failed"})

	for i := range 3 {
		res, err := r.Handle(t.Context(), d)
		require.NoError(t, err)
		if i == 0 {
			assert.Equal(t, OutcomeApplied, res.Outcome)
		} else {
			assert.Equal(t, OutcomeDuplicate, res.Outcome)
		}
	}

	assert.True(t, pgtestutil.Balance(t, db, 1).Equal(decimal.RequireFromString("100")))

	// success after failure changes nothing
	res, err := r.Handle(t.Context(), signedDelivery(t, map[string]any{"merchant_order_id": "WD-1-1", "order_status": "success"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.Equal(t, ledger.StatusFailed, res.Transaction.Status)
	assert.Equal(t, "gateway reported payout failure", res.Transaction.FailureReason)
}

func TestHandle_WithdrawalSuccess(t *testing.T) {
	t.Parallel()

	r, db, _ := newReconciler(t, "60")
	seedTx(t, db, ledger.KindWithdrawal, ledger.StatusProcessing, "WD-2-1", "40")

	res, err := r.Handle(t.Context(), signedDelivery(t, map[string]any{"merchant_order_id": "WD-2-1", "order_status": "completed"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, ledger.StatusCompleted, res.Transaction.Status)

	// a late failure cannot refund a paid-out withdrawal
	res, err = r.Handle(t.Context(), signedDelivery(t, map[string]any{"merchant_order_id": "WD-2-1", "order_status": "failed"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.True(t, pgtestutil.Balance(t, db, 1).Equal(decimal.RequireFromString("60")))
}

func TestHandle_Rejections(t *testing.T) {
	t.Parallel()

	r, db, _ := newReconciler(t, "0")
	seedTx(t, db, ledger.KindDeposit, ledger.StatusPending, "DEP-9-1", "50")

	tampered := signedDelivery(t, map[string]any{"merchant_order_id": "DEP-9-1", "order_status": "paid"})
	tampered.Body = []byte(`{"merchant_order_id":"DEP-9-1","order_status":"paid","order_amount":"5000"}`)

	_, err := r.Handle(t.Context(), tampered)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidSignature))

	_, err = r.Handle(t.Context(), signedDelivery(t, map[string]any{"merchant_order_id": "DEP-404-1", "order_status": "paid"}))
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	_, err = r.Handle(t.Context(), Delivery{Body: []byte(`nope`)})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	assert.True(t, pgtestutil.Balance(t, db, 1).IsZero())
}

func TestHandle_Activation(t *testing.T) {
	t.Parallel()

	r, _, _ := newReconciler(t, "0")
	body := []byte(`{"type":"ActivateWebhookURL","msg":{"app_id":"app-1"}}`)

	res, err := r.Handle(t.Context(), Delivery{
		AppID:     testAppID,
		Timestamp: testTS,
		Sign:      signature.ActivationSign(testAppID, testTS, body, testSecret),
		Body:      body,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, res.Outcome)

	// the standard scheme is not accepted for activation
	params, err := signature.DecodeParams(body)
	require.NoError(t, err)

	_, err = r.Handle(t.Context(), Delivery{
		Timestamp: testTS,
		Sign:      signature.GatewaySign(params, testTS, testSecret),
		Body:      body,
	})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidSignature))
}
