package wallet

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/Golden-Age-Club/server/internal/apperr"
	"github.com/Golden-Age-Club/server/internal/config"
	"github.com/Golden-Age-Club/server/internal/gateway"
	"github.com/Golden-Age-Club/server/internal/infra/pgtestutil"
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	invoiceFn func(ctx context.Context, req gateway.InvoiceRequest) (*gateway.Invoice, error)
	payoutFn  func(ctx context.Context, req gateway.PayoutRequest) (*gateway.Payout, error)
}

func (f fakeGateway) CreateInvoice(ctx context.Context, req gateway.InvoiceRequest) (*gateway.Invoice, error) {
	if f.invoiceFn != nil {
		return f.invoiceFn(ctx, req)
	}

	return gateway.Mock{}.CreateInvoice(ctx, req)
}

func (f fakeGateway) CreatePayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.Payout, error) {
	if f.payoutFn != nil {
		return f.payoutFn(ctx, req)
	}

	return gateway.Mock{}.CreatePayout(ctx, req)
}

func walletConfig() config.WalletConfig {
	return config.WalletConfig{
		MinDeposit:    decimal.NewFromInt(10),
		MaxDeposit:    decimal.NewFromInt(10000),
		MinWithdrawal: decimal.NewFromInt(10),
		MaxWithdrawal: decimal.NewFromInt(10000),
		Currencies:    []string{"USDT", "BTC"},
	}
}

func newService(t *testing.T, gw gateway.Gateway, balance string) (*Service, *sql.DB) {
	t.Helper()

	db := pgtestutil.NewTestDB(t)
	pgtestutil.SeedAccount(t, db, 1, balance)

	svc := New(db, gw, walletConfig(), nil)
	clock := time.Unix(1700000000, 0)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	return svc, db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateDeposit(t *testing.T) {
	t.Parallel()

	svc, db := newService(t, fakeGateway{}, "0")

	res, err := svc.CreateDeposit(t.Context(), DepositRequest{
		AccountID: 1,
		Amount:    dec("50.00"),
		Currency:  "usdt",
		ReturnURL: "https://casino.test/back",
	})
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusPending, res.Transaction.Status)
	assert.Equal(t, "USDT", res.Transaction.Currency)
	assert.Equal(t, "DEP-1700000001-1", res.Transaction.ExternalReference)
	assert.Equal(t, "https://mock-payment.local/pay/DEP-1700000001-1", res.PaymentURL)

	stored, err := svc.Transaction(t.Context(), 1, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, "mock_DEP-1700000001-1", stored.GatewayReference)
	assert.Equal(t, "https://casino.test/back", stored.StringMeta(metaReturnURL))

	// nothing moves until the gateway confirms
	assert.True(t, pgtestutil.Balance(t, db, 1).IsZero())
}

func TestCreateDeposit_Validation(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, fakeGateway{}, "0")

	tests := []struct {
		name string
		req  DepositRequest
		code apperr.Code
	}{
		{"below_min", DepositRequest{AccountID: 1, Amount: dec("9.99"), Currency: "USDT"}, apperr.CodeValidation},
		{"above_max", DepositRequest{AccountID: 1, Amount: dec("10000.01"), Currency: "USDT"}, apperr.CodeValidation},
		{"three_decimals", DepositRequest{AccountID: 1, Amount: dec("10.001"), Currency: "USDT"}, apperr.CodeValidation},
		{"negative", DepositRequest{AccountID: 1, Amount: dec("-10"), Currency: "USDT"}, apperr.CodeValidation},
		{"currency", DepositRequest{AccountID: 1, Amount: dec("10"), Currency: "DOGE"}, apperr.CodeValidation},
		{"unknown_account", DepositRequest{AccountID: 77, Amount: dec("10"), Currency: "USDT"}, apperr.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateDeposit(t.Context(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}
}

func TestCreateDeposit_GatewayFailureMarksFailed(t *testing.T) {
	t.Parallel()

	var orderID string
	gw := fakeGateway{invoiceFn: func(_ context.Context, req gateway.InvoiceRequest) (*gateway.Invoice, error) {
		orderID = req.MerchantOrderID
		return nil, errors.New("connection refused")
	}}
	svc, db := newService(t, gw, "5.00")

	_, err := svc.CreateDeposit(t.Context(), DepositRequest{AccountID: 1, Amount: dec("20"), Currency: "USDT"})
	require.True(t, apperr.Is(err, apperr.CodeProviderUnavailable))

	tx, err := svc.ledger.GetByExternalReference(t.Context(), db, orderID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, tx.Status)
	assert.Contains(t, tx.FailureReason, "connection refused")
	assert.True(t, pgtestutil.Balance(t, db, 1).Equal(dec("5")))
}

func TestCreateWithdrawal(t *testing.T) {
	t.Parallel()

	svc, db := newService(t, fakeGateway{}, "100.00")

	tx, err := svc.CreateWithdrawal(t.Context(), WithdrawalRequest{
		AccountID: 1,
		Amount:    dec("30"),
		Address:   "TDestinationAddress",
		Currency:  "USDT",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, tx.Status)
	assert.Equal(t, "TDestinationAddress", tx.Destination)
	assert.True(t, pgtestutil.Balance(t, db, 1).Equal(dec("70")))

	_, err = svc.CreateWithdrawal(t.Context(), WithdrawalRequest{
		AccountID: 1,
		Amount:    dec("70.01"),
		Address:   "TDestinationAddress",
		Currency:  "USDT",
	})
	require.True(t, apperr.Is(err, apperr.CodeInsufficientBalance))
	assert.True(t, pgtestutil.Balance(t, db, 1).Equal(dec("70")))

	rec, err := svc.Reconcile(t.Context(), 1)
	require.NoError(t, err)
	// seeded balance has no ledger history
	assert.True(t, rec.LedgerSum.Equal(dec("-30")))
	assert.True(t, rec.Difference.Equal(dec("100")))
	assert.False(t, rec.Consistent)
}

func TestApproveWithdrawal(t *testing.T) {
	t.Parallel()

	var sent gateway.PayoutRequest
	gw := fakeGateway{payoutFn: func(_ context.Context, req gateway.PayoutRequest) (*gateway.Payout, error) {
		sent = req
		return &gateway.Payout{OrderID: "gw-wd-1", Status: "processing"}, nil
	}}
	svc, db := newService(t, gw, "100.00")

	tx, err := svc.CreateWithdrawal(t.Context(), WithdrawalRequest{AccountID: 1, Amount: dec("40"), Address: "TDest", Currency: "USDT"})
	require.NoError(t, err)

	got, err := svc.ApproveWithdrawal(t.Context(), tx.ID, "looks fine", "admin@casino")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusProcessing, got.Status)
	assert.Equal(t, "gw-wd-1", got.GatewayReference)
	assert.Equal(t, "admin@casino", got.StringMeta(metaApprovedBy))
	assert.Equal(t, tx.ExternalReference, sent.MerchantOrderID)
	assert.True(t, sent.Amount.Equal(dec("40")))

	_, err = svc.ApproveWithdrawal(t.Context(), tx.ID, "", "admin")
	require.True(t, apperr.Is(err, apperr.CodeInconsistentState))

	assert.True(t, pgtestutil.Balance(t, db, 1).Equal(dec("60")))
}

func TestApproveWithdrawal_PayoutFailureRefundsOnce(t *testing.T) {
	t.Parallel()

	gw := fakeGateway{payoutFn: func(context.Context, gateway.PayoutRequest) (*gateway.Payout, error) {
		return nil, gateway.ErrGatewayRejected
	}}
	svc, db := newService(t, gw, "100.00")

	tx, err := svc.CreateWithdrawal(t.Context(), WithdrawalRequest{AccountID: 1, Amount: dec("40"), Address: "TDest", Currency: "USDT"})
	require.NoError(t, err)

	_, err = svc.ApproveWithdrawal(t.Context(), tx.ID, "", "admin")
	require.True(t, apperr.Is(err, apperr.CodeProviderUnavailable))

	got, err := svc.Transaction(t.Context(), 1, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, got.Status)
	assert.Contains(t, got.FailureReason, "payout failed")
	assert.True(t, pgtestutil.Balance(t, db, 1).Equal(dec("100")))

	// a later rejection must not credit again
	_, err = svc.RejectWithdrawal(t.Context(), tx.ID, "", "admin")
	require.True(t, apperr.Is(err, apperr.CodeInconsistentState))
	assert.True(t, pgtestutil.Balance(t, db, 1).Equal(dec("100")))
}

func TestRejectWithdrawal(t *testing.T) {
	t.Parallel()

	svc, db := newService(t, fakeGateway{}, "100.00")

	tx, err := svc.CreateWithdrawal(t.Context(), WithdrawalRequest{AccountID: 1, Amount: dec("25.50"), Address: "TDest", Currency: "USDT"})
	require.NoError(t, err)

	got, err := svc.RejectWithdrawal(t.Context(), tx.ID, "kyc mismatch", "admin")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, got.Status)
	assert.Equal(t, "kyc mismatch", got.FailureReason)
	assert.True(t, pgtestutil.Balance(t, db, 1).Equal(dec("100")))

	rec, err := svc.Reconcile(t.Context(), 1)
	require.NoError(t, err)
	assert.True(t, rec.LedgerSum.IsZero())
}

func TestTransaction_OtherAccountHidden(t *testing.T) {
	t.Parallel()

	svc, db := newService(t, fakeGateway{}, "100.00")
	pgtestutil.SeedAccount(t, db, 2, "0")

	tx, err := svc.CreateWithdrawal(t.Context(), WithdrawalRequest{AccountID: 1, Amount: dec("10"), Address: "TDest", Currency: "BTC"})
	require.NoError(t, err)

	_, err = svc.Transaction(t.Context(), 2, tx.ID)
	require.True(t, apperr.Is(err, apperr.CodeNotFound))

	_, err = svc.ApproveWithdrawal(t.Context(), 999999, "", "admin")
	require.True(t, apperr.Is(err, apperr.CodeNotFound))

	view, err := svc.Balance(t.Context(), 1)
	require.NoError(t, err)
	assert.True(t, view.Balance.Equal(dec("90")))
}
