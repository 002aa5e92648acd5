package ledger

import (
	"database/sql"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Golden-Age-Club/server/internal/infra/pgtestutil"
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTx(key, ref string, kind ledger.Kind, status ledger.Status, amount string) *ledger.Transaction {
	return &ledger.Transaction{
		AccountID:         1,
		Kind:              kind,
		Amount:            decimal.RequireFromString(amount),
		Currency:          "USDT",
		Status:            status,
		IdempotencyKey:    key,
		ExternalReference: ref,
		Metadata:          ledger.Metadata{"return_url": "https://casino.test/back"},
	}
}

func TestLedger_Insert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		seed    func(t *testing.T, db *sql.DB, repo *ledgerRepo)
		tx      *ledger.Transaction
		wantErr error
	}{
		{
			name: "ok_insert",
			tx:   newTx("key-1", "DEP-1-1", ledger.KindDeposit, ledger.StatusPending, "50.00"),
		},
		{
			name: "duplicate_idempotency_key",
			seed: func(t *testing.T, db *sql.DB, repo *ledgerRepo) {
				require.NoError(t, repo.Insert(t.Context(), db, newTx("key-dup", "DEP-2-1", ledger.KindDeposit, ledger.StatusPending, "1")))
			},
			tx:      newTx("key-dup", "DEP-3-1", ledger.KindDeposit, ledger.StatusPending, "1"),
			wantErr: ledger.ErrDuplicateTransaction,
		},
		{
			name: "duplicate_merchant_order_id",
			seed: func(t *testing.T, db *sql.DB, repo *ledgerRepo) {
				require.NoError(t, repo.Insert(t.Context(), db, newTx("key-a", "WD-9-1", ledger.KindWithdrawal, ledger.StatusPending, "1")))
			},
			tx:      newTx("key-b", "WD-9-1", ledger.KindWithdrawal, ledger.StatusPending, "1"),
			wantErr: ledger.ErrDuplicateTransaction,
		},
		{
			name: "round_id_may_repeat_for_wagers",
			seed: func(t *testing.T, db *sql.DB, repo *ledgerRepo) {
				require.NoError(t, repo.Insert(t.Context(), db, newTx("bet-1", "round-7", ledger.KindWager, ledger.StatusCompleted, "1")))
			},
			tx: newTx("bet-2", "round-7", ledger.KindWager, ledger.StatusCompleted, "1"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db := pgtestutil.NewTestDB(t)
			pgtestutil.SeedAccount(t, db, 1, "100.00")
			repo := New()

			if tt.seed != nil {
				tt.seed(t, db, repo)
			}

			err := repo.Insert(t.Context(), db, tt.tx)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.NotZero(t, tt.tx.ID)

			got, err := repo.GetByIdempotencyKey(t.Context(), db, tt.tx.IdempotencyKey)
			require.NoError(t, err)
			require.Equal(t, tt.tx.Kind, got.Kind)
			require.Equal(t, tt.tx.Status, got.Status)
			require.True(t, got.Amount.Equal(tt.tx.Amount))
			require.Equal(t, "https://casino.test/back", got.StringMeta("return_url"))

			if got.Status == ledger.StatusCompleted {
				require.NotNil(t, got.CompletedAt)
			} else {
				require.Nil(t, got.CompletedAt)
			}
		})
	}
}

func TestLedger_GetByExternalReference(t *testing.T) {
	t.Parallel()

	db := pgtestutil.NewTestDB(t)
	pgtestutil.SeedAccount(t, db, 1, "0")
	repo := New()

	require.NoError(t, repo.Insert(t.Context(), db, newTx("k1", "DEP-100-1", ledger.KindDeposit, ledger.StatusPending, "5")))
	require.NoError(t, repo.Insert(t.Context(), db, newTx("k2", "round-1", ledger.KindWager, ledger.StatusCompleted, "5")))

	got, err := repo.GetByExternalReference(t.Context(), db, "DEP-100-1")
	require.NoError(t, err)
	require.Equal(t, "k1", got.IdempotencyKey)

	// wagers are not addressable by merchant order id
	_, err = repo.GetByExternalReference(t.Context(), db, "round-1")
	require.ErrorIs(t, err, ledger.ErrTransactionNotFound)

	_, err = repo.GetByID(t.Context(), db, 987654)
	require.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestLedger_Apply_ExactlyOneWinner(t *testing.T) {
	t.Parallel()

	db := pgtestutil.NewTestDB(t)
	pgtestutil.SeedAccount(t, db, 1, "0")
	repo := New()

	tx := newTx("k-race", "DEP-7-1", ledger.KindDeposit, ledger.StatusPending, "50.00")
	require.NoError(t, repo.Insert(t.Context(), db, tx))

	payload := json.RawMessage(`{"order_status":"paid"}`)

	var (
		wg      sync.WaitGroup
		matched atomic.Int32
	)

	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ok, err := repo.Apply(t.Context(), db, ledger.Transition{
				ID:      tx.ID,
				Allowed: []ledger.Status{ledger.StatusPending, ledger.StatusFailed, ledger.StatusExpired},
				To:      ledger.StatusCompleted,
				Payload: payload,
			})
			if err != nil {
				t.Errorf("apply: %v", err)
				return
			}
			if ok {
				matched.Add(1)
			}
		}()
	}

	wg.Wait()
	require.Equal(t, int32(1), matched.Load())

	got, err := repo.GetByID(t.Context(), db, tx.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.JSONEq(t, string(payload), string(got.RawCallbackPayload))
}

func TestLedger_Apply_RecordsReason(t *testing.T) {
	t.Parallel()

	db := pgtestutil.NewTestDB(t)
	pgtestutil.SeedAccount(t, db, 1, "0")
	repo := New()

	tx := newTx("k-fail", "WD-1-1", ledger.KindWithdrawal, ledger.StatusPending, "10")
	require.NoError(t, repo.Insert(t.Context(), db, tx))

	ok, err := repo.Apply(t.Context(), db, ledger.Transition{
		ID:      tx.ID,
		Allowed: []ledger.Status{ledger.StatusPending},
		To:      ledger.StatusFailed,
		Reason:  "payout rejected",
	})
	require.NoError(t, err)
	require.True(t, ok)

	// a second attempt no longer matches
	ok, err = repo.Apply(t.Context(), db, ledger.Transition{
		ID:      tx.ID,
		Allowed: []ledger.Status{ledger.StatusPending},
		To:      ledger.StatusFailed,
		Reason:  "other",
	})
	require.NoError(t, err)
	require.False(t, ok)

	got, err := repo.GetByID(t.Context(), db, tx.ID)
	require.NoError(t, err)
	require.Equal(t, "payout rejected", got.FailureReason)
	require.Nil(t, got.CompletedAt)

	_, err = repo.Apply(t.Context(), db, ledger.Transition{ID: tx.ID, To: ledger.StatusFailed})
	require.Error(t, err)
}

func TestLedger_ExpirePending(t *testing.T) {
	t.Parallel()

	db := pgtestutil.NewTestDB(t)
	pgtestutil.SeedAccount(t, db, 1, "0")
	repo := New()

	old := newTx("old-dep", "DEP-1-1", ledger.KindDeposit, ledger.StatusPending, "5")
	fresh := newTx("new-dep", "DEP-2-1", ledger.KindDeposit, ledger.StatusPending, "5")
	oldWd := newTx("old-wd", "WD-3-1", ledger.KindWithdrawal, ledger.StatusPending, "5")
	processing := newTx("old-proc", "WD-4-1", ledger.KindWithdrawal, ledger.StatusProcessing, "5")

	for _, tx := range []*ledger.Transaction{old, fresh, oldWd, processing} {
		require.NoError(t, repo.Insert(t.Context(), db, tx))
	}

	_, err := db.ExecContext(t.Context(), `
		UPDATE ledger_transactions SET created_at = now() - interval '25 hours'
		WHERE idempotency_key IN ('old-dep', 'old-wd', 'old-proc')
	`)
	require.NoError(t, err)

	n, err := repo.ExpirePending(t.Context(), db, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	want := map[string]ledger.Status{
		"old-dep":  ledger.StatusExpired,
		"old-wd":   ledger.StatusExpired,
		"new-dep":  ledger.StatusPending,
		"old-proc": ledger.StatusProcessing,
	}
	for key, status := range want {
		got, err := repo.GetByIdempotencyKey(t.Context(), db, key)
		require.NoError(t, err)
		require.Equal(t, status, got.Status, key)
	}

	require.True(t, pgtestutil.Balance(t, db, 1).IsZero())
}

func TestLedger_StatsQueries(t *testing.T) {
	t.Parallel()

	db := pgtestutil.NewTestDB(t)
	pgtestutil.SeedAccount(t, db, 1, "0")
	repo := New()

	rows := []*ledger.Transaction{
		newTx("d1", "DEP-1-1", ledger.KindDeposit, ledger.StatusCompleted, "100"),
		newTx("d2", "DEP-2-1", ledger.KindDeposit, ledger.StatusPending, "999"),
		newTx("w1", "WD-1-1", ledger.KindWithdrawal, ledger.StatusPending, "20"),
		newTx("w2", "WD-2-1", ledger.KindWithdrawal, ledger.StatusFailed, "30"),
		newTx("b1", "r1", ledger.KindWager, ledger.StatusCompleted, "10"),
		newTx("b2", "r2", ledger.KindWager, ledger.StatusRefunded, "10"),
		newTx("g1", "r1", ledger.KindWin, ledger.StatusCompleted, "25"),
	}
	for _, tx := range rows {
		require.NoError(t, repo.Insert(t.Context(), db, tx))
	}

	// 100 - 20 (held reservation) - 10 + 25
	sum, err := repo.SignedSum(t.Context(), db, 1)
	require.NoError(t, err)
	require.True(t, sum.Equal(decimal.RequireFromString("95")), "sum=%s", sum)

	recent, err := repo.RecentByKinds(t.Context(), db, 1, []ledger.Kind{ledger.KindWager, ledger.KindWin}, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "g1", recent[0].IdempotencyKey)

	n, err := repo.CountCompletedSince(t.Context(), db, 1, ledger.KindDeposit, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestLedger_MetadataAndBalanceAfter(t *testing.T) {
	t.Parallel()

	db := pgtestutil.NewTestDB(t)
	pgtestutil.SeedAccount(t, db, 1, "0")
	repo := New()

	tx := newTx("m1", "DEP-1-1", ledger.KindDeposit, ledger.StatusPending, "5")
	require.NoError(t, repo.Insert(t.Context(), db, tx))

	require.NoError(t, repo.SetGatewayReference(t.Context(), db, tx.ID, "gw-77", ledger.Metadata{"payment_url": "https://pay.test/77"}))
	require.NoError(t, repo.MergeMetadata(t.Context(), db, tx.ID, ledger.Metadata{"note": "x"}))
	require.NoError(t, repo.SetBalanceAfter(t.Context(), db, tx.ID, decimal.RequireFromString("12.5")))

	got, err := repo.GetByID(t.Context(), db, tx.ID)
	require.NoError(t, err)
	require.Equal(t, "gw-77", got.GatewayReference)
	require.Equal(t, "https://pay.test/77", got.StringMeta("payment_url"))
	require.Equal(t, "https://casino.test/back", got.StringMeta("return_url"))
	require.Equal(t, "x", got.StringMeta("note"))
	require.NotNil(t, got.BalanceAfter)
	require.True(t, got.BalanceAfter.Equal(decimal.RequireFromString("12.5")))
}
