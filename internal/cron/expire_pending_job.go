package cron

import (
	"context"
	"errors"
	"time"

	"github.com/Golden-Age-Club/server/internal/infra/logging"
	"github.com/Golden-Age-Club/server/internal/infra/pgutils"
	"github.com/Golden-Age-Club/server/internal/metrics"
	pgledger "github.com/Golden-Age-Club/server/internal/repos/ledger/postgres"
)

const ExpirePendingJobName = "expire_pending"

type pendingExpirer interface {
	ExpirePending(ctx context.Context, q pgutils.Querier, cutoff time.Time) (int64, error)
}

// ExpirePendingJob marks deposits and withdrawals still pending after the
// retention window as expired. Expiry moves no money: a withdrawal keeps its
// reservation until an admin rejects it or the gateway reports the payout.
type ExpirePendingJob struct {
	db        pgutils.Querier
	ledger    pendingExpirer
	retention time.Duration
	logg      *logging.Logger
	metrics   *metrics.CronJobMetrics
	now       func() time.Time
}

func NewExpirePendingJob(db pgutils.Querier, retention time.Duration, logg *logging.Logger, m *metrics.CronJobMetrics) (*ExpirePendingJob, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if retention <= 0 {
		return nil, errors.New("retention must be positive")
	}
	if logg == nil {
		logg = logging.Nop()
	}

	return &ExpirePendingJob{
		db:        db,
		ledger:    pgledger.New(),
		retention: retention,
		logg:      logg,
		metrics:   m,
		now:       time.Now,
	}, nil
}

func (j *ExpirePendingJob) Name() string { return ExpirePendingJobName }

func (j *ExpirePendingJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)

	n, err := j.ledger.ExpirePending(ctx, j.db, cutoff)
	if err != nil {
		return err
	}

	j.metrics.AddAffected(ExpirePendingJobName, n)

	if n > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"expired": n,
			"cutoff":  cutoff,
		}), "stale pending transactions expired")
	}

	return nil
}
