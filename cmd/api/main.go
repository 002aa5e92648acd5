package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Golden-Age-Club/server/internal/api"
	"github.com/Golden-Age-Club/server/internal/cron"
	"github.com/Golden-Age-Club/server/internal/gateway"
	"github.com/Golden-Age-Club/server/internal/infra/logging"
	"github.com/Golden-Age-Club/server/internal/infra/pgutils"
	"github.com/Golden-Age-Club/server/internal/infra/redisutil"
	"github.com/Golden-Age-Club/server/internal/metrics"
	"github.com/Golden-Age-Club/server/internal/services/gamesession"
	"github.com/Golden-Age-Club/server/internal/services/paymentwebhook"
	"github.com/Golden-Age-Club/server/internal/services/risk"
	"github.com/Golden-Age-Club/server/internal/services/wallet"
	"github.com/Golden-Age-Club/server/internal/signature"
	"github.com/Golden-Age-Club/server/pkg/envconf"
	"github.com/Golden-Age-Club/server/pkg/shutdownqueue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load("", cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	err = cfg.Wallet.Validate()
	if err != nil {
		return fmt.Errorf("wallet config: %w", err)
	}

	logg := logging.New(logging.Options{
		ServiceName: "ledger-api",
		Level:       logging.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		logg.Info(logg.WithField(shutdownCtx, "tasks", shutdownqueue.Pending()), "shutting down")

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.Add("postgres", func(context.Context) error { return db.Close() })

	rdb, err := redisutil.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("open redis: %w", err)
	}

	shutdownqueue.Add("redis", func(context.Context) error { return rdb.Close() })

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ledgerMetrics := metrics.NewLedgerMetrics(reg)
	cronMetrics := metrics.NewCronJobMetrics(reg)

	gw, err := gateway.New(cfg.Gateway)
	if err != nil {
		return fmt.Errorf("init gateway: %w", err)
	}

	if cfg.Gateway.Mock() {
		logg.Warn(ctx, "payment gateway running in mock mode")
	}

	// --- Services ---
	riskEval := risk.New(db, cfg.Risk, risk.NewRedisLoginCounter(rdb, cfg.Risk.FailedLoginWindow), logg, ledgerMetrics)

	// in-flight evaluations finish before redis and postgres close
	shutdownqueue.Add("risk evaluations", riskEval.Wait)

	walletSvc := wallet.New(db, gw, cfg.Wallet, logg)
	webhooks := paymentwebhook.New(db, cfg.Gateway, riskEval, logg, ledgerMetrics)
	var tokenOpts []signature.SessionOption
	if cfg.Provider.AllowOpaqueTokens {
		logg.Warn(ctx, "provider callbacks accept unsigned player tokens")
		tokenOpts = append(tokenOpts, signature.WithOpaqueTokens())
	}
	tokens := signature.NewSessionTokens(cfg.Provider.SessionSecret, cfg.Provider.SessionTTL, tokenOpts...)
	games := gamesession.New(db, tokens, riskEval, logg, ledgerMetrics)

	// --- Sweep ---
	err = startCron(ctx, cfg, db, rdb, logg, cronMetrics)
	if err != nil {
		return err
	}

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, api.Deps{
		Wallet:   walletSvc,
		Webhooks: webhooks,
		Provider: games,
		Risk:     riskEval,
		Auth:     cfg.Auth,
		Logger:   logg,
		Gatherer: reg,
	})

	shutdownqueue.Add("http server", func(c context.Context) error {
		logg.Info(c, "shutting down http server")
		return srv.Shutdown(c)
	})

	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	logg.Info(logg.WithField(ctx, "port", cfg.Port), "api started")

	select {
	case <-ctx.Done():
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}

func startCron(ctx context.Context, cfg *apiConfig, db *sql.DB, rdb *redisutil.Client, logg *logging.Logger, m *metrics.CronJobMetrics) error {
	lock, err := cron.NewRedisLock(rdb, cfg.Sweep.LockKey, cfg.Sweep.LockTTL)
	if err != nil {
		return fmt.Errorf("init cron lock: %w", err)
	}

	expire, err := cron.NewExpirePendingJob(db, cfg.Sweep.Retention, logg, m)
	if err != nil {
		return fmt.Errorf("init expire job: %w", err)
	}

	svc, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expire),
		Lock:     lock,
		Metrics:  m,
		Interval: cfg.Sweep.Interval,
	})
	if err != nil {
		return fmt.Errorf("init cron service: %w", err)
	}

	cronCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = svc.Run(cronCtx)
	}()

	shutdownqueue.Add("cron", func(c context.Context) error {
		cancel()

		select {
		case <-done:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})

	return nil
}
