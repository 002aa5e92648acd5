package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PostgresConfig struct {
	DSN             string        `envconfig:"PG_DSN" required:"true"`
	MaxOpenConns    int           `envconfig:"PG_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PG_MAX_IDLE_CONNS" default:"10"`
	ConnMaxIdleTime time.Duration `envconfig:"PG_CONN_MAX_IDLE_TIME" default:"5m"`
	ConnMaxLifetime time.Duration `envconfig:"PG_CONN_MAX_LIFETIME" default:"30m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"REDIS_URL"`
	Address      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"REDIS_PASSWORD"`
	DB           int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// GatewayConfig describes the crypto payment gateway account.
type GatewayConfig struct {
	Mode      string        `envconfig:"GATEWAY_MODE" default:"live"`
	BaseURL   string        `envconfig:"GATEWAY_BASE_URL" default:"https://ccpayment.com"`
	AppID     string        `envconfig:"GATEWAY_APP_ID"`
	AppSecret string        `envconfig:"GATEWAY_APP_SECRET"`
	NotifyURL string        `envconfig:"GATEWAY_NOTIFY_URL"`
	Timeout   time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"15s"`
}

// Mock reports whether outbound gateway calls are answered locally.
func (g GatewayConfig) Mock() bool {
	return g.Mode == "mock"
}

// ProviderConfig holds the game provider session token settings.
type ProviderConfig struct {
	SessionSecret string        `envconfig:"PROVIDER_SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"PROVIDER_SESSION_TTL" default:"12h"`

	// AllowOpaqueTokens accepts unsigned base64 player references. Off unless
	// a provider cannot echo our signed token.
	AllowOpaqueTokens bool `envconfig:"PROVIDER_ALLOW_OPAQUE_TOKENS" default:"false"`
}

// AuthConfig verifies bearer tokens issued by the auth service.
type AuthConfig struct {
	JWTSecret string `envconfig:"AUTH_JWT_SECRET" required:"true"`
	Issuer    string `envconfig:"AUTH_JWT_ISSUER"`
	// InternalToken guards the service-to-service hooks.
	InternalToken string `envconfig:"AUTH_INTERNAL_TOKEN"`
}

type WalletConfig struct {
	MinDeposit    decimal.Decimal `envconfig:"WALLET_MIN_DEPOSIT" default:"10"`
	MaxDeposit    decimal.Decimal `envconfig:"WALLET_MAX_DEPOSIT" default:"10000"`
	MinWithdrawal decimal.Decimal `envconfig:"WALLET_MIN_WITHDRAWAL" default:"10"`
	MaxWithdrawal decimal.Decimal `envconfig:"WALLET_MAX_WITHDRAWAL" default:"10000"`
	Currencies    []string        `envconfig:"WALLET_CURRENCIES" default:"USDT,USDC,BTC,ETH,TRX"`
}

func (w WalletConfig) Validate() error {
	if w.MinDeposit.GreaterThan(w.MaxDeposit) {
		return fmt.Errorf("min deposit %s above max %s", w.MinDeposit, w.MaxDeposit)
	}
	if w.MinWithdrawal.GreaterThan(w.MaxWithdrawal) {
		return fmt.Errorf("min withdrawal %s above max %s", w.MinWithdrawal, w.MaxWithdrawal)
	}
	if len(w.Currencies) == 0 {
		return fmt.Errorf("at least one wallet currency required")
	}

	return nil
}

type RiskConfig struct {
	WinRateThreshold   float64       `envconfig:"RISK_WIN_RATE_THRESHOLD" default:"0.9"`
	WinRateWindow      int           `envconfig:"RISK_WIN_RATE_WINDOW" default:"100"`
	WinRateMinWagers   int           `envconfig:"RISK_WIN_RATE_MIN_WAGERS" default:"20"`
	BetVarianceFactor  float64       `envconfig:"RISK_BET_VARIANCE_FACTOR" default:"10"`
	BetVarianceWindow  int           `envconfig:"RISK_BET_VARIANCE_WINDOW" default:"20"`
	BetVarianceMinBets int           `envconfig:"RISK_BET_VARIANCE_MIN_BETS" default:"10"`
	RapidDepositLimit  int           `envconfig:"RISK_RAPID_DEPOSIT_LIMIT" default:"10"`
	RapidDepositWindow time.Duration `envconfig:"RISK_RAPID_DEPOSIT_WINDOW" default:"24h"`
	FailedLoginLimit   int64         `envconfig:"RISK_FAILED_LOGIN_LIMIT" default:"5"`
	FailedLoginWindow  time.Duration `envconfig:"RISK_FAILED_LOGIN_WINDOW" default:"1h"`
	EvaluationTimeout  time.Duration `envconfig:"RISK_EVALUATION_TIMEOUT" default:"5s"`
}

// SweepConfig schedules the pending-transaction expiry job.
type SweepConfig struct {
	Interval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`
	Retention time.Duration `envconfig:"SWEEP_RETENTION" default:"24h"`
	LockKey   string        `envconfig:"SWEEP_LOCK_KEY" default:"ledger:cron:lock"`
	LockTTL   time.Duration `envconfig:"SWEEP_LOCK_TTL" default:"50m"`
}
