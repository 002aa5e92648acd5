package api

import (
	"context"

	"github.com/Golden-Age-Club/server/internal/config"
	"github.com/Golden-Age-Club/server/internal/infra/logging"
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
	"github.com/Golden-Age-Club/server/internal/repos/risklogs"
	"github.com/Golden-Age-Club/server/internal/services/gamesession"
	"github.com/Golden-Age-Club/server/internal/services/paymentwebhook"
	"github.com/Golden-Age-Club/server/internal/services/wallet"
	"github.com/prometheus/client_golang/prometheus"
)

type WalletService interface {
	CreateDeposit(ctx context.Context, req wallet.DepositRequest) (*wallet.DepositResult, error)
	CreateWithdrawal(ctx context.Context, req wallet.WithdrawalRequest) (*ledger.Transaction, error)
	Balance(ctx context.Context, accountID uint64) (*wallet.BalanceView, error)
	Transaction(ctx context.Context, accountID uint64, id int64) (*ledger.Transaction, error)
	ApproveWithdrawal(ctx context.Context, id int64, note, by string) (*ledger.Transaction, error)
	RejectWithdrawal(ctx context.Context, id int64, reason, by string) (*ledger.Transaction, error)
	Reconcile(ctx context.Context, accountID uint64) (*wallet.Reconciliation, error)
}

type GatewayWebhooks interface {
	Handle(ctx context.Context, d paymentwebhook.Delivery) (*paymentwebhook.Result, error)
}

type ProviderCallbacks interface {
	Handle(ctx context.Context, body []byte) *gamesession.Response
	LaunchToken(ctx context.Context, accountID uint64, gameID string) (string, error)
}

type RiskService interface {
	ListFlags(ctx context.Context, accountID uint64, openOnly bool) ([]risklogs.Flag, error)
	ResolveFlag(ctx context.Context, id int64, action risklogs.Action, note, by string) (*risklogs.Flag, error)
	InvestigateFlag(ctx context.Context, id int64) (*risklogs.Flag, error)
	RecordLogin(ctx context.Context, accountID uint64, success bool) error
}

// Deps are the services the HTTP layer fronts.
type Deps struct {
	Wallet   WalletService
	Webhooks GatewayWebhooks
	Provider ProviderCallbacks
	Risk     RiskService
	Auth     config.AuthConfig
	Logger   *logging.Logger
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
}

// HandlerProvider exposes the services as HTTP handlers.
type HandlerProvider struct {
	wallet   WalletService
	webhooks GatewayWebhooks
	provider ProviderCallbacks
	risk     RiskService
	auth     config.AuthConfig
	logg     *logging.Logger
}

func NewHandler(d Deps) *HandlerProvider {
	logg := d.Logger
	if logg == nil {
		logg = logging.Nop()
	}

	return &HandlerProvider{
		wallet:   d.Wallet,
		webhooks: d.Webhooks,
		provider: d.Provider,
		risk:     d.Risk,
		auth:     d.Auth,
		logg:     logg,
	}
}
