package accounts

import (
	"github.com/Golden-Age-Club/server/internal/repos/accounts"
)

var _ accounts.Accounts = (*accountsRepo)(nil)

type accountsRepo struct{}

func New() *accountsRepo {
	return &accountsRepo{}
}

const accountColumns = `
	id, username, email, currency, country, city, balance, risk_level,
	failed_login_attempts, last_failed_login_at, deposit_count_24h, last_deposit_at,
	created_at, updated_at`
