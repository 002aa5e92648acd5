package risk

import (
	"github.com/Golden-Age-Club/server/internal/config"
	"github.com/Golden-Age-Club/server/internal/repos/ledger"
	"github.com/Golden-Age-Club/server/internal/repos/risklogs"
	"github.com/shopspring/decimal"
)

const (
	RuleUnusualWinRate = "unusual_win_rate"
	RuleBetVariance    = "bet_variance"
	RuleRapidDeposits  = "rapid_deposits"
	RuleFailedLogins   = "failed_logins"
)

// Finding is a rule that fired, ready to be recorded as a flag.
type Finding struct {
	Rule     string
	Severity risklogs.Severity
	Details  map[string]any
}

// winRate expects recent wager and win rows, newest first.
func winRate(events []ledger.Transaction, cfg config.RiskConfig) (Finding, bool) {
	var wagers, wins int
	for _, e := range events {
		switch e.Kind {
		case ledger.KindWager:
			wagers++
		case ledger.KindWin:
			wins++
		}
	}

	if wagers == 0 || wagers < cfg.WinRateMinWagers {
		return Finding{}, false
	}

	rate := float64(wins) / float64(wagers)
	if rate <= cfg.WinRateThreshold {
		return Finding{}, false
	}

	return Finding{
		Rule:     RuleUnusualWinRate,
		Severity: risklogs.SeverityHigh,
		Details: map[string]any{
			"wins":      wins,
			"wagers":    wagers,
			"win_rate":  rate,
			"threshold": cfg.WinRateThreshold,
		},
	}, true
}

// betVariance compares the latest wager with the mean of the window,
// wagers newest first.
func betVariance(wagers []ledger.Transaction, cfg config.RiskConfig) (Finding, bool) {
	if len(wagers) == 0 || len(wagers) < cfg.BetVarianceMinBets {
		return Finding{}, false
	}

	sum := decimal.Zero
	for _, w := range wagers {
		sum = sum.Add(w.Amount)
	}

	mean := sum.Div(decimal.NewFromInt(int64(len(wagers))))
	if !mean.IsPositive() {
		return Finding{}, false
	}

	latest := wagers[0].Amount
	limit := mean.Mul(decimal.NewFromFloat(cfg.BetVarianceFactor))
	if !latest.GreaterThan(limit) {
		return Finding{}, false
	}

	return Finding{
		Rule:     RuleBetVariance,
		Severity: risklogs.SeverityMedium,
		Details: map[string]any{
			"latest_bet": latest.StringFixed(2),
			"mean_bet":   mean.StringFixed(2),
			"factor":     cfg.BetVarianceFactor,
			"sample":     len(wagers),
		},
	}, true
}

func rapidDeposits(completed int, cfg config.RiskConfig) (Finding, bool) {
	if completed <= cfg.RapidDepositLimit {
		return Finding{}, false
	}

	return Finding{
		Rule:     RuleRapidDeposits,
		Severity: risklogs.SeverityMedium,
		Details: map[string]any{
			"deposits": completed,
			"limit":    cfg.RapidDepositLimit,
			"window":   cfg.RapidDepositWindow.String(),
		},
	}, true
}

func failedLogins(count int64, cfg config.RiskConfig) (Finding, bool) {
	if count <= cfg.FailedLoginLimit {
		return Finding{}, false
	}

	return Finding{
		Rule:     RuleFailedLogins,
		Severity: risklogs.SeverityMedium,
		Details: map[string]any{
			"attempts": count,
			"limit":    cfg.FailedLoginLimit,
			"window":   cfg.FailedLoginWindow.String(),
		},
	}, true
}
