package risklogs

import (
	"context"
	"errors"
	"time"

	"github.com/Golden-Age-Club/server/internal/infra/pgutils"
)

var ErrFlagNotFound = errors.New("risk flag not found")

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Status string

const (
	StatusActive        Status = "active"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
)

type Action string

const (
	ActionNone     Action = "none"
	ActionFreeze   Action = "freeze"
	ActionRestrict Action = "restrict"
	ActionWarn     Action = "warn"
)

func (a Action) Valid() bool {
	switch a {
	case ActionNone, ActionFreeze, ActionRestrict, ActionWarn:
		return true
	default:
		return false
	}
}

type Flag struct {
	ID          int64
	AccountID   uint64
	Rule        string
	Severity    Severity
	Status      Status
	ActionTaken Action
	Details     map[string]any
	Note        string
	ResolvedBy  string
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

type RiskLogs interface {
	// OpenIfAbsent inserts flag unless an unresolved flag for the same
	// account and rule exists, and reports whether it inserted.
	OpenIfAbsent(ctx context.Context, q pgutils.Querier, flag *Flag) (bool, error)
	Get(ctx context.Context, q pgutils.Querier, id int64) (*Flag, error)
	ListByAccount(ctx context.Context, q pgutils.Querier, accountID uint64, openOnly bool) ([]Flag, error)
	MarkInvestigating(ctx context.Context, q pgutils.Querier, id int64) (bool, error)
	// Resolve closes an open flag and reports whether it was open.
	Resolve(ctx context.Context, q pgutils.Querier, id int64, action Action, note, by string) (bool, error)
}
