package risklogs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Golden-Age-Club/server/internal/infra/pgutils"
	"github.com/Golden-Age-Club/server/internal/repos/risklogs"
)

var _ risklogs.RiskLogs = (*riskLogsRepo)(nil)

type riskLogsRepo struct{}

func New() *riskLogsRepo {
	return &riskLogsRepo{}
}

const flagColumns = `
	id, account_id, rule, severity, status, action_taken, details, note,
	resolved_by, created_at, resolved_at`

func (r *riskLogsRepo) OpenIfAbsent(ctx context.Context, q pgutils.Querier, flag *risklogs.Flag) (bool, error) {
	details, err := json.Marshal(flag.Details)
	if err != nil {
		return false, fmt.Errorf("encode details: %w", err)
	}
	if flag.Details == nil {
		details = []byte("{}")
	}

	err = q.QueryRowContext(ctx, `
		INSERT INTO risk_logs (account_id, rule, severity, details)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (account_id, rule) WHERE status <> 'resolved' DO NOTHING
		RETURNING id, status, action_taken, created_at
	`, flag.AccountID, flag.Rule, string(flag.Severity), string(details)).Scan(
		&flag.ID, &flag.Status, &flag.ActionTaken, &flag.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("open risk flag: %w", err)
	}

	return true, nil
}

func (r *riskLogsRepo) Get(ctx context.Context, q pgutils.Querier, id int64) (*risklogs.Flag, error) {
	f, err := scanFlag(q.QueryRowContext(ctx, `SELECT `+flagColumns+` FROM risk_logs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, risklogs.ErrFlagNotFound
		}

		return nil, fmt.Errorf("get risk flag: %w", err)
	}

	return f, nil
}

func (r *riskLogsRepo) ListByAccount(ctx context.Context, q pgutils.Querier, accountID uint64, openOnly bool) ([]risklogs.Flag, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+flagColumns+`
		FROM risk_logs
		WHERE account_id = $1
		  AND (NOT $2::bool OR status <> 'resolved')
		ORDER BY created_at DESC, id DESC
	`, accountID, openOnly)
	if err != nil {
		return nil, fmt.Errorf("list risk flags: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	var out []risklogs.Flag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan risk flag: %w", err)
		}
		out = append(out, *f)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate risk flags: %w", err)
	}

	return out, nil
}

func (r *riskLogsRepo) MarkInvestigating(ctx context.Context, q pgutils.Querier, id int64) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE risk_logs SET status = 'investigating'
		WHERE id = $1 AND status = 'active'
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark investigating: %w", err)
	}

	return pgutils.RowsMatched(res)
}

func (r *riskLogsRepo) Resolve(ctx context.Context, q pgutils.Querier, id int64, action risklogs.Action, note, by string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE risk_logs
		SET status = 'resolved', action_taken = $2, note = $3, resolved_by = $4, resolved_at = now()
		WHERE id = $1 AND status <> 'resolved'
	`, id, string(action), note, by)
	if err != nil {
		return false, fmt.Errorf("resolve risk flag: %w", err)
	}

	return pgutils.RowsMatched(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlag(row rowScanner) (*risklogs.Flag, error) {
	var (
		f                        risklogs.Flag
		severity, status, action string
		details                  []byte
		resolvedBy               sql.NullString
	)

	err := row.Scan(
		&f.ID, &f.AccountID, &f.Rule, &severity, &status, &action, &details, &f.Note,
		&resolvedBy, &f.CreatedAt, &f.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	f.Severity = risklogs.Severity(severity)
	f.Status = risklogs.Status(status)
	f.ActionTaken = risklogs.Action(action)
	f.ResolvedBy = resolvedBy.String

	if len(details) > 0 {
		err = json.Unmarshal(details, &f.Details)
		if err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
		}
	}

	return &f, nil
}
