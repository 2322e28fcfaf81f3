package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivityRepository aggregates posted lines per account for a window.
type ActivityRepository interface {
	Activity(ctx context.Context, societyID int64, from, to time.Time) ([]AccountActivity, error)
}

type activityRepository struct {
	db *pgxpool.Pool
}

// NewActivityRepository returns the Postgres-backed activity aggregator.
func NewActivityRepository(db *pgxpool.Pool) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Activity(ctx context.Context, societyID int64, from, to time.Time) ([]AccountActivity, error) {
	rows, err := r.db.Query(ctx, `SELECT a.code, a.name, a.type, a.opening_balance,
COALESCE(act.debit, 0), COALESCE(act.credit, 0)
FROM accounts a
LEFT JOIN (
	SELECT l.account_code, SUM(l.debit) AS debit, SUM(l.credit) AS credit
	FROM ledger_lines l
	JOIN journal_entries e ON e.id = l.je_id
	WHERE e.society_id = $1 AND e.date >= $2 AND e.date <= $3
	GROUP BY l.account_code
) act ON act.account_code = a.code
WHERE a.society_id = $1
ORDER BY a.code`, societyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("reports: activity: %w", err)
	}
	defer rows.Close()
	var out []AccountActivity
	for rows.Next() {
		var act AccountActivity
		if err := rows.Scan(&act.Code, &act.Name, &act.Type, &act.Opening, &act.Debit, &act.Credit); err != nil {
			return nil, err
		}
		out = append(out, act)
	}
	return out, rows.Err()
}
