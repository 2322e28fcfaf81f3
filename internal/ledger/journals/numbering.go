package journals

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Document number scopes.
const (
	ScopeJournal = "JE"
	ScopeBill    = "MB"
)

// Sequencer allocates unique, date-scoped document numbers per society.
// Implementations must be safe for concurrent callers; tests swap in a
// fixed sequence.
type Sequencer interface {
	Next(ctx context.Context, societyID int64, scope string, date time.Time) (string, error)
}

type pgSequencer struct {
	db *pgxpool.Pool
}

// NewSequencer returns the Postgres-backed sequencer. Numbers follow
// SCOPE-YYYYMMDD-NNN; the running index restarts per society, scope, and day.
func NewSequencer(db *pgxpool.Pool) Sequencer {
	return &pgSequencer{db: db}
}

func (s *pgSequencer) Next(ctx context.Context, societyID int64, scope string, date time.Time) (string, error) {
	day := date.Format("20060102")
	var n int64
	err := s.db.QueryRow(ctx, `INSERT INTO doc_sequences (society_id, scope, day, value)
VALUES ($1,$2,$3,1)
ON CONFLICT (society_id, scope, day) DO UPDATE SET value = doc_sequences.value + 1
RETURNING value`, societyID, scope, day).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("journals: next number: %w", err)
	}
	return fmt.Sprintf("%s-%s-%03d", scope, day, n), nil
}
