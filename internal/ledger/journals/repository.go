package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/societyledger/societyledger/internal/ledger/accounts"
	"github.com/societyledger/societyledger/internal/ledger/shared"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	List(ctx context.Context, societyID int64) ([]JournalEntry, error)
	GetWithLines(ctx context.Context, societyID, entryID int64) (JournalEntry, error)
	// MissingAccounts returns the subset of codes with no account row.
	// Used to fail posting before any side effect, number allocation
	// included.
	MissingAccounts(ctx context.Context, societyID int64, codes []string) ([]string, error)
	// SumDebits totals debits net of credits against the codes inside
	// [from, to). Every entry counts: a reversal carries swapped lines, so
	// original and reversal cancel arithmetically.
	SumDebits(ctx context.Context, societyID int64, codes []string, from, to time.Time) (float64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available inside the atomic posting
// unit. Inserting the entry, its lines, and the balance updates commit or
// roll back together.
type TxRepository interface {
	LockAccount(ctx context.Context, societyID int64, code string) (accounts.Account, error)
	EntryNumberExists(ctx context.Context, societyID int64, number string) (bool, error)
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LedgerLine) error
	// ApplyLine shifts the account balance by debit-credit. The same rule
	// applies to every account type; credit-normal accounts rest negative.
	ApplyLine(ctx context.Context, societyID int64, code string, debit, credit float64) error
	GetEntryForUpdate(ctx context.Context, societyID, entryID int64) (JournalEntry, error)
	LinkReversal(ctx context.Context, originalID, reversalID int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a Postgres-backed journal repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, society_id, entry_number, date, description, total_debit, total_credit, is_balanced, is_reversed, original_entry_id, reversal_entry_id, source_ref, created_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.SocietyID, &e.EntryNumber, &e.Date, &e.Description, &e.TotalDebit, &e.TotalCredit,
		&e.IsBalanced, &e.IsReversed, &e.OriginalEntryID, &e.ReversalEntryID, &e.SourceRef, &e.CreatedAt)
	return e, err
}

func (r *repository) List(ctx context.Context, societyID int64) ([]JournalEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE society_id=$1 ORDER BY date DESC, id DESC`, societyID)
	if err != nil {
		return nil, fmt.Errorf("journals: list: %w", err)
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) GetWithLines(ctx context.Context, societyID, entryID int64) (JournalEntry, error) {
	entry, err := getEntry(ctx, r.db, societyID, entryID, false)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = getLines(ctx, r.db, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *repository) MissingAccounts(ctx context.Context, societyID int64, codes []string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT c FROM unnest($2::text[]) AS c
WHERE NOT EXISTS (SELECT 1 FROM accounts a WHERE a.society_id=$1 AND a.code=c)`, societyID, codes)
	if err != nil {
		return nil, fmt.Errorf("journals: missing accounts: %w", err)
	}
	defer rows.Close()
	var missing []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		missing = append(missing, code)
	}
	return missing, rows.Err()
}

func (r *repository) SumDebits(ctx context.Context, societyID int64, codes []string, from, to time.Time) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit - l.credit), 0)
FROM ledger_lines l
JOIN journal_entries e ON e.id = l.je_id
WHERE e.society_id=$1 AND l.account_code = ANY($2) AND e.date >= $3 AND e.date < $4`,
		societyID, codes, from, to).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("journals: sum debits: %w", err)
	}
	return total, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("journals: begin tx: %w", err)
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("journals: commit tx: %w", err)
	}
	return nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockAccount(ctx context.Context, societyID int64, code string) (accounts.Account, error) {
	var a accounts.Account
	err := r.tx.QueryRow(ctx, `SELECT id, society_id, code, name, type, opening_balance, current_balance, is_fixed_expense, created_at, updated_at
FROM accounts WHERE society_id=$1 AND code=$2 FOR UPDATE`, societyID, code).
		Scan(&a.ID, &a.SocietyID, &a.Code, &a.Name, &a.Type, &a.OpeningBalance, &a.CurrentBalance, &a.IsFixedExpense, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounts.Account{}, shared.NotFoundf("account %q", code)
		}
		return accounts.Account{}, fmt.Errorf("journals: lock account: %w", err)
	}
	return a, nil
}

func (r *txRepository) EntryNumberExists(ctx context.Context, societyID int64, number string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_entries WHERE society_id=$1 AND entry_number=$2)`,
		societyID, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("journals: number exists: %w", err)
	}
	return exists, nil
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (society_id, entry_number, date, description, total_debit, total_credit, is_balanced, source_ref)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		entry.SocietyID, entry.EntryNumber, entry.Date, entry.Description,
		toNumeric(entry.TotalDebit), toNumeric(entry.TotalCredit), entry.IsBalanced, entry.SourceRef)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return JournalEntry{}, fmt.Errorf("journals: insert entry: %w", err)
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LedgerLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO ledger_lines (je_id, account_code, debit, credit, amount, description)
VALUES ($1,$2,$3,$4,$5,$6)`,
			entryID, line.AccountCode, toNumeric(line.Debit), toNumeric(line.Credit), toNumeric(line.Amount), line.Description); err != nil {
			return fmt.Errorf("journals: insert line: %w", err)
		}
	}
	return nil
}

func (r *txRepository) ApplyLine(ctx context.Context, societyID int64, code string, debit, credit float64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET current_balance = current_balance + $3, updated_at=NOW()
WHERE society_id=$1 AND code=$2`, societyID, code, toNumeric(debit-credit))
	if err != nil {
		return fmt.Errorf("journals: apply line: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.NotFoundf("account %q", code)
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, societyID, entryID int64) (JournalEntry, error) {
	entry, err := getEntry(ctx, r.tx, societyID, entryID, true)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = getLines(ctx, r.tx, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) LinkReversal(ctx context.Context, originalID, reversalID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET is_reversed=TRUE, reversal_entry_id=$2 WHERE id=$1 AND NOT is_reversed`,
		originalID, reversalID)
	if err != nil {
		return fmt.Errorf("journals: link reversal: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.Conflictf("entry %d already reversed", originalID)
	}
	if _, err := r.tx.Exec(ctx, `UPDATE journal_entries SET original_entry_id=$2 WHERE id=$1`, reversalID, originalID); err != nil {
		return fmt.Errorf("journals: link original: %w", err)
	}
	return nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getEntry(ctx context.Context, q queryer, societyID, entryID int64, forUpdate bool) (JournalEntry, error) {
	sql := `SELECT ` + entryColumns + ` FROM journal_entries WHERE society_id=$1 AND id=$2`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	entry, err := scanEntry(q.QueryRow(ctx, sql, societyID, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.NotFoundf("journal entry %d", entryID)
		}
		return JournalEntry{}, fmt.Errorf("journals: get entry: %w", err)
	}
	return entry, nil
}

func getLines(ctx context.Context, q queryer, entryID int64) ([]LedgerLine, error) {
	rows, err := q.Query(ctx, `SELECT id, je_id, account_code, debit, credit, amount, description, created_at
FROM ledger_lines WHERE je_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return nil, fmt.Errorf("journals: get lines: %w", err)
	}
	defer rows.Close()
	var lines []LedgerLine
	for rows.Next() {
		var line LedgerLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountCode, &line.Debit, &line.Credit, &line.Amount, &line.Description, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func toNumeric(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
