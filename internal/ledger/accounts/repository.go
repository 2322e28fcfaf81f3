package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/societyledger/societyledger/internal/ledger/shared"
)

// LineSums aggregates posted ledger lines for one account.
type LineSums struct {
	Code   string
	Debit  float64
	Credit float64
}

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	Create(ctx context.Context, acc Account) (Account, error)
	GetByCode(ctx context.Context, societyID int64, code string) (Account, error)
	List(ctx context.Context, societyID int64) ([]Account, error)
	ListByType(ctx context.Context, societyID int64, typ AccountType) ([]Account, error)
	AmendOpening(ctx context.Context, societyID int64, code string, newOpening, delta float64) (Account, error)
	LineSums(ctx context.Context, societyID int64) ([]LineSums, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a Postgres-backed account repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, society_id, code, name, type, opening_balance, current_balance, is_fixed_expense, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.SocietyID, &a.Code, &a.Name, &a.Type, &a.OpeningBalance, &a.CurrentBalance, &a.IsFixedExpense, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *repository) Create(ctx context.Context, acc Account) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (society_id, code, name, type, opening_balance, current_balance, is_fixed_expense)
VALUES ($1,$2,$3,$4,$5,$5,$6) RETURNING `+accountColumns,
		acc.SocietyID, acc.Code, acc.Name, acc.Type, toNumeric(acc.OpeningBalance), acc.IsFixedExpense)
	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, shared.Conflictf("account code %q already exists", acc.Code)
		}
		return Account{}, fmt.Errorf("accounts: create: %w", err)
	}
	return created, nil
}

func (r *repository) GetByCode(ctx context.Context, societyID int64, code string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE society_id=$1 AND code=$2`, societyID, code)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.NotFoundf("account %q", code)
		}
		return Account{}, fmt.Errorf("accounts: get: %w", err)
	}
	return acc, nil
}

func (r *repository) List(ctx context.Context, societyID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE society_id=$1 ORDER BY code`, societyID)
	if err != nil {
		return nil, fmt.Errorf("accounts: list: %w", err)
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *repository) ListByType(ctx context.Context, societyID int64, typ AccountType) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE society_id=$1 AND type=$2 ORDER BY code`, societyID, typ)
	if err != nil {
		return nil, fmt.Errorf("accounts: list by type: %w", err)
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *repository) AmendOpening(ctx context.Context, societyID int64, code string, newOpening, delta float64) (Account, error) {
	row := r.db.QueryRow(ctx, `UPDATE accounts
SET opening_balance=$3, current_balance=current_balance+$4, updated_at=NOW()
WHERE society_id=$1 AND code=$2 RETURNING `+accountColumns,
		societyID, code, toNumeric(newOpening), toNumeric(delta))
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.NotFoundf("account %q", code)
		}
		return Account{}, fmt.Errorf("accounts: amend opening: %w", err)
	}
	return acc, nil
}

func (r *repository) LineSums(ctx context.Context, societyID int64) ([]LineSums, error) {
	rows, err := r.db.Query(ctx, `SELECT l.account_code, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM ledger_lines l
JOIN journal_entries e ON e.id = l.je_id
WHERE e.society_id=$1
GROUP BY l.account_code`, societyID)
	if err != nil {
		return nil, fmt.Errorf("accounts: line sums: %w", err)
	}
	defer rows.Close()
	var sums []LineSums
	for rows.Next() {
		var s LineSums
		if err := rows.Scan(&s.Code, &s.Debit, &s.Credit); err != nil {
			return nil, err
		}
		sums = append(sums, s)
	}
	return sums, rows.Err()
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	var out []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func toNumeric(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
