package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/societyledger/societyledger/internal/ledger/shared"
)

// Repository encapsulates DB operations for bills and billing rules.
type Repository interface {
	GetRuleSet(ctx context.Context, societyID int64) (RuleSet, error)
	// ReplaceDrafts deletes the period's unposted drafts and inserts the
	// new set.
	ReplaceDrafts(ctx context.Context, societyID int64, month, year int, bills []MaintenanceBill) ([]MaintenanceBill, error)
	// ReplaceDraftForFlat swaps a single flat's unposted draft, leaving
	// every other bill untouched.
	ReplaceDraftForFlat(ctx context.Context, bill MaintenanceBill) (MaintenanceBill, error)
	ListForPeriod(ctx context.Context, societyID int64, month, year int) ([]MaintenanceBill, error)
	Get(ctx context.Context, societyID, billID int64) (MaintenanceBill, error)
	MarkPosted(ctx context.Context, societyID int64, month, year int, entryID int64) error
	MarkVoid(ctx context.Context, societyID, billID, entryID int64) error
	// OutstandingBefore sums unpaid posted bill amounts per flat for
	// periods strictly before (month, year).
	OutstandingBefore(ctx context.Context, societyID int64, month, year int) (map[int64]float64, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a Postgres-backed billing repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) GetRuleSet(ctx context.Context, societyID int64) (RuleSet, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT rules FROM billing_rule_sets WHERE society_id=$1`, societyID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RuleSet{}, shared.NotFoundf("billing rules for society %d", societyID)
		}
		return RuleSet{}, fmt.Errorf("billing: get rules: %w", err)
	}
	var rules RuleSet
	if err := json.Unmarshal(raw, &rules); err != nil {
		return RuleSet{}, fmt.Errorf("billing: decode rules: %w", err)
	}
	rules.SocietyID = societyID
	return rules, nil
}

const billColumns = `id, society_id, flat_id, flat_number, bill_number, month, year, amount, arrears, breakdown, status, is_posted, journal_entry_id, generated_at`

func scanBill(row pgx.Row) (MaintenanceBill, error) {
	var b MaintenanceBill
	var breakdown []byte
	err := row.Scan(&b.ID, &b.SocietyID, &b.FlatID, &b.FlatNumber, &b.BillNumber, &b.Month, &b.Year,
		&b.Amount, &b.Arrears, &breakdown, &b.Status, &b.IsPosted, &b.JournalEntryID, &b.GeneratedAt)
	if err != nil {
		return MaintenanceBill{}, err
	}
	if err := json.Unmarshal(breakdown, &b.Breakdown); err != nil {
		return MaintenanceBill{}, fmt.Errorf("billing: decode breakdown: %w", err)
	}
	b.TotalPayable = b.Amount + b.Arrears
	return b, nil
}

func (r *repository) insertBill(ctx context.Context, tx pgx.Tx, bill MaintenanceBill) (MaintenanceBill, error) {
	breakdown, err := json.Marshal(bill.Breakdown)
	if err != nil {
		return MaintenanceBill{}, fmt.Errorf("billing: encode breakdown: %w", err)
	}
	row := tx.QueryRow(ctx, `INSERT INTO maintenance_bills
(society_id, flat_id, flat_number, bill_number, month, year, amount, arrears, breakdown, status, is_posted)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,FALSE) RETURNING id, generated_at`,
		bill.SocietyID, bill.FlatID, bill.FlatNumber, bill.BillNumber, bill.Month, bill.Year,
		toNumeric(bill.Amount), toNumeric(bill.Arrears), breakdown, StatusUnpaid)
	if err := row.Scan(&bill.ID, &bill.GeneratedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return MaintenanceBill{}, shared.Conflictf("flat %s already has a live bill for %02d/%04d", bill.FlatNumber, bill.Month, bill.Year)
		}
		return MaintenanceBill{}, fmt.Errorf("billing: insert bill: %w", err)
	}
	bill.Status = StatusUnpaid
	bill.IsPosted = false
	bill.TotalPayable = bill.Amount + bill.Arrears
	return bill, nil
}

func (r *repository) ReplaceDrafts(ctx context.Context, societyID int64, month, year int, bills []MaintenanceBill) ([]MaintenanceBill, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("billing: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM maintenance_bills WHERE society_id=$1 AND month=$2 AND year=$3 AND NOT is_posted`,
		societyID, month, year); err != nil {
		return nil, fmt.Errorf("billing: clear drafts: %w", err)
	}
	out := make([]MaintenanceBill, 0, len(bills))
	for _, bill := range bills {
		inserted, err := r.insertBill(ctx, tx, bill)
		if err != nil {
			return nil, err
		}
		out = append(out, inserted)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("billing: commit tx: %w", err)
	}
	return out, nil
}

func (r *repository) ReplaceDraftForFlat(ctx context.Context, bill MaintenanceBill) (MaintenanceBill, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return MaintenanceBill{}, fmt.Errorf("billing: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM maintenance_bills WHERE society_id=$1 AND flat_id=$2 AND month=$3 AND year=$4 AND NOT is_posted`,
		bill.SocietyID, bill.FlatID, bill.Month, bill.Year); err != nil {
		return MaintenanceBill{}, fmt.Errorf("billing: clear flat draft: %w", err)
	}
	inserted, err := r.insertBill(ctx, tx, bill)
	if err != nil {
		return MaintenanceBill{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return MaintenanceBill{}, fmt.Errorf("billing: commit tx: %w", err)
	}
	return inserted, nil
}

func (r *repository) ListForPeriod(ctx context.Context, societyID int64, month, year int) ([]MaintenanceBill, error) {
	rows, err := r.db.Query(ctx, `SELECT `+billColumns+` FROM maintenance_bills
WHERE society_id=$1 AND month=$2 AND year=$3 ORDER BY flat_number`, societyID, month, year)
	if err != nil {
		return nil, fmt.Errorf("billing: list period: %w", err)
	}
	defer rows.Close()
	var bills []MaintenanceBill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	return bills, rows.Err()
}

func (r *repository) Get(ctx context.Context, societyID, billID int64) (MaintenanceBill, error) {
	bill, err := scanBill(r.db.QueryRow(ctx, `SELECT `+billColumns+` FROM maintenance_bills WHERE society_id=$1 AND id=$2`, societyID, billID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MaintenanceBill{}, shared.NotFoundf("bill %d", billID)
		}
		return MaintenanceBill{}, fmt.Errorf("billing: get bill: %w", err)
	}
	return bill, nil
}

func (r *repository) MarkPosted(ctx context.Context, societyID int64, month, year int, entryID int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE maintenance_bills SET is_posted=TRUE, journal_entry_id=$4
WHERE society_id=$1 AND month=$2 AND year=$3 AND NOT is_posted`, societyID, month, year, entryID)
	if err != nil {
		return fmt.Errorf("billing: mark posted: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.NotFoundf("draft bills for %02d/%04d", month, year)
	}
	return nil
}

func (r *repository) MarkVoid(ctx context.Context, societyID, billID, entryID int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE maintenance_bills SET status=$3, journal_entry_id=$4
WHERE society_id=$1 AND id=$2 AND status<>$3`, societyID, billID, StatusVoid, entryID)
	if err != nil {
		return fmt.Errorf("billing: mark void: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.Conflictf("bill %d already voided", billID)
	}
	return nil
}

func (r *repository) OutstandingBefore(ctx context.Context, societyID int64, month, year int) (map[int64]float64, error) {
	rows, err := r.db.Query(ctx, `SELECT flat_id, COALESCE(SUM(amount),0) FROM maintenance_bills
WHERE society_id=$1 AND status=$2 AND is_posted AND (year < $4 OR (year = $4 AND month < $3))
GROUP BY flat_id`, societyID, StatusUnpaid, month, year)
	if err != nil {
		return nil, fmt.Errorf("billing: outstanding: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]float64)
	for rows.Next() {
		var flatID int64
		var amount float64
		if err := rows.Scan(&flatID, &amount); err != nil {
			return nil, err
		}
		out[flatID] = amount
	}
	return out, rows.Err()
}

func toNumeric(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
