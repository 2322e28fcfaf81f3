package society

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/societyledger/societyledger/internal/ledger/shared"
)

// Repository reads society collaborator data.
type Repository interface {
	ListFlats(ctx context.Context, societyID int64) ([]Flat, error)
	GetFlat(ctx context.Context, societyID, flatID int64) (Flat, error)
	GetSettings(ctx context.Context, societyID int64) (Settings, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a Postgres-backed society repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) ListFlats(ctx context.Context, societyID int64) ([]Flat, error) {
	rows, err := r.db.Query(ctx, `SELECT id, society_id, number, area_sqft, occupants, created_at, updated_at
FROM flats WHERE society_id=$1 ORDER BY number`, societyID)
	if err != nil {
		return nil, fmt.Errorf("society: list flats: %w", err)
	}
	defer rows.Close()
	var flats []Flat
	for rows.Next() {
		var f Flat
		if err := rows.Scan(&f.ID, &f.SocietyID, &f.Number, &f.AreaSqft, &f.Occupants, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		flats = append(flats, f)
	}
	return flats, rows.Err()
}

func (r *repository) GetFlat(ctx context.Context, societyID, flatID int64) (Flat, error) {
	var f Flat
	err := r.db.QueryRow(ctx, `SELECT id, society_id, number, area_sqft, occupants, created_at, updated_at
FROM flats WHERE society_id=$1 AND id=$2`, societyID, flatID).
		Scan(&f.ID, &f.SocietyID, &f.Number, &f.AreaSqft, &f.Occupants, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Flat{}, shared.NotFoundf("flat %d", flatID)
		}
		return Flat{}, fmt.Errorf("society: get flat: %w", err)
	}
	return f, nil
}

func (r *repository) GetSettings(ctx context.Context, societyID int64) (Settings, error) {
	var s Settings
	err := r.db.QueryRow(ctx, `SELECT society_id, cash_account_code, bank_account_code, receivable_account_code, equity_adjustment_code,
maintenance_income_code, water_income_code, fixed_recovery_code, sinking_fund_code, repair_fund_code, corpus_fund_code
FROM society_settings WHERE society_id=$1`, societyID).
		Scan(&s.SocietyID, &s.CashAccountCode, &s.BankAccountCode, &s.ReceivableAccountCode, &s.EquityAdjustmentCode,
			&s.MaintenanceIncomeCode, &s.WaterIncomeCode, &s.FixedRecoveryCode, &s.SinkingFundCode, &s.RepairFundCode, &s.CorpusFundCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, shared.NotFoundf("settings for society %d", societyID)
		}
		return Settings{}, fmt.Errorf("society: get settings: %w", err)
	}
	return s, nil
}
