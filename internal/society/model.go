package society

import "time"

// Flat is one billable unit in the society roster. The roster is owned by
// the registration subsystem; this module reads it.
type Flat struct {
	ID        int64
	SocietyID int64
	Number    string
	AreaSqft  float64
	Occupants int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settings carries per-society account wiring consumed by quick entry and
// bill posting. Maintained by the registration subsystem.
type Settings struct {
	SocietyID             int64
	CashAccountCode       string
	BankAccountCode       string
	ReceivableAccountCode string
	EquityAdjustmentCode  string
	MaintenanceIncomeCode string
	WaterIncomeCode       string
	FixedRecoveryCode     string
	SinkingFundCode       string
	RepairFundCode        string
	CorpusFundCode        string
}
