package billing

import "time"

// BillStatus tracks the member-facing lifecycle of a bill.
type BillStatus string

const (
	StatusUnpaid BillStatus = "UNPAID"
	StatusPaid   BillStatus = "PAID"
	StatusVoid   BillStatus = "VOID"
)

// Breakdown itemises the current-period charge. Values are rounded to two
// decimals when the bill is materialized; Amount is their exact sum.
type Breakdown struct {
	Maintenance   float64 `json:"maintenance"`
	Water         float64 `json:"water"`
	FixedExpenses float64 `json:"fixed_expenses"`
	SinkingFund   float64 `json:"sinking_fund"`
	RepairFund    float64 `json:"repair_fund"`
	CorpusFund    float64 `json:"corpus_fund"`
}

// Total sums the components.
func (b Breakdown) Total() float64 {
	return b.Maintenance + b.Water + b.FixedExpenses + b.SinkingFund + b.RepairFund + b.CorpusFund
}

// MaintenanceBill is one flat's charge for a (month, year). Amount carries
// the current period only; arrears stay separate and are added to
// TotalPayable at presentation time, never folded into Amount.
type MaintenanceBill struct {
	ID             int64
	SocietyID      int64
	FlatID         int64
	FlatNumber     string
	BillNumber     string
	Month          int
	Year           int
	Amount         float64
	Arrears        float64
	TotalPayable   float64
	Breakdown      Breakdown
	Status         BillStatus
	IsPosted       bool
	JournalEntryID *int64
	GeneratedAt    time.Time
}
