package journals

import (
	"time"

	"github.com/google/uuid"
)

// JournalEntry is one balanced group of ledger lines. Immutable once
// committed except for the reversal linkage, which is set exactly once.
type JournalEntry struct {
	ID              int64
	SocietyID       int64
	EntryNumber     string
	Date            time.Time
	Description     string
	TotalDebit      float64
	TotalCredit     float64
	IsBalanced      bool
	IsReversed      bool
	OriginalEntryID *int64
	ReversalEntryID *int64
	SourceRef       uuid.UUID
	CreatedAt       time.Time
	Lines           []LedgerLine
}

// LedgerLine is a single debit or credit posting against one account.
// Exactly one of Debit/Credit is strictly positive; Amount mirrors the
// positive side.
type LedgerLine struct {
	ID          int64
	JournalID   int64
	AccountCode string
	Debit       float64
	Credit      float64
	Amount      float64
	Description string
	CreatedAt   time.Time
}
