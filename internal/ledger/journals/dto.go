package journals

import (
	"time"

	"github.com/google/uuid"

	"github.com/societyledger/societyledger/internal/ledger/shared"
)

// LineInput describes one requested ledger line.
type LineInput struct {
	AccountCode string
	Debit       float64
	Credit      float64
	Description string
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	SocietyID   int64
	Date        time.Time
	Description string
	Lines       []LineInput
	// NumberHint forces the entry number instead of drawing one from the
	// sequencer. Posting fails with a conflict if the number is taken.
	NumberHint string
	SourceRef  uuid.UUID
	ActorID    int64
}

// Validate enforces the posting preconditions that do not need storage:
// at least two lines, debit XOR credit per line, balanced totals, and both
// sides represented.
func (in PostingInput) Validate() error {
	if in.SocietyID == 0 {
		return shared.Validationf("society required")
	}
	if in.Date.IsZero() {
		return shared.Validationf("date required")
	}
	if len(in.Lines) < 2 {
		return shared.Validationf("journal requires at least two lines, got %d", len(in.Lines))
	}
	var debit, credit float64
	var hasDebit, hasCredit bool
	for idx, line := range in.Lines {
		if line.AccountCode == "" {
			return shared.Validationf("line %d missing account code", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return shared.Validationf("line %d has a negative amount", idx)
		}
		if line.Debit > 0 == (line.Credit > 0) {
			return shared.Validationf("line %d must carry exactly one of debit or credit", idx)
		}
		if line.Debit > 0 {
			hasDebit = true
		} else {
			hasCredit = true
		}
		debit += line.Debit
		credit += line.Credit
	}
	if !hasDebit || !hasCredit {
		return shared.Validationf("journal needs at least one debit and one credit line")
	}
	if !shared.WithinTolerance(debit, credit) {
		return shared.Validationf("journal does not balance: debit %.2f vs credit %.2f", debit, credit)
	}
	return nil
}

// Totals returns the summed debit and credit of the input lines.
func (in PostingInput) Totals() (debit, credit float64) {
	for _, line := range in.Lines {
		debit += line.Debit
		credit += line.Credit
	}
	return debit, credit
}

// ReverseInput wraps parameters for a reversal.
type ReverseInput struct {
	SocietyID int64
	EntryID   int64
	Reason    string
	ActorID   int64
}

// EntryKind classifies quick-entry postings.
type EntryKind string

const (
	KindIncome  EntryKind = "INCOME"
	KindExpense EntryKind = "EXPENSE"
)

// PaymentMethod selects the inferred second leg of a quick entry.
type PaymentMethod string

const (
	PayCash PaymentMethod = "CASH"
	PayBank PaymentMethod = "BANK"
)

// QuickEntryInput captures a single-sided entry whose counter leg is
// inferred from the payment method and society settings.
type QuickEntryInput struct {
	SocietyID   int64
	Kind        EntryKind
	AccountCode string
	Amount      float64
	Method      PaymentMethod
	// BankAccountCode overrides the society's primary bank account when
	// Method is PayBank.
	BankAccountCode string
	Date            time.Time
	Description     string
	ActorID         int64
}
