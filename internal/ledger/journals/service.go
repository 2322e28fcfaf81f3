package journals

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/societyledger/societyledger/internal/ledger/shared"
	internalShared "github.com/societyledger/societyledger/internal/shared"
	"github.com/societyledger/societyledger/internal/society"
)

// AuditPort records posting activity.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// SettingsPort resolves per-society account wiring for quick entries.
type SettingsPort interface {
	GetSettings(ctx context.Context, societyID int64) (society.Settings, error)
}

// DateLock restricts posting dates to the current month plus or minus
// Months. Months zero restricts to the current month only.
type DateLock struct {
	Months int
	now    func() time.Time
}

// NewDateLock builds a DateLock around the real clock.
func NewDateLock(months int) *DateLock {
	return &DateLock{Months: months, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (d *DateLock) WithNow(now func() time.Time) {
	if now != nil {
		d.now = now
	}
}

// EnsurePostable fails when the date falls outside the lock window.
func (d *DateLock) EnsurePostable(date time.Time) error {
	now := d.now()
	diff := (date.Year()-now.Year())*12 + int(date.Month()) - int(now.Month())
	if diff < -d.Months || diff > d.Months {
		return shared.Validationf("date %s outside posting window of %d month(s) around %s",
			date.Format("2006-01-02"), d.Months, now.Format("2006-01"))
	}
	return nil
}

// Service is the ledger posting and reversal engine.
type Service struct {
	repo     Repository
	seq      Sequencer
	settings SettingsPort
	audit    AuditPort
	guard    *DateLock
	now      func() time.Time
}

// NewService builds the journal service.
func NewService(repo Repository, seq Sequencer, settings SettingsPort, audit AuditPort, guard *DateLock) *Service {
	if guard == nil {
		guard = NewDateLock(1)
	}
	return &Service{repo: repo, seq: seq, settings: settings, audit: audit, guard: guard, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns the society's journal entries, newest first.
func (s *Service) List(ctx context.Context, societyID int64) ([]JournalEntry, error) {
	return s.repo.List(ctx, societyID)
}

// Get returns one entry with its lines.
func (s *Service) Get(ctx context.Context, societyID, entryID int64) (JournalEntry, error) {
	return s.repo.GetWithLines(ctx, societyID, entryID)
}

// Post validates and atomically commits a journal entry: the entry row, its
// lines, and every account balance update succeed or fail together. All
// checks, account existence included, run before any side effect — the
// entry number is not allocated for input that cannot post.
func (s *Service) Post(ctx context.Context, in PostingInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if err := s.guard.EnsurePostable(in.Date); err != nil {
		return JournalEntry{}, err
	}
	codes := distinctCodes(in.Lines)
	missing, err := s.repo.MissingAccounts(ctx, in.SocietyID, codes)
	if err != nil {
		return JournalEntry{}, err
	}
	if len(missing) > 0 {
		return JournalEntry{}, shared.NotFoundf("account %q", missing[0])
	}

	number := in.NumberHint
	if number == "" {
		number, err = s.seq.Next(ctx, in.SocietyID, ScopeJournal, in.Date)
		if err != nil {
			return JournalEntry{}, err
		}
	}

	var entry JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posted, err := postLocked(ctx, tx, in, number)
		if err != nil {
			return err
		}
		entry = posted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, in.SocietyID, in.ActorID, "journal.post", entry.ID, map[string]any{
		"entry_number": entry.EntryNumber,
		"total_debit":  entry.TotalDebit,
		"total_credit": entry.TotalCredit,
	})
	return entry, nil
}

// Reverse produces the audit-preserving offsetting entry for a posted
// journal: same accounts, debit and credit swapped. The original is only
// marked reversed and linked; it is never mutated otherwise. Reversing a
// reversal is allowed; reversing the same entry twice is a conflict.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	if in.EntryID == 0 {
		return JournalEntry{}, shared.Validationf("entry id required")
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, in.SocietyID, in.EntryID)
		if err != nil {
			return err
		}
		if original.IsReversed {
			return shared.Conflictf("entry %s already reversed", original.EntryNumber)
		}
		posting := PostingInput{
			SocietyID:   in.SocietyID,
			Date:        s.now(),
			Description: reversalDescription(in.Reason, original.EntryNumber),
			Lines:       swapLines(original.Lines),
			SourceRef:   original.SourceRef,
			ActorID:     in.ActorID,
		}
		// Re-validated so tampered stored lines fail the reversal atomically.
		if err := posting.Validate(); err != nil {
			return err
		}
		number, err := reversalNumber(ctx, tx, in.SocietyID, original.EntryNumber)
		if err != nil {
			return err
		}
		posted, err := postLocked(ctx, tx, posting, number)
		if err != nil {
			return err
		}
		if err := tx.LinkReversal(ctx, original.ID, posted.ID); err != nil {
			return err
		}
		posted.OriginalEntryID = &original.ID
		reversal = posted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, in.SocietyID, in.ActorID, "journal.reverse", in.EntryID, map[string]any{
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.EntryNumber,
		"reason":          in.Reason,
	})
	return reversal, nil
}

// QuickEntry posts a two-leg entry from a single-sided input. The counter
// leg comes from society settings: the cash account for cash payments, the
// primary bank account (or the explicit override) for bank payments. Both
// legs are validated through the standard Post path before any number is
// allocated.
func (s *Service) QuickEntry(ctx context.Context, in QuickEntryInput) (JournalEntry, error) {
	if in.Amount <= 0 {
		return JournalEntry{}, shared.Validationf("amount must be positive")
	}
	if in.AccountCode == "" {
		return JournalEntry{}, shared.Validationf("account code required")
	}
	if in.Kind != KindIncome && in.Kind != KindExpense {
		return JournalEntry{}, shared.Validationf("unknown entry kind %q", in.Kind)
	}
	settings, err := s.settings.GetSettings(ctx, in.SocietyID)
	if err != nil {
		return JournalEntry{}, err
	}
	var counter string
	switch in.Method {
	case PayCash:
		counter = settings.CashAccountCode
	case PayBank:
		counter = settings.BankAccountCode
		if in.BankAccountCode != "" {
			counter = in.BankAccountCode
		}
	default:
		return JournalEntry{}, shared.Validationf("unknown payment method %q", in.Method)
	}
	if counter == "" {
		return JournalEntry{}, shared.Validationf("no %s account configured for society %d", in.Method, in.SocietyID)
	}

	desc := in.Description
	if desc == "" {
		desc = fmt.Sprintf("Quick %s entry", in.Kind)
	}
	var lines []LineInput
	if in.Kind == KindExpense {
		lines = []LineInput{
			{AccountCode: in.AccountCode, Debit: in.Amount, Description: desc},
			{AccountCode: counter, Credit: in.Amount, Description: desc},
		}
	} else {
		lines = []LineInput{
			{AccountCode: counter, Debit: in.Amount, Description: desc},
			{AccountCode: in.AccountCode, Credit: in.Amount, Description: desc},
		}
	}
	return s.Post(ctx, PostingInput{
		SocietyID:   in.SocietyID,
		Date:        in.Date,
		Description: desc,
		Lines:       lines,
		ActorID:     in.ActorID,
	})
}

// postLocked commits entry, lines, and balance updates inside the caller's
// transaction. Accounts are locked in code order to keep concurrent
// postings deadlock-free.
func postLocked(ctx context.Context, tx TxRepository, in PostingInput, number string) (JournalEntry, error) {
	for _, code := range distinctCodes(in.Lines) {
		if _, err := tx.LockAccount(ctx, in.SocietyID, code); err != nil {
			return JournalEntry{}, err
		}
	}
	exists, err := tx.EntryNumberExists(ctx, in.SocietyID, number)
	if err != nil {
		return JournalEntry{}, err
	}
	if exists {
		return JournalEntry{}, shared.Conflictf("entry number %q already used", number)
	}
	debit, credit := in.Totals()
	entry := JournalEntry{
		SocietyID:   in.SocietyID,
		EntryNumber: number,
		Date:        in.Date,
		Description: in.Description,
		TotalDebit:  debit,
		TotalCredit: credit,
		IsBalanced:  true,
		SourceRef:   in.SourceRef,
	}
	entry, err = tx.InsertEntry(ctx, entry)
	if err != nil {
		return JournalEntry{}, err
	}
	lines := make([]LedgerLine, 0, len(in.Lines))
	for _, line := range in.Lines {
		amount := line.Debit
		if line.Credit > 0 {
			amount = line.Credit
		}
		lines = append(lines, LedgerLine{
			JournalID:   entry.ID,
			AccountCode: line.AccountCode,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Amount:      amount,
			Description: line.Description,
		})
	}
	if err := tx.InsertLines(ctx, entry.ID, lines); err != nil {
		return JournalEntry{}, err
	}
	for _, line := range lines {
		if err := tx.ApplyLine(ctx, in.SocietyID, line.AccountCode, line.Debit, line.Credit); err != nil {
			return JournalEntry{}, err
		}
	}
	entry.Lines = lines
	return entry, nil
}

// reversalNumber suffixes the original number with -R, then -R2, -R3, …
// until a free number is found.
func reversalNumber(ctx context.Context, tx TxRepository, societyID int64, original string) (string, error) {
	for i := 1; ; i++ {
		candidate := original + "-R"
		if i > 1 {
			candidate = fmt.Sprintf("%s-R%d", original, i)
		}
		exists, err := tx.EntryNumberExists(ctx, societyID, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
}

func swapLines(lines []LedgerLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountCode: line.AccountCode,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Description: line.Description,
		})
	}
	return out
}

func distinctCodes(lines []LineInput) []string {
	seen := make(map[string]struct{}, len(lines))
	var codes []string
	for _, line := range lines {
		if _, ok := seen[line.AccountCode]; ok {
			continue
		}
		seen[line.AccountCode] = struct{}{}
		codes = append(codes, line.AccountCode)
	}
	sort.Strings(codes)
	return codes
}

func reversalDescription(reason, number string) string {
	if reason != "" {
		return fmt.Sprintf("Reversal of %s: %s", number, reason)
	}
	return fmt.Sprintf("Reversal of %s", number)
}

func (s *Service) record(ctx context.Context, societyID, actorID int64, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		SocietyID: societyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "journal_entry",
		EntityID:  fmt.Sprintf("%d", entryID),
		Meta:      meta,
		At:        s.now(),
	})
}
