package journals

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/societyledger/societyledger/internal/ledger/accounts"
	"github.com/societyledger/societyledger/internal/ledger/shared"
	internalShared "github.com/societyledger/societyledger/internal/shared"
	"github.com/societyledger/societyledger/internal/society"
)

type fakeLedger struct {
	accounts map[string]*accounts.Account
	entries  map[int64]*JournalEntry
	byNumber map[string]int64
	nextID   int64
}

func newFakeLedger(codes ...string) *fakeLedger {
	l := &fakeLedger{
		accounts: make(map[string]*accounts.Account),
		entries:  make(map[int64]*JournalEntry),
		byNumber: make(map[string]int64),
	}
	for _, code := range codes {
		l.accounts[code] = &accounts.Account{SocietyID: 1, Code: code}
	}
	return l
}

func (l *fakeLedger) balance(code string) float64 {
	return l.accounts[code].CurrentBalance
}

func (l *fakeLedger) List(ctx context.Context, societyID int64) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, e := range l.entries {
		out = append(out, *e)
	}
	return out, nil
}

func (l *fakeLedger) GetWithLines(ctx context.Context, societyID, entryID int64) (JournalEntry, error) {
	e, ok := l.entries[entryID]
	if !ok {
		return JournalEntry{}, shared.NotFoundf("entry %d", entryID)
	}
	return *e, nil
}

func (l *fakeLedger) MissingAccounts(ctx context.Context, societyID int64, codes []string) ([]string, error) {
	var missing []string
	for _, code := range codes {
		if _, ok := l.accounts[code]; !ok {
			missing = append(missing, code)
		}
	}
	return missing, nil
}

func (l *fakeLedger) SumDebits(ctx context.Context, societyID int64, codes []string, from, to time.Time) (float64, error) {
	var total float64
	for _, e := range l.entries {
		if e.Date.Before(from) || !e.Date.Before(to) {
			continue
		}
		for _, line := range e.Lines {
			for _, code := range codes {
				if line.AccountCode == code {
					total += line.Debit - line.Credit
				}
			}
		}
	}
	return total, nil
}

func (l *fakeLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, fakeTx{l})
}

type fakeTx struct {
	l *fakeLedger
}

func (tx fakeTx) LockAccount(ctx context.Context, societyID int64, code string) (accounts.Account, error) {
	acc, ok := tx.l.accounts[code]
	if !ok {
		return accounts.Account{}, shared.NotFoundf("account %q", code)
	}
	return *acc, nil
}

func (tx fakeTx) EntryNumberExists(ctx context.Context, societyID int64, number string) (bool, error) {
	_, ok := tx.l.byNumber[number]
	return ok, nil
}

func (tx fakeTx) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	tx.l.nextID++
	entry.ID = tx.l.nextID
	tx.l.entries[entry.ID] = &entry
	tx.l.byNumber[entry.EntryNumber] = entry.ID
	return entry, nil
}

func (tx fakeTx) InsertLines(ctx context.Context, entryID int64, lines []LedgerLine) error {
	stored := tx.l.entries[entryID]
	stored.Lines = append([]LedgerLine(nil), lines...)
	return nil
}

func (tx fakeTx) ApplyLine(ctx context.Context, societyID int64, code string, debit, credit float64) error {
	acc, ok := tx.l.accounts[code]
	if !ok {
		return shared.NotFoundf("account %q", code)
	}
	acc.CurrentBalance += debit - credit
	return nil
}

func (tx fakeTx) GetEntryForUpdate(ctx context.Context, societyID, entryID int64) (JournalEntry, error) {
	e, ok := tx.l.entries[entryID]
	if !ok {
		return JournalEntry{}, shared.NotFoundf("entry %d", entryID)
	}
	return *e, nil
}

func (tx fakeTx) LinkReversal(ctx context.Context, originalID, reversalID int64) error {
	original, ok := tx.l.entries[originalID]
	if !ok || original.IsReversed {
		return shared.Conflictf("entry %d already reversed", originalID)
	}
	original.IsReversed = true
	original.ReversalEntryID = &reversalID
	tx.l.entries[reversalID].OriginalEntryID = &originalID
	return nil
}

type fakeSequencer struct {
	calls int
}

func (s *fakeSequencer) Next(ctx context.Context, societyID int64, scope string, date time.Time) (string, error) {
	s.calls++
	return fmt.Sprintf("%s-%s-%03d", scope, date.Format("20060102"), s.calls), nil
}

type fakeSettings struct {
	settings society.Settings
}

func (s fakeSettings) GetSettings(ctx context.Context, societyID int64) (society.Settings, error) {
	return s.settings, nil
}

type auditSink struct {
	logs []internalShared.AuditLog
}

func (a *auditSink) Record(ctx context.Context, log internalShared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func fixedClock() time.Time {
	return time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
}

func newTestService(ledger *fakeLedger) (*Service, *fakeSequencer, *auditSink) {
	seq := &fakeSequencer{}
	audit := &auditSink{}
	guard := NewDateLock(1)
	guard.WithNow(fixedClock)
	svc := NewService(ledger, seq, fakeSettings{society.Settings{CashAccountCode: "1001", BankAccountCode: "1010"}}, audit, guard)
	svc.WithNow(fixedClock)
	return svc, seq, audit
}

func TestPostCommitsEntryAndBalances(t *testing.T) {
	ledger := newFakeLedger("1001", "4001")
	svc, _, audit := newTestService(ledger)

	entry, err := svc.Post(context.Background(), PostingInput{
		SocietyID:   1,
		Date:        fixedClock(),
		Description: "March dues received",
		Lines: []LineInput{
			{AccountCode: "1001", Debit: 500},
			{AccountCode: "4001", Credit: 500},
		},
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if entry.EntryNumber != "JE-20260315-001" {
		t.Fatalf("unexpected entry number %q", entry.EntryNumber)
	}
	if entry.TotalDebit != 500 || entry.TotalCredit != 500 || !entry.IsBalanced {
		t.Fatalf("unexpected totals: %+v", entry)
	}
	if got := ledger.balance("1001"); got != 500 {
		t.Fatalf("cash balance = %v, want 500", got)
	}
	if got := ledger.balance("4001"); got != -500 {
		t.Fatalf("income balance = %v, want -500", got)
	}
	if len(audit.logs) != 1 || audit.logs[0].Action != "journal.post" {
		t.Fatalf("expected one journal.post audit log, got %+v", audit.logs)
	}
}

func TestPostRejectsImbalanceWithoutSideEffects(t *testing.T) {
	ledger := newFakeLedger("1001", "4001")
	svc, seq, _ := newTestService(ledger)

	_, err := svc.Post(context.Background(), PostingInput{
		SocietyID: 1,
		Date:      fixedClock(),
		Lines: []LineInput{
			{AccountCode: "1001", Debit: 500},
			{AccountCode: "4001", Credit: 499.50},
		},
	})
	var verr *shared.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ledger.entries) != 0 {
		t.Fatalf("imbalanced posting persisted %d entries", len(ledger.entries))
	}
	if ledger.balance("1001") != 0 || ledger.balance("4001") != 0 {
		t.Fatal("imbalanced posting moved balances")
	}
	if seq.calls != 0 {
		t.Fatalf("imbalanced posting consumed %d entry numbers", seq.calls)
	}
}

func TestPostRejectsLineWithBothSides(t *testing.T) {
	svc, _, _ := newTestService(newFakeLedger("1001", "4001"))

	_, err := svc.Post(context.Background(), PostingInput{
		SocietyID: 1,
		Date:      fixedClock(),
		Lines: []LineInput{
			{AccountCode: "1001", Debit: 500, Credit: 500},
			{AccountCode: "4001", Credit: 500},
		},
	})
	var verr *shared.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestPostToleratesSubCentRounding(t *testing.T) {
	ledger := newFakeLedger("1001", "4001", "4002")
	svc, _, _ := newTestService(ledger)

	_, err := svc.Post(context.Background(), PostingInput{
		SocietyID: 1,
		Date:      fixedClock(),
		Lines: []LineInput{
			{AccountCode: "1001", Debit: 100.00},
			{AccountCode: "4001", Credit: 33.33},
			{AccountCode: "4002", Credit: 66.665},
		},
	})
	if err != nil {
		t.Fatalf("sub-cent drift should post, got %v", err)
	}
}

func TestPostUnknownAccountAllocatesNoNumber(t *testing.T) {
	ledger := newFakeLedger("1001")
	svc, seq, _ := newTestService(ledger)

	_, err := svc.Post(context.Background(), PostingInput{
		SocietyID: 1,
		Date:      fixedClock(),
		Lines: []LineInput{
			{AccountCode: "1001", Debit: 500},
			{AccountCode: "9999", Credit: 500},
		},
	})
	var nferr *shared.NotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if seq.calls != 0 {
		t.Fatalf("failed posting consumed %d entry numbers", seq.calls)
	}
}

func TestPostOutsideLockWindow(t *testing.T) {
	svc, _, _ := newTestService(newFakeLedger("1001", "4001"))

	_, err := svc.Post(context.Background(), PostingInput{
		SocietyID: 1,
		Date:      fixedClock().AddDate(0, -3, 0),
		Lines: []LineInput{
			{AccountCode: "1001", Debit: 500},
			{AccountCode: "4001", Credit: 500},
		},
	})
	var verr *shared.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestPostDuplicateNumberHintConflicts(t *testing.T) {
	ledger := newFakeLedger("1001", "4001")
	svc, _, _ := newTestService(ledger)

	in := PostingInput{
		SocietyID:  1,
		Date:       fixedClock(),
		NumberHint: "MB-202603",
		Lines: []LineInput{
			{AccountCode: "1001", Debit: 500},
			{AccountCode: "4001", Credit: 500},
		},
	}
	if _, err := svc.Post(context.Background(), in); err != nil {
		t.Fatalf("first post: %v", err)
	}
	_, err := svc.Post(context.Background(), in)
	var cerr *shared.ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ledger.balance("1001") != 500 {
		t.Fatalf("conflicting post moved balances: %v", ledger.balance("1001"))
	}
}

func TestReverseSwapsSidesAndLinks(t *testing.T) {
	ledger := newFakeLedger("1001", "4001")
	svc, _, _ := newTestService(ledger)

	posted, err := svc.Post(context.Background(), PostingInput{
		SocietyID: 1,
		Date:      fixedClock(),
		Lines: []LineInput{
			{AccountCode: "1001", Debit: 500},
			{AccountCode: "4001", Credit: 500},
		},
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	reversal, err := svc.Reverse(context.Background(), ReverseInput{SocietyID: 1, EntryID: posted.ID, Reason: "wrong flat"})
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if want := posted.EntryNumber + "-R"; reversal.EntryNumber != want {
		t.Fatalf("reversal number = %q, want %q", reversal.EntryNumber, want)
	}
	if ledger.balance("1001") != 0 || ledger.balance("4001") != 0 {
		t.Fatalf("reversal did not restore balances: %v / %v", ledger.balance("1001"), ledger.balance("4001"))
	}

	original := ledger.entries[posted.ID]
	if !original.IsReversed {
		t.Fatal("original not marked reversed")
	}
	if original.ReversalEntryID == nil || *original.ReversalEntryID != reversal.ID {
		t.Fatal("original missing reversal link")
	}
	if reversal.OriginalEntryID == nil || *reversal.OriginalEntryID != posted.ID {
		t.Fatal("reversal missing original link")
	}
	if len(original.Lines) != 2 || original.Lines[0].Debit != 500 {
		t.Fatalf("original lines mutated: %+v", original.Lines)
	}
}

func TestReverseTwiceConflicts(t *testing.T) {
	ledger := newFakeLedger("1001", "4001")
	svc, _, _ := newTestService(ledger)

	posted, err := svc.Post(context.Background(), PostingInput{
		SocietyID: 1,
		Date:      fixedClock(),
		Lines: []LineInput{
			{AccountCode: "1001", Debit: 250},
			{AccountCode: "4001", Credit: 250},
		},
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, err := svc.Reverse(context.Background(), ReverseInput{SocietyID: 1, EntryID: posted.ID}); err != nil {
		t.Fatalf("first reverse: %v", err)
	}
	_, err = svc.Reverse(context.Background(), ReverseInput{SocietyID: 1, EntryID: posted.ID})
	var cerr *shared.ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestReverseOfReversal(t *testing.T) {
	ledger := newFakeLedger("1001", "4001")
	svc, _, _ := newTestService(ledger)

	posted, err := svc.Post(context.Background(), PostingInput{
		SocietyID: 1,
		Date:      fixedClock(),
		Lines: []LineInput{
			{AccountCode: "1001", Debit: 300},
			{AccountCode: "4001", Credit: 300},
		},
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	first, err := svc.Reverse(context.Background(), ReverseInput{SocietyID: 1, EntryID: posted.ID})
	if err != nil {
		t.Fatalf("first reverse: %v", err)
	}
	second, err := svc.Reverse(context.Background(), ReverseInput{SocietyID: 1, EntryID: first.ID})
	if err != nil {
		t.Fatalf("reverse of reversal: %v", err)
	}
	if want := first.EntryNumber + "-R"; second.EntryNumber != want {
		t.Fatalf("second reversal number = %q, want %q", second.EntryNumber, want)
	}
	if ledger.balance("1001") != 300 || ledger.balance("4001") != -300 {
		t.Fatalf("reverse of reversal should restore original effect, got %v / %v",
			ledger.balance("1001"), ledger.balance("4001"))
	}
}

func TestSumDebitsNetsReversedEntries(t *testing.T) {
	ledger := newFakeLedger("5001", "1001")
	svc, _, _ := newTestService(ledger)
	ctx := context.Background()

	posted, err := svc.Post(ctx, PostingInput{
		SocietyID: 1,
		Date:      fixedClock(),
		Lines: []LineInput{
			{AccountCode: "5001", Debit: 100},
			{AccountCode: "1001", Credit: 100},
		},
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	from := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	total, err := ledger.SumDebits(ctx, 1, []string{"5001"}, from, to)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if total != 100 {
		t.Fatalf("expense activity = %v, want 100", total)
	}

	if _, err := svc.Reverse(ctx, ReverseInput{SocietyID: 1, EntryID: posted.ID, Reason: "duplicate"}); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	total, err = ledger.SumDebits(ctx, 1, []string{"5001"}, from, to)
	if err != nil {
		t.Fatalf("sum after reversal: %v", err)
	}
	if total != 0 {
		t.Fatalf("reversed expense activity = %v, want 0", total)
	}
}

func TestQuickEntryExpenseCash(t *testing.T) {
	ledger := newFakeLedger("1001", "5001")
	svc, _, _ := newTestService(ledger)

	entry, err := svc.QuickEntry(context.Background(), QuickEntryInput{
		SocietyID:   1,
		Kind:        KindExpense,
		AccountCode: "5001",
		Amount:      1200,
		Method:      PayCash,
		Date:        fixedClock(),
	})
	if err != nil {
		t.Fatalf("quick entry: %v", err)
	}
	if len(entry.Lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(entry.Lines))
	}
	if ledger.balance("5001") != 1200 {
		t.Fatalf("expense balance = %v, want 1200", ledger.balance("5001"))
	}
	if ledger.balance("1001") != -1200 {
		t.Fatalf("cash balance = %v, want -1200", ledger.balance("1001"))
	}
}

func TestQuickEntryBankOverride(t *testing.T) {
	ledger := newFakeLedger("1011", "4001")
	svc, _, _ := newTestService(ledger)

	_, err := svc.QuickEntry(context.Background(), QuickEntryInput{
		SocietyID:       1,
		Kind:            KindIncome,
		AccountCode:     "4001",
		Amount:          800,
		Method:          PayBank,
		BankAccountCode: "1011",
		Date:            fixedClock(),
	})
	if err != nil {
		t.Fatalf("quick entry: %v", err)
	}
	if ledger.balance("1011") != 800 {
		t.Fatalf("override bank balance = %v, want 800", ledger.balance("1011"))
	}
}

func TestDateLockWindow(t *testing.T) {
	guard := NewDateLock(1)
	guard.WithNow(fixedClock)

	cases := []struct {
		date time.Time
		ok   bool
	}{
		{time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2026, time.April, 30, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC), false},
		{time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		err := guard.EnsurePostable(tc.date)
		if tc.ok && err != nil {
			t.Fatalf("date %s should be postable: %v", tc.date.Format("2006-01-02"), err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("date %s should be rejected", tc.date.Format("2006-01-02"))
		}
	}
}
