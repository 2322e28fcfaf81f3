package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/societyledger/societyledger/internal/ledger/journals"
	"github.com/societyledger/societyledger/internal/ledger/shared"
	internalShared "github.com/societyledger/societyledger/internal/shared"
	"github.com/societyledger/societyledger/internal/society"
)

// LedgerPort posts journal entries through the standard atomic path.
type LedgerPort interface {
	Post(ctx context.Context, in journals.PostingInput) (journals.JournalEntry, error)
}

// ActivityPort sums posted expense transactions for pool resolution.
type ActivityPort interface {
	SumDebits(ctx context.Context, societyID int64, codes []string, from, to time.Time) (float64, error)
}

// FlatPort reads the society roster.
type FlatPort interface {
	ListFlats(ctx context.Context, societyID int64) ([]society.Flat, error)
	GetFlat(ctx context.Context, societyID, flatID int64) (society.Flat, error)
}

// SettingsPort resolves per-society account wiring.
type SettingsPort interface {
	GetSettings(ctx context.Context, societyID int64) (society.Settings, error)
}

// Locker serializes bill posting per society and period.
type Locker interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// AuditPort records billing activity.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service is the bill calculation engine.
type Service struct {
	bills    Repository
	flats    FlatPort
	settings SettingsPort
	ledger   LedgerPort
	activity ActivityPort
	lock     Locker
	seq      journals.Sequencer
	audit    AuditPort
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds the billing service.
func NewService(bills Repository, flats FlatPort, settings SettingsPort, ledger LedgerPort, activity ActivityPort, lock Locker, seq journals.Sequencer, audit AuditPort) *Service {
	return &Service{
		bills:    bills,
		flats:    flats,
		settings: settings,
		ledger:   ledger,
		activity: activity,
		lock:     lock,
		seq:      seq,
		audit:    audit,
		validate: validator.New(),
		now:      time.Now,
	}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// periodRange returns [first day of month, first day of next month).
func periodRange(month, year int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

func validPeriod(month, year int) error {
	if month < 1 || month > 12 {
		return shared.Validationf("month %d out of range", month)
	}
	if year < 2000 || year > 2200 {
		return shared.Validationf("year %d out of range", year)
	}
	return nil
}

// GenerateBills computes draft bills for every flat in the period. It has
// no ledger effect; drafts replace any prior unposted drafts for the same
// period.
func (s *Service) GenerateBills(ctx context.Context, societyID int64, month, year int, overrides Overrides) ([]MaintenanceBill, error) {
	if err := validPeriod(month, year); err != nil {
		return nil, err
	}
	input, err := s.periodInput(ctx, societyID, month, year, overrides)
	if err != nil {
		return nil, err
	}
	drafts, err := ComputeBills(ctx, input)
	if err != nil {
		return nil, err
	}
	bills, err := s.materialize(ctx, societyID, month, year, drafts)
	if err != nil {
		return nil, err
	}
	return s.bills.ReplaceDrafts(ctx, societyID, month, year, bills)
}

// PostBills posts the period's unposted drafts as one journal entry: an AR
// debit line per flat plus aggregated income credit lines per account. The
// run is serialized per society and guarded against double posting. A draft
// regenerated after a reversal posts independently under a fresh entry
// number; already-posted bills are left alone.
func (s *Service) PostBills(ctx context.Context, societyID int64, month, year int, actorID int64) (journals.JournalEntry, error) {
	if err := validPeriod(month, year); err != nil {
		return journals.JournalEntry{}, err
	}
	if s.lock != nil {
		key := internalShared.BillingLockKey(societyID, month, year)
		if err := s.lock.Acquire(ctx, key); err != nil {
			if errors.Is(err, internalShared.ErrLockHeld) {
				return journals.JournalEntry{}, shared.Conflictf("bill posting for %02d/%04d already in progress", month, year)
			}
			return journals.JournalEntry{}, err
		}
		defer func() { _ = s.lock.Release(ctx, key) }()
	}

	bills, err := s.bills.ListForPeriod(ctx, societyID, month, year)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if len(bills) == 0 {
		return journals.JournalEntry{}, shared.NotFoundf("no draft bills for %02d/%04d", month, year)
	}
	var drafts []MaintenanceBill
	var alreadyPosted int
	for _, bill := range bills {
		if bill.IsPosted {
			// Voided bills are settled by their offset entry, live posted
			// bills are done; neither blocks a supplemental posting.
			alreadyPosted++
			continue
		}
		drafts = append(drafts, bill)
	}
	if len(drafts) == 0 {
		return journals.JournalEntry{}, shared.Conflictf("bills for %02d/%04d already posted", month, year)
	}
	settings, err := s.settings.GetSettings(ctx, societyID)
	if err != nil {
		return journals.JournalEntry{}, err
	}

	// The deterministic hint doubles as an idempotency guard on the first
	// posting: a repeat run conflicts on the entry number instead of double
	// posting. Supplemental postings (drafts regenerated after a reversal)
	// take a fresh sequencer number instead.
	var hint string
	if alreadyPosted == 0 {
		hint = fmt.Sprintf("%s-%04d%02d", journals.ScopeBill, year, month)
	}

	lines := batchLines(drafts, settings)
	from, _ := periodRange(month, year)
	entry, err := s.ledger.Post(ctx, journals.PostingInput{
		SocietyID:   societyID,
		Date:        from,
		Description: fmt.Sprintf("Maintenance bills %02d/%04d", month, year),
		Lines:       lines,
		NumberHint:  hint,
		SourceRef:   uuid.New(),
		ActorID:     actorID,
	})
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if err := s.bills.MarkPosted(ctx, societyID, month, year, entry.ID); err != nil {
		return journals.JournalEntry{}, err
	}
	s.record(ctx, societyID, actorID, "billing.post", fmt.Sprintf("%02d/%04d", month, year), map[string]any{
		"entry_number": entry.EntryNumber,
		"bills":        len(drafts),
		"total":        entry.TotalDebit,
	})
	return entry, nil
}

// ReverseBill offsets a single flat's share of the period's aggregate
// posting and voids the bill. Other flats' bills and lines stay untouched.
func (s *Service) ReverseBill(ctx context.Context, societyID, billID int64, reason string, actorID int64) (journals.JournalEntry, error) {
	bill, err := s.bills.Get(ctx, societyID, billID)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if !bill.IsPosted {
		return journals.JournalEntry{}, shared.Validationf("bill %s is not posted", bill.BillNumber)
	}
	if bill.Status == StatusVoid {
		return journals.JournalEntry{}, shared.Conflictf("bill %s already voided", bill.BillNumber)
	}
	settings, err := s.settings.GetSettings(ctx, societyID)
	if err != nil {
		return journals.JournalEntry{}, err
	}

	desc := fmt.Sprintf("Reversal of bill %s", bill.BillNumber)
	if reason != "" {
		desc += ": " + reason
	}
	var lines []journals.LineInput
	for _, part := range componentLines(bill.Breakdown, settings) {
		lines = append(lines, journals.LineInput{AccountCode: part.code, Debit: part.amount, Description: desc})
	}
	lines = append(lines, journals.LineInput{AccountCode: settings.ReceivableAccountCode, Credit: bill.Amount, Description: desc})

	entry, err := s.ledger.Post(ctx, journals.PostingInput{
		SocietyID:   societyID,
		Date:        s.now(),
		Description: desc,
		Lines:       lines,
		SourceRef:   uuid.New(),
		ActorID:     actorID,
	})
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if err := s.bills.MarkVoid(ctx, societyID, billID, entry.ID); err != nil {
		return journals.JournalEntry{}, err
	}
	s.record(ctx, societyID, actorID, "billing.reverse", bill.BillNumber, map[string]any{
		"entry_number": entry.EntryNumber,
		"reason":       reason,
	})
	return entry, nil
}

// RegenerateBill recomputes one flat's bill with an optional occupant
// override, producing a fresh unposted bill. The override feeds the shared
// per-person denominator, but no other flat's stored bill is modified.
func (s *Service) RegenerateBill(ctx context.Context, societyID, flatID int64, month, year int, adjustedOccupants *int) (MaintenanceBill, error) {
	if err := validPeriod(month, year); err != nil {
		return MaintenanceBill{}, err
	}
	flat, err := s.flats.GetFlat(ctx, societyID, flatID)
	if err != nil {
		return MaintenanceBill{}, err
	}
	overrides := Overrides{}
	if adjustedOccupants != nil {
		overrides.Occupants = map[int64]int{flatID: *adjustedOccupants}
	}
	input, err := s.periodInput(ctx, societyID, month, year, overrides)
	if err != nil {
		return MaintenanceBill{}, err
	}
	drafts, err := ComputeBills(ctx, input)
	if err != nil {
		return MaintenanceBill{}, err
	}
	var draft *Draft
	for i := range drafts {
		if drafts[i].FlatID == flat.ID {
			draft = &drafts[i]
			break
		}
	}
	if draft == nil {
		return MaintenanceBill{}, shared.NotFoundf("flat %d in roster", flatID)
	}
	bills, err := s.materialize(ctx, societyID, month, year, []Draft{*draft})
	if err != nil {
		return MaintenanceBill{}, err
	}
	return s.bills.ReplaceDraftForFlat(ctx, bills[0])
}

// ListBills returns the period's bills.
func (s *Service) ListBills(ctx context.Context, societyID int64, month, year int) ([]MaintenanceBill, error) {
	return s.bills.ListForPeriod(ctx, societyID, month, year)
}

// periodInput resolves rules, roster, pools, and arrears for a run.
func (s *Service) periodInput(ctx context.Context, societyID int64, month, year int, overrides Overrides) (PeriodInput, error) {
	rules, err := s.bills.GetRuleSet(ctx, societyID)
	if err != nil {
		return PeriodInput{}, err
	}
	if err := s.validate.Struct(rules); err != nil {
		return PeriodInput{}, shared.Validationf("billing rules invalid: %v", err)
	}
	flats, err := s.flats.ListFlats(ctx, societyID)
	if err != nil {
		return PeriodInput{}, err
	}
	from, to := periodRange(month, year)

	waterTotal := 0.0
	if overrides.WaterTotal != nil {
		waterTotal = *overrides.WaterTotal
	} else if len(rules.WaterExpenseCodes) > 0 {
		waterTotal, err = s.activity.SumDebits(ctx, societyID, rules.WaterExpenseCodes, from, to)
		if err != nil {
			return PeriodInput{}, err
		}
	}
	fixedPool := 0.0
	if overrides.FixedPool != nil {
		fixedPool = *overrides.FixedPool
	} else if len(rules.FixedExpenseCodes) > 0 {
		fixedPool, err = s.activity.SumDebits(ctx, societyID, rules.FixedExpenseCodes, from, to)
		if err != nil {
			return PeriodInput{}, err
		}
	}
	arrears, err := s.bills.OutstandingBefore(ctx, societyID, month, year)
	if err != nil {
		return PeriodInput{}, err
	}

	input := PeriodInput{
		Month:             month,
		Year:              year,
		Rules:             rules,
		WaterTotal:        waterTotal,
		FixedPool:         fixedPool,
		Arrears:           arrears,
		OccupantOverrides: overrides.Occupants,
		MeterCharges:      overrides.MeterCharges,
	}
	for _, flat := range flats {
		input.Flats = append(input.Flats, FlatInput{
			ID:        flat.ID,
			Number:    flat.Number,
			AreaSqft:  flat.AreaSqft,
			Occupants: flat.Occupants,
		})
	}
	return input, nil
}

// materialize assigns bill numbers and converts drafts to bills.
func (s *Service) materialize(ctx context.Context, societyID int64, month, year int, drafts []Draft) ([]MaintenanceBill, error) {
	from, _ := periodRange(month, year)
	bills := make([]MaintenanceBill, 0, len(drafts))
	for _, draft := range drafts {
		number, err := s.seq.Next(ctx, societyID, journals.ScopeBill, from)
		if err != nil {
			return nil, err
		}
		bills = append(bills, MaintenanceBill{
			SocietyID:  societyID,
			FlatID:     draft.FlatID,
			FlatNumber: draft.FlatNumber,
			BillNumber: number,
			Month:      month,
			Year:       year,
			Amount:     draft.Amount,
			Arrears:    draft.Arrears,
			Breakdown:  draft.Breakdown,
			Status:     StatusUnpaid,
		})
	}
	return bills, nil
}

type componentLine struct {
	code   string
	amount float64
}

// componentLines maps breakdown components to their income accounts,
// skipping zero values.
func componentLines(b Breakdown, settings society.Settings) []componentLine {
	parts := []componentLine{
		{settings.MaintenanceIncomeCode, b.Maintenance},
		{settings.WaterIncomeCode, b.Water},
		{settings.FixedRecoveryCode, b.FixedExpenses},
		{settings.SinkingFundCode, b.SinkingFund},
		{settings.RepairFundCode, b.RepairFund},
		{settings.CorpusFundCode, b.CorpusFund},
	}
	out := parts[:0]
	for _, part := range parts {
		if part.amount > 0 {
			out = append(out, part)
		}
	}
	return out
}

// batchLines builds the aggregate posting: one AR debit per flat and one
// credit per income account summed across flats.
func batchLines(bills []MaintenanceBill, settings society.Settings) []journals.LineInput {
	var lines []journals.LineInput
	creditTotals := make(map[string]float64)
	var creditOrder []string
	for _, bill := range bills {
		if bill.Amount <= 0 {
			continue
		}
		lines = append(lines, journals.LineInput{
			AccountCode: settings.ReceivableAccountCode,
			Debit:       bill.Amount,
			Description: BillDescription(bill.FlatNumber, bill.Month, bill.Year),
		})
		for _, part := range componentLines(bill.Breakdown, settings) {
			if _, ok := creditTotals[part.code]; !ok {
				creditOrder = append(creditOrder, part.code)
			}
			creditTotals[part.code] += part.amount
		}
	}
	for _, code := range creditOrder {
		lines = append(lines, journals.LineInput{
			AccountCode: code,
			Credit:      creditTotals[code],
			Description: fmt.Sprintf("Maintenance income %02d/%04d", bills[0].Month, bills[0].Year),
		})
	}
	return lines
}

func (s *Service) record(ctx context.Context, societyID, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		SocietyID: societyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "maintenance_bill",
		EntityID:  entityID,
		Meta:      meta,
		At:        s.now(),
	})
}
