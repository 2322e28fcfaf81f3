package accounts

import (
	"context"
	"strings"
	"time"

	"github.com/societyledger/societyledger/internal/ledger/shared"
	internalShared "github.com/societyledger/societyledger/internal/shared"
)

// AuditPort records sensitive account mutations.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Drift reports a stored balance that disagrees with the balance replayed
// from ledger lines.
type Drift struct {
	Code     string
	Stored   float64
	Computed float64
}

// Service owns chart of accounts business logic.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds the account service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// RegisterInput carries fields for creating an account.
type RegisterInput struct {
	SocietyID      int64
	Code           string
	Name           string
	Type           AccountType
	OpeningBalance float64
	IsFixedExpense bool
}

// Register creates a new account. The current balance starts equal to the
// opening balance.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.SocietyID == 0 {
		return Account{}, shared.Validationf("society required")
	}
	if in.Code == "" {
		return Account{}, shared.Validationf("account code required")
	}
	if in.Name == "" {
		return Account{}, shared.Validationf("account name required")
	}
	if !in.Type.Valid() {
		return Account{}, shared.Validationf("unknown account type %q", in.Type)
	}
	if in.IsFixedExpense && in.Type != TypeExpense {
		return Account{}, shared.Validationf("only expense accounts can be flagged as fixed expense")
	}
	return s.repo.Create(ctx, Account{
		SocietyID:      in.SocietyID,
		Code:           in.Code,
		Name:           in.Name,
		Type:           in.Type,
		OpeningBalance: in.OpeningBalance,
		IsFixedExpense: in.IsFixedExpense,
	})
}

// AmendOpeningBalance replaces the opening balance and shifts the current
// balance by the delta, never by overwrite.
func (s *Service) AmendOpeningBalance(ctx context.Context, societyID int64, code string, newOpening float64) (Account, error) {
	old, err := s.repo.GetByCode(ctx, societyID, code)
	if err != nil {
		return Account{}, err
	}
	delta := newOpening - old.OpeningBalance
	acc, err := s.repo.AmendOpening(ctx, societyID, code, newOpening, delta)
	if err != nil {
		return Account{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			SocietyID: societyID,
			Action:    "account.amend_opening",
			Entity:    "account",
			EntityID:  code,
			Meta: map[string]any{
				"old_opening": old.OpeningBalance,
				"new_opening": newOpening,
				"delta":       delta,
			},
			At: s.now(),
		})
	}
	return acc, nil
}

// GetBalance returns the current balance for the account code.
func (s *Service) GetBalance(ctx context.Context, societyID int64, code string) (float64, error) {
	acc, err := s.repo.GetByCode(ctx, societyID, code)
	if err != nil {
		return 0, err
	}
	return acc.CurrentBalance, nil
}

// Get returns the account for the code.
func (s *Service) Get(ctx context.Context, societyID int64, code string) (Account, error) {
	return s.repo.GetByCode(ctx, societyID, code)
}

// List returns all accounts for the society ordered by code.
func (s *Service) List(ctx context.Context, societyID int64) ([]Account, error) {
	return s.repo.List(ctx, societyID)
}

// ListByType returns accounts of one category.
func (s *Service) ListByType(ctx context.Context, societyID int64, typ AccountType) ([]Account, error) {
	if !typ.Valid() {
		return nil, shared.Validationf("unknown account type %q", typ)
	}
	return s.repo.ListByType(ctx, societyID, typ)
}

// Reconcile replays every ledger line and compares the derived balance with
// the stored projection. It returns one Drift per account whose stored
// balance is off by more than the tolerance.
func (s *Service) Reconcile(ctx context.Context, societyID int64) ([]Drift, error) {
	accs, err := s.repo.List(ctx, societyID)
	if err != nil {
		return nil, err
	}
	sums, err := s.repo.LineSums(ctx, societyID)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]LineSums, len(sums))
	for _, sum := range sums {
		byCode[sum.Code] = sum
	}
	var drifts []Drift
	for _, acc := range accs {
		sum := byCode[acc.Code]
		computed := acc.OpeningBalance + sum.Debit - sum.Credit
		if !shared.WithinTolerance(acc.CurrentBalance, computed) {
			drifts = append(drifts, Drift{Code: acc.Code, Stored: acc.CurrentBalance, Computed: computed})
		}
	}
	return drifts, nil
}
