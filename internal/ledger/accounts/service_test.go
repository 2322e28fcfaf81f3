package accounts

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/societyledger/societyledger/internal/ledger/shared"
	internalShared "github.com/societyledger/societyledger/internal/shared"
)

type memRepo struct {
	accounts map[string]Account
	sums     map[string]LineSums
}

func newMemRepo() *memRepo {
	return &memRepo{accounts: make(map[string]Account), sums: make(map[string]LineSums)}
}

func (r *memRepo) Create(ctx context.Context, acc Account) (Account, error) {
	if _, ok := r.accounts[acc.Code]; ok {
		return Account{}, shared.Conflictf("account code %q already exists", acc.Code)
	}
	acc.ID = int64(len(r.accounts) + 1)
	acc.CurrentBalance = acc.OpeningBalance
	r.accounts[acc.Code] = acc
	return acc, nil
}

func (r *memRepo) GetByCode(ctx context.Context, societyID int64, code string) (Account, error) {
	acc, ok := r.accounts[code]
	if !ok {
		return Account{}, shared.NotFoundf("account %q", code)
	}
	return acc, nil
}

func (r *memRepo) List(ctx context.Context, societyID int64) ([]Account, error) {
	var out []Account
	for _, acc := range r.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memRepo) ListByType(ctx context.Context, societyID int64, typ AccountType) ([]Account, error) {
	var out []Account
	for _, acc := range r.accounts {
		if acc.Type == typ {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (r *memRepo) AmendOpening(ctx context.Context, societyID int64, code string, newOpening, delta float64) (Account, error) {
	acc, ok := r.accounts[code]
	if !ok {
		return Account{}, shared.NotFoundf("account %q", code)
	}
	acc.OpeningBalance = newOpening
	acc.CurrentBalance += delta
	r.accounts[code] = acc
	return acc, nil
}

func (r *memRepo) LineSums(ctx context.Context, societyID int64) ([]LineSums, error) {
	var out []LineSums
	for _, sum := range r.sums {
		out = append(out, sum)
	}
	return out, nil
}

type noopAudit struct{}

func (noopAudit) Record(ctx context.Context, log internalShared.AuditLog) error { return nil }

func TestRegisterStartsCurrentAtOpening(t *testing.T) {
	svc := NewService(newMemRepo(), noopAudit{})

	acc, err := svc.Register(context.Background(), RegisterInput{
		SocietyID:      1,
		Code:           "1010",
		Name:           "Bank Account",
		Type:           TypeAsset,
		OpeningBalance: 250000,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if acc.CurrentBalance != acc.OpeningBalance {
		t.Fatalf("current %v != opening %v", acc.CurrentBalance, acc.OpeningBalance)
	}
}

func TestRegisterDuplicateCodeConflicts(t *testing.T) {
	svc := NewService(newMemRepo(), noopAudit{})

	in := RegisterInput{SocietyID: 1, Code: "1001", Name: "Cash", Type: TypeAsset}
	if _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(context.Background(), in)
	var cerr *shared.ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(newMemRepo(), noopAudit{})

	cases := []RegisterInput{
		{SocietyID: 1, Code: "", Name: "Cash", Type: TypeAsset},
		{SocietyID: 1, Code: "1001", Name: " ", Type: TypeAsset},
		{SocietyID: 1, Code: "1001", Name: "Cash", Type: "BANK"},
		{SocietyID: 1, Code: "4001", Name: "Dues", Type: TypeIncome, IsFixedExpense: true},
	}
	for i, in := range cases {
		_, err := svc.Register(context.Background(), in)
		var verr *shared.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("case %d: expected ValidationError, got %v", i, err)
		}
	}
}

func TestAmendOpeningShiftsCurrentByDelta(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, noopAudit{})

	if _, err := svc.Register(context.Background(), RegisterInput{
		SocietyID: 1, Code: "1001", Name: "Cash", Type: TypeAsset, OpeningBalance: 1000,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Simulate posted activity on top of the opening balance.
	acc := repo.accounts["1001"]
	acc.CurrentBalance = 1400
	repo.accounts["1001"] = acc

	amended, err := svc.AmendOpeningBalance(context.Background(), 1, "1001", 1500)
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if amended.OpeningBalance != 1500 {
		t.Fatalf("opening = %v, want 1500", amended.OpeningBalance)
	}
	// 1400 + (1500-1000): activity of 400 is preserved.
	if amended.CurrentBalance != 1900 {
		t.Fatalf("current = %v, want 1900", amended.CurrentBalance)
	}
}

func TestReconcileReportsDrift(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, noopAudit{})

	repo.accounts["1001"] = Account{Code: "1001", Type: TypeAsset, OpeningBalance: 100, CurrentBalance: 600}
	repo.accounts["4001"] = Account{Code: "4001", Type: TypeIncome, OpeningBalance: 0, CurrentBalance: -500}
	repo.sums["1001"] = LineSums{Code: "1001", Debit: 500}
	repo.sums["4001"] = LineSums{Code: "4001", Credit: 500}

	drifts, err := svc.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("consistent books reported drift: %+v", drifts)
	}

	// Corrupt the stored projection.
	acc := repo.accounts["1001"]
	acc.CurrentBalance = 650
	repo.accounts["1001"] = acc

	drifts, err = svc.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(drifts) != 1 || drifts[0].Code != "1001" {
		t.Fatalf("expected drift on 1001, got %+v", drifts)
	}
	if drifts[0].Stored != 650 || drifts[0].Computed != 600 {
		t.Fatalf("unexpected drift values: %+v", drifts[0])
	}
}

func TestAccountTypeNormalSide(t *testing.T) {
	debitNormal := []AccountType{TypeAsset, TypeExpense}
	creditNormal := []AccountType{TypeLiability, TypeCapital, TypeIncome}
	for _, typ := range debitNormal {
		if !typ.DebitNormal() {
			t.Fatalf("%s should be debit normal", typ)
		}
	}
	for _, typ := range creditNormal {
		if typ.DebitNormal() {
			t.Fatalf("%s should be credit normal", typ)
		}
	}
}
