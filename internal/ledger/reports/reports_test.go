package reports

import (
	"testing"
	"time"

	"github.com/societyledger/societyledger/internal/ledger/accounts"
)

func TestBuildTrialBalanceColumnsBySign(t *testing.T) {
	asOf := time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)
	activity := []AccountActivity{
		{Code: "1001", Name: "Cash", Type: accounts.TypeAsset, Opening: 1000, Debit: 500, Credit: 200},
		{Code: "2001", Name: "Deposits", Type: accounts.TypeLiability, Opening: -800, Debit: 0, Credit: 500},
		{Code: "4001", Name: "Dues", Type: accounts.TypeIncome, Opening: 0, Debit: 0, Credit: 0},
	}

	tb := BuildTrialBalance(asOf, activity)
	if len(tb.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(tb.Rows))
	}
	cash := tb.Rows[0]
	if cash.Debit != 1300 || cash.Credit != 0 {
		t.Fatalf("cash row: %+v", cash)
	}
	deposits := tb.Rows[1]
	if deposits.Debit != 0 || deposits.Credit != 1300 {
		t.Fatalf("deposits row: %+v", deposits)
	}
	// A zero balance sits in the debit column at zero.
	dues := tb.Rows[2]
	if dues.Debit != 0 || dues.Credit != 0 {
		t.Fatalf("dues row: %+v", dues)
	}
	if tb.TotalDebit != 1300 || tb.TotalCredit != 1300 {
		t.Fatalf("totals: %v / %v", tb.TotalDebit, tb.TotalCredit)
	}
	if !tb.IsBalanced {
		t.Fatal("equal totals reported unbalanced")
	}
}

func TestBuildTrialBalanceAbnormalSide(t *testing.T) {
	// An income account driven positive (over-reversed) lands in the debit
	// column rather than being forced to its normal side.
	tb := BuildTrialBalance(time.Now(), []AccountActivity{
		{Code: "4001", Type: accounts.TypeIncome, Debit: 700, Credit: 500},
		{Code: "1001", Type: accounts.TypeAsset, Debit: 0, Credit: 200},
	})
	if tb.Rows[1].Debit != 200 {
		t.Fatalf("income row: %+v", tb.Rows[1])
	}
	if tb.Rows[0].Credit != 200 {
		t.Fatalf("asset row: %+v", tb.Rows[0])
	}
}

func TestBuildTrialBalanceDetectsImbalance(t *testing.T) {
	tb := BuildTrialBalance(time.Now(), []AccountActivity{
		{Code: "1001", Type: accounts.TypeAsset, Debit: 500},
		{Code: "4001", Type: accounts.TypeIncome, Credit: 400},
	})
	if tb.IsBalanced {
		t.Fatalf("drift of 100 reported balanced: %+v", tb)
	}
}

func balancedChart() []accounts.Account {
	return []accounts.Account{
		{Code: "1001", Type: accounts.TypeAsset, CurrentBalance: 5000},
		{Code: "1010", Type: accounts.TypeAsset, CurrentBalance: 250000},
		{Code: "2001", Type: accounts.TypeLiability, CurrentBalance: -50000},
		{Code: "3001", Type: accounts.TypeCapital, CurrentBalance: -205000},
		// Income and expense do not participate in the balance sheet.
		{Code: "4001", Type: accounts.TypeIncome, CurrentBalance: -999},
		{Code: "5001", Type: accounts.TypeExpense, CurrentBalance: 999},
	}
}

func TestBuildBalanceSheetBalanced(t *testing.T) {
	bs := BuildBalanceSheet(balancedChart(), "")
	if bs.Assets.Total != 255000 {
		t.Fatalf("assets total = %v", bs.Assets.Total)
	}
	if bs.Liabilities.Total != 50000 {
		t.Fatalf("liabilities total = %v", bs.Liabilities.Total)
	}
	if bs.Equity.Total != 205000 {
		t.Fatalf("equity total = %v", bs.Equity.Total)
	}
	if !bs.IsBalanced || bs.Difference != 0 {
		t.Fatalf("balanced chart reported difference %v", bs.Difference)
	}
	if bs.SuggestedAccount != DefaultAdjustmentCode {
		t.Fatalf("suggested account = %q", bs.SuggestedAccount)
	}
}

func TestBuildBalanceSheetSuggestsAdjustment(t *testing.T) {
	chart := balancedChart()
	chart[0].CurrentBalance += 750

	bs := BuildBalanceSheet(chart, "3099")
	if bs.IsBalanced {
		t.Fatal("skewed chart reported balanced")
	}
	if bs.Difference != 750 {
		t.Fatalf("difference = %v, want 750", bs.Difference)
	}
	if bs.SuggestedAccount != "3099" {
		t.Fatalf("suggested account = %q", bs.SuggestedAccount)
	}
}

func TestFYStart(t *testing.T) {
	svc := NewService(nil, nil, nil, time.April)

	cases := []struct {
		asOf time.Time
		want time.Time
	}{
		{time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC), time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, time.December, 15, 0, 0, 0, 0, time.UTC), time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := svc.FYStart(tc.asOf); !got.Equal(tc.want) {
			t.Fatalf("FYStart(%s) = %s, want %s", tc.asOf.Format("2006-01-02"), got, tc.want)
		}
	}
}
