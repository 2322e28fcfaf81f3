package reports

import (
	"sort"
	"time"

	"github.com/societyledger/societyledger/internal/ledger/accounts"
	"github.com/societyledger/societyledger/internal/ledger/shared"
)

// AccountActivity aggregates an account's posted lines over a reporting
// window on top of its opening balance.
type AccountActivity struct {
	Code    string
	Name    string
	Type    accounts.AccountType
	Opening float64
	Debit   float64
	Credit  float64
}

// Closing computes the closing balance using the uniform sign rule.
func (a AccountActivity) Closing() float64 {
	return a.Opening + a.Debit - a.Credit
}

// TrialBalanceRow is one account in the trial balance.
type TrialBalanceRow struct {
	Code    string
	Name    string
	Type    accounts.AccountType
	Balance float64
	Debit   float64
	Credit  float64
}

// TrialBalance verifies total debits equal total credits as of a date.
type TrialBalance struct {
	AsOf        time.Time
	Rows        []TrialBalanceRow
	TotalDebit  float64
	TotalCredit float64
	IsBalanced  bool
}

// BuildTrialBalance places each closing balance into the debit or credit
// column. Debit-normal accounts contribute positive balances to the debit
// column; credit-normal accounts rest negative and contribute the absolute
// value to the credit column. A balance on the abnormal side lands in the
// opposite column.
func BuildTrialBalance(asOf time.Time, activity []AccountActivity) TrialBalance {
	tb := TrialBalance{AsOf: asOf}
	for _, act := range activity {
		balance := act.Closing()
		row := TrialBalanceRow{Code: act.Code, Name: act.Name, Type: act.Type, Balance: balance}
		if balance >= 0 {
			row.Debit = balance
		} else {
			row.Credit = -balance
		}
		tb.Rows = append(tb.Rows, row)
		tb.TotalDebit += row.Debit
		tb.TotalCredit += row.Credit
	}
	sort.Slice(tb.Rows, func(i, j int) bool { return tb.Rows[i].Code < tb.Rows[j].Code })
	tb.IsBalanced = shared.WithinTolerance(tb.TotalDebit, tb.TotalCredit)
	return tb
}
