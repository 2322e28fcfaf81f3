package reports

import (
	"math"
	"sort"

	"github.com/societyledger/societyledger/internal/ledger/accounts"
	"github.com/societyledger/societyledger/internal/ledger/shared"
)

// DefaultAdjustmentCode is the equity account conventionally used to absorb
// a balance sheet difference.
const DefaultAdjustmentCode = "3001"

// BalanceSheetRow summarises one account.
type BalanceSheetRow struct {
	Code    string
	Name    string
	Balance float64
}

// BalanceSheetSection groups accounts of one classification. Balances are
// presented positive; credit-normal accounts are negated from their
// canonical resting sign.
type BalanceSheetSection struct {
	Label    string
	Accounts []BalanceSheetRow
	Total    float64
}

// BalanceSheet reports assets against liabilities plus capital.
type BalanceSheet struct {
	Assets           BalanceSheetSection
	Liabilities      BalanceSheetSection
	Equity           BalanceSheetSection
	Difference       float64
	IsBalanced       bool
	SuggestedAccount string
}

// BuildBalanceSheet classifies balances and computes the difference
// assets - (liabilities + equity). When unbalanced, the suggested
// correction is to apply the difference to the adjustment equity account.
func BuildBalanceSheet(accs []accounts.Account, adjustmentCode string) BalanceSheet {
	if adjustmentCode == "" {
		adjustmentCode = DefaultAdjustmentCode
	}
	assets := BalanceSheetSection{Label: "Assets"}
	liabilities := BalanceSheetSection{Label: "Liabilities"}
	equity := BalanceSheetSection{Label: "Capital & Reserves"}

	for _, acc := range accs {
		switch acc.Type {
		case accounts.TypeAsset:
			row := BalanceSheetRow{Code: acc.Code, Name: acc.Name, Balance: acc.CurrentBalance}
			assets.Accounts = append(assets.Accounts, row)
			assets.Total += row.Balance
		case accounts.TypeLiability:
			row := BalanceSheetRow{Code: acc.Code, Name: acc.Name, Balance: -acc.CurrentBalance}
			liabilities.Accounts = append(liabilities.Accounts, row)
			liabilities.Total += row.Balance
		case accounts.TypeCapital:
			row := BalanceSheetRow{Code: acc.Code, Name: acc.Name, Balance: -acc.CurrentBalance}
			equity.Accounts = append(equity.Accounts, row)
			equity.Total += row.Balance
		}
	}

	for _, section := range []*BalanceSheetSection{&assets, &liabilities, &equity} {
		sort.Slice(section.Accounts, func(i, j int) bool {
			return section.Accounts[i].Code < section.Accounts[j].Code
		})
	}

	diff := assets.Total - (liabilities.Total + equity.Total)
	return BalanceSheet{
		Assets:           assets,
		Liabilities:      liabilities,
		Equity:           equity,
		Difference:       diff,
		IsBalanced:       math.Abs(diff) < shared.Tolerance,
		SuggestedAccount: adjustmentCode,
	}
}
