package accounts

import "time"

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	TypeAsset     AccountType = "ASSET"
	TypeLiability AccountType = "LIABILITY"
	TypeCapital   AccountType = "CAPITAL"
	TypeIncome    AccountType = "INCOME"
	TypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether the type is one of the closed set.
func (t AccountType) Valid() bool {
	switch t {
	case TypeAsset, TypeLiability, TypeCapital, TypeIncome, TypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether the account balance grows with debits.
// Credit-normal accounts (liability, capital, income) rest negative under the
// uniform balance rule.
func (t AccountType) DebitNormal() bool {
	return t == TypeAsset || t == TypeExpense
}

// Account models one chart of accounts node for a society.
//
// CurrentBalance is a materialized projection: it always equals
// OpeningBalance plus the signed sum (debit - credit) of every posted ledger
// line against the account, regardless of account type. Reconcile recomputes
// it independently.
type Account struct {
	ID             int64
	SocietyID      int64
	Code           string
	Name           string
	Type           AccountType
	OpeningBalance float64
	CurrentBalance float64
	IsFixedExpense bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
