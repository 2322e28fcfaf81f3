package reports

import (
	"context"
	"time"

	"github.com/societyledger/societyledger/internal/ledger/accounts"
	"github.com/societyledger/societyledger/internal/society"
)

// SettingsPort resolves the society's equity adjustment account.
type SettingsPort interface {
	GetSettings(ctx context.Context, societyID int64) (society.Settings, error)
}

// Service builds the read-only validator reports over the registry.
type Service struct {
	accounts     accounts.Repository
	activity     ActivityRepository
	settings     SettingsPort
	fyStartMonth time.Month
}

// NewService builds the reports service. fyStartMonth anchors the active
// financial year; zero defaults to April.
func NewService(accs accounts.Repository, activity ActivityRepository, settings SettingsPort, fyStartMonth time.Month) *Service {
	if fyStartMonth < time.January || fyStartMonth > time.December {
		fyStartMonth = time.April
	}
	return &Service{accounts: accs, activity: activity, settings: settings, fyStartMonth: fyStartMonth}
}

// FYStart returns the first day of the financial year containing asOf.
func (s *Service) FYStart(asOf time.Time) time.Time {
	year := asOf.Year()
	if asOf.Month() < s.fyStartMonth {
		year--
	}
	return time.Date(year, s.fyStartMonth, 1, 0, 0, 0, 0, asOf.Location())
}

// GetTrialBalance aggregates every account over the active financial year
// up to asOf and verifies total debits equal total credits.
func (s *Service) GetTrialBalance(ctx context.Context, societyID int64, asOf time.Time) (TrialBalance, error) {
	activity, err := s.activity.Activity(ctx, societyID, s.FYStart(asOf), asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(asOf, activity), nil
}

// ValidateBalanceSheet checks assets against liabilities plus capital using
// current balances.
func (s *Service) ValidateBalanceSheet(ctx context.Context, societyID int64) (BalanceSheet, error) {
	accs, err := s.accounts.List(ctx, societyID)
	if err != nil {
		return BalanceSheet{}, err
	}
	adjustment := ""
	if s.settings != nil {
		if settings, err := s.settings.GetSettings(ctx, societyID); err == nil {
			adjustment = settings.EquityAdjustmentCode
		}
	}
	return BuildBalanceSheet(accs, adjustment), nil
}
