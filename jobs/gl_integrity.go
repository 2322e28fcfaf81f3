package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/societyledger/societyledger/internal/jobs"
	"github.com/societyledger/societyledger/internal/ledger/accounts"
	"github.com/societyledger/societyledger/internal/ledger/reports"
)

// GLIntegrityJob replays the ledger against stored balances and checks the
// trial balance. Drift is reported and fails the run so it surfaces in
// retries and alerts.
type GLIntegrityJob struct {
	accounts *accounts.Service
	reports  *reports.Service
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewGLIntegrityJob builds the job.
func NewGLIntegrityJob(accs *accounts.Service, reps *reports.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{accounts: accs, reports: reps, logger: logger, metrics: metrics}
}

// Handle processes TaskGLIntegrity tasks.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload GLIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track("gl_integrity")

	drifts, err := j.accounts.Reconcile(ctx, payload.SocietyID)
	if err != nil {
		return tracker.End(err)
	}
	for _, drift := range drifts {
		j.logger.Error("balance drift",
			slog.Int64("society", payload.SocietyID),
			slog.String("account", drift.Code),
			slog.Float64("stored", drift.Stored),
			slog.Float64("computed", drift.Computed))
	}
	j.metrics.AddDrift(payload.SocietyID, len(drifts))

	tb, err := j.reports.GetTrialBalance(ctx, payload.SocietyID, time.Now().UTC())
	if err != nil {
		return tracker.End(err)
	}
	if !tb.IsBalanced {
		j.logger.Error("trial balance off",
			slog.Int64("society", payload.SocietyID),
			slog.Float64("total_debit", tb.TotalDebit),
			slog.Float64("total_credit", tb.TotalCredit))
	}
	if len(drifts) > 0 || !tb.IsBalanced {
		return tracker.End(fmt.Errorf("jobs: ledger integrity failed for society %d: %d drifted accounts, balanced=%t",
			payload.SocietyID, len(drifts), tb.IsBalanced))
	}
	return tracker.End(nil)
}
