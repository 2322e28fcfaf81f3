package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/societyledger/societyledger/internal/billing"
	jobmetrics "github.com/societyledger/societyledger/internal/jobs"
	"github.com/societyledger/societyledger/internal/ledger/shared"
)

// BillingCycleJob generates a period's draft bills and optionally posts
// them as the month's aggregate journal entry.
type BillingCycleJob struct {
	billing *billing.Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewBillingCycleJob builds the job.
func NewBillingCycleJob(svc *billing.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *BillingCycleJob {
	return &BillingCycleJob{billing: svc, logger: logger, metrics: metrics}
}

// Handle processes TaskBillingCycle tasks.
func (j *BillingCycleJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload BillingCyclePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track("billing_cycle")

	// Scheduled runs omit the period and bill the month they fire in.
	if payload.Month == 0 || payload.Year == 0 {
		now := time.Now().UTC()
		payload.Month = int(now.Month())
		payload.Year = now.Year()
	}

	bills, err := j.billing.GenerateBills(ctx, payload.SocietyID, payload.Month, payload.Year, billing.Overrides{})
	if err != nil {
		j.logger.Error("generate bills", slog.Int64("society", payload.SocietyID), slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("bills generated",
		slog.Int64("society", payload.SocietyID),
		slog.Int("month", payload.Month),
		slog.Int("year", payload.Year),
		slog.Int("count", len(bills)))

	if !payload.AutoPost {
		return tracker.End(nil)
	}
	entry, err := j.billing.PostBills(ctx, payload.SocietyID, payload.Month, payload.Year, 0)
	if err != nil {
		var conflict *shared.ConflictError
		if errors.As(err, &conflict) {
			// Already posted by an earlier run; nothing to redo.
			j.logger.Info("bill posting skipped", slog.Int64("society", payload.SocietyID), slog.String("detail", conflict.Detail))
			return tracker.End(nil)
		}
		j.logger.Error("post bills", slog.Int64("society", payload.SocietyID), slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("bills posted",
		slog.Int64("society", payload.SocietyID),
		slog.String("entry_number", entry.EntryNumber))
	return tracker.End(nil)
}
