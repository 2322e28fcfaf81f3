package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBillingCycle generates and posts a society's bills for a period.
	TaskBillingCycle = "billing:cycle"
	// TaskGLIntegrity reconciles stored balances against the ledger.
	TaskGLIntegrity = "gl:integrity"
)

// BillingCyclePayload selects the society and period to bill.
type BillingCyclePayload struct {
	SocietyID int64 `json:"society_id"`
	Month     int   `json:"month"`
	Year      int   `json:"year"`
	// AutoPost posts the generated drafts in the same run.
	AutoPost bool `json:"auto_post"`
}

// NewBillingCycleTask constructs an Asynq task for the billing cycle.
func NewBillingCycleTask(payload BillingCyclePayload) (*asynq.Task, error) {
	if payload.SocietyID == 0 {
		return nil, fmt.Errorf("jobs: billing cycle requires a society")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillingCycle, data), nil
}

// GLIntegrityPayload selects the society to reconcile.
type GLIntegrityPayload struct {
	SocietyID int64 `json:"society_id"`
}

// NewGLIntegrityTask constructs an Asynq task for the integrity check.
func NewGLIntegrityTask(payload GLIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, data), nil
}
