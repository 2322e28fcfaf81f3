package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/societyledger/societyledger/internal/app"
	"github.com/societyledger/societyledger/internal/billing"
	jobmetrics "github.com/societyledger/societyledger/internal/jobs"
	"github.com/societyledger/societyledger/internal/ledger/accounts"
	"github.com/societyledger/societyledger/internal/ledger/journals"
	"github.com/societyledger/societyledger/internal/ledger/reports"
	"github.com/societyledger/societyledger/internal/platform/cache"
	"github.com/societyledger/societyledger/internal/platform/db"
	"github.com/societyledger/societyledger/internal/shared"
	"github.com/societyledger/societyledger/internal/society"
	"github.com/societyledger/societyledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	audit := shared.NewAuditLogger(pool)
	societyRepo := society.NewRepository(pool)

	accountRepo := accounts.NewRepository(pool)
	accountService := accounts.NewService(accountRepo, audit)

	journalRepo := journals.NewRepository(pool)
	sequencer := journals.NewSequencer(pool)
	guard := journals.NewDateLock(cfg.PostingLockMonths)
	journalService := journals.NewService(journalRepo, sequencer, societyRepo, audit, guard)

	activityRepo := reports.NewActivityRepository(pool)
	reportService := reports.NewService(accountRepo, activityRepo, societyRepo, time.Month(cfg.FYStartMonth))

	billingLock := shared.NewLock(redisClient, cfg.BillingLockTTL)
	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, societyRepo, societyRepo, journalService, journalRepo, billingLock, sequencer, audit)

	metrics := jobmetrics.NewMetrics(nil)
	billingJob := jobs.NewBillingCycleJob(billingService, logger, metrics)
	integrityJob := jobs.NewGLIntegrityJob(accountService, reportService, logger, metrics)

	var cron []jobs.CronRegistration
	for _, societyID := range cfg.CronSocietyIDs {
		billingTask, err := jobs.NewBillingCycleTask(jobs.BillingCyclePayload{
			SocietyID: societyID,
			AutoPost:  cfg.BillingAutoPost,
		})
		if err != nil {
			logger.Error("build billing task", slog.Int64("society", societyID), slog.Any("error", err))
			os.Exit(1)
		}
		integrityTask, err := jobs.NewGLIntegrityTask(jobs.GLIntegrityPayload{SocietyID: societyID})
		if err != nil {
			logger.Error("build integrity task", slog.Int64("society", societyID), slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron,
			// First of every month, after the prior month's expenses settle.
			jobs.CronRegistration{Spec: "0 2 1 * *", Task: billingTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			jobs.CronRegistration{Spec: "30 1 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBillingCycle, Handler: billingJob.Handle},
			{Type: jobs.TaskGLIntegrity, Handler: integrityJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
