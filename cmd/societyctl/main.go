package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/societyledger/societyledger/cmd/societyctl/cli"
	"github.com/societyledger/societyledger/internal/app"
	"github.com/societyledger/societyledger/internal/billing"
	"github.com/societyledger/societyledger/internal/ledger/accounts"
	"github.com/societyledger/societyledger/internal/ledger/journals"
	"github.com/societyledger/societyledger/internal/ledger/reports"
	"github.com/societyledger/societyledger/internal/platform/cache"
	"github.com/societyledger/societyledger/internal/platform/db"
	"github.com/societyledger/societyledger/internal/shared"
	"github.com/societyledger/societyledger/internal/society"
)

const usage = `usage: societyctl <command> [flags]

commands:
  trial-balance    build the trial balance as of a date
  balance-sheet    validate assets against liabilities plus capital
  reconcile        replay the ledger against stored balances
  generate-bills   compute draft bills for a period
  post-bills       post a period's drafts as one journal entry
  jobs             trigger or inspect background jobs
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		fatal("load config", err)
	}
	logger := app.NewLogger(cfg)

	switch os.Args[1] {
	case "trial-balance":
		runTrialBalance(ctx, cfg, os.Args[2:])
	case "balance-sheet":
		runBalanceSheet(ctx, cfg, os.Args[2:])
	case "reconcile":
		runReconcile(ctx, cfg, os.Args[2:])
	case "generate-bills":
		runGenerateBills(ctx, cfg, logger, os.Args[2:])
	case "post-bills":
		runPostBills(ctx, cfg, logger, os.Args[2:])
	case "jobs":
		runJobs(ctx, cfg, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "societyctl: %s: %v\n", msg, err)
	os.Exit(1)
}

func connect(ctx context.Context, cfg *app.Config) *pgxpool.Pool {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		fatal("connect database", err)
	}
	return pool
}

func runTrialBalance(ctx context.Context, cfg *app.Config, args []string) {
	fs := flag.NewFlagSet("trial-balance", flag.ExitOnError)
	societyID := fs.Int64("society", 0, "society id")
	asOfArg := fs.String("as-of", "", "report date (YYYY-MM-DD, default today)")
	_ = fs.Parse(args)
	if *societyID == 0 {
		fatal("trial-balance", fmt.Errorf("-society is required"))
	}
	asOf := time.Now().UTC()
	if *asOfArg != "" {
		parsed, err := time.Parse("2006-01-02", *asOfArg)
		if err != nil {
			fatal("parse -as-of", err)
		}
		asOf = parsed
	}

	pool := connect(ctx, cfg)
	defer pool.Close()
	accountRepo := accounts.NewRepository(pool)
	activityRepo := reports.NewActivityRepository(pool)
	service := reports.NewService(accountRepo, activityRepo, society.NewRepository(pool), time.Month(cfg.FYStartMonth))

	tb, err := service.GetTrialBalance(ctx, *societyID, asOf)
	if err != nil {
		fatal("trial balance", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tNAME\tDEBIT\tCREDIT")
	for _, row := range tb.Rows {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\n", row.Code, row.Name, row.Debit, row.Credit)
	}
	fmt.Fprintf(w, "\tTOTAL\t%.2f\t%.2f\n", tb.TotalDebit, tb.TotalCredit)
	_ = w.Flush()
	if !tb.IsBalanced {
		fmt.Fprintf(os.Stderr, "societyctl: trial balance is OFF by %.2f\n", tb.TotalDebit-tb.TotalCredit)
		os.Exit(1)
	}
	fmt.Println("trial balance is balanced")
}

func runBalanceSheet(ctx context.Context, cfg *app.Config, args []string) {
	fs := flag.NewFlagSet("balance-sheet", flag.ExitOnError)
	societyID := fs.Int64("society", 0, "society id")
	_ = fs.Parse(args)
	if *societyID == 0 {
		fatal("balance-sheet", fmt.Errorf("-society is required"))
	}

	pool := connect(ctx, cfg)
	defer pool.Close()
	accountRepo := accounts.NewRepository(pool)
	activityRepo := reports.NewActivityRepository(pool)
	service := reports.NewService(accountRepo, activityRepo, society.NewRepository(pool), time.Month(cfg.FYStartMonth))

	bs, err := service.ValidateBalanceSheet(ctx, *societyID)
	if err != nil {
		fatal("balance sheet", err)
	}
	fmt.Printf("assets:              %.2f\n", bs.Assets.Total)
	fmt.Printf("liabilities+capital: %.2f\n", bs.Liabilities.Total+bs.Equity.Total)
	if bs.IsBalanced {
		fmt.Println("balance sheet is balanced")
		return
	}
	fmt.Printf("difference:          %.2f (post adjustment to account %s)\n", bs.Difference, bs.SuggestedAccount)
	os.Exit(1)
}

func runReconcile(ctx context.Context, cfg *app.Config, args []string) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	societyID := fs.Int64("society", 0, "society id")
	_ = fs.Parse(args)
	if *societyID == 0 {
		fatal("reconcile", fmt.Errorf("-society is required"))
	}

	pool := connect(ctx, cfg)
	defer pool.Close()
	service := accounts.NewService(accounts.NewRepository(pool), shared.NewAuditLogger(pool))

	drifts, err := service.Reconcile(ctx, *societyID)
	if err != nil {
		fatal("reconcile", err)
	}
	if len(drifts) == 0 {
		fmt.Println("all account balances match the ledger")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tSTORED\tCOMPUTED")
	for _, drift := range drifts {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\n", drift.Code, drift.Stored, drift.Computed)
	}
	_ = w.Flush()
	os.Exit(1)
}

func billingService(ctx context.Context, cfg *app.Config, pool *pgxpool.Pool) *billing.Service {
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		fatal("connect redis", err)
	}
	audit := shared.NewAuditLogger(pool)
	societyRepo := society.NewRepository(pool)
	journalRepo := journals.NewRepository(pool)
	sequencer := journals.NewSequencer(pool)
	guard := journals.NewDateLock(cfg.PostingLockMonths)
	journalService := journals.NewService(journalRepo, sequencer, societyRepo, audit, guard)
	lock := shared.NewLock(redisClient, cfg.BillingLockTTL)
	return billing.NewService(billing.NewRepository(pool), societyRepo, societyRepo, journalService, journalRepo, lock, sequencer, audit)
}

func periodFlags(fs *flag.FlagSet) (*int64, *int, *int) {
	societyID := fs.Int64("society", 0, "society id")
	now := time.Now().UTC()
	month := fs.Int("month", int(now.Month()), "billing month (1-12)")
	year := fs.Int("year", now.Year(), "billing year")
	return societyID, month, year
}

func runGenerateBills(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("generate-bills", flag.ExitOnError)
	societyID, month, year := periodFlags(fs)
	_ = fs.Parse(args)
	if *societyID == 0 {
		fatal("generate-bills", fmt.Errorf("-society is required"))
	}

	pool := connect(ctx, cfg)
	defer pool.Close()
	service := billingService(ctx, cfg, pool)

	bills, err := service.GenerateBills(ctx, *societyID, *month, *year, billing.Overrides{})
	if err != nil {
		fatal("generate bills", err)
	}
	logger.Info("bills generated", slog.Int("count", len(bills)))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FLAT\tBILL\tAMOUNT\tARREARS\tPAYABLE")
	for _, bill := range bills {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%.2f\n", bill.FlatNumber, bill.BillNumber, bill.Amount, bill.Arrears, bill.TotalPayable)
	}
	_ = w.Flush()
}

func runPostBills(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("post-bills", flag.ExitOnError)
	societyID, month, year := periodFlags(fs)
	_ = fs.Parse(args)
	if *societyID == 0 {
		fatal("post-bills", fmt.Errorf("-society is required"))
	}

	pool := connect(ctx, cfg)
	defer pool.Close()
	service := billingService(ctx, cfg, pool)

	entry, err := service.PostBills(ctx, *societyID, *month, *year, 0)
	if err != nil {
		fatal("post bills", err)
	}
	logger.Info("bills posted",
		slog.String("entry_number", entry.EntryNumber),
		slog.Float64("total", entry.TotalDebit))
	fmt.Printf("posted %s for %.2f\n", entry.EntryNumber, entry.TotalDebit)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) {
	fs := flag.NewFlagSet("jobs", flag.ExitOnError)
	trigger := fs.String("trigger", "", "job to enqueue (billing:cycle, gl:integrity)")
	societyID := fs.Int64("society", 0, "society id for -trigger")
	month := fs.Int("month", 0, "billing month for billing:cycle")
	year := fs.Int("year", 0, "billing year for billing:cycle")
	autoPost := fs.Bool("auto-post", false, "post generated bills in the same run")
	stats := fs.Bool("stats", false, "print queue statistics")
	_ = fs.Parse(args)

	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fatal("jobs cli", err)
	}
	defer func() { _ = jobsCLI.Close() }()

	if *trigger != "" {
		info, err := jobsCLI.Trigger(ctx, *trigger, *societyID, *month, *year, *autoPost)
		if err != nil {
			fatal("trigger job", err)
		}
		fmt.Printf("enqueued %s (%s)\n", info.Type, info.ID)
		return
	}
	if *stats {
		queueStats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fatal("queue stats", err)
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			queueStats.Queue, queueStats.Pending, queueStats.Active, queueStats.Scheduled, queueStats.Retry)
		return
	}
	fmt.Fprintln(os.Stderr, "societyctl jobs: pass -trigger or -stats")
	os.Exit(2)
}
