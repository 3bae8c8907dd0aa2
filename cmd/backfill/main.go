// Command backfill runs a one-shot, full-range sync of one account or of
// every linked account, then prints the batch report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"bilancio/internal/config"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/provider"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

func main() {
	_ = godotenv.Load()

	var (
		accountExtID = flag.String("account", "", "external account id to sync (default: all accounts)")
		fromStr      = flag.String("from", "", "start date YYYY-MM-DD (default: incremental)")
		toStr        = flag.String("to", "", "end date YYYY-MM-DD (default: today)")
	)
	flag.Parse()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", "error", err)
		os.Exit(1)
	}

	from, to, err := parseRange(*fromStr, *toStr)
	if err != nil {
		logger.Error("invalid date range", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	providerClient := provider.NewHTTPClient(provider.HTTPConfig{
		BaseURL:  cfg.ProviderBaseURL,
		ClientID: cfg.ProviderClientID,
		Secret:   cfg.ProviderSecret,
		Timeout:  cfg.ProviderTimeout,
	}, logger)

	syncCfg := services.DefaultSyncConfig()
	syncCfg.PageDelay = cfg.SyncPageDelay
	syncCfg.Concurrency = cfg.SyncConcurrency

	pipeline := services.NewSyncPipeline(repo, repo, providerClient, syncCfg, logger)

	ctx := context.Background()

	var report services.BatchReport
	if *accountExtID != "" {
		account, err := repo.GetAccountByExternalID(ctx, *accountExtID)
		if err != nil {
			logger.Error("account lookup failed", "external_id", *accountExtID, "error", err)
			os.Exit(1)
		}
		res, err := pipeline.SyncAccount(ctx, *account, from, to)
		if err != nil {
			res.Err = err
		}
		report = services.BatchReport{Results: []services.SyncResult{res}}
	} else {
		if report, err = pipeline.SyncAll(ctx); err != nil {
			logger.Error("batch sync failed", "error", err)
			os.Exit(1)
		}
	}

	printReport(report)
	if report.Failed() > 0 {
		os.Exit(1)
	}
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if fromStr != "" {
		if from, err = time.Parse("2006-01-02", fromStr); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse -from: %w", err)
		}
	}
	if toStr != "" {
		if to, err = time.Parse("2006-01-02", toStr); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse -to: %w", err)
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("-to is before -from")
	}
	return from, to, nil
}

func printReport(report services.BatchReport) {
	for _, res := range report.Results {
		status := "ok"
		if res.Err != nil {
			status = "failed: " + res.Err.Error()
		} else if res.Incomplete {
			status = "incomplete (offset ceiling)"
		}
		fmt.Printf("%-30s fetched=%-6d inserted=%-6d updated=%-6d skipped=%-4d %s\n",
			accountLabel(res.Account), res.Fetched, res.Inserted, res.Updated, res.Skipped, status)
	}
	fmt.Printf("accounts: %d succeeded, %d failed\n", report.Succeeded(), report.Failed())
}

func accountLabel(a core.Account) string {
	if a.Name != "" && a.Mask != "" {
		return fmt.Sprintf("%s (...%s)", a.Name, a.Mask)
	}
	return a.ExternalID
}
