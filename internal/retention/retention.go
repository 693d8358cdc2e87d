// Package retention periodically purges failed optimistic actions that
// were never reverted: entries still carrying a pending state plus an
// error payload past the configured age. Purges go through the normal
// merge path, so the cache observes them like any other store change.
package retention

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adhocore/gronx"

	"reportdb/pkg/config"
	"reportdb/pkg/logger"
	"reportdb/pkg/store"
)

const defaultCron = "0 2 * * *"

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg config.RetentionConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "max_age", cfg.MaxAge.Duration().String())
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cfg, cronExpr)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured
// cron expression and sleeps until that time.
func runScheduler(ctx context.Context, cfg config.RetentionConfig, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if _, err := RunOnce(cfg); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce scans every action collection and purges stale failed
// optimistic actions, up to BatchSize entries per run. It returns the
// number of entries purged (or that would be purged under DryRun).
func RunOnce(cfg config.RetentionConfig) (int, error) {
	maxAge := cfg.MaxAge.Duration()
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 1000
	}
	cutoff := time.Now().UTC().Add(-maxAge).UnixNano()

	keys, err := store.ListActionKeys()
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, key := range keys {
		reportID := store.ReportIDFromKey(key)
		if reportID == "" {
			continue
		}
		coll, err := store.GetActions(reportID)
		if err != nil {
			logger.Warn("retention_read_failed", "key", key, "error", err)
			continue
		}
		patch := map[string]any{}
		for sk, a := range coll {
			if a.Pending == "" || len(a.Errors) == 0 {
				continue
			}
			if a.TS == 0 || a.TS > cutoff {
				continue
			}
			if _, err := strconv.ParseInt(sk, 10, 64); err != nil {
				continue
			}
			patch[sk] = nil
			purged++
			if purged >= batch {
				break
			}
		}
		if len(patch) == 0 {
			continue
		}
		if cfg.DryRun {
			logger.Info("retention_dry_run", "report", reportID, "stale", len(patch))
			continue
		}
		if err := store.Merge(key, patch); err != nil {
			logger.Error("retention_purge_failed", "report", reportID, "error", err)
			continue
		}
		logger.Info("retention_purged", "report", reportID, "entries", len(patch))
		if purged >= batch {
			break
		}
	}
	return purged, nil
}
