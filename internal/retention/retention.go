// Package retention purges old archived feed items on a cron schedule.
// Besides the admin clear-all this is the only physical delete in the
// system.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"notifeed/pkg/config"
	"notifeed/pkg/logger"
	"notifeed/pkg/store"
)

const defaultCron = "0 3 * * *"
const defaultPeriod = 30 * 24 * time.Hour

// Start launches the retention scheduler if enabled. Returns a cancel
// func for the scheduler goroutine.
func Start(ctx context.Context, rc config.RetentionConfig) (context.CancelFunc, error) {
	if !rc.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}
	cronExpr := rc.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", rc.Cron)
	}
	logger.Info("retention_enabled", "cron", cronExpr, "period", rc.Period.Duration().String(), "dry_run", rc.DryRun)

	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, rc, cronExpr)
	return cancel, nil
}

func runScheduler(ctx context.Context, rc config.RetentionConfig, cronExpr string) {
	for {
		next, err := gronx.NextTick(cronExpr, false)
		if err != nil {
			logger.Error("retention_next_tick_failed", "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			if err := RunOnce(rc); err != nil {
				logger.Error("retention_run_failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single purge pass. Exported so an admin trigger or
// test can invoke it directly.
func RunOnce(rc config.RetentionConfig) error {
	period := rc.Period.Duration()
	if period <= 0 {
		period = defaultPeriod
	}
	cutoff := time.Now().Add(-period).UnixMilli()
	n, err := store.PurgeArchived(cutoff, rc.DryRun)
	if err != nil {
		return err
	}
	logger.Info("retention_run_done", "purged", n, "dry_run", rc.DryRun)
	return nil
}
