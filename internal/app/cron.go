package app

import (
	"context"
	"time"

	pkgcron "github.com/paperdeck/core/internal/pkg/cron"
	"go.uber.org/zap"
)

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, deps *services, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")

	sched.Register(pkgcron.Job{
		Name:        "cleanup_batch_runs",
		Description: "remove finished batch run records older than 7 days",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			cutoff := time.Now().AddDate(0, 0, -7).UnixMilli()
			if err := deps.runs.DeleteFinished(ctx, cutoff); err != nil {
				cronLogger.Warn("batch run cleanup failed", zap.Error(err))
				return err
			}
			cronLogger.Info("batch run cleanup done")
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "ocr_health_probe",
		Description: "probe the OCR backend when extraction is enabled",
		Interval:    time.Hour,
		Fn: func(ctx context.Context) error {
			cfg, err := deps.settings.Get()
			if err != nil {
				return err
			}
			if !cfg.OCR.Enable || cfg.OCR.Endpoint == "" {
				return nil
			}
			if err := deps.ocr.Health(ctx); err != nil {
				cronLogger.Warn("ocr backend unhealthy", zap.Error(err))
				return err
			}
			return nil
		},
	})
}
