package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-distribution/internal/jobs"
	"github.com/odyssey-erp/odyssey-distribution/internal/reporting"
)

// DashboardSource computes a company dashboard, caching it on the way.
type DashboardSource interface {
	Dashboard(ctx context.Context, company string, asOf time.Time) (reporting.Dashboard, error)
}

// CompanyLister lists the companies present in the ledger.
type CompanyLister interface {
	Companies(ctx context.Context) ([]string, error)
}

// WarmupJob pre-populates the report cache so the first dashboard request
// of the day is served from Redis.
type WarmupJob struct {
	Reports   DashboardSource
	Companies CompanyLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewWarmupJob wires the warmup handler.
func NewWarmupJob(reports DashboardSource, companies CompanyLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{
		Reports:   reports,
		Companies: companies,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle warms every requested company. A failing company is logged and
// skipped; the task fails only when none could be warmed.
func (j *WarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Reports == nil {
		return errors.New("report warmup: handler not configured")
	}
	var payload WarmupPayload
	if err := decode(t, &payload); err != nil {
		return fmt.Errorf("report warmup: payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskReportWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	companies := payload.Companies
	if len(companies) == 0 && j.Companies != nil {
		var err error
		if companies, err = j.Companies.Companies(ctx); err != nil {
			return fmt.Errorf("report warmup: companies: %w", err)
		}
	}
	logger := loggerOr(j.Logger).With(slog.String("job", TaskReportWarmup))
	asOf := j.clock()
	warmed := 0
	var lastErr error
	for _, company := range companies {
		if _, err := j.Reports.Dashboard(ctx, company, asOf); err != nil {
			lastErr = err
			logger.Warn("dashboard warmup failed", slog.String("company", company), slog.Any("error", err))
			continue
		}
		warmed++
	}
	logger.Info("report warmup completed", slog.Int("companies", len(companies)), slog.Int("warmed", warmed))
	if warmed == 0 && lastErr != nil {
		return fmt.Errorf("report warmup: %w", lastErr)
	}
	return nil
}
