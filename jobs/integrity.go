package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-distribution/internal/integrity"
	jobmetrics "github.com/odyssey-erp/odyssey-distribution/internal/jobs"
	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

// IntegrityChecker is satisfied by integrity.Service.
type IntegrityChecker interface {
	Check(ctx context.Context, company string) (integrity.Report, error)
	CheckAll(ctx context.Context) ([]integrity.Report, error)
}

// IntegrityJob runs the ledger integrity check from the queue.
type IntegrityJob struct {
	Checker IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityJob wires the integrity handler.
func NewIntegrityJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Checker: checker, Logger: logger, Metrics: metrics}
}

// Handle executes one integrity run. Drift is reported through logs and
// metrics; the task itself only fails when the check could not run.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Checker == nil {
		return errors.New("integrity: handler not configured")
	}
	var payload IntegrityPayload
	if err := decode(t, &payload); err != nil {
		return fmt.Errorf("integrity: payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := loggerOr(j.Logger).With(slog.String("job", TaskLedgerIntegrity))
	var (
		reports []integrity.Report
		err     error
	)
	if company := ledger.NormalizeCode(payload.CompanyCode); company != "" {
		var report integrity.Report
		report, err = j.Checker.Check(ctx, company)
		reports = []integrity.Report{report}
	} else {
		reports, err = j.Checker.CheckAll(ctx)
	}
	if err != nil {
		logger.Error("integrity check failed", slog.Any("error", err))
		return err
	}
	issues := 0
	for _, r := range reports {
		issues += r.Issues()
	}
	logger.Info("integrity check completed", slog.Int("companies", len(reports)), slog.Int("issues", issues))
	return nil
}

func loggerOr(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
