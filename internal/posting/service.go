package posting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/internal/observability"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier is told about every committed posting, typically to invalidate
// cached reports of the company.
type Notifier interface {
	Invalidate(ctx context.Context, company string) error
}

// MetricsObserver receives posting outcomes.
type MetricsObserver interface {
	ObservePosting(operation, outcome string, elapsed time.Duration)
	ObserveRetry(operation string)
}

// Service is the posting engine. Every operation runs in one ledger
// transaction and is retried once on a concurrency conflict.
type Service struct {
	store    ledger.Store
	audit    AuditPort
	notifier Notifier
	metrics  MetricsObserver
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// Dependencies groups the optional collaborators of Service.
type Dependencies struct {
	Audit    AuditPort
	Notifier Notifier
	Metrics  MetricsObserver
	Logger   *slog.Logger
}

// NewService builds Service.
func NewService(store ledger.Store, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		audit:    deps.Audit,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   logger.With(slog.String("component", "posting")),
		validate: shared.NewValidator(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for default document dates and void stamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) today() time.Time {
	return ledger.DateOnly(s.now())
}

// run executes fn in a ledger transaction, retrying once when the store
// reports a concurrency conflict. fn must only publish results through
// variables it overwrites on every attempt.
func (s *Service) run(ctx context.Context, op, company string, fn func(context.Context, ledger.Tx) error) error {
	start := time.Now()
	err := s.store.WithTx(ctx, fn)
	if errors.Is(err, ledger.ErrConcurrencyConflict) && ctx.Err() == nil {
		s.logger.Warn("posting conflict, retrying", slog.String("operation", op), slog.String("company", company))
		if s.metrics != nil {
			s.metrics.ObserveRetry(op)
		}
		err = s.store.WithTx(ctx, fn)
	}
	outcome := Outcome(err)
	if s.metrics != nil {
		s.metrics.ObservePosting(op, outcome, time.Since(start))
	}
	switch outcome {
	case observability.OutcomeRejected:
		s.logger.Info("posting rejected", slog.String("operation", op), slog.String("company", company), slog.Any("error", err))
	case observability.OutcomeConflict, observability.OutcomeFailed:
		s.logger.Error("posting failed", slog.String("operation", op), slog.String("company", company), slog.Any("error", err))
	}
	return err
}

// Outcome classifies a posting error for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeCommitted
	case errors.Is(err, ledger.ErrConcurrencyConflict):
		return observability.OutcomeConflict
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrStockInsufficient),
		errors.Is(err, ledger.ErrReturnExceedsInvoiced),
		errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrDuplicateRequest):
		return observability.OutcomeRejected
	default:
		return observability.OutcomeFailed
	}
}

// committed records the audit row and notifies listeners. The posting is
// already durable, so failures are only logged.
func (s *Service) committed(ctx context.Context, scope Scope, action, entity, entityID string, meta map[string]any) {
	s.logger.Info("posting committed", slog.String("operation", action), slog.String("company", scope.CompanyCode),
		slog.String("entity", entity), slog.String("entity_id", entityID))
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			CompanyCode: scope.CompanyCode,
			ActorID:     scope.ActorID,
			Action:      action,
			Entity:      entity,
			EntityID:    entityID,
			Meta:        meta,
			At:          s.now(),
		}); err != nil {
			s.logger.Warn("audit record", slog.String("operation", action), slog.Any("error", err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Invalidate(ctx, scope.CompanyCode); err != nil {
			s.logger.Warn("report cache invalidate", slog.String("company", scope.CompanyCode), slog.Any("error", err))
		}
	}
}

func (s *Service) check(input any) error {
	if err := s.validate.Struct(input); err != nil {
		return shared.ValidationError(err)
	}
	return nil
}
