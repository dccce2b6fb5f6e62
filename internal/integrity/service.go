package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Issue kinds used as metric labels.
const (
	KindCustomer = "customer"
	KindSupplier = "supplier"
	KindStock    = "stock"
	KindCash     = "cash"
)

// IssueRecorder counts mismatches found by a check.
type IssueRecorder interface {
	AddIntegrityIssues(kind, company string, count int)
}

// Service recomputes stored balances from their source documents and reports
// every row that disagrees. It never repairs anything.
type Service struct {
	repo    Repository
	metrics IssueRecorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service. metrics may be nil.
func NewService(repo Repository, metrics IssueRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "integrity")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock stamped on reports.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Check inspects one company.
func (s *Service) Check(ctx context.Context, company string) (Report, error) {
	report := Report{CompanyCode: company, CheckedAt: s.now()}

	customers, err := s.repo.CustomerBalances(ctx, company)
	if err != nil {
		return Report{}, fmt.Errorf("integrity: customer balances: %w", err)
	}
	report.CustomerDrift = drifted(customers)

	suppliers, err := s.repo.SupplierBalances(ctx, company)
	if err != nil {
		return Report{}, fmt.Errorf("integrity: supplier balances: %w", err)
	}
	report.SupplierDrift = drifted(suppliers)

	stock, err := s.repo.StockBalances(ctx, company)
	if err != nil {
		return Report{}, fmt.Errorf("integrity: stock balances: %w", err)
	}
	for _, b := range stock {
		if b.Stored != b.FromMovements {
			report.StockDrift = append(report.StockDrift, b)
		}
	}

	cash, err := s.repo.CashCounts(ctx, company)
	if err != nil {
		return Report{}, fmt.Errorf("integrity: cash counts: %w", err)
	}
	for _, c := range cash {
		if c.Want != c.Got {
			report.CashMismatches = append(report.CashMismatches, c)
		}
	}

	s.record(report)
	return report, nil
}

// CheckAll inspects every company known to the repository. A failure on one
// company aborts the run.
func (s *Service) CheckAll(ctx context.Context) ([]Report, error) {
	companies, err := s.repo.Companies(ctx)
	if err != nil {
		return nil, fmt.Errorf("integrity: companies: %w", err)
	}
	reports := make([]Report, 0, len(companies))
	for _, company := range companies {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := s.Check(ctx, company)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (s *Service) record(r Report) {
	if s.metrics != nil {
		s.metrics.AddIntegrityIssues(KindCustomer, r.CompanyCode, len(r.CustomerDrift))
		s.metrics.AddIntegrityIssues(KindSupplier, r.CompanyCode, len(r.SupplierDrift))
		s.metrics.AddIntegrityIssues(KindStock, r.CompanyCode, len(r.StockDrift))
		s.metrics.AddIntegrityIssues(KindCash, r.CompanyCode, len(r.CashMismatches))
	}
	if r.Clean() {
		s.logger.Info("ledger consistent", slog.String("company", r.CompanyCode))
		return
	}
	s.logger.Warn("ledger drift detected",
		slog.String("company", r.CompanyCode),
		slog.Int("customers", len(r.CustomerDrift)),
		slog.Int("suppliers", len(r.SupplierDrift)),
		slog.Int("stock", len(r.StockDrift)),
		slog.Int("cash", len(r.CashMismatches)),
	)
	for _, b := range r.CustomerDrift {
		s.logger.Warn("customer balance drift", slog.String("company", r.CompanyCode), slog.String("customer", b.Code),
			slog.String("stored", b.Stored.StringFixed(2)), slog.String("expected", b.Expected.StringFixed(2)))
	}
	for _, b := range r.SupplierDrift {
		s.logger.Warn("supplier balance drift", slog.String("company", r.CompanyCode), slog.String("supplier", b.Code),
			slog.String("stored", b.Stored.StringFixed(2)), slog.String("expected", b.Expected.StringFixed(2)))
	}
	for _, b := range r.StockDrift {
		s.logger.Warn("stock drift", slog.String("company", r.CompanyCode), slog.String("product", b.ProductCode),
			slog.Int64("stored", b.Stored), slog.Int64("from_movements", b.FromMovements))
	}
	for _, c := range r.CashMismatches {
		s.logger.Warn("cash rows mismatch", slog.String("company", r.CompanyCode), slog.String("document", c.Number),
			slog.String("source_type", string(c.SourceType)), slog.Int("want", c.Want), slog.Int("got", c.Got))
	}
}

func drifted(rows []PartyBalance) []PartyBalance {
	var out []PartyBalance
	for _, b := range rows {
		if !b.Drift().IsZero() {
			out = append(out, b)
		}
	}
	return out
}
