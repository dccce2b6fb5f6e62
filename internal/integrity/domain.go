package integrity

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

// PartyBalance pairs a stored outstanding balance with the value recomputed
// from documents.
type PartyBalance struct {
	Code     string          `json:"code"`
	Stored   decimal.Decimal `json:"stored"`
	Expected decimal.Decimal `json:"expected"`
}

// Drift is Stored - Expected.
func (p PartyBalance) Drift() decimal.Decimal {
	return p.Stored.Sub(p.Expected)
}

// StockBalance pairs current_stock with the sum of the product's movements.
type StockBalance struct {
	ProductCode   string `json:"product_code"`
	Stored        int64  `json:"stored"`
	FromMovements int64  `json:"from_movements"`
}

// CashCount is the number of cash book rows a money-moving document should
// have and the number it has.
type CashCount struct {
	SourceType ledger.DocumentType `json:"source_type"`
	SourceID   int64               `json:"source_id"`
	Number     string              `json:"number"`
	Want       int                 `json:"want"`
	Got        int                 `json:"got"`
}

// Report collects every mismatch found for one company.
type Report struct {
	CompanyCode    string         `json:"company_code"`
	CheckedAt      time.Time      `json:"checked_at"`
	CustomerDrift  []PartyBalance `json:"customer_drift"`
	SupplierDrift  []PartyBalance `json:"supplier_drift"`
	StockDrift     []StockBalance `json:"stock_drift"`
	CashMismatches []CashCount    `json:"cash_mismatches"`
}

// Clean reports whether no mismatch was found.
func (r Report) Clean() bool {
	return len(r.CustomerDrift) == 0 && len(r.SupplierDrift) == 0 && len(r.StockDrift) == 0 && len(r.CashMismatches) == 0
}

// Issues counts every mismatch in the report.
func (r Report) Issues() int {
	return len(r.CustomerDrift) + len(r.SupplierDrift) + len(r.StockDrift) + len(r.CashMismatches)
}

// Repository recomputes ledger projections from their source rows.
type Repository interface {
	Companies(ctx context.Context) ([]string, error)
	CustomerBalances(ctx context.Context, company string) ([]PartyBalance, error)
	SupplierBalances(ctx context.Context, company string) ([]PartyBalance, error)
	StockBalances(ctx context.Context, company string) ([]StockBalance, error)
	CashCounts(ctx context.Context, company string) ([]CashCount, error)
}
