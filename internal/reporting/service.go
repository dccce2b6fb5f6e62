package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Service answers listing and aggregate queries. Aggregates are cached per
// company until the next committed posting bumps the company's version.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires a Repository with a Cache helper. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger.With(slog.String("component", "reporting")), now: time.Now}
}

// WithClock overrides the clock used for status derivation and aging.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Invalidate drops every cached report of the company.
func (s *Service) Invalidate(ctx context.Context, company string) error {
	return s.cache.Bump(ctx, ledger.NormalizeCode(company))
}

func (s *Service) today() time.Time {
	return ledger.DateOnly(s.now().UTC())
}

func pageOf[T any](f ListFilter, recs []Record, conv func(Record) T) Page[T] {
	items := make([]T, 0, len(recs))
	total := 0
	for _, rec := range recs {
		items = append(items, conv(rec))
		if total == 0 {
			total = int(toInt64(rec["total_count"]))
		}
	}
	return Page[T]{Items: items, Pagination: shared.NewPagination(f.Page, f.PerPage, total)}
}

// ListSalesInvoices lists sales invoices newest first.
func (s *Service) ListSalesInvoices(ctx context.Context, f ListFilter) (Page[InvoiceRow], error) {
	f.normalize()
	recs, err := s.repo.SalesInvoices(ctx, f)
	if err != nil {
		return Page[InvoiceRow]{}, fmt.Errorf("reporting: sales invoices: %w", err)
	}
	asOf := s.today()
	return pageOf(f, recs, func(rec Record) InvoiceRow { return invoiceRow(rec, asOf) }), nil
}

// ListPurchaseInvoices lists purchase invoices newest first.
func (s *Service) ListPurchaseInvoices(ctx context.Context, f ListFilter) (Page[InvoiceRow], error) {
	f.normalize()
	recs, err := s.repo.PurchaseInvoices(ctx, f)
	if err != nil {
		return Page[InvoiceRow]{}, fmt.Errorf("reporting: purchase invoices: %w", err)
	}
	asOf := s.today()
	return pageOf(f, recs, func(rec Record) InvoiceRow { return invoiceRow(rec, asOf) }), nil
}

func invoiceRow(rec Record, asOf time.Time) InvoiceRow {
	row := InvoiceRow{
		ID:          toInt64(rec["id"]),
		Number:      toString(rec["number"]),
		InvoiceDate: toTime(rec["invoice_date"]),
		DueDate:     toTime(rec["due_date"]),
		PartyCode:   toString(rec["party_code"]),
		PartyName:   toString(rec["party_name"]),
		Settlement:  ledger.Settlement(toString(rec["settlement"])),
		TotalAmount: toDecimal(rec["total_amount"]),
		BalanceDue:  toDecimal(rec["balance_due"]),
		Voided:      toBool(rec["voided"]),
	}
	row.Status = ledger.DeriveInvoiceStatus(row.TotalAmount, row.BalanceDue, row.DueDate, row.Voided, asOf)
	return row
}

// ListProducts lists products with their stock level.
func (s *Service) ListProducts(ctx context.Context, f ListFilter) (Page[ProductRow], error) {
	f.normalize()
	recs, err := s.repo.Products(ctx, f)
	if err != nil {
		return Page[ProductRow]{}, fmt.Errorf("reporting: products: %w", err)
	}
	return pageOf(f, recs, productRow), nil
}

func productRow(rec Record) ProductRow {
	row := ProductRow{
		Code:          toString(rec["code"]),
		Name:          toString(rec["name"]),
		Category:      toString(rec["category"]),
		UnitPrice:     toDecimal(rec["unit_price"]),
		CurrentStock:  toInt64(rec["current_stock"]),
		MinStockLevel: toInt64(rec["min_stock_level"]),
		IsActive:      toBool(rec["is_active"]),
	}
	row.StockLevel = ledger.ClassifyStock(row.CurrentStock, row.MinStockLevel)
	return row
}

// ListCustomers lists customers with their outstanding balance.
func (s *Service) ListCustomers(ctx context.Context, f ListFilter) (Page[CustomerRow], error) {
	f.normalize()
	recs, err := s.repo.Customers(ctx, f)
	if err != nil {
		return Page[CustomerRow]{}, fmt.Errorf("reporting: customers: %w", err)
	}
	return pageOf(f, recs, func(rec Record) CustomerRow {
		return CustomerRow{
			Code:               toString(rec["code"]),
			Name:               toString(rec["name"]),
			CreditLimit:        toDecimal(rec["credit_limit"]),
			PaymentTermsDays:   toInt64(rec["payment_terms_days"]),
			OutstandingBalance: toDecimal(rec["outstanding_balance"]),
			IsActive:           toBool(rec["is_active"]),
		}
	}), nil
}

// ListCashLedger lists cash entries newest first with the running balance
// after each entry.
func (s *Service) ListCashLedger(ctx context.Context, f ListFilter) (Page[CashRow], error) {
	f.normalize()
	recs, err := s.repo.CashEntries(ctx, f)
	if err != nil {
		return Page[CashRow]{}, fmt.Errorf("reporting: cash entries: %w", err)
	}
	page := pageOf(f, recs, func(rec Record) CashRow {
		return CashRow{
			ID:          toInt64(rec["id"]),
			EntryDate:   toTime(rec["entry_date"]),
			Type:        toString(rec["entry_type"]),
			Description: toString(rec["description"]),
			Debit:       toDecimal(rec["debit"]),
			Credit:      toDecimal(rec["credit"]),
		}
	})
	if len(page.Items) == 0 {
		return page, nil
	}
	top := page.Items[0]
	rec, err := s.repo.CashBalanceThrough(ctx, f.CompanyCode, top.EntryDate, top.ID)
	if err != nil {
		return Page[CashRow]{}, fmt.Errorf("reporting: cash balance: %w", err)
	}
	balance := toDecimal(rec["balance"])
	for i := range page.Items {
		page.Items[i].Balance = balance
		balance = balance.Sub(page.Items[i].Debit).Add(page.Items[i].Credit)
	}
	return page, nil
}

// ListExpenses lists expenses newest first.
func (s *Service) ListExpenses(ctx context.Context, f ListFilter) (Page[ExpenseRow], error) {
	f.normalize()
	recs, err := s.repo.Expenses(ctx, f)
	if err != nil {
		return Page[ExpenseRow]{}, fmt.Errorf("reporting: expenses: %w", err)
	}
	return pageOf(f, recs, func(rec Record) ExpenseRow {
		return ExpenseRow{
			ID:          toInt64(rec["id"]),
			Number:      toString(rec["number"]),
			ExpenseDate: toTime(rec["expense_date"]),
			HeadCode:    toString(rec["head_code"]),
			HeadName:    toString(rec["head_name"]),
			Amount:      toDecimal(rec["amount"]),
			Remarks:     toString(rec["remarks"]),
		}
	}), nil
}

func (s *Service) cached(ctx context.Context, company string, dest any, loader func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.BuildKey(ctx, company, parts...)
	if err != nil {
		s.logger.Warn("report cache key", slog.String("company", company), slog.Any("error", err))
		return load(ctx, loader, dest)
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}

func rangeToken(rg Range) []string {
	return []string{dateToken(rg.From), dateToken(rg.To)}
}

func dateToken(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}

func (rg *Range) normalize() {
	rg.CompanyCode = ledger.NormalizeCode(rg.CompanyCode)
}

// SalesSummary totals non-void sales and returns in the range.
func (s *Service) SalesSummary(ctx context.Context, rg Range) (SalesSummary, error) {
	rg.normalize()
	var out SalesSummary
	err := s.cached(ctx, rg.CompanyCode, &out, func(ctx context.Context) (any, error) {
		rec, err := s.repo.SalesSummary(ctx, rg)
		if err != nil {
			return nil, err
		}
		sum := SalesSummary{
			InvoiceCount: toInt64(rec["invoice_count"]),
			Subtotal:     toDecimal(rec["subtotal"]),
			TaxAmount:    toDecimal(rec["tax_amount"]),
			TotalAmount:  toDecimal(rec["total_amount"]),
			Returns:      toDecimal(rec["returns"]),
			Outstanding:  toDecimal(rec["outstanding"]),
		}
		sum.NetSales = sum.TotalAmount.Sub(sum.Returns)
		return sum, nil
	}, append([]string{"sales_summary"}, rangeToken(rg)...)...)
	if err != nil {
		return SalesSummary{}, fmt.Errorf("reporting: sales summary: %w", err)
	}
	return out, nil
}

// SalesByCustomer ranks customers by sales in the range.
func (s *Service) SalesByCustomer(ctx context.Context, rg Range) ([]PartyTotal, error) {
	rg.normalize()
	out := []PartyTotal{}
	err := s.cached(ctx, rg.CompanyCode, &out, func(ctx context.Context) (any, error) {
		recs, err := s.repo.SalesByCustomer(ctx, rg)
		if err != nil {
			return nil, err
		}
		rows := make([]PartyTotal, 0, len(recs))
		for _, rec := range recs {
			rows = append(rows, PartyTotal{
				Code:         toString(rec["code"]),
				Name:         toString(rec["name"]),
				InvoiceCount: toInt64(rec["invoice_count"]),
				TotalAmount:  toDecimal(rec["total_amount"]),
			})
		}
		return rows, nil
	}, append([]string{"sales_by_customer"}, rangeToken(rg)...)...)
	if err != nil {
		return nil, fmt.Errorf("reporting: sales by customer: %w", err)
	}
	return out, nil
}

// SalesByProduct ranks products by sales in the range.
func (s *Service) SalesByProduct(ctx context.Context, rg Range) ([]ProductTotal, error) {
	rg.normalize()
	out := []ProductTotal{}
	err := s.cached(ctx, rg.CompanyCode, &out, func(ctx context.Context) (any, error) {
		recs, err := s.repo.SalesByProduct(ctx, rg)
		if err != nil {
			return nil, err
		}
		rows := make([]ProductTotal, 0, len(recs))
		for _, rec := range recs {
			rows = append(rows, ProductTotal{
				Code:        toString(rec["code"]),
				Name:        toString(rec["name"]),
				Quantity:    toInt64(rec["quantity"]),
				TotalAmount: toDecimal(rec["total_amount"]),
			})
		}
		return rows, nil
	}, append([]string{"sales_by_product"}, rangeToken(rg)...)...)
	if err != nil {
		return nil, fmt.Errorf("reporting: sales by product: %w", err)
	}
	return out, nil
}

// ExpensesByHead totals expenses per head in the range.
func (s *Service) ExpensesByHead(ctx context.Context, rg Range) ([]HeadTotal, error) {
	rg.normalize()
	out := []HeadTotal{}
	err := s.cached(ctx, rg.CompanyCode, &out, func(ctx context.Context) (any, error) {
		recs, err := s.repo.ExpensesByHead(ctx, rg)
		if err != nil {
			return nil, err
		}
		rows := make([]HeadTotal, 0, len(recs))
		for _, rec := range recs {
			rows = append(rows, HeadTotal{
				Code:        toString(rec["code"]),
				Name:        toString(rec["name"]),
				Count:       toInt64(rec["count"]),
				TotalAmount: toDecimal(rec["total_amount"]),
			})
		}
		return rows, nil
	}, append([]string{"expenses_by_head"}, rangeToken(rg)...)...)
	if err != nil {
		return nil, fmt.Errorf("reporting: expenses by head: %w", err)
	}
	return out, nil
}

// CashFlow reports opening balance, inflow, outflow and closing balance.
func (s *Service) CashFlow(ctx context.Context, rg Range) (CashFlow, error) {
	rg.normalize()
	var out CashFlow
	err := s.cached(ctx, rg.CompanyCode, &out, func(ctx context.Context) (any, error) {
		opening, err := s.repo.CashBalanceBefore(ctx, rg.CompanyCode, rg.From)
		if err != nil {
			return nil, err
		}
		recs, err := s.repo.CashFlowByType(ctx, rg)
		if err != nil {
			return nil, err
		}
		flow := CashFlow{Opening: decimal.Zero, ByType: make([]CashFlowLine, 0, len(recs))}
		if !rg.From.IsZero() {
			flow.Opening = toDecimal(opening["balance"])
		}
		for _, rec := range recs {
			line := CashFlowLine{
				Type:    toString(rec["type"]),
				Inflow:  toDecimal(rec["inflow"]),
				Outflow: toDecimal(rec["outflow"]),
			}
			flow.Inflow = flow.Inflow.Add(line.Inflow)
			flow.Outflow = flow.Outflow.Add(line.Outflow)
			flow.ByType = append(flow.ByType, line)
		}
		flow.Closing = flow.Opening.Add(flow.Inflow).Sub(flow.Outflow)
		return flow, nil
	}, append([]string{"cash_flow"}, rangeToken(rg)...)...)
	if err != nil {
		return CashFlow{}, fmt.Errorf("reporting: cash flow: %w", err)
	}
	return out, nil
}

// ReceivablesAging buckets open customer invoices by days past due.
func (s *Service) ReceivablesAging(ctx context.Context, company string, asOf time.Time) (Aging, error) {
	company = ledger.NormalizeCode(company)
	if asOf.IsZero() {
		asOf = s.today()
	}
	asOf = ledger.DateOnly(asOf)
	var out Aging
	err := s.cached(ctx, company, &out, func(ctx context.Context) (any, error) {
		recs, err := s.repo.OpenReceivables(ctx, company)
		if err != nil {
			return nil, err
		}
		return buildAging(recs, asOf), nil
	}, "aging_ar", dateToken(asOf))
	if err != nil {
		return Aging{}, fmt.Errorf("reporting: receivables aging: %w", err)
	}
	return out, nil
}

func emptyBuckets() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(AgingBuckets))
	for _, b := range AgingBuckets {
		out[b] = decimal.Zero
	}
	return out
}

func buildAging(recs []Record, asOf time.Time) Aging {
	aging := Aging{AsOf: asOf, Customers: []AgingRow{}, Totals: emptyBuckets()}
	byCode := make(map[string]*AgingRow)
	var order []string
	for _, rec := range recs {
		balance := toDecimal(rec["balance_due"])
		if !balance.IsPositive() {
			continue
		}
		code := toString(rec["code"])
		row, ok := byCode[code]
		if !ok {
			row = &AgingRow{Code: code, Name: toString(rec["name"]), Buckets: emptyBuckets()}
			byCode[code] = row
			order = append(order, code)
		}
		due := ledger.DateOnly(toTime(rec["due_date"]))
		bucket := bucketFor(int(asOf.Sub(due).Hours() / 24))
		row.Buckets[bucket] = row.Buckets[bucket].Add(balance)
		row.Total = row.Total.Add(balance)
		aging.Totals[bucket] = aging.Totals[bucket].Add(balance)
		aging.Total = aging.Total.Add(balance)
	}
	sort.Strings(order)
	for _, code := range order {
		aging.Customers = append(aging.Customers, *byCode[code])
	}
	return aging
}

// Dashboard returns the headline figures as of a date.
func (s *Service) Dashboard(ctx context.Context, company string, asOf time.Time) (Dashboard, error) {
	company = ledger.NormalizeCode(company)
	if asOf.IsZero() {
		asOf = s.today()
	}
	asOf = ledger.DateOnly(asOf)
	var out Dashboard
	err := s.cached(ctx, company, &out, func(ctx context.Context) (any, error) {
		rec, err := s.repo.DashboardTotals(ctx, company, asOf)
		if err != nil {
			return nil, err
		}
		return Dashboard{
			AsOf:             asOf,
			SalesToday:       toDecimal(rec["sales_today"]),
			SalesMonth:       toDecimal(rec["sales_month"]),
			ExpensesMonth:    toDecimal(rec["expenses_month"]),
			Receivables:      toDecimal(rec["receivables"]),
			Payables:         toDecimal(rec["payables"]),
			CashBalance:      toDecimal(rec["cash_balance"]),
			OverdueInvoices:  toInt64(rec["overdue_invoices"]),
			LowStockProducts: toInt64(rec["low_stock_products"]),
			ActiveCustomers:  toInt64(rec["active_customers"]),
			InventoryAtCost:  toDecimal(rec["inventory_at_cost"]),
		}, nil
	}, "dashboard", dateToken(asOf))
	if err != nil {
		return Dashboard{}, fmt.Errorf("reporting: dashboard: %w", err)
	}
	return out, nil
}

// LowStock lists active products at or below their minimum level.
func (s *Service) LowStock(ctx context.Context, company string) ([]ProductRow, error) {
	recs, err := s.repo.LowStock(ctx, ledger.NormalizeCode(company))
	if err != nil {
		return nil, fmt.Errorf("reporting: low stock: %w", err)
	}
	rows := make([]ProductRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, productRow(rec))
	}
	return rows, nil
}
