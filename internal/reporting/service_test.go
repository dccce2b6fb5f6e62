package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type fakeRepo struct {
	sales       []Record
	cash        []Record
	through     Record
	throughArgs []any
	summary     Record
	summaryErr  error
	summaryHits int
	byCustomer  []Record
	flow        []Record
	opening     Record
	open        []Record
	dashboard   Record
	lowStock    []Record
	lastFilter  ListFilter
}

func (f *fakeRepo) SalesInvoices(_ context.Context, filter ListFilter) ([]Record, error) {
	f.lastFilter = filter
	return f.sales, nil
}

func (f *fakeRepo) PurchaseInvoices(context.Context, ListFilter) ([]Record, error) { return nil, nil }
func (f *fakeRepo) Products(context.Context, ListFilter) ([]Record, error)         { return nil, nil }
func (f *fakeRepo) Customers(context.Context, ListFilter) ([]Record, error)        { return nil, nil }
func (f *fakeRepo) Expenses(context.Context, ListFilter) ([]Record, error)         { return nil, nil }

func (f *fakeRepo) CashEntries(_ context.Context, filter ListFilter) ([]Record, error) {
	f.lastFilter = filter
	return f.cash, nil
}

func (f *fakeRepo) CashBalanceThrough(_ context.Context, company string, date time.Time, id int64) (Record, error) {
	f.throughArgs = []any{company, date, id}
	return f.through, nil
}

func (f *fakeRepo) SalesSummary(context.Context, Range) (Record, error) {
	f.summaryHits++
	return f.summary, f.summaryErr
}

func (f *fakeRepo) SalesByCustomer(context.Context, Range) ([]Record, error) { return f.byCustomer, nil }
func (f *fakeRepo) SalesByProduct(context.Context, Range) ([]Record, error)  { return nil, nil }
func (f *fakeRepo) ExpensesByHead(context.Context, Range) ([]Record, error)  { return nil, nil }
func (f *fakeRepo) CashFlowByType(context.Context, Range) ([]Record, error)  { return f.flow, nil }

func (f *fakeRepo) CashBalanceBefore(context.Context, string, time.Time) (Record, error) {
	return f.opening, nil
}

func (f *fakeRepo) OpenReceivables(context.Context, string) ([]Record, error) { return f.open, nil }

func (f *fakeRepo) DashboardTotals(context.Context, string, time.Time) (Record, error) {
	return f.dashboard, nil
}

func (f *fakeRepo) LowStock(context.Context, string) ([]Record, error) { return f.lowStock, nil }

func newCachedService(t *testing.T, repo Repository) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(repo, NewCache(client, time.Minute), nil).WithClock(func() time.Time { return testNow })
	return svc, mr
}

func requireMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s got %s", want, got)
}

func TestListSalesInvoicesCoercesAndDerivesStatus(t *testing.T) {
	repo := &fakeRepo{sales: []Record{
		{"id": int64(2), "number": "INV-000002", "invoice_date": "2026-03-01", "due_date": "2026-03-05",
			"party_code": "C", "party_name": "Toko C", "settlement": "PENDING",
			"total_amount": "300.00", "balance_due": 120.5, "voided": false, "total_count": int64(41)},
		{"id": "1", "number": "INV-000001", "invoice_date": time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			"due_date": nil, "settlement": "PAID", "total_amount": nil, "balance_due": nil, "voided": "true", "total_count": "41"},
	}}
	svc := NewService(repo, nil, nil).WithClock(func() time.Time { return testNow })

	page, err := svc.ListSalesInvoices(context.Background(), ListFilter{CompanyCode: "acme", PerPage: 500, PartyCode: "c"})
	require.NoError(t, err)
	require.Equal(t, "ACME", repo.lastFilter.CompanyCode)
	require.Equal(t, "C", repo.lastFilter.PartyCode)
	require.Equal(t, 200, repo.lastFilter.PerPage)
	require.Equal(t, 1, repo.lastFilter.Page)

	require.Len(t, page.Items, 2)
	require.Equal(t, 41, page.Pagination.Total)
	require.Equal(t, 1, page.Pagination.TotalPages)
	first := page.Items[0]
	requireMoney(t, "120.5", first.BalanceDue)
	require.Equal(t, ledger.InvoiceStatusOverdue, first.Status)
	second := page.Items[1]
	require.EqualValues(t, 1, second.ID)
	require.True(t, second.TotalAmount.IsZero())
	require.Equal(t, ledger.InvoiceStatusVoid, second.Status)
}

func TestListCashLedgerRunningBalance(t *testing.T) {
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	repo := &fakeRepo{
		cash: []Record{
			{"id": int64(3), "entry_date": day, "entry_type": "EXPENSE", "credit": "50", "debit": "0", "total_count": 3},
			{"id": int64(2), "entry_date": day, "entry_type": "RECEIPT", "debit": "200", "credit": nil, "total_count": 3},
			{"id": int64(1), "entry_date": day, "entry_type": "SALE", "debit": 100.0, "total_count": 3},
		},
		through: Record{"balance": "250"},
	}
	svc := NewService(repo, nil, nil)

	page, err := svc.ListCashLedger(context.Background(), ListFilter{CompanyCode: "ACME"})
	require.NoError(t, err)
	require.Equal(t, []any{"ACME", day, int64(3)}, repo.throughArgs)
	requireMoney(t, "250", page.Items[0].Balance)
	requireMoney(t, "300", page.Items[1].Balance)
	requireMoney(t, "100", page.Items[2].Balance)
}

func TestEmptyListingsAndAggregatesAreZero(t *testing.T) {
	repo := &fakeRepo{summary: Record{"invoice_count": int64(0), "subtotal": nil, "total_amount": nil}}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	page, err := svc.ListCashLedger(ctx, ListFilter{CompanyCode: "ACME"})
	require.NoError(t, err)
	require.Empty(t, page.Items)
	require.Zero(t, page.Pagination.Total)
	require.Nil(t, repo.throughArgs)

	sum, err := svc.SalesSummary(ctx, Range{CompanyCode: "ACME"})
	require.NoError(t, err)
	require.Zero(t, sum.InvoiceCount)
	require.True(t, sum.NetSales.IsZero())

	flow, err := svc.CashFlow(ctx, Range{CompanyCode: "ACME"})
	require.NoError(t, err)
	require.True(t, flow.Closing.IsZero())
	require.Empty(t, flow.ByType)

	aging, err := svc.ReceivablesAging(ctx, "ACME", time.Time{})
	require.NoError(t, err)
	require.Empty(t, aging.Customers)
	require.Len(t, aging.Totals, len(AgingBuckets))
}

func TestSalesSummaryIsCachedUntilInvalidated(t *testing.T) {
	repo := &fakeRepo{summary: Record{
		"invoice_count": int64(2), "subtotal": "400", "tax_amount": "5.00", "total_amount": "405.00",
		"returns": "35", "outstanding": "100",
	}}
	svc, mr := newCachedService(t, repo)
	ctx := context.Background()
	rg := Range{CompanyCode: "acme", From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}

	first, err := svc.SalesSummary(ctx, rg)
	require.NoError(t, err)
	requireMoney(t, "370", first.NetSales)
	second, err := svc.SalesSummary(ctx, rg)
	require.NoError(t, err)
	require.Equal(t, 1, repo.summaryHits)
	require.True(t, first.TotalAmount.Equal(second.TotalAmount))
	require.True(t, mr.Exists("report:ACME:sales_summary:2026-03-01:-:v1"))

	require.NoError(t, svc.Invalidate(ctx, "acme"))
	repo.summary["total_amount"] = "505.00"
	third, err := svc.SalesSummary(ctx, rg)
	require.NoError(t, err)
	require.Equal(t, 2, repo.summaryHits)
	requireMoney(t, "505", third.TotalAmount)

	// Another company's version is untouched.
	other, err := svc.cache.Version(ctx, "OTHER")
	require.NoError(t, err)
	require.EqualValues(t, 1, other)
}

func TestLoaderErrorsAreNotCached(t *testing.T) {
	repo := &fakeRepo{summaryErr: errors.New("boom")}
	svc, _ := newCachedService(t, repo)
	ctx := context.Background()

	_, err := svc.SalesSummary(ctx, Range{CompanyCode: "ACME"})
	require.Error(t, err)
	repo.summaryErr = nil
	repo.summary = Record{"invoice_count": "1"}
	sum, err := svc.SalesSummary(ctx, Range{CompanyCode: "ACME"})
	require.NoError(t, err)
	require.EqualValues(t, 1, sum.InvoiceCount)
}

func TestCashFlowBreakdown(t *testing.T) {
	repo := &fakeRepo{
		opening: Record{"balance": "1000"},
		flow: []Record{
			{"type": "CASH_SALE", "inflow": "500", "outflow": "0"},
			{"type": "EXPENSE", "inflow": nil, "outflow": 120.25},
		},
	}
	svc, _ := newCachedService(t, repo)

	flow, err := svc.CashFlow(context.Background(), Range{CompanyCode: "ACME", From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	requireMoney(t, "1000", flow.Opening)
	requireMoney(t, "500", flow.Inflow)
	requireMoney(t, "120.25", flow.Outflow)
	requireMoney(t, "1379.75", flow.Closing)
	require.Len(t, flow.ByType, 2)
}

func TestReceivablesAgingBuckets(t *testing.T) {
	repo := &fakeRepo{open: []Record{
		{"code": "B", "name": "Toko B", "due_date": "2026-03-20", "balance_due": "100"},
		{"code": "A", "name": "Toko A", "due_date": "2026-03-01", "balance_due": "50"},
		{"code": "A", "name": "Toko A", "due_date": "2025-12-01", "balance_due": "25.50"},
		{"code": "A", "name": "Toko A", "due_date": "2025-10-01", "balance_due": "10"},
		{"code": "C", "name": "Toko C", "due_date": "2025-10-01", "balance_due": "0"},
	}}
	svc := NewService(repo, nil, nil)

	aging, err := svc.ReceivablesAging(context.Background(), "ACME", testNow)
	require.NoError(t, err)
	require.Len(t, aging.Customers, 2)
	a := aging.Customers[0]
	require.Equal(t, "A", a.Code)
	requireMoney(t, "50", a.Buckets[Bucket30])
	requireMoney(t, "25.50", a.Buckets[Bucket120])
	requireMoney(t, "10", a.Buckets[BucketOver120])
	requireMoney(t, "85.50", a.Total)
	requireMoney(t, "100", aging.Totals[BucketCurrent])
	requireMoney(t, "185.50", aging.Total)
}

func TestBucketFor(t *testing.T) {
	require.Equal(t, BucketCurrent, bucketFor(0))
	require.Equal(t, Bucket30, bucketFor(1))
	require.Equal(t, Bucket30, bucketFor(30))
	require.Equal(t, Bucket60, bucketFor(31))
	require.Equal(t, Bucket90, bucketFor(90))
	require.Equal(t, Bucket120, bucketFor(120))
	require.Equal(t, BucketOver120, bucketFor(121))
}

func TestDashboardAndLowStock(t *testing.T) {
	repo := &fakeRepo{
		dashboard: Record{"sales_today": "300", "receivables": 1250.5, "overdue_invoices": int64(2), "cash_balance": nil},
		lowStock: []Record{
			{"code": "P", "name": "Widget", "current_stock": int32(0), "min_stock_level": "2", "is_active": true},
			{"code": "Q", "name": "Gadget", "current_stock": "1", "min_stock_level": int64(2), "is_active": true},
		},
	}
	svc, _ := newCachedService(t, repo)
	ctx := context.Background()

	dash, err := svc.Dashboard(ctx, "acme", time.Time{})
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), dash.AsOf)
	requireMoney(t, "300", dash.SalesToday)
	requireMoney(t, "1250.5", dash.Receivables)
	require.True(t, dash.CashBalance.IsZero())
	require.EqualValues(t, 2, dash.OverdueInvoices)

	rows, err := svc.LowStock(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, ledger.StockOut, rows[0].StockLevel)
	require.Equal(t, ledger.StockLow, rows[1].StockLevel)
}
