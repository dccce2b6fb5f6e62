package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Record is one row as read from storage, keyed by column name. Values are
// coerced before any arithmetic because drivers and fakes disagree on types.
type Record map[string]any

// ListFilter scopes a paginated listing. Zero From/To leave the range open.
type ListFilter struct {
	CompanyCode string
	Page        int
	PerPage     int
	From        time.Time
	To          time.Time
	Search      string
	PartyCode   string
	HeadCode    string
	ActiveOnly  bool
}

// Offset is the number of rows skipped before the requested page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

func (f *ListFilter) normalize() {
	f.CompanyCode = ledger.NormalizeCode(f.CompanyCode)
	f.PartyCode = ledger.NormalizeCode(f.PartyCode)
	f.HeadCode = ledger.NormalizeCode(f.HeadCode)
	f.Page, f.PerPage = shared.NormalizePage(f.Page, f.PerPage)
}

// Range is an inclusive date range for aggregates.
type Range struct {
	CompanyCode string
	From        time.Time
	To          time.Time
}

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T               `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// InvoiceRow is a sales or purchase invoice in a listing.
type InvoiceRow struct {
	ID          int64                `json:"id"`
	Number      string               `json:"number"`
	InvoiceDate time.Time            `json:"invoice_date"`
	DueDate     time.Time            `json:"due_date"`
	PartyCode   string               `json:"party_code"`
	PartyName   string               `json:"party_name"`
	Settlement  ledger.Settlement    `json:"settlement"`
	TotalAmount decimal.Decimal      `json:"total_amount"`
	BalanceDue  decimal.Decimal      `json:"balance_due"`
	Voided      bool                 `json:"voided"`
	Status      ledger.InvoiceStatus `json:"status"`
}

// ProductRow is a product in a listing with its derived stock level.
type ProductRow struct {
	Code          string            `json:"code"`
	Name          string            `json:"name"`
	Category      string            `json:"category"`
	UnitPrice     decimal.Decimal   `json:"unit_price"`
	CurrentStock  int64             `json:"current_stock"`
	MinStockLevel int64             `json:"min_stock_level"`
	StockLevel    ledger.StockLevel `json:"stock_level"`
	IsActive      bool              `json:"is_active"`
}

// CustomerRow is a customer in a listing.
type CustomerRow struct {
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	PaymentTermsDays   int64           `json:"payment_terms_days"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	IsActive           bool            `json:"is_active"`
}

// CashRow is a cash book entry with the balance after it.
type CashRow struct {
	ID          int64           `json:"id"`
	EntryDate   time.Time       `json:"entry_date"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

// ExpenseRow is an expense in a listing.
type ExpenseRow struct {
	ID          int64           `json:"id"`
	Number      string          `json:"number"`
	ExpenseDate time.Time       `json:"expense_date"`
	HeadCode    string          `json:"head_code"`
	HeadName    string          `json:"head_name"`
	Amount      decimal.Decimal `json:"amount"`
	Remarks     string          `json:"remarks"`
}

// SalesSummary aggregates non-void sales in a range.
type SalesSummary struct {
	InvoiceCount int64           `json:"invoice_count"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Returns      decimal.Decimal `json:"returns"`
	NetSales     decimal.Decimal `json:"net_sales"`
	Outstanding  decimal.Decimal `json:"outstanding"`
}

// PartyTotal is one customer's share of sales.
type PartyTotal struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	InvoiceCount int64           `json:"invoice_count"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// ProductTotal is one product's share of sales.
type ProductTotal struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Quantity    int64           `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// HeadTotal is one expense head's share of expenses.
type HeadTotal struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// CashFlow summarises cash movement in a range.
type CashFlow struct {
	Opening decimal.Decimal `json:"opening"`
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
	Closing decimal.Decimal `json:"closing"`
	ByType  []CashFlowLine  `json:"by_type"`
}

// CashFlowLine is the inflow and outflow of one cash entry type.
type CashFlowLine struct {
	Type    string          `json:"type"`
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
}

// Aging bucket labels, ordered from current to oldest.
const (
	BucketCurrent = "current"
	Bucket30      = "1-30"
	Bucket60      = "31-60"
	Bucket90      = "61-90"
	Bucket120     = "91-120"
	BucketOver120 = "120+"
)

// AgingBuckets lists bucket labels in display order.
var AgingBuckets = []string{BucketCurrent, Bucket30, Bucket60, Bucket90, Bucket120, BucketOver120}

// AgingRow is one customer's open balance split by days past due.
type AgingRow struct {
	Code    string                     `json:"code"`
	Name    string                     `json:"name"`
	Buckets map[string]decimal.Decimal `json:"buckets"`
	Total   decimal.Decimal            `json:"total"`
}

// Aging is the receivables aging report.
type Aging struct {
	AsOf      time.Time                  `json:"as_of"`
	Customers []AgingRow                 `json:"customers"`
	Totals    map[string]decimal.Decimal `json:"totals"`
	Total     decimal.Decimal            `json:"total"`
}

// Dashboard holds headline figures for one company.
type Dashboard struct {
	AsOf             time.Time       `json:"as_of"`
	SalesToday       decimal.Decimal `json:"sales_today"`
	SalesMonth       decimal.Decimal `json:"sales_month"`
	ExpensesMonth    decimal.Decimal `json:"expenses_month"`
	Receivables      decimal.Decimal `json:"receivables"`
	Payables         decimal.Decimal `json:"payables"`
	CashBalance      decimal.Decimal `json:"cash_balance"`
	OverdueInvoices  int64           `json:"overdue_invoices"`
	LowStockProducts int64           `json:"low_stock_products"`
	ActiveCustomers  int64           `json:"active_customers"`
	InventoryAtCost  decimal.Decimal `json:"inventory_at_cost"`
}

// bucketFor maps days past due to an aging bucket.
func bucketFor(daysPastDue int) string {
	switch {
	case daysPastDue <= 0:
		return BucketCurrent
	case daysPastDue <= 30:
		return Bucket30
	case daysPastDue <= 60:
		return Bucket60
	case daysPastDue <= 90:
		return Bucket90
	case daysPastDue <= 120:
		return Bucket120
	default:
		return BucketOver120
	}
}
