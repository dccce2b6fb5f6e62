package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
)

// Repository runs the read queries behind the reports. Listing queries
// return total_count on every row.
type Repository interface {
	SalesInvoices(ctx context.Context, f ListFilter) ([]Record, error)
	PurchaseInvoices(ctx context.Context, f ListFilter) ([]Record, error)
	Products(ctx context.Context, f ListFilter) ([]Record, error)
	Customers(ctx context.Context, f ListFilter) ([]Record, error)
	CashEntries(ctx context.Context, f ListFilter) ([]Record, error)
	Expenses(ctx context.Context, f ListFilter) ([]Record, error)
	// CashBalanceThrough sums debit-credit up to and including entry id on date.
	CashBalanceThrough(ctx context.Context, company string, date time.Time, id int64) (Record, error)

	SalesSummary(ctx context.Context, r Range) (Record, error)
	SalesByCustomer(ctx context.Context, r Range) ([]Record, error)
	SalesByProduct(ctx context.Context, r Range) ([]Record, error)
	ExpensesByHead(ctx context.Context, r Range) ([]Record, error)
	CashFlowByType(ctx context.Context, r Range) ([]Record, error)
	CashBalanceBefore(ctx context.Context, company string, date time.Time) (Record, error)
	OpenReceivables(ctx context.Context, company string) ([]Record, error)
	DashboardTotals(ctx context.Context, company string, asOf time.Time) (Record, error)
	LowStock(ctx context.Context, company string) ([]Record, error)
}

// PgRepository implements Repository with pgx.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository builds the Postgres backed repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) query(ctx context.Context, sql string, args ...any) ([]Record, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("reporting: query: %w", db.Classify(err))
	}
	defer rows.Close()
	fields := rows.FieldDescriptions()
	var out []Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reporting: values: %w", err)
		}
		rec := make(Record, len(fields))
		for i, fd := range fields {
			rec[fd.Name] = values[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reporting: rows: %w", db.Classify(err))
	}
	return out, nil
}

func (r *PgRepository) one(ctx context.Context, sql string, args ...any) (Record, error) {
	recs, err := r.query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return Record{}, nil
	}
	return recs[0], nil
}

func dateArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func listArgs(f ListFilter) pgx.NamedArgs {
	return pgx.NamedArgs{
		"company": f.CompanyCode,
		"from":    dateArg(f.From),
		"to":      dateArg(f.To),
		"search":  f.Search,
		"party":   f.PartyCode,
		"head":    f.HeadCode,
		"active":  f.ActiveOnly,
		"limit":   f.PerPage,
		"offset":  f.Offset(),
	}
}

func (r *PgRepository) SalesInvoices(ctx context.Context, f ListFilter) ([]Record, error) {
	return r.query(ctx, `
SELECT i.id, i.number, i.invoice_date, i.due_date, i.customer_code AS party_code, c.name AS party_name,
       i.settlement, i.total_amount, i.balance_due, i.voided_at IS NOT NULL AS voided,
       COUNT(*) OVER () AS total_count
FROM sales_invoices i
JOIN customers c ON c.company_code = i.company_code AND c.code = i.customer_code
WHERE i.company_code = @company
  AND (@from::date IS NULL OR i.invoice_date >= @from::date)
  AND (@to::date IS NULL OR i.invoice_date <= @to::date)
  AND (@party = '' OR i.customer_code = @party)
  AND (@search = '' OR i.number ILIKE '%' || @search || '%' OR c.name ILIKE '%' || @search || '%')
ORDER BY i.invoice_date DESC, i.id DESC
LIMIT @limit OFFSET @offset`, listArgs(f))
}

func (r *PgRepository) PurchaseInvoices(ctx context.Context, f ListFilter) ([]Record, error) {
	return r.query(ctx, `
SELECT i.id, i.number, i.invoice_date, i.due_date, i.supplier_code AS party_code, s.name AS party_name,
       i.settlement, i.total_amount, i.balance_due, i.voided_at IS NOT NULL AS voided,
       COUNT(*) OVER () AS total_count
FROM purchase_invoices i
JOIN suppliers s ON s.company_code = i.company_code AND s.code = i.supplier_code
WHERE i.company_code = @company
  AND (@from::date IS NULL OR i.invoice_date >= @from::date)
  AND (@to::date IS NULL OR i.invoice_date <= @to::date)
  AND (@party = '' OR i.supplier_code = @party)
  AND (@search = '' OR i.number ILIKE '%' || @search || '%' OR i.supplier_ref ILIKE '%' || @search || '%')
ORDER BY i.invoice_date DESC, i.id DESC
LIMIT @limit OFFSET @offset`, listArgs(f))
}

func (r *PgRepository) Products(ctx context.Context, f ListFilter) ([]Record, error) {
	return r.query(ctx, `
SELECT code, name, category, unit_price, current_stock, min_stock_level, is_active,
       COUNT(*) OVER () AS total_count
FROM products
WHERE company_code = @company
  AND (NOT @active OR is_active)
  AND (@search = '' OR code ILIKE '%' || @search || '%' OR name ILIKE '%' || @search || '%')
ORDER BY created_at DESC, id DESC
LIMIT @limit OFFSET @offset`, listArgs(f))
}

func (r *PgRepository) Customers(ctx context.Context, f ListFilter) ([]Record, error) {
	return r.query(ctx, `
SELECT code, name, credit_limit, payment_terms_days, outstanding_balance, is_active,
       COUNT(*) OVER () AS total_count
FROM customers
WHERE company_code = @company
  AND (NOT @active OR is_active)
  AND (@search = '' OR code ILIKE '%' || @search || '%' OR name ILIKE '%' || @search || '%')
ORDER BY created_at DESC, id DESC
LIMIT @limit OFFSET @offset`, listArgs(f))
}

func (r *PgRepository) CashEntries(ctx context.Context, f ListFilter) ([]Record, error) {
	return r.query(ctx, `
SELECT id, entry_date, entry_type, description, debit, credit,
       COUNT(*) OVER () AS total_count
FROM cash_ledger
WHERE company_code = @company
  AND (@from::date IS NULL OR entry_date >= @from::date)
  AND (@to::date IS NULL OR entry_date <= @to::date)
ORDER BY entry_date DESC, id DESC
LIMIT @limit OFFSET @offset`, listArgs(f))
}

func (r *PgRepository) Expenses(ctx context.Context, f ListFilter) ([]Record, error) {
	return r.query(ctx, `
SELECT e.id, e.number, e.expense_date, e.head_code, h.name AS head_name, e.amount, e.remarks,
       COUNT(*) OVER () AS total_count
FROM expenses e
JOIN expense_heads h ON h.company_code = e.company_code AND h.code = e.head_code
WHERE e.company_code = @company
  AND (@from::date IS NULL OR e.expense_date >= @from::date)
  AND (@to::date IS NULL OR e.expense_date <= @to::date)
  AND (@head = '' OR e.head_code = @head)
ORDER BY e.expense_date DESC, e.id DESC
LIMIT @limit OFFSET @offset`, listArgs(f))
}

func (r *PgRepository) CashBalanceThrough(ctx context.Context, company string, date time.Time, id int64) (Record, error) {
	return r.one(ctx, `
SELECT COALESCE(SUM(debit - credit), 0) AS balance
FROM cash_ledger
WHERE company_code = $1 AND (entry_date, id) <= ($2::date, $3)`, company, date, id)
}

func rangeArgs(rg Range) pgx.NamedArgs {
	return pgx.NamedArgs{"company": rg.CompanyCode, "from": dateArg(rg.From), "to": dateArg(rg.To)}
}

func (r *PgRepository) SalesSummary(ctx context.Context, rg Range) (Record, error) {
	return r.one(ctx, `
WITH inv AS (
    SELECT COUNT(*) AS invoice_count, SUM(subtotal) AS subtotal, SUM(tax_amount) AS tax_amount,
           SUM(total_amount) AS total_amount, SUM(balance_due) AS outstanding
    FROM sales_invoices
    WHERE company_code = @company AND voided_at IS NULL
      AND (@from::date IS NULL OR invoice_date >= @from::date)
      AND (@to::date IS NULL OR invoice_date <= @to::date)
), ret AS (
    SELECT SUM(total_amount) AS returns
    FROM sales_returns
    WHERE company_code = @company
      AND (@from::date IS NULL OR return_date >= @from::date)
      AND (@to::date IS NULL OR return_date <= @to::date)
)
SELECT inv.invoice_count, inv.subtotal, inv.tax_amount, inv.total_amount, inv.outstanding, ret.returns
FROM inv, ret`, rangeArgs(rg))
}

func (r *PgRepository) SalesByCustomer(ctx context.Context, rg Range) ([]Record, error) {
	return r.query(ctx, `
SELECT i.customer_code AS code, c.name, COUNT(*) AS invoice_count, SUM(i.total_amount) AS total_amount
FROM sales_invoices i
JOIN customers c ON c.company_code = i.company_code AND c.code = i.customer_code
WHERE i.company_code = @company AND i.voided_at IS NULL
  AND (@from::date IS NULL OR i.invoice_date >= @from::date)
  AND (@to::date IS NULL OR i.invoice_date <= @to::date)
GROUP BY i.customer_code, c.name
ORDER BY total_amount DESC, code`, rangeArgs(rg))
}

func (r *PgRepository) SalesByProduct(ctx context.Context, rg Range) ([]Record, error) {
	return r.query(ctx, `
SELECT it.product_code AS code, p.name, SUM(it.quantity) AS quantity, SUM(it.line_total + it.tax_amount) AS total_amount
FROM sales_invoice_items it
JOIN sales_invoices i ON i.id = it.invoice_id
JOIN products p ON p.company_code = i.company_code AND p.code = it.product_code
WHERE i.company_code = @company AND i.voided_at IS NULL
  AND (@from::date IS NULL OR i.invoice_date >= @from::date)
  AND (@to::date IS NULL OR i.invoice_date <= @to::date)
GROUP BY it.product_code, p.name
ORDER BY total_amount DESC, code`, rangeArgs(rg))
}

func (r *PgRepository) ExpensesByHead(ctx context.Context, rg Range) ([]Record, error) {
	return r.query(ctx, `
SELECT e.head_code AS code, h.name, COUNT(*) AS count, SUM(e.amount) AS total_amount
FROM expenses e
JOIN expense_heads h ON h.company_code = e.company_code AND h.code = e.head_code
WHERE e.company_code = @company
  AND (@from::date IS NULL OR e.expense_date >= @from::date)
  AND (@to::date IS NULL OR e.expense_date <= @to::date)
GROUP BY e.head_code, h.name
ORDER BY total_amount DESC, code`, rangeArgs(rg))
}

func (r *PgRepository) CashFlowByType(ctx context.Context, rg Range) ([]Record, error) {
	return r.query(ctx, `
SELECT entry_type AS type, SUM(debit) AS inflow, SUM(credit) AS outflow
FROM cash_ledger
WHERE company_code = @company
  AND (@from::date IS NULL OR entry_date >= @from::date)
  AND (@to::date IS NULL OR entry_date <= @to::date)
GROUP BY entry_type
ORDER BY entry_type`, rangeArgs(rg))
}

func (r *PgRepository) CashBalanceBefore(ctx context.Context, company string, date time.Time) (Record, error) {
	return r.one(ctx, `
SELECT COALESCE(SUM(debit - credit), 0) AS balance
FROM cash_ledger
WHERE company_code = $1 AND ($2::date IS NULL OR entry_date < $2::date)`, company, dateArg(date))
}

func (r *PgRepository) OpenReceivables(ctx context.Context, company string) ([]Record, error) {
	return r.query(ctx, `
SELECT i.customer_code AS code, c.name, i.due_date, i.balance_due
FROM sales_invoices i
JOIN customers c ON c.company_code = i.company_code AND c.code = i.customer_code
WHERE i.company_code = $1 AND i.voided_at IS NULL AND i.balance_due > 0
ORDER BY i.customer_code, i.due_date`, company)
}

func (r *PgRepository) DashboardTotals(ctx context.Context, company string, asOf time.Time) (Record, error) {
	return r.one(ctx, `
SELECT
  (SELECT SUM(total_amount) FROM sales_invoices
    WHERE company_code = @company AND voided_at IS NULL AND invoice_date = @as_of::date) AS sales_today,
  (SELECT SUM(total_amount) FROM sales_invoices
    WHERE company_code = @company AND voided_at IS NULL
      AND invoice_date >= date_trunc('month', @as_of::date) AND invoice_date <= @as_of::date) AS sales_month,
  (SELECT SUM(amount) FROM expenses
    WHERE company_code = @company
      AND expense_date >= date_trunc('month', @as_of::date) AND expense_date <= @as_of::date) AS expenses_month,
  (SELECT SUM(outstanding_balance) FROM customers WHERE company_code = @company) AS receivables,
  (SELECT SUM(outstanding_balance) FROM suppliers WHERE company_code = @company) AS payables,
  (SELECT SUM(debit - credit) FROM cash_ledger WHERE company_code = @company AND entry_date <= @as_of::date) AS cash_balance,
  (SELECT COUNT(*) FROM sales_invoices
    WHERE company_code = @company AND voided_at IS NULL AND balance_due > 0 AND due_date < @as_of::date) AS overdue_invoices,
  (SELECT COUNT(*) FROM products
    WHERE company_code = @company AND is_active AND current_stock <= min_stock_level) AS low_stock_products,
  (SELECT COUNT(*) FROM customers WHERE company_code = @company AND is_active) AS active_customers,
  (SELECT SUM(current_stock * purchase_price) FROM products WHERE company_code = @company) AS inventory_at_cost`,
		pgx.NamedArgs{"company": company, "as_of": asOf})
}

func (r *PgRepository) LowStock(ctx context.Context, company string) ([]Record, error) {
	return r.query(ctx, `
SELECT code, name, category, unit_price, current_stock, min_stock_level, is_active
FROM products
WHERE company_code = $1 AND is_active AND current_stock <= min_stock_level
ORDER BY current_stock, code`, company)
}
