// Package pgstore implements the ledger Store on PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
)

// Store persists the ledger in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

// New constructs Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.Tx) error) error {
	if s == nil || s.pool == nil {
		return errors.New("pgstore: store not initialised")
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{q: tx})
	})
}

func (s *Store) GetProduct(ctx context.Context, company, code string) (ledger.Product, error) {
	return getProduct(ctx, s.pool, company, code, "")
}

func (s *Store) GetCustomer(ctx context.Context, company, code string) (ledger.Customer, error) {
	return getCustomer(ctx, s.pool, company, code, "")
}

func (s *Store) GetSupplier(ctx context.Context, company, code string) (ledger.Supplier, error) {
	return getSupplier(ctx, s.pool, company, code, "")
}

func (s *Store) GetExpenseHead(ctx context.Context, company, code string) (ledger.ExpenseHead, error) {
	return getExpenseHead(ctx, s.pool, company, code)
}

func (s *Store) GetSalesInvoice(ctx context.Context, company string, id int64) (ledger.SalesInvoice, error) {
	return getSalesInvoice(ctx, s.pool, company, id, "")
}

func (s *Store) GetPurchaseInvoice(ctx context.Context, company string, id int64) (ledger.PurchaseInvoice, error) {
	return getPurchaseInvoice(ctx, s.pool, company, id, "")
}

func (s *Store) GetSalesReturn(ctx context.Context, company string, id int64) (ledger.SalesReturn, error) {
	return getSalesReturn(ctx, s.pool, company, id)
}

// CashBalance sums debits minus credits up to and including asOf.
func (s *Store) CashBalance(ctx context.Context, company string, asOf time.Time) (decimal.Decimal, error) {
	var sum pgtype.Numeric
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(debit - credit), 0)
FROM cash_ledger
WHERE company_code=$1 AND entry_date <= $2`, company, dateParam(asOf)).Scan(&sum)
	if err != nil {
		return decimal.Zero, db.Classify(err)
	}
	return fromNumeric(sum)
}

func getProduct(ctx context.Context, q querier, company, code, lock string) (ledger.Product, error) {
	p, err := scanProduct(q.QueryRow(ctx, `SELECT `+productColumns+`
FROM products
WHERE company_code=$1 AND code=$2 `+lock, company, code))
	if err != nil {
		return ledger.Product{}, notFound(err, "product", code)
	}
	return p, nil
}

func getCustomer(ctx context.Context, q querier, company, code, lock string) (ledger.Customer, error) {
	c, err := scanCustomer(q.QueryRow(ctx, `SELECT `+customerColumns+`
FROM customers
WHERE company_code=$1 AND code=$2 `+lock, company, code))
	if err != nil {
		return ledger.Customer{}, notFound(err, "customer", code)
	}
	return c, nil
}

func getSupplier(ctx context.Context, q querier, company, code, lock string) (ledger.Supplier, error) {
	s, err := scanSupplier(q.QueryRow(ctx, `SELECT `+supplierColumns+`
FROM suppliers
WHERE company_code=$1 AND code=$2 `+lock, company, code))
	if err != nil {
		return ledger.Supplier{}, notFound(err, "supplier", code)
	}
	return s, nil
}

func getExpenseHead(ctx context.Context, q querier, company, code string) (ledger.ExpenseHead, error) {
	h, err := scanExpenseHead(q.QueryRow(ctx, `SELECT `+expenseHeadColumns+`
FROM expense_heads
WHERE company_code=$1 AND code=$2`, company, code))
	if err != nil {
		return ledger.ExpenseHead{}, notFound(err, "expense head", code)
	}
	return h, nil
}

func getSalesInvoice(ctx context.Context, q querier, company string, id int64, lock string) (ledger.SalesInvoice, error) {
	h, err := scanInvoiceHeader(q.QueryRow(ctx, `SELECT `+salesInvoiceColumns()+`
FROM sales_invoices
WHERE company_code=$1 AND id=$2 `+lock, company, id))
	if err != nil {
		return ledger.SalesInvoice{}, notFound(err, "sales invoice", strconv.FormatInt(id, 10))
	}
	inv := h.sales()
	if inv.Items, err = queryInvoiceItems(ctx, q, "sales_invoice_items", id); err != nil {
		return ledger.SalesInvoice{}, err
	}
	return inv, nil
}

func getPurchaseInvoice(ctx context.Context, q querier, company string, id int64, lock string) (ledger.PurchaseInvoice, error) {
	var supplierRef string
	h, err := scanInvoiceHeader(q.QueryRow(ctx, `SELECT `+purchaseInvoiceColumns()+`
FROM purchase_invoices
WHERE company_code=$1 AND id=$2 `+lock, company, id), &supplierRef)
	if err != nil {
		return ledger.PurchaseInvoice{}, notFound(err, "purchase invoice", strconv.FormatInt(id, 10))
	}
	inv := h.purchase(supplierRef)
	if inv.Items, err = queryInvoiceItems(ctx, q, "purchase_invoice_items", id); err != nil {
		return ledger.PurchaseInvoice{}, err
	}
	return inv, nil
}

func getSalesReturn(ctx context.Context, q querier, company string, id int64) (ledger.SalesReturn, error) {
	var (
		r                                    ledger.SalesReturn
		returnDate                           pgtype.Date
		status                               string
		subtotal, tax, total, credit, refund pgtype.Numeric
		ref                                  pgtype.UUID
	)
	err := q.QueryRow(ctx, `SELECT id, company_code, number, return_date, invoice_id, customer_code, subtotal, tax_amount,
total_amount, credit_amount, refund_amount, status, reason, posting_ref, created_by, created_at
FROM sales_returns
WHERE company_code=$1 AND id=$2`, company, id).Scan(&r.ID, &r.CompanyCode, &r.Number, &returnDate, &r.InvoiceID,
		&r.CustomerCode, &subtotal, &tax, &total, &credit, &refund, &status, &r.Reason, &ref, &r.CreatedBy, &r.CreatedAt)
	if err != nil {
		return ledger.SalesReturn{}, notFound(err, "sales return", strconv.FormatInt(id, 10))
	}
	if err := numerics(&r.Subtotal, &subtotal, &r.TaxAmount, &tax, &r.TotalAmount, &total,
		&r.CreditAmount, &credit, &r.RefundAmount, &refund); err != nil {
		return ledger.SalesReturn{}, err
	}
	r.ReturnDate = dateValue(returnDate)
	r.Status = ledger.ReturnStatus(status)
	r.PostingRef = uuidValue(ref)

	rows, err := q.Query(ctx, `SELECT id, return_id, invoice_item_id, product_code, quantity, unit_price, tax_rate, line_total, tax_amount
FROM sales_return_items
WHERE return_id=$1
ORDER BY id`, id)
	if err != nil {
		return ledger.SalesReturn{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item                       ledger.ReturnItem
			price, rate, line, lineTax pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &item.ReturnID, &item.InvoiceItemID, &item.ProductCode, &item.Quantity,
			&price, &rate, &line, &lineTax); err != nil {
			return ledger.SalesReturn{}, err
		}
		if err := numerics(&item.UnitPrice, &price, &item.TaxRate, &rate, &item.LineTotal, &line, &item.TaxAmount, &lineTax); err != nil {
			return ledger.SalesReturn{}, err
		}
		r.Items = append(r.Items, item)
	}
	return r, rows.Err()
}
