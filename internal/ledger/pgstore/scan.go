package pgstore

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).Set(d.Coefficient()), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return decimal.Zero, fmt.Errorf("pgstore: non-finite numeric")
	}
	if n.Int == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}

// numerics converts scanned columns in order, stopping at the first bad value.
func numerics(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		dst, ok := pairs[i].(*decimal.Decimal)
		if !ok {
			return fmt.Errorf("pgstore: numerics: argument %d is not *decimal.Decimal", i)
		}
		src, ok := pairs[i+1].(*pgtype.Numeric)
		if !ok {
			return fmt.Errorf("pgstore: numerics: argument %d is not *pgtype.Numeric", i+1)
		}
		value, err := fromNumeric(*src)
		if err != nil {
			return err
		}
		*dst = value
	}
	return nil
}

func notFound(err error, entity, key string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.NotFound(entity, key)
	}
	return db.Classify(err)
}

func textValue(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

func uuidValue(u pgtype.UUID) uuid.UUID {
	if !u.Valid {
		return uuid.Nil
	}
	return uuid.UUID(u.Bytes)
}

func dateParam(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: ledger.DateOnly(t), Valid: true}
}

func dateValue(d pgtype.Date) time.Time {
	if !d.Valid {
		return time.Time{}
	}
	return ledger.DateOnly(d.Time)
}

const productColumns = `id, company_code, code, name, category, unit_price, purchase_price, current_stock,
min_stock_level, tax_code, tax_rate, is_active, created_by, updated_by, created_at, updated_at`

func scanProduct(row pgx.Row) (ledger.Product, error) {
	var (
		p                 ledger.Product
		price, cost, rate pgtype.Numeric
	)
	if err := row.Scan(&p.ID, &p.CompanyCode, &p.Code, &p.Name, &p.Category, &price, &cost, &p.CurrentStock,
		&p.MinStockLevel, &p.TaxCode, &rate, &p.IsActive, &p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return ledger.Product{}, err
	}
	if err := numerics(&p.UnitPrice, &price, &p.PurchasePrice, &cost, &p.TaxRate, &rate); err != nil {
		return ledger.Product{}, err
	}
	return p, nil
}

const customerColumns = `id, company_code, code, name, credit_limit, payment_terms_days, outstanding_balance,
is_active, created_by, updated_by, created_at, updated_at`

func scanCustomer(row pgx.Row) (ledger.Customer, error) {
	var (
		c              ledger.Customer
		limit, balance pgtype.Numeric
	)
	if err := row.Scan(&c.ID, &c.CompanyCode, &c.Code, &c.Name, &limit, &c.PaymentTermsDays, &balance,
		&c.IsActive, &c.CreatedBy, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return ledger.Customer{}, err
	}
	if err := numerics(&c.CreditLimit, &limit, &c.OutstandingBalance, &balance); err != nil {
		return ledger.Customer{}, err
	}
	return c, nil
}

const supplierColumns = `id, company_code, code, name, payment_terms_days, outstanding_balance,
is_active, created_by, updated_by, created_at, updated_at`

func scanSupplier(row pgx.Row) (ledger.Supplier, error) {
	var (
		s       ledger.Supplier
		balance pgtype.Numeric
	)
	if err := row.Scan(&s.ID, &s.CompanyCode, &s.Code, &s.Name, &s.PaymentTermsDays, &balance,
		&s.IsActive, &s.CreatedBy, &s.UpdatedBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return ledger.Supplier{}, err
	}
	if err := numerics(&s.OutstandingBalance, &balance); err != nil {
		return ledger.Supplier{}, err
	}
	return s, nil
}

const expenseHeadColumns = `id, company_code, code, name, is_active, created_by, created_at`

func scanExpenseHead(row pgx.Row) (ledger.ExpenseHead, error) {
	var h ledger.ExpenseHead
	err := row.Scan(&h.ID, &h.CompanyCode, &h.Code, &h.Name, &h.IsActive, &h.CreatedBy, &h.CreatedAt)
	return h, err
}

// invoiceHeader holds the columns shared by sales and purchase invoices.
type invoiceHeader struct {
	ID          int64
	CompanyCode string
	Number      string
	InvoiceDate time.Time
	DueDate     time.Time
	PartyCode   string
	Settlement  ledger.Settlement
	Subtotal    decimal.Decimal
	TaxAmount   decimal.Decimal
	TotalAmount decimal.Decimal
	BalanceDue  decimal.Decimal
	PostingRef  uuid.UUID
	VoidedAt    *time.Time
	VoidedBy    *int64
	VoidReason  string
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func salesInvoiceColumns() string {
	return `id, company_code, number, invoice_date, due_date, customer_code, settlement, subtotal, tax_amount,
total_amount, balance_due, posting_ref, voided_at, voided_by, void_reason, created_by, created_at, updated_at`
}

func purchaseInvoiceColumns() string {
	return `id, company_code, number, invoice_date, due_date, supplier_code, settlement, subtotal, tax_amount,
total_amount, balance_due, posting_ref, voided_at, voided_by, void_reason, created_by, created_at, updated_at, supplier_ref`
}

func scanInvoiceHeader(row pgx.Row, extra ...any) (invoiceHeader, error) {
	var (
		h                          invoiceHeader
		invoiceDate, dueDate       pgtype.Date
		settlement                 string
		subtotal, tax, total, owed pgtype.Numeric
		ref                        pgtype.UUID
		reason                     pgtype.Text
	)
	dest := []any{&h.ID, &h.CompanyCode, &h.Number, &invoiceDate, &dueDate, &h.PartyCode, &settlement,
		&subtotal, &tax, &total, &owed, &ref, &h.VoidedAt, &h.VoidedBy, &reason, &h.CreatedBy, &h.CreatedAt, &h.UpdatedAt}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return invoiceHeader{}, err
	}
	if err := numerics(&h.Subtotal, &subtotal, &h.TaxAmount, &tax, &h.TotalAmount, &total, &h.BalanceDue, &owed); err != nil {
		return invoiceHeader{}, err
	}
	h.InvoiceDate = dateValue(invoiceDate)
	h.DueDate = dateValue(dueDate)
	h.Settlement = ledger.Settlement(settlement)
	h.PostingRef = uuidValue(ref)
	h.VoidReason = textValue(reason)
	return h, nil
}

func (h invoiceHeader) sales() ledger.SalesInvoice {
	return ledger.SalesInvoice{
		ID: h.ID, CompanyCode: h.CompanyCode, Number: h.Number, InvoiceDate: h.InvoiceDate, DueDate: h.DueDate,
		CustomerCode: h.PartyCode, Settlement: h.Settlement, Subtotal: h.Subtotal, TaxAmount: h.TaxAmount,
		TotalAmount: h.TotalAmount, BalanceDue: h.BalanceDue, PostingRef: h.PostingRef, VoidedAt: h.VoidedAt,
		VoidedBy: h.VoidedBy, VoidReason: h.VoidReason, CreatedBy: h.CreatedBy, CreatedAt: h.CreatedAt, UpdatedAt: h.UpdatedAt,
	}
}

func (h invoiceHeader) purchase(supplierRef string) ledger.PurchaseInvoice {
	return ledger.PurchaseInvoice{
		ID: h.ID, CompanyCode: h.CompanyCode, Number: h.Number, SupplierRef: supplierRef, InvoiceDate: h.InvoiceDate,
		DueDate: h.DueDate, SupplierCode: h.PartyCode, Settlement: h.Settlement, Subtotal: h.Subtotal,
		TaxAmount: h.TaxAmount, TotalAmount: h.TotalAmount, BalanceDue: h.BalanceDue, PostingRef: h.PostingRef,
		VoidedAt: h.VoidedAt, VoidedBy: h.VoidedBy, VoidReason: h.VoidReason, CreatedBy: h.CreatedBy,
		CreatedAt: h.CreatedAt, UpdatedAt: h.UpdatedAt,
	}
}

func queryInvoiceItems(ctx context.Context, q querier, table string, invoiceID int64) ([]ledger.InvoiceItem, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, line_no, product_code, description, quantity, unit_price, tax_rate, line_total, tax_amount
FROM `+table+`
WHERE invoice_id=$1
ORDER BY line_no`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ledger.InvoiceItem
	for rows.Next() {
		var (
			item                    ledger.InvoiceItem
			price, rate, total, tax pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.LineNo, &item.ProductCode, &item.Description, &item.Quantity,
			&price, &rate, &total, &tax); err != nil {
			return nil, err
		}
		if err := numerics(&item.UnitPrice, &price, &item.TaxRate, &rate, &item.LineTotal, &total, &item.TaxAmount, &tax); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func insertInvoiceItems(ctx context.Context, q querier, table string, invoiceID int64, items []ledger.InvoiceItem) error {
	for i, item := range items {
		lineNo := item.LineNo
		if lineNo == 0 {
			lineNo = i + 1
		}
		if _, err := q.Exec(ctx, `INSERT INTO `+table+` (invoice_id, line_no, product_code, description, quantity, unit_price, tax_rate, line_total, tax_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, invoiceID, lineNo, item.ProductCode, item.Description, item.Quantity,
			numeric(item.UnitPrice), numeric(item.TaxRate), numeric(item.LineTotal), numeric(item.TaxAmount)); err != nil {
			return err
		}
	}
	return nil
}
