package pgstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

const forUpdate = "FOR UPDATE"

type txStore struct {
	q querier
}

var _ ledger.Tx = (*txStore)(nil)

// NextDocumentNumber takes the row lock on the company's sequence for doc and
// returns the formatted number.
func (r *txStore) NextDocumentNumber(ctx context.Context, company string, doc ledger.DocumentType) (string, error) {
	var seq int64
	err := r.q.QueryRow(ctx, `INSERT INTO document_sequences (company_code, doc_type, next_value)
VALUES ($1,$2,2)
ON CONFLICT (company_code, doc_type) DO UPDATE SET next_value = document_sequences.next_value + 1
RETURNING next_value - 1`, company, string(doc)).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("pgstore: next %s number: %w", doc, err)
	}
	return ledger.FormatDocumentNumber(doc, seq), nil
}

func (r *txStore) ClaimRequestKey(ctx context.Context, company, key, module string) error {
	tag, err := r.q.Exec(ctx, `INSERT INTO idempotency_keys (company_code, module, key, created_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (company_code, module, key) DO NOTHING`, company, module, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrDuplicateRequest, key)
	}
	return nil
}

func (r *txStore) InsertProduct(ctx context.Context, p ledger.Product) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO products (company_code, code, name, category, unit_price, purchase_price, current_stock,
min_stock_level, tax_code, tax_rate, is_active, created_by, updated_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12,NOW(),NOW()) RETURNING id`,
		p.CompanyCode, p.Code, p.Name, p.Category, numeric(p.UnitPrice), numeric(p.PurchasePrice), p.CurrentStock,
		p.MinStockLevel, p.TaxCode, numeric(p.TaxRate), p.IsActive, p.CreatedBy).Scan(&id)
	return id, err
}

// UpdateProduct rewrites descriptive and pricing columns. Stock is only moved
// through SetProductStock.
func (r *txStore) UpdateProduct(ctx context.Context, p ledger.Product) error {
	tag, err := r.q.Exec(ctx, `UPDATE products
SET name=$3, category=$4, unit_price=$5, purchase_price=$6, min_stock_level=$7, tax_code=$8, tax_rate=$9,
    is_active=$10, updated_by=$11, updated_at=NOW()
WHERE company_code=$1 AND code=$2`, p.CompanyCode, p.Code, p.Name, p.Category, numeric(p.UnitPrice),
		numeric(p.PurchasePrice), p.MinStockLevel, p.TaxCode, numeric(p.TaxRate), p.IsActive, p.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFound("product", p.Code)
	}
	return nil
}

func (r *txStore) GetProductForUpdate(ctx context.Context, company, code string) (ledger.Product, error) {
	return getProduct(ctx, r.q, company, code, forUpdate)
}

func (r *txStore) SetProductStock(ctx context.Context, company, code string, stock int64, actorID int64) error {
	tag, err := r.q.Exec(ctx, `UPDATE products SET current_stock=$3, updated_by=$4, updated_at=NOW()
WHERE company_code=$1 AND code=$2`, company, code, stock, actorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFound("product", code)
	}
	return nil
}

func (r *txStore) InsertStockMovement(ctx context.Context, m ledger.StockMovement) error {
	_, err := r.q.Exec(ctx, `INSERT INTO stock_movements (company_code, product_code, movement_type, qty_change, balance_after,
source_type, source_id, source_line, movement_date, note, posting_ref, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())`, m.CompanyCode, m.ProductCode, string(m.Type), m.QtyChange,
		m.BalanceAfter, string(m.SourceType), m.SourceID, m.SourceLine, dateParam(m.MovementDate), m.Note,
		m.PostingRef, m.CreatedBy)
	return err
}

func (r *txStore) InsertCustomer(ctx context.Context, c ledger.Customer) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO customers (company_code, code, name, credit_limit, payment_terms_days, outstanding_balance,
is_active, created_by, updated_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8,NOW(),NOW()) RETURNING id`, c.CompanyCode, c.Code, c.Name, numeric(c.CreditLimit),
		c.PaymentTermsDays, numeric(c.OutstandingBalance), c.IsActive, c.CreatedBy).Scan(&id)
	return id, err
}

func (r *txStore) UpdateCustomer(ctx context.Context, c ledger.Customer) error {
	tag, err := r.q.Exec(ctx, `UPDATE customers
SET name=$3, credit_limit=$4, payment_terms_days=$5, is_active=$6, updated_by=$7, updated_at=NOW()
WHERE company_code=$1 AND code=$2`, c.CompanyCode, c.Code, c.Name, numeric(c.CreditLimit), c.PaymentTermsDays,
		c.IsActive, c.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFound("customer", c.Code)
	}
	return nil
}

func (r *txStore) GetCustomerForUpdate(ctx context.Context, company, code string) (ledger.Customer, error) {
	return getCustomer(ctx, r.q, company, code, forUpdate)
}

func (r *txStore) SetCustomerBalance(ctx context.Context, company, code string, balance decimal.Decimal, actorID int64) error {
	tag, err := r.q.Exec(ctx, `UPDATE customers SET outstanding_balance=$3, updated_by=$4, updated_at=NOW()
WHERE company_code=$1 AND code=$2`, company, code, numeric(balance), actorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFound("customer", code)
	}
	return nil
}

func (r *txStore) InsertSupplier(ctx context.Context, s ledger.Supplier) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO suppliers (company_code, code, name, payment_terms_days, outstanding_balance,
is_active, created_by, updated_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7,NOW(),NOW()) RETURNING id`, s.CompanyCode, s.Code, s.Name, s.PaymentTermsDays,
		numeric(s.OutstandingBalance), s.IsActive, s.CreatedBy).Scan(&id)
	return id, err
}

func (r *txStore) UpdateSupplier(ctx context.Context, s ledger.Supplier) error {
	tag, err := r.q.Exec(ctx, `UPDATE suppliers
SET name=$3, payment_terms_days=$4, is_active=$5, updated_by=$6, updated_at=NOW()
WHERE company_code=$1 AND code=$2`, s.CompanyCode, s.Code, s.Name, s.PaymentTermsDays, s.IsActive, s.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFound("supplier", s.Code)
	}
	return nil
}

func (r *txStore) GetSupplierForUpdate(ctx context.Context, company, code string) (ledger.Supplier, error) {
	return getSupplier(ctx, r.q, company, code, forUpdate)
}

func (r *txStore) SetSupplierBalance(ctx context.Context, company, code string, balance decimal.Decimal, actorID int64) error {
	tag, err := r.q.Exec(ctx, `UPDATE suppliers SET outstanding_balance=$3, updated_by=$4, updated_at=NOW()
WHERE company_code=$1 AND code=$2`, company, code, numeric(balance), actorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFound("supplier", code)
	}
	return nil
}

func (r *txStore) InsertExpenseHead(ctx context.Context, h ledger.ExpenseHead) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO expense_heads (company_code, code, name, is_active, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`, h.CompanyCode, h.Code, h.Name, h.IsActive, h.CreatedBy).Scan(&id)
	return id, err
}

func (r *txStore) SetExpenseHeadActive(ctx context.Context, company, code string, active bool) error {
	tag, err := r.q.Exec(ctx, `UPDATE expense_heads SET is_active=$3 WHERE company_code=$1 AND code=$2`, company, code, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFound("expense head", code)
	}
	return nil
}

func (r *txStore) GetExpenseHead(ctx context.Context, company, code string) (ledger.ExpenseHead, error) {
	return getExpenseHead(ctx, r.q, company, code)
}

func (r *txStore) InsertSalesInvoice(ctx context.Context, inv ledger.SalesInvoice) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO sales_invoices (company_code, number, invoice_date, due_date, customer_code, settlement,
subtotal, tax_amount, total_amount, balance_due, posting_ref, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW()) RETURNING id`,
		inv.CompanyCode, inv.Number, dateParam(inv.InvoiceDate), dateParam(inv.DueDate), inv.CustomerCode,
		string(inv.Settlement), numeric(inv.Subtotal), numeric(inv.TaxAmount), numeric(inv.TotalAmount),
		numeric(inv.BalanceDue), inv.PostingRef, inv.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	if err := insertInvoiceItems(ctx, r.q, "sales_invoice_items", id, inv.Items); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *txStore) GetSalesInvoice(ctx context.Context, company string, id int64) (ledger.SalesInvoice, error) {
	return getSalesInvoice(ctx, r.q, company, id, "")
}

func (r *txStore) GetSalesInvoiceForUpdate(ctx context.Context, company string, id int64) (ledger.SalesInvoice, error) {
	return getSalesInvoice(ctx, r.q, company, id, forUpdate)
}

// ListOpenSalesInvoicesForUpdate locks the customer's unpaid, non-void invoices
// oldest first. Items are not loaded.
func (r *txStore) ListOpenSalesInvoicesForUpdate(ctx context.Context, company, customer string) ([]ledger.SalesInvoice, error) {
	rows, err := r.q.Query(ctx, `SELECT `+salesInvoiceColumns()+`
FROM sales_invoices
WHERE company_code=$1 AND customer_code=$2 AND voided_at IS NULL AND balance_due > 0
ORDER BY invoice_date, id
FOR UPDATE`, company, customer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.SalesInvoice
	for rows.Next() {
		h, err := scanInvoiceHeader(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h.sales())
	}
	return out, rows.Err()
}

func (r *txStore) SetSalesInvoiceBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	return r.setBalance(ctx, "sales_invoices", "sales invoice", id, balance)
}

// VoidSalesInvoice stamps the void columns and zeroes the balance.
func (r *txStore) VoidSalesInvoice(ctx context.Context, id int64, actorID int64, reason string, at time.Time) error {
	return r.void(ctx, "sales_invoices", "sales invoice", id, actorID, reason, at)
}

func (r *txStore) ReturnedQuantities(ctx context.Context, invoiceID int64) (map[string]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT ri.product_code, SUM(ri.quantity)::BIGINT
FROM sales_return_items ri
JOIN sales_returns sr ON sr.id = ri.return_id
WHERE sr.invoice_id=$1
GROUP BY ri.product_code`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var (
			code string
			qty  int64
		)
		if err := rows.Scan(&code, &qty); err != nil {
			return nil, err
		}
		out[code] = qty
	}
	return out, rows.Err()
}

// CountSalesSettlements counts returns and receipt allocations against the invoice.
func (r *txStore) CountSalesSettlements(ctx context.Context, invoiceID int64) (int, error) {
	var n int64
	err := r.q.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM sales_returns WHERE invoice_id=$1) +
  (SELECT COUNT(*) FROM receipt_allocations WHERE invoice_id=$1)`, invoiceID).Scan(&n)
	return int(n), err
}

func (r *txStore) InsertSalesReturn(ctx context.Context, ret ledger.SalesReturn) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO sales_returns (company_code, number, return_date, invoice_id, customer_code, subtotal,
tax_amount, total_amount, credit_amount, refund_amount, status, reason, posting_ref, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW()) RETURNING id`,
		ret.CompanyCode, ret.Number, dateParam(ret.ReturnDate), ret.InvoiceID, ret.CustomerCode, numeric(ret.Subtotal),
		numeric(ret.TaxAmount), numeric(ret.TotalAmount), numeric(ret.CreditAmount), numeric(ret.RefundAmount),
		string(ret.Status), ret.Reason, ret.PostingRef, ret.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, item := range ret.Items {
		if _, err := r.q.Exec(ctx, `INSERT INTO sales_return_items (return_id, invoice_item_id, product_code, quantity, unit_price,
tax_rate, line_total, tax_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, id, item.InvoiceItemID, item.ProductCode, item.Quantity, numeric(item.UnitPrice),
			numeric(item.TaxRate), numeric(item.LineTotal), numeric(item.TaxAmount)); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r *txStore) InsertPurchaseInvoice(ctx context.Context, inv ledger.PurchaseInvoice) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO purchase_invoices (company_code, number, supplier_ref, invoice_date, due_date, supplier_code,
settlement, subtotal, tax_amount, total_amount, balance_due, posting_ref, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW()) RETURNING id`,
		inv.CompanyCode, inv.Number, inv.SupplierRef, dateParam(inv.InvoiceDate), dateParam(inv.DueDate), inv.SupplierCode,
		string(inv.Settlement), numeric(inv.Subtotal), numeric(inv.TaxAmount), numeric(inv.TotalAmount),
		numeric(inv.BalanceDue), inv.PostingRef, inv.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	if err := insertInvoiceItems(ctx, r.q, "purchase_invoice_items", id, inv.Items); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *txStore) GetPurchaseInvoice(ctx context.Context, company string, id int64) (ledger.PurchaseInvoice, error) {
	return getPurchaseInvoice(ctx, r.q, company, id, "")
}

func (r *txStore) GetPurchaseInvoiceForUpdate(ctx context.Context, company string, id int64) (ledger.PurchaseInvoice, error) {
	return getPurchaseInvoice(ctx, r.q, company, id, forUpdate)
}

func (r *txStore) ListOpenPurchaseInvoicesForUpdate(ctx context.Context, company, supplier string) ([]ledger.PurchaseInvoice, error) {
	rows, err := r.q.Query(ctx, `SELECT `+purchaseInvoiceColumns()+`
FROM purchase_invoices
WHERE company_code=$1 AND supplier_code=$2 AND voided_at IS NULL AND balance_due > 0
ORDER BY invoice_date, id
FOR UPDATE`, company, supplier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.PurchaseInvoice
	for rows.Next() {
		var supplierRef string
		h, err := scanInvoiceHeader(rows, &supplierRef)
		if err != nil {
			return nil, err
		}
		out = append(out, h.purchase(supplierRef))
	}
	return out, rows.Err()
}

func (r *txStore) SetPurchaseInvoiceBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	return r.setBalance(ctx, "purchase_invoices", "purchase invoice", id, balance)
}

func (r *txStore) VoidPurchaseInvoice(ctx context.Context, id int64, actorID int64, reason string, at time.Time) error {
	return r.void(ctx, "purchase_invoices", "purchase invoice", id, actorID, reason, at)
}

func (r *txStore) CountPurchaseSettlements(ctx context.Context, invoiceID int64) (int, error) {
	var n int64
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM payment_allocations WHERE invoice_id=$1`, invoiceID).Scan(&n)
	return int(n), err
}

func (r *txStore) InsertPaymentReceipt(ctx context.Context, rc ledger.PaymentReceipt) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO payment_receipts (company_code, number, receipt_date, customer_code, amount, method,
reference, unallocated, posting_ref, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW()) RETURNING id`,
		rc.CompanyCode, rc.Number, dateParam(rc.ReceiptDate), rc.CustomerCode, numeric(rc.Amount), rc.Method,
		rc.Reference, numeric(rc.Unallocated), rc.PostingRef, rc.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, a := range rc.Allocations {
		if _, err := r.q.Exec(ctx, `INSERT INTO receipt_allocations (receipt_id, invoice_id, amount) VALUES ($1,$2,$3)`,
			id, a.InvoiceID, numeric(a.Amount)); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r *txStore) InsertSupplierPayment(ctx context.Context, p ledger.SupplierPayment) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO supplier_payments (company_code, number, payment_date, supplier_code, amount, method,
reference, unallocated, posting_ref, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW()) RETURNING id`,
		p.CompanyCode, p.Number, dateParam(p.PaymentDate), p.SupplierCode, numeric(p.Amount), p.Method,
		p.Reference, numeric(p.Unallocated), p.PostingRef, p.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, a := range p.Allocations {
		if _, err := r.q.Exec(ctx, `INSERT INTO payment_allocations (payment_id, invoice_id, amount) VALUES ($1,$2,$3)`,
			id, a.InvoiceID, numeric(a.Amount)); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r *txStore) InsertExpense(ctx context.Context, e ledger.Expense) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO expenses (company_code, number, expense_date, head_code, amount, remarks, posting_ref, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`, e.CompanyCode, e.Number, dateParam(e.ExpenseDate), e.HeadCode,
		numeric(e.Amount), e.Remarks, e.PostingRef, e.CreatedBy).Scan(&id)
	return id, err
}

func (r *txStore) InsertCashEntry(ctx context.Context, e ledger.CashLedgerEntry) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO cash_ledger (company_code, entry_date, entry_type, description, debit, credit,
source_type, source_id, posting_ref, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW()) RETURNING id`, e.CompanyCode, dateParam(e.EntryDate), string(e.Type),
		e.Description, numeric(e.Debit), numeric(e.Credit), string(e.SourceType), e.SourceID, e.PostingRef, e.CreatedBy).Scan(&id)
	return id, err
}

func (r *txStore) setBalance(ctx context.Context, table, entity string, id int64, balance decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, `UPDATE `+table+` SET balance_due=$2, updated_at=NOW() WHERE id=$1`, id, numeric(balance))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFound(entity, strconv.FormatInt(id, 10))
	}
	return nil
}

func (r *txStore) void(ctx context.Context, table, entity string, id, actorID int64, reason string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE `+table+`
SET balance_due=0, voided_at=$2, voided_by=$3, void_reason=$4, updated_at=NOW()
WHERE id=$1 AND voided_at IS NULL`, id, at, actorID, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFound(entity, strconv.FormatInt(id, 10))
	}
	return nil
}
