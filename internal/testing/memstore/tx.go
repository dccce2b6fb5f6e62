package memstore

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

type txn struct {
	st     *state
	faults map[string]error
	now    func() time.Time
}

var _ ledger.Tx = (*txn)(nil)

func (t *txn) fault(method string) error {
	return t.faults[method]
}

func (t *txn) NextDocumentNumber(_ context.Context, company string, doc ledger.DocumentType) (string, error) {
	if err := t.fault("NextDocumentNumber"); err != nil {
		return "", err
	}
	k := key(company, string(doc))
	t.st.sequences[k]++
	return ledger.FormatDocumentNumber(doc, t.st.sequences[k]), nil
}

func (t *txn) ClaimRequestKey(_ context.Context, company, requestKey, module string) error {
	if err := t.fault("ClaimRequestKey"); err != nil {
		return err
	}
	k := company + "\x00" + module + "\x00" + requestKey
	if _, ok := t.st.keys[k]; ok {
		return ledger.ErrDuplicateRequest
	}
	t.st.keys[k] = t.now()
	return nil
}

func (t *txn) InsertProduct(_ context.Context, p ledger.Product) (int64, error) {
	if err := t.fault("InsertProduct"); err != nil {
		return 0, err
	}
	k := key(p.CompanyCode, p.Code)
	if _, ok := t.st.products[k]; ok {
		return 0, uniqueViolation("products_company_code_code_key")
	}
	p.ID = t.st.id()
	p.UpdatedBy = p.CreatedBy
	p.CreatedAt = t.now()
	p.UpdatedAt = p.CreatedAt
	t.st.products[k] = p
	return p.ID, nil
}

func (t *txn) UpdateProduct(_ context.Context, p ledger.Product) error {
	if err := t.fault("UpdateProduct"); err != nil {
		return err
	}
	k := key(p.CompanyCode, p.Code)
	cur, ok := t.st.products[k]
	if !ok {
		return ledger.NotFound("product", p.Code)
	}
	cur.Name = p.Name
	cur.Category = p.Category
	cur.UnitPrice = p.UnitPrice
	cur.PurchasePrice = p.PurchasePrice
	cur.MinStockLevel = p.MinStockLevel
	cur.TaxCode = p.TaxCode
	cur.TaxRate = p.TaxRate
	cur.IsActive = p.IsActive
	cur.UpdatedBy = p.UpdatedBy
	cur.UpdatedAt = t.now()
	t.st.products[k] = cur
	return nil
}

func (t *txn) GetProductForUpdate(_ context.Context, company, code string) (ledger.Product, error) {
	if err := t.fault("GetProductForUpdate"); err != nil {
		return ledger.Product{}, err
	}
	return t.st.product(company, code)
}

func (t *txn) SetProductStock(_ context.Context, company, code string, stock int64, actorID int64) error {
	if err := t.fault("SetProductStock"); err != nil {
		return err
	}
	k := key(company, code)
	p, ok := t.st.products[k]
	if !ok {
		return ledger.NotFound("product", code)
	}
	p.CurrentStock = stock
	p.UpdatedBy = actorID
	p.UpdatedAt = t.now()
	t.st.products[k] = p
	return nil
}

func (t *txn) InsertStockMovement(_ context.Context, m ledger.StockMovement) error {
	if err := t.fault("InsertStockMovement"); err != nil {
		return err
	}
	if m.QtyChange == 0 {
		return checkViolation("stock_movements_qty_change_check")
	}
	m.ID = t.st.id()
	m.MovementDate = ledger.DateOnly(m.MovementDate)
	m.CreatedAt = t.now()
	t.st.movements = append(t.st.movements, m)
	return nil
}

func (t *txn) InsertCustomer(_ context.Context, c ledger.Customer) (int64, error) {
	if err := t.fault("InsertCustomer"); err != nil {
		return 0, err
	}
	k := key(c.CompanyCode, c.Code)
	if _, ok := t.st.customers[k]; ok {
		return 0, uniqueViolation("customers_company_code_code_key")
	}
	c.ID = t.st.id()
	c.UpdatedBy = c.CreatedBy
	c.CreatedAt = t.now()
	c.UpdatedAt = c.CreatedAt
	t.st.customers[k] = c
	return c.ID, nil
}

func (t *txn) UpdateCustomer(_ context.Context, c ledger.Customer) error {
	if err := t.fault("UpdateCustomer"); err != nil {
		return err
	}
	k := key(c.CompanyCode, c.Code)
	cur, ok := t.st.customers[k]
	if !ok {
		return ledger.NotFound("customer", c.Code)
	}
	cur.Name = c.Name
	cur.CreditLimit = c.CreditLimit
	cur.PaymentTermsDays = c.PaymentTermsDays
	cur.IsActive = c.IsActive
	cur.UpdatedBy = c.UpdatedBy
	cur.UpdatedAt = t.now()
	t.st.customers[k] = cur
	return nil
}

func (t *txn) GetCustomerForUpdate(_ context.Context, company, code string) (ledger.Customer, error) {
	if err := t.fault("GetCustomerForUpdate"); err != nil {
		return ledger.Customer{}, err
	}
	return t.st.customer(company, code)
}

func (t *txn) SetCustomerBalance(_ context.Context, company, code string, balance decimal.Decimal, actorID int64) error {
	if err := t.fault("SetCustomerBalance"); err != nil {
		return err
	}
	k := key(company, code)
	c, ok := t.st.customers[k]
	if !ok {
		return ledger.NotFound("customer", code)
	}
	c.OutstandingBalance = balance
	c.UpdatedBy = actorID
	c.UpdatedAt = t.now()
	t.st.customers[k] = c
	return nil
}

func (t *txn) InsertSupplier(_ context.Context, s ledger.Supplier) (int64, error) {
	if err := t.fault("InsertSupplier"); err != nil {
		return 0, err
	}
	k := key(s.CompanyCode, s.Code)
	if _, ok := t.st.suppliers[k]; ok {
		return 0, uniqueViolation("suppliers_company_code_code_key")
	}
	s.ID = t.st.id()
	s.UpdatedBy = s.CreatedBy
	s.CreatedAt = t.now()
	s.UpdatedAt = s.CreatedAt
	t.st.suppliers[k] = s
	return s.ID, nil
}

func (t *txn) UpdateSupplier(_ context.Context, s ledger.Supplier) error {
	if err := t.fault("UpdateSupplier"); err != nil {
		return err
	}
	k := key(s.CompanyCode, s.Code)
	cur, ok := t.st.suppliers[k]
	if !ok {
		return ledger.NotFound("supplier", s.Code)
	}
	cur.Name = s.Name
	cur.PaymentTermsDays = s.PaymentTermsDays
	cur.IsActive = s.IsActive
	cur.UpdatedBy = s.UpdatedBy
	cur.UpdatedAt = t.now()
	t.st.suppliers[k] = cur
	return nil
}

func (t *txn) GetSupplierForUpdate(_ context.Context, company, code string) (ledger.Supplier, error) {
	if err := t.fault("GetSupplierForUpdate"); err != nil {
		return ledger.Supplier{}, err
	}
	return t.st.supplier(company, code)
}

func (t *txn) SetSupplierBalance(_ context.Context, company, code string, balance decimal.Decimal, actorID int64) error {
	if err := t.fault("SetSupplierBalance"); err != nil {
		return err
	}
	k := key(company, code)
	s, ok := t.st.suppliers[k]
	if !ok {
		return ledger.NotFound("supplier", code)
	}
	s.OutstandingBalance = balance
	s.UpdatedBy = actorID
	s.UpdatedAt = t.now()
	t.st.suppliers[k] = s
	return nil
}

func (t *txn) InsertExpenseHead(_ context.Context, h ledger.ExpenseHead) (int64, error) {
	if err := t.fault("InsertExpenseHead"); err != nil {
		return 0, err
	}
	k := key(h.CompanyCode, h.Code)
	if _, ok := t.st.heads[k]; ok {
		return 0, uniqueViolation("expense_heads_company_code_code_key")
	}
	h.ID = t.st.id()
	h.CreatedAt = t.now()
	t.st.heads[k] = h
	return h.ID, nil
}

func (t *txn) SetExpenseHeadActive(_ context.Context, company, code string, active bool) error {
	if err := t.fault("SetExpenseHeadActive"); err != nil {
		return err
	}
	k := key(company, code)
	h, ok := t.st.heads[k]
	if !ok {
		return ledger.NotFound("expense head", code)
	}
	h.IsActive = active
	t.st.heads[k] = h
	return nil
}

func (t *txn) GetExpenseHead(_ context.Context, company, code string) (ledger.ExpenseHead, error) {
	if err := t.fault("GetExpenseHead"); err != nil {
		return ledger.ExpenseHead{}, err
	}
	return t.st.head(company, code)
}

func (t *txn) InsertSalesInvoice(_ context.Context, inv ledger.SalesInvoice) (int64, error) {
	if err := t.fault("InsertSalesInvoice"); err != nil {
		return 0, err
	}
	if err := checkInvoice(inv.Subtotal, inv.TaxAmount, inv.TotalAmount, inv.BalanceDue, "sales_invoices"); err != nil {
		return 0, err
	}
	if _, ok := t.st.customers[key(inv.CompanyCode, inv.CustomerCode)]; !ok {
		return 0, ledger.NotFound("customer", inv.CustomerCode)
	}
	for _, existing := range t.st.salesInvoices {
		if existing.CompanyCode == inv.CompanyCode && existing.Number == inv.Number {
			return 0, uniqueViolation("sales_invoices_company_code_number_key")
		}
	}
	inv.ID = t.st.id()
	inv.InvoiceDate = ledger.DateOnly(inv.InvoiceDate)
	inv.DueDate = ledger.DateOnly(inv.DueDate)
	inv.Items = t.assignItems(inv.ID, inv.Items)
	inv.CreatedAt = t.now()
	inv.UpdatedAt = inv.CreatedAt
	t.st.salesInvoices[inv.ID] = inv
	return inv.ID, nil
}

func (t *txn) GetSalesInvoice(_ context.Context, company string, id int64) (ledger.SalesInvoice, error) {
	if err := t.fault("GetSalesInvoice"); err != nil {
		return ledger.SalesInvoice{}, err
	}
	return t.st.salesInvoice(company, id)
}

func (t *txn) GetSalesInvoiceForUpdate(_ context.Context, company string, id int64) (ledger.SalesInvoice, error) {
	if err := t.fault("GetSalesInvoiceForUpdate"); err != nil {
		return ledger.SalesInvoice{}, err
	}
	return t.st.salesInvoice(company, id)
}

func (t *txn) ListOpenSalesInvoicesForUpdate(_ context.Context, company, customer string) ([]ledger.SalesInvoice, error) {
	if err := t.fault("ListOpenSalesInvoicesForUpdate"); err != nil {
		return nil, err
	}
	var out []ledger.SalesInvoice
	for _, inv := range t.st.salesInvoices {
		if inv.CompanyCode == company && inv.CustomerCode == customer && inv.VoidedAt == nil && inv.BalanceDue.IsPositive() {
			inv.Items = nil
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InvoiceDate.Equal(out[j].InvoiceDate) {
			return out[i].InvoiceDate.Before(out[j].InvoiceDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *txn) SetSalesInvoiceBalance(_ context.Context, id int64, balance decimal.Decimal) error {
	if err := t.fault("SetSalesInvoiceBalance"); err != nil {
		return err
	}
	inv, ok := t.st.salesInvoices[id]
	if !ok {
		return ledger.NotFound("sales invoice", strconv.FormatInt(id, 10))
	}
	if err := checkInvoice(inv.Subtotal, inv.TaxAmount, inv.TotalAmount, balance, "sales_invoices"); err != nil {
		return err
	}
	inv.BalanceDue = balance
	inv.UpdatedAt = t.now()
	t.st.salesInvoices[id] = inv
	return nil
}

func (t *txn) VoidSalesInvoice(_ context.Context, id int64, actorID int64, reason string, at time.Time) error {
	if err := t.fault("VoidSalesInvoice"); err != nil {
		return err
	}
	inv, ok := t.st.salesInvoices[id]
	if !ok || inv.VoidedAt != nil {
		return ledger.NotFound("sales invoice", strconv.FormatInt(id, 10))
	}
	inv.BalanceDue = decimal.Zero
	inv.VoidedAt = &at
	inv.VoidedBy = &actorID
	inv.VoidReason = reason
	inv.UpdatedAt = t.now()
	t.st.salesInvoices[id] = inv
	return nil
}

func (t *txn) ReturnedQuantities(_ context.Context, invoiceID int64) (map[string]int64, error) {
	if err := t.fault("ReturnedQuantities"); err != nil {
		return nil, err
	}
	out := map[string]int64{}
	for _, r := range t.st.returns {
		if r.InvoiceID != invoiceID {
			continue
		}
		for _, item := range r.Items {
			out[item.ProductCode] += item.Quantity
		}
	}
	return out, nil
}

func (t *txn) CountSalesSettlements(_ context.Context, invoiceID int64) (int, error) {
	if err := t.fault("CountSalesSettlements"); err != nil {
		return 0, err
	}
	n := 0
	for _, r := range t.st.returns {
		if r.InvoiceID == invoiceID {
			n++
		}
	}
	for _, rc := range t.st.receipts {
		for _, a := range rc.Allocations {
			if a.InvoiceID == invoiceID {
				n++
			}
		}
	}
	return n, nil
}

func (t *txn) InsertSalesReturn(_ context.Context, r ledger.SalesReturn) (int64, error) {
	if err := t.fault("InsertSalesReturn"); err != nil {
		return 0, err
	}
	if _, ok := t.st.salesInvoices[r.InvoiceID]; !ok {
		return 0, ledger.NotFound("sales invoice", strconv.FormatInt(r.InvoiceID, 10))
	}
	r.ID = t.st.id()
	r.ReturnDate = ledger.DateOnly(r.ReturnDate)
	items := make([]ledger.ReturnItem, len(r.Items))
	for i, item := range r.Items {
		item.ID = t.st.id()
		item.ReturnID = r.ID
		items[i] = item
	}
	r.Items = items
	r.CreatedAt = t.now()
	t.st.returns[r.ID] = r
	return r.ID, nil
}

func (t *txn) InsertPurchaseInvoice(_ context.Context, inv ledger.PurchaseInvoice) (int64, error) {
	if err := t.fault("InsertPurchaseInvoice"); err != nil {
		return 0, err
	}
	if err := checkInvoice(inv.Subtotal, inv.TaxAmount, inv.TotalAmount, inv.BalanceDue, "purchase_invoices"); err != nil {
		return 0, err
	}
	if _, ok := t.st.suppliers[key(inv.CompanyCode, inv.SupplierCode)]; !ok {
		return 0, ledger.NotFound("supplier", inv.SupplierCode)
	}
	inv.ID = t.st.id()
	inv.InvoiceDate = ledger.DateOnly(inv.InvoiceDate)
	inv.DueDate = ledger.DateOnly(inv.DueDate)
	inv.Items = t.assignItems(inv.ID, inv.Items)
	inv.CreatedAt = t.now()
	inv.UpdatedAt = inv.CreatedAt
	t.st.purchaseInvoices[inv.ID] = inv
	return inv.ID, nil
}

func (t *txn) GetPurchaseInvoice(_ context.Context, company string, id int64) (ledger.PurchaseInvoice, error) {
	if err := t.fault("GetPurchaseInvoice"); err != nil {
		return ledger.PurchaseInvoice{}, err
	}
	return t.st.purchaseInvoice(company, id)
}

func (t *txn) GetPurchaseInvoiceForUpdate(_ context.Context, company string, id int64) (ledger.PurchaseInvoice, error) {
	if err := t.fault("GetPurchaseInvoiceForUpdate"); err != nil {
		return ledger.PurchaseInvoice{}, err
	}
	return t.st.purchaseInvoice(company, id)
}

func (t *txn) ListOpenPurchaseInvoicesForUpdate(_ context.Context, company, supplier string) ([]ledger.PurchaseInvoice, error) {
	if err := t.fault("ListOpenPurchaseInvoicesForUpdate"); err != nil {
		return nil, err
	}
	var out []ledger.PurchaseInvoice
	for _, inv := range t.st.purchaseInvoices {
		if inv.CompanyCode == company && inv.SupplierCode == supplier && inv.VoidedAt == nil && inv.BalanceDue.IsPositive() {
			inv.Items = nil
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InvoiceDate.Equal(out[j].InvoiceDate) {
			return out[i].InvoiceDate.Before(out[j].InvoiceDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *txn) SetPurchaseInvoiceBalance(_ context.Context, id int64, balance decimal.Decimal) error {
	if err := t.fault("SetPurchaseInvoiceBalance"); err != nil {
		return err
	}
	inv, ok := t.st.purchaseInvoices[id]
	if !ok {
		return ledger.NotFound("purchase invoice", strconv.FormatInt(id, 10))
	}
	if err := checkInvoice(inv.Subtotal, inv.TaxAmount, inv.TotalAmount, balance, "purchase_invoices"); err != nil {
		return err
	}
	inv.BalanceDue = balance
	inv.UpdatedAt = t.now()
	t.st.purchaseInvoices[id] = inv
	return nil
}

func (t *txn) VoidPurchaseInvoice(_ context.Context, id int64, actorID int64, reason string, at time.Time) error {
	if err := t.fault("VoidPurchaseInvoice"); err != nil {
		return err
	}
	inv, ok := t.st.purchaseInvoices[id]
	if !ok || inv.VoidedAt != nil {
		return ledger.NotFound("purchase invoice", strconv.FormatInt(id, 10))
	}
	inv.BalanceDue = decimal.Zero
	inv.VoidedAt = &at
	inv.VoidedBy = &actorID
	inv.VoidReason = reason
	inv.UpdatedAt = t.now()
	t.st.purchaseInvoices[id] = inv
	return nil
}

func (t *txn) CountPurchaseSettlements(_ context.Context, invoiceID int64) (int, error) {
	if err := t.fault("CountPurchaseSettlements"); err != nil {
		return 0, err
	}
	n := 0
	for _, p := range t.st.payments {
		for _, a := range p.Allocations {
			if a.InvoiceID == invoiceID {
				n++
			}
		}
	}
	return n, nil
}

func (t *txn) InsertPaymentReceipt(_ context.Context, r ledger.PaymentReceipt) (int64, error) {
	if err := t.fault("InsertPaymentReceipt"); err != nil {
		return 0, err
	}
	if !r.Amount.IsPositive() {
		return 0, checkViolation("payment_receipts_amount_check")
	}
	if r.Reference == "" {
		return 0, checkViolation("payment_receipts_reference_check")
	}
	r.ID = t.st.id()
	r.ReceiptDate = ledger.DateOnly(r.ReceiptDate)
	r.Allocations = append([]ledger.Allocation(nil), r.Allocations...)
	r.CreatedAt = t.now()
	t.st.receipts = append(t.st.receipts, r)
	return r.ID, nil
}

func (t *txn) InsertSupplierPayment(_ context.Context, p ledger.SupplierPayment) (int64, error) {
	if err := t.fault("InsertSupplierPayment"); err != nil {
		return 0, err
	}
	if !p.Amount.IsPositive() {
		return 0, checkViolation("supplier_payments_amount_check")
	}
	if p.Reference == "" {
		return 0, checkViolation("supplier_payments_reference_check")
	}
	p.ID = t.st.id()
	p.PaymentDate = ledger.DateOnly(p.PaymentDate)
	p.Allocations = append([]ledger.Allocation(nil), p.Allocations...)
	p.CreatedAt = t.now()
	t.st.payments = append(t.st.payments, p)
	return p.ID, nil
}

func (t *txn) InsertExpense(_ context.Context, e ledger.Expense) (int64, error) {
	if err := t.fault("InsertExpense"); err != nil {
		return 0, err
	}
	if !e.Amount.IsPositive() {
		return 0, checkViolation("expenses_amount_check")
	}
	e.ID = t.st.id()
	e.ExpenseDate = ledger.DateOnly(e.ExpenseDate)
	e.CreatedAt = t.now()
	t.st.expenses = append(t.st.expenses, e)
	return e.ID, nil
}

func (t *txn) InsertCashEntry(_ context.Context, e ledger.CashLedgerEntry) (int64, error) {
	if err := t.fault("InsertCashEntry"); err != nil {
		return 0, err
	}
	debit, credit := e.Debit.IsPositive(), e.Credit.IsPositive()
	if debit == credit || e.Debit.IsNegative() || e.Credit.IsNegative() {
		return 0, checkViolation("cash_ledger_check")
	}
	e.ID = t.st.id()
	e.EntryDate = ledger.DateOnly(e.EntryDate)
	e.CreatedAt = t.now()
	t.st.cash = append(t.st.cash, e)
	return e.ID, nil
}

func (t *txn) assignItems(invoiceID int64, items []ledger.InvoiceItem) []ledger.InvoiceItem {
	out := make([]ledger.InvoiceItem, len(items))
	for i, item := range items {
		item.ID = t.st.id()
		item.InvoiceID = invoiceID
		if item.LineNo == 0 {
			item.LineNo = i + 1
		}
		out[i] = item
	}
	return out
}

func checkInvoice(subtotal, tax, total, balance decimal.Decimal, table string) error {
	if !subtotal.Add(tax).Equal(total) {
		return checkViolation(table + "_check")
	}
	if balance.IsNegative() || balance.GreaterThan(total) {
		return checkViolation(table + "_balance_due_check")
	}
	return nil
}
