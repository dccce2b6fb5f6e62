package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Settlement describes how a document was settled when it was created.
type Settlement string

const (
	// SettlementPaid marks a document paid in full at creation.
	SettlementPaid Settlement = "PAID"
	// SettlementPending marks a document booked on credit.
	SettlementPending Settlement = "PENDING"
)

// Valid reports whether the settlement is one of the supported values.
func (s Settlement) Valid() bool {
	return s == SettlementPaid || s == SettlementPending
}

// DocumentType enumerates numbered documents.
type DocumentType string

const (
	DocSalesInvoice    DocumentType = "SALES_INVOICE"
	DocSalesReturn     DocumentType = "SALES_RETURN"
	DocPurchaseInvoice DocumentType = "PURCHASE_INVOICE"
	DocPaymentReceipt  DocumentType = "PAYMENT_RECEIPT"
	DocSupplierPayment DocumentType = "SUPPLIER_PAYMENT"
	DocExpense         DocumentType = "EXPENSE"
	DocStockAdjustment DocumentType = "STOCK_ADJUSTMENT"
)

// Prefix returns the printable number prefix for the document type.
func (d DocumentType) Prefix() string {
	switch d {
	case DocSalesInvoice:
		return "INV"
	case DocSalesReturn:
		return "RET"
	case DocPurchaseInvoice:
		return "PUR"
	case DocPaymentReceipt:
		return "RCV"
	case DocSupplierPayment:
		return "PAY"
	case DocExpense:
		return "EXP"
	case DocStockAdjustment:
		return "ADJ"
	default:
		return "DOC"
	}
}

// FormatDocumentNumber renders a sequence value as a printable document number,
// for example INV-000042.
func FormatDocumentNumber(doc DocumentType, seq int64) string {
	return fmt.Sprintf("%s-%06d", doc.Prefix(), seq)
}

// Product is a stocked item.
type Product struct {
	ID            int64           `json:"id"`
	CompanyCode   string          `json:"company_code"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	CurrentStock  int64           `json:"current_stock"`
	MinStockLevel int64           `json:"min_stock_level"`
	TaxCode       string          `json:"tax_code"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	IsActive      bool            `json:"is_active"`
	CreatedBy     int64           `json:"created_by"`
	UpdatedBy     int64           `json:"updated_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Customer owes the business money.
type Customer struct {
	ID                 int64           `json:"id"`
	CompanyCode        string          `json:"company_code"`
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	PaymentTermsDays   int             `json:"payment_terms_days"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	IsActive           bool            `json:"is_active"`
	CreatedBy          int64           `json:"created_by"`
	UpdatedBy          int64           `json:"updated_by"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Supplier is owed money by the business.
type Supplier struct {
	ID                 int64           `json:"id"`
	CompanyCode        string          `json:"company_code"`
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	PaymentTermsDays   int             `json:"payment_terms_days"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	IsActive           bool            `json:"is_active"`
	CreatedBy          int64           `json:"created_by"`
	UpdatedBy          int64           `json:"updated_by"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ExpenseHead categorises expenses.
type ExpenseHead struct {
	ID          int64     `json:"id"`
	CompanyCode string    `json:"company_code"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	IsActive    bool      `json:"is_active"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// InvoiceItem is one priced line on a sales or purchase invoice. UnitPrice and
// TaxRate are snapshots taken when the invoice was posted.
type InvoiceItem struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	LineNo      int             `json:"line_no"`
	ProductCode string          `json:"product_code"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	LineTotal   decimal.Decimal `json:"line_total"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
}

// SalesInvoice is a posted sale. Status is derived, see projection.go.
type SalesInvoice struct {
	ID           int64           `json:"id"`
	CompanyCode  string          `json:"company_code"`
	Number       string          `json:"number"`
	InvoiceDate  time.Time       `json:"invoice_date"`
	DueDate      time.Time       `json:"due_date"`
	CustomerCode string          `json:"customer_code"`
	Settlement   Settlement      `json:"settlement"`
	Items        []InvoiceItem   `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	BalanceDue   decimal.Decimal `json:"balance_due"`
	PostingRef   uuid.UUID       `json:"posting_ref"`
	VoidedAt     *time.Time      `json:"voided_at,omitempty"`
	VoidedBy     *int64          `json:"voided_by,omitempty"`
	VoidReason   string          `json:"void_reason,omitempty"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PurchaseInvoice is a posted goods receipt billed by a supplier.
type PurchaseInvoice struct {
	ID           int64           `json:"id"`
	CompanyCode  string          `json:"company_code"`
	Number       string          `json:"number"`
	SupplierRef  string          `json:"supplier_ref"`
	InvoiceDate  time.Time       `json:"invoice_date"`
	DueDate      time.Time       `json:"due_date"`
	SupplierCode string          `json:"supplier_code"`
	Settlement   Settlement      `json:"settlement"`
	Items        []InvoiceItem   `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	BalanceDue   decimal.Decimal `json:"balance_due"`
	PostingRef   uuid.UUID       `json:"posting_ref"`
	VoidedAt     *time.Time      `json:"voided_at,omitempty"`
	VoidedBy     *int64          `json:"voided_by,omitempty"`
	VoidReason   string          `json:"void_reason,omitempty"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ReturnStatus enumerates return states.
type ReturnStatus string

// ReturnStatusCompleted is the only state a committed return can be in.
const ReturnStatusCompleted ReturnStatus = "COMPLETED"

// ReturnItem is one returned line, priced from the originating invoice line.
type ReturnItem struct {
	ID            int64           `json:"id"`
	ReturnID      int64           `json:"return_id"`
	InvoiceItemID int64           `json:"invoice_item_id"`
	ProductCode   string          `json:"product_code"`
	Quantity      int64           `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	LineTotal     decimal.Decimal `json:"line_total"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
}

// SalesReturn reverses part of a sales invoice.
type SalesReturn struct {
	ID           int64           `json:"id"`
	CompanyCode  string          `json:"company_code"`
	Number       string          `json:"number"`
	ReturnDate   time.Time       `json:"return_date"`
	InvoiceID    int64           `json:"invoice_id"`
	CustomerCode string          `json:"customer_code"`
	Items        []ReturnItem    `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	CreditAmount decimal.Decimal `json:"credit_amount"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Status       ReturnStatus    `json:"status"`
	Reason       string          `json:"reason,omitempty"`
	PostingRef   uuid.UUID       `json:"posting_ref"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Allocation records how much of a payment settled one invoice.
type Allocation struct {
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
}

// PaymentReceipt is money received from a customer.
type PaymentReceipt struct {
	ID           int64           `json:"id"`
	CompanyCode  string          `json:"company_code"`
	Number       string          `json:"number"`
	ReceiptDate  time.Time       `json:"receipt_date"`
	CustomerCode string          `json:"customer_code"`
	Amount       decimal.Decimal `json:"amount"`
	Method       string          `json:"method"`
	Reference    string          `json:"reference"`
	Allocations  []Allocation    `json:"allocations"`
	Unallocated  decimal.Decimal `json:"unallocated"`
	PostingRef   uuid.UUID       `json:"posting_ref"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SupplierPayment is money paid to a supplier.
type SupplierPayment struct {
	ID           int64           `json:"id"`
	CompanyCode  string          `json:"company_code"`
	Number       string          `json:"number"`
	PaymentDate  time.Time       `json:"payment_date"`
	SupplierCode string          `json:"supplier_code"`
	Amount       decimal.Decimal `json:"amount"`
	Method       string          `json:"method"`
	Reference    string          `json:"reference"`
	Allocations  []Allocation    `json:"allocations"`
	Unallocated  decimal.Decimal `json:"unallocated"`
	PostingRef   uuid.UUID       `json:"posting_ref"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Expense is an operating outflow booked against an expense head.
type Expense struct {
	ID          int64           `json:"id"`
	CompanyCode string          `json:"company_code"`
	Number      string          `json:"number"`
	ExpenseDate time.Time       `json:"expense_date"`
	HeadCode    string          `json:"head_code"`
	Amount      decimal.Decimal `json:"amount"`
	Remarks     string          `json:"remarks"`
	PostingRef  uuid.UUID       `json:"posting_ref"`
	CreatedBy   int64           `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CashEntryType tags cash book rows by origin.
type CashEntryType string

const (
	CashSales           CashEntryType = "SALES"
	CashSalesReturn     CashEntryType = "SALES_RETURN"
	CashSalesVoid       CashEntryType = "SALES_VOID"
	CashReceipt         CashEntryType = "RECEIPT"
	CashPurchase        CashEntryType = "PURCHASE"
	CashPurchaseVoid    CashEntryType = "PURCHASE_VOID"
	CashSupplierPayment CashEntryType = "SUPPLIER_PAYMENT"
	CashExpense         CashEntryType = "EXPENSE"
)

// CashLedgerEntry is one append-only cash book row. Exactly one of Debit
// (inflow) and Credit (outflow) is non-zero.
type CashLedgerEntry struct {
	ID          int64           `json:"id"`
	CompanyCode string          `json:"company_code"`
	EntryDate   time.Time       `json:"entry_date"`
	Type        CashEntryType   `json:"type"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	SourceType  DocumentType    `json:"source_type"`
	SourceID    int64           `json:"source_id"`
	PostingRef  uuid.UUID       `json:"posting_ref"`
	CreatedBy   int64           `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// MovementType tags stock movements by origin.
type MovementType string

const (
	MovementOpening      MovementType = "OPENING"
	MovementSale         MovementType = "SALE"
	MovementSaleReturn   MovementType = "SALE_RETURN"
	MovementSaleVoid     MovementType = "SALE_VOID"
	MovementPurchase     MovementType = "PURCHASE"
	MovementPurchaseVoid MovementType = "PURCHASE_VOID"
	MovementAdjust       MovementType = "ADJUST"
)

// StockMovement pairs a change of Product.CurrentStock with the document line
// that caused it.
type StockMovement struct {
	ID           int64        `json:"id"`
	CompanyCode  string       `json:"company_code"`
	ProductCode  string       `json:"product_code"`
	Type         MovementType `json:"type"`
	QtyChange    int64        `json:"qty_change"`
	BalanceAfter int64        `json:"balance_after"`
	SourceType   DocumentType `json:"source_type"`
	SourceID     int64        `json:"source_id"`
	SourceLine   int          `json:"source_line"`
	MovementDate time.Time    `json:"movement_date"`
	Note         string       `json:"note,omitempty"`
	PostingRef   uuid.UUID    `json:"posting_ref"`
	CreatedBy    int64        `json:"created_by"`
	CreatedAt    time.Time    `json:"created_at"`
}
