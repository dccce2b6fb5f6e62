package posting

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

// Operation names used for metrics, logs and audit actions.
const (
	OpCreateSalesInvoice    = "create_sales_invoice"
	OpCreateSalesReturn     = "create_sales_return"
	OpVoidSalesInvoice      = "void_sales_invoice"
	OpReissueSalesInvoice   = "reissue_sales_invoice"
	OpCreatePurchaseInvoice = "create_purchase_invoice"
	OpVoidPurchaseInvoice   = "void_purchase_invoice"
	OpRecordPaymentReceipt  = "record_payment_receipt"
	OpRecordSupplierPayment = "record_supplier_payment"
	OpRecordExpense         = "record_expense"
)

// DefaultPaymentMethod is used when a receipt or payment names no method.
const DefaultPaymentMethod = "CASH"

// Scope identifies the company and actor a posting runs for.
type Scope struct {
	CompanyCode string `json:"-" validate:"required,max=32"`
	ActorID     int64  `json:"-" validate:"gt=0"`
}

func (s *Scope) normalize() {
	s.CompanyCode = ledger.NormalizeCode(s.CompanyCode)
}

// SalesLineInput is one requested sales invoice line.
type SalesLineInput struct {
	ProductCode string `json:"product_code" validate:"required,max=64"`
	Quantity    int64  `json:"quantity" validate:"gt=0"`
	Description string `json:"description,omitempty" validate:"max=255"`
}

// SalesInvoiceInput requests a new sales invoice. A zero InvoiceDate means today.
type SalesInvoiceInput struct {
	Scope
	CustomerCode string            `json:"customer_code" validate:"required,max=64"`
	InvoiceDate  time.Time         `json:"invoice_date"`
	Settlement   ledger.Settlement `json:"settlement" validate:"required,oneof=PAID PENDING"`
	Lines        []SalesLineInput  `json:"lines" validate:"required,min=1,dive"`
	RequestKey   string            `json:"request_key,omitempty" validate:"omitempty,max=128"`
}

func (in *SalesInvoiceInput) normalize() {
	in.Scope.normalize()
	in.CustomerCode = ledger.NormalizeCode(in.CustomerCode)
	in.Settlement = ledger.Settlement(ledger.NormalizeCode(string(in.Settlement)))
	in.RequestKey = strings.TrimSpace(in.RequestKey)
	for i := range in.Lines {
		in.Lines[i].ProductCode = ledger.NormalizeCode(in.Lines[i].ProductCode)
		in.Lines[i].Description = strings.TrimSpace(in.Lines[i].Description)
	}
}

func (in SalesInvoiceInput) productCodes() []string {
	codes := make([]string, len(in.Lines))
	for i, line := range in.Lines {
		codes[i] = line.ProductCode
	}
	return codes
}

// ReturnLineInput is one returned product quantity.
type ReturnLineInput struct {
	ProductCode string `json:"product_code" validate:"required,max=64"`
	Quantity    int64  `json:"quantity" validate:"gt=0"`
}

// SalesReturnInput requests a return against a sales invoice.
type SalesReturnInput struct {
	Scope
	InvoiceID  int64             `json:"invoice_id" validate:"gt=0"`
	ReturnDate time.Time         `json:"return_date"`
	Lines      []ReturnLineInput `json:"lines" validate:"required,min=1,dive"`
	Reason     string            `json:"reason,omitempty" validate:"max=255"`
	RequestKey string            `json:"request_key,omitempty" validate:"omitempty,max=128"`
}

func (in *SalesReturnInput) normalize() {
	in.Scope.normalize()
	in.Reason = strings.TrimSpace(in.Reason)
	in.RequestKey = strings.TrimSpace(in.RequestKey)
	for i := range in.Lines {
		in.Lines[i].ProductCode = ledger.NormalizeCode(in.Lines[i].ProductCode)
	}
}

// VoidInput requests a compensating void of an invoice.
type VoidInput struct {
	Scope
	InvoiceID int64  `json:"invoice_id" validate:"gt=0"`
	Reason    string `json:"reason" validate:"required,max=255"`
}

func (in *VoidInput) normalize() {
	in.Scope.normalize()
	in.Reason = strings.TrimSpace(in.Reason)
}

// ReissueInput voids an invoice and posts its replacement in one transaction.
// The replacement inherits the scope of the void.
type ReissueInput struct {
	Void        VoidInput         `json:"void"`
	Replacement SalesInvoiceInput `json:"replacement"`
}

// PurchaseLineInput is one received product line. A nil UnitCost falls back
// to the product's purchase price.
type PurchaseLineInput struct {
	ProductCode string           `json:"product_code" validate:"required,max=64"`
	Quantity    int64            `json:"quantity" validate:"gt=0"`
	UnitCost    *decimal.Decimal `json:"unit_cost,omitempty"`
	Description string           `json:"description,omitempty" validate:"max=255"`
}

// PurchaseInvoiceInput requests a new purchase invoice.
type PurchaseInvoiceInput struct {
	Scope
	SupplierCode string              `json:"supplier_code" validate:"required,max=64"`
	SupplierRef  string              `json:"supplier_ref,omitempty" validate:"max=64"`
	InvoiceDate  time.Time           `json:"invoice_date"`
	Settlement   ledger.Settlement   `json:"settlement" validate:"required,oneof=PAID PENDING"`
	Lines        []PurchaseLineInput `json:"lines" validate:"required,min=1,dive"`
	RequestKey   string              `json:"request_key,omitempty" validate:"omitempty,max=128"`
}

func (in *PurchaseInvoiceInput) normalize() {
	in.Scope.normalize()
	in.SupplierCode = ledger.NormalizeCode(in.SupplierCode)
	in.SupplierRef = strings.TrimSpace(in.SupplierRef)
	in.Settlement = ledger.Settlement(ledger.NormalizeCode(string(in.Settlement)))
	in.RequestKey = strings.TrimSpace(in.RequestKey)
	for i := range in.Lines {
		in.Lines[i].ProductCode = ledger.NormalizeCode(in.Lines[i].ProductCode)
		in.Lines[i].Description = strings.TrimSpace(in.Lines[i].Description)
	}
}

// PaymentInput records money received from a customer or paid to a supplier.
// InvoiceID, when set, is settled before the FIFO allocation.
type PaymentInput struct {
	Scope
	PartyCode  string          `json:"party_code" validate:"required,max=64"`
	Amount     decimal.Decimal `json:"amount"`
	Date       time.Time       `json:"date"`
	Method     string          `json:"method,omitempty" validate:"max=32"`
	Reference  string          `json:"reference" validate:"required,max=128"`
	InvoiceID  *int64          `json:"invoice_id,omitempty"`
	RequestKey string          `json:"request_key,omitempty" validate:"omitempty,max=128"`
}

func (in *PaymentInput) normalize() {
	in.Scope.normalize()
	in.PartyCode = ledger.NormalizeCode(in.PartyCode)
	in.Method = ledger.NormalizeCode(in.Method)
	if in.Method == "" {
		in.Method = DefaultPaymentMethod
	}
	in.Reference = strings.TrimSpace(in.Reference)
	in.RequestKey = strings.TrimSpace(in.RequestKey)
}

// ExpenseInput records an operating expense paid in cash.
type ExpenseInput struct {
	Scope
	HeadCode    string          `json:"head_code" validate:"required,max=64"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate time.Time       `json:"expense_date"`
	Remarks     string          `json:"remarks" validate:"required,max=255"`
	RequestKey  string          `json:"request_key,omitempty" validate:"omitempty,max=128"`
}

func (in *ExpenseInput) normalize() {
	in.Scope.normalize()
	in.HeadCode = ledger.NormalizeCode(in.HeadCode)
	in.Remarks = strings.TrimSpace(in.Remarks)
	in.RequestKey = strings.TrimSpace(in.RequestKey)
}
