package masterdata

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

// Operation names used for audit actions and logs.
const (
	OpCreateProduct     = "create_product"
	OpUpdateProduct     = "update_product"
	OpAdjustStock       = "adjust_stock"
	OpCreateCustomer    = "create_customer"
	OpUpdateCustomer    = "update_customer"
	OpCreateSupplier    = "create_supplier"
	OpUpdateSupplier    = "update_supplier"
	OpCreateExpenseHead = "create_expense_head"
	OpSetActive         = "set_active"
)

// DefaultPaymentTermsDays applies when a party is created without terms.
const DefaultPaymentTermsDays = 30

// Kind names a master data entity that can be activated or deactivated.
type Kind string

const (
	KindProduct     Kind = "product"
	KindCustomer    Kind = "customer"
	KindSupplier    Kind = "supplier"
	KindExpenseHead Kind = "expense_head"
)

// Scope identifies the company and actor a change runs for.
type Scope struct {
	CompanyCode string `json:"-" validate:"required,max=32"`
	ActorID     int64  `json:"-" validate:"gt=0"`
}

func (s *Scope) normalize() {
	s.CompanyCode = ledger.NormalizeCode(s.CompanyCode)
}

// ProductFields are the editable attributes of a product.
type ProductFields struct {
	Name          string          `json:"name" validate:"required,max=255"`
	Category      string          `json:"category" validate:"max=64"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	MinStockLevel int64           `json:"min_stock_level" validate:"gte=0"`
	TaxCode       string          `json:"tax_code" validate:"max=32"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
}

func (f *ProductFields) normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Category = strings.TrimSpace(f.Category)
	f.TaxCode = ledger.NormalizeCode(f.TaxCode)
	if f.TaxCode == "" {
		f.TaxRate = decimal.Zero
	}
}

// ProductInput creates a product with its opening stock.
type ProductInput struct {
	Scope
	Code         string `json:"code" validate:"required,max=64"`
	OpeningStock int64  `json:"opening_stock" validate:"gte=0"`
	ProductFields
}

func (in *ProductInput) normalize() {
	in.Scope.normalize()
	in.Code = ledger.NormalizeCode(in.Code)
	in.ProductFields.normalize()
}

// ProductUpdate replaces the editable attributes of a product. Documents
// already posted keep the prices they were posted with.
type ProductUpdate struct {
	Scope
	Code string `json:"-" validate:"required,max=64"`
	ProductFields
}

func (in *ProductUpdate) normalize() {
	in.Scope.normalize()
	in.Code = ledger.NormalizeCode(in.Code)
	in.ProductFields.normalize()
}

// StockAdjustment moves a product's stock by Delta outside any document.
type StockAdjustment struct {
	Scope
	Code       string `json:"-" validate:"required,max=64"`
	Delta      int64  `json:"delta" validate:"ne=0"`
	Reason     string `json:"reason" validate:"required,max=255"`
	RequestKey string `json:"request_key,omitempty" validate:"omitempty,max=128"`
}

func (in *StockAdjustment) normalize() {
	in.Scope.normalize()
	in.Code = ledger.NormalizeCode(in.Code)
	in.Reason = strings.TrimSpace(in.Reason)
	in.RequestKey = strings.TrimSpace(in.RequestKey)
}

// CustomerInput creates or edits a customer. Code is taken from the path on
// updates. A nil PaymentTermsDays means the default.
type CustomerInput struct {
	Scope
	Code             string          `json:"code" validate:"required,max=64"`
	Name             string          `json:"name" validate:"required,max=255"`
	CreditLimit      decimal.Decimal `json:"credit_limit"`
	PaymentTermsDays *int            `json:"payment_terms_days" validate:"omitempty,gte=0,lte=365"`
}

func (in *CustomerInput) normalize() {
	in.Scope.normalize()
	in.Code = ledger.NormalizeCode(in.Code)
	in.Name = strings.TrimSpace(in.Name)
}

// SupplierInput creates or edits a supplier.
type SupplierInput struct {
	Scope
	Code             string `json:"code" validate:"required,max=64"`
	Name             string `json:"name" validate:"required,max=255"`
	PaymentTermsDays *int   `json:"payment_terms_days" validate:"omitempty,gte=0,lte=365"`
}

func (in *SupplierInput) normalize() {
	in.Scope.normalize()
	in.Code = ledger.NormalizeCode(in.Code)
	in.Name = strings.TrimSpace(in.Name)
}

// ExpenseHeadInput creates an expense head.
type ExpenseHeadInput struct {
	Scope
	Code string `json:"code" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=255"`
}

func (in *ExpenseHeadInput) normalize() {
	in.Scope.normalize()
	in.Code = ledger.NormalizeCode(in.Code)
	in.Name = strings.TrimSpace(in.Name)
}

// ActiveInput activates or deactivates one entity.
type ActiveInput struct {
	Scope
	Kind   Kind   `json:"-" validate:"required,oneof=product customer supplier expense_head"`
	Code   string `json:"-" validate:"required,max=64"`
	Active bool   `json:"active"`
}

func (in *ActiveInput) normalize() {
	in.Scope.normalize()
	in.Code = ledger.NormalizeCode(in.Code)
}

func terms(days *int) int {
	if days == nil {
		return DefaultPaymentTermsDays
	}
	return *days
}
