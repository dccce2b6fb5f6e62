package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the durable Ledger Store. Every posting runs inside WithTx; an error
// returned by fn rolls back every write made through the Tx.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	Reader
}

// Reader exposes committed state outside a posting transaction.
type Reader interface {
	GetProduct(ctx context.Context, company, code string) (Product, error)
	GetCustomer(ctx context.Context, company, code string) (Customer, error)
	GetSupplier(ctx context.Context, company, code string) (Supplier, error)
	GetExpenseHead(ctx context.Context, company, code string) (ExpenseHead, error)
	GetSalesInvoice(ctx context.Context, company string, id int64) (SalesInvoice, error)
	GetPurchaseInvoice(ctx context.Context, company string, id int64) (PurchaseInvoice, error)
	GetSalesReturn(ctx context.Context, company string, id int64) (SalesReturn, error)
	CashBalance(ctx context.Context, company string, asOf time.Time) (decimal.Decimal, error)
}

// Tx is the write surface of one posting transaction. Methods suffixed
// ForUpdate lock the row until commit or rollback.
type Tx interface {
	NextDocumentNumber(ctx context.Context, company string, doc DocumentType) (string, error)
	ClaimRequestKey(ctx context.Context, company, key, module string) error

	InsertProduct(ctx context.Context, p Product) (int64, error)
	UpdateProduct(ctx context.Context, p Product) error
	GetProductForUpdate(ctx context.Context, company, code string) (Product, error)
	SetProductStock(ctx context.Context, company, code string, stock int64, actorID int64) error
	InsertStockMovement(ctx context.Context, m StockMovement) error

	InsertCustomer(ctx context.Context, c Customer) (int64, error)
	UpdateCustomer(ctx context.Context, c Customer) error
	GetCustomerForUpdate(ctx context.Context, company, code string) (Customer, error)
	SetCustomerBalance(ctx context.Context, company, code string, balance decimal.Decimal, actorID int64) error

	InsertSupplier(ctx context.Context, s Supplier) (int64, error)
	UpdateSupplier(ctx context.Context, s Supplier) error
	GetSupplierForUpdate(ctx context.Context, company, code string) (Supplier, error)
	SetSupplierBalance(ctx context.Context, company, code string, balance decimal.Decimal, actorID int64) error

	InsertExpenseHead(ctx context.Context, h ExpenseHead) (int64, error)
	SetExpenseHeadActive(ctx context.Context, company, code string, active bool) error
	GetExpenseHead(ctx context.Context, company, code string) (ExpenseHead, error)

	InsertSalesInvoice(ctx context.Context, inv SalesInvoice) (int64, error)
	GetSalesInvoice(ctx context.Context, company string, id int64) (SalesInvoice, error)
	GetSalesInvoiceForUpdate(ctx context.Context, company string, id int64) (SalesInvoice, error)
	ListOpenSalesInvoicesForUpdate(ctx context.Context, company, customer string) ([]SalesInvoice, error)
	SetSalesInvoiceBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	VoidSalesInvoice(ctx context.Context, id int64, actorID int64, reason string, at time.Time) error
	ReturnedQuantities(ctx context.Context, invoiceID int64) (map[string]int64, error)
	CountSalesSettlements(ctx context.Context, invoiceID int64) (int, error)
	InsertSalesReturn(ctx context.Context, r SalesReturn) (int64, error)

	InsertPurchaseInvoice(ctx context.Context, inv PurchaseInvoice) (int64, error)
	GetPurchaseInvoice(ctx context.Context, company string, id int64) (PurchaseInvoice, error)
	GetPurchaseInvoiceForUpdate(ctx context.Context, company string, id int64) (PurchaseInvoice, error)
	ListOpenPurchaseInvoicesForUpdate(ctx context.Context, company, supplier string) ([]PurchaseInvoice, error)
	SetPurchaseInvoiceBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	VoidPurchaseInvoice(ctx context.Context, id int64, actorID int64, reason string, at time.Time) error
	CountPurchaseSettlements(ctx context.Context, invoiceID int64) (int, error)

	InsertPaymentReceipt(ctx context.Context, r PaymentReceipt) (int64, error)
	InsertSupplierPayment(ctx context.Context, p SupplierPayment) (int64, error)
	InsertExpense(ctx context.Context, e Expense) (int64, error)
	InsertCashEntry(ctx context.Context, e CashLedgerEntry) (int64, error)
}
