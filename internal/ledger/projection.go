package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is derived from balance fields at read time and never stored.
type InvoiceStatus string

const (
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPartial InvoiceStatus = "PARTIAL"
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
	InvoiceStatusVoid    InvoiceStatus = "VOID"
)

// DeriveInvoiceStatus maps balance_due/total_amount to a status. An unpaid
// balance past its due date is OVERDUE regardless of partial payments.
func DeriveInvoiceStatus(total, balanceDue decimal.Decimal, dueDate time.Time, voided bool, asOf time.Time) InvoiceStatus {
	switch {
	case voided:
		return InvoiceStatusVoid
	case !balanceDue.IsPositive():
		return InvoiceStatusPaid
	case !dueDate.IsZero() && dateOnly(asOf).After(dateOnly(dueDate)):
		return InvoiceStatusOverdue
	case balanceDue.GreaterThanOrEqual(total):
		return InvoiceStatusPending
	default:
		return InvoiceStatusPartial
	}
}

// Status derives the invoice status as of now.
func (inv SalesInvoice) Status() InvoiceStatus {
	return inv.StatusAt(time.Now())
}

// StatusAt derives the invoice status as of the given date.
func (inv SalesInvoice) StatusAt(asOf time.Time) InvoiceStatus {
	return DeriveInvoiceStatus(inv.TotalAmount, inv.BalanceDue, inv.DueDate, inv.VoidedAt != nil, asOf)
}

// PaidAmount is the settled part of the invoice.
func (inv SalesInvoice) PaidAmount() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.BalanceDue)
}

// Status derives the invoice status as of now.
func (inv PurchaseInvoice) Status() InvoiceStatus {
	return inv.StatusAt(time.Now())
}

// StatusAt derives the invoice status as of the given date.
func (inv PurchaseInvoice) StatusAt(asOf time.Time) InvoiceStatus {
	return DeriveInvoiceStatus(inv.TotalAmount, inv.BalanceDue, inv.DueDate, inv.VoidedAt != nil, asOf)
}

// StockLevel classifies current stock against the minimum level.
type StockLevel string

const (
	StockOut StockLevel = "OUT_OF_STOCK"
	StockLow StockLevel = "LOW_STOCK"
	StockOK  StockLevel = "IN_STOCK"
)

// ClassifyStock maps a stock quantity to a StockLevel.
func ClassifyStock(current, minimum int64) StockLevel {
	switch {
	case current <= 0:
		return StockOut
	case current <= minimum:
		return StockLow
	default:
		return StockOK
	}
}

// StockLevel classifies the product's current stock.
func (p Product) StockLevel() StockLevel {
	return ClassifyStock(p.CurrentStock, p.MinStockLevel)
}

// DateOnly truncates t to a UTC calendar date.
func DateOnly(t time.Time) time.Time {
	return dateOnly(t)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
