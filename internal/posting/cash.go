package posting

import (
	"context"
	"fmt"
	"strconv"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

const (
	modulePaymentReceipt  = "payment_receipt"
	moduleSupplierPayment = "supplier_payment"
	moduleExpense         = "expense"
)

func (s *Service) preparePayment(in *PaymentInput) error {
	in.normalize()
	if err := s.check(in); err != nil {
		return err
	}
	if err := checkAmount("amount", in.Amount); err != nil {
		return err
	}
	if in.InvoiceID != nil && *in.InvoiceID <= 0 {
		return ledger.Invalid("invoice_id", "must be greater than 0")
	}
	if in.Date.IsZero() {
		in.Date = s.today()
	}
	return nil
}

// RecordPaymentReceipt books money received from a customer and settles
// open invoices, the named one first and then oldest first. Overpayment
// leaves the customer with a credit balance.
func (s *Service) RecordPaymentReceipt(ctx context.Context, in PaymentInput) (ledger.PaymentReceipt, error) {
	if err := s.preparePayment(&in); err != nil {
		return ledger.PaymentReceipt{}, fmt.Errorf("posting: record payment receipt: %w", err)
	}
	var receipt ledger.PaymentReceipt
	err := s.run(ctx, OpRecordPaymentReceipt, in.CompanyCode, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		receipt, err = s.begin(tx, in.Scope, in.Date).paymentReceipt(ctx, in)
		return err
	})
	if err != nil {
		return ledger.PaymentReceipt{}, fmt.Errorf("posting: record payment receipt: %w", err)
	}
	s.committed(ctx, in.Scope, OpRecordPaymentReceipt, "payment_receipt", strconv.FormatInt(receipt.ID, 10), map[string]any{
		"number":      receipt.Number,
		"customer":    receipt.CustomerCode,
		"amount":      receipt.Amount.StringFixed(2),
		"allocations": len(receipt.Allocations),
	})
	return receipt, nil
}

func (p *posting) paymentReceipt(ctx context.Context, in PaymentInput) (ledger.PaymentReceipt, error) {
	if err := p.claim(ctx, in.RequestKey, modulePaymentReceipt); err != nil {
		return ledger.PaymentReceipt{}, err
	}
	customer, err := p.tx.GetCustomerForUpdate(ctx, p.company(), in.PartyCode)
	if err != nil {
		return ledger.PaymentReceipt{}, err
	}
	var preferred int64
	if in.InvoiceID != nil {
		inv, err := p.tx.GetSalesInvoiceForUpdate(ctx, p.company(), *in.InvoiceID)
		if err != nil {
			return ledger.PaymentReceipt{}, err
		}
		if inv.CustomerCode != customer.Code {
			return ledger.PaymentReceipt{}, ledger.Invalid("invoice_id", "invoice belongs to another customer")
		}
		if inv.VoidedAt != nil {
			return ledger.PaymentReceipt{}, ledger.Invalid("invoice_id", "invoice is void")
		}
		preferred = inv.ID
	}
	invoices, err := p.tx.ListOpenSalesInvoicesForUpdate(ctx, p.company(), customer.Code)
	if err != nil {
		return ledger.PaymentReceipt{}, err
	}
	open := make([]openInvoice, len(invoices))
	for i, inv := range invoices {
		open[i] = openInvoice{id: inv.ID, number: inv.Number, balance: inv.BalanceDue}
	}
	allocations, unallocated := allocate(in.Amount, open, preferred)
	for _, a := range allocations {
		for _, inv := range open {
			if inv.id != a.InvoiceID {
				continue
			}
			if err := p.tx.SetSalesInvoiceBalance(ctx, inv.id, inv.balance.Sub(a.Amount)); err != nil {
				return ledger.PaymentReceipt{}, err
			}
		}
	}

	number, err := p.tx.NextDocumentNumber(ctx, p.company(), ledger.DocPaymentReceipt)
	if err != nil {
		return ledger.PaymentReceipt{}, err
	}
	receipt := ledger.PaymentReceipt{
		CompanyCode:  p.company(),
		Number:       number,
		ReceiptDate:  p.date,
		CustomerCode: customer.Code,
		Amount:       in.Amount,
		Method:       in.Method,
		Reference:    in.Reference,
		Allocations:  allocations,
		Unallocated:  unallocated,
		PostingRef:   p.ref,
		CreatedBy:    p.scope.ActorID,
	}
	receipt.ID, err = p.tx.InsertPaymentReceipt(ctx, receipt)
	if err != nil {
		return ledger.PaymentReceipt{}, err
	}
	next := customer.OutstandingBalance.Sub(in.Amount)
	if err := p.tx.SetCustomerBalance(ctx, p.company(), customer.Code, next, p.scope.ActorID); err != nil {
		return ledger.PaymentReceipt{}, err
	}
	if err := p.cashIn(ctx, in.Amount, cashSource{
		kind:        ledger.CashReceipt,
		doc:         ledger.DocPaymentReceipt,
		id:          receipt.ID,
		description: fmt.Sprintf("Receipt %s from %s (%s %s)", number, customer.Code, in.Method, in.Reference),
	}); err != nil {
		return ledger.PaymentReceipt{}, err
	}
	return receipt, nil
}

// RecordSupplierPayment books money paid to a supplier and settles its open
// purchase invoices the same way receipts settle sales invoices.
func (s *Service) RecordSupplierPayment(ctx context.Context, in PaymentInput) (ledger.SupplierPayment, error) {
	if err := s.preparePayment(&in); err != nil {
		return ledger.SupplierPayment{}, fmt.Errorf("posting: record supplier payment: %w", err)
	}
	var payment ledger.SupplierPayment
	err := s.run(ctx, OpRecordSupplierPayment, in.CompanyCode, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		payment, err = s.begin(tx, in.Scope, in.Date).supplierPayment(ctx, in)
		return err
	})
	if err != nil {
		return ledger.SupplierPayment{}, fmt.Errorf("posting: record supplier payment: %w", err)
	}
	s.committed(ctx, in.Scope, OpRecordSupplierPayment, "supplier_payment", strconv.FormatInt(payment.ID, 10), map[string]any{
		"number":      payment.Number,
		"supplier":    payment.SupplierCode,
		"amount":      payment.Amount.StringFixed(2),
		"allocations": len(payment.Allocations),
	})
	return payment, nil
}

func (p *posting) supplierPayment(ctx context.Context, in PaymentInput) (ledger.SupplierPayment, error) {
	if err := p.claim(ctx, in.RequestKey, moduleSupplierPayment); err != nil {
		return ledger.SupplierPayment{}, err
	}
	supplier, err := p.tx.GetSupplierForUpdate(ctx, p.company(), in.PartyCode)
	if err != nil {
		return ledger.SupplierPayment{}, err
	}
	var preferred int64
	if in.InvoiceID != nil {
		inv, err := p.tx.GetPurchaseInvoiceForUpdate(ctx, p.company(), *in.InvoiceID)
		if err != nil {
			return ledger.SupplierPayment{}, err
		}
		if inv.SupplierCode != supplier.Code {
			return ledger.SupplierPayment{}, ledger.Invalid("invoice_id", "invoice belongs to another supplier")
		}
		if inv.VoidedAt != nil {
			return ledger.SupplierPayment{}, ledger.Invalid("invoice_id", "invoice is void")
		}
		preferred = inv.ID
	}
	invoices, err := p.tx.ListOpenPurchaseInvoicesForUpdate(ctx, p.company(), supplier.Code)
	if err != nil {
		return ledger.SupplierPayment{}, err
	}
	open := make([]openInvoice, len(invoices))
	for i, inv := range invoices {
		open[i] = openInvoice{id: inv.ID, number: inv.Number, balance: inv.BalanceDue}
	}
	allocations, unallocated := allocate(in.Amount, open, preferred)
	for _, a := range allocations {
		for _, inv := range open {
			if inv.id != a.InvoiceID {
				continue
			}
			if err := p.tx.SetPurchaseInvoiceBalance(ctx, inv.id, inv.balance.Sub(a.Amount)); err != nil {
				return ledger.SupplierPayment{}, err
			}
		}
	}

	number, err := p.tx.NextDocumentNumber(ctx, p.company(), ledger.DocSupplierPayment)
	if err != nil {
		return ledger.SupplierPayment{}, err
	}
	payment := ledger.SupplierPayment{
		CompanyCode:  p.company(),
		Number:       number,
		PaymentDate:  p.date,
		SupplierCode: supplier.Code,
		Amount:       in.Amount,
		Method:       in.Method,
		Reference:    in.Reference,
		Allocations:  allocations,
		Unallocated:  unallocated,
		PostingRef:   p.ref,
		CreatedBy:    p.scope.ActorID,
	}
	payment.ID, err = p.tx.InsertSupplierPayment(ctx, payment)
	if err != nil {
		return ledger.SupplierPayment{}, err
	}
	next := supplier.OutstandingBalance.Sub(in.Amount)
	if err := p.tx.SetSupplierBalance(ctx, p.company(), supplier.Code, next, p.scope.ActorID); err != nil {
		return ledger.SupplierPayment{}, err
	}
	if err := p.cashOut(ctx, in.Amount, cashSource{
		kind:        ledger.CashSupplierPayment,
		doc:         ledger.DocSupplierPayment,
		id:          payment.ID,
		description: fmt.Sprintf("Payment %s to %s (%s %s)", number, supplier.Code, in.Method, in.Reference),
	}); err != nil {
		return ledger.SupplierPayment{}, err
	}
	return payment, nil
}

// RecordExpense books an operating expense paid from cash.
func (s *Service) RecordExpense(ctx context.Context, in ExpenseInput) (ledger.Expense, error) {
	in.normalize()
	if err := s.check(in); err != nil {
		return ledger.Expense{}, fmt.Errorf("posting: record expense: %w", err)
	}
	if err := checkAmount("amount", in.Amount); err != nil {
		return ledger.Expense{}, fmt.Errorf("posting: record expense: %w", err)
	}
	if in.ExpenseDate.IsZero() {
		in.ExpenseDate = s.today()
	}
	var expense ledger.Expense
	err := s.run(ctx, OpRecordExpense, in.CompanyCode, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		expense, err = s.begin(tx, in.Scope, in.ExpenseDate).expense(ctx, in)
		return err
	})
	if err != nil {
		return ledger.Expense{}, fmt.Errorf("posting: record expense: %w", err)
	}
	s.committed(ctx, in.Scope, OpRecordExpense, "expense", strconv.FormatInt(expense.ID, 10), map[string]any{
		"number": expense.Number,
		"head":   expense.HeadCode,
		"amount": expense.Amount.StringFixed(2),
	})
	return expense, nil
}

func (p *posting) expense(ctx context.Context, in ExpenseInput) (ledger.Expense, error) {
	if err := p.claim(ctx, in.RequestKey, moduleExpense); err != nil {
		return ledger.Expense{}, err
	}
	head, err := p.tx.GetExpenseHead(ctx, p.company(), in.HeadCode)
	if err != nil {
		return ledger.Expense{}, err
	}
	if !head.IsActive {
		return ledger.Expense{}, ledger.Invalid("head_code", "expense head is inactive")
	}
	number, err := p.tx.NextDocumentNumber(ctx, p.company(), ledger.DocExpense)
	if err != nil {
		return ledger.Expense{}, err
	}
	expense := ledger.Expense{
		CompanyCode: p.company(),
		Number:      number,
		ExpenseDate: p.date,
		HeadCode:    head.Code,
		Amount:      in.Amount,
		Remarks:     in.Remarks,
		PostingRef:  p.ref,
		CreatedBy:   p.scope.ActorID,
	}
	expense.ID, err = p.tx.InsertExpense(ctx, expense)
	if err != nil {
		return ledger.Expense{}, err
	}
	if err := p.cashOut(ctx, in.Amount, cashSource{
		kind:        ledger.CashExpense,
		doc:         ledger.DocExpense,
		id:          expense.ID,
		description: fmt.Sprintf("%s %s: %s", number, head.Name, in.Remarks),
	}); err != nil {
		return ledger.Expense{}, err
	}
	return expense, nil
}
