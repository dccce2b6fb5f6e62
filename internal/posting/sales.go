package posting

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

const (
	moduleSalesInvoice = "sales_invoice"
	moduleSalesReturn  = "sales_return"
)

// CreateSalesInvoice posts a sale: stock leaves, the customer owes the total
// (PENDING) or cash comes in (PAID).
func (s *Service) CreateSalesInvoice(ctx context.Context, in SalesInvoiceInput) (ledger.SalesInvoice, error) {
	if err := s.prepareSalesInvoice(&in); err != nil {
		return ledger.SalesInvoice{}, fmt.Errorf("posting: create sales invoice: %w", err)
	}
	var inv ledger.SalesInvoice
	err := s.run(ctx, OpCreateSalesInvoice, in.CompanyCode, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		inv, err = s.begin(tx, in.Scope, in.InvoiceDate).salesInvoice(ctx, in)
		return err
	})
	if err != nil {
		return ledger.SalesInvoice{}, fmt.Errorf("posting: create sales invoice: %w", err)
	}
	s.committed(ctx, in.Scope, OpCreateSalesInvoice, "sales_invoice", strconv.FormatInt(inv.ID, 10), map[string]any{
		"number":     inv.Number,
		"customer":   inv.CustomerCode,
		"settlement": string(inv.Settlement),
		"total":      inv.TotalAmount.StringFixed(2),
	})
	return inv, nil
}

func (s *Service) prepareSalesInvoice(in *SalesInvoiceInput) error {
	in.normalize()
	if err := s.check(in); err != nil {
		return err
	}
	if err := uniqueCodes(in.productCodes()); err != nil {
		return err
	}
	if in.InvoiceDate.IsZero() {
		in.InvoiceDate = s.today()
	}
	return nil
}

func (p *posting) salesInvoice(ctx context.Context, in SalesInvoiceInput) (ledger.SalesInvoice, error) {
	if err := p.claim(ctx, in.RequestKey, moduleSalesInvoice); err != nil {
		return ledger.SalesInvoice{}, err
	}
	products, err := p.lockProducts(ctx, in.productCodes(), "lines")
	if err != nil {
		return ledger.SalesInvoice{}, err
	}
	customer, err := p.tx.GetCustomerForUpdate(ctx, p.company(), in.CustomerCode)
	if err != nil {
		return ledger.SalesInvoice{}, err
	}
	if !customer.IsActive {
		return ledger.SalesInvoice{}, ledger.Invalid("customer_code", "customer is inactive")
	}

	var totals ledger.Totals
	items := make([]ledger.InvoiceItem, len(in.Lines))
	for i, line := range in.Lines {
		product := products[line.ProductCode]
		if product.CurrentStock < line.Quantity {
			return ledger.SalesInvoice{}, &ledger.StockInsufficientError{
				ProductCode: product.Code,
				Requested:   line.Quantity,
				Available:   product.CurrentStock,
			}
		}
		rate := taxRate(product)
		lineTotal, tax := ledger.PriceLine(line.Quantity, product.UnitPrice, rate)
		totals.Add(lineTotal, tax)
		description := line.Description
		if description == "" {
			description = product.Name
		}
		items[i] = ledger.InvoiceItem{
			LineNo:      i + 1,
			ProductCode: product.Code,
			Description: description,
			Quantity:    line.Quantity,
			UnitPrice:   product.UnitPrice,
			TaxRate:     rate,
			LineTotal:   lineTotal,
			TaxAmount:   tax,
		}
	}

	number, err := p.tx.NextDocumentNumber(ctx, p.company(), ledger.DocSalesInvoice)
	if err != nil {
		return ledger.SalesInvoice{}, err
	}
	total := totals.Total()
	balance := decimal.Zero
	if in.Settlement == ledger.SettlementPending {
		balance = total
	}
	id, err := p.tx.InsertSalesInvoice(ctx, ledger.SalesInvoice{
		CompanyCode:  p.company(),
		Number:       number,
		InvoiceDate:  p.date,
		DueDate:      dueDate(p.date, customer.PaymentTermsDays),
		CustomerCode: customer.Code,
		Settlement:   in.Settlement,
		Items:        items,
		Subtotal:     totals.Subtotal,
		TaxAmount:    totals.Tax,
		TotalAmount:  total,
		BalanceDue:   balance,
		PostingRef:   p.ref,
		CreatedBy:    p.scope.ActorID,
	})
	if err != nil {
		return ledger.SalesInvoice{}, err
	}

	for _, item := range items {
		if err := p.moveStock(ctx, products, item.ProductCode, -item.Quantity, stockSource{
			kind: ledger.MovementSale, doc: ledger.DocSalesInvoice, id: id, line: item.LineNo, note: number,
		}); err != nil {
			return ledger.SalesInvoice{}, err
		}
	}

	switch in.Settlement {
	case ledger.SettlementPending:
		next := customer.OutstandingBalance.Add(total)
		if err := p.tx.SetCustomerBalance(ctx, p.company(), customer.Code, next, p.scope.ActorID); err != nil {
			return ledger.SalesInvoice{}, err
		}
	case ledger.SettlementPaid:
		if err := p.cashIn(ctx, total, cashSource{
			kind:        ledger.CashSales,
			doc:         ledger.DocSalesInvoice,
			id:          id,
			description: fmt.Sprintf("Cash sale %s to %s", number, customer.Code),
		}); err != nil {
			return ledger.SalesInvoice{}, err
		}
	}
	return p.tx.GetSalesInvoice(ctx, p.company(), id)
}

// CreateSalesReturn takes goods back against an invoice, priced from the
// invoice lines. Credit sales reduce what the customer owes, cash sales are
// refunded from the cash book.
func (s *Service) CreateSalesReturn(ctx context.Context, in SalesReturnInput) (ledger.SalesReturn, error) {
	in.normalize()
	if err := s.check(in); err != nil {
		return ledger.SalesReturn{}, fmt.Errorf("posting: create sales return: %w", err)
	}
	codes := make([]string, len(in.Lines))
	for i, line := range in.Lines {
		codes[i] = line.ProductCode
	}
	if err := uniqueCodes(codes); err != nil {
		return ledger.SalesReturn{}, fmt.Errorf("posting: create sales return: %w", err)
	}
	if in.ReturnDate.IsZero() {
		in.ReturnDate = s.today()
	}

	var ret ledger.SalesReturn
	err := s.run(ctx, OpCreateSalesReturn, in.CompanyCode, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		ret, err = s.begin(tx, in.Scope, in.ReturnDate).salesReturn(ctx, in)
		return err
	})
	if err != nil {
		return ledger.SalesReturn{}, fmt.Errorf("posting: create sales return: %w", err)
	}
	s.committed(ctx, in.Scope, OpCreateSalesReturn, "sales_return", strconv.FormatInt(ret.ID, 10), map[string]any{
		"number":  ret.Number,
		"invoice": ret.InvoiceID,
		"credit":  ret.CreditAmount.StringFixed(2),
		"refund":  ret.RefundAmount.StringFixed(2),
	})
	return ret, nil
}

func (p *posting) salesReturn(ctx context.Context, in SalesReturnInput) (ledger.SalesReturn, error) {
	if err := p.claim(ctx, in.RequestKey, moduleSalesReturn); err != nil {
		return ledger.SalesReturn{}, err
	}
	// The unlocked read only names the rows to lock; everything is checked
	// again once the invoice row is held.
	preview, err := p.tx.GetSalesInvoice(ctx, p.company(), in.InvoiceID)
	if err != nil {
		return ledger.SalesReturn{}, err
	}
	codes := make([]string, len(in.Lines))
	for i, line := range in.Lines {
		codes[i] = line.ProductCode
	}
	products, err := p.lockExisting(ctx, codes)
	if err != nil {
		return ledger.SalesReturn{}, err
	}
	customer, err := p.tx.GetCustomerForUpdate(ctx, p.company(), preview.CustomerCode)
	if err != nil {
		return ledger.SalesReturn{}, err
	}
	inv, err := p.tx.GetSalesInvoiceForUpdate(ctx, p.company(), in.InvoiceID)
	if err != nil {
		return ledger.SalesReturn{}, err
	}
	if inv.VoidedAt != nil {
		return ledger.SalesReturn{}, ledger.Invalid("invoice_id", "invoice is void")
	}
	invoiced := make(map[string]ledger.InvoiceItem, len(inv.Items))
	for _, item := range inv.Items {
		invoiced[item.ProductCode] = item
	}
	returned, err := p.tx.ReturnedQuantities(ctx, inv.ID)
	if err != nil {
		return ledger.SalesReturn{}, err
	}

	var totals ledger.Totals
	items := make([]ledger.ReturnItem, len(in.Lines))
	for i, line := range in.Lines {
		item, ok := invoiced[line.ProductCode]
		if !ok {
			return ledger.SalesReturn{}, ledger.Invalid(fmt.Sprintf("lines[%d].product_code", i), "product was not on the invoice")
		}
		prior := returned[line.ProductCode]
		if prior+line.Quantity > item.Quantity {
			return ledger.SalesReturn{}, &ledger.ReturnExceedsInvoicedError{
				ProductCode:     line.ProductCode,
				Invoiced:        item.Quantity,
				AlreadyReturned: prior,
				Requested:       line.Quantity,
			}
		}
		returned[line.ProductCode] = prior + line.Quantity
		lineTotal, tax := ledger.PriceSlice(prior, line.Quantity, item.UnitPrice, item.TaxRate)
		totals.Add(lineTotal, tax)
		items[i] = ledger.ReturnItem{
			InvoiceItemID: item.ID,
			ProductCode:   line.ProductCode,
			Quantity:      line.Quantity,
			UnitPrice:     item.UnitPrice,
			TaxRate:       item.TaxRate,
			LineTotal:     lineTotal,
			TaxAmount:     tax,
		}
	}

	number, err := p.tx.NextDocumentNumber(ctx, p.company(), ledger.DocSalesReturn)
	if err != nil {
		return ledger.SalesReturn{}, err
	}
	total := totals.Total()
	ret := ledger.SalesReturn{
		CompanyCode:  p.company(),
		Number:       number,
		ReturnDate:   p.date,
		InvoiceID:    inv.ID,
		CustomerCode: inv.CustomerCode,
		Items:        items,
		Subtotal:     totals.Subtotal,
		TaxAmount:    totals.Tax,
		TotalAmount:  total,
		CreditAmount: decimal.Zero,
		RefundAmount: decimal.Zero,
		Status:       ledger.ReturnStatusCompleted,
		Reason:       in.Reason,
		PostingRef:   p.ref,
		CreatedBy:    p.scope.ActorID,
	}
	if inv.Settlement == ledger.SettlementPending {
		ret.CreditAmount = total
	} else {
		ret.RefundAmount = total
	}
	ret.ID, err = p.tx.InsertSalesReturn(ctx, ret)
	if err != nil {
		return ledger.SalesReturn{}, err
	}
	for i := range ret.Items {
		ret.Items[i].ReturnID = ret.ID
		if err := p.moveStock(ctx, products, ret.Items[i].ProductCode, ret.Items[i].Quantity, stockSource{
			kind: ledger.MovementSaleReturn, doc: ledger.DocSalesReturn, id: ret.ID, line: i + 1, note: number,
		}); err != nil {
			return ledger.SalesReturn{}, err
		}
	}

	if inv.Settlement == ledger.SettlementPending {
		next := customer.OutstandingBalance.Sub(total)
		if err := p.tx.SetCustomerBalance(ctx, p.company(), customer.Code, next, p.scope.ActorID); err != nil {
			return ledger.SalesReturn{}, err
		}
		reduce := decimal.Min(inv.BalanceDue, total)
		if reduce.IsPositive() {
			if err := p.tx.SetSalesInvoiceBalance(ctx, inv.ID, inv.BalanceDue.Sub(reduce)); err != nil {
				return ledger.SalesReturn{}, err
			}
		}
		return ret, nil
	}
	if err := p.cashOut(ctx, total, cashSource{
		kind:        ledger.CashSalesReturn,
		doc:         ledger.DocSalesReturn,
		id:          ret.ID,
		description: fmt.Sprintf("Refund %s for %s", number, inv.Number),
	}); err != nil {
		return ledger.SalesReturn{}, err
	}
	return ret, nil
}

// VoidSalesInvoice reverses an invoice that nothing has settled yet.
func (s *Service) VoidSalesInvoice(ctx context.Context, in VoidInput) (ledger.SalesInvoice, error) {
	in.normalize()
	if err := s.check(in); err != nil {
		return ledger.SalesInvoice{}, fmt.Errorf("posting: void sales invoice: %w", err)
	}
	var inv ledger.SalesInvoice
	err := s.run(ctx, OpVoidSalesInvoice, in.CompanyCode, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		inv, err = s.begin(tx, in.Scope, s.today()).voidSalesInvoice(ctx, in, nil)
		return err
	})
	if err != nil {
		return ledger.SalesInvoice{}, fmt.Errorf("posting: void sales invoice: %w", err)
	}
	s.committed(ctx, in.Scope, OpVoidSalesInvoice, "sales_invoice", strconv.FormatInt(inv.ID, 10), map[string]any{
		"number": inv.Number,
		"reason": in.Reason,
	})
	return inv, nil
}

// voidSalesInvoice reverses every effect of the invoice. extra names products
// the caller will lock later in the same transaction so that all product
// locks are taken up front in code order.
func (p *posting) voidSalesInvoice(ctx context.Context, in VoidInput, extra []string) (ledger.SalesInvoice, error) {
	preview, err := p.tx.GetSalesInvoice(ctx, p.company(), in.InvoiceID)
	if err != nil {
		return ledger.SalesInvoice{}, err
	}
	products, err := p.lockExisting(ctx, append(itemCodes(preview.Items), extra...))
	if err != nil {
		return ledger.SalesInvoice{}, err
	}
	customer, err := p.tx.GetCustomerForUpdate(ctx, p.company(), preview.CustomerCode)
	if err != nil {
		return ledger.SalesInvoice{}, err
	}
	inv, err := p.tx.GetSalesInvoiceForUpdate(ctx, p.company(), in.InvoiceID)
	if err != nil {
		return ledger.SalesInvoice{}, err
	}
	if inv.VoidedAt != nil {
		return ledger.SalesInvoice{}, ledger.Invalid("invoice_id", "invoice is already void")
	}
	settled, err := p.tx.CountSalesSettlements(ctx, inv.ID)
	if err != nil {
		return ledger.SalesInvoice{}, err
	}
	if settled > 0 {
		return ledger.SalesInvoice{}, ledger.Invalid("invoice_id", "invoice has returns or receipts")
	}

	for _, item := range inv.Items {
		if err := p.moveStock(ctx, products, item.ProductCode, item.Quantity, stockSource{
			kind: ledger.MovementSaleVoid, doc: ledger.DocSalesInvoice, id: inv.ID, line: item.LineNo, note: "void " + inv.Number,
		}); err != nil {
			return ledger.SalesInvoice{}, err
		}
	}
	switch inv.Settlement {
	case ledger.SettlementPending:
		next := customer.OutstandingBalance.Sub(inv.TotalAmount)
		if err := p.tx.SetCustomerBalance(ctx, p.company(), customer.Code, next, p.scope.ActorID); err != nil {
			return ledger.SalesInvoice{}, err
		}
	case ledger.SettlementPaid:
		if err := p.cashOut(ctx, inv.TotalAmount, cashSource{
			kind:        ledger.CashSalesVoid,
			doc:         ledger.DocSalesInvoice,
			id:          inv.ID,
			description: fmt.Sprintf("Void %s: %s", inv.Number, in.Reason),
		}); err != nil {
			return ledger.SalesInvoice{}, err
		}
	}
	if err := p.tx.VoidSalesInvoice(ctx, inv.ID, p.scope.ActorID, in.Reason, p.now); err != nil {
		return ledger.SalesInvoice{}, err
	}
	return p.tx.GetSalesInvoice(ctx, p.company(), inv.ID)
}

// ReissueResult pairs a voided invoice with its replacement.
type ReissueResult struct {
	Voided      ledger.SalesInvoice `json:"voided"`
	Replacement ledger.SalesInvoice `json:"replacement"`
}

// ReissueSalesInvoice voids an invoice and posts its replacement atomically.
func (s *Service) ReissueSalesInvoice(ctx context.Context, in ReissueInput) (ReissueResult, error) {
	in.Void.normalize()
	in.Replacement.Scope = in.Void.Scope
	if err := s.check(in.Void); err != nil {
		return ReissueResult{}, fmt.Errorf("posting: reissue sales invoice: %w", err)
	}
	if err := s.prepareSalesInvoice(&in.Replacement); err != nil {
		return ReissueResult{}, fmt.Errorf("posting: reissue sales invoice: %w", err)
	}
	var out ReissueResult
	err := s.run(ctx, OpReissueSalesInvoice, in.Void.CompanyCode, func(ctx context.Context, tx ledger.Tx) error {
		// The void is dated today like a standalone void; both halves share
		// one posting reference.
		p := s.begin(tx, in.Void.Scope, s.today())
		voided, err := p.voidSalesInvoice(ctx, in.Void, in.Replacement.productCodes())
		if err != nil {
			return err
		}
		p.date = in.Replacement.InvoiceDate
		replacement, err := p.salesInvoice(ctx, in.Replacement)
		if err != nil {
			return err
		}
		out = ReissueResult{Voided: voided, Replacement: replacement}
		return nil
	})
	if err != nil {
		return ReissueResult{}, fmt.Errorf("posting: reissue sales invoice: %w", err)
	}
	s.committed(ctx, in.Void.Scope, OpReissueSalesInvoice, "sales_invoice", strconv.FormatInt(out.Replacement.ID, 10), map[string]any{
		"voided":      out.Voided.Number,
		"replacement": out.Replacement.Number,
		"reason":      in.Void.Reason,
	})
	return out, nil
}

// GetSalesInvoice returns a committed invoice.
func (s *Service) GetSalesInvoice(ctx context.Context, company string, id int64) (ledger.SalesInvoice, error) {
	inv, err := s.store.GetSalesInvoice(ctx, ledger.NormalizeCode(company), id)
	if err != nil {
		return ledger.SalesInvoice{}, fmt.Errorf("posting: get sales invoice: %w", err)
	}
	return inv, nil
}

// GetSalesReturn returns a committed return.
func (s *Service) GetSalesReturn(ctx context.Context, company string, id int64) (ledger.SalesReturn, error) {
	ret, err := s.store.GetSalesReturn(ctx, ledger.NormalizeCode(company), id)
	if err != nil {
		return ledger.SalesReturn{}, fmt.Errorf("posting: get sales return: %w", err)
	}
	return ret, nil
}
