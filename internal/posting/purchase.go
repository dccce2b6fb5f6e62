package posting

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

const modulePurchaseInvoice = "purchase_invoice"

// CreatePurchaseInvoice receives goods from a supplier.
func (s *Service) CreatePurchaseInvoice(ctx context.Context, in PurchaseInvoiceInput) (ledger.PurchaseInvoice, error) {
	in.normalize()
	if err := s.check(in); err != nil {
		return ledger.PurchaseInvoice{}, fmt.Errorf("posting: create purchase invoice: %w", err)
	}
	codes := make([]string, len(in.Lines))
	for i, line := range in.Lines {
		codes[i] = line.ProductCode
		if line.UnitCost == nil {
			continue
		}
		if line.UnitCost.IsNegative() || !line.UnitCost.Equal(ledger.Round2(*line.UnitCost)) {
			return ledger.PurchaseInvoice{}, fmt.Errorf("posting: create purchase invoice: %w",
				ledger.Invalid(fmt.Sprintf("lines[%d].unit_cost", i), "must be a non-negative amount with at most 2 decimal places"))
		}
	}
	if err := uniqueCodes(codes); err != nil {
		return ledger.PurchaseInvoice{}, fmt.Errorf("posting: create purchase invoice: %w", err)
	}
	if in.InvoiceDate.IsZero() {
		in.InvoiceDate = s.today()
	}

	var inv ledger.PurchaseInvoice
	err := s.run(ctx, OpCreatePurchaseInvoice, in.CompanyCode, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		inv, err = s.begin(tx, in.Scope, in.InvoiceDate).purchaseInvoice(ctx, in, codes)
		return err
	})
	if err != nil {
		return ledger.PurchaseInvoice{}, fmt.Errorf("posting: create purchase invoice: %w", err)
	}
	s.committed(ctx, in.Scope, OpCreatePurchaseInvoice, "purchase_invoice", strconv.FormatInt(inv.ID, 10), map[string]any{
		"number":     inv.Number,
		"supplier":   inv.SupplierCode,
		"settlement": string(inv.Settlement),
		"total":      inv.TotalAmount.StringFixed(2),
	})
	return inv, nil
}

func (p *posting) purchaseInvoice(ctx context.Context, in PurchaseInvoiceInput, codes []string) (ledger.PurchaseInvoice, error) {
	if err := p.claim(ctx, in.RequestKey, modulePurchaseInvoice); err != nil {
		return ledger.PurchaseInvoice{}, err
	}
	products, err := p.lockProducts(ctx, codes, "lines")
	if err != nil {
		return ledger.PurchaseInvoice{}, err
	}
	supplier, err := p.tx.GetSupplierForUpdate(ctx, p.company(), in.SupplierCode)
	if err != nil {
		return ledger.PurchaseInvoice{}, err
	}
	if !supplier.IsActive {
		return ledger.PurchaseInvoice{}, ledger.Invalid("supplier_code", "supplier is inactive")
	}

	var totals ledger.Totals
	items := make([]ledger.InvoiceItem, len(in.Lines))
	for i, line := range in.Lines {
		product := products[line.ProductCode]
		cost := product.PurchasePrice
		if line.UnitCost != nil {
			cost = *line.UnitCost
		}
		rate := taxRate(product)
		lineTotal, tax := ledger.PriceLine(line.Quantity, cost, rate)
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
			UnitPrice:   cost,
			TaxRate:     rate,
			LineTotal:   lineTotal,
			TaxAmount:   tax,
		}
	}

	number, err := p.tx.NextDocumentNumber(ctx, p.company(), ledger.DocPurchaseInvoice)
	if err != nil {
		return ledger.PurchaseInvoice{}, err
	}
	total := totals.Total()
	balance := decimal.Zero
	if in.Settlement == ledger.SettlementPending {
		balance = total
	}
	id, err := p.tx.InsertPurchaseInvoice(ctx, ledger.PurchaseInvoice{
		CompanyCode:  p.company(),
		Number:       number,
		SupplierRef:  in.SupplierRef,
		InvoiceDate:  p.date,
		DueDate:      dueDate(p.date, supplier.PaymentTermsDays),
		SupplierCode: supplier.Code,
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
		return ledger.PurchaseInvoice{}, err
	}
	for _, item := range items {
		if err := p.moveStock(ctx, products, item.ProductCode, item.Quantity, stockSource{
			kind: ledger.MovementPurchase, doc: ledger.DocPurchaseInvoice, id: id, line: item.LineNo, note: number,
		}); err != nil {
			return ledger.PurchaseInvoice{}, err
		}
	}

	switch in.Settlement {
	case ledger.SettlementPending:
		next := supplier.OutstandingBalance.Add(total)
		if err := p.tx.SetSupplierBalance(ctx, p.company(), supplier.Code, next, p.scope.ActorID); err != nil {
			return ledger.PurchaseInvoice{}, err
		}
	case ledger.SettlementPaid:
		if err := p.cashOut(ctx, total, cashSource{
			kind:        ledger.CashPurchase,
			doc:         ledger.DocPurchaseInvoice,
			id:          id,
			description: fmt.Sprintf("Cash purchase %s from %s", number, supplier.Code),
		}); err != nil {
			return ledger.PurchaseInvoice{}, err
		}
	}
	return p.tx.GetPurchaseInvoice(ctx, p.company(), id)
}

// VoidPurchaseInvoice reverses an unsettled purchase. The received goods must
// still be on hand.
func (s *Service) VoidPurchaseInvoice(ctx context.Context, in VoidInput) (ledger.PurchaseInvoice, error) {
	in.normalize()
	if err := s.check(in); err != nil {
		return ledger.PurchaseInvoice{}, fmt.Errorf("posting: void purchase invoice: %w", err)
	}
	var inv ledger.PurchaseInvoice
	err := s.run(ctx, OpVoidPurchaseInvoice, in.CompanyCode, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		inv, err = s.begin(tx, in.Scope, s.today()).voidPurchaseInvoice(ctx, in)
		return err
	})
	if err != nil {
		return ledger.PurchaseInvoice{}, fmt.Errorf("posting: void purchase invoice: %w", err)
	}
	s.committed(ctx, in.Scope, OpVoidPurchaseInvoice, "purchase_invoice", strconv.FormatInt(inv.ID, 10), map[string]any{
		"number": inv.Number,
		"reason": in.Reason,
	})
	return inv, nil
}

func (p *posting) voidPurchaseInvoice(ctx context.Context, in VoidInput) (ledger.PurchaseInvoice, error) {
	preview, err := p.tx.GetPurchaseInvoice(ctx, p.company(), in.InvoiceID)
	if err != nil {
		return ledger.PurchaseInvoice{}, err
	}
	products, err := p.lockExisting(ctx, itemCodes(preview.Items))
	if err != nil {
		return ledger.PurchaseInvoice{}, err
	}
	supplier, err := p.tx.GetSupplierForUpdate(ctx, p.company(), preview.SupplierCode)
	if err != nil {
		return ledger.PurchaseInvoice{}, err
	}
	inv, err := p.tx.GetPurchaseInvoiceForUpdate(ctx, p.company(), in.InvoiceID)
	if err != nil {
		return ledger.PurchaseInvoice{}, err
	}
	if inv.VoidedAt != nil {
		return ledger.PurchaseInvoice{}, ledger.Invalid("invoice_id", "invoice is already void")
	}
	settled, err := p.tx.CountPurchaseSettlements(ctx, inv.ID)
	if err != nil {
		return ledger.PurchaseInvoice{}, err
	}
	if settled > 0 {
		return ledger.PurchaseInvoice{}, ledger.Invalid("invoice_id", "invoice has supplier payments")
	}

	for _, item := range inv.Items {
		if err := p.moveStock(ctx, products, item.ProductCode, -item.Quantity, stockSource{
			kind: ledger.MovementPurchaseVoid, doc: ledger.DocPurchaseInvoice, id: inv.ID, line: item.LineNo, note: "void " + inv.Number,
		}); err != nil {
			return ledger.PurchaseInvoice{}, err
		}
	}
	switch inv.Settlement {
	case ledger.SettlementPending:
		next := supplier.OutstandingBalance.Sub(inv.TotalAmount)
		if err := p.tx.SetSupplierBalance(ctx, p.company(), supplier.Code, next, p.scope.ActorID); err != nil {
			return ledger.PurchaseInvoice{}, err
		}
	case ledger.SettlementPaid:
		if err := p.cashIn(ctx, inv.TotalAmount, cashSource{
			kind:        ledger.CashPurchaseVoid,
			doc:         ledger.DocPurchaseInvoice,
			id:          inv.ID,
			description: fmt.Sprintf("Void %s: %s", inv.Number, in.Reason),
		}); err != nil {
			return ledger.PurchaseInvoice{}, err
		}
	}
	if err := p.tx.VoidPurchaseInvoice(ctx, inv.ID, p.scope.ActorID, in.Reason, p.now); err != nil {
		return ledger.PurchaseInvoice{}, err
	}
	return p.tx.GetPurchaseInvoice(ctx, p.company(), inv.ID)
}

// GetPurchaseInvoice returns a committed purchase invoice.
func (s *Service) GetPurchaseInvoice(ctx context.Context, company string, id int64) (ledger.PurchaseInvoice, error) {
	inv, err := s.store.GetPurchaseInvoice(ctx, ledger.NormalizeCode(company), id)
	if err != nil {
		return ledger.PurchaseInvoice{}, fmt.Errorf("posting: get purchase invoice: %w", err)
	}
	return inv, nil
}
