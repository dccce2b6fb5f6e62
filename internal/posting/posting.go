package posting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

// posting carries the state shared by every write of one transaction
// attempt. A retry starts a fresh posting with a new reference.
type posting struct {
	tx    ledger.Tx
	scope Scope
	ref   uuid.UUID
	date  time.Time
	now   time.Time
}

func (s *Service) begin(tx ledger.Tx, scope Scope, date time.Time) *posting {
	return &posting{
		tx:    tx,
		scope: scope,
		ref:   uuid.New(),
		date:  ledger.DateOnly(date),
		now:   s.now(),
	}
}

func (p *posting) company() string { return p.scope.CompanyCode }

func (p *posting) claim(ctx context.Context, key, module string) error {
	if key == "" {
		return nil
	}
	return p.tx.ClaimRequestKey(ctx, p.company(), key, module)
}

// lockProducts locks every named product in code order and requires each to
// exist and be active.
func (p *posting) lockProducts(ctx context.Context, codes []string, field string) (map[string]ledger.Product, error) {
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)
	products := make(map[string]ledger.Product, len(sorted))
	for _, code := range sorted {
		if _, ok := products[code]; ok {
			continue
		}
		product, err := p.tx.GetProductForUpdate(ctx, p.company(), code)
		if err != nil {
			return nil, err
		}
		if !product.IsActive {
			return nil, ledger.Invalid(field, fmt.Sprintf("product %s is inactive", code))
		}
		products[code] = product
	}
	return products, nil
}

// lockExisting locks products referenced by a posted document. Inactive
// products are accepted so that history can still be reversed.
func (p *posting) lockExisting(ctx context.Context, codes []string) (map[string]ledger.Product, error) {
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)
	products := make(map[string]ledger.Product, len(sorted))
	for _, code := range sorted {
		if _, ok := products[code]; ok {
			continue
		}
		product, err := p.tx.GetProductForUpdate(ctx, p.company(), code)
		if err != nil {
			return nil, err
		}
		products[code] = product
	}
	return products, nil
}

type stockSource struct {
	kind ledger.MovementType
	doc  ledger.DocumentType
	id   int64
	line int
	note string
}

// moveStock applies delta to the locked product and writes its movement.
func (p *posting) moveStock(ctx context.Context, products map[string]ledger.Product, code string, delta int64, src stockSource) error {
	product, ok := products[code]
	if !ok {
		return ledger.NotFound("product", code)
	}
	next := product.CurrentStock + delta
	if next < 0 {
		return &ledger.StockInsufficientError{ProductCode: code, Requested: -delta, Available: product.CurrentStock}
	}
	if err := p.tx.SetProductStock(ctx, p.company(), code, next, p.scope.ActorID); err != nil {
		return err
	}
	if err := p.tx.InsertStockMovement(ctx, ledger.StockMovement{
		CompanyCode:  p.company(),
		ProductCode:  code,
		Type:         src.kind,
		QtyChange:    delta,
		BalanceAfter: next,
		SourceType:   src.doc,
		SourceID:     src.id,
		SourceLine:   src.line,
		MovementDate: p.date,
		Note:         src.note,
		PostingRef:   p.ref,
		CreatedBy:    p.scope.ActorID,
	}); err != nil {
		return err
	}
	product.CurrentStock = next
	products[code] = product
	return nil
}

type cashSource struct {
	kind        ledger.CashEntryType
	doc         ledger.DocumentType
	id          int64
	description string
}

// cashIn writes one debit row. Zero amounts move no money and write nothing.
func (p *posting) cashIn(ctx context.Context, amount decimal.Decimal, src cashSource) error {
	return p.cash(ctx, amount, decimal.Zero, src)
}

// cashOut writes one credit row. Zero amounts move no money and write nothing.
func (p *posting) cashOut(ctx context.Context, amount decimal.Decimal, src cashSource) error {
	return p.cash(ctx, decimal.Zero, amount, src)
}

func (p *posting) cash(ctx context.Context, debit, credit decimal.Decimal, src cashSource) error {
	// A zero-total PAID invoice therefore owns no cash row; the integrity
	// cash count expects none for it.
	if debit.IsZero() && credit.IsZero() {
		return nil
	}
	_, err := p.tx.InsertCashEntry(ctx, ledger.CashLedgerEntry{
		CompanyCode: p.company(),
		EntryDate:   p.date,
		Type:        src.kind,
		Description: src.description,
		Debit:       debit,
		Credit:      credit,
		SourceType:  src.doc,
		SourceID:    src.id,
		PostingRef:  p.ref,
		CreatedBy:   p.scope.ActorID,
	})
	return err
}

// taxRate is the product's own rate; a product without a tax code is untaxed.
func taxRate(p ledger.Product) decimal.Decimal {
	if p.TaxCode == "" {
		return decimal.Zero
	}
	return p.TaxRate
}

func checkAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ledger.Invalid(field, "must be greater than 0")
	}
	if !amount.Equal(ledger.Round2(amount)) {
		return ledger.Invalid(field, "must have at most 2 decimal places")
	}
	return nil
}

func uniqueCodes(codes []string) error {
	seen := make(map[string]struct{}, len(codes))
	for i, code := range codes {
		if _, ok := seen[code]; ok {
			return ledger.Invalid(fmt.Sprintf("lines[%d].product_code", i), "duplicate product "+code)
		}
		seen[code] = struct{}{}
	}
	return nil
}

func itemCodes(items []ledger.InvoiceItem) []string {
	codes := make([]string, len(items))
	for i, item := range items {
		codes[i] = item.ProductCode
	}
	return codes
}

func dueDate(invoiceDate time.Time, termsDays int) time.Time {
	return ledger.DateOnly(invoiceDate).AddDate(0, 0, termsDays)
}

// openInvoice is the allocation view of an invoice with a positive balance.
type openInvoice struct {
	id      int64
	number  string
	balance decimal.Decimal
}

// allocate applies amount to the preferred invoice first and then to the
// remaining invoices in the given order, never below a zero balance.
func allocate(amount decimal.Decimal, open []openInvoice, preferred int64) ([]ledger.Allocation, decimal.Decimal) {
	ordered := make([]openInvoice, 0, len(open))
	for _, inv := range open {
		if inv.id == preferred {
			ordered = append(ordered, inv)
		}
	}
	for _, inv := range open {
		if inv.id != preferred {
			ordered = append(ordered, inv)
		}
	}
	rest := amount
	var allocations []ledger.Allocation
	for _, inv := range ordered {
		if !rest.IsPositive() {
			break
		}
		take := decimal.Min(rest, inv.balance)
		if !take.IsPositive() {
			continue
		}
		allocations = append(allocations, ledger.Allocation{InvoiceID: inv.id, InvoiceNumber: inv.number, Amount: take})
		rest = rest.Sub(take)
	}
	return allocations, rest
}
