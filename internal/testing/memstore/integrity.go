package memstore

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/integrity"
	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

var _ integrity.Repository = (*Store)(nil)

func (s *Store) Companies(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for _, p := range s.state.products {
		seen[p.CompanyCode] = struct{}{}
	}
	for _, c := range s.state.customers {
		seen[c.CompanyCode] = struct{}{}
	}
	for _, sp := range s.state.suppliers {
		seen[sp.CompanyCode] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for code := range seen {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CustomerBalances(_ context.Context, company string) ([]integrity.PartyBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expected := map[string]decimal.Decimal{}
	for _, inv := range s.state.salesInvoices {
		if inv.CompanyCode == company && inv.VoidedAt == nil && inv.Settlement == ledger.SettlementPending {
			expected[inv.CustomerCode] = expected[inv.CustomerCode].Add(inv.TotalAmount)
		}
	}
	for _, r := range s.state.returns {
		if r.CompanyCode == company {
			expected[r.CustomerCode] = expected[r.CustomerCode].Sub(r.CreditAmount)
		}
	}
	for _, rc := range s.state.receipts {
		if rc.CompanyCode == company {
			expected[rc.CustomerCode] = expected[rc.CustomerCode].Sub(rc.Amount)
		}
	}
	var out []integrity.PartyBalance
	for _, c := range s.state.customers {
		if c.CompanyCode == company {
			out = append(out, integrity.PartyBalance{Code: c.Code, Stored: c.OutstandingBalance, Expected: expected[c.Code]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) SupplierBalances(_ context.Context, company string) ([]integrity.PartyBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expected := map[string]decimal.Decimal{}
	for _, inv := range s.state.purchaseInvoices {
		if inv.CompanyCode == company && inv.VoidedAt == nil && inv.Settlement == ledger.SettlementPending {
			expected[inv.SupplierCode] = expected[inv.SupplierCode].Add(inv.TotalAmount)
		}
	}
	for _, p := range s.state.payments {
		if p.CompanyCode == company {
			expected[p.SupplierCode] = expected[p.SupplierCode].Sub(p.Amount)
		}
	}
	var out []integrity.PartyBalance
	for _, sp := range s.state.suppliers {
		if sp.CompanyCode == company {
			out = append(out, integrity.PartyBalance{Code: sp.Code, Stored: sp.OutstandingBalance, Expected: expected[sp.Code]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) StockBalances(_ context.Context, company string) ([]integrity.StockBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved := map[string]int64{}
	for _, m := range s.state.movements {
		if m.CompanyCode == company {
			moved[m.ProductCode] += m.QtyChange
		}
	}
	var out []integrity.StockBalance
	for _, p := range s.state.products {
		if p.CompanyCode == company {
			out = append(out, integrity.StockBalance{ProductCode: p.Code, Stored: p.CurrentStock, FromMovements: moved[p.Code]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductCode < out[j].ProductCode })
	return out, nil
}

func (s *Store) CashCounts(_ context.Context, company string) ([]integrity.CashCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type source struct {
		doc ledger.DocumentType
		id  int64
	}
	got := map[source]int{}
	for _, e := range s.state.cash {
		if e.CompanyCode == company {
			got[source{e.SourceType, e.SourceID}]++
		}
	}
	var out []integrity.CashCount
	add := func(doc ledger.DocumentType, id int64, number string, want int) {
		out = append(out, integrity.CashCount{SourceType: doc, SourceID: id, Number: number, Want: want, Got: got[source{doc, id}]})
	}
	for _, inv := range s.state.salesInvoices {
		if inv.CompanyCode == company {
			add(ledger.DocSalesInvoice, inv.ID, inv.Number, settledCashRows(inv.Settlement, inv.TotalAmount, inv.VoidedAt != nil))
		}
	}
	for _, r := range s.state.returns {
		if r.CompanyCode == company {
			want := 0
			if r.RefundAmount.IsPositive() {
				want = 1
			}
			add(ledger.DocSalesReturn, r.ID, r.Number, want)
		}
	}
	for _, inv := range s.state.purchaseInvoices {
		if inv.CompanyCode == company {
			add(ledger.DocPurchaseInvoice, inv.ID, inv.Number, settledCashRows(inv.Settlement, inv.TotalAmount, inv.VoidedAt != nil))
		}
	}
	for _, rc := range s.state.receipts {
		if rc.CompanyCode == company {
			add(ledger.DocPaymentReceipt, rc.ID, rc.Number, 1)
		}
	}
	for _, p := range s.state.payments {
		if p.CompanyCode == company {
			add(ledger.DocSupplierPayment, p.ID, p.Number, 1)
		}
	}
	for _, e := range s.state.expenses {
		if e.CompanyCode == company {
			add(ledger.DocExpense, e.ID, e.Number, 1)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceType != out[j].SourceType {
			return out[i].SourceType < out[j].SourceType
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out, nil
}

// settledCashRows is one row for a cash-settled invoice plus one for its void.
// A zero total moves no cash.
func settledCashRows(settlement ledger.Settlement, total decimal.Decimal, voided bool) int {
	if settlement != ledger.SettlementPaid || total.IsZero() {
		return 0
	}
	if voided {
		return 2
	}
	return 1
}
