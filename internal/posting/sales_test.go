package posting

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

func TestCreditSaleThenReceiptThenReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.sell(t, ledger.SettlementPending, SalesLineInput{ProductCode: "P", Quantity: 3})
	requireMoney(t, "300", inv.TotalAmount)
	requireMoney(t, "300", inv.BalanceDue)
	requireMoney(t, "300", f.customerBalance(t, "C"))
	require.EqualValues(t, 7, f.stock(t, "P"))
	require.Equal(t, ledger.InvoiceStatusPending, inv.StatusAt(testNow))
	require.Equal(t, time.Date(2026, 4, 9, 0, 0, 0, 0, time.UTC), inv.DueDate)
	require.Empty(t, f.store.CashEntries(company))

	receipt, err := f.svc.RecordPaymentReceipt(ctx, PaymentInput{
		Scope:     scope(),
		PartyCode: "C",
		Amount:    dec("300"),
		Reference: "TRF-001",
		InvoiceID: &inv.ID,
	})
	require.NoError(t, err)
	require.Len(t, receipt.Allocations, 1)
	require.True(t, receipt.Unallocated.IsZero())
	paid, err := f.svc.GetSalesInvoice(ctx, company, inv.ID)
	require.NoError(t, err)
	require.True(t, paid.BalanceDue.IsZero())
	require.Equal(t, ledger.InvoiceStatusPaid, paid.StatusAt(testNow))
	require.True(t, f.customerBalance(t, "C").IsZero())
	cash := f.store.CashEntries(company)
	require.Len(t, cash, 1)
	require.Equal(t, ledger.CashReceipt, cash[0].Type)
	requireMoney(t, "300", cash[0].Debit)
	require.True(t, cash[0].Credit.IsZero())

	_, err = f.svc.CreateSalesInvoice(ctx, SalesInvoiceInput{
		Scope:        scope(),
		CustomerCode: "C",
		Settlement:   ledger.SettlementPending,
		Lines:        []SalesLineInput{{ProductCode: "P", Quantity: 20}},
	})
	require.ErrorIs(t, err, ledger.ErrStockInsufficient)
	var stockErr *ledger.StockInsufficientError
	require.ErrorAs(t, err, &stockErr)
	require.EqualValues(t, 7, stockErr.Available)
	require.EqualValues(t, 7, f.stock(t, "P"))

	ret, err := f.svc.CreateSalesReturn(ctx, SalesReturnInput{
		Scope:     scope(),
		InvoiceID: inv.ID,
		Lines:     []ReturnLineInput{{ProductCode: "P", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, ledger.ReturnStatusCompleted, ret.Status)
	require.Equal(t, "RET-000001", ret.Number)
	requireMoney(t, "100", ret.TotalAmount)
	requireMoney(t, "100", ret.CreditAmount)
	require.True(t, ret.RefundAmount.IsZero())
	require.EqualValues(t, 8, f.stock(t, "P"))
	requireMoney(t, "-100", f.customerBalance(t, "C"))
	require.Len(t, f.store.CashEntries(company), 1)
}

func TestInvoiceTotalsUseRoundedLines(t *testing.T) {
	f := newFixture(t)

	inv := f.sell(t, ledger.SettlementPaid,
		SalesLineInput{ProductCode: "Q", Quantity: 3},
		SalesLineInput{ProductCode: "P", Quantity: 1},
	)

	require.Len(t, inv.Items, 2)
	requireMoney(t, "99.99", inv.Items[0].LineTotal)
	requireMoney(t, "5.00", inv.Items[0].TaxAmount)
	requireMoney(t, "199.99", inv.Subtotal)
	requireMoney(t, "5.00", inv.TaxAmount)
	requireMoney(t, "204.99", inv.TotalAmount)
	require.True(t, inv.Subtotal.Add(inv.TaxAmount).Equal(inv.TotalAmount))
	require.True(t, inv.BalanceDue.IsZero())
	require.Equal(t, "Gadget", inv.Items[0].Description)
}

func TestProductWithoutTaxCodeIsUntaxed(t *testing.T) {
	f := newFixture(t)
	f.store.PutProduct(ledger.Product{CompanyCode: company, Code: "R", Name: "Loose", UnitPrice: dec("10"), TaxRate: dec("11"), CurrentStock: 5, IsActive: true})

	inv := f.sell(t, ledger.SettlementPaid, SalesLineInput{ProductCode: "r", Quantity: 2})

	require.True(t, inv.TaxAmount.IsZero())
	require.True(t, inv.Items[0].TaxRate.IsZero())
	requireMoney(t, "20", inv.TotalAmount)
}

func TestCashSaleWritesOneDebit(t *testing.T) {
	f := newFixture(t)

	inv := f.sell(t, ledger.SettlementPaid, SalesLineInput{ProductCode: "P", Quantity: 2})

	require.Equal(t, ledger.InvoiceStatusPaid, inv.StatusAt(testNow))
	require.True(t, f.customerBalance(t, "C").IsZero())
	cash := f.store.CashEntries(company)
	require.Len(t, cash, 1)
	require.Equal(t, ledger.CashSales, cash[0].Type)
	require.Equal(t, ledger.DocSalesInvoice, cash[0].SourceType)
	require.Equal(t, inv.ID, cash[0].SourceID)
	require.Equal(t, inv.PostingRef, cash[0].PostingRef)
	requireMoney(t, "200", cash[0].Debit)

	moves := f.store.Movements(company)
	require.Len(t, moves, 1)
	require.Equal(t, ledger.MovementSale, moves[0].Type)
	require.EqualValues(t, -2, moves[0].QtyChange)
	require.EqualValues(t, 8, moves[0].BalanceAfter)
	require.Equal(t, inv.PostingRef, moves[0].PostingRef)
}

func TestZeroTotalCashSaleWritesNoCashRow(t *testing.T) {
	f := newFixture(t)
	f.store.PutProduct(ledger.Product{CompanyCode: company, Code: "FREE", Name: "Sample", UnitPrice: dec("0"), CurrentStock: 5, IsActive: true})

	inv := f.sell(t, ledger.SettlementPaid, SalesLineInput{ProductCode: "FREE", Quantity: 2})

	require.True(t, inv.TotalAmount.IsZero())
	require.Equal(t, ledger.InvoiceStatusPaid, inv.StatusAt(testNow))
	require.Empty(t, f.store.CashEntries(company))
	require.EqualValues(t, 3, f.stock(t, "FREE"))
}

func TestSalesInvoiceRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutProduct(ledger.Product{CompanyCode: company, Code: "OLD", Name: "Retired", UnitPrice: dec("5"), CurrentStock: 9})
	f.store.PutCustomer(ledger.Customer{CompanyCode: company, Code: "GONE", Name: "Closed"})

	_, err := f.svc.CreateSalesInvoice(ctx, SalesInvoiceInput{Scope: scope(), CustomerCode: "NOPE", Settlement: ledger.SettlementPaid, Lines: []SalesLineInput{{ProductCode: "P", Quantity: 1}}})
	require.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.svc.CreateSalesInvoice(ctx, SalesInvoiceInput{Scope: scope(), CustomerCode: "C", Settlement: ledger.SettlementPaid, Lines: []SalesLineInput{{ProductCode: "ZZZ", Quantity: 1}}})
	require.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.svc.CreateSalesInvoice(ctx, SalesInvoiceInput{Scope: scope(), CustomerCode: "C", Settlement: ledger.SettlementPaid, Lines: []SalesLineInput{{ProductCode: "OLD", Quantity: 1}}})
	require.ErrorIs(t, err, ledger.ErrValidation)

	_, err = f.svc.CreateSalesInvoice(ctx, SalesInvoiceInput{Scope: scope(), CustomerCode: "GONE", Settlement: ledger.SettlementPaid, Lines: []SalesLineInput{{ProductCode: "P", Quantity: 1}}})
	require.ErrorIs(t, err, ledger.ErrValidation)

	_, err = f.svc.CreateSalesInvoice(ctx, SalesInvoiceInput{Scope: Scope{CompanyCode: "OTHER", ActorID: 7}, CustomerCode: "C", Settlement: ledger.SettlementPaid, Lines: []SalesLineInput{{ProductCode: "P", Quantity: 1}}})
	require.ErrorIs(t, err, ledger.ErrNotFound)

	require.EqualValues(t, 10, f.stock(t, "P"))
	require.Empty(t, f.store.SalesInvoices(company))
}

func TestReturnCannotExceedInvoicedQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.sell(t, ledger.SettlementPending, SalesLineInput{ProductCode: "P", Quantity: 3})

	_, err := f.svc.CreateSalesReturn(ctx, SalesReturnInput{Scope: scope(), InvoiceID: inv.ID, Lines: []ReturnLineInput{{ProductCode: "P", Quantity: 2}}})
	require.NoError(t, err)

	_, err = f.svc.CreateSalesReturn(ctx, SalesReturnInput{Scope: scope(), InvoiceID: inv.ID, Lines: []ReturnLineInput{{ProductCode: "P", Quantity: 2}}})
	require.ErrorIs(t, err, ledger.ErrReturnExceedsInvoiced)
	var exceeded *ledger.ReturnExceedsInvoicedError
	require.ErrorAs(t, err, &exceeded)
	require.EqualValues(t, 1, exceeded.Remaining())

	require.EqualValues(t, 9, f.stock(t, "P"))
	requireMoney(t, "100", f.customerBalance(t, "C"))
	after, err := f.svc.GetSalesInvoice(ctx, company, inv.ID)
	require.NoError(t, err)
	requireMoney(t, "100", after.BalanceDue)
	require.Equal(t, ledger.InvoiceStatusPartial, after.StatusAt(testNow))
}

func TestReturnOfProductNotOnInvoice(t *testing.T) {
	f := newFixture(t)
	inv := f.sell(t, ledger.SettlementPending, SalesLineInput{ProductCode: "P", Quantity: 3})

	_, err := f.svc.CreateSalesReturn(context.Background(), SalesReturnInput{
		Scope:     scope(),
		InvoiceID: inv.ID,
		Lines:     []ReturnLineInput{{ProductCode: "Q", Quantity: 1}},
	})
	require.ErrorIs(t, err, ledger.ErrValidation)
	require.EqualValues(t, 50, f.stock(t, "Q"))
}

func TestReturnOnCashSaleRefundsFromCash(t *testing.T) {
	f := newFixture(t)
	inv := f.sell(t, ledger.SettlementPaid, SalesLineInput{ProductCode: "Q", Quantity: 3})

	ret, err := f.svc.CreateSalesReturn(context.Background(), SalesReturnInput{
		Scope:     scope(),
		InvoiceID: inv.ID,
		Lines:     []ReturnLineInput{{ProductCode: "Q", Quantity: 1}},
		Reason:    "damaged",
	})
	require.NoError(t, err)

	// 33.33 priced from the invoice line, 5% tax rounded to 1.67.
	requireMoney(t, "35.00", ret.TotalAmount)
	requireMoney(t, "35.00", ret.RefundAmount)
	require.True(t, ret.CreditAmount.IsZero())
	require.True(t, f.customerBalance(t, "C").IsZero())
	require.EqualValues(t, 48, f.stock(t, "Q"))

	cash := f.store.CashEntries(company)
	require.Len(t, cash, 2)
	require.Equal(t, ledger.CashSalesReturn, cash[1].Type)
	requireMoney(t, "35.00", cash[1].Credit)
	require.Equal(t, ret.ID, cash[1].SourceID)

	stored, err := f.svc.GetSalesReturn(context.Background(), company, ret.ID)
	require.NoError(t, err)
	require.Equal(t, ret.Number, stored.Number)
	require.Len(t, stored.Items, 1)
}

func TestReturningEveryUnitSeparatelyMatchesInvoiceLine(t *testing.T) {
	for _, settlement := range []ledger.Settlement{ledger.SettlementPaid, ledger.SettlementPending} {
		t.Run(string(settlement), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			inv := f.sell(t, settlement, SalesLineInput{ProductCode: "Q", Quantity: 3})
			requireMoney(t, "104.99", inv.TotalAmount)

			var totals []string
			sum := decimal.Zero
			for i := 0; i < 3; i++ {
				ret, err := f.svc.CreateSalesReturn(ctx, SalesReturnInput{
					Scope:     scope(),
					InvoiceID: inv.ID,
					Lines:     []ReturnLineInput{{ProductCode: "Q", Quantity: 1}},
				})
				require.NoError(t, err)
				require.True(t, ret.Subtotal.Add(ret.TaxAmount).Equal(ret.TotalAmount))
				totals = append(totals, ret.TotalAmount.StringFixed(2))
				sum = sum.Add(ret.TotalAmount)
			}
			require.Equal(t, []string{"35.00", "34.99", "35.00"}, totals)
			requireMoney(t, "104.99", sum)
			require.EqualValues(t, 50, f.stock(t, "Q"))
			require.True(t, f.customerBalance(t, "C").IsZero())

			net := decimal.Zero
			for _, entry := range f.store.CashEntries(company) {
				net = net.Add(entry.Debit).Sub(entry.Credit)
			}
			require.True(t, net.IsZero(), "cash net %s", net)

			after, err := f.svc.GetSalesInvoice(ctx, company, inv.ID)
			require.NoError(t, err)
			require.True(t, after.BalanceDue.IsZero())
		})
	}
}

func TestReturnPricesFromInvoiceLineAfterPriceChange(t *testing.T) {
	f := newFixture(t)
	inv := f.sell(t, ledger.SettlementPending, SalesLineInput{ProductCode: "P", Quantity: 2})
	p, err := f.store.GetProduct(context.Background(), company, "P")
	require.NoError(t, err)
	p.UnitPrice = dec("250")
	f.store.PutProduct(p)

	ret, err := f.svc.CreateSalesReturn(context.Background(), SalesReturnInput{
		Scope:     scope(),
		InvoiceID: inv.ID,
		Lines:     []ReturnLineInput{{ProductCode: "P", Quantity: 1}},
	})
	require.NoError(t, err)
	requireMoney(t, "100", ret.TotalAmount)
}

func TestVoidCreditSaleRestoresLedgers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.sell(t, ledger.SettlementPending, SalesLineInput{ProductCode: "P", Quantity: 4})

	voided, err := f.svc.VoidSalesInvoice(ctx, VoidInput{Scope: scope(), InvoiceID: inv.ID, Reason: "wrong customer"})
	require.NoError(t, err)

	require.Equal(t, ledger.InvoiceStatusVoid, voided.StatusAt(testNow))
	require.True(t, voided.BalanceDue.IsZero())
	require.Equal(t, "wrong customer", voided.VoidReason)
	require.EqualValues(t, 10, f.stock(t, "P"))
	require.True(t, f.customerBalance(t, "C").IsZero())
	moves := f.store.Movements(company)
	require.Len(t, moves, 2)
	require.Equal(t, ledger.MovementSaleVoid, moves[1].Type)
	require.EqualValues(t, 4, moves[1].QtyChange)

	_, err = f.svc.VoidSalesInvoice(ctx, VoidInput{Scope: scope(), InvoiceID: inv.ID, Reason: "again"})
	require.ErrorIs(t, err, ledger.ErrValidation)

	_, err = f.svc.CreateSalesReturn(ctx, SalesReturnInput{Scope: scope(), InvoiceID: inv.ID, Lines: []ReturnLineInput{{ProductCode: "P", Quantity: 1}}})
	require.ErrorIs(t, err, ledger.ErrValidation)
}

func TestVoidCashSaleWritesCompensatingCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.sell(t, ledger.SettlementPaid, SalesLineInput{ProductCode: "P", Quantity: 1})

	_, err := f.svc.VoidSalesInvoice(ctx, VoidInput{Scope: scope(), InvoiceID: inv.ID, Reason: "duplicate"})
	require.NoError(t, err)

	cash := f.store.CashEntries(company)
	require.Len(t, cash, 2)
	require.Equal(t, ledger.CashSalesVoid, cash[1].Type)
	requireMoney(t, "100", cash[1].Credit)
	balance, err := f.store.CashBalance(ctx, company, testNow)
	require.NoError(t, err)
	require.True(t, balance.IsZero())
}

func TestVoidRejectedOnceSettled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.sell(t, ledger.SettlementPending, SalesLineInput{ProductCode: "P", Quantity: 1})
	_, err := f.svc.RecordPaymentReceipt(ctx, PaymentInput{Scope: scope(), PartyCode: "C", Amount: dec("40"), Reference: "CASH-1"})
	require.NoError(t, err)

	_, err = f.svc.VoidSalesInvoice(ctx, VoidInput{Scope: scope(), InvoiceID: inv.ID, Reason: "late"})
	require.ErrorIs(t, err, ledger.ErrValidation)
	require.EqualValues(t, 9, f.stock(t, "P"))
}

func TestReissueVoidsAndReplacesAtomically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.sell(t, ledger.SettlementPending, SalesLineInput{ProductCode: "P", Quantity: 2})

	out, err := f.svc.ReissueSalesInvoice(ctx, ReissueInput{
		Void: VoidInput{Scope: scope(), InvoiceID: inv.ID, Reason: "quantity typo"},
		Replacement: SalesInvoiceInput{
			CustomerCode: "C",
			Settlement:   ledger.SettlementPending,
			Lines:        []SalesLineInput{{ProductCode: "P", Quantity: 3}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, ledger.InvoiceStatusVoid, out.Voided.StatusAt(testNow))
	require.Equal(t, "INV-000002", out.Replacement.Number)
	requireMoney(t, "300", f.customerBalance(t, "C"))
	require.EqualValues(t, 7, f.stock(t, "P"))
	require.NotEqual(t, out.Voided.PostingRef, out.Replacement.PostingRef)
}

func TestReissueDatesVoidTodayAndReplacementAsRequested(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.sell(t, ledger.SettlementPaid, SalesLineInput{ProductCode: "P", Quantity: 2})
	backdated := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	out, err := f.svc.ReissueSalesInvoice(ctx, ReissueInput{
		Void: VoidInput{Scope: scope(), InvoiceID: inv.ID, Reason: "wrong customer"},
		Replacement: SalesInvoiceInput{
			CustomerCode: "D",
			InvoiceDate:  backdated,
			Settlement:   ledger.SettlementPaid,
			Lines:        []SalesLineInput{{ProductCode: "P", Quantity: 2}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, backdated, out.Replacement.InvoiceDate)

	today := ledger.DateOnly(testNow)
	cash := f.store.CashEntries(company)
	require.Len(t, cash, 3)
	require.Equal(t, ledger.CashSalesVoid, cash[1].Type)
	require.Equal(t, today, cash[1].EntryDate)
	require.Equal(t, ledger.CashSales, cash[2].Type)
	require.Equal(t, backdated, cash[2].EntryDate)
	require.Equal(t, cash[1].PostingRef, cash[2].PostingRef)

	for _, m := range f.store.Movements(company) {
		switch m.Type {
		case ledger.MovementSaleVoid:
			require.Equal(t, today, m.MovementDate)
		case ledger.MovementSale:
			if m.SourceID == out.Replacement.ID {
				require.Equal(t, backdated, m.MovementDate)
			}
		}
	}
}

func TestReissueRollsBackVoidWhenReplacementFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.sell(t, ledger.SettlementPending, SalesLineInput{ProductCode: "P", Quantity: 2})

	_, err := f.svc.ReissueSalesInvoice(ctx, ReissueInput{
		Void: VoidInput{Scope: scope(), InvoiceID: inv.ID, Reason: "quantity typo"},
		Replacement: SalesInvoiceInput{
			CustomerCode: "C",
			Settlement:   ledger.SettlementPending,
			Lines:        []SalesLineInput{{ProductCode: "P", Quantity: 11}},
		},
	})
	require.ErrorIs(t, err, ledger.ErrStockInsufficient)

	current, err := f.svc.GetSalesInvoice(ctx, company, inv.ID)
	require.NoError(t, err)
	require.Nil(t, current.VoidedAt)
	require.EqualValues(t, 8, f.stock(t, "P"))
	requireMoney(t, "200", f.customerBalance(t, "C"))
}
