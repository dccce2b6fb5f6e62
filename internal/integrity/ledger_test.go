package integrity_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/integrity"
	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/internal/masterdata"
	"github.com/odyssey-erp/odyssey-distribution/internal/posting"
	"github.com/odyssey-erp/odyssey-distribution/internal/testing/memstore"
)

const company = "ACME"

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// seed books a small trading month through the services so every projection
// is written the way production writes it.
func seed(t *testing.T) *memstore.Store {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	store.SetClock(func() time.Time { return testNow })
	clock := func() time.Time { return testNow }

	md := masterdata.NewService(store, masterdata.Dependencies{}).WithClock(clock)
	mscope := masterdata.Scope{CompanyCode: company, ActorID: 1}
	_, err := md.CreateProduct(ctx, masterdata.ProductInput{Scope: mscope, Code: "P", OpeningStock: 20,
		ProductFields: masterdata.ProductFields{Name: "Widget", UnitPrice: dec("100"), PurchasePrice: dec("60")}})
	require.NoError(t, err)
	_, err = md.CreateCustomer(ctx, masterdata.CustomerInput{Scope: mscope, Code: "C", Name: "Toko Maju"})
	require.NoError(t, err)
	_, err = md.CreateSupplier(ctx, masterdata.SupplierInput{Scope: mscope, Code: "S", Name: "Pabrik Sentosa"})
	require.NoError(t, err)
	_, err = md.CreateExpenseHead(ctx, masterdata.ExpenseHeadInput{Scope: mscope, Code: "RENT", Name: "Rent"})
	require.NoError(t, err)
	_, err = md.AdjustStock(ctx, masterdata.StockAdjustment{Scope: mscope, Code: "P", Delta: -2, Reason: "damaged"})
	require.NoError(t, err)

	ps := posting.NewService(store, posting.Dependencies{}).WithClock(clock)
	pscope := posting.Scope{CompanyCode: company, ActorID: 1}
	credit, err := ps.CreateSalesInvoice(ctx, posting.SalesInvoiceInput{Scope: pscope, CustomerCode: "C",
		Settlement: ledger.SettlementPending, Lines: []posting.SalesLineInput{{ProductCode: "P", Quantity: 3}}})
	require.NoError(t, err)
	cash, err := ps.CreateSalesInvoice(ctx, posting.SalesInvoiceInput{Scope: pscope, CustomerCode: "C",
		Settlement: ledger.SettlementPaid, Lines: []posting.SalesLineInput{{ProductCode: "P", Quantity: 1}}})
	require.NoError(t, err)
	_, err = ps.VoidSalesInvoice(ctx, posting.VoidInput{Scope: pscope, InvoiceID: cash.ID, Reason: "wrong customer"})
	require.NoError(t, err)
	_, err = ps.RecordPaymentReceipt(ctx, posting.PaymentInput{Scope: pscope, PartyCode: "C", Amount: dec("120"),
		Reference: "TRF-1", InvoiceID: &credit.ID})
	require.NoError(t, err)
	_, err = ps.CreatePurchaseInvoice(ctx, posting.PurchaseInvoiceInput{Scope: pscope, SupplierCode: "S",
		Settlement: ledger.SettlementPending, Lines: []posting.PurchaseLineInput{{ProductCode: "P", Quantity: 5}}})
	require.NoError(t, err)
	_, err = ps.RecordSupplierPayment(ctx, posting.PaymentInput{Scope: pscope, PartyCode: "S", Amount: dec("100"),
		Reference: "TRF-2"})
	require.NoError(t, err)
	_, err = ps.RecordExpense(ctx, posting.ExpenseInput{Scope: pscope, HeadCode: "RENT", Amount: dec("50"), Remarks: "March"})
	require.NoError(t, err)
	return store
}

func TestPostedLedgerIsConsistent(t *testing.T) {
	store := seed(t)
	reports, err := integrity.NewService(store, nil, nil).CheckAll(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, company, reports[0].CompanyCode)
	require.True(t, reports[0].Clean(), "%+v", reports[0])

	cash, err := store.CashCounts(context.Background(), company)
	require.NoError(t, err)
	for _, c := range cash {
		if c.SourceType == ledger.DocSalesInvoice && c.Want == 2 {
			return
		}
	}
	t.Fatal("voided cash invoice should own two cash rows")
}

func TestDetectsTamperedProjections(t *testing.T) {
	ctx := context.Background()
	store := seed(t)

	customer, err := store.GetCustomer(ctx, company, "C")
	require.NoError(t, err)
	customer.OutstandingBalance = customer.OutstandingBalance.Add(dec("5"))
	store.PutCustomer(customer)

	product, err := store.GetProduct(ctx, company, "P")
	require.NoError(t, err)
	product.CurrentStock += 4
	store.PutProduct(product)

	report, err := integrity.NewService(store, nil, nil).Check(ctx, company)
	require.NoError(t, err)
	require.Equal(t, 2, report.Issues())
	require.Equal(t, "C", report.CustomerDrift[0].Code)
	require.True(t, report.CustomerDrift[0].Drift().Equal(dec("5")))
	require.Equal(t, int64(4), report.StockDrift[0].Stored-report.StockDrift[0].FromMovements)
	require.Empty(t, report.SupplierDrift)
	require.Empty(t, report.CashMismatches)
}
