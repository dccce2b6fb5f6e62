package masterdata

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
	"github.com/odyssey-erp/odyssey-distribution/internal/testing/memstore"
)

const company = "ACME"

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type auditSink struct{ logs []shared.AuditLog }

func (a *auditSink) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type invalidations struct{ companies []string }

func (n *invalidations) Invalidate(_ context.Context, company string) error {
	n.companies = append(n.companies, company)
	return nil
}

func newTestService(t *testing.T) (*Service, *memstore.Store, *auditSink, *invalidations) {
	t.Helper()
	store := memstore.New()
	store.SetClock(func() time.Time { return testNow })
	audit := &auditSink{}
	notifier := &invalidations{}
	svc := NewService(store, Dependencies{Audit: audit, Notifier: notifier}).WithClock(func() time.Time { return testNow })
	return svc, store, audit, notifier
}

func scope() Scope {
	return Scope{CompanyCode: "acme", ActorID: 3}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func productInput(code string, opening int64) ProductInput {
	return ProductInput{
		Scope:        scope(),
		Code:         code,
		OpeningStock: opening,
		ProductFields: ProductFields{
			Name:          "Baut M8",
			Category:      "hardware",
			UnitPrice:     dec("1500"),
			PurchasePrice: dec("1100"),
			MinStockLevel: 20,
			TaxCode:       "ppn",
			TaxRate:       dec("11"),
		},
	}
}

func TestCreateProductRecordsOpeningMovement(t *testing.T) {
	svc, store, audit, notifier := newTestService(t)

	product, err := svc.CreateProduct(context.Background(), productInput(" bm8 ", 120))
	require.NoError(t, err)
	require.Equal(t, "BM8", product.Code)
	require.Equal(t, company, product.CompanyCode)
	require.Equal(t, "PPN", product.TaxCode)
	require.EqualValues(t, 120, product.CurrentStock)
	require.True(t, product.IsActive)

	moves := store.Movements(company)
	require.Len(t, moves, 1)
	require.Equal(t, ledger.MovementOpening, moves[0].Type)
	require.EqualValues(t, 120, moves[0].QtyChange)
	require.EqualValues(t, 120, moves[0].BalanceAfter)
	require.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), moves[0].MovementDate)

	require.Len(t, audit.logs, 1)
	require.Equal(t, OpCreateProduct, audit.logs[0].Action)
	require.Equal(t, []string{company}, notifier.companies)
}

func TestCreateProductWithoutStockSkipsMovement(t *testing.T) {
	svc, store, _, _ := newTestService(t)

	_, err := svc.CreateProduct(context.Background(), productInput("BM10", 0))
	require.NoError(t, err)
	require.Empty(t, store.Movements(company))
}

func TestCreateProductRejectsDuplicateCode(t *testing.T) {
	svc, _, audit, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, productInput("BM8", 1))
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, productInput("bm8", 1))
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "code", verr.Field)
	require.Len(t, audit.logs, 1)
}

func TestCreateProductValidation(t *testing.T) {
	svc, store, _, _ := newTestService(t)

	cases := []struct {
		name  string
		edit  func(*ProductInput)
		field string
	}{
		{"missing name", func(in *ProductInput) { in.Name = " " }, "name"},
		{"negative opening", func(in *ProductInput) { in.OpeningStock = -1 }, "opening_stock"},
		{"negative price", func(in *ProductInput) { in.UnitPrice = dec("-1") }, "unit_price"},
		{"sub-cent cost", func(in *ProductInput) { in.PurchasePrice = dec("10.001") }, "purchase_price"},
		{"tax above 100", func(in *ProductInput) { in.TaxRate = dec("101") }, "tax_rate"},
		{"missing actor", func(in *ProductInput) { in.ActorID = 0 }, "actor_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := productInput("X", 1)
			tc.edit(&in)
			_, err := svc.CreateProduct(context.Background(), in)
			var verr *ledger.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tc.field, verr.Field)
		})
	}
	require.Zero(t, store.Attempts())
}

func TestUpdateProductKeepsStockAndHistory(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateProduct(ctx, productInput("BM8", 40))
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, ProductUpdate{
		Scope: scope(),
		Code:  "bm8",
		ProductFields: ProductFields{
			Name:          "Baut M8 galvanis",
			UnitPrice:     dec("1750"),
			PurchasePrice: dec("1200"),
			MinStockLevel: 10,
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Baut M8 galvanis", updated.Name)
	require.True(t, updated.UnitPrice.Equal(dec("1750")))
	require.Empty(t, updated.TaxCode)
	require.True(t, updated.TaxRate.IsZero())
	require.EqualValues(t, 40, updated.CurrentStock)
	require.Len(t, store.Movements(company), 1)

	_, err = svc.UpdateProduct(ctx, ProductUpdate{Scope: scope(), Code: "NOPE", ProductFields: ProductFields{Name: "x"}})
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestAdjustStock(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateProduct(ctx, productInput("BM8", 5))
	require.NoError(t, err)

	move, err := svc.AdjustStock(ctx, StockAdjustment{Scope: scope(), Code: "BM8", Delta: -3, Reason: "damaged"})
	require.NoError(t, err)
	require.Equal(t, ledger.MovementAdjust, move.Type)
	require.EqualValues(t, 2, move.BalanceAfter)
	require.Equal(t, "ADJ-000001 damaged", move.Note)

	_, err = svc.AdjustStock(ctx, StockAdjustment{Scope: scope(), Code: "BM8", Delta: -3, Reason: "count"})
	var stockErr *ledger.StockInsufficientError
	require.ErrorAs(t, err, &stockErr)
	require.EqualValues(t, 2, stockErr.Available)
	require.EqualValues(t, 3, stockErr.Requested)

	_, err = svc.AdjustStock(ctx, StockAdjustment{Scope: scope(), Code: "BM8", Delta: 0, Reason: "noop"})
	require.ErrorIs(t, err, ledger.ErrValidation)

	product, err := svc.GetProduct(ctx, company, "bm8")
	require.NoError(t, err)
	require.EqualValues(t, 2, product.CurrentStock)

	var sum int64
	for _, m := range store.Movements(company) {
		sum += m.QtyChange
	}
	require.Equal(t, product.CurrentStock, sum)
}

func TestAdjustStockRequestKeyIsSingleUse(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateProduct(ctx, productInput("BM8", 5))
	require.NoError(t, err)

	in := StockAdjustment{Scope: scope(), Code: "BM8", Delta: 4, Reason: "found", RequestKey: "adj-1"}
	_, err = svc.AdjustStock(ctx, in)
	require.NoError(t, err)
	_, err = svc.AdjustStock(ctx, in)
	require.ErrorIs(t, err, ledger.ErrDuplicateRequest)

	product, err := svc.GetProduct(ctx, company, "BM8")
	require.NoError(t, err)
	require.EqualValues(t, 9, product.CurrentStock)
}

func TestCustomerLifecycle(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	customer, err := svc.CreateCustomer(ctx, CustomerInput{Scope: scope(), Code: "toko-a", Name: "Toko A", CreditLimit: dec("5000000")})
	require.NoError(t, err)
	require.Equal(t, "TOKO-A", customer.Code)
	require.Equal(t, DefaultPaymentTermsDays, customer.PaymentTermsDays)
	require.True(t, customer.OutstandingBalance.IsZero())

	days := 14
	customer, err = svc.UpdateCustomer(ctx, CustomerInput{Scope: scope(), Code: "TOKO-A", Name: "Toko A Baru", PaymentTermsDays: &days})
	require.NoError(t, err)
	require.Equal(t, 14, customer.PaymentTermsDays)
	require.Equal(t, "Toko A Baru", customer.Name)

	require.NoError(t, svc.SetActive(ctx, ActiveInput{Scope: scope(), Kind: KindCustomer, Code: "toko-a", Active: false}))
	customer, err = svc.GetCustomer(ctx, company, "TOKO-A")
	require.NoError(t, err)
	require.False(t, customer.IsActive)

	_, err = svc.CreateCustomer(ctx, CustomerInput{Scope: scope(), Code: "TOKO-A", Name: "dup"})
	require.ErrorIs(t, err, ledger.ErrValidation)
	_, err = svc.CreateCustomer(ctx, CustomerInput{Scope: scope(), Code: "TOKO-B", Name: "B", CreditLimit: dec("-1")})
	require.ErrorIs(t, err, ledger.ErrValidation)
}

func TestSupplierAndExpenseHead(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	days := 45
	supplier, err := svc.CreateSupplier(ctx, SupplierInput{Scope: scope(), Code: "pt-x", Name: "PT X", PaymentTermsDays: &days})
	require.NoError(t, err)
	require.Equal(t, 45, supplier.PaymentTermsDays)

	supplier, err = svc.UpdateSupplier(ctx, SupplierInput{Scope: scope(), Code: "PT-X", Name: "PT X Tbk"})
	require.NoError(t, err)
	require.Equal(t, "PT X Tbk", supplier.Name)
	require.Equal(t, 45, supplier.PaymentTermsDays)

	head, err := svc.CreateExpenseHead(ctx, ExpenseHeadInput{Scope: scope(), Code: "fuel", Name: "Fuel"})
	require.NoError(t, err)
	require.Equal(t, "FUEL", head.Code)
	require.True(t, head.IsActive)

	require.NoError(t, svc.SetActive(ctx, ActiveInput{Scope: scope(), Kind: KindExpenseHead, Code: "FUEL"}))
	head, err = svc.store.GetExpenseHead(ctx, company, "FUEL")
	require.NoError(t, err)
	require.False(t, head.IsActive)

	err = svc.SetActive(ctx, ActiveInput{Scope: scope(), Kind: KindSupplier, Code: "NONE"})
	require.ErrorIs(t, err, ledger.ErrNotFound)
	err = svc.SetActive(ctx, ActiveInput{Scope: scope(), Kind: "warehouse", Code: "PT-X"})
	require.ErrorIs(t, err, ledger.ErrValidation)
}
