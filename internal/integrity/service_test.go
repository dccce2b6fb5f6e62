package integrity

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

type fakeRepo struct {
	companies []string
	customers map[string][]PartyBalance
	suppliers map[string][]PartyBalance
	stock     map[string][]StockBalance
	cash      map[string][]CashCount
	err       error
}

func (f *fakeRepo) Companies(context.Context) ([]string, error) { return f.companies, f.err }

func (f *fakeRepo) CustomerBalances(_ context.Context, c string) ([]PartyBalance, error) {
	return f.customers[c], f.err
}

func (f *fakeRepo) SupplierBalances(_ context.Context, c string) ([]PartyBalance, error) {
	return f.suppliers[c], nil
}

func (f *fakeRepo) StockBalances(_ context.Context, c string) ([]StockBalance, error) {
	return f.stock[c], nil
}

func (f *fakeRepo) CashCounts(_ context.Context, c string) ([]CashCount, error) {
	return f.cash[c], nil
}

type issueCounter map[string]int

func (m issueCounter) AddIntegrityIssues(kind, company string, count int) {
	m[company+"/"+kind] += count
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCheckKeepsOnlyMismatches(t *testing.T) {
	repo := &fakeRepo{
		customers: map[string][]PartyBalance{"ACME": {
			{Code: "C1", Stored: money("100"), Expected: money("100.00")},
			{Code: "C2", Stored: money("90"), Expected: money("100")},
		}},
		suppliers: map[string][]PartyBalance{"ACME": {{Code: "S1", Stored: money("0"), Expected: money("0")}}},
		stock: map[string][]StockBalance{"ACME": {
			{ProductCode: "P1", Stored: 10, FromMovements: 10},
			{ProductCode: "P2", Stored: 7, FromMovements: 5},
		}},
		cash: map[string][]CashCount{"ACME": {
			{SourceType: ledger.DocExpense, SourceID: 1, Number: "EXP-000001", Want: 1, Got: 1},
			{SourceType: ledger.DocSalesInvoice, SourceID: 2, Number: "INV-000001", Want: 2, Got: 1},
		}},
	}
	metrics := issueCounter{}
	var buf bytes.Buffer
	at := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	svc := NewService(repo, metrics, slog.New(slog.NewJSONHandler(&buf, nil))).WithClock(func() time.Time { return at })

	report, err := svc.Check(context.Background(), "ACME")
	require.NoError(t, err)
	require.Equal(t, at, report.CheckedAt)
	require.False(t, report.Clean())
	require.Equal(t, 3, report.Issues())
	require.Len(t, report.CustomerDrift, 1)
	require.Equal(t, "C2", report.CustomerDrift[0].Code)
	require.True(t, report.CustomerDrift[0].Drift().Equal(money("-10")))
	require.Empty(t, report.SupplierDrift)
	require.Equal(t, "P2", report.StockDrift[0].ProductCode)
	require.Equal(t, "INV-000001", report.CashMismatches[0].Number)

	require.Equal(t, 1, metrics["ACME/customer"])
	require.Equal(t, 1, metrics["ACME/stock"])
	require.Equal(t, 1, metrics["ACME/cash"])
	require.Zero(t, metrics["ACME/supplier"])
	require.Contains(t, buf.String(), "ledger drift detected")
	require.Contains(t, buf.String(), `"customer":"C2"`)
}

func TestCheckAllVisitsEveryCompany(t *testing.T) {
	repo := &fakeRepo{
		companies: []string{"ACME", "BETA"},
		stock:     map[string][]StockBalance{"BETA": {{ProductCode: "X", Stored: 1, FromMovements: 0}}},
	}
	reports, err := NewService(repo, nil, nil).CheckAll(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	require.True(t, reports[0].Clean())
	require.Equal(t, "BETA", reports[1].CompanyCode)
	require.Equal(t, 1, reports[1].Issues())
}

func TestCheckWrapsRepositoryErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewService(&fakeRepo{err: boom}, nil, nil).Check(context.Background(), "ACME")
	require.ErrorIs(t, err, boom)

	_, err = NewService(&fakeRepo{err: boom}, nil, nil).CheckAll(context.Background())
	require.ErrorIs(t, err, boom)
}
