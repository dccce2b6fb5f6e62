package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/internal/masterdata"
	"github.com/odyssey-erp/odyssey-distribution/internal/observability"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-distribution/internal/posting"
	"github.com/odyssey-erp/odyssey-distribution/internal/testing/memstore"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestRouter(t *testing.T, cfg *Config, ready Pinger) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	store.PutCustomer(ledger.Customer{CompanyCode: "ACME", Code: "C", Name: "Toko Maju", PaymentTermsDays: 30, IsActive: true})
	return NewRouter(RouterParams{
		Logger:            logger,
		Config:            cfg,
		PostingHandler:    posting.NewHandler(logger, posting.NewService(store, posting.Dependencies{Logger: logger})),
		MasterDataHandler: masterdata.NewHandler(logger, masterdata.NewService(store, masterdata.Dependencies{Logger: logger})),
		Metrics:           observability.NewMetrics(),
		Ready:             ready,
	})
}

func testConfig() *Config {
	return &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, RateLimitPerMinute: 1000}
}

func TestRouterHealthAndActorGuard(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/customers/C", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "missing_company")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/C", nil)
	req.Header.Set(httpx.HeaderCompanyCode, "acme")
	req.Header.Set(httpx.HeaderActorID, "3")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "Toko Maju")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "odyssey_http_requests_total"))
}

func TestRouterReadiness(t *testing.T) {
	router := newTestRouter(t, testConfig(), pingFunc(func(context.Context) error { return errors.New("down") }))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	router = newTestRouter(t, testConfig(), pingFunc(func(context.Context) error { return nil }))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterRateLimitsPerCompany(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 2
	router := newTestRouter(t, cfg, nil)

	call := func(company string) int {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		req.Header.Set(httpx.HeaderCompanyCode, company)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusOK, call("ACME"))
	require.Equal(t, http.StatusOK, call("ACME"))
	require.Equal(t, http.StatusTooManyRequests, call("ACME"))
	require.Equal(t, http.StatusOK, call("BETA"))
}
