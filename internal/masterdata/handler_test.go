package masterdata

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/platform/httpx"
	_ "github.com/odyssey-erp/odyssey-distribution/testing"
)

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpx.HeaderCompanyCode, "acme")
	req.Header.Set(httpx.HeaderActorID, "3")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerProductRoutes(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	r := chi.NewRouter()
	r.Use(httpx.RequireActor)
	NewHandler(nil, svc).MountRoutes(r)

	rec := serve(t, r, http.MethodPost, "/products", `{"code":"bm8","name":"Baut","unit_price":"1500","purchase_price":"1000","opening_stock":12}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(t, r, http.MethodPost, "/products/bm8/adjustments", `{"delta":-20,"reason":"audit"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.EqualValues(t, 12, *problem.Available)

	rec = serve(t, r, http.MethodPut, "/products/BM8/active", `{"active":false}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(t, r, http.MethodGet, "/products/BM8", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"is_active":false`)

	rec = serve(t, r, http.MethodGet, "/products/NONE", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCustomerValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	r := chi.NewRouter()
	r.Use(httpx.RequireActor)
	NewHandler(nil, svc).MountRoutes(r)

	rec := serve(t, r, http.MethodPost, "/customers", `{"code":"C1","name":""}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), `"field":"name"`)

	rec = serve(t, r, http.MethodPost, "/customers", `{"code":"C1","name":"Toko","payment_terms_days":7}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"payment_terms_days":7`)

	rec = serve(t, r, http.MethodPut, "/customers/C1", `{"name":"Toko 2","credit_limit":"100.50"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
