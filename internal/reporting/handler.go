package reporting

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/httpx"
)

// Handler serves read-only report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes behind httpx.RequireActor.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/sales-invoices", h.listSalesInvoices)
	r.Get("/purchase-invoices", h.listPurchaseInvoices)
	r.Get("/products", h.listProducts)
	r.Get("/products/low-stock", h.lowStock)
	r.Get("/customers", h.listCustomers)
	r.Get("/cash-ledger", h.listCashLedger)
	r.Get("/expenses", h.listExpenses)
	r.Route("/reports", func(r chi.Router) {
		r.Get("/sales-summary", h.salesSummary)
		r.Get("/sales-by-customer", h.salesByCustomer)
		r.Get("/sales-by-product", h.salesByProduct)
		r.Get("/expenses-by-head", h.expensesByHead)
		r.Get("/cash-flow", h.cashFlow)
		r.Get("/receivables-aging", h.receivablesAging)
		r.Get("/dashboard", h.dashboard)
	})
}

func (h *Handler) listSalesInvoices(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r)(h.service.ListSalesInvoices(r.Context(), f))
}

func (h *Handler) listPurchaseInvoices(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r)(h.service.ListPurchaseInvoices(r.Context(), f))
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r)(h.service.ListProducts(r.Context(), f))
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.service.LowStock(r.Context(), httpx.Actor(r).CompanyCode))
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r)(h.service.ListCustomers(r.Context(), f))
}

func (h *Handler) listCashLedger(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r)(h.service.ListCashLedger(r.Context(), f))
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r)(h.service.ListExpenses(r.Context(), f))
}

func (h *Handler) salesSummary(w http.ResponseWriter, r *http.Request) {
	rg, err := dateRange(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r)(h.service.SalesSummary(r.Context(), rg))
}

func (h *Handler) salesByCustomer(w http.ResponseWriter, r *http.Request) {
	rg, err := dateRange(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r)(h.service.SalesByCustomer(r.Context(), rg))
}

func (h *Handler) salesByProduct(w http.ResponseWriter, r *http.Request) {
	rg, err := dateRange(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r)(h.service.SalesByProduct(r.Context(), rg))
}

func (h *Handler) expensesByHead(w http.ResponseWriter, r *http.Request) {
	rg, err := dateRange(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r)(h.service.ExpensesByHead(r.Context(), rg))
}

func (h *Handler) cashFlow(w http.ResponseWriter, r *http.Request) {
	rg, err := dateRange(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r)(h.service.CashFlow(r.Context(), rg))
}

func (h *Handler) receivablesAging(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r.URL.Query(), "as_of")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r)(h.service.ReceivablesAging(r.Context(), httpx.Actor(r).CompanyCode, asOf))
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r.URL.Query(), "as_of")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r)(h.service.Dashboard(r.Context(), httpx.Actor(r).CompanyCode, asOf))
}

// respond returns a sink for a (value, error) pair.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request) func(any, error) {
	return func(v any, err error) {
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, v)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	problem := httpx.ProblemFor(err)
	if problem.Status >= http.StatusInternalServerError {
		h.logger.Error("report request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.WriteProblem(w, problem)
}

func listFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	rg, err := dateRange(r)
	if err != nil {
		return ListFilter{}, err
	}
	page, err := queryInt(q, "page")
	if err != nil {
		return ListFilter{}, err
	}
	perPage, err := queryInt(q, "per_page")
	if err != nil {
		return ListFilter{}, err
	}
	active, _ := strconv.ParseBool(q.Get("active"))
	return ListFilter{
		CompanyCode: rg.CompanyCode,
		Page:        page,
		PerPage:     perPage,
		From:        rg.From,
		To:          rg.To,
		Search:      strings.TrimSpace(q.Get("q")),
		PartyCode:   q.Get("party"),
		HeadCode:    q.Get("head"),
		ActiveOnly:  active,
	}, nil
}

func dateRange(r *http.Request) (Range, error) {
	q := r.URL.Query()
	from, err := queryDate(q, "from")
	if err != nil {
		return Range{}, err
	}
	to, err := queryDate(q, "to")
	if err != nil {
		return Range{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return Range{}, ledger.Invalid("to", "must not be before from")
	}
	return Range{CompanyCode: httpx.Actor(r).CompanyCode, From: from, To: to}, nil
}

func queryDate(q url.Values, name string) (time.Time, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, ledger.Invalid(name, "must be a date formatted YYYY-MM-DD")
	}
	return t, nil
}

func queryInt(q url.Values, name string) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ledger.Invalid(name, "must be an integer")
	}
	return n, nil
}
