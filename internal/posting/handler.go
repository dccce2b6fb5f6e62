package posting

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/httpx"
)

// Handler exposes posting operations as JSON endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers posting routes. Callers wrap them with httpx.RequireActor.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales-invoices", h.createSalesInvoice)
	r.Get("/sales-invoices/{id}", h.showSalesInvoice)
	r.Post("/sales-invoices/{id}/void", h.voidSalesInvoice)
	r.Post("/sales-invoices/{id}/reissue", h.reissueSalesInvoice)
	r.Post("/sales-returns", h.createSalesReturn)
	r.Get("/sales-returns/{id}", h.showSalesReturn)
	r.Post("/purchase-invoices", h.createPurchaseInvoice)
	r.Get("/purchase-invoices/{id}", h.showPurchaseInvoice)
	r.Post("/purchase-invoices/{id}/void", h.voidPurchaseInvoice)
	r.Post("/payment-receipts", h.recordPaymentReceipt)
	r.Post("/supplier-payments", h.recordSupplierPayment)
	r.Post("/expenses", h.recordExpense)
}

// SalesInvoiceView adds the derived status to an invoice.
type SalesInvoiceView struct {
	ledger.SalesInvoice
	Status ledger.InvoiceStatus `json:"status"`
}

// PurchaseInvoiceView adds the derived status to a purchase invoice.
type PurchaseInvoiceView struct {
	ledger.PurchaseInvoice
	Status ledger.InvoiceStatus `json:"status"`
}

func (h *Handler) salesView(inv ledger.SalesInvoice) SalesInvoiceView {
	return SalesInvoiceView{SalesInvoice: inv, Status: inv.StatusAt(h.now())}
}

func (h *Handler) purchaseView(inv ledger.PurchaseInvoice) PurchaseInvoiceView {
	return PurchaseInvoiceView{PurchaseInvoice: inv, Status: inv.StatusAt(h.now())}
}

// Request documents carry dates as YYYY-MM-DD strings; the outer field
// shadows the embedded time.Time of the same JSON name.
type salesInvoiceRequest struct {
	SalesInvoiceInput
	InvoiceDate string `json:"invoice_date"`
}

func (req salesInvoiceRequest) input(r *http.Request) (SalesInvoiceInput, error) {
	in := req.SalesInvoiceInput
	date, err := parseDate("invoice_date", req.InvoiceDate)
	if err != nil {
		return in, err
	}
	in.InvoiceDate = date
	in.Scope = scopeOf(r)
	return in, nil
}

type salesReturnRequest struct {
	SalesReturnInput
	ReturnDate string `json:"return_date"`
}

type voidRequest struct {
	Reason string `json:"reason"`
}

type reissueRequest struct {
	Reason      string              `json:"reason"`
	Replacement salesInvoiceRequest `json:"replacement"`
}

type purchaseInvoiceRequest struct {
	PurchaseInvoiceInput
	InvoiceDate string `json:"invoice_date"`
}

type paymentRequest struct {
	PaymentInput
	Date string `json:"date"`
}

type expenseRequest struct {
	ExpenseInput
	ExpenseDate string `json:"expense_date"`
}

func (h *Handler) createSalesInvoice(w http.ResponseWriter, r *http.Request) {
	var req salesInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := req.input(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.CreateSalesInvoice(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.salesView(inv))
}

func (h *Handler) showSalesInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.GetSalesInvoice(r.Context(), httpx.Actor(r).CompanyCode, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.salesView(inv))
}

func (h *Handler) voidSalesInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.VoidSalesInvoice(r.Context(), VoidInput{Scope: scopeOf(r), InvoiceID: id, Reason: req.Reason})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.salesView(inv))
}

func (h *Handler) reissueSalesInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req reissueRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	replacement, err := req.Replacement.input(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ReissueSalesInvoice(r.Context(), ReissueInput{
		Void:        VoidInput{Scope: scopeOf(r), InvoiceID: id, Reason: req.Reason},
		Replacement: replacement,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]SalesInvoiceView{
		"voided":      h.salesView(out.Voided),
		"replacement": h.salesView(out.Replacement),
	})
}

func (h *Handler) createSalesReturn(w http.ResponseWriter, r *http.Request) {
	var req salesReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in := req.SalesReturnInput
	date, err := parseDate("return_date", req.ReturnDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in.ReturnDate = date
	in.Scope = scopeOf(r)
	ret, err := h.service.CreateSalesReturn(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}

func (h *Handler) showSalesReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ret, err := h.service.GetSalesReturn(r.Context(), httpx.Actor(r).CompanyCode, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) createPurchaseInvoice(w http.ResponseWriter, r *http.Request) {
	var req purchaseInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in := req.PurchaseInvoiceInput
	date, err := parseDate("invoice_date", req.InvoiceDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in.InvoiceDate = date
	in.Scope = scopeOf(r)
	inv, err := h.service.CreatePurchaseInvoice(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.purchaseView(inv))
}

func (h *Handler) showPurchaseInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.GetPurchaseInvoice(r.Context(), httpx.Actor(r).CompanyCode, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.purchaseView(inv))
}

func (h *Handler) voidPurchaseInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.VoidPurchaseInvoice(r.Context(), VoidInput{Scope: scopeOf(r), InvoiceID: id, Reason: req.Reason})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.purchaseView(inv))
}

func (h *Handler) paymentInput(r *http.Request) (PaymentInput, error) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return PaymentInput{}, err
	}
	in := req.PaymentInput
	date, err := parseDate("date", req.Date)
	if err != nil {
		return PaymentInput{}, err
	}
	in.Date = date
	in.Scope = scopeOf(r)
	return in, nil
}

func (h *Handler) recordPaymentReceipt(w http.ResponseWriter, r *http.Request) {
	in, err := h.paymentInput(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	receipt, err := h.service.RecordPaymentReceipt(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) recordSupplierPayment(w http.ResponseWriter, r *http.Request) {
	in, err := h.paymentInput(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	payment, err := h.service.RecordSupplierPayment(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) recordExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in := req.ExpenseInput
	date, err := parseDate("expense_date", req.ExpenseDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in.ExpenseDate = date
	in.Scope = scopeOf(r)
	expense, err := h.service.RecordExpense(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, expense)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	problem := httpx.ProblemFor(err)
	if problem.Status >= http.StatusInternalServerError {
		h.logger.Error("posting request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.WriteProblem(w, problem)
}

func scopeOf(r *http.Request) Scope {
	actor := httpx.Actor(r)
	return Scope{CompanyCode: actor.CompanyCode, ActorID: actor.ActorID}
}

func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	date, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, ledger.Invalid(field, "must be a date formatted YYYY-MM-DD")
	}
	return date, nil
}
