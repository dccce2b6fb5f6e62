package masterdata

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-distribution/internal/platform/httpx"
)

// Handler exposes master data maintenance endpoints.
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

// MountRoutes registers master data routes behind httpx.RequireActor. Listings
// are served by the reporting handler on the same paths.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/products", h.createProduct)
	r.Get("/products/{code}", h.showProduct)
	r.Put("/products/{code}", h.updateProduct)
	r.Post("/products/{code}/adjustments", h.adjustStock)
	r.Put("/products/{code}/active", h.setActive(KindProduct))

	r.Post("/customers", h.createCustomer)
	r.Get("/customers/{code}", h.showCustomer)
	r.Put("/customers/{code}", h.updateCustomer)
	r.Put("/customers/{code}/active", h.setActive(KindCustomer))

	r.Post("/suppliers", h.createSupplier)
	r.Get("/suppliers/{code}", h.showSupplier)
	r.Put("/suppliers/{code}", h.updateSupplier)
	r.Put("/suppliers/{code}/active", h.setActive(KindSupplier))

	r.Post("/expense-heads", h.createExpenseHead)
	r.Put("/expense-heads/{code}/active", h.setActive(KindExpenseHead))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.Scope = scopeOf(r)
	product, err := h.service.CreateProduct(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) showProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), httpx.Actor(r).CompanyCode, chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in ProductUpdate
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.Scope = scopeOf(r)
	in.Code = chi.URLParam(r, "code")
	product, err := h.service.UpdateProduct(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var in StockAdjustment
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.Scope = scopeOf(r)
	in.Code = chi.URLParam(r, "code")
	move, err := h.service.AdjustStock(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, move)
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var in CustomerInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.Scope = scopeOf(r)
	customer, err := h.service.CreateCustomer(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) showCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.service.GetCustomer(r.Context(), httpx.Actor(r).CompanyCode, chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	var in CustomerInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.Scope = scopeOf(r)
	in.Code = chi.URLParam(r, "code")
	customer, err := h.service.UpdateCustomer(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var in SupplierInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.Scope = scopeOf(r)
	supplier, err := h.service.CreateSupplier(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) showSupplier(w http.ResponseWriter, r *http.Request) {
	supplier, err := h.service.GetSupplier(r.Context(), httpx.Actor(r).CompanyCode, chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) updateSupplier(w http.ResponseWriter, r *http.Request) {
	var in SupplierInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.Scope = scopeOf(r)
	in.Code = chi.URLParam(r, "code")
	supplier, err := h.service.UpdateSupplier(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) createExpenseHead(w http.ResponseWriter, r *http.Request) {
	var in ExpenseHeadInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.Scope = scopeOf(r)
	head, err := h.service.CreateExpenseHead(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, head)
}

func (h *Handler) setActive(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in ActiveInput
		if err := httpx.DecodeJSON(r, &in); err != nil {
			h.fail(w, r, err)
			return
		}
		in.Scope = scopeOf(r)
		in.Kind = kind
		in.Code = chi.URLParam(r, "code")
		if err := h.service.SetActive(r.Context(), in); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	problem := httpx.ProblemFor(err)
	if problem.Status >= http.StatusInternalServerError {
		h.logger.Error("master data request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.WriteProblem(w, problem)
}

func scopeOf(r *http.Request) Scope {
	actor := httpx.Actor(r)
	return Scope{CompanyCode: actor.CompanyCode, ActorID: actor.ActorID}
}
