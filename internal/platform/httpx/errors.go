package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

// ErrMalformedBody indicates a request body that is not the expected JSON document.
var ErrMalformedBody = errors.New("malformed request body")

// RespondError maps ledger errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	WriteProblem(w, ProblemFor(err))
}

// ProblemFor builds the problem document for err.
func ProblemFor(err error) ProblemDetail {
	var (
		stockErr  *ledger.StockInsufficientError
		returnErr *ledger.ReturnExceedsInvoicedError
		fieldErr  *ledger.ValidationError
	)
	switch {
	case errors.As(err, &stockErr):
		available := stockErr.Available
		return ProblemDetail{Title: "Stock Insufficient", Status: http.StatusConflict, Code: "stock_insufficient",
			Detail: err.Error(), Available: &available}
	case errors.As(err, &returnErr):
		remaining := returnErr.Remaining()
		return ProblemDetail{Title: "Return Exceeds Invoiced", Status: http.StatusConflict, Code: "return_exceeds_invoiced",
			Detail: err.Error(), Available: &remaining}
	case errors.As(err, &fieldErr):
		return ProblemDetail{Title: "Validation Failed", Status: http.StatusUnprocessableEntity, Code: "validation_failed",
			Detail: err.Error(), Field: fieldErr.Field}
	case errors.Is(err, ledger.ErrValidation):
		return ProblemDetail{Title: "Validation Failed", Status: http.StatusUnprocessableEntity, Code: "validation_failed", Detail: err.Error()}
	case errors.Is(err, ErrMalformedBody):
		return ProblemDetail{Title: "Bad Request", Status: http.StatusBadRequest, Code: "malformed_body", Detail: err.Error()}
	case errors.Is(err, ledger.ErrNotFound):
		return ProblemDetail{Title: "Not Found", Status: http.StatusNotFound, Code: "not_found", Detail: err.Error()}
	case errors.Is(err, ledger.ErrDuplicateRequest):
		return ProblemDetail{Title: "Duplicate Request", Status: http.StatusConflict, Code: "duplicate_request", Detail: err.Error()}
	case errors.Is(err, ledger.ErrConcurrencyConflict):
		return ProblemDetail{Title: "Concurrency Conflict", Status: http.StatusConflict, Code: "concurrency_conflict",
			Detail: "the ledger changed concurrently, retry the request"}
	case errors.Is(err, ledger.ErrStorageUnavailable):
		return ProblemDetail{Title: "Storage Unavailable", Status: http.StatusServiceUnavailable, Code: "storage_unavailable"}
	default:
		return ProblemDetail{Title: "Internal Error", Status: http.StatusInternalServerError}
	}
}
