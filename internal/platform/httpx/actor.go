package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Headers set by the authentication proxy in front of the API.
const (
	HeaderCompanyCode = "X-Company-Code"
	HeaderActorID     = "X-Actor-ID"
)

// RequireActor rejects requests without a company code and actor id and
// stores both in the request context.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		company := ledger.NormalizeCode(r.Header.Get(HeaderCompanyCode))
		if company == "" {
			WriteProblem(w, ProblemDetail{Title: "Unauthorized", Status: http.StatusUnauthorized, Code: "missing_company",
				Detail: HeaderCompanyCode + " header is required"})
			return
		}
		actorID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(HeaderActorID)), 10, 64)
		if err != nil || actorID <= 0 {
			WriteProblem(w, ProblemDetail{Title: "Unauthorized", Status: http.StatusUnauthorized, Code: "missing_actor",
				Detail: HeaderActorID + " header must be a positive integer"})
			return
		}
		ctx := shared.ContextWithActor(r.Context(), shared.Actor{CompanyCode: company, ActorID: actorID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Actor returns the actor stored by RequireActor.
func Actor(r *http.Request) shared.Actor {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor
}

// PathID parses a positive integer URL parameter value.
func PathID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ledger.Invalid("id", "must be a positive integer")
	}
	return id, nil
}
