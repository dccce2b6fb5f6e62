// Package memstore is an in-memory ledger Store for tests. Transactions are
// serialised by one mutex and applied to a copy of the state, so a failing
// callback leaves no trace. In concurrent mode transactions run in parallel
// on snapshots and the first to commit wins.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	_ "github.com/odyssey-erp/odyssey-distribution/internal/testing/guard"
)

type state struct {
	nextID           int64
	products         map[string]ledger.Product
	customers        map[string]ledger.Customer
	suppliers        map[string]ledger.Supplier
	heads            map[string]ledger.ExpenseHead
	salesInvoices    map[int64]ledger.SalesInvoice
	purchaseInvoices map[int64]ledger.PurchaseInvoice
	returns          map[int64]ledger.SalesReturn
	receipts         []ledger.PaymentReceipt
	payments         []ledger.SupplierPayment
	expenses         []ledger.Expense
	cash             []ledger.CashLedgerEntry
	movements        []ledger.StockMovement
	sequences        map[string]int64
	keys             map[string]time.Time
}

func newState() *state {
	return &state{
		products:         map[string]ledger.Product{},
		customers:        map[string]ledger.Customer{},
		suppliers:        map[string]ledger.Supplier{},
		heads:            map[string]ledger.ExpenseHead{},
		salesInvoices:    map[int64]ledger.SalesInvoice{},
		purchaseInvoices: map[int64]ledger.PurchaseInvoice{},
		returns:          map[int64]ledger.SalesReturn{},
		sequences:        map[string]int64{},
		keys:             map[string]time.Time{},
	}
}

func (s *state) clone() *state {
	out := &state{
		nextID:           s.nextID,
		products:         cloneMap(s.products),
		customers:        cloneMap(s.customers),
		suppliers:        cloneMap(s.suppliers),
		heads:            cloneMap(s.heads),
		salesInvoices:    cloneMap(s.salesInvoices),
		purchaseInvoices: cloneMap(s.purchaseInvoices),
		returns:          cloneMap(s.returns),
		receipts:         append([]ledger.PaymentReceipt(nil), s.receipts...),
		payments:         append([]ledger.SupplierPayment(nil), s.payments...),
		expenses:         append([]ledger.Expense(nil), s.expenses...),
		cash:             append([]ledger.CashLedgerEntry(nil), s.cash...),
		movements:        append([]ledger.StockMovement(nil), s.movements...),
		sequences:        cloneMap(s.sequences),
		keys:             cloneMap(s.keys),
	}
	return out
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func key(company, code string) string {
	return company + "\x00" + code
}

// Store implements ledger.Store in memory.
type Store struct {
	mu         sync.Mutex
	state      *state
	version    int64
	concurrent bool
	onCommit   func()
	faults     map[string]error
	commitErrs []error
	attempts   int
	commits    int
	now        func() time.Time
}

var _ ledger.Store = (*Store)(nil)

// New constructs an empty Store.
func New() *Store {
	return &Store{
		state:  newState(),
		faults: map[string]error{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source for created_at columns.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailOn makes the named Tx method return err until cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

// FailCommits makes the next len(errs) commits discard their writes and
// return the given errors in order.
func (s *Store) FailCommits(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErrs = append(s.commitErrs, errs...)
}

// Attempts counts WithTx calls.
func (s *Store) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Commits counts successful WithTx calls.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Concurrent switches the store to parallel transactions. A transaction whose
// snapshot was overtaken by another commit fails with a serialization error,
// which PostgreSQL raises for the same race under RepeatableRead.
func (s *Store) Concurrent() *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.concurrent = true
	return s
}

// BeforeCommit registers a hook that concurrent transactions call after their
// callback succeeds and before they try to commit.
func (s *Store) BeforeCommit(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = hook
}

// WithTx runs fn against a private copy of the state and publishes the copy
// only when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.Tx) error) error {
	s.mu.Lock()
	if s.concurrent {
		s.mu.Unlock()
		return s.withSnapshot(ctx, fn)
	}
	defer s.mu.Unlock()
	s.attempts++
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, s.begin(work)); err != nil {
		return err
	}
	return s.commit(work)
}

func (s *Store) withSnapshot(ctx context.Context, fn func(context.Context, ledger.Tx) error) error {
	s.mu.Lock()
	s.attempts++
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	base := s.version
	work := s.state.clone()
	tx := s.begin(work)
	hook := s.onCommit
	s.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != base {
		return db.Classify(&pgconn.PgError{
			Code:    db.CodeSerializationFailure,
			Message: "could not serialize access due to concurrent update",
		})
	}
	return s.commit(work)
}

func (s *Store) begin(work *state) *txn {
	return &txn{st: work, faults: cloneMap(s.faults), now: s.now}
}

// commit publishes work. Callers hold s.mu.
func (s *Store) commit(work *state) error {
	if len(s.commitErrs) > 0 {
		err := s.commitErrs[0]
		s.commitErrs = s.commitErrs[1:]
		return err
	}
	s.state = work
	s.version++
	s.commits++
	return nil
}

func (s *Store) GetProduct(_ context.Context, company, code string) (ledger.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.product(company, code)
}

func (s *Store) GetCustomer(_ context.Context, company, code string) (ledger.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.customer(company, code)
}

func (s *Store) GetSupplier(_ context.Context, company, code string) (ledger.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.supplier(company, code)
}

func (s *Store) GetExpenseHead(_ context.Context, company, code string) (ledger.ExpenseHead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.head(company, code)
}

func (s *Store) GetSalesInvoice(_ context.Context, company string, id int64) (ledger.SalesInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.salesInvoice(company, id)
}

func (s *Store) GetPurchaseInvoice(_ context.Context, company string, id int64) (ledger.PurchaseInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.purchaseInvoice(company, id)
}

func (s *Store) GetSalesReturn(_ context.Context, company string, id int64) (ledger.SalesReturn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.returns[id]
	if !ok || r.CompanyCode != company {
		return ledger.SalesReturn{}, ledger.NotFound("sales return", strconv.FormatInt(id, 10))
	}
	r.Items = append([]ledger.ReturnItem(nil), r.Items...)
	return r, nil
}

func (s *Store) CashBalance(_ context.Context, company string, asOf time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := ledger.DateOnly(asOf)
	total := decimal.Zero
	for _, e := range s.state.cash {
		if e.CompanyCode != company || ledger.DateOnly(e.EntryDate).After(limit) {
			continue
		}
		total = total.Add(e.Debit).Sub(e.Credit)
	}
	return total, nil
}

// PutProduct stores p directly, bypassing movements. Intended for fixtures.
func (s *Store) PutProduct(p ledger.Product) ledger.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.state.id()
	}
	s.state.products[key(p.CompanyCode, p.Code)] = p
	return p
}

// PutCustomer stores c directly. Intended for fixtures.
func (s *Store) PutCustomer(c ledger.Customer) ledger.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.state.id()
	}
	s.state.customers[key(c.CompanyCode, c.Code)] = c
	return c
}

// PutSupplier stores sp directly. Intended for fixtures.
func (s *Store) PutSupplier(sp ledger.Supplier) ledger.Supplier {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sp.ID == 0 {
		sp.ID = s.state.id()
	}
	s.state.suppliers[key(sp.CompanyCode, sp.Code)] = sp
	return sp
}

// PutExpenseHead stores h directly. Intended for fixtures.
func (s *Store) PutExpenseHead(h ledger.ExpenseHead) ledger.ExpenseHead {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == 0 {
		h.ID = s.state.id()
	}
	s.state.heads[key(h.CompanyCode, h.Code)] = h
	return h
}

// CashEntries returns the company's cash book in insertion order.
func (s *Store) CashEntries(company string) []ledger.CashLedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.CashLedgerEntry
	for _, e := range s.state.cash {
		if e.CompanyCode == company {
			out = append(out, e)
		}
	}
	return out
}

// Movements returns the company's stock movements in insertion order.
func (s *Store) Movements(company string) []ledger.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.StockMovement
	for _, m := range s.state.movements {
		if m.CompanyCode == company {
			out = append(out, m)
		}
	}
	return out
}

// SalesInvoices returns the company's sales invoices ordered by id.
func (s *Store) SalesInvoices(company string) []ledger.SalesInvoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.SalesInvoice
	for _, inv := range s.state.salesInvoices {
		if inv.CompanyCode == company {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Returns returns the company's sales returns ordered by id.
func (s *Store) Returns(company string) []ledger.SalesReturn {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.SalesReturn
	for _, r := range s.state.returns {
		if r.CompanyCode == company {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Receipts returns the company's payment receipts in insertion order.
func (s *Store) Receipts(company string) []ledger.PaymentReceipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.PaymentReceipt
	for _, r := range s.state.receipts {
		if r.CompanyCode == company {
			out = append(out, r)
		}
	}
	return out
}

// SupplierPayments returns the company's supplier payments in insertion order.
func (s *Store) SupplierPayments(company string) []ledger.SupplierPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.SupplierPayment
	for _, p := range s.state.payments {
		if p.CompanyCode == company {
			out = append(out, p)
		}
	}
	return out
}

// Expenses returns the company's expenses in insertion order.
func (s *Store) Expenses(company string) []ledger.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Expense
	for _, e := range s.state.expenses {
		if e.CompanyCode == company {
			out = append(out, e)
		}
	}
	return out
}

// RequestKeys returns the claimed request keys with their claim time.
func (s *Store) RequestKeys() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMap(s.state.keys)
}

func (s *state) product(company, code string) (ledger.Product, error) {
	p, ok := s.products[key(company, code)]
	if !ok {
		return ledger.Product{}, ledger.NotFound("product", code)
	}
	return p, nil
}

func (s *state) customer(company, code string) (ledger.Customer, error) {
	c, ok := s.customers[key(company, code)]
	if !ok {
		return ledger.Customer{}, ledger.NotFound("customer", code)
	}
	return c, nil
}

func (s *state) supplier(company, code string) (ledger.Supplier, error) {
	sp, ok := s.suppliers[key(company, code)]
	if !ok {
		return ledger.Supplier{}, ledger.NotFound("supplier", code)
	}
	return sp, nil
}

func (s *state) head(company, code string) (ledger.ExpenseHead, error) {
	h, ok := s.heads[key(company, code)]
	if !ok {
		return ledger.ExpenseHead{}, ledger.NotFound("expense head", code)
	}
	return h, nil
}

func (s *state) salesInvoice(company string, id int64) (ledger.SalesInvoice, error) {
	inv, ok := s.salesInvoices[id]
	if !ok || inv.CompanyCode != company {
		return ledger.SalesInvoice{}, ledger.NotFound("sales invoice", strconv.FormatInt(id, 10))
	}
	inv.Items = append([]ledger.InvoiceItem(nil), inv.Items...)
	return inv, nil
}

func (s *state) purchaseInvoice(company string, id int64) (ledger.PurchaseInvoice, error) {
	inv, ok := s.purchaseInvoices[id]
	if !ok || inv.CompanyCode != company {
		return ledger.PurchaseInvoice{}, ledger.NotFound("purchase invoice", strconv.FormatInt(id, 10))
	}
	inv.Items = append([]ledger.InvoiceItem(nil), inv.Items...)
	return inv, nil
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: db.CodeUniqueViolation, ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

func checkViolation(constraint string) error {
	return &pgconn.PgError{Code: db.CodeCheckViolation, ConstraintName: constraint, Message: "new row violates check constraint"}
}
