package masterdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// AuditPort records committed master data changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier is told when a company's cached reports are stale.
type Notifier interface {
	Invalidate(ctx context.Context, company string) error
}

// Dependencies are the optional collaborators of Service.
type Dependencies struct {
	Audit    AuditPort
	Notifier Notifier
	Logger   *slog.Logger
}

// Service maintains products, parties and expense heads.
type Service struct {
	store    ledger.Store
	audit    AuditPort
	notifier Notifier
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs a master data service.
func NewService(store ledger.Store, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		audit:    deps.Audit,
		notifier: deps.Notifier,
		logger:   logger.With(slog.String("component", "masterdata")),
		validate: shared.NewValidator(),
		now:      time.Now,
	}
}

// WithClock overrides the clock used for movement dates.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateProduct registers a product. A positive opening stock is recorded
// as an OPENING movement.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (ledger.Product, error) {
	in.normalize()
	if err := s.check(&in); err != nil {
		return ledger.Product{}, err
	}
	if err := checkProductFields(in.ProductFields); err != nil {
		return ledger.Product{}, err
	}
	var out ledger.Product
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		product := ledger.Product{
			CompanyCode:   in.CompanyCode,
			Code:          in.Code,
			Name:          in.Name,
			Category:      in.Category,
			UnitPrice:     in.UnitPrice,
			PurchasePrice: in.PurchasePrice,
			CurrentStock:  in.OpeningStock,
			MinStockLevel: in.MinStockLevel,
			TaxCode:       in.TaxCode,
			TaxRate:       in.TaxRate,
			IsActive:      true,
			CreatedBy:     in.ActorID,
		}
		id, err := tx.InsertProduct(ctx, product)
		if err != nil {
			return duplicate(err, "code")
		}
		product.ID = id
		if in.OpeningStock > 0 {
			if err := tx.InsertStockMovement(ctx, ledger.StockMovement{
				CompanyCode:  in.CompanyCode,
				ProductCode:  in.Code,
				Type:         ledger.MovementOpening,
				QtyChange:    in.OpeningStock,
				BalanceAfter: in.OpeningStock,
				SourceType:   ledger.DocStockAdjustment,
				SourceID:     id,
				MovementDate: s.today(),
				Note:         "opening stock",
				PostingRef:   uuid.New(),
				CreatedBy:    in.ActorID,
			}); err != nil {
				return err
			}
		}
		out = product
		return nil
	})
	if err != nil {
		return ledger.Product{}, err
	}
	s.committed(ctx, in.Scope, OpCreateProduct, "product", in.Code, map[string]any{"opening_stock": in.OpeningStock})
	return s.store.GetProduct(ctx, in.CompanyCode, out.Code)
}

// UpdateProduct replaces the editable attributes of a product. Stock and the
// active flag are untouched.
func (s *Service) UpdateProduct(ctx context.Context, in ProductUpdate) (ledger.Product, error) {
	in.normalize()
	if err := s.check(&in); err != nil {
		return ledger.Product{}, err
	}
	if err := checkProductFields(in.ProductFields); err != nil {
		return ledger.Product{}, err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		cur, err := tx.GetProductForUpdate(ctx, in.CompanyCode, in.Code)
		if err != nil {
			return err
		}
		cur.Name = in.Name
		cur.Category = in.Category
		cur.UnitPrice = in.UnitPrice
		cur.PurchasePrice = in.PurchasePrice
		cur.MinStockLevel = in.MinStockLevel
		cur.TaxCode = in.TaxCode
		cur.TaxRate = in.TaxRate
		cur.UpdatedBy = in.ActorID
		return tx.UpdateProduct(ctx, cur)
	})
	if err != nil {
		return ledger.Product{}, err
	}
	s.committed(ctx, in.Scope, OpUpdateProduct, "product", in.Code, map[string]any{
		"unit_price": in.UnitPrice.StringFixed(2),
		"tax_code":   in.TaxCode,
	})
	return s.store.GetProduct(ctx, in.CompanyCode, in.Code)
}

// AdjustStock changes stock outside any document and records an ADJUST
// movement numbered as a stock adjustment. Stock may not go below zero.
func (s *Service) AdjustStock(ctx context.Context, in StockAdjustment) (ledger.StockMovement, error) {
	in.normalize()
	if err := s.check(&in); err != nil {
		return ledger.StockMovement{}, err
	}
	var out ledger.StockMovement
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if in.RequestKey != "" {
			if err := tx.ClaimRequestKey(ctx, in.CompanyCode, in.RequestKey, OpAdjustStock); err != nil {
				return err
			}
		}
		product, err := tx.GetProductForUpdate(ctx, in.CompanyCode, in.Code)
		if err != nil {
			return err
		}
		next := product.CurrentStock + in.Delta
		if next < 0 {
			return &ledger.StockInsufficientError{ProductCode: in.Code, Requested: -in.Delta, Available: product.CurrentStock}
		}
		number, err := tx.NextDocumentNumber(ctx, in.CompanyCode, ledger.DocStockAdjustment)
		if err != nil {
			return err
		}
		if err := tx.SetProductStock(ctx, in.CompanyCode, in.Code, next, in.ActorID); err != nil {
			return err
		}
		move := ledger.StockMovement{
			CompanyCode:  in.CompanyCode,
			ProductCode:  in.Code,
			Type:         ledger.MovementAdjust,
			QtyChange:    in.Delta,
			BalanceAfter: next,
			SourceType:   ledger.DocStockAdjustment,
			SourceID:     product.ID,
			MovementDate: s.today(),
			Note:         number + " " + in.Reason,
			PostingRef:   uuid.New(),
			CreatedBy:    in.ActorID,
		}
		if err := tx.InsertStockMovement(ctx, move); err != nil {
			return err
		}
		out = move
		return nil
	})
	if err != nil {
		return ledger.StockMovement{}, err
	}
	s.committed(ctx, in.Scope, OpAdjustStock, "product", in.Code, map[string]any{
		"delta":   in.Delta,
		"balance": out.BalanceAfter,
		"reason":  in.Reason,
	})
	return out, nil
}

// CreateCustomer registers a customer with a zero balance.
func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (ledger.Customer, error) {
	in.normalize()
	if err := s.checkCustomer(&in); err != nil {
		return ledger.Customer{}, err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.InsertCustomer(ctx, ledger.Customer{
			CompanyCode:        in.CompanyCode,
			Code:               in.Code,
			Name:               in.Name,
			CreditLimit:        in.CreditLimit,
			PaymentTermsDays:   terms(in.PaymentTermsDays),
			OutstandingBalance: decimal.Zero,
			IsActive:           true,
			CreatedBy:          in.ActorID,
		})
		return duplicate(err, "code")
	})
	if err != nil {
		return ledger.Customer{}, err
	}
	s.committed(ctx, in.Scope, OpCreateCustomer, "customer", in.Code, nil)
	return s.store.GetCustomer(ctx, in.CompanyCode, in.Code)
}

// UpdateCustomer edits name, credit limit and terms. The outstanding balance
// is owned by postings and never edited here.
func (s *Service) UpdateCustomer(ctx context.Context, in CustomerInput) (ledger.Customer, error) {
	in.normalize()
	if err := s.checkCustomer(&in); err != nil {
		return ledger.Customer{}, err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		cur, err := tx.GetCustomerForUpdate(ctx, in.CompanyCode, in.Code)
		if err != nil {
			return err
		}
		cur.Name = in.Name
		cur.CreditLimit = in.CreditLimit
		if in.PaymentTermsDays != nil {
			cur.PaymentTermsDays = *in.PaymentTermsDays
		}
		cur.UpdatedBy = in.ActorID
		return tx.UpdateCustomer(ctx, cur)
	})
	if err != nil {
		return ledger.Customer{}, err
	}
	s.committed(ctx, in.Scope, OpUpdateCustomer, "customer", in.Code, nil)
	return s.store.GetCustomer(ctx, in.CompanyCode, in.Code)
}

// CreateSupplier registers a supplier with a zero balance.
func (s *Service) CreateSupplier(ctx context.Context, in SupplierInput) (ledger.Supplier, error) {
	in.normalize()
	if err := s.check(&in); err != nil {
		return ledger.Supplier{}, err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.InsertSupplier(ctx, ledger.Supplier{
			CompanyCode:        in.CompanyCode,
			Code:               in.Code,
			Name:               in.Name,
			PaymentTermsDays:   terms(in.PaymentTermsDays),
			OutstandingBalance: decimal.Zero,
			IsActive:           true,
			CreatedBy:          in.ActorID,
		})
		return duplicate(err, "code")
	})
	if err != nil {
		return ledger.Supplier{}, err
	}
	s.committed(ctx, in.Scope, OpCreateSupplier, "supplier", in.Code, nil)
	return s.store.GetSupplier(ctx, in.CompanyCode, in.Code)
}

// UpdateSupplier edits name and terms.
func (s *Service) UpdateSupplier(ctx context.Context, in SupplierInput) (ledger.Supplier, error) {
	in.normalize()
	if err := s.check(&in); err != nil {
		return ledger.Supplier{}, err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		cur, err := tx.GetSupplierForUpdate(ctx, in.CompanyCode, in.Code)
		if err != nil {
			return err
		}
		cur.Name = in.Name
		if in.PaymentTermsDays != nil {
			cur.PaymentTermsDays = *in.PaymentTermsDays
		}
		cur.UpdatedBy = in.ActorID
		return tx.UpdateSupplier(ctx, cur)
	})
	if err != nil {
		return ledger.Supplier{}, err
	}
	s.committed(ctx, in.Scope, OpUpdateSupplier, "supplier", in.Code, nil)
	return s.store.GetSupplier(ctx, in.CompanyCode, in.Code)
}

// CreateExpenseHead registers an expense head.
func (s *Service) CreateExpenseHead(ctx context.Context, in ExpenseHeadInput) (ledger.ExpenseHead, error) {
	in.normalize()
	if err := s.check(&in); err != nil {
		return ledger.ExpenseHead{}, err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.InsertExpenseHead(ctx, ledger.ExpenseHead{
			CompanyCode: in.CompanyCode,
			Code:        in.Code,
			Name:        in.Name,
			IsActive:    true,
			CreatedBy:   in.ActorID,
		})
		return duplicate(err, "code")
	})
	if err != nil {
		return ledger.ExpenseHead{}, err
	}
	s.committed(ctx, in.Scope, OpCreateExpenseHead, "expense_head", in.Code, nil)
	return s.store.GetExpenseHead(ctx, in.CompanyCode, in.Code)
}

// SetActive flips the active flag. Inactive entities keep their history and
// balances but are refused by new documents.
func (s *Service) SetActive(ctx context.Context, in ActiveInput) error {
	in.normalize()
	if err := s.check(&in); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		switch in.Kind {
		case KindProduct:
			cur, err := tx.GetProductForUpdate(ctx, in.CompanyCode, in.Code)
			if err != nil {
				return err
			}
			cur.IsActive = in.Active
			cur.UpdatedBy = in.ActorID
			return tx.UpdateProduct(ctx, cur)
		case KindCustomer:
			cur, err := tx.GetCustomerForUpdate(ctx, in.CompanyCode, in.Code)
			if err != nil {
				return err
			}
			cur.IsActive = in.Active
			cur.UpdatedBy = in.ActorID
			return tx.UpdateCustomer(ctx, cur)
		case KindSupplier:
			cur, err := tx.GetSupplierForUpdate(ctx, in.CompanyCode, in.Code)
			if err != nil {
				return err
			}
			cur.IsActive = in.Active
			cur.UpdatedBy = in.ActorID
			return tx.UpdateSupplier(ctx, cur)
		case KindExpenseHead:
			if _, err := tx.GetExpenseHead(ctx, in.CompanyCode, in.Code); err != nil {
				return err
			}
			return tx.SetExpenseHeadActive(ctx, in.CompanyCode, in.Code, in.Active)
		default:
			return ledger.Invalid("kind", fmt.Sprintf("unknown kind %q", in.Kind))
		}
	})
	if err != nil {
		return err
	}
	s.committed(ctx, in.Scope, OpSetActive, string(in.Kind), in.Code, map[string]any{"active": in.Active})
	return nil
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, company, code string) (ledger.Product, error) {
	return s.store.GetProduct(ctx, ledger.NormalizeCode(company), ledger.NormalizeCode(code))
}

// GetCustomer returns one customer.
func (s *Service) GetCustomer(ctx context.Context, company, code string) (ledger.Customer, error) {
	return s.store.GetCustomer(ctx, ledger.NormalizeCode(company), ledger.NormalizeCode(code))
}

// GetSupplier returns one supplier.
func (s *Service) GetSupplier(ctx context.Context, company, code string) (ledger.Supplier, error) {
	return s.store.GetSupplier(ctx, ledger.NormalizeCode(company), ledger.NormalizeCode(code))
}

func (s *Service) checkCustomer(in *CustomerInput) error {
	if err := s.check(in); err != nil {
		return err
	}
	return checkMoney("credit_limit", in.CreditLimit)
}

func (s *Service) check(input any) error {
	if err := s.validate.Struct(input); err != nil {
		return shared.ValidationError(err)
	}
	return nil
}

func (s *Service) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) committed(ctx context.Context, scope Scope, action, entity, code string, meta map[string]any) {
	s.logger.Info("master data changed", slog.String("operation", action), slog.String("company", scope.CompanyCode),
		slog.String("entity", entity), slog.String("code", code))
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			CompanyCode: scope.CompanyCode,
			ActorID:     scope.ActorID,
			Action:      action,
			Entity:      entity,
			EntityID:    code,
			Meta:        meta,
			At:          s.now(),
		}); err != nil {
			s.logger.Warn("audit record", slog.String("operation", action), slog.Any("error", err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Invalidate(ctx, scope.CompanyCode); err != nil {
			s.logger.Warn("report cache invalidate", slog.String("company", scope.CompanyCode), slog.Any("error", err))
		}
	}
}

var hundred = decimal.NewFromInt(100)

func checkProductFields(f ProductFields) error {
	if err := checkMoney("unit_price", f.UnitPrice); err != nil {
		return err
	}
	if err := checkMoney("purchase_price", f.PurchasePrice); err != nil {
		return err
	}
	if f.TaxRate.IsNegative() || f.TaxRate.GreaterThan(hundred) {
		return ledger.Invalid("tax_rate", "must be between 0 and 100")
	}
	return nil
}

func checkMoney(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return ledger.Invalid(field, "must not be negative")
	}
	if !d.Equal(ledger.Round2(d)) {
		return ledger.Invalid(field, "must have at most 2 decimal places")
	}
	return nil
}

// duplicate maps a unique violation on insert to a validation error.
func duplicate(err error, field string) error {
	if err != nil && db.IsUniqueViolation(err) {
		return ledger.Invalid(field, "already exists")
	}
	return err
}
