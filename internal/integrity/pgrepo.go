package integrity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
)

// PgRepository recomputes projections with plain SQL over the ledger tables.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository builds the Postgres backed repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

const companiesSQL = `
SELECT company_code FROM products
UNION SELECT company_code FROM customers
UNION SELECT company_code FROM suppliers
ORDER BY 1`

const customerBalancesSQL = `
SELECT c.code, c.outstanding_balance::text,
       (COALESCE(inv.total, 0) - COALESCE(ret.credit, 0) - COALESCE(rc.amount, 0))::text
FROM customers c
LEFT JOIN (
    SELECT customer_code, SUM(total_amount) AS total FROM sales_invoices
    WHERE company_code=@company AND voided_at IS NULL AND settlement='PENDING'
    GROUP BY customer_code
) inv ON inv.customer_code = c.code
LEFT JOIN (
    SELECT customer_code, SUM(credit_amount) AS credit FROM sales_returns
    WHERE company_code=@company GROUP BY customer_code
) ret ON ret.customer_code = c.code
LEFT JOIN (
    SELECT customer_code, SUM(amount) AS amount FROM payment_receipts
    WHERE company_code=@company GROUP BY customer_code
) rc ON rc.customer_code = c.code
WHERE c.company_code=@company
ORDER BY c.code`

const supplierBalancesSQL = `
SELECT s.code, s.outstanding_balance::text,
       (COALESCE(inv.total, 0) - COALESCE(pay.amount, 0))::text
FROM suppliers s
LEFT JOIN (
    SELECT supplier_code, SUM(total_amount) AS total FROM purchase_invoices
    WHERE company_code=@company AND voided_at IS NULL AND settlement='PENDING'
    GROUP BY supplier_code
) inv ON inv.supplier_code = s.code
LEFT JOIN (
    SELECT supplier_code, SUM(amount) AS amount FROM supplier_payments
    WHERE company_code=@company GROUP BY supplier_code
) pay ON pay.supplier_code = s.code
WHERE s.company_code=@company
ORDER BY s.code`

const stockBalancesSQL = `
SELECT p.code, p.current_stock, COALESCE(m.moved, 0)
FROM products p
LEFT JOIN (
    SELECT product_code, SUM(qty_change) AS moved FROM stock_movements
    WHERE company_code=@company GROUP BY product_code
) m ON m.product_code = p.code
WHERE p.company_code=@company
ORDER BY p.code`

// A cash-settled invoice with a non-zero total owns one row, two once voided.
const cashCountsSQL = `
WITH expected AS (
    SELECT 'SALES_INVOICE' AS source_type, id, number,
           CASE WHEN settlement <> 'PAID' OR total_amount = 0 THEN 0
                WHEN voided_at IS NOT NULL THEN 2 ELSE 1 END AS want
    FROM sales_invoices WHERE company_code=@company
    UNION ALL
    SELECT 'SALES_RETURN', id, number, CASE WHEN refund_amount > 0 THEN 1 ELSE 0 END
    FROM sales_returns WHERE company_code=@company
    UNION ALL
    SELECT 'PURCHASE_INVOICE', id, number,
           CASE WHEN settlement <> 'PAID' OR total_amount = 0 THEN 0
                WHEN voided_at IS NOT NULL THEN 2 ELSE 1 END
    FROM purchase_invoices WHERE company_code=@company
    UNION ALL
    SELECT 'PAYMENT_RECEIPT', id, number, 1 FROM payment_receipts WHERE company_code=@company
    UNION ALL
    SELECT 'SUPPLIER_PAYMENT', id, number, 1 FROM supplier_payments WHERE company_code=@company
    UNION ALL
    SELECT 'EXPENSE', id, number, 1 FROM expenses WHERE company_code=@company
), actual AS (
    SELECT source_type, source_id, COUNT(*) AS got FROM cash_ledger
    WHERE company_code=@company GROUP BY source_type, source_id
)
SELECT e.source_type, e.id, e.number, e.want, COALESCE(a.got, 0)
FROM expected e
LEFT JOIN actual a ON a.source_type = e.source_type AND a.source_id = e.id
ORDER BY e.source_type, e.id`

func (r *PgRepository) Companies(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, companiesSQL)
	if err != nil {
		return nil, fmt.Errorf("integrity: companies: %w", db.Classify(err))
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("integrity: companies: %w", db.Classify(err))
	}
	return out, nil
}

func (r *PgRepository) CustomerBalances(ctx context.Context, company string) ([]PartyBalance, error) {
	return r.balances(ctx, customerBalancesSQL, company)
}

func (r *PgRepository) SupplierBalances(ctx context.Context, company string) ([]PartyBalance, error) {
	return r.balances(ctx, supplierBalancesSQL, company)
}

func (r *PgRepository) balances(ctx context.Context, sql, company string) ([]PartyBalance, error) {
	rows, err := r.pool.Query(ctx, sql, pgx.NamedArgs{"company": company})
	if err != nil {
		return nil, fmt.Errorf("integrity: balances: %w", db.Classify(err))
	}
	defer rows.Close()
	var out []PartyBalance
	for rows.Next() {
		var code, stored, expected string
		if err := rows.Scan(&code, &stored, &expected); err != nil {
			return nil, fmt.Errorf("integrity: scan balance: %w", err)
		}
		b := PartyBalance{Code: code}
		if b.Stored, err = decimal.NewFromString(stored); err != nil {
			return nil, fmt.Errorf("integrity: stored balance of %s: %w", code, err)
		}
		if b.Expected, err = decimal.NewFromString(expected); err != nil {
			return nil, fmt.Errorf("integrity: expected balance of %s: %w", code, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("integrity: balances: %w", db.Classify(err))
	}
	return out, nil
}

func (r *PgRepository) StockBalances(ctx context.Context, company string) ([]StockBalance, error) {
	rows, err := r.pool.Query(ctx, stockBalancesSQL, pgx.NamedArgs{"company": company})
	if err != nil {
		return nil, fmt.Errorf("integrity: stock: %w", db.Classify(err))
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (StockBalance, error) {
		var b StockBalance
		err := row.Scan(&b.ProductCode, &b.Stored, &b.FromMovements)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("integrity: stock: %w", db.Classify(err))
	}
	return out, nil
}

func (r *PgRepository) CashCounts(ctx context.Context, company string) ([]CashCount, error) {
	rows, err := r.pool.Query(ctx, cashCountsSQL, pgx.NamedArgs{"company": company})
	if err != nil {
		return nil, fmt.Errorf("integrity: cash: %w", db.Classify(err))
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (CashCount, error) {
		var (
			c       CashCount
			docType string
			want    int64
			got     int64
		)
		if err := row.Scan(&docType, &c.SourceID, &c.Number, &want, &got); err != nil {
			return c, err
		}
		c.SourceType = ledger.DocumentType(docType)
		c.Want, c.Got = int(want), int(got)
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("integrity: cash: %w", db.Classify(err))
	}
	return out, nil
}
