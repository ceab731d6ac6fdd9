// Package dashboard serves the seller-facing read models: order history,
// customer rollups and sales analytics for a store.
package dashboard

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	Email       string          `json:"email"`
	Name        string          `json:"name"`
	OrderCount  int             `json:"order_count"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
	LastOrderAt time.Time       `json:"last_order_at"`
}

type DailySales struct {
	Day     time.Time       `json:"day"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

type Analytics struct {
	OrderCount    int             `json:"order_count"`
	Revenue       decimal.Decimal `json:"revenue"`
	CustomerCount int             `json:"customer_count"`
	Daily         []DailySales    `json:"daily"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Customers aggregates the store's buyers by email, most recent first.
func (r *Repository) Customers(ctx context.Context, storeID string, limit, offset int) ([]Customer, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT email, MIN(name), COUNT(*), COALESCE(SUM(amount), 0), MAX(created_at)
		FROM orders
		WHERE store_id = $1
		GROUP BY email
		ORDER BY MAX(created_at) DESC
		LIMIT $2 OFFSET $3
	`, storeID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	customers := []Customer{}
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.Email, &c.Name, &c.OrderCount, &c.TotalSpent, &c.LastOrderAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// Analytics reads the store's totals and per-day sales since the cutoff in a
// single read-only transaction so the numbers line up with each other.
func (r *Repository) Analytics(ctx context.Context, storeID string, since time.Time) (*Analytics, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stats := &Analytics{Daily: []DailySales{}}

	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0), COUNT(DISTINCT email)
		FROM orders
		WHERE store_id = $1 AND created_at >= $2
	`, storeID, since).Scan(&stats.OrderCount, &stats.Revenue, &stats.CustomerCount)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT date_trunc('day', created_at), COUNT(*), COALESCE(SUM(amount), 0)
		FROM orders
		WHERE store_id = $1 AND created_at >= $2
		GROUP BY 1
		ORDER BY 1
	`, storeID, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var day DailySales
		if err := rows.Scan(&day.Day, &day.Orders, &day.Revenue); err != nil {
			return nil, err
		}
		stats.Daily = append(stats.Daily, day)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, tx.Commit()
}
