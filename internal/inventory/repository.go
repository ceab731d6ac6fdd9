package inventory

import (
	"context"
	"database/sql"
	"errors"
)

var ErrInsufficientStock = errors.New("insufficient stock")

// Repository is the authoritative stock ledger. Inventory is decremented
// only during order finalization, through Decrement.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Decrement atomically subtracts quantity from the product's inventory. The
// WHERE clause makes the check-then-act a single statement, so inventory can
// never go negative even under concurrent finalizations.
func (r *Repository) Decrement(ctx context.Context, productID string, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET inventory = inventory - $2, updated_at = NOW()
		WHERE id = $1 AND inventory >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrInsufficientStock
	}

	return nil
}

// Available reports the current stock count, or (0, nil) with found=false
// when the product does not exist.
func (r *Repository) Available(ctx context.Context, productID string) (int, bool, error) {
	var inventory int
	err := r.db.QueryRowContext(ctx, `
		SELECT inventory FROM products WHERE id = $1
	`, productID).Scan(&inventory)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}

	return inventory, true, nil
}
