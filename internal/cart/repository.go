package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/sadmann7/skateshop-sub000/internal/domain"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrCartClosed      = errors.New("cart is closed")
	ErrProductNotFound = errors.New("product not found")
	ErrOutOfStock      = errors.New("product is out of stock")
)

// Repository owns the cart row and its line items. Every mutation locks the
// cart row for the duration of the transaction so concurrent edits from two
// tabs cannot lose updates.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the cart with its items, or nil when the id is unknown.
func (r *Repository) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	if cartID == "" {
		return nil, nil
	}

	cart := &domain.Cart{}
	var intentID, clientSecret sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, closed, payment_intent_id, client_secret, created_at, updated_at
		FROM carts
		WHERE id = $1
	`, cartID).Scan(&cart.ID, &cart.Closed, &intentID, &clientSecret, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if intentID.Valid {
		cart.PaymentIntentID = &intentID.String
	}
	if clientSecret.Valid {
		cart.ClientSecret = &clientSecret.String
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY created_at
	`, cartID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cart.Items = []domain.CartItem{}
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, item)
	}

	return cart, rows.Err()
}

// Lines returns the cart's items joined with product details for display.
// An empty or unknown cart id yields an empty slice, never an error.
func (r *Repository) Lines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	lines := []domain.CartLine{}
	if cartID == "" {
		return lines, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT ci.product_id, p.store_id, p.name, p.price, ci.quantity,
		       COALESCE(p.images[1], '')
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		JOIN carts c ON c.id = ci.cart_id
		WHERE ci.cart_id = $1 AND NOT c.closed
		ORDER BY ci.created_at
	`, cartID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.StoreID, &line.Name, &line.Price, &line.Quantity, &line.Image); err != nil {
			return nil, err
		}
		line.Subtotal = line.Price * int64(line.Quantity)
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

// AddItem adds quantity of a product to the cart identified by cartID and
// returns the id the caller should hold, which differs from cartID when no
// cart existed or the existing one was already closed (closed carts are
// deleted, never reused).
func (r *Repository) AddItem(ctx context.Context, cartID, productID string, quantity int) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	targetID := ""
	if cartID != "" {
		var closed bool
		err := tx.QueryRowContext(ctx, `
			SELECT closed FROM carts WHERE id = $1 FOR UPDATE
		`, cartID).Scan(&closed)
		switch {
		case err == sql.ErrNoRows:
			// stale cookie, fall through to create
		case err != nil:
			return "", err
		case closed:
			if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID); err != nil {
				return "", err
			}
		default:
			targetID = cartID
		}
	}

	if targetID == "" {
		targetID = uuid.New().String()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO carts (id, closed, created_at, updated_at)
			VALUES ($1, FALSE, NOW(), NOW())
		`, targetID); err != nil {
			return "", err
		}
	}

	var inventory int
	err = tx.QueryRowContext(ctx, `
		SELECT inventory FROM products WHERE id = $1
	`, productID).Scan(&inventory)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrProductNotFound
		}
		return "", err
	}

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM cart_items
		WHERE cart_id = $1 AND product_id = $2
		FOR UPDATE
	`, targetID, productID).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return "", err
	}

	if inventory < existing+quantity {
		return "", ErrOutOfStock
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`, uuid.New().String(), targetID, productID, quantity); err != nil {
		return "", err
	}

	if err := touchCart(ctx, tx, targetID); err != nil {
		return "", err
	}

	return targetID, tx.Commit()
}

// UpdateItem sets a line's quantity verbatim; zero removes the line. The
// same inventory check as AddItem applies.
func (r *Repository) UpdateItem(ctx context.Context, cartID, productID string, quantity int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var closed bool
	err = tx.QueryRowContext(ctx, `
		SELECT closed FROM carts WHERE id = $1 FOR UPDATE
	`, cartID).Scan(&closed)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrCartNotFound
		}
		return err
	}
	if closed {
		return ErrCartClosed
	}

	if quantity == 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2
		`, cartID, productID); err != nil {
			return err
		}
	} else {
		var inventory int
		err = tx.QueryRowContext(ctx, `
			SELECT inventory FROM products WHERE id = $1
		`, productID).Scan(&inventory)
		if err != nil {
			if err == sql.ErrNoRows {
				return ErrProductNotFound
			}
			return err
		}
		if inventory < quantity {
			return ErrOutOfStock
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE cart_items SET quantity = $3
			WHERE cart_id = $1 AND product_id = $2
		`, cartID, productID, quantity)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return ErrProductNotFound
		}
	}

	if err := touchCart(ctx, tx, cartID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) RemoveItem(ctx context.Context, cartID, productID string) error {
	return r.RemoveItems(ctx, cartID, []string{productID})
}

// RemoveItems deletes the given product lines from the cart in one statement.
func (r *Repository) RemoveItems(ctx context.Context, cartID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var closed bool
	err = tx.QueryRowContext(ctx, `
		SELECT closed FROM carts WHERE id = $1 FOR UPDATE
	`, cartID).Scan(&closed)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrCartNotFound
		}
		return err
	}
	if closed {
		return ErrCartClosed
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id = $1 AND product_id = ANY($2)
	`, cartID, pq.Array(productIDs)); err != nil {
		return err
	}

	if err := touchCart(ctx, tx, cartID); err != nil {
		return err
	}

	return tx.Commit()
}

// AttachIntent stores the processor identifiers created for this cart's
// checkout so the finalizer and the verification fallback can match them.
func (r *Repository) AttachIntent(ctx context.Context, cartID, intentID, clientSecret string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE carts
		SET payment_intent_id = $2, client_secret = $3, updated_at = NOW()
		WHERE id = $1 AND NOT closed
	`, cartID, intentID, clientSecret)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrCartNotFound
	}
	return nil
}

// CloseByIntent marks the cart holding the given payment intent as closed
// and clears its items. Returns the cart id, or "" when no open cart
// references the intent.
func (r *Repository) CloseByIntent(ctx context.Context, intentID string) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var cartID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM carts
		WHERE payment_intent_id = $1 AND NOT closed
		FOR UPDATE
	`, intentID).Scan(&cartID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}

	if err := closeCart(ctx, tx, cartID); err != nil {
		return "", err
	}

	return cartID, tx.Commit()
}

// Close marks the cart as closed and clears its items.
func (r *Repository) Close(ctx context.Context, cartID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := closeCart(ctx, tx, cartID); err != nil {
		return err
	}

	return tx.Commit()
}

func closeCart(ctx context.Context, tx *sql.Tx, cartID string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE carts SET closed = TRUE, updated_at = NOW() WHERE id = $1
	`, cartID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrCartNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM cart_items WHERE cart_id = $1
	`, cartID); err != nil {
		return err
	}

	return nil
}

func touchCart(ctx context.Context, tx *sql.Tx, cartID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE carts SET updated_at = $2 WHERE id = $1
	`, cartID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}
