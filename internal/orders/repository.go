package orders

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/sadmann7/skateshop-sub000/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the order and its line items. The unique constraint on
// stripe_payment_intent_id makes this an insert-or-noop: when another path
// already finalized the same intent, created is false and nothing changes.
func (r *Repository) Create(ctx context.Context, order *domain.Order) (created bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()
	order.CreatedAt = time.Now().UTC()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, store_id, quantity, amount,
			stripe_payment_intent_id, stripe_payment_intent_status,
			name, email, address_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (stripe_payment_intent_id) DO NOTHING
	`, order.ID, order.StoreID, order.Quantity, order.Amount,
		order.StripePaymentIntentID, order.StripePaymentIntentStatus,
		order.Name, order.Email, order.AddressID, order.CreatedAt)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rowsAffected == 0 {
		return false, nil
	}

	for _, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New().String(), order.ID, item.ProductID, item.Quantity, item.Price); err != nil {
			return false, err
		}
	}

	return true, tx.Commit()
}

// InsertAddress persists a processor-reported shipping address and fills in
// its id. Fields are stored as reported, partial or not.
func (r *Repository) InsertAddress(ctx context.Context, addr *domain.Address) error {
	addr.ID = uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO addresses (id, line1, line2, city, state, postal_code, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, addr.ID, addr.Line1, addr.Line2, addr.City, addr.State, addr.PostalCode, addr.Country)
	return err
}

const orderColumns = `
	id, store_id, quantity, amount,
	stripe_payment_intent_id, stripe_payment_intent_status,
	name, email, address_id, created_at
`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	order := &domain.Order{}
	var addressID sql.NullString

	err := row.Scan(
		&order.ID, &order.StoreID, &order.Quantity, &order.Amount,
		&order.StripePaymentIntentID, &order.StripePaymentIntentStatus,
		&order.Name, &order.Email, &addressID, &order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if addressID.Valid {
		order.AddressID = &addressID.String
	}
	return order, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Repository) GetByIntentID(ctx context.Context, intentID string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE stripe_payment_intent_id = $1`, intentID)
	order, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// ListByStore returns a page of the store's orders, newest first, with line
// items batch-loaded in a second query.
func (r *Repository) ListByStore(ctx context.Context, storeID string, limit, offset int) ([]domain.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE store_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, storeID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var refs []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, refs); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(refs))
	for _, ref := range refs {
		orders = append(orders, *ref)
	}
	return orders, nil
}

func (r *Repository) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[string]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		order.Items = []domain.OrderItem{}
		byID[order.ID] = order
		ids = append(ids, order.ID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, price
		FROM order_items
		WHERE order_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return err
		}
		if order, ok := byID[orderID]; ok {
			order.Items = append(order.Items, item)
		}
	}

	return rows.Err()
}
