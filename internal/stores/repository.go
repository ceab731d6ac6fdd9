package stores

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/sadmann7/skateshop-sub000/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, store *domain.Store) error {
	store.ID = uuid.New().String()
	now := time.Now().UTC()
	store.CreatedAt = now
	store.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stores (id, user_id, name, slug, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, store.ID, store.UserID, store.Name, store.Slug, store.Description, now)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Store, error) {
	store := &domain.Store{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, slug, description, created_at, updated_at
		FROM stores
		WHERE id = $1
	`, id).Scan(&store.ID, &store.UserID, &store.Name, &store.Slug, &store.Description, &store.CreatedAt, &store.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return store, nil
}

func (r *Repository) Update(ctx context.Context, store *domain.Store) (*domain.Store, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE stores
		SET name = $2, slug = $3, description = $4, updated_at = NOW()
		WHERE id = $1
	`, store.ID, store.Name, store.Slug, store.Description)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, store.ID)
}

// Delete removes the store; products, carts' lines and payment accounts
// follow via cascade.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// GetPaymentAccount returns the store's connected-account record, or nil
// when the store has never started onboarding.
func (r *Repository) GetPaymentAccount(ctx context.Context, storeID string) (*domain.PaymentAccount, error) {
	account := &domain.PaymentAccount{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, store_id, stripe_account_id, details_submitted, created_at
		FROM payment_accounts
		WHERE store_id = $1
	`, storeID).Scan(&account.ID, &account.StoreID, &account.StripeAccountID, &account.DetailsSubmitted, &account.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// GetPaymentAccountByStripeID resolves the destination store from the
// connected-account identifier carried on webhook events.
func (r *Repository) GetPaymentAccountByStripeID(ctx context.Context, stripeAccountID string) (*domain.PaymentAccount, error) {
	account := &domain.PaymentAccount{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, store_id, stripe_account_id, details_submitted, created_at
		FROM payment_accounts
		WHERE stripe_account_id = $1
	`, stripeAccountID).Scan(&account.ID, &account.StoreID, &account.StripeAccountID, &account.DetailsSubmitted, &account.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// UpsertPaymentAccount records or refreshes the store's connected account.
func (r *Repository) UpsertPaymentAccount(ctx context.Context, storeID, stripeAccountID string, detailsSubmitted bool) (*domain.PaymentAccount, error) {
	account := &domain.PaymentAccount{}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO payment_accounts (id, store_id, stripe_account_id, details_submitted, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (store_id)
		DO UPDATE SET stripe_account_id = EXCLUDED.stripe_account_id,
		              details_submitted = EXCLUDED.details_submitted
		RETURNING id, store_id, stripe_account_id, details_submitted, created_at
	`, uuid.New().String(), storeID, stripeAccountID, detailsSubmitted).
		Scan(&account.ID, &account.StoreID, &account.StripeAccountID, &account.DetailsSubmitted, &account.CreatedAt)
	if err != nil {
		return nil, err
	}
	return account, nil
}
