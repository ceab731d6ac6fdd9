// Package billing tracks the dashboard subscription tier per store owner,
// kept current by processor webhook events.
package billing

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

// Upsert records the subscription for its user, replacing whatever tier was
// on file. Processor events arrive out of order under retries, so the latest
// write wins wholesale.
func (r *Repository) Upsert(ctx context.Context, sub *domain.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (
			id, user_id, stripe_subscription_id, stripe_price_id,
			status, current_period_end, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			stripe_price_id = EXCLUDED.stripe_price_id,
			status = EXCLUDED.status,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = EXCLUDED.updated_at
	`, sub.ID, sub.UserID, sub.StripeSubscriptionID, sub.StripePriceID,
		sub.Status, sub.CurrentPeriodEnd, now)
	return err
}

// UpdateBySubscriptionID refreshes status and period end for a known
// processor subscription. Used by invoice events, which carry the
// subscription id but not the user. Unknown ids are a no-op.
func (r *Repository) UpdateBySubscriptionID(ctx context.Context, stripeSubscriptionID string, status domain.SubscriptionStatus, currentPeriodEnd time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $2, current_period_end = $3, updated_at = $4
		WHERE stripe_subscription_id = $1
	`, stripeSubscriptionID, status, currentPeriodEnd, time.Now().UTC())
	return err
}

func (r *Repository) GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub := &domain.Subscription{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, stripe_subscription_id, stripe_price_id,
			status, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
	`, userID).Scan(
		&sub.ID, &sub.UserID, &sub.StripeSubscriptionID, &sub.StripePriceID,
		&sub.Status, &sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}
