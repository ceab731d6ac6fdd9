package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sadmann7/skateshop-sub000/internal/cart"
	"github.com/sadmann7/skateshop-sub000/internal/domain"
	"github.com/sadmann7/skateshop-sub000/internal/inventory"
	"github.com/sadmann7/skateshop-sub000/internal/payments"
	"github.com/sadmann7/skateshop-sub000/internal/stores"
)

var finalizedCounter, _ = otel.Meter("orders").Int64Counter(
	"orders.finalized",
	metric.WithDescription("Orders created from succeeded payment intents"),
)

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Finalizer converts a succeeded payment into a persisted order and
// reconciles inventory and cart state. It is the single implementation
// behind both the webhook path and the client-verification fallback, and is
// idempotent per payment intent: the order insert wins or no-ops, and only
// the winner touches inventory and the cart.
type Finalizer struct {
	repo      *Repository
	inventory *inventory.Repository
	carts     *cart.Repository
	stores    *stores.Repository
	publisher EventPublisher
	logger    *slog.Logger
}

func NewFinalizer(repo *Repository, inv *inventory.Repository, carts *cart.Repository, storeRepo *stores.Repository, publisher EventPublisher, logger *slog.Logger) *Finalizer {
	return &Finalizer{
		repo:      repo,
		inventory: inv,
		carts:     carts,
		stores:    storeRepo,
		publisher: publisher,
		logger:    logger,
	}
}

// Finalize processes a succeeded payment intent scoped to a connected
// account. Steps after the order insert are independently best-effort:
// failures are logged, never retried here. Returns the finalized order's id,
// which is empty when the intent had already been processed.
func (f *Finalizer) Finalize(ctx context.Context, intent *payments.Intent, connectedAccountID string) (string, error) {
	items, err := domain.DecodeCheckoutItems(intent.Metadata[domain.MetadataKeyItems])
	if err != nil {
		// Fail closed: without a parseable snapshot there is nothing to sell.
		return "", fmt.Errorf("parse checkout metadata for intent %s: %w", intent.ID, err)
	}
	if len(items) == 0 {
		return "", fmt.Errorf("intent %s carries no line items", intent.ID)
	}

	account, err := f.stores.GetPaymentAccountByStripeID(ctx, connectedAccountID)
	if err != nil {
		return "", fmt.Errorf("resolve store for account %s: %w", connectedAccountID, err)
	}
	if account == nil {
		return "", fmt.Errorf("no store connected to account %s", connectedAccountID)
	}

	var addressID *string
	if intent.ShippingAddress != (domain.Address{}) {
		addr := intent.ShippingAddress
		if err := f.repo.InsertAddress(ctx, &addr); err != nil {
			f.logger.Error("failed to store shipping address", "error", err, "payment_intent_id", intent.ID)
		} else {
			addressID = &addr.ID
		}
	}

	order := &domain.Order{
		StoreID:                   account.StoreID,
		Items:                     make([]domain.OrderItem, 0, len(items)),
		Amount:                    decimal.NewFromInt(intent.Amount).Div(decimal.NewFromInt(100)),
		StripePaymentIntentID:     intent.ID,
		StripePaymentIntentStatus: intent.Status,
		Name:                      intent.ShippingName,
		Email:                     intent.ReceiptEmail,
		AddressID:                 addressID,
	}
	for _, item := range items {
		order.Quantity += item.Quantity
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	created, err := f.repo.Create(ctx, order)
	if err != nil {
		return "", fmt.Errorf("create order for intent %s: %w", intent.ID, err)
	}
	if !created {
		f.logger.Info("payment intent already finalized", "payment_intent_id", intent.ID)
		return "", nil
	}

	for _, item := range order.Items {
		if err := f.inventory.Decrement(ctx, item.ProductID, item.Quantity); err != nil {
			if errors.Is(err, inventory.ErrInsufficientStock) {
				f.logger.Warn("skipping inventory decrement, stock would go negative",
					"product_id", item.ProductID, "quantity", item.Quantity, "order_id", order.ID)
				continue
			}
			f.logger.Error("failed to decrement inventory",
				"error", err, "product_id", item.ProductID, "order_id", order.ID)
		}
	}

	cartID, err := f.carts.CloseByIntent(ctx, intent.ID)
	if err != nil {
		f.logger.Error("failed to close cart", "error", err, "payment_intent_id", intent.ID)
	} else if cartID != "" {
		f.logger.Info("cart closed", "cart_id", cartID, "payment_intent_id", intent.ID)
	}

	if f.publisher != nil {
		event := domain.OrderFinalizedEvent{
			OrderID:   order.ID,
			StoreID:   order.StoreID,
			Name:      order.Name,
			Email:     order.Email,
			Items:     order.Items,
			Amount:    order.Amount.StringFixed(2),
			Timestamp: time.Now().UTC(),
		}
		if err := f.publisher.Publish(ctx, order.ID, event); err != nil {
			f.logger.Error("failed to publish order finalized event", "error", err, "order_id", order.ID)
		}
	}

	finalizedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("store.id", order.StoreID)))

	f.logger.Info("order finalized",
		"order_id", order.ID, "store_id", order.StoreID,
		"payment_intent_id", intent.ID, "quantity", order.Quantity)
	return order.ID, nil
}
