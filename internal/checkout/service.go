// Package checkout drives payment-intent creation and the client-side
// verification fallback for the cookie-identified cart.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sadmann7/skateshop-sub000/internal/cart"
	"github.com/sadmann7/skateshop-sub000/internal/catalog"
	"github.com/sadmann7/skateshop-sub000/internal/domain"
	"github.com/sadmann7/skateshop-sub000/internal/orders"
	"github.com/sadmann7/skateshop-sub000/internal/payments"
	"github.com/sadmann7/skateshop-sub000/internal/shipping"
	"github.com/sadmann7/skateshop-sub000/internal/stores"
)

var (
	ErrEmptyCart          = errors.New("cart has no items for this store")
	ErrNoCheckoutProgress = errors.New("no checkout in progress for this cart")
	ErrPaymentIncomplete  = errors.New("payment has not succeeded")
	ErrPostalCodeMismatch = errors.New("postal code does not match the payment")
)

type Service struct {
	carts     *cart.Repository
	products  *catalog.Repository
	stores    *stores.Repository
	orders    *orders.Repository
	intents   payments.IntentClient
	rates     *shipping.Client
	finalizer *orders.Finalizer
	feeBps    int64
	logger    *slog.Logger
}

func NewService(
	carts *cart.Repository,
	products *catalog.Repository,
	storeRepo *stores.Repository,
	orderRepo *orders.Repository,
	intents payments.IntentClient,
	rates *shipping.Client,
	finalizer *orders.Finalizer,
	feeBps int64,
	logger *slog.Logger,
) *Service {
	return &Service{
		carts:     carts,
		products:  products,
		stores:    storeRepo,
		orders:    orderRepo,
		intents:   intents,
		rates:     rates,
		finalizer: finalizer,
		feeBps:    feeBps,
		logger:    logger,
	}
}

// platformFee is the marketplace's cut of a charge, in minor units.
func platformFee(total, bps int64) int64 {
	return total * bps / 10000
}

// storeLines narrows the cart to the lines sold by storeID; a cart may hold
// products from several stores but a charge settles with exactly one.
func (s *Service) storeLines(ctx context.Context, storeID, cartID string) ([]domain.CartLine, error) {
	lines, err := s.carts.Lines(ctx, cartID)
	if err != nil {
		return nil, err
	}

	filtered := lines[:0]
	for _, line := range lines {
		if line.StoreID == storeID {
			filtered = append(filtered, line)
		}
	}
	if len(filtered) == 0 {
		return nil, ErrEmptyCart
	}
	return filtered, nil
}

func (s *Service) connectedAccount(ctx context.Context, storeID string) (*domain.PaymentAccount, error) {
	account, err := s.stores.GetPaymentAccount(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if account == nil || !account.DetailsSubmitted {
		return nil, payments.ErrStoreNotConnected
	}
	return account, nil
}

func (s *Service) createIntent(ctx context.Context, account *domain.PaymentAccount, cartID string, lines []domain.CartLine, amount, fee int64) (string, error) {
	items := make([]domain.CheckoutItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.CheckoutItem{
			ProductID: line.ProductID,
			Price:     line.Price,
			Quantity:  line.Quantity,
		})
	}
	encoded, err := domain.EncodeCheckoutItems(items)
	if err != nil {
		return "", fmt.Errorf("encode checkout items: %w", err)
	}

	intent, err := s.intents.CreateIntent(ctx, payments.CreateIntentParams{
		ConnectedAccountID: account.StripeAccountID,
		Amount:             amount,
		Fee:                fee,
		Metadata: map[string]string{
			domain.MetadataKeyCartID: cartID,
			domain.MetadataKeyItems:  encoded,
		},
	})
	if err != nil {
		return "", fmt.Errorf("create payment intent: %w", err)
	}

	// Only persist the identifiers while the intent still needs a payment
	// method; a completed intent on the cart must not be overwritten by a
	// retry.
	if intent.Status == payments.StatusRequiresPaymentMethod {
		if err := s.carts.AttachIntent(ctx, cartID, intent.ID, intent.ClientSecret); err != nil {
			s.logger.Error("failed to attach intent to cart", "error", err, "cart_id", cartID, "payment_intent_id", intent.ID)
		}
	}

	return intent.ClientSecret, nil
}

// CreatePaymentIntent opens a charge authorization for the store's share of
// the cart and returns the client secret the payment form needs.
func (s *Service) CreatePaymentIntent(ctx context.Context, storeID, cartID string) (string, error) {
	lines, err := s.storeLines(ctx, storeID, cartID)
	if err != nil {
		return "", err
	}

	account, err := s.connectedAccount(ctx, storeID)
	if err != nil {
		return "", err
	}

	var total int64
	for _, line := range lines {
		total += line.Subtotal
	}

	return s.createIntent(ctx, account, cartID, lines, total, platformFee(total, s.feeBps))
}

// UpdateWithShipping re-quotes the charge with shipping included. Despite
// the name this creates a fresh intent; the shipping cost rides on both the
// amount and the platform fee. A missing or invalid quote fails checkout.
func (s *Service) UpdateWithShipping(ctx context.Context, storeID, cartID string, to domain.Address) (string, error) {
	lines, err := s.storeLines(ctx, storeID, cartID)
	if err != nil {
		return "", err
	}

	account, err := s.connectedAccount(ctx, storeID)
	if err != nil {
		return "", err
	}

	rateItems := make([]shipping.RateItem, 0, len(lines))
	var total int64
	for _, line := range lines {
		total += line.Subtotal

		product, err := s.products.GetByID(ctx, line.ProductID)
		if err != nil {
			return "", fmt.Errorf("load product %s: %w", line.ProductID, err)
		}
		item := shipping.RateItem{Quantity: line.Quantity}
		if product != nil {
			item.Dimensions = product.Dimensions
		}
		rateItems = append(rateItems, item)
	}

	rate, err := s.rates.GetRate(ctx, shipping.RateRequest{
		ToAddress: to,
		Items:     rateItems,
		StoreID:   storeID,
	})
	if err != nil {
		return "", fmt.Errorf("quote shipping: %w", err)
	}

	amount := total + rate
	fee := platformFee(total, s.feeBps) + rate

	return s.createIntent(ctx, account, cartID, lines, amount, fee)
}

// VerifyPayment is the fallback reconciliation path for environments where
// the webhook is unreliable: it matches the cart's stored intent against the
// buyer-supplied postal code and runs the shared finalizer.
func (s *Service) VerifyPayment(ctx context.Context, storeID, cartID, postalCode string) (*domain.Order, error) {
	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.PaymentIntentID == nil {
		return nil, ErrNoCheckoutProgress
	}

	account, err := s.connectedAccount(ctx, storeID)
	if err != nil {
		return nil, err
	}

	intent, err := s.intents.RetrieveIntent(ctx, *c.PaymentIntentID, account.StripeAccountID)
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent: %w", err)
	}

	if intent.Status != payments.StatusSucceeded {
		return nil, ErrPaymentIncomplete
	}
	if postalCode == "" || intent.ShippingAddress.PostalCode != postalCode {
		return nil, ErrPostalCodeMismatch
	}

	orderID, err := s.finalizer.Finalize(ctx, intent, account.StripeAccountID)
	if err != nil {
		return nil, err
	}

	if orderID != "" {
		return s.orders.GetByID(ctx, orderID)
	}
	// Already finalized by the webhook path; report the existing order.
	return s.orders.GetByIntentID(ctx, intent.ID)
}
