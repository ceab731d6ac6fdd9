// Package webhooks terminates processor event delivery. Events are verified
// against the signing secret, then dispatched to the shared order finalizer
// or the subscription store; everything else is acknowledged and logged so
// the processor stops retrying.
package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/sadmann7/skateshop-sub000/internal/domain"
	"github.com/sadmann7/skateshop-sub000/internal/payments"
)

// maxBodyBytes bounds event payloads; real processor events are a few KB.
const maxBodyBytes = 1 << 16

type Finalizer interface {
	Finalize(ctx context.Context, intent *payments.Intent, connectedAccountID string) (string, error)
}

type SubscriptionStore interface {
	Upsert(ctx context.Context, sub *domain.Subscription) error
	UpdateBySubscriptionID(ctx context.Context, stripeSubscriptionID string, status domain.SubscriptionStatus, currentPeriodEnd time.Time) error
}

type Handler struct {
	signingSecret string
	finalizer     Finalizer
	subscriptions SubscriptionStore
	logger        *slog.Logger
}

func NewHandler(signingSecret string, finalizer Finalizer, subscriptions SubscriptionStore, logger *slog.Logger) *Handler {
	return &Handler{
		signingSecret: signingSecret,
		finalizer:     finalizer,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		h.handlePaymentSucceeded(w, r, event)

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err == nil {
			h.logger.Warn("payment failed", "payment_intent_id", pi.ID, "account", event.Account)
		}
		w.WriteHeader(http.StatusOK)

	case "charge.succeeded", "application_fee.created":
		h.logger.Info("processor event acknowledged", "type", event.Type, "event_id", event.ID)
		w.WriteHeader(http.StatusOK)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		h.handleSubscriptionChange(w, r, event)

	case "invoice.payment_succeeded":
		h.handleInvoicePaid(w, r, event)

	default:
		h.logger.Info("unhandled processor event", "type", event.Type, "event_id", event.ID)
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) handlePaymentSucceeded(w http.ResponseWriter, r *http.Request, event stripe.Event) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		h.logger.Error("failed to parse payment intent event", "error", err, "event_id", event.ID)
		http.Error(w, "malformed event payload", http.StatusBadRequest)
		return
	}

	orderID, err := h.finalizer.Finalize(r.Context(), payments.FromStripeIntent(&pi), event.Account)
	if err != nil {
		// 5xx makes the processor redeliver; finalization is idempotent.
		h.logger.Error("order finalization failed", "error", err, "payment_intent_id", pi.ID)
		http.Error(w, "finalization failed", http.StatusInternalServerError)
		return
	}

	if orderID != "" {
		h.logger.Info("order finalized from webhook", "order_id", orderID, "payment_intent_id", pi.ID)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleSubscriptionChange(w http.ResponseWriter, r *http.Request, event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription event", "error", err, "event_id", event.ID)
		http.Error(w, "malformed event payload", http.StatusBadRequest)
		return
	}

	userID := sub.Metadata["userId"]
	if userID == "" {
		h.logger.Warn("subscription event without userId metadata", "subscription_id", sub.ID, "event_id", event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	record := &domain.Subscription{
		UserID:               userID,
		StripeSubscriptionID: sub.ID,
		Status:               subscriptionStatus(sub.Status),
		CurrentPeriodEnd:     time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		record.StripePriceID = sub.Items.Data[0].Price.ID
	}

	if err := h.subscriptions.Upsert(r.Context(), record); err != nil {
		h.logger.Error("failed to upsert subscription", "error", err, "subscription_id", sub.ID)
		http.Error(w, "subscription update failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("subscription updated", "user_id", userID, "subscription_id", sub.ID, "status", record.Status)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleInvoicePaid(w http.ResponseWriter, r *http.Request, event stripe.Event) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		h.logger.Error("failed to parse invoice event", "error", err, "event_id", event.ID)
		http.Error(w, "malformed event payload", http.StatusBadRequest)
		return
	}

	if inv.Subscription == nil || inv.Subscription.ID == "" {
		// One-off invoices carry no tier to renew.
		w.WriteHeader(http.StatusOK)
		return
	}

	periodEnd := inv.PeriodEnd
	if inv.Lines != nil && len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period != nil {
		periodEnd = inv.Lines.Data[0].Period.End
	}

	err := h.subscriptions.UpdateBySubscriptionID(r.Context(), inv.Subscription.ID,
		domain.SubscriptionStatusActive, time.Unix(periodEnd, 0).UTC())
	if err != nil {
		h.logger.Error("failed to renew subscription", "error", err, "subscription_id", inv.Subscription.ID)
		http.Error(w, "subscription renewal failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("subscription renewed", "subscription_id", inv.Subscription.ID)
	w.WriteHeader(http.StatusOK)
}

func subscriptionStatus(s stripe.SubscriptionStatus) domain.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return domain.SubscriptionStatusActive
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return domain.SubscriptionStatusCanceled
	default:
		return domain.SubscriptionStatusPastDue
	}
}
