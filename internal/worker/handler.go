// Package worker consumes finalized-order events and sends the buyer a
// confirmation email. Delivery is at-least-once: the consumer retries the
// handler, so a duplicate event at worst re-sends the confirmation.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sadmann7/skateshop-sub000/internal/domain"
	"github.com/sadmann7/skateshop-sub000/internal/email"
)

type ConfirmationHandler struct {
	emails *email.Client
	logger *slog.Logger
}

func NewConfirmationHandler(emails *email.Client, logger *slog.Logger) *ConfirmationHandler {
	return &ConfirmationHandler{
		emails: emails,
		logger: logger,
	}
}

func (h *ConfirmationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderFinalizedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order finalized event: %w", err)
	}

	if event.Email == "" {
		// Guest checkouts without a receipt email have nowhere to deliver.
		h.logger.Warn("order has no buyer email, skipping confirmation", "order_id", event.OrderID)
		return nil
	}

	subject := "Order confirmation " + shortOrderRef(event.OrderID)
	if err := h.emails.Send(ctx, event.Email, subject, confirmationBody(event)); err != nil {
		return fmt.Errorf("send confirmation email for order %s: %w", event.OrderID, err)
	}

	h.logger.Info("confirmation email sent", "order_id", event.OrderID, "to", event.Email)
	return nil
}

// shortOrderRef turns the order uuid into the reference buyers see, the
// first uuid segment upper-cased.
func shortOrderRef(orderID string) string {
	ref := orderID
	if i := strings.IndexByte(orderID, '-'); i > 0 {
		ref = orderID[:i]
	}
	return "#" + strings.ToUpper(ref)
}

func confirmationBody(event domain.OrderFinalizedEvent) string {
	var b strings.Builder
	name := event.Name
	if name == "" {
		name = "there"
	}

	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "Thanks for your order %s.\n\n", shortOrderRef(event.OrderID))

	var quantity int
	for _, item := range event.Items {
		quantity += item.Quantity
	}
	fmt.Fprintf(&b, "We received your payment of $%s for %d item(s).\n", event.Amount, quantity)
	b.WriteString("The store is preparing your shipment and will be in touch.\n")

	return b.String()
}
