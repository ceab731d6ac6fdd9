package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sadmann7/skateshop-sub000/internal/domain"
	"github.com/sadmann7/skateshop-sub000/internal/payments"
)

const testSecret = "whsec_test_secret"

type fakeFinalizer struct {
	intents  []*payments.Intent
	accounts []string
	err      error
}

func (f *fakeFinalizer) Finalize(_ context.Context, intent *payments.Intent, account string) (string, error) {
	f.intents = append(f.intents, intent)
	f.accounts = append(f.accounts, account)
	if f.err != nil {
		return "", f.err
	}
	return "order-1", nil
}

type fakeSubscriptionStore struct {
	upserts  []*domain.Subscription
	renewals []string
}

func (f *fakeSubscriptionStore) Upsert(_ context.Context, sub *domain.Subscription) error {
	f.upserts = append(f.upserts, sub)
	return nil
}

func (f *fakeSubscriptionStore) UpdateBySubscriptionID(_ context.Context, id string, _ domain.SubscriptionStatus, _ time.Time) error {
	f.renewals = append(f.renewals, id)
	return nil
}

func signPayload(secret string, payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newTestHandler() (*Handler, *fakeFinalizer, *fakeSubscriptionStore) {
	finalizer := &fakeFinalizer{}
	subs := &fakeSubscriptionStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(testSecret, finalizer, subs, logger), finalizer, subs
}

func deliver(h *Handler, payload, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	h.HandleEvent(rec, req)
	return rec
}

func TestHandleEventPaymentSucceeded(t *testing.T) {
	payload := `{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"account": "acct_123",
		"data": {
			"object": {
				"id": "pi_123",
				"amount": 2150,
				"status": "succeeded",
				"receipt_email": "buyer@example.com",
				"metadata": {
					"cartId": "cart-1",
					"items": "[{\"productId\":\"p1\",\"price\":1000,\"quantity\":2}]"
				},
				"shipping": {
					"name": "Ada Lovelace",
					"address": {"line1": "1 Main St", "city": "Springfield", "postal_code": "12345", "country": "US"}
				}
			}
		}
	}`

	h, finalizer, _ := newTestHandler()
	rec := deliver(h, payload, signPayload(testSecret, []byte(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(finalizer.intents) != 1 {
		t.Fatalf("finalizer called %d times, want 1", len(finalizer.intents))
	}

	intent := finalizer.intents[0]
	if intent.ID != "pi_123" {
		t.Errorf("intent id = %q, want pi_123", intent.ID)
	}
	if intent.Amount != 2150 {
		t.Errorf("intent amount = %d, want 2150", intent.Amount)
	}
	if intent.ShippingAddress.PostalCode != "12345" {
		t.Errorf("postal code = %q, want 12345", intent.ShippingAddress.PostalCode)
	}
	if finalizer.accounts[0] != "acct_123" {
		t.Errorf("connected account = %q, want acct_123", finalizer.accounts[0])
	}
}

func TestHandleEventInvalidSignature(t *testing.T) {
	payload := `{"id": "evt_1", "type": "payment_intent.succeeded", "data": {"object": {"id": "pi_123"}}}`

	h, finalizer, _ := newTestHandler()
	rec := deliver(h, payload, signPayload("whsec_wrong_secret", []byte(payload)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(finalizer.intents) != 0 {
		t.Errorf("finalizer called on unverified event")
	}
}

func TestHandleEventPaymentFailed(t *testing.T) {
	payload := `{"id": "evt_2", "type": "payment_intent.payment_failed", "data": {"object": {"id": "pi_456"}}}`

	h, finalizer, _ := newTestHandler()
	rec := deliver(h, payload, signPayload(testSecret, []byte(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(finalizer.intents) != 0 {
		t.Errorf("failed payment must not be finalized")
	}
}

func TestHandleEventUnhandledType(t *testing.T) {
	payload := `{"id": "evt_3", "type": "checkout.session.completed", "data": {"object": {}}}`

	h, finalizer, subs := newTestHandler()
	rec := deliver(h, payload, signPayload(testSecret, []byte(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(finalizer.intents) != 0 || len(subs.upserts) != 0 {
		t.Errorf("unhandled event must not mutate state")
	}
}

func TestHandleEventSubscriptionCreated(t *testing.T) {
	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()
	payload := fmt.Sprintf(`{
		"id": "evt_4",
		"type": "customer.subscription.created",
		"data": {
			"object": {
				"id": "sub_123",
				"status": "active",
				"current_period_end": %d,
				"metadata": {"userId": "user-1"},
				"items": {"data": [{"price": {"id": "price_pro"}}]}
			}
		}
	}`, periodEnd)

	h, _, subs := newTestHandler()
	rec := deliver(h, payload, signPayload(testSecret, []byte(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(subs.upserts) != 1 {
		t.Fatalf("subscription upserts = %d, want 1", len(subs.upserts))
	}

	sub := subs.upserts[0]
	if sub.UserID != "user-1" {
		t.Errorf("user id = %q, want user-1", sub.UserID)
	}
	if sub.StripeSubscriptionID != "sub_123" {
		t.Errorf("subscription id = %q, want sub_123", sub.StripeSubscriptionID)
	}
	if sub.StripePriceID != "price_pro" {
		t.Errorf("price id = %q, want price_pro", sub.StripePriceID)
	}
	if sub.Status != domain.SubscriptionStatusActive {
		t.Errorf("status = %q, want active", sub.Status)
	}
}

func TestHandleEventSubscriptionWithoutUser(t *testing.T) {
	payload := `{
		"id": "evt_5",
		"type": "customer.subscription.updated",
		"data": {"object": {"id": "sub_456", "status": "active", "metadata": {}}}
	}`

	h, _, subs := newTestHandler()
	rec := deliver(h, payload, signPayload(testSecret, []byte(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(subs.upserts) != 0 {
		t.Errorf("subscription without userId metadata must not be stored")
	}
}

func TestHandleEventInvoicePaid(t *testing.T) {
	payload := `{
		"id": "evt_6",
		"type": "invoice.payment_succeeded",
		"data": {
			"object": {
				"id": "in_123",
				"subscription": "sub_123",
				"period_end": 1900000000
			}
		}
	}`

	h, _, subs := newTestHandler()
	rec := deliver(h, payload, signPayload(testSecret, []byte(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(subs.renewals) != 1 || subs.renewals[0] != "sub_123" {
		t.Errorf("renewals = %v, want [sub_123]", subs.renewals)
	}
}
