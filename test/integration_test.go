//go:build integration

package test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sadmann7/skateshop-sub000/internal/billing"
	"github.com/sadmann7/skateshop-sub000/internal/cart"
	"github.com/sadmann7/skateshop-sub000/internal/checkout"
	"github.com/sadmann7/skateshop-sub000/internal/domain"
	"github.com/sadmann7/skateshop-sub000/internal/email"
	"github.com/sadmann7/skateshop-sub000/internal/inventory"
	"github.com/sadmann7/skateshop-sub000/internal/messaging"
	"github.com/sadmann7/skateshop-sub000/internal/orders"
	"github.com/sadmann7/skateshop-sub000/internal/payments"
	"github.com/sadmann7/skateshop-sub000/internal/shipping"
	"github.com/sadmann7/skateshop-sub000/internal/stores"
	"github.com/sadmann7/skateshop-sub000/internal/webhooks"
	"github.com/sadmann7/skateshop-sub000/internal/worker"
)

const webhookSecret = "whsec_integration_test"

type fixture struct {
	db        *sql.DB
	carts     *cart.Repository
	stores    *stores.Repository
	orders    *orders.Repository
	inventory *inventory.Repository
	logger    *slog.Logger

	storeID   string
	accountID string
}

func newFixture(ctx context.Context, t *testing.T, connStr string) *fixture {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		db:        db,
		carts:     cart.NewRepository(db),
		stores:    stores.NewRepository(db),
		orders:    orders.NewRepository(db),
		inventory: inventory.NewRepository(db),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	store := &domain.Store{UserID: "user-1", Name: "Test Boards", Slug: "test-boards-" + uuid.New().String()[:8]}
	if err := f.stores.Create(ctx, store); err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	f.storeID = store.ID
	return f
}

func (f *fixture) connectAccount(ctx context.Context, t *testing.T) {
	t.Helper()
	f.accountID = "acct_" + uuid.New().String()[:8]
	if _, err := f.stores.UpsertPaymentAccount(ctx, f.storeID, f.accountID, true); err != nil {
		t.Fatalf("failed to connect payment account: %v", err)
	}
}

func (f *fixture) seedProduct(ctx context.Context, t *testing.T, name string, price int64, stock int) string {
	t.Helper()
	id := uuid.New().String()
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO products (id, store_id, category_id, name, price, inventory)
		VALUES ($1, $2, '018e0000-0000-7000-8000-000000000001', $3, $4, $5)
	`, id, f.storeID, name, price, stock)
	if err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return id
}

func (f *fixture) newFinalizer(publisher orders.EventPublisher) *orders.Finalizer {
	return orders.NewFinalizer(f.orders, f.inventory, f.carts, f.stores, publisher, f.logger)
}

type fakeIntentClient struct {
	mu      sync.Mutex
	created []payments.CreateIntentParams
	intents map[string]*payments.Intent
}

func newFakeIntentClient() *fakeIntentClient {
	return &fakeIntentClient{intents: map[string]*payments.Intent{}}
}

func (c *fakeIntentClient) CreateIntent(_ context.Context, params payments.CreateIntentParams) (*payments.Intent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.created = append(c.created, params)
	intent := &payments.Intent{
		ID:           fmt.Sprintf("pi_fake_%d", len(c.created)),
		Status:       payments.StatusRequiresPaymentMethod,
		Amount:       params.Amount,
		Metadata:     params.Metadata,
		ClientSecret: fmt.Sprintf("pi_fake_%d_secret", len(c.created)),
	}
	c.intents[intent.ID] = intent
	return intent, nil
}

func (c *fakeIntentClient) RetrieveIntent(_ context.Context, id, _ string) (*payments.Intent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	intent, ok := c.intents[id]
	if !ok {
		return nil, fmt.Errorf("no such intent %s", id)
	}
	return intent, nil
}

func (c *fakeIntentClient) succeed(id string, addr domain.Address, email string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	intent := c.intents[id]
	intent.Status = payments.StatusSucceeded
	intent.ShippingAddress = addr
	intent.ReceiptEmail = email
}

func TestCartLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	f := newFixture(ctx, t, pg.ConnStr)

	productID := f.seedProduct(ctx, t, "Plan B Deck", 5999, 3)

	// First add creates the cart.
	cartID, err := f.carts.AddItem(ctx, "", productID, 1)
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if cartID == "" {
		t.Fatal("AddItem() returned empty cart id")
	}

	// Second add reuses the cart and increments the line.
	again, err := f.carts.AddItem(ctx, cartID, productID, 2)
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if again != cartID {
		t.Errorf("AddItem() created new cart %s, want %s", again, cartID)
	}

	lines, err := f.carts.Lines(ctx, cartID)
	if err != nil {
		t.Fatalf("Lines() error = %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 3 {
		t.Fatalf("lines = %+v, want one line with quantity 3", lines)
	}
	if lines[0].Subtotal != 3*5999 {
		t.Errorf("subtotal = %d, want %d", lines[0].Subtotal, 3*5999)
	}

	// Inventory is exhausted: adding one more unit must fail.
	if _, err := f.carts.AddItem(ctx, cartID, productID, 1); !errors.Is(err, cart.ErrOutOfStock) {
		t.Errorf("AddItem() beyond stock error = %v, want ErrOutOfStock", err)
	}

	// Setting quantity to zero removes the line.
	if err := f.carts.UpdateItem(ctx, cartID, productID, 0); err != nil {
		t.Fatalf("UpdateItem() error = %v", err)
	}
	lines, err = f.carts.Lines(ctx, cartID)
	if err != nil {
		t.Fatalf("Lines() error = %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("lines after removal = %+v, want empty", lines)
	}

	// Unknown cart ids read as empty, never as errors.
	lines, err = f.carts.Lines(ctx, uuid.New().String())
	if err != nil || len(lines) != 0 {
		t.Errorf("Lines(unknown) = %v, %v, want empty, nil", lines, err)
	}
	c, err := f.carts.Get(ctx, "")
	if err != nil || c != nil {
		t.Errorf("Get(empty id) = %v, %v, want nil, nil", c, err)
	}
}

func TestClosedCartIsReplacedOnAdd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	f := newFixture(ctx, t, pg.ConnStr)

	productID := f.seedProduct(ctx, t, "Spitfire Wheels", 3499, 10)

	cartID, err := f.carts.AddItem(ctx, "", productID, 1)
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if err := f.carts.Close(ctx, cartID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	replacement, err := f.carts.AddItem(ctx, cartID, productID, 2)
	if err != nil {
		t.Fatalf("AddItem() on closed cart error = %v", err)
	}
	if replacement == cartID {
		t.Fatal("closed cart was reused, want a fresh cart")
	}

	lines, err := f.carts.Lines(ctx, replacement)
	if err != nil {
		t.Fatalf("Lines() error = %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 2 {
		t.Errorf("replacement lines = %+v, want one line with quantity 2", lines)
	}
}

func TestCheckoutCreatesIntentWithSnapshot(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	f := newFixture(ctx, t, pg.ConnStr)
	f.connectAccount(ctx, t)

	productID := f.seedProduct(ctx, t, "Indy Trucks", 2000, 5)
	cartID, err := f.carts.AddItem(ctx, "", productID, 2)
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}

	intents := newFakeIntentClient()
	rates := shipping.NewClient("http://unused.invalid", "", nil)
	svc := checkout.NewService(f.carts, nil, f.stores, f.orders, intents, rates, f.newFinalizer(nil), 500, f.logger)

	secret, err := svc.CreatePaymentIntent(ctx, f.storeID, cartID)
	if err != nil {
		t.Fatalf("CreatePaymentIntent() error = %v", err)
	}
	if secret == "" {
		t.Fatal("CreatePaymentIntent() returned empty client secret")
	}

	if len(intents.created) != 1 {
		t.Fatalf("intent client called %d times, want 1", len(intents.created))
	}
	params := intents.created[0]
	if params.Amount != 4000 {
		t.Errorf("amount = %d, want 4000", params.Amount)
	}
	if params.Fee != 200 {
		t.Errorf("fee = %d, want 200 (5%% of 4000)", params.Fee)
	}
	if params.ConnectedAccountID != f.accountID {
		t.Errorf("connected account = %q, want %q", params.ConnectedAccountID, f.accountID)
	}

	items, err := domain.DecodeCheckoutItems(params.Metadata[domain.MetadataKeyItems])
	if err != nil {
		t.Fatalf("metadata items do not round-trip: %v", err)
	}
	if len(items) != 1 || items[0].ProductID != productID || items[0].Quantity != 2 || items[0].Price != 2000 {
		t.Errorf("metadata items = %+v", items)
	}
	if params.Metadata[domain.MetadataKeyCartID] != cartID {
		t.Errorf("metadata cartId = %q, want %q", params.Metadata[domain.MetadataKeyCartID], cartID)
	}

	// The intent id and secret are stored on the cart for later verification.
	stored, err := f.carts.Get(ctx, cartID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.PaymentIntentID == nil || *stored.PaymentIntentID != "pi_fake_1" {
		t.Errorf("cart payment intent = %v, want pi_fake_1", stored.PaymentIntentID)
	}
}

func TestCheckoutRequiresConnectedAccount(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	f := newFixture(ctx, t, pg.ConnStr)
	// No payment account for this store.

	productID := f.seedProduct(ctx, t, "Bones Bearings", 1500, 5)
	cartID, err := f.carts.AddItem(ctx, "", productID, 1)
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}

	intents := newFakeIntentClient()
	rates := shipping.NewClient("http://unused.invalid", "", nil)
	svc := checkout.NewService(f.carts, nil, f.stores, f.orders, intents, rates, f.newFinalizer(nil), 500, f.logger)

	if _, err := svc.CreatePaymentIntent(ctx, f.storeID, cartID); !errors.Is(err, payments.ErrStoreNotConnected) {
		t.Fatalf("CreatePaymentIntent() error = %v, want ErrStoreNotConnected", err)
	}
	if len(intents.created) != 0 {
		t.Errorf("intent client called %d times, want 0", len(intents.created))
	}

	stored, err := f.carts.Get(ctx, cartID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.PaymentIntentID != nil {
		t.Errorf("cart has intent %q, want none", *stored.PaymentIntentID)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	f := newFixture(ctx, t, pg.ConnStr)
	f.connectAccount(ctx, t)

	productID := f.seedProduct(ctx, t, "Thrasher Hoodie", 6500, 4)
	cartID, err := f.carts.AddItem(ctx, "", productID, 2)
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}

	encoded, err := domain.EncodeCheckoutItems([]domain.CheckoutItem{
		{ProductID: productID, Price: 6500, Quantity: 2},
	})
	if err != nil {
		t.Fatalf("encode items: %v", err)
	}
	intentID := "pi_idem_test"
	if err := f.carts.AttachIntent(ctx, cartID, intentID, intentID+"_secret"); err != nil {
		t.Fatalf("AttachIntent() error = %v", err)
	}

	intent := &payments.Intent{
		ID:           intentID,
		Status:       payments.StatusSucceeded,
		Amount:       13000,
		ReceiptEmail: "buyer@example.com",
		ShippingName: "Ada Lovelace",
		ShippingAddress: domain.Address{
			Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US",
		},
		Metadata: map[string]string{
			domain.MetadataKeyCartID: cartID,
			domain.MetadataKeyItems:  encoded,
		},
	}

	finalizer := f.newFinalizer(nil)
	orderID, err := finalizer.Finalize(ctx, intent, f.accountID)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if orderID == "" {
		t.Fatal("Finalize() returned empty order id")
	}

	// Replay: the duplicate must not create a second order or touch stock.
	dup, err := finalizer.Finalize(ctx, intent, f.accountID)
	if err != nil {
		t.Fatalf("Finalize() replay error = %v", err)
	}
	if dup != "" {
		t.Errorf("replay produced order %q, want none", dup)
	}

	var orderCount int
	if err := f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE stripe_payment_intent_id = $1`, intentID).Scan(&orderCount); err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 1 {
		t.Errorf("order rows = %d, want 1", orderCount)
	}

	stock, _, err := f.inventory.Available(ctx, productID)
	if err != nil {
		t.Fatalf("Available() error = %v", err)
	}
	if stock != 2 {
		t.Errorf("inventory = %d, want 2 (decremented exactly once)", stock)
	}

	order, err := f.orders.GetByID(ctx, orderID)
	if err != nil || order == nil {
		t.Fatalf("GetByID() = %v, %v", order, err)
	}
	if order.Amount.StringFixed(2) != "130.00" {
		t.Errorf("order amount = %s, want 130.00", order.Amount.StringFixed(2))
	}
	if order.Quantity != 2 || len(order.Items) != 1 {
		t.Errorf("order lines = %+v, quantity = %d", order.Items, order.Quantity)
	}

	// The cart that carried the intent is closed and emptied.
	closed, err := f.carts.Get(ctx, cartID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if closed == nil || !closed.Closed {
		t.Errorf("cart after finalize = %+v, want closed", closed)
	}
	if len(closed.Items) != 0 {
		t.Errorf("closed cart still has %d items", len(closed.Items))
	}
}

func TestWebhookDrivenFinalization(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	f := newFixture(ctx, t, pg.ConnStr)
	f.connectAccount(ctx, t)

	productID := f.seedProduct(ctx, t, "Vans Low Tops", 7000, 3)
	cartID, err := f.carts.AddItem(ctx, "", productID, 1)
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if err := f.carts.AttachIntent(ctx, cartID, "pi_webhook_test", "secret"); err != nil {
		t.Fatalf("AttachIntent() error = %v", err)
	}

	items := fmt.Sprintf(`[{\"productId\":\"%s\",\"price\":7000,\"quantity\":1}]`, productID)
	payload := fmt.Sprintf(`{
		"id": "evt_int_1",
		"type": "payment_intent.succeeded",
		"account": %q,
		"data": {
			"object": {
				"id": "pi_webhook_test",
				"amount": 7000,
				"status": "succeeded",
				"receipt_email": "buyer@example.com",
				"metadata": {"cartId": %q, "items": "%s"},
				"shipping": {"name": "Ada", "address": {"line1": "1 Main St", "postal_code": "12345", "country": "US"}}
			}
		}
	}`, f.accountID, cartID, items)

	handler := webhooks.NewHandler(webhookSecret, f.newFinalizer(nil), billing.NewRepository(f.db), f.logger)

	// Tampered signature: rejected, nothing persisted.
	rec := postWebhook(handler, payload, signWebhook("whsec_other", payload))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("tampered delivery status = %d, want 400", rec.Code)
	}
	var count int
	if err := f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count); err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 0 {
		t.Fatalf("orders after rejected delivery = %d, want 0", count)
	}

	// Genuine delivery finalizes the order.
	rec = postWebhook(handler, payload, signWebhook(webhookSecret, payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("delivery status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}

	order, err := f.orders.GetByIntentID(ctx, "pi_webhook_test")
	if err != nil || order == nil {
		t.Fatalf("GetByIntentID() = %v, %v", order, err)
	}
	if order.StoreID != f.storeID {
		t.Errorf("order store = %q, want %q", order.StoreID, f.storeID)
	}

	stock, _, err := f.inventory.Available(ctx, productID)
	if err != nil {
		t.Fatalf("Available() error = %v", err)
	}
	if stock != 2 {
		t.Errorf("inventory = %d, want 2", stock)
	}
}

func TestVerifyPaymentFallback(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	f := newFixture(ctx, t, pg.ConnStr)
	f.connectAccount(ctx, t)

	productID := f.seedProduct(ctx, t, "Sk8 Tool", 1200, 6)
	cartID, err := f.carts.AddItem(ctx, "", productID, 3)
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}

	intents := newFakeIntentClient()
	rates := shipping.NewClient("http://unused.invalid", "", nil)
	svc := checkout.NewService(f.carts, nil, f.stores, f.orders, intents, rates, f.newFinalizer(nil), 500, f.logger)

	if _, err := svc.CreatePaymentIntent(ctx, f.storeID, cartID); err != nil {
		t.Fatalf("CreatePaymentIntent() error = %v", err)
	}

	// Not paid yet.
	if _, err := svc.VerifyPayment(ctx, f.storeID, cartID, "12345"); !errors.Is(err, checkout.ErrPaymentIncomplete) {
		t.Fatalf("VerifyPayment() before payment error = %v, want ErrPaymentIncomplete", err)
	}

	intents.succeed("pi_fake_1", domain.Address{Line1: "1 Main St", PostalCode: "12345", Country: "US"}, "buyer@example.com")

	// Wrong postal code stays unverified.
	if _, err := svc.VerifyPayment(ctx, f.storeID, cartID, "99999"); !errors.Is(err, checkout.ErrPostalCodeMismatch) {
		t.Fatalf("VerifyPayment() wrong postal error = %v, want ErrPostalCodeMismatch", err)
	}

	order, err := svc.VerifyPayment(ctx, f.storeID, cartID, "12345")
	if err != nil {
		t.Fatalf("VerifyPayment() error = %v", err)
	}
	if order == nil || order.StripePaymentIntentID != "pi_fake_1" {
		t.Fatalf("VerifyPayment() order = %+v", order)
	}

	// Re-verifying after finalization reports the same order.
	again, err := svc.VerifyPayment(ctx, f.storeID, cartID, "12345")
	if err != nil {
		t.Fatalf("VerifyPayment() replay error = %v", err)
	}
	if again == nil || again.ID != order.ID {
		t.Errorf("replay order = %+v, want id %s", again, order.ID)
	}
}

func TestOrderEventDrivesConfirmationEmail(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	brokers, cleanup := SetupKafka(ctx, t)
	defer cleanup()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var mu sync.Mutex
	var sent []map[string]string
	emailSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg map[string]string
		_ = json.NewDecoder(r.Body).Decode(&msg)
		mu.Lock()
		sent = append(sent, msg)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer emailSrv.Close()

	producer := messaging.NewProducer(brokers, "order.finalized")
	defer func() { _ = producer.Close() }()

	consumer := messaging.NewConsumer(brokers, "order.finalized", "email-worker-test", logger)
	defer func() { _ = consumer.Close() }()

	handler := worker.NewConfirmationHandler(email.NewClient(emailSrv.URL, emailSrv.Client()), logger)

	consumeCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Consume(consumeCtx, handler.Handle)
	}()

	event := domain.OrderFinalizedEvent{
		OrderID: uuid.New().String(),
		StoreID: uuid.New().String(),
		Name:    "Ada Lovelace",
		Email:   "ada@example.com",
		Items:   []domain.OrderItem{{ProductID: uuid.New().String(), Quantity: 1, Price: 5999}},
		Amount:  "59.99",
	}
	if err := producer.Publish(ctx, event.OrderID, event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.After(90 * time.Second)
	for {
		mu.Lock()
		n := len(sent)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for confirmation email")
		case <-time.After(500 * time.Millisecond):
		}
	}

	stopConsumer()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if sent[0]["to"] != "ada@example.com" {
		t.Errorf("email to = %q, want ada@example.com", sent[0]["to"])
	}
	if !strings.Contains(sent[0]["body"], "$59.99") {
		t.Errorf("email body missing amount: %q", sent[0]["body"])
	}
}

func signWebhook(secret, payload string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(h *webhooks.Handler, payload, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	h.HandleEvent(rec, req)
	return rec
}
