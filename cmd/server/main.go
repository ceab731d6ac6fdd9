package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/sadmann7/skateshop-sub000/internal/billing"
	"github.com/sadmann7/skateshop-sub000/internal/cart"
	"github.com/sadmann7/skateshop-sub000/internal/catalog"
	"github.com/sadmann7/skateshop-sub000/internal/checkout"
	"github.com/sadmann7/skateshop-sub000/internal/dashboard"
	"github.com/sadmann7/skateshop-sub000/internal/inventory"
	"github.com/sadmann7/skateshop-sub000/internal/messaging"
	"github.com/sadmann7/skateshop-sub000/internal/orders"
	"github.com/sadmann7/skateshop-sub000/internal/payments"
	"github.com/sadmann7/skateshop-sub000/internal/shipping"
	"github.com/sadmann7/skateshop-sub000/internal/stores"
	"github.com/sadmann7/skateshop-sub000/internal/telemetry"
	"github.com/sadmann7/skateshop-sub000/internal/webhooks"
)

const defaultPlatformFeeBps = 500

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	providers, err := telemetry.Init(ctx, "storefront", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	stripeSecretKey := os.Getenv("STRIPE_SECRET_KEY")
	if stripeSecretKey == "" {
		logger.Error("STRIPE_SECRET_KEY environment variable is required")
		os.Exit(1)
	}

	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if webhookSecret == "" {
		logger.Error("STRIPE_WEBHOOK_SECRET environment variable is required")
		os.Exit(1)
	}

	shippingAPIURL := os.Getenv("SHIPPING_API_URL")
	if shippingAPIURL == "" {
		logger.Error("SHIPPING_API_URL environment variable is required")
		os.Exit(1)
	}

	feeBps := int64(defaultPlatformFeeBps)
	if raw := os.Getenv("PLATFORM_FEE_BPS"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 || parsed > 10000 {
			logger.Error("PLATFORM_FEE_BPS must be an integer between 0 and 10000", "value", raw)
			os.Exit(1)
		}
		feeBps = parsed
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var producer *messaging.Producer
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		producer = messaging.NewProducer(strings.Split(kafkaBrokers, ","), "order.finalized")
		defer func() { _ = producer.Close() }()
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events will not be published")
	}

	catalogRepo := catalog.NewRepository(db)
	cartRepo := cart.NewRepository(db)
	storeRepo := stores.NewRepository(db)
	orderRepo := orders.NewRepository(db)
	inventoryRepo := inventory.NewRepository(db)
	billingRepo := billing.NewRepository(db)
	dashboardRepo := dashboard.NewRepository(db)

	stripeClient := payments.NewStripeClient(stripeSecretKey)
	shippingClient := shipping.NewClient(shippingAPIURL, os.Getenv("SHIPPING_API_KEY"), &http.Client{
		Timeout: 10 * time.Second,
	})

	var publisher orders.EventPublisher
	if producer != nil {
		publisher = producer
	}
	finalizer := orders.NewFinalizer(orderRepo, inventoryRepo, cartRepo, storeRepo, publisher, logger)

	checkoutService := checkout.NewService(cartRepo, catalogRepo, storeRepo, orderRepo,
		stripeClient, shippingClient, finalizer, feeBps, logger)

	catalogHandler := catalog.NewHandler(catalogRepo, logger)
	cartHandler := cart.NewHandler(cartRepo, logger)
	storeHandler := stores.NewHandler(storeRepo, stripeClient, logger)
	checkoutHandler := checkout.NewHandler(checkoutService, logger)
	webhookHandler := webhooks.NewHandler(webhookSecret, finalizer, billingRepo, logger)
	billingHandler := billing.NewHandler(billingRepo, logger)
	dashboardHandler := dashboard.NewHandler(dashboardRepo, orderRepo, logger)

	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, telemetry.WithHTTPRoute(h))
	}

	route("GET /products", catalogHandler.HandleList)
	route("GET /products/{id}", catalogHandler.HandleGet)
	route("GET /categories", catalogHandler.HandleListCategories)
	route("GET /categories/{id}/subcategories", catalogHandler.HandleListSubcategories)

	route("GET /cart", cartHandler.HandleGet)
	route("POST /cart/items", cartHandler.HandleAddItem)
	route("PATCH /cart/items/{productId}", cartHandler.HandleUpdateItem)
	route("DELETE /cart/items/{productId}", cartHandler.HandleRemoveItem)
	route("DELETE /cart/items", cartHandler.HandleRemoveItems)

	route("POST /checkout/payment-intent", checkoutHandler.HandleCreatePaymentIntent)
	route("POST /checkout/shipping", checkoutHandler.HandleUpdateShipping)
	route("POST /checkout/verify", checkoutHandler.HandleVerifyPayment)

	route("POST /webhooks/stripe", webhookHandler.HandleEvent)

	route("POST /stores", storeHandler.HandleCreate)
	route("GET /stores/{id}", storeHandler.HandleGet)
	route("PATCH /stores/{id}", storeHandler.HandleUpdate)
	route("DELETE /stores/{id}", storeHandler.HandleDelete)
	route("GET /stores/{id}/payment-account", storeHandler.HandleGetPaymentAccount)
	route("POST /stores/{id}/payment-account", storeHandler.HandleCreatePaymentAccount)

	route("POST /stores/{id}/products", catalogHandler.HandleCreate)
	route("PATCH /stores/{id}/products/{productId}", catalogHandler.HandleUpdate)
	route("DELETE /stores/{id}/products/{productId}", catalogHandler.HandleDelete)

	route("GET /stores/{id}/orders", dashboardHandler.HandleListOrders)
	route("GET /stores/{id}/customers", dashboardHandler.HandleListCustomers)
	route("GET /stores/{id}/analytics", dashboardHandler.HandleGetAnalytics)

	route("GET /billing/{userId}", billingHandler.HandleGetPlan)

	mux.Handle("GET /metrics", providers.MetricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      telemetry.NewServerHandler(mux, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting storefront service", "port", port, "platform_fee_bps", feeBps)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
