package checkout

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sadmann7/skateshop-sub000/internal/cart"
	"github.com/sadmann7/skateshop-sub000/internal/domain"
	"github.com/sadmann7/skateshop-sub000/internal/payments"
	"github.com/sadmann7/skateshop-sub000/internal/validate"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// intentResponse always answers 200: a nil ClientSecret with an Error string
// is the sentinel for an unrecoverable checkout-initiation failure.
type intentResponse struct {
	ClientSecret *string `json:"client_secret"`
	Error        string  `json:"error,omitempty"`
}

type createIntentRequest struct {
	StoreID string `json:"store_id" validate:"required,uuid"`
}

func (h *Handler) HandleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cartID := cart.IDFromRequest(r)
	secret, err := h.service.CreatePaymentIntent(r.Context(), req.StoreID, cartID)
	if err != nil {
		h.respondIntentFailure(w, err, req.StoreID, cartID)
		return
	}

	h.logger.Info("payment intent created", "store_id", req.StoreID, "cart_id", cartID)
	h.writeJSON(w, http.StatusOK, intentResponse{ClientSecret: &secret})
}

type shippingRequest struct {
	StoreID string `json:"store_id" validate:"required,uuid"`
	Address struct {
		Line1      string `json:"line1" validate:"required"`
		Line2      string `json:"line2"`
		City       string `json:"city" validate:"required"`
		State      string `json:"state"`
		PostalCode string `json:"postal_code" validate:"required"`
		Country    string `json:"country" validate:"required,len=2"`
	} `json:"address"`
}

func (h *Handler) HandleUpdateShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cartID := cart.IDFromRequest(r)
	secret, err := h.service.UpdateWithShipping(r.Context(), req.StoreID, cartID, domain.Address{
		Line1:      req.Address.Line1,
		Line2:      req.Address.Line2,
		City:       req.Address.City,
		State:      req.Address.State,
		PostalCode: req.Address.PostalCode,
		Country:    req.Address.Country,
	})
	if err != nil {
		h.respondIntentFailure(w, err, req.StoreID, cartID)
		return
	}

	h.logger.Info("payment intent updated with shipping", "store_id", req.StoreID, "cart_id", cartID)
	h.writeJSON(w, http.StatusOK, intentResponse{ClientSecret: &secret})
}

type verifyRequest struct {
	StoreID    string `json:"store_id" validate:"required,uuid"`
	PostalCode string `json:"postal_code" validate:"required"`
}

type verifyResponse struct {
	Verified bool          `json:"verified"`
	Order    *domain.Order `json:"order,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func (h *Handler) HandleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cartID := cart.IDFromRequest(r)
	order, err := h.service.VerifyPayment(r.Context(), req.StoreID, cartID, req.PostalCode)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoCheckoutProgress),
			errors.Is(err, ErrPaymentIncomplete),
			errors.Is(err, ErrPostalCodeMismatch):
			h.writeJSON(w, http.StatusOK, verifyResponse{Verified: false, Error: err.Error()})
		default:
			h.logger.Error("payment verification failed", "error", err, "store_id", req.StoreID, "cart_id", cartID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("payment verified", "store_id", req.StoreID, "cart_id", cartID)
	h.writeJSON(w, http.StatusOK, verifyResponse{Verified: true, Order: order})
}

// respondIntentFailure maps business failures to the null-secret sentinel
// the storefront expects; only transport-level problems surface as 5xx.
func (h *Handler) respondIntentFailure(w http.ResponseWriter, err error, storeID, cartID string) {
	switch {
	case errors.Is(err, ErrEmptyCart):
		h.writeJSON(w, http.StatusOK, intentResponse{Error: "cart has no items for this store"})
	case errors.Is(err, payments.ErrStoreNotConnected):
		h.writeJSON(w, http.StatusOK, intentResponse{Error: "store is not ready to accept payments"})
	default:
		h.logger.Error("checkout initiation failed", "error", err, "store_id", storeID, "cart_id", cartID)
		h.writeJSON(w, http.StatusOK, intentResponse{Error: "could not start checkout"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
