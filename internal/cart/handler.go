package cart

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sadmann7/skateshop-sub000/internal/validate"
)

// cookieName keys the client's cart. The cookie is the only place the cart
// id lives outside the database; everything below the handler takes it as an
// explicit parameter.
const cookieName = "cartId"

type Handler struct {
	repo   *Repository
	logger *slog.Logger
}

func NewHandler(repo *Repository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// IDFromRequest extracts the cart id from the request cookie; it returns
// the empty string when the client holds no cart.
func IDFromRequest(r *http.Request) string {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func setCartCookie(w http.ResponseWriter, cartID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    cartID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	lines, err := h.repo.Lines(r.Context(), IDFromRequest(r))
	if err != nil {
		h.logger.Error("failed to load cart", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, lines)
}

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cookieID := IDFromRequest(r)
	cartID, err := h.repo.AddItem(r.Context(), cookieID, req.ProductID, req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, ErrProductNotFound):
			h.writeError(w, http.StatusNotFound, "product not found")
		case errors.Is(err, ErrOutOfStock):
			h.writeError(w, http.StatusConflict, "product is out of stock, please try again later")
		default:
			h.logger.Error("failed to add cart item", "error", err, "product_id", req.ProductID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	if cartID != cookieID {
		setCartCookie(w, cartID)
	}

	lines, err := h.repo.Lines(r.Context(), cartID)
	if err != nil {
		h.logger.Error("failed to load cart after add", "error", err, "cart_id", cartID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item added", "cart_id", cartID, "product_id", req.ProductID, "quantity", req.Quantity)
	h.writeJSON(w, http.StatusOK, lines)
}

type updateItemRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

func (h *Handler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cartID := IDFromRequest(r)
	if cartID == "" {
		h.writeError(w, http.StatusNotFound, "cart not found")
		return
	}

	if err := h.repo.UpdateItem(r.Context(), cartID, productID, req.Quantity); err != nil {
		h.respondCartError(w, err, cartID, productID)
		return
	}

	lines, err := h.repo.Lines(r.Context(), cartID)
	if err != nil {
		h.logger.Error("failed to load cart after update", "error", err, "cart_id", cartID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item updated", "cart_id", cartID, "product_id", productID, "quantity", req.Quantity)
	h.writeJSON(w, http.StatusOK, lines)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	cartID := IDFromRequest(r)
	if cartID == "" {
		h.writeError(w, http.StatusNotFound, "cart not found")
		return
	}

	if err := h.repo.RemoveItem(r.Context(), cartID, productID); err != nil {
		h.respondCartError(w, err, cartID, productID)
		return
	}

	h.logger.Info("cart item removed", "cart_id", cartID, "product_id", productID)
	w.WriteHeader(http.StatusNoContent)
}

type removeItemsRequest struct {
	ProductIDs []string `json:"product_ids" validate:"required,min=1,dive,uuid"`
}

func (h *Handler) HandleRemoveItems(w http.ResponseWriter, r *http.Request) {
	var req removeItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cartID := IDFromRequest(r)
	if cartID == "" {
		h.writeError(w, http.StatusNotFound, "cart not found")
		return
	}

	if err := h.repo.RemoveItems(r.Context(), cartID, req.ProductIDs); err != nil {
		h.respondCartError(w, err, cartID, "")
		return
	}

	h.logger.Info("cart items removed", "cart_id", cartID, "count", len(req.ProductIDs))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondCartError(w http.ResponseWriter, err error, cartID, productID string) {
	switch {
	case errors.Is(err, ErrCartNotFound):
		h.writeError(w, http.StatusNotFound, "cart not found")
	case errors.Is(err, ErrCartClosed):
		h.writeError(w, http.StatusConflict, "cart is closed")
	case errors.Is(err, ErrProductNotFound):
		h.writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, ErrOutOfStock):
		h.writeError(w, http.StatusConflict, "product is out of stock, please try again later")
	default:
		h.logger.Error("cart mutation failed", "error", err, "cart_id", cartID, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
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
