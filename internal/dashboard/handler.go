package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sadmann7/skateshop-sub000/internal/orders"
)

// defaultAnalyticsDays is the lookback window when the request names none.
const defaultAnalyticsDays = 30

type Handler struct {
	repo   *Repository
	orders *orders.Repository
	logger *slog.Logger
}

func NewHandler(repo *Repository, orderRepo *orders.Repository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		orders: orderRepo,
		logger: logger,
	}
}

func (h *Handler) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("id")
	q := r.URL.Query()

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	list, err := h.orders.ListByStore(r.Context(), storeID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "store_id", storeID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleListCustomers(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("id")
	q := r.URL.Query()

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	customers, err := h.repo.Customers(r.Context(), storeID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list customers", "error", err, "store_id", storeID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, customers)
}

func (h *Handler) HandleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("id")

	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 || days > 365 {
		days = defaultAnalyticsDays
	}
	since := time.Now().UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour)

	stats, err := h.repo.Analytics(r.Context(), storeID, since)
	if err != nil {
		h.logger.Error("failed to load analytics", "error", err, "store_id", storeID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
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
