package billing

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sadmann7/skateshop-sub000/internal/domain"
)

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

type planResponse struct {
	Plan             string     `json:"plan"`
	Status           string     `json:"status,omitempty"`
	StripePriceID    string     `json:"stripe_price_id,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
}

// HandleGetPlan reports the user's dashboard tier. Users without a
// subscription row, or whose subscription lapsed, are on the free plan.
func (h *Handler) HandleGetPlan(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	sub, err := h.repo.GetByUserID(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load subscription", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if sub == nil || sub.Status == domain.SubscriptionStatusCanceled {
		h.writeJSON(w, http.StatusOK, planResponse{Plan: "free"})
		return
	}

	h.writeJSON(w, http.StatusOK, planResponse{
		Plan:             "pro",
		Status:           string(sub.Status),
		StripePriceID:    sub.StripePriceID,
		CurrentPeriodEnd: &sub.CurrentPeriodEnd,
	})
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
