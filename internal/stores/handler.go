package stores

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sadmann7/skateshop-sub000/internal/domain"
	"github.com/sadmann7/skateshop-sub000/internal/payments"
	"github.com/sadmann7/skateshop-sub000/internal/validate"
)

type Handler struct {
	repo     *Repository
	accounts payments.AccountClient
	logger   *slog.Logger
}

func NewHandler(repo *Repository, accounts payments.AccountClient, logger *slog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		accounts: accounts,
		logger:   logger,
	}
}

type storeRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	Name        string `json:"name" validate:"required,max=128"`
	Slug        string `json:"slug" validate:"required,max=128"`
	Description string `json:"description"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	store := &domain.Store{
		UserID:      req.UserID,
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
	}
	if err := h.repo.Create(r.Context(), store); err != nil {
		h.logger.Error("failed to create store", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("store created", "store_id", store.ID, "slug", store.Slug)
	h.writeJSON(w, http.StatusCreated, store)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing store id")
		return
	}

	store, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get store", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if store == nil {
		h.writeError(w, http.StatusNotFound, "store not found")
		return
	}

	h.writeJSON(w, http.StatusOK, store)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing store id")
		return
	}

	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.repo.Update(r.Context(), &domain.Store{
		ID:          id,
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Error("failed to update store", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if updated == nil {
		h.writeError(w, http.StatusNotFound, "store not found")
		return
	}

	h.logger.Info("store updated", "store_id", id)
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing store id")
		return
	}

	deleted, err := h.repo.Delete(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to delete store", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !deleted {
		h.writeError(w, http.StatusNotFound, "store not found")
		return
	}

	h.logger.Info("store deleted", "store_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetPaymentAccount reports the store's connected-account record,
// refreshing the onboarding status from the processor when possible.
func (h *Handler) HandleGetPaymentAccount(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("id")
	if storeID == "" {
		h.writeError(w, http.StatusBadRequest, "missing store id")
		return
	}

	account, err := h.repo.GetPaymentAccount(r.Context(), storeID)
	if err != nil {
		h.logger.Error("failed to get payment account", "error", err, "store_id", storeID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if account == nil {
		h.writeError(w, http.StatusNotFound, "store is not connected")
		return
	}

	remote, err := h.accounts.RetrieveAccount(r.Context(), account.StripeAccountID)
	if err != nil {
		h.logger.Error("failed to refresh account status", "error", err, "store_id", storeID)
		h.writeJSON(w, http.StatusOK, account)
		return
	}

	if remote.DetailsSubmitted != account.DetailsSubmitted {
		account, err = h.repo.UpsertPaymentAccount(r.Context(), storeID, account.StripeAccountID, remote.DetailsSubmitted)
		if err != nil {
			h.logger.Error("failed to persist account status", "error", err, "store_id", storeID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	h.writeJSON(w, http.StatusOK, account)
}

// HandleCreatePaymentAccount starts processor onboarding for the store. If a
// record already exists it is refreshed rather than replaced.
func (h *Handler) HandleCreatePaymentAccount(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("id")
	if storeID == "" {
		h.writeError(w, http.StatusBadRequest, "missing store id")
		return
	}

	store, err := h.repo.GetByID(r.Context(), storeID)
	if err != nil {
		h.logger.Error("failed to get store", "error", err, "store_id", storeID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if store == nil {
		h.writeError(w, http.StatusNotFound, "store not found")
		return
	}

	existing, err := h.repo.GetPaymentAccount(r.Context(), storeID)
	if err != nil {
		h.logger.Error("failed to get payment account", "error", err, "store_id", storeID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if existing != nil {
		h.writeJSON(w, http.StatusOK, existing)
		return
	}

	remote, err := h.accounts.CreateAccount(r.Context())
	if err != nil {
		h.logger.Error("failed to create connected account", "error", err, "store_id", storeID)
		h.writeError(w, http.StatusBadGateway, "payment processor unavailable")
		return
	}

	account, err := h.repo.UpsertPaymentAccount(r.Context(), storeID, remote.ID, remote.DetailsSubmitted)
	if err != nil {
		h.logger.Error("failed to persist payment account", "error", err, "store_id", storeID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("connected account created", "store_id", storeID, "stripe_account_id", remote.ID)
	h.writeJSON(w, http.StatusCreated, account)
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
