package catalog

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sadmann7/skateshop-sub000/internal/domain"
	"github.com/sadmann7/skateshop-sub000/internal/validate"
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

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	products, err := h.repo.List(r.Context(), Filter{
		StoreID:      q.Get("store_id"),
		CategorySlug: q.Get("category"),
		Query:        q.Get("query"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	product, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.repo.ListCategories(r.Context())
	if err != nil {
		h.logger.Error("failed to list categories", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, categories)
}

func (h *Handler) HandleListSubcategories(w http.ResponseWriter, r *http.Request) {
	categoryID := r.PathValue("id")
	if categoryID == "" {
		h.writeError(w, http.StatusBadRequest, "missing category id")
		return
	}

	subcategories, err := h.repo.ListSubcategories(r.Context(), categoryID)
	if err != nil {
		h.logger.Error("failed to list subcategories", "error", err, "category_id", categoryID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, subcategories)
}

type productRequest struct {
	CategoryID    string   `json:"category_id" validate:"required,uuid"`
	SubcategoryID *string  `json:"subcategory_id" validate:"omitempty,uuid"`
	Name          string   `json:"name" validate:"required,max=256"`
	Description   string   `json:"description"`
	Images        []string `json:"images"`
	Tags          []string `json:"tags"`
	Price         int64    `json:"price" validate:"gte=0"`
	Inventory     int      `json:"inventory" validate:"gte=0"`
	LengthCm      *float64 `json:"length_cm" validate:"omitempty,gt=0"`
	WidthCm       *float64 `json:"width_cm" validate:"omitempty,gt=0"`
	HeightCm      *float64 `json:"height_cm" validate:"omitempty,gt=0"`
	WeightG       *float64 `json:"weight_g" validate:"omitempty,gt=0"`
}

func (req *productRequest) toProduct(storeID string) *domain.Product {
	images := req.Images
	if images == nil {
		images = []string{}
	}
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}

	return &domain.Product{
		StoreID:       storeID,
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
		Name:          req.Name,
		Description:   req.Description,
		Images:        images,
		Tags:          tags,
		Price:         req.Price,
		Inventory:     req.Inventory,
		Dimensions: domain.Dimensions{
			LengthCm: req.LengthCm,
			WidthCm:  req.WidthCm,
			HeightCm: req.HeightCm,
			WeightG:  req.WeightG,
		},
	}
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("id")
	if storeID == "" {
		h.writeError(w, http.StatusBadRequest, "missing store id")
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	product := req.toProduct(storeID)
	if err := h.repo.Create(r.Context(), product); err != nil {
		h.logger.Error("failed to create product", "error", err, "store_id", storeID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("product created", "product_id", product.ID, "store_id", storeID)
	h.writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("id")
	productID := r.PathValue("productId")
	if storeID == "" || productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing store or product id")
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	product := req.toProduct(storeID)
	product.ID = productID

	updated, err := h.repo.Update(r.Context(), product)
	if err != nil {
		h.logger.Error("failed to update product", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if updated == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.logger.Info("product updated", "product_id", productID, "store_id", storeID)
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("id")
	productID := r.PathValue("productId")
	if storeID == "" || productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing store or product id")
		return
	}

	deleted, err := h.repo.Delete(r.Context(), storeID, productID)
	if err != nil {
		h.logger.Error("failed to delete product", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !deleted {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.logger.Info("product deleted", "product_id", productID, "store_id", storeID)
	w.WriteHeader(http.StatusNoContent)
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
