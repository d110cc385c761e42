package httpx

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/jpcardenas/retail-backoffice/internal/models"
	"github.com/jpcardenas/retail-backoffice/internal/store"
)

type ProductsHandler struct {
	DB *sql.DB
}

type createProductReq struct {
	SKU               string                    `json:"sku"`
	Name              string                    `json:"name"`
	Description       string                    `json:"description"`
	Category          string                    `json:"category"`
	BasePrice         decimal.Decimal           `json:"base_price"`
	SalePrice         decimal.Decimal           `json:"sale_price"`
	Stock             int                       `json:"stock"`
	MinStock          int                       `json:"min_stock"`
	Variants          []models.VariantReference `json:"variants"`
	IsActive          *bool                     `json:"is_active"`
	IsActiveInCatalog *bool                     `json:"is_active_in_catalog"`
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Post("/products", h.create)
	r.Get("/products", h.list)
	r.Get("/products/low-stock", h.lowStock)
	r.Get("/products/{id}", h.get)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	params := store.CreateProductParams{
		SKU:               req.SKU,
		Name:              req.Name,
		Description:       req.Description,
		Category:          req.Category,
		BasePrice:         req.BasePrice,
		SalePrice:         req.SalePrice,
		Stock:             req.Stock,
		MinStock:          req.MinStock,
		Variants:          req.Variants,
		IsActive:          req.IsActive == nil || *req.IsActive,
		IsActiveInCatalog: req.IsActiveInCatalog == nil || *req.IsActiveInCatalog,
	}

	product, err := store.CreateProduct(ctx, h.DB, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	product, err := store.GetProduct(ctx, h.DB, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	page, err := store.ListProducts(ctx, h.DB, queryInt(r, "page", 1), queryInt(r, "page_size", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *ProductsHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	products, err := store.FindLowStock(ctx, h.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}
