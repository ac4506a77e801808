package api

import (
	"net/http"

	"github.com/example/ec-order-sync/internal/domain/product"
	"go.uber.org/zap"
)

// CatalogHandlers handles the catalog service's product registry
type CatalogHandlers struct {
	products *product.Service
	logger   *zap.Logger
}

func NewCatalogHandlers(products *product.Service, logger *zap.Logger) *CatalogHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogHandlers{
		products: products,
		logger:   logger,
	}
}

func (h *CatalogHandlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req product.CreateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.products.Create(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *CatalogHandlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}
