package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ozsapka/shop-api/internal/domain/product"
)

type productRequest struct {
	Name     string  `json:"name"`
	Color    string  `json:"color"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
}

func (r productRequest) validate() (string, bool) {
	switch {
	case r.Name == "":
		return "name is required", false
	case r.Price < 0:
		return "price must not be negative", false
	}
	return "", true
}

// ListProducts returns the full catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	products, err := h.products.List(ctx)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			encodeProduct(e, p)
		}
		e.ArrEnd()
	})
}

// GetProduct returns a single catalog item by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := h.products.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeProduct(e, *p)
	})
}

// CreateProduct adds a catalog item.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg, ok := req.validate(); !ok {
		writeError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	p := product.Product{
		ID:       uuid.NewString(),
		Name:     req.Name,
		Color:    req.Color,
		Category: req.Category,
		Price:    decimal.NewFromFloat(req.Price),
	}
	if err := h.products.Create(ctx, &p); err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeProduct(e, p)
	})
}

// UpdateProduct replaces a catalog item's attributes. Baskets holding the
// product keep their snapshot unit price.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg, ok := req.validate(); !ok {
		writeError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	p := product.Product{
		ID:       r.PathValue("id"),
		Name:     req.Name,
		Color:    req.Color,
		Category: req.Category,
		Price:    decimal.NewFromFloat(req.Price),
	}
	if err := h.products.Update(ctx, &p); err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeProduct(e, p)
	})
}

// DeleteProduct removes a catalog item.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.products.Delete(ctx, r.PathValue("id")); err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
