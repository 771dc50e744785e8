package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/jx"
)

// GetBasket returns the authenticated user's open basket. A user with no
// basket yet gets the empty-basket shape rather than a 404.
func (h *Handler) GetBasket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, _ := KeyFromContext(ctx)

	o, err := h.composer.FindBasket(ctx, key.UserID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// AddBasketItem adds quantity units of a product to the caller's basket,
// creating the basket when the user has none open.
func (h *Handler) AddBasketItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, _ := KeyFromContext(ctx)

	var req struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		writeError(ctx, w, http.StatusBadRequest, "productId is required")
		return
	}

	o, lineCount, err := h.composer.AddProduct(ctx, key.UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("basket")
		encodeOrder(e, o)
		e.FieldStart("lineCount")
		e.Int(lineCount)
		e.ObjEnd()
	})
}

// UpdateBasketItem sets a basket line's quantity. Zero removes the line.
func (h *Handler) UpdateBasketItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, _ := KeyFromContext(ctx)

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.composer.UpdateQuantity(ctx, key.UserID, r.PathValue("productId"), req.Quantity)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// RemoveBasketItem drops a product from the caller's basket. Removing a
// product that is not in the basket succeeds without changing anything.
func (h *Handler) RemoveBasketItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, _ := KeyFromContext(ctx)

	o, err := h.composer.RemoveProduct(ctx, key.UserID, r.PathValue("productId"))
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// Checkout places the caller's basket as an order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, _ := KeyFromContext(ctx)

	o, err := h.composer.Checkout(ctx, key.UserID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}
