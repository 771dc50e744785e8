package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/ozsapka/shop-api/internal/domain/basket"
)

// ListOrders returns the caller's placed, fulfilled and cancelled orders,
// newest first. The open basket is not part of the history.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, _ := KeyFromContext(ctx)

	orders, err := h.orders.ListByUser(ctx, key.UserID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			if orders[i].Status == basket.StatusBasket {
				continue
			}
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// GetOrder returns one of the caller's orders. Admin keys may read any
// order; basket keys only their own. Foreign orders read as 404 so order
// IDs are not probeable.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, _ := KeyFromContext(ctx)

	o, err := h.orders.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	if o.UserID != key.UserID && !key.HasScope(ScopeAdmin) {
		writeDomainError(ctx, w, basket.ErrOrderNotFound)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// FulfillOrder marks a placed order as fulfilled.
func (h *Handler) FulfillOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	o, err := h.composer.Fulfill(ctx, r.PathValue("id"))
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// CancelOrder marks a placed order as cancelled.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	o, err := h.composer.Cancel(ctx, r.PathValue("id"))
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}
