// Package handler exposes the domain over a JSON HTTP API. Routes use Go
// 1.22 method patterns on http.ServeMux; responses are encoded with jx and
// domain errors are mapped to {code, message} payloads.
package handler

import (
	"net/http"

	"github.com/ozsapka/shop-api/internal/domain/basket"
	"github.com/ozsapka/shop-api/internal/domain/product"
	"github.com/ozsapka/shop-api/internal/domain/user"
)

// Scopes an API key may carry.
const (
	ScopeBasket = "basket"
	ScopeAdmin  = "admin"
)

// Handler implements the HTTP API, delegating business logic to the basket
// composer and the injected repositories.
type Handler struct {
	composer *basket.Composer
	products product.Repository
	users    user.Repository
	refs     user.ReferenceRepository
	orders   basket.Repository
	security *Security
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	composer *basket.Composer,
	products product.Repository,
	users user.Repository,
	refs user.ReferenceRepository,
	orders basket.Repository,
	security *Security,
) *Handler {
	return &Handler{
		composer: composer,
		products: products,
		users:    users,
		refs:     refs,
		orders:   orders,
		security: security,
	}
}

// Register mounts all API routes on mux under the /api prefix.
func (h *Handler) Register(mux *http.ServeMux) {
	// Public catalog and reference data.
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("GET /api/genders", h.ListGenders)
	mux.HandleFunc("GET /api/cities", h.ListCities)

	// Basket operations for the authenticated user.
	mux.Handle("GET /api/basket", h.auth(ScopeBasket, h.GetBasket))
	mux.Handle("POST /api/basket/items", h.auth(ScopeBasket, h.AddBasketItem))
	mux.Handle("PUT /api/basket/items/{productId}", h.auth(ScopeBasket, h.UpdateBasketItem))
	mux.Handle("DELETE /api/basket/items/{productId}", h.auth(ScopeBasket, h.RemoveBasketItem))
	mux.Handle("POST /api/basket/checkout", h.auth(ScopeBasket, h.Checkout))

	// Order history for the authenticated user.
	mux.Handle("GET /api/orders", h.auth(ScopeBasket, h.ListOrders))
	mux.Handle("GET /api/orders/{id}", h.auth(ScopeBasket, h.GetOrder))

	// Back-office operations.
	mux.Handle("POST /api/orders/{id}/fulfill", h.auth(ScopeAdmin, h.FulfillOrder))
	mux.Handle("POST /api/orders/{id}/cancel", h.auth(ScopeAdmin, h.CancelOrder))
	mux.Handle("POST /api/products", h.auth(ScopeAdmin, h.CreateProduct))
	mux.Handle("PUT /api/products/{id}", h.auth(ScopeAdmin, h.UpdateProduct))
	mux.Handle("DELETE /api/products/{id}", h.auth(ScopeAdmin, h.DeleteProduct))
	mux.Handle("GET /api/users", h.auth(ScopeAdmin, h.ListUsers))
	mux.Handle("GET /api/users/{id}", h.auth(ScopeAdmin, h.GetUser))
	mux.Handle("POST /api/users", h.auth(ScopeAdmin, h.CreateUser))
	mux.Handle("PUT /api/users/{id}", h.auth(ScopeAdmin, h.UpdateUser))
	mux.Handle("DELETE /api/users/{id}", h.auth(ScopeAdmin, h.DeleteUser))
}

func (h *Handler) auth(scope string, next http.HandlerFunc) http.Handler {
	return h.security.Require(scope, next)
}
