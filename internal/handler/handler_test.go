package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ozsapka/shop-api/internal/domain/auth"
	"github.com/ozsapka/shop-api/internal/domain/basket"
	"github.com/ozsapka/shop-api/internal/domain/product"
	"github.com/ozsapka/shop-api/internal/domain/user"
)

const (
	testPepper   = "test-pepper"
	userKey      = "user-raw-key"
	otherUserKey = "other-raw-key"
	adminKey     = "admin-raw-key"

	userID      = "user-1"
	otherUserID = "user-2"
	adminUserID = "admin-1"
)

type memProducts struct {
	mu sync.Mutex
	m  map[string]product.Product
}

func (r *memProducts) List(context.Context) ([]product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]product.Product, 0, len(r.m))
	for _, p := range r.m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.m[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r *memProducts) Create(_ context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[p.ID] = *p
	return nil
}

func (r *memProducts) Update(_ context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[p.ID]; !ok {
		return product.ErrNotFound
	}
	r.m[p.ID] = *p
	return nil
}

func (r *memProducts) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; !ok {
		return product.ErrNotFound
	}
	delete(r.m, id)
	return nil
}

type memUsers struct {
	mu sync.Mutex
	m  map[string]user.User
}

func (r *memUsers) List(context.Context) ([]user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]user.User, 0, len(r.m))
	for _, u := range r.m {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.m[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (r *memUsers) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[u.ID] = *u
	return nil
}

func (r *memUsers) Update(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[u.ID]; !ok {
		return user.ErrNotFound
	}
	r.m[u.ID] = *u
	return nil
}

func (r *memUsers) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; !ok {
		return user.ErrNotFound
	}
	delete(r.m, id)
	return nil
}

type memRefs struct{}

func (memRefs) ListGenders(context.Context) ([]user.Gender, error) {
	return []user.Gender{{ID: "g1", Name: "Female"}, {ID: "g2", Name: "Male"}}, nil
}

func (memRefs) ListCities(context.Context) ([]user.City, error) {
	return []user.City{{ID: "c1", Name: "Istanbul"}}, nil
}

type memOrders struct {
	mu sync.Mutex
	m  map[string]*basket.Order
}

func cloneOrder(o *basket.Order) *basket.Order {
	c := *o
	c.Lines = append([]basket.Line(nil), o.Lines...)
	return &c
}

func (r *memOrders) FindBasket(_ context.Context, uid string) (*basket.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findBasketLocked(uid), nil
}

func (r *memOrders) findBasketLocked(uid string) *basket.Order {
	for _, o := range r.m {
		if o.UserID == uid && o.Status == basket.StatusBasket {
			return cloneOrder(o)
		}
	}
	return nil
}

func (r *memOrders) CreateBasket(_ context.Context, o *basket.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findBasketLocked(o.UserID) != nil {
		return basket.ErrDuplicateBasket
	}
	r.m[o.ID] = cloneOrder(o)
	return nil
}

func (r *memOrders) FindOrCreateBasket(_ context.Context, uid string) (*basket.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o := r.findBasketLocked(uid); o != nil {
		return o, nil
	}
	o := basket.NewBasket(uid)
	r.m[o.ID] = cloneOrder(o)
	return o, nil
}

func (r *memOrders) UpdateLines(_ context.Context, o *basket.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.m[o.ID]
	if !ok || stored.Status != basket.StatusBasket {
		return basket.ErrOrderNotFound
	}
	r.m[o.ID] = cloneOrder(o)
	return nil
}

func (r *memOrders) UpdateStatus(_ context.Context, orderID string, from, to basket.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.m[orderID]
	if !ok {
		return basket.ErrOrderNotFound
	}
	if stored.Status != from {
		return &basket.InvalidStateTransitionError{From: stored.Status, To: to}
	}
	stored.Status = to
	return nil
}

func (r *memOrders) GetByID(_ context.Context, orderID string) (*basket.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.m[orderID]
	if !ok {
		return nil, basket.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *memOrders) ListByUser(_ context.Context, uid string) ([]basket.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []basket.Order
	for _, o := range r.m {
		if o.UserID == uid {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type memKeys struct {
	m map[string]*auth.APIKey
}

func (r *memKeys) FindByHash(_ context.Context, hash string) (*auth.APIKey, error) {
	k, ok := r.m[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return k, nil
}

type fixture struct {
	mux      *http.ServeMux
	products *memProducts
	orders   *memOrders
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	products := &memProducts{m: map[string]product.Product{
		"p1": {ID: "p1", Name: "Crew Neck", Color: "black", Category: "tshirt", Price: decimal.NewFromInt(10)},
		"p2": {ID: "p2", Name: "V Neck", Color: "white", Category: "tshirt", Price: decimal.RequireFromString("15.5")},
	}}
	orders := &memOrders{m: map[string]*basket.Order{}}
	users := &memUsers{m: map[string]user.User{
		userID: {ID: userID, Name: "Ayse", Surname: "Yilmaz", Email: "ayse@example.com"},
	}}

	composer, err := basket.NewComposer(products, orders, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	pepper := []byte(testPepper)
	keys := &memKeys{m: map[string]*auth.APIKey{
		HashKey(pepper, userKey): {
			ID: "k1", KeyHash: HashKey(pepper, userKey),
			UserID: userID, Scopes: []string{ScopeBasket},
		},
		HashKey(pepper, otherUserKey): {
			ID: "k2", KeyHash: HashKey(pepper, otherUserKey),
			UserID: otherUserID, Scopes: []string{ScopeBasket},
		},
		HashKey(pepper, adminKey): {
			ID: "k3", KeyHash: HashKey(pepper, adminKey),
			UserID: adminUserID, Scopes: []string{ScopeBasket, ScopeAdmin},
		},
	}}

	h := NewHandler(composer, products, users, memRefs{}, orders, NewSecurity(keys, pepper))
	mux := http.NewServeMux()
	h.Register(mux)

	return &fixture{mux: mux, products: products, orders: orders}
}

func (f *fixture) do(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rd)
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

type orderBody struct {
	ID     string  `json:"id"`
	UserID string  `json:"userId"`
	Status string  `json:"status"`
	Total  float64 `json:"total"`
	Lines  []struct {
		ProductID string  `json:"productId"`
		Quantity  int     `json:"quantity"`
		UnitPrice float64 `json:"unitPrice"`
		Total     float64 `json:"total"`
	} `json:"lines"`
}

func TestAuth(t *testing.T) {
	f := newFixture(t)

	t.Run("missing key", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/basket", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown key", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/basket", "no-such-key", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing scope", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/users", userKey, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin scope accepted", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/users", adminKey, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestListProducts(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body []map[string]any
	decodeBody(t, w, &body)
	require.Len(t, body, 2)
	assert.Equal(t, "Crew Neck", body[0]["name"])
	assert.Equal(t, 15.5, body[1]["price"])
}

func TestGetProduct_NotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/products/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateProduct(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/products", adminKey, map[string]any{
		"name": "Hoodie", "color": "grey", "category": "hoodie", "price": 42.0,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var body map[string]any
	decodeBody(t, w, &body)
	assert.Equal(t, "Hoodie", body["name"])
	assert.NotEmpty(t, body["id"])

	got, err := f.products.GetByID(context.Background(), body["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "Hoodie", got.Name)
}

func TestCreateProduct_Invalid(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/products", adminKey, map[string]any{"price": 10.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/products", adminKey, map[string]any{
		"name": "Bad", "price": -1.0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetBasket_EmptyShape(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/basket", userKey, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body orderBody
	decodeBody(t, w, &body)
	assert.Equal(t, "basket", body.Status)
	assert.Zero(t, body.Total)
	assert.Empty(t, body.Lines)
}

func TestAddBasketItem(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/basket/items", userKey, map[string]any{
		"productId": "p1", "quantity": 2,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Basket    orderBody `json:"basket"`
		LineCount int       `json:"lineCount"`
	}
	decodeBody(t, w, &body)
	assert.Equal(t, 1, body.LineCount)
	assert.Equal(t, userID, body.Basket.UserID)
	assert.Equal(t, 20.0, body.Basket.Total)
	require.Len(t, body.Basket.Lines, 1)
	assert.Equal(t, 2, body.Basket.Lines[0].Quantity)
}

func TestAddBasketItem_Errors(t *testing.T) {
	f := newFixture(t)

	t.Run("missing product id", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/basket/items", userKey, map[string]any{"quantity": 1})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid quantity", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/basket/items", userKey, map[string]any{
			"productId": "p1", "quantity": 0,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("unknown product", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/basket/items", userKey, map[string]any{
			"productId": "missing", "quantity": 1,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestUpdateBasketItem(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/basket/items", userKey, map[string]any{
		"productId": "p1", "quantity": 2,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPut, "/api/basket/items/p1", userKey, map[string]any{"quantity": 5})
	require.Equal(t, http.StatusOK, w.Code)

	var body orderBody
	decodeBody(t, w, &body)
	require.Len(t, body.Lines, 1)
	assert.Equal(t, 5, body.Lines[0].Quantity)
	assert.Equal(t, 50.0, body.Total)

	t.Run("no such line", func(t *testing.T) {
		w := f.do(t, http.MethodPut, "/api/basket/items/p2", userKey, map[string]any{"quantity": 1})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRemoveBasketItem(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/basket/items", userKey, map[string]any{
		"productId": "p1", "quantity": 1,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/basket/items/p1", userKey, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body orderBody
	decodeBody(t, w, &body)
	assert.Empty(t, body.Lines)
	assert.Zero(t, body.Total)

	// Removing an absent line is a no-op, not an error.
	w = f.do(t, http.MethodDelete, "/api/basket/items/p1", userKey, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)

	t.Run("empty basket", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/basket/checkout", userKey, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	w := f.do(t, http.MethodPost, "/api/basket/items", userKey, map[string]any{
		"productId": "p1", "quantity": 2,
	})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/api/basket/items", userKey, map[string]any{
		"productId": "p2", "quantity": 1,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/basket/checkout", userKey, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var placed orderBody
	decodeBody(t, w, &placed)
	assert.Equal(t, "placed", placed.Status)
	assert.Equal(t, 35.5, placed.Total)

	// The next basket read starts fresh.
	w = f.do(t, http.MethodGet, "/api/basket", userKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fresh orderBody
	decodeBody(t, w, &fresh)
	assert.Empty(t, fresh.Lines)

	// The placed order shows up in history.
	w = f.do(t, http.MethodGet, "/api/orders", userKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []orderBody
	decodeBody(t, w, &history)
	require.Len(t, history, 1)
	assert.Equal(t, placed.ID, history[0].ID)
}

func TestGetOrder_Ownership(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/basket/items", userKey, map[string]any{
		"productId": "p1", "quantity": 1,
	})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/api/basket/checkout", userKey, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var placed orderBody
	decodeBody(t, w, &placed)

	t.Run("owner reads own order", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/orders/"+placed.ID, userKey, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("foreign order reads as not found", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/orders/"+placed.ID, otherUserKey, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("admin reads any order", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/orders/"+placed.ID, adminKey, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestFulfillAndCancel(t *testing.T) {
	f := newFixture(t)

	place := func(t *testing.T, key string) string {
		t.Helper()
		w := f.do(t, http.MethodPost, "/api/basket/items", key, map[string]any{
			"productId": "p1", "quantity": 1,
		})
		require.Equal(t, http.StatusOK, w.Code)
		w = f.do(t, http.MethodPost, "/api/basket/checkout", key, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var placed orderBody
		decodeBody(t, w, &placed)
		return placed.ID
	}

	t.Run("fulfill placed order", func(t *testing.T) {
		id := place(t, userKey)
		w := f.do(t, http.MethodPost, "/api/orders/"+id+"/fulfill", adminKey, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body orderBody
		decodeBody(t, w, &body)
		assert.Equal(t, "fulfilled", body.Status)

		// Terminal orders reject further transitions.
		w = f.do(t, http.MethodPost, "/api/orders/"+id+"/cancel", adminKey, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("cancel placed order", func(t *testing.T) {
		id := place(t, otherUserKey)
		w := f.do(t, http.MethodPost, "/api/orders/"+id+"/cancel", adminKey, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body orderBody
		decodeBody(t, w, &body)
		assert.Equal(t, "cancelled", body.Status)
	})

	t.Run("basket scope rejected", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/orders/any/fulfill", userKey, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown order", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/orders/missing/fulfill", adminKey, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestUsersCRUD(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/users", adminKey, map[string]any{
		"name": "Mehmet", "surname": "Demir", "email": "mehmet@example.com",
		"genderId": "g2", "cityId": "c1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]any
	decodeBody(t, w, &created)
	id := created["id"].(string)
	require.NotEmpty(t, id)

	w = f.do(t, http.MethodPut, "/api/users/"+id, adminKey, map[string]any{
		"name": "Mehmet", "surname": "Demir", "email": "m.demir@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/users/"+id, adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]any
	decodeBody(t, w, &got)
	assert.Equal(t, "m.demir@example.com", got["email"])

	w = f.do(t, http.MethodDelete, "/api/users/"+id, adminKey, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/users/"+id, adminKey, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReferenceData(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/genders", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var genders []map[string]any
	decodeBody(t, w, &genders)
	assert.Len(t, genders, 2)

	w = f.do(t, http.MethodGet, "/api/cities", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cities []map[string]any
	decodeBody(t, w, &cities)
	assert.Len(t, cities, 1)
}
