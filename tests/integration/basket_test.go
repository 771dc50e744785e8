//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"testing"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

const (
	crewNeckID = "1f77d0a2-0001-4000-8000-000000000001" // 129.90
	capID      = "1f77d0a2-0001-4000-8000-000000000005" // 89.90
)

func TestBasket_NoAuth(t *testing.T) {
	resp := doGet(t, "/api/basket")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestBasket_InvalidKey(t *testing.T) {
	resp := do(t, http.MethodGet, "/api/basket", "wrong-key", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	body := map[string]any{"productId": crewNeckID, "quantity": 0}
	resp := do(t, http.MethodPost, "/api/basket/items", testAPIKey, body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestAddItem_UnknownProduct(t *testing.T) {
	body := map[string]any{"productId": "no-such-product", "quantity": 1}
	resp := do(t, http.MethodPost, "/api/basket/items", testAPIKey, body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

// TestBasketLifecycle drives a full basket session: add, accumulate, adjust,
// remove, checkout, and verify the order history. Runs as a single ordered
// test because every step depends on the state left by the previous one.
func TestBasketLifecycle(t *testing.T) {
	// Add two crew necks.
	resp := do(t, http.MethodPost, "/api/basket/items", testAPIKey, map[string]any{
		"productId": crewNeckID, "quantity": 2,
	})
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("add: expected 200, got %d", resp.StatusCode)
	}
	added := decodeJSON[addItemResponse](t, resp)
	resp.Body.Close()

	if added.LineCount != 1 {
		t.Errorf("line count: got %d, want 1", added.LineCount)
	}
	if !uuidPattern.MatchString(added.Basket.ID) {
		t.Errorf("basket ID %q is not a valid UUID", added.Basket.ID)
	}
	if added.Basket.Total != 259.8 {
		t.Errorf("total: got %v, want 259.8", added.Basket.Total)
	}

	// Same product again accumulates into the existing line.
	resp = do(t, http.MethodPost, "/api/basket/items", testAPIKey, map[string]any{
		"productId": crewNeckID, "quantity": 1,
	})
	added = decodeJSON[addItemResponse](t, resp)
	resp.Body.Close()
	if added.LineCount != 1 {
		t.Errorf("line count after re-add: got %d, want 1", added.LineCount)
	}
	if got := added.Basket.Lines[0].Quantity; got != 3 {
		t.Errorf("quantity after re-add: got %d, want 3", got)
	}

	// A second product opens a new line in the same basket.
	resp = do(t, http.MethodPost, "/api/basket/items", testAPIKey, map[string]any{
		"productId": capID, "quantity": 1,
	})
	added = decodeJSON[addItemResponse](t, resp)
	resp.Body.Close()
	if added.LineCount != 2 {
		t.Errorf("line count with cap: got %d, want 2", added.LineCount)
	}
	if added.Basket.Total != 479.6 {
		t.Errorf("total with cap: got %v, want 479.6", added.Basket.Total)
	}

	// Drop the crew necks to one.
	resp = do(t, http.MethodPut, "/api/basket/items/"+crewNeckID, testAPIKey, map[string]any{
		"quantity": 1,
	})
	basket := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if basket.Total != 219.8 {
		t.Errorf("total after update: got %v, want 219.8", basket.Total)
	}

	// Remove the cap entirely.
	resp = do(t, http.MethodDelete, "/api/basket/items/"+capID, testAPIKey, nil)
	basket = decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if len(basket.Lines) != 1 {
		t.Fatalf("lines after remove: got %d, want 1", len(basket.Lines))
	}
	if basket.Total != 129.9 {
		t.Errorf("total after remove: got %v, want 129.9", basket.Total)
	}

	// Checkout places the order.
	resp = do(t, http.MethodPost, "/api/basket/checkout", testAPIKey, nil)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("checkout: expected 200, got %d", resp.StatusCode)
	}
	placed := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if placed.Status != "placed" {
		t.Errorf("status: got %q, want placed", placed.Status)
	}

	// The basket is drained; checking out again is rejected.
	resp = do(t, http.MethodPost, "/api/basket/checkout", testAPIKey, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("second checkout: expected 422, got %d", resp.StatusCode)
	}

	// The placed order appears in history.
	resp = do(t, http.MethodGet, "/api/orders", testAPIKey, nil)
	history := decodeJSON[[]orderResponse](t, resp)
	resp.Body.Close()

	found := false
	for _, o := range history {
		if o.ID == placed.ID {
			found = true
			if o.Total != 129.9 {
				t.Errorf("history total: got %v, want 129.9", o.Total)
			}
		}
	}
	if !found {
		t.Fatalf("placed order %s not in history", placed.ID)
	}

	// Admin fulfills the order; a second transition is rejected.
	resp = do(t, http.MethodPost, "/api/orders/"+placed.ID+"/fulfill", testAdminAPIKey, nil)
	fulfilled := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if fulfilled.Status != "fulfilled" {
		t.Errorf("status after fulfill: got %q, want fulfilled", fulfilled.Status)
	}

	resp = do(t, http.MethodPost, "/api/orders/"+placed.ID+"/cancel", testAdminAPIKey, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("cancel after fulfill: expected 409, got %d", resp.StatusCode)
	}
}

func TestFulfill_RequiresAdminScope(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/orders/any-id/fulfill", testAPIKey, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}
