package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/freshcart/cart-service-go/internal/cart"
	"github.com/freshcart/cart-service-go/internal/contracts"
	"github.com/freshcart/cart-service-go/internal/events"
)

type fakeStorage struct {
	slots   map[string][]cart.Item
	saveErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{slots: make(map[string][]cart.Item)}
}

func (f *fakeStorage) Load(ctx context.Context, key string) ([]cart.Item, error) {
	items, ok := f.slots[key]
	if !ok {
		return nil, cart.ErrSlotEmpty
	}
	return items, nil
}

func (f *fakeStorage) Save(ctx context.Context, key string, items []cart.Item) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	saved := make([]cart.Item, len(items))
	copy(saved, items)
	f.slots[key] = saved
	return nil
}

type publishCall struct {
	userID      string
	items       []cart.Item
	fulfillment contracts.Fulfillment
	meta        events.PublishMetadata
}

type fakePublisher struct {
	calls []publishCall
	err   error
}

func (f *fakePublisher) PublishCartCheckedOut(ctx context.Context, userID string, items []cart.Item, fl contracts.Fulfillment, meta events.PublishMetadata) error {
	f.calls = append(f.calls, publishCall{userID: userID, items: items, fulfillment: fl, meta: meta})
	return f.err
}

func newTestRouter(storage cart.Storage, publisher CartEventsPublisher) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := cart.NewManager(storage, logger)
	return NewRouter(NewCartHandler(manager, publisher, logger))
}

func do(t *testing.T, router http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) cartResponse {
	t.Helper()
	var resp cartResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	router := newTestRouter(newFakeStorage(), &fakePublisher{})

	rec := do(t, router, http.MethodGet, "/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGetCart_EmptyByDefault(t *testing.T) {
	router := newTestRouter(newFakeStorage(), &fakePublisher{})

	rec := do(t, router, http.MethodGet, "/api/cart/u1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeCart(t, rec)
	if len(resp.Items) != 0 || resp.TotalItems != 0 || resp.TotalPrice != 0 {
		t.Fatalf("expected empty cart, got %+v", resp)
	}
	if resp.IsOpen {
		t.Fatalf("expected cart to start closed")
	}
}

func TestGetCart_HydratesFromStorage(t *testing.T) {
	storage := newFakeStorage()
	storage.slots["u1"] = []cart.Item{{ID: "p1", Name: "Widget", Price: 10, Stock: 5, Quantity: 2}}
	router := newTestRouter(storage, &fakePublisher{})

	rec := do(t, router, http.MethodGet, "/api/cart/u1", "")

	resp := decodeCart(t, rec)
	if resp.TotalItems != 2 || resp.TotalPrice != 20 {
		t.Fatalf("expected hydrated totals, got %+v", resp)
	}
}

func TestAddItem(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		router := newTestRouter(newFakeStorage(), &fakePublisher{})

		rec := do(t, router, http.MethodPost, "/api/cart/u1/items", "{")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("missing product id", func(t *testing.T) {
		router := newTestRouter(newFakeStorage(), &fakePublisher{})

		rec := do(t, router, http.MethodPost, "/api/cart/u1/items", `{"name":"Widget","price":10,"stock":5}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("appends then increments and opens cart", func(t *testing.T) {
		storage := newFakeStorage()
		router := newTestRouter(storage, &fakePublisher{})
		body := `{"id":"p1","name":"Widget","price":10,"image_url":"/w.png","stock":5}`

		rec := do(t, router, http.MethodPost, "/api/cart/u1/items", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		resp := decodeCart(t, rec)
		if resp.TotalItems != 1 || resp.TotalPrice != 10 || !resp.IsOpen {
			t.Fatalf("unexpected response %+v", resp)
		}

		rec = do(t, router, http.MethodPost, "/api/cart/u1/items", body)
		resp = decodeCart(t, rec)
		if len(resp.Items) != 1 {
			t.Fatalf("expected same id to merge into one line, got %d", len(resp.Items))
		}
		if resp.Items[0].Quantity != 2 || resp.TotalPrice != 20 {
			t.Fatalf("unexpected merged item %+v", resp.Items[0])
		}

		// write-through landed in storage
		if len(storage.slots["u1"]) != 1 || storage.slots["u1"][0].Quantity != 2 {
			t.Fatalf("unexpected persisted slot %+v", storage.slots["u1"])
		}
	})

	t.Run("persistence failure degrades instead of erroring", func(t *testing.T) {
		storage := newFakeStorage()
		storage.saveErr = errors.New("disk full")
		router := newTestRouter(storage, &fakePublisher{})

		rec := do(t, router, http.MethodPost, "/api/cart/u1/items", `{"id":"p1","name":"Widget","price":10,"stock":5}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		resp := decodeCart(t, rec)
		if !resp.PersistenceDegraded {
			t.Fatalf("expected persistenceDegraded to be set")
		}
		if resp.TotalItems != 1 {
			t.Fatalf("expected in-memory mutation to apply, got %+v", resp)
		}
	})
}

func TestUpdateItemQuantity(t *testing.T) {
	addWidget := func(t *testing.T, router http.Handler) {
		t.Helper()
		rec := do(t, router, http.MethodPost, "/api/cart/u1/items", `{"id":"p1","name":"Widget","price":10,"stock":5}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("setup add failed with %d", rec.Code)
		}
	}

	t.Run("sets quantity", func(t *testing.T) {
		router := newTestRouter(newFakeStorage(), &fakePublisher{})
		addWidget(t, router)

		rec := do(t, router, http.MethodPut, "/api/cart/u1/items/p1", `{"quantity":4}`)

		resp := decodeCart(t, rec)
		if resp.TotalItems != 4 || resp.TotalPrice != 40 {
			t.Fatalf("unexpected totals %+v", resp)
		}
	})

	t.Run("zero removes the item", func(t *testing.T) {
		router := newTestRouter(newFakeStorage(), &fakePublisher{})
		addWidget(t, router)

		rec := do(t, router, http.MethodPut, "/api/cart/u1/items/p1", `{"quantity":0}`)

		resp := decodeCart(t, rec)
		if len(resp.Items) != 0 || resp.TotalPrice != 0 {
			t.Fatalf("expected empty cart, got %+v", resp)
		}
	})

	t.Run("negative removes the item", func(t *testing.T) {
		router := newTestRouter(newFakeStorage(), &fakePublisher{})
		addWidget(t, router)

		rec := do(t, router, http.MethodPut, "/api/cart/u1/items/p1", `{"quantity":-5}`)

		resp := decodeCart(t, rec)
		if len(resp.Items) != 0 {
			t.Fatalf("expected empty cart, got %+v", resp)
		}
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		router := newTestRouter(newFakeStorage(), &fakePublisher{})
		addWidget(t, router)

		rec := do(t, router, http.MethodPut, "/api/cart/u1/items/ghost", `{"quantity":7}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		resp := decodeCart(t, rec)
		if resp.TotalItems != 1 {
			t.Fatalf("expected cart unchanged, got %+v", resp)
		}
	})
}

func TestRemoveItem_Idempotent(t *testing.T) {
	router := newTestRouter(newFakeStorage(), &fakePublisher{})
	do(t, router, http.MethodPost, "/api/cart/u1/items", `{"id":"p1","name":"Widget","price":10,"stock":5}`)

	rec := do(t, router, http.MethodDelete, "/api/cart/u1/items/p1", "")
	resp := decodeCart(t, rec)
	if len(resp.Items) != 0 {
		t.Fatalf("expected item removed, got %+v", resp)
	}

	rec = do(t, router, http.MethodDelete, "/api/cart/u1/items/p1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected repeat delete to stay 200, got %d", rec.Code)
	}
}

func TestClearCart_KeepsVisibilityFlag(t *testing.T) {
	router := newTestRouter(newFakeStorage(), &fakePublisher{})
	do(t, router, http.MethodPost, "/api/cart/u1/items", `{"id":"p1","name":"Widget","price":10,"stock":5}`)

	rec := do(t, router, http.MethodDelete, "/api/cart/u1", "")

	resp := decodeCart(t, rec)
	if len(resp.Items) != 0 || resp.TotalPrice != 0 {
		t.Fatalf("expected cleared cart, got %+v", resp)
	}
	if !resp.IsOpen {
		t.Fatalf("clear must not touch the visibility flag")
	}
}

func TestOpenClose(t *testing.T) {
	router := newTestRouter(newFakeStorage(), &fakePublisher{})

	resp := decodeCart(t, do(t, router, http.MethodPost, "/api/cart/u1/open", ""))
	if !resp.IsOpen {
		t.Fatalf("expected cart open")
	}

	resp = decodeCart(t, do(t, router, http.MethodPost, "/api/cart/u1/close", ""))
	if resp.IsOpen {
		t.Fatalf("expected cart closed")
	}
}

func TestCheckout(t *testing.T) {
	deliveryBody := `{"method":"delivery","address":"1 Main St"}`

	t.Run("empty cart", func(t *testing.T) {
		router := newTestRouter(newFakeStorage(), &fakePublisher{})

		rec := do(t, router, http.MethodPost, "/api/cart/u1/checkout", deliveryBody)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("invalid fulfillment", func(t *testing.T) {
		router := newTestRouter(newFakeStorage(), &fakePublisher{})

		rec := do(t, router, http.MethodPost, "/api/cart/u1/checkout", `{"method":"delivery"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("publish failure leaves cart intact", func(t *testing.T) {
		publisher := &fakePublisher{err: errors.New("broker down")}
		router := newTestRouter(newFakeStorage(), publisher)
		do(t, router, http.MethodPost, "/api/cart/u1/items", `{"id":"p1","name":"Widget","price":10,"stock":5}`)

		rec := do(t, router, http.MethodPost, "/api/cart/u1/checkout", deliveryBody)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		resp := decodeCart(t, do(t, router, http.MethodGet, "/api/cart/u1", ""))
		if resp.TotalItems != 1 {
			t.Fatalf("cart must not be cleared when publish fails, got %+v", resp)
		}
	})

	t.Run("success publishes then clears once", func(t *testing.T) {
		publisher := &fakePublisher{}
		storage := newFakeStorage()
		router := newTestRouter(storage, publisher)
		do(t, router, http.MethodPost, "/api/cart/u1/items", `{"id":"p1","name":"Widget","price":10,"stock":5}`)
		do(t, router, http.MethodPost, "/api/cart/u1/items", `{"id":"p1","name":"Widget","price":10,"stock":5}`)

		rec := do(t, router, http.MethodPost, "/api/cart/u1/checkout", deliveryBody)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if len(publisher.calls) != 1 {
			t.Fatalf("expected exactly one publish, got %d", len(publisher.calls))
		}
		call := publisher.calls[0]
		if call.userID != "u1" || len(call.items) != 1 || call.items[0].Quantity != 2 {
			t.Fatalf("unexpected publish call %+v", call)
		}
		if call.fulfillment.Method != contracts.FulfillmentDelivery || call.fulfillment.Address != "1 Main St" {
			t.Fatalf("unexpected fulfillment %+v", call.fulfillment)
		}

		resp := decodeCart(t, do(t, router, http.MethodGet, "/api/cart/u1", ""))
		if resp.TotalItems != 0 {
			t.Fatalf("expected cleared cart after checkout, got %+v", resp)
		}
		if len(storage.slots["u1"]) != 0 {
			t.Fatalf("expected cleared slot, got %+v", storage.slots["u1"])
		}
	})

	t.Run("propagates correlation and causation headers", func(t *testing.T) {
		publisher := &fakePublisher{}
		router := newTestRouter(newFakeStorage(), publisher)
		do(t, router, http.MethodPost, "/api/cart/u1/items", `{"id":"p1","name":"Widget","price":10,"stock":5}`)

		req := httptest.NewRequest(http.MethodPost, "/api/cart/u1/checkout", bytes.NewBufferString(deliveryBody))
		req.Header.Set("X-Correlation-Id", "123e4567-e89b-12d3-a456-426614174000")
		req.Header.Set("X-Causation-Id", "223e4567-e89b-12d3-a456-426614174000")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		meta := publisher.calls[0].meta
		if meta.CorrelationID != "123e4567-e89b-12d3-a456-426614174000" {
			t.Fatalf("unexpected correlation id %s", meta.CorrelationID)
		}
		if meta.CausationID != "223e4567-e89b-12d3-a456-426614174000" {
			t.Fatalf("unexpected causation id %s", meta.CausationID)
		}
	})

	t.Run("generates correlation id when missing", func(t *testing.T) {
		publisher := &fakePublisher{}
		router := newTestRouter(newFakeStorage(), publisher)
		do(t, router, http.MethodPost, "/api/cart/u1/items", `{"id":"p1","name":"Widget","price":10,"stock":5}`)

		rec := do(t, router, http.MethodPost, "/api/cart/u1/checkout", `{"method":"pickup","pickup_date":"2024-02-01","pickup_time":"10:30"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		meta := publisher.calls[0].meta
		if meta.CorrelationID == "" {
			t.Fatalf("expected correlation id to be generated")
		}
		if _, err := uuid.Parse(meta.CorrelationID); err != nil {
			t.Fatalf("expected correlation id to be a valid uuid, got %v", err)
		}
		if meta.CausationID != "" {
			t.Fatalf("did not expect causation id when header missing, got %s", meta.CausationID)
		}
	})
}
