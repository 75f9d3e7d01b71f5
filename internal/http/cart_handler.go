package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/freshcart/cart-service-go/internal/cart"
	"github.com/freshcart/cart-service-go/internal/contracts"
	"github.com/freshcart/cart-service-go/internal/events"
)

type CartEventsPublisher interface {
	PublishCartCheckedOut(ctx context.Context, userID string, items []cart.Item, f contracts.Fulfillment, meta events.PublishMetadata) error
}

type CartHandler struct {
	carts     *cart.Manager
	publisher CartEventsPublisher
	logger    *slog.Logger
}

func NewCartHandler(carts *cart.Manager, publisher CartEventsPublisher, logger *slog.Logger) *CartHandler {
	return &CartHandler{carts: carts, publisher: publisher, logger: logger}
}

type cartResponse struct {
	UserID     string      `json:"userId"`
	Items      []cart.Item `json:"items"`
	TotalItems int         `json:"totalItems"`
	TotalPrice float64     `json:"totalPrice"`
	IsOpen     bool        `json:"isOpen"`

	// PersistenceDegraded flags that the mutation applied in memory but the
	// write-through failed. Never an HTTP error; the cart keeps working.
	PersistenceDegraded bool `json:"persistenceDegraded,omitempty"`
}

func (h *CartHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "cart-service"})
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing userId")
		return
	}

	ctx, cancel := requestCtx(r)
	defer cancel()

	store := h.carts.Store(ctx, userID)
	writeJSON(w, http.StatusOK, snapshot(userID, store, nil))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing userId")
		return
	}

	var p cart.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if p.ID == "" || p.Name == "" || p.Price < 0 || p.Stock < 0 {
		writeError(w, http.StatusBadRequest, "invalid product")
		return
	}

	ctx, cancel := requestCtx(r)
	defer cancel()

	store := h.carts.Store(ctx, userID)
	err := store.AddItem(ctx, p)
	if err != nil {
		h.logger.Warn("add item applied without persistence", "userId", userID, "error", err)
	}

	writeJSON(w, http.StatusOK, snapshot(userID, store, err))
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	productID := chi.URLParam(r, "productId")
	if userID == "" || productID == "" {
		writeError(w, http.StatusBadRequest, "missing userId or productId")
		return
	}

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := requestCtx(r)
	defer cancel()

	store := h.carts.Store(ctx, userID)
	err := store.UpdateQuantity(ctx, productID, req.Quantity)
	if err != nil {
		h.logger.Warn("quantity update applied without persistence", "userId", userID, "error", err)
	}

	writeJSON(w, http.StatusOK, snapshot(userID, store, err))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	productID := chi.URLParam(r, "productId")
	if userID == "" || productID == "" {
		writeError(w, http.StatusBadRequest, "missing userId or productId")
		return
	}

	ctx, cancel := requestCtx(r)
	defer cancel()

	store := h.carts.Store(ctx, userID)
	err := store.RemoveItem(ctx, productID)
	if err != nil {
		h.logger.Warn("remove applied without persistence", "userId", userID, "error", err)
	}

	writeJSON(w, http.StatusOK, snapshot(userID, store, err))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing userId")
		return
	}

	ctx, cancel := requestCtx(r)
	defer cancel()

	store := h.carts.Store(ctx, userID)
	err := store.Clear(ctx)
	if err != nil {
		h.logger.Warn("clear applied without persistence", "userId", userID, "error", err)
	}

	writeJSON(w, http.StatusOK, snapshot(userID, store, err))
}

func (h *CartHandler) OpenCart(w http.ResponseWriter, r *http.Request) {
	h.setVisibility(w, r, true)
}

func (h *CartHandler) CloseCart(w http.ResponseWriter, r *http.Request) {
	h.setVisibility(w, r, false)
}

func (h *CartHandler) setVisibility(w http.ResponseWriter, r *http.Request, open bool) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing userId")
		return
	}

	ctx, cancel := requestCtx(r)
	defer cancel()

	store := h.carts.Store(ctx, userID)
	if open {
		store.Open()
	} else {
		store.Close()
	}

	writeJSON(w, http.StatusOK, snapshot(userID, store, nil))
}

type checkoutRequest struct {
	Method     string `json:"method"`
	Address    string `json:"address"`
	PickupDate string `json:"pickup_date"`
	PickupTime string `json:"pickup_time"`
}

func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing userId")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	fulfillment := contracts.Fulfillment{
		Method:     req.Method,
		Address:    req.Address,
		PickupDate: req.PickupDate,
		PickupTime: req.PickupTime,
	}
	if err := fulfillment.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := requestCtx(r)
	defer cancel()

	store := h.carts.Store(ctx, userID)
	items := store.Items()
	if len(items) == 0 {
		writeError(w, http.StatusConflict, "cart is empty")
		return
	}

	meta := publishMetadata(r)
	if err := h.publisher.PublishCartCheckedOut(ctx, userID, items, fulfillment, meta); err != nil {
		h.logger.Error("publish CartCheckedOut failed", "userId", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to publish checkout event")
		return
	}

	// Clear exactly once, only after the event is out
	err := store.Clear(ctx)
	if err != nil {
		h.logger.Warn("post-checkout clear applied without persistence", "userId", userID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "checkout completed",
		"totalPrice":          totalOf(items),
		"persistenceDegraded": err != nil,
	})
}

func publishMetadata(r *http.Request) events.PublishMetadata {
	correlationID := r.Header.Get("X-Correlation-Id")
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return events.PublishMetadata{
		CorrelationID: correlationID,
		CausationID:   r.Header.Get("X-Causation-Id"),
	}
}

func snapshot(userID string, store *cart.Store, persistErr error) cartResponse {
	items := store.Items()
	return cartResponse{
		UserID:              userID,
		Items:               items,
		TotalItems:          store.TotalItems(),
		TotalPrice:          store.TotalPrice(),
		IsOpen:              store.IsOpen(),
		PersistenceDegraded: persistErr != nil,
	}
}

func totalOf(items []cart.Item) float64 {
	total := 0.0
	for _, it := range items {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

func requestCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 3*time.Second)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}
