package httpx

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/jpcardenas/retail-backoffice/internal/events"
	kafkax "github.com/jpcardenas/retail-backoffice/internal/kafka"
	"github.com/jpcardenas/retail-backoffice/internal/models"
	"github.com/jpcardenas/retail-backoffice/internal/redisx"
	"github.com/jpcardenas/retail-backoffice/internal/store"
)

type OnlineOrdersHandler struct {
	DB       *sql.DB
	Producer *kafkax.Producer
	Redis    *redis.Client
	Service  string
}

type onlineItemReq struct {
	ProductID       int64                   `json:"product_id"`
	Name            string                  `json:"name"`
	SKU             string                  `json:"sku"`
	Quantity        int                     `json:"quantity"`
	Price           decimal.Decimal         `json:"price"`
	SelectedVariant *models.SelectedVariant `json:"selected_variant"`
}

type createOnlineOrderReq struct {
	Customer       models.OnlineCustomer `json:"customer"`
	Items          []onlineItemReq       `json:"items"`
	DiscountAmount decimal.Decimal       `json:"discount_amount"`
	ShippingCost   decimal.Decimal       `json:"shipping_cost"`
	DeliveryType   string                `json:"delivery_type"`
	PaymentMethod  string                `json:"payment_method"`
	Notes          string                `json:"notes"`
}

type rejectReq struct {
	Reason string `json:"reason"`
}

func (h *OnlineOrdersHandler) Register(r *chi.Mux) {
	r.Post("/online-orders", h.create)
	r.Get("/online-orders", h.list)
	r.Get("/online-orders/stats", h.stats)
	r.Get("/online-orders/{id}", h.get)
	r.Get("/online-orders/{id}/status", h.getStatus)
	r.Post("/online-orders/{id}/confirm", h.confirm)
	r.Post("/online-orders/{id}/reject", h.reject)
	r.Patch("/online-orders/{id}/status", h.updateStatus)
	r.Post("/online-orders/{id}/return", h.processReturn)
}

func (h *OnlineOrdersHandler) cacheStatus(ctx context.Context, order *models.OnlineOrder) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOnlineOrderStatus, order.ID)
	body, _ := json.Marshal(map[string]string{
		"order_number": order.OrderNumber,
		"status":       order.Status,
	})
	_ = h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
}

func (h *OnlineOrdersHandler) publish(eventType string, orderID int64, payload any) {
	if h.Producer == nil {
		return
	}
	ev, err := events.NewEnvelope(eventType, h.Service, fmt.Sprint(orderID), payload)
	if err != nil {
		return
	}
	h.Producer.Publish(events.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
	)
}

func (h *OnlineOrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createOnlineOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	items := make([]store.OnlineItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, store.OnlineItemInput{
			ProductID:       it.ProductID,
			Name:            it.Name,
			SKU:             it.SKU,
			Quantity:        it.Quantity,
			Price:           it.Price,
			SelectedVariant: it.SelectedVariant,
		})
	}

	order, err := store.CreateOnlineOrder(ctx, h.DB, store.CreateOnlineOrderRequest{
		Customer:       req.Customer,
		Items:          items,
		DiscountAmount: req.DiscountAmount,
		ShippingCost:   req.ShippingCost,
		DeliveryType:   req.DeliveryType,
		PaymentMethod:  req.PaymentMethod,
		Notes:          req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, order)

	lines := make([]events.ItemLine, 0, len(order.Items))
	for _, it := range order.Items {
		lines = append(lines, events.ItemLine{ProductID: it.ProductID, Name: it.Name, Qty: it.Quantity})
	}
	h.publish(events.EventOnlineOrderPlaced, order.ID, events.OnlineOrderPlacedPayload{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.Customer.Name,
		CustomerEmail: order.Customer.Email,
		Total:         order.Total,
		Items:         lines,
	})

	writeJSON(w, http.StatusCreated, order)
}

func (h *OnlineOrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	order, err := store.GetOnlineOrder(ctx, h.DB, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// getStatus serves the storefront's order-tracking poll from Redis when it
// can, falling back to the database and repopulating the cache.
func (h *OnlineOrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOnlineOrderStatus, id)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	order, err := store.GetOnlineOrder(ctx, h.DB, id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, map[string]string{
		"order_number": order.OrderNumber,
		"status":       order.Status,
	})
}

func (h *OnlineOrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	page, err := store.ListOnlineOrders(ctx, h.DB, r.URL.Query().Get("status"),
		queryInt(r, "page", 1), queryInt(r, "page_size", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *OnlineOrdersHandler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, redisx.KeyOnlineStats).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	stats, err := store.GetOnlineOrderStats(ctx, h.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Redis != nil {
		if body, err := json.Marshal(stats); err == nil {
			_ = h.Redis.Set(ctx, redisx.KeyOnlineStats, body, redisx.TTLStats).Err()
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *OnlineOrdersHandler) confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, err := store.ConfirmOnlineOrder(ctx, h.DB, id, staffID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, order)
	h.publish(events.EventOnlineOrderConfirmed, order.ID, events.OnlineOrderConfirmedPayload{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.Customer.Name,
		CustomerEmail: order.Customer.Email,
		ConfirmedBy:   staffID(r),
	})

	writeJSON(w, http.StatusOK, order)
}

func (h *OnlineOrdersHandler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req rejectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reason is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := store.RejectOnlineOrder(ctx, h.DB, id, req.Reason, staffID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, order)
	h.publish(events.EventOnlineOrderRejected, order.ID, events.OnlineOrderRejectedPayload{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.Customer.Email,
		Reason:        req.Reason,
	})

	writeJSON(w, http.StatusOK, order)
}

func (h *OnlineOrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req statusUpdateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, previous, err := store.UpdateOnlineOrderStatus(ctx, h.DB, id, req.Status, staffID(r), req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, order)
	h.publish(events.EventOnlineStatusChanged, order.ID, events.OnlineStatusChangedPayload{
		OrderID:   order.ID,
		From:      previous,
		To:        order.Status,
		UpdatedBy: staffID(r),
	})

	writeJSON(w, http.StatusOK, order)
}

func (h *OnlineOrdersHandler) processReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req returnReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reason is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, err := store.ProcessOnlineReturn(ctx, h.DB, id, store.ReturnRequest{
		Reason:            req.Reason,
		Notes:             req.Notes,
		RefundRequested:   req.RefundRequested,
		ExchangeProductID: req.ExchangeProductID,
		RestoreStock:      req.RestoreStock,
	}, staffID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, order)
}
