package httpx

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/jpcardenas/retail-backoffice/internal/events"
	kafkax "github.com/jpcardenas/retail-backoffice/internal/kafka"
	"github.com/jpcardenas/retail-backoffice/internal/models"
	"github.com/jpcardenas/retail-backoffice/internal/store"
)

type OrdersHandler struct {
	DB       *sql.DB
	Producer *kafkax.Producer
	Service  string
}

type orderCustomerReq struct {
	Identifier     string `json:"identifier"`
	Name           string `json:"name"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	Address        string `json:"address"`
	City           string `json:"city"`
	State          string `json:"state"`
	ZipCode        string `json:"zip_code"`
	Notes          string `json:"notes"`
}

type orderItemReq struct {
	ProductID       int64                   `json:"product_id"`
	Name            string                  `json:"name"`
	SKU             string                  `json:"sku"`
	Quantity        int                     `json:"quantity"`
	UnitPrice       decimal.Decimal         `json:"unit_price"`
	SelectedVariant *models.SelectedVariant `json:"selected_variant"`
}

type createOrderReq struct {
	Customer      orderCustomerReq `json:"customer"`
	Items         []orderItemReq   `json:"items"`
	Tax           decimal.Decimal  `json:"tax"`
	Discount      decimal.Decimal  `json:"discount"`
	Shipping      decimal.Decimal  `json:"shipping"`
	DeliveryType  string           `json:"delivery_type"`
	PaymentMethod string           `json:"payment_method"`
	PaymentStatus string           `json:"payment_status"`
	Notes         string           `json:"notes"`
	InternalNotes string           `json:"internal_notes"`
}

type statusUpdateReq struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type cancelReq struct {
	Reason string `json:"reason"`
}

type returnReq struct {
	Reason            string `json:"reason"`
	Notes             string `json:"notes"`
	RefundRequested   bool   `json:"refund_requested"`
	ExchangeProductID *int64 `json:"exchange_product_id"`
	RestoreStock      *bool  `json:"restore_stock"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.create)
	r.Get("/orders", h.list)
	r.Get("/orders/feed", h.feed)
	r.Get("/orders/today", h.today)
	r.Get("/orders/{id}", h.get)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/return", h.processReturn)
}

// staffID reads the authenticated staff member's id from the gateway
// header. Absent or malformed ids are treated as anonymous.
func staffID(r *http.Request) string {
	return r.Header.Get("X-Staff-Id")
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	items := make([]store.OrderItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, store.OrderItemInput{
			ProductID:       it.ProductID,
			Name:            it.Name,
			SKU:             it.SKU,
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice,
			SelectedVariant: it.SelectedVariant,
		})
	}

	order, err := store.CreateOrder(ctx, h.DB, store.CreateOrderRequest{
		Customer: store.CustomerInput{
			Identifier:     req.Customer.Identifier,
			Name:           req.Customer.Name,
			FirstName:      req.Customer.FirstName,
			LastName:       req.Customer.LastName,
			DocumentType:   req.Customer.DocumentType,
			DocumentNumber: req.Customer.DocumentNumber,
			Phone:          req.Customer.Phone,
			Email:          req.Customer.Email,
			Address:        req.Customer.Address,
			City:           req.Customer.City,
			State:          req.Customer.State,
			ZipCode:        req.Customer.ZipCode,
			Notes:          req.Customer.Notes,
		},
		Items:         items,
		Tax:           req.Tax,
		Discount:      req.Discount,
		Shipping:      req.Shipping,
		DeliveryType:  req.DeliveryType,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: req.PaymentStatus,
		Notes:         req.Notes,
		InternalNotes: req.InternalNotes,
		CreatedBy:     store.ValidateProcessorID(staffID(r)),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.publishOrderCreated(order)
	writeJSON(w, http.StatusCreated, order)
}

func (h *OrdersHandler) publishOrderCreated(order *models.Order) {
	if h.Producer == nil {
		return
	}
	lines := make([]events.ItemLine, 0, len(order.Items))
	for _, it := range order.Items {
		lines = append(lines, events.ItemLine{ProductID: it.ProductID, Name: it.Name, Qty: it.Quantity})
	}
	ev, err := events.NewEnvelope(events.EventOrderCreated, h.Service, order.OrderNumber, events.OrderCreatedPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Total:       order.Total,
		Items:       lines,
	})
	if err != nil {
		return
	}
	h.Producer.Publish(events.PartitionKey(order.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.EventType)},
	)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	order, err := store.GetOrder(ctx, h.DB, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	filters := store.OrderFilters{
		Status:        r.URL.Query().Get("status"),
		PaymentStatus: r.URL.Query().Get("payment_status"),
	}
	page, err := store.ListOrders(ctx, h.DB, filters, queryInt(r, "page", 1), queryInt(r, "page_size", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *OrdersHandler) feed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	page, err := store.ListOrdersCursor(ctx, h.DB, r.URL.Query().Get("cursor"), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *OrdersHandler) today(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	orders, err := store.GetTodaysOrders(ctx, h.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := store.UpdateOrderStatus(ctx, h.DB, id, req.Status, store.ValidateProcessorID(staffID(r)))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req cancelReq
	_ = json.NewDecoder(r.Body).Decode(&req)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, err := store.CancelOrder(ctx, h.DB, id, req.Reason, store.ValidateProcessorID(staffID(r)))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) processReturn(w http.ResponseWriter, r *http.Request) {
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

	order, err := store.ProcessReturn(ctx, h.DB, id, store.ReturnRequest{
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
	writeJSON(w, http.StatusOK, order)
}
