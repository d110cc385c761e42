package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jpcardenas/retail-backoffice/internal/database"
	"github.com/jpcardenas/retail-backoffice/internal/models"
)

type OnlineItemInput struct {
	ProductID       int64
	Name            string
	SKU             string
	Quantity        int
	Price           decimal.Decimal
	SelectedVariant *models.SelectedVariant
}

type CreateOnlineOrderRequest struct {
	Customer       models.OnlineCustomer
	Items          []OnlineItemInput
	DiscountAmount decimal.Decimal
	ShippingCost   decimal.Decimal
	DeliveryType   string
	PaymentMethod  string
	Notes          string
}

const onlineOrderColumns = `id, order_number, customer, subtotal, discount_amount, shipping_cost, total,
	status, delivery_type, payment_method, payment_status, notes, internal_notes,
	rejection_reason, return_info, email_sent, confirmation_email_sent, status_history,
	created_at, updated_at, version`

func scanOnlineOrder(row interface{ Scan(...any) error }) (*models.OnlineOrder, error) {
	order := &models.OnlineOrder{}
	var customer, returnInfo, history []byte

	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&customer,
		&order.Subtotal,
		&order.DiscountAmount,
		&order.ShippingCost,
		&order.Total,
		&order.Status,
		&order.DeliveryType,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.Notes,
		&order.InternalNotes,
		&order.RejectionReason,
		&returnInfo,
		&order.EmailSent,
		&order.ConfirmationEmailSent,
		&history,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return nil, err
	}

	if len(customer) > 0 {
		if err := json.Unmarshal(customer, &order.Customer); err != nil {
			return nil, fmt.Errorf("decode customer: %w", err)
		}
	}
	if len(returnInfo) > 0 {
		order.ReturnInfo = &models.ReturnInfo{}
		if err := json.Unmarshal(returnInfo, order.ReturnInfo); err != nil {
			return nil, fmt.Errorf("decode return info: %w", err)
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &order.StatusHistory); err != nil {
			return nil, fmt.Errorf("decode status history: %w", err)
		}
	}

	return order, nil
}

func onlineReservations(items []OnlineItemInput) []Reservation {
	out := make([]Reservation, 0, len(items))
	for _, it := range items {
		r := Reservation{ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity}
		if it.SelectedVariant != nil {
			r.SelectedVariant = *it.SelectedVariant
		}
		out = append(out, r)
	}
	return out
}

func reservationsFromOnlineItems(items []models.OnlineOrderItem) []Reservation {
	out := make([]Reservation, 0, len(items))
	for _, it := range items {
		r := Reservation{ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity}
		if it.SelectedVariant != nil {
			r.SelectedVariant = *it.SelectedVariant
		}
		out = append(out, r)
	}
	return out
}

// CreateOnlineOrder records a storefront order awaiting confirmation.
// Availability is checked so obviously unfillable orders are refused up
// front, but no stock is reserved: units stay sellable until staff
// confirm the order.
func CreateOnlineOrder(ctx context.Context, db *sql.DB, req CreateOnlineOrderRequest) (*models.OnlineOrder, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", database.ErrInvalidInput)
	}
	for _, it := range req.Items {
		if it.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for %s must be at least 1", database.ErrInvalidInput, it.Name)
		}
	}
	if req.Customer.Name == "" || req.Customer.Phone == "" {
		return nil, fmt.Errorf("%w: customer name and phone are required", database.ErrInvalidInput)
	}

	customerJSON, err := json.Marshal(req.Customer)
	if err != nil {
		return nil, fmt.Errorf("encode customer: %w", err)
	}

	subtotal := decimal.Zero
	for _, it := range req.Items {
		subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	total := subtotal.Add(req.ShippingCost).Sub(req.DiscountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	deliveryType := req.DeliveryType
	if deliveryType == "" {
		deliveryType = "standard"
	}
	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "cash_on_delivery"
	}

	var orderID int64
	err = database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		if err := ValidateAvailability(ctx, tx, onlineReservations(req.Items)); err != nil {
			return err
		}

		err := tx.QueryRowContext(ctx,
			`INSERT INTO online_orders (order_number, customer, subtotal, discount_amount, shipping_cost, total,
			                            status, delivery_type, payment_method, payment_status, notes,
			                            created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW(), 1)
			 RETURNING id`,
			generateOrderNumber("WEB"), customerJSON, subtotal, req.DiscountAmount, req.ShippingCost, total,
			models.OnlinePendingConfirmation, deliveryType, paymentMethod, models.PaymentPending,
			req.Notes).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create online order: %w", err)
		}

		for _, it := range req.Items {
			variant, err := marshalSelectedVariant(it.SelectedVariant)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO online_order_items (order_id, product_id, name, sku, quantity, price, selected_variant, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
				orderID, it.ProductID, it.Name, it.SKU, it.Quantity, it.Price, variant)
			if err != nil {
				return fmt.Errorf("create online order item: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, database.Internalize(err, "create online order")
	}

	order, err := GetOnlineOrder(ctx, db, orderID)
	return order, database.Internalize(err, "create online order")
}

func GetOnlineOrder(ctx context.Context, db *sql.DB, id int64) (*models.OnlineOrder, error) {
	query := `SELECT ` + onlineOrderColumns + ` FROM online_orders WHERE id = $1`

	order, err := scanOnlineOrder(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get online order: %w", err)
	}

	items, err := getOnlineOrderItems(ctx, db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func getOnlineOrderItems(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, orderID int64) ([]models.OnlineOrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, name, sku, quantity, price, selected_variant, created_at
		 FROM online_order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get online order items: %w", err)
	}
	defer rows.Close()

	var items []models.OnlineOrderItem
	for rows.Next() {
		var item models.OnlineOrderItem
		var variant []byte
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.SKU,
			&item.Quantity,
			&item.Price,
			&variant,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan online order item: %w", err)
		}
		if len(variant) > 0 {
			item.SelectedVariant = &models.SelectedVariant{}
			if err := json.Unmarshal(variant, item.SelectedVariant); err != nil {
				return nil, fmt.Errorf("decode selected variant: %w", err)
			}
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func getOnlineOrderForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.OnlineOrder, error) {
	query := `SELECT ` + onlineOrderColumns + ` FROM online_orders WHERE id = $1 FOR UPDATE`

	order, err := scanOnlineOrder(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock online order %d: %w", id, err)
	}

	items, err := getOnlineOrderItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func ListOnlineOrders(ctx context.Context, db *sql.DB, status string, page, pageSize int) (*OffsetPage, error) {
	where := "TRUE"
	args := []any{}
	if status != "" {
		args = append(args, status)
		where = "status = $1"
	}

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM online_orders WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count online orders: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`SELECT `+onlineOrderColumns+`
		FROM online_orders
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list online orders: %w", err)
	}
	defer rows.Close()

	var orders []models.OnlineOrder
	for rows.Next() {
		order, err := scanOnlineOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan online order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage{
		Items:      orders,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// ConfirmOnlineOrder is where a storefront order actually claims stock.
// Availability is re-checked and reduced in one serializable transaction;
// units sold at the register since the order was placed make the
// confirmation fail rather than oversell.
func ConfirmOnlineOrder(ctx context.Context, db *sql.DB, id int64, confirmedBy string) (*models.OnlineOrder, error) {
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		order, err := getOnlineOrderForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		if order.Status != models.OnlinePendingConfirmation {
			return fmt.Errorf("%w: order has already been processed (status %s)", database.ErrInvalidStatus, order.Status)
		}

		items := reservationsFromOnlineItems(order.Items)
		if err := ValidateAvailability(ctx, tx, items); err != nil {
			return err
		}
		if err := CommitReduction(ctx, tx, items); err != nil {
			return err
		}

		notes := appendNote(order.InternalNotes, "Confirmed by: "+confirmedBy)
		_, err = tx.ExecContext(ctx,
			`UPDATE online_orders
			 SET status = $1, internal_notes = $2, updated_at = NOW(), version = version + 1
			 WHERE id = $3`,
			models.OnlineConfirmed, notes, id)
		if err != nil {
			return fmt.Errorf("confirm online order: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, database.Internalize(err, "confirm online order")
	}

	order, err := GetOnlineOrder(ctx, db, id)
	return order, database.Internalize(err, "confirm online order")
}

// RejectOnlineOrder declines a pending order. No stock was reserved, so
// nothing is restored.
func RejectOnlineOrder(ctx context.Context, db *sql.DB, id int64, reason, rejectedBy string) (*models.OnlineOrder, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: a rejection reason is required", database.ErrInvalidInput)
	}

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := getOnlineOrderForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		if order.Status != models.OnlinePendingConfirmation {
			return fmt.Errorf("%w: order has already been processed (status %s)", database.ErrInvalidStatus, order.Status)
		}

		notes := appendNote(order.InternalNotes, "Rejected by: "+rejectedBy)
		_, err = tx.ExecContext(ctx,
			`UPDATE online_orders
			 SET status = $1, rejection_reason = $2, internal_notes = $3, updated_at = NOW(), version = version + 1
			 WHERE id = $4`,
			models.OnlineRejected, reason, notes, id)
		if err != nil {
			return fmt.Errorf("reject online order: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, database.Internalize(err, "reject online order")
	}

	order, err := GetOnlineOrder(ctx, db, id)
	return order, database.Internalize(err, "reject online order")
}

// UpdateOnlineOrderStatus moves a confirmed order along the fulfillment
// graph. Every successful transition is appended to the order's status
// history. Cancelling after confirmation restores the reserved stock.
// The second return value is the status the order held before the update,
// read under the same row lock so it stays accurate under concurrency.
func UpdateOnlineOrderStatus(ctx context.Context, db *sql.DB, id int64, newStatus, updatedBy, notes string) (*models.OnlineOrder, string, error) {
	var previous string
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		order, err := getOnlineOrderForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		previous = order.Status

		if !models.OnlineCanTransition(order.Status, newStatus) {
			allowed := models.OnlineAllowedNext(order.Status)
			if len(allowed) == 0 {
				return fmt.Errorf("%w: %s is a terminal state", database.ErrInvalidStatus, order.Status)
			}
			return fmt.Errorf("%w: cannot go from %s to %s (allowed: %s)",
				database.ErrInvalidStatus, order.Status, newStatus, strings.Join(allowed, ", "))
		}

		if newStatus == models.OnlineCancelled {
			if err := RestoreQuantity(ctx, tx, reservationsFromOnlineItems(order.Items)); err != nil {
				return err
			}
		}

		entry := models.StatusHistoryEntry{
			Status:    newStatus,
			Timestamp: time.Now().UTC(),
			UpdatedBy: updatedBy,
			Notes:     notes,
		}
		entryJSON, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode status history entry: %w", err)
		}

		internalNotes := order.InternalNotes
		if notes != "" {
			internalNotes = appendNote(internalNotes, notes)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE online_orders
			 SET status = $1, internal_notes = $2,
			     status_history = status_history || $3::jsonb,
			     updated_at = NOW(), version = version + 1
			 WHERE id = $4`,
			newStatus, internalNotes, entryJSON, id)
		if err != nil {
			return fmt.Errorf("update online order status: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, "", database.Internalize(err, "update online order status")
	}

	order, err := GetOnlineOrder(ctx, db, id)
	return order, previous, database.Internalize(err, "update online order status")
}

// ProcessOnlineReturn handles a post-delivery return. Unlike the register,
// the storefront flow only accepts returns of delivered orders.
func ProcessOnlineReturn(ctx context.Context, db *sql.DB, id int64, req ReturnRequest, processedBy string) (*models.OnlineOrder, error) {
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		order, err := getOnlineOrderForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		if order.Status != models.OnlineDelivered {
			return fmt.Errorf("%w: only delivered orders can be returned (status %s)", database.ErrInvalidStatus, order.Status)
		}

		restore := req.RestoreStock == nil || *req.RestoreStock
		if restore {
			if err := RestoreQuantity(ctx, tx, reservationsFromOnlineItems(order.Items)); err != nil {
				return err
			}
		}

		info := models.ReturnInfo{
			Reason:            req.Reason,
			Notes:             req.Notes,
			RefundRequested:   req.RefundRequested,
			ExchangeProductID: req.ExchangeProductID,
			ProcessedBy:       ValidateProcessorID(processedBy),
			ProcessedAt:       time.Now().UTC(),
		}
		if req.RefundRequested {
			info.RefundAmount = order.Total
		}
		infoJSON, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("encode return info: %w", err)
		}

		entry := models.StatusHistoryEntry{
			Status:    models.OnlineReturned,
			Timestamp: info.ProcessedAt,
			UpdatedBy: processedBy,
			Notes:     req.Reason,
		}
		entryJSON, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode status history entry: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE online_orders
			 SET status = $1, return_info = $2,
			     status_history = status_history || $3::jsonb,
			     updated_at = NOW(), version = version + 1
			 WHERE id = $4`,
			models.OnlineReturned, infoJSON, entryJSON, id)
		if err != nil {
			return fmt.Errorf("process online return: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, database.Internalize(err, "process online return")
	}

	order, err := GetOnlineOrder(ctx, db, id)
	return order, database.Internalize(err, "process online return")
}

// MarkNewOrderEmailSent records that the order-received email went out.
// Called by the worker after the side effect succeeds.
func MarkNewOrderEmailSent(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE online_orders SET email_sent = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return database.Internalize(err, "mark email sent")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return database.Internalize(err, "mark email sent")
	}
	if rows == 0 {
		return database.ErrOrderNotFound
	}
	return nil
}

// MarkConfirmationEmailSent records that the confirmation email went out.
func MarkConfirmationEmailSent(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE online_orders SET confirmation_email_sent = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return database.Internalize(err, "mark confirmation email sent")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return database.Internalize(err, "mark confirmation email sent")
	}
	if rows == 0 {
		return database.ErrOrderNotFound
	}
	return nil
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
