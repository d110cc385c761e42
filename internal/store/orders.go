package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jpcardenas/retail-backoffice/internal/database"
	"github.com/jpcardenas/retail-backoffice/internal/models"
)

type OrderItemInput struct {
	ProductID       int64
	Name            string
	SKU             string
	Quantity        int
	UnitPrice       decimal.Decimal
	SelectedVariant *models.SelectedVariant
}

type CreateOrderRequest struct {
	Customer      CustomerInput
	Items         []OrderItemInput
	Tax           decimal.Decimal
	Discount      decimal.Decimal
	Shipping      decimal.Decimal
	DeliveryType  string
	PaymentMethod string
	PaymentStatus string
	Notes         string
	InternalNotes string
	CreatedBy     *uuid.UUID
}

type ReturnRequest struct {
	Reason            string
	Notes             string
	RefundRequested   bool
	ExchangeProductID *int64
	// RestoreStock defaults to true; pass false to keep a damaged return
	// out of sellable inventory.
	RestoreStock *bool
}

// generateOrderNumber produces numbers like ORD-250829-483921: the prefix,
// the date, and the last six digits of the unix-millisecond clock.
func generateOrderNumber(prefix string) string {
	now := time.Now()
	return fmt.Sprintf("%s-%s-%06d", prefix, now.Format("060102"), now.UnixMilli()%1000000)
}

// ValidateProcessorID parses a caller-supplied staff identifier. Anything
// that is not a well-formed UUID ("admin", a nickname, garbage) comes back
// nil rather than failing the operation.
func ValidateProcessorID(s string) *uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

const orderColumns = `id, order_number, customer_id, customer, subtotal, tax, discount, shipping, total,
	status, order_type, delivery_type, payment_method, payment_status, paid_amount,
	notes, internal_notes, return_info, created_by, updated_by, created_at, updated_at, version`

func scanOrder(row interface{ Scan(...any) error }) (*models.Order, error) {
	order := &models.Order{}
	var customer, returnInfo []byte

	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.CustomerID,
		&customer,
		&order.Subtotal,
		&order.Tax,
		&order.Discount,
		&order.Shipping,
		&order.Total,
		&order.Status,
		&order.OrderType,
		&order.DeliveryType,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.PaidAmount,
		&order.Notes,
		&order.InternalNotes,
		&returnInfo,
		&order.CreatedBy,
		&order.UpdatedBy,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return nil, err
	}

	if len(customer) > 0 {
		if err := json.Unmarshal(customer, &order.Customer); err != nil {
			return nil, fmt.Errorf("decode customer snapshot: %w", err)
		}
	}
	if len(returnInfo) > 0 {
		order.ReturnInfo = &models.ReturnInfo{}
		if err := json.Unmarshal(returnInfo, order.ReturnInfo); err != nil {
			return nil, fmt.Errorf("decode return info: %w", err)
		}
	}

	return order, nil
}

func buildCustomerSnapshot(in CustomerInput, customer *models.Customer) models.CustomerSnapshot {
	snapshot := models.CustomerSnapshot{
		Name:           in.Name,
		Email:          in.Email,
		Phone:          in.Phone,
		DocumentType:   in.DocumentType,
		DocumentNumber: in.DocumentNumber,
		Notes:          in.Notes,
		Address: models.SnapshotAddress{
			Street:  in.Address,
			City:    in.City,
			State:   in.State,
			ZipCode: in.ZipCode,
		},
	}
	if snapshot.Name == "" {
		snapshot.Name = in.FirstName
		if in.LastName != "" {
			snapshot.Name += " " + in.LastName
		}
	}
	if snapshot.Phone == "" {
		snapshot.Phone = in.Identifier
	}

	if customer != nil {
		snapshot.CustomerID = &customer.ID
		if snapshot.Name == "" {
			snapshot.Name = customer.FullName()
		}
		if snapshot.Email == "" {
			snapshot.Email = customer.Email
		}
		if snapshot.DocumentNumber == "" {
			snapshot.DocumentType = customer.DocumentType
			snapshot.DocumentNumber = customer.DocumentNumber
		}
		if snapshot.Address.Street == "" {
			if addr := customer.PrimaryAddress(); addr != nil {
				snapshot.Address = models.SnapshotAddress{
					Street:  addr.Street,
					City:    addr.City,
					State:   addr.State,
					ZipCode: addr.ZipCode,
					Country: addr.Country,
				}
			}
		}
	}

	return snapshot
}

func reservations(items []OrderItemInput) []Reservation {
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

// CreateOrder records a point-of-sale order. Availability checks, stock
// reduction and the order insert share one serializable transaction, so a
// failure on any line leaves no trace of the order. The customer directory
// rollup happens after commit and is best-effort.
func CreateOrder(ctx context.Context, db *sql.DB, req CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", database.ErrInvalidInput)
	}
	for _, it := range req.Items {
		if it.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for %s must be at least 1", database.ErrInvalidInput, it.Name)
		}
	}

	var customer *models.Customer
	if req.Customer.Identifier != "" {
		var err error
		customer, err = CreateOrUpdateCustomer(ctx, db, req.Customer)
		if err != nil {
			// The directory is auxiliary; the sale proceeds with the
			// snapshot alone.
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("identifier", req.Customer.Identifier).
				Msg("customer upsert failed, continuing without directory link")
			customer = nil
		}
	}

	snapshot := buildCustomerSnapshot(req.Customer, customer)
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode customer snapshot: %w", err)
	}

	subtotal := decimal.Zero
	for _, it := range req.Items {
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	total := subtotal.Add(req.Tax).Add(req.Shipping).Sub(req.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	paymentStatus := req.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = models.PaymentPending
	}
	paidAmount := decimal.Zero
	if paymentStatus == models.PaymentPaid {
		paidAmount = total
	}
	deliveryType := req.DeliveryType
	if deliveryType == "" {
		deliveryType = "pickup"
	}

	var orderID int64
	err = database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		items := reservations(req.Items)
		if err := ValidateAvailability(ctx, tx, items); err != nil {
			return err
		}

		err := tx.QueryRowContext(ctx,
			`INSERT INTO orders (order_number, customer_id, customer, subtotal, tax, discount, shipping, total,
			                     status, order_type, delivery_type, payment_method, payment_status, paid_amount,
			                     notes, internal_notes, created_by, created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pos', $10, $11, $12, $13, $14, $15, $16, NOW(), NOW(), 1)
			 RETURNING id`,
			generateOrderNumber("ORD"), snapshot.CustomerID, snapshotJSON,
			subtotal, req.Tax, req.Discount, req.Shipping, total,
			models.OrderPending, deliveryType, req.PaymentMethod, paymentStatus, paidAmount,
			req.Notes, req.InternalNotes, req.CreatedBy).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, it := range req.Items {
			variant, err := marshalSelectedVariant(it.SelectedVariant)
			if err != nil {
				return err
			}
			totalPrice := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
			_, err = tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, product_id, name, sku, quantity, unit_price, total_price, selected_variant, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
				orderID, it.ProductID, it.Name, it.SKU, it.Quantity, it.UnitPrice, totalPrice, variant)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}

		return CommitReduction(ctx, tx, items)
	})
	if err != nil {
		return nil, database.Internalize(err, "create order")
	}

	if snapshot.CustomerID != nil {
		if err := UpdatePurchaseStats(ctx, db, *snapshot.CustomerID, total); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Int64("customer_id", *snapshot.CustomerID).
				Int64("order_id", orderID).
				Msg("purchase stats rollup failed")
		}
	}

	order, err := GetOrder(ctx, db, orderID)
	return order, database.Internalize(err, "create order")
}

func marshalSelectedVariant(v *models.SelectedVariant) ([]byte, error) {
	if !v.HasSelections() {
		return nil, nil
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode selected variant: %w", err)
	}
	return encoded, nil
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := getOrderItems(ctx, db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func getOrderItems(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, name, sku, quantity, unit_price, total_price, selected_variant, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		var variant []byte
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.SKU,
			&item.Quantity,
			&item.UnitPrice,
			&item.TotalPrice,
			&variant,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
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

func getOrderForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	order, err := scanOrder(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order %d: %w", id, err)
	}

	items, err := getOrderItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func reservationsFromOrderItems(items []models.OrderItem) []Reservation {
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

type OrderFilters struct {
	Status        string
	PaymentStatus string
}

func ListOrders(ctx context.Context, db *sql.DB, filters OrderFilters, page, pageSize int) (*OffsetPage, error) {
	where := "TRUE"
	args := []any{}
	if filters.Status != "" {
		args = append(args, filters.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.PaymentStatus != "" {
		args = append(args, filters.PaymentStatus)
		where += fmt.Sprintf(" AND payment_status = $%d", len(args))
	}

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`SELECT `+orderColumns+`
		FROM orders
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
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

// ListOrdersCursor pages the order feed newest-first with a keyset cursor,
// for clients that poll the register feed continuously.
func ListOrdersCursor(ctx context.Context, db *sql.DB, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE (created_at, id) < ($1, $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	rows, err := db.QueryContext(ctx, query, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// UpdateOrderStatus sets a POS order's status. Any status on the
// allow-list may be set from any current state; the returned state is
// reachable only through ProcessReturn.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, id int64, status string, updatedBy *uuid.UUID) (*models.Order, error) {
	if !models.ValidOrderStatus(status) {
		return nil, fmt.Errorf("%w: %q cannot be set through a status update", database.ErrInvalidStatus, status)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, updated_by = $2, updated_at = NOW(), version = version + 1
		 WHERE id = $3`,
		status, updatedBy, id)
	if err != nil {
		return nil, database.Internalize(err, "update order status")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, database.Internalize(err, "update order status")
	}
	if rows == 0 {
		return nil, database.ErrOrderNotFound
	}

	order, err := GetOrder(ctx, db, id)
	return order, database.Internalize(err, "update order status")
}

// CancelOrder cancels a POS order and puts every reserved unit back on the
// shelf in the same transaction.
func CancelOrder(ctx context.Context, db *sql.DB, id int64, reason string, cancelledBy *uuid.UUID) (*models.Order, error) {
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		order, err := getOrderForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		switch order.Status {
		case models.OrderCancelled:
			return fmt.Errorf("%w: order is already cancelled", database.ErrInvalidStatus)
		case models.OrderDelivered:
			return fmt.Errorf("%w: a delivered order cannot be cancelled, process a return instead", database.ErrInvalidStatus)
		case models.OrderReturned:
			return fmt.Errorf("%w: order has already been returned", database.ErrInvalidStatus)
		}

		if err := RestoreQuantity(ctx, tx, reservationsFromOrderItems(order.Items)); err != nil {
			return err
		}

		notes := order.InternalNotes
		if reason != "" {
			if notes != "" {
				notes += "\n"
			}
			notes += "Cancelled: " + reason
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders
			 SET status = $1, internal_notes = $2, updated_by = $3, updated_at = NOW(), version = version + 1
			 WHERE id = $4`,
			models.OrderCancelled, notes, cancelledBy, id)
		if err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, database.Internalize(err, "cancel order")
	}

	order, err := GetOrder(ctx, db, id)
	return order, database.Internalize(err, "cancel order")
}

// ProcessReturn marks a POS order returned, restores stock (unless told
// otherwise) and records who handled it. POS returns have no status gate:
// the register accepts a return whatever state the order reached.
func ProcessReturn(ctx context.Context, db *sql.DB, id int64, req ReturnRequest, processedBy string) (*models.Order, error) {
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		order, err := getOrderForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		if order.Status == models.OrderReturned {
			return fmt.Errorf("%w: order has already been returned", database.ErrInvalidStatus)
		}

		restore := req.RestoreStock == nil || *req.RestoreStock
		if restore {
			if err := RestoreQuantity(ctx, tx, reservationsFromOrderItems(order.Items)); err != nil {
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

		_, err = tx.ExecContext(ctx,
			`UPDATE orders
			 SET status = $1, return_info = $2, updated_by = $3, updated_at = NOW(), version = version + 1
			 WHERE id = $4`,
			models.OrderReturned, infoJSON, info.ProcessedBy, id)
		if err != nil {
			return fmt.Errorf("process return: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, database.Internalize(err, "process return")
	}

	order, err := GetOrder(ctx, db, id)
	return order, database.Internalize(err, "process return")
}
