package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jpcardenas/retail-backoffice/internal/models"
)

// SalesStats summarizes paid register sales over a period.
type SalesStats struct {
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	TotalSales    decimal.Decimal `json:"total_sales"`
	TotalOrders   int64           `json:"total_orders"`
	AverageOrder  decimal.Decimal `json:"average_order_value"`
	ItemsSold     int64           `json:"items_sold"`
	ReturnedCount int64           `json:"returned_count"`
}

// GetSalesStats aggregates paid POS orders created inside [from, to).
// Returned and cancelled orders are excluded from the revenue figures but
// returns are counted separately.
func GetSalesStats(ctx context.Context, db *sql.DB, from, to time.Time) (*SalesStats, error) {
	stats := &SalesStats{From: from, To: to}

	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0), COUNT(*), COALESCE(AVG(total), 0)
		 FROM orders
		 WHERE payment_status = $1
		   AND status NOT IN ($2, $3)
		   AND created_at >= $4 AND created_at < $5`,
		models.PaymentPaid, models.OrderReturned, models.OrderCancelled, from, to).
		Scan(&stats.TotalSales, &stats.TotalOrders, &stats.AverageOrder)
	if err != nil {
		return nil, fmt.Errorf("aggregate sales: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(oi.quantity), 0)
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id
		 WHERE o.payment_status = $1
		   AND o.status NOT IN ($2, $3)
		   AND o.created_at >= $4 AND o.created_at < $5`,
		models.PaymentPaid, models.OrderReturned, models.OrderCancelled, from, to).
		Scan(&stats.ItemsSold)
	if err != nil {
		return nil, fmt.Errorf("aggregate items sold: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM orders
		 WHERE status = $1 AND created_at >= $2 AND created_at < $3`,
		models.OrderReturned, from, to).
		Scan(&stats.ReturnedCount)
	if err != nil {
		return nil, fmt.Errorf("count returns: %w", err)
	}

	return stats, nil
}

// startOfDay returns midnight of t's calendar day in t's own location.
// Truncate would give UTC midnight, which is the wrong day boundary for
// a store that closes its register on local time.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// GetTodaysOrders lists POS orders created since local midnight, the feed
// behind the register's daily closing screen.
func GetTodaysOrders(ctx context.Context, db *sql.DB) ([]models.Order, error) {
	midnight := startOfDay(time.Now())

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE created_at >= $1
		ORDER BY created_at DESC`

	rows, err := db.QueryContext(ctx, query, midnight)
	if err != nil {
		return nil, fmt.Errorf("list today's orders: %w", err)
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

	return orders, rows.Err()
}

// OnlineOrderStats drives the storefront-orders dashboard badge.
type OnlineOrderStats struct {
	PendingCount      int64           `json:"pending_count"`
	PendingValue      decimal.Decimal `json:"pending_value"`
	ConfirmedToday    int64           `json:"confirmed_today"`
	RejectedToday     int64           `json:"rejected_today"`
	DeliveredThisWeek int64           `json:"delivered_this_week"`
}

func GetOnlineOrderStats(ctx context.Context, db *sql.DB) (*OnlineOrderStats, error) {
	stats := &OnlineOrderStats{}
	midnight := startOfDay(time.Now())
	weekAgo := midnight.AddDate(0, 0, -7)

	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total), 0)
		 FROM online_orders
		 WHERE status = $1`,
		models.OnlinePendingConfirmation).Scan(&stats.PendingCount, &stats.PendingValue)
	if err != nil {
		return nil, fmt.Errorf("count pending online orders: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT
		    COUNT(*) FILTER (WHERE status = $1 AND updated_at >= $3),
		    COUNT(*) FILTER (WHERE status = $2 AND updated_at >= $3)
		 FROM online_orders`,
		models.OnlineConfirmed, models.OnlineRejected, midnight).
		Scan(&stats.ConfirmedToday, &stats.RejectedToday)
	if err != nil {
		return nil, fmt.Errorf("count processed online orders: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM online_orders
		 WHERE status = $1 AND updated_at >= $2`,
		models.OnlineDelivered, weekAgo).Scan(&stats.DeliveredThisWeek)
	if err != nil {
		return nil, fmt.Errorf("count delivered online orders: %w", err)
	}

	return stats, nil
}
