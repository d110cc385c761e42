package models

// POS order statuses. Updates are validated against a flat allow-list
// rather than a transition graph: staff can move an order between any of
// these states manually. OrderReturned is reachable only through the
// return flow, never through a plain status update.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderPreparing = "preparing"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
	OrderReturned  = "returned"
	OrderRefunded  = "refunded"
)

var orderStatusUpdatable = map[string]bool{
	OrderPending:   true,
	OrderConfirmed: true,
	OrderPreparing: true,
	OrderShipped:   true,
	OrderDelivered: true,
	OrderCancelled: true,
	OrderRefunded:  true,
}

// ValidOrderStatus reports whether s may be set through a plain POS
// status update.
func ValidOrderStatus(s string) bool {
	return orderStatusUpdatable[s]
}

// Online order statuses. Unlike POS orders these follow a strict
// transition graph; see OnlineCanTransition.
const (
	OnlinePendingConfirmation = "pending_confirmation"
	OnlineConfirmed           = "confirmed"
	OnlinePreparing           = "preparing"
	OnlineShipped             = "shipped"
	OnlineDelivered           = "delivered"
	OnlineCancelled           = "cancelled"
	OnlineRejected            = "rejected"
	OnlineReturned            = "returned"
)

var onlineValidNext = map[string][]string{
	OnlinePendingConfirmation: {OnlineConfirmed, OnlineRejected},
	OnlineConfirmed:           {OnlinePreparing, OnlineCancelled},
	OnlinePreparing:           {OnlineShipped, OnlineCancelled},
	OnlineShipped:             {OnlineDelivered},
	OnlineDelivered:           {},
	OnlineRejected:            {},
	OnlineCancelled:           {},
}

func OnlineCanTransition(from, to string) bool {
	for _, next := range onlineValidNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OnlineAllowedNext lists the states reachable from the given status, for
// error messages. Empty for terminal or unknown states.
func OnlineAllowedNext(from string) []string {
	return onlineValidNext[from]
}

// Payment statuses shared by both order kinds.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentPartial  = "partial"
	PaymentRefunded = "refunded"
)
