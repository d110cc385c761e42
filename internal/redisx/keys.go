package redisx

import "time"

const (
	// Cached online-order status: online_order_status:{order_id}
	KeyOnlineOrderStatus = "online_order_status:%d"

	// Dedup for event side effects: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Dashboard counters cache.
	KeyOnlineStats = "online_order_stats"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLStats       = 30 * time.Second
)
