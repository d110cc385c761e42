package events

import "strconv"

const (
	TopicOrderCreated = "backoffice.order.created"
	TopicOnlineOrders = "backoffice.online-order.lifecycle"
)

// PartitionKey keys messages by order id so one order's events stay in
// sequence on a single partition.
func PartitionKey(orderID int64) []byte {
	return []byte(strconv.FormatInt(orderID, 10))
}
