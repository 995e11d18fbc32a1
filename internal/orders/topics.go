package orders

const (
	TopicOrderPaid      = "order.paid"
	TopicOrderStatus    = "order.status.changed"
	TopicDraftExpired   = "order.draft.expired"
	TopicStockReleased  = "stock.released"
	TopicStockCommitted = "stock.committed"
)

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
