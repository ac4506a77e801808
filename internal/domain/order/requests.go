package order

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type ItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type CreateOrderRequest struct {
	BuyerID string        `json:"buyer_id"`
	Items   []ItemRequest `json:"items"`
}

// UpdateOrderItemRequest sets the quantity of a product already in the order.
// It never adds a new line.
type UpdateOrderItemRequest struct {
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}
