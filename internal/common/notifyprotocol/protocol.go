package notifyprotocol

import "github.com/shopspring/decimal"

type OrderItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// Order is the external representation handed to the notification target.
type Order struct {
	OrderNumber string          `json:"order_number"`
	Status      string          `json:"status"`
	Items       []OrderItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}
