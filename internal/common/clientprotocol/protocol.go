// Package clientprotocol holds the JSON types of the public order API.
package clientprotocol

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type OrderRequest struct {
	OrderNumber string             `json:"orderNumber,omitempty"`
	Items       []OrderItemRequest `json:"items"`
}

type OrderItemResponse struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type OrderResponse struct {
	ID          string              `json:"id"`
	OrderNumber string              `json:"orderNumber"`
	Status      string              `json:"status"`
	Items       []OrderItemResponse `json:"items"`
	TotalAmount decimal.Decimal     `json:"totalAmount"`
	Notified    bool                `json:"notified"`
	CreatedAt   time.Time           `json:"createdAt"`
	ProcessedAt *time.Time          `json:"processedAt,omitempty"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
}

type StatusResponse struct {
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
}
