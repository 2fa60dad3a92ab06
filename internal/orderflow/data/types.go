package data

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	NullStatus       = Status("")
	ReceivedStatus   = Status("RECEIVED")
	ProcessingStatus = Status("PROCESSING")
	CalculatedStatus = Status("CALCULATED")
	NotifiedStatus   = Status("NOTIFIED")
	CompletedStatus  = Status("COMPLETED")
	ErrorStatus      = Status("ERROR")
)

const orderNumberLength = 10

type OrderItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	Price       decimal.Decimal
}

type Order struct {
	ID          uuid.UUID
	OrderNumber string
	Status      Status
	CreatedAt   time.Time
	ProcessedAt *time.Time
	CompletedAt *time.Time
	Items       []OrderItem
	TotalAmount decimal.Decimal
	Notified    bool
	RetryCount  int
	Version     int64
}

// NewOrder fills every field an order must carry before it is ever persisted:
// id, order number (generated when absent), RECEIVED status, zero total and
// the creation timestamp.
func NewOrder(orderNumber string, items []OrderItem) *Order {
	if orderNumber == "" {
		orderNumber = GenerateOrderNumber()
	}
	return &Order{
		ID:          uuid.New(),
		OrderNumber: orderNumber,
		Status:      ReceivedStatus,
		CreatedAt:   time.Now(),
		Items:       items,
		TotalAmount: decimal.Zero,
	}
}

// GenerateOrderNumber produces the 10-character human-facing order code.
func GenerateOrderNumber() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:orderNumberLength])
}

// CalculateTotal recomputes the order total from its items. Each item subtotal
// is rounded half-up to 2 decimal places before summing.
func (o *Order) CalculateTotal() {
	total := decimal.Zero
	for _, item := range o.Items {
		subtotal := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		total = total.Add(subtotal)
	}
	o.TotalAmount = total
}
