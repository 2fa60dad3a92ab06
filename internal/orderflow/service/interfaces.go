package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"orderflow/internal/common/catalogprotocol"
	"orderflow/internal/common/notifyprotocol"
	"orderflow/internal/orderflow/data"
)

type OrderRepository interface {
	Save(ctx context.Context, order *data.Order) (*data.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*data.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*data.Order, error)
	GetByStatus(ctx context.Context, status data.Status, limit, offset int) ([]data.Order, error)
	GetPage(ctx context.Context, limit, offset int) ([]data.Order, error)
}

type CatalogClient interface {
	Product(ctx context.Context, productID string) (catalogprotocol.Product, error)
	Products(ctx context.Context) ([]catalogprotocol.Product, error)
}

type NotifyClient interface {
	NotifyOrder(ctx context.Context, order notifyprotocol.Order) error
}

type DuplicateChecker interface {
	IsNumberDuplicate(ctx context.Context, orderNumber string) bool
	IsContentDuplicate(ctx context.Context, items []data.OrderItem) bool
}

// Dispatcher hands work to a background pool. Submissions never fail; a
// saturated pool runs the task on the caller.
type Dispatcher interface {
	Submit(task func())
}

type Metrics interface {
	IncReceived()
	IncProcessed()
	IncNotified()
	IncErrored()
	IncDuplicates()
	ObserveCreation(d time.Duration)
	ObserveProcessing(d time.Duration)
	ObserveNotification(d time.Duration)
	ObserveCatalogCall(d time.Duration)
	ObserveNotifierCall(d time.Duration)
}
