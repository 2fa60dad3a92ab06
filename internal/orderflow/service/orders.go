package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderflow/internal/common/catalogprotocol"
	"orderflow/internal/common/notifyprotocol"
	"orderflow/internal/orderflow/data"
	"orderflow/pkg/logging"
	"orderflow/pkg/memcache"
	"orderflow/pkg/resilience"
)

const maxListSize = 100

type CreateItem struct {
	ProductID string
	Quantity  int
}

type CreateRequest struct {
	OrderNumber string
	Items       []CreateItem
}

type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Orders drives an order through RECEIVED -> PROCESSING -> CALCULATED ->
// NOTIFIED. Transitions are guarded by idempotent status checks rather than
// locks; overlapping triggers for the same order either no-op or surface a
// version conflict from the store.
type Orders struct {
	repository       OrderRepository
	catalog          CatalogClient
	catalogExecutor  *resilience.Executor
	notifier         NotifyClient
	notifierExecutor *resilience.Executor
	duplicateChecker DuplicateChecker
	metrics          Metrics
	processingPool   Dispatcher
	notificationPool Dispatcher
	cache            *memcache.Cache[string, data.Order]
	logger           *logging.ZapLogger
}

func NewOrders(
	cfg Config,
	repository OrderRepository,
	catalog CatalogClient,
	catalogExecutor *resilience.Executor,
	notifier NotifyClient,
	notifierExecutor *resilience.Executor,
	duplicateChecker DuplicateChecker,
	metrics Metrics,
	processingPool Dispatcher,
	notificationPool Dispatcher,
	logger *logging.ZapLogger,
) *Orders {
	return &Orders{
		repository:       repository,
		catalog:          catalog,
		catalogExecutor:  catalogExecutor,
		notifier:         notifier,
		notifierExecutor: notifierExecutor,
		duplicateChecker: duplicateChecker,
		metrics:          metrics,
		processingPool:   processingPool,
		notificationPool: notificationPool,
		cache:            memcache.New[string, data.Order](cfg.CacheSize, cfg.CacheTTL),
		logger:           logger,
	}
}

// Create validates and persists a new order with status RECEIVED, then hands
// the processing pipeline to the background pool. The caller gets the
// persisted order back before processing starts.
func (o *Orders) Create(ctx context.Context, req CreateRequest) (*data.Order, error) {
	start := time.Now()
	defer func() { o.metrics.ObserveCreation(time.Since(start)) }()

	if err := validate(req); err != nil {
		return nil, err
	}

	items := make([]data.OrderItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = data.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     decimal.Zero,
		}
	}

	if req.OrderNumber != "" && o.duplicateChecker.IsNumberDuplicate(ctx, req.OrderNumber) {
		o.metrics.IncDuplicates()
		return nil, fmt.Errorf("%w: order number %s already seen", ErrDuplicateOrder, req.OrderNumber)
	}
	if o.duplicateChecker.IsContentDuplicate(ctx, items) {
		o.metrics.IncDuplicates()
		return nil, fmt.Errorf("%w: identical content already seen", ErrDuplicateOrder)
	}

	order := data.NewOrder(req.OrderNumber, items)
	saved, err := o.repository.Save(ctx, order)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrOrderNumberTaken):
			o.metrics.IncDuplicates()
			return nil, fmt.Errorf("%w: order number %s already persisted", ErrDuplicateOrder, order.OrderNumber)
		default:
			return nil, fmt.Errorf("error saving order: %w", err)
		}
	}
	o.metrics.IncReceived()
	o.logger.InfoCtx(ctx, "order created",
		zap.String("orderId", saved.ID.String()),
		zap.String("orderNumber", saved.OrderNumber))

	id := saved.ID
	o.processingPool.Submit(func() {
		o.runPipeline(id)
	})

	return saved, nil
}

// runPipeline is the background continuation of Create: process, then notify
// when processing left the order CALCULATED (or a concurrent notify already
// moved it on). Failures never propagate anywhere; they are logged and turned
// into a forced ERROR status.
func (o *Orders) runPipeline(id uuid.UUID) {
	ctx := logging.WithContextFields(context.Background(), zap.String("orderId", id.String()))

	order, err := o.Process(ctx, id)
	if err != nil {
		o.logger.ErrorCtx(ctx, "background processing failed", zap.Error(err))
		o.forceError(ctx, id)
		return
	}

	if order.Status != data.CalculatedStatus && order.Status != data.NotifiedStatus {
		return
	}

	o.notificationPool.Submit(func() {
		if _, err := o.Notify(ctx, id); err != nil {
			o.logger.ErrorCtx(ctx, "background notification failed", zap.Error(err))
			o.forceError(ctx, id)
		}
	})
}

// Process prices the order against the product catalog and moves it to
// CALCULATED. Idempotent: any status other than RECEIVED returns the order
// unchanged without touching the catalog.
func (o *Orders) Process(ctx context.Context, id uuid.UUID) (*data.Order, error) {
	start := time.Now()
	defer func() { o.metrics.ObserveProcessing(time.Since(start)) }()

	order, err := o.repository.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading order: %w", err)
	}
	if order.Status != data.ReceivedStatus {
		o.logger.InfoCtx(ctx, "order already processed",
			zap.String("status", string(order.Status)))
		return order, nil
	}

	order.Status = data.ProcessingStatus
	order, err = o.save(ctx, order)
	if err != nil {
		// A version conflict means another worker claimed the order; do not
		// stamp ERROR over its in-flight transition.
		if !errors.Is(err, data.ErrVersionConflict) {
			o.forceError(ctx, id)
		}
		return nil, fmt.Errorf("error saving processing status: %w", err)
	}

	products := o.fetchProducts(ctx, distinctProductIDs(order.Items))
	for i := range order.Items {
		product, ok := products[order.Items[i].ProductID]
		if !ok || !product.Available {
			o.logger.WarnCtx(ctx, "product unavailable, pricing at zero",
				zap.String("productId", order.Items[i].ProductID))
			order.Items[i].Price = decimal.Zero
			continue
		}
		order.Items[i].ProductName = product.Name
		order.Items[i].Price = product.Price
	}

	order.CalculateTotal()
	order.Status = data.CalculatedStatus
	now := time.Now()
	order.ProcessedAt = &now

	order, err = o.save(ctx, order)
	if err != nil {
		o.forceError(ctx, id)
		return nil, fmt.Errorf("error saving calculated order: %w", err)
	}
	o.metrics.IncProcessed()
	o.logger.InfoCtx(ctx, "order processed",
		zap.String("orderNumber", order.OrderNumber),
		zap.String("total", order.TotalAmount.String()))
	return order, nil
}

// fetchProducts resolves catalog data for the given product ids: one batched
// call first, then per-id fetches when the batch yields nothing. Read
// fallbacks degrade to synthetic unavailable products instead of failing the
// whole order.
func (o *Orders) fetchProducts(ctx context.Context, productIDs []string) map[string]catalogprotocol.Product {
	result := make(map[string]catalogprotocol.Product, len(productIDs))

	batchStart := time.Now()
	products, err := resilience.Do(ctx, o.catalogExecutor,
		func(ctx context.Context) ([]catalogprotocol.Product, error) {
			return o.catalog.Products(ctx)
		},
		func(context.Context, error) ([]catalogprotocol.Product, error) {
			return nil, nil
		},
	)
	o.metrics.ObserveCatalogCall(time.Since(batchStart))
	if err != nil {
		o.logger.WarnCtx(ctx, "batch product fetch failed", zap.Error(err))
	}
	if len(products) > 0 {
		wanted := make(map[string]struct{}, len(productIDs))
		for _, id := range productIDs {
			wanted[id] = struct{}{}
		}
		for _, product := range products {
			if _, ok := wanted[product.ID]; ok {
				result[product.ID] = product
			}
		}
		return result
	}

	o.logger.WarnCtx(ctx, "batch product fetch yielded nothing, fetching individually")
	for _, productID := range productIDs {
		id := productID
		singleStart := time.Now()
		product, err := resilience.Do(ctx, o.catalogExecutor,
			func(ctx context.Context) (catalogprotocol.Product, error) {
				return o.catalog.Product(ctx, id)
			},
			func(context.Context, error) (catalogprotocol.Product, error) {
				return catalogprotocol.Product{
					ID:        id,
					Name:      "unknown",
					Price:     decimal.Zero,
					Available: false,
				}, nil
			},
		)
		o.metrics.ObserveCatalogCall(time.Since(singleStart))
		if err != nil {
			o.logger.WarnCtx(ctx, "product fetch failed", zap.String("productId", id), zap.Error(err))
			continue
		}
		result[id] = product
	}
	return result
}

// Notify delivers the calculated order to the notification target. Idempotent:
// an already-notified order, or one that is not CALCULATED yet, is returned
// unchanged with no external call. A delivery failure is deferred to the
// reconciliation sweeps rather than surfaced; a CALCULATED status is never
// regressed to ERROR by a failed notify.
func (o *Orders) Notify(ctx context.Context, id uuid.UUID) (*data.Order, error) {
	start := time.Now()
	defer func() { o.metrics.ObserveNotification(time.Since(start)) }()

	order, err := o.repository.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading order: %w", err)
	}
	if order.Notified {
		o.logger.InfoCtx(ctx, "order already notified")
		return order, nil
	}
	if order.Status != data.CalculatedStatus && order.Status != data.NotifiedStatus {
		o.logger.WarnCtx(ctx, "order is not calculated yet",
			zap.String("status", string(order.Status)))
		return order, nil
	}

	external := externalOrder(order)

	callStart := time.Now()
	sent, err := resilience.Do(ctx, o.notifierExecutor,
		func(ctx context.Context) (bool, error) {
			if err := o.notifier.NotifyOrder(ctx, external); err != nil {
				return false, err
			}
			return true, nil
		},
		func(context.Context, error) (bool, error) {
			// Write fallback: no fabricated success. The order stays as it
			// is and a later sweep retries the delivery.
			return false, nil
		},
	)
	o.metrics.ObserveNotifierCall(time.Since(callStart))
	if err != nil {
		if order.Status != data.CalculatedStatus {
			o.forceError(ctx, id)
		}
		return nil, fmt.Errorf("error notifying order: %w", err)
	}
	if !sent {
		o.logger.WarnCtx(ctx, "notification deferred",
			zap.String("orderNumber", order.OrderNumber))
		return order, nil
	}

	order.Notified = true
	order.Status = data.NotifiedStatus
	now := time.Now()
	order.CompletedAt = &now

	order, err = o.save(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("error saving notified order: %w", err)
	}
	o.metrics.IncNotified()
	o.logger.InfoCtx(ctx, "order notified", zap.String("orderNumber", order.OrderNumber))
	return order, nil
}

// forceError is the dedicated status-update path for failures in the
// asynchronous pipeline: it reloads the order and stamps ERROR regardless of
// its current transient state.
func (o *Orders) forceError(ctx context.Context, id uuid.UUID) {
	order, err := o.repository.GetByID(ctx, id)
	if err != nil {
		o.logger.ErrorCtx(ctx, "cannot load order for error status", zap.Error(err))
		return
	}
	if order.Status == data.ErrorStatus {
		return
	}
	order.Status = data.ErrorStatus
	if _, err := o.save(ctx, order); err != nil {
		o.logger.ErrorCtx(ctx, "cannot persist error status", zap.Error(err))
		return
	}
	o.metrics.IncErrored()
}

func (o *Orders) GetByID(ctx context.Context, id uuid.UUID) (*data.Order, error) {
	if cached, ok := o.cache.Get(idKey(id)); ok {
		return &cached, nil
	}
	order, err := o.repository.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading order: %w", err)
	}
	o.cacheOrder(order)
	return order, nil
}

func (o *Orders) GetByNumber(ctx context.Context, orderNumber string) (*data.Order, error) {
	if cached, ok := o.cache.Get(numberKey(orderNumber)); ok {
		return &cached, nil
	}
	order, err := o.repository.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("error loading order: %w", err)
	}
	o.cacheOrder(order)
	return order, nil
}

func (o *Orders) List(ctx context.Context, status data.Status, page, size int) ([]data.Order, error) {
	if size > maxListSize {
		size = maxListSize
	}
	if size <= 0 {
		size = maxListSize
	}
	if page < 0 {
		page = 0
	}

	var orders []data.Order
	var err error
	if status == data.NullStatus {
		orders, err = o.repository.GetPage(ctx, size, page*size)
	} else {
		orders, err = o.repository.GetByStatus(ctx, status, size, page*size)
	}
	if err != nil {
		return nil, fmt.Errorf("error listing orders: %w", err)
	}
	return orders, nil
}

// save persists the order and drops any cached copy so readers never observe
// a stale state after a transition.
func (o *Orders) save(ctx context.Context, order *data.Order) (*data.Order, error) {
	saved, err := o.repository.Save(ctx, order)
	if err != nil {
		return nil, err
	}
	o.cache.Delete(idKey(saved.ID))
	o.cache.Delete(numberKey(saved.OrderNumber))
	return saved, nil
}

func (o *Orders) cacheOrder(order *data.Order) {
	o.cache.Set(idKey(order.ID), *order)
	o.cache.Set(numberKey(order.OrderNumber), *order)
}

func idKey(id uuid.UUID) string {
	return "id:" + id.String()
}

func numberKey(orderNumber string) string {
	return "number:" + orderNumber
}

func validate(req CreateRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: an order must have at least one item", ErrInvalidOrder)
	}
	seen := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: every item must have a product id", ErrInvalidOrder)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item quantity must be at least 1", ErrInvalidOrder)
		}
		if _, ok := seen[item.ProductID]; ok {
			return fmt.Errorf("%w: duplicate product in order: %s", ErrInvalidOrder, item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}

func distinctProductIDs(items []data.OrderItem) []string {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func externalOrder(order *data.Order) notifyprotocol.Order {
	items := make([]notifyprotocol.OrderItem, len(order.Items))
	for i, item := range order.Items {
		items[i] = notifyprotocol.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price,
		}
	}
	return notifyprotocol.Order{
		OrderNumber: order.OrderNumber,
		Status:      string(data.CalculatedStatus),
		Items:       items,
		TotalAmount: order.TotalAmount,
	}
}
