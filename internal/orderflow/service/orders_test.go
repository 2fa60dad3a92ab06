package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/common/catalogprotocol"
	"orderflow/internal/common/notifyprotocol"
	"orderflow/internal/orderflow/data"
	"orderflow/internal/orderflow/duplicates"
	"orderflow/pkg/logging"
	"orderflow/pkg/resilience"
)

type fakeRepository struct {
	orders           map[uuid.UUID]data.Order
	byNumber         map[string]uuid.UUID
	failSaveStatus   data.Status
	conflictOnStatus data.Status
	saves            int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		orders:   make(map[uuid.UUID]data.Order),
		byNumber: make(map[string]uuid.UUID),
	}
}

func copyOrder(order data.Order) data.Order {
	items := make([]data.OrderItem, len(order.Items))
	copy(items, order.Items)
	order.Items = items
	return order
}

func (r *fakeRepository) Save(_ context.Context, order *data.Order) (*data.Order, error) {
	if r.failSaveStatus != data.NullStatus && order.Status == r.failSaveStatus {
		return nil, errors.New("storage unavailable")
	}
	if r.conflictOnStatus != data.NullStatus && order.Status == r.conflictOnStatus {
		return nil, data.ErrVersionConflict
	}
	if order.Version == 0 {
		if _, ok := r.byNumber[order.OrderNumber]; ok {
			return nil, data.ErrOrderNumberTaken
		}
		order.Version = 1
	} else {
		current, ok := r.orders[order.ID]
		if !ok {
			return nil, data.ErrNotFound
		}
		if current.Version != order.Version {
			return nil, data.ErrVersionConflict
		}
		order.Version++
	}
	r.saves++
	r.orders[order.ID] = copyOrder(*order)
	r.byNumber[order.OrderNumber] = order.ID
	stored := copyOrder(*order)
	return &stored, nil
}

func (r *fakeRepository) GetByID(_ context.Context, id uuid.UUID) (*data.Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	res := copyOrder(order)
	return &res, nil
}

func (r *fakeRepository) GetByNumber(_ context.Context, orderNumber string) (*data.Order, error) {
	id, ok := r.byNumber[orderNumber]
	if !ok {
		return nil, data.ErrNotFound
	}
	return r.GetByID(context.Background(), id)
}

func (r *fakeRepository) GetByStatus(_ context.Context, status data.Status, limit, _ int) ([]data.Order, error) {
	var res []data.Order
	for _, order := range r.orders {
		if order.Status == status && len(res) < limit {
			res = append(res, copyOrder(order))
		}
	}
	return res, nil
}

func (r *fakeRepository) GetPage(_ context.Context, limit, _ int) ([]data.Order, error) {
	var res []data.Order
	for _, order := range r.orders {
		if len(res) < limit {
			res = append(res, copyOrder(order))
		}
	}
	return res, nil
}

type fakeCatalog struct {
	products     map[string]catalogprotocol.Product
	batchErr     error
	productErrs  map[string]error
	batchCalls   int
	productCalls int
}

func newFakeCatalog(products ...catalogprotocol.Product) *fakeCatalog {
	c := &fakeCatalog{
		products:    make(map[string]catalogprotocol.Product),
		productErrs: make(map[string]error),
	}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) Product(_ context.Context, productID string) (catalogprotocol.Product, error) {
	c.productCalls++
	if err := c.productErrs[productID]; err != nil {
		return catalogprotocol.Product{}, err
	}
	product, ok := c.products[productID]
	if !ok {
		return catalogprotocol.Product{}, errors.New("no product found")
	}
	return product, nil
}

func (c *fakeCatalog) Products(_ context.Context) ([]catalogprotocol.Product, error) {
	c.batchCalls++
	if c.batchErr != nil {
		return nil, c.batchErr
	}
	res := make([]catalogprotocol.Product, 0, len(c.products))
	for _, p := range c.products {
		res = append(res, p)
	}
	return res, nil
}

type fakeNotifier struct {
	calls  int
	err    error
	orders []notifyprotocol.Order
}

func (n *fakeNotifier) NotifyOrder(_ context.Context, order notifyprotocol.Order) error {
	n.calls++
	if n.err != nil {
		return n.err
	}
	n.orders = append(n.orders, order)
	return nil
}

type fakeSharedCache struct {
	seen map[string]struct{}
}

func (c *fakeSharedCache) Contains(_ context.Context, kind, key string) (bool, error) {
	_, ok := c.seen[kind+":"+key]
	return ok, nil
}

func (c *fakeSharedCache) Add(_ context.Context, kind, key string) error {
	c.seen[kind+":"+key] = struct{}{}
	return nil
}

type nopMetrics struct{}

func (nopMetrics) IncReceived()                      {}
func (nopMetrics) IncProcessed()                     {}
func (nopMetrics) IncNotified()                      {}
func (nopMetrics) IncErrored()                       {}
func (nopMetrics) IncDuplicates()                    {}
func (nopMetrics) ObserveCreation(time.Duration)     {}
func (nopMetrics) ObserveProcessing(time.Duration)   {}
func (nopMetrics) ObserveNotification(time.Duration) {}
func (nopMetrics) ObserveCatalogCall(time.Duration)  {}
func (nopMetrics) ObserveNotifierCall(time.Duration) {}

type inlineDispatcher struct{}

func (inlineDispatcher) Submit(task func()) { task() }

type noopDispatcher struct{}

func (noopDispatcher) Submit(func()) {}

type testEnv struct {
	service  *Orders
	repo     *fakeRepository
	catalog  *fakeCatalog
	notifier *fakeNotifier
}

func executorConfig() resilience.Config {
	return resilience.Config{
		RatePerSecond:    10000,
		RateBurst:        10000,
		FailureThreshold: 100,
		ResetTimeout:     time.Hour,
		AttemptDelays:    []time.Duration{time.Millisecond},
		MaxConcurrent:    16,
	}
}

func newTestEnv(catalog *fakeCatalog, dispatcher Dispatcher) *testEnv {
	logger := logging.NewNop()
	repo := newFakeRepository()
	notifier := &fakeNotifier{}
	checker := duplicates.NewChecker(
		duplicates.Config{BufferLimit: 1000},
		&fakeSharedCache{seen: make(map[string]struct{})},
		logger,
	)
	svc := NewOrders(
		Config{CacheSize: 100, CacheTTL: time.Minute},
		repo,
		catalog,
		resilience.NewExecutor("catalog", executorConfig(), logger),
		notifier,
		resilience.NewExecutor("notifier", executorConfig(), logger),
		checker,
		nopMetrics{},
		dispatcher,
		dispatcher,
		logger,
	)
	return &testEnv{service: svc, repo: repo, catalog: catalog, notifier: notifier}
}

func twoProductCatalog() *fakeCatalog {
	return newFakeCatalog(
		catalogprotocol.Product{ID: "P1", Name: "Product One", Price: decimal.RequireFromString("100.00"), Available: true},
		catalogprotocol.Product{ID: "P2", Name: "Product Two", Price: decimal.RequireFromString("200.00"), Available: true},
	)
}

func twoItemRequest(orderNumber string) CreateRequest {
	return CreateRequest{
		OrderNumber: orderNumber,
		Items: []CreateItem{
			{ProductID: "P1", Quantity: 2},
			{ProductID: "P2", Quantity: 1},
		},
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		req  CreateRequest
	}{
		{
			name: "no items",
			req:  CreateRequest{},
		},
		{
			name: "empty product id",
			req:  CreateRequest{Items: []CreateItem{{ProductID: "", Quantity: 1}}},
		},
		{
			name: "zero quantity",
			req:  CreateRequest{Items: []CreateItem{{ProductID: "P1", Quantity: 0}}},
		},
		{
			name: "repeated product",
			req: CreateRequest{Items: []CreateItem{
				{ProductID: "P1", Quantity: 1},
				{ProductID: "P1", Quantity: 2},
			}},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			env := newTestEnv(twoProductCatalog(), noopDispatcher{})
			_, err := env.service.Create(context.Background(), test.req)
			assert.ErrorIs(t, err, ErrInvalidOrder)
			assert.Empty(t, env.repo.orders, "nothing may be persisted on validation failure")
		})
	}
}

func TestCreatePersistsReceivedOrder(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})

	order, err := env.service.Create(context.Background(), twoItemRequest("ORD-1"))
	require.NoError(t, err)

	assert.Equal(t, data.ReceivedStatus, order.Status)
	assert.Equal(t, "ORD-1", order.OrderNumber)
	assert.True(t, order.TotalAmount.IsZero())
	assert.Len(t, env.repo.orders, 1)
}

func TestCreateGeneratesOrderNumber(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})

	req := twoItemRequest("")
	order, err := env.service.Create(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, order.OrderNumber, 10)
}

func TestCreateRejectsDuplicateNumber(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})
	ctx := context.Background()

	_, err := env.service.Create(ctx, twoItemRequest("ORD-1"))
	require.NoError(t, err)

	// Different content, same number.
	_, err = env.service.Create(ctx, CreateRequest{
		OrderNumber: "ORD-1",
		Items:       []CreateItem{{ProductID: "P9", Quantity: 5}},
	})
	assert.ErrorIs(t, err, ErrDuplicateOrder)
	assert.Len(t, env.repo.orders, 1)
}

func TestCreateRejectsDuplicateContent(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})
	ctx := context.Background()

	_, err := env.service.Create(ctx, twoItemRequest("ORD-1"))
	require.NoError(t, err)

	_, err = env.service.Create(ctx, twoItemRequest("ORD-2"))
	assert.ErrorIs(t, err, ErrDuplicateOrder)
	assert.Len(t, env.repo.orders, 1)
}

func TestProcessCalculatesTotal(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})
	ctx := context.Background()

	created, err := env.service.Create(ctx, twoItemRequest("ORD-1"))
	require.NoError(t, err)

	processed, err := env.service.Process(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, data.CalculatedStatus, processed.Status)
	assert.True(t, processed.TotalAmount.Equal(decimal.RequireFromString("400.00")),
		"expected 400.00, got %s", processed.TotalAmount)
	assert.NotNil(t, processed.ProcessedAt)
	assert.Equal(t, "Product One", processed.Items[0].ProductName)
}

func TestProcessIsIdempotent(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})
	ctx := context.Background()

	created, err := env.service.Create(ctx, twoItemRequest("ORD-1"))
	require.NoError(t, err)

	first, err := env.service.Process(ctx, created.ID)
	require.NoError(t, err)
	catalogCalls := env.catalog.batchCalls + env.catalog.productCalls

	second, err := env.service.Process(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.True(t, first.TotalAmount.Equal(second.TotalAmount))
	assert.Equal(t, catalogCalls, env.catalog.batchCalls+env.catalog.productCalls,
		"a processed order must not trigger another catalog call")
}

func TestProcessFallsBackToIndividualFetches(t *testing.T) {
	catalog := newFakeCatalog(
		catalogprotocol.Product{ID: "P1", Name: "Product One", Price: decimal.RequireFromString("100.00"), Available: true},
	)
	catalog.batchErr = errors.New("batch endpoint down")
	catalog.productErrs["P2"] = errors.New("product endpoint down")

	env := newTestEnv(catalog, noopDispatcher{})
	ctx := context.Background()

	created, err := env.service.Create(ctx, twoItemRequest("ORD-1"))
	require.NoError(t, err)

	processed, err := env.service.Process(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, data.CalculatedStatus, processed.Status)
	assert.True(t, processed.Items[0].Price.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, processed.Items[1].Price.IsZero(), "unavailable product must be priced at zero")
	assert.True(t, processed.TotalAmount.Equal(decimal.RequireFromString("200.00")),
		"expected 200.00, got %s", processed.TotalAmount)
}

func TestProcessFailureForcesErrorStatus(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})
	ctx := context.Background()

	created, err := env.service.Create(ctx, twoItemRequest("ORD-1"))
	require.NoError(t, err)

	env.repo.failSaveStatus = data.CalculatedStatus
	_, err = env.service.Process(ctx, created.ID)
	require.Error(t, err)

	stored, err := env.repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, data.ErrorStatus, stored.Status)
}

func TestProcessingSaveFailureForcesErrorStatus(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})
	ctx := context.Background()

	created, err := env.service.Create(ctx, twoItemRequest("ORD-1"))
	require.NoError(t, err)

	env.repo.failSaveStatus = data.ProcessingStatus
	_, err = env.service.Process(ctx, created.ID)
	require.Error(t, err)

	stored, err := env.repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, data.ErrorStatus, stored.Status)
}

func TestProcessingSaveConflictLeavesOrderUntouched(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})
	ctx := context.Background()

	created, err := env.service.Create(ctx, twoItemRequest("ORD-1"))
	require.NoError(t, err)

	env.repo.conflictOnStatus = data.ProcessingStatus
	_, err = env.service.Process(ctx, created.ID)
	require.ErrorIs(t, err, data.ErrVersionConflict)

	stored, err := env.repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, data.ReceivedStatus, stored.Status,
		"a lost save race must not be stamped over with ERROR")
}

func TestNotifyDeliversCalculatedOrder(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})
	ctx := context.Background()

	created, err := env.service.Create(ctx, twoItemRequest("ORD-1"))
	require.NoError(t, err)
	_, err = env.service.Process(ctx, created.ID)
	require.NoError(t, err)

	notified, err := env.service.Notify(ctx, created.ID)
	require.NoError(t, err)

	assert.True(t, notified.Notified)
	assert.Equal(t, data.NotifiedStatus, notified.Status)
	assert.NotNil(t, notified.CompletedAt)
	require.Len(t, env.notifier.orders, 1)
	assert.Equal(t, "ORD-1", env.notifier.orders[0].OrderNumber)
	assert.True(t, env.notifier.orders[0].TotalAmount.Equal(decimal.RequireFromString("400.00")))
}

func TestNotifyIsIdempotent(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})
	ctx := context.Background()

	created, err := env.service.Create(ctx, twoItemRequest("ORD-1"))
	require.NoError(t, err)
	_, err = env.service.Process(ctx, created.ID)
	require.NoError(t, err)
	_, err = env.service.Notify(ctx, created.ID)
	require.NoError(t, err)

	again, err := env.service.Notify(ctx, created.ID)
	require.NoError(t, err)

	assert.True(t, again.Notified)
	assert.Equal(t, 1, env.notifier.calls, "an already notified order must not be re-sent")
}

func TestNotifySkipsUnprocessedOrder(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})
	ctx := context.Background()

	created, err := env.service.Create(ctx, twoItemRequest("ORD-1"))
	require.NoError(t, err)

	order, err := env.service.Notify(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, data.ReceivedStatus, order.Status)
	assert.Equal(t, 0, env.notifier.calls)
}

func TestNotifyFailureDefersWithoutErasingCalculated(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})
	ctx := context.Background()

	created, err := env.service.Create(ctx, twoItemRequest("ORD-1"))
	require.NoError(t, err)
	_, err = env.service.Process(ctx, created.ID)
	require.NoError(t, err)

	env.notifier.err = errors.New("target down")
	order, err := env.service.Notify(ctx, created.ID)
	require.NoError(t, err, "a failed delivery is deferred, not surfaced")

	assert.False(t, order.Notified)
	assert.Equal(t, data.CalculatedStatus, order.Status,
		"a notify failure must not regress a calculated order")

	stored, err := env.repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, data.CalculatedStatus, stored.Status)
}

func TestBackgroundPipelineRunsProcessAndNotify(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), inlineDispatcher{})
	ctx := context.Background()

	created, err := env.service.Create(ctx, twoItemRequest("ORD-1"))
	require.NoError(t, err)

	stored, err := env.repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, data.NotifiedStatus, stored.Status)
	assert.True(t, stored.Notified)
	assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("400.00")))
	assert.Equal(t, 1, env.notifier.calls)
}

func TestGetByIDUsesCache(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})
	ctx := context.Background()

	created, err := env.service.Create(ctx, twoItemRequest("ORD-1"))
	require.NoError(t, err)

	first, err := env.service.GetByID(ctx, created.ID)
	require.NoError(t, err)

	// Mutate the store behind the cache; the cached copy must win until the
	// next state-changing save evicts it.
	stored := env.repo.orders[created.ID]
	stored.OrderNumber = "mutated"
	env.repo.orders[created.ID] = stored

	second, err := env.service.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, first.OrderNumber, second.OrderNumber)

	_, err = env.service.Process(ctx, created.ID)
	require.NoError(t, err)

	fresh, err := env.service.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, data.CalculatedStatus, fresh.Status)
}

func TestGetByIDNotFound(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})

	_, err := env.service.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, data.ErrNotFound)
}

func TestListCapsPageSize(t *testing.T) {
	env := newTestEnv(twoProductCatalog(), noopDispatcher{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.service.Create(ctx, CreateRequest{
			Items: []CreateItem{{ProductID: fmt.Sprintf("P%d", i+1), Quantity: i + 1}},
		})
		require.NoError(t, err)
	}

	orders, err := env.service.List(ctx, data.ReceivedStatus, 0, 1000)
	require.NoError(t, err)
	assert.Len(t, orders, 3)
}
