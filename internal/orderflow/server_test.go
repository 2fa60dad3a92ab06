package orderflow

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/common/clientprotocol"
	"orderflow/internal/orderflow/data"
	"orderflow/internal/orderflow/service"
	"orderflow/pkg/logging"
)

type fakeOrderService struct {
	orders map[uuid.UUID]*data.Order
	byNum  map[string]*data.Order
}

func newFakeOrderService(orders ...*data.Order) *fakeOrderService {
	s := &fakeOrderService{
		orders: make(map[uuid.UUID]*data.Order),
		byNum:  make(map[string]*data.Order),
	}
	for _, order := range orders {
		s.orders[order.ID] = order
		s.byNum[order.OrderNumber] = order
	}
	return s
}

func (s *fakeOrderService) Create(_ context.Context, req service.CreateRequest) (*data.Order, error) {
	if len(req.Items) == 0 {
		return nil, service.ErrInvalidOrder
	}
	if _, ok := s.byNum[req.OrderNumber]; ok {
		return nil, service.ErrDuplicateOrder
	}
	items := make([]data.OrderItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = data.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	order := data.NewOrder(req.OrderNumber, items)
	s.orders[order.ID] = order
	s.byNum[order.OrderNumber] = order
	return order, nil
}

func (s *fakeOrderService) GetByID(_ context.Context, id uuid.UUID) (*data.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	return order, nil
}

func (s *fakeOrderService) GetByNumber(_ context.Context, orderNumber string) (*data.Order, error) {
	order, ok := s.byNum[orderNumber]
	if !ok {
		return nil, data.ErrNotFound
	}
	return order, nil
}

func (s *fakeOrderService) List(_ context.Context, status data.Status, _, _ int) ([]data.Order, error) {
	var res []data.Order
	for _, order := range s.orders {
		if status == data.NullStatus || order.Status == status {
			res = append(res, *order)
		}
	}
	return res, nil
}

func (s *fakeOrderService) Process(_ context.Context, id uuid.UUID) (*data.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	order.Status = data.CalculatedStatus
	return order, nil
}

func (s *fakeOrderService) Notify(_ context.Context, id uuid.UUID) (*data.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	order.Status = data.NotifiedStatus
	order.Notified = true
	return order, nil
}

func testServer(orders ...*data.Order) (*httptest.Server, *fakeOrderService) {
	fake := newFakeOrderService(orders...)
	srv := httptest.NewServer(createMux(fake, logging.NewNop()))
	return srv, fake
}

func storedOrder() *data.Order {
	order := data.NewOrder("ORD-1", []data.OrderItem{
		{ProductID: "P1", ProductName: "Product One", Quantity: 2, Price: decimal.RequireFromString("100.00")},
	})
	order.Status = data.CalculatedStatus
	order.TotalAmount = decimal.RequireFromString("200.00")
	order.Version = 1
	return order
}

func TestCreateOrderEndpoint(t *testing.T) {
	srv, _ := testServer()
	defer srv.Close()

	body, err := json.Marshal(clientprotocol.OrderRequest{
		OrderNumber: "ORD-9",
		Items:       []clientprotocol.OrderItemRequest{{ProductID: "P1", Quantity: 2}},
	})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/orders", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created clientprotocol.OrderResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "ORD-9", created.OrderNumber)
	assert.Equal(t, string(data.ReceivedStatus), created.Status)
}

func TestCreateOrderEndpointRejectsMalformedBody(t *testing.T) {
	srv, _ := testServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/orders", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateOrderEndpointConflictOnDuplicate(t *testing.T) {
	srv, _ := testServer(storedOrder())
	defer srv.Close()

	body, err := json.Marshal(clientprotocol.OrderRequest{
		OrderNumber: "ORD-1",
		Items:       []clientprotocol.OrderItemRequest{{ProductID: "P1", Quantity: 2}},
	})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/orders", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetOrderEndpoint(t *testing.T) {
	order := storedOrder()
	srv, _ := testServer(order)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orders/" + order.ID.String())
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got clientprotocol.OrderResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, order.ID.String(), got.ID)
	assert.Equal(t, "ORD-1", got.OrderNumber)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("200.00")))
}

func TestGetOrderEndpointNotFound(t *testing.T) {
	srv, _ := testServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orders/" + uuid.NewString())
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetOrderEndpointBadID(t *testing.T) {
	srv, _ := testServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orders/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOrderStatusEndpoint(t *testing.T) {
	order := storedOrder()
	srv, _ := testServer(order)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orders/" + order.ID.String() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status clientprotocol.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "ORD-1", status.OrderNumber)
	assert.Equal(t, string(data.CalculatedStatus), status.Status)
}

func TestGetOrderByNumberEndpoint(t *testing.T) {
	srv, _ := testServer(storedOrder())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orders/number/ORD-1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got clientprotocol.OrderResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "ORD-1", got.OrderNumber)
}

func TestListOrdersEndpointNoContent(t *testing.T) {
	srv, _ := testServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orders")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestProcessTriggerEndpoint(t *testing.T) {
	order := storedOrder()
	order.Status = data.ReceivedStatus
	srv, fake := testServer(order)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/orders/"+order.ID.String()+"/process", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, data.CalculatedStatus, fake.orders[order.ID].Status)
}

func TestNotifyTriggerEndpoint(t *testing.T) {
	order := storedOrder()
	srv, fake := testServer(order)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/orders/"+order.ID.String()+"/notify", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, fake.orders[order.ID].Notified)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
