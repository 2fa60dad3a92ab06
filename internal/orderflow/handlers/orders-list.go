package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"orderflow/internal/common/clientprotocol"
	"orderflow/internal/orderflow/data"
	"orderflow/pkg/logging"
)

type OrdersListingService interface {
	List(ctx context.Context, status data.Status, page, size int) ([]data.Order, error)
}

type OrdersListingHandler struct {
	service OrdersListingService
	logger  *logging.ZapLogger
}

func NewOrdersListingHandler(service OrdersListingService, logger *logging.ZapLogger) *OrdersListingHandler {
	return &OrdersListingHandler{
		service: service,
		logger:  logger,
	}
}

func (h *OrdersListingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	status := data.Status(query.Get("status"))
	page, _ := strconv.Atoi(query.Get("page"))
	size, _ := strconv.Atoi(query.Get("size"))

	orders, err := h.service.List(r.Context(), status, page, size)
	if err != nil {
		h.logger.ErrorCtx(r.Context(), "error listing orders", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	responses := make([]clientprotocol.OrderResponse, len(orders))
	for i := range orders {
		responses[i] = orderResponse(&orders[i])
	}

	if err := tryWriteResponseJSON(w, http.StatusOK, responses); err != nil {
		h.logger.ErrorCtx(r.Context(), "error writing response", zap.Error(err))
	}
}
