package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"orderflow/internal/common/clientprotocol"
	"orderflow/internal/orderflow/data"
	"orderflow/pkg/logging"
)

// OrderStatusHandler is the lightweight lookup used by polling clients:
// order id in, current status out, nothing else.
type OrderStatusHandler struct {
	service OrderGettingService
	logger  *logging.ZapLogger
}

func NewOrderStatusHandler(service OrderGettingService, logger *logging.ZapLogger) *OrderStatusHandler {
	return &OrderStatusHandler{
		service: service,
		logger:  logger,
	}
}

func (h *OrderStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDFromRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	order, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.ErrorCtx(r.Context(), "error getting order status", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	response := clientprotocol.StatusResponse{
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
	}
	if err := tryWriteResponseJSON(w, http.StatusOK, response); err != nil {
		h.logger.ErrorCtx(r.Context(), "error writing response", zap.Error(err))
	}
}
