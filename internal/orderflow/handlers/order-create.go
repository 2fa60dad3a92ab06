package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"orderflow/internal/common/clientprotocol"
	"orderflow/internal/orderflow/data"
	"orderflow/internal/orderflow/service"
	"orderflow/pkg/logging"
)

type OrderCreatingService interface {
	Create(ctx context.Context, req service.CreateRequest) (*data.Order, error)
}

type OrderCreatingHandler struct {
	service OrderCreatingService
	logger  *logging.ZapLogger
}

func NewOrderCreatingHandler(service OrderCreatingService, logger *logging.ZapLogger) *OrderCreatingHandler {
	return &OrderCreatingHandler{
		service: service,
		logger:  logger,
	}
}

func (h *OrderCreatingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer closeBody(r.Context(), r.Body, h.logger)

	request, err := decodeJSON[clientprotocol.OrderRequest](r.Body)
	if err != nil {
		h.logger.ErrorCtx(r.Context(), "error decoding order request", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	items := make([]service.CreateItem, len(request.Items))
	for i, item := range request.Items {
		items[i] = service.CreateItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
	}

	order, err := h.service.Create(r.Context(), service.CreateRequest{
		OrderNumber: request.OrderNumber,
		Items:       items,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOrder):
			h.logger.InfoCtx(r.Context(), "invalid order rejected", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
		case errors.Is(err, service.ErrDuplicateOrder):
			h.logger.InfoCtx(r.Context(), "duplicate order rejected", zap.Error(err))
			w.WriteHeader(http.StatusConflict)
		default:
			h.logger.ErrorCtx(r.Context(), "error creating order", zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	if err := tryWriteResponseJSON(w, http.StatusCreated, orderResponse(order)); err != nil {
		h.logger.ErrorCtx(r.Context(), "error writing response", zap.Error(err))
	}
}
