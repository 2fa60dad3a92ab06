package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"orderflow/internal/orderflow/data"
	"orderflow/pkg/logging"
)

type OrderGettingService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*data.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*data.Order, error)
}

type OrderGettingHandler struct {
	service OrderGettingService
	logger  *logging.ZapLogger
}

func NewOrderGettingHandler(service OrderGettingService, logger *logging.ZapLogger) *OrderGettingHandler {
	return &OrderGettingHandler{
		service: service,
		logger:  logger,
	}
}

func (h *OrderGettingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDFromRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	order, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := tryWriteResponseJSON(w, http.StatusOK, orderResponse(order)); err != nil {
		h.logger.ErrorCtx(r.Context(), "error writing response", zap.Error(err))
	}
}

// ByNumber resolves an order by its public order number instead of the id.
func (h *OrderGettingHandler) ByNumber(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")
	if orderNumber == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	order, err := h.service.GetByNumber(r.Context(), orderNumber)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := tryWriteResponseJSON(w, http.StatusOK, orderResponse(order)); err != nil {
		h.logger.ErrorCtx(r.Context(), "error writing response", zap.Error(err))
	}
}

func (h *OrderGettingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, data.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.logger.ErrorCtx(r.Context(), "error getting order", zap.Error(err))
	w.WriteHeader(http.StatusInternalServerError)
}
