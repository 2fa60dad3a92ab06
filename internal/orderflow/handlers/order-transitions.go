package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orderflow/internal/orderflow/data"
	"orderflow/pkg/logging"
)

type OrderTransitionService interface {
	Process(ctx context.Context, id uuid.UUID) (*data.Order, error)
	Notify(ctx context.Context, id uuid.UUID) (*data.Order, error)
}

// OrderTransitionHandler exposes manual triggers for the pipeline stages. The
// service operations are idempotent, so triggering a stage that already ran
// returns the current state instead of failing.
type OrderTransitionHandler struct {
	service OrderTransitionService
	logger  *logging.ZapLogger
}

func NewOrderTransitionHandler(service OrderTransitionService, logger *logging.ZapLogger) *OrderTransitionHandler {
	return &OrderTransitionHandler{
		service: service,
		logger:  logger,
	}
}

func (h *OrderTransitionHandler) Process(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.Process)
}

func (h *OrderTransitionHandler) Notify(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.Notify)
}

func (h *OrderTransitionHandler) run(
	w http.ResponseWriter,
	r *http.Request,
	transition func(ctx context.Context, id uuid.UUID) (*data.Order, error),
) {
	id, err := orderIDFromRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	order, err := transition(r.Context(), id)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.ErrorCtx(r.Context(), "error running order transition", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := tryWriteResponseJSON(w, http.StatusOK, orderResponse(order)); err != nil {
		h.logger.ErrorCtx(r.Context(), "error writing response", zap.Error(err))
	}
}
