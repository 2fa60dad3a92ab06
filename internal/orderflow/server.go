package orderflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderflow/internal/orderflow/handlers"
	"orderflow/internal/orderflow/middleware"
	"orderflow/pkg/logging"
)

type Config struct {
	ServerAddress   string
	ShutdownTimeout time.Duration
}

type OrderService interface {
	handlers.OrderCreatingService
	handlers.OrderGettingService
	handlers.OrdersListingService
	handlers.OrderTransitionService
}

type Server struct {
	logger     *logging.ZapLogger
	httpServer *http.Server
	cfg        Config
}

func NewServer(
	cfg Config,
	orderService OrderService,
	logger *logging.ZapLogger,
) *Server {
	srv := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: createMux(orderService, logger),
	}

	return &Server{
		cfg:        cfg,
		logger:     logger,
		httpServer: srv,
	}
}

func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server ListenAndServe failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func createMux(
	orderService OrderService,
	logger *logging.ZapLogger,
) *chi.Mux {

	creatingHandler := handlers.NewOrderCreatingHandler(orderService, logger)
	gettingHandler := handlers.NewOrderGettingHandler(orderService, logger)
	listingHandler := handlers.NewOrdersListingHandler(orderService, logger)
	statusHandler := handlers.NewOrderStatusHandler(orderService, logger)
	transitionHandler := handlers.NewOrderTransitionHandler(orderService, logger)

	router := chi.NewRouter()
	router.Use(middleware.NewLoggerContext().CreateHandler)
	router.Use(middleware.NewPanicRecover(logger).CreateHandler)

	router.Route("/api/orders", func(router chi.Router) {
		router.Post("/", creatingHandler.ServeHTTP)
		router.Get("/", listingHandler.ServeHTTP)
		router.Get("/{orderId}", gettingHandler.ServeHTTP)
		router.Get("/{orderId}/status", statusHandler.ServeHTTP)
		router.Post("/{orderId}/process", transitionHandler.Process)
		router.Post("/{orderId}/notify", transitionHandler.Notify)
		router.Get("/number/{orderNumber}", gettingHandler.ByNumber)
	})

	router.Handle("/metrics", promhttp.Handler())

	return router
}
