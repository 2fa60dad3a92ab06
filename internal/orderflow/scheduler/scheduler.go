package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"orderflow/internal/orderflow/data"
	"orderflow/pkg/logging"
	"orderflow/pkg/threadsafe"
)

type SweepRepository interface {
	Save(ctx context.Context, order *data.Order) (*data.Order, error)
	GetStale(ctx context.Context, status data.Status, cutoff time.Time, limit int) ([]data.Order, error)
	GetUnnotified(ctx context.Context, status data.Status, limit int) ([]data.Order, error)
	GetRetryable(ctx context.Context, status data.Status, retryLimit, limit int) ([]data.Order, error)
	CountCreatedBetween(ctx context.Context, start, end time.Time) (int64, error)
	CountByStatusCreatedBetween(ctx context.Context, status data.Status, start, end time.Time) (int64, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type OrderService interface {
	Process(ctx context.Context, id uuid.UUID) (*data.Order, error)
	Notify(ctx context.Context, id uuid.UUID) (*data.Order, error)
}

type Dispatcher interface {
	Submit(task func())
}

// DeliveryProbe asks the notification target whether it already knows an
// order. Delivery is at-least-once, so a crash between a successful send and
// the local save leaves a CALCULATED order the target has already accepted.
type DeliveryProbe interface {
	OrderStatus(ctx context.Context, orderNumber string) (string, error)
}

type StatsRecorder interface {
	RecordHourlyStats(created, notified, errored int64)
}

type Config struct {
	BatchSize       int
	StaleAfter      time.Duration
	RetryLimit      int
	RecoveryTimeout time.Duration
	CleanupEnabled  bool
	RetainCompleted time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:       50,
		StaleAfter:      5 * time.Minute,
		RetryLimit:      3,
		RecoveryTimeout: 30 * time.Second,
		CleanupEnabled:  false,
		RetainCompleted: 180 * 24 * time.Hour,
	}
}

// Scheduler runs the reconciliation sweeps that pick up orders the inline
// pipeline dropped: stale RECEIVED orders, calculated-but-undelivered
// notifications and recoverable ERROR orders. Each sweep queries a batch and
// hands the per-order work to the sweep pool; an in-flight set keeps
// overlapping sweeps from dispatching the same order twice.
type Scheduler struct {
	config     Config
	repository SweepRepository
	service    OrderService
	probe      DeliveryProbe
	pool       Dispatcher
	stats      StatsRecorder
	inFlight   *threadsafe.HashSet[uuid.UUID]
	cron       *cron.Cron
	logger     *logging.ZapLogger
}

func NewScheduler(
	config Config,
	repository SweepRepository,
	service OrderService,
	probe DeliveryProbe,
	pool Dispatcher,
	stats StatsRecorder,
	logger *logging.ZapLogger,
) *Scheduler {
	return &Scheduler{
		config:     config,
		repository: repository,
		service:    service,
		probe:      probe,
		pool:       pool,
		stats:      stats,
		inFlight:   threadsafe.NewHashSet[uuid.UUID](),
		cron:       cron.New(),
		logger:     logger,
	}
}

// Run registers the sweeps and starts the cron loop. Blocks until ctx is
// cancelled, then waits for running sweeps to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	entries := []struct {
		schedule string
		job      func()
	}{
		{"@every 1m", s.ProcessStaleReceived},
		{"@every 5m", s.NotifyCalculated},
		{"@every 15m", s.RecoverErrored},
		{"0 * * * *", s.RecordHourlyStats},
	}
	if s.config.CleanupEnabled {
		entries = append(entries, struct {
			schedule string
			job      func()
		}{"0 3 * * *", s.CleanupCompleted})
	}
	for _, entry := range entries {
		if _, err := s.cron.AddFunc(entry.schedule, entry.job); err != nil {
			return err
		}
	}

	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

// ProcessStaleReceived picks up orders that stayed RECEIVED past the stale
// cutoff, typically because the background pipeline was lost to a restart.
func (s *Scheduler) ProcessStaleReceived() {
	ctx := logging.WithContextFields(context.Background(), zap.String("sweep", "processReceived"))

	cutoff := time.Now().Add(-s.config.StaleAfter)
	orders, err := s.repository.GetStale(ctx, data.ReceivedStatus, cutoff, s.config.BatchSize)
	if err != nil {
		s.logger.ErrorCtx(ctx, "error loading stale orders", zap.Error(err))
		return
	}
	s.dispatch(ctx, orders, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.service.Process(ctx, id)
		return err
	})
}

// NotifyCalculated retries delivery for orders that are CALCULATED but still
// unnotified, the state a deferred or failed notify leaves behind.
func (s *Scheduler) NotifyCalculated() {
	ctx := logging.WithContextFields(context.Background(), zap.String("sweep", "notifyCalculated"))

	orders, err := s.repository.GetUnnotified(ctx, data.CalculatedStatus, s.config.BatchSize)
	if err != nil {
		s.logger.ErrorCtx(ctx, "error loading unnotified orders", zap.Error(err))
		return
	}
	for i := range orders {
		order := orders[i]
		if s.inFlight.Contains(order.ID) {
			continue
		}
		s.inFlight.Add(order.ID)
		s.pool.Submit(func() {
			defer s.inFlight.Remove(order.ID)
			s.redeliver(ctx, order)
		})
	}
}

// redeliver probes the target before re-sending. A target that already knows
// the order means a previous delivery landed but the local save did not; the
// delivery is recorded without a second send. Any probe failure falls through
// to a normal delivery attempt.
func (s *Scheduler) redeliver(ctx context.Context, order data.Order) {
	if _, err := s.probe.OrderStatus(ctx, order.OrderNumber); err == nil {
		order.Notified = true
		order.Status = data.NotifiedStatus
		now := time.Now()
		order.CompletedAt = &now
		if _, err := s.repository.Save(ctx, &order); err != nil {
			s.logger.ErrorCtx(ctx, "error recording confirmed delivery",
				zap.String("orderNumber", order.OrderNumber), zap.Error(err))
			return
		}
		s.logger.InfoCtx(ctx, "delivery confirmed by target",
			zap.String("orderNumber", order.OrderNumber))
		return
	}

	if _, err := s.service.Notify(ctx, order.ID); err != nil {
		s.logger.ErrorCtx(ctx, "sweep delivery failed",
			zap.String("orderNumber", order.OrderNumber), zap.Error(err))
	}
}

// RecoverErrored resets ERROR orders back to RECEIVED and reruns processing,
// as long as they have retry budget left. The rerun is bounded by the recovery
// timeout; an order that exceeds it stays wherever the timeout left it and
// waits for the next sweep.
func (s *Scheduler) RecoverErrored() {
	ctx := logging.WithContextFields(context.Background(), zap.String("sweep", "recoverErrored"))

	orders, err := s.repository.GetRetryable(ctx, data.ErrorStatus, s.config.RetryLimit, s.config.BatchSize)
	if err != nil {
		s.logger.ErrorCtx(ctx, "error loading retryable orders", zap.Error(err))
		return
	}
	for i := range orders {
		order := orders[i]
		if s.inFlight.Contains(order.ID) {
			continue
		}
		s.inFlight.Add(order.ID)
		s.pool.Submit(func() {
			defer s.inFlight.Remove(order.ID)
			s.recoverOrder(ctx, order)
		})
	}
}

// recoverOrder flips an errored order back to RECEIVED with the retry counter
// bumped, then reruns processing under the recovery timeout. The save is
// version-guarded, so a concurrent retry of the same order loses the race and
// skips. An order that exceeds the timeout stays wherever the timeout left it
// and waits for the next sweep.
func (s *Scheduler) recoverOrder(ctx context.Context, order data.Order) {
	order.RetryCount++
	order.Status = data.ReceivedStatus
	saved, err := s.repository.Save(ctx, &order)
	if err != nil {
		s.logger.WarnCtx(ctx, "errored order already picked up",
			zap.String("orderId", order.ID.String()),
			zap.Error(err))
		return
	}
	s.logger.InfoCtx(ctx, "retrying errored order",
		zap.String("orderNumber", saved.OrderNumber),
		zap.Int("retryCount", saved.RetryCount))

	ctx, cancel := context.WithTimeout(ctx, s.config.RecoveryTimeout)
	defer cancel()

	if _, err := s.service.Process(ctx, saved.ID); err != nil {
		s.logger.WarnCtx(ctx, "recovery attempt failed",
			zap.String("orderId", saved.ID.String()),
			zap.Int("retryCount", saved.RetryCount),
			zap.Error(err))
	}
}

// RecordHourlyStats publishes counts for the previous full hour.
func (s *Scheduler) RecordHourlyStats() {
	ctx := logging.WithContextFields(context.Background(), zap.String("sweep", "hourlyStats"))

	end := time.Now().Truncate(time.Hour)
	start := end.Add(-time.Hour)

	created, err := s.repository.CountCreatedBetween(ctx, start, end)
	if err != nil {
		s.logger.ErrorCtx(ctx, "error counting created orders", zap.Error(err))
		return
	}
	notified, err := s.repository.CountByStatusCreatedBetween(ctx, data.NotifiedStatus, start, end)
	if err != nil {
		s.logger.ErrorCtx(ctx, "error counting notified orders", zap.Error(err))
		return
	}
	errored, err := s.repository.CountByStatusCreatedBetween(ctx, data.ErrorStatus, start, end)
	if err != nil {
		s.logger.ErrorCtx(ctx, "error counting errored orders", zap.Error(err))
		return
	}

	s.stats.RecordHourlyStats(created, notified, errored)
	s.logger.InfoCtx(ctx, "hourly stats recorded",
		zap.Int64("created", created),
		zap.Int64("notified", notified),
		zap.Int64("errored", errored))
}

// CleanupCompleted drops completed orders past the retention window.
func (s *Scheduler) CleanupCompleted() {
	ctx := logging.WithContextFields(context.Background(), zap.String("sweep", "cleanup"))

	cutoff := time.Now().Add(-s.config.RetainCompleted)
	deleted, err := s.repository.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		s.logger.ErrorCtx(ctx, "error deleting completed orders", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.InfoCtx(ctx, "completed orders removed", zap.Int64("deleted", deleted))
	}
}

func (s *Scheduler) dispatch(ctx context.Context, orders []data.Order, handle func(ctx context.Context, id uuid.UUID) error) {
	for i := range orders {
		id := orders[i].ID
		if s.inFlight.Contains(id) {
			continue
		}
		s.inFlight.Add(id)
		s.pool.Submit(func() {
			defer s.inFlight.Remove(id)
			if err := handle(ctx, id); err != nil {
				s.logger.ErrorCtx(ctx, "sweep task failed",
					zap.String("orderId", id.String()),
					zap.Error(err))
			}
		})
	}
}
