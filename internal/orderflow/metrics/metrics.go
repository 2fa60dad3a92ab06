package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OrderMetrics is the telemetry sink for the order pipeline: counters per
// pipeline outcome, timings per stage and per external collaborator, and the
// hourly reconciliation stats.
type OrderMetrics struct {
	received   prometheus.Counter
	processed  prometheus.Counter
	notified   prometheus.Counter
	errored    prometheus.Counter
	duplicates prometheus.Counter

	creationTime     prometheus.Histogram
	processingTime   prometheus.Histogram
	notificationTime prometheus.Histogram
	catalogTime      prometheus.Histogram
	notifierTime     prometheus.Histogram

	hourlyCreated  prometheus.Gauge
	hourlyNotified prometheus.Gauge
	hourlyErrored  prometheus.Gauge
}

func New(reg prometheus.Registerer) *OrderMetrics {
	factory := promauto.With(reg)
	return &OrderMetrics{
		received: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_received_total",
			Help: "Orders accepted at intake.",
		}),
		processed: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_processed_total",
			Help: "Orders priced and calculated.",
		}),
		notified: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_notified_total",
			Help: "Orders delivered to the notification target.",
		}),
		errored: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_error_total",
			Help: "Orders forced into the ERROR status.",
		}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_duplicates_total",
			Help: "Rejected duplicate submissions.",
		}),
		creationTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_creation_seconds",
			Help:    "Time spent creating an order.",
			Buckets: prometheus.DefBuckets,
		}),
		processingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_processing_seconds",
			Help:    "Time spent processing an order.",
			Buckets: prometheus.DefBuckets,
		}),
		notificationTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_notification_seconds",
			Help:    "Time spent notifying an order.",
			Buckets: prometheus.DefBuckets,
		}),
		catalogTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_request_seconds",
			Help:    "Product catalog response time.",
			Buckets: prometheus.DefBuckets,
		}),
		notifierTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "notifier_request_seconds",
			Help:    "Notification target response time.",
			Buckets: prometheus.DefBuckets,
		}),
		hourlyCreated: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orders_hourly_created",
			Help: "Orders created during the last full hour.",
		}),
		hourlyNotified: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orders_hourly_notified",
			Help: "Orders notified during the last full hour.",
		}),
		hourlyErrored: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orders_hourly_errored",
			Help: "Orders errored during the last full hour.",
		}),
	}
}

func (m *OrderMetrics) IncReceived()   { m.received.Inc() }
func (m *OrderMetrics) IncProcessed()  { m.processed.Inc() }
func (m *OrderMetrics) IncNotified()   { m.notified.Inc() }
func (m *OrderMetrics) IncErrored()    { m.errored.Inc() }
func (m *OrderMetrics) IncDuplicates() { m.duplicates.Inc() }

func (m *OrderMetrics) ObserveCreation(d time.Duration)     { m.creationTime.Observe(d.Seconds()) }
func (m *OrderMetrics) ObserveProcessing(d time.Duration)   { m.processingTime.Observe(d.Seconds()) }
func (m *OrderMetrics) ObserveNotification(d time.Duration) { m.notificationTime.Observe(d.Seconds()) }
func (m *OrderMetrics) ObserveCatalogCall(d time.Duration)  { m.catalogTime.Observe(d.Seconds()) }
func (m *OrderMetrics) ObserveNotifierCall(d time.Duration) { m.notifierTime.Observe(d.Seconds()) }

func (m *OrderMetrics) RecordHourlyStats(created, notified, errored int64) {
	m.hourlyCreated.Set(float64(created))
	m.hourlyNotified.Set(float64(notified))
	m.hourlyErrored.Set(float64(errored))
}
