package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TriggerEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_trigger_events_total",
			Help: "Total number of tag-change events received (count)",
		},
		[]string{"outcome"},
	)

	RulesMatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_rules_matched_total",
			Help: "Total number of rule matches produced by the trigger matcher (count)",
		},
		[]string{"action_type"},
	)

	RulesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_rules_skipped_total",
			Help: "Total number of stored rules skipped because they are malformed (count)",
		},
		[]string{"reason"},
	)

	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_dispatch_total",
			Help: "Total number of dispatch attempts by outcome (count)",
		},
		[]string{"action_type", "status"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "automation_dispatch_duration_ms",
			Help:    "Duration of action execution in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"action_type"},
	)

	DispatchQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "automation_dispatch_queue_size",
			Help: "Current number of tasks waiting in the in-process dispatch queue (count)",
		},
	)

	StalePendingLogs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "automation_stale_pending_logs",
			Help: "Execution log rows still pending past the staleness threshold (count)",
		},
	)

	AnalyticsCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_analytics_cache_total",
			Help: "Analytics cache lookups by result (count)",
		},
		[]string{"result"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"operation", "status"},
	)
)

var (
	registerShared sync.Once
	registerAPI    sync.Once
	registerWorker sync.Once
)

func registerSharedMetrics() {
	registerShared.Do(func() {
		prometheus.MustRegister(DispatchTotal)
		prometheus.MustRegister(DispatchDuration)
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
		prometheus.MustRegister(DatabaseQueryDuration)
		prometheus.MustRegister(RetryAttemptsTotal)
		prometheus.MustRegister(KafkaMessagesWrittenTotal)
	})
}

func RegisterAPIMetrics() {
	registerSharedMetrics()
	registerAPI.Do(func() {
		prometheus.MustRegister(TriggerEventsTotal)
		prometheus.MustRegister(RulesMatchedTotal)
		prometheus.MustRegister(RulesSkippedTotal)
		prometheus.MustRegister(DispatchQueueSize)
		prometheus.MustRegister(AnalyticsCacheTotal)
		prometheus.MustRegister(RateLimitRequestsTotal)
	})
}

func RegisterWorkerMetrics() {
	registerSharedMetrics()
	registerWorker.Do(func() {
		prometheus.MustRegister(StalePendingLogs)
		prometheus.MustRegister(DLQMessagesTotal)
		prometheus.MustRegister(KafkaMessagesReadTotal)
	})
}

func IncTriggerEvent(outcome string) {
	TriggerEventsTotal.WithLabelValues(outcome).Inc()
}

func IncRuleMatched(actionType string) {
	RulesMatchedTotal.WithLabelValues(actionType).Inc()
}

func IncRuleSkipped(reason string) {
	RulesSkippedTotal.WithLabelValues(reason).Inc()
}

func IncDispatch(actionType, status string) {
	DispatchTotal.WithLabelValues(actionType, status).Inc()
}

func ObserveDispatchDuration(actionType string, duration time.Duration) {
	DispatchDuration.WithLabelValues(actionType).Observe(float64(duration.Milliseconds()))
}

func SetDispatchQueueSize(size int) {
	DispatchQueueSize.Set(float64(size))
}

func SetStalePendingLogs(count int) {
	StalePendingLogs.Set(float64(count))
}

func IncAnalyticsCache(result string) {
	AnalyticsCacheTotal.WithLabelValues(result).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveDatabaseQuery(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DatabaseQueryDuration.WithLabelValues(operation, status).Observe(float64(time.Since(start).Milliseconds()))
}
