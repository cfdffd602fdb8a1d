package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	ShutdownTimeout = 10 * time.Second
	// ConsumerShutdownGrace bounds an in-flight handler once the consumer is
	// told to stop. It stays below ShutdownTimeout.
	ConsumerShutdownGrace = 5 * time.Second
	// OutcomeWriteTimeout bounds the execution log write after an action.
	OutcomeWriteTimeout = 5 * time.Second
)

const (
	ServiceNameAPI    = "automation-api"
	ServiceNameWorker = "dispatch-worker"
)

// Log listing pagination.
const (
	DefaultLogPageSize = 50
	MaxLogPageSize     = 200
	MaxCSVExportRows   = 10000
)

const (
	AnalyticsTopTags     = 10
	AnalyticsRecentError = 10
	CacheKeyAnalytics    = "analytics:"
)

const (
	TaskKindDispatch = "automation.dispatch"
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)
