package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RoutingKillmailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_killmails_total",
			Help: "Total number of killmails evaluated by routing service (count)",
		},
		[]string{"status"},
	)

	RoutingDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_decisions_total",
			Help: "Total number of routing decisions produced (count)",
		},
		[]string{"classification"},
	)

	RoutingEvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routing_evaluation_duration_ms",
			Help:    "Filter set evaluation duration per killmail in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"status"},
	)

	RoutingActiveFilterSets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "routing_active_filter_sets",
			Help: "Number of filter sets loaded by routing service (count)",
		},
	)

	RuleCompileWarningsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_compile_warnings_total",
			Help: "Total number of rule tokens dropped during compilation (count)",
		},
		[]string{"kind", "reason"},
	)

	RuleCompileErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rule_compile_errors_total",
			Help: "Total number of stored rules that failed to compile (count)",
		},
	)

	CompiledCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compiled_cache_requests_total",
			Help: "Compiled filter set cache lookups (count)",
		},
		[]string{"result"},
	)

	DedupDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_deliveries_total",
			Help: "Total number of deliveries checked for duplicates (count)",
		},
		[]string{"status"},
	)

	DedupProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dedup_processing_duration_ms",
			Help:    "Processing duration for delivery claims in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"status"},
	)

	IngestKillmailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_killmails_total",
			Help: "Total number of killmails received from the feed (count)",
		},
		[]string{"status"},
	)

	IngestFeedSkew = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_feed_skew_seconds",
			Help:    "Delay between killmail time and ingestion in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900, 3600},
		},
	)

	IngestFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_fetch_duration_ms",
			Help:    "Duration of feed and detail requests in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"endpoint"},
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

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

var (
	fallbackOnce sync.Once
	databaseOnce sync.Once
)

func RegisterRoutingMetrics() {
	prometheus.MustRegister(RoutingKillmailsTotal)
	prometheus.MustRegister(RoutingDecisionsTotal)
	prometheus.MustRegister(RoutingEvaluationDuration)
	prometheus.MustRegister(RoutingActiveFilterSets)
	prometheus.MustRegister(RuleCompileWarningsTotal)
	prometheus.MustRegister(RuleCompileErrorsTotal)
	prometheus.MustRegister(CompiledCacheRequestsTotal)
	registerFallbackUsageTotalOnce()
	registerDatabaseMetricsOnce()
}

func RegisterDedupMetrics() {
	prometheus.MustRegister(DedupDeliveriesTotal)
	prometheus.MustRegister(DedupProcessingDuration)
	registerFallbackUsageTotalOnce()
}

func RegisterIngestMetrics() {
	prometheus.MustRegister(IngestKillmailsTotal)
	prometheus.MustRegister(IngestFeedSkew)
	prometheus.MustRegister(IngestFetchDuration)
}

func registerFallbackUsageTotalOnce() {
	fallbackOnce.Do(func() {
		prometheus.MustRegister(FallbackUsageTotal)
	})
}

// registerDatabaseMetricsOnce covers processes that read filter sets from
// both the routing and management paths.
func registerDatabaseMetricsOnce() {
	databaseOnce.Do(func() {
		prometheus.MustRegister(DatabaseQueriesTotal)
		prometheus.MustRegister(DatabaseQueryDuration)
	})
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaConsumerLag)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterManagementMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(RuleCompileWarningsTotal)
	registerDatabaseMetricsOnce()
}

func ObserveRoutingDuration(duration time.Duration, status string) {
	RoutingEvaluationDuration.WithLabelValues(status).Observe(float64(duration.Microseconds()) / 1000)
}

func ObserveDedupDuration(duration time.Duration, status string) {
	DedupProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func SetRoutingActiveFilterSets(count int) {
	RoutingActiveFilterSets.Set(float64(count))
}

func IncRoutingDecision(classification string) {
	RoutingDecisionsTotal.WithLabelValues(classification).Inc()
}

func IncRuleCompileWarning(kind, reason string) {
	RuleCompileWarningsTotal.WithLabelValues(kind, reason).Inc()
}

func IncCompiledCache(result string) {
	CompiledCacheRequestsTotal.WithLabelValues(result).Inc()
}

func ObserveFeedSkew(skew time.Duration) {
	IngestFeedSkew.Observe(skew.Seconds())
}

func ObserveIngestFetchDuration(endpoint string, duration time.Duration) {
	IngestFetchDuration.WithLabelValues(endpoint).Observe(float64(duration.Milliseconds()))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}
