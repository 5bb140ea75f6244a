package prometheus

// AppMetrics is the pipeline's full metric set, registered once at startup and
// injected into the components that record against it.
type AppMetrics struct {
	// HTTP layer
	HTTPRequestsTotal   CounterVec // method, path, status
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Ingestion
	IngestRowsTotal     CounterVec // outcome: accepted | rejected | duplicate | existing
	IngestBatchDuration HistogramVec
	IngestBatchRows     HistogramVec
	IngestChunksTotal   CounterVec // outcome: committed | failed

	// Prediction
	PredictionJobsTotal     CounterVec // outcome: succeeded | failed | retried
	PredictionJobQueueDepth GaugeVec   // state: queued | in_flight
	PredictionEngineCalls   CounterVec // outcome: ok | error | timeout
	PredictionCallDuration  HistogramVec
	PredictionCycleDuration HistogramVec

	// Submission lifecycle
	SubmissionTransitions CounterVec // from, to
	SubmissionsByStatus   GaugeVec   // status

	// Results reconciliation
	ResultRecordsTotal CounterVec // outcome: accepted | rejected
	ResultSetsTotal    CounterVec // outcome: stored | qc_failed

	// Infrastructure
	DBQueryDuration    HistogramVec // operation
	CacheOpsTotal      CounterVec   // operation, outcome: hit | miss | error
	EventsPublished    CounterVec   // topic, outcome: ok | error
	ObjectStoreOps     CounterVec   // operation, outcome: ok | error
	HealthCheckStatus  GaugeVec     // component; 1 healthy, 0 unhealthy
}

// Histogram bucket sets tuned per concern.
var (
	httpDurationBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	batchDurationBuckets  = []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600}
	engineCallBuckets     = []float64{1, 5, 15, 30, 60, 120, 180, 240, 300}
	batchRowBuckets       = []float64{10, 100, 1_000, 10_000, 50_000, 100_000, 500_000}
	dbDurationBuckets     = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// NewAppMetrics registers the full metric set against c.
func NewAppMetrics(c MetricsCollector) *AppMetrics {
	return &AppMetrics{
		HTTPRequestsTotal: c.RegisterCounter("http_requests_total",
			"HTTP requests by method, path, and status code.",
			"method", "path", "status"),
		HTTPRequestDuration: c.RegisterHistogram("http_request_duration_seconds",
			"HTTP request latency.", httpDurationBuckets,
			"method", "path"),
		HTTPActiveRequests: c.RegisterGauge("http_active_requests",
			"In-flight HTTP requests.",
			"method"),

		IngestRowsTotal: c.RegisterCounter("ingest_rows_total",
			"Upload rows processed, by outcome.",
			"outcome"),
		IngestBatchDuration: c.RegisterHistogram("ingest_batch_duration_seconds",
			"Wall time per upload batch.", batchDurationBuckets),
		IngestBatchRows: c.RegisterHistogram("ingest_batch_rows",
			"Row count per upload batch.", batchRowBuckets),
		IngestChunksTotal: c.RegisterCounter("ingest_chunks_total",
			"Persistence chunks, by outcome.",
			"outcome"),

		PredictionJobsTotal: c.RegisterCounter("prediction_jobs_total",
			"Prediction jobs reaching an outcome.",
			"outcome"),
		PredictionJobQueueDepth: c.RegisterGauge("prediction_job_queue_depth",
			"Prediction jobs by live state.",
			"state"),
		PredictionEngineCalls: c.RegisterCounter("prediction_engine_calls_total",
			"External prediction engine calls, by outcome.",
			"outcome"),
		PredictionCallDuration: c.RegisterHistogram("prediction_call_duration_seconds",
			"External prediction engine call latency.", engineCallBuckets),
		PredictionCycleDuration: c.RegisterHistogram("prediction_cycle_duration_seconds",
			"Scheduler cycle wall time.", batchDurationBuckets),

		SubmissionTransitions: c.RegisterCounter("submission_transitions_total",
			"Submission status transitions.",
			"from", "to"),
		SubmissionsByStatus: c.RegisterGauge("submissions_by_status",
			"Submissions currently in each status.",
			"status"),

		ResultRecordsTotal: c.RegisterCounter("result_records_total",
			"Uploaded result records, by outcome.",
			"outcome"),
		ResultSetsTotal: c.RegisterCounter("result_sets_total",
			"Result sets processed, by outcome.",
			"outcome"),

		DBQueryDuration: c.RegisterHistogram("db_query_duration_seconds",
			"Database query latency by operation.", dbDurationBuckets,
			"operation"),
		CacheOpsTotal: c.RegisterCounter("cache_ops_total",
			"Cache operations, by operation and outcome.",
			"operation", "outcome"),
		EventsPublished: c.RegisterCounter("events_published_total",
			"Domain events published, by topic and outcome.",
			"topic", "outcome"),
		ObjectStoreOps: c.RegisterCounter("object_store_ops_total",
			"Object storage operations, by operation and outcome.",
			"operation", "outcome"),
		HealthCheckStatus: c.RegisterGauge("health_check_status",
			"Component health: 1 healthy, 0 unhealthy.",
			"component"),
	}
}

// NewNopAppMetrics returns an AppMetrics whose series discard every write.
// For tests.
func NewNopAppMetrics() *AppMetrics {
	return &AppMetrics{
		HTTPRequestsTotal:       noopCounterVec{},
		HTTPRequestDuration:     noopHistogramVec{},
		HTTPActiveRequests:      noopGaugeVec{},
		IngestRowsTotal:         noopCounterVec{},
		IngestBatchDuration:     noopHistogramVec{},
		IngestBatchRows:         noopHistogramVec{},
		IngestChunksTotal:       noopCounterVec{},
		PredictionJobsTotal:     noopCounterVec{},
		PredictionJobQueueDepth: noopGaugeVec{},
		PredictionEngineCalls:   noopCounterVec{},
		PredictionCallDuration:  noopHistogramVec{},
		PredictionCycleDuration: noopHistogramVec{},
		SubmissionTransitions:   noopCounterVec{},
		SubmissionsByStatus:     noopGaugeVec{},
		ResultRecordsTotal:      noopCounterVec{},
		ResultSetsTotal:         noopCounterVec{},
		DBQueryDuration:         noopHistogramVec{},
		CacheOpsTotal:           noopCounterVec{},
		EventsPublished:         noopCounterVec{},
		ObjectStoreOps:          noopCounterVec{},
		HealthCheckStatus:       noopGaugeVec{},
	}
}
