package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Attestation Job Metrics
	attestationJobsTotal    *prometheus.CounterVec
	attestationJobDuration  *prometheus.HistogramVec
	attestationLedgerRows   *prometheus.HistogramVec
	proofDuration           *prometheus.HistogramVec
	guestBytesHashed        *prometheus.HistogramVec
	crossCheckFailuresTotal prometheus.Counter

	// Collaborator RPC Metrics (alchemy, ens, solana)
	rpcCallsTotal    *prometheus.CounterVec
	rpcCallDuration  *prometheus.HistogramVec
	rpcRateLimitHits *prometheus.CounterVec

	// Transfer Normalization Metrics
	transfersFetchedTotal *prometheus.CounterVec
	transfersDroppedTotal *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Attestation Job Metrics
		attestationJobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attestation_jobs_total",
				Help: "Total number of attestation jobs by terminal status",
			},
			[]string{"status", "user_type"},
		),
		attestationJobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "attestation_job_duration_seconds",
				Help:    "Duration of attestation jobs from start to terminal state",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"status"},
		),
		attestationLedgerRows: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "attestation_ledger_rows",
				Help:    "Number of ledger rows per attestation job",
				Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{"user_type"},
		),
		proofDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proof_duration_seconds",
				Help:    "Duration of proof generation in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
			},
			[]string{"status"},
		),
		guestBytesHashed: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guest_bytes_hashed",
				Help:    "Size in bytes of the canonical ledger encoding hashed per run",
				Buckets: []float64{64, 256, 1024, 4096, 16384, 65536, 262144},
			},
			[]string{"user_type"},
		),
		crossCheckFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cross_check_failures_total",
				Help: "Total number of host/guest cross-check divergences",
			},
		),

		// Collaborator RPC Metrics
		rpcCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collaborator_rpc_calls_total",
				Help: "Total number of collaborator RPC calls by provider, method, and status",
			},
			[]string{"provider", "method", "status"},
		),
		rpcCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collaborator_rpc_call_duration_seconds",
				Help:    "Duration of collaborator RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"provider", "method"},
		),
		rpcRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collaborator_rpc_rate_limit_hits_total",
				Help: "Total number of collaborator rate limit hits (429 errors)",
			},
			[]string{"provider"},
		),

		// Transfer Normalization Metrics
		transfersFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfers_fetched_total",
				Help: "Total number of transfers fetched per chain",
			},
			[]string{"chain", "direction"},
		),
		transfersDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfers_dropped_total",
				Help: "Total number of transfers dropped during normalization",
			},
			[]string{"chain", "reason"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
			[]string{"job_id"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Attestation metric helpers

// RecordAttestationJob records a job reaching a terminal state.
func (m *Metrics) RecordAttestationJob(status, userType string, duration float64) {
	m.attestationJobsTotal.WithLabelValues(status, userType).Inc()
	m.attestationJobDuration.WithLabelValues(status).Observe(duration)
}

// RecordLedgerRows records the size of a job's ledger.
func (m *Metrics) RecordLedgerRows(userType string, rows int) {
	m.attestationLedgerRows.WithLabelValues(userType).Observe(float64(rows))
}

// RecordProof records a proving run with duration.
func (m *Metrics) RecordProof(err error, duration float64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.proofDuration.WithLabelValues(status).Observe(duration)
}

// RecordGuestBytesHashed records the canonical encoding size fed to the
// guest hash.
func (m *Metrics) RecordGuestBytesHashed(userType string, n int) {
	m.guestBytesHashed.WithLabelValues(userType).Observe(float64(n))
}

// RecordCrossCheckFailure records a host/guest divergence.
func (m *Metrics) RecordCrossCheckFailure() {
	m.crossCheckFailuresTotal.Inc()
}

// Collaborator RPC metric helpers

// RecordRPCCall records a collaborator RPC call with duration.
func (m *Metrics) RecordRPCCall(provider, method, status string, duration float64) {
	m.rpcCallsTotal.WithLabelValues(provider, method, status).Inc()
	m.rpcCallDuration.WithLabelValues(provider, method).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(provider string) {
	m.rpcRateLimitHits.WithLabelValues(provider).Inc()
}

// RecordTransfersFetched records transfers fetched from a chain.
func (m *Metrics) RecordTransfersFetched(chain, direction string, count int) {
	m.transfersFetchedTotal.WithLabelValues(chain, direction).Add(float64(count))
}

// RecordTransfersDropped records transfers dropped during normalization.
func (m *Metrics) RecordTransfersDropped(chain, reason string, count int) {
	m.transfersDroppedTotal.WithLabelValues(chain, reason).Add(float64(count))
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(jobID string, delta float64) {
	m.sseActiveConnections.WithLabelValues(jobID).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
