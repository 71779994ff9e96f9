package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "fee_indexer"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	Scraper = "scraper"
	RPC     = "rpc"
	Store   = "store"
	Stream  = "stream"
	API     = "api"
)

// Retried operation label values.
const (
	OpReadCheckpoint  = "read_checkpoint"
	OpWriteCheckpoint = "write_checkpoint"
	OpLatestHeight    = "latest_height"
	OpFetchEvents     = "fetch_events"
	OpBulkInsert      = "bulk_insert"
	OpPublish         = "publish"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple indexer instances.
type Labels struct {
	EVMChainID    uint64 // EVM chain ID (e.g., 137 for Polygon)
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.EVMChainID != 0 {
		labels["evm_chain_id"] = strconv.FormatUint(l.EVMChainID, 10)
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Scrape progress
	lastIngested  prometheus.Gauge
	chainHead     prometheus.Gauge
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	batches       *prometheus.CounterVec
	batchDuration prometheus.Histogram
	retries       *prometheus.CounterVec

	// Fee events
	eventsFetched  prometheus.Counter
	eventsInserted prometheus.Counter

	// RPC metrics
	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	rpcInFlight prometheus.Gauge

	// Storage
	storeOps      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec

	// Fee stream
	messagesPublished *prometheus.CounterVec

	// Query API
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// For metrics with constant labels (e.g., evm_chain_id), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

var latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lastIngested: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Scraper,
			Name:      "last_ingested_block",
			Help:      "Last block height recorded in the checkpoint",
		}),
		chainHead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Scraper,
			Name:      "chain_head_block",
			Help:      "Chain height observed at the start of the latest run",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Scraper,
			Name:      "runs_total",
			Help:      "Total scrape runs by status",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Scraper,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a scrape run",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Scraper,
			Name:      "batches_total",
			Help:      "Total block batches processed by status",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Scraper,
			Name:      "batch_duration_seconds",
			Help:      "Time to fetch, persist and publish one block batch",
			Buckets:   latencyBuckets,
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Scraper,
			Name:      "retries_total",
			Help:      "Total retried attempts by operation",
		}, []string{"operation"}),
		eventsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Scraper,
			Name:      "events_fetched_total",
			Help:      "Total FeesCollected events fetched from the chain",
		}),
		eventsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Scraper,
			Name:      "events_inserted_total",
			Help:      "Total fee events newly stored (duplicates excluded)",
		}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "calls_total",
			Help:      "Total RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "duration_seconds",
			Help:      "RPC call duration in seconds",
			Buckets:   latencyBuckets,
		}, []string{"method"}),
		rpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "in_flight",
			Help:      "Number of RPC calls currently in progress",
		}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Store,
			Name:      "operations_total",
			Help:      "Total storage operations by operation and status",
		}, []string{"operation", "status"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Store,
			Name:      "duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   latencyBuckets,
		}, []string{"operation"}),
		messagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Stream,
			Name:      "messages_published_total",
			Help:      "Total fee messages published to the fee stream by status",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: API,
			Name:      "requests_total",
			Help:      "Total API requests by route and status code",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: API,
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   latencyBuckets,
		}, []string{"route"}),
	}

	err := errors.Join(
		reg.Register(m.lastIngested),
		reg.Register(m.chainHead),
		reg.Register(m.runs),
		reg.Register(m.runDuration),
		reg.Register(m.batches),
		reg.Register(m.batchDuration),
		reg.Register(m.retries),
		reg.Register(m.eventsFetched),
		reg.Register(m.eventsInserted),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
		reg.Register(m.rpcInFlight),
		reg.Register(m.storeOps),
		reg.Register(m.storeDuration),
		reg.Register(m.messagesPublished),
		reg.Register(m.httpRequests),
		reg.Register(m.httpDuration),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// SetCheckpoint records the last ingested block written to the checkpoint.
func (m *Metrics) SetCheckpoint(block uint64) {
	if m == nil {
		return
	}
	m.lastIngested.Set(float64(block))
}

// SetChainHead records the chain height a run scrapes up to.
func (m *Metrics) SetChainHead(block uint64) {
	if m == nil {
		return
	}
	m.chainHead.Set(float64(block))
}

// RecordRun records the outcome and duration of a scrape run.
func (m *Metrics) RecordRun(err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status(err)).Inc()
	m.runDuration.Observe(durationSeconds)
}

// RecordBatch records one batch outcome with its event counts.
func (m *Metrics) RecordBatch(err error, durationSeconds float64, fetched, inserted int) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(status(err)).Inc()
	m.batchDuration.Observe(durationSeconds)
	m.eventsFetched.Add(float64(fetched))
	m.eventsInserted.Add(float64(inserted))
}

// IncRetry counts one retried attempt of the given operation.
func (m *Metrics) IncRetry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

// IncRPCInFlight increments the in-flight RPC gauge.
func (m *Metrics) IncRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Inc()
}

// DecRPCInFlight decrements the in-flight RPC gauge.
func (m *Metrics) DecRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Dec()
}

// RecordRPCCall records an RPC call outcome.
func (m *Metrics) RecordRPCCall(method string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method, status(err)).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordStoreOp records a storage operation outcome.
func (m *Metrics) RecordStoreOp(operation string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(operation, status(err)).Inc()
	m.storeDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// AddPublished records count fee messages published with the given outcome.
func (m *Metrics) AddPublished(count int, err error) {
	if m == nil {
		return
	}
	m.messagesPublished.WithLabelValues(status(err)).Add(float64(count))
}

// RecordHTTPRequest records an API request.
func (m *Metrics) RecordHTTPRequest(route string, code int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(durationSeconds)
}
