package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the tick collector.
type Metrics struct {
	EventsTotal    *prometheus.CounterVec // labels: kind=trade|book_price|book_depth
	VectorsTotal   prometheus.Counter
	ComputeErrors  prometheus.Counter
	RejectedEvents prometheus.Counter
	FeedReconnects prometheus.Counter

	ComputeDur prometheus.Histogram

	// CSV persistence
	RowsWritten    prometheus.Counter
	WriteErrors    prometheus.Counter
	WriterReinits  prometheus.Counter
	RowsDropped    prometheus.Counter
	PendingRows    prometheus.Gauge
	CSVFlushDur    prometheus.Histogram
	SQLiteBatchDur prometheus.Histogram

	// Supply flow
	SupplyRounds prometheus.Counter

	// Ring buffer overflow
	RingBufOverflow prometheus.Counter

	// Backpressure
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_events_total",
			Help: "Total market events received (by kind)",
		}, []string{"kind"}),
		VectorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_vectors_total",
			Help: "Total indicator vectors computed",
		}),
		ComputeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_compute_errors_total",
			Help: "Ticks dropped due to indicator compute errors",
		}),
		RejectedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_rejected_events_total",
			Help: "Events rejected (unregistered symbol or invalid price)",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_feed_reconnects_total",
			Help: "Total feed reconnection attempts",
		}),

		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "collector_compute_duration_seconds",
			Help:    "Indicator compute latency per trade event",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),

		// CSV persistence
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_rows_written_total",
			Help: "Total indicator rows written to CSV",
		}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_write_errors_total",
			Help: "CSV row write failures",
		}),
		WriterReinits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_writer_reinits_total",
			Help: "Per-symbol CSV writer reinitializations after consecutive failures",
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_rows_dropped_total",
			Help: "Pending rows dropped when the batch buffer hit its bound",
		}),
		PendingRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collector_pending_rows",
			Help: "Rows currently buffered and not yet flushed to CSV",
		}),
		CSVFlushDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "collector_csv_flush_duration_seconds",
			Help:    "CSV batch flush latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteBatchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "collector_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		// Supply flow
		SupplyRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_supply_rounds_total",
			Help: "Investor supply snapshots applied",
		}),

		// Ring buffer
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (dropped events)",
		}),

		// Backpressure
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_fanout_drops_total",
			Help: "Vectors dropped by FanOut bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "collector_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		// Circuit breaker
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collector_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_redis_buffered_writes_total",
			Help: "Vectors buffered locally during Redis circuit breaker open state",
		}),
	}

	prometheus.MustRegister(
		m.EventsTotal,
		m.VectorsTotal,
		m.ComputeErrors,
		m.RejectedEvents,
		m.FeedReconnects,
		m.ComputeDur,
		m.RowsWritten,
		m.WriteErrors,
		m.WriterReinits,
		m.RowsDropped,
		m.PendingRows,
		m.CSVFlushDur,
		m.SQLiteBatchDur,
		m.SupplyRounds,
		m.RingBufOverflow,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastEventTime  time.Time `json:"last_event_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Symbols        []string  `json:"symbols"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEventTime(t time.Time) {
	h.mu.Lock()
	h.LastEventTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(symbols []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// CSV writing is local, so the feed link dominates overall health.
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	eventAge := ""
	if !h.LastEventTime.IsZero() {
		eventAge = time.Since(h.LastEventTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		FeedConnected   bool     `json:"feed_connected"`
		LastEventTime   string   `json:"last_event_time"`
		EventAge        string   `json:"event_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		Symbols         []string `json:"symbols"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastEventTime:   h.LastEventTime.Format(time.RFC3339),
		EventAge:        eventAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Symbols:         h.Symbols,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
