package monitoring

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Side labels which process recorded a bridge metric.
const (
	SideHost     = "host"
	SideRenderer = "renderer"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Channel metrics
	Frames       *prometheus.CounterVec
	DecodeErrors *prometheus.CounterVec

	// Host bridge metrics
	BrowsersActive prometheus.Gauge
	PendingResults prometheus.Gauge
	MethodCalls    *prometheus.CounterVec
	HeartbeatRTT   prometheus.Histogram
	Fatal          *prometheus.CounterVec

	// Renderer bridge metrics
	ContextsActive   prometheus.Gauge
	PendingCallbacks prometheus.Gauge
	DroppedReplies   prometheus.Counter
	MarshalWarnings  prometheus.Counter
	ScriptErrors     prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for the JSON API
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current values for the JSON API.
type Snapshot struct {
	UptimeSeconds   float64 `json:"uptime_seconds"`
	FramesSent      int64   `json:"frames_sent"`
	FramesReceived  int64   `json:"frames_received"`
	DecodeErrors    int64   `json:"decode_errors"`
	MethodCalls     int64   `json:"method_calls"`
	UnhandledCalls  int64   `json:"unhandled_calls"`
	DroppedReplies  int64   `json:"dropped_replies"`
	ActiveBrowsers  int64   `json:"active_browsers"`
	ActiveContexts  int64   `json:"active_contexts"`
	PendingResults  int64   `json:"pending_results"`
	HTTPRequests    int64   `json:"http_requests"`
	HTTPErrors      int64   `json:"http_errors"`
	LastHeartbeatMs float64 `json:"last_heartbeat_ms"`
}

// NewMetrics registers every metric with reg under namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{startTime: time.Now()}

	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	m.Frames = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of bridge frames by side, direction and tag",
		},
		[]string{"side", "direction", "tag"},
	)
	m.DecodeErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total number of malformed frames dropped",
		},
		[]string{"side"},
	)

	m.BrowsersActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browsers_active",
			Help:      "Number of open browsers on the host",
		},
	)
	m.PendingResults = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_results",
			Help:      "Number of invoke-with-result futures awaiting a reply",
		},
	)
	m.MethodCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "method_calls_total",
			Help:      "Total number of script-initiated method calls received by the host",
		},
		[]string{"status"},
	)
	m.HeartbeatRTT = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "heartbeat_rtt_seconds",
			Help:      "Heartbeat ping to pong round trip in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
	m.Fatal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "browser_fatal_total",
			Help:      "Total number of browsers failed by the launch watchdog",
		},
		[]string{"reason"},
	)

	m.ContextsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "contexts_active",
			Help:      "Number of live script contexts in the renderer",
		},
	)
	m.PendingCallbacks = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_callbacks",
			Help:      "Number of script callbacks awaiting a host reply",
		},
	)
	m.DroppedReplies = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_replies_total",
			Help:      "Callback replies that matched no pending callback",
		},
	)
	m.MarshalWarnings = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marshal_warnings_total",
			Help:      "Arguments replaced by null because they had no wire form",
		},
	)
	m.ScriptErrors = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "script_errors_total",
			Help:      "Exceptions caught at the script boundary",
		},
	)

	m.WSConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Number of renderers attached over WebSocket",
		},
	)

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.HTTPRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.HTTPErrors++
	}
	m.mu.Unlock()
}

// FrameHook returns a channel frame observer labelled with side.
func (m *Metrics) FrameHook(side string) func(dir string, tag protocol.Tag) {
	return func(dir string, tag protocol.Tag) {
		m.RecordFrame(side, dir, tag)
	}
}

// RecordFrame counts one frame sent ("out") or received ("in").
func (m *Metrics) RecordFrame(side, dir string, tag protocol.Tag) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(side, dir, string(tag)).Inc()

	m.mu.Lock()
	if dir == "out" {
		m.snapshot.FramesSent++
	} else {
		m.snapshot.FramesReceived++
	}
	m.mu.Unlock()
}

// DecodeErrorHook returns a channel decode error observer labelled with side.
func (m *Metrics) DecodeErrorHook(side string) func(error) {
	return func(error) {
		if m == nil {
			return
		}
		m.DecodeErrors.WithLabelValues(side).Inc()
		m.mu.Lock()
		m.snapshot.DecodeErrors++
		m.mu.Unlock()
	}
}

// RecordMethodCall counts a method call; handled is false when no handler was registered.
func (m *Metrics) RecordMethodCall(handled bool) {
	if m == nil {
		return
	}
	status := "handled"
	if !handled {
		status = "unhandled"
	}
	m.MethodCalls.WithLabelValues(status).Inc()

	m.mu.Lock()
	m.snapshot.MethodCalls++
	if !handled {
		m.snapshot.UnhandledCalls++
	}
	m.mu.Unlock()
}

// ObserveHeartbeat records one ping round trip.
func (m *Metrics) ObserveHeartbeat(rtt time.Duration) {
	if m == nil {
		return
	}
	m.HeartbeatRTT.Observe(rtt.Seconds())
	m.mu.Lock()
	m.snapshot.LastHeartbeatMs = float64(rtt.Microseconds()) / 1000
	m.mu.Unlock()
}

// RecordFatal counts a browser failed by the launch watchdog.
func (m *Metrics) RecordFatal(reason string) {
	if m == nil {
		return
	}
	m.Fatal.WithLabelValues(reason).Inc()
}

// AddBrowsers adjusts the open browser gauge by delta.
func (m *Metrics) AddBrowsers(delta int) {
	if m == nil {
		return
	}
	m.BrowsersActive.Add(float64(delta))
	m.mu.Lock()
	m.snapshot.ActiveBrowsers += int64(delta)
	m.mu.Unlock()
}

// AddPendingResults adjusts the pending result gauge by delta.
func (m *Metrics) AddPendingResults(delta int) {
	if m == nil {
		return
	}
	m.PendingResults.Add(float64(delta))
	m.mu.Lock()
	m.snapshot.PendingResults += int64(delta)
	m.mu.Unlock()
}

// AddContexts adjusts the live context gauge by delta.
func (m *Metrics) AddContexts(delta int) {
	if m == nil {
		return
	}
	m.ContextsActive.Add(float64(delta))
	m.mu.Lock()
	m.snapshot.ActiveContexts += int64(delta)
	m.mu.Unlock()
}

// AddPendingCallbacks adjusts the pending callback gauge by delta.
func (m *Metrics) AddPendingCallbacks(delta int) {
	if m == nil {
		return
	}
	m.PendingCallbacks.Add(float64(delta))
}

// IncDroppedReplies counts a callback reply with no matching entry.
func (m *Metrics) IncDroppedReplies() {
	if m == nil {
		return
	}
	m.DroppedReplies.Inc()
	m.mu.Lock()
	m.snapshot.DroppedReplies++
	m.mu.Unlock()
}

// IncMarshalWarnings counts an argument that was replaced by null.
func (m *Metrics) IncMarshalWarnings() {
	if m == nil {
		return
	}
	m.MarshalWarnings.Inc()
}

// IncScriptErrors counts an exception caught at the script boundary.
func (m *Metrics) IncScriptErrors() {
	if m == nil {
		return
	}
	m.ScriptErrors.Inc()
}

// IncWSConnections increments WebSocket connections.
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections.
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Snapshot returns a copy of the current values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
