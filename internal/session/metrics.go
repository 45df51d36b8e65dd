package session

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"kiosk-vision-go/internal/transport"
)

// Metrics exports pipeline counters. A nil registerer keeps the metrics
// local, which tests use.
type Metrics struct {
	framesSent      *prometheus.CounterVec
	sendsSkipped    *prometheus.CounterVec
	sendsFailed     *prometheus.CounterVec
	resultsReceived *prometheus.CounterVec
	encodeSkips     prometheus.Counter
	fusionResolved  prometheus.Counter
	fusionMissed    prometheus.Counter
	connected       prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_frames_sent_total",
			Help: "Frames emitted to the recognition backend per stream.",
		}, []string{"stream"}),
		sendsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_sends_skipped_total",
			Help: "Send requests dropped by the per-stream in-flight guard.",
		}, []string{"stream"}),
		sendsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_sends_failed_total",
			Help: "Frame sends that failed, usually while disconnected.",
		}, []string{"stream"}),
		resultsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_results_received_total",
			Help: "Result batches received per stream.",
		}, []string{"stream"}),
		encodeSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_encode_skips_total",
			Help: "Frames skipped because encoding produced no payload.",
		}),
		fusionResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_fusion_resolved_total",
			Help: "Emotion detections resolved to an identity by fusion.",
		}),
		fusionMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_fusion_unresolved_total",
			Help: "Emotion detections fusion could not resolve.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kiosk_backend_connected",
			Help: "Whether the backend connection is up.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.framesSent, m.sendsSkipped, m.sendsFailed,
			m.resultsReceived, m.encodeSkips, m.fusionResolved, m.fusionMissed, m.connected)
	}
	return m
}

func (m *Metrics) FrameSent(stream transport.Stream) {
	m.framesSent.WithLabelValues(string(stream)).Inc()
}

func (m *Metrics) SendSkipped(stream transport.Stream) {
	m.sendsSkipped.WithLabelValues(string(stream)).Inc()
}

func (m *Metrics) SendFailed(stream transport.Stream) {
	m.sendsFailed.WithLabelValues(string(stream)).Inc()
}

func (m *Metrics) ResultReceived(stream transport.Stream) {
	m.resultsReceived.WithLabelValues(string(stream)).Inc()
}

func (m *Metrics) EncodeSkipped()    { m.encodeSkips.Inc() }
func (m *Metrics) FusionResolved()   { m.fusionResolved.Inc() }
func (m *Metrics) FusionUnresolved() { m.fusionMissed.Inc() }

func (m *Metrics) SetConnected(up bool) {
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// statusCounters back the human-readable /status payload, mirroring the
// Prometheus counters with plain atomics.
type statusCounters struct {
	framesIn     atomic.Uint64
	attSent      atomic.Uint64
	funSent      atomic.Uint64
	attSkipped   atomic.Uint64
	funSkipped   atomic.Uint64
	attResults   atomic.Uint64
	funResults   atomic.Uint64
	encodeSkips  atomic.Uint64
	sendErrors   atomic.Uint64
	fusionHits   atomic.Uint64
	fusionMisses atomic.Uint64
	connected    atomic.Bool
	lastChange   atomic.Int64
}

func (c *statusCounters) setConnected(up bool) {
	c.connected.Store(up)
	c.lastChange.Store(time.Now().UnixNano())
}

func (c *statusCounters) sentFor(stream transport.Stream) *atomic.Uint64 {
	if stream == transport.StreamAttendance {
		return &c.attSent
	}
	return &c.funSent
}

func (c *statusCounters) skipFor(stream transport.Stream) *atomic.Uint64 {
	if stream == transport.StreamAttendance {
		return &c.attSkipped
	}
	return &c.funSkipped
}

// Status assembles the operator-facing snapshot.
func (s *Session) Status() map[string]any {
	videoW, videoH := s.source.Dims()
	state := "disconnected"
	if s.counters.connected.Load() {
		state = "connected"
	}
	return map[string]any{
		"session":       s.id,
		"backend":       state,
		"video_width":   videoW,
		"video_height":  videoH,
		"missing_name":  s.missingName.Load(),
		"frames_in":     s.counters.framesIn.Load(),
		"att_sent":      s.counters.attSent.Load(),
		"fun_sent":      s.counters.funSent.Load(),
		"att_skipped":   s.counters.attSkipped.Load(),
		"fun_skipped":   s.counters.funSkipped.Load(),
		"att_results":   s.counters.attResults.Load(),
		"fun_results":   s.counters.funResults.Load(),
		"encode_skips":  s.counters.encodeSkips.Load(),
		"send_errors":   s.counters.sendErrors.Load(),
		"fusion_hits":   s.counters.fusionHits.Load(),
		"fusion_misses": s.counters.fusionMisses.Load(),
	}
}
