// Package metrics isolates Prometheus instrumentation behind a narrow
// Recorder interface, so the protocol engines never import
// prometheus/client_golang directly — only this package does, the same
// separation go-tcpinfo keeps between its TCP_INFO sampler and its
// exporter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the instrumentation surface the sender, receiver, and
// handshake engines call into. Every method must be cheap and
// allocation-free enough to call from the per-segment hot path.
type Recorder interface {
	ChecksumRejected()
	SegmentSent()
	SegmentRetransmitted(n int)
	SegmentsInFlight(n int)
	Cwnd(v float64)
	BytesDelivered(n int)
	SessionEnded(outcome string)
}

// noop satisfies Recorder with no-ops, used when a caller doesn't want
// metrics wired in (e.g. most tests).
type noop struct{}

func (noop) ChecksumRejected()            {}
func (noop) SegmentSent()                 {}
func (noop) SegmentRetransmitted(int)     {}
func (noop) SegmentsInFlight(int)         {}
func (noop) Cwnd(float64)                 {}
func (noop) BytesDelivered(int)           {}
func (noop) SessionEnded(string)          {}

// Noop returns a Recorder that discards everything.
func Noop() Recorder { return noop{} }

// Prometheus is a Recorder backed by a dedicated prometheus.Registry,
// scraped over HTTP by the caller (see cmd/prtpserver).
type Prometheus struct {
	Registry *prometheus.Registry

	checksumRejected     prometheus.Counter
	segmentsSent         prometheus.Counter
	segmentsRetransmitted prometheus.Counter
	segmentsInFlight     prometheus.Gauge
	cwnd                 prometheus.Gauge
	bytesDelivered       prometheus.Counter
	sessionsTotal        *prometheus.CounterVec
}

// NewPrometheus builds a Recorder with its own registry, so a single
// process can run several independent PRTP endpoints without collector
// name collisions.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Prometheus{
		Registry: reg,
		checksumRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "prtp_checksum_rejected_total",
			Help: "Packets dropped for failing the Internet checksum or being too short.",
		}),
		segmentsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "prtp_segments_sent_total",
			Help: "Data segments transmitted, including retransmissions.",
		}),
		segmentsRetransmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "prtp_segments_retransmitted_total",
			Help: "Segments resent due to a Go-Back-N timeout.",
		}),
		segmentsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prtp_segments_inflight",
			Help: "Segments sent but not yet cumulatively acknowledged.",
		}),
		cwnd: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prtp_cwnd",
			Help: "Current AIMD congestion window, in segments.",
		}),
		bytesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "prtp_bytes_delivered_total",
			Help: "Bytes delivered in order to the receiving application.",
		}),
		sessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prtp_sessions_total",
			Help: "Sessions ended, labeled by outcome.",
		}, []string{"outcome"}),
	}
}

func (p *Prometheus) ChecksumRejected()        { p.checksumRejected.Inc() }
func (p *Prometheus) SegmentSent()             { p.segmentsSent.Inc() }
func (p *Prometheus) SegmentsInFlight(n int)   { p.segmentsInFlight.Set(float64(n)) }
func (p *Prometheus) Cwnd(v float64)           { p.cwnd.Set(v) }
func (p *Prometheus) BytesDelivered(n int)     { p.bytesDelivered.Add(float64(n)) }
func (p *Prometheus) SessionEnded(outcome string) {
	p.sessionsTotal.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) SegmentRetransmitted(n int) {
	p.segmentsRetransmitted.Add(float64(n))
}
