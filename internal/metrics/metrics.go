package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rumbleFTW/koe-app/internal/realtime"
)

// Metrics holds the collectors for one process, registered on a private
// registry.
type Metrics struct {
	registry *prometheus.Registry

	FramesSent      prometheus.Counter
	FramesReceived  prometheus.Counter
	DecoderDrops    prometheus.Counter
	PlaybackDrops   prometheus.Counter
	UnknownMessages *prometheus.CounterVec
	ServerErrors    *prometheus.CounterVec
	Sessions        prometheus.Counter
	ConnectionState prometheus.Gauge
	RecordingBytes  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "koe_frames_sent_total",
			Help: "Encoded microphone frames queued to the backend",
		}),
		FramesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "koe_frames_received_total",
			Help: "Audio deltas received from the backend",
		}),
		DecoderDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "koe_decoder_drops_total",
			Help: "Frames dropped because the decoder queue was full",
		}),
		PlaybackDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "koe_playback_drops_total",
			Help: "PCM blocks dropped to keep playback latency bounded",
		}),
		UnknownMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "koe_unknown_messages_total",
			Help: "Inbound messages with an unrecognized type",
		}, []string{"type"}),
		ServerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "koe_server_errors_total",
			Help: "Error messages reported by the backend",
		}, []string{"severity"}),
		Sessions: f.NewCounter(prometheus.CounterOpts{
			Name: "koe_sessions_total",
			Help: "Sessions that reached the connected state",
		}),
		ConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Name: "koe_connection_state",
			Help: "Realtime client state: 0 disconnected, 1 connecting, 2 connected, 3 closing",
		}),
		RecordingBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "koe_recording_bytes_total",
			Help: "Bytes of finished recordings",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) FrameSent()     { m.FramesSent.Inc() }
func (m *Metrics) FrameReceived() { m.FramesReceived.Inc() }

func (m *Metrics) MessageUnknown(msgType string) {
	m.UnknownMessages.WithLabelValues(msgType).Inc()
}

func (m *Metrics) ServerError(kind string) {
	severity := "error"
	if kind == "warning" {
		severity = "warning"
	}
	m.ServerErrors.WithLabelValues(severity).Inc()
}

func (m *Metrics) StateChanged(s realtime.State) {
	m.ConnectionState.Set(float64(s))
	if s == realtime.Connected {
		m.Sessions.Inc()
	}
}

func (m *Metrics) DecoderDrop()  { m.DecoderDrops.Inc() }
func (m *Metrics) PlaybackDrop() { m.PlaybackDrops.Inc() }

func (m *Metrics) RecordingFinished(n int) {
	m.RecordingBytes.Add(float64(n))
}

var _ realtime.Stats = (*Metrics)(nil)
