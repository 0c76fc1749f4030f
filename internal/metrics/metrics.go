// Package metrics implements Prometheus metrics for the raw-socket driver.
// A CLI run is short lived, so instead of serving them the metrics are
// written once in the node_exporter textfile format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every pktcraft metric. It is separate from the default
// registry so exports carry no Go runtime series.
var Registry = prometheus.NewRegistry()

var (
	// FramesSentTotal counts packets handed to a raw channel by channel type
	FramesSentTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktcraft_frames_sent_total",
			Help: "Total number of packets sent",
		},
		[]string{"channel"},
	)

	// SendErrorsTotal counts failed sends by channel type
	SendErrorsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktcraft_send_errors_total",
			Help: "Total number of failed sends",
		},
		[]string{"channel"},
	)

	// FramesReceivedTotal counts frames read from a link-layer channel
	FramesReceivedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "pktcraft_frames_received_total",
			Help: "Total number of frames received",
		},
	)

	// ReceiveTimeoutsTotal counts receive calls that ended without a frame
	ReceiveTimeoutsTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "pktcraft_receive_timeouts_total",
			Help: "Total number of receive timeouts",
		},
	)

	// DecodeErrorsTotal counts received frames that did not decode
	DecodeErrorsTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "pktcraft_decode_errors_total",
			Help: "Total number of received frames that failed to decode",
		},
	)

	// RoundTripSeconds measures send-to-first-frame latency
	RoundTripSeconds = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pktcraft_round_trip_seconds",
			Help:    "Time from send to the first received frame in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3s
		},
	)
)

// Channel label values
const (
	ChannelNetwork = "network"
	ChannelLink    = "link"
)

// WriteTextfile writes every metric to path, replacing it atomically.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
