package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	FramesSentTotal.WithLabelValues(ChannelLink).Inc()
	RoundTripSeconds.Observe(0.002)

	path := filepath.Join(t.TempDir(), "pktcraft.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `pktcraft_frames_sent_total{channel="link"}`)
	assert.Contains(t, out, "# TYPE pktcraft_round_trip_seconds histogram")
	assert.NotContains(t, out, "go_goroutines")
}
