package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/pktcraft/internal/core/layer"
)

func sampleChain(t *testing.T) (layer.Layer, []byte) {
	t.Helper()
	chain := layer.MustChain(
		layer.NewIPv4(layer.MustAddr("10.0.0.1"), layer.MustAddr("10.0.0.2")),
		layer.NewUDP(1000, 53),
		layer.NewRaw([]byte("hi")),
	)
	frame, err := layer.Serialize(chain)
	require.NoError(t, err)
	return chain, frame
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YAML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestTextIndentsNestedLayers(t *testing.T) {
	chain, _ := sampleChain(t)
	var buf bytes.Buffer
	require.NoError(t, New(FormatText, false).Chain(&buf, chain, nil))

	out := buf.String()
	assert.Contains(t, out, "### IPv4 ###\n")
	assert.Contains(t, out, " ttl: 64\n")
	assert.Contains(t, out, " ### UDP ###\n")
	assert.Contains(t, out, "  dst_port: 53\n")
	assert.Contains(t, out, "  ### Raw ###\n")
	assert.NotContains(t, out, "\x1b[")
}

func TestTextColored(t *testing.T) {
	chain, _ := sampleChain(t)
	var buf bytes.Buffer
	require.NoError(t, New(FormatText, true).Text(&buf, chain))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestYAML(t *testing.T) {
	chain, _ := sampleChain(t)
	var buf bytes.Buffer
	require.NoError(t, New(FormatYAML, true).Chain(&buf, chain, nil))
	assert.NotContains(t, buf.String(), "\x1b[")

	var n layer.Node
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &n))
	assert.Equal(t, "IPv4", n.Name)
	require.NotNil(t, n.Payload)
	assert.Equal(t, "UDP", n.Payload.Name)
	require.NotNil(t, n.Payload.Payload)
	assert.Equal(t, "Raw", n.Payload.Payload.Name)
	assert.Nil(t, n.Payload.Payload.Payload)
}

func TestHexDump(t *testing.T) {
	chain, frame := sampleChain(t)
	var buf bytes.Buffer
	require.NoError(t, New(FormatHex, false).Chain(&buf, chain, frame))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2) // 30 bytes
	assert.True(t, strings.HasPrefix(lines[0], "00000000  45 00 00 1e"))

	buf.Reset()
	require.NoError(t, HexDump(&buf, nil))
	assert.Empty(t, buf.String())
}
