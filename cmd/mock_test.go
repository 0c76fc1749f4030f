package cmd

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/layer"
	"firestige.xyz/pktcraft/internal/driver"
)

// MockPacketIO implements PacketIO
type MockPacketIO struct {
	mock.Mock
}

func (m *MockPacketIO) Transmit(chain layer.Layer) error {
	return m.Called(chain).Error(0)
}

func (m *MockPacketIO) TransmitLink(chain layer.Layer, iface string) error {
	return m.Called(chain, iface).Error(0)
}

func (m *MockPacketIO) SendAndAwaitReply(chain layer.Layer, timeout time.Duration) (*driver.Reply, bool, error) {
	args := m.Called(chain, timeout)
	r, _ := args.Get(0).(*driver.Reply)
	return r, args.Bool(1), args.Error(2)
}

func (m *MockPacketIO) CaptureOne(timeout time.Duration) (*driver.Reply, bool, error) {
	args := m.Called(timeout)
	r, _ := args.Get(0).(*driver.Reply)
	return r, args.Bool(1), args.Error(2)
}

// MockRunner implements CommandRunner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, name string, args ...string) error {
	return m.Called(name, args).Error(0)
}

// MockArchive implements packetArchive
type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) WritePacket(ci gopacket.CaptureInfo, data []byte) error {
	return m.Called(ci, data).Error(0)
}

var (
	local  = layer.MustAddr("10.0.2.15")
	remote = layer.MustAddr("192.0.2.80")
	dnsSrv = layer.MustAddr("1.1.1.1")
)

// inbound serializes an IPv4-rooted chain behind an Ethernet header and
// decodes it the way the driver does for a received frame.
func inbound(t *testing.T, inner ...layer.Layer) *driver.Reply {
	t.Helper()
	eth := layer.NewEthernet(layer.MustMAC("52:54:00:12:35:02"), layer.MustMAC("08:00:27:aa:bb:cc"))
	chain, err := layer.Chain(append([]layer.Layer{eth}, inner...)...)
	require.NoError(t, err)
	frame, err := layer.Serialize(chain)
	require.NoError(t, err)
	pkt, err := layer.Decode(frame, layer.KindEthernet)
	require.NoError(t, err)
	return &driver.Reply{
		Packet: pkt,
		Raw: core.RawPacket{
			Data:       frame,
			Timestamp:  time.Date(2025, 10, 20, 12, 0, 0, 0, time.UTC),
			CaptureLen: uint32(len(frame)),
			OrigLen:    uint32(len(frame)),
		},
	}
}

func echoReply(t *testing.T, from netip.Addr, id, seq uint16) *driver.Reply {
	return inbound(t, layer.NewIPv4(from, local), layer.NewEcho(layer.ICMPEchoReply, id, seq, nil))
}

// chainOf matches a chain whose kinds are exactly kinds.
func chainOf(kinds ...layer.Kind) interface{} {
	return mock.MatchedBy(func(l layer.Layer) bool {
		got := layer.Kinds(l)
		if len(got) != len(kinds) {
			return false
		}
		for i := range got {
			if got[i] != kinds[i] {
				return false
			}
		}
		return true
	})
}
