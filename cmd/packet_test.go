package cmd

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktcraft/internal/config"
	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/layer"
)

func parsePacketFlags(t *testing.T, args ...string) (*packetFlags, *pflag.FlagSet) {
	t.Helper()
	p := new(packetFlags)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	p.register(fs)
	require.NoError(t, fs.Parse(args))
	return p, fs
}

func TestPacketFlags_DefaultIsEcho(t *testing.T) {
	p, _ := parsePacketFlags(t, "--src", "10.0.2.15", "--dst", "192.0.2.80")
	chain, err := p.build()
	require.NoError(t, err)

	assert.Equal(t, []layer.Kind{layer.KindIPv4, layer.KindICMP}, layer.Kinds(chain))
	icmp := layer.Find(chain, layer.KindICMP).(*layer.ICMP)
	assert.Equal(t, layer.ICMPEchoRequest, icmp.Type)
	assert.Equal(t, uint16(1), icmp.Seq)
}

func TestPacketFlags_EtherTCPWithData(t *testing.T) {
	p, _ := parsePacketFlags(t,
		"--ether", "--dst-mac", "08:00:27:aa:bb:cc",
		"--src", "10.0.2.15", "--dst", "192.0.2.80", "--ttl", "3",
		"--proto", "tcp", "--dport", "443", "--flags", "PSH,ACK", "--seq", "7",
		"--data", "hello")
	chain, err := p.build()
	require.NoError(t, err)

	assert.Equal(t, []layer.Kind{layer.KindEthernet, layer.KindIPv4, layer.KindTCP, layer.KindRaw}, layer.Kinds(chain))
	eth := chain.(*layer.Ethernet)
	assert.Equal(t, "08:00:27:aa:bb:cc", eth.Dst.String())
	ip := layer.Find(chain, layer.KindIPv4).(*layer.IPv4)
	assert.Equal(t, uint8(3), ip.TTL)
	tcp := layer.Find(chain, layer.KindTCP).(*layer.TCP)
	assert.Equal(t, uint16(443), tcp.DstPort)
	assert.Equal(t, layer.FlagPSH|layer.FlagACK, tcp.Flags)
	assert.Equal(t, uint32(7), tcp.Seq)
	assert.Equal(t, []byte("hello"), tcp.Data())
}

func TestPacketFlags_DNS(t *testing.T) {
	p, _ := parsePacketFlags(t, "--src", "10.0.2.15", "--dst", "1.1.1.1", "--proto", "dns", "--qname", "vibrantcloud.org")
	chain, err := p.build()
	require.NoError(t, err)

	assert.Equal(t, []layer.Kind{layer.KindIPv4, layer.KindUDP, layer.KindDNS}, layer.Kinds(chain))
	udp := layer.Find(chain, layer.KindUDP).(*layer.UDP)
	assert.Equal(t, uint16(53), udp.DstPort)
	assert.Equal(t, "vibrantcloud.org", layer.Find(chain, layer.KindDNS).(*layer.DNS).QName)
}

func TestPacketFlags_HexPayload(t *testing.T) {
	p, _ := parsePacketFlags(t, "--src", "10.0.2.15", "--dst", "192.0.2.80", "--proto", "udp", "--data-hex", "de ad be ef")
	chain, err := p.build()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, layer.Find(chain, layer.KindUDP).(*layer.UDP).Data())
}

func TestPacketFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"missing dst", []string{"--src", "10.0.2.15"}, core.ErrAddressing},
		{"ipv6 dst", []string{"--src", "10.0.2.15", "--dst", "::1"}, core.ErrAddressing},
		{"bad src", []string{"--src", "nope", "--dst", "192.0.2.80"}, core.ErrAddressing},
		{"bad proto", []string{"--src", "10.0.2.15", "--dst", "192.0.2.80", "--proto", "sctp"}, nil},
		{"bad flags", []string{"--src", "10.0.2.15", "--dst", "192.0.2.80", "--proto", "tcp", "--flags", "SYN,BOGUS"}, nil},
		{"bad hex", []string{"--src", "10.0.2.15", "--dst", "192.0.2.80", "--data-hex", "zz"}, nil},
		{"bad mac", []string{"--ether", "--src-mac", "00:11", "--src", "10.0.2.15", "--dst", "192.0.2.80"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := parsePacketFlags(t, tt.args...)
			_, err := p.build()
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestPacketFlags_ProfileFillsUnsetFlags(t *testing.T) {
	p, fs := parsePacketFlags(t, "--dst", "192.0.2.80", "--ttl", "9")
	p.applyProfile(fs, config.Profile{
		SrcIP:   "10.0.2.15",
		DstIP:   "198.51.100.1",
		TTL:     30,
		SrcPort: 5353,
	})

	assert.Equal(t, "10.0.2.15", p.src)
	assert.Equal(t, "192.0.2.80", p.dst, "explicit flag wins")
	assert.Equal(t, uint8(9), p.ttl, "explicit flag wins")
	assert.Equal(t, uint16(5353), p.sport)
	assert.Equal(t, uint16(0), p.dport)
}

func TestKindPath(t *testing.T) {
	chain := layer.MustChain(layer.NewIPv4(local, remote), layer.NewUDP(0, 0))
	assert.Equal(t, "IPv4/UDP", kindPath(chain))
	assert.Equal(t, "", kindPath(nil))
}
