package layer

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The tests below decode our frames with gopacket and re-serialize them with
// gopacket's checksum code; both sides must agree byte for byte.

func gopacketBytes(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func TestWireTCPMatchesGopacket(t *testing.T) {
	frame, err := Serialize(MustChain(
		NewEthernet(testSrcMAC, testDstMAC),
		NewIPv4(testSrcIP, testDstIP),
		NewTCP(40000, 80, 0x11223344, 0, FlagSYN),
		NewRaw([]byte("hello")),
	))
	require.NoError(t, err)

	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())

	eth := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	assert.Equal(t, net.HardwareAddr(testSrcMAC[:]), eth.SrcMAC)
	assert.Equal(t, layers.EthernetTypeIPv4, eth.EthernetType)

	ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	assert.Equal(t, uint16(45), ip.Length)
	assert.Equal(t, layers.IPProtocolTCP, ip.Protocol)

	tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	assert.Equal(t, layers.TCPPort(40000), tcp.SrcPort)
	assert.Equal(t, layers.TCPPort(80), tcp.DstPort)
	assert.Equal(t, uint32(0x11223344), tcp.Seq)
	assert.True(t, tcp.SYN)
	assert.False(t, tcp.ACK)
	assert.Equal(t, []byte("hello"), tcp.Payload)

	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	theirs := gopacketBytes(t, ip, tcp, gopacket.Payload(tcp.Payload))
	assert.Equal(t, frame[EthernetHeaderLen:], theirs)
}

func TestWireUDPMatchesGopacket(t *testing.T) {
	frame, err := Serialize(MustChain(
		NewIPv4(testSrcIP, testDstIP),
		NewUDP(5353, 53),
		NewRaw([]byte{0xde, 0xad, 0xbe}),
	))
	require.NoError(t, err)

	pkt := gopacket.NewPacket(frame, layers.LayerTypeIPv4, gopacket.Default)
	ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.NotNil(t, udp)
	assert.Equal(t, layers.UDPPort(5353), udp.SrcPort)
	assert.Equal(t, uint16(11), udp.Length)

	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	theirs := gopacketBytes(t, ip, udp, gopacket.Payload(udp.Payload))
	assert.Equal(t, frame, theirs)
}

func TestWireICMPMatchesGopacket(t *testing.T) {
	frame, err := Serialize(MustChain(NewIPv4(testSrcIP, testDstIP), NewEcho(ICMPEchoRequest, 0x4242, 9, []byte("abcdefgh"))))
	require.NoError(t, err)

	pkt := gopacket.NewPacket(frame, layers.LayerTypeIPv4, gopacket.Default)
	ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	icmp := pkt.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
	require.NotNil(t, icmp)
	assert.Equal(t, uint8(layers.ICMPv4TypeEchoRequest), icmp.TypeCode.Type())
	assert.Equal(t, uint16(0x4242), icmp.Id)
	assert.Equal(t, uint16(9), icmp.Seq)

	theirs := gopacketBytes(t, ip, icmp, gopacket.Payload(icmp.Payload))
	assert.Equal(t, frame, theirs)
}

func TestWireDNSQueryMatchesGopacket(t *testing.T) {
	q := NewQuery("example.com")
	frame, err := Serialize(MustChain(NewIPv4(testSrcIP, testDstIP), NewUDP(33000, 53), q))
	require.NoError(t, err)

	pkt := gopacket.NewPacket(frame, layers.LayerTypeIPv4, gopacket.Default)
	dns, ok := pkt.Layer(layers.LayerTypeDNS).(*layers.DNS)
	require.True(t, ok)
	assert.Equal(t, q.ID, dns.ID)
	assert.True(t, dns.RD)
	assert.False(t, dns.QR)
	require.Len(t, dns.Questions, 1)
	assert.Equal(t, []byte("example.com"), dns.Questions[0].Name)
	assert.Equal(t, layers.DNSTypeA, dns.Questions[0].Type)
	assert.Equal(t, layers.DNSClassIN, dns.Questions[0].Class)
}
