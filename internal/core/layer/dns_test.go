package layer

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktcraft/internal/core"
)

func TestEncodeNameExampleCom(t *testing.T) {
	b, err := EncodeName("example.com")
	require.NoError(t, err)
	assert.Len(t, b, 13)
	assert.Equal(t, append(append([]byte{7}, "example"...), append([]byte{3}, "com\x00"...)...), b)

	name, n, err := DecodeName(b)
	require.NoError(t, err)
	assert.Equal(t, "example.com", name)
	assert.Equal(t, 13, n)
}

func TestEncodeNameEdgeCases(t *testing.T) {
	root, err := EncodeName("")
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, root)

	dotted, err := EncodeName("example.com.")
	require.NoError(t, err)
	plain, err := EncodeName("example.com")
	require.NoError(t, err)
	assert.Equal(t, plain, dotted)

	_, err = EncodeName(strings.Repeat("a", 64) + ".com")
	assert.ErrorIs(t, err, core.ErrMalformed)

	_, err = EncodeName("a..b")
	assert.ErrorIs(t, err, core.ErrMalformed)

	label := strings.Repeat("a", 63)
	_, err = EncodeName(strings.Join([]string{label, label, label, label, label}, "."))
	assert.ErrorIs(t, err, core.ErrMalformed)
}

func wireName(labels ...string) []byte {
	var b []byte
	for _, l := range labels {
		b = append(b, byte(len(l)))
		b = append(b, l...)
	}
	return append(b, 0)
}

func TestNameLengthLimitCountsTerminator(t *testing.T) {
	a63 := strings.Repeat("a", 63)

	fits := []string{a63, a63, a63, strings.Repeat("b", 61)}
	wire := wireName(fits...)
	require.Len(t, wire, 255)
	name, n, err := DecodeName(wire)
	require.NoError(t, err)
	assert.Equal(t, 255, n)
	assert.Equal(t, strings.Join(fits, "."), name)
	enc, err := EncodeName(name)
	require.NoError(t, err)
	assert.Equal(t, wire, enc)

	over := []string{a63, a63, a63, strings.Repeat("b", 62)}
	wire = wireName(over...)
	require.Len(t, wire, 256)
	_, _, err = DecodeName(wire)
	assert.ErrorIs(t, err, core.ErrMalformed)
	_, err = EncodeName(strings.Join(over, "."))
	assert.ErrorIs(t, err, core.ErrMalformed)
}

func TestDecodeNameRejectsPointersAndTruncation(t *testing.T) {
	_, _, err := DecodeName([]byte{0xc0, 0x0c})
	assert.ErrorIs(t, err, core.ErrMalformed)

	_, _, err = DecodeName([]byte{7, 'e', 'x'})
	assert.ErrorIs(t, err, core.ErrMalformed)

	_, _, err = DecodeName([]byte{3, 'c', 'o', 'm'})
	assert.ErrorIs(t, err, core.ErrMalformed)
}

func TestDNSQueryRoundTrip(t *testing.T) {
	q := NewQuery("example.com")
	assert.Equal(t, uint16(DNSFlagRD), q.Flags)
	assert.Equal(t, uint16(1), q.QDCount)

	b, err := Serialize(q)
	require.NoError(t, err)
	assert.Len(t, b, DNSHeaderLen+13+4)

	decoded, err := DecodeDNS(b)
	require.NoError(t, err)
	assert.Equal(t, q.ID, decoded.ID)
	assert.Equal(t, "example.com", decoded.QName)
	assert.Equal(t, uint16(DNSTypeA), decoded.QType)
	assert.Equal(t, uint16(DNSClassIN), decoded.QClass)
	assert.Nil(t, decoded.Payload())
	assert.False(t, decoded.IsResponse())
}

func TestDNSOverUDP(t *testing.T) {
	udp := NewUDP(0, 0)
	MustChain(NewIPv4(testSrcIP, testDstIP), udp, NewQuery("example.com"))
	_, err := Serialize(udp)
	require.NoError(t, err)
	assert.Equal(t, uint16(8+DNSHeaderLen+13+4), udp.Length)
}

// response for example.com with a compressed owner name in the answer
func exampleResponse(answer []byte) []byte {
	msg := []byte{
		0xab, 0xcd, // ID
		0x81, 0x80, // Flags: response, RD, RA
		0x00, 0x01, // QDCount
		0x00, 0x01, // ANCount
		0x00, 0x00, // NSCount
		0x00, 0x00, // ARCount
		7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0,
		0x00, 0x01, // QType A
		0x00, 0x01, // QClass IN
	}
	return append(msg, answer...)
}

func TestFirstA(t *testing.T) {
	data := exampleResponse([]byte{
		0xc0, 0x0c, // pointer to the question name
		0x00, 0x01, // Type A
		0x00, 0x01, // Class IN
		0x00, 0x00, 0x0e, 0x10, // TTL 3600
		0x00, 0x04, // RDLength
		93, 184, 216, 34,
	})
	d, err := DecodeDNS(data)
	require.NoError(t, err)
	assert.True(t, d.IsResponse())
	assert.Zero(t, d.RCode())

	addr, err := d.FirstA()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("93.184.216.34"), addr)
}

func TestFirstAWithLabelOwnerName(t *testing.T) {
	data := exampleResponse([]byte{
		1, 'x', 0, // owner "x"
		0x00, 0x01, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x3c,
		0x00, 0x04,
		192, 0, 2, 1,
	})
	d, err := DecodeDNS(data)
	require.NoError(t, err)
	addr, err := d.FirstA()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("192.0.2.1"), addr)
}

func TestFirstAErrors(t *testing.T) {
	t.Run("no answers", func(t *testing.T) {
		data := exampleResponse(nil)
		data[7] = 0
		d, err := DecodeDNS(data)
		require.NoError(t, err)
		_, err = d.FirstA()
		assert.ErrorIs(t, err, core.ErrNoAnswer)
	})
	t.Run("cname first", func(t *testing.T) {
		d, err := DecodeDNS(exampleResponse([]byte{
			0xc0, 0x0c,
			0x00, 0x05, 0x00, 0x01,
			0x00, 0x00, 0x00, 0x3c,
			0x00, 0x02, 0xc0, 0x0c,
		}))
		require.NoError(t, err)
		_, err = d.FirstA()
		assert.ErrorIs(t, err, core.ErrNoAnswer)
	})
	t.Run("truncated rdata", func(t *testing.T) {
		d, err := DecodeDNS(exampleResponse([]byte{
			0xc0, 0x0c,
			0x00, 0x01, 0x00, 0x01,
			0x00, 0x00, 0x00, 0x3c,
			0x00, 0x04, 93, 184,
		}))
		require.NoError(t, err)
		_, err = d.FirstA()
		assert.ErrorIs(t, err, core.ErrMalformed)
	})
	t.Run("answer count without records", func(t *testing.T) {
		d, err := DecodeDNS(exampleResponse(nil))
		require.NoError(t, err)
		_, err = d.FirstA()
		assert.ErrorIs(t, err, core.ErrMalformed)
	})
}

func TestDecodeDNSMalformed(t *testing.T) {
	_, err := DecodeDNS(make([]byte, 11))
	assert.ErrorIs(t, err, core.ErrMalformed)

	full := exampleResponse(nil)
	_, err = DecodeDNS(full[:len(full)-2])
	assert.ErrorIs(t, err, core.ErrMalformed)
}
