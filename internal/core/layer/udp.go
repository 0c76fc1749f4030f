package layer

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/checksum"
)

// UDPHeaderLen is the fixed UDP header size.
const UDPHeaderLen = 8

const (
	defaultUDPSrcPort = 12345
	defaultUDPDstPort = 53
)

// UDP is a UDP header. The checksum needs the enclosing IPv4 addresses,
// supplied through PseudoSrc/PseudoDst either directly or by Stack. Without
// them the checksum is sent as 0, which IPv4 allows.
type UDP struct {
	base
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16

	PseudoSrc netip.Addr
	PseudoDst netip.Addr
}

// NewUDP returns a UDP header; zero ports default to 12345 and 53.
func NewUDP(srcPort, dstPort uint16) *UDP {
	if srcPort == 0 {
		srcPort = defaultUDPSrcPort
	}
	if dstPort == 0 {
		dstPort = defaultUDPDstPort
	}
	return &UDP{SrcPort: srcPort, DstPort: dstPort}
}

func (u *UDP) Kind() Kind { return KindUDP }

// Data returns the opaque payload, or nil when the payload is structured or absent.
func (u *UDP) Data() []byte { return PayloadBytes(u) }

func (u *UDP) encode(payload []byte) ([]byte, error) {
	length := UDPHeaderLen + len(payload)
	if length > 0xffff {
		return nil, fmt.Errorf("udp: length %d exceeds 65535: %w", length, core.ErrMalformed)
	}
	withSum, err := pseudoAddrs("udp", u.PseudoSrc, u.PseudoDst)
	if err != nil {
		return nil, err
	}

	u.Length = uint16(length)
	u.Checksum = 0
	hdr := u.marshalHeader()
	if withSum {
		segment := make([]byte, 0, length)
		segment = append(segment, hdr...)
		segment = append(segment, payload...)
		sum := checksum.Transport(u.PseudoSrc, u.PseudoDst, ProtocolUDP, segment)
		if sum == 0 {
			// all zeros means "no checksum" on the wire
			sum = 0xffff
		}
		u.Checksum = sum
		binary.BigEndian.PutUint16(hdr[6:8], sum)
	}
	return hdr, nil
}

func (u *UDP) marshalHeader() []byte {
	hdr := make([]byte, UDPHeaderLen)
	binary.BigEndian.PutUint16(hdr[0:2], u.SrcPort)
	binary.BigEndian.PutUint16(hdr[2:4], u.DstPort)
	binary.BigEndian.PutUint16(hdr[4:6], u.Length)
	binary.BigEndian.PutUint16(hdr[6:8], u.Checksum)
	return hdr
}

func (u *UDP) fields() []Field {
	return []Field{
		{Name: "src_port", Value: fmt.Sprintf("%d", u.SrcPort)},
		{Name: "dst_port", Value: fmt.Sprintf("%d", u.DstPort)},
		{Name: "length", Value: fmt.Sprintf("%d", u.Length)},
		{Name: "checksum", Value: fmt.Sprintf("0x%04x", u.Checksum)},
	}
}

// DecodeUDP parses a UDP datagram. The payload is left as Raw bytes; an
// application protocol such as DNS is decoded by the caller.
func DecodeUDP(data []byte) (*UDP, error) {
	if len(data) < UDPHeaderLen {
		return nil, fmt.Errorf("udp: need %d bytes, got %d: %w", UDPHeaderLen, len(data), core.ErrMalformed)
	}
	u := &UDP{
		SrcPort:  binary.BigEndian.Uint16(data[0:2]),
		DstPort:  binary.BigEndian.Uint16(data[2:4]),
		Length:   binary.BigEndian.Uint16(data[4:6]),
		Checksum: binary.BigEndian.Uint16(data[6:8]),
	}
	length := int(u.Length)
	if length < UDPHeaderLen || length > len(data) {
		return nil, fmt.Errorf("udp: length field %d with %d bytes available: %w", length, len(data), core.ErrMalformed)
	}
	u.next = rawOrNil(data[UDPHeaderLen:length])
	return u, nil
}

// pseudoAddrs reports whether a transport checksum can be computed. Both
// addresses absent is fine; one absent or a non-IPv4 address is an error.
func pseudoAddrs(proto string, src, dst netip.Addr) (bool, error) {
	switch {
	case !src.IsValid() && !dst.IsValid():
		return false, nil
	case src.Is4() && dst.Is4():
		return true, nil
	default:
		return false, fmt.Errorf("%s: pseudo-header needs two IPv4 addresses, got %v and %v: %w", proto, src, dst, core.ErrAddressing)
	}
}
