package layer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"

	"golang.org/x/net/ipv4"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/checksum"
)

const (
	// IPv4HeaderLen is the size of an IPv4 header without options.
	IPv4HeaderLen = ipv4.HeaderLen

	ipv4MaxHeaderLen   = 60
	ipv4FlagMF         = 0x2000
	ipv4FragOffsetMask = 0x1fff

	ProtocolICMP = 1
	ProtocolTCP  = 6
	ProtocolUDP  = 17

	// DefaultTTL matches the usual Linux default.
	DefaultTTL = 64
)

// IPv4 is an IPv4 header. TotalLength, IHL and Checksum are computed at
// serialization time.
type IPv4 struct {
	base
	Version       uint8
	IHL           uint8 // header length in 32-bit words
	TOS           uint8
	TotalLength   uint16
	ID            uint16
	FlagsFragment uint16
	TTL           uint8
	Protocol      uint8
	Checksum      uint16
	Src           netip.Addr
	Dst           netip.Addr
	Options       []byte // only populated by decoding
}

// NewIPv4 returns an IPv4 header with version 4, no options and the default TTL.
// Protocol is left zero for Stack to fill in.
func NewIPv4(src, dst netip.Addr) *IPv4 {
	return &IPv4{
		Version: 4,
		IHL:     5,
		TTL:     DefaultTTL,
		Src:     src,
		Dst:     dst,
	}
}

// ParseIPv4 parses a dotted-decimal IPv4 address.
func ParseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("parse ipv4 %q: %w", s, core.ErrAddressing)
	}
	return addr, nil
}

// MustAddr is like ParseIPv4 but panics on error.
func MustAddr(s string) netip.Addr {
	addr, err := ParseIPv4(s)
	if err != nil {
		panic(err)
	}
	return addr
}

func (ip *IPv4) Kind() Kind { return KindIPv4 }

func (ip *IPv4) encode(payload []byte) ([]byte, error) {
	if !ip.Src.Is4() {
		return nil, fmt.Errorf("ipv4: source %v is not an IPv4 address: %w", ip.Src, core.ErrAddressing)
	}
	if !ip.Dst.Is4() {
		return nil, fmt.Errorf("ipv4: destination %v is not an IPv4 address: %w", ip.Dst, core.ErrAddressing)
	}
	hdrLen := IPv4HeaderLen + len(ip.Options)
	if len(ip.Options)%4 != 0 || hdrLen > ipv4MaxHeaderLen {
		return nil, fmt.Errorf("ipv4: %d option bytes: %w", len(ip.Options), core.ErrMalformed)
	}
	total := hdrLen + len(payload)
	if total > 0xffff {
		return nil, fmt.Errorf("ipv4: total length %d exceeds 65535: %w", total, core.ErrMalformed)
	}

	if ip.Version == 0 {
		ip.Version = 4
	}
	ip.IHL = uint8(hdrLen / 4)
	ip.TotalLength = uint16(total)
	ip.Checksum = 0

	hdr := ip.marshalHeader()
	ip.Checksum = checksum.Checksum(hdr)
	binary.BigEndian.PutUint16(hdr[10:12], ip.Checksum)
	return hdr, nil
}

func (ip *IPv4) marshalHeader() []byte {
	hdr := make([]byte, int(ip.IHL)*4)
	hdr[0] = ip.Version<<4 | ip.IHL&0x0f
	hdr[1] = ip.TOS
	binary.BigEndian.PutUint16(hdr[2:4], ip.TotalLength)
	binary.BigEndian.PutUint16(hdr[4:6], ip.ID)
	binary.BigEndian.PutUint16(hdr[6:8], ip.FlagsFragment)
	hdr[8] = ip.TTL
	hdr[9] = ip.Protocol
	binary.BigEndian.PutUint16(hdr[10:12], ip.Checksum)
	src := ip.Src.As4()
	dst := ip.Dst.As4()
	copy(hdr[12:16], src[:])
	copy(hdr[16:20], dst[:])
	copy(hdr[20:], ip.Options)
	return hdr
}

func (ip *IPv4) fields() []Field {
	fs := []Field{
		{Name: "version", Value: fmt.Sprintf("%d", ip.Version)},
		{Name: "ihl", Value: fmt.Sprintf("%d", ip.IHL)},
		{Name: "tos", Value: fmt.Sprintf("0x%02x", ip.TOS)},
		{Name: "total_length", Value: fmt.Sprintf("%d", ip.TotalLength)},
		{Name: "id", Value: fmt.Sprintf("%d", ip.ID)},
		{Name: "flags_fragment", Value: fmt.Sprintf("0x%04x", ip.FlagsFragment)},
		{Name: "ttl", Value: fmt.Sprintf("%d", ip.TTL)},
		{Name: "protocol", Value: fmt.Sprintf("%d", ip.Protocol)},
		{Name: "checksum", Value: fmt.Sprintf("0x%04x", ip.Checksum)},
		{Name: "src", Value: ip.Src.String()},
		{Name: "dst", Value: ip.Dst.String()},
	}
	if len(ip.Options) > 0 {
		fs = append(fs, Field{Name: "options", Value: fmt.Sprintf("%x", ip.Options)})
	}
	return fs
}

// DecodeIPv4 parses an IPv4 packet and dispatches on the protocol number:
// 1 to ICMP, 6 to TCP, 17 to UDP, anything else to Raw. Bytes beyond
// TotalLength, such as Ethernet padding, are dropped. Fragments are not
// reassembled; their payload stays Raw.
func DecodeIPv4(data []byte) (*IPv4, error) {
	if len(data) < IPv4HeaderLen {
		return nil, fmt.Errorf("ipv4: need %d bytes, got %d: %w", IPv4HeaderLen, len(data), core.ErrMalformed)
	}

	ip := &IPv4{
		Version: data[0] >> 4,
		IHL:     data[0] & 0x0f,
	}
	if ip.Version != 4 {
		return nil, fmt.Errorf("ipv4: version %d: %w", ip.Version, core.ErrMalformed)
	}
	hdrLen := int(ip.IHL) * 4
	if hdrLen < IPv4HeaderLen || hdrLen > len(data) {
		return nil, fmt.Errorf("ipv4: header length %d with %d bytes available: %w", hdrLen, len(data), core.ErrMalformed)
	}

	ip.TOS = data[1]
	ip.TotalLength = binary.BigEndian.Uint16(data[2:4])
	total := int(ip.TotalLength)
	if total < hdrLen || total > len(data) {
		return nil, fmt.Errorf("ipv4: total length %d with header %d and %d bytes available: %w", total, hdrLen, len(data), core.ErrMalformed)
	}
	ip.ID = binary.BigEndian.Uint16(data[4:6])
	ip.FlagsFragment = binary.BigEndian.Uint16(data[6:8])
	ip.TTL = data[8]
	ip.Protocol = data[9]
	ip.Checksum = binary.BigEndian.Uint16(data[10:12])
	ip.Src = netip.AddrFrom4([4]byte(data[12:16]))
	ip.Dst = netip.AddrFrom4([4]byte(data[16:20]))
	if hdrLen > IPv4HeaderLen {
		ip.Options = bytes.Clone(data[IPv4HeaderLen:hdrLen])
	}

	rest := data[hdrLen:total]
	if ip.IsFragment() {
		ip.next = rawOrNil(rest)
		return ip, nil
	}
	var err error
	switch ip.Protocol {
	case ProtocolICMP:
		ip.next, err = DecodeICMP(rest)
	case ProtocolTCP:
		var tcp *TCP
		if tcp, err = DecodeTCP(rest); err == nil {
			tcp.PseudoSrc, tcp.PseudoDst = ip.Src, ip.Dst
			ip.next = tcp
		}
	case ProtocolUDP:
		var udp *UDP
		if udp, err = DecodeUDP(rest); err == nil {
			udp.PseudoSrc, udp.PseudoDst = ip.Src, ip.Dst
			ip.next = udp
		}
	default:
		ip.next = rawOrNil(rest)
	}
	if err != nil {
		return nil, err
	}
	return ip, nil
}

// IsFragment reports whether the MF flag or a fragment offset is set.
func (ip *IPv4) IsFragment() bool {
	return ip.FlagsFragment&(ipv4FlagMF|ipv4FragOffsetMask) != 0
}

// protocolFor maps an inner layer kind to its IPv4 protocol number.
func protocolFor(k Kind) uint8 {
	switch k {
	case KindICMP:
		return ProtocolICMP
	case KindTCP:
		return ProtocolTCP
	case KindUDP:
		return ProtocolUDP
	}
	return 0
}
