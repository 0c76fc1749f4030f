package layer

import (
	"encoding/binary"
	"fmt"
	"net"

	"firestige.xyz/pktcraft/internal/core"
)

const (
	// EthernetHeaderLen is the fixed Ethernet II header size.
	EthernetHeaderLen = 14

	EtherTypeIPv4 = 0x0800
	EtherTypeARP  = 0x0806
)

// MAC is a 6-octet hardware address.
type MAC [6]byte

// BroadcastMAC is ff:ff:ff:ff:ff:ff.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseMAC parses a colon, dash or dot separated 48-bit hardware address.
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, fmt.Errorf("parse mac %q: %w", s, core.ErrAddressing)
	}
	if len(hw) != 6 {
		return MAC{}, fmt.Errorf("parse mac %q: need 6 octets, got %d: %w", s, len(hw), core.ErrAddressing)
	}
	var m MAC
	copy(m[:], hw)
	return m, nil
}

// MustMAC is like ParseMAC but panics on error.
func MustMAC(s string) MAC {
	m, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m MAC) String() string {
	return net.HardwareAddr(m[:]).String()
}

// Ethernet is an Ethernet II frame header.
type Ethernet struct {
	base
	Dst       MAC
	Src       MAC
	EtherType uint16
}

// NewEthernet returns an Ethernet header carrying IPv4 by default.
func NewEthernet(src, dst MAC) *Ethernet {
	return &Ethernet{
		Dst:       dst,
		Src:       src,
		EtherType: EtherTypeIPv4,
	}
}

func (e *Ethernet) Kind() Kind { return KindEthernet }

func (e *Ethernet) encode([]byte) ([]byte, error) {
	hdr := make([]byte, EthernetHeaderLen)
	copy(hdr[0:6], e.Dst[:])
	copy(hdr[6:12], e.Src[:])
	binary.BigEndian.PutUint16(hdr[12:14], e.EtherType)
	return hdr, nil
}

func (e *Ethernet) fields() []Field {
	return []Field{
		{Name: "dst", Value: e.Dst.String()},
		{Name: "src", Value: e.Src.String()},
		{Name: "type", Value: fmt.Sprintf("0x%04x", e.EtherType)},
	}
}

// DecodeEthernet parses an Ethernet frame. EtherType 0x0800 continues into
// the IPv4 codec, anything else leaves the rest as Raw bytes.
func DecodeEthernet(data []byte) (*Ethernet, error) {
	if len(data) < EthernetHeaderLen {
		return nil, fmt.Errorf("ethernet: need %d bytes, got %d: %w", EthernetHeaderLen, len(data), core.ErrMalformed)
	}

	eth := &Ethernet{}
	copy(eth.Dst[:], data[0:6])
	copy(eth.Src[:], data[6:12])
	eth.EtherType = binary.BigEndian.Uint16(data[12:14])

	rest := data[EthernetHeaderLen:]
	switch eth.EtherType {
	case EtherTypeIPv4:
		ip, err := DecodeIPv4(rest)
		if err != nil {
			return nil, err
		}
		eth.next = ip
	default:
		eth.next = rawOrNil(rest)
	}
	return eth, nil
}
