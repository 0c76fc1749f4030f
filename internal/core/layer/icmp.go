package layer

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"golang.org/x/net/ipv4"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/checksum"
)

// ICMPHeaderLen is the fixed ICMP header size (type, code, checksum, id, seq).
const ICMPHeaderLen = 8

const (
	ICMPEchoReply              = uint8(ipv4.ICMPTypeEchoReply)
	ICMPDestinationUnreachable = uint8(ipv4.ICMPTypeDestinationUnreachable)
	ICMPEchoRequest            = uint8(ipv4.ICMPTypeEcho)
	ICMPTimeExceeded           = uint8(ipv4.ICMPTypeTimeExceeded)
)

// ICMP is an ICMP message header. Trailing data is carried as a Raw payload.
type ICMP struct {
	base
	Type     uint8
	Code     uint8
	Checksum uint16
	ID       uint16
	Seq      uint16
}

// NewEcho returns an echo message of the given type with data attached.
func NewEcho(typ uint8, id, seq uint16, data []byte) *ICMP {
	m := &ICMP{Type: typ, ID: id, Seq: seq}
	m.next = rawOrNil(data)
	return m
}

// NewEchoRequest returns an echo request with a pseudo-random identifier
// drawn from the full 16-bit range.
func NewEchoRequest(seq uint16, data []byte) *ICMP {
	return NewEcho(ICMPEchoRequest, RandomID(), seq, data)
}

// RandomID returns a pseudo-random 16-bit identifier.
func RandomID() uint16 {
	return uint16(rand.Uint32())
}

func (m *ICMP) Kind() Kind { return KindICMP }

// Data returns the trailing data, or nil.
func (m *ICMP) Data() []byte { return PayloadBytes(m) }

// IsEchoReplyTo reports whether m answers an echo request with the given id and seq.
func (m *ICMP) IsEchoReplyTo(id, seq uint16) bool {
	return m.Type == ICMPEchoReply && m.ID == id && m.Seq == seq
}

func (m *ICMP) encode(payload []byte) ([]byte, error) {
	m.Checksum = 0
	hdr := m.marshalHeader()

	buf := make([]byte, 0, len(hdr)+len(payload))
	buf = append(buf, hdr...)
	buf = append(buf, payload...)
	m.Checksum = checksum.Checksum(buf)
	binary.BigEndian.PutUint16(hdr[2:4], m.Checksum)
	return hdr, nil
}

func (m *ICMP) marshalHeader() []byte {
	hdr := make([]byte, ICMPHeaderLen)
	hdr[0] = m.Type
	hdr[1] = m.Code
	binary.BigEndian.PutUint16(hdr[2:4], m.Checksum)
	binary.BigEndian.PutUint16(hdr[4:6], m.ID)
	binary.BigEndian.PutUint16(hdr[6:8], m.Seq)
	return hdr
}

func (m *ICMP) fields() []Field {
	return []Field{
		{Name: "type", Value: fmt.Sprintf("%d (%s)", m.Type, ipv4.ICMPType(m.Type))},
		{Name: "code", Value: fmt.Sprintf("%d", m.Code)},
		{Name: "checksum", Value: fmt.Sprintf("0x%04x", m.Checksum)},
		{Name: "id", Value: fmt.Sprintf("%d", m.ID)},
		{Name: "seq", Value: fmt.Sprintf("%d", m.Seq)},
	}
}

// DecodeICMP parses an ICMP message. ICMP is terminal: everything after the
// 8-octet header is Raw data.
func DecodeICMP(data []byte) (*ICMP, error) {
	if len(data) < ICMPHeaderLen {
		return nil, fmt.Errorf("icmp: need %d bytes, got %d: %w", ICMPHeaderLen, len(data), core.ErrMalformed)
	}
	m := &ICMP{
		Type:     data[0],
		Code:     data[1],
		Checksum: binary.BigEndian.Uint16(data[2:4]),
		ID:       binary.BigEndian.Uint16(data[4:6]),
		Seq:      binary.BigEndian.Uint16(data[6:8]),
	}
	m.next = rawOrNil(data[ICMPHeaderLen:])
	return m, nil
}
