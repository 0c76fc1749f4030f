package layer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/checksum"
)

// TCPHeaderLen is the size of a TCP header without options.
const TCPHeaderLen = 20

const (
	tcpMaxHeaderLen   = 60
	defaultTCPSrcPort = 12345
	defaultTCPDstPort = 80
	defaultTCPWindow  = 8192
)

// TCPFlags is the 12-bit control field that shares a word with the data offset.
type TCPFlags uint16

const (
	FlagFIN TCPFlags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
	FlagECE
	FlagCWR
	FlagNS
)

var flagNames = []struct {
	flag TCPFlags
	name string
}{
	{FlagFIN, "FIN"},
	{FlagSYN, "SYN"},
	{FlagRST, "RST"},
	{FlagPSH, "PSH"},
	{FlagACK, "ACK"},
	{FlagURG, "URG"},
	{FlagECE, "ECE"},
	{FlagCWR, "CWR"},
	{FlagNS, "NS"},
}

// Has reports whether all bits of f are set.
func (t TCPFlags) Has(f TCPFlags) bool { return t&f == f }

func (t TCPFlags) String() string {
	var names []string
	for _, fn := range flagNames {
		if t.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ParseTCPFlags parses a list like "SYN,ACK" or "syn|ack".
func ParseTCPFlags(s string) (TCPFlags, error) {
	var flags TCPFlags
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' || r == ' ' })
	for _, f := range fields {
		found := false
		for _, fn := range flagNames {
			if strings.EqualFold(f, fn.name) {
				flags |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown tcp flag %q", f)
		}
	}
	return flags, nil
}

// TCP is a TCP segment header. Like UDP, the checksum is only computed when
// the pseudo-header addresses are known; otherwise it is left 0.
type TCP struct {
	base
	SrcPort    uint16
	DstPort    uint16
	Seq        uint32
	Ack        uint32
	DataOffset uint8 // header length in 32-bit words
	Flags      TCPFlags
	Window     uint16
	Checksum   uint16
	Urgent     uint16
	Options    []byte // only populated by decoding

	PseudoSrc netip.Addr
	PseudoDst netip.Addr
}

// NewTCP returns a TCP header; zero ports default to 12345 and 80, zero
// flags to SYN, and the window to 8192.
func NewTCP(srcPort, dstPort uint16, seq, ack uint32, flags TCPFlags) *TCP {
	if srcPort == 0 {
		srcPort = defaultTCPSrcPort
	}
	if dstPort == 0 {
		dstPort = defaultTCPDstPort
	}
	if flags == 0 {
		flags = FlagSYN
	}
	return &TCP{
		SrcPort:    srcPort,
		DstPort:    dstPort,
		Seq:        seq,
		Ack:        ack,
		DataOffset: 5,
		Flags:      flags,
		Window:     defaultTCPWindow,
	}
}

func (t *TCP) Kind() Kind { return KindTCP }

// Data returns the opaque payload, or nil.
func (t *TCP) Data() []byte { return PayloadBytes(t) }

func (t *TCP) encode(payload []byte) ([]byte, error) {
	hdrLen := TCPHeaderLen + len(t.Options)
	if len(t.Options)%4 != 0 || hdrLen > tcpMaxHeaderLen {
		return nil, fmt.Errorf("tcp: %d option bytes: %w", len(t.Options), core.ErrMalformed)
	}
	withSum, err := pseudoAddrs("tcp", t.PseudoSrc, t.PseudoDst)
	if err != nil {
		return nil, err
	}

	t.DataOffset = uint8(hdrLen / 4)
	t.Checksum = 0
	hdr := t.marshalHeader()
	if withSum {
		segment := make([]byte, 0, len(hdr)+len(payload))
		segment = append(segment, hdr...)
		segment = append(segment, payload...)
		t.Checksum = checksum.Transport(t.PseudoSrc, t.PseudoDst, ProtocolTCP, segment)
		binary.BigEndian.PutUint16(hdr[16:18], t.Checksum)
	}
	return hdr, nil
}

func (t *TCP) marshalHeader() []byte {
	hdr := make([]byte, int(t.DataOffset)*4)
	binary.BigEndian.PutUint16(hdr[0:2], t.SrcPort)
	binary.BigEndian.PutUint16(hdr[2:4], t.DstPort)
	binary.BigEndian.PutUint32(hdr[4:8], t.Seq)
	binary.BigEndian.PutUint32(hdr[8:12], t.Ack)
	binary.BigEndian.PutUint16(hdr[12:14], uint16(t.DataOffset)<<12|uint16(t.Flags&0x0fff))
	binary.BigEndian.PutUint16(hdr[14:16], t.Window)
	binary.BigEndian.PutUint16(hdr[16:18], t.Checksum)
	binary.BigEndian.PutUint16(hdr[18:20], t.Urgent)
	copy(hdr[TCPHeaderLen:], t.Options)
	return hdr
}

func (t *TCP) fields() []Field {
	fs := []Field{
		{Name: "src_port", Value: fmt.Sprintf("%d", t.SrcPort)},
		{Name: "dst_port", Value: fmt.Sprintf("%d", t.DstPort)},
		{Name: "seq", Value: fmt.Sprintf("%d", t.Seq)},
		{Name: "ack", Value: fmt.Sprintf("%d", t.Ack)},
		{Name: "data_offset", Value: fmt.Sprintf("%d", t.DataOffset)},
		{Name: "flags", Value: fmt.Sprintf("0x%03x (%s)", uint16(t.Flags), t.Flags)},
		{Name: "window", Value: fmt.Sprintf("%d", t.Window)},
		{Name: "checksum", Value: fmt.Sprintf("0x%04x", t.Checksum)},
		{Name: "urgent", Value: fmt.Sprintf("%d", t.Urgent)},
	}
	if len(t.Options) > 0 {
		fs = append(fs, Field{Name: "options", Value: fmt.Sprintf("%x", t.Options)})
	}
	return fs
}

// DecodeTCP parses a TCP segment. The data offset (top 4 bits of octets
// 12-13) gives the header length; the low 12 bits are the flags.
func DecodeTCP(data []byte) (*TCP, error) {
	if len(data) < TCPHeaderLen {
		return nil, fmt.Errorf("tcp: need %d bytes, got %d: %w", TCPHeaderLen, len(data), core.ErrMalformed)
	}
	offsetFlags := binary.BigEndian.Uint16(data[12:14])
	t := &TCP{
		SrcPort:    binary.BigEndian.Uint16(data[0:2]),
		DstPort:    binary.BigEndian.Uint16(data[2:4]),
		Seq:        binary.BigEndian.Uint32(data[4:8]),
		Ack:        binary.BigEndian.Uint32(data[8:12]),
		DataOffset: uint8(offsetFlags >> 12),
		Flags:      TCPFlags(offsetFlags & 0x0fff),
		Window:     binary.BigEndian.Uint16(data[14:16]),
		Checksum:   binary.BigEndian.Uint16(data[16:18]),
		Urgent:     binary.BigEndian.Uint16(data[18:20]),
	}
	hdrLen := int(t.DataOffset) * 4
	if hdrLen < TCPHeaderLen || hdrLen > len(data) {
		return nil, fmt.Errorf("tcp: data offset %d with %d bytes available: %w", t.DataOffset, len(data), core.ErrMalformed)
	}
	if hdrLen > TCPHeaderLen {
		t.Options = bytes.Clone(data[TCPHeaderLen:hdrLen])
	}
	t.next = rawOrNil(data[hdrLen:])
	return t, nil
}
