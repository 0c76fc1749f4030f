package layer

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"

	"firestige.xyz/pktcraft/internal/core"
)

const (
	// DNSHeaderLen is the fixed DNS message header size.
	DNSHeaderLen = 12

	DNSTypeA    = 1
	DNSTypeAAAA = 28
	DNSClassIN  = 1

	// DNSFlagRD is the standard-query flag word with recursion desired.
	DNSFlagRD = 0x0100

	maxLabelLen = 63
	maxNameLen  = 255
)

// DNS is a DNS message with exactly one question. Any answer, authority or
// additional records are kept as an opaque Raw payload; FirstA reads the
// first answer from it.
type DNS struct {
	base
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
	QName   string
	QType   uint16
	QClass  uint16
}

// NewQuery returns a recursive A/IN query for name with a random transaction id.
func NewQuery(name string) *DNS {
	return &DNS{
		ID:      RandomID(),
		Flags:   DNSFlagRD,
		QDCount: 1,
		QName:   name,
		QType:   DNSTypeA,
		QClass:  DNSClassIN,
	}
}

func (d *DNS) Kind() Kind { return KindDNS }

func (d *DNS) encode([]byte) ([]byte, error) {
	name, err := EncodeName(d.QName)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, DNSHeaderLen, DNSHeaderLen+len(name)+4)
	binary.BigEndian.PutUint16(buf[0:2], d.ID)
	binary.BigEndian.PutUint16(buf[2:4], d.Flags)
	binary.BigEndian.PutUint16(buf[4:6], d.QDCount)
	binary.BigEndian.PutUint16(buf[6:8], d.ANCount)
	binary.BigEndian.PutUint16(buf[8:10], d.NSCount)
	binary.BigEndian.PutUint16(buf[10:12], d.ARCount)
	buf = append(buf, name...)
	buf = binary.BigEndian.AppendUint16(buf, d.QType)
	buf = binary.BigEndian.AppendUint16(buf, d.QClass)
	return buf, nil
}

func (d *DNS) fields() []Field {
	return []Field{
		{Name: "id", Value: fmt.Sprintf("0x%04x", d.ID)},
		{Name: "flags", Value: fmt.Sprintf("0x%04x", d.Flags)},
		{Name: "qdcount", Value: fmt.Sprintf("%d", d.QDCount)},
		{Name: "ancount", Value: fmt.Sprintf("%d", d.ANCount)},
		{Name: "nscount", Value: fmt.Sprintf("%d", d.NSCount)},
		{Name: "arcount", Value: fmt.Sprintf("%d", d.ARCount)},
		{Name: "qname", Value: d.QName},
		{Name: "qtype", Value: fmt.Sprintf("%d", d.QType)},
		{Name: "qclass", Value: fmt.Sprintf("%d", d.QClass)},
	}
}

// IsResponse reports whether the QR bit is set.
func (d *DNS) IsResponse() bool { return d.Flags&0x8000 != 0 }

// RCode returns the response code in the low four flag bits.
func (d *DNS) RCode() uint8 { return uint8(d.Flags & 0x000f) }

// FirstA returns the address of the first answer record, which must be an
// A/IN record with a 4-octet rdata.
func (d *DNS) FirstA() (netip.Addr, error) {
	if d.ANCount == 0 {
		return netip.Addr{}, fmt.Errorf("dns: %q has no answers: %w", d.QName, core.ErrNoAnswer)
	}
	rr := PayloadBytes(d)
	off, err := skipName(rr, 0)
	if err != nil {
		return netip.Addr{}, err
	}
	// type(2) class(2) ttl(4) rdlength(2)
	if off+10 > len(rr) {
		return netip.Addr{}, fmt.Errorf("dns: answer record truncated at %d: %w", off, core.ErrMalformed)
	}
	typ := binary.BigEndian.Uint16(rr[off : off+2])
	class := binary.BigEndian.Uint16(rr[off+2 : off+4])
	rdlen := int(binary.BigEndian.Uint16(rr[off+8 : off+10]))
	off += 10
	if typ != DNSTypeA || class != DNSClassIN {
		return netip.Addr{}, fmt.Errorf("dns: first answer is type %d class %d: %w", typ, class, core.ErrNoAnswer)
	}
	if rdlen != 4 || off+4 > len(rr) {
		return netip.Addr{}, fmt.Errorf("dns: A record rdata length %d: %w", rdlen, core.ErrMalformed)
	}
	return netip.AddrFrom4([4]byte(rr[off : off+4])), nil
}

// DecodeDNS parses the header and the single question of a DNS message.
// Everything after the question is kept as a Raw payload.
func DecodeDNS(data []byte) (*DNS, error) {
	if len(data) < DNSHeaderLen {
		return nil, fmt.Errorf("dns: need %d bytes, got %d: %w", DNSHeaderLen, len(data), core.ErrMalformed)
	}
	d := &DNS{
		ID:      binary.BigEndian.Uint16(data[0:2]),
		Flags:   binary.BigEndian.Uint16(data[2:4]),
		QDCount: binary.BigEndian.Uint16(data[4:6]),
		ANCount: binary.BigEndian.Uint16(data[6:8]),
		NSCount: binary.BigEndian.Uint16(data[8:10]),
		ARCount: binary.BigEndian.Uint16(data[10:12]),
	}
	name, n, err := DecodeName(data[DNSHeaderLen:])
	if err != nil {
		return nil, err
	}
	off := DNSHeaderLen + n
	if off+4 > len(data) {
		return nil, fmt.Errorf("dns: question truncated: %w", core.ErrMalformed)
	}
	d.QName = name
	d.QType = binary.BigEndian.Uint16(data[off : off+2])
	d.QClass = binary.BigEndian.Uint16(data[off+2 : off+4])
	d.next = rawOrNil(data[off+4:])
	return d, nil
}

// EncodeName converts a dotted name into length-prefixed labels terminated
// by a zero octet: "example.com" becomes 7 example 3 com 0. A single
// trailing dot is accepted; "" and "." encode the root.
func EncodeName(name string) ([]byte, error) {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return []byte{0}, nil
	}
	out := make([]byte, 0, len(name)+2)
	for _, label := range strings.Split(name, ".") {
		if len(label) == 0 || len(label) > maxLabelLen {
			return nil, fmt.Errorf("dns: label %q in %q must be 1-%d octets: %w", label, name, maxLabelLen, core.ErrMalformed)
		}
		out = append(out, byte(len(label)))
		out = append(out, label...)
	}
	out = append(out, 0)
	if len(out) > maxNameLen {
		return nil, fmt.Errorf("dns: name %q encodes to %d octets: %w", name, len(out), core.ErrMalformed)
	}
	return out, nil
}

// DecodeName reads an uncompressed name from the start of data and returns
// it with the number of octets consumed. Compression pointers are refused.
func DecodeName(data []byte) (string, int, error) {
	var labels []string
	off := 0
	for {
		if off >= len(data) {
			return "", 0, fmt.Errorf("dns: name runs past %d octets: %w", len(data), core.ErrMalformed)
		}
		n := int(data[off])
		off++
		if n == 0 {
			break
		}
		if n&0xc0 != 0 {
			return "", 0, fmt.Errorf("dns: compressed or reserved label 0x%02x: %w", n, core.ErrMalformed)
		}
		if off+n > len(data) {
			return "", 0, fmt.Errorf("dns: label of %d octets runs past buffer: %w", n, core.ErrMalformed)
		}
		labels = append(labels, string(data[off:off+n]))
		off += n
		// the terminating zero octet counts toward the limit
		if off+1 > maxNameLen {
			return "", 0, fmt.Errorf("dns: name longer than %d octets: %w", maxNameLen, core.ErrMalformed)
		}
	}
	return strings.Join(labels, "."), off, nil
}

// skipName returns the offset just past the name at off, which may be a
// label sequence or end in a 2-octet compression pointer.
func skipName(data []byte, off int) (int, error) {
	for {
		if off >= len(data) {
			return 0, fmt.Errorf("dns: record name runs past buffer: %w", core.ErrMalformed)
		}
		n := int(data[off])
		switch {
		case n == 0:
			return off + 1, nil
		case n&0xc0 == 0xc0:
			if off+2 > len(data) {
				return 0, fmt.Errorf("dns: truncated compression pointer: %w", core.ErrMalformed)
			}
			return off + 2, nil
		case n&0xc0 != 0:
			return 0, fmt.Errorf("dns: reserved label type 0x%02x: %w", n, core.ErrMalformed)
		}
		off += 1 + n
	}
}
