// Package checksum implements the RFC 1071 Internet checksum shared by the
// IPv4, ICMP, UDP and TCP codecs.
package checksum

import (
	"encoding/binary"
	"net/netip"
)

// PseudoHeaderLen is the size of the IPv4 pseudo-header used by UDP and TCP.
const PseudoHeaderLen = 12

// Sum adds the big-endian 16-bit words of b to initial without folding.
// An odd trailing byte is treated as if padded with one zero byte.
func Sum(b []byte, initial uint32) uint32 {
	sum := initial
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	return sum
}

// Fold folds carries into the low 16 bits until none remain.
func Fold(sum uint32) uint16 {
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return uint16(sum)
}

// Checksum returns the one's complement of the one's complement sum of b.
// The checksum field inside b must already be zeroed.
func Checksum(b []byte) uint16 {
	return ^Fold(Sum(b, 0))
}

// Valid reports whether b, checksum field included, sums to all ones,
// i.e. Checksum(b) == 0.
func Valid(b []byte) bool {
	return Checksum(b) == 0
}

// PseudoHeader assembles the IPv4 pseudo-header
// [src:4][dst:4][zero:1][proto:1][length:2]. The result is never stored.
func PseudoHeader(src, dst netip.Addr, proto uint8, length int) []byte {
	ph := make([]byte, PseudoHeaderLen)
	s := src.As4()
	d := dst.As4()
	copy(ph[0:4], s[:])
	copy(ph[4:8], d[:])
	ph[8] = 0
	ph[9] = proto
	binary.BigEndian.PutUint16(ph[10:12], uint16(length))
	return ph
}

// Transport computes a UDP or TCP checksum over segment (header with zeroed
// checksum followed by data), prefixed with the pseudo-header built from the
// enclosing IPv4 addresses. src and dst must be IPv4 addresses.
func Transport(src, dst netip.Addr, proto uint8, segment []byte) uint16 {
	buf := make([]byte, 0, PseudoHeaderLen+len(segment))
	buf = append(buf, PseudoHeader(src, dst, proto, len(segment))...)
	buf = append(buf, segment...)
	return Checksum(buf)
}
