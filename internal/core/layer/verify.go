package layer

import (
	"fmt"

	"firestige.xyz/pktcraft/internal/core"
)

// VerifyChecksums decodes frame and checks every checksum it carries against
// a recomputation, outermost first. Transport checksums are skipped when
// the pseudo-header addresses are unknown, which happens when decoding
// starts above IPv4, and for UDP sent without a checksum.
func VerifyChecksums(frame []byte, first Kind) error {
	chain, err := Decode(frame, first)
	if err != nil {
		return err
	}

	type check struct {
		l    Layer
		wire uint16
	}
	var checks []check
	for l := chain; l != nil; l = l.Payload() {
		switch v := l.(type) {
		case *IPv4:
			checks = append(checks, check{v, v.Checksum})
		case *ICMP:
			checks = append(checks, check{v, v.Checksum})
		case *UDP:
			if v.Checksum != 0 && v.PseudoSrc.IsValid() {
				checks = append(checks, check{v, v.Checksum})
			}
		case *TCP:
			if v.PseudoSrc.IsValid() {
				checks = append(checks, check{v, v.Checksum})
			}
		}
	}

	if _, err := Serialize(chain); err != nil {
		return err
	}
	for _, c := range checks {
		if got := checksumOf(c.l); got != c.wire {
			return fmt.Errorf("%s: wire checksum 0x%04x, computed 0x%04x: %w", c.l.Kind(), c.wire, got, core.ErrChecksumMismatch)
		}
	}
	return nil
}

func checksumOf(l Layer) uint16 {
	switch v := l.(type) {
	case *IPv4:
		return v.Checksum
	case *ICMP:
		return v.Checksum
	case *UDP:
		return v.Checksum
	case *TCP:
		return v.Checksum
	}
	return 0
}
