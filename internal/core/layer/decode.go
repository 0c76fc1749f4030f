package layer

import (
	"fmt"
	"strings"

	"firestige.xyz/pktcraft/internal/core"
)

// Decode parses data starting at the given outermost kind and follows the
// protocol dispatch of each codec. Decoding KindRaw never fails.
func Decode(data []byte, first Kind) (Layer, error) {
	switch first {
	case KindEthernet:
		return asLayer(DecodeEthernet(data))
	case KindIPv4:
		return asLayer(DecodeIPv4(data))
	case KindICMP:
		return asLayer(DecodeICMP(data))
	case KindUDP:
		return asLayer(DecodeUDP(data))
	case KindTCP:
		return asLayer(DecodeTCP(data))
	case KindDNS:
		return asLayer(DecodeDNS(data))
	case KindRaw:
		return NewRaw(data), nil
	}
	return nil, fmt.Errorf("decode: unknown layer kind %s: %w", first, core.ErrInvalidChain)
}

// asLayer keeps a failed decode from leaking a typed nil into the interface.
func asLayer[T Layer](l T, err error) (Layer, error) {
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ParseKind maps a case-insensitive layer name such as "ether" or "ipv4" to its Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "ether", "ethernet":
		return KindEthernet, nil
	case "ip", "ipv4":
		return KindIPv4, nil
	case "icmp":
		return KindICMP, nil
	case "udp":
		return KindUDP, nil
	case "tcp":
		return KindTCP, nil
	case "dns":
		return KindDNS, nil
	case "raw":
		return KindRaw, nil
	}
	return 0, fmt.Errorf("unknown layer %q: %w", s, core.ErrInvalidChain)
}
