package cmd

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"strings"

	"github.com/spf13/pflag"

	"firestige.xyz/pktcraft/internal/config"
	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/layer"
)

// packetFlags describes one chain on the command line:
// [Ethernet /] IPv4 / (ICMP | UDP [/ DNS] | TCP | nothing) [/ data].
type packetFlags struct {
	ether  bool
	srcMAC string
	dstMAC string

	src   string
	dst   string
	ttl   uint8
	ipID  uint16
	proto string

	icmpType uint8
	icmpID   uint16
	icmpSeq  uint16

	sport uint16
	dport uint16
	seq   uint32
	ack   uint32
	flags string

	qname   string
	data    string
	dataHex string
}

func (p *packetFlags) register(fs *pflag.FlagSet) {
	fs.BoolVar(&p.ether, "ether", false, "prepend an Ethernet header")
	fs.StringVar(&p.srcMAC, "src-mac", "00:00:00:00:00:00", "Ethernet source address")
	fs.StringVar(&p.dstMAC, "dst-mac", "ff:ff:ff:ff:ff:ff", "Ethernet destination address")

	fs.StringVar(&p.src, "src", "", "IPv4 source (default: address of the outgoing route)")
	fs.StringVar(&p.dst, "dst", "", "IPv4 destination")
	fs.Uint8Var(&p.ttl, "ttl", layer.DefaultTTL, "IPv4 time to live")
	fs.Uint16Var(&p.ipID, "ip-id", 0, "IPv4 identification")
	fs.StringVar(&p.proto, "proto", "icmp", "payload protocol: icmp, udp, tcp, dns or none")

	fs.Uint8Var(&p.icmpType, "icmp-type", layer.ICMPEchoRequest, "ICMP type")
	fs.Uint16Var(&p.icmpID, "icmp-id", 0, "ICMP identifier (default random)")
	fs.Uint16Var(&p.icmpSeq, "icmp-seq", 1, "ICMP sequence number")

	fs.Uint16Var(&p.sport, "sport", 0, "UDP/TCP source port (default 12345)")
	fs.Uint16Var(&p.dport, "dport", 0, "UDP/TCP destination port (default 53 for UDP, 80 for TCP)")
	fs.Uint32Var(&p.seq, "seq", 0, "TCP sequence number")
	fs.Uint32Var(&p.ack, "ack", 0, "TCP acknowledgment number")
	fs.StringVar(&p.flags, "flags", "SYN", "TCP flags, e.g. SYN,ACK")

	fs.StringVar(&p.qname, "qname", "example.com", "DNS query name (proto dns)")
	fs.StringVar(&p.data, "data", "", "payload as text")
	fs.StringVar(&p.dataHex, "data-hex", "", "payload as hex")
}

// applyProfile fills every flag the user did not set from the profile.
func (p *packetFlags) applyProfile(fs *pflag.FlagSet, prof config.Profile) {
	setIf := func(name string, ok bool, apply func()) {
		if ok && !fs.Changed(name) {
			apply()
		}
	}
	setIf("src-mac", prof.SrcMAC != "", func() { p.srcMAC = prof.SrcMAC })
	setIf("dst-mac", prof.DstMAC != "", func() { p.dstMAC = prof.DstMAC })
	setIf("src", prof.SrcIP != "", func() { p.src = prof.SrcIP })
	setIf("dst", prof.DstIP != "", func() { p.dst = prof.DstIP })
	setIf("ttl", prof.TTL != 0, func() { p.ttl = prof.TTL })
	setIf("sport", prof.SrcPort != 0, func() { p.sport = prof.SrcPort })
	setIf("dport", prof.DstPort != 0, func() { p.dport = prof.DstPort })
}

func (p *packetFlags) payload() ([]byte, error) {
	if p.dataHex != "" {
		b, err := hex.DecodeString(strings.ReplaceAll(p.dataHex, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("--data-hex: %w", err)
		}
		return b, nil
	}
	return []byte(p.data), nil
}

// build assembles the chain described by the flags.
func (p *packetFlags) build() (layer.Layer, error) {
	dst, err := layer.ParseIPv4(p.dst)
	if err != nil {
		return nil, fmt.Errorf("--dst: %w", err)
	}
	src, err := sourceFor(p.src, dst)
	if err != nil {
		return nil, err
	}
	data, err := p.payload()
	if err != nil {
		return nil, err
	}

	ip := layer.NewIPv4(src, dst)
	ip.TTL = p.ttl
	ip.ID = p.ipID

	var chain []layer.Layer
	if p.ether {
		srcMAC, err := layer.ParseMAC(p.srcMAC)
		if err != nil {
			return nil, err
		}
		dstMAC, err := layer.ParseMAC(p.dstMAC)
		if err != nil {
			return nil, err
		}
		chain = append(chain, layer.NewEthernet(srcMAC, dstMAC))
	}
	chain = append(chain, ip)

	switch strings.ToLower(p.proto) {
	case "icmp":
		id := p.icmpID
		if id == 0 {
			id = layer.RandomID()
		}
		return layer.Chain(append(chain, layer.NewEcho(p.icmpType, id, p.icmpSeq, data))...)
	case "udp":
		chain = append(chain, layer.NewUDP(p.sport, p.dport))
	case "dns":
		chain = append(chain, layer.NewUDP(p.sport, p.dport), layer.NewQuery(p.qname))
		return layer.Chain(chain...)
	case "tcp":
		flags, err := layer.ParseTCPFlags(p.flags)
		if err != nil {
			return nil, fmt.Errorf("--flags: %w", err)
		}
		chain = append(chain, layer.NewTCP(p.sport, p.dport, p.seq, p.ack, flags))
	case "none", "":
	default:
		return nil, fmt.Errorf("--proto %q: must be icmp, udp, tcp, dns or none", p.proto)
	}
	if len(data) > 0 {
		chain = append(chain, layer.NewRaw(data))
	}
	return layer.Chain(chain...)
}

// sourceFor parses src or, when empty, asks the routing table which local
// address reaches dst. Dialing UDP sends nothing.
func sourceFor(src string, dst netip.Addr) (netip.Addr, error) {
	if src != "" {
		addr, err := layer.ParseIPv4(src)
		if err != nil {
			return netip.Addr{}, fmt.Errorf("--src: %w", err)
		}
		return addr, nil
	}
	conn, err := net.Dial("udp4", netip.AddrPortFrom(dst, 9).String())
	if err != nil {
		return netip.Addr{}, fmt.Errorf("no route to %s, pass --src: %v: %w", dst, err, core.ErrAddressing)
	}
	defer conn.Close()
	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, fmt.Errorf("no local address for %s: %w", dst, core.ErrAddressing)
	}
	addr, ok := netip.AddrFromSlice(local.IP.To4())
	if !ok {
		return netip.Addr{}, fmt.Errorf("local address %v is not IPv4: %w", local.IP, core.ErrAddressing)
	}
	return addr, nil
}

// randomSeq returns an initial TCP sequence number.
func randomSeq() uint32 {
	return rand.Uint32()
}
