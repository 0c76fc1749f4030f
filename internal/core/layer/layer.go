// Package layer implements the stacked protocol codecs: Ethernet, IPv4, ICMP,
// UDP, TCP, DNS and opaque trailing bytes.
//
// A chain is built outer-to-inner with Stack or Chain, serialized with
// Serialize and reconstructed from bytes with Decode. Every layer owns at
// most one payload, which is either another structured layer, a *Raw holding
// opaque bytes, or nil.
package layer

import (
	"bytes"
	"fmt"

	"firestige.xyz/pktcraft/internal/core"
)

// Kind enumerates the closed set of layer variants.
type Kind uint8

const (
	KindRaw Kind = iota
	KindEthernet
	KindIPv4
	KindICMP
	KindUDP
	KindTCP
	KindDNS
)

var kindNames = map[Kind]string{
	KindRaw:      "Raw",
	KindEthernet: "Ethernet",
	KindIPv4:     "IPv4",
	KindICMP:     "ICMP",
	KindUDP:      "UDP",
	KindTCP:      "TCP",
	KindDNS:      "DNS",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Layer is one protocol header plus everything it encapsulates. The
// interface is sealed: only the variants in this package implement it.
type Layer interface {
	Kind() Kind
	// Payload returns the encapsulated layer, or nil when terminal.
	Payload() Layer

	setPayload(Layer)
	// encode returns the header bytes given the already serialized payload,
	// writing computed fields (lengths, checksums) back into the layer.
	encode(payload []byte) ([]byte, error)
	fields() []Field
}

// base carries the owned next-layer reference.
type base struct {
	next Layer
}

func (b *base) Payload() Layer { return b.next }

func (b *base) setPayload(l Layer) { b.next = l }

// Raw is an opaque byte buffer. It is always terminal.
type Raw struct {
	Data []byte
}

// NewRaw wraps data as an opaque payload. The slice is copied.
func NewRaw(data []byte) *Raw {
	return &Raw{Data: bytes.Clone(data)}
}

func (r *Raw) Kind() Kind { return KindRaw }

func (r *Raw) Payload() Layer { return nil }

func (r *Raw) setPayload(Layer) {}

func (r *Raw) encode([]byte) ([]byte, error) { return r.Data, nil }

func (r *Raw) fields() []Field {
	return []Field{
		{Name: "length", Value: fmt.Sprintf("%d", len(r.Data))},
		{Name: "data", Value: fmt.Sprintf("%x", r.Data)},
	}
}

// rawOrNil wraps rest as a Raw payload, or returns nil when rest is empty.
func rawOrNil(rest []byte) Layer {
	if len(rest) == 0 {
		return nil
	}
	return NewRaw(rest)
}

// Serialize encodes the chain rooted at l, outer header first. Lengths and
// checksums are computed over the assembled payload and written back into
// each layer.
func Serialize(l Layer) ([]byte, error) {
	if l == nil {
		return nil, nil
	}
	payload, err := Serialize(l.Payload())
	if err != nil {
		return nil, err
	}
	hdr, err := l.encode(payload)
	if err != nil {
		return nil, err
	}
	if l.Kind() == KindRaw {
		return bytes.Clone(hdr), nil
	}
	out := make([]byte, 0, len(hdr)+len(payload))
	out = append(out, hdr...)
	out = append(out, payload...)
	return out, nil
}

// Stack appends inner at the end of the chain rooted at outer and returns
// outer. As part of linking it fills a zero EtherType or IPv4 protocol from
// the inner layer's kind, and copies the IPv4 addresses into a UDP or TCP
// layer whose pseudo-header addresses are still unset.
func Stack(outer, inner Layer) (Layer, error) {
	if outer == nil || inner == nil {
		return nil, fmt.Errorf("stack: nil layer: %w", core.ErrInvalidChain)
	}
	for l := inner; l != nil; l = l.Payload() {
		if contains(outer, l) {
			return nil, fmt.Errorf("stack: %s is already part of the chain: %w", l.Kind(), core.ErrInvalidChain)
		}
	}

	last := Last(outer)
	if last.Kind() == KindRaw {
		return nil, fmt.Errorf("stack: raw bytes are terminal: %w", core.ErrInvalidChain)
	}
	last.setPayload(inner)
	link(last, inner)
	return outer, nil
}

// Chain stacks layers in encapsulation order, outermost first.
func Chain(layers ...Layer) (Layer, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("chain: no layers: %w", core.ErrInvalidChain)
	}
	root := layers[0]
	for _, l := range layers[1:] {
		if _, err := Stack(root, l); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// MustChain is like Chain but panics on error.
func MustChain(layers ...Layer) Layer {
	l, err := Chain(layers...)
	if err != nil {
		panic(err)
	}
	return l
}

// link threads protocol identifiers and addresses from outer into inner.
func link(outer, inner Layer) {
	switch o := outer.(type) {
	case *Ethernet:
		if o.EtherType == 0 && inner.Kind() == KindIPv4 {
			o.EtherType = EtherTypeIPv4
		}
	case *IPv4:
		if o.Protocol == 0 {
			o.Protocol = protocolFor(inner.Kind())
		}
		switch t := inner.(type) {
		case *UDP:
			if !t.PseudoSrc.IsValid() && !t.PseudoDst.IsValid() {
				t.PseudoSrc, t.PseudoDst = o.Src, o.Dst
			}
		case *TCP:
			if !t.PseudoSrc.IsValid() && !t.PseudoDst.IsValid() {
				t.PseudoSrc, t.PseudoDst = o.Src, o.Dst
			}
		}
	}
}

func contains(chain, target Layer) bool {
	for l := chain; l != nil; l = l.Payload() {
		if l == target {
			return true
		}
	}
	return false
}

// Last returns the innermost layer of the chain.
func Last(l Layer) Layer {
	for l != nil && l.Payload() != nil {
		l = l.Payload()
	}
	return l
}

// Find returns the first layer of kind k in the chain, or nil.
func Find(l Layer, k Kind) Layer {
	for ; l != nil; l = l.Payload() {
		if l.Kind() == k {
			return l
		}
	}
	return nil
}

// Kinds lists the kinds of the chain, outermost first.
func Kinds(l Layer) []Kind {
	var kinds []Kind
	for ; l != nil; l = l.Payload() {
		kinds = append(kinds, l.Kind())
	}
	return kinds
}

// PayloadBytes returns the data of a terminal Raw payload of l, or nil.
func PayloadBytes(l Layer) []byte {
	if l == nil {
		return nil
	}
	if r, ok := l.Payload().(*Raw); ok {
		return r.Data
	}
	return nil
}
