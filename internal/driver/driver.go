// Package driver moves serialized layer chains on and off the wire through
// raw sockets. Every call opens its own channels and closes them before
// returning; a Driver only holds immutable settings.
package driver

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/layer"
	"firestige.xyz/pktcraft/internal/log"
	"firestige.xyz/pktcraft/internal/metrics"
)

// NetworkSender is a network-layer raw channel. The kernel adds the link
// header; the caller supplies the complete IPv4 packet.
type NetworkSender interface {
	SendTo(packet []byte, dst netip.Addr) error
	Close() error
}

// LinkConn is a link-layer raw channel carrying whole Ethernet frames.
type LinkConn interface {
	Write(frame []byte) error
	// Read waits for one inbound frame. ok is false when the channel's
	// timeout expired without one.
	Read() (pkt core.RawPacket, ok bool, err error)
	Close() error
}

// Opener creates channels. An empty iface means every interface.
type Opener interface {
	OpenNetwork() (NetworkSender, error)
	// OpenLink opens a link channel that is only written to.
	OpenLink(iface string) (LinkConn, error)
	// OpenCapture opens a link channel whose Read reports ok=false once
	// timeout passes without a frame. timeout is always positive.
	OpenCapture(iface string, timeout time.Duration) (LinkConn, error)
}

// MinPollTimeout is the wait used for a receive timeout of zero or less:
// one immediate poll, then "no reply".
const MinPollTimeout = time.Millisecond

func pollTimeout(timeout time.Duration) time.Duration {
	if timeout < MinPollTimeout {
		return MinPollTimeout
	}
	return timeout
}

// Reply is one inbound frame. Packet is the chain decoded from Ethernet, or
// a single Raw layer holding the whole frame when decoding failed, in which
// case DecodeErr says why.
type Reply struct {
	Packet    layer.Layer
	Raw       core.RawPacket
	DecodeErr error
}

// Driver sends and receives chains. It is safe for sequential reuse.
type Driver struct {
	opener Opener
	iface  string
	log    log.Logger
}

type Option func(*Driver)

// WithInterface restricts receive channels to one interface.
func WithInterface(iface string) Option {
	return func(d *Driver) { d.iface = iface }
}

// WithLogger replaces the component logger.
func WithLogger(l log.Logger) Option {
	return func(d *Driver) { d.log = l }
}

func New(opener Opener, opts ...Option) *Driver {
	d := &Driver{opener: opener}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = log.Named("driver")
	}
	return d
}

// Transmit sends chain on a network-layer channel addressed to its IPv4
// destination. A leading Ethernet layer is skipped.
func (d *Driver) Transmit(chain layer.Layer) error {
	ip, packet, err := networkPacket(chain)
	if err != nil {
		return err
	}
	return d.send(ip.Dst, packet, d.log.WithField("dst", ip.Dst.String()))
}

// TransmitLink writes the whole chain, which must start with Ethernet, on
// iface.
func (d *Driver) TransmitLink(chain layer.Layer, iface string) error {
	if chain == nil || chain.Kind() != layer.KindEthernet {
		return fmt.Errorf("transmit link: chain must start with Ethernet: %w", core.ErrAddressing)
	}
	if iface == "" {
		return fmt.Errorf("transmit link: no interface given: %w", core.ErrAddressing)
	}
	frame, err := layer.Serialize(chain)
	if err != nil {
		return err
	}

	conn, err := d.opener.OpenLink(iface)
	if err != nil {
		return fmt.Errorf("open link channel on %s: %w", iface, err)
	}
	defer d.closeLink(conn)

	if err := conn.Write(frame); err != nil {
		metrics.SendErrorsTotal.WithLabelValues(metrics.ChannelLink).Inc()
		return fmt.Errorf("write frame on %s: %w", iface, err)
	}
	metrics.FramesSentTotal.WithLabelValues(metrics.ChannelLink).Inc()
	d.log.WithFields(map[string]interface{}{"iface": iface, "bytes": len(frame)}).Info("sent frame")
	return nil
}

// SendAndAwaitReply transmits chain like Transmit and returns the first
// inbound frame seen on the receive interface within timeout. There is no
// matching: the frame may be unrelated traffic. ok is false when nothing
// arrived in time.
//
// The receive channel is opened after transmitting: a packet socket also
// sees outgoing frames, and opening it earlier would capture the request
// itself.
func (d *Driver) SendAndAwaitReply(chain layer.Layer, timeout time.Duration) (*Reply, bool, error) {
	ip, packet, err := networkPacket(chain)
	if err != nil {
		return nil, false, err
	}
	l := d.log.WithFields(map[string]interface{}{
		"round_trip": uuid.NewString(),
		"dst":        ip.Dst.String(),
	})

	if err := d.send(ip.Dst, packet, l); err != nil {
		return nil, false, err
	}
	start := time.Now()
	conn, err := d.opener.OpenCapture(d.iface, pollTimeout(timeout))
	if err != nil {
		return nil, false, fmt.Errorf("open receive channel: %w", err)
	}
	defer d.closeLink(conn)

	reply, ok, err := d.receive(conn, l)
	if ok {
		metrics.RoundTripSeconds.Observe(time.Since(start).Seconds())
	}
	return reply, ok, err
}

// CaptureOne returns the first inbound frame within timeout.
func (d *Driver) CaptureOne(timeout time.Duration) (*Reply, bool, error) {
	conn, err := d.opener.OpenCapture(d.iface, pollTimeout(timeout))
	if err != nil {
		return nil, false, fmt.Errorf("open receive channel: %w", err)
	}
	defer d.closeLink(conn)
	return d.receive(conn, d.log.WithField("iface", d.ifaceName()))
}

func (d *Driver) send(dst netip.Addr, packet []byte, l log.Logger) error {
	s, err := d.opener.OpenNetwork()
	if err != nil {
		return fmt.Errorf("open network channel: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			d.log.WithError(err).Warn("close network channel")
		}
	}()

	if err := s.SendTo(packet, dst); err != nil {
		metrics.SendErrorsTotal.WithLabelValues(metrics.ChannelNetwork).Inc()
		return fmt.Errorf("send to %s: %w", dst, err)
	}
	metrics.FramesSentTotal.WithLabelValues(metrics.ChannelNetwork).Inc()
	l.WithField("bytes", len(packet)).Info("sent packet")
	return nil
}

func (d *Driver) receive(conn LinkConn, l log.Logger) (*Reply, bool, error) {
	pkt, ok, err := conn.Read()
	if err != nil {
		return nil, false, fmt.Errorf("receive: %w", err)
	}
	if !ok {
		metrics.ReceiveTimeoutsTotal.Inc()
		l.Info("timeout: no reply received")
		return nil, false, nil
	}
	metrics.FramesReceivedTotal.Inc()

	reply := &Reply{Raw: pkt}
	reply.Packet, reply.DecodeErr = layer.Decode(pkt.Data, layer.KindEthernet)
	if reply.DecodeErr != nil {
		reply.Packet = layer.NewRaw(pkt.Data)
		metrics.DecodeErrorsTotal.Inc()
		l.WithError(reply.DecodeErr).Debug("received frame did not decode")
	}
	l.WithField("bytes", len(pkt.Data)).Info("received frame")
	if l.IsTraceEnabled() {
		l.Tracef("frame %x", pkt.Data)
	}
	return reply, true, nil
}

func (d *Driver) closeLink(conn LinkConn) {
	if err := conn.Close(); err != nil {
		d.log.WithError(err).Warn("close link channel")
	}
}

func (d *Driver) ifaceName() string {
	if d.iface == "" {
		return "any"
	}
	return d.iface
}

// networkPacket skips a leading Ethernet layer and serializes from the IPv4
// layer. It fails before any I/O when there is no IPv4 layer to address.
func networkPacket(chain layer.Layer) (*layer.IPv4, []byte, error) {
	if chain != nil && chain.Kind() == layer.KindEthernet {
		chain = chain.Payload()
	}
	ip, ok := chain.(*layer.IPv4)
	if !ok {
		return nil, nil, fmt.Errorf("transmit: no IPv4 layer to address: %w", core.ErrAddressing)
	}
	if !ip.Dst.Is4() {
		return nil, nil, fmt.Errorf("transmit: destination %v is not an IPv4 address: %w", ip.Dst, core.ErrAddressing)
	}
	packet, err := layer.Serialize(ip)
	if err != nil {
		return nil, nil, err
	}
	return ip, packet, nil
}
