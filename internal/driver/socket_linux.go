//go:build linux && cgo

package driver

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/google/gopacket/afpacket"
	"golang.org/x/sys/unix"

	"firestige.xyz/pktcraft/internal/core"
)

// SocketOpener opens real raw sockets: AF_INET/SOCK_RAW/IPPROTO_RAW for the
// network layer and an AF_PACKET ring for the link layer. Both need
// CAP_NET_RAW.
type SocketOpener struct {
	snapLen    int
	ringSizeMB int
}

func NewSocketOpener(snapLen, ringSizeMB int) *SocketOpener {
	return &SocketOpener{snapLen: snapLen, ringSizeMB: ringSizeMB}
}

func (o *SocketOpener) OpenNetwork() (NetworkSender, error) {
	// IPPROTO_RAW implies IP_HDRINCL: the packet carries its own IPv4 header.
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_INET, SOCK_RAW, IPPROTO_RAW): %w", err)
	}
	return &rawSender{fd: fd}, nil
}

func (o *SocketOpener) OpenLink(iface string) (LinkConn, error) {
	return o.open(iface, 0)
}

// OpenCapture polls for at most timeout, never less than MinPollTimeout.
// afpacket's default poll timeout blocks until a frame arrives.
func (o *SocketOpener) OpenCapture(iface string, timeout time.Duration) (LinkConn, error) {
	return o.open(iface, pollTimeout(timeout))
}

// open creates the ring; a zero poll keeps afpacket's blocking default,
// which only matters for reads.
func (o *SocketOpener) open(iface string, poll time.Duration) (LinkConn, error) {
	frameSize, blockSize, numBlocks, err := ringSize(o.ringSizeMB, o.snapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}
	opts := []interface{}{
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	}
	if iface != "" {
		opts = append(opts, afpacket.OptInterface(iface))
	}
	if poll > 0 {
		opts = append(opts, afpacket.OptPollTimeout(poll))
	}

	tp, err := afpacket.NewTPacket(opts...)
	if err != nil {
		return nil, fmt.Errorf("af_packet: %w", err)
	}
	return &tpacketConn{tp: tp}, nil
}

type rawSender struct {
	fd int
}

func (s *rawSender) SendTo(packet []byte, dst netip.Addr) error {
	if !dst.Is4() {
		return fmt.Errorf("destination %v: %w", dst, core.ErrAddressing)
	}
	return unix.Sendto(s.fd, packet, 0, &unix.SockaddrInet4{Addr: dst.As4()})
}

func (s *rawSender) Close() error {
	return unix.Close(s.fd)
}

type tpacketConn struct {
	tp *afpacket.TPacket
}

func (c *tpacketConn) Write(frame []byte) error {
	return c.tp.WritePacketData(frame)
}

func (c *tpacketConn) Read() (core.RawPacket, bool, error) {
	data, ci, err := c.tp.ReadPacketData()
	if errors.Is(err, afpacket.ErrTimeout) {
		return core.RawPacket{}, false, nil
	}
	if err != nil {
		return core.RawPacket{}, false, err
	}
	return core.RawPacket{
		Data:           data,
		Timestamp:      ci.Timestamp,
		CaptureLen:     uint32(ci.CaptureLength),
		OrigLen:        uint32(ci.Length),
		InterfaceIndex: ci.InterfaceIndex,
	}, true, nil
}

func (c *tpacketConn) Close() error {
	c.tp.Close()
	return nil
}
