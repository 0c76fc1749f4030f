//go:build !linux || !cgo

package driver

import (
	"fmt"
	"runtime"
	"time"

	"firestige.xyz/pktcraft/internal/core"
)

// SocketOpener needs Linux AF_PACKET support built with cgo; elsewhere
// every open fails with core.ErrUnsupportedPlatform.
type SocketOpener struct{}

func NewSocketOpener(snapLen, ringSizeMB int) *SocketOpener {
	return &SocketOpener{}
}

func (o *SocketOpener) OpenNetwork() (NetworkSender, error) {
	return nil, fmt.Errorf("raw network socket on %s: %w", runtime.GOOS, core.ErrUnsupportedPlatform)
}

func (o *SocketOpener) OpenLink(iface string) (LinkConn, error) {
	return nil, fmt.Errorf("af_packet socket on %s: %w", runtime.GOOS, core.ErrUnsupportedPlatform)
}

func (o *SocketOpener) OpenCapture(iface string, timeout time.Duration) (LinkConn, error) {
	return o.OpenLink(iface)
}
