package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/layer"
	"firestige.xyz/pktcraft/internal/driver"
	"firestige.xyz/pktcraft/internal/log"
	"firestige.xyz/pktcraft/internal/render"
)

// PacketIO is the part of the driver the commands use; tests swap in a mock.
type PacketIO interface {
	Transmit(chain layer.Layer) error
	TransmitLink(chain layer.Layer, iface string) error
	SendAndAwaitReply(chain layer.Layer, timeout time.Duration) (*driver.Reply, bool, error)
	CaptureOne(timeout time.Duration) (*driver.Reply, bool, error)
}

// newPacketIO builds the raw-socket driver from the loaded configuration.
var newPacketIO = func() PacketIO {
	return driver.New(
		driver.NewSocketOpener(cfg.SnapLen, cfg.RingSizeMB),
		driver.WithInterface(interfaceName()),
	)
}

// matchFunc accepts the reply a command is waiting for.
type matchFunc func(*driver.Reply) bool

// awaitMatch sends the chain returned by build up to n times and returns the
// first reply accepted by match. Each attempt gets a freshly built chain so
// callers can vary identifiers. A nil reply with a nil error means every
// attempt timed out or saw only unrelated traffic.
func awaitMatch(pio PacketIO, n int, timeout time.Duration, build func(attempt int) (layer.Layer, error), match matchFunc) (*driver.Reply, error) {
	l := log.Named("cmd")
	for attempt := 1; attempt <= n; attempt++ {
		chain, err := build(attempt)
		if err != nil {
			return nil, err
		}
		reply, ok, err := pio.SendAndAwaitReply(chain, timeout)
		if err != nil {
			return nil, err
		}
		if !ok {
			l.WithField("attempt", attempt).Debug("timed out")
			continue
		}
		if match(reply) {
			return reply, nil
		}
		l.WithFields(map[string]interface{}{
			"attempt": attempt,
			"layers":  kindPath(reply.Packet),
		}).Debug("ignoring unrelated frame")
	}
	return nil, nil
}

// writeReply renders one inbound frame, noting a decode failure first.
func writeReply(out io.Writer, r *render.Renderer, reply *driver.Reply) error {
	if reply.DecodeErr != nil {
		fmt.Fprintf(out, "! decode: %v\n", reply.DecodeErr)
	}
	return r.Chain(out, reply.Packet, reply.Raw.Data)
}

// kindPath formats a chain's layer kinds as "Ethernet/IPv4/ICMP".
func kindPath(l layer.Layer) string {
	kinds := layer.Kinds(l)
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, "/")
}

func noAnswer(what string, n int, timeout time.Duration) error {
	return fmt.Errorf("no %s after %d attempt(s) of %s: %w", what, n, timeout, core.ErrNoAnswer)
}
