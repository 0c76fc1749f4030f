package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/layer"
	"firestige.xyz/pktcraft/internal/driver"
	"firestige.xyz/pktcraft/internal/log"
	"firestige.xyz/pktcraft/internal/render"
)

var (
	handshakeDport    uint16
	handshakePath     string
	handshakeData     string
	handshakeFirewall bool
)

var handshakeCmd = &cobra.Command{
	Use:   "handshake <host>",
	Short: "Open a TCP connection by hand and send one request",
	Long: `handshake performs SYN, SYN-ACK, ACK itself and then sends a single
PSH|ACK segment (an HTTP GET by default), printing the first reply.
host is an IPv4 address or a name looked up through --resolver.

The kernel knows nothing about the connection and answers the SYN-ACK with
a RST; --firewall drops outgoing RSTs with iptables while the command runs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lookup, err := lookupOptionsFromFlags(cmd)
		if err != nil {
			return err
		}
		pio := newPacketIO()
		out := cmd.OutOrStdout()

		host := args[0]
		dst, err := resolveHost(pio, out, lookup, host)
		if err != nil {
			return err
		}
		// the route to the resolver may leave from another address
		src, err := sourceFor(lookup.srcFlag, dst)
		if err != nil {
			return err
		}

		data := []byte(handshakeData)
		if !cmd.Flags().Changed("data") {
			data = []byte(fmt.Sprintf("GET %s HTTP/1.0\r\nHost: %s\r\n\r\n", handshakePath, host))
		}
		opts := handshakeOptions{
			src:      src,
			dst:      dst,
			sport:    lookup.sport,
			dport:    handshakeDport,
			isn:      randomSeq(),
			data:     data,
			attempts: lookup.attempts,
			timeout:  lookup.timeout,
			render:   render.New(render.FormatText, colored()),
		}
		var runner CommandRunner
		if handshakeFirewall {
			runner = execRunner{}
		}
		return runHandshake(cmd.Context(), pio, runner, out, opts)
	},
}

// resolveHost returns host itself when it is an IPv4 literal and otherwise
// looks it up through the resolver in lookup.
func resolveHost(pio PacketIO, out io.Writer, lookup lookupOptions, host string) (netip.Addr, error) {
	if dst, err := layer.ParseIPv4(host); err == nil {
		return dst, nil
	}
	lookup.name = host
	lookup, err := lookup.withSource()
	if err != nil {
		return netip.Addr{}, err
	}
	return runResolve(pio, out, lookup)
}

type handshakeOptions struct {
	src, dst     netip.Addr
	sport, dport uint16
	isn          uint32
	data         []byte
	attempts     int
	timeout      time.Duration
	render       *render.Renderer
}

func (o handshakeOptions) segment(seq, ack uint32, flags layer.TCPFlags, data []byte) (layer.Layer, error) {
	chain := []layer.Layer{
		layer.NewIPv4(o.src, o.dst),
		layer.NewTCP(o.sport, o.dport, seq, ack, flags),
	}
	if len(data) > 0 {
		chain = append(chain, layer.NewRaw(data))
	}
	return layer.Chain(chain...)
}

// fromPeer matches any TCP segment of this connection sent by the peer.
func (o handshakeOptions) fromPeer(r *driver.Reply) (*layer.TCP, bool) {
	ip, ok := layer.Find(r.Packet, layer.KindIPv4).(*layer.IPv4)
	if !ok || ip.Src != o.dst {
		return nil, false
	}
	tcp, ok := layer.Find(r.Packet, layer.KindTCP).(*layer.TCP)
	if !ok || tcp.SrcPort != o.dport || tcp.DstPort != o.sport {
		return nil, false
	}
	return tcp, true
}

// runHandshake drives one connection: SYN, wait for SYN-ACK (or RST), ACK,
// then one PSH|ACK data segment whose first answer is printed. runner, when
// set, installs the RST drop rule for the duration of the exchange.
func runHandshake(ctx context.Context, pio PacketIO, runner CommandRunner, out io.Writer, opts handshakeOptions) (err error) {
	l := log.Named("cmd").WithFields(map[string]interface{}{
		"dst":   opts.dst.String(),
		"sport": opts.sport,
		"dport": opts.dport,
	})
	if runner != nil {
		remove, ierr := installRSTDrop(ctx, runner)
		if ierr != nil {
			return ierr
		}
		defer func() {
			// The rule must go even when ctx was cancelled.
			if rerr := remove(context.WithoutCancel(ctx)); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}()
	}

	fmt.Fprintf(out, "→ SYN %s:%d seq=%d\n", opts.dst, opts.dport, opts.isn)
	reply, err := awaitMatch(pio, opts.attempts, opts.timeout,
		func(int) (layer.Layer, error) { return opts.segment(opts.isn, 0, layer.FlagSYN, nil) },
		func(r *driver.Reply) bool {
			tcp, ok := opts.fromPeer(r)
			return ok && (tcp.Flags.Has(layer.FlagRST) || (tcp.Flags.Has(layer.FlagSYN|layer.FlagACK) && tcp.Ack == opts.isn+1))
		})
	if err != nil {
		return fmt.Errorf("failed to send SYN: %w", err)
	}
	if reply == nil {
		return noAnswer("SYN-ACK from "+opts.dst.String(), opts.attempts, opts.timeout)
	}
	synAck, _ := opts.fromPeer(reply)
	if synAck.Flags.Has(layer.FlagRST) {
		return fmt.Errorf("connection to %s:%d refused (%s): %w", opts.dst, opts.dport, synAck.Flags, core.ErrNoAnswer)
	}
	fmt.Fprintf(out, "← %s seq=%d ack=%d\n", synAck.Flags, synAck.Seq, synAck.Ack)

	seq, ack := opts.isn+1, synAck.Seq+1
	ackSeg, err := opts.segment(seq, ack, layer.FlagACK, nil)
	if err != nil {
		return err
	}
	if err := pio.Transmit(ackSeg); err != nil {
		return fmt.Errorf("failed to send ACK: %w", err)
	}
	fmt.Fprintf(out, "→ ACK seq=%d ack=%d\n", seq, ack)
	l.Info("connection established")

	if len(opts.data) == 0 {
		return nil
	}
	fmt.Fprintf(out, "→ PSH|ACK %d bytes\n", len(opts.data))
	reply, err = awaitMatch(pio, 1, opts.timeout,
		func(int) (layer.Layer, error) { return opts.segment(seq, ack, layer.FlagPSH|layer.FlagACK, opts.data) },
		func(r *driver.Reply) bool { _, ok := opts.fromPeer(r); return ok })
	if err != nil {
		return fmt.Errorf("failed to send data: %w", err)
	}
	if reply == nil {
		fmt.Fprintf(out, "no response within %s\n", opts.timeout)
		return nil
	}
	resp, _ := opts.fromPeer(reply)
	fmt.Fprintf(out, "← %s seq=%d ack=%d\n", resp.Flags, resp.Seq, resp.Ack)
	if body := resp.Data(); len(body) > 0 {
		fmt.Fprintf(out, "%s\n", body)
		return nil
	}
	return opts.render.Text(out, reply.Packet)
}

func init() {
	registerLookupFlags(handshakeCmd)
	handshakeCmd.Flags().Uint16Var(&handshakeDport, "dport", 80, "TCP destination port")
	handshakeCmd.Flags().StringVar(&handshakePath, "path", "/index.html", "path for the default HTTP GET")
	handshakeCmd.Flags().StringVar(&handshakeData, "data", "", "send this instead of an HTTP GET")
	handshakeCmd.Flags().BoolVar(&handshakeFirewall, "firewall", false, "drop outgoing RSTs with iptables during the exchange")
	rootCmd.AddCommand(handshakeCmd)
}
