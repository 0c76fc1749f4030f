package cmd

import (
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/pktcraft/internal/core/layer"
	"firestige.xyz/pktcraft/internal/driver"
)

var (
	pingCount int
	pingSrc   string
	pingData  string
	pingTTL   uint8
)

var pingCmd = &cobra.Command{
	Use:   "ping <dst>",
	Short: "Send ICMP echo requests and wait for the matching replies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dst, err := layer.ParseIPv4(args[0])
		if err != nil {
			return err
		}
		if pingSrc == "" {
			pingSrc = profile.SrcIP
		}
		src, err := sourceFor(pingSrc, dst)
		if err != nil {
			return err
		}
		ttl := pingTTL
		if !cmd.Flags().Changed("ttl") && profile.TTL != 0 {
			ttl = profile.TTL
		}
		return runPing(newPacketIO(), cmd.OutOrStdout(), pingOptions{
			src:      src,
			dst:      dst,
			ttl:      ttl,
			count:    pingCount,
			attempts: attempts(),
			timeout:  replyTimeout(),
			id:       layer.RandomID(),
			data:     []byte(pingData),
		})
	},
}

type pingOptions struct {
	src, dst netip.Addr
	ttl      uint8
	count    int
	attempts int
	timeout  time.Duration
	id       uint16
	data     []byte
}

// echoChain builds Ethernet/IPv4/ICMP echo request. The Ethernet header is
// dropped by the network-layer channel but keeps the chain shape uniform.
func echoChain(opts pingOptions, seq uint16) (layer.Layer, error) {
	ip := layer.NewIPv4(opts.src, opts.dst)
	if opts.ttl != 0 {
		ip.TTL = opts.ttl
	}
	return layer.Chain(
		layer.NewEthernet(layer.MAC{}, layer.BroadcastMAC),
		ip,
		layer.NewEcho(layer.ICMPEchoRequest, opts.id, seq, opts.data),
	)
}

// isEchoReply matches an echo reply from dst carrying id and seq.
func isEchoReply(dst netip.Addr, id, seq uint16) matchFunc {
	return func(r *driver.Reply) bool {
		ip, ok := layer.Find(r.Packet, layer.KindIPv4).(*layer.IPv4)
		if !ok || ip.Src != dst {
			return false
		}
		icmp, ok := layer.Find(r.Packet, layer.KindICMP).(*layer.ICMP)
		return ok && icmp.IsEchoReplyTo(id, seq)
	}
}

// runPing sends count echo requests, each retried up to attempts times.
// It fails only when no request was answered.
func runPing(pio PacketIO, out io.Writer, opts pingOptions) error {
	fmt.Fprintf(out, "PING %s from %s: %d data bytes\n", opts.dst, opts.src, len(opts.data))
	received := 0
	for i := 1; i <= opts.count; i++ {
		seq := uint16(i)
		start := time.Now()
		reply, err := awaitMatch(pio, opts.attempts, opts.timeout,
			func(int) (layer.Layer, error) { return echoChain(opts, seq) },
			isEchoReply(opts.dst, opts.id, seq))
		if err != nil {
			return fmt.Errorf("failed to ping %s: %w", opts.dst, err)
		}
		if reply == nil {
			fmt.Fprintf(out, "no reply for icmp_seq=%d\n", seq)
			continue
		}
		received++
		ip := layer.Find(reply.Packet, layer.KindIPv4).(*layer.IPv4)
		fmt.Fprintf(out, "reply from %s: icmp_seq=%d ttl=%d time=%s\n",
			ip.Src, seq, ip.TTL, time.Since(start).Round(time.Microsecond))
	}
	fmt.Fprintf(out, "%d packets transmitted, %d received\n", opts.count, received)
	if received == 0 {
		return noAnswer("echo reply from "+opts.dst.String(), opts.attempts, opts.timeout)
	}
	return nil
}

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "n", 1, "number of echo requests")
	pingCmd.Flags().StringVar(&pingSrc, "src", "", "IPv4 source (default: address of the outgoing route)")
	pingCmd.Flags().StringVar(&pingData, "data", "", "echo payload")
	pingCmd.Flags().Uint8Var(&pingTTL, "ttl", layer.DefaultTTL, "IPv4 time to live")
	rootCmd.AddCommand(pingCmd)
}
