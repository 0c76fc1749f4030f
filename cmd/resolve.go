package cmd

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/netip"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/layer"
	"firestige.xyz/pktcraft/internal/driver"
)

const (
	dnsPort          = 53
	defaultResolver  = "1.1.1.1"
	ephemeralPortMin = 20000
	ephemeralPortMax = 60000
)

var (
	resolveServer string
	resolveSrc    string
	resolveSport  uint16
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Look up the IPv4 address of a name with a hand-built DNS query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := lookupOptionsFromFlags(cmd)
		if err != nil {
			return err
		}
		opts.name = args[0]
		if opts, err = opts.withSource(); err != nil {
			return err
		}
		_, err = runResolve(newPacketIO(), cmd.OutOrStdout(), opts)
		return err
	},
}

type lookupOptions struct {
	name     string
	resolver netip.Addr
	// srcFlag is the configured source, empty to follow the route. src
	// stays unset until withSource resolves it.
	srcFlag  string
	src      netip.Addr
	sport    uint16
	attempts int
	timeout  time.Duration
}

// lookupOptionsFromFlags fills everything but the name and the source
// address from flags, the profile and the configuration.
func lookupOptionsFromFlags(cmd *cobra.Command) (lookupOptions, error) {
	server := resolveServer
	if !cmd.Flags().Changed("resolver") && profile.Resolver != "" {
		server = profile.Resolver
	}
	resolver, err := layer.ParseIPv4(server)
	if err != nil {
		return lookupOptions{}, fmt.Errorf("--resolver: %w", err)
	}
	src := resolveSrc
	if src == "" {
		src = profile.SrcIP
	}
	sport := resolveSport
	if sport == 0 {
		sport = ephemeralPort()
	}
	return lookupOptions{
		resolver: resolver,
		srcFlag:  src,
		sport:    sport,
		attempts: attempts(),
		timeout:  replyTimeout(),
	}, nil
}

// withSource sets src for talking to the resolver. It only looks up a
// route when no source was configured.
func (o lookupOptions) withSource() (lookupOptions, error) {
	if o.src.IsValid() {
		return o, nil
	}
	src, err := sourceFor(o.srcFlag, o.resolver)
	if err != nil {
		return o, err
	}
	o.src = src
	return o, nil
}

// queryChain builds IPv4/UDP/DNS for one A/IN question.
func queryChain(opts lookupOptions, query *layer.DNS) (layer.Layer, error) {
	return layer.Chain(
		layer.NewIPv4(opts.src, opts.resolver),
		layer.NewUDP(opts.sport, dnsPort),
		query,
	)
}

// dnsAnswer extracts the DNS response to id from a reply sent by resolver
// to sport, or returns nil.
func dnsAnswer(r *driver.Reply, resolver netip.Addr, sport, id uint16) *layer.DNS {
	ip, ok := layer.Find(r.Packet, layer.KindIPv4).(*layer.IPv4)
	if !ok || ip.Src != resolver {
		return nil
	}
	udp, ok := layer.Find(r.Packet, layer.KindUDP).(*layer.UDP)
	if !ok || udp.SrcPort != dnsPort || udp.DstPort != sport {
		return nil
	}
	msg, err := layer.DecodeDNS(udp.Data())
	if err != nil || msg.ID != id || !msg.IsResponse() {
		return nil
	}
	return msg
}

// lookupA resolves name to its first A record. Each attempt uses a fresh
// transaction id.
func lookupA(pio PacketIO, opts lookupOptions) (netip.Addr, error) {
	var id uint16
	reply, err := awaitMatch(pio, opts.attempts, opts.timeout,
		func(int) (layer.Layer, error) {
			query := layer.NewQuery(opts.name)
			id = query.ID
			return queryChain(opts, query)
		},
		func(r *driver.Reply) bool { return dnsAnswer(r, opts.resolver, opts.sport, id) != nil })
	if err != nil {
		return netip.Addr{}, err
	}
	if reply == nil {
		return netip.Addr{}, noAnswer("DNS response from "+opts.resolver.String(), opts.attempts, opts.timeout)
	}
	msg := dnsAnswer(reply, opts.resolver, opts.sport, id)
	if rc := msg.RCode(); rc != 0 {
		return netip.Addr{}, fmt.Errorf("resolver %s answered rcode %d for %s: %w", opts.resolver, rc, opts.name, core.ErrNoAnswer)
	}
	return msg.FirstA()
}

func runResolve(pio PacketIO, out io.Writer, opts lookupOptions) (netip.Addr, error) {
	addr, err := lookupA(pio, opts)
	if err != nil {
		if errors.Is(err, core.ErrNoAnswer) {
			fmt.Fprintf(out, "%s: no address\n", opts.name)
		}
		return netip.Addr{}, fmt.Errorf("failed to resolve %s: %w", opts.name, err)
	}
	fmt.Fprintf(out, "%s has address %s\n", opts.name, addr)
	return addr, nil
}

// ephemeralPort picks a source port for a single exchange.
func ephemeralPort() uint16 {
	return uint16(ephemeralPortMin + rand.Intn(ephemeralPortMax-ephemeralPortMin+1))
}

func registerLookupFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&resolveServer, "resolver", defaultResolver, "DNS resolver address")
	cmd.Flags().StringVar(&resolveSrc, "src", "", "IPv4 source (default: address of the outgoing route)")
	cmd.Flags().Uint16Var(&resolveSport, "sport", 0, "UDP source port (default random)")
}

func init() {
	registerLookupFlags(resolveCmd)
	rootCmd.AddCommand(resolveCmd)
}
