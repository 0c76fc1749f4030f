package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/pktcraft/internal/core/layer"
	"firestige.xyz/pktcraft/internal/log"
	"firestige.xyz/pktcraft/internal/render"
)

var (
	showPacket  packetFlags
	showFormat  string
	sendPacket  packetFlags
	sendpPacket packetFlags
	srPacket    packetFlags
	srFormat    string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Build a packet from flags and print it without sending",
	RunE: func(cmd *cobra.Command, args []string) error {
		chain, r, err := buildAndRenderer(cmd, &showPacket, showFormat)
		if err != nil {
			return err
		}
		return runShow(cmd.OutOrStdout(), chain, r)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send an IPv4 packet on a network-layer raw socket",
	RunE: func(cmd *cobra.Command, args []string) error {
		chain, _, err := buildAndRenderer(cmd, &sendPacket, string(render.FormatText))
		if err != nil {
			return err
		}
		return runSend(newPacketIO(), cmd.OutOrStdout(), chain)
	},
}

var sendpCmd = &cobra.Command{
	Use:   "sendp",
	Short: "Send an Ethernet frame on a link-layer raw socket",
	RunE: func(cmd *cobra.Command, args []string) error {
		sendpPacket.ether = true
		chain, _, err := buildAndRenderer(cmd, &sendpPacket, string(render.FormatText))
		if err != nil {
			return err
		}
		return runSendp(newPacketIO(), cmd.OutOrStdout(), chain, interfaceName())
	},
}

var srCmd = &cobra.Command{
	Use:   "sr",
	Short: "Send an IPv4 packet and print the first frame received",
	RunE: func(cmd *cobra.Command, args []string) error {
		chain, r, err := buildAndRenderer(cmd, &srPacket, srFormat)
		if err != nil {
			return err
		}
		return runSR(newPacketIO(), cmd.OutOrStdout(), chain, replyTimeout(), r)
	},
}

// buildAndRenderer applies the profile to the flags, builds the chain and
// prepares a renderer for format.
func buildAndRenderer(cmd *cobra.Command, p *packetFlags, format string) (layer.Layer, *render.Renderer, error) {
	f, err := render.ParseFormat(format)
	if err != nil {
		return nil, nil, err
	}
	p.applyProfile(cmd.Flags(), profile)
	chain, err := p.build()
	if err != nil {
		return nil, nil, err
	}
	return chain, render.New(f, colored()), nil
}

// runShow serializes chain so computed fields are filled in, then renders it.
func runShow(out io.Writer, chain layer.Layer, r *render.Renderer) error {
	frame, err := layer.Serialize(chain)
	if err != nil {
		return fmt.Errorf("failed to serialize: %w", err)
	}
	return r.Chain(out, chain, frame)
}

func runSend(pio PacketIO, out io.Writer, chain layer.Layer) error {
	if err := pio.Transmit(chain); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	fmt.Fprintf(out, "✓ Sent 1 packet (%s)\n", kindPath(chain))
	return nil
}

func runSendp(pio PacketIO, out io.Writer, chain layer.Layer, iface string) error {
	if iface == "" {
		return fmt.Errorf("sendp needs an interface: pass --iface or set one in the config")
	}
	if err := pio.TransmitLink(chain, iface); err != nil {
		return fmt.Errorf("failed to send on %s: %w", iface, err)
	}
	fmt.Fprintf(out, "✓ Sent 1 frame on %s (%s)\n", iface, kindPath(chain))
	return nil
}

func runSR(pio PacketIO, out io.Writer, chain layer.Layer, timeout time.Duration, r *render.Renderer) error {
	reply, ok, err := pio.SendAndAwaitReply(chain, timeout)
	if err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	if !ok {
		return noAnswer("frame", 1, timeout)
	}
	log.Named("cmd").WithField("bytes", len(reply.Raw.Data)).Debug("received reply")
	return writeReply(out, r, reply)
}

func init() {
	showPacket.register(showCmd.Flags())
	showCmd.Flags().StringVarP(&showFormat, "format", "f", "text", "output format: text, yaml or hex")

	sendPacket.register(sendCmd.Flags())

	sendpPacket.register(sendpCmd.Flags())
	_ = sendpCmd.Flags().MarkHidden("ether")

	srPacket.register(srCmd.Flags())
	srCmd.Flags().StringVarP(&srFormat, "format", "f", "text", "reply format: text, yaml or hex")

	rootCmd.AddCommand(showCmd, sendCmd, sendpCmd, srCmd)
}
