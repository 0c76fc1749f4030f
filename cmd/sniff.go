package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/cobra"

	"firestige.xyz/pktcraft/internal/core/layer"
	"firestige.xyz/pktcraft/internal/render"
)

var (
	sniffCount  int
	sniffWrite  string
	sniffVerify bool
	sniffFormat string
)

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Capture frames from the link layer and print them",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := render.ParseFormat(sniffFormat)
		if err != nil {
			return err
		}
		opts := sniffOptions{
			count:   sniffCount,
			timeout: replyTimeout(),
			verify:  sniffVerify,
			render:  render.New(f, colored()),
		}
		if sniffWrite != "" {
			file, err := os.Create(sniffWrite)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", sniffWrite, err)
			}
			defer file.Close()
			w := pcapgo.NewWriter(file)
			if err := w.WriteFileHeader(uint32(cfg.SnapLen), layers.LinkTypeEthernet); err != nil {
				return fmt.Errorf("failed to write pcap header: %w", err)
			}
			opts.archive = w
		}
		return runSniff(newPacketIO(), cmd.OutOrStdout(), opts)
	},
}

// packetArchive receives every captured frame; *pcapgo.Writer implements it.
type packetArchive interface {
	WritePacket(ci gopacket.CaptureInfo, data []byte) error
}

type sniffOptions struct {
	count   int
	timeout time.Duration
	verify  bool
	render  *render.Renderer
	archive packetArchive
}

// runSniff captures up to count frames, one receive channel each. A timeout
// ends the capture early without error.
func runSniff(pio PacketIO, out io.Writer, opts sniffOptions) error {
	captured := 0
	for captured < opts.count {
		reply, ok, err := pio.CaptureOne(opts.timeout)
		if err != nil {
			return fmt.Errorf("failed to capture: %w", err)
		}
		if !ok {
			break
		}
		captured++

		fmt.Fprintf(out, "--- frame %d: %d bytes at %s ---\n", captured, len(reply.Raw.Data),
			reply.Raw.Timestamp.Format(time.RFC3339Nano))
		if err := writeReply(out, opts.render, reply); err != nil {
			return err
		}
		if opts.verify && reply.DecodeErr == nil {
			if err := layer.VerifyChecksums(reply.Raw.Data, layer.KindEthernet); err != nil {
				fmt.Fprintf(out, "checksums: %v\n", err)
			} else {
				fmt.Fprintln(out, "checksums: ok")
			}
		}
		if opts.archive != nil {
			ci := gopacket.CaptureInfo{
				Timestamp:      reply.Raw.Timestamp,
				CaptureLength:  len(reply.Raw.Data),
				Length:         int(reply.Raw.OrigLen),
				InterfaceIndex: reply.Raw.InterfaceIndex,
			}
			if ci.Length < ci.CaptureLength {
				ci.Length = ci.CaptureLength
			}
			if err := opts.archive.WritePacket(ci, reply.Raw.Data); err != nil {
				return fmt.Errorf("failed to archive frame: %w", err)
			}
		}
	}
	fmt.Fprintf(out, "%d frame(s) captured\n", captured)
	return nil
}

func init() {
	sniffCmd.Flags().IntVarP(&sniffCount, "count", "n", 1, "number of frames to capture")
	sniffCmd.Flags().StringVarP(&sniffWrite, "write", "w", "", "also write frames to this pcap file")
	sniffCmd.Flags().BoolVar(&sniffVerify, "verify", false, "recompute and compare IPv4/ICMP/UDP/TCP checksums")
	sniffCmd.Flags().StringVarP(&sniffFormat, "format", "f", "text", "output format: text, yaml or hex")
	rootCmd.AddCommand(sniffCmd)
}
