// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"firestige.xyz/pktcraft/internal/config"
	"firestige.xyz/pktcraft/internal/log"
	"firestige.xyz/pktcraft/internal/metrics"
)

var (
	// Global flags
	configFile  string
	profileName string
	logLevel    string
	ifaceFlag   string
	timeoutFlag time.Duration
	retriesFlag int
	noColor     bool
	metricsFile string

	// Populated by PersistentPreRunE.
	cfg     = config.Default()
	profile config.Profile
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pktcraft",
	Short: "pktcraft - craft, send and capture raw packets",
	Long: `pktcraft builds Ethernet/IPv4/ICMP/UDP/TCP/DNS packets layer by layer,
computes their lengths and checksums, and moves them over raw sockets.

Examples:
  pktcraft show --dst 192.0.2.1 --proto tcp --flags SYN,ACK
  pktcraft ping 192.0.2.1
  pktcraft resolve example.com --resolver 1.1.1.1
  pktcraft sniff --count 5 --write capture.pcap`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return exportMetrics(metricsFile)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (defaults only when empty)")
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "p", "", "packet profile from the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&ifaceFlag, "iface", "i", "", "capture/link interface (default: profile, then config, then all)")
	rootCmd.PersistentFlags().DurationVarP(&timeoutFlag, "timeout", "t", 0, "reply timeout (default: profile, then config)")
	rootCmd.PersistentFlags().IntVar(&retriesFlag, "retries", 0, "attempts per request (default: config)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write driver metrics to this Prometheus textfile on success")
}

// setup loads configuration, initializes logging and resolves the profile.
func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
		if err := loaded.ValidateAndApplyDefaults(); err != nil {
			return err
		}
	}
	if err := log.Init(loaded.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	p, err := loaded.Profile(profileName)
	if err != nil {
		return err
	}
	cfg, profile = loaded, p
	log.Named("cmd").WithFields(map[string]interface{}{
		"command": cmd.Name(),
		"profile": profileName,
	}).Debug("configuration loaded")
	return nil
}

func exportMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := metrics.WriteTextfile(path); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// interfaceName resolves the interface: flag, then profile, then config.
func interfaceName() string {
	switch {
	case ifaceFlag != "":
		return ifaceFlag
	case profile.Interface != "":
		return profile.Interface
	}
	return cfg.Interface
}

// replyTimeout resolves the reply timeout: flag, then profile, then config.
func replyTimeout() time.Duration {
	switch {
	case timeoutFlag > 0:
		return timeoutFlag
	case profile.Timeout > 0:
		return profile.Timeout
	}
	return cfg.Timeout
}

func attempts() int {
	if retriesFlag > 0 {
		return retriesFlag
	}
	return cfg.Retries
}

func colored() bool {
	return !noColor && !color.NoColor
}
