// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"firestige.xyz/pktcraft/internal/core"
)

// Config is the top-level configuration.
// Maps to the `pktcraft:` root key in YAML.
type Config struct {
	Interface  string        `mapstructure:"interface"`    // Empty = listen on all interfaces
	Timeout    time.Duration `mapstructure:"timeout"`      // Reply wait per attempt
	Retries    int           `mapstructure:"retries"`      // Attempts made by ping/resolve
	SnapLen    int           `mapstructure:"snap_len"`     // Link-layer capture length
	RingSizeMB int           `mapstructure:"ring_size_mb"` // AF_PACKET ring per receive channel
	Log        LogConfig     `mapstructure:"log"`

	// Profiles are packet templates, kept raw and decoded on demand by Profile.
	Profiles map[string]map[string]interface{} `mapstructure:"profiles"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level"`       // trace / debug / info / warn / error
	Format     string           `mapstructure:"format"`      // pattern / text / json
	Pattern    string           `mapstructure:"pattern"`     // used by format=pattern
	TimeFormat string           `mapstructure:"time_format"` // Go layout
	Outputs    LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations besides stdout.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Profiles ───

// Profile is a named packet template. Zero fields leave the command-line
// value or the codec default in place.
type Profile struct {
	Interface string        `mapstructure:"interface"`
	SrcMAC    string        `mapstructure:"src_mac"`
	DstMAC    string        `mapstructure:"dst_mac"`
	SrcIP     string        `mapstructure:"src_ip"`
	DstIP     string        `mapstructure:"dst_ip"`
	TTL       uint8         `mapstructure:"ttl"`
	SrcPort   uint16        `mapstructure:"src_port"`
	DstPort   uint16        `mapstructure:"dst_port"`
	Resolver  string        `mapstructure:"resolver"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Profile decodes the named profile. An empty name yields the zero Profile.
func (cfg *Config) Profile(name string) (Profile, error) {
	var p Profile
	if name == "" {
		return p, nil
	}
	// viper lower-cases map keys
	raw, ok := cfg.Profiles[strings.ToLower(name)]
	if !ok {
		return p, fmt.Errorf("profile %q not found: %w", name, core.ErrConfigInvalid)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &p,
	})
	if err != nil {
		return p, err
	}
	if err := dec.Decode(raw); err != nil {
		return Profile{}, fmt.Errorf("profile %q: %v: %w", name, err, core.ErrConfigInvalid)
	}
	return p, nil
}

// ProfileNames lists the configured profile names.
func (cfg *Config) ProfileNames() []string {
	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}
	return names
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `pktcraft: ...`.
type configRoot struct {
	Pktcraft Config `mapstructure:"pktcraft"`
}

// Load loads configuration from path. An empty path skips the file and
// yields defaults plus environment overrides.
// Env vars use the PKTCRAFT_ prefix (e.g., PKTCRAFT_LOG_LEVEL).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `pktcraft.` key prefix maps to `PKTCRAFT_` in env vars via the
	// key replacer (e.g., key "pktcraft.log.level" → env "PKTCRAFT_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Pktcraft

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration Load produces without a file or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var root configRoot
	_ = v.Unmarshal(&root)
	cfg := root.Pktcraft
	_ = cfg.ValidateAndApplyDefaults()
	return &cfg
}

// setDefaults sets default values for configuration.
// All keys use the "pktcraft." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("pktcraft.interface", "")
	v.SetDefault("pktcraft.timeout", "2s")
	v.SetDefault("pktcraft.retries", 3)
	v.SetDefault("pktcraft.snap_len", 65535)
	v.SetDefault("pktcraft.ring_size_mb", 2)

	// Log defaults
	v.SetDefault("pktcraft.log.level", "info")
	v.SetDefault("pktcraft.log.format", "pattern")
	v.SetDefault("pktcraft.log.pattern", "%time [%level] %field %msg")
	v.SetDefault("pktcraft.log.time_format", "2006-01-02 15:04:05.000")
	v.SetDefault("pktcraft.log.outputs.file.enabled", false)
	v.SetDefault("pktcraft.log.outputs.file.path", "/var/log/pktcraft/pktcraft.log")
	v.SetDefault("pktcraft.log.outputs.file.rotation.max_size_mb", 10)
	v.SetDefault("pktcraft.log.outputs.file.rotation.max_age_days", 7)
	v.SetDefault("pktcraft.log.outputs.file.rotation.max_backups", 3)
	v.SetDefault("pktcraft.log.outputs.file.rotation.compress", true)
}

const (
	minSnapLen = 64
	maxSnapLen = 262144
)

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error): %w", cfg.Log.Level, core.ErrConfigInvalid)
	}
	switch cfg.Log.Format {
	case "pattern", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be pattern/text/json): %w", cfg.Log.Format, core.ErrConfigInvalid)
	}
	if cfg.Log.Format == "pattern" && cfg.Log.Pattern == "" {
		cfg.Log.Pattern = "%time [%level] %field %msg"
	}
	if cfg.Log.TimeFormat == "" {
		cfg.Log.TimeFormat = time.RFC3339
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("log file output requires 'path': %w", core.ErrConfigInvalid)
	}

	// ── I/O validation ──
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s: %w", cfg.Timeout, core.ErrConfigInvalid)
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.SnapLen < minSnapLen || cfg.SnapLen > maxSnapLen {
		return fmt.Errorf("snap_len must be within [%d, %d], got %d: %w", minSnapLen, maxSnapLen, cfg.SnapLen, core.ErrConfigInvalid)
	}
	if cfg.RingSizeMB <= 0 {
		cfg.RingSizeMB = 2
	}

	return nil
}
