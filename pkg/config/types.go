package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	News      NewsConfig      `yaml:"news"`
	Settings  SettingsConfig  `yaml:"settings"`
	Retention RetentionConfig `yaml:"retention"`
}

// ServerConfig holds http and storage settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
}

// SecurityConfig holds API keys and rate limiting.
type SecurityConfig struct {
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	APIKeys struct {
		Device []string `yaml:"device"`
		Admin  []string `yaml:"admin"`
	} `yaml:"api_keys"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// IngestConfig holds queueing and pipeline tunables.
type IngestConfig struct {
	Workers              int       `yaml:"workers"`
	QueueCapacity        int       `yaml:"queue_capacity"`
	MaxPooledBufferBytes SizeBytes `yaml:"max_pooled_buffer_bytes"`
	DedupWindow          Duration  `yaml:"dedup_window"`
	MergeWindow          Duration  `yaml:"merge_window"`
	SystemMinInterval    Duration  `yaml:"system_min_interval"`
	SystemCooldown       Duration  `yaml:"system_cooldown"`
}

// MirrorConfig holds the remote feed mirror settings. An empty base URL
// disables mirroring.
type MirrorConfig struct {
	BaseURL      string   `yaml:"base_url"`
	UserID       string   `yaml:"user_id"`
	Token        string   `yaml:"token"`
	MaxRetries   int      `yaml:"max_retries"`
	PushRPS      float64  `yaml:"push_rps"`
	PollInterval Duration `yaml:"poll_interval"`
}

// NewsConfig lists RSS feeds ingested into the NEWS category.
type NewsConfig struct {
	Feeds        []string `yaml:"feeds"`
	PollInterval Duration `yaml:"poll_interval"`
}

// SettingsConfig is the user-facing settings surface: per-package
// enablement and the suppress-once-mirrored toggle.
type SettingsConfig struct {
	SuppressMirrored bool     `yaml:"suppress_mirrored"`
	DisabledPackages []string `yaml:"disabled_packages"`
}

// RetentionConfig configures the automatic purge of old archived items.
type RetentionConfig struct {
	Enabled bool     `yaml:"enabled"`
	Cron    string   `yaml:"cron"`
	Period  Duration `yaml:"period"`
	DryRun  bool     `yaml:"dry_run"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly
// strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration wraps time.Duration supporting YAML strings like "100ms" or
// plain numbers interpreted as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
