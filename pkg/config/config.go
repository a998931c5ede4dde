package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the merged view of flags, env and file config.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Path   string // config file path, empty when no file was found
	Source string // "flags", "config", or "env"
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// ResolveConfigPath picks the config file path: an explicit flag wins,
// then NOTIFEED_CONFIG, then the flag default.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if v := os.Getenv("NOTIFEED_CONFIG"); v != "" {
		return v
	}
	return flagVal
}

// Load reads and parses the YAML config at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// applyEnv overlays environment variables onto cfg. Returns whether any
// env was consumed.
func applyEnv(cfg *Config) bool {
	used := false
	parseList := func(v string) []string {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	if v := os.Getenv("NOTIFEED_ADDR"); v != "" {
		used = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("NOTIFEED_DB_PATH"); v != "" {
		used = true
		cfg.Server.DBPath = v
	}
	if v := os.Getenv("NOTIFEED_LOG_LEVEL"); v != "" {
		used = true
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NOTIFEED_DEVICE_KEYS"); v != "" {
		used = true
		cfg.Security.APIKeys.Device = parseList(v)
	}
	if v := os.Getenv("NOTIFEED_ADMIN_KEYS"); v != "" {
		used = true
		cfg.Security.APIKeys.Admin = parseList(v)
	}
	if v := os.Getenv("NOTIFEED_MIRROR_URL"); v != "" {
		used = true
		cfg.Mirror.BaseURL = v
	}
	if v := os.Getenv("NOTIFEED_MIRROR_TOKEN"); v != "" {
		used = true
		cfg.Mirror.Token = v
	}
	if v := os.Getenv("NOTIFEED_MIRROR_USER"); v != "" {
		used = true
		cfg.Mirror.UserID = v
	}
	if v := os.Getenv("NOTIFEED_NEWS_FEEDS"); v != "" {
		used = true
		cfg.News.Feeds = parseList(v)
	}
	return used
}

// LoadEffective merges the config file (if present), environment
// overrides and command-line flags. Flags win over env, env wins over
// file values for the fields both can set.
func LoadEffective(flags Flags) (EffectiveConfigResult, error) {
	res := EffectiveConfigResult{Source: "config"}

	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	switch {
	case err == nil:
		res.Path = cfgPath
	case os.IsNotExist(err) && !flags.Set["config"]:
		cfg = &Config{}
	default:
		return res, err
	}

	if applyEnv(cfg) {
		res.Source = "env"
	}

	res.Addr = cfg.Addr()
	res.DBPath = cfg.Server.DBPath
	if flags.Set["addr"] {
		res.Addr = flags.Addr
		res.Source = "flags"
	}
	if flags.Set["db"] || res.DBPath == "" {
		res.DBPath = flags.DB
		if flags.Set["db"] {
			res.Source = "flags"
		}
	}
	res.Config = cfg
	return res, nil
}
