// Package config loads process configuration from a JSON file on disk with
// environment-variable overrides applied afterwards, the same two-layer
// scheme used throughout this codebase's services.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// NntpServerConfig mirrors one configured Usenet provider.
type NntpServerConfig struct {
	Name           string `json:"name"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	UseSSL         bool   `json:"useSsl"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	MaxConnections int    `json:"maxConnections"`
	Priority       int    `json:"priority"`
	Enabled        bool   `json:"enabled"`
}

// IPTVConfig configures the Stalker/MAG portal proxy.
type IPTVConfig struct {
	Portal           string `json:"portal"`
	Mac              string `json:"mac"`
	StbUserAgent     string `json:"stbUserAgent"`
	AllowFfmpegLinks bool   `json:"allowFfmpegLinks"`
}

// Config is the fully resolved process configuration.
type Config struct {
	DataDir     string             `json:"dataDir"`
	LogLevel    string             `json:"logLevel"`
	ListenAddr  string             `json:"listenAddr"`
	NntpServers []NntpServerConfig `json:"nntpServers"`
	IPTV        IPTVConfig         `json:"iptv"`
	MountStore  string             `json:"mountStore"` // "memory" | "file" | "redis"
	RedisAddr   string             `json:"redisAddr"`

	PrefetchCount int `json:"prefetchCount"`
	MaxCacheSize  int `json:"maxCacheSize"`
}

func defaults() Config {
	return Config{
		DataDir:       "./data",
		LogLevel:      "INFO",
		ListenAddr:    ":8080",
		MountStore:    "memory",
		PrefetchCount: 5,
		MaxCacheSize:  20,
		IPTV: IPTVConfig{
			StbUserAgent:     "Mozilla/5.0 (QtEmbedded; U; Linux; C) AppleWebKit/533.3 (KHTML, like Gecko) MAG200 stbapp ver: 2 rev: 250 Mobile",
			AllowFfmpegLinks: true,
		},
	}
}

// Load reads path (if it exists), applies environment overrides, and
// validates the result. A missing file is not an error; it falls back to
// defaults plus environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best effort; local .env overlay only

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("MOUNT_STORE"); v != "" {
		cfg.MountStore = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("IPTV_PORTAL"); v != "" {
		cfg.IPTV.Portal = v
	}
	if v := os.Getenv("IPTV_MAC"); v != "" {
		cfg.IPTV.Mac = v
	}
	if v := os.Getenv("IPTV_ALLOW_FFMPEG_LINKS"); v != "" {
		cfg.IPTV.AllowFfmpegLinks = v != "false" && v != "0"
	}
	if v := os.Getenv("PREFETCH_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PrefetchCount = n
		}
	}
	if v := os.Getenv("MAX_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxCacheSize = n
		}
	}
	// NNTP_SERVERS=name:host:port:ssl:user:pass:maxconn:priority,name2:...
	if v := os.Getenv("NNTP_SERVERS"); v != "" {
		servers, err := parseNntpServersEnv(v)
		if err == nil && len(servers) > 0 {
			cfg.NntpServers = servers
		}
	}
}

func parseNntpServersEnv(v string) ([]NntpServerConfig, error) {
	var out []NntpServerConfig
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, ":")
		if len(fields) < 3 {
			return nil, fmt.Errorf("config: malformed NNTP_SERVERS entry %q", entry)
		}
		s := NntpServerConfig{Name: fields[0], Host: fields[1], MaxConnections: 10, Priority: 1, Enabled: true}
		port, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("config: malformed port in %q: %w", entry, err)
		}
		s.Port = port
		if len(fields) > 3 {
			s.UseSSL = fields[3] == "true" || fields[3] == "1"
		}
		if len(fields) > 4 {
			s.Username = fields[4]
		}
		if len(fields) > 5 {
			s.Password = fields[5]
		}
		if len(fields) > 6 {
			if n, err := strconv.Atoi(fields[6]); err == nil {
				s.MaxConnections = n
			}
		}
		if len(fields) > 7 {
			if n, err := strconv.Atoi(fields[7]); err == nil {
				s.Priority = n
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Config) validate() error {
	for _, s := range c.NntpServers {
		if s.Host == "" {
			return fmt.Errorf("config: nntp server %q missing host", s.Name)
		}
		if s.Port <= 0 {
			return fmt.Errorf("config: nntp server %q has invalid port %d", s.Name, s.Port)
		}
	}
	switch c.MountStore {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("config: unknown mountStore %q", c.MountStore)
	}
	return nil
}

// EnabledServers returns NntpServers with Enabled==true, ordered ascending by Priority.
func (c *Config) EnabledServers() []NntpServerConfig {
	var out []NntpServerConfig
	for _, s := range c.NntpServers {
		if s.Enabled {
			out = append(out, s)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority < out[j-1].Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
