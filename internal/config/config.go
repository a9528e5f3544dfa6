package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

// EnvPrefix prefixes every environment override, e.g. EVERSTORE_WAIT_MAX.
const EnvPrefix = "EVERSTORE_"

// ETagConfig points the etag mechanism at a node's HTTP side channel.
type ETagConfig struct {
	URL string `toml:"url" env:"URL"`
}

// NATSConfig configures the nats_kv mechanism.
type NATSConfig struct {
	URL    string `toml:"url" env:"URL"`
	Bucket string `toml:"bucket" env:"BUCKET"`
}

// KafkaConfig configures the kafka mechanism.
type KafkaConfig struct {
	Brokers []string `toml:"brokers" env:"BROKERS"`
	Topic   string   `toml:"topic" env:"TOPIC"`
}

// RemoteConfig configures the remote (gRPC peer) mechanism. Keys are
// spread over Addr and Peers with a consistent hash ring.
type RemoteConfig struct {
	Addr   string   `toml:"addr" env:"ADDR"`
	Peers  []string `toml:"peers" env:"PEERS"`
	VNodes int      `toml:"vnodes" env:"VNODES"`
}

// PeerAddrs returns Addr followed by Peers, without empty entries.
func (c RemoteConfig) PeerAddrs() []string {
	addrs := make([]string, 0, len(c.Peers)+1)
	if c.Addr != "" {
		addrs = append(addrs, c.Addr)
	}
	for _, p := range c.Peers {
		if p != "" {
			addrs = append(addrs, p)
		}
	}
	return addrs
}

// ServerConfig controls `everstore serve`.
type ServerConfig struct {
	GRPCAddr string `toml:"grpc_addr" env:"GRPC_ADDR"`
	HTTPAddr string `toml:"http_addr" env:"HTTP_ADDR"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Verbose bool   `toml:"verbose" env:"VERBOSE"`
	Format  string `toml:"format" env:"FORMAT"` // "console" or "json"
}

// PrometheusConfig for metrics
type PrometheusConfig struct {
	Enabled bool `toml:"enabled" env:"ENABLED"`
}

// Config holds every recognized option. It is built once and not merged
// at call time.
type Config struct {
	// Domain scopes the cookie mechanism. Derived from the host name if empty.
	Domain  string `toml:"domain" env:"DOMAIN"`
	DataDir string `toml:"data_dir" env:"DATA_DIR"`

	// WaitMax bounds how long an async read waits for deferred mechanisms.
	WaitMax time.Duration `toml:"wait_max" env:"WAIT_MAX"`
	// PollInterval is how often an async read checks for completion.
	PollInterval time.Duration `toml:"poll_interval" env:"POLL_INTERVAL"`
	// DeferDelay is the delay before a deferred mechanism call runs.
	DeferDelay time.Duration `toml:"defer_delay" env:"DEFER_DELAY"`
	// DeferredTimeout bounds a single deferred call or respawn write.
	DeferredTimeout time.Duration `toml:"deferred_timeout" env:"DEFERRED_TIMEOUT"`

	// Respawn rewrites the winning value into mechanisms that lost it.
	Respawn bool `toml:"respawn" env:"RESPAWN"`

	// Enable and Disable adjust the default active set; disable wins.
	Enable  []string `toml:"enable" env:"ENABLE"`
	Disable []string `toml:"disable" env:"DISABLE"`

	SessionSize int           `toml:"session_size" env:"SESSION_SIZE"`
	CookieTTL   time.Duration `toml:"cookie_ttl" env:"COOKIE_TTL"`
	// WebCacheTTL is how long the web_cache mechanism keeps an entry.
	WebCacheTTL time.Duration `toml:"web_cache_ttl" env:"WEB_CACHE_TTL"`
	// UserDataPath is the user_data file. Defaults to a file in DataDir.
	UserDataPath string `toml:"user_data_path" env:"USER_DATA_PATH"`

	ETag       ETagConfig       `toml:"etag" envPrefix:"ETAG_"`
	NATS       NATSConfig       `toml:"nats" envPrefix:"NATS_"`
	Kafka      KafkaConfig      `toml:"kafka" envPrefix:"KAFKA_"`
	Remote     RemoteConfig     `toml:"remote" envPrefix:"REMOTE_"`
	Server     ServerConfig     `toml:"server" envPrefix:"SERVER_"`
	Logging    LoggingConfig    `toml:"logging" envPrefix:"LOGGING_"`
	Prometheus PrometheusConfig `toml:"prometheus" envPrefix:"PROMETHEUS_"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		DataDir:         "./everstore-data",
		WaitMax:         time.Second,
		PollInterval:    30 * time.Millisecond,
		DeferDelay:      time.Millisecond,
		DeferredTimeout: 2 * time.Second,
		Respawn:         true,
		Enable:          []string{},
		Disable:         []string{},
		SessionSize:     1024,
		CookieTTL:       365 * 24 * time.Hour,
		WebCacheTTL:     30 * 24 * time.Hour,
		NATS: NATSConfig{
			Bucket: "everstore",
		},
		Kafka: KafkaConfig{
			Brokers: []string{},
			Topic:   "everstore",
		},
		Server: ServerConfig{
			GRPCAddr: "127.0.0.1:7070",
			HTTPAddr: "127.0.0.1:7071",
		},
		Logging: LoggingConfig{
			Format: "console",
		},
	}
}

// Load reads the TOML file at path (if it exists) over the defaults, then
// applies EVERSTORE_* environment overrides.
func Load(path string) (Config, error) {
	return load(path, nil)
}

// LoadWithEnv is Load with an explicit environment instead of os.Environ.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	return load(path, environ)
}

func load(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			log.Debug().Str("path", path).Msg("Loading configuration")
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to decode config: %w", err)
			}
		} else if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", path).Msg("Config file not found, using defaults")
		} else {
			return Config{}, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.Domain == "" {
		host, err := os.Hostname()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to get hostname, using localhost")
			host = "localhost"
		}
		cfg.Domain = DefaultDomain(host)
	}

	return cfg, nil
}

// Validate checks configuration for errors.
func (c Config) Validate() error {
	if c.WaitMax <= 0 {
		return fmt.Errorf("wait_max must be > 0")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0")
	}
	if c.PollInterval > c.WaitMax {
		return fmt.Errorf("poll_interval (%s) exceeds wait_max (%s)", c.PollInterval, c.WaitMax)
	}
	if c.DeferDelay < 0 {
		return fmt.Errorf("defer_delay must be >= 0")
	}
	if c.DeferredTimeout <= 0 {
		return fmt.Errorf("deferred_timeout must be > 0")
	}
	if c.SessionSize < 1 {
		return fmt.Errorf("session_size must be >= 1")
	}
	if c.CookieTTL <= 0 {
		return fmt.Errorf("cookie_ttl must be > 0")
	}
	if c.WebCacheTTL <= 0 {
		return fmt.Errorf("web_cache_ttl must be > 0")
	}
	if c.Remote.VNodes < 0 {
		return fmt.Errorf("remote.vnodes must be >= 0")
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}
	return nil
}

var portSuffix = regexp.MustCompile(`:\d+$`)

// DefaultDomain derives the cookie domain from a host[:port]. Host names get
// a leading dot so the value is shared with subdomains; IP addresses do not.
func DefaultDomain(host string) string {
	domain := portSuffix.ReplaceAllString(host, "")
	domain = strings.TrimSuffix(strings.TrimPrefix(domain, "["), "]")
	if domain == "" {
		return ""
	}
	if net.ParseIP(domain) != nil {
		return domain
	}
	return "." + domain
}

// ParseList parses a comma-separated list in the format:
// "cookie,local_store, *_store"
func ParseList(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		items = append(items, part)
	}

	return items
}
