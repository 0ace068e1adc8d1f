package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds every option the service reads at startup. The cdn, retry and
// policy sections are also hot-reloaded by the watcher.
type Config struct {
	Server ServerConfig `koanf:"server"`
	State  StateConfig  `koanf:"state"`
	CDN    CDNConfig    `koanf:"cdn"`
	Retry  RetryConfig  `koanf:"retry"`
	Policy PolicyConfig `koanf:"policy"`
	Events EventsConfig `koanf:"events"`
	Notify NotifyConfig `koanf:"notify"`

	// Sources records the files that contributed to this snapshot so the
	// watcher knows what to observe.
	Sources []string `koanf:"-"`
}

// ServerConfig collects the HTTP listener and operator-facing knobs.
type ServerConfig struct {
	Listen  ListenConfig  `koanf:"listen"`
	Logging LoggingConfig `koanf:"logging"`
	Admin   AdminConfig   `koanf:"admin"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AdminConfig guards the manual trigger routes. An empty token disables them.
type AdminConfig struct {
	Token string `koanf:"token"`
}

// StateConfig selects the debounce state backend.
type StateConfig struct {
	Backend    string           `koanf:"backend"`
	TTLSeconds int              `koanf:"ttlSeconds"`
	Namespace  string           `koanf:"namespace"`
	Redis      RedisStateConfig `koanf:"redis"`
}

type RedisStateConfig struct {
	Address  string         `koanf:"address"`
	Username string         `koanf:"username"`
	Password string         `koanf:"password"`
	DB       int            `koanf:"db"`
	TLS      RedisTLSConfig `koanf:"tls"`
}

type RedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// CDNConfig identifies the distribution and the client used to reach it.
type CDNConfig struct {
	Provider       string   `koanf:"provider"`
	DistributionID string   `koanf:"distributionId"`
	BaseURL        string   `koanf:"baseUrl"`
	Region         string   `koanf:"region"`
	MaxPaths       int      `koanf:"maxPaths"`
	RelatedPaths   []string `koanf:"relatedPaths"`
}

// RetryConfig drives the debounce window and deferred retry timer.
type RetryConfig struct {
	WindowSeconds   int  `koanf:"windowSeconds"`
	IntervalSeconds int  `koanf:"intervalSeconds"`
	Disabled        bool `koanf:"disabled"`
	AlwaysDefer     bool `koanf:"alwaysDefer"`
}

// Window returns the debounce window as a duration.
func (r RetryConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Interval returns the delay before a deferred batch is retried.
func (r RetryConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// PolicyConfig carries optional CEL hooks.
type PolicyConfig struct {
	InvalidationExpression string `koanf:"invalidationExpression"`
}

// EventsConfig enables the Redis pub/sub event source.
type EventsConfig struct {
	Redis PubSubConfig `koanf:"redis"`
}

// NotifyConfig enables publishing operator notices to Redis pub/sub.
type NotifyConfig struct {
	Redis PubSubConfig `koanf:"redis"`
}

type PubSubConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Address  string `koanf:"address"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Channel  string `koanf:"channel"`
}

// Validate enforces invariants that keep the engine predictable before serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port < 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}
	if c.State.TTLSeconds <= 0 {
		return fmt.Errorf("config: state.ttlSeconds invalid: %d", c.State.TTLSeconds)
	}
	backend := strings.TrimSpace(strings.ToLower(c.State.Backend))
	switch backend {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.State.Redis.Address) == "" {
			return errors.New("config: state.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: state.backend unsupported: %s", c.State.Backend)
	}
	if err := c.CDN.validate(); err != nil {
		return err
	}
	if err := c.Retry.validate(); err != nil {
		return err
	}
	// Pending work must outlive the timer that drains it.
	if ttl := time.Duration(c.State.TTLSeconds) * time.Second; ttl < 2*c.Retry.Interval() || ttl < c.Retry.Window() {
		return fmt.Errorf("config: state.ttlSeconds %d shorter than retry window/interval", c.State.TTLSeconds)
	}
	for name, ps := range map[string]PubSubConfig{"events.redis": c.Events.Redis, "notify.redis": c.Notify.Redis} {
		if !ps.Enabled {
			continue
		}
		if strings.TrimSpace(ps.Address) == "" {
			return fmt.Errorf("config: %s.address required when enabled", name)
		}
		if strings.TrimSpace(ps.Channel) == "" {
			return fmt.Errorf("config: %s.channel required when enabled", name)
		}
	}
	return nil
}

func (c CDNConfig) validate() error {
	switch strings.TrimSpace(strings.ToLower(c.Provider)) {
	case "", "memory", "cloudfront":
	default:
		return fmt.Errorf("config: cdn.provider unsupported: %s", c.Provider)
	}
	if c.MaxPaths <= 0 {
		return fmt.Errorf("config: cdn.maxPaths invalid: %d", c.MaxPaths)
	}
	if strings.TrimSpace(c.BaseURL) != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: cdn.baseUrl must be an absolute URL: %q", c.BaseURL)
		}
	}
	return nil
}

func (r RetryConfig) validate() error {
	if r.WindowSeconds < 0 {
		return fmt.Errorf("config: retry.windowSeconds invalid: %d", r.WindowSeconds)
	}
	if r.IntervalSeconds <= 0 {
		return fmt.Errorf("config: retry.intervalSeconds invalid: %d", r.IntervalSeconds)
	}
	return nil
}

// DefaultConfig returns the baseline values.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
		},
		State: StateConfig{
			Backend:    "memory",
			TTLSeconds: 3600,
			Namespace:  "purgectl:debounce:v1",
		},
		CDN: CDNConfig{
			Provider: "memory",
			MaxPaths: 3000,
		},
		Retry: RetryConfig{
			WindowSeconds:   60,
			IntervalSeconds: 60,
		},
		Events: EventsConfig{
			Redis: PubSubConfig{Channel: "purgectl:events"},
		},
		Notify: NotifyConfig{
			Redis: PubSubConfig{Channel: "purgectl:notices"},
		},
	}
}
