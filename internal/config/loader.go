package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot using the documented precedence rules.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	var sources []string
	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
		sources = append(sources, path)
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"state.ttlseconds":              "state.ttlSeconds",
			"state.redis.tls.cafile":        "state.redis.tls.caFile",
			"cdn.distributionid":            "cdn.distributionId",
			"cdn.baseurl":                   "cdn.baseUrl",
			"cdn.maxpaths":                  "cdn.maxPaths",
			"cdn.relatedpaths":              "cdn.relatedPaths",
			"retry.windowseconds":           "retry.windowSeconds",
			"retry.intervalseconds":         "retry.intervalSeconds",
			"retry.alwaysdefer":             "retry.alwaysDefer",
			"policy.invalidationexpression": "policy.invalidationExpression",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path (CDN__BASE_URL -> cdn.baseurl).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			key = strings.ReplaceAll(key, "_", "")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			return lower
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.Sources = sources
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml", ".tml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported file extension %s", ext)
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":  cfg.Server.Logging.Level,
				"format": cfg.Server.Logging.Format,
			},
			"admin": map[string]any{
				"token": cfg.Server.Admin.Token,
			},
		},
		"state": map[string]any{
			"backend":    cfg.State.Backend,
			"ttlSeconds": cfg.State.TTLSeconds,
			"namespace":  cfg.State.Namespace,
			"redis": map[string]any{
				"address":  cfg.State.Redis.Address,
				"username": cfg.State.Redis.Username,
				"password": cfg.State.Redis.Password,
				"db":       cfg.State.Redis.DB,
				"tls": map[string]any{
					"enabled": cfg.State.Redis.TLS.Enabled,
					"caFile":  cfg.State.Redis.TLS.CAFile,
				},
			},
		},
		"cdn": map[string]any{
			"provider":       cfg.CDN.Provider,
			"distributionId": cfg.CDN.DistributionID,
			"baseUrl":        cfg.CDN.BaseURL,
			"region":         cfg.CDN.Region,
			"maxPaths":       cfg.CDN.MaxPaths,
		},
		"retry": map[string]any{
			"windowSeconds":   cfg.Retry.WindowSeconds,
			"intervalSeconds": cfg.Retry.IntervalSeconds,
			"disabled":        cfg.Retry.Disabled,
			"alwaysDefer":     cfg.Retry.AlwaysDefer,
		},
		"policy": map[string]any{
			"invalidationExpression": cfg.Policy.InvalidationExpression,
		},
		"events": map[string]any{
			"redis": pubSubToMap(cfg.Events.Redis),
		},
		"notify": map[string]any{
			"redis": pubSubToMap(cfg.Notify.Redis),
		},
	}
}

func pubSubToMap(ps PubSubConfig) map[string]any {
	return map[string]any{
		"enabled":  ps.Enabled,
		"address":  ps.Address,
		"password": ps.Password,
		"db":       ps.DB,
		"channel":  ps.Channel,
	}
}
