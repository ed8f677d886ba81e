package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is built once at boot and never mutated afterwards. Every request
// handler shares the same value by reference.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Upstream  UpstreamConfig   `yaml:"upstream"`
	Routing   RoutingConfig    `yaml:"routing"`
	RateLimit RateLimitBackend `yaml:"rate_limit"`
}

type ServerConfig struct {
	Addr                     string   `yaml:"addr"`
	TrustedProxies           []string `yaml:"trusted_proxies"`
	MaxHeaderBytes           int      `yaml:"max_header_bytes"`
	MaxBodyBytes             int64    `yaml:"max_body_bytes"`
	ReadTimeoutSeconds       int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds      int      `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds       int      `yaml:"idle_timeout_seconds"`
	ReadHeaderTimeoutSeconds int      `yaml:"read_header_timeout_seconds"`
}

type UpstreamConfig struct {
	RelayTimeoutSeconds          int `yaml:"relay_timeout_seconds"`
	DialTimeoutSeconds           int `yaml:"dial_timeout_seconds"`
	TLSHandshakeTimeoutSeconds   int `yaml:"tls_handshake_timeout_seconds"`
	ResponseHeaderTimeoutSeconds int `yaml:"response_header_timeout_seconds"`
	IdleConnTimeoutSeconds       int `yaml:"idle_conn_timeout_seconds"`
	MaxIdleConns                 int `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost          int `yaml:"max_idle_conns_per_host"`
}

type RoutingConfig struct {
	MonolithURL      string          `yaml:"monolith_url"`
	GradualMigration bool            `yaml:"gradual_migration"`
	Services         []ServiceConfig `yaml:"services"`
}

// ServiceConfig describes one extracted service. A service with a
// migration_percent participates in gradual-migration splitting; a service
// without one is fully migrated and its prefix always routes to it.
type ServiceConfig struct {
	Name             string        `yaml:"name"`
	PathPrefix       string        `yaml:"path_prefix"`
	Upstream         string        `yaml:"upstream"`
	HealthPath       string        `yaml:"health_path"`
	MigrationPercent *int          `yaml:"migration_percent"`
	RateLimit        ServiceRLConf `yaml:"rate_limit"`
}

type ServiceRLConf struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   float64 `yaml:"burst"`
}

type RateLimitBackend struct {
	Backend string         `yaml:"backend"` // "redis" | "memory"
	Redis   RedisConfig    `yaml:"redis"`
	Memory  MemoryRLConfig `yaml:"memory"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MemoryRLConfig struct {
	CleanupSeconds int `yaml:"cleanup_seconds"`
	TTLSeconds     int `yaml:"ttl_seconds"`
}

// Load reads the optional yaml file at path, fills in defaults, applies
// environment overrides, and validates. path may be empty: the proxy is fully
// configurable from the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = 1 << 20 // 1 MiB
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 8 << 20 // bodies are fully buffered before relay
	}
	if cfg.Server.ReadHeaderTimeoutSeconds == 0 {
		cfg.Server.ReadHeaderTimeoutSeconds = 5
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 60
	}
	if cfg.Server.IdleTimeoutSeconds == 0 {
		cfg.Server.IdleTimeoutSeconds = 60
	}

	if cfg.Upstream.RelayTimeoutSeconds == 0 {
		cfg.Upstream.RelayTimeoutSeconds = 30
	}
	if cfg.Upstream.DialTimeoutSeconds == 0 {
		cfg.Upstream.DialTimeoutSeconds = 5
	}
	if cfg.Upstream.TLSHandshakeTimeoutSeconds == 0 {
		cfg.Upstream.TLSHandshakeTimeoutSeconds = 5
	}
	if cfg.Upstream.ResponseHeaderTimeoutSeconds == 0 {
		cfg.Upstream.ResponseHeaderTimeoutSeconds = 15
	}
	if cfg.Upstream.IdleConnTimeoutSeconds == 0 {
		cfg.Upstream.IdleConnTimeoutSeconds = 90
	}
	if cfg.Upstream.MaxIdleConns == 0 {
		cfg.Upstream.MaxIdleConns = 100
	}
	if cfg.Upstream.MaxIdleConnsPerHost == 0 {
		cfg.Upstream.MaxIdleConnsPerHost = 20
	}

	if cfg.Routing.MonolithURL == "" {
		cfg.Routing.MonolithURL = "http://monolith:8080"
	}
	if len(cfg.Routing.Services) == 0 {
		zero := 0
		cfg.Routing.Services = []ServiceConfig{
			{
				Name:             "movies",
				PathPrefix:       "/api/movies",
				Upstream:         "http://movies-service:8081",
				HealthPath:       "/api/movies/health",
				MigrationPercent: &zero,
			},
			{
				Name:       "events",
				PathPrefix: "/api/events",
				Upstream:   "http://events-service:8082",
			},
		}
	}

	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = "memory"
	}
	if cfg.RateLimit.Memory.TTLSeconds == 0 {
		cfg.RateLimit.Memory.TTLSeconds = 300
	}
	if cfg.RateLimit.Memory.CleanupSeconds == 0 {
		cfg.RateLimit.Memory.CleanupSeconds = 60
	}
}

// applyEnv layers the deployment's environment contract on top of whatever
// the file provided. Env always wins.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = ":" + v
	}
	if v := os.Getenv("MONOLITH_URL"); v != "" {
		cfg.Routing.MonolithURL = v
	}
	if v := os.Getenv("GRADUAL_MIGRATION"); v != "" {
		cfg.Routing.GradualMigration = strings.EqualFold(v, "true")
	}
	for i := range cfg.Routing.Services {
		svc := &cfg.Routing.Services[i]
		key := strings.ToUpper(svc.Name)
		if v := os.Getenv(key + "_SERVICE_URL"); v != "" {
			svc.Upstream = v
		}
		if v := os.Getenv(key + "_MIGRATION_PERCENT"); v != "" {
			if p, err := strconv.Atoi(v); err == nil {
				svc.MigrationPercent = &p
			}
		}
	}
}

func Validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if cfg.Routing.MonolithURL == "" {
		return errors.New("routing.monolith_url is required")
	}
	if _, err := url.Parse(cfg.Routing.MonolithURL); err != nil {
		return fmt.Errorf("routing.monolith_url invalid: %v", err)
	}

	seenNames := map[string]struct{}{}
	for i, s := range cfg.Routing.Services {
		idx := fmt.Sprintf("routing.services[%d]", i)
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("%s.name is required", idx)
		}
		if _, ok := seenNames[name]; ok {
			return fmt.Errorf("duplicate service name: %q", name)
		}
		seenNames[name] = struct{}{}

		pp := strings.TrimSpace(s.PathPrefix)
		if pp == "" || !strings.HasPrefix(pp, "/") {
			return fmt.Errorf("%s.path_prefix must start with '/'", idx)
		}
		if s.Upstream == "" {
			return fmt.Errorf("%s.upstream is required", idx)
		}
		if _, err := url.Parse(s.Upstream); err != nil {
			return fmt.Errorf("%s.upstream invalid: %v", idx, err)
		}
		if s.HealthPath != "" && !strings.HasPrefix(s.HealthPath, "/") {
			return fmt.Errorf("%s.health_path must start with '/' if set", idx)
		}
		if s.MigrationPercent != nil {
			if p := *s.MigrationPercent; p < 0 || p > 100 {
				return fmt.Errorf("%s.migration_percent must be in [0,100], got %d", idx, p)
			}
		}
		if s.RateLimit.Enabled {
			if s.RateLimit.RPS <= 0 {
				return fmt.Errorf("%s.rate_limit.rps must be > 0 when enabled", idx)
			}
			if s.RateLimit.Burst <= 0 {
				return fmt.Errorf("%s.rate_limit.burst must be > 0 when enabled", idx)
			}
		}
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))
	if backend != "redis" && backend != "memory" {
		return fmt.Errorf("rate_limit.backend must be 'redis' or 'memory'")
	}
	if backend == "redis" && strings.TrimSpace(cfg.RateLimit.Redis.Addr) == "" {
		return fmt.Errorf("rate_limit.redis.addr is required when backend is redis")
	}
	return nil
}
