package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Service names understood by Load. Each selects its own defaults and env prefix.
const (
	UserServer  = "user-server"
	OrderServer = "order-server"
)

// Registry backends.
const (
	RegistryStatic = "static"
	RegistryRedis  = "redis"
	RegistryNATS   = "nats"
)

// User directory backends.
const (
	DirectoryMemory   = "memory"
	DirectoryPostgres = "postgres"
)

// Config is the root configuration shared by user-server and order-server.
type Config struct {
	Service   string          `mapstructure:"-"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Client    ClientConfig    `mapstructure:"client"`
	Users     UsersConfig     `mapstructure:"users"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// TrustedProxies lists the proxy CIDRs whose X-Forwarded-For is honoured.
	// Empty means the client IP is always the connection's remote address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
}

// RegistryConfig selects the service registry backend. Static maps logical
// service names to fixed addresses; redis and nats are dynamic.
type RegistryConfig struct {
	Backend       string              `mapstructure:"backend"`
	TTL           time.Duration       `mapstructure:"ttl"`
	Heartbeat     time.Duration       `mapstructure:"heartbeat"`
	AdvertiseAddr string              `mapstructure:"advertise_addr"`
	Static        map[string][]string `mapstructure:"static"`
}

type ClientConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     uint64        `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}

type UsersConfig struct {
	Directory string        `mapstructure:"directory"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	// Seed is a list rather than a map because viper lowercases map keys.
	Seed []SeedUser `mapstructure:"seed"`
}

// SeedUser is one directory record loaded at bootstrap. Info is the
// "Name <email>" form accepted by user.ParseInfo.
type SeedUser struct {
	UID  string `mapstructure:"uid"`
	Info string `mapstructure:"info"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type BootstrapConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// DSN renders the pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode,
	)
}

type NATSConfig struct {
	URL      string `mapstructure:"url"`
	KVBucket string `mapstructure:"kv_bucket"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// EnvPrefix returns the environment variable prefix for service, e.g.
// "user-server" -> "USER_SERVER".
func EnvPrefix(service string) string {
	return strings.ToUpper(strings.ReplaceAll(service, "-", "_"))
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables prefixed with the service name (e.g.
// USER_SERVER_SERVER_PORT).
func Load(service, path string) (*Config, error) {
	v := viper.New()

	setDefaults(v, service)

	v.SetEnvPrefix(EnvPrefix(service))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.Service = service

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations no component can run with.
func (c *Config) Validate() error {
	switch c.Registry.Backend {
	case RegistryStatic, RegistryRedis, RegistryNATS:
	default:
		return fmt.Errorf("unknown registry backend %q", c.Registry.Backend)
	}
	switch c.Users.Directory {
	case DirectoryMemory, DirectoryPostgres:
	default:
		return fmt.Errorf("unknown users directory %q", c.Users.Directory)
	}
	for i, u := range c.Users.Seed {
		if u.UID == "" {
			return fmt.Errorf("users seed entry %d has an empty uid", i)
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Registry.Backend != RegistryStatic && c.Registry.Heartbeat >= c.Registry.TTL {
		return fmt.Errorf("registry heartbeat %s must be shorter than ttl %s",
			c.Registry.Heartbeat, c.Registry.TTL)
	}
	return nil
}

func setDefaults(v *viper.Viper, service string) {
	port := 8081
	if service == UserServer {
		port = 8082
	}

	v.SetDefault("server.port", port)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.log_level", "info")

	v.SetDefault("registry.backend", RegistryStatic)
	v.SetDefault("registry.ttl", 30*time.Second)
	v.SetDefault("registry.heartbeat", 10*time.Second)
	v.SetDefault("registry.advertise_addr", fmt.Sprintf("localhost:%d", port))
	v.SetDefault("registry.static", map[string][]string{
		UserServer: {"localhost:8082"},
	})

	v.SetDefault("client.timeout", 5*time.Second)
	v.SetDefault("client.max_retries", 2)
	v.SetDefault("client.initial_backoff", 100*time.Millisecond)

	v.SetDefault("users.directory", DirectoryMemory)
	v.SetDefault("users.cache_ttl", time.Duration(0))
	v.SetDefault("users.seed", []SeedUser{})

	v.SetDefault("rate_limit.enabled", service == UserServer)
	v.SetDefault("rate_limit.rps", 50.0)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("bootstrap.timeout", 2*time.Minute)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "users")
	v.SetDefault("postgres.db", "users")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.kv_bucket", "service-registry")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
}
