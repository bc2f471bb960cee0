package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "METEORITE_CONFIG"

// Config is the full runtime configuration of meteorited.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Events  EventsConfig  `mapstructure:"events" yaml:"events"`
	Ingest  IngestConfig  `mapstructure:"ingest" yaml:"ingest"`
	Web     WebConfig     `mapstructure:"web" yaml:"web"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Runtime RuntimeConfig `mapstructure:"runtime" yaml:"runtime"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address                  string   `mapstructure:"address" yaml:"address"`
	MetricsAddress           string   `mapstructure:"metrics_address" yaml:"metrics_address"`
	ReadHeaderTimeoutSeconds int      `mapstructure:"read_header_timeout_seconds" yaml:"read_header_timeout_seconds"`
	ShutdownTimeoutSeconds   int      `mapstructure:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
	CORSAllowedOrigins       []string `mapstructure:"cors_allowed_origins" yaml:"cors_allowed_origins"`
}

// ReadHeaderTimeout returns the configured header timeout.
func (s ServerConfig) ReadHeaderTimeout() time.Duration {
	return time.Duration(s.ReadHeaderTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// APIConfig controls paging limits of the REST API.
type APIConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size" yaml:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size" yaml:"max_page_size"`
}

// StorageConfig selects and tunes the meteorite store.
type StorageConfig struct {
	Driver                 string `mapstructure:"driver" yaml:"driver"`
	DSN                    string `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `mapstructure:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `mapstructure:"conn_max_idle_time_seconds" yaml:"conn_max_idle_time_seconds"`
}

// CacheConfig selects the statistics cache.
type CacheConfig struct {
	Driver     string      `mapstructure:"driver" yaml:"driver"`
	TTLSeconds int         `mapstructure:"ttl_seconds" yaml:"ttl_seconds"`
	Redis      RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// RedisConfig holds the Redis connection used by the cache.
type RedisConfig struct {
	Address  string `mapstructure:"address" yaml:"address"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// EventsConfig selects the dataset event transport.
type EventsConfig struct {
	Driver   string         `mapstructure:"driver" yaml:"driver"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq" yaml:"rabbitmq"`
}

// RabbitMQConfig holds the broker connection for dataset events.
type RabbitMQConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Exchange string `mapstructure:"exchange" yaml:"exchange"`
	Durable  bool   `mapstructure:"durable" yaml:"durable"`
}

// IngestConfig controls CSV loading.
type IngestConfig struct {
	Path       string `mapstructure:"path" yaml:"path"`
	OnStartup  bool   `mapstructure:"on_startup" yaml:"on_startup"`
	Watch      bool   `mapstructure:"watch" yaml:"watch"`
	DebounceMS int    `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	BatchSize  int    `mapstructure:"batch_size" yaml:"batch_size"`
}

// Debounce returns the quiet period before a changed CSV is re-imported.
func (i IngestConfig) Debounce() time.Duration {
	return time.Duration(i.DebounceMS) * time.Millisecond
}

// WebConfig controls the server-rendered explorer.
type WebConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	APIBaseURL string `mapstructure:"api_base_url" yaml:"api_base_url"`
	PageSize   int    `mapstructure:"page_size" yaml:"page_size"`
	TileURL    string `mapstructure:"tile_url" yaml:"tile_url"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level       string         `mapstructure:"level" yaml:"level"`
	Format      string         `mapstructure:"format" yaml:"format"`
	OutputPaths []string       `mapstructure:"output_paths" yaml:"output_paths"`
	Audit       LogAuditConfig `mapstructure:"audit" yaml:"audit"`
}

// LogAuditConfig mirrors logger.AuditConfig.
type LogAuditConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// RuntimeConfig holds paths shared by several components.
type RuntimeConfig struct {
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.metrics_address", "")
	v.SetDefault("server.read_header_timeout_seconds", 5)
	v.SetDefault("server.shutdown_timeout_seconds", 5)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})

	v.SetDefault("api.default_page_size", 20)
	v.SetDefault("api.max_page_size", 2000)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.max_open_conns", 20)
	v.SetDefault("storage.max_idle_conns", 10)
	v.SetDefault("storage.conn_max_lifetime_seconds", 1800)
	v.SetDefault("storage.conn_max_idle_time_seconds", 0)

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl_seconds", 60)
	v.SetDefault("cache.redis.address", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "meteorite:")

	v.SetDefault("events.driver", "none")
	v.SetDefault("events.rabbitmq.url", "")
	v.SetDefault("events.rabbitmq.exchange", "meteorite.events")
	v.SetDefault("events.rabbitmq.durable", true)

	v.SetDefault("ingest.path", "")
	v.SetDefault("ingest.on_startup", true)
	v.SetDefault("ingest.watch", false)
	v.SetDefault("ingest.debounce_ms", 500)
	v.SetDefault("ingest.batch_size", 500)

	v.SetDefault("web.enabled", true)
	v.SetDefault("web.api_base_url", "")
	v.SetDefault("web.page_size", 10)
	v.SetDefault("web.tile_url", "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})
	v.SetDefault("log.audit.enabled", false)
	v.SetDefault("log.audit.path", "")
	v.SetDefault("log.audit.max_size_mb", 100)
	v.SetDefault("log.audit.max_backups", 7)
	v.SetDefault("log.audit.max_age_days", 30)

	v.SetDefault("runtime.data_dir", "")
}

// Load reads the configuration file at path (JSON or YAML, chosen by
// extension) and layers METEORITE_* environment variables on top. An empty
// path falls back to METEORITE_CONFIG; when neither is set only defaults and
// the environment apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("METEORITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	baseDir := "."
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		baseDir = filepath.Dir(path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fixes up values that depend on each other or on the location
// of the config file.
func (c *Config) applyDefaults(baseDir string) {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Cache.Driver = strings.ToLower(strings.TrimSpace(c.Cache.Driver))
	c.Events.Driver = strings.ToLower(strings.TrimSpace(c.Events.Driver))

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Ingest.Path != "" && !filepath.IsAbs(c.Ingest.Path) {
		c.Ingest.Path = filepath.Join(baseDir, c.Ingest.Path)
	}

	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		c.Storage.DSN = filepath.Join(c.Runtime.DataDir, "meteorites.db")
	}

	if c.Log.Audit.Enabled && c.Log.Audit.Path == "" {
		c.Log.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit.log")
	}

	if c.API.DefaultPageSize <= 0 {
		c.API.DefaultPageSize = 20
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		c.API.MaxPageSize = c.API.DefaultPageSize
	}
	if c.Web.PageSize <= 0 {
		c.Web.PageSize = 10
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 500
	}
}

// Validate rejects combinations the daemon cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory":
	case "mysql", "sqlite":
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Cache.Driver {
	case "none", "memory":
	case "redis":
		if c.Cache.Redis.Address == "" {
			errs = append(errs, errors.New("cache.redis.address is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache driver %q", c.Cache.Driver))
	}
	switch c.Events.Driver {
	case "none", "memory":
	case "rabbitmq":
		if c.Events.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("events.rabbitmq.url is required for the rabbitmq driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown events driver %q", c.Events.Driver))
	}
	if c.Ingest.Watch && c.Ingest.Path == "" {
		errs = append(errs, errors.New("ingest.watch needs ingest.path"))
	}
	return errors.Join(errs...)
}
