// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Corpus, Index, Search, Postgres, Redis, Kafka, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Corpus source kinds.
const (
	SourceDir      = "dir"
	SourcePostgres = "postgres"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// CorpusConfig selects where cleaned documents and the id/URL registry come
// from.
type CorpusConfig struct {
	Source       string `yaml:"source"`
	PagesDir     string `yaml:"pagesDir"`
	RegistryFile string `yaml:"registryFile"`
	Table        string `yaml:"table"`
}

// IndexConfig controls where snapshots are persisted and how builds run.
type IndexConfig struct {
	DataDir         string        `yaml:"dataDir"`
	BuildWorkers    int           `yaml:"buildWorkers"`
	IOWorkers       int           `yaml:"ioWorkers"`
	KeepGenerations int           `yaml:"keepGenerations"`
	ReloadTimeout   time.Duration `yaml:"reloadTimeout"`
}

// SearchConfig controls result limits and request throttling.
type SearchConfig struct {
	DefaultLimit   int           `yaml:"defaultLimit"`
	MaxResults     int           `yaml:"maxResults"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	RateLimit      float64       `yaml:"rateLimit"`
	RateBurst      int           `yaml:"rateBurst"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection and result-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds broker and topic settings for index-complete events.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Corpus: CorpusConfig{
			Source:       SourceDir,
			PagesDir:     "pages",
			RegistryFile: "index.txt",
			Table:        "documents",
		},
		Index: IndexConfig{
			DataDir:         "data/index",
			BuildWorkers:    4,
			IOWorkers:       8,
			KeepGenerations: 3,
			ReloadTimeout:   2 * time.Minute,
		},
		Search: SearchConfig{
			DefaultLimit:   10,
			MaxResults:     100,
			RequestTimeout: 5 * time.Second,
			RateLimit:      50,
			RateBurst:      100,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "oip",
			User:            "oip",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "oip-searcher",
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	switch c.Corpus.Source {
	case SourceDir:
		if c.Corpus.PagesDir == "" {
			err = multierror.Append(err, fmt.Errorf("corpus.pagesDir is required for the dir source"))
		}
		if c.Corpus.RegistryFile == "" {
			err = multierror.Append(err, fmt.Errorf("corpus.registryFile is required for the dir source"))
		}
	case SourcePostgres:
		if c.Corpus.Table == "" {
			err = multierror.Append(err, fmt.Errorf("corpus.table is required for the postgres source"))
		}
	default:
		err = multierror.Append(err, fmt.Errorf("unknown corpus.source %q", c.Corpus.Source))
	}
	if c.Index.DataDir == "" {
		err = multierror.Append(err, fmt.Errorf("index.dataDir is required"))
	}
	if c.Index.BuildWorkers <= 0 {
		err = multierror.Append(err, fmt.Errorf("index.buildWorkers must be > 0"))
	}
	if c.Index.IOWorkers <= 0 {
		err = multierror.Append(err, fmt.Errorf("index.ioWorkers must be > 0"))
	}
	if c.Index.KeepGenerations <= 0 {
		err = multierror.Append(err, fmt.Errorf("index.keepGenerations must be > 0"))
	}
	if c.Search.DefaultLimit <= 0 {
		err = multierror.Append(err, fmt.Errorf("search.defaultLimit must be > 0"))
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		err = multierror.Append(err, fmt.Errorf("search.maxResults must be >= search.defaultLimit"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		err = multierror.Append(err, fmt.Errorf("kafka.brokers is required when kafka is enabled"))
	}
	if c.Kafka.Enabled && c.Kafka.Topics.IndexComplete == "" {
		err = multierror.Append(err, fmt.Errorf("kafka.topics.indexComplete is required when kafka is enabled"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		err = multierror.Append(err, fmt.Errorf("redis.addr is required when redis is enabled"))
	}
	return err
}

// applyEnvOverrides reads OIP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OIP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("OIP_CORPUS_SOURCE"); v != "" {
		cfg.Corpus.Source = v
	}
	if v := os.Getenv("OIP_CORPUS_PAGES_DIR"); v != "" {
		cfg.Corpus.PagesDir = v
	}
	if v := os.Getenv("OIP_CORPUS_REGISTRY_FILE"); v != "" {
		cfg.Corpus.RegistryFile = v
	}
	if v := os.Getenv("OIP_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("OIP_INDEX_BUILD_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.BuildWorkers = n
		}
	}
	if v := os.Getenv("OIP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("OIP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("OIP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("OIP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("OIP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("OIP_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = enabled
		}
	}
	if v := os.Getenv("OIP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("OIP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("OIP_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("OIP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("OIP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OIP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
