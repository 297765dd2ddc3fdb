// Package config loads service configuration from YAML, .env files and
// SPENDGUARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hed1ad/spendguard/pkg/detectors"
)

// Config is the complete service configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Model    ModelConfig    `mapstructure:"model"`
	Store    StoreConfig    `mapstructure:"store"`
	Training TrainingConfig `mapstructure:"training"`
	Watch    WatchConfig    `mapstructure:"watch"`
}

// LogConfig selects the log level and the text or json format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ModelConfig holds the ensemble build parameters. Zero SampleSize,
// HeightLimit and Workers select the builder defaults.
type ModelConfig struct {
	Trees         int     `mapstructure:"trees"`
	SampleSize    int     `mapstructure:"sample_size"`
	HeightLimit   int     `mapstructure:"height_limit"`
	Contamination float64 `mapstructure:"contamination"`
	Seed          int64   `mapstructure:"seed"`
	Workers       int     `mapstructure:"workers"`
}

// Detector returns the decision settings shared with the detectors package.
func (m ModelConfig) Detector() detectors.Config {
	return detectors.Config{
		Contamination: m.Contamination,
		RandomSeed:    m.Seed,
	}
}

// StoreConfig selects the artifact backend (file, redis or s3) and the key
// the ensemble is saved under.
type StoreConfig struct {
	Backend string      `mapstructure:"backend"`
	Key     string      `mapstructure:"key"`
	File    FileConfig  `mapstructure:"file"`
	Redis   RedisConfig `mapstructure:"redis"`
	S3      S3Config    `mapstructure:"s3"`
}

// FileConfig configures the local directory store.
type FileConfig struct {
	Dir string `mapstructure:"dir"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password" json:"-" yaml:"-"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// S3Config configures the S3 store.
type S3Config struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`
	Prefix string `mapstructure:"prefix"`
}

// TrainingConfig selects where training expenses are read from.
type TrainingConfig struct {
	Source   string         `mapstructure:"source"`
	CSV      CSVConfig      `mapstructure:"csv"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// CSVConfig points at a CSV training file.
type CSVConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig configures the Postgres training source.
type PostgresConfig struct {
	URL   string `mapstructure:"url" json:"-" yaml:"-"`
	Limit int    `mapstructure:"limit"`
}

// WatchConfig controls hot reload of the file store artifact.
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// Load reads configuration from file (or spendguard.yaml in ./configs and .
// when file is empty), a .env file and SPENDGUARD_* environment variables.
func Load(file string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("spendguard")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("spendguard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Store.Backend = strings.ToLower(cfg.Store.Backend)
	cfg.Training.Source = strings.ToLower(cfg.Training.Source)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("model.trees", 100)
	v.SetDefault("model.sample_size", 0)
	v.SetDefault("model.height_limit", 0)
	v.SetDefault("model.contamination", 0.0)
	v.SetDefault("model.seed", 42)
	v.SetDefault("model.workers", 0)

	v.SetDefault("store.backend", "file")
	v.SetDefault("store.key", "model.gob")
	v.SetDefault("store.file.dir", "./models")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "spendguard:")
	v.SetDefault("store.s3.bucket", "")
	v.SetDefault("store.s3.region", "us-east-1")
	v.SetDefault("store.s3.prefix", "spendguard")

	v.SetDefault("training.source", "csv")
	v.SetDefault("training.csv.path", "./data/expenses.csv")
	v.SetDefault("training.postgres.url", "")
	v.SetDefault("training.postgres.limit", 10000)

	v.SetDefault("watch.enabled", true)
	v.SetDefault("watch.debounce", 500*time.Millisecond)
}

// Validate checks cross-field constraints. Build-time constraints that depend
// on the training set size are left to the builder.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Model.Trees < 1 {
		return fmt.Errorf("model trees must be positive, got %d", c.Model.Trees)
	}
	if c.Model.SampleSize < 0 {
		return fmt.Errorf("model sample_size must be non-negative, got %d", c.Model.SampleSize)
	}
	if c.Model.Contamination < 0 || c.Model.Contamination >= 0.5 {
		return fmt.Errorf("model contamination must be in [0, 0.5), got %v", c.Model.Contamination)
	}
	if c.Store.Key == "" {
		return errors.New("store key is required")
	}

	switch c.Store.Backend {
	case "file":
		if c.Store.File.Dir == "" {
			return errors.New("store.file.dir is required for the file backend")
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required for the redis backend")
		}
	case "s3":
		if c.Store.S3.Bucket == "" {
			return errors.New("store.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Training.Source {
	case "csv", "postgres":
	default:
		return fmt.Errorf("unknown training source %q", c.Training.Source)
	}
	return nil
}
