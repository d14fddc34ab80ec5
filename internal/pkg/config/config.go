package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application settings. The pipeline document itself is
// loaded separately, see pipeline.LoadDocument.
type Config struct {
	// Environment
	Environment string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// Pipeline
	PipelineConfig string            `mapstructure:"PIPELINE_CONFIG"`
	ConfigAliases  map[string]string `mapstructure:"-"`
	RegexTimeoutMs int               `mapstructure:"REGEX_TIMEOUT_MS"`

	// Storage
	StorageBasePath string            `mapstructure:"STORAGE_BASE_PATH"`
	DefaultDirs     map[string]string `mapstructure:"-"`
	VocabDirs       map[string]string `mapstructure:"-"`

	// Server Configuration
	ServerHost string `mapstructure:"SERVER_HOST"`
	ServerPort string `mapstructure:"SERVER_PORT"`

	// Cache and queue share the Redis settings
	Cache CacheConfig
	Queue QueueConfig

	// Run history
	Database DatabaseConfig
}

// CacheConfig configures the Redis record cache
type CacheConfig struct {
	Enabled       bool
	MemoryEntries int // in-process LRU size used when Redis is disabled, 0 turns it off
	Host         string
	Port         int
	Password     string
	DB           int
	TTLSeconds   int
	DialTimeout  int
	ReadTimeout  int
	WriteTimeout int
	PoolSize     int
	MinIdleConns int
}

// QueueConfig configures asynq
type QueueConfig struct {
	RedisHost      string
	RedisPort      int
	RedisPassword  string
	RedisDB        int
	DialTimeout    int
	ReadTimeout    int
	WriteTimeout   int
	Concurrency    int
	StrictPriority bool
}

// DatabaseConfig configures the run history store
type DatabaseConfig struct {
	Driver          string // sqlite, postgres or none
	SQLitePath      string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	LogLevel        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int
	MaxConnIdleTime int
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			slog.Debug("no .env file found, using environment variables only")
		}
	}

	v := viper.New()
	setDefaults(v)

	// Bind environment variables
	v.AutomaticEnv()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	// Pipeline defaults
	v.SetDefault("PIPELINE_CONFIG", "preprocessing_1")
	v.SetDefault("REGEX_TIMEOUT_MS", 1000)

	// Storage defaults
	v.SetDefault("STORAGE_BASE_PATH", "data")

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("CACHE_TTL_SECONDS", 3600)
	v.SetDefault("CACHE_MEMORY_ENTRIES", 10000)

	// Worker defaults
	v.SetDefault("WORKER_CONCURRENCY", 4)

	// Database defaults
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("SQLITE_PATH", "data/runs.db")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_NAME", "textpipeline")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_LOG_LEVEL", "silent")
}

func fromViper(v *viper.Viper) (*Config, error) {
	config := &Config{}

	config.Environment = v.GetString("ENV")
	config.LogLevel = v.GetString("LOG_LEVEL")

	config.PipelineConfig = v.GetString("PIPELINE_CONFIG")
	config.RegexTimeoutMs = v.GetInt("REGEX_TIMEOUT_MS")
	config.ConfigAliases = map[string]string{
		"preprocessing_1": filepath.Join("configs", "preprocessing_1.yml"),
	}

	config.StorageBasePath = v.GetString("STORAGE_BASE_PATH")
	// Default output directories per process alias, relative to the base path
	config.DefaultDirs = map[string]string{
		"regex_norm": filepath.Join("models", "regex_norm"),
		"countvec":   filepath.Join("models", "countvec"),
		"word2vec":   filepath.Join("models", "word2vec"),
	}
	config.VocabDirs = map[string]string{
		"countvec": filepath.Join("corpus", "countvec"),
		"word2vec": filepath.Join("corpus", "word2vec"),
	}

	config.ServerHost = v.GetString("SERVER_HOST")
	config.ServerPort = v.GetString("SERVER_PORT")

	config.Cache = CacheConfig{
		Enabled:       v.GetBool("CACHE_ENABLED"),
		MemoryEntries: v.GetInt("CACHE_MEMORY_ENTRIES"),
		Host:          v.GetString("REDIS_HOST"),
		Port:          v.GetInt("REDIS_PORT"),
		Password:      v.GetString("REDIS_PASSWORD"),
		DB:            v.GetInt("REDIS_DB"),
		TTLSeconds:    v.GetInt("CACHE_TTL_SECONDS"),
		DialTimeout:   5,
		ReadTimeout:   3,
		WriteTimeout:  3,
		PoolSize:      10,
		MinIdleConns:  1,
	}

	config.Queue = QueueConfig{
		RedisHost:     config.Cache.Host,
		RedisPort:     config.Cache.Port,
		RedisPassword: config.Cache.Password,
		RedisDB:       config.Cache.DB,
		DialTimeout:   5,
		ReadTimeout:   3,
		WriteTimeout:  3,
		Concurrency:   v.GetInt("WORKER_CONCURRENCY"),
	}

	config.Database = DatabaseConfig{
		Driver:          strings.ToLower(v.GetString("DB_DRIVER")),
		SQLitePath:      v.GetString("SQLITE_PATH"),
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Database:        v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSLMODE"),
		LogLevel:        v.GetString("DB_LOG_LEVEL"),
		MaxConnections:  10,
		MinConnections:  2,
		MaxConnLifetime: 30,
		MaxConnIdleTime: 5,
	}

	// Validate
	switch config.Database.Driver {
	case "sqlite", "none":
	case "postgres":
		if config.Database.User == "" {
			return nil, fmt.Errorf("DB_USER is required when DB_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (expected sqlite, postgres or none)", config.Database.Driver)
	}
	if config.Cache.MemoryEntries < 0 {
		return nil, fmt.Errorf("CACHE_MEMORY_ENTRIES must not be negative")
	}
	if config.RegexTimeoutMs < 0 {
		return nil, fmt.Errorf("REGEX_TIMEOUT_MS must not be negative")
	}

	return config, nil
}

// ResolvePipelineConfig maps a configuration alias to its document path.
// Anything that is not an alias is returned unchanged and treated as a path.
func (c *Config) ResolvePipelineConfig(aliasOrPath string) string {
	if path, ok := c.ConfigAliases[aliasOrPath]; ok {
		return path
	}
	return aliasOrPath
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// ServerAddr returns host:port for the HTTP API
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

// LogConfig logs the configuration (hiding sensitive data)
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.String("environment", c.Environment),
		slog.String("pipeline_config", c.PipelineConfig),
		slog.String("storage_base_path", c.StorageBasePath),
		slog.Bool("cache_enabled", c.Cache.Enabled),
		slog.String("redis", fmt.Sprintf("%s:%d", c.Cache.Host, c.Cache.Port)),
		slog.String("db_driver", c.Database.Driver),
		slog.Int("worker_concurrency", c.Queue.Concurrency),
	)

	if c.Database.Password != "" {
		logger.Debug("database password", slog.String("value", "[CONFIGURED]"))
	}
}
