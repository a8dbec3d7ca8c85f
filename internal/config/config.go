package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath = "POCUSAI_CONFIG"
	EnvStorage    = "POCUSAI_STORAGE"
	EnvAPIKey     = "POCUSAI_API_KEY"
)

const (
	DefaultServerAddress = ":8090"
	DefaultLanguage      = "ko"
	DefaultProvider      = "gemini"
	DefaultGeminiModel   = "gemini-3-pro-preview"
	DefaultTemperature   = 0.2
	DefaultStorage       = "sqlite3"
	DefaultMaxWorkers    = 4
	DefaultQueueSize     = 64
	DefaultWorkerIdle    = 5
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Storage     StorageConfig             `json:"storage" yaml:"storage"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Model       ModelConfig               `json:"model" yaml:"model"`
	Providers   map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Admin       AdminConfig               `json:"admin" yaml:"admin"`
	Worker      WorkerConfig              `json:"worker" yaml:"worker"`
}

type BasicConfig struct {
	ServerAddress   string `json:"server_address" yaml:"server_address"`
	DefaultLanguage string `json:"default_language" yaml:"default_language"`
	LogLevel        string `json:"log_level" yaml:"log_level"`
	BcryptCost      int    `json:"bcrypt_cost" yaml:"bcrypt_cost"`
}

// StorageConfig selects the durable key/value backend: sqlite3, mysql, redis or memory.
type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// ModelConfig picks the provider used for consultations.
type ModelConfig struct {
	Provider    string  `json:"provider" yaml:"provider"`
	Temperature float32 `json:"temperature" yaml:"temperature"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

// AdminConfig holds the pre-shared administrator account provisioned at bootstrap.
type AdminConfig struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Email    string `json:"email" yaml:"email"`
}

// WorkerConfig sizes the pool that runs model calls. IdleTimeout is in minutes.
type WorkerConfig struct {
	MinWorkers  int `json:"min_workers" yaml:"min_workers"`
	MaxWorkers  int `json:"max_workers" yaml:"max_workers"`
	QueueSize   int `json:"queue_size" yaml:"queue_size"`
	IdleTimeout int `json:"idle_timeout" yaml:"idle_timeout"`
}

// Load reads configuration from the provided path (defaults to config.json).
// Files ending in .yaml or .yml are parsed as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if cfg.Admin.Username == "" || cfg.Admin.Password == "" {
		return nil, fmt.Errorf("admin username and password must be configured")
	}

	// sqlite files are resolved next to the config file.
	if db, ok := cfg.Databases["sqlite3"]; ok && db.DSN != "" && db.DSN != ":memory:" && !filepath.IsAbs(db.DSN) {
		db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
		cfg.Databases["sqlite3"] = db
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if driver := strings.TrimSpace(os.Getenv(EnvStorage)); driver != "" {
		c.Storage.Driver = driver
	}
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		if c.Providers == nil {
			c.Providers = make(map[string]ProviderConfig)
		}
		provider := c.Model.Provider
		if provider == "" {
			provider = DefaultProvider
		}
		p := c.Providers[provider]
		if p.APIKey == "" {
			p.APIKey = key
		}
		c.Providers[provider] = p
	}
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = DefaultServerAddress
	}
	if c.BasicConfig.DefaultLanguage == "" {
		c.BasicConfig.DefaultLanguage = DefaultLanguage
	}
	if c.BasicConfig.LogLevel == "" {
		c.BasicConfig.LogLevel = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorage
	}
	if c.Model.Provider == "" {
		c.Model.Provider = DefaultProvider
	}
	if c.Model.Temperature <= 0 {
		c.Model.Temperature = DefaultTemperature
	}
	if c.Worker.MaxWorkers <= 0 {
		c.Worker.MaxWorkers = DefaultMaxWorkers
	}
	if c.Worker.QueueSize <= 0 {
		c.Worker.QueueSize = DefaultQueueSize
	}
	if c.Worker.IdleTimeout <= 0 {
		c.Worker.IdleTimeout = DefaultWorkerIdle
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	if p, ok := c.Providers[DefaultProvider]; ok && p.Model == "" {
		p.Model = DefaultGeminiModel
		c.Providers[DefaultProvider] = p
	}
}

// Provider returns the settings of the configured consultation provider.
func (c *Config) Provider() (string, ProviderConfig) {
	name := c.Model.Provider
	p := c.Providers[name]
	if name == DefaultProvider && p.Model == "" {
		p.Model = DefaultGeminiModel
	}
	return name, p
}

// RedisEnabled reports whether a redis server is configured, either as the
// storage backend or for cross-process invalidation.
func (c *Config) RedisEnabled() bool {
	return c.Storage.Driver == "redis" || c.Redis.Host != ""
}
