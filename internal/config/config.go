// Package config provides YAML-based configuration loading for locallm.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/zulandar/locallm/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is used when no global system_prompt setting exists.
const DefaultSystemPrompt = "You are a helpful AI assistant."

// DefaultWelcomeMessage is posted as the first assistant message of an
// explicitly created conversation.
const DefaultWelcomeMessage = "Welcome! I'm your AI assistant. How can I help you today?"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LOCALLM_"

// Config is the top-level locallm configuration, loaded from locallm.yaml.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Generation GenerationConfig `yaml:"generation"`
	Settings   SettingsConfig   `yaml:"settings"`
	Redis      RedisConfig      `yaml:"redis"`
	Retention  RetentionConfig  `yaml:"retention"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig selects and addresses the relational store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite, mysql, postgres
	DSN      string `yaml:"dsn"`    // overrides the discrete fields below
	Path     string `yaml:"path"`   // sqlite only
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"` // postgres only

	RetryAttempts        int           `yaml:"retry_attempts"`
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval"`
}

// GenerationConfig configures the model backend and the default parameters
// used when neither the request nor a setting supplies one.
type GenerationConfig struct {
	Backend           string        `yaml:"backend"` // disabled, openai
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	ModelType         string        `yaml:"model_type"`
	ModelName         string        `yaml:"model_name"`
	ImageModel        string        `yaml:"image_model"`
	MaxLength         int           `yaml:"max_length"`
	Temperature       float64       `yaml:"temperature"`
	TopP              float64       `yaml:"top_p"`
	TopK              int           `yaml:"top_k"`
	RepetitionPenalty float64       `yaml:"repetition_penalty"`
	Timeout           time.Duration `yaml:"timeout"`
}

// SettingsConfig holds defaults for the settings subsystem.
type SettingsConfig struct {
	DefaultSystemPrompt string `yaml:"default_system_prompt"`
	WelcomeMessage      string `yaml:"welcome_message"`
	SeedSystemPrompt    bool   `yaml:"seed_system_prompt"`
}

// RedisConfig enables cross-instance cache invalidation when Address is set.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

// RetentionConfig enables the conversation sweeper when Schedule is set.
type RetentionConfig struct {
	Schedule   string `yaml:"schedule"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LogConfig selects the logger mode.
type LogConfig struct {
	Mode string `yaml:"mode"`
}

// Load reads a YAML config file from path, applies a sibling .env file and
// LOCALLM_* environment overrides, and returns a validated Config. An empty
// path yields defaults plus environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	envFile := ".env"
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envFile, err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return finish(&cfg)
}

// Parse unmarshals YAML bytes into a validated Config. The environment is
// not consulted.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// applyEnv overlays LOCALLM_* variables onto the parsed file.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("SERVER_HOST", &c.Server.Host)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_DSN", &c.Database.DSN)
	str("DB_PATH", &c.Database.Path)
	str("DB_HOST", &c.Database.Host)
	str("DB_NAME", &c.Database.Name)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("BACKEND", &c.Generation.Backend)
	str("BACKEND_URL", &c.Generation.BaseURL)
	str("BACKEND_API_KEY", &c.Generation.APIKey)
	str("MODEL_NAME", &c.Generation.ModelName)
	str("REDIS_ADDRESS", &c.Redis.Address)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("LOG_MODE", &c.Log.Mode)

	var errs []string
	num := func(name string, dst *int) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s%s must be an integer, got %q", EnvPrefix, name, v))
			return
		}
		*dst = n
	}
	num("SERVER_PORT", &c.Server.Port)
	num("DB_PORT", &c.Database.Port)
	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			c.Database.Path = "locallm.db"
		}
	case "mysql":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
	case "postgres":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	}
	if c.Database.Name == "" {
		c.Database.Name = "locallm"
	}
	if c.Database.RetryAttempts == 0 {
		c.Database.RetryAttempts = 3
	}
	if c.Database.RetryInitialInterval == 0 {
		c.Database.RetryInitialInterval = 100 * time.Millisecond
	}

	g := &c.Generation
	if g.Backend == "" {
		g.Backend = "disabled"
	}
	if g.ModelType == "" {
		g.ModelType = string(models.ModelTypeText)
	}
	if g.ModelName == "" {
		g.ModelName = "falcon-40b-instruct"
	}
	if g.ImageModel == "" {
		g.ImageModel = "stable-diffusion-v1"
	}
	if g.MaxLength == 0 {
		g.MaxLength = 1000
	}
	if g.Temperature == 0 {
		g.Temperature = 0.7
	}
	if g.TopP == 0 {
		g.TopP = 0.9
	}
	if g.TopK == 0 {
		g.TopK = 50
	}
	if g.RepetitionPenalty == 0 {
		g.RepetitionPenalty = 1.1
	}
	if g.Timeout == 0 {
		g.Timeout = 120 * time.Second
	}

	if c.Settings.DefaultSystemPrompt == "" {
		c.Settings.DefaultSystemPrompt = DefaultSystemPrompt
	}
	if c.Settings.WelcomeMessage == "" {
		c.Settings.WelcomeMessage = DefaultWelcomeMessage
	}

	if c.Redis.Channel == "" {
		c.Redis.Channel = "locallm:settings"
	}
	if c.Retention.Schedule != "" && c.Retention.MaxAgeDays == 0 {
		c.Retention.MaxAgeDays = 90
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "development"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be one of sqlite, mysql, postgres", c.Database.Driver))
	}
	if c.Database.RetryAttempts < 1 {
		errs = append(errs, "database.retry_attempts must be at least 1")
	}

	g := c.Generation
	switch g.Backend {
	case "disabled":
	case "openai":
		if g.BaseURL == "" && g.APIKey == "" {
			errs = append(errs, "generation.base_url or generation.api_key is required for the openai backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("generation.backend %q must be one of disabled, openai", g.Backend))
	}
	mt := models.ModelType(g.ModelType)
	if mt != models.ModelTypeText && mt != models.ModelTypeImage {
		errs = append(errs, fmt.Sprintf("generation.model_type %q must be text or image", g.ModelType))
	} else if !models.SupportedModel(mt, g.ModelName) {
		errs = append(errs, fmt.Sprintf("generation.model_name %q is not a supported %s model", g.ModelName, g.ModelType))
	}
	if !models.SupportedModel(models.ModelTypeImage, g.ImageModel) {
		errs = append(errs, fmt.Sprintf("generation.image_model %q is not a supported image model", g.ImageModel))
	}
	if g.MaxLength < 10 || g.MaxLength > 5000 {
		errs = append(errs, fmt.Sprintf("generation.max_length %d must be between 10 and 5000", g.MaxLength))
	}

	if c.Retention.Schedule != "" {
		if _, err := cron.ParseStandard(c.Retention.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("retention.schedule %q: %v", c.Retention.Schedule, err))
		}
	}
	if c.Retention.MaxAgeDays < 0 {
		errs = append(errs, "retention.max_age_days must not be negative")
	}
	switch c.Log.Mode {
	case "development", "production":
	default:
		errs = append(errs, fmt.Sprintf("log.mode %q must be development or production", c.Log.Mode))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
