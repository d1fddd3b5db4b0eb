package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

const DefaultPath = "config.yaml"

type Config struct {
	Server struct {
		Port int `yaml:"port"`
		// client name -> key; empty disables auth
		APIKeys map[string]string `yaml:"api_keys"`
		// requests per second per client; zero disables the limiter
		RateLimit float64  `yaml:"rate_limit"`
		Burst     int      `yaml:"burst"`
		CORS      []string `yaml:"cors_origins"`
	} `yaml:"server"`

	OpenAI struct {
		APIKey           string        `yaml:"api_key"`
		BaseURL          string        `yaml:"base_url"`
		Model            string        `yaml:"model"`
		Temperature      float32       `yaml:"temperature"`
		ReasoningEffort  string        `yaml:"reasoning_effort"`
		MaxTokens        int           `yaml:"max_tokens"`
		CompletionWindow string        `yaml:"completion_window"`
		RequestTimeout   time.Duration `yaml:"request_timeout"`
	} `yaml:"openai"`

	Store struct {
		Driver  string `yaml:"driver"`
		DataDir string `yaml:"data_dir"`
		// sqlite database file; defaults to {data_dir}/batch.db
		Path     string `yaml:"path"`
		DSN      string `yaml:"dsn"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"store"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
		Prefix     string `yaml:"prefix"`
	} `yaml:"minio"`

	Items struct {
		Inventory string `yaml:"inventory"`
	} `yaml:"items"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// Load baca .env lalu file config. A missing config file is not an error;
// defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("BATCH_DATA_DIR"); v != "" {
		c.Store.DataDir = v
	}
	if v := os.Getenv("BATCH_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Burst == 0 {
		c.Server.Burst = 10
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "file"
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = "data"
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.Store.DataDir, "batch.db")
	}
	if c.OpenAI.RequestTimeout == 0 {
		c.OpenAI.RequestTimeout = 2 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "file", "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	if c.OpenAI.RequestTimeout < 0 {
		return fmt.Errorf("openai.request_timeout: must not be negative")
	}
	if c.Minio.Enabled && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		return fmt.Errorf("minio: endpoint and bucketName are required when enabled")
	}
	return nil
}

// ModelConfig resolves the default model settings for new jobs.
func (c *Config) ModelConfig() domain.ModelConfig {
	o := c.OpenAI
	return domain.NewModelConfig(o.Model, o.Temperature, o.ReasoningEffort, o.MaxTokens, o.CompletionWindow)
}

func (c *Config) JobsDir() string    { return filepath.Join(c.Store.DataDir, "jobs") }
func (c *Config) InputsDir() string  { return filepath.Join(c.Store.DataDir, "inputs") }
func (c *Config) OutputsDir() string { return filepath.Join(c.Store.DataDir, "outputs") }
func (c *Config) ResultsDir() string { return filepath.Join(c.Store.DataDir, "results") }

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	if c.Store.DSN != "" {
		return c.Store.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Store.User,
		c.Store.Password,
		c.Store.Host,
		c.Store.Port,
		c.Store.Name,
	)
}

// PostgresDSN builds a lib/pq keyword/value connection string.
func (c *Config) PostgresDSN() string {
	if c.Store.DSN != "" {
		return c.Store.DSN
	}
	parts := []string{
		"host=" + c.Store.Host,
		fmt.Sprintf("port=%d", c.Store.Port),
		"user=" + c.Store.User,
		"password=" + c.Store.Password,
		"dbname=" + c.Store.Name,
		"sslmode=disable",
	}
	return strings.Join(parts, " ")
}
