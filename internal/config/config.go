// Package config loads server settings from the embedded defaults, an optional YAML file named
// by RFP_CONFIG, and environment overrides, in that order.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/david/rfp-desk/internal/normalize"
)

//go:embed default.yaml
var defaultYAML []byte

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Log      LogConfig      `yaml:"log"`
	Stock    StockConfig    `yaml:"stock"`
	Leads    LeadsConfig    `yaml:"leads"`
	Scan     ScanConfig     `yaml:"scan"`
}

type ServerConfig struct {
	Port                string   `yaml:"port"`
	CORSOrigins         []string `yaml:"cors_origins"`
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type AnalysisConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type LogConfig struct {
	Mode string `yaml:"mode"` // "dev" or "prod"
}

type StockConfig struct {
	// MissingDefault is the stock category of a run that carries no stock signal at all.
	MissingDefault string `yaml:"missing_default"`
}

type LeadsConfig struct {
	ListDays     int `yaml:"list_days"`
	ListLimit    int `yaml:"list_limit"`
	HistoryLimit int `yaml:"history_limit"`
}

type ScanConfig struct {
	DemoFallback   bool           `yaml:"demo_fallback"`
	Parallelism    int            `yaml:"parallelism"`
	TimeoutSeconds int            `yaml:"timeout_seconds"`
	UserAgent      string         `yaml:"user_agent"`
	MaxPDFBytes    int64          `yaml:"max_pdf_bytes"`
	Selectors      SelectorConfig `yaml:"selectors"`
}

// SelectorConfig holds the CSS selectors used on lead source listing pages.
type SelectorConfig struct {
	Container string `yaml:"container"`
	Title     string `yaml:"title"`
	Buyer     string `yaml:"buyer"`
	Deadline  string `yaml:"deadline"`
	Link      string `yaml:"link"`
}

// Load reads configuration using the process environment.
func Load() (*Config, error) {
	return LoadWith(os.Getenv, os.ReadFile)
}

// LoadWith is Load with the environment and file reader supplied by the caller.
func LoadWith(getenv func(string) string, readFile func(string) ([]byte, error)) (*Config, error) {
	var cfg Config
	if err := decode(defaultYAML, getenv, &cfg); err != nil {
		return nil, fmt.Errorf("default config: %w", err)
	}

	if path := strings.TrimSpace(getenv("RFP_CONFIG")); path != "" {
		data, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decode(data, getenv, &cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	applyEnv(&cfg, getenv)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decode expands ${VAR} references before parsing, so secrets can stay out of the file.
func decode(data []byte, getenv func(string) string, cfg *Config) error {
	expanded := os.Expand(string(data), getenv)
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := getenv("N8N_ANALYZE_URL"); v != "" {
		cfg.Analysis.WebhookURL = v
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.CORSOrigins = origins
	}
	if v := getenv("LOG_MODE"); v != "" {
		cfg.Log.Mode = v
	}
	if v := getenv("STOCK_MISSING_DEFAULT"); v != "" {
		cfg.Stock.MissingDefault = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Analysis.TimeoutSeconds <= 0 {
		cfg.Analysis.TimeoutSeconds = 90
	}
	if cfg.Stock.MissingDefault == "" {
		cfg.Stock.MissingDefault = string(normalize.StockHealthy)
	}
	if cfg.Leads.ListDays <= 0 {
		cfg.Leads.ListDays = 30
	}
	if cfg.Leads.ListLimit <= 0 {
		cfg.Leads.ListLimit = 100
	}
	if cfg.Leads.HistoryLimit <= 0 {
		cfg.Leads.HistoryLimit = 100
	}
	if cfg.Scan.Parallelism <= 0 {
		cfg.Scan.Parallelism = 4
	}
	if cfg.Scan.TimeoutSeconds <= 0 {
		cfg.Scan.TimeoutSeconds = 60
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, ok := normalize.ParseStockCategory(c.Stock.MissingDefault); !ok {
		return fmt.Errorf("stock.missing_default: %q is not one of healthy, low, out", c.Stock.MissingDefault)
	}
	return nil
}

// Classifier returns the status classifier configured for this deployment.
func (c *Config) Classifier() normalize.StatusClassifier {
	cat, _ := normalize.ParseStockCategory(c.Stock.MissingDefault)
	return normalize.StatusClassifier{MissingStock: cat}
}

func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.Analysis.TimeoutSeconds) * time.Second
}

func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.Scan.TimeoutSeconds) * time.Second
}
