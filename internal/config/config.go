// Package config loads and validates the discovery engine's runtime
// configuration, and can watch the file for edits so an operator can
// tune budget and concurrency knobs without restarting a batch run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/scoutline/discovery/pkg/budget"
)

// ServerConfig controls the ambient HTTP surface (health/metrics).
type ServerConfig struct {
	MetricsPort string `yaml:"metrics_port"`
	HealthPort  string `yaml:"health_port"`
}

// LLMConfig describes the three-tier cascade backends.
type LLMConfig struct {
	CheapEndpoint     string        `yaml:"cheap_endpoint"`
	CheapModel        string        `yaml:"cheap_model"`
	MidProvider       string        `yaml:"mid_provider"`
	MidModel          string        `yaml:"mid_model"`
	MidAPIKeyEnv      string        `yaml:"mid_api_key_env"`
	ExpensiveProvider string        `yaml:"expensive_provider"`
	ExpensiveModel    string        `yaml:"expensive_model"`
	ExpensiveRegion   string        `yaml:"expensive_region"`
	Timeout           time.Duration `yaml:"timeout"`
	RetryCount        int           `yaml:"retry_count"`
	Temperature       float32       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
}

// SearchConfig controls the search client's engine fallback chain and cache.
type SearchConfig struct {
	Engines    []string      `yaml:"engines"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	RedisAddr  string        `yaml:"redis_addr"`
}

// StoreConfig is the Postgres connection for the durable stores.
type StoreConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// LoggingConfig controls logrus formatting and level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OrchestratorConfig bounds batch-level concurrency.
type OrchestratorConfig struct {
	MaxConcurrentEntities int  `yaml:"max_concurrent_entities"`
	DryRun                bool `yaml:"dry_run"`
}

// Config is the root configuration document.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Budget       budget.Config      `yaml:"budget"`
	LLM          LLMConfig          `yaml:"llm"`
	Search       SearchConfig       `yaml:"search"`
	Store        StoreConfig        `yaml:"store"`
	Logging      LoggingConfig      `yaml:"logging"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// Load reads path, parses YAML, applies environment overrides, fills in
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Budget.MaxIterationsPerEntity == 0 {
		cfg.Budget = budget.DefaultConfig()
	}
	if cfg.Server.MetricsPort == "" {
		cfg.Server.MetricsPort = "9090"
	}
	if cfg.Server.HealthPort == "" {
		cfg.Server.HealthPort = "8080"
	}
	if cfg.LLM.CheapEndpoint == "" {
		cfg.LLM.CheapEndpoint = "http://localhost:8080"
	}
	if cfg.LLM.MidProvider == "" {
		cfg.LLM.MidProvider = "anthropic"
	}
	if cfg.LLM.ExpensiveProvider == "" {
		cfg.LLM.ExpensiveProvider = "bedrock"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 500
	}
	if cfg.Search.CacheTTL == 0 {
		cfg.Search.CacheTTL = 24 * time.Hour
	}
	if cfg.Orchestrator.MaxConcurrentEntities == 0 {
		cfg.Orchestrator.MaxConcurrentEntities = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

var validMidProviders = map[string]bool{"anthropic": true, "localai": true}
var validExpensiveProviders = map[string]bool{"bedrock": true, "localai": true}

func validate(cfg *Config) error {
	if !validMidProviders[cfg.LLM.MidProvider] {
		return fmt.Errorf("unsupported LLM mid-tier provider: %s", cfg.LLM.MidProvider)
	}
	if !validExpensiveProviders[cfg.LLM.ExpensiveProvider] {
		return fmt.Errorf("unsupported LLM expensive-tier provider: %s", cfg.LLM.ExpensiveProvider)
	}
	if cfg.LLM.CheapModel == "" {
		return fmt.Errorf("LLM cheap model is required")
	}
	if cfg.LLM.Temperature < 0.0 || cfg.LLM.Temperature > 1.0 {
		return fmt.Errorf("LLM temperature must be between 0.0 and 1.0")
	}
	if cfg.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM max tokens must be greater than 0")
	}
	if cfg.Store.DSN == "" {
		return fmt.Errorf("store DSN is required")
	}
	if cfg.Orchestrator.MaxConcurrentEntities <= 0 {
		return fmt.Errorf("max concurrent entities must be greater than 0")
	}
	if cfg.Budget.CostCapUSD <= 0 {
		return fmt.Errorf("budget cost cap must be greater than 0")
	}
	return nil
}

func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("SCOUT_LLM_CHEAP_ENDPOINT"); v != "" {
		cfg.LLM.CheapEndpoint = v
	}
	if v := os.Getenv("SCOUT_LLM_CHEAP_MODEL"); v != "" {
		cfg.LLM.CheapModel = v
	}
	if v := os.Getenv("SCOUT_LLM_MID_PROVIDER"); v != "" {
		cfg.LLM.MidProvider = v
	}
	if v := os.Getenv("SCOUT_METRICS_PORT"); v != "" {
		cfg.Server.MetricsPort = v
	}
	if v := os.Getenv("SCOUT_HEALTH_PORT"); v != "" {
		cfg.Server.HealthPort = v
	}
	if v := os.Getenv("SCOUT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCOUT_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("SCOUT_DRY_RUN"); v != "" {
		dryRun, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SCOUT_DRY_RUN value: %w", err)
		}
		cfg.Orchestrator.DryRun = dryRun
	}
	return nil
}

// Watcher reloads Config whenever its source file changes on disk, so an
// operator can adjust budget knobs mid-batch without a restart.
type Watcher struct {
	fsw  *fsnotify.Watcher
	path string
	log  *logrus.Entry
	done chan struct{}
}

// Watch starts watching path's containing directory (editors commonly
// rename-and-replace rather than write in place) and invokes onChange with
// the freshly loaded Config whenever path itself is created or written.
func Watch(path string, onChange func(*Config, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		fsw:  fsw,
		path: path,
		log:  logrus.WithField("component", "config_watcher"),
		done: make(chan struct{}),
	}

	go w.loop(onChange)
	return w, nil
}

func (w *Watcher) loop(onChange func(*Config, error)) {
	target := filepath.Clean(w.path)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.log.WithError(err).Warn("config reload failed, keeping previous config")
			}
			onChange(cfg, err)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("config watcher error")
		}
	}
}

// Close stops the watcher goroutine.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
