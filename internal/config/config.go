// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	LLM() LLMRouterConfig
	Browser() BrowserConfig
	Agent() AgentConfig
	Extractor() ExtractorConfig
	Store() StoreConfig
	Engine() EngineConfig
	Metrics() MetricsConfig
	Sites() SitesConfig

	// Setters used by CLI flag overrides.
	SetBrowserHeadless(bool)
	SetAgentManualLogin(bool)
	SetEngineConcurrency(int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	LLMCfg       LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	AgentCfg     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	ExtractorCfg ExtractorConfig `mapstructure:"extractor" yaml:"extractor"`
	StoreCfg     StoreConfig     `mapstructure:"store" yaml:"store"`
	EngineCfg    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	MetricsCfg   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	SitesCfg     SitesConfig     `mapstructure:"sites" yaml:"sites"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) LLM() LLMRouterConfig       { return c.LLMCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Agent() AgentConfig         { return c.AgentCfg }
func (c *Config) Extractor() ExtractorConfig { return c.ExtractorCfg }
func (c *Config) Store() StoreConfig         { return c.StoreCfg }
func (c *Config) Engine() EngineConfig       { return c.EngineCfg }
func (c *Config) Metrics() MetricsConfig     { return c.MetricsCfg }
func (c *Config) Sites() SitesConfig         { return c.SitesCfg }

func (c *Config) SetBrowserHeadless(b bool)  { c.BrowserCfg.Headless = b }
func (c *Config) SetAgentManualLogin(b bool) { c.AgentCfg.ManualLogin = b }
func (c *Config) SetEngineConcurrency(n int) { c.EngineCfg.Concurrency = n }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for the console level encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini     LLMProvider = "gemini"
	ProviderOpenAI     LLMProvider = "openai"
	ProviderOpenRouter LLMProvider = "openrouter"
)

// LLMRouterConfig configures the model routing logic. The planner uses the
// powerful tier, the extractor the fast one.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// MaxElapsed bounds the transport retry loop for one call.
	MaxElapsed time.Duration `mapstructure:"max_elapsed" yaml:"max_elapsed"`
}

// BrowserConfig holds settings for the chromedp browser processes.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	DisableCache      bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// TextDigestLimit caps the visible text captured in a page snapshot.
	TextDigestLimit int `mapstructure:"text_digest_limit" yaml:"text_digest_limit"`
}

// AgentConfig tunes the plan/execute/extract pipeline.
type AgentConfig struct {
	MaxPlanRetries    int           `mapstructure:"max_plan_retries" yaml:"max_plan_retries"`
	MaxStepRetries    int           `mapstructure:"max_step_retries" yaml:"max_step_retries"`
	MaxTotalRetries   int           `mapstructure:"max_total_retries" yaml:"max_total_retries"`
	MaxExtractRetries int           `mapstructure:"max_extract_retries" yaml:"max_extract_retries"`
	MaxSteps          int           `mapstructure:"max_steps" yaml:"max_steps"`
	StepTimeout       time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	BackoffInitial    time.Duration `mapstructure:"backoff_initial" yaml:"backoff_initial"`
	BackoffMax        time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`
	StepsPerSecond    float64       `mapstructure:"steps_per_second" yaml:"steps_per_second"`
	ReplanLogEntries  int           `mapstructure:"replan_log_entries" yaml:"replan_log_entries"`
	RequireExtract    bool          `mapstructure:"require_extract" yaml:"require_extract"`
	ManualLogin       bool          `mapstructure:"manual_login" yaml:"manual_login"`
	LoginTimeout      time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
	LoginPoll         time.Duration `mapstructure:"login_poll" yaml:"login_poll"`
}

// ExtractorConfig tunes normalization of extracted fragments.
type ExtractorConfig struct {
	MaxItems        int     `mapstructure:"max_items" yaml:"max_items"`
	DedupeThreshold float64 `mapstructure:"dedupe_threshold" yaml:"dedupe_threshold"`
	MaxFragmentText int     `mapstructure:"max_fragment_text" yaml:"max_fragment_text"`
}

// Store backends.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// StoreConfig selects and configures the session credential store.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend" yaml:"backend"`
	Dir      string         `mapstructure:"dir" yaml:"dir"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// RedisConfig holds the redis connection details.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr" yaml:"addr"`
	Password  string        `mapstructure:"password" yaml:"-"`
	DB        int           `mapstructure:"db" yaml:"db"`
	KeyPrefix string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// EngineConfig configures the batch runner.
type EngineConfig struct {
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	TaskTimeout time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// SitesConfig points at additional site profile definitions.
type SitesConfig struct {
	ProfilesFile string `mapstructure:"profiles_file" yaml:"profiles_file"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "feedpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "flash")
	v.SetDefault("llm.default_powerful_model", "pro")
	v.SetDefault("llm.models.flash.provider", string(ProviderGemini))
	v.SetDefault("llm.models.flash.model", "gemini-2.5-flash")
	v.SetDefault("llm.models.flash.api_timeout", "60s")
	v.SetDefault("llm.models.flash.temperature", 0.1)
	v.SetDefault("llm.models.flash.max_elapsed", "2m")
	v.SetDefault("llm.models.pro.provider", string(ProviderGemini))
	v.SetDefault("llm.models.pro.model", "gemini-2.5-pro")
	v.SetDefault("llm.models.pro.api_timeout", "90s")
	v.SetDefault("llm.models.pro.temperature", 0.2)
	v.SetDefault("llm.models.pro.max_elapsed", "2m")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.viewport", map[string]int{"width": 1366, "height": 900})
	v.SetDefault("browser.text_digest_limit", 2000)

	// -- Agent --
	v.SetDefault("agent.max_plan_retries", 2)
	v.SetDefault("agent.max_step_retries", 2)
	v.SetDefault("agent.max_total_retries", 3)
	v.SetDefault("agent.max_extract_retries", 2)
	v.SetDefault("agent.max_steps", 15)
	v.SetDefault("agent.step_timeout", "5s")
	v.SetDefault("agent.backoff_initial", "500ms")
	v.SetDefault("agent.backoff_max", "5s")
	v.SetDefault("agent.steps_per_second", 2.0)
	v.SetDefault("agent.replan_log_entries", 3)
	v.SetDefault("agent.require_extract", true)
	v.SetDefault("agent.manual_login", false)
	v.SetDefault("agent.login_timeout", "300s")
	v.SetDefault("agent.login_poll", "2s")

	// -- Extractor --
	v.SetDefault("extractor.max_items", 50)
	v.SetDefault("extractor.dedupe_threshold", 0.1)
	v.SetDefault("extractor.max_fragment_text", 600)

	// -- Store --
	v.SetDefault("store.backend", StoreFile)
	v.SetDefault("store.dir", "~/.feedpilot/cookies")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.key_prefix", "feedpilot:credentials:")

	// -- Engine --
	v.SetDefault("engine.concurrency", 3)
	v.SetDefault("engine.task_timeout", "10m")

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")
	v.SetDefault("metrics.namespace", "feedpilot")

	// -- Sites --
	v.SetDefault("sites.profiles_file", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets are commonly provided without the nested key path.
	v.BindEnv("store.database.url", "FEEDPILOT_DATABASE_URL")
	v.BindEnv("store.redis.password", "FEEDPILOT_REDIS_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.resolveAPIKeys()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// resolveAPIKeys fills empty model keys from the provider's conventional
// environment variable.
func (c *Config) resolveAPIKeys() {
	for name, m := range c.LLMCfg.Models {
		if m.APIKey != "" {
			continue
		}
		switch m.Provider {
		case ProviderGemini:
			m.APIKey = os.Getenv("GEMINI_API_KEY")
		case ProviderOpenAI:
			m.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderOpenRouter:
			m.APIKey = os.Getenv("OPENROUTER_API_KEY")
		}
		c.LLMCfg.Models[name] = m
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	a := c.AgentCfg
	if a.MaxPlanRetries < 0 {
		return fmt.Errorf("agent.max_plan_retries must not be negative")
	}
	if a.MaxStepRetries < 0 {
		return fmt.Errorf("agent.max_step_retries must not be negative")
	}
	if a.MaxTotalRetries <= 0 {
		return fmt.Errorf("agent.max_total_retries must be a positive integer")
	}
	if a.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if a.StepTimeout <= 0 {
		return fmt.Errorf("agent.step_timeout must be a positive duration")
	}
	if a.ManualLogin && c.BrowserCfg.Headless {
		return fmt.Errorf("agent.manual_login requires browser.headless to be false")
	}
	if c.EngineCfg.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency must be a positive integer")
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the store backend selection.
func (s *StoreConfig) Validate() error {
	switch s.Backend {
	case StoreFile:
		if s.Dir == "" {
			return fmt.Errorf("dir is required for the file backend")
		}
	case StorePostgres:
		if s.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres backend")
		}
	case StoreRedis:
		if s.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown backend '%s'. Supported: [%s, %s, %s, %s]",
			s.Backend, StoreFile, StorePostgres, StoreRedis, StoreMemory)
	}
	return nil
}

// Validate checks that both tiers point at a configured model.
func (l *LLMRouterConfig) Validate() error {
	for _, name := range []string{l.DefaultFastModel, l.DefaultPowerfulModel} {
		if _, ok := l.Models[name]; !ok {
			return fmt.Errorf("default model '%s' is not defined under llm.models", name)
		}
	}
	return nil
}
