package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration
type Config struct {
	Logger       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	Browser      BrowserConfig      `mapstructure:"browser" yaml:"browser"`
	Agent        AgentConfig        `mapstructure:"agent" yaml:"agent"`
	Budget       BudgetConfig       `mapstructure:"budget" yaml:"budget"`
	Fill         FillConfig         `mapstructure:"fill" yaml:"fill"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Matcher      MatcherConfig      `mapstructure:"matcher" yaml:"matcher"`
	Trail        TrailConfig        `mapstructure:"trail" yaml:"trail"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
	Resume       ResumeConfig       `mapstructure:"resume" yaml:"resume"`
}

// LoggerConfig configures zap output
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"` // console or json
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig configures the rod browser session
type BrowserConfig struct {
	Width             int           `mapstructure:"width" yaml:"width"`
	Height            int           `mapstructure:"height" yaml:"height"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ProfileDir        string        `mapstructure:"profile_dir" yaml:"profile_dir"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	KeepOpen          bool          `mapstructure:"keep_open" yaml:"keep_open"`
}

// ModelConfig selects a provider and model for one agent tier
type ModelConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model"`
}

// AgentConfig configures the three agent tiers and their shared limits
type AgentConfig struct {
	Primary          ModelConfig   `mapstructure:"primary" yaml:"primary"`
	Cheap            ModelConfig   `mapstructure:"cheap" yaml:"cheap"` // empty provider disables per-field mode
	Escalation       ModelConfig   `mapstructure:"escalation" yaml:"escalation"`
	MinCallGap       time.Duration `mapstructure:"min_call_gap" yaml:"min_call_gap"`
	ActionTimeout    time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff" yaml:"rate_limit_backoff"`
	MaxActions       int           `mapstructure:"max_actions" yaml:"max_actions"`
	MaxActionsPerAct int           `mapstructure:"max_actions_per_act" yaml:"max_actions_per_act"`
	MaxPageTokens    int           `mapstructure:"max_page_tokens" yaml:"max_page_tokens"`
	MaxElements      int           `mapstructure:"max_elements" yaml:"max_elements"`
	ScreenshotWidth  uint          `mapstructure:"screenshot_width" yaml:"screenshot_width"`
}

// BudgetConfig holds the dollar budget for one application run
type BudgetConfig struct {
	TaskBudget float64                 `mapstructure:"task_budget" yaml:"task_budget"`
	Pricing    map[string]ModelPricing `mapstructure:"pricing" yaml:"pricing"`
}

// ModelPricing is dollars per million tokens
type ModelPricing struct {
	Input  float64 `mapstructure:"input" yaml:"input"`
	Output float64 `mapstructure:"output" yaml:"output"`
}

// FillConfig bounds the fill pipeline and the navigation advancer
type FillConfig struct {
	MaxCycles           int           `mapstructure:"max_cycles" yaml:"max_cycles"`
	MaxConsecutiveNoops int           `mapstructure:"max_consecutive_noops" yaml:"max_consecutive_noops"`
	CleanupAgentCalls   int           `mapstructure:"cleanup_agent_calls" yaml:"cleanup_agent_calls"`
	EscalationSoftCap   float64       `mapstructure:"escalation_soft_cap" yaml:"escalation_soft_cap"`
	MinRemainingBudget  float64       `mapstructure:"min_remaining_budget" yaml:"min_remaining_budget"`
	ScanStepFraction    float64       `mapstructure:"scan_step_fraction" yaml:"scan_step_fraction"`
	BatchStepFraction   float64       `mapstructure:"batch_step_fraction" yaml:"batch_step_fraction"`
	SettleDelay         time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	NavigationGrace     time.Duration `mapstructure:"navigation_grace" yaml:"navigation_grace"`
	MaxRefillDepth      int           `mapstructure:"max_refill_depth" yaml:"max_refill_depth"`
}

// OrchestratorConfig bounds the top-level loop
type OrchestratorConfig struct {
	MaxPages         int           `mapstructure:"max_pages" yaml:"max_pages"`
	StuckThreshold   int           `mapstructure:"stuck_threshold" yaml:"stuck_threshold"`
	ChallengeTimeout time.Duration `mapstructure:"challenge_timeout" yaml:"challenge_timeout"`
	ChallengePoll    time.Duration `mapstructure:"challenge_poll" yaml:"challenge_poll"`
	Platform         string        `mapstructure:"platform" yaml:"platform"`
}

// MatcherConfig exposes the heuristic overlap thresholds
type MatcherConfig struct {
	MinWordOverlap   int `mapstructure:"min_word_overlap" yaml:"min_word_overlap"`
	MinStemOverlap   int `mapstructure:"min_stem_overlap" yaml:"min_stem_overlap"`
	ShortKeyMaxWords int `mapstructure:"short_key_max_words" yaml:"short_key_max_words"`
}

// TrailConfig controls the review trail GIF
type TrailConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir      string `mapstructure:"dir" yaml:"dir"`
	MaxWidth uint   `mapstructure:"max_width" yaml:"max_width"`
	FrameMs  int    `mapstructure:"frame_ms" yaml:"frame_ms"`
}

// MetricsConfig controls the prometheus text-file export
type MetricsConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// ResumeConfig configures where s3:// resumes are fetched from
type ResumeConfig struct {
	Region   string `mapstructure:"region" yaml:"region"`
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir"`
}

// SetDefaults initializes default values for every configuration parameter
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "applypilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 900)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.idle_timeout", "5s")
	v.SetDefault("browser.keep_open", true)

	// -- Agent --
	v.SetDefault("agent.primary.provider", "claude")
	v.SetDefault("agent.primary.model", "")
	v.SetDefault("agent.cheap.provider", "openai")
	v.SetDefault("agent.cheap.model", "gpt-4o-mini")
	v.SetDefault("agent.escalation.provider", "claude")
	v.SetDefault("agent.escalation.model", "claude-opus-4-1-20250805")
	v.SetDefault("agent.min_call_gap", "1200ms")
	v.SetDefault("agent.action_timeout", "60s")
	v.SetDefault("agent.rate_limit_backoff", "10s")
	v.SetDefault("agent.max_actions", 400)
	v.SetDefault("agent.max_actions_per_act", 12)
	v.SetDefault("agent.max_page_tokens", 6000)
	v.SetDefault("agent.max_elements", 150)
	v.SetDefault("agent.screenshot_width", 1024)

	// -- Budget --
	v.SetDefault("budget.task_budget", 1.50)

	// -- Fill --
	v.SetDefault("fill.max_cycles", 5)
	v.SetDefault("fill.max_consecutive_noops", 3)
	v.SetDefault("fill.cleanup_agent_calls", 3)
	v.SetDefault("fill.escalation_soft_cap", 0.25)
	v.SetDefault("fill.min_remaining_budget", 0.05)
	v.SetDefault("fill.scan_step_fraction", 0.7)
	v.SetDefault("fill.batch_step_fraction", 0.9)
	v.SetDefault("fill.settle_delay", "400ms")
	v.SetDefault("fill.navigation_grace", "2s")
	v.SetDefault("fill.max_refill_depth", 1)

	// -- Orchestrator --
	v.SetDefault("orchestrator.max_pages", 25)
	v.SetDefault("orchestrator.stuck_threshold", 3)
	v.SetDefault("orchestrator.challenge_timeout", "5m")
	v.SetDefault("orchestrator.challenge_poll", "5s")
	v.SetDefault("orchestrator.platform", "")

	// -- Matcher --
	v.SetDefault("matcher.min_word_overlap", 2)
	v.SetDefault("matcher.min_stem_overlap", 2)
	v.SetDefault("matcher.short_key_max_words", 1)

	// -- Trail --
	v.SetDefault("trail.enabled", true)
	v.SetDefault("trail.dir", ".")
	v.SetDefault("trail.max_width", 800)
	v.SetDefault("trail.frame_ms", 1500)

	// -- Resume --
	v.SetDefault("resume.region", "us-east-1")
	v.SetDefault("resume.cache_dir", "")
}

// NewDefaultConfig creates a configuration populated with default values
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads the optional config file and APPLYPILOT_* environment overrides on top of
// the defaults. An empty path searches the working directory for applypilot.yaml.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("APPLYPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("applypilot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper creates a new configuration instance from a viper object
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values
func (c *Config) Validate() error {
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser.width and browser.height must be positive")
	}
	if c.Agent.Primary.Provider == "" {
		return fmt.Errorf("agent.primary.provider is required")
	}
	if c.Budget.TaskBudget <= 0 {
		return fmt.Errorf("budget.task_budget must be positive")
	}
	if err := c.Fill.Validate(); err != nil {
		return fmt.Errorf("fill configuration invalid: %w", err)
	}
	if c.Orchestrator.MaxPages <= 0 {
		return fmt.Errorf("orchestrator.max_pages must be a positive integer")
	}
	if c.Orchestrator.StuckThreshold < 2 {
		return fmt.Errorf("orchestrator.stuck_threshold must be at least 2")
	}
	if c.Orchestrator.ChallengePoll <= 0 || c.Orchestrator.ChallengeTimeout < c.Orchestrator.ChallengePoll {
		return fmt.Errorf("orchestrator.challenge_timeout must be at least one challenge_poll")
	}
	if c.Matcher.MinWordOverlap < 1 || c.Matcher.MinStemOverlap < 1 {
		return fmt.Errorf("matcher overlap thresholds must be at least 1")
	}
	return nil
}

// Validate checks the fill pipeline bounds
func (f *FillConfig) Validate() error {
	if f.MaxCycles <= 0 {
		return fmt.Errorf("max_cycles must be a positive integer")
	}
	if f.MaxConsecutiveNoops <= 0 {
		return fmt.Errorf("max_consecutive_noops must be a positive integer")
	}
	if f.EscalationSoftCap <= 0 || f.EscalationSoftCap > 1 {
		return fmt.Errorf("escalation_soft_cap must be in (0, 1]")
	}
	if f.MinRemainingBudget < 0 {
		return fmt.Errorf("min_remaining_budget must not be negative")
	}
	if f.ScanStepFraction <= 0 || f.ScanStepFraction > 1 {
		return fmt.Errorf("scan_step_fraction must be in (0, 1]")
	}
	if f.BatchStepFraction <= 0 || f.BatchStepFraction > 1 {
		return fmt.Errorf("batch_step_fraction must be in (0, 1]")
	}
	if f.MaxRefillDepth < 0 {
		return fmt.Errorf("max_refill_depth must not be negative")
	}
	return nil
}
