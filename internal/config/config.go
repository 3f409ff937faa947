// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration object for the agent. Every empirically
// tuned threshold (visibility minimums, keyword lists, retry counts, the step
// budget) lives here rather than as a hardcoded constant, because none of
// them are protocol guarantees and all of them vary across sites.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Humanoid  HumanoidConfig  `mapstructure:"humanoid" yaml:"humanoid"`
	Grounding GroundingConfig `mapstructure:"grounding" yaml:"grounding"`
	Resolver  ResolverConfig  `mapstructure:"resolver" yaml:"resolver"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Memory    MemoryConfig    `mapstructure:"memory" yaml:"memory"`
	Worker    WorkerConfig    `mapstructure:"worker" yaml:"worker"`
}

// LoggerConfig controls log output, format and rotation.
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

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	// ConfirmActions gates every outward browser call behind an interactive
	// confirmation decorator. Debugging aid, off by default.
	ConfirmActions bool `mapstructure:"confirm_actions" yaml:"confirm_actions"`
}

// HumanoidConfig tunes the humanlike input synthesis.
type HumanoidConfig struct {
	Enabled          bool    `mapstructure:"enabled" yaml:"enabled"`
	FittsA           float64 `mapstructure:"fitts_a" yaml:"fitts_a"`
	FittsB           float64 `mapstructure:"fitts_b" yaml:"fitts_b"`
	GaussianJitterPx float64 `mapstructure:"gaussian_jitter_px" yaml:"gaussian_jitter_px"`
	PerlinAmplitude  float64 `mapstructure:"perlin_amplitude" yaml:"perlin_amplitude"`
	TypoRate         float64 `mapstructure:"typo_rate" yaml:"typo_rate"`
	KeyPauseMeanMs   float64 `mapstructure:"key_pause_mean_ms" yaml:"key_pause_mean_ms"`
	KeyPauseStdDevMs float64 `mapstructure:"key_pause_stddev_ms" yaml:"key_pause_stddev_ms"`
	ClickHoldMinMs   int     `mapstructure:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs   int     `mapstructure:"click_hold_max_ms" yaml:"click_hold_max_ms"`
}

// GroundingConfig bounds the page scan.
type GroundingConfig struct {
	MinSizePx     float64 `mapstructure:"min_size_px" yaml:"min_size_px"`
	MaxElements   int     `mapstructure:"max_elements" yaml:"max_elements"`
	MaxCandidates int     `mapstructure:"max_candidates" yaml:"max_candidates"`
	LabelMaxChars int     `mapstructure:"label_max_chars" yaml:"label_max_chars"`
	RasterEnabled bool    `mapstructure:"raster_enabled" yaml:"raster_enabled"`
	RasterDir     string  `mapstructure:"raster_dir" yaml:"raster_dir"`
	// PageTextMaxBytes caps the simplified markdown view fed to the planner.
	PageTextMaxBytes int `mapstructure:"page_text_max_bytes" yaml:"page_text_max_bytes"`
}

// ResolverConfig tunes target resolution and the pre-action guards.
type ResolverConfig struct {
	IDTimeout     time.Duration `mapstructure:"id_timeout" yaml:"id_timeout"`
	TextTimeout   time.Duration `mapstructure:"text_timeout" yaml:"text_timeout"`
	VisionTimeout time.Duration `mapstructure:"vision_timeout" yaml:"vision_timeout"`
	SearchEngine  string        `mapstructure:"search_engine" yaml:"search_engine"`
	ScrollDelta   float64       `mapstructure:"scroll_delta" yaml:"scroll_delta"`
	// CaptchaKeywords are matched case-insensitively against the window title.
	CaptchaKeywords []string `mapstructure:"captcha_keywords" yaml:"captcha_keywords"`
	// ChallengeURLParts identify known challenge iframes by URL substring.
	ChallengeURLParts []string `mapstructure:"challenge_url_parts" yaml:"challenge_url_parts"`
	// PopupSelectors are tried in order when dismissing cookie banners.
	PopupSelectors      []string      `mapstructure:"popup_selectors" yaml:"popup_selectors"`
	CaptchaPause        time.Duration `mapstructure:"captcha_pause" yaml:"captcha_pause"`
	PressEnterAfterType bool          `mapstructure:"press_enter_after_type" yaml:"press_enter_after_type"`
	// ExtractTextMaxBytes caps the page text consulted when an extract step
	// has no catalog target.
	ExtractTextMaxBytes int `mapstructure:"extract_text_max_bytes" yaml:"extract_text_max_bytes"`
}

// AgentConfig drives the control loop.
type AgentConfig struct {
	MaxSteps        int  `mapstructure:"max_steps" yaml:"max_steps"`
	HistoryWindow   int  `mapstructure:"history_window" yaml:"history_window"`
	CycleWindow     int  `mapstructure:"cycle_window" yaml:"cycle_window"`
	CritiqueEnabled bool `mapstructure:"critique_enabled" yaml:"critique_enabled"`
	// HintOnCritical pauses for an out-of-band operator hint when the same
	// step keeps failing, instead of immediately replanning.
	HintOnCritical bool `mapstructure:"hint_on_critical" yaml:"hint_on_critical"`
	// Element-count bounds outside which the loop also fetches the simplified
	// page-text view during state capture.
	LowElementCount  int `mapstructure:"low_element_count" yaml:"low_element_count"`
	HighElementCount int `mapstructure:"high_element_count" yaml:"high_element_count"`
	PlannerRetries   int `mapstructure:"planner_retries" yaml:"planner_retries"`
}

// LLMConfig configures the Gemini-backed planner and vision oracle clients.
type LLMConfig struct {
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	PlannerModel      string        `mapstructure:"planner_model" yaml:"planner_model"`
	VisionModel       string        `mapstructure:"vision_model" yaml:"vision_model"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxRetries        uint64        `mapstructure:"max_retries" yaml:"max_retries"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// MemoryConfig locates the experience store and tunes similarity retrieval.
type MemoryConfig struct {
	Path            string  `mapstructure:"path" yaml:"path"`
	DomainThreshold float64 `mapstructure:"domain_threshold" yaml:"domain_threshold"`
	GlobalThreshold float64 `mapstructure:"global_threshold" yaml:"global_threshold"`
}

// WorkerConfig sizes the single-worker task queue.
type WorkerConfig struct {
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "sirius")
	v.SetDefault("logger.log_file", "sirius.log")
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
	v.SetDefault("logger.colors.fatal", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.confirm_actions", false)

	// -- Humanoid --
	v.SetDefault("humanoid.enabled", true)
	v.SetDefault("humanoid.fitts_a", 100.0)
	v.SetDefault("humanoid.fitts_b", 120.0)
	v.SetDefault("humanoid.gaussian_jitter_px", 0.6)
	v.SetDefault("humanoid.perlin_amplitude", 2.5)
	v.SetDefault("humanoid.typo_rate", 0.04)
	v.SetDefault("humanoid.key_pause_mean_ms", 70.0)
	v.SetDefault("humanoid.key_pause_stddev_ms", 28.0)
	v.SetDefault("humanoid.click_hold_min_ms", 50)
	v.SetDefault("humanoid.click_hold_max_ms", 120)

	// -- Grounding --
	v.SetDefault("grounding.min_size_px", 12.0)
	v.SetDefault("grounding.max_elements", 400)
	v.SetDefault("grounding.max_candidates", 2000)
	v.SetDefault("grounding.label_max_chars", 80)
	v.SetDefault("grounding.raster_enabled", true)
	v.SetDefault("grounding.raster_dir", "snapshots")
	v.SetDefault("grounding.page_text_max_bytes", 24576)

	// -- Resolver --
	v.SetDefault("resolver.id_timeout", "5s")
	v.SetDefault("resolver.text_timeout", "8s")
	v.SetDefault("resolver.vision_timeout", "45s")
	v.SetDefault("resolver.search_engine", "https://duckduckgo.com/?q=")
	v.SetDefault("resolver.scroll_delta", 500.0)
	v.SetDefault("resolver.captcha_keywords", []string{
		"captcha", "are you a robot", "just a moment", "attention required",
		"verify you are human", "access denied",
	})
	v.SetDefault("resolver.challenge_url_parts", []string{
		"recaptcha", "hcaptcha", "challenges.cloudflare.com", "arkoselabs",
	})
	v.SetDefault("resolver.popup_selectors", []string{
		`button[id*="accept" i]`,
		`button[class*="accept" i]`,
		`button[id*="consent" i]`,
		`button[class*="consent" i]`,
		`button[id*="agree" i]`,
		`[aria-label*="accept" i]`,
		`[aria-label*="close" i]`,
		`button[class*="cookie" i]`,
	})
	v.SetDefault("resolver.captcha_pause", "20s")
	v.SetDefault("resolver.press_enter_after_type", true)
	v.SetDefault("resolver.extract_text_max_bytes", 4096)

	// -- Agent --
	v.SetDefault("agent.max_steps", 20)
	v.SetDefault("agent.history_window", 6)
	v.SetDefault("agent.cycle_window", 3)
	v.SetDefault("agent.critique_enabled", true)
	v.SetDefault("agent.hint_on_critical", false)
	v.SetDefault("agent.low_element_count", 5)
	v.SetDefault("agent.high_element_count", 300)
	v.SetDefault("agent.planner_retries", 3)

	// -- LLM --
	v.SetDefault("llm.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("llm.planner_model", "gemini-2.5-flash")
	v.SetDefault("llm.vision_model", "gemini-2.5-pro")
	v.SetDefault("llm.api_timeout", "90s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.requests_per_minute", 30.0)

	// -- Memory --
	v.SetDefault("memory.path", "sirius.db")
	v.SetDefault("memory.domain_threshold", 0.5)
	v.SetDefault("memory.global_threshold", 0.6)

	// -- Worker --
	v.SetDefault("worker.queue_size", 32)
}

// Load reads configuration from an optional file plus SIRIUS_* environment
// variables, layered over the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("SIRIUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("llm.api_key", "SIRIUS_LLM_API_KEY", "GEMINI_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %q: %w", path, err)
		}
	}

	return NewConfigFromViper(v)
}

// NewConfigFromViper unmarshals and validates a fully layered viper instance.
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

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.Agent.CycleWindow < 3 {
		return fmt.Errorf("agent.cycle_window must be at least 3")
	}
	if c.Grounding.MaxElements <= 0 || c.Grounding.MaxCandidates <= 0 {
		return fmt.Errorf("grounding caps must be positive")
	}
	if c.Grounding.MinSizePx <= 0 {
		return fmt.Errorf("grounding.min_size_px must be positive")
	}
	if c.Memory.DomainThreshold <= 0 || c.Memory.DomainThreshold > 1 ||
		c.Memory.GlobalThreshold <= 0 || c.Memory.GlobalThreshold > 1 {
		return fmt.Errorf("memory thresholds must be in (0, 1]")
	}
	if c.Worker.QueueSize <= 0 {
		return fmt.Errorf("worker.queue_size must be a positive integer")
	}
	if c.Humanoid.ClickHoldMaxMs <= c.Humanoid.ClickHoldMinMs {
		c.Humanoid.ClickHoldMaxMs = c.Humanoid.ClickHoldMinMs + 1
	}
	return nil
}
