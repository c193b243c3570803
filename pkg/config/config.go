// Package config loads the result bot configuration from YAML and the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete bot configuration
type Config struct {
	Telegram     TelegramConfig     `yaml:"telegram" json:"telegram"`
	Site         SiteConfig         `yaml:"site" json:"site"`
	Pool         PoolConfig         `yaml:"pool" json:"pool"`
	Cache        CacheConfig        `yaml:"cache" json:"cache"`
	Conversation ConversationConfig `yaml:"conversation" json:"conversation"`
	LLM          LLMConfig          `yaml:"llm" json:"llm"`
	Logging      LoggingConfig      `yaml:"logging" json:"logging"`
}

// TelegramConfig configures the chat transport
type TelegramConfig struct {
	Token       string `yaml:"token" json:"-"`
	PollTimeout int    `yaml:"poll_timeout" json:"poll_timeout"` // seconds
	Debug       bool   `yaml:"debug" json:"debug"`
}

// SiteConfig describes the target portal: where it lives, which elements the
// workflows drive, and how long each wait may take.
type SiteConfig struct {
	BaseURL      string `yaml:"base_url" json:"base_url"`
	ResultPath   string `yaml:"result_path" json:"result_path"`
	CookieName   string `yaml:"cookie_name" json:"cookie_name"`
	CookieDomain string `yaml:"cookie_domain" json:"cookie_domain"`

	Selectors SelectorConfig `yaml:"selectors" json:"selectors"`

	// Rendered strings the workflows compare against
	WrongCredentialsText string `yaml:"wrong_credentials_text" json:"wrong_credentials_text"`
	NoRecordText         string `yaml:"no_record_text" json:"no_record_text"`

	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	LoginTimeout      time.Duration `yaml:"login_timeout" json:"login_timeout"`
	ResultWait        time.Duration `yaml:"result_wait" json:"result_wait"`
	RenderTimeout     time.Duration `yaml:"render_timeout" json:"render_timeout"`
	SettleDelay       time.Duration `yaml:"settle_delay" json:"settle_delay"`
}

// SelectorConfig holds the CSS selectors of the portal's controls
type SelectorConfig struct {
	Username      string `yaml:"username" json:"username"`
	Password      string `yaml:"password" json:"password"`
	Submit        string `yaml:"submit" json:"submit"`
	LoginMarker   string `yaml:"login_marker" json:"login_marker"`
	LoginMessage  string `yaml:"login_message" json:"login_message"`
	Semester      string `yaml:"semester" json:"semester"`
	ViewResult    string `yaml:"view_result" json:"view_result"`
	ResultMessage string `yaml:"result_message" json:"result_message"`
}

// PoolConfig bounds browser usage
type PoolConfig struct {
	Size           int           `yaml:"size" json:"size"`
	Headless       bool          `yaml:"headless" json:"headless"`
	ViewportWidth  int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height" json:"viewport_height"`
	LaunchArgs     []string      `yaml:"launch_args" json:"launch_args"`
	InstallBrowser bool          `yaml:"install_browser" json:"install_browser"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace" json:"shutdown_grace"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// CacheConfig configures the session cookie cache.
// An empty RedisURL selects the in-process cache.
type CacheConfig struct {
	RedisURL  string        `yaml:"redis_url" json:"-"`
	KeyPrefix string        `yaml:"key_prefix" json:"key_prefix"`
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
	OpTimeout time.Duration `yaml:"op_timeout" json:"op_timeout"`
}

// ConsentMode decides whether a fresh session token is cached without asking.
type ConsentMode string

const (
	// ConsentAuto persists the token right after login
	ConsentAuto ConsentMode = "auto"
	// ConsentAsk asks the user before persisting the token
	ConsentAsk ConsentMode = "ask"
)

// ConversationConfig configures the chat flow
type ConversationConfig struct {
	ConsentMode  ConsentMode `yaml:"consent_mode" json:"consent_mode"`
	Semesters    int         `yaml:"semesters" json:"semesters"`
	AllowedUsers []string    `yaml:"allowed_users" json:"allowed_users"`
}

// LLMConfig configures the commentary generator (any OpenAI-compatible API)
type LLMConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	APIKey         string        `yaml:"api_key" json:"-"`
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	Model          string        `yaml:"model" json:"model"`
	Temperature    float64       `yaml:"temperature" json:"temperature"`
	MaxInputTokens int           `yaml:"max_input_tokens" json:"max_input_tokens"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Dir receives <run-id>-resultbot.log; empty logs to stderr
	Dir string `yaml:"dir" json:"dir"`
	// Level is one of debug, info, warn, error
	Level string `yaml:"level" json:"level"`
}

// DefaultConfig returns a configuration for the JC Bose UST YMCA student portal
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout: 60,
		},
		Site: SiteConfig{
			BaseURL:      "https://jcboseustymca.co.in/",
			ResultPath:   "/Forms/Student/StudentResult.aspx?menuID=119",
			CookieName:   "ASP.NET_SessionId",
			CookieDomain: "jcboseustymca.co.in",
			Selectors: SelectorConfig{
				Username:      `input[name="txtUserName"]`,
				Password:      `input[name="txtPassword"]`,
				Submit:        `input[name="btnSubmit"]`,
				LoginMarker:   "#MenuContainer",
				LoginMessage:  "#lblMessage",
				Semester:      "#ContentPlaceHolderBody_ddlSem",
				ViewResult:    "#ContentPlaceHolderBody_btnResult",
				ResultMessage: "#ContentPlaceHolderBody_lblMessage",
			},
			WrongCredentialsText: "Username or Password are wrong",
			NoRecordText:         "No Record Found",
			NavigationTimeout:    30 * time.Second,
			LoginTimeout:         5 * time.Second,
			ResultWait:           5 * time.Second,
			RenderTimeout:        12 * time.Second,
			SettleDelay:          3 * time.Second,
		},
		Pool: PoolConfig{
			Size:           3,
			Headless:       true,
			ViewportWidth:  1366,
			ViewportHeight: 768,
			LaunchArgs:     []string{"--no-sandbox", "--disable-setuid-sandbox"},
			ShutdownGrace:  30 * time.Second,
			RequestTimeout: 90 * time.Second,
		},
		Cache: CacheConfig{
			KeyPrefix: "session_cookie:",
			TTL:       600 * time.Second,
			OpTimeout: 2 * time.Second,
		},
		Conversation: ConversationConfig{
			ConsentMode:  ConsentAuto,
			Semesters:    8,
			AllowedUsers: []string{"*"},
		},
		LLM: LLMConfig{
			Enabled:        true,
			BaseURL:        "https://api.groq.com/openai/v1",
			Model:          "gemma2-9b-it",
			Temperature:    0.95,
			MaxInputTokens: 3000,
			Timeout:        30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file on top of DefaultConfig and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides secrets and endpoints from the environment.
// Unset variables leave the loaded values untouched.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.Cache.RedisURL = v
	}
	for _, key := range []string{"LLM_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY"} {
		if v := getenv(key); v != "" {
			c.LLM.APIKey = v
			break
		}
	}
	if v := getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}

	if c.Pool.Size <= 0 {
		return fmt.Errorf("pool.size must be positive")
	}
	if c.Pool.ViewportWidth < 100 || c.Pool.ViewportHeight < 100 {
		return fmt.Errorf("pool viewport must be at least 100x100 pixels")
	}
	if c.Pool.ShutdownGrace < 0 {
		return fmt.Errorf("pool.shutdown_grace cannot be negative")
	}
	if c.Pool.RequestTimeout <= 0 {
		return fmt.Errorf("pool.request_timeout must be positive")
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Cache.OpTimeout <= 0 {
		return fmt.Errorf("cache.op_timeout must be positive")
	}

	switch c.Conversation.ConsentMode {
	case ConsentAuto, ConsentAsk:
	default:
		return fmt.Errorf("invalid conversation.consent_mode: %s (must be 'auto' or 'ask')", c.Conversation.ConsentMode)
	}
	if c.Conversation.Semesters < 1 || c.Conversation.Semesters > 99 {
		return fmt.Errorf("conversation.semesters must be between 1 and 99")
	}

	if c.LLM.Enabled {
		if c.LLM.Model == "" {
			return fmt.Errorf("llm.model is required when llm is enabled")
		}
		if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
			return fmt.Errorf("llm.temperature must be between 0 and 2")
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}

	return nil
}

// Validate checks that every selector and timeout the workflows rely on is set.
func (s SiteConfig) Validate() error {
	if _, err := url.ParseRequestURI(s.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if s.ResultPath == "" {
		return fmt.Errorf("result_path is required")
	}
	if s.CookieName == "" || s.CookieDomain == "" {
		return fmt.Errorf("cookie_name and cookie_domain are required")
	}

	required := map[string]string{
		"username":       s.Selectors.Username,
		"password":       s.Selectors.Password,
		"submit":         s.Selectors.Submit,
		"login_marker":   s.Selectors.LoginMarker,
		"semester":       s.Selectors.Semester,
		"view_result":    s.Selectors.ViewResult,
		"result_message": s.Selectors.ResultMessage,
	}
	for name, sel := range required {
		if strings.TrimSpace(sel) == "" {
			return fmt.Errorf("selectors.%s is required", name)
		}
	}

	timeouts := map[string]time.Duration{
		"navigation_timeout": s.NavigationTimeout,
		"login_timeout":      s.LoginTimeout,
		"result_wait":        s.ResultWait,
		"render_timeout":     s.RenderTimeout,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if s.SettleDelay < 0 {
		return fmt.Errorf("settle_delay cannot be negative")
	}
	return nil
}

// HomeURL returns the portal home page.
func (s SiteConfig) HomeURL() string {
	return s.BaseURL
}

// ResultURL returns the absolute URL of the result page.
func (s SiteConfig) ResultURL() string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimLeft(s.ResultPath, "/")
}
