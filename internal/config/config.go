package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/foxzi/outreach/internal/ipfilter"
	"github.com/foxzi/outreach/internal/ratelimit"
	"github.com/foxzi/outreach/internal/sandbox"
	"github.com/foxzi/outreach/internal/smtp"
	"github.com/foxzi/outreach/internal/testsend"
)

// DefaultEnvFile is read before mail settings are taken from the environment
const DefaultEnvFile = ".env"

// Config is the main configuration structure
type Config struct {
	Server       ServerConfig   `yaml:"server"`
	Logging      LoggingConfig  `yaml:"logging"`
	Storage      StorageConfig  `yaml:"storage"`
	Mail         MailConfig     `yaml:"mail"`
	TestSend     TestSendConfig `yaml:"test_send"`
	Verify       VerifyConfig   `yaml:"verify"`
	Metrics      MetricsConfig  `yaml:"metrics"`
	CampaignFile string         `yaml:"campaign_file"` // Optional campaign loaded into the session at startup
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`   // Max request body size (default: 1MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 30s)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
	AllowedIPs     []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to access API (empty = allow all)
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// MailConfig contains the SMTP relay used for test emails. Environment
// variables override file values.
type MailConfig struct {
	Host               string        `yaml:"host" env:"SMTP_HOST"`
	Port               int           `yaml:"port" env:"SMTP_PORT"`
	Username           string        `yaml:"username" env:"SMTP_USER"`
	Password           string        `yaml:"password" env:"SMTP_PASSWORD"`
	From               string        `yaml:"from" env:"FROM_EMAIL"`
	Security           string        `yaml:"security" env:"SMTP_SECURITY"` // none, starttls, tls
	HeloName           string        `yaml:"helo_name"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// TestSendConfig contains test email settings
type TestSendConfig struct {
	Mode             string          `yaml:"mode"`    // sandbox, relay, copy
	Subject          string          `yaml:"subject"` // Default: "Test email"
	Delay            time.Duration   `yaml:"delay"`   // Default: 2s, negative disables
	PreviewLength    int             `yaml:"preview_length"`
	SimulateErrors   bool            `yaml:"simulate_errors"`
	ErrorProbability float64         `yaml:"error_probability"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains test email rate limits
type RateLimitConfig struct {
	Enabled         bool                   `yaml:"enabled"`
	Global          *ratelimit.LimitConfig `yaml:"global,omitempty"`
	Recipient       *ratelimit.LimitConfig `yaml:"recipient,omitempty"`
	RecipientDomain *ratelimit.LimitConfig `yaml:"recipient_domain,omitempty"`
	FlushInterval   time.Duration          `yaml:"flush_interval"`
}

// DefaultSuccessRate is the verification success rate when none is configured
const DefaultSuccessRate = 0.7

// VerifyConfig contains pre-launch verification settings
type VerifyConfig struct {
	StepDelay   time.Duration `yaml:"step_delay"`   // Default: 200ms
	Pause       time.Duration `yaml:"pause"`        // Default: 500ms
	SuccessRate *float64      `yaml:"success_rate"` // Default: 0.7, 0 always fails
	History     int           `yaml:"history"`      // Default: 32
}

// Rate returns the configured success rate or the default
func (v VerifyConfig) Rate() float64 {
	if v.SuccessRate == nil {
		return DefaultSuccessRate
	}
	return *v.SuccessRate
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ListenAddr    string        `yaml:"listen_addr"`    // Default: :9090
	Path          string        `yaml:"path"`           // Default: /metrics
	FlushInterval time.Duration `yaml:"flush_interval"` // Default: 10s
	AllowedIPs    []string      `yaml:"allowed_ips"`    // IP addresses/CIDRs allowed to access metrics
}

// Load loads configuration from a YAML file and the environment. An empty
// path yields the defaults.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, DefaultEnvFile)
}

// LoadWithEnv is Load with an explicit .env file. A missing env file is
// ignored.
func LoadWithEnv(path, envFile string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.loadEnv(envFile); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadEnv(envFile string) error {
	if envFile != "" {
		// godotenv never overrides variables that are already set
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}
	if err := env.Parse(&c.Mail); err != nil {
		return fmt.Errorf("failed to parse mail environment: %w", err)
	}
	return nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.MaxHeaderBytes == 0 {
		c.Server.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/outreach/outreach.db"
	}

	if c.Mail.Security == "" {
		c.Mail.Security = smtp.SecurityStartTLS
	}
	if c.Mail.From == "" {
		c.Mail.From = "outreach@localhost"
	}
	if c.Mail.Timeout == 0 {
		c.Mail.Timeout = 30 * time.Second
	}

	if c.TestSend.Mode == "" {
		c.TestSend.Mode = sandbox.ModeSandbox
	}
	if c.TestSend.Subject == "" {
		c.TestSend.Subject = testsend.DefaultSubject
	}
	if c.TestSend.Delay == 0 {
		c.TestSend.Delay = testsend.DefaultDelay
	}
	if c.TestSend.PreviewLength == 0 {
		c.TestSend.PreviewLength = testsend.DefaultPreviewLength
	}
	if c.TestSend.ErrorProbability == 0 {
		c.TestSend.ErrorProbability = 0.1
	}
	if c.TestSend.RateLimit.FlushInterval == 0 {
		c.TestSend.RateLimit.FlushInterval = 10 * time.Second
	}

	if c.Verify.StepDelay == 0 {
		c.Verify.StepDelay = 200 * time.Millisecond
	}
	if c.Verify.Pause == 0 {
		c.Verify.Pause = 500 * time.Millisecond
	}
	if c.Verify.SuccessRate == nil {
		rate := DefaultSuccessRate
		c.Verify.SuccessRate = &rate
	}
	if c.Verify.History == 0 {
		c.Verify.History = 32
	}

	// Metrics defaults
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.FlushInterval == 0 {
		c.Metrics.FlushInterval = 10 * time.Second
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if err := ipfilter.Validate(c.Server.AllowedIPs); err != nil {
		return fmt.Errorf("invalid server.allowed_ips: %w", err)
	}
	if err := ipfilter.Validate(c.Metrics.AllowedIPs); err != nil {
		return fmt.Errorf("invalid metrics.allowed_ips: %w", err)
	}

	if err := c.validateMail(); err != nil {
		return err
	}

	if !sandbox.ValidMode(c.TestSend.Mode) {
		return fmt.Errorf("invalid test_send.mode: %s (must be sandbox, relay, or copy)", c.TestSend.Mode)
	}
	if c.TestSend.Mode != sandbox.ModeSandbox && c.Mail.Host == "" {
		return fmt.Errorf("mail.host is required when test_send.mode is %s", c.TestSend.Mode)
	}
	if p := c.TestSend.ErrorProbability; p < 0 || p > 1 {
		return fmt.Errorf("test_send.error_probability must be between 0 and 1")
	}

	if r := c.Verify.Rate(); r < 0 || r > 1 {
		return fmt.Errorf("verify.success_rate must be between 0 and 1")
	}
	if c.Verify.StepDelay < 0 || c.Verify.Pause < 0 {
		return fmt.Errorf("verify delays must not be negative")
	}

	return nil
}

func (c *Config) validateMail() error {
	switch c.Mail.Security {
	case smtp.SecurityNone, smtp.SecurityStartTLS, smtp.SecurityTLS:
	default:
		return fmt.Errorf("invalid mail.security: %s (must be none, starttls, or tls)", c.Mail.Security)
	}

	if c.Mail.Port < 0 || c.Mail.Port > 65535 {
		return fmt.Errorf("invalid mail.port: %d", c.Mail.Port)
	}

	if (c.Mail.Username == "") != (c.Mail.Password == "") {
		return fmt.Errorf("mail.username and mail.password must be set together")
	}

	return nil
}

// RateLimiter returns the limiter configuration, or nil when rate limiting
// is disabled
func (c *Config) RateLimiter() *ratelimit.Config {
	rl := c.TestSend.RateLimit
	if !rl.Enabled {
		return nil
	}
	return &ratelimit.Config{
		Global:          rl.Global,
		Recipient:       rl.Recipient,
		RecipientDomain: rl.RecipientDomain,
		FlushInterval:   rl.FlushInterval,
	}
}

// SMTPOptions returns the relay client options
func (c *Config) SMTPOptions() smtp.Options {
	opts := smtp.Options{
		Host:     c.Mail.Host,
		Port:     c.Mail.Port,
		Username: c.Mail.Username,
		Password: c.Mail.Password,
		Security: c.Mail.Security,
		HeloName: c.Mail.HeloName,
		Timeout:  c.Mail.Timeout,
	}
	if c.Mail.InsecureSkipVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test relays
	}
	return opts
}
