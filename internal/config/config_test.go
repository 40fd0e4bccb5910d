package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/foxzi/outreach/internal/ratelimit"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	content := `
server:
  listen_addr: ":9080"
  allowed_ips: ["10.0.0.0/8"]

mail:
  host: "smtp.test.com"
  port: 2525
  username: "user"
  password: "secret"
  from: "campaigns@test.com"
  security: "tls"

test_send:
  mode: "copy"
  delay: 1s
  rate_limit:
    enabled: true
    recipient:
      messages_per_hour: 5

verify:
  step_delay: 10ms
  success_rate: 1

storage:
  path: "/tmp/test.db"

logging:
  level: "debug"
  format: "text"
`
	cfg, err := LoadWithEnv(writeConfig(t, content), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9080" {
		t.Errorf("Server.ListenAddr = %v, want :9080", cfg.Server.ListenAddr)
	}
	if cfg.Mail.Host != "smtp.test.com" || cfg.Mail.Port != 2525 {
		t.Errorf("Mail = %s:%d", cfg.Mail.Host, cfg.Mail.Port)
	}
	if cfg.Mail.Security != "tls" {
		t.Errorf("Mail.Security = %v, want tls", cfg.Mail.Security)
	}
	if cfg.TestSend.Mode != "copy" {
		t.Errorf("TestSend.Mode = %v, want copy", cfg.TestSend.Mode)
	}
	if cfg.TestSend.Delay != time.Second {
		t.Errorf("TestSend.Delay = %v, want 1s", cfg.TestSend.Delay)
	}
	if cfg.Verify.StepDelay != 10*time.Millisecond || cfg.Verify.Rate() != 1 {
		t.Errorf("Verify = %+v", cfg.Verify)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}

	rl := cfg.RateLimiter()
	if rl == nil || rl.Recipient == nil || rl.Recipient.MessagesPerHour != 5 {
		t.Errorf("RateLimiter() = %+v", rl)
	}
	if rl != nil && rl.Global != nil {
		t.Error("Global limit should be unset")
	}

	opts := cfg.SMTPOptions()
	if opts.Host != "smtp.test.com" || opts.Username != "user" || opts.TLSConfig != nil {
		t.Errorf("SMTPOptions() = %+v", opts)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithEnv("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Server.ListenAddr", cfg.Server.ListenAddr, ":8080"},
		{"Server.MaxBodyBytes", cfg.Server.MaxBodyBytes, int64(1 << 20)},
		{"Logging.Level", cfg.Logging.Level, "info"},
		{"Logging.Format", cfg.Logging.Format, "json"},
		{"Storage.Path", cfg.Storage.Path, "/var/lib/outreach/outreach.db"},
		{"Mail.Security", cfg.Mail.Security, "starttls"},
		{"TestSend.Mode", cfg.TestSend.Mode, "sandbox"},
		{"TestSend.Delay", cfg.TestSend.Delay, 2 * time.Second},
		{"TestSend.PreviewLength", cfg.TestSend.PreviewLength, 200},
		{"Verify.StepDelay", cfg.Verify.StepDelay, 200 * time.Millisecond},
		{"Verify.Pause", cfg.Verify.Pause, 500 * time.Millisecond},
		{"Verify.SuccessRate", cfg.Verify.Rate(), 0.7},
		{"Verify.History", cfg.Verify.History, 32},
		{"Metrics.ListenAddr", cfg.Metrics.ListenAddr, ":9090"},
		{"Metrics.Path", cfg.Metrics.Path, "/metrics"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if cfg.RateLimiter() != nil {
		t.Error("RateLimiter() should be nil when disabled")
	}
}

func TestLoadZeroSuccessRate(t *testing.T) {
	content := `
verify:
  success_rate: 0
`
	cfg, err := LoadWithEnv(writeConfig(t, content), "")
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.Verify.SuccessRate == nil || cfg.Verify.Rate() != 0 {
		t.Errorf("Verify.Rate() = %v, want 0", cfg.Verify.Rate())
	}
}

func TestLoadMailFromEnvironment(t *testing.T) {
	t.Setenv("SMTP_HOST", "relay.env.test")
	t.Setenv("SMTP_PORT", "2587")
	t.Setenv("SMTP_USER", "envuser")
	t.Setenv("SMTP_PASSWORD", "envpass")
	t.Setenv("FROM_EMAIL", "env@env.test")

	content := `
mail:
  host: "file.test"
  port: 25
test_send:
  mode: relay
`
	cfg, err := LoadWithEnv(writeConfig(t, content), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mail.Host != "relay.env.test" || cfg.Mail.Port != 2587 {
		t.Errorf("env did not override file: %s:%d", cfg.Mail.Host, cfg.Mail.Port)
	}
	if cfg.Mail.Username != "envuser" || cfg.Mail.Password != "envpass" || cfg.Mail.From != "env@env.test" {
		t.Errorf("Mail = %+v", cfg.Mail)
	}
}

func TestLoadEnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte("OUTREACH_TEST_FROM=dotenv@env.test\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OUTREACH_TEST_FROM", "")
	os.Unsetenv("OUTREACH_TEST_FROM")

	if _, err := LoadWithEnv("", envPath); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := os.Getenv("OUTREACH_TEST_FROM"); got != "dotenv@env.test" {
		t.Errorf("env file not loaded, got %q", got)
	}
	os.Unsetenv("OUTREACH_TEST_FROM")

	if _, err := LoadWithEnv("", filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing env file should be ignored: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		c := Config{}
		c.setDefaults()
		return c
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid config", modify: func(*Config) {}},
		{name: "invalid log level", modify: func(c *Config) { c.Logging.Level = "invalid" }, wantErr: true},
		{name: "invalid log format", modify: func(c *Config) { c.Logging.Format = "invalid" }, wantErr: true},
		{name: "invalid server allowed ip", modify: func(c *Config) { c.Server.AllowedIPs = []string{"nope"} }, wantErr: true},
		{name: "invalid metrics allowed ip", modify: func(c *Config) { c.Metrics.AllowedIPs = []string{"10.0.0.0/99"} }, wantErr: true},
		{name: "invalid security", modify: func(c *Config) { c.Mail.Security = "ssl" }, wantErr: true},
		{name: "invalid port", modify: func(c *Config) { c.Mail.Port = 70000 }, wantErr: true},
		{name: "username without password", modify: func(c *Config) { c.Mail.Username = "u" }, wantErr: true},
		{name: "invalid mode", modify: func(c *Config) { c.TestSend.Mode = "bcc" }, wantErr: true},
		{name: "relay without host", modify: func(c *Config) { c.TestSend.Mode = "relay" }, wantErr: true},
		{name: "relay with host", modify: func(c *Config) {
			c.TestSend.Mode = "relay"
			c.Mail.Host = "smtp.test.com"
		}},
		{name: "error probability out of range", modify: func(c *Config) { c.TestSend.ErrorProbability = 1.5 }, wantErr: true},
		{name: "success rate out of range", modify: func(c *Config) {
			rate := -0.1
			c.Verify.SuccessRate = &rate
		}, wantErr: true},
		{name: "negative pause", modify: func(c *Config) { c.Verify.Pause = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSMTPOptionsInsecure(t *testing.T) {
	cfg := Config{Mail: MailConfig{Host: "smtp.test.com", InsecureSkipVerify: true}}
	opts := cfg.SMTPOptions()
	if opts.TLSConfig == nil || !opts.TLSConfig.InsecureSkipVerify {
		t.Errorf("TLSConfig = %+v", opts.TLSConfig)
	}
}

func TestRateLimiterCopiesLimits(t *testing.T) {
	cfg := Config{TestSend: TestSendConfig{RateLimit: RateLimitConfig{
		Enabled:         true,
		Global:          &ratelimit.LimitConfig{MessagesPerDay: 100},
		RecipientDomain: &ratelimit.LimitConfig{MessagesPerHour: 3},
		FlushInterval:   time.Minute,
	}}}

	rl := cfg.RateLimiter()
	if rl.Global.MessagesPerDay != 100 || rl.RecipientDomain.MessagesPerHour != 3 || rl.FlushInterval != time.Minute {
		t.Errorf("RateLimiter() = %+v", rl)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := LoadWithEnv("/nonexistent/config.yaml", "")
	if err == nil {
		t.Error("Load() expected error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := LoadWithEnv(writeConfig(t, `invalid: yaml: content: [`), "")
	if err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}
