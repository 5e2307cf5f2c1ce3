// Package config provides configuration types for hass-gate.
//
// Settings is the raw, file/env-shaped schema that Viper unmarshals into.
// Config is the validated, immutable value built from it exactly once at
// startup and shared by reference with every transport client and the gate.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// Mode selects which tools are exposed to the agent.
type Mode string

const (
	// ModeReadOnly exposes only the read tools (default).
	ModeReadOnly Mode = "readonly"
	// ModeReadWrite additionally exposes the service-call tool.
	ModeReadWrite Mode = "readwrite"
)

// Settings is the raw configuration schema.
// Values arrive as strings from HA_* environment variables, so numeric and
// boolean fields stay strings here and are parsed with explicit error
// messages in Build.
type Settings struct {
	// URL is the hub base URL (HA_URL), e.g. "http://homeassistant.local:8123".
	URL string `yaml:"url" mapstructure:"url" env:"HA_URL" validate:"required,hub_url"`

	// Token is the hub long-lived access token (HA_TOKEN).
	Token string `yaml:"token" mapstructure:"token" env:"HA_TOKEN" validate:"required"`

	// Mode is "readonly" or "readwrite" (HA_MCP_MODE). Defaults to "readonly".
	Mode string `yaml:"mode" mapstructure:"mode" env:"HA_MCP_MODE" validate:"required,oneof=readonly readwrite"`

	// AllowedServices is the comma-separated service allowlist (HA_ALLOWED_SERVICES).
	// Only consulted in readwrite mode.
	AllowedServices string `yaml:"allowed_services" mapstructure:"allowed_services" env:"HA_ALLOWED_SERVICES"`

	// VerifyTLS controls certificate verification (HA_VERIFY_TLS).
	// Only "false" (or "0") disables it.
	VerifyTLS string `yaml:"verify_tls" mapstructure:"verify_tls" env:"HA_VERIFY_TLS"`

	// RequestTimeoutSeconds bounds every network wait (HA_REQUEST_TIMEOUT_SECONDS).
	// Defaults to "15".
	RequestTimeoutSeconds string `yaml:"request_timeout_seconds" mapstructure:"request_timeout_seconds" env:"HA_REQUEST_TIMEOUT_SECONDS"`

	// SSH configures remote-shell log access.
	SSH SSHSettings `yaml:"ssh" mapstructure:"ssh"`

	// LogLevel sets the minimum log level (HA_LOG_LEVEL).
	LogLevel string `yaml:"log_level" mapstructure:"log_level" env:"HA_LOG_LEVEL" validate:"omitempty,oneof=debug info warn warning error"`

	// MetricsAddr enables the /metrics and /health listener when non-empty (HA_METRICS_ADDR).
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr" env:"HA_METRICS_ADDR" validate:"omitempty,hostname_port"`

	// AuditOutput is "none", "stderr" or "file://<absolute-path>" (HA_AUDIT_OUTPUT).
	AuditOutput string `yaml:"audit_output" mapstructure:"audit_output" env:"HA_AUDIT_OUTPUT" validate:"omitempty,audit_output"`

	// Trace enables OpenTelemetry spans exported to stderr (HA_TRACE).
	Trace string `yaml:"trace" mapstructure:"trace" env:"HA_TRACE"`

	// ServiceRules are optional CEL deny rules evaluated after the allowlist.
	// File-only: lists are awkward to express as environment variables.
	ServiceRules []ServiceRuleSettings `yaml:"service_rules" mapstructure:"service_rules" validate:"omitempty,dive"`
}

// SSHSettings is the raw SSH configuration.
type SSHSettings struct {
	Enable   string `yaml:"enable" mapstructure:"enable" env:"HA_SSH_ENABLE"`
	Host     string `yaml:"host" mapstructure:"host" env:"HA_SSH_HOST"`
	User     string `yaml:"user" mapstructure:"user" env:"HA_SSH_USER"`
	Port     string `yaml:"port" mapstructure:"port" env:"HA_SSH_PORT"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path" env:"HA_SSH_KEY_PATH"`
	Password string `yaml:"password" mapstructure:"password" env:"HA_SSH_PASSWORD"`
}

// ServiceRuleSettings defines a CEL rule that can deny an allowlisted service call.
type ServiceRuleSettings struct {
	// Name identifies the rule in denial messages.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Condition is a CEL expression over domain, service, service_name and data.
	// When it evaluates to true the call is denied.
	Condition string `yaml:"condition" mapstructure:"condition" validate:"required"`
}

// SetDefaults fills optional fields with their documented defaults.
func (s *Settings) SetDefaults() {
	if s.Mode == "" {
		s.Mode = string(ModeReadOnly)
	}
	if s.VerifyTLS == "" {
		s.VerifyTLS = "true"
	}
	if s.RequestTimeoutSeconds == "" {
		s.RequestTimeoutSeconds = "15"
	}
	if s.SSH.Enable == "" {
		s.SSH.Enable = "false"
	}
	if s.SSH.Port == "" {
		s.SSH.Port = "22"
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.AuditOutput == "" {
		s.AuditOutput = "none"
	}
}

// SSHConfig is the validated SSH configuration. Present only when SSH is enabled.
type SSHConfig struct {
	Host     string
	User     string
	Port     int
	KeyPath  string
	Password string
}

// Addr returns host:port for dialing.
func (s SSHConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ServiceRule is a validated CEL deny rule.
type ServiceRule struct {
	Name      string
	Condition string
}

// Config is the immutable runtime configuration.
// All fields are unexported; accessors return copies so callers cannot mutate
// shared state.
type Config struct {
	baseURL        string
	hubURL         *url.URL
	token          string
	mode           Mode
	allowlist      *ServiceAllowlist
	verifyTLS      bool
	ssh            *SSHConfig
	requestTimeout time.Duration

	logLevel     string
	metricsAddr  string
	auditOutput  string
	trace        bool
	serviceRules []ServiceRule
}

// BaseURL returns the hub base URL without a trailing slash.
func (c *Config) BaseURL() string { return c.baseURL }

// Host returns the hub host (with port, if any).
func (c *Config) Host() string { return c.hubURL.Host }

// Hostname returns the hub hostname without the port.
func (c *Config) Hostname() string { return c.hubURL.Hostname() }

// Scheme returns the hub URL scheme ("http" or "https").
func (c *Config) Scheme() string { return c.hubURL.Scheme }

// Token returns the hub access token. Never log it.
func (c *Config) Token() string { return c.token }

// Mode returns the configured mode.
func (c *Config) Mode() Mode { return c.mode }

// IsReadWrite reports whether mutating tools are enabled.
func (c *Config) IsReadWrite() bool { return c.mode == ModeReadWrite }

// Allowlist returns the service allowlist.
func (c *Config) Allowlist() *ServiceAllowlist { return c.allowlist }

// VerifyTLS reports whether hub certificates are verified.
func (c *Config) VerifyTLS() bool { return c.verifyTLS }

// SSHEnabled reports whether remote-shell tools are enabled.
func (c *Config) SSHEnabled() bool { return c.ssh != nil }

// SSH returns a copy of the SSH configuration and whether SSH is enabled.
func (c *Config) SSH() (SSHConfig, bool) {
	if c.ssh == nil {
		return SSHConfig{}, false
	}
	return *c.ssh, true
}

// RequestTimeout returns the per-operation network timeout.
func (c *Config) RequestTimeout() time.Duration { return c.requestTimeout }

// LogLevel returns the configured log level name.
func (c *Config) LogLevel() string { return c.logLevel }

// MetricsAddr returns the metrics listener address, empty when disabled.
func (c *Config) MetricsAddr() string { return c.metricsAddr }

// AuditOutput returns the audit destination.
func (c *Config) AuditOutput() string { return c.auditOutput }

// TraceEnabled reports whether OpenTelemetry tracing is enabled.
func (c *Config) TraceEnabled() bool { return c.trace }

// ServiceRules returns a copy of the configured CEL deny rules.
func (c *Config) ServiceRules() []ServiceRule {
	out := make([]ServiceRule, len(c.serviceRules))
	copy(out, c.serviceRules)
	return out
}

// LogSummary writes the non-sensitive configuration to the logger.
func (c *Config) LogSummary(logger *slog.Logger) {
	logger.Info("configuration loaded",
		"url", c.baseURL,
		"mode", string(c.mode),
		"verify_tls", c.verifyTLS,
		"ssh_enabled", c.SSHEnabled(),
		"request_timeout", c.requestTimeout.String(),
	)

	if !c.IsReadWrite() {
		return
	}
	switch {
	case c.allowlist.AllowAll():
		logger.Warn("service allowlist: ALL (wildcard)")
	case len(c.allowlist.Patterns()) > 0:
		logger.Info("service allowlist", "patterns", c.allowlist.Patterns())
	default:
		logger.Warn("service allowlist is EMPTY - no service calls will be allowed")
	}
}

// Redacted is the YAML-friendly view of a Config with secrets masked.
type Redacted struct {
	URL             string   `yaml:"url"`
	Token           string   `yaml:"token"`
	Mode            string   `yaml:"mode"`
	AllowedServices []string `yaml:"allowed_services"`
	AllowAll        bool     `yaml:"allow_all"`
	VerifyTLS       bool     `yaml:"verify_tls"`
	RequestTimeout  string   `yaml:"request_timeout"`
	SSH             *struct {
		Host     string `yaml:"host"`
		User     string `yaml:"user"`
		Port     int    `yaml:"port"`
		KeyPath  string `yaml:"key_path,omitempty"`
		Password string `yaml:"password,omitempty"`
	} `yaml:"ssh,omitempty"`
	LogLevel     string        `yaml:"log_level"`
	MetricsAddr  string        `yaml:"metrics_addr,omitempty"`
	AuditOutput  string        `yaml:"audit_output"`
	Trace        bool          `yaml:"trace"`
	ServiceRules []ServiceRule `yaml:"service_rules,omitempty"`
}

// Redact returns the effective configuration with the token and SSH password masked.
func (c *Config) Redact() Redacted {
	r := Redacted{
		URL:             c.baseURL,
		Token:           mask(c.token),
		Mode:            string(c.mode),
		AllowedServices: c.allowlist.Patterns(),
		AllowAll:        c.allowlist.AllowAll(),
		VerifyTLS:       c.verifyTLS,
		RequestTimeout:  c.requestTimeout.String(),
		LogLevel:        c.logLevel,
		MetricsAddr:     c.metricsAddr,
		AuditOutput:     c.auditOutput,
		Trace:           c.trace,
		ServiceRules:    c.ServiceRules(),
	}
	if c.ssh != nil {
		r.SSH = &struct {
			Host     string `yaml:"host"`
			User     string `yaml:"user"`
			Port     int    `yaml:"port"`
			KeyPath  string `yaml:"key_path,omitempty"`
			Password string `yaml:"password,omitempty"`
		}{
			Host:     c.ssh.Host,
			User:     c.ssh.User,
			Port:     c.ssh.Port,
			KeyPath:  c.ssh.KeyPath,
			Password: mask(c.ssh.Password),
		}
	}
	return r
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
