package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ConfigError reports an invalid or missing configuration value.
// It is startup-fatal and never retried.
type ConfigError struct {
	// Field is the environment variable (or config key) at fault, if known.
	Field string
	// Message is the actionable explanation.
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return e.Message
}

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// RegisterCustomValidators registers hass-gate specific validation rules.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("hub_url", validateHubURL); err != nil {
		return fmt.Errorf("failed to register hub_url validator: %w", err)
	}
	if err := v.RegisterValidation("audit_output", validateAuditOutput); err != nil {
		return fmt.Errorf("failed to register audit_output validator: %w", err)
	}
	return nil
}

// validateHubURL accepts http(s) URLs with a host.
func validateHubURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// validateAuditOutput accepts "none", "stderr" or "file://<absolute-path>".
func validateAuditOutput(fl validator.FieldLevel) bool {
	output := fl.Field().String()
	if output == "none" || output == "stderr" {
		return true
	}
	if strings.HasPrefix(output, "file://") {
		path := strings.TrimPrefix(output, "file://")
		return path != "" && filepath.IsAbs(path)
	}
	return false
}

// normalize trims whitespace and lowercases the case-insensitive fields.
func (s *Settings) normalize() {
	s.URL = strings.TrimRight(strings.TrimSpace(s.URL), "/")
	s.Token = strings.TrimSpace(s.Token)
	s.Mode = strings.ToLower(strings.TrimSpace(s.Mode))
	s.VerifyTLS = strings.ToLower(strings.TrimSpace(s.VerifyTLS))
	s.RequestTimeoutSeconds = strings.TrimSpace(s.RequestTimeoutSeconds)
	s.LogLevel = strings.ToLower(strings.TrimSpace(s.LogLevel))
	s.MetricsAddr = strings.TrimSpace(s.MetricsAddr)
	s.AuditOutput = strings.TrimSpace(s.AuditOutput)
	s.Trace = strings.ToLower(strings.TrimSpace(s.Trace))
	s.SSH.Enable = strings.ToLower(strings.TrimSpace(s.SSH.Enable))
	s.SSH.Host = strings.TrimSpace(s.SSH.Host)
	s.SSH.User = strings.TrimSpace(s.SSH.User)
	s.SSH.Port = strings.TrimSpace(s.SSH.Port)
	s.SSH.KeyPath = strings.TrimSpace(s.SSH.KeyPath)
	s.SSH.Password = strings.TrimSpace(s.SSH.Password)
}

// Validate runs struct-tag validation and returns the first set of failures
// as a *ConfigError with actionable messages.
func (s *Settings) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Tag.Get("mapstructure")
	})

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(s); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// Build validates the settings and constructs the immutable Config.
// SetDefaults should have been applied first; Build normalizes values itself.
func Build(s Settings, logger *slog.Logger) (*Config, error) {
	s.normalize()

	// The URL checks run first so the two most common mistakes get the
	// precise messages rather than a generic tag failure.
	if s.URL == "" {
		return nil, configErrorf("HA_URL", "HA_URL environment variable is required")
	}
	if s.Token == "" {
		return nil, configErrorf("HA_TOKEN", "HA_TOKEN environment variable is required")
	}
	hubURL, err := url.Parse(s.URL)
	if err != nil {
		return nil, configErrorf("HA_URL", "HA_URL is not a valid URL: %v", err)
	}
	if hubURL.Scheme != "http" && hubURL.Scheme != "https" {
		return nil, configErrorf("HA_URL", "HA_URL must use http or https scheme, got: %s", hubURL.Scheme)
	}
	if hubURL.Host == "" {
		return nil, configErrorf("HA_URL", "HA_URL is missing hostname: %s", s.URL)
	}
	if s.Mode != string(ModeReadOnly) && s.Mode != string(ModeReadWrite) {
		return nil, configErrorf("HA_MCP_MODE", "HA_MCP_MODE must be 'readonly' or 'readwrite', got: %s", s.Mode)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	timeoutSeconds, err := strconv.ParseFloat(s.RequestTimeoutSeconds, 64)
	if err != nil {
		return nil, configErrorf("HA_REQUEST_TIMEOUT_SECONDS",
			"HA_REQUEST_TIMEOUT_SECONDS must be a number, got: %s", s.RequestTimeoutSeconds)
	}
	if timeoutSeconds <= 0 {
		return nil, configErrorf("HA_REQUEST_TIMEOUT_SECONDS",
			"HA_REQUEST_TIMEOUT_SECONDS must be greater than zero, got: %s", s.RequestTimeoutSeconds)
	}

	port, err := strconv.Atoi(s.SSH.Port)
	if err != nil {
		return nil, configErrorf("HA_SSH_PORT", "HA_SSH_PORT must be an integer, got: %s", s.SSH.Port)
	}

	cfg := &Config{
		baseURL:        s.URL,
		hubURL:         hubURL,
		token:          s.Token,
		mode:           Mode(s.Mode),
		allowlist:      ParseAllowlist(s.AllowedServices, logger),
		verifyTLS:      !isFalse(s.VerifyTLS),
		requestTimeout: time.Duration(timeoutSeconds * float64(time.Second)),
		logLevel:       s.LogLevel,
		metricsAddr:    s.MetricsAddr,
		auditOutput:    s.AuditOutput,
		trace:          isTrue(s.Trace),
	}

	if !cfg.verifyTLS {
		logger.Warn("TLS verification disabled - this is insecure for production use")
	}

	if isTrue(s.SSH.Enable) {
		ssh, err := buildSSH(s.SSH, port, hubURL, logger)
		if err != nil {
			return nil, err
		}
		cfg.ssh = ssh
	}

	for _, r := range s.ServiceRules {
		cfg.serviceRules = append(cfg.serviceRules, ServiceRule{
			Name:      strings.TrimSpace(r.Name),
			Condition: strings.TrimSpace(r.Condition),
		})
	}

	return cfg, nil
}

// buildSSH validates the SSH settings of an SSH-enabled configuration.
func buildSSH(s SSHSettings, port int, hubURL *url.URL, logger *slog.Logger) (*SSHConfig, error) {
	if s.User == "" {
		return nil, configErrorf("HA_SSH_USER", "HA_SSH_USER is required when HA_SSH_ENABLE=true")
	}
	if port <= 0 || port > 65535 {
		return nil, configErrorf("HA_SSH_PORT", "HA_SSH_PORT must be between 1 and 65535, got: %d", port)
	}

	host := s.Host
	if host == "" {
		host = hubURL.Hostname()
	}

	if s.KeyPath == "" && s.Password == "" {
		logger.Warn("neither HA_SSH_KEY_PATH nor HA_SSH_PASSWORD set - will attempt SSH agent or default key")
	}

	return &SSHConfig{
		Host:     host,
		User:     s.User,
		Port:     port,
		KeyPath:  s.KeyPath,
		Password: s.Password,
	}, nil
}

// isTrue and isFalse expect lowercased input; only the literal words count.
func isTrue(v string) bool {
	return v == "true"
}

func isFalse(v string) bool {
	return v == "false"
}

// formatValidationErrors converts validator.ValidationErrors to a *ConfigError.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		field := ""
		for _, e := range validationErrors {
			if field == "" {
				field = e.Field()
			}
			messages = append(messages, formatSingleValidationError(e))
		}
		return &ConfigError{Field: field, Message: strings.Join(messages, "; ")}
	}
	return &ConfigError{Message: err.Error()}
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Field()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hub_url":
		return fmt.Sprintf("%s must be an http or https URL with a hostname", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "audit_output":
		return fmt.Sprintf("%s must be 'none', 'stderr' or 'file://<absolute-path>'", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
