package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// envBindings maps Viper keys to the HA_* environment variables that feed them.
var envBindings = map[string]string{
	"url":                     "HA_URL",
	"token":                   "HA_TOKEN",
	"mode":                    "HA_MCP_MODE",
	"allowed_services":        "HA_ALLOWED_SERVICES",
	"verify_tls":              "HA_VERIFY_TLS",
	"request_timeout_seconds": "HA_REQUEST_TIMEOUT_SECONDS",
	"ssh.enable":              "HA_SSH_ENABLE",
	"ssh.host":                "HA_SSH_HOST",
	"ssh.user":                "HA_SSH_USER",
	"ssh.port":                "HA_SSH_PORT",
	"ssh.key_path":            "HA_SSH_KEY_PATH",
	"ssh.password":            "HA_SSH_PASSWORD",
	"log_level":               "HA_LOG_LEVEL",
	"metrics_addr":            "HA_METRICS_ADDR",
	"audit_output":            "HA_AUDIT_OUTPUT",
	"trace":                   "HA_TRACE",
}

// NewViper returns a Viper instance wired to the config file and HA_* variables.
// If configFile is empty, it searches for hass-gate.yaml/.yml in standard
// locations. The explicit extension keeps Viper from matching the binary.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		v.SetConfigFile(found)
	} else {
		// No file anywhere: ReadInConfig then returns ConfigFileNotFoundError,
		// which Load treats as env-only configuration.
		v.SetConfigName("hass-gate")
		v.SetConfigType("yaml")
	}

	bindEnvKeys(v)
	return v
}

// findConfigFile searches ., ~/.hass-gate and /etc/hass-gate.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".hass-gate"),
		"/etc/hass-gate",
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths returns the first hass-gate.yaml or .yml found, or "".
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "hass-gate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindEnvKeys binds every key to its unprefixed HA_* name.
// The names predate this gateway and are shared with other hub tooling,
// so no prefix/replacer scheme is used.
func bindEnvKeys(v *viper.Viper) {
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
}

// LoadSettings reads the config file (if any) and environment into Settings
// with defaults applied. Callers may apply CLI overrides before Build.
func LoadSettings(v *viper.Viper) (Settings, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	s.SetDefaults()
	return s, nil
}

// Load reads, defaults, validates and builds the configuration in one step.
func Load(v *viper.Viper, logger *slog.Logger) (*Config, error) {
	s, err := LoadSettings(v)
	if err != nil {
		return nil, err
	}
	return Build(s, logger)
}
