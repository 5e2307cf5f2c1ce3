package config

import (
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
)

// serviceTokenPattern restricts domain and service names to lowercase
// alphanumerics and underscore, starting with a letter or underscore.
var serviceTokenPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ServiceAllowlist decides which hub services may be called in readwrite mode.
// Patterns are either "domain.service" or "domain.*"; a lone "*" allows
// everything. It is immutable after ParseAllowlist returns.
type ServiceAllowlist struct {
	patterns []string
	allowAll bool
	logger   *slog.Logger
}

// ParseAllowlist builds an allowlist from a comma-separated pattern string.
// Invalid patterns are dropped with a warning rather than failing startup.
func ParseAllowlist(raw string, logger *slog.Logger) *ServiceAllowlist {
	if logger == nil {
		logger = slog.Default()
	}
	a := &ServiceAllowlist{logger: logger}

	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p == "*" {
			a.allowAll = true
			logger.Warn("HA_ALLOWED_SERVICES contains '*' - ALL services are allowed (dangerous)")
			continue
		}
		if !validPattern(p) {
			logger.Warn("invalid service pattern ignored", "pattern", p)
			continue
		}
		a.patterns = append(a.patterns, p)
	}

	return a
}

// validPattern reports whether p has the shape domain.service or domain.*.
func validPattern(p string) bool {
	domain, service, ok := strings.Cut(p, ".")
	if !ok || strings.Contains(service, ".") {
		return false
	}
	if !serviceTokenPattern.MatchString(domain) {
		return false
	}
	return service == "*" || serviceTokenPattern.MatchString(service)
}

// IsAllowed reports whether domain.service may be called.
func (a *ServiceAllowlist) IsAllowed(domain, service string) bool {
	if a.allowAll {
		return true
	}
	if len(a.patterns) == 0 {
		return false
	}

	name := domain + "." + service
	for _, p := range a.patterns {
		if p == name {
			a.logger.Debug("service allowed by exact match", "service", name)
			return true
		}
	}
	for _, p := range a.patterns {
		if !strings.Contains(p, "*") {
			continue
		}
		if ok, err := path.Match(p, name); err == nil && ok {
			a.logger.Debug("service allowed by pattern", "service", name, "pattern", p)
			return true
		}
	}

	a.logger.Info("service call denied by allowlist", "service", name)
	return false
}

// DenialMessage explains why domain.service was rejected.
func (a *ServiceAllowlist) DenialMessage(domain, service string) string {
	if len(a.patterns) == 0 {
		return fmt.Sprintf("Service call '%s.%s' denied: no services are allowlisted. "+
			"Set HA_ALLOWED_SERVICES to enable service calls.", domain, service)
	}
	return fmt.Sprintf("Service call '%s.%s' denied: not in allowlist. Allowed patterns: %s",
		domain, service, strings.Join(a.patterns, ", "))
}

// Patterns returns a copy of the accepted patterns in input order.
func (a *ServiceAllowlist) Patterns() []string {
	out := make([]string, len(a.patterns))
	copy(out, a.patterns)
	return out
}

// AllowAll reports whether "*" was configured.
func (a *ServiceAllowlist) AllowAll() bool {
	return a.allowAll
}
