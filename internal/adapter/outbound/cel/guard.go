package cel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/cel-go/cel"

	"github.com/hass-gate/hassgate/internal/config"
	"github.com/hass-gate/hassgate/internal/port/outbound"
)

// defaultCacheSize bounds the decision cache.
const defaultCacheSize = 1024

type compiledRule struct {
	name    string
	program cel.Program
}

// Guard evaluates deny rules against service calls that already passed the
// allowlist. Rules run in configuration order; the first match denies.
// Evaluation errors deny.
type Guard struct {
	eval   *Evaluator
	rules  []compiledRule
	cache  *decisionCache
	logger *slog.Logger
}

// NewGuard compiles rules. A rule that fails validation is a startup error.
func NewGuard(rules []config.ServiceRule, logger *slog.Logger) (*Guard, error) {
	eval, err := NewEvaluator()
	if err != nil {
		return nil, err
	}

	g := &Guard{eval: eval, cache: newDecisionCache(defaultCacheSize), logger: logger}
	for _, r := range rules {
		prg, err := eval.Compile(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("service rule %q: %w", r.Name, err)
		}
		g.rules = append(g.rules, compiledRule{name: r.Name, program: prg})
	}
	if len(g.rules) > 0 {
		logger.Info("service rules loaded", "count", len(g.rules))
	}
	return g, nil
}

// Len returns the number of compiled rules.
func (g *Guard) Len() int { return len(g.rules) }

// Check returns the name of the first matching rule, or "" when the call
// may proceed.
func (g *Guard) Check(ctx context.Context, domain, service string, data, target map[string]any) (string, error) {
	if len(g.rules) == 0 {
		return "", nil
	}

	call := ServiceCall{Domain: domain, Service: service, Data: data, Target: target}
	key, keyErr := cacheKey(call)
	if keyErr == nil {
		if rule, ok := g.cache.get(key); ok {
			return rule, nil
		}
	}

	rule := ""
	for _, r := range g.rules {
		matched, err := g.eval.Evaluate(ctx, r.program, call)
		if err != nil {
			g.logger.Warn("service rule evaluation failed, denying", "rule", r.name, "error", err)
			// Not cached: a timeout may not recur.
			return r.name, nil
		}
		if matched {
			rule = r.name
			break
		}
	}

	if keyErr == nil {
		g.cache.put(key, rule)
	}
	return rule, nil
}

// cacheKey hashes the call. encoding/json sorts map keys, so equal
// payloads hash equally.
func cacheKey(call ServiceCall) (uint64, error) {
	h := xxhash.New()
	_, _ = h.WriteString(call.Domain)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(call.Service)
	_, _ = h.Write([]byte{0})
	for _, m := range []map[string]any{call.Data, call.Target} {
		b, err := json.Marshal(m)
		if err != nil {
			return 0, err
		}
		_, _ = h.Write(b)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64(), nil
}

// decisionCache is a bounded cache of rule outcomes keyed by call hash.
// Eviction is FIFO; the working set of distinct calls is small.
type decisionCache struct {
	mu      sync.Mutex
	entries map[uint64]string
	order   []uint64
	maxSize int
}

func newDecisionCache(maxSize int) *decisionCache {
	return &decisionCache{entries: make(map[uint64]string, maxSize), maxSize: maxSize}
}

func (c *decisionCache) get(key uint64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *decisionCache) put(key uint64, rule string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = rule
		return
	}
	if len(c.order) >= c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = rule
	c.order = append(c.order, key)
}

func (c *decisionCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

var _ outbound.ServiceGuard = (*Guard)(nil)
