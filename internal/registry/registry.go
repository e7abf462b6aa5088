// Package registry implements the plugin registry: a keyed collection per
// capability kind (event_bus, market_data, input, output, llm, agent,
// risk_rule, task_handler). Grounded on the teacher's internal/work/registry.go
// and the reference PluginRegistry in original_source/core/registry.py.
package registry

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Kind identifies one of the eight capability kinds a plugin can register under.
type Kind string

const (
	KindEventBus    Kind = "event_bus"
	KindMarketData  Kind = "market_data"
	KindInput       Kind = "input"
	KindOutput      Kind = "output"
	KindLLM         Kind = "llm"
	KindAgent       Kind = "agent"
	KindRiskRule    Kind = "risk_rule"
	KindTaskHandler Kind = "task_handler"
)

var allKinds = []Kind{
	KindEventBus, KindMarketData, KindInput, KindOutput,
	KindLLM, KindAgent, KindRiskRule, KindTaskHandler,
}

// Named is satisfied by any plugin instance: it just needs a unique name
// within its registered kind.
type Named interface {
	Name() string
}

// Registry is the central, process-wide collection of plugin instances.
// Mutations happen only at startup or during explicit enable/disable, per
// the single-writer policy in spec §5.
type Registry struct {
	mu      sync.RWMutex
	log     zerolog.Logger
	plugins map[Kind]map[string]Named
}

// New creates an empty Registry.
func New(log zerolog.Logger) *Registry {
	r := &Registry{
		log:     log.With().Str("component", "registry").Logger(),
		plugins: make(map[Kind]map[string]Named, len(allKinds)),
	}
	for _, k := range allKinds {
		r.plugins[k] = make(map[string]Named)
	}
	return r
}

// Register adds instance under kind, keyed by instance.Name(). Registering
// the same name twice overwrites the previous instance with a warning.
func (r *Registry) Register(kind Kind, instance Named) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := instance.Name()
	if _, exists := r.plugins[kind][name]; exists {
		r.log.Warn().Str("kind", string(kind)).Str("name", name).Msg("overwriting existing plugin registration")
	}
	r.plugins[kind][name] = instance
	r.log.Info().Str("kind", string(kind)).Str("name", name).Msg("registered plugin")
}

// Get returns the plugin registered under kind with the given name, or false
// if none is registered.
func (r *Registry) Get(kind Kind, name string) (Named, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.plugins[kind][name]
	return inst, ok
}

// GetAll returns every plugin registered under kind, ordered by name for
// deterministic iteration (registration order otherwise isn't preserved by
// a map).
func (r *Registry) GetAll(kind Kind) []Named {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins[kind]))
	for name := range r.plugins[kind] {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Named, 0, len(names))
	for _, name := range names {
		out = append(out, r.plugins[kind][name])
	}
	return out
}

// Has reports whether a plugin is registered under kind with the given name.
func (r *Registry) Has(kind Kind, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.plugins[kind][name]
	return ok
}

// Names lists every registered plugin name under kind.
func (r *Registry) Names(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins[kind]))
	for name := range r.plugins[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary returns every non-empty kind mapped to its registered names.
func (r *Registry) Summary() map[Kind][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Kind][]string)
	for _, k := range allKinds {
		if len(r.plugins[k]) == 0 {
			continue
		}
		names := make([]string, 0, len(r.plugins[k]))
		for name := range r.plugins[k] {
			names = append(names, name)
		}
		sort.Strings(names)
		out[k] = names
	}
	return out
}
