package sage

import (
	"sort"
	"sync"
)

// Registry is the mutable, concurrency-safe capability catalog. Reads
// vastly outnumber writes: every request consults it for validation
// and execution, while registration happens at startup and whenever
// the code-generation gateway promotes a new tool.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool under its own name. Registering the same name
// again replaces the previous entry; in-flight requests that already
// took a snapshot keep the tool they resolved.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return NewConfigurationError("cannot register a nil tool", nil)
	}
	name := tool.Name()
	if name == "" {
		return NewConfigurationError("cannot register a tool with an empty name", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Snapshot returns a copy of the current name-to-tool mapping. A
// request validates and executes against one snapshot, so concurrent
// registrations never produce a torn view mid-plan.
func (r *Registry) Snapshot() map[string]Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := make(map[string]Tool, len(r.tools))
	for name, tool := range r.tools {
		snap[name] = tool
	}
	return snap
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog returns descriptors for every registered tool, sorted by
// name so the planner prompt stays deterministic.
func (r *Registry) Catalog() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	catalog := make([]ToolDescriptor, 0, len(r.tools))
	for _, tool := range r.tools {
		catalog = append(catalog, tool.Descriptor())
	}
	sort.Slice(catalog, func(i, j int) bool { return catalog[i].Name < catalog[j].Name })
	return catalog
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
