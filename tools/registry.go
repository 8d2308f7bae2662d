// Information Hiding: the registry hides tool lookup and execution wiring
// behind a name-keyed surface. Callers never touch the executor or the
// backing map directly.

package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/loomhq/loom/llm"
)

// Registry holds named tools and runs them on demand. It is the execution
// side of a call exchange: the client asks it for definitions up front and
// dispatches the model's tool calls back through Run.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	executor *Executor
}

var _ llm.ToolRunner = (*Registry)(nil)

// NewRegistry creates an empty registry backed by executor.
func NewRegistry(executor *Executor) *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		executor: executor,
	}
}

// FromTools creates a registry pre-populated with the given tools, skipping
// any that fail validation.
func FromTools(executor *Executor, ts []Tool) *Registry {
	r := NewRegistry(executor)
	for _, t := range ts {
		_ = r.Register(t)
	}
	return r
}

// Register adds a tool. Names are unique; registering an existing name
// replaces the previous tool so edits take effect without a remove step.
func (r *Registry) Register(t Tool) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("register tool: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
	return nil
}

// Remove deletes a tool by name. Removing an unknown name is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
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

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Definitions renders every registered tool as a provider-neutral
// definition, sorted by name so the wire payload is deterministic.
func (r *Registry) Definitions() []llm.ToolDefinition {
	tools := r.List()
	defs := make([]llm.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Run executes the named tool with args and returns its serialized result.
// An unknown name yields llm.ToolNotFoundError; script failures come back
// as *ExecutionError.
func (r *Registry) Run(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", &llm.ToolNotFoundError{Name: name}
	}
	return r.executor.Execute(ctx, t, args)
}
