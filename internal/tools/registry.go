// ABOUTME: Closed registry of tool adapters built once at startup
// ABOUTME: Rejects tool name collisions and routes invocations by tool name

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
)

type entry struct {
	adapter    Adapter
	definition Definition
}

// Registry maps tool names to the adapters that serve them.
// It is immutable after NewRegistry returns.
type Registry struct {
	tools       map[string]entry
	definitions []Definition
}

// NewRegistry registers every adapter's tools.
// Returns ErrToolCollision if any tool name is exposed twice.
func NewRegistry(logger *slog.Logger, adapters ...Adapter) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{tools: make(map[string]entry)}

	for _, a := range adapters {
		defs := a.Definitions()
		for _, def := range defs {
			if existing, exists := r.tools[def.Name]; exists {
				return nil, fmt.Errorf("%w: tool '%s' already registered by adapter '%s'",
					ErrToolCollision, def.Name, existing.adapter.Name())
			}
			r.tools[def.Name] = entry{adapter: a, definition: def}
			r.definitions = append(r.definitions, def)
		}

		logger.Info("=== ADAPTER REGISTERED ===",
			"adapter", a.Name(),
			"tool_count", len(defs),
			"total_tools", len(r.tools),
		)
	}

	sort.Slice(r.definitions, func(i, j int) bool {
		return r.definitions[i].Name < r.definitions[j].Name
	})
	return r, nil
}

// Definitions returns all tool definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.definitions))
	copy(out, r.definitions)
	return out
}

// Lookup returns the adapter serving the named tool.
func (r *Registry) Lookup(name string) (Adapter, bool) {
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.adapter, true
}

// Invoke routes a call to the adapter that owns name.
// Returns an error wrapping ErrUnknownTool when no adapter does.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage, cred Credential) (any, error) {
	a, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return a.Invoke(ctx, name, args, cred)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}
