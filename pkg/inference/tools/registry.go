package tools

import (
	"sort"
	"sync"

	"github.com/go-go-golems/atomclaw/pkg/inference/engine"
	"github.com/pkg/errors"
)

// ToolRegistry is the set of tools offered to the model.
type ToolRegistry interface {
	RegisterTool(name string, def ToolDefinition) error
	GetTool(name string) (*ToolDefinition, error)
	ListTools() []ToolDefinition
}

type InMemoryToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]ToolDefinition
}

func NewInMemoryToolRegistry() *InMemoryToolRegistry {
	return &InMemoryToolRegistry{tools: make(map[string]ToolDefinition)}
}

func (r *InMemoryToolRegistry) RegisterTool(name string, def ToolDefinition) error {
	if name == "" {
		return errors.New("tool name cannot be empty")
	}
	if def.Name != "" && def.Name != name {
		return errors.Errorf("tool definition name (%s) does not match registry name (%s)", def.Name, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return errors.Errorf("tool %s already registered", name)
	}
	def.Name = name
	r.tools[name] = def
	return nil
}

// GetTool returns a copy of the definition.
func (r *InMemoryToolRegistry) GetTool(name string) (*ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, errors.Errorf("tool not found: %s", name)
	}
	return &tool, nil
}

// ListTools is sorted by name so the schema sent to the model is stable.
func (r *InMemoryToolRegistry) ListTools() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *InMemoryToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Specs lists the provider-facing schemas of every tool in reg.
func Specs(reg ToolRegistry) []engine.ToolSpec {
	if reg == nil {
		return nil
	}
	defs := reg.ListTools()
	out := make([]engine.ToolSpec, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Spec())
	}
	return out
}
