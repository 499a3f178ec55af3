// Package tools holds the process-wide tool-capability table.
package tools

import (
	"encoding/json"
	"sync"

	"github.com/xiaot623/chatd/internal/domain"
)

type toolState struct {
	name        string
	description string
	disabled    bool
	parameters  json.RawMessage
}

type serverState struct {
	name        string
	description string
	disabled    bool
	tools       []*toolState
}

// Registry stores tool servers and their enable flags.
// Every operation is atomic with respect to the others.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	servers map[string]*serverState
}

// NewRegistry creates a registry initialised from specs.
func NewRegistry(specs []domain.ToolServerSpec) *Registry {
	r := &Registry{servers: make(map[string]*serverState)}
	r.Load(specs)
	return r
}

// Load replaces the catalog with specs. Servers and tools that were already
// known keep their current enable flags.
func (r *Registry) Load(specs []domain.ToolServerSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order := make([]string, 0, len(specs))
	servers := make(map[string]*serverState, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			continue
		}
		if _, dup := servers[spec.Name]; dup {
			continue
		}
		prev := r.servers[spec.Name]
		s := &serverState{
			name:        spec.Name,
			description: spec.Description,
			disabled:    spec.Disabled,
		}
		if prev != nil {
			s.disabled = prev.disabled
		}
		for _, ts := range spec.Tools {
			t := &toolState{
				name:        ts.Name,
				description: ts.Description,
				disabled:    ts.Disabled,
				parameters:  ts.Parameters,
			}
			if prev != nil {
				if pt := prev.tool(ts.Name); pt != nil {
					t.disabled = pt.disabled
				}
			}
			s.tools = append(s.tools, t)
		}
		order = append(order, spec.Name)
		servers[spec.Name] = s
	}
	r.order = order
	r.servers = servers
}

// ListServers returns every server with the flags of its tools, in catalog order.
func (r *Registry) ListServers() []domain.ToolServer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ToolServer, 0, len(r.order))
	for _, name := range r.order {
		s := r.servers[name]
		view := domain.ToolServer{
			Name:        s.name,
			Description: s.description,
			Disabled:    s.disabled,
			Tools:       make([]domain.Tool, 0, len(s.tools)),
		}
		for _, t := range s.tools {
			view.Tools = append(view.Tools, domain.Tool{
				Name:        t.name,
				Description: t.description,
				Disabled:    t.disabled,
			})
		}
		out = append(out, view)
	}
	return out
}

// SetServerEnabled toggles a server. Tool flags are left untouched, so
// re-enabling restores exactly the previously enabled tools.
func (r *Registry) SetServerEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.servers[name]
	if !ok {
		return domain.NewError(domain.KindNotFound, "tool server %q not found", name)
	}
	s.disabled = !enabled
	return nil
}

// SetToolEnabled toggles one tool of a server.
func (r *Registry) SetToolEnabled(server, tool string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.servers[server]
	if !ok {
		return domain.NewError(domain.KindNotFound, "tool server %q not found", server)
	}
	t := s.tool(tool)
	if t == nil {
		return domain.NewError(domain.KindNotFound, "tool %q not found on server %q", tool, server)
	}
	t.disabled = !enabled
	return nil
}

// EnabledTools returns the tools of enabled servers that are themselves
// enabled. When serverFilter is given only those servers are considered.
func (r *Registry) EnabledTools(serverFilter ...string) []domain.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var allow map[string]bool
	if len(serverFilter) > 0 {
		allow = make(map[string]bool, len(serverFilter))
		for _, name := range serverFilter {
			allow[name] = true
		}
	}

	out := []domain.ToolDescriptor{}
	for _, name := range r.order {
		s := r.servers[name]
		if s.disabled || (allow != nil && !allow[name]) {
			continue
		}
		for _, t := range s.tools {
			if t.disabled {
				continue
			}
			out = append(out, domain.ToolDescriptor{
				Server:      s.name,
				Name:        t.name,
				Description: t.description,
				Parameters:  t.parameters,
			})
		}
	}
	return out
}

func (s *serverState) tool(name string) *toolState {
	for _, t := range s.tools {
		if t.name == name {
			return t
		}
	}
	return nil
}
