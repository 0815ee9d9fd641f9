// Package registry indexes worker servers and their tools, exposing
// capability search, server filtering, and name resolution. It is populated
// at kernel initialization; reads take a shared read lock, so they only wait
// on Initialize and connection-status updates from the transport layer.
package registry

import (
	"strings"
	"sync"

	"github.com/shaleyeah/agentkernel/types"
)

// ServerConfig is the static description of a worker server supplied at
// kernel initialization. Script is opaque to the registry — it belongs to
// the transport layer and is never read here.
type ServerConfig struct {
	Name         string
	Script       string
	Description  string
	Persona      string
	Domain       string
	Capabilities []string
	// ArgsSchema optionally supplies a JSON Schema document for this server's
	// primary tool's argument payload.
	ArgsSchema []byte
}

// Filter narrows listServers results. Every non-empty field is AND-combined.
type Filter struct {
	Domain     string
	ToolType   types.ToolType
	Capability string
}

// commandServers produce tools of type "command"; all others are "query".
var commandServers = map[string]struct{}{
	"reporter": {},
	"decision": {},
}

// confirmationServers produce tools flagged RequiresConfirmation.
var confirmationServers = map[string]struct{}{
	"decision": {},
}

var allDetailLevels = []types.DetailLevel{types.DetailSummary, types.DetailStandard, types.DetailFull}

// Registry indexes servers and their tools.
type Registry struct {
	mu sync.RWMutex

	servers map[string]*types.ServerInfo
	tools   map[string]*types.ToolDescriptor
	byCap   map[string][]string // capability (lowercase) -> tool names
	order   []string            // server names in registration order
}

// New returns an empty Registry. Call Initialize to populate it.
func New() *Registry {
	return &Registry{
		servers: make(map[string]*types.ServerInfo),
		tools:   make(map[string]*types.ToolDescriptor),
		byCap:   make(map[string][]string),
	}
}

// Initialize populates the registry from server configs. It is idempotent:
// calling it more than once replaces the prior index entirely.
func (r *Registry) Initialize(configs []ServerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.servers = make(map[string]*types.ServerInfo, len(configs))
	r.tools = make(map[string]*types.ToolDescriptor, len(configs))
	r.byCap = make(map[string][]string)
	r.order = r.order[:0]

	for _, c := range configs {
		toolType := types.ToolTypeQuery
		if _, ok := commandServers[c.Name]; ok {
			toolType = types.ToolTypeCommand
		}
		_, requiresConfirmation := confirmationServers[c.Name]

		toolName := c.Name + ".analyze"
		desc := &types.ToolDescriptor{
			Name:                 toolName,
			Server:               c.Name,
			Type:                 toolType,
			Description:          c.Description,
			Capabilities:         append([]string(nil), c.Capabilities...),
			DetailLevels:         allDetailLevels,
			ReadOnly:             toolType == types.ToolTypeQuery,
			Destructive:          requiresConfirmation,
			RequiresConfirmation: requiresConfirmation,
			Schema:               c.ArgsSchema,
		}
		r.tools[toolName] = desc

		r.servers[c.Name] = &types.ServerInfo{
			Name:         c.Name,
			Domain:       c.Domain,
			Persona:      c.Persona,
			ToolCount:    1,
			Capabilities: append([]string(nil), c.Capabilities...),
			Status:       types.StatusDisconnected,
		}
		r.order = append(r.order, c.Name)

		for _, cap := range c.Capabilities {
			key := strings.ToLower(cap)
			r.byCap[key] = append(r.byCap[key], toolName)
		}
	}
}

// ListServers returns servers matching the optional filter. Nil filter
// returns every server in registration order.
func (r *Registry) ListServers(filter *Filter) []types.ServerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ServerInfo, 0, len(r.order))
	for _, name := range r.order {
		srv := r.servers[name]
		if srv == nil {
			continue
		}
		if filter != nil {
			if filter.Domain != "" && !strings.EqualFold(srv.Domain, filter.Domain) {
				continue
			}
			if filter.ToolType != "" && !r.serverHasToolType(name, filter.ToolType) {
				continue
			}
			if filter.Capability != "" && !r.serverHasCapability(name, filter.Capability) {
				continue
			}
		}
		out = append(out, *srv)
	}
	return out
}

func (r *Registry) serverHasToolType(server string, t types.ToolType) bool {
	for _, tool := range r.tools {
		if tool.Server == server && tool.Type == t {
			return true
		}
	}
	return false
}

func (r *Registry) serverHasCapability(server, query string) bool {
	lower := strings.ToLower(query)
	for _, tool := range r.tools {
		if tool.Server != server {
			continue
		}
		for _, cap := range tool.Capabilities {
			if strings.Contains(strings.ToLower(cap), lower) {
				return true
			}
		}
	}
	return false
}

// ListTools returns every tool descriptor, optionally scoped to one server.
func (r *Registry) ListTools(serverName string) []types.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ToolDescriptor, 0, len(r.tools))
	for _, name := range r.order {
		for _, tool := range r.tools {
			if tool.Server != name {
				continue
			}
			if serverName != "" && tool.Server != serverName {
				continue
			}
			out = append(out, *tool)
		}
	}
	return out
}

// FindByCapability returns tools whose capability tags case-insensitively
// contain query, de-duplicated by tool name. Result order is not guaranteed.
func (r *Registry) FindByCapability(query string) []types.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if query == "" {
		return nil
	}
	lower := strings.ToLower(query)
	seen := make(map[string]struct{})
	var out []types.ToolDescriptor
	for capKey, names := range r.byCap {
		if !strings.Contains(capKey, lower) {
			continue
		}
		for _, name := range names {
			if _, ok := seen[name]; ok {
				continue
			}
			tool, ok := r.tools[name]
			if !ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, *tool)
		}
	}
	return out
}

// ResolveServer resolves toolName to its owning server name. toolName may be
// a fully qualified name, a bare server name (its primary tool), or a
// prefix (first matching tool wins).
func (r *Registry) ResolveServer(toolName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tool, ok := r.tools[toolName]; ok {
		return tool.Server, true
	}
	if srv, ok := r.servers[toolName]; ok {
		return srv.Name, true
	}
	for _, name := range r.order {
		for toolName2, tool := range r.tools {
			if tool.Server == name && strings.HasPrefix(toolName2, toolName) {
				return tool.Server, true
			}
		}
	}
	return "", false
}

// GetTool looks up a tool descriptor by fully qualified name.
func (r *Registry) GetTool(toolName string) (types.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[toolName]
	if !ok {
		return types.ToolDescriptor{}, false
	}
	return *tool, true
}

// SetServerStatus updates a server's connection status. Unknown server names
// are ignored.
func (r *Registry) SetServerStatus(name string, status types.ConnectionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if srv, ok := r.servers[name]; ok {
		srv.Status = status
	}
}
