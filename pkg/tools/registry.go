// Package tools implements ToolRegistry, the named, schema-described
// side-effectful operations an agent turn can invoke (spec §4.8). Built-in
// tools are registered selectively from a configuration allowlist. Of the
// filesystem tools only edit_file is confined to the workspace root;
// read_file, write_file and list_dir accept any path. The shell tool's
// workspace flag (ExecTool.SetRestrictToWorkspace) only rejects commands
// containing "..", and config's tools.restrictToWorkspace is not applied
// to any tool.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rotbot/rotbot/pkg/providers"
)

// Tool is a named, schema-described side-effectful operation. Execute must
// never panic across the registry boundary; ExecuteWithContext recovers any
// panic into a structured error result so a bad tool can't crash a turn.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// ToolRegistry maps tool names to implementations and dispatches execution,
// optionally enforcing a ToolExecutionPolicy allow/deny list.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	policy ToolExecutionPolicy
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns registered tool names in sorted order.
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetExecutionPolicy installs the allow/deny policy checked before every
// dispatch. Safe to call concurrently with Execute.
func (r *ToolRegistry) SetExecutionPolicy(p ToolExecutionPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policy = p
}

// GetProviderDefinitions returns an ordered ToolDefinition list suitable
// for advertisement to a tool-capable LLM provider.
func (r *ToolRegistry) GetProviderDefinitions() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Execute dispatches name with no channel/chat execution context.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	return r.ExecuteWithContext(ctx, name, args, "", "")
}

// ExecuteWithContext dispatches a tool call, returning a structured error
// result (never propagating a panic or an unknown-tool condition as an
// exception) per §4.8 and §9's "result sum types" design note. channel/chatID
// are threaded into the tool's argument map so context-sensitive tools
// (message, spawn, cron) can target the originating conversation.
func (r *ToolRegistry) ExecuteWithContext(ctx context.Context, name string, args map[string]interface{}, channel, chatID string) (result string, err error) {
	r.mu.RLock()
	policy := r.policy
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	if policyErr := policy.check(name); policyErr != nil {
		return "", policyErr
	}

	traceID := getExecutionTraceID(args)
	execArgs := withExecutionContext(args, channel, chatID, traceID)
	if traceID != "" {
		ctx = WithTraceID(ctx, traceID)
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = ""
			err = fmt.Errorf("tool %s panicked: %v", name, rec)
		}
	}()

	return tool.Execute(ctx, execArgs)
}

// RegisterCoreTools registers the built-in filesystem, shell, and editing
// tools. Only EditFileTool and ExecTool receive workspace: edit_file refuses
// paths outside it and exec runs commands in it. ReadFileTool, WriteFileTool
// and ListDirTool are constructed without a root and accept any path.
// Nothing here enables ExecTool.SetRestrictToWorkspace.
func RegisterCoreTools(registry *ToolRegistry, workspace, webSearchAPIKey string, webSearchMaxResults int) {
	registry.Register(&ReadFileTool{})
	registry.Register(&WriteFileTool{})
	registry.Register(&ListDirTool{})
	registry.Register(NewEditFileTool(workspace))
	registry.Register(NewExecTool(workspace))
	registry.Register(NewMathSolverTool())

	if webSearchAPIKey != "" {
		registry.Register(NewWebSearchTool(webSearchAPIKey, webSearchMaxResults))
	}
}
