package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotbot/rotbot/pkg/bus"
	"github.com/rotbot/rotbot/pkg/llmloop"
	"github.com/rotbot/rotbot/pkg/logger"
	"github.com/rotbot/rotbot/pkg/providers"
	"github.com/rotbot/rotbot/pkg/skills"
	"github.com/rotbot/rotbot/pkg/utils"
)

// ErrSubagentTaskNotFound is returned by Cancel when no task has the given ID.
var ErrSubagentTaskNotFound = errors.New("subagent task not found")

// ErrSubagentNotRunning is returned by Cancel when the task has already
// finished (completed, failed or cancelled) and there is nothing to stop.
var ErrSubagentNotRunning = errors.New("subagent task is not running")

const (
	defaultRetentionMaxTasks = 200
	defaultRetentionTTL      = 24 * time.Hour
)

type SubagentTask struct {
	ID            string
	Task          string
	Label         string
	OriginChannel string
	OriginChatID  string
	TraceID       string
	Status        string
	Result        string
	Created       int64
	Finished      int64
}

type SubagentManager struct {
	tasks     map[string]*SubagentTask
	cancels   map[string]context.CancelFunc
	mu        sync.RWMutex
	provider  providers.LLMProvider
	model     string
	bus       *bus.MessageBus
	workspace string
	nextID    int

	retentionMaxTasks int
	retentionTTL      time.Duration
}

func NewSubagentManager(provider providers.LLMProvider, model string, workspace string, bus *bus.MessageBus) *SubagentManager {
	return &SubagentManager{
		tasks:             make(map[string]*SubagentTask),
		cancels:           make(map[string]context.CancelFunc),
		provider:          provider,
		model:             model,
		bus:               bus,
		workspace:         workspace,
		nextID:            1,
		retentionMaxTasks: defaultRetentionMaxTasks,
		retentionTTL:      defaultRetentionTTL,
	}
}

// ConfigureRetention bounds how many finished tasks GetTask/ListTasks will
// keep around: at most maxTasks total, and never longer than ttl past
// completion. Enforced opportunistically whenever a task finishes.
func (sm *SubagentManager) ConfigureRetention(maxTasks int, ttl time.Duration) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.retentionMaxTasks = maxTasks
	sm.retentionTTL = ttl
}

func (sm *SubagentManager) Spawn(ctx context.Context, task, label, originChannel, originChatID, traceID string) (string, error) {
	sm.mu.Lock()

	taskID := fmt.Sprintf("subagent-%d", sm.nextID)
	sm.nextID++

	subagentTask := &SubagentTask{
		ID:            taskID,
		Task:          task,
		Label:         label,
		OriginChannel: originChannel,
		OriginChatID:  originChatID,
		TraceID:       traceID,
		Status:        "running",
		Created:       time.Now().UnixMilli(),
	}
	sm.tasks[taskID] = subagentTask

	runCtx, cancel := context.WithCancel(ctx)
	sm.cancels[taskID] = cancel

	sm.mu.Unlock()

	go sm.runTask(runCtx, subagentTask)

	return taskID, nil
}

// Cancel requests that a running task stop. It returns ErrSubagentTaskNotFound
// if the ID is unknown and ErrSubagentNotRunning if the task already finished.
func (sm *SubagentManager) Cancel(taskID string) error {
	sm.mu.Lock()
	task, ok := sm.tasks[taskID]
	if !ok {
		sm.mu.Unlock()
		return ErrSubagentTaskNotFound
	}
	if task.Status != "running" {
		sm.mu.Unlock()
		return ErrSubagentNotRunning
	}
	cancel, ok := sm.cancels[taskID]
	task.Status = "cancelling"
	sm.mu.Unlock()

	if ok && cancel != nil {
		cancel()
	}
	return nil
}

func (sm *SubagentManager) runTask(ctx context.Context, task *SubagentTask) {
	registry := NewToolRegistry()
	registry.Register(&ReadFileTool{})
	registry.Register(&WriteFileTool{})
	registry.Register(&ListDirTool{})
	registry.Register(NewExecTool(sm.workspace))
	registry.Register(NewEditFileTool(sm.workspace))
	registry.Register(NewWebFetchTool(50000))
	// Web search requires an API key; the tool will self-report if missing.
	registry.Register(NewWebSearchTool("", 5))
	registry.Register(NewSubagentReportTool(sm.bus, task.ID, task.Label, task.OriginChannel, task.OriginChatID))

	systemPrompt := sm.buildSubagentSystemPrompt(registry)
	messages := []providers.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: task.Task},
	}

	model := sm.model
	if model == "" {
		model = sm.provider.GetDefaultModel()
	}

	var final string
	var finalErr error

	runResult, err := llmloop.Run(ctx, llmloop.RunOptions{
		Provider:      sm.provider,
		Model:         model,
		MaxIterations: 10,
		ChatOptions: map[string]interface{}{
			"max_tokens":  4096,
			"temperature": 0.3,
		},
		MessageBudget: providers.BudgetFromContextWindow(8192),
		Messages:      messages,
		BuildToolDefs: func(iteration int, _ []providers.Message) []providers.ToolDefinition {
			return sm.buildProviderToolDefinitions(registry)
		},
		ExecuteTools: func(ctx context.Context, toolCalls []providers.ToolCall, iteration int) []providers.Message {
			results := make([]providers.Message, 0, len(toolCalls))
			for _, tc := range toolCalls {
				select {
				case <-ctx.Done():
					return results
				default:
				}

				argsJSON, _ := json.Marshal(tc.Arguments)
				argsPreview := utils.Truncate(string(argsJSON), 200)
				logger.InfoCF("subagent", fmt.Sprintf("Tool call: %s(%s)", tc.Name, argsPreview),
					map[string]interface{}{
						"task_id":   task.ID,
						"iteration": iteration,
						"tool":      tc.Name,
						"tool_call": tc.ID,
					})

				result, err := registry.Execute(ctx, tc.Name, tc.Arguments)
				if err != nil {
					result = fmt.Sprintf("Error: %v", err)
				}

				results = append(results, providers.Message{
					Role:       "tool",
					Content:    result,
					ToolCallID: tc.ID,
				})
			}
			return results
		},
		Hooks: llmloop.Hooks{
			BeforeLLMCall: func(iteration int, msgs []providers.Message, toolDefs []providers.ToolDefinition) {
				logger.InfoCF("subagent", "Calling LLM",
					map[string]interface{}{
						"task_id":        task.ID,
						"iteration":      iteration,
						"model":          model,
						"messages_count": len(msgs),
						"tools_count":    len(toolDefs),
					})
			},
		},
	})
	if err != nil {
		finalErr = err
	} else if runResult.Exhausted {
		finalErr = fmt.Errorf("subagent reached its tool call iteration limit without a final answer")
	} else {
		final = runResult.FinalContent
	}
	if ctx.Err() != nil {
		finalErr = ctx.Err()
	}

	sm.mu.Lock()
	delete(sm.cancels, task.ID)
	now := time.Now()
	task.Finished = now.UnixMilli()
	switch {
	case task.Status == "cancelling" || errors.Is(finalErr, context.Canceled):
		task.Status = "cancelled"
		task.Result = "Task cancelled"
	case finalErr != nil:
		task.Status = "failed"
		task.Result = fmt.Sprintf("Error: %v", finalErr)
	default:
		task.Status = "completed"
		task.Result = final
	}
	sm.cleanupLocked(now)
	sm.mu.Unlock()

	if sm.bus != nil && task.Status != "cancelled" {
		label := task.Label
		if label == "" {
			label = task.ID
		}
		announceContent := fmt.Sprintf("Task '%s' completed.\n\nResult:\n%s", label, task.Result)
		sm.bus.PublishInbound(bus.InboundMessage{
			Channel:  "system",
			SenderID: fmt.Sprintf("subagent:%s", task.ID),
			// Format: "original_channel:original_chat_id" for routing back
			ChatID: fmt.Sprintf("%s:%s", task.OriginChannel, task.OriginChatID),
			Content: announceContent,
			Metadata: map[string]string{
				"subagent_event":   "complete",
				"subagent_task_id": task.ID,
			},
		})
	}
}

// cleanupLocked drops finished tasks past the TTL and, if still over the max
// count, the oldest finished tasks first. Callers must hold sm.mu.
func (sm *SubagentManager) cleanupLocked(now time.Time) {
	isFinished := func(status string) bool {
		switch status {
		case "completed", "failed", "cancelled":
			return true
		}
		return false
	}

	if sm.retentionTTL > 0 {
		for id, task := range sm.tasks {
			if !isFinished(task.Status) || task.Finished == 0 {
				continue
			}
			if now.Sub(time.UnixMilli(task.Finished)) > sm.retentionTTL {
				delete(sm.tasks, id)
			}
		}
	}

	if sm.retentionMaxTasks <= 0 || len(sm.tasks) <= sm.retentionMaxTasks {
		return
	}

	var finished []*SubagentTask
	for _, task := range sm.tasks {
		if isFinished(task.Status) {
			finished = append(finished, task)
		}
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].Created < finished[j].Created })

	excess := len(sm.tasks) - sm.retentionMaxTasks
	for _, task := range finished {
		if excess <= 0 {
			break
		}
		delete(sm.tasks, task.ID)
		excess--
	}
}

func (sm *SubagentManager) buildSubagentSystemPrompt(registry *ToolRegistry) string {
	// Build tools section dynamically
	toolsSection := ""
	summaries := registry.GetSummaries()
	if len(summaries) > 0 {
		toolsSection = "## Available Tools\n\n" +
			"**CRITICAL**: You MUST use tools to perform actions. Do NOT pretend to execute commands.\n\n" +
			"You have access to the following tools:\n\n" +
			strings.Join(summaries, "\n")
	}

	// Skills summary (same loader behavior as main agent: workspace > global > builtin)
	wd, _ := os.Getwd()
	globalSkillsDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		globalSkillsDir = filepath.Join(home, ".rotbot", "skills")
	}
	loader := skills.NewSkillsLoader(sm.workspace, globalSkillsDir, filepath.Join(wd, "skills"))
	skillsSummary := loader.BuildSkillsSummary()
	if skillsSummary != "" {
		skillsSummary = "## Skills\n\nThe following skills extend your capabilities. To use a skill, read its skill file using the read_file tool.\n\n" + skillsSummary
	}

	workspacePath, _ := filepath.Abs(filepath.Join(sm.workspace))

	parts := []string{
		"# rotbot subagent",
		"You are a background subagent working for the main rotbot agent.",
		"\nRules:",
		"1. Use tools when you need to perform an action.",
		"2. Do NOT message the end user. Use `subagent_report` to communicate with the main agent.",
		"3. When finished, provide a clear result and include any artifact file paths.",
		fmt.Sprintf("\nWorkspace: %s", workspacePath),
	}

	if toolsSection != "" {
		parts = append(parts, "\n"+toolsSection)
	}
	if skillsSummary != "" {
		parts = append(parts, "\n"+skillsSummary)
	}

	return strings.Join(parts, "\n")
}

func (sm *SubagentManager) buildProviderToolDefinitions(registry *ToolRegistry) []providers.ToolDefinition {
	schemas := registry.GetDefinitions()
	defs := make([]providers.ToolDefinition, 0, len(schemas))
	for _, td := range schemas {
		fn, ok := td["function"].(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		params, _ := fn["parameters"].(map[string]interface{})
		typeStr, _ := td["type"].(string)
		if name == "" || typeStr == "" {
			continue
		}
		defs = append(defs, providers.ToolDefinition{
			Type: typeStr,
			Function: providers.ToolFunctionDefinition{
				Name:        name,
				Description: desc,
				Parameters:  params,
			},
		})
	}
	return defs
}

func (sm *SubagentManager) GetTask(taskID string) (*SubagentTask, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	task, ok := sm.tasks[taskID]
	return task, ok
}

func (sm *SubagentManager) ListTasks() []*SubagentTask {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	tasks := make([]*SubagentTask, 0, len(sm.tasks))
	for _, task := range sm.tasks {
		tasks = append(tasks, task)
	}
	return tasks
}
