// PicoClaw - Ultra-lightweight personal AI agent
// Inspired by and based on nanobot: https://github.com/HKUDS/nanobot
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotbot/rotbot/pkg/bus"
	"github.com/rotbot/rotbot/pkg/config"
	"github.com/rotbot/rotbot/pkg/logger"
	"github.com/rotbot/rotbot/pkg/memory"
	"github.com/rotbot/rotbot/pkg/providers"
	"github.com/rotbot/rotbot/pkg/safety"
	"github.com/rotbot/rotbot/pkg/session"
	"github.com/rotbot/rotbot/pkg/think"
	"github.com/rotbot/rotbot/pkg/tools"
	"github.com/rotbot/rotbot/pkg/utils"
)

type AgentLoop struct {
	bus              *bus.MessageBus
	provider         providers.LLMProvider
	workspace        string
	model            string
	contextWindow    int // Maximum context window size in tokens
	maxIterations    int
	llmTimeout       time.Duration // Per-LLM-call timeout (0 = disabled)
	toolTimeout      time.Duration // Per-tool-call timeout (0 = disabled)
	maxParallelTools int           // Max concurrent tools per iteration (<=0 = unlimited)
	sessions         *session.SessionManager
	contextBuilder   *ContextBuilder
	tools            *tools.ToolRegistry
	running          atomic.Bool
	summarizing      sync.Map            // Tracks which sessions are currently being summarized
	statusDelay      time.Duration       // Delay before sending "still working" status updates (0 = disabled)
	memoryStore      *memory.MemoryStore // Searchable memory DB (nil = disabled)
	history          *memory.HistoryStore
	memoryWindow     int                 // Trailing turn count kept after consolidation (spec §4.11 step 11)
	prefsStore       *prefsStore         // Per-session_key mode/model/deepthink preferences
	inputFilter      *safety.InputFilter
	outputFilter     *safety.OutputFilter
}

// processOptions configures how a message is processed
type processOptions struct {
	SessionKey      string // Session identifier for history/context
	Channel         string // Target channel for tool execution
	ChatID          string // Target chat ID for tool execution
	UserID          string // Originating sender ID, for the append-only history log
	UserMessage     string // User message content (may include prefix)
	DefaultResponse string // Response when LLM returns empty
	EnableSummary   bool   // Whether to trigger summarization
	SendResponse    bool   // Whether to send response via bus
	Model           string // Per-user model override; empty uses AgentLoop's default
	Mode            Mode   // Per-user mode; selects persona directive and reasoning visibility
	ShowThinking    bool   // Per-user deepthink flag: surface <think> segments in reasoning mode
}

func NewAgentLoop(cfg *config.Config, msgBus *bus.MessageBus, provider providers.LLMProvider) *AgentLoop {
	workspace := cfg.WorkspacePath()
	os.MkdirAll(workspace, 0755)

	toolsRegistry := tools.NewToolRegistry()
	tools.RegisterCoreTools(toolsRegistry, workspace, cfg.Tools.Web.Search.APIKey, cfg.Tools.Web.Search.MaxResults)

	// Register message tool
	messageTool := tools.NewMessageTool()
	messageTool.SetSendCallback(func(channel, chatID, content string, media []string) error {
		msgBus.PublishOutbound(bus.OutboundMessage{
			Channel: channel,
			ChatID:  chatID,
			Content: content,
			Media:   media,
		})
		return nil
	})
	toolsRegistry.Register(messageTool)

	// Register spawn tool
	subagentManager := tools.NewSubagentManager(provider, cfg.Agents.Defaults.Model, workspace, msgBus)
	spawnTool := tools.NewSpawnTool(subagentManager)
	toolsRegistry.Register(spawnTool)

	// Register memory tools (graceful degradation if SQLite init fails)
	memoryDBPath := filepath.Join(workspace, "memory", "memory.db")
	memoryDB, err := memory.NewMemoryStore(memoryDBPath, workspace)
	if err != nil {
		logger.WarnCF("agent", "Memory DB unavailable, memory tools disabled", map[string]interface{}{"error": err.Error()})
	} else {
		// Reindex existing markdown files into the search index
		if reindexErr := memoryDB.Reindex(); reindexErr != nil {
			logger.WarnCF("agent", "Memory reindex failed", map[string]interface{}{"error": reindexErr.Error()})
		}
		toolsRegistry.Register(tools.NewMemorySearchTool(memoryDB))
		toolsRegistry.Register(tools.NewMemoryStoreTool(memoryDB))
	}

	// memoryDB may be nil — that's fine, extractAndStoreMemories handles it

	historyStore, err := memory.NewHistoryStore(workspace)
	if err != nil {
		logger.WarnCF("agent", "History store unavailable, consolidation disabled", map[string]interface{}{"error": err.Error()})
	}

	sessionsManager := session.NewSessionManager(filepath.Join(workspace, "sessions"))

	// Create context builder and set tools registry
	contextBuilder := NewContextBuilder(workspace)
	contextBuilder.SetToolsRegistry(toolsRegistry)

	memoryWindow := cfg.Agents.Defaults.MemoryWindow
	if memoryWindow <= 0 {
		memoryWindow = 20
	}

	return &AgentLoop{
		bus:              msgBus,
		provider:         provider,
		workspace:        workspace,
		model:            cfg.Agents.Defaults.Model,
		contextWindow:    cfg.Agents.Defaults.MaxTokens, // Restore context window for summarization
		maxIterations:    cfg.Agents.Defaults.MaxToolIterations,
		llmTimeout:       time.Duration(cfg.Agents.Defaults.LLMTimeoutSeconds) * time.Second,
		toolTimeout:      time.Duration(cfg.Agents.Defaults.ToolTimeoutSeconds) * time.Second,
		maxParallelTools: cfg.Agents.Defaults.MaxParallelToolCalls,
		sessions:         sessionsManager,
		contextBuilder:   contextBuilder,
		tools:            toolsRegistry,
		summarizing:      sync.Map{},
		statusDelay:      30 * time.Second,
		memoryStore:      memoryDB,
		history:          historyStore,
		memoryWindow:     memoryWindow,
		prefsStore:       newPrefsStore(),
		inputFilter:      safety.NewInputFilter(),
		outputFilter:     safety.NewOutputFilter(),
	}
}

func (al *AgentLoop) Run(ctx context.Context) error {
	al.running.Store(true)

	for al.running.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
			msg, ok := al.bus.ConsumeInbound(ctx)
			if !ok {
				continue
			}

			response, err := func() (resp string, err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("panic: %v", r)
					}
				}()
				return al.processMessage(ctx, msg)
			}()
			if err != nil {
				response = fmt.Sprintf("Error processing message: %v", err)
			}

			if response != "" {
				al.bus.PublishOutbound(bus.OutboundMessage{
					Channel: msg.Channel,
					ChatID:  msg.ChatID,
					Content: response,
					IsFinal: true,
				})
			}
		}
	}

	return nil
}

func (al *AgentLoop) Stop() {
	al.running.Store(false)
}

func (al *AgentLoop) RegisterTool(tool tools.Tool) {
	al.tools.Register(tool)
}

func (al *AgentLoop) ProcessDirect(ctx context.Context, content, sessionKey string) (string, error) {
	return al.ProcessDirectWithChannel(ctx, content, sessionKey, "cli", "direct")
}

func (al *AgentLoop) ProcessDirectWithChannel(ctx context.Context, content, sessionKey, channel, chatID string) (string, error) {
	msg := bus.InboundMessage{
		Channel:    channel,
		SenderID:   "cron",
		ChatID:     chatID,
		Content:    content,
		SessionKey: sessionKey,
	}

	return al.processMessage(ctx, msg)
}

func (al *AgentLoop) processMessage(ctx context.Context, msg bus.InboundMessage) (string, error) {
	// Add message preview to log
	preview := utils.Truncate(msg.Content, 80)
	logger.InfoCF("agent", fmt.Sprintf("Processing message from %s:%s: %s", msg.Channel, msg.SenderID, preview),
		map[string]interface{}{
			"channel":     msg.Channel,
			"chat_id":     msg.ChatID,
			"sender_id":   msg.SenderID,
			"session_key": msg.SessionKey,
		})

	// Route system messages to processSystemMessage
	if msg.Channel == "system" {
		return al.processSystemMessage(ctx, msg)
	}

	// Step 1: command detection. A recognized command mutates
	// preferences/session state and ends the turn immediately with no
	// provider call (spec §4.11 step 1).
	if cmd, ok := parseCommand(msg.Content); ok {
		logger.InfoCF("agent", "Command detected", map[string]interface{}{
			"command":     cmd.Name,
			"session_key": msg.SessionKey,
		})
		return al.handleCommand(msg.SessionKey, cmd), nil
	}

	// Step 2: input safety. An unsafe input short-circuits before the user
	// turn is ever appended to session history (spec §4.11 step 2).
	check := al.inputFilter.CheckInput(msg.Content, msg.SenderID)
	if !check.Safe {
		logger.WarnCF("agent", "Input rejected by safety filter", map[string]interface{}{
			"session_key": msg.SessionKey,
			"level":       string(check.Level),
		})
		return check.Warning, nil
	}

	// Process as user message
	prefs := al.prefsStore.get(msg.SessionKey)
	return al.runAgentLoop(ctx, processOptions{
		SessionKey:      msg.SessionKey,
		Channel:         msg.Channel,
		ChatID:          msg.ChatID,
		UserID:          msg.SenderID,
		UserMessage:     check.Text,
		DefaultResponse: "I've completed processing but have no response to give.",
		EnableSummary:   true,
		SendResponse:    false,
		Model:           prefs.ModelOverride,
		Mode:            prefs.Mode,
		ShowThinking:    prefs.ShowThinking,
	})
}

func (al *AgentLoop) processSystemMessage(ctx context.Context, msg bus.InboundMessage) (string, error) {
	// Verify this is a system message
	if msg.Channel != "system" {
		return "", fmt.Errorf("processSystemMessage called with non-system message channel: %s", msg.Channel)
	}

	logger.InfoCF("agent", "Processing system message",
		map[string]interface{}{
			"sender_id": msg.SenderID,
			"chat_id":   msg.ChatID,
		})

	// Parse origin from chat_id (format: "channel:chat_id")
	var originChannel, originChatID string
	if idx := strings.Index(msg.ChatID, ":"); idx > 0 {
		originChannel = msg.ChatID[:idx]
		originChatID = msg.ChatID[idx+1:]
	} else {
		// Fallback
		originChannel = "cli"
		originChatID = msg.ChatID
	}

	// Use the origin session for context
	sessionKey := fmt.Sprintf("%s:%s", originChannel, originChatID)

	// Subagent internal reports should not be forwarded to the end user.
	// They can be stored as internal notes for later integration.
	if strings.HasPrefix(msg.SenderID, "subagent:") {
		event := ""
		if msg.Metadata != nil {
			event = msg.Metadata["subagent_event"]
		}

		// Progress-like events are internal only: store and return no user response.
		switch event {
		case "progress", "note", "warning":
			internal := fmt.Sprintf("[Internal: %s] %s", msg.SenderID, msg.Content)
			al.sessions.AddMessage(sessionKey, "assistant", internal)
			_ = al.sessions.Save(al.sessions.GetOrCreate(sessionKey))
			logger.InfoCF("agent", "Stored subagent update (internal)",
				map[string]interface{}{
					"session_key": sessionKey,
					"event":       event,
					"sender_id":   msg.SenderID,
				})
			return "", nil
		}
	}

	// Process as system message with routing back to origin
	_, err := al.runAgentLoop(ctx, processOptions{
		SessionKey:      sessionKey,
		Channel:         originChannel,
		ChatID:          originChatID,
		UserMessage:     fmt.Sprintf("[System: %s] %s", msg.SenderID, msg.Content),
		DefaultResponse: "Background task completed.",
		EnableSummary:   false,
		SendResponse:    true, // Send response back to original channel
	})
	if err != nil {
		// Avoid routing errors to the non-existent "system" channel. Send a fallback
		// message directly to the origin channel/chat.
		al.bus.PublishOutbound(bus.OutboundMessage{
			Channel: originChannel,
			ChatID:  originChatID,
			Content: fmt.Sprintf("Error processing background task: %v", err),
			IsFinal: true,
		})
	}
	return "", nil
}

// runAgentLoop is the core message processing logic.
// It handles context building, LLM calls, tool execution, and response handling.
func (al *AgentLoop) runAgentLoop(ctx context.Context, opts processOptions) (string, error) {
	turnStart := time.Now()

	// 1. Update tool contexts
	al.updateToolContexts(opts.Channel, opts.ChatID)

	// 2. Build messages
	history := al.sessions.GetHistory(opts.SessionKey)
	summary := al.sessions.GetSummary(opts.SessionKey)
	messages := al.contextBuilder.BuildMessages(
		history,
		summary,
		opts.UserMessage,
		nil,
		opts.Channel,
		opts.ChatID,
		opts.Mode,
	)

	// 3. Save user message to session
	al.sessions.AddMessage(opts.SessionKey, "user", opts.UserMessage)
	al.appendHistory(opts.Channel, opts.UserID, "user", opts.UserMessage)

	// 4. Run LLM iteration loop
	finalContent, iteration, err := al.runLLMIteration(ctx, messages, opts)
	if err != nil {
		return "", err
	}

	// 5. Handle empty response
	if finalContent == "" {
		finalContent = opts.DefaultResponse
	}

	// 5.5. Output safety: redact sensitive spans, substitute the fixed
	// refusal when too many distinct violations fired (spec §4.4, §4.11
	// step 7).
	filtered := al.outputFilter.Filter(finalContent)
	if filtered.Modified {
		logger.WarnCF("agent", "Output filtered by safety filter", map[string]interface{}{
			"session_key": opts.SessionKey,
			"violations":  filtered.Violations,
		})
	}
	finalContent = filtered.Text

	// 5.6. Telemetry tail: append a (duration | model) suffix unless the
	// response is an error (spec §4.11 step 8).
	if !strings.HasPrefix(finalContent, "Error:") {
		resolvedModel := al.model
		if opts.Model != "" {
			resolvedModel = opts.Model
		}
		finalContent = fmt.Sprintf("%s\n\n(%.1fs | %s)", finalContent, time.Since(turnStart).Seconds(), resolvedModel)
	}

	// 6. Save final assistant message to session
	al.sessions.AddMessage(opts.SessionKey, "assistant", finalContent)
	al.sessions.Save(al.sessions.GetOrCreate(opts.SessionKey))
	al.appendHistory(opts.Channel, opts.UserID, "assistant", finalContent)

	// 7. Optional: summarization
	if opts.EnableSummary {
		al.maybeSummarize(opts.SessionKey)
	}

	// 8. Optional: send response via bus
	if opts.SendResponse {
		al.bus.PublishOutbound(bus.OutboundMessage{
			Channel: opts.Channel,
			ChatID:  opts.ChatID,
			Content: finalContent,
			IsFinal: true,
		})
	}

	// 9. Log response
	responsePreview := utils.Truncate(finalContent, 120)
	logger.InfoCF("agent", fmt.Sprintf("Response: %s", responsePreview),
		map[string]interface{}{
			"session_key":  opts.SessionKey,
			"iterations":   iteration,
			"final_length": len(finalContent),
		})

	return finalContent, nil
}

// runLLMIteration executes the LLM call loop with tool handling.
// Returns the final content, iteration count, and any error.
func (al *AgentLoop) runLLMIteration(ctx context.Context, messages []providers.Message, opts processOptions) (string, int, error) {
	iteration := 0
	var finalContent string
	exhausted := true // assume exhausted; set false on clean exit

	for iteration < al.maxIterations {
		iteration++

		logger.DebugCF("agent", "LLM iteration",
			map[string]interface{}{
				"iteration": iteration,
				"max":       al.maxIterations,
			})

		// Build tool definitions
		providerToolDefs := al.tools.GetProviderDefinitions()

		resolvedModel := al.model
		if opts.Model != "" {
			resolvedModel = opts.Model
		}

		// Log LLM request details
		logger.DebugCF("agent", "LLM request",
			map[string]interface{}{
				"iteration":         iteration,
				"model":             resolvedModel,
				"messages_count":    len(messages),
				"tools_count":       len(providerToolDefs),
				"max_tokens":        8192,
				"temperature":       0.7,
				"system_prompt_len": len(messages[0].Content),
			})

		// Log full messages (detailed)
		logger.DebugCF("agent", "Full LLM request",
			map[string]interface{}{
				"iteration":     iteration,
				"messages_json": formatMessagesForLog(messages),
				"tools_json":    formatToolsForLog(providerToolDefs),
			})

		// Call LLM
		logger.InfoCF("agent", "Calling LLM",
			map[string]interface{}{
				"iteration":      iteration,
				"model":          resolvedModel,
				"messages_count": len(messages),
				"tools_count":    len(providerToolDefs),
			})
		response, err := al.streamChatWithTimeout(ctx, messages, providerToolDefs, opts, map[string]interface{}{
			"max_tokens":  8192,
			"temperature": 0.7,
		})

		if err != nil {
			logger.ErrorCF("agent", "LLM call failed",
				map[string]interface{}{
					"iteration": iteration,
					"error":     err.Error(),
				})
			return "", iteration, fmt.Errorf("LLM call failed: %w", err)
		}

		// Check if no tool calls - we're done
		if len(response.ToolCalls) == 0 {
			finalContent = response.Content
			exhausted = false
			logger.InfoCF("agent", "LLM response without tool calls (direct answer)",
				map[string]interface{}{
					"iteration":     iteration,
					"content_chars": len(finalContent),
				})
			break
		}

		// Log tool calls
		toolNames := make([]string, 0, len(response.ToolCalls))
		for _, tc := range response.ToolCalls {
			toolNames = append(toolNames, tc.Name)
		}
		logger.InfoCF("agent", "LLM requested tool calls",
			map[string]interface{}{
				"tools":     toolNames,
				"count":     len(toolNames),
				"iteration": iteration,
			})

		// Build assistant message with tool calls
		assistantMsg := providers.AssistantMessageFromResponse(response)
		messages = append(messages, assistantMsg)

		// Save assistant message with tool calls to session
		al.sessions.AddFullMessage(opts.SessionKey, assistantMsg)

		// Execute tool calls concurrently and collect results
		toolResults := al.executeToolsConcurrently(ctx, response.ToolCalls, iteration, opts)

		for _, tr := range toolResults {
			messages = append(messages, tr)
			al.sessions.AddFullMessage(opts.SessionKey, tr)
		}
	}

	// If the loop exhausted all iterations without a direct answer,
	// make one final LLM call with no tools to get a progress summary.
	// The user can then say "continue" to resume.
	if exhausted {
		logger.WarnCF("agent", "Tool iteration limit reached, requesting summary",
			map[string]interface{}{
				"iterations": iteration,
				"max":        al.maxIterations,
			})

		messages = append(messages, providers.Message{
			Role:    "user",
			Content: "You've reached your tool call iteration limit. Please summarize what you've accomplished so far and what still needs to be done. The user can tell you to continue.",
		})

		response, err := al.streamChatWithTimeout(ctx, messages, nil, opts, map[string]interface{}{
			"max_tokens":  8192,
			"temperature": 0.7,
		})
		if err != nil {
			logger.ErrorCF("agent", "Summary call failed after iteration limit",
				map[string]interface{}{"error": err.Error()})
			finalContent = fmt.Sprintf("I reached my tool call limit (%d iterations) before finishing. Ask me to continue and I'll pick up where I left off.", al.maxIterations)
		} else {
			finalContent = response.Content
		}
	}

	return finalContent, iteration, nil
}

// streamChatWithTimeout implements the turn's streaming call (spec §4.11
// step 6). It drains the provider's StreamChat channel (or
// providers.StreamFallback for providers without a native incremental API),
// publishing each surface delta as a bus.StreamChunk so a StreamingChannel
// adapter can render it incrementally. In reasoning mode, deltas are routed
// through a think.Parser so thinking segments are only surfaced to the
// caller when the per-user deepthink flag is set; the accumulated surface
// text becomes the returned response's Content whenever the turn ends in a
// direct answer (no tool calls).
func (al *AgentLoop) streamChatWithTimeout(
	ctx context.Context,
	messages []providers.Message,
	toolDefs []providers.ToolDefinition,
	opts processOptions,
	options map[string]interface{},
) (*providers.LLMResponse, error) {
	callCtx := ctx
	cancel := func() {}
	if al.llmTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, al.llmTimeout)
	}
	defer cancel()

	model := al.model
	if opts.Model != "" {
		model = opts.Model
	}

	var events <-chan providers.StreamEvent
	if sp, ok := al.provider.(providers.StreamingLLMProvider); ok {
		var err error
		events, err = sp.StreamChat(callCtx, messages, toolDefs, model, options)
		if err != nil {
			return nil, err
		}
	} else {
		events = providers.StreamFallback(callCtx, al.provider, messages, toolDefs, model, options)
	}

	reasoning := opts.Mode == ModeReasoning
	var parser *think.Parser
	if reasoning {
		parser = think.New()
	}

	var accumulated strings.Builder
	var final *providers.LLMResponse

	surfaceDelta := func(raw string) string {
		if !reasoning {
			return raw
		}
		thinkingDelta, responseDelta := parser.Feed(raw)
		if opts.ShowThinking {
			return thinkingDelta + responseDelta
		}
		return responseDelta
	}

	for event := range events {
		switch event.Type {
		case providers.StreamEventDelta:
			surface := surfaceDelta(event.Delta)
			if surface == "" {
				continue
			}
			accumulated.WriteString(surface)
			al.bus.PublishStreamChunk(bus.StreamChunk{
				Channel:     opts.Channel,
				ChatID:      opts.ChatID,
				Chunk:       surface,
				Accumulated: accumulated.String(),
			})
		case providers.StreamEventToolCalls, providers.StreamEventDone:
			final = event.Response
		case providers.StreamEventError:
			return nil, event.Err
		}
	}

	if final == nil {
		return nil, fmt.Errorf("provider stream closed without a terminal event")
	}

	if reasoning {
		thinkingDelta, responseDelta := parser.Finish()
		tail := responseDelta
		if opts.ShowThinking {
			tail = thinkingDelta + responseDelta
		}
		accumulated.WriteString(tail)
	}

	if len(final.ToolCalls) == 0 {
		if surfaced := accumulated.String(); surfaced != "" {
			final.Content = surfaced
		} else if reasoning {
			final.Content = think.StripThinkTags(final.Content)
		}
	}

	al.bus.PublishStreamChunk(bus.StreamChunk{
		Channel:     opts.Channel,
		ChatID:      opts.ChatID,
		Accumulated: accumulated.String(),
		IsFinal:     true,
	})

	return final, nil
}

// updateToolContexts updates the context for tools that need channel/chatID info.
func (al *AgentLoop) updateToolContexts(channel, chatID string) {
	if tool, ok := al.tools.Get("message"); ok {
		if mt, ok := tool.(*tools.MessageTool); ok {
			mt.SetContext(channel, chatID)
		}
	}
	if tool, ok := al.tools.Get("spawn"); ok {
		if st, ok := tool.(*tools.SpawnTool); ok {
			st.SetContext(channel, chatID)
		}
	}
}

// appendHistory records one turn to the append-only history log (spec
// §4.3). history is nil when the workspace's memory directory couldn't be
// created at startup; a missing log must never interrupt a turn.
func (al *AgentLoop) appendHistory(channel, user, role, content string) {
	if al.history == nil {
		return
	}
	if err := al.history.AppendHistory(channel, user, role, content); err != nil {
		logger.WarnCF("agent", "Failed to append history", map[string]interface{}{"error": err.Error()})
	}
}

// maybeSummarize triggers summarization if the session history exceeds thresholds:
// spec §4.11 step 11's message-count rule (message_count > memory_window * 2),
// or, when contextWindow is configured, 75% estimated token usage.
func (al *AgentLoop) maybeSummarize(sessionKey string) {
	newHistory := al.sessions.GetHistory(sessionKey)

	shouldSummarize := len(newHistory) > al.memoryWindow*2
	if !shouldSummarize && al.contextWindow > 0 {
		tokenEstimate := al.estimateTokens(newHistory)
		threshold := al.contextWindow * 75 / 100
		shouldSummarize = tokenEstimate > threshold
	}

	if shouldSummarize {
		if _, loading := al.summarizing.LoadOrStore(sessionKey, true); !loading {
			go func() {
				defer al.summarizing.Delete(sessionKey)
				al.summarizeSession(sessionKey)
			}()
		}
	}
}

// GetStartupInfo returns information about loaded tools and skills for logging.
func (al *AgentLoop) GetStartupInfo() map[string]interface{} {
	info := make(map[string]interface{})

	// Tools info
	tools := al.tools.List()
	info["tools"] = map[string]interface{}{
		"count": len(tools),
		"names": tools,
	}

	// Skills info
	info["skills"] = al.contextBuilder.GetSkillsInfo()

	return info
}

// formatMessagesForLog formats messages for logging
func formatMessagesForLog(messages []providers.Message) string {
	if len(messages) == 0 {
		return "[]"
	}

	var result string
	result += "[\n"
	for i, msg := range messages {
		result += fmt.Sprintf("  [%d] Role: %s\n", i, msg.Role)
		if msg.ToolCalls != nil && len(msg.ToolCalls) > 0 {
			result += "  ToolCalls:\n"
			for _, tc := range msg.ToolCalls {
				result += fmt.Sprintf("    - ID: %s, Type: %s, Name: %s\n", tc.ID, tc.Type, tc.Name)
				if tc.Function != nil {
					result += fmt.Sprintf("      Arguments: %s\n", utils.Truncate(tc.Function.Arguments, 200))
				}
			}
		}
		if msg.Content != "" {
			content := utils.Truncate(msg.Content, 200)
			result += fmt.Sprintf("  Content: %s\n", content)
		}
		if msg.ToolCallID != "" {
			result += fmt.Sprintf("  ToolCallID: %s\n", msg.ToolCallID)
		}
		result += "\n"
	}
	result += "]"
	return result
}

// formatToolsForLog formats tool definitions for logging
func formatToolsForLog(tools []providers.ToolDefinition) string {
	if len(tools) == 0 {
		return "[]"
	}

	var result string
	result += "[\n"
	for i, tool := range tools {
		result += fmt.Sprintf("  [%d] Type: %s, Name: %s\n", i, tool.Type, tool.Function.Name)
		result += fmt.Sprintf("      Description: %s\n", tool.Function.Description)
		if len(tool.Function.Parameters) > 0 {
			result += fmt.Sprintf("      Parameters: %s\n", utils.Truncate(fmt.Sprintf("%v", tool.Function.Parameters), 200))
		}
	}
	result += "]"
	return result
}

// summarizeSession summarizes the conversation history for a session.
func (al *AgentLoop) summarizeSession(sessionKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	history := al.sessions.GetHistory(sessionKey)
	summary := al.sessions.GetSummary(sessionKey)

	// Keep the trailing memory_window messages for continuity (spec §4.11 step 11).
	if len(history) <= al.memoryWindow {
		return
	}

	toSummarize := history[:len(history)-al.memoryWindow]

	// Oversized Message Guard
	// Skip messages larger than 50% of context window to prevent summarizer overflow
	maxMessageTokens := al.contextWindow / 2
	validMessages := make([]providers.Message, 0)
	omitted := false

	for _, m := range toSummarize {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		// Estimate tokens for this message
		msgTokens := len(m.Content) / 4
		if maxMessageTokens > 0 && msgTokens > maxMessageTokens {
			omitted = true
			continue
		}
		validMessages = append(validMessages, m)
	}

	if len(validMessages) == 0 {
		return
	}

	// Multi-Part Summarization
	// Split into two parts if history is significant
	var finalSummary string
	if len(validMessages) > 10 {
		mid := len(validMessages) / 2
		part1 := validMessages[:mid]
		part2 := validMessages[mid:]

		s1, _ := al.summarizeBatch(ctx, part1, "")
		s2, _ := al.summarizeBatch(ctx, part2, "")

		// Merge them
		mergePrompt := fmt.Sprintf("Merge these two conversation summaries into one cohesive summary:\n\n1: %s\n\n2: %s", s1, s2)
		resp, err := al.provider.Chat(ctx, []providers.Message{{Role: "user", Content: mergePrompt}}, nil, al.model, map[string]interface{}{
			"max_tokens":  1024,
			"temperature": 0.3,
		})
		if err == nil {
			finalSummary = resp.Content
		} else {
			finalSummary = s1 + " " + s2
		}
	} else {
		finalSummary, _ = al.summarizeBatch(ctx, validMessages, summary)
	}

	if omitted && finalSummary != "" {
		finalSummary += "\n[Note: Some oversized messages were omitted from this summary for efficiency.]"
	}

	if finalSummary != "" {
		al.sessions.SetSummary(sessionKey, finalSummary)
		al.sessions.TruncateHistory(sessionKey, al.memoryWindow)
		al.sessions.Save(al.sessions.GetOrCreate(sessionKey))

		if al.history != nil {
			if err := al.history.SaveFact(finalSummary); err != nil {
				logger.WarnCF("agent", "Failed to save consolidated summary to memory", map[string]interface{}{"error": err.Error()})
			}
		}

		// Extract and store notable memories from the compacted messages
		al.extractAndStoreMemories(ctx, toSummarize)
	}
}

// summarizeBatch summarizes a batch of messages using spec §4.3's
// two-message consolidation prompt: the directive as a system message, the
// serialized turns as a user message, so PrependSafetyDirective's
// system-role targeting reaches this call like any other.
func (al *AgentLoop) summarizeBatch(ctx context.Context, batch []providers.Message, existingSummary string) (string, error) {
	var messages []providers.Message
	if al.history != nil {
		messages = al.history.BuildConsolidationMessages(batch, existingSummary)
	} else {
		var sb strings.Builder
		if existingSummary != "" {
			sb.WriteString("Existing context: ")
			sb.WriteString(existingSummary)
			sb.WriteString("\n\n")
		}
		for _, m := range batch {
			sb.WriteString(fmt.Sprintf("%s: %s\n", m.Role, m.Content))
		}
		messages = []providers.Message{
			{Role: "system", Content: "Provide a concise summary of this conversation segment, preserving core context and key points."},
			{Role: "user", Content: sb.String()},
		}
	}

	response, err := al.provider.Chat(ctx, messages, nil, al.model, map[string]interface{}{
		"max_tokens":  1024,
		"temperature": 0.3,
	})
	if err != nil {
		return "", err
	}
	return response.Content, nil
}

// estimateTokens estimates the number of tokens in a message list.
func (al *AgentLoop) estimateTokens(messages []providers.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4 // Simple heuristic: 4 chars per token
	}
	return total
}
