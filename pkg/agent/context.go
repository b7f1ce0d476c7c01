package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotbot/rotbot/pkg/contextanalyzer"
	"github.com/rotbot/rotbot/pkg/providers"
	"github.com/rotbot/rotbot/pkg/tools"
)

const defaultPersona = "You are a helpful, direct personal assistant. Keep answers concise unless asked for detail."

const codingPersona = "You are a precise coding assistant. Favor concrete, runnable code over explanation, name the files and lines you touch, and call out tradeoffs briefly."

const reasoningPersona = "You are a careful reasoning assistant. Work through the problem step by step inside a single <think>...</think> block, then give your final answer outside the tags. Never leave a <think> block unclosed."

// skill is one loaded skills/<name>.md file (spec §6 skill file format).
type skill struct {
	Name        string
	Description string
	AlwaysLoad  bool
	Body        string
}

// ContextBuilder assembles the system prompt and message list for one turn
// (spec §4.11 step 5): persona, user context, memory, conversation
// analysis, tool descriptions, skills, and current date, followed by the
// trailing session history and the new user message.
type ContextBuilder struct {
	workspace     string
	toolsRegistry *tools.ToolRegistry
}

func NewContextBuilder(workspace string) *ContextBuilder {
	return &ContextBuilder{workspace: workspace}
}

func (cb *ContextBuilder) SetToolsRegistry(r *tools.ToolRegistry) {
	cb.toolsRegistry = r
}

// BuildMessages returns the full message list for a provider call: a
// system message carrying the assembled prompt, followed by history and
// the new user message. A nil analysis is computed here from history plus
// the new user message.
func (cb *ContextBuilder) BuildMessages(
	history []providers.Message,
	summary string,
	userMessage string,
	analysis *contextanalyzer.Analysis,
	channel, chatID string,
	mode Mode,
) []providers.Message {
	if analysis == nil {
		analysis = contextanalyzer.Analyze(append(append([]providers.Message{}, history...), providers.Message{Role: "user", Content: userMessage}))
	}

	systemPrompt := cb.buildSystemPrompt(summary, analysis, mode)

	messages := make([]providers.Message, 0, len(history)+2)
	messages = append(messages, providers.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, providers.Message{Role: "user", Content: userMessage})
	return messages
}

func (cb *ContextBuilder) buildSystemPrompt(summary string, analysis *contextanalyzer.Analysis, mode Mode) string {
	var sections []string

	sections = append(sections, cb.personaDirective(mode))

	if userCtx := cb.readWorkspaceFile("USER.md"); userCtx != "" {
		sections = append(sections, "User context:\n"+userCtx)
	}

	if memoryDoc := cb.readMemoryDocument(); len(memoryDoc) > 50 {
		sections = append(sections, "Long-term memory:\n"+memoryDoc)
	}

	if strings.TrimSpace(summary) != "" {
		sections = append(sections, "Conversation summary so far:\n"+summary)
	}

	if analysisLines := formatAnalysis(analysis); analysisLines != "" {
		sections = append(sections, analysisLines)
	}

	if toolDesc := cb.toolDescriptions(); toolDesc != "" {
		sections = append(sections, toolDesc)
	}

	skills := cb.loadSkills()
	for _, s := range skills {
		if s.AlwaysLoad {
			sections = append(sections, fmt.Sprintf("Skill %q:\n%s", s.Name, s.Body))
		}
	}
	if summaries := skillSummaries(skills); summaries != "" {
		sections = append(sections, summaries)
	}

	sections = append(sections, "Current date: "+time.Now().Format("2006-01-02"))

	return strings.Join(sections, "\n\n")
}

func (cb *ContextBuilder) personaDirective(mode Mode) string {
	if soul := cb.readWorkspaceFile("SOUL.md"); soul != "" {
		return soul
	}
	switch mode {
	case ModeCoding:
		return codingPersona
	case ModeReasoning:
		return reasoningPersona
	default:
		return defaultPersona
	}
}

func (cb *ContextBuilder) readWorkspaceFile(name string) string {
	data, err := os.ReadFile(filepath.Join(cb.workspace, "workspace", name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (cb *ContextBuilder) readMemoryDocument() string {
	data, err := os.ReadFile(filepath.Join(cb.workspace, "memory", "MEMORY.md"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func formatAnalysis(a *contextanalyzer.Analysis) string {
	if a == nil {
		return ""
	}
	var lines []string
	if a.Topic != "" {
		lines = append(lines, "Topic: "+a.Topic)
	}
	if a.ConversationType != "" {
		lines = append(lines, "Conversation type: "+a.ConversationType)
	}
	if len(a.KeyEntities) > 0 {
		lines = append(lines, "Key entities: "+strings.Join(a.KeyEntities, ", "))
	}
	if a.UserIntent != "" {
		lines = append(lines, "User intent: "+a.UserIntent)
	}
	if a.Referent != "" {
		lines = append(lines, "Likely referent of pronouns: "+a.Referent)
	}
	if len(lines) == 0 {
		return ""
	}
	return "Conversation analysis:\n" + strings.Join(lines, "\n")
}

func (cb *ContextBuilder) toolDescriptions() string {
	if cb.toolsRegistry == nil {
		return ""
	}
	names := cb.toolsRegistry.List()
	if len(names) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for _, name := range names {
		t, ok := cb.toolsRegistry.Get(name)
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("- %s: %s\n", t.Name(), t.Description()))
	}
	return sb.String()
}

// loadSkills reads every skills/<name>.md file, parsing an optional
// frontmatter block delimited by "---" lines (spec §6 skill file format).
func (cb *ContextBuilder) loadSkills() []skill {
	dir := filepath.Join(cb.workspace, "skills")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var skills []skill
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		skills = append(skills, parseSkillFile(strings.TrimSuffix(e.Name(), ".md"), string(data)))
	}

	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills
}

func parseSkillFile(defaultName, content string) skill {
	s := skill{Name: defaultName, Body: content}

	trimmed := strings.TrimLeft(content, "\n")
	if !strings.HasPrefix(trimmed, "---") {
		return s
	}

	rest := trimmed[3:]
	end := strings.Index(rest, "---")
	if end < 0 {
		return s
	}

	frontmatter := rest[:end]
	s.Body = strings.TrimSpace(rest[end+3:])

	for _, line := range strings.Split(frontmatter, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "name":
			if value != "" {
				s.Name = value
			}
		case "description":
			s.Description = value
		case "alwaysLoad":
			s.AlwaysLoad = value == "true"
		}
	}

	return s
}

func skillSummaries(skills []skill) string {
	var onDemand []skill
	for _, s := range skills {
		if !s.AlwaysLoad {
			onDemand = append(onDemand, s)
		}
	}
	if len(onDemand) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Additional skills available on request:\n")
	for _, s := range onDemand {
		desc := s.Description
		if desc == "" {
			desc = "(no description)"
		}
		sb.WriteString(fmt.Sprintf("- %s: %s\n", s.Name, desc))
	}
	return sb.String()
}

// GetSkillsInfo reports loaded skill counts and names for startup logging.
func (cb *ContextBuilder) GetSkillsInfo() map[string]interface{} {
	skills := cb.loadSkills()
	names := make([]string, 0, len(skills))
	alwaysLoad := 0
	for _, s := range skills {
		names = append(names, s.Name)
		if s.AlwaysLoad {
			alwaysLoad++
		}
	}
	return map[string]interface{}{
		"count":       len(skills),
		"names":       names,
		"always_load": alwaysLoad,
	}
}
