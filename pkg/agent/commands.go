package agent

import (
	"fmt"
	"strings"
	"sync"
)

// Mode is a per-user-preference tag selecting the default persona
// directive (spec GLOSSARY "Mode").
type Mode string

const (
	ModeGeneral   Mode = "general"
	ModeCoding    Mode = "coding"
	ModeReasoning Mode = "reasoning"
)

// Preferences holds the ephemeral per-session_key state §3 describes:
// current mode, an optional model override, and whether reasoning-tag
// content is surfaced to the user. Reset on the /reset command.
type Preferences struct {
	Mode          Mode
	ModelOverride string
	ShowThinking  bool
}

// prefsStore is the AgentLoop's per-user preference map. Like the session
// cache, it is mutated only by the AgentLoop goroutine (spec §5 "Shared
// resources"), so a plain mutex-guarded map is sufficient — no atomic
// compare-and-swap dance is needed.
type prefsStore struct {
	mu    sync.Mutex
	prefs map[string]*Preferences
}

func newPrefsStore() *prefsStore {
	return &prefsStore{prefs: make(map[string]*Preferences)}
}

func (s *prefsStore) get(sessionKey string) *Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefs[sessionKey]
	if !ok {
		p = &Preferences{Mode: ModeGeneral}
		s.prefs[sessionKey] = p
	}
	return p
}

func (s *prefsStore) reset(sessionKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prefs, sessionKey)
}

// parsedCommand is the result of detecting a "/" or "!" prefixed line.
type parsedCommand struct {
	Name string
	Arg  string
}

// parseCommand recognizes the step-1 command syntax of spec §4.11: content
// beginning with "/" or "!" is split into {command, arg} at the first
// space character. Returns ok=false for ordinary dialog.
func parseCommand(content string) (parsedCommand, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || (trimmed[0] != '/' && trimmed[0] != '!') {
		return parsedCommand{}, false
	}

	body := trimmed[1:]
	fields := strings.SplitN(body, " ", 2)
	name := strings.ToLower(strings.TrimSpace(fields[0]))
	arg := ""
	if len(fields) == 2 {
		arg = strings.TrimSpace(fields[1])
	}
	if name == "" {
		return parsedCommand{}, false
	}
	return parsedCommand{Name: name, Arg: arg}, true
}

// handleCommand executes a recognized command and returns the immediate
// final response text for the turn (spec §4.11 step 1: "the turn ends
// here" — no provider call, no session mutation beyond what the command
// itself performs).
func (al *AgentLoop) handleCommand(sessionKey string, cmd parsedCommand) string {
	switch cmd.Name {
	case "reset":
		al.sessions.Delete(sessionKey)
		al.prefsStore.reset(sessionKey)
		return "Conversation reset."

	case "general", "coding", "reasoning":
		prefs := al.prefsStore.get(sessionKey)
		prefs.Mode = Mode(cmd.Name)
		return fmt.Sprintf("Mode set to %s.", cmd.Name)

	case "setmodel", "model":
		prefs := al.prefsStore.get(sessionKey)
		if cmd.Arg == "" {
			if prefs.ModelOverride == "" {
				return fmt.Sprintf("Using default model (%s). Usage: /setmodel <model>", al.model)
			}
			return fmt.Sprintf("Current model override: %s", prefs.ModelOverride)
		}
		prefs.ModelOverride = cmd.Arg
		return fmt.Sprintf("Model set to %s.", cmd.Arg)

	case "deepthink":
		prefs := al.prefsStore.get(sessionKey)
		prefs.ShowThinking = !prefs.ShowThinking
		if prefs.ShowThinking {
			return "Deep-think mode enabled: reasoning will be shown."
		}
		return "Deep-think mode disabled: reasoning will be hidden."

	case "help":
		return "Commands: /reset, /general, /coding, /reasoning, /setmodel <model>, /model, /deepthink, /help"

	default:
		return fmt.Sprintf("Unknown command: /%s. Try /help.", cmd.Name)
	}
}
