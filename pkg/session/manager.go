// Package session implements the per-conversation SessionStore: an
// append-only dialog log cached in memory and persisted as one file per
// conversation, as grounded on the teacher's session manager test suite
// (pkg/session/manager_test.go, the only file retrieved for this package —
// this manager.go is authored fresh against that contract).
package session

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotbot/rotbot/pkg/logger"
	"github.com/rotbot/rotbot/pkg/providers"
)

// Session is the in-memory representation of one conversation scope, keyed
// by session_key (channel + ":" + chat_id).
type Session struct {
	Key      string
	Messages []providers.Message
	Summary  string
}

// SessionManager owns the in-memory session cache and its durable log.
// All methods are safe for concurrent use; the AgentLoop is expected to be
// the only serial mutator, but tests hammer it concurrently across keys.
type SessionManager struct {
	dir string

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates a manager backed by dir. An empty dir disables
// persistence entirely: sessions live only in memory for the process.
func NewSessionManager(dir string) *SessionManager {
	return &SessionManager{
		dir:      dir,
		sessions: make(map[string]*Session),
	}
}

func safeKey(key string) string {
	r := strings.NewReplacer(":", "_", "/", "_")
	return r.Replace(key)
}

func (sm *SessionManager) logPath(key string) string {
	if sm.dir == "" {
		return ""
	}
	return filepath.Join(sm.dir, safeKey(key)+".jsonl")
}

func (sm *SessionManager) summaryPath(key string) string {
	if sm.dir == "" {
		return ""
	}
	return filepath.Join(sm.dir, safeKey(key)+".summary")
}

// locked: must be called with sm.mu held. Returns the cached session,
// loading it from disk on first touch if persistence is configured.
func (sm *SessionManager) getOrCreateLocked(key string) *Session {
	if s, ok := sm.sessions[key]; ok {
		return s
	}

	s := &Session{Key: key}
	sm.loadFromDisk(s)
	sm.sessions[key] = s
	return s
}

func (sm *SessionManager) loadFromDisk(s *Session) {
	path := sm.logPath(s.Key)
	if path == "" {
		return
	}

	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(strings.TrimSpace(string(line))) == 0 {
				continue
			}
			var msg providers.Message
			if err := json.Unmarshal(line, &msg); err != nil {
				logger.WarnCF("session", "Skipping unreadable session line",
					map[string]interface{}{"key": s.Key, "error": err.Error()})
				continue
			}
			s.Messages = append(s.Messages, msg)
		}
	}

	if summaryPath := sm.summaryPath(s.Key); summaryPath != "" {
		if data, err := os.ReadFile(summaryPath); err == nil {
			s.Summary = string(data)
		}
	}
}

// GetOrCreate returns the session for key, creating (and loading from disk,
// if persistence is configured) it on first access. Repeated calls for the
// same key return the same *Session pointer.
func (sm *SessionManager) GetOrCreate(key string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.getOrCreateLocked(key)
}

// AddMessage appends a plain role/content turn, auto-creating the session.
func (sm *SessionManager) AddMessage(key, role, content string) {
	sm.AddFullMessage(key, providers.Message{Role: role, Content: content})
}

// AddFullMessage appends msg (preserving tool calls and tool_call_id) to
// both the in-memory cache and the durable per-key log.
func (sm *SessionManager) AddFullMessage(key string, msg providers.Message) {
	sm.mu.Lock()
	s := sm.getOrCreateLocked(key)
	s.Messages = append(s.Messages, msg)
	path := sm.logPath(key)
	sm.mu.Unlock()

	if path == "" {
		return
	}
	appendToLog(path, msg)
}

func appendToLog(path string, msg providers.Message) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.WarnCF("session", "Failed to create session directory", map[string]interface{}{"error": err.Error()})
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.WarnCF("session", "Failed to open session log", map[string]interface{}{"error": err.Error()})
		return
	}
	defer f.Close()

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	f.Write(data)
	f.Write([]byte("\n"))
}

// GetHistory returns a deep copy of the session's message list, or a
// non-nil empty slice if the key is unknown.
func (sm *SessionManager) GetHistory(key string) []providers.Message {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.sessions[key]
	if !ok {
		s = &Session{Key: key}
		sm.loadFromDisk(s)
		sm.sessions[key] = s
	}

	out := make([]providers.Message, len(s.Messages))
	for i, m := range s.Messages {
		mc := m
		if len(m.ToolCalls) > 0 {
			mc.ToolCalls = append([]providers.ToolCall(nil), m.ToolCalls...)
		}
		out[i] = mc
	}
	return out
}

// GetSummary returns the stored consolidation summary, or "" if unset.
func (sm *SessionManager) GetSummary(key string) string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[key]
	if !ok {
		return ""
	}
	return s.Summary
}

// SetSummary stores a consolidation summary for key. A no-op if key
// doesn't exist yet (never auto-creates — summaries only make sense for
// sessions that have already been touched).
func (sm *SessionManager) SetSummary(key, summary string) {
	sm.mu.Lock()
	s, ok := sm.sessions[key]
	sm.mu.Unlock()
	if !ok {
		return
	}
	s.Summary = summary

	path := sm.summaryPath(key)
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	_ = os.WriteFile(path, []byte(summary), 0o644)
}

// TruncateHistory keeps only the trailing `keep` messages for key, both in
// memory and on disk (via atomic rewrite). A no-op for unknown keys or when
// the history is already at or below keep.
func (sm *SessionManager) TruncateHistory(key string, keep int) {
	sm.mu.Lock()
	s, ok := sm.sessions[key]
	if !ok || len(s.Messages) <= keep {
		sm.mu.Unlock()
		return
	}
	if keep < 0 {
		keep = 0
	}
	s.Messages = append([]providers.Message(nil), s.Messages[len(s.Messages)-keep:]...)
	path := sm.logPath(key)
	snapshot := append([]providers.Message(nil), s.Messages...)
	sm.mu.Unlock()

	if path != "" {
		rewriteLog(path, snapshot)
	}
}

func rewriteLog(path string, messages []providers.Message) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		logger.WarnCF("session", "Failed to rewrite session log", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		f.Write(data)
		f.Write([]byte("\n"))
	}
	f.Close()
	os.Rename(tmp, path)
}

// Save persists session's current in-memory state (full rewrite). Used
// after consolidation truncates a session, and safe to call when no
// storage directory is configured (returns nil, does nothing).
func (sm *SessionManager) Save(s *Session) error {
	if sm.dir == "" || s == nil {
		return nil
	}
	path := sm.logPath(s.Key)
	rewriteLog(path, s.Messages)
	if s.Summary != "" {
		sm.SetSummary(s.Key, s.Summary)
	}
	return nil
}

// Delete removes key from the cache and its durable log, if any.
func (sm *SessionManager) Delete(key string) {
	sm.mu.Lock()
	delete(sm.sessions, key)
	path := sm.logPath(key)
	summaryPath := sm.summaryPath(key)
	sm.mu.Unlock()

	if path != "" {
		os.Remove(path)
	}
	if summaryPath != "" {
		os.Remove(summaryPath)
	}
}

// List returns all currently cached session keys.
func (sm *SessionManager) List() []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	keys := make([]string, 0, len(sm.sessions))
	for k := range sm.sessions {
		keys = append(keys, k)
	}
	return keys
}

// MessageCount reports the current turn count for key without copying the
// full history, used by the AgentLoop's consolidation trigger.
func (sm *SessionManager) MessageCount(key string) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[key]
	if !ok {
		return 0
	}
	return len(s.Messages)
}
