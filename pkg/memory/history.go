package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotbot/rotbot/pkg/providers"
)

// consolidationDirective is the fixed system-role instruction sent ahead of
// every batch of turns being consolidated (spec §4.3).
const consolidationDirective = "Summarize the key facts, preferences, and important information from this conversation. Be concise. Use bullet points. Focus on what would be useful to remember for future conversations."

// minConsolidationTurns is the floor below which Consolidate is a no-op:
// a handful of turns isn't worth a summarization round-trip.
const minConsolidationTurns = 5

// HistoryStore is the append-only conversation log and long-term fact store
// spec §4.3 names: every turn lands in HISTORY.md as it happens, durable
// facts accumulate in MEMORY.md, and Consolidate folds a stretch of history
// into one of those facts once a session outgrows its memory window.
type HistoryStore struct {
	mu          sync.Mutex
	historyPath string
	memoryPath  string
}

func NewHistoryStore(workspace string) (*HistoryStore, error) {
	dir := filepath.Join(workspace, "memory")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating memory directory: %w", err)
	}

	hs := &HistoryStore{
		historyPath: filepath.Join(dir, "HISTORY.md"),
		memoryPath:  filepath.Join(dir, "MEMORY.md"),
	}

	if _, err := os.Stat(hs.historyPath); os.IsNotExist(err) {
		if err := os.WriteFile(hs.historyPath, []byte("# History\n\n"), 0o644); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(hs.memoryPath); os.IsNotExist(err) {
		if err := os.WriteFile(hs.memoryPath, []byte("# Memory\n\n"), 0o644); err != nil {
			return nil, err
		}
	}

	return hs, nil
}

// AppendHistory records one turn. Failures are logged by the caller, not
// raised, since a missed history line should never interrupt a turn.
func (hs *HistoryStore) AppendHistory(channel, user, role, content string) error {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	line := fmt.Sprintf("[%s] [%s:%s] %s: %s\n", time.Now().Format("2006-01-02 15:04:05"), channel, user, role, content)

	f, err := os.OpenFile(hs.historyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening history file: %w", err)
	}
	defer f.Close()

	_, err = f.WriteString(line)
	return err
}

// ReadMemory returns the full MEMORY.md document.
func (hs *HistoryStore) ReadMemory() (string, error) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	data, err := os.ReadFile(hs.memoryPath)
	if err != nil {
		return "", fmt.Errorf("reading memory file: %w", err)
	}
	return string(data), nil
}

// SearchHistory returns up to the trailing 20 HISTORY.md lines that contain
// query as a case-insensitive substring, in original order.
func (hs *HistoryStore) SearchHistory(query string) ([]string, error) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	data, err := os.ReadFile(hs.historyPath)
	if err != nil {
		return nil, fmt.Errorf("reading history file: %w", err)
	}

	needle := strings.ToLower(query)
	var matches []string
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		if strings.Contains(strings.ToLower(line), needle) {
			matches = append(matches, line)
		}
	}

	if len(matches) > 20 {
		matches = matches[len(matches)-20:]
	}
	return matches, nil
}

// SaveFact appends text to MEMORY.md under today's date heading.
func (hs *HistoryStore) SaveFact(text string) error {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	entry := fmt.Sprintf("\n## %s\n%s\n", time.Now().Format("2006-01-02"), text)

	f, err := os.OpenFile(hs.memoryPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening memory file: %w", err)
	}
	defer f.Close()

	_, err = f.WriteString(entry)
	return err
}

// BuildConsolidationMessages renders turns into the two-message prompt spec
// §4.3 requires: the directive as a system message, the serialized
// conversation as a user message, so PrependSafetyDirective's system-role
// targeting actually reaches consolidation calls.
func (hs *HistoryStore) BuildConsolidationMessages(turns []providers.Message, existingSummary string) []providers.Message {
	var sb strings.Builder
	if existingSummary != "" {
		sb.WriteString("Existing context: ")
		sb.WriteString(existingSummary)
		sb.WriteString("\n\n")
	}
	for _, m := range turns {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}

	return []providers.Message{
		{Role: "system", Content: consolidationDirective},
		{Role: "user", Content: sb.String()},
	}
}

// Consolidate implements spec §4.3's consolidate(turns, provider): fewer
// than minConsolidationTurns turns produces no summary, otherwise the
// two-message prompt is sent non-streaming and, on success, saved as a
// memory fact. Never returns an error — a failed consolidation is simply a
// no-op, matching the original's broad except-and-return-None.
func (hs *HistoryStore) Consolidate(ctx context.Context, turns []providers.Message, provider providers.LLMProvider, model string) string {
	if len(turns) < minConsolidationTurns {
		return ""
	}

	messages := hs.BuildConsolidationMessages(turns, "")
	resp, err := provider.Chat(ctx, messages, nil, model, map[string]interface{}{
		"max_tokens":  1024,
		"temperature": 0.3,
	})
	if err != nil || resp == nil || resp.Content == "" {
		return ""
	}

	if err := hs.SaveFact(resp.Content); err != nil {
		return resp.Content
	}
	return resp.Content
}
