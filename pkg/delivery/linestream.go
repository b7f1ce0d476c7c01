package delivery

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// LineStreamAdapter implements the line-stream profile used by the local
// CLI console: each non-terminal delta is printed immediately with no
// trailing newline, and the terminal chunk prints one.
type LineStreamAdapter struct {
	w io.Writer

	mu   sync.Mutex
	open map[string]bool
}

func NewLineStreamAdapter(w io.Writer) *LineStreamAdapter {
	return &LineStreamAdapter{w: w, open: make(map[string]bool)}
}

// HandleChunk writes delta verbatim (not the cumulative text — the console
// is append-only) and, on the terminal chunk, writes a trailing newline and
// clears per-chat state.
func (a *LineStreamAdapter) HandleChunk(ctx context.Context, chatID, delta string, isFinal bool) error {
	a.mu.Lock()
	a.open[chatID] = true
	a.mu.Unlock()

	if delta != "" {
		if _, err := fmt.Fprint(a.w, delta); err != nil {
			return err
		}
	}

	if isFinal {
		a.mu.Lock()
		delete(a.open, chatID)
		a.mu.Unlock()
		_, err := fmt.Fprintln(a.w)
		return err
	}
	return nil
}
