package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CursorGlyph is appended to the accumulated text of every in-progress
// live-edit so the user can see the message is still streaming.
const CursorGlyph = " ▌"

// Editor is the subset of a transport's message API the live-edit profile
// needs: send once, edit repeatedly, delete if the final text must be
// resent as multiple messages (spec §4.10 "delete the live-edited message
// and send the final text split on newline-preferred boundaries").
type Editor interface {
	SendMessage(ctx context.Context, chatID, text string) (handle string, err error)
	EditMessage(ctx context.Context, chatID, handle, text string) error
	DeleteMessage(ctx context.Context, chatID, handle string) error
}

type liveEditState struct {
	handle   string
	lastEdit time.Time
}

// LiveEditAdapter implements the live-edit profile for transports that can
// edit a previously sent message (Telegram, Discord's message.Edit, etc).
type LiveEditAdapter struct {
	editor       Editor
	editInterval time.Duration
	byteCap      int
	now          func() time.Time

	mu    sync.Mutex
	chats map[string]*liveEditState
}

func NewLiveEditAdapter(editor Editor, editInterval time.Duration, byteCap int) *LiveEditAdapter {
	return &LiveEditAdapter{
		editor:       editor,
		editInterval: editInterval,
		byteCap:      byteCap,
		now:          time.Now,
		chats:        make(map[string]*liveEditState),
	}
}

// HandleChunk processes one StreamChunk delta for chatID. accumulated is
// the cumulative text so far; isFinal marks the terminal chunk of the turn.
func (a *LiveEditAdapter) HandleChunk(ctx context.Context, chatID, accumulated string, isFinal bool) error {
	a.mu.Lock()
	state, exists := a.chats[chatID]
	if !exists {
		state = &liveEditState{}
		a.chats[chatID] = state
	}
	a.mu.Unlock()

	if isFinal {
		defer func() {
			a.mu.Lock()
			delete(a.chats, chatID)
			a.mu.Unlock()
		}()

		if !exists {
			// Stream never produced a non-terminal chunk; send the final
			// text directly, splitting if it exceeds the cap.
			return a.sendSplit(ctx, chatID, accumulated)
		}

		if len(accumulated) <= a.byteCap {
			return a.editor.EditMessage(ctx, chatID, state.handle, accumulated)
		}

		if err := a.editor.DeleteMessage(ctx, chatID, state.handle); err != nil {
			return fmt.Errorf("delete oversized live-edit message: %w", err)
		}
		return a.sendSplit(ctx, chatID, accumulated)
	}

	if !exists {
		handle, err := a.editor.SendMessage(ctx, chatID, truncateWithEllipsis(accumulated, a.byteCap)+CursorGlyph)
		if err != nil {
			return err
		}
		a.mu.Lock()
		state.handle = handle
		state.lastEdit = a.now()
		a.mu.Unlock()
		return nil
	}

	a.mu.Lock()
	elapsed := a.now().Sub(state.lastEdit)
	a.mu.Unlock()
	if elapsed < a.editInterval {
		return nil
	}

	if err := a.editor.EditMessage(ctx, chatID, state.handle, truncateWithEllipsis(accumulated, a.byteCap)+CursorGlyph); err != nil {
		return err
	}
	a.mu.Lock()
	state.lastEdit = a.now()
	a.mu.Unlock()
	return nil
}

func (a *LiveEditAdapter) sendSplit(ctx context.Context, chatID, text string) error {
	for _, part := range Split(text, a.byteCap) {
		if _, err := a.editor.SendMessage(ctx, chatID, part); err != nil {
			return err
		}
	}
	return nil
}

func truncateWithEllipsis(text string, cap int) string {
	if cap <= 0 || len(text) <= cap {
		return text
	}
	const ellipsis = "..."
	if cap <= len(ellipsis) {
		return text[:cap]
	}
	return text[:cap-len(ellipsis)] + ellipsis
}
