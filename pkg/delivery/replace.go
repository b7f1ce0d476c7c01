package delivery

import (
	"context"
	"sync"
)

// Sender is the subset of a transport's message API the replace-on-final
// profile needs: a single terminal send, plus an optional typing
// indicator for transports that support one (Discord, Slack).
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// TypingIndicator is implemented by senders that can show a "typing..."
// affordance while a stream accumulates.
type TypingIndicator interface {
	SendTyping(ctx context.Context, chatID string) error
}

// ReplaceOnFinalAdapter implements the replace-on-final profile for
// transports that cannot edit a previously sent message.
type ReplaceOnFinalAdapter struct {
	sender  Sender
	byteCap int

	mu    sync.Mutex
	chats map[string]struct{}
}

func NewReplaceOnFinalAdapter(sender Sender, byteCap int) *ReplaceOnFinalAdapter {
	return &ReplaceOnFinalAdapter{
		sender:  sender,
		byteCap: byteCap,
		chats:   make(map[string]struct{}),
	}
}

// HandleChunk accumulates silently on non-terminal chunks (sending a
// typing indicator when the sender supports one) and sends the final text,
// split at the transport's byte cap, on the terminal chunk.
func (a *ReplaceOnFinalAdapter) HandleChunk(ctx context.Context, chatID, accumulated string, isFinal bool) error {
	a.mu.Lock()
	_, exists := a.chats[chatID]
	if !exists {
		a.chats[chatID] = struct{}{}
	}
	a.mu.Unlock()

	if !isFinal {
		if !exists {
			if ti, ok := a.sender.(TypingIndicator); ok {
				return ti.SendTyping(ctx, chatID)
			}
		}
		return nil
	}

	a.mu.Lock()
	delete(a.chats, chatID)
	a.mu.Unlock()

	for _, part := range Split(accumulated, a.byteCap) {
		if err := a.sender.SendMessage(ctx, chatID, part); err != nil {
			return err
		}
	}
	return nil
}
