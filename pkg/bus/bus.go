// Package bus implements the MessageBus: two in-memory FIFOs connecting
// channel adapters to the AgentLoop (inbound) and the AgentLoop to the
// ChannelManager (outbound), per spec §4.1.
package bus

import (
	"context"
	"log"
	"sync"
)

// MessageHandler processes one inbound message. Used by adapters that want
// a direct callback path instead of (or in addition to) consuming the bus.
type MessageHandler func(InboundMessage) error

type MessageBus struct {
	inbound   chan InboundMessage
	outbound  chan OutboundArtifact
	handlers  map[string]MessageHandler
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, 100),
		outbound: make(chan OutboundArtifact, 100),
		handlers: make(map[string]MessageHandler),
		done:     make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(msg InboundMessage) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}

	select {
	case mb.inbound <- msg:
	default:
		log.Printf("[WARN] bus: inbound channel full, dropping message from %s:%s", msg.Channel, msg.ChatID)
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	mb.mu.RLock()
	closed := mb.closed
	mb.mu.RUnlock()
	if closed {
		return InboundMessage{}, false
	}

	select {
	case msg := <-mb.inbound:
		return msg, true
	case <-mb.done:
		return InboundMessage{}, false
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues a terminal OutboundMessage.
func (mb *MessageBus) PublishOutbound(msg OutboundMessage) {
	mb.publishArtifact(msg)
}

// PublishStreamChunk enqueues an intermediate StreamChunk.
func (mb *MessageBus) PublishStreamChunk(chunk StreamChunk) {
	mb.publishArtifact(chunk)
}

func (mb *MessageBus) publishArtifact(artifact OutboundArtifact) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}

	channel, chatID := artifact.Target()
	select {
	case mb.outbound <- artifact:
	default:
		log.Printf("[WARN] bus: outbound channel full, dropping artifact for %s:%s", channel, chatID)
	}
}

// SubscribeOutbound returns the next outbound artifact, which is either an
// OutboundMessage or a StreamChunk; callers type-switch on the result.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundArtifact, bool) {
	mb.mu.RLock()
	closed := mb.closed
	mb.mu.RUnlock()
	if closed {
		return nil, false
	}

	select {
	case msg := <-mb.outbound:
		return msg, true
	case <-mb.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

func (mb *MessageBus) RegisterHandler(channel string, handler MessageHandler) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.handlers[channel] = handler
}

func (mb *MessageBus) GetHandler(channel string) (MessageHandler, bool) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	handler, ok := mb.handlers[channel]
	return handler, ok
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		mb.mu.Lock()
		mb.closed = true
		close(mb.done)
		mb.mu.Unlock()
	})
}
