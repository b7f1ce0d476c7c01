package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotbot/rotbot/pkg/bus"
	"github.com/rotbot/rotbot/pkg/logger"
)

// Channel is what the ChannelManager needs from every adapter (spec §4.9):
// lifecycle control, outbound delivery, and the allowlist check the bus
// normalization path already applies on the inbound side.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

// StreamingChannel is implemented by adapters whose transport supports
// incremental delivery (live-edit or line-stream profiles, spec §4.10).
// Adapters that only support Send need not implement it; the manager drops
// StreamChunks addressed to those, so they receive only OutboundMessages.
type StreamingChannel interface {
	Channel
	SendChunk(ctx context.Context, chunk bus.StreamChunk) error
}

// Manager owns every registered Channel and the single outbound dispatch
// loop that drains the bus and routes each artifact to its named channel.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus

	mu           sync.RWMutex
	dispatchStop context.CancelFunc
	dispatchDone chan struct{}
}

// NewManager creates a channel manager with no channels registered;
// adapters are added via RegisterChannel before StartAll.
func NewManager(mb *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      mb,
	}
}

// RegisterChannel adds or replaces a named channel.
func (m *Manager) RegisterChannel(name string, ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = ch
}

// UnregisterChannel removes a named channel. Does not stop it.
func (m *Manager) UnregisterChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
}

// GetChannel retrieves a registered channel by name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// GetEnabledChannels lists the names of every registered channel.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// GetStatus reports, per channel, whether it is registered ("enabled") and
// currently running.
func (m *Manager) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]interface{}, len(m.channels))
	for name, ch := range m.channels {
		status[name] = map[string]interface{}{
			"enabled": true,
			"running": ch.IsRunning(),
		}
	}
	return status
}

// SendToChannel builds a one-off final outbound message and delivers it
// directly through the named channel's Send, bypassing the bus.
func (m *Manager) SendToChannel(ctx context.Context, channelName, chatID, content string) error {
	m.mu.RLock()
	ch, ok := m.channels[channelName]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("channel %s not found", channelName)
	}

	return ch.Send(ctx, bus.OutboundMessage{
		Channel: channelName,
		ChatID:  chatID,
		Content: content,
		IsFinal: true,
	})
}

// StartAll starts the outbound dispatch loop and every registered channel;
// a second call before StopAll is a no-op. A channel that fails to start is logged and skipped
// rather than aborting the others, matching the teacher's best-effort
// fan-out.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	alreadyRunning := m.dispatchStop != nil
	if !alreadyRunning {
		dispatchCtx, cancel := context.WithCancel(ctx)
		m.dispatchStop = cancel
		m.dispatchDone = make(chan struct{})
		go m.dispatchOutbound(dispatchCtx, m.dispatchDone)
	}
	channels := make(map[string]Channel, len(m.channels))
	for name, ch := range m.channels {
		channels[name] = ch
	}
	m.mu.Unlock()

	if alreadyRunning {
		return nil
	}

	if len(channels) == 0 {
		logger.WarnCF("channels", "No channels enabled", nil)
		return nil
	}

	for name, ch := range channels {
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
	return nil
}

// StopAll stops the outbound dispatch loop and every registered channel.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	stop := m.dispatchStop
	done := m.dispatchDone
	m.dispatchStop = nil
	m.dispatchDone = nil
	channels := make(map[string]Channel, len(m.channels))
	for name, ch := range m.channels {
		channels[name] = ch
	}
	m.mu.Unlock()

	if stop != nil {
		stop()
		if done != nil {
			<-done
		}
	}

	for name, ch := range channels {
		if err := ch.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
	return nil
}

// dispatchOutbound drains the bus and routes each artifact to its named
// channel. Every OutboundMessage, final or not, goes to Send. StreamChunks
// are delivered to StreamingChannel adapters only and dropped for adapters
// that don't implement it.
func (m *Manager) dispatchOutbound(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		artifact, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}

		channelName, _ := artifact.Target()

		m.mu.RLock()
		ch, exists := m.channels[channelName]
		m.mu.RUnlock()
		if !exists {
			logger.WarnCF("channels", "Unknown channel for outbound artifact", map[string]interface{}{
				"channel": channelName,
			})
			continue
		}

		var err error
		switch v := artifact.(type) {
		case bus.OutboundMessage:
			err = ch.Send(ctx, v)
		case bus.StreamChunk:
			if sc, ok := ch.(StreamingChannel); ok {
				err = sc.SendChunk(ctx, v)
			}
		}
		if err != nil {
			logger.ErrorCF("channels", "Error delivering outbound artifact", map[string]interface{}{
				"channel": channelName,
				"error":   err.Error(),
			})
		}
	}
}
