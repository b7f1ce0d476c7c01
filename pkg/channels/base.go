package channels

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotbot/rotbot/pkg/bus"
)

// BaseChannel carries the behavior every channel adapter shares: an
// allowlist check, inbound normalization onto the message bus, and a
// running flag adapters toggle from their own Start/Stop. Concrete
// adapters (TelegramChannel, WhatsAppChannel, ...) embed it.
type BaseChannel struct {
	name      string
	conn      interface{}
	bus       *bus.MessageBus
	allowList map[string]bool

	running atomic.Bool
	mu      sync.RWMutex
}

func NewBaseChannel(name string, conn interface{}, mb *bus.MessageBus, allowList []string) *BaseChannel {
	var allowed map[string]bool
	if len(allowList) > 0 {
		allowed = make(map[string]bool, len(allowList))
		for _, id := range allowList {
			allowed[id] = true
		}
	}
	return &BaseChannel{
		name:      name,
		conn:      conn,
		bus:       mb,
		allowList: allowed,
	}
}

func (bc *BaseChannel) Name() string {
	return bc.name
}

// IsAllowed reports whether userID may use this channel. An empty allow
// list permits everyone.
func (bc *BaseChannel) IsAllowed(userID string) bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if len(bc.allowList) == 0 {
		return true
	}
	return bc.allowList[userID]
}

func (bc *BaseChannel) IsRunning() bool {
	return bc.running.Load()
}

func (bc *BaseChannel) setRunning(running bool) {
	bc.running.Store(running)
}

// HandleMessage normalizes one inbound event and publishes it to the
// message bus, provided senderID passes the allow list. Silently drops
// the message otherwise.
func (bc *BaseChannel) HandleMessage(senderID, chatID, content string, media []string, metadata map[string]string) {
	if !bc.IsAllowed(senderID) {
		return
	}

	bc.bus.PublishInbound(bus.InboundMessage{
		Channel:    bc.name,
		ChatID:     chatID,
		SenderID:   senderID,
		Content:    content,
		Media:      media,
		Metadata:   metadata,
		Timestamp:  time.Now(),
		SessionKey: bc.name + ":" + chatID,
	})
}
