package bus

import "time"

// InboundMessage is a normalized user event sourced from any adapter.
// SessionKey is derived as Channel + ":" + ChatID.
type InboundMessage struct {
	Channel    string
	ChatID     string
	SenderID   string
	Content    string
	Media      []string
	Metadata   map[string]string
	Timestamp  time.Time
	SessionKey string
}

// OutboundArtifact is anything the ChannelManager's outbound router can
// dispatch: either a terminal OutboundMessage or an intermediate
// StreamChunk. Adapters never reference the manager directly; this
// interface is only what the router needs to decide how to deliver.
type OutboundArtifact interface {
	Target() (channel, chatID string)
}

// OutboundMessage is a complete message bound for an adapter. IsFinal marks
// it as the terminal reply of a turn. Non-final OutboundMessages are also
// published (tool progress, "still working" status pings, message-tool
// sends), and the ChannelManager delivers every OutboundMessage through
// Send whether IsFinal is set or not.
type OutboundMessage struct {
	Channel   string
	ChatID    string
	Content   string
	Media     []string
	IsFinal   bool
	Metadata  map[string]string
	Timestamp time.Time
}

func (m OutboundMessage) Target() (string, string) { return m.Channel, m.ChatID }

// StreamChunk is one incremental delta of a streaming turn.
type StreamChunk struct {
	Channel     string
	ChatID      string
	Chunk       string
	Accumulated string
	IsFinal     bool
}

func (c StreamChunk) Target() (string, string) { return c.Channel, c.ChatID }
