package channels

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotbot/rotbot/pkg/bus"
	"github.com/rotbot/rotbot/pkg/config"
	"github.com/rotbot/rotbot/pkg/logger"
	"github.com/rotbot/rotbot/pkg/utils"
)

// signalMessageLimit is the practical per-message size signal-cli handles
// without the server-side splitting its own transport would otherwise do.
const signalMessageLimit = 4000

// groupIDMinLength separates a Signal group ID (a long base64 string) from a
// direct-message phone number recipient in signal-cli's JSON-RPC params.
const groupIDMinLength = 20

// SignalChannel talks to a signal-cli daemon (`signal-cli daemon --json-rpc`)
// over a plain TCP JSON-RPC stream: one JSON object per line in each
// direction, no SDK involved.
type SignalChannel struct {
	*BaseChannel
	config config.SignalConfig
	addr   string

	mu        sync.Mutex
	conn      net.Conn
	requestID int64

	streamMu      sync.Mutex
	streamBuffers map[string]string
}

func NewSignalChannel(cfg config.SignalConfig, mb *bus.MessageBus) (*SignalChannel, error) {
	base := NewBaseChannel("signal", cfg, mb, cfg.AllowFrom)

	return &SignalChannel{
		BaseChannel:   base,
		config:        cfg,
		addr:          net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		streamBuffers: make(map[string]string),
	}, nil
}

func (c *SignalChannel) Start(ctx context.Context) error {
	logger.InfoCF("signal", "Starting Signal channel", map[string]interface{}{"addr": c.addr})

	if err := c.connect(); err != nil {
		return fmt.Errorf("failed to connect to signal-cli daemon: %w", err)
	}

	c.setRunning(true)
	logger.InfoCF("signal", "Signal channel connected", map[string]interface{}{"addr": c.addr})

	go c.listenLoop(ctx)

	return nil
}

func (c *SignalChannel) Stop(ctx context.Context) error {
	logger.InfoCF("signal", "Stopping Signal channel", nil)

	c.setRunning(false)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *SignalChannel) connect() error {
	conn, err := net.DialTimeout("tcp", c.addr, 10*time.Second)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// listenLoop reads one JSON-RPC notification per line and auto-reconnects on
// any read error, mirroring signal-cli's own daemon reconnection tolerance.
func (c *SignalChannel) listenLoop(ctx context.Context) {
	for c.IsRunning() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			if err := c.connect(); err != nil {
				logger.WarnCF("signal", "Signal reconnect failed", map[string]interface{}{"error": err.Error()})
				time.Sleep(5 * time.Second)
				continue
			}
			c.mu.Lock()
			conn = c.conn
			c.mu.Unlock()
		}

		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if !c.IsRunning() {
				return
			}
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var notification map[string]interface{}
			if err := json.Unmarshal(line, &notification); err != nil {
				continue
			}
			c.handleNotification(notification)
		}

		if !c.IsRunning() {
			return
		}
		logger.WarnCF("signal", "Signal connection closed, reconnecting", nil)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.conn = nil
		c.mu.Unlock()
		time.Sleep(5 * time.Second)
	}
}

func (c *SignalChannel) handleNotification(data map[string]interface{}) {
	method, _ := data["method"].(string)
	if method != "receive" {
		return
	}

	params, _ := data["params"].(map[string]interface{})
	envelope, _ := params["envelope"].(map[string]interface{})
	dataMsg, _ := envelope["dataMessage"].(map[string]interface{})
	if dataMsg == nil {
		return
	}

	message, _ := dataMsg["message"].(string)
	if message == "" {
		return
	}

	source, _ := envelope["source"].(string)
	groupInfo, _ := dataMsg["groupInfo"].(map[string]interface{})
	groupID, _ := groupInfo["groupId"].(string)

	chatID := source
	if groupID != "" {
		chatID = groupID
	}

	logger.DebugCF("signal", "Received message", map[string]interface{}{"sender": source, "preview": utils.Truncate(message, 50)})

	c.HandleMessage(source, chatID, message, nil, map[string]string{
		"is_group": strconv.FormatBool(groupID != ""),
	})
}

func (c *SignalChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	for _, part := range splitSignalMessage(msg.Content, signalMessageLimit) {
		if err := c.sendRPC(msg.ChatID, part); err != nil {
			return err
		}
	}

	c.streamMu.Lock()
	delete(c.streamBuffers, msg.ChatID)
	c.streamMu.Unlock()
	return nil
}

// SendChunk implements StreamingChannel. signal-cli has no message-edit
// verb, so intermediate chunks only trigger a typing indicator; the final
// chunk sends the accumulated text as one message, matching the
// replace-on-final profile the original Python channel uses.
func (c *SignalChannel) SendChunk(ctx context.Context, chunk bus.StreamChunk) error {
	c.streamMu.Lock()
	c.streamBuffers[chunk.ChatID] = chunk.Accumulated
	c.streamMu.Unlock()

	if !chunk.IsFinal {
		return c.sendTypingIndicator(chunk.ChatID)
	}

	c.streamMu.Lock()
	final := c.streamBuffers[chunk.ChatID]
	delete(c.streamBuffers, chunk.ChatID)
	c.streamMu.Unlock()

	if final == "" {
		final = chunk.Accumulated
	}
	return c.Send(ctx, bus.OutboundMessage{Channel: "signal", ChatID: chunk.ChatID, Content: final, IsFinal: true})
}

func (c *SignalChannel) sendRPC(recipient, message string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("signal: not connected")
	}

	params := map[string]interface{}{"account": c.config.Phone}
	if isGroupID(recipient) {
		params["groupId"] = recipient
	} else {
		params["recipient"] = []string{recipient}
	}
	params["message"] = message

	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      atomic.AddInt64(&c.requestID, 1),
		"method":  "send",
		"params":  params,
	}

	return c.writeRequest(conn, request)
}

func (c *SignalChannel) sendTypingIndicator(recipient string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	params := map[string]interface{}{"account": c.config.Phone}
	if isGroupID(recipient) {
		params["groupId"] = recipient
	} else {
		params["recipient"] = []string{recipient}
	}

	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      atomic.AddInt64(&c.requestID, 1),
		"method":  "sendTyping",
		"params":  params,
	}

	return c.writeRequest(conn, request)
}

func (c *SignalChannel) writeRequest(conn net.Conn, request map[string]interface{}) error {
	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal signal-cli request: %w", err)
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = conn.Write(data)
	if err != nil {
		return fmt.Errorf("signal send failed: %w", err)
	}
	return nil
}

func isGroupID(recipient string) bool {
	return len(recipient) > groupIDMinLength
}

// splitSignalMessage breaks content into signal-cli-sized parts, preferring
// a newline boundary near the limit over a hard cut.
func splitSignalMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var parts []string
	for len(text) > 0 {
		if len(text) <= limit {
			parts = append(parts, text)
			break
		}
		splitAt := lastIndexByte(text[:limit], '\n')
		if splitAt < limit/2 {
			splitAt = limit
		}
		parts = append(parts, text[:splitAt])
		text = trimLeadingNewlines(text[splitAt:])
	}
	return parts
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func trimLeadingNewlines(s string) string {
	i := 0
	for i < len(s) && s[i] == '\n' {
		i++
	}
	return s[i:]
}
