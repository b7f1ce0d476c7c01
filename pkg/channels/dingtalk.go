package channels

import (
	"context"
	"fmt"

	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/client"

	"github.com/rotbot/rotbot/pkg/bus"
	"github.com/rotbot/rotbot/pkg/config"
	"github.com/rotbot/rotbot/pkg/logger"
)

// DingTalkChannel adapts DingTalk's stream-mode chatbot SDK: a persistent
// websocket connection to DingTalk's gateway, no public webhook required.
type DingTalkChannel struct {
	*BaseChannel
	config config.DingTalkConfig
	client *client.StreamClient
}

func NewDingTalkChannel(cfg config.DingTalkConfig, mb *bus.MessageBus) (*DingTalkChannel, error) {
	base := NewBaseChannel("dingtalk", cfg, mb, cfg.AllowFrom)
	return &DingTalkChannel{
		BaseChannel: base,
		config:      cfg,
	}, nil
}

func (c *DingTalkChannel) Start(ctx context.Context) error {
	logger.InfoC("dingtalk", "Starting DingTalk stream client...")

	cli := client.NewStreamClient(client.WithAppCredential(
		client.NewAppCredentialConfig(c.config.ClientID, c.config.ClientSecret),
	))
	cli.RegisterChatBotCallbackRouter(chatbot.NewDefaultChatBotFrameHandler(c.onChatBotMessageReceived))

	if err := cli.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dingtalk stream client: %w", err)
	}

	c.client = cli
	c.setRunning(true)
	logger.InfoC("dingtalk", "DingTalk stream client connected")
	return nil
}

func (c *DingTalkChannel) Stop(ctx context.Context) error {
	logger.InfoC("dingtalk", "Stopping DingTalk stream client...")
	if c.client != nil {
		c.client.Close()
	}
	c.setRunning(false)
	return nil
}

// Send always returns an error: DingTalk replies go through the webhook URL
// carried on each incoming message's callback data rather than a persistent
// session, and onChatBotMessageReceived only publishes the inbound message,
// so agent replies are not delivered to DingTalk.
func (c *DingTalkChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	return fmt.Errorf("dingtalk: asynchronous send not supported outside of a callback, use the webhook reply instead")
}

// onChatBotMessageReceived is registered as the stream SDK's chatbot
// callback. A nil payload (the SDK hands this to us on malformed frames)
// is handled, not rejected: there is nothing useful to route, so it is
// dropped silently instead of panicking the stream reader goroutine.
func (c *DingTalkChannel) onChatBotMessageReceived(ctx context.Context, data *chatbot.BotCallbackDataModel) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}

	senderID := data.SenderStaffId
	chatID := data.ConversationId
	content := data.Text.Content

	metadata := map[string]string{
		"sender_nick":       data.SenderNick,
		"conversation_type": data.ConversationType,
	}

	c.HandleMessage(senderID, chatID, content, nil, metadata)

	return []byte("{}"), nil
}
