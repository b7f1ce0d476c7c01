package channels

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/rotbot/rotbot/pkg/bus"
	"github.com/rotbot/rotbot/pkg/config"
	"github.com/rotbot/rotbot/pkg/logger"
	"github.com/rotbot/rotbot/pkg/utils"
)

// LarkChannel adapts Lark/Feishu's long-connection event subscription, so
// no public callback URL needs to be registered with the platform.
type LarkChannel struct {
	*BaseChannel
	config config.LarkConfig
	client *lark.Client
	wsCli  *larkws.Client
}

func NewLarkChannel(cfg config.LarkConfig, mb *bus.MessageBus) (*LarkChannel, error) {
	client := lark.NewClient(cfg.AppID, cfg.AppSecret)

	base := NewBaseChannel("lark", cfg, mb, cfg.AllowFrom)
	c := &LarkChannel{
		BaseChannel: base,
		config:      cfg,
		client:      client,
	}

	handler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			c.onMessageReceive(event)
			return nil
		})

	c.wsCli = larkws.NewClient(cfg.AppID, cfg.AppSecret, larkws.WithEventHandler(handler))
	return c, nil
}

func (c *LarkChannel) Start(ctx context.Context) error {
	logger.InfoC("lark", "Starting Lark long-connection client...")
	go func() {
		if err := c.wsCli.Start(ctx); err != nil {
			logger.ErrorCF("lark", "Lark client exited", map[string]interface{}{"error": err.Error()})
		}
	}()
	c.setRunning(true)
	logger.InfoC("lark", "Lark client connected")
	return nil
}

func (c *LarkChannel) Stop(ctx context.Context) error {
	logger.InfoC("lark", "Stopping Lark client...")
	c.setRunning(false)
	return nil
}

func (c *LarkChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	content, err := json.Marshal(map[string]string{"text": msg.Content})
	if err != nil {
		return fmt.Errorf("marshaling lark message content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(msg.ChatID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := c.client.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send lark message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("lark message send failed: %s", resp.Msg)
	}
	return nil
}

func (c *LarkChannel) onMessageReceive(event *larkim.P2MessageReceiveV1) {
	if event == nil || event.Event == nil || event.Event.Message == nil || event.Event.Sender == nil {
		return
	}

	senderID := ""
	if event.Event.Sender.SenderId != nil && event.Event.Sender.SenderId.OpenId != nil {
		senderID = *event.Event.Sender.SenderId.OpenId
	}
	chatID := ""
	if event.Event.Message.ChatId != nil {
		chatID = *event.Event.Message.ChatId
	}

	var body struct {
		Text string `json:"text"`
	}
	if event.Event.Message.Content != nil {
		_ = json.Unmarshal([]byte(*event.Event.Message.Content), &body)
	}

	logger.DebugCF("lark", "Received message", map[string]interface{}{
		"sender":  senderID,
		"preview": utils.Truncate(body.Text, 50),
	})

	c.HandleMessage(senderID, chatID, body.Text, nil, nil)
}
