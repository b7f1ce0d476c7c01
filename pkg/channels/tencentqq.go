package channels

import (
	"context"
	"fmt"

	"github.com/tencent-connect/botgo"
	"github.com/tencent-connect/botgo/dto"
	"github.com/tencent-connect/botgo/event"
	"github.com/tencent-connect/botgo/openapi"
	"github.com/tencent-connect/botgo/token"

	"github.com/rotbot/rotbot/pkg/bus"
	"github.com/rotbot/rotbot/pkg/config"
	"github.com/rotbot/rotbot/pkg/logger"
	"github.com/rotbot/rotbot/pkg/utils"
)

// TencentQQChannel adapts the QQ guild bot websocket gateway via botgo,
// reacting to @-mention messages the same way DiscordChannel does.
type TencentQQChannel struct {
	*BaseChannel
	config config.TencentQQConfig
	api    openapi.OpenAPI
}

func NewTencentQQChannel(cfg config.TencentQQConfig, mb *bus.MessageBus) (*TencentQQChannel, error) {
	credential := token.New(token.TypeBot)
	credential.AppID = cfg.AppID
	credential.AccessToken = cfg.Token

	api := botgo.NewOpenAPI(cfg.AppID, credential).WithTimeout(10)

	base := NewBaseChannel("tencentqq", cfg, mb, cfg.AllowFrom)
	return &TencentQQChannel{
		BaseChannel: base,
		config:      cfg,
		api:         api,
	}, nil
}

func (c *TencentQQChannel) Start(ctx context.Context) error {
	logger.InfoC("tencentqq", "Starting QQ guild bot websocket...")

	wsInfo, err := c.api.WS(ctx, nil, "")
	if err != nil {
		return fmt.Errorf("failed to fetch qq websocket info: %w", err)
	}

	intents := event.RegisterHandlers(c.atMessageHandler())
	if err := botgo.NewSessionManager().Start(wsInfo, credentialFor(c.config), &intents); err != nil {
		return fmt.Errorf("failed to start qq session manager: %w", err)
	}

	c.setRunning(true)
	logger.InfoC("tencentqq", "QQ guild bot connected")
	return nil
}

func credentialFor(cfg config.TencentQQConfig) *token.Token {
	credential := token.New(token.TypeBot)
	credential.AppID = cfg.AppID
	credential.AccessToken = cfg.Token
	return credential
}

func (c *TencentQQChannel) Stop(ctx context.Context) error {
	logger.InfoC("tencentqq", "Stopping QQ guild bot websocket...")
	c.setRunning(false)
	return nil
}

func (c *TencentQQChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	_, err := c.api.PostMessage(ctx, msg.ChatID, &dto.MessageToCreate{
		Content: msg.Content,
	})
	if err != nil {
		return fmt.Errorf("failed to send qq message: %w", err)
	}
	return nil
}

func (c *TencentQQChannel) atMessageHandler() event.ATMessageEventHandler {
	return func(evt *dto.WSPayload, data *dto.WSATMessageData) error {
		if data == nil || data.Author == nil {
			return nil
		}

		logger.DebugCF("tencentqq", "Received message", map[string]interface{}{
			"sender":  data.Author.ID,
			"preview": utils.Truncate(data.Content, 50),
		})

		c.HandleMessage(data.Author.ID, data.ChannelID, data.Content, nil, map[string]string{
			"guild_id": data.GuildID,
		})
		return nil
	}
}
