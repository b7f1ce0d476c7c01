package channels

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/rotbot/rotbot/pkg/bus"
	"github.com/rotbot/rotbot/pkg/config"
	"github.com/rotbot/rotbot/pkg/logger"
	"github.com/rotbot/rotbot/pkg/utils"
)

// SlackChannel adapts Slack's Socket Mode client, avoiding the need for a
// public HTTP endpoint to receive events.
type SlackChannel struct {
	*BaseChannel
	config config.SlackConfig
	api    *slack.Client
	sock   *socketmode.Client
	botID  string
}

func NewSlackChannel(cfg config.SlackConfig, mb *bus.MessageBus) (*SlackChannel, error) {
	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	sock := socketmode.New(api)

	base := NewBaseChannel("slack", cfg, mb, cfg.AllowFrom)
	return &SlackChannel{
		BaseChannel: base,
		config:      cfg,
		api:         api,
		sock:        sock,
	}, nil
}

func (c *SlackChannel) Start(ctx context.Context) error {
	logger.InfoC("slack", "Starting Slack socket mode client...")

	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to authenticate with slack: %w", err)
	}
	c.botID = auth.UserID

	go c.runEventLoop(ctx)
	go func() {
		if err := c.sock.RunContext(ctx); err != nil {
			logger.ErrorCF("slack", "Socket mode client exited", map[string]interface{}{"error": err.Error()})
		}
	}()

	c.setRunning(true)
	logger.InfoCF("slack", "Slack connected", map[string]interface{}{"bot_id": c.botID})
	return nil
}

func (c *SlackChannel) Stop(ctx context.Context) error {
	logger.InfoC("slack", "Stopping Slack socket mode client...")
	c.setRunning(false)
	return nil
}

func (c *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	_, _, err := c.api.PostMessageContext(ctx, msg.ChatID, slack.MsgOptionText(msg.Content, false))
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	return nil
}

func (c *SlackChannel) runEventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.sock.Events:
			if !ok {
				return
			}
			c.handleEvent(evt)
		}
	}
}

func (c *SlackChannel) handleEvent(evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	c.sock.Ack(*evt.Request)

	inner, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	if inner.BotID != "" || inner.User == c.botID {
		return
	}

	logger.DebugCF("slack", "Received message", map[string]interface{}{
		"sender":  inner.User,
		"preview": utils.Truncate(inner.Text, 50),
	})

	c.HandleMessage(inner.User, inner.Channel, inner.Text, nil, map[string]string{
		"ts": inner.TimeStamp,
	})
}
