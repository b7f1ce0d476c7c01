package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/rotbot/rotbot/pkg/bus"
	"github.com/rotbot/rotbot/pkg/config"
	"github.com/rotbot/rotbot/pkg/logger"
	"github.com/rotbot/rotbot/pkg/utils"
)

// DiscordChannel adapts a discordgo gateway session to the bus. Only
// messages addressed to the bot (a direct message, or a mention in a
// guild channel) are forwarded, to avoid reacting to every message in
// every channel the bot can see.
type DiscordChannel struct {
	*BaseChannel
	config  config.DiscordConfig
	session *discordgo.Session
}

func NewDiscordChannel(cfg config.DiscordConfig, mb *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	base := NewBaseChannel("discord", cfg, mb, cfg.AllowFrom)
	c := &DiscordChannel{
		BaseChannel: base,
		config:      cfg,
		session:     session,
	}
	session.AddHandler(c.onMessageCreate)
	return c, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord session...")
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	c.setRunning(true)
	logger.InfoC("discord", "Discord session connected")
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord session...")
	c.setRunning(false)
	return c.session.Close()
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if _, err := c.session.ChannelMessageSend(msg.ChatID, msg.Content); err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	for _, mediaPath := range msg.Media {
		if _, err := c.session.ChannelFileSend(msg.ChatID, mediaPath, nil); err != nil {
			logger.ErrorCF("discord", "Failed to send attachment", map[string]interface{}{
				"path": mediaPath, "error": err.Error(),
			})
		}
	}
	return nil
}

func (c *DiscordChannel) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	isDM := m.GuildID == ""
	mentioned := false
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			mentioned = true
			break
		}
	}
	if !isDM && !mentioned {
		return
	}

	content := m.Content
	if mentioned {
		content = strings.TrimSpace(strings.ReplaceAll(content, "<@"+s.State.User.ID+">", ""))
	}

	var mediaPaths []string
	for _, a := range m.Attachments {
		mediaPaths = append(mediaPaths, a.URL)
	}

	metadata := map[string]string{
		"username": m.Author.Username,
		"is_dm":    fmt.Sprintf("%t", isDM),
	}

	logger.DebugCF("discord", "Received message", map[string]interface{}{
		"sender":  m.Author.ID,
		"preview": utils.Truncate(content, 50),
	})

	c.HandleMessage(m.Author.ID, m.ChannelID, content, mediaPaths, metadata)
}
