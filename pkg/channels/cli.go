package channels

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/rotbot/rotbot/pkg/bus"
	"github.com/rotbot/rotbot/pkg/config"
	"github.com/rotbot/rotbot/pkg/delivery"
	"github.com/rotbot/rotbot/pkg/logger"
)

const (
	cliSenderID = "local"
	cliChatID   = "direct"
)

// CLIChannel is the local interactive REPL adapter used by `rotbot agent`.
// Every line read from stdin becomes one inbound message on the "direct"
// session; replies are printed straight to stdout.
type CLIChannel struct {
	*BaseChannel
	config   config.CLIConfig
	rl       *readline.Instance
	noMarkup bool
	stream   *delivery.LineStreamAdapter
}

func NewCLIChannel(cfg config.CLIConfig, mb *bus.MessageBus) (*CLIChannel, error) {
	rl, err := readline.New("> ")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize readline: %w", err)
	}

	base := NewBaseChannel("cli", cfg, mb, nil)
	return &CLIChannel{
		BaseChannel: base,
		config:      cfg,
		rl:          rl,
		stream:      delivery.NewLineStreamAdapter(rl.Stdout()),
	}, nil
}

// SetPlainOutput disables any future markdown-to-terminal rendering
// (rotbot agent's --no-markdown flag).
func (c *CLIChannel) SetPlainOutput(plain bool) {
	c.noMarkup = plain
}

func (c *CLIChannel) Start(ctx context.Context) error {
	c.setRunning(true)
	go c.readLoop(ctx)
	return nil
}

func (c *CLIChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	return c.rl.Close()
}

func (c *CLIChannel) readLoop(ctx context.Context) {
	defer c.rl.Close()
	for {
		line, err := c.rl.Readline()
		if err != nil {
			if err != io.EOF && err != readline.ErrInterrupt {
				logger.ErrorCF("cli", "Readline error", map[string]interface{}{"error": err.Error()})
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		c.HandleMessage(cliSenderID, cliChatID, line, nil, nil)
	}
}

func (c *CLIChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	fmt.Fprintln(c.rl.Stdout(), msg.Content)
	return nil
}

// SendChunk implements channels.StreamingChannel with the line-stream
// profile (spec §4.10): each delta is printed as it arrives, with a
// trailing newline on the terminal chunk.
func (c *CLIChannel) SendChunk(ctx context.Context, chunk bus.StreamChunk) error {
	return c.stream.HandleChunk(ctx, chunk.ChatID, chunk.Chunk, chunk.IsFinal)
}

// SendDirect runs a single message through the registered callback and
// prints the response, used by `rotbot agent -m MSG` non-interactive mode.
func SendDirect(content string, process func(string) (string, error)) error {
	response, err := process(content)
	if err != nil {
		return err
	}
	fmt.Println(response)
	return nil
}
