// Command rotbot is the process entrypoint: `rotbot agent` runs the local
// terminal adapter only, `rotbot gateway` runs every enabled non-terminal
// adapter (spec §6 CLI surface).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotbot/rotbot/pkg/agent"
	"github.com/rotbot/rotbot/pkg/bus"
	"github.com/rotbot/rotbot/pkg/channels"
	"github.com/rotbot/rotbot/pkg/config"
	"github.com/rotbot/rotbot/pkg/cron"
	"github.com/rotbot/rotbot/pkg/heartbeat"
	"github.com/rotbot/rotbot/pkg/logger"
	"github.com/rotbot/rotbot/pkg/providers"
	"github.com/rotbot/rotbot/pkg/tools"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "agent":
		err = runAgent(os.Args[2:])
	case "gateway":
		err = runGateway(os.Args[2:])
	case "provider", "status", "onboard":
		fmt.Fprintf(os.Stderr, "%s: administrative command, not implemented by this core\n", os.Args[1])
		os.Exit(1)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "rotbot:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rotbot <agent|gateway> [flags]")
}

func loadConfig() (*config.Config, error) {
	home, err := config.DefaultHome()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}
	return config.Load(filepath.Join(home, "config.json"))
}

// runAgent runs with the terminal adapter only. With -m, it sends a single
// message directly through the loop and exits once the response is
// printed; otherwise it starts an interactive REPL session.
func runAgent(args []string) error {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	message := fs.String("m", "", "send a single message and exit")
	noMarkdown := fs.Bool("no-markdown", false, "disable markdown rendering")
	showLogs := fs.Bool("logs", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *showLogs {
		logger.SetLevel(logger.LevelDebug)
	} else {
		logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	}

	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}

	msgBus := bus.NewMessageBus()
	loop := agent.NewAgentLoop(cfg, msgBus, provider)
	registerScheduling(cfg, loop, msgBus)

	cliChannel, err := channels.NewCLIChannel(cfg.Channels.CLI, msgBus)
	if err != nil {
		return fmt.Errorf("creating CLI channel: %w", err)
	}
	cliChannel.SetPlainOutput(*noMarkdown)

	if *message != "" {
		response, err := loop.ProcessDirectWithChannel(context.Background(), *message, "cli:direct", "cli", "direct")
		if err != nil {
			return err
		}
		fmt.Println(response)
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	manager := channels.NewManager(msgBus)
	manager.RegisterChannel("cli", cliChannel)
	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("starting channels: %w", err)
	}

	go loop.Run(ctx)

	<-ctx.Done()
	manager.StopAll(context.Background())
	return nil
}

// runGateway runs with every channel enabled in configuration.
func runGateway(args []string) error {
	fs := flag.NewFlagSet("gateway", flag.ExitOnError)
	showLogs := fs.Bool("logs", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *showLogs {
		logger.SetLevel(logger.LevelDebug)
	} else {
		logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	}

	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}

	msgBus := bus.NewMessageBus()
	loop := agent.NewAgentLoop(cfg, msgBus, provider)
	registerScheduling(cfg, loop, msgBus)

	ctx, cancel := signalContext()
	defer cancel()

	manager := channels.NewManager(msgBus)
	registerEnabledChannels(manager, cfg, msgBus)

	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("starting channels: %w", err)
	}

	go loop.Run(ctx)

	<-ctx.Done()
	manager.StopAll(context.Background())
	return nil
}

// registerEnabledChannels wires every adapter whose config section is
// enabled. A single adapter failing to construct (bad credentials, etc.)
// is logged and skipped rather than aborting the gateway.
func registerEnabledChannels(manager *channels.Manager, cfg *config.Config, msgBus *bus.MessageBus) {
	if cfg.Channels.Telegram.Enabled {
		if ch, err := channels.NewTelegramChannel(cfg.Channels.Telegram, msgBus); err != nil {
			logger.ErrorCF("main", "Failed to create Telegram channel", map[string]interface{}{"error": err.Error()})
		} else {
			manager.RegisterChannel("telegram", ch)
		}
	}
	if cfg.Channels.Discord.Enabled {
		if ch, err := channels.NewDiscordChannel(cfg.Channels.Discord, msgBus); err != nil {
			logger.ErrorCF("main", "Failed to create Discord channel", map[string]interface{}{"error": err.Error()})
		} else {
			manager.RegisterChannel("discord", ch)
		}
	}
	if cfg.Channels.Slack.Enabled {
		if ch, err := channels.NewSlackChannel(cfg.Channels.Slack, msgBus); err != nil {
			logger.ErrorCF("main", "Failed to create Slack channel", map[string]interface{}{"error": err.Error()})
		} else {
			manager.RegisterChannel("slack", ch)
		}
	}
	if cfg.Channels.Lark.Enabled {
		if ch, err := channels.NewLarkChannel(cfg.Channels.Lark, msgBus); err != nil {
			logger.ErrorCF("main", "Failed to create Lark channel", map[string]interface{}{"error": err.Error()})
		} else {
			manager.RegisterChannel("lark", ch)
		}
	}
	if cfg.Channels.DingTalk.Enabled {
		if ch, err := channels.NewDingTalkChannel(cfg.Channels.DingTalk, msgBus); err != nil {
			logger.ErrorCF("main", "Failed to create DingTalk channel", map[string]interface{}{"error": err.Error()})
		} else {
			manager.RegisterChannel("dingtalk", ch)
		}
	}
	if cfg.Channels.TencentQQ.Enabled {
		if ch, err := channels.NewTencentQQChannel(cfg.Channels.TencentQQ, msgBus); err != nil {
			logger.ErrorCF("main", "Failed to create TencentQQ channel", map[string]interface{}{"error": err.Error()})
		} else {
			manager.RegisterChannel("tencentqq", ch)
		}
	}
	if cfg.Channels.WhatsApp.Enabled {
		if ch, err := channels.NewWhatsAppChannel(cfg.Channels.WhatsApp, msgBus); err != nil {
			logger.ErrorCF("main", "Failed to create WhatsApp channel", map[string]interface{}{"error": err.Error()})
		} else {
			manager.RegisterChannel("whatsapp", ch)
		}
	}
	if cfg.Channels.Signal.Enabled {
		if ch, err := channels.NewSignalChannel(cfg.Channels.Signal, msgBus); err != nil {
			logger.ErrorCF("main", "Failed to create Signal channel", map[string]interface{}{"error": err.Error()})
		} else {
			manager.RegisterChannel("signal", ch)
		}
	}
}

// registerScheduling wires the cron tool and heartbeat service against the
// loop's direct-execution path, independent of any channel adapter.
func registerScheduling(cfg *config.Config, loop *agent.AgentLoop, msgBus *bus.MessageBus) {
	workspace := cfg.WorkspacePath()
	cronStorePath := filepath.Join(workspace, "cron.json")

	cronService := cron.NewCronService(cronStorePath, func(job *cron.CronJob) (string, error) {
		sessionKey := "cron:" + job.ID
		channel, chatID := job.Payload.Channel, job.Payload.To
		if channel == "" {
			channel, chatID = "cli", "direct"
		}
		if job.Payload.Deliver {
			msgBus.PublishOutbound(bus.OutboundMessage{
				Channel: channel,
				ChatID:  chatID,
				Content: job.Payload.Message,
				IsFinal: true,
			})
			return "ok", nil
		}
		return loop.ProcessDirectWithChannel(context.Background(), job.Payload.Message, sessionKey, channel, chatID)
	})
	cronTool := tools.NewCronTool(cronService, loop, msgBus)
	loop.RegisterTool(cronTool)
	if err := cronService.Start(); err != nil {
		logger.ErrorCF("main", "Failed to start cron service", map[string]interface{}{"error": err.Error()})
	}

	heartbeatService := heartbeat.NewHeartbeatService(workspace, func(prompt string) (string, error) {
		channel, chatID := cfg.Heartbeat.DeliverChannel, cfg.Heartbeat.DeliverChatID
		if channel == "" {
			channel, chatID = "cli", "direct"
		}
		response, err := loop.ProcessDirectWithChannel(context.Background(), prompt, "heartbeat:self", channel, chatID)
		if err == nil && response != "" && cfg.Heartbeat.DeliverChannel != "" {
			msgBus.PublishOutbound(bus.OutboundMessage{
				Channel: channel,
				ChatID:  chatID,
				Content: response,
				IsFinal: true,
			})
		}
		return response, err
	}, cfg.Heartbeat.IntervalMinutes, cfg.Heartbeat.Enabled)
	if err := heartbeatService.Start(); err != nil {
		logger.ErrorCF("main", "Failed to start heartbeat service", map[string]interface{}{"error": err.Error()})
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
