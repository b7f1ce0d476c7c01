// Package config loads the single JSON configuration document described in
// spec.md §6, merged over DefaultConfig() and overlaid by environment
// variables through caarlos0/env/v11, matching the teacher's preference for
// plain structs over a config framework.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type ProviderConfig struct {
	APIBase      string            `json:"apiBase" env:"API_BASE"`
	APIKey       string            `json:"apiKey" env:"API_KEY"`
	DefaultModel string            `json:"default_model" env:"DEFAULT_MODEL"`
	Models       map[string]string `json:"models"`
	Routing      map[string]interface{} `json:"routing"`
}

type ProvidersConfig struct {
	OpenRouter ProviderConfig `json:"openrouter"`
	Anthropic  ProviderConfig `json:"anthropic"`
	OpenAI     ProviderConfig `json:"openai"`
	Gemini     ProviderConfig `json:"gemini"`
	Zhipu      ProviderConfig `json:"zhipu"`
	Groq       ProviderConfig `json:"groq"`
	Modal      ProviderConfig `json:"modal"`
	VLLM       ProviderConfig `json:"vllm"`
}

type AgentDefaults struct {
	Provider             string `json:"provider"`
	Model                string `json:"model" env:"ROTBOT_MODEL"`
	MaxIterations        int    `json:"max_iterations"`
	MaxToolIterations    int    `json:"max_tool_iterations"`
	MemoryWindow         int    `json:"memory_window"`
	MaxTokens            int    `json:"max_tokens"`
	LLMTimeoutSeconds    int    `json:"llm_timeout_seconds"`
	ToolTimeoutSeconds   int    `json:"tool_timeout_seconds"`
	MaxParallelToolCalls int    `json:"max_parallel_tool_calls"`
}

type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults"`
}

// WebSearchConfig configures the optional web_search builtin tool.
type WebSearchConfig struct {
	APIKey     string `json:"apiKey" env:"API_KEY"`
	MaxResults int    `json:"max_results"`
}

type WebToolsConfig struct {
	Search WebSearchConfig `json:"search"`
}

// TelegramConfig configures TelegramChannel (pkg/channels/telegram.go).
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token" env:"TELEGRAM_TOKEN"`
	AllowFrom []string `json:"allow_from"`
}

// WhatsAppConfig configures WhatsAppChannel, a thin client of a
// separately-run bridge process speaking JSON over a websocket.
type WhatsAppConfig struct {
	Enabled   bool     `json:"enabled"`
	BridgeURL string   `json:"bridge_url" env:"WHATSAPP_BRIDGE_URL"`
	AllowFrom []string `json:"allow_from"`
}

// DiscordConfig configures DiscordChannel (bwmarrin/discordgo).
type DiscordConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token" env:"DISCORD_TOKEN"`
	AllowFrom []string `json:"allow_from"`
}

// SlackConfig configures SlackChannel (slack-go/slack), run in Socket Mode
// so no public webhook endpoint is required.
type SlackConfig struct {
	Enabled   bool     `json:"enabled"`
	BotToken  string   `json:"bot_token" env:"SLACK_BOT_TOKEN"`
	AppToken  string   `json:"app_token" env:"SLACK_APP_TOKEN"`
	AllowFrom []string `json:"allow_from"`
}

// LarkConfig configures LarkChannel (larksuite/oapi-sdk-go), Feishu/Lark's
// long-connection event subscription mode.
type LarkConfig struct {
	Enabled   bool     `json:"enabled"`
	AppID     string   `json:"app_id" env:"LARK_APP_ID"`
	AppSecret string   `json:"app_secret" env:"LARK_APP_SECRET"`
	AllowFrom []string `json:"allow_from"`
}

// DingTalkConfig configures DingTalkChannel (open-dingtalk/dingtalk-stream-sdk-go).
type DingTalkConfig struct {
	Enabled      bool     `json:"enabled"`
	ClientID     string   `json:"client_id" env:"DINGTALK_CLIENT_ID"`
	ClientSecret string   `json:"client_secret" env:"DINGTALK_CLIENT_SECRET"`
	AllowFrom    []string `json:"allow_from"`
}

// TencentQQConfig configures TencentQQChannel (tencent-connect/botgo).
type TencentQQConfig struct {
	Enabled   bool     `json:"enabled"`
	AppID     string   `json:"app_id" env:"TENCENTQQ_APP_ID"`
	Token     string   `json:"token" env:"TENCENTQQ_TOKEN"`
	AllowFrom []string `json:"allow_from"`
}

// CLIConfig configures CLIChannel, a local readline REPL adapter used for
// `rotbot agent` single-session interactive mode.
type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

// SignalConfig configures SignalChannel, a plain JSON-RPC-over-TCP client of
// a separately-run signal-cli daemon (`signal-cli daemon --json-rpc`).
type SignalConfig struct {
	Enabled   bool     `json:"enabled"`
	Phone     string   `json:"phone" env:"SIGNAL_PHONE"`
	Host      string   `json:"host"`
	Port      int      `json:"port"`
	AdminID   string   `json:"admin_id" env:"SIGNAL_ADMIN_ID"`
	AllowFrom []string `json:"allow_from"`
}

type ChannelsConfig struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Discord   DiscordConfig   `json:"discord"`
	Slack     SlackConfig     `json:"slack"`
	Lark      LarkConfig      `json:"lark"`
	DingTalk  DingTalkConfig  `json:"dingtalk"`
	TencentQQ TencentQQConfig `json:"tencentqq"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Signal    SignalConfig    `json:"signal"`
	CLI       CLIConfig       `json:"cli"`
}

type ToolsConfig struct {
	Builtin             []string          `json:"builtin"`
	RestrictToWorkspace bool              `json:"restrictToWorkspace"`
	MCPServers          map[string]string `json:"mcpServers"`
	Web                 WebToolsConfig    `json:"web"`
}

type MemoryConfig struct {
	ConsolidationThreshold int `json:"consolidation_threshold"`
}

// HeartbeatConfig drives pkg/heartbeat's periodic proactive check-in,
// independent of any scheduled jobs a user creates through the cron tool.
type HeartbeatConfig struct {
	Enabled         bool   `json:"enabled"`
	IntervalMinutes int    `json:"interval_minutes"`
	DeliverChannel  string `json:"deliver_channel"`
	DeliverChatID   string `json:"deliver_chat_id"`
}

type Config struct {
	Workspace string          `json:"workspace"`
	LogLevel  string          `json:"log_level" env:"ROTBOT_LOG_LEVEL"`
	Providers ProvidersConfig `json:"providers"`
	Agents    AgentsConfig    `json:"agents"`
	Channels  ChannelsConfig  `json:"channels"`
	Tools     ToolsConfig     `json:"tools"`
	Memory    MemoryConfig    `json:"memory"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
}

// WorkspacePath returns the data directory root this process persists
// sessions, memory, and skills under: Workspace if set, else
// <home>/.rotbot per §6's workspace layout.
func (c *Config) WorkspacePath() string {
	if c.Workspace != "" {
		return c.Workspace
	}
	if home, err := DefaultHome(); err == nil {
		return home
	}
	return ".rotbot"
}

// DefaultConfig returns the built-in default tree that a loaded document is
// merged over; missing sections in the file inherit these values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				MaxIterations:        20,
				MaxToolIterations:    20,
				MemoryWindow:         20,
				MaxTokens:            8192,
				LLMTimeoutSeconds:    180,
				ToolTimeoutSeconds:   30,
				MaxParallelToolCalls: 4,
			},
		},
		Memory: MemoryConfig{
			ConsolidationThreshold: 5,
		},
		Heartbeat: HeartbeatConfig{
			IntervalMinutes: 60,
		},
		Channels: ChannelsConfig{
			Signal: SignalConfig{
				Host: "localhost",
				Port: 7583,
			},
		},
	}
}

// DefaultHome returns <home>/.rotbot, the workspace layout root from §6.
func DefaultHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".rotbot"), nil
}

// Load reads the config document at path, merges it over DefaultConfig(),
// and overlays the environment variables named by the structs' env tags
// (ROTBOT_MODEL, ROTBOT_LOG_LEVEL, and unprefixed names such as
// TELEGRAM_TOKEN or API_KEY; the API_KEY/API_BASE/DEFAULT_MODEL tags apply
// to every provider section alike, and API_KEY also sets the web-search
// key). A missing file is not an error: the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, fmt.Errorf("applying environment overlay: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overlay: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to path as indented JSON, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
