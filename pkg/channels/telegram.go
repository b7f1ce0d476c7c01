package channels

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/rotbot/rotbot/pkg/bus"
	"github.com/rotbot/rotbot/pkg/config"
	"github.com/rotbot/rotbot/pkg/delivery"
	"github.com/rotbot/rotbot/pkg/logger"
	"github.com/rotbot/rotbot/pkg/utils"
)

// telegramMessageCap is Telegram's text message size limit (4096 UTF-16
// code units; conservatively treated as bytes here since the split rule
// operates on the wire representation, not glyph count).
const telegramMessageCap = 4096

// telegramEditInterval is the live-edit rate limit recommended for
// Telegram's editMessageText endpoint (spec §4.10: "0.6 s or 1.0 s
// depending on platform").
const telegramEditInterval = time.Second

// telegramBot abstracts the telego.Bot methods used by TelegramChannel,
// enabling mock-based testing without a live Telegram API connection.
type telegramBot interface {
	Username() string
	FileDownloadURL(filepath string) string
	UpdatesViaLongPolling(ctx context.Context, params *telego.GetUpdatesParams, options ...telego.LongPollingOption) (<-chan telego.Update, error)
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
	SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error)
	SendDocument(ctx context.Context, params *telego.SendDocumentParams) (*telego.Message, error)
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	DeleteMessage(ctx context.Context, params *telego.DeleteMessageParams) error
	GetFile(ctx context.Context, params *telego.GetFileParams) (*telego.File, error)
}

type TelegramChannel struct {
	*BaseChannel
	bot          telegramBot
	config       config.TelegramConfig
	chatIDs      map[string]int64
	stopThinking sync.Map // chatID -> thinkingCancel

	// typingInterval controls how often the typing indicator is refreshed.
	// Telegram's typing indicator expires after ~5s, so default is 4s.
	typingInterval time.Duration

	stream *delivery.LiveEditAdapter
}

// telegramEditor adapts TelegramChannel's bot connection to
// delivery.Editor so the shared live-edit profile can drive it.
type telegramEditor struct {
	c *TelegramChannel
}

func (e *telegramEditor) SendMessage(ctx context.Context, chatID, text string) (string, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return "", err
	}
	tgMsg := tu.Message(tu.ID(id), markdownToTelegramHTML(text))
	tgMsg.ParseMode = telego.ModeHTML
	sent, err := e.c.bot.SendMessage(ctx, tgMsg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", sent.MessageID), nil
}

func (e *telegramEditor) EditMessage(ctx context.Context, chatID, handle, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	var messageID int
	if _, err := fmt.Sscanf(handle, "%d", &messageID); err != nil {
		return fmt.Errorf("invalid message handle %q: %w", handle, err)
	}
	_, err = e.c.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(id),
		MessageID: messageID,
		Text:      markdownToTelegramHTML(text),
		ParseMode: telego.ModeHTML,
	})
	return err
}

func (e *telegramEditor) DeleteMessage(ctx context.Context, chatID, handle string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	var messageID int
	if _, err := fmt.Sscanf(handle, "%d", &messageID); err != nil {
		return fmt.Errorf("invalid message handle %q: %w", handle, err)
	}
	return e.c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(id),
		MessageID: messageID,
	})
}

type thinkingCancel struct {
	fn context.CancelFunc
}

func (c *thinkingCancel) Cancel() {
	if c != nil && c.fn != nil {
		c.fn()
	}
}

func NewTelegramChannel(cfg config.TelegramConfig, bus *bus.MessageBus) (*TelegramChannel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	base := NewBaseChannel("telegram", cfg, bus, cfg.AllowFrom)

	tc := &TelegramChannel{
		BaseChannel:    base,
		bot:            bot,
		config:         cfg,
		chatIDs:        make(map[string]int64),
		stopThinking:   sync.Map{},
		typingInterval: 4 * time.Second,
	}
	tc.stream = delivery.NewLiveEditAdapter(&telegramEditor{c: tc}, telegramEditInterval, telegramMessageCap)
	return tc, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot (polling mode)...")

	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: 30,
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	c.setRunning(true)
	logger.InfoCF("telegram", "Telegram bot connected", map[string]interface{}{
		"username": c.bot.Username(),
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					logger.InfoC("telegram", "Updates channel closed, stopping update loop")
					return
				}
				if update.Message != nil {
					c.handleMessage(ctx, update)
				}
			}
		}
	}()

	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot...")
	c.setRunning(false)
	return nil
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}

	chatID, err := parseChatID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}

	// Stop thinking animation
	if stop, ok := c.stopThinking.Load(msg.ChatID); ok {
		if cf, ok := stop.(*thinkingCancel); ok && cf != nil {
			cf.Cancel()
		}
		c.stopThinking.Delete(msg.ChatID)
	}

	htmlContent := markdownToTelegramHTML(msg.Content)

	// If there's no media, send text only
	if len(msg.Media) == 0 {
		tgMsg := tu.Message(tu.ID(chatID), htmlContent)
		tgMsg.ParseMode = telego.ModeHTML

		if _, err = c.bot.SendMessage(ctx, tgMsg); err != nil {
			logger.ErrorCF("telegram", "HTML parse failed, falling back to plain text", map[string]interface{}{
				"error": err.Error(),
			})
			tgMsg.ParseMode = ""
			_, err = c.bot.SendMessage(ctx, tgMsg)
			return err
		}
		return nil
	}

	// Send text content first if present
	if msg.Content != "" {
		tgMsg := tu.Message(tu.ID(chatID), htmlContent)
		tgMsg.ParseMode = telego.ModeHTML
		if _, err = c.bot.SendMessage(ctx, tgMsg); err != nil {
			logger.ErrorCF("telegram", "Failed to send text before media", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	// Send each media file
	for _, mediaPath := range msg.Media {
		file, fileErr := os.Open(mediaPath)
		if fileErr != nil {
			logger.ErrorCF("telegram", "Failed to open media file", map[string]interface{}{
				"path":  mediaPath,
				"error": fileErr.Error(),
			})
			continue
		}

		if isImageFile(mediaPath) {
			photoMsg := tu.Photo(tu.ID(chatID), tu.File(file))
			if _, sendErr := c.bot.SendPhoto(ctx, photoMsg); sendErr != nil {
				logger.ErrorCF("telegram", "Failed to send photo", map[string]interface{}{
					"path":  mediaPath,
					"error": sendErr.Error(),
				})
			}
		} else {
			docMsg := tu.Document(tu.ID(chatID), tu.File(file))
			if _, sendErr := c.bot.SendDocument(ctx, docMsg); sendErr != nil {
				logger.ErrorCF("telegram", "Failed to send document", map[string]interface{}{
					"path":  mediaPath,
					"error": sendErr.Error(),
				})
			}
		}

		file.Close()
	}

	return nil
}

// SendChunk implements channels.StreamingChannel with the live-edit profile
// (spec §4.10): Telegram supports editMessageText, so in-progress turns are
// shown as a single message that grows in place rather than a flood of
// separate sends.
func (c *TelegramChannel) SendChunk(ctx context.Context, chunk bus.StreamChunk) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}
	return c.stream.HandleChunk(ctx, chunk.ChatID, chunk.Accumulated, chunk.IsFinal)
}

// startTypingIndicator sends repeated "typing..." chat actions until the
// context is cancelled (by Send) or times out. This replaces the previous
// animated "Thinking..." placeholder message.
func (c *TelegramChannel) startTypingIndicator(ctx context.Context, cancel context.CancelFunc, chatID int64, chatIDStr string) {
	c.stopThinking.Store(chatIDStr, &thinkingCancel{fn: cancel})

	interval := c.typingInterval
	if interval == 0 {
		interval = 4 * time.Second
	}

	// Send the first typing action immediately
	_ = c.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping))

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = c.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping))
			}
		}
	}()
}

func (c *TelegramChannel) handleMessage(ctx context.Context, update telego.Update) {
	message := update.Message
	if message == nil {
		return
	}

	user := message.From
	if user == nil {
		return
	}

	senderID := fmt.Sprintf("%d", user.ID)
	if user.Username != "" {
		senderID = fmt.Sprintf("%d|%s", user.ID, user.Username)
	}

	// 检查白名单，避免为被拒绝的用户下载附件
	if !c.IsAllowed(senderID) {
		logger.DebugCF("telegram", "Message rejected by allowlist", map[string]interface{}{
			"user_id": senderID,
		})
		return
	}

	chatID := message.Chat.ID
	c.chatIDs[senderID] = chatID

	content := ""
	mediaPaths := []string{}
	localFiles := []string{} // 跟踪需要清理的本地文件

	// 确保临时文件在函数返回时被清理
	defer func() {
		for _, file := range localFiles {
			if err := os.Remove(file); err != nil {
				logger.DebugCF("telegram", "Failed to cleanup temp file", map[string]interface{}{
					"file":  file,
					"error": err.Error(),
				})
			}
		}
	}()

	if message.Text != "" {
		content += message.Text
	}

	if message.Caption != "" {
		if content != "" {
			content += "\n"
		}
		content += message.Caption
	}

	if message.Photo != nil && len(message.Photo) > 0 {
		photo := message.Photo[len(message.Photo)-1]
		photoPath := c.downloadPhoto(ctx, photo.FileID)
		if photoPath != "" {
			localFiles = append(localFiles, photoPath)
			mediaPaths = append(mediaPaths, photoPath)
			if content != "" {
				content += "\n"
			}
			content += fmt.Sprintf("[image: photo]")
		}
	}

	if message.Voice != nil {
		voicePath := c.downloadFile(ctx, message.Voice.FileID, ".ogg")
		if voicePath != "" {
			localFiles = append(localFiles, voicePath)
			mediaPaths = append(mediaPaths, voicePath)

			// Voice transcription is not part of this core: no pack dependency
			// covers speech-to-text, so voice messages degrade to a placeholder
			// with the downloaded file attached as media (see DESIGN.md).
			transcribedText := "[voice message]"

			if content != "" {
				content += "\n"
			}
			content += transcribedText
		}
	}

	if message.Audio != nil {
		audioPath := c.downloadFile(ctx, message.Audio.FileID, ".mp3")
		if audioPath != "" {
			localFiles = append(localFiles, audioPath)
			mediaPaths = append(mediaPaths, audioPath)
			if content != "" {
				content += "\n"
			}
			content += fmt.Sprintf("[audio]")
		}
	}

	if message.Document != nil {
		docPath := c.downloadFile(ctx, message.Document.FileID, "")
		if docPath != "" {
			localFiles = append(localFiles, docPath)
			mediaPaths = append(mediaPaths, docPath)
			if content != "" {
				content += "\n"
			}
			content += fmt.Sprintf("[file]")
		}
	}

	if content == "" {
		content = "[empty message]"
	}

	logger.DebugCF("telegram", "Received message", map[string]interface{}{
		"sender_id": senderID,
		"chat_id":   fmt.Sprintf("%d", chatID),
		"preview":   utils.Truncate(content, 50),
	})

	// Start typing indicator (repeating "typing..." action until Send cancels it)
	chatIDStr := fmt.Sprintf("%d", chatID)
	if prevStop, ok := c.stopThinking.Load(chatIDStr); ok {
		if cf, ok := prevStop.(*thinkingCancel); ok && cf != nil {
			cf.Cancel()
		}
	}

	thinkCtx, thinkCancel := context.WithTimeout(ctx, 5*time.Minute)
	c.startTypingIndicator(thinkCtx, thinkCancel, chatID, chatIDStr)

	metadata := map[string]string{
		"message_id": fmt.Sprintf("%d", message.MessageID),
		"user_id":    fmt.Sprintf("%d", user.ID),
		"username":   user.Username,
		"first_name": user.FirstName,
		"is_group":   fmt.Sprintf("%t", message.Chat.Type != "private"),
	}

	c.HandleMessage(senderID, fmt.Sprintf("%d", chatID), content, mediaPaths, metadata)
}

func (c *TelegramChannel) downloadPhoto(ctx context.Context, fileID string) string {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		logger.ErrorCF("telegram", "Failed to get photo file", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}

	return c.downloadFileWithInfo(file, ".jpg")
}

func (c *TelegramChannel) downloadFileWithInfo(file *telego.File, ext string) string {
	if file.FilePath == "" {
		return ""
	}

	url := c.bot.FileDownloadURL(file.FilePath)
	logger.DebugCF("telegram", "File URL", map[string]interface{}{"url": url})

	// Use FilePath as filename for better identification
	filename := file.FilePath + ext
	return utils.DownloadFile(url, filename, utils.DownloadOptions{
		LoggerPrefix: "telegram",
	})
}

func (c *TelegramChannel) downloadFile(ctx context.Context, fileID, ext string) string {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		logger.ErrorCF("telegram", "Failed to get file", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}

	return c.downloadFileWithInfo(file, ext)
}

func isImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	default:
		return false
	}
}

func parseChatID(chatIDStr string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(chatIDStr, "%d", &id)
	return id, err
}

func markdownToTelegramHTML(text string) string {
	if text == "" {
		return ""
	}

	codeBlocks := extractCodeBlocks(text)
	text = codeBlocks.text

	inlineCodes := extractInlineCodes(text)
	text = inlineCodes.text

	text = regexp.MustCompile(`^#{1,6}\s+(.+)$`).ReplaceAllString(text, "$1")

	text = regexp.MustCompile(`^>\s*(.*)$`).ReplaceAllString(text, "$1")

	text = escapeHTML(text)

	text = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`).ReplaceAllString(text, `<a href="$2">$1</a>`)

	text = regexp.MustCompile(`\*\*(.+?)\*\*`).ReplaceAllString(text, "<b>$1</b>")

	text = regexp.MustCompile(`__(.+?)__`).ReplaceAllString(text, "<b>$1</b>")

	reItalic := regexp.MustCompile(`_([^_]+)_`)
	text = reItalic.ReplaceAllStringFunc(text, func(s string) string {
		match := reItalic.FindStringSubmatch(s)
		if len(match) < 2 {
			return s
		}
		return "<i>" + match[1] + "</i>"
	})

	text = regexp.MustCompile(`~~(.+?)~~`).ReplaceAllString(text, "<s>$1</s>")

	text = regexp.MustCompile(`^[-*]\s+`).ReplaceAllString(text, "• ")

	for i, code := range inlineCodes.codes {
		escaped := escapeHTML(code)
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00IC%d\x00", i), fmt.Sprintf("<code>%s</code>", escaped))
	}

	for i, code := range codeBlocks.codes {
		escaped := escapeHTML(code)
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00CB%d\x00", i), fmt.Sprintf("<pre><code>%s</code></pre>", escaped))
	}

	return text
}

type codeBlockMatch struct {
	text  string
	codes []string
}

func extractCodeBlocks(text string) codeBlockMatch {
	re := regexp.MustCompile("```[\\w]*\\n?([\\s\\S]*?)```")
	matches := re.FindAllStringSubmatch(text, -1)

	codes := make([]string, 0, len(matches))
	for _, match := range matches {
		codes = append(codes, match[1])
	}

	idx := 0
	text = re.ReplaceAllStringFunc(text, func(m string) string {
		s := fmt.Sprintf("\x00CB%d\x00", idx)
		idx++
		return s
	})

	return codeBlockMatch{text: text, codes: codes}
}

type inlineCodeMatch struct {
	text  string
	codes []string
}

func extractInlineCodes(text string) inlineCodeMatch {
	re := regexp.MustCompile("`([^`]+)`")
	matches := re.FindAllStringSubmatch(text, -1)

	codes := make([]string, 0, len(matches))
	for _, match := range matches {
		codes = append(codes, match[1])
	}

	idx := 0
	text = re.ReplaceAllStringFunc(text, func(m string) string {
		s := fmt.Sprintf("\x00IC%d\x00", idx)
		idx++
		return s
	})

	return inlineCodeMatch{text: text, codes: codes}
}

func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}
