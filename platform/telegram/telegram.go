// Package telegram is the chat-transport layer: it routes inbound updates
// into the engine and implements the delivery surface the engine drives.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/codelane/docrelay/core"
)

const maxMessageLen = 4096

// modelCallbackPrefix tags model-selection callback data.
const modelCallbackPrefix = "model:"

type Config struct {
	Token string
}

type Platform struct {
	bot    *bot.Bot
	router core.Router
	http   *http.Client
}

func New(cfg Config) (*Platform, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}

	p := &Platform{
		http: &http.Client{Timeout: 60 * time.Second},
	}

	b, err := bot.New(cfg.Token,
		bot.WithDefaultHandler(p.onUpdate),
		bot.WithMiddlewares(p.logAndRecover),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram: auth failed: %w", err)
	}
	p.bot = b

	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, p.handleStart)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, p.handleStatus)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, p.handleHelp)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/trim_context", bot.MatchTypePrefix, p.handleTrimContext)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/reset", bot.MatchTypePrefix, p.handleReset)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, modelCallbackPrefix, bot.MatchTypePrefix, p.handleModelSelect)

	return p, nil
}

func (p *Platform) Name() string { return "telegram" }

// Run blocks polling for updates until ctx is cancelled.
func (p *Platform) Run(ctx context.Context, r core.Router) {
	p.router = r
	p.registerCommands(ctx)
	slog.Info("telegram: polling for updates")
	p.bot.Start(ctx)
}

func (p *Platform) registerCommands(ctx context.Context) {
	_, err := p.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: []models.BotCommand{
			{Command: "start", Description: "Start a new conversation or reset the bot."},
			{Command: "status", Description: "Show current bot's status."},
			{Command: "help", Description: "Show this help message."},
		},
	})
	if err != nil {
		slog.Warn("telegram: set commands failed", "error", err)
	}
}

// logAndRecover guards the registered command handlers; turn handling has its
// own recovery in onUpdate because it runs on a separate goroutine.
func (p *Platform) logAndRecover(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("telegram: panic in handler", "panic", r, "stack", string(debug.Stack()))
			}
		}()
		next(ctx, b, update)
	}
}

// ── Update routing ──────────────────────────────────────────────

func (p *Platform) onUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if p.router == nil || update.Message == nil {
		return
	}
	msg := update.Message

	// Commands are dispatched by the registered handlers; unknown ones are
	// ignored rather than fed to the agent.
	if strings.HasPrefix(msg.Text, "/") {
		return
	}

	ev := core.Inbound{
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		Text:      msg.Text,
	}
	if msg.Document != nil {
		ev.Document = &core.DocumentRef{
			FileID:   msg.Document.FileID,
			FileName: msg.Document.FileName,
		}
	}
	if len(msg.Photo) > 0 {
		// The last entry is the largest rendition.
		ev.Photo = &core.PhotoRef{
			FileID:  msg.Photo[len(msg.Photo)-1].FileID,
			Caption: msg.Caption,
		}
	}

	slog.Debug("telegram: message received", "chat", ev.ChatID,
		"has_text", ev.Text != "", "has_document", ev.Document != nil, "has_photo", ev.Photo != nil)

	// One goroutine per turn so a slow agent call never blocks other chats.
	go p.runTurn(ctx, ev)
}

// runTurn drives one turn with a repeating typing indicator and a recovery
// barrier: a panic escaping the turn resets the chat's session and tells the
// user, instead of killing the process.
func (p *Platform) runTurn(ctx context.Context, ev core.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("telegram: panic during turn, resetting session",
				"chat", ev.ChatID, "panic", r, "stack", string(debug.Stack()))
			p.router.Reset(ev.ChatID)
			_ = p.SendText(ctx, ev.ChatID,
				"An error occurred and my session has been reset. Please try again.")
		}
	}()

	stop := p.startTyping(ctx, ev.ChatID)
	defer stop()

	p.router.HandleTurn(ctx, ev)
}

// startTyping repeats the typing chat action every 4 seconds until the
// returned cancel func is called; the action itself expires after ~5s.
func (p *Platform) startTyping(ctx context.Context, chatID int64) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(4 * time.Second)
		defer ticker.Stop()
		p.bot.SendChatAction(ctx, &bot.SendChatActionParams{
			ChatID: chatID,
			Action: models.ChatActionTyping,
		})
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.bot.SendChatAction(ctx, &bot.SendChatActionParams{
					ChatID: chatID,
					Action: models.ChatActionTyping,
				})
			}
		}
	}()
	return cancel
}

// ── Commands ────────────────────────────────────────────────────

func (p *Platform) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if p.router == nil || update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	aliases := p.router.ModelAliases()
	var rows [][]models.InlineKeyboardButton
	for i := 0; i < len(aliases); i += 2 {
		row := []models.InlineKeyboardButton{{
			Text:         core.Capitalize(aliases[i]),
			CallbackData: modelCallbackPrefix + aliases[i],
		}}
		if i+1 < len(aliases) {
			row = append(row, models.InlineKeyboardButton{
				Text:         core.Capitalize(aliases[i+1]),
				CallbackData: modelCallbackPrefix + aliases[i+1],
			})
		}
		rows = append(rows, row)
	}

	greeting := "Hi! I'm a bot that can talk to different AI models.\n\nWhich model would you like to use?"
	if from := update.Message.From; from != nil && from.FirstName != "" {
		greeting = fmt.Sprintf("Hi %s! I'm a bot that can talk to different AI models.\n\nWhich model would you like to use?", from.FirstName)
	}

	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        greeting,
		ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
	if err != nil {
		slog.Error("telegram: send start keyboard failed", "chat", chatID, "error", err)
	}
}

func (p *Platform) handleModelSelect(ctx context.Context, b *bot.Bot, update *models.Update) {
	if p.router == nil || update.CallbackQuery == nil {
		return
	}
	b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
	})

	msg := update.CallbackQuery.Message.Message
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID
	alias := strings.TrimPrefix(update.CallbackQuery.Data, modelCallbackPrefix)

	text := "Invalid model selection."
	if modelID, err := p.router.SwitchModel(chatID, alias); err == nil {
		text = fmt.Sprintf("Switched to %s agent (model: %s).", core.Capitalize(alias), modelID)
	}

	_, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: msg.ID,
		Text:      text,
	})
	if err != nil {
		slog.Warn("telegram: edit model-selection message failed", "chat", chatID, "error", err)
	}
}

func (p *Platform) handleStatus(ctx context.Context, b *bot.Bot, update *models.Update) {
	if p.router == nil || update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	st := p.router.Status(chatID)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Your current agent is: *%s*\n", core.Capitalize(st.Alias))
	fmt.Fprintf(&sb, "Initialized: *%t*\n", st.Initialized)
	if st.Initialized {
		fmt.Fprintf(&sb, "\nContext Length: *%d* messages\n", st.History)
		fmt.Fprintf(&sb, "Estimated Tokens: *~%d*\n", st.Tokens)
	}
	p.sendMarkdown(ctx, chatID, sb.String())
}

func (p *Platform) handleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	_ = p.SendText(ctx, update.Message.Chat.ID,
		"Here are the commands you can use:\n\n"+
			"/start - Start a new conversation or reset the bot.\n"+
			"/status - Show current bot's status.\n"+
			"/trim_context <n> - Keep only the last n messages of context.\n"+
			"/reset - Drop the current agent session.\n"+
			"/help - Show this help message.\n\n"+
			"To talk to the agent, just send a message directly.")
}

func (p *Platform) handleTrimContext(ctx context.Context, b *bot.Bot, update *models.Update) {
	if p.router == nil || update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	fields := strings.Fields(update.Message.Text)
	if len(fields) < 2 {
		_ = p.SendText(ctx, chatID,
			"Please provide the number of recent messages to keep.\nUsage: /trim_context <number>")
		return
	}
	keep, err := strconv.Atoi(fields[1])
	if err != nil {
		_ = p.SendText(ctx, chatID,
			"Please provide the number of recent messages to keep.\nUsage: /trim_context <number>")
		return
	}
	if keep < 0 {
		_ = p.SendText(ctx, chatID, "Number of messages to keep cannot be negative.")
		return
	}

	before, after, err := p.router.TrimContext(chatID, keep)
	if err != nil {
		_ = p.SendText(ctx, chatID, "Agent not initialized. Please start a conversation first.")
		return
	}
	if keep >= before {
		_ = p.SendText(ctx, chatID,
			fmt.Sprintf("Context length is already %d. No trimming needed.", before))
		return
	}
	_ = p.SendText(ctx, chatID,
		fmt.Sprintf("Context trimmed from %d to %d messages.", before, after))
}

func (p *Platform) handleReset(ctx context.Context, b *bot.Bot, update *models.Update) {
	if p.router == nil || update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if p.router.Reset(chatID) {
		_ = p.SendText(ctx, chatID, "Session reset. The next message starts a fresh conversation.")
		return
	}
	_ = p.SendText(ctx, chatID, "No active session.")
}

// ── core.Transport implementation ───────────────────────────────

func (p *Platform) SendStatus(ctx context.Context, chatID int64, replyTo int, text string) (int, error) {
	params := &bot.SendMessageParams{ChatID: chatID, Text: text}
	if replyTo != 0 {
		params.ReplyParameters = &models.ReplyParameters{MessageID: replyTo}
	}
	m, err := p.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("telegram: send status: %w", err)
	}
	return m.ID, nil
}

func (p *Platform) EditStatus(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := p.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("telegram: edit status: %w", err)
	}
	return nil
}

// EditFinal replaces the placeholder with the rendered reply. Long replies are
// split: the first chunk edits the placeholder, the rest are sent as new
// messages. A markdown parse failure falls back to stripped plain text.
func (p *Platform) EditFinal(ctx context.Context, chatID int64, messageID int, text string) error {
	chunks := core.SplitMessage(text, maxMessageLen)

	first := chunks[0]
	_, err := p.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      first,
		ParseMode: models.ParseModeMarkdownV1,
	})
	if err != nil {
		_, err = p.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    chatID,
			MessageID: messageID,
			Text:      core.StripMarkdown(first),
		})
		if err != nil {
			return fmt.Errorf("telegram: edit final: %w", err)
		}
	}

	for _, chunk := range chunks[1:] {
		p.sendMarkdown(ctx, chatID, chunk)
	}
	return nil
}

func (p *Platform) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := p.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

// sendMarkdown sends with markdown rendering, retrying as stripped plain text
// when the markup does not parse.
func (p *Platform) sendMarkdown(ctx context.Context, chatID int64, text string) {
	for _, chunk := range core.SplitMessage(text, maxMessageLen) {
		_, err := p.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      chunk,
			ParseMode: models.ParseModeMarkdownV1,
		})
		if err != nil {
			_, err = p.bot.SendMessage(ctx, &bot.SendMessageParams{
				ChatID: chatID,
				Text:   core.StripMarkdown(chunk),
			})
		}
		if err != nil {
			slog.Error("telegram: send failed", "chat", chatID, "error", err)
		}
	}
}

func (p *Platform) SendMediaGroup(ctx context.Context, chatID int64, items []core.MediaItem) error {
	media := make([]models.InputMedia, 0, len(items))
	for i, item := range items {
		ext := filepath.Ext(item.FileName)
		if ext == "" {
			ext = ".jpg"
		}
		// Attachment names within one group must be unique.
		name := fmt.Sprintf("photo-%d%s", i, ext)
		media = append(media, &models.InputMediaPhoto{
			Media:           "attach://" + name,
			Caption:         item.Caption,
			MediaAttachment: bytes.NewReader(item.Data),
		})
	}

	_, err := p.bot.SendMediaGroup(ctx, &bot.SendMediaGroupParams{
		ChatID: chatID,
		Media:  media,
	})
	if err != nil {
		return fmt.Errorf("telegram: send media group: %w", err)
	}
	return nil
}

func (p *Platform) SendDocument(ctx context.Context, chatID int64, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telegram: open document: %w", err)
	}
	defer f.Close()

	_, err = p.bot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &models.InputFileUpload{Filename: filepath.Base(path), Data: f},
		Caption:  caption,
	})
	if err != nil {
		return fmt.Errorf("telegram: send document: %w", err)
	}
	return nil
}

// DownloadFile fetches a platform-hosted file by ID and returns its bytes and
// platform-side path.
func (p *Platform) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	file, err := p.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, "", fmt.Errorf("telegram: get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.bot.FileDownloadLink(file), nil)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: create download request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("telegram: download file: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: read file data: %w", err)
	}
	return data, file.FilePath, nil
}
