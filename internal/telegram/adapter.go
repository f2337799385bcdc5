package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/genie/internal/gateway"
	"github.com/user/genie/internal/models"
	"github.com/user/genie/internal/types"
)

const maxTelegramMessage = 4096

// Controller is the subset of the chat controller the bot commands use.
type Controller interface {
	StartNewChat(ctx context.Context) types.ChatSession
	SelectSession(id types.SessionID) error
	RenameSession(ctx context.Context, id types.SessionID, title string) error
	DeleteSession(ctx context.Context, id types.SessionID) error
	TogglePin(ctx context.Context, id types.SessionID) error
	ChangeSessionModel(ctx context.Context, id types.SessionID, modelID string) error
	StopGenerating()
	Sessions() []types.ChatSession
	ActiveSession() (types.ChatSession, bool)
}

// Catalog lists the selectable models.
type Catalog interface {
	List() []models.Descriptor
}

// Adapter bridges Telegram to the gateway and the chat controller.
type Adapter struct {
	bot         *tgbotapi.BotAPI
	gateway     *gateway.Gateway
	ctl         Controller
	models      Catalog
	allowedChat int64
	logger      *slog.Logger
	httpClient  *http.Client
}

// New creates a Telegram adapter. allowedChat restricts the bot to one chat
// when non-zero.
func New(token string, gw *gateway.Gateway, ctl Controller, catalog Catalog, allowedChat int64, logger *slog.Logger) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		bot:         bot,
		gateway:     gw,
		ctl:         ctl,
		models:      catalog,
		allowedChat: allowedChat,
		logger:      logger,
		httpClient:  http.DefaultClient,
	}, nil
}

// Start long-polls for Telegram updates until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	a.logger.Info("telegram bot started", "username", a.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return nil
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if a.allowedChat != 0 && chatID != a.allowedChat {
		a.logger.Warn("ignoring message from unauthorized chat", "chat_id", chatID)
		return
	}

	if msg.IsCommand() {
		a.sendResponse(chatID, a.handleCommand(ctx, msg.Command(), msg.CommandArguments()))
		return
	}

	text := msg.Text
	var image *types.ImageAttachment
	if len(msg.Photo) > 0 {
		text = msg.Caption
		img, err := a.downloadPhoto(ctx, msg.Photo[len(msg.Photo)-1])
		if err != nil {
			a.logger.Error("download photo failed", "chat_id", chatID, "error", err)
			a.sendResponse(chatID, "Sorry, I could not download that image.")
			return
		}
		image = img
	}
	if strings.TrimSpace(text) == "" && image == nil {
		return
	}

	var userID string
	if msg.From != nil {
		userID = strconv.FormatInt(msg.From.ID, 10)
	}
	event := &types.InboundEvent{
		Source:     "telegram",
		SessionKey: buildSessionKey(chatID),
		UserID:     userID,
		Text:       text,
		Image:      image,
	}

	a.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	_, err := a.gateway.HandleInbound(ctx, event, gateway.WithOnComplete(func(res gateway.Result) {
		a.sendResponse(chatID, formatResult(res))
	}))
	if err != nil {
		a.logger.Error("handle inbound failed", "chat_id", chatID, "error", err)
		a.sendResponse(chatID, "Sorry, I encountered an error processing your message.")
	}
}

// formatResult renders a finished run as a chat reply.
func formatResult(res gateway.Result) string {
	switch {
	case res.Reply.Role == types.RoleError:
		return "⚠️ " + res.Reply.Content
	case res.Err != nil:
		return "Sorry, something went wrong: " + res.Err.Error()
	case res.Reply.Role == types.RoleModel && res.Reply.Content == "":
		return "(stopped)"
	default:
		return res.Reply.Content
	}
}

func (a *Adapter) downloadPhoto(ctx context.Context, photo tgbotapi.PhotoSize) (*types.ImageAttachment, error) {
	url, err := a.bot.GetFileDirectURL(photo.FileID)
	if err != nil {
		return nil, fmt.Errorf("get file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	name := path.Base(url)
	return types.NewImageAttachment(data, http.DetectContentType(data), name), nil
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	if text == "" {
		return
	}
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				a.logger.Error("send message failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

// splitMessage cuts text into chunks of at most maxTelegramMessage runes.
func splitMessage(text string) []string {
	runes := []rune(text)
	if len(runes) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(runes) > 0 {
		end := maxTelegramMessage
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[:end]))
		runes = runes[end:]
	}
	return parts
}

func buildSessionKey(chatID int64) types.SessionKey {
	return types.NewSessionKey("telegram", strconv.FormatInt(chatID, 10))
}
