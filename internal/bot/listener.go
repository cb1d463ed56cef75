package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/mymmrac/telego"

	"github.com/intenise/sentry/internal/broadcast"
	"github.com/intenise/sentry/internal/config"
	"github.com/intenise/sentry/internal/moderation"
	"github.com/intenise/sentry/internal/repo"
	"github.com/intenise/sentry/internal/telegram"
)

// Listener handles Telegram updates
type Listener struct {
	bot       *telego.Bot
	platform  telegram.API
	repo      *repo.Repository
	engine    *moderation.Engine
	auth      *moderation.Authorizer
	sessions  *broadcast.Sessions
	config    *config.Config
	publisher message.Publisher
	logger    *slog.Logger

	botID int64
}

// New creates a new bot listener
func New(
	bot *telego.Bot,
	platform telegram.API,
	repository *repo.Repository,
	engine *moderation.Engine,
	auth *moderation.Authorizer,
	sessions *broadcast.Sessions,
	cfg *config.Config,
	publisher message.Publisher,
	logger *slog.Logger,
) *Listener {
	return &Listener{
		bot:       bot,
		platform:  platform,
		repo:      repository,
		engine:    engine,
		auth:      auth,
		sessions:  sessions,
		config:    cfg,
		publisher: publisher,
		logger:    logger.WithGroup("bot.listener"),
	}
}

// Start starts listening to Telegram updates. Each update is handled in its
// own goroutine; no handler error escapes the loop.
func (l *Listener) Start(ctx context.Context) error {
	me, err := l.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	l.botID = me.ID

	l.logger.InfoContext(ctx, "Bot listener started",
		slog.String("username", me.Username),
		slog.Int64("bot_id", me.ID),
	)

	updates, err := l.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get updates channel: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			l.logger.InfoContext(ctx, "Stopping bot listener")
			return nil
		case update := <-updates:
			if update.Message != nil {
				go l.handleMessage(ctx, update.Message)
			}
			if update.CallbackQuery != nil {
				go l.handleCallback(ctx, update.CallbackQuery)
			}
		}
	}
}

// getMessageText extracts text from a message, checking both Text and Caption
func (l *Listener) getMessageText(msg *telego.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	if msg.Caption != "" {
		return msg.Caption
	}
	return ""
}

func isGroupChat(chatType string) bool {
	return chatType == telego.ChatTypeGroup || chatType == telego.ChatTypeSupergroup
}

// handleMessage processes one incoming message
func (l *Listener) handleMessage(ctx context.Context, msg *telego.Message) {
	// Bot added to a chat
	for _, member := range msg.NewChatMembers {
		if member.ID == l.botID {
			l.handleBotJoin(ctx, msg)
			return
		}
	}

	if msg.From == nil || msg.From.IsBot {
		return
	}

	switch {
	case isGroupChat(msg.Chat.Type):
		l.handleGroupMessage(ctx, msg)
	case msg.Chat.Type == telego.ChatTypePrivate:
		l.handlePrivateMessage(ctx, msg)
	}
}

// handleBotJoin registers the chat the first time the bot is added to it
func (l *Listener) handleBotJoin(ctx context.Context, msg *telego.Message) {
	created, err := l.repo.EnsureChat(ctx, msg.Chat.ID, msg.Chat.Title)
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to register chat", slog.Any("error", err),
			slog.Int64("chat_id", msg.Chat.ID),
		)
		return
	}

	if created {
		l.logger.InfoContext(ctx, "Registered new chat",
			slog.Int64("chat_id", msg.Chat.ID),
			slog.String("title", msg.Chat.Title),
		)
		l.reply(ctx, msg.Chat.ID, "Привет! Я бот-модератор. Для работы мне нужны права администратора.")
		return
	}

	l.reply(ctx, msg.Chat.ID, "Я уже в этом чате.")
}

// handleGroupMessage routes group messages: commands to the dispatcher,
// everything else to the activity counter. Commands are not counted.
func (l *Listener) handleGroupMessage(ctx context.Context, msg *telego.Message) {
	if strings.HasPrefix(msg.Text, "/") {
		l.handleCommand(ctx, msg)
		return
	}

	var username *string
	if msg.From.Username != "" {
		username = &msg.From.Username
	}

	if err := l.repo.RecordMessage(ctx, msg.Chat.ID, msg.From.ID, username); err != nil {
		l.logger.ErrorContext(ctx, "Failed to record message", slog.Any("error", err),
			slog.Int64("chat_id", msg.Chat.ID),
			slog.Int64("user_id", msg.From.ID),
		)
	}
}

// handlePrivateMessage routes private messages: operator commands and the
// broadcast composition flow.
func (l *Listener) handlePrivateMessage(ctx context.Context, msg *telego.Message) {
	if strings.HasPrefix(msg.Text, "/") {
		parts := strings.Fields(msg.Text)
		command := strings.ToLower(strings.SplitN(parts[0], "@", 2)[0])

		switch command {
		case "/start":
			l.reply(ctx, msg.Chat.ID, "Добавьте меня в чат.")
		case "/admin":
			l.handleAdminCommand(ctx, msg)
		}
		return
	}

	// The broadcast conversation only ever exists for the operator
	if !l.config.IsOperator(msg.From.ID) {
		return
	}

	l.advanceBroadcast(ctx, msg)
}

// advanceBroadcast feeds one private message into the operator's session and
// sends the prompt for the next step. A completed draft goes onto the bus.
func (l *Listener) advanceBroadcast(ctx context.Context, msg *telego.Message) {
	in := broadcast.Input{Text: l.getMessageText(msg)}
	if len(msg.Photo) > 0 {
		// Largest size last
		in.PhotoID = msg.Photo[len(msg.Photo)-1].FileID
	}

	state, draft := l.sessions.Advance(msg.From.ID, in)

	switch state {
	case broadcast.StateAwaitingPhoto:
		l.reply(ctx, msg.Chat.ID, "Отправьте фото для рассылки (необязательно):")
	case broadcast.StateAwaitingButtonText:
		l.reply(ctx, msg.Chat.ID, "Введите текст для кнопки (необязательно):")
	case broadcast.StateAwaitingButtonURL:
		l.reply(ctx, msg.Chat.ID, "Введите ссылку для кнопки (необязательно):")
	case broadcast.StateIdle:
		if draft == nil {
			return
		}
		if err := l.publishBroadcastEvent(msg.From.ID, draft); err != nil {
			l.logger.ErrorContext(ctx, "Failed to publish broadcast event", slog.Any("error", err),
				slog.Int64("operator_id", msg.From.ID),
			)
			l.reply(ctx, msg.Chat.ID, "⚠️ Не удалось запустить рассылку.")
		}
	}
}

// handleCallback handles the broadcast entry button
func (l *Listener) handleCallback(ctx context.Context, query *telego.CallbackQuery) {
	if query.Data != "broadcast" {
		return
	}

	if err := l.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
	}); err != nil {
		l.logger.WarnContext(ctx, "Failed to answer callback query", slog.Any("error", err))
	}

	if !l.config.IsOperator(query.From.ID) {
		l.reply(ctx, query.From.ID, "У вас нет доступа к этой команде.")
		return
	}

	l.sessions.Begin(query.From.ID)
	l.reply(ctx, query.From.ID, "Введите текст для рассылки:")
}

// handleAdminCommand shows DB totals and the broadcast entry button to the
// operator; callback buttons go through the raw bot handle since the platform
// capability only models URL buttons.
func (l *Listener) handleAdminCommand(ctx context.Context, msg *telego.Message) {
	if !l.config.IsOperator(msg.From.ID) {
		l.reply(ctx, msg.Chat.ID, "У вас нет доступа к этой команде.")
		return
	}

	totalUsers, err := l.repo.CountUsers(ctx)
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to count users", slog.Any("error", err))
		l.reply(ctx, msg.Chat.ID, "⚠️ Хранилище недоступно, попробуйте позже.")
		return
	}

	totalChats, err := l.repo.CountChats(ctx)
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to count chats", slog.Any("error", err))
		l.reply(ctx, msg.Chat.ID, "⚠️ Хранилище недоступно, попробуйте позже.")
		return
	}

	_, err = l.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: msg.Chat.ID},
		Text:   fmt.Sprintf("Всего пользователей в БД: %d\nВсего чатов: %d", totalUsers, totalChats),
		ReplyMarkup: &telego.InlineKeyboardMarkup{
			InlineKeyboard: [][]telego.InlineKeyboardButton{
				{
					{Text: "Рассылка", CallbackData: "broadcast"},
				},
			},
		},
	})
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to send admin panel", slog.Any("error", err),
			slog.Int64("chat_id", msg.Chat.ID),
		)
	}
}

// publishBroadcastEvent hands a finished draft to the fan-out handler
func (l *Listener) publishBroadcastEvent(operatorID int64, draft *broadcast.Draft) error {
	event := BroadcastEvent{
		OperatorID: operatorID,
		Draft:      *draft,
		Timestamp:  time.Now(),
	}

	msgData, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgData)
	return l.publisher.Publish("broadcast", msg)
}

// reply sends a plain text message and logs delivery failures
func (l *Listener) reply(ctx context.Context, chatID int64, text string) {
	if err := l.platform.SendMessage(ctx, chatID, text, nil); err != nil {
		l.logger.ErrorContext(ctx, "Failed to send reply", slog.Any("error", err),
			slog.Int64("chat_id", chatID),
		)
	}
}
