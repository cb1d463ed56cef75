package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/intenise/sentry/internal/logexport"
	"github.com/intenise/sentry/internal/moderation"
)

var usageReplies = map[string]string{
	"/mute":   "⚠️ Неверный формат команды или пользователь не найден.\nИспользуйте: /mute [ID пользователя] [время в минутах]",
	"/ban":    "⚠️ Неверный формат команды или пользователь не найден.\nИспользуйте: /ban @username [время в минутах]",
	"/unban":  "⚠️ Неверный формат команды или пользователь не найден.\nИспользуйте: /unban @username",
	"/unmute": "⚠️ Неверный формат команды или пользователь не найден.\nИспользуйте: /unmute @username",
}

// handleCommand dispatches a group-chat command. Every failure path ends in a
// single human-readable reply; nothing propagates to the update loop.
func (l *Listener) handleCommand(ctx context.Context, msg *telego.Message) {
	parts := strings.Fields(msg.Text)
	if len(parts) == 0 {
		return
	}

	// Strip the @botname suffix of commands addressed explicitly
	command := strings.ToLower(strings.SplitN(parts[0], "@", 2)[0])
	args := parts[1:]

	l.logger.InfoContext(ctx, "Handling command",
		slog.String("command", command),
		slog.Int64("chat_id", msg.Chat.ID),
		slog.Int64("user_id", msg.From.ID),
	)

	switch command {
	case "/mute":
		l.runModeration(ctx, msg, command, args, l.engine.Mute)
	case "/ban":
		l.runModeration(ctx, msg, command, args, l.engine.Ban)
	case "/unban":
		l.runModeration(ctx, msg, command, args, l.engine.Unban)
	case "/unmute":
		l.runModeration(ctx, msg, command, args, l.engine.Unmute)
	case "/admins":
		l.handleAdminsCommand(ctx, msg)
	case "/top":
		l.handleTopCommand(ctx, msg)
	case "/logs":
		l.handleLogsCommand(ctx, msg)
	case "/start":
		l.reply(ctx, msg.Chat.ID, "Добавьте меня в чат.")
	}
}

type moderationCommand func(ctx context.Context, chatID, actorID int64, args []string) (string, error)

// runModeration executes one engine command and maps its error kind to the
// user-facing reply.
func (l *Listener) runModeration(ctx context.Context, msg *telego.Message, command string, args []string, run moderationCommand) {
	reply, err := run(ctx, msg.Chat.ID, msg.From.ID, args)
	if err != nil {
		l.logger.WarnContext(ctx, "Moderation command failed", slog.Any("error", err),
			slog.String("command", command),
			slog.Int64("chat_id", msg.Chat.ID),
			slog.Int64("user_id", msg.From.ID),
		)
		l.reply(ctx, msg.Chat.ID, l.errorReply(command, err))
		return
	}

	l.reply(ctx, msg.Chat.ID, reply)
}

// errorReply picks the reply for a failed command. Malformed arguments and
// failed platform calls collapse into the same usage message; the error kind
// stays distinct in the logs.
func (l *Listener) errorReply(command string, err error) string {
	switch moderation.KindOf(err) {
	case moderation.KindUnauthorized:
		return "🚫 У вас нет прав на использование этой команды."
	case moderation.KindTargetNotMember:
		return "Пользователь не является участником чата."
	case moderation.KindStorageFailure:
		return "⚠️ Хранилище недоступно, попробуйте позже."
	default:
		if usage, ok := usageReplies[command]; ok {
			return usage
		}
		return "⚠️ Неверный формат команды."
	}
}

// handleAdminsCommand lists the chat's current administrators
func (l *Listener) handleAdminsCommand(ctx context.Context, msg *telego.Message) {
	adminIDs, err := l.platform.GetChatAdministrators(ctx, msg.Chat.ID)
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to get administrators", slog.Any("error", err),
			slog.Int64("chat_id", msg.Chat.ID),
		)
		l.reply(ctx, msg.Chat.ID, "⚠️ Администраторы не найдены.")
		return
	}

	var mentions []string
	for _, adminID := range adminIDs {
		member, err := l.platform.GetChatMember(ctx, msg.Chat.ID, adminID)
		if err != nil {
			continue
		}
		mentions = append(mentions, member.DisplayName)
	}

	if len(mentions) == 0 {
		l.reply(ctx, msg.Chat.ID, "⚠️ Администраторы не найдены.")
		return
	}

	l.reply(ctx, msg.Chat.ID, fmt.Sprintf("👑 Список администраторов:\n%s", strings.Join(mentions, ", ")))
}

// handleTopCommand shows the most active chat members
func (l *Listener) handleTopCommand(ctx context.Context, msg *telego.Message) {
	stats, err := l.repo.TopUsers(ctx, msg.Chat.ID, l.config.App.Limits.TopLimit)
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to get top users", slog.Any("error", err),
			slog.Int64("chat_id", msg.Chat.ID),
		)
		l.reply(ctx, msg.Chat.ID, "⚠️ Хранилище недоступно, попробуйте позже.")
		return
	}

	if len(stats) == 0 {
		l.reply(ctx, msg.Chat.ID, "⚠️ Нет данных об активности пользователей.")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🏆 Топ %d самых общительных пользователей:\n\n", l.config.App.Limits.TopLimit))
	for i, s := range stats {
		name := fmt.Sprintf("User %d", s.UserID)
		if s.Username != nil && *s.Username != "" {
			name = "@" + *s.Username
		}
		msgWord := pluralize(int(s.MessageCount), "сообщение", "сообщения", "сообщений")
		sb.WriteString(fmt.Sprintf("%d. %s — %d %s\n", i+1, name, s.MessageCount, msgWord))
	}

	l.reply(ctx, msg.Chat.ID, sb.String())
}

// handleLogsCommand exports the audit log as an HTML document. Admin-only.
func (l *Listener) handleLogsCommand(ctx context.Context, msg *telego.Message) {
	if !l.auth.IsAdmin(ctx, msg.Chat.ID, msg.From.ID) {
		l.reply(ctx, msg.Chat.ID, "🚫 У вас нет прав на использование этой команды.")
		return
	}

	entries, err := l.repo.RecentAudit(ctx, msg.Chat.ID, l.config.App.Limits.MaxLogExport)
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to load audit log", slog.Any("error", err),
			slog.Int64("chat_id", msg.Chat.ID),
		)
		l.reply(ctx, msg.Chat.ID, "⚠️ Хранилище недоступно, попробуйте позже.")
		return
	}

	data, err := logexport.Render(entries, l.config.App.Export.Watermark)
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to render log export", slog.Any("error", err),
			slog.Int64("chat_id", msg.Chat.ID),
		)
		l.reply(ctx, msg.Chat.ID, "⚠️ Не удалось сформировать файл логов.")
		return
	}

	if err := l.platform.SendDocument(ctx, msg.Chat.ID, l.config.App.Export.FileName, data); err != nil {
		l.logger.ErrorContext(ctx, "Failed to send log export", slog.Any("error", err),
			slog.Int64("chat_id", msg.Chat.ID),
		)
		l.reply(ctx, msg.Chat.ID, "⚠️ Не удалось отправить файл логов.")
	}
}

// pluralize returns the correct Russian plural form
func pluralize(n int, one, few, many string) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}

	// Special case for 11-19
	if abs%100 >= 11 && abs%100 <= 19 {
		return many
	}

	switch abs % 10 {
	case 1:
		return one
	case 2, 3, 4:
		return few
	default:
		return many
	}
}
