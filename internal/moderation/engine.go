package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/intenise/sentry/internal/telegram"
	"github.com/intenise/sentry/pkg/models"
)

// Store is the persistence surface the engine needs
type Store interface {
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
	FindUserIDByUsername(ctx context.Context, chatID int64, username string) (int64, bool, error)
}

// Engine validates and executes moderation commands. Each command authorizes
// the caller against the live admin list, resolves the target, performs the
// platform mutation and appends an audit entry. Failures never mutate.
type Engine struct {
	platform telegram.API
	auth     *Authorizer
	store    Store
	logger   *slog.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewEngine creates a new moderation engine
func NewEngine(platform telegram.API, auth *Authorizer, store Store, logger *slog.Logger) *Engine {
	return &Engine{
		platform: platform,
		auth:     auth,
		store:    store,
		logger:   logger.WithGroup("moderation.engine"),
		now:      time.Now,
	}
}

// Mute restricts the target from sending messages for the given number of
// minutes. Args: <target> <minutes>.
func (e *Engine) Mute(ctx context.Context, chatID, actorID int64, args []string) (string, error) {
	if !e.auth.IsAdmin(ctx, chatID, actorID) {
		return "", newError(KindUnauthorized, "user %d is not an admin of chat %d", actorID, chatID)
	}

	if len(args) < 2 {
		return "", newError(KindMalformedCommand, "mute requires target and duration, got %d args", len(args))
	}

	minutes, err := strconv.Atoi(args[1])
	if err != nil || minutes <= 0 {
		return "", newError(KindMalformedCommand, "invalid mute duration %q", args[1])
	}

	target, err := e.resolveTarget(ctx, chatID, args[0])
	if err != nil {
		return "", err
	}

	until := e.now().Add(time.Duration(minutes) * time.Minute)
	if err := e.platform.RestrictMember(ctx, chatID, target.ID, until, telegram.Permissions{}); err != nil {
		return "", newError(KindPlatformCallFailed, "failed to restrict user %d: %w", target.ID, err)
	}

	e.audit(ctx, &models.AuditEntry{
		ChatID:   chatID,
		UserID:   target.ID,
		IssuedBy: actorID,
		Action:   models.ActionMute,
		Details:  fmt.Sprintf("User %d muted for %d minutes.", target.ID, minutes),
	})

	return fmt.Sprintf("🔇 %s был заглушен на %s.", target.DisplayName, FormatDuration(minutes)), nil
}

// Ban kicks the target, permanently when no duration is given.
// Args: <target> [minutes].
func (e *Engine) Ban(ctx context.Context, chatID, actorID int64, args []string) (string, error) {
	if !e.auth.IsAdmin(ctx, chatID, actorID) {
		return "", newError(KindUnauthorized, "user %d is not an admin of chat %d", actorID, chatID)
	}

	if len(args) < 1 {
		return "", newError(KindMalformedCommand, "ban requires a target")
	}

	var until *time.Time
	minutes := 0
	if len(args) > 1 {
		m, err := strconv.Atoi(args[1])
		if err != nil || m <= 0 {
			return "", newError(KindMalformedCommand, "invalid ban duration %q", args[1])
		}
		minutes = m
		t := e.now().Add(time.Duration(m) * time.Minute)
		until = &t
	}

	target, err := e.resolveTarget(ctx, chatID, args[0])
	if err != nil {
		return "", err
	}

	if err := e.platform.KickMember(ctx, chatID, target.ID, until); err != nil {
		return "", newError(KindPlatformCallFailed, "failed to ban user %d: %w", target.ID, err)
	}

	if until != nil {
		e.audit(ctx, &models.AuditEntry{
			ChatID:   chatID,
			UserID:   target.ID,
			IssuedBy: actorID,
			Action:   models.ActionBan,
			Details:  fmt.Sprintf("User %d banned for %d minutes.", target.ID, minutes),
		})
		return fmt.Sprintf("⛔ Пользователь %d был забанен на %d минут.", target.ID, minutes), nil
	}

	e.audit(ctx, &models.AuditEntry{
		ChatID:   chatID,
		UserID:   target.ID,
		IssuedBy: actorID,
		Action:   models.ActionBan,
		Details:  fmt.Sprintf("User %d banned permanently.", target.ID),
	})

	return fmt.Sprintf("⛔ Пользователь %d был забанен.", target.ID), nil
}

// Unban lifts a ban. Args: <target>.
func (e *Engine) Unban(ctx context.Context, chatID, actorID int64, args []string) (string, error) {
	if !e.auth.IsAdmin(ctx, chatID, actorID) {
		return "", newError(KindUnauthorized, "user %d is not an admin of chat %d", actorID, chatID)
	}

	if len(args) < 1 {
		return "", newError(KindMalformedCommand, "unban requires a target")
	}

	target, err := e.resolveTarget(ctx, chatID, args[0])
	if err != nil {
		return "", err
	}

	if err := e.platform.UnbanMember(ctx, chatID, target.ID); err != nil {
		return "", newError(KindPlatformCallFailed, "failed to unban user %d: %w", target.ID, err)
	}

	e.audit(ctx, &models.AuditEntry{
		ChatID:   chatID,
		UserID:   target.ID,
		IssuedBy: actorID,
		Action:   models.ActionUnban,
		Details:  fmt.Sprintf("User %d unbanned.", target.ID),
	})

	return fmt.Sprintf("✅ Пользователь %d был разбанен.", target.ID), nil
}

// Unmute explicitly re-grants send-message, media, other-message and link
// preview permissions. Args: <target>.
func (e *Engine) Unmute(ctx context.Context, chatID, actorID int64, args []string) (string, error) {
	if !e.auth.IsAdmin(ctx, chatID, actorID) {
		return "", newError(KindUnauthorized, "user %d is not an admin of chat %d", actorID, chatID)
	}

	if len(args) < 1 {
		return "", newError(KindMalformedCommand, "unmute requires a target")
	}

	target, err := e.resolveTarget(ctx, chatID, args[0])
	if err != nil {
		return "", err
	}

	if err := e.platform.RestrictMember(ctx, chatID, target.ID, time.Time{}, telegram.FullPermissions()); err != nil {
		return "", newError(KindPlatformCallFailed, "failed to unmute user %d: %w", target.ID, err)
	}

	e.audit(ctx, &models.AuditEntry{
		ChatID:   chatID,
		UserID:   target.ID,
		IssuedBy: actorID,
		Action:   models.ActionUnmute,
		Details:  fmt.Sprintf("User %d unmuted.", target.ID),
	})

	return fmt.Sprintf("🔊 Пользователь %d был размьючен.", target.ID), nil
}

// resolveTarget turns a numeric id or @handle argument into a verified chat
// member. Handles resolve through the last-seen username in the activity
// store; membership is then checked live for both forms.
func (e *Engine) resolveTarget(ctx context.Context, chatID int64, arg string) (telegram.Member, error) {
	var userID int64

	if strings.HasPrefix(arg, "@") {
		handle := strings.TrimPrefix(arg, "@")
		id, found, err := e.store.FindUserIDByUsername(ctx, chatID, handle)
		if err != nil {
			return telegram.Member{}, newError(KindStorageFailure, "failed to resolve handle %s: %w", arg, err)
		}
		if !found {
			return telegram.Member{}, newError(KindTargetNotMember, "handle %s is unknown in chat %d", arg, chatID)
		}
		userID = id
	} else {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return telegram.Member{}, newError(KindMalformedCommand, "invalid target %q", arg)
		}
		userID = id
	}

	member, err := e.platform.GetChatMember(ctx, chatID, userID)
	if err != nil {
		return telegram.Member{}, newError(KindPlatformCallFailed, "failed to look up member %d: %w", userID, err)
	}

	if member.IsGone() {
		return telegram.Member{}, newError(KindTargetNotMember, "user %d is not a member of chat %d", userID, chatID)
	}

	return member, nil
}

// audit appends an entry to the audit log. The platform mutation has already
// happened at this point, so a storage failure is logged, never raised.
func (e *Engine) audit(ctx context.Context, entry *models.AuditEntry) {
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "Failed to append audit entry", slog.Any("error", err),
			slog.Int64("chat_id", entry.ChatID),
			slog.Int64("user_id", entry.UserID),
			slog.String("action", string(entry.Action)),
		)
	}
}

// FormatDuration renders a minute count the way replies expect:
// "30 мин." under an hour, "1 ч. 30 мин." above.
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d мин.", minutes)
	}
	return fmt.Sprintf("%d ч. %d мин.", minutes/60, minutes%60)
}
