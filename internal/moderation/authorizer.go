package moderation

import (
	"context"
	"log/slog"

	"github.com/intenise/sentry/internal/telegram"
)

// Authorizer decides whether a user currently holds admin rights in a chat.
// Every check re-fetches the live administrator list so rights changes take
// effect immediately; nothing is cached.
type Authorizer struct {
	platform telegram.API
	logger   *slog.Logger
}

// NewAuthorizer creates a new authorizer
func NewAuthorizer(platform telegram.API, logger *slog.Logger) *Authorizer {
	return &Authorizer{
		platform: platform,
		logger:   logger.WithGroup("moderation.authorizer"),
	}
}

// IsAdmin reports whether userID is an administrator of chatID. A failed
// platform call makes authorization indeterminate and is treated as not
// authorized (fail closed).
func (a *Authorizer) IsAdmin(ctx context.Context, chatID, userID int64) bool {
	admins, err := a.platform.GetChatAdministrators(ctx, chatID)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to fetch administrator list, denying", slog.Any("error", err),
			slog.Int64("chat_id", chatID),
			slog.Int64("user_id", userID),
		)
		return false
	}

	for _, adminID := range admins {
		if adminID == userID {
			return true
		}
	}

	return false
}
