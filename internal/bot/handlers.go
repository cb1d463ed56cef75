package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/intenise/sentry/internal/broadcast"
	"github.com/intenise/sentry/internal/telegram"
)

// Handlers handles bot events
type Handlers struct {
	platform telegram.API
	fanout   *broadcast.Fanout
	logger   *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(platform telegram.API, fanout *broadcast.Fanout, logger *slog.Logger) *Handlers {
	return &Handlers{
		platform: platform,
		fanout:   fanout,
		logger:   logger.WithGroup("bot.handlers"),
	}
}

// HandleBroadcastEvent runs the fan-out for a finished draft and reports
// completion to the operator exactly once. A started fan-out always runs to
// the end; the event is never redelivered.
func (h *Handlers) HandleBroadcastEvent(msg *message.Message) error {
	ctx := context.Background()

	event, err := UnmarshalBroadcastEvent(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to unmarshal broadcast event: %w", err)
	}

	h.logger.InfoContext(ctx, "Processing broadcast event",
		slog.Int64("operator_id", event.OperatorID),
		slog.Bool("has_photo", event.Draft.PhotoID != ""),
		slog.Bool("has_button", event.Draft.HasButton()),
	)

	sent, failed, err := h.fanout.Send(ctx, &event.Draft)
	if err != nil {
		h.logger.ErrorContext(ctx, "Broadcast fan-out failed", slog.Any("error", err),
			slog.Int64("operator_id", event.OperatorID),
		)
		h.notify(ctx, event.OperatorID, "⚠️ Не удалось выполнить рассылку.")
		return nil
	}

	h.logger.InfoContext(ctx, "Broadcast completed",
		slog.Int64("operator_id", event.OperatorID),
		slog.Int64("sent", sent),
		slog.Int64("failed", failed),
	)

	h.notify(ctx, event.OperatorID, "Рассылка завершена.")
	return nil
}

func (h *Handlers) notify(ctx context.Context, operatorID int64, text string) {
	if err := h.platform.SendMessage(ctx, operatorID, text, nil); err != nil {
		h.logger.ErrorContext(ctx, "Failed to notify operator", slog.Any("error", err),
			slog.Int64("operator_id", operatorID),
		)
	}
}
