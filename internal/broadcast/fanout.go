package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/intenise/sentry/internal/telegram"
	"github.com/intenise/sentry/pkg/models"
)

// RecipientSource lists every known delivery target
type RecipientSource interface {
	Recipients(ctx context.Context) ([]models.Recipient, error)
}

// Fanout delivers a finished draft to every known (user, chat) pair with a
// bounded worker pool. Delivery is best-effort: per-recipient failures are
// logged and skipped, there is no retry and no cancellation once started.
type Fanout struct {
	platform telegram.API
	source   RecipientSource
	workers  int
	logger   *slog.Logger
}

// NewFanout creates a fan-out runner with the given worker count
func NewFanout(platform telegram.API, source RecipientSource, workers int, logger *slog.Logger) *Fanout {
	if workers <= 0 {
		workers = 1
	}
	return &Fanout{
		platform: platform,
		source:   source,
		workers:  workers,
		logger:   logger.WithGroup("broadcast.fanout"),
	}
}

// Send fans the draft out to all recipients and returns sent/failed counts.
// The returned error covers only the recipient listing, never delivery.
func (f *Fanout) Send(ctx context.Context, draft *Draft) (sent, failed int64, err error) {
	recipients, err := f.source.Recipients(ctx)
	if err != nil {
		return 0, 0, err
	}

	var button *telegram.Button
	if draft.HasButton() {
		button = &telegram.Button{Text: draft.ButtonText, URL: draft.ButtonURL}
	}

	var sentCount, failedCount atomic.Int64

	jobs := make(chan models.Recipient)
	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				if err := f.deliver(ctx, rec, draft, button); err != nil {
					failedCount.Add(1)
					f.logger.ErrorContext(ctx, "Failed to deliver broadcast", slog.Any("error", err),
						slog.Int64("user_id", rec.UserID),
						slog.Int64("chat_id", rec.ChatID),
					)
					continue
				}
				sentCount.Add(1)
			}
		}()
	}

	for _, rec := range recipients {
		jobs <- rec
	}
	close(jobs)
	wg.Wait()

	return sentCount.Load(), failedCount.Load(), nil
}

func (f *Fanout) deliver(ctx context.Context, rec models.Recipient, draft *Draft, button *telegram.Button) error {
	if draft.PhotoID != "" {
		return f.platform.SendPhoto(ctx, rec.ChatID, draft.PhotoID, draft.MessageText, button)
	}
	return f.platform.SendMessage(ctx, rec.ChatID, draft.MessageText, button)
}
