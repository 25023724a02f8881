package services

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/tgdrive/filebot/internal/logging"
	"github.com/tgdrive/filebot/internal/metrics"
	"github.com/tgdrive/filebot/internal/tgbot"
	"github.com/tgdrive/filebot/pkg/models"
	"go.uber.org/zap"
)

const (
	welcomeText   = "Welcome. Click a deep-link or use /start <token>."
	invalidText   = "Invalid or expired link."
	expiredText   = "Sorry, this link expired."
	exhaustedText = "Sorry, link used maximum times."
	failedText    = "Failed to deliver file. Contact admin."
)

func (s *BotService) warningText() string {
	return fmt.Sprintf("⚠️ Save now, this will be deleted in %d mins for copyright reasons.", int(s.delay.Minutes()))
}

// Start handles "/start [token]". A valid token gets its file delivered
// into the requesting chat, followed by a warning; both are removed after
// the cleanup delay.
func (s *BotService) Start(ctx context.Context, msg *tgbot.Message, args []string) error {
	chatID := msg.Chat.ID
	if len(args) == 0 {
		s.reply(ctx, chatID, welcomeText)
		return nil
	}
	token := args[0]
	lg := logging.FromContext(ctx).With(zap.String("token", token), zap.Int64("chat_id", chatID))

	// redemptions of one token are serialized
	unlock := s.locks.Lock(token)
	defer unlock()

	rec, err := s.store.Lookup(ctx, token)
	if err != nil {
		metrics.Redemptions.WithLabelValues(metrics.ResultInvalid).Inc()
		s.reply(ctx, chatID, invalidText)
		if errors.Is(err, ErrTokenNotFound) {
			return nil
		}
		return err
	}

	if rec.ExpiresAt.Expired(s.timeNowFn()) {
		metrics.Redemptions.WithLabelValues(metrics.ResultExpired).Inc()
		s.reply(ctx, chatID, expiredText)
		return nil
	}
	if rec.Exhausted() {
		metrics.Redemptions.WithLabelValues(metrics.ResultExhausted).Inc()
		s.reply(ctx, chatID, exhaustedText)
		return nil
	}

	if err := s.bot.SendChatAction(ctx, chatID, tgbot.ActionUploadDocument); err != nil {
		lg.Debug("chat action failed", zap.Error(err))
	}

	sentID, err := s.deliver(ctx, chatID, rec)
	if err != nil {
		metrics.Redemptions.WithLabelValues(metrics.ResultFailed).Inc()
		lg.Warn("delivery failed", zap.Error(err))
		s.reply(ctx, chatID, failedText)
		return nil
	}

	ids := []int64{sentID}
	if warn := s.reply(ctx, chatID, s.warningText()); warn != nil {
		ids = append(ids, warn.MessageID)
	}

	if err := s.store.IncrementUse(ctx, rec); err != nil {
		// the file already went out; the counter is best effort from here
		lg.Warn("failed to count use", zap.Error(err))
	}

	if s.cleanup != nil {
		s.cleanup.Schedule(chatID, ids...)
	}
	metrics.Redemptions.WithLabelValues(metrics.ResultDelivered).Inc()
	lg.Info("token redeemed", zap.Int("used", rec.UsedCount+1), zap.Int("allowed", rec.UsesAllowed))
	return nil
}

func (s *BotService) deliver(ctx context.Context, chatID int64, rec *models.Token) (int64, error) {
	switch rec.SendMethod {
	case models.SendCopy:
		if rec.FromChatID == nil || rec.FromMessageID == nil {
			return 0, ErrInvalidRecord
		}
		id, err := s.bot.CopyMessage(ctx, chatID, *rec.FromChatID, *rec.FromMessageID)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
		}
		return id, nil
	case models.SendFile:
		if rec.FileID == nil {
			return 0, ErrInvalidRecord
		}
		var kind tgbot.MediaKind
		if rec.MediaType != nil {
			kind = tgbot.MediaKind(*rec.MediaType)
		}
		m, err := s.bot.SendMedia(ctx, kind, chatID, *rec.FileID, rec.Filename)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
		}
		return m.MessageID, nil
	default:
		return 0, ErrInvalidRecord
	}
}
