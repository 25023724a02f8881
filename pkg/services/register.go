package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/tgdrive/filebot/internal/logging"
	"github.com/tgdrive/filebot/internal/metrics"
	"github.com/tgdrive/filebot/internal/tgbot"
	"github.com/tgdrive/filebot/pkg/models"
	"go.uber.org/zap"
)

var (
	usesArg     = regexp.MustCompile(`^\d+$`)
	durationArg = regexp.MustCompile(`^(\d+)([smhd])$`)
)

var durationUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// parseRegisterArgs reads the optional "/register [uses] [duration]"
// arguments in any order. Unrecognised arguments are ignored and a later
// argument of the same kind overrides an earlier one.
func parseRegisterArgs(args []string, now time.Time) (int, models.Expiry) {
	uses := models.UnlimitedUses
	var exp models.Expiry
	for _, a := range args {
		a = strings.ToLower(strings.TrimSpace(a))
		if usesArg.MatchString(a) {
			if n, err := strconv.Atoi(a); err == nil {
				uses = n
			}
			continue
		}
		if m := durationArg.FindStringSubmatch(a); m != nil {
			n, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				continue
			}
			exp = models.ExpiresAt(now.Add(time.Duration(n) * durationUnits[m[2]]))
		}
	}
	return uses, exp
}

func DeepLink(username, token string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", username, token)
}

func registeredText(header string, rec *models.Token, link string) string {
	return fmt.Sprintf("%s\nToken: %s\nLink:\n%s\nFilename: %s\nUses: %s\nExpires: %s",
		header, rec.Token, link, rec.Filename, usesText(rec.UsesAllowed), rec.ExpiresAt)
}

// issue stores rec under a new token and returns the deep link for it.
func (s *BotService) issue(ctx context.Context, rec *models.Token, source string) (string, error) {
	username, err := s.BotUsername(ctx)
	if err != nil {
		return "", errors.Wrap(err, "bot identity")
	}
	token, err := s.store.Create(ctx, rec)
	if err != nil {
		return "", err
	}
	metrics.Registrations.WithLabelValues(source).Inc()
	logging.FromContext(ctx).Info("token registered",
		zap.String("token", token),
		zap.String("source", source),
		zap.String("method", string(rec.SendMethod)),
		zap.String("filename", rec.Filename),
		zap.Int64("added_by", rec.AddedBy))
	return DeepLink(username, token), nil
}

// Register handles "/register [uses] [duration]" sent as a reply to the
// message holding the file.
func (s *BotService) Register(ctx context.Context, msg *tgbot.Message, args []string) error {
	chatID := msg.Chat.ID
	if !s.IsAdmin(msg.From) {
		s.reply(ctx, chatID, unauthorizedText)
		return nil
	}
	if msg.ReplyToMessage == nil {
		s.reply(ctx, chatID, "Reply to a file and run /register.")
		return nil
	}

	rec, err := recordFromMessage(msg.ReplyToMessage)
	if err != nil {
		s.reply(ctx, chatID, "Reply must contain a file/document.")
		return nil
	}
	rec.AddedBy = msg.From.ID
	rec.UsesAllowed, rec.ExpiresAt = parseRegisterArgs(args, s.timeNowFn())

	link, err := s.issue(ctx, rec, "explicit")
	if err != nil {
		s.reply(ctx, chatID, "Registration failed, try again later.")
		return err
	}
	s.reply(ctx, chatID, registeredText("Registered!", rec, link))
	return nil
}

// AutoRegister registers any file an admin sends or forwards to the bot
// with unlimited uses and no expiry. Everything else is ignored silently.
func (s *BotService) AutoRegister(ctx context.Context, msg *tgbot.Message) error {
	if !s.IsAdmin(msg.From) || strings.HasPrefix(msg.Text, "/") {
		return nil
	}
	rec, err := recordFromMessage(msg)
	if err != nil {
		return nil
	}
	rec.AddedBy = msg.From.ID
	rec.UsesAllowed = models.UnlimitedUses

	link, err := s.issue(ctx, rec, "auto")
	if err != nil {
		return err
	}
	s.reply(ctx, msg.Chat.ID, registeredText("Auto-registered!", rec, link))
	return nil
}
