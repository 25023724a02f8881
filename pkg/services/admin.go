package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tgdrive/filebot/internal/logging"
	"github.com/tgdrive/filebot/internal/tgbot"
	"github.com/tgdrive/filebot/pkg/models"
	"go.uber.org/zap"
)

const unauthorizedText = "Unauthorized."

func (s *BotService) helpText() string {
	return fmt.Sprintf("Use:\n"+
		"Forward/upload a file or channel post to the bot (ADMIN) -> auto-generate link.\n\n"+
		"Or use:\n"+
		"/register [uses] [time]  (reply to the file)\n"+
		"/list  - list tokens (admin)\n"+
		"/remove <token> - remove (admin)\n"+
		"/help  - this message\n\n"+
		"Example: /register 1 24h  (one-time, expires 24h)\n"+
		"Bot deletes delivered files after %d mins.", int(s.delay.Minutes()))
}

func (s *BotService) Help(ctx context.Context, msg *tgbot.Message) error {
	s.reply(ctx, msg.Chat.ID, s.helpText())
	return nil
}

func listEntry(r *models.Token) string {
	return fmt.Sprintf("id:%d token:%s\nmethod:%s name:%s\nadded:%s by:%d\nuses:%s used:%d expires:%s\n",
		r.ID, r.Token, r.SendMethod, r.Filename,
		r.AddedAt.UTC().Format(time.RFC3339), r.AddedBy,
		usesText(r.UsesAllowed), r.UsedCount, r.ExpiresAt)
}

// chunkText splits s into pieces of at most size runes, preferring to cut
// at a newline.
func chunkText(s string, size int) []string {
	var chunks []string
	for utf8.RuneCountInString(s) > size {
		cut := runeOffset(s, size)
		if nl := strings.LastIndexByte(s[:cut], '\n'); nl > 0 {
			cut = nl + 1
		}
		chunks = append(chunks, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

// runeOffset returns the byte offset of the n-th rune in s.
func runeOffset(s string, n int) int {
	i := 0
	for off := range s {
		if i == n {
			return off
		}
		i++
	}
	return len(s)
}

// List sends every registration to an admin, split over as many messages
// as needed.
func (s *BotService) List(ctx context.Context, msg *tgbot.Message) error {
	chatID := msg.Chat.ID
	if !s.IsAdmin(msg.From) {
		s.reply(ctx, chatID, unauthorizedText)
		return nil
	}
	recs, err := s.store.ListAll(ctx)
	if err != nil {
		s.reply(ctx, chatID, "Could not load registered files.")
		return err
	}
	if len(recs) == 0 {
		s.reply(ctx, chatID, "No registered files.")
		return nil
	}
	entries := make([]string, len(recs))
	for i := range recs {
		entries[i] = listEntry(&recs[i])
	}
	for _, chunk := range chunkText(strings.Join(entries, "\n\n"), s.chunkSize) {
		if s.reply(ctx, chatID, chunk) == nil {
			break
		}
	}
	return nil
}

func (s *BotService) Remove(ctx context.Context, msg *tgbot.Message, args []string) error {
	chatID := msg.Chat.ID
	if !s.IsAdmin(msg.From) {
		s.reply(ctx, chatID, unauthorizedText)
		return nil
	}
	if len(args) == 0 {
		s.reply(ctx, chatID, "Usage: /remove <token>")
		return nil
	}
	if err := s.store.Delete(ctx, args[0]); err != nil {
		s.reply(ctx, chatID, "Remove failed, try again later.")
		return err
	}
	logging.FromContext(ctx).Info("token removed", zap.String("token", args[0]), zap.Int64("by", msg.From.ID))
	s.reply(ctx, chatID, "Removed (if existed).")
	return nil
}
