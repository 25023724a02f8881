package services

import (
	"context"
	"sync"
	"time"

	"github.com/tgdrive/filebot/internal/cache"
	"github.com/tgdrive/filebot/internal/logging"
	"github.com/tgdrive/filebot/internal/tgbot"
	"go.uber.org/zap"
)

const botSelfTTL = time.Hour

// CleanupScheduler deletes messages from a chat once a delay has passed.
type CleanupScheduler interface {
	Schedule(chatID int64, messageIDs ...int64) string
}

type Options struct {
	BotID         string
	Admins        []int64
	CleanupDelay  time.Duration
	ListChunkSize int
}

type BotService struct {
	store     *TokenStore
	bot       Messenger
	cache     cache.Cacher
	cleanup   CleanupScheduler
	admins    Admins
	botID     string
	delay     time.Duration
	chunkSize int
	locks     keyedMutex
	timeNowFn func() time.Time
}

func NewBotService(store *TokenStore, bot Messenger, c cache.Cacher, cleanup CleanupScheduler, opts Options) *BotService {
	if opts.CleanupDelay <= 0 {
		opts.CleanupDelay = 15 * time.Minute
	}
	if opts.ListChunkSize <= 0 {
		opts.ListChunkSize = 3900
	}
	return &BotService{
		store:     store,
		bot:       bot,
		cache:     c,
		cleanup:   cleanup,
		admins:    NewAdmins(opts.Admins...),
		botID:     opts.BotID,
		delay:     opts.CleanupDelay,
		chunkSize: opts.ListChunkSize,
		timeNowFn: time.Now,
	}
}

func (s *BotService) IsAdmin(u *tgbot.User) bool {
	return u != nil && s.admins.Contains(u.ID)
}

// BotUsername returns the bot's username, asking the Bot API at most once
// per botSelfTTL.
func (s *BotService) BotUsername(ctx context.Context) (string, error) {
	load := func() (*tgbot.User, error) { return s.bot.GetMe(ctx) }
	var (
		me  *tgbot.User
		err error
	)
	if s.cache == nil {
		me, err = load()
	} else {
		me, err = cache.Fetch(ctx, s.cache, cache.KeyBotSelf(s.botID), botSelfTTL, load)
	}
	if err != nil {
		return "", err
	}
	return me.Username, nil
}

func (s *BotService) reply(ctx context.Context, chatID int64, text string) *tgbot.Message {
	m, err := s.bot.SendMessage(ctx, chatID, text)
	if err != nil {
		logging.FromContext(ctx).Warn("failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
		return nil
	}
	return m
}

// keyedMutex hands out one mutex per key and drops it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
