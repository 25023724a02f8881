package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/tgdrive/filebot/internal/logging"
	"github.com/tgdrive/filebot/internal/tgbot"
	"go.uber.org/zap"
)

const (
	healthText   = "File delivery bot is running!"
	maxBodyBytes = 1 << 20
)

// Bot is what the dispatcher routes commands to.
type Bot interface {
	BotUsername(ctx context.Context) (string, error)
	Start(ctx context.Context, msg *tgbot.Message, args []string) error
	Help(ctx context.Context, msg *tgbot.Message) error
	Register(ctx context.Context, msg *tgbot.Message, args []string) error
	List(ctx context.Context, msg *tgbot.Message) error
	Remove(ctx context.Context, msg *tgbot.Message, args []string) error
	AutoRegister(ctx context.Context, msg *tgbot.Message) error
}

type Controller struct {
	bot    Bot
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New returns a controller whose update handlers run under a context of
// their own. It keeps the values of ctx but not its cancellation, so updates
// in flight when ctx is cancelled still complete; Shutdown cancels it.
func New(ctx context.Context, bot Bot, logger *zap.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Controller{
		bot:    bot,
		ctx:    logging.WithLogger(ctx, logger),
		cancel: cancel,
		logger: logger,
	}
}

func (c *Controller) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, healthText)
}

// Webhook accepts one Bot API update and answers OK, malformed bodies
// included. The update is handled after the response.
func (c *Controller) Webhook(w http.ResponseWriter, r *http.Request) {
	var upd tgbot.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&upd); err != nil {
		logging.FromContext(r.Context()).Warn("malformed update", zap.Error(err))
	} else {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.HandleUpdate(c.ctx, &upd)
		}()
	}
	_, _ = io.WriteString(w, "OK")
}

// Wait blocks until every dispatched update has been handled.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Shutdown waits for dispatched updates and then cancels the handler
// context. Call it after the HTTP server has stopped accepting requests.
func (c *Controller) Shutdown() {
	c.wg.Wait()
	c.cancel()
}

func (c *Controller) HandleUpdate(ctx context.Context, upd *tgbot.Update) {
	msg := upd.Message
	if msg == nil {
		return
	}
	lg := logging.FromContext(ctx).With(zap.Int64("update_id", upd.UpdateID), zap.Int64("chat_id", msg.Chat.ID))
	ctx = logging.WithLogger(ctx, lg)
	defer func() {
		if r := recover(); r != nil {
			lg.Error("update handler panicked", zap.Any("panic", r))
		}
	}()
	if err := c.dispatch(ctx, msg); err != nil {
		lg.Error("update failed", zap.Error(err))
	}
}

func (c *Controller) dispatch(ctx context.Context, msg *tgbot.Message) error {
	cmd, target, args, ok := parseCommand(msg.Text)
	if ok && target != "" && !c.addressedToUs(ctx, target) {
		return nil
	}
	if ok {
		switch cmd {
		case "start":
			return c.bot.Start(ctx, msg, args)
		case "help":
			return c.bot.Help(ctx, msg)
		case "register":
			return c.bot.Register(ctx, msg, args)
		case "list":
			return c.bot.List(ctx, msg)
		case "remove":
			return c.bot.Remove(ctx, msg, args)
		}
	}
	return c.bot.AutoRegister(ctx, msg)
}

func (c *Controller) addressedToUs(ctx context.Context, target string) bool {
	username, err := c.bot.BotUsername(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("bot identity unavailable", zap.Error(err))
		return false
	}
	return strings.EqualFold(username, target)
}

// parseCommand splits "/Cmd@bot a b" into ("cmd", "bot", [a b]).
func parseCommand(text string) (cmd, target string, args []string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", nil, false
	}
	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], "/")
	if name == "" {
		return "", "", nil, false
	}
	name, target, _ = strings.Cut(name, "@")
	return strings.ToLower(name), target, fields[1:], true
}
