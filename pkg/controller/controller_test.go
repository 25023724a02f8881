package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tgdrive/filebot/internal/middleware"
	"github.com/tgdrive/filebot/internal/tgbot"
	"go.uber.org/zap"
)

type call struct {
	name string
	args []string
}

type fakeBot struct {
	mu       sync.Mutex
	calls    []call
	block    chan struct{}
	startErr error
}

func (f *fakeBot) record(name string, args []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name, args})
	return nil
}

func (f *fakeBot) all() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeBot) BotUsername(context.Context) (string, error) { return "FileBot", nil }
func (f *fakeBot) Start(ctx context.Context, _ *tgbot.Message, args []string) error {
	if f.block != nil {
		<-f.block
		f.mu.Lock()
		f.startErr = ctx.Err()
		f.mu.Unlock()
	}
	return f.record("start", args)
}
func (f *fakeBot) Help(context.Context, *tgbot.Message) error { return f.record("help", nil) }
func (f *fakeBot) Register(_ context.Context, _ *tgbot.Message, args []string) error {
	return f.record("register", args)
}
func (f *fakeBot) List(context.Context, *tgbot.Message) error { return f.record("list", nil) }
func (f *fakeBot) Remove(_ context.Context, _ *tgbot.Message, args []string) error {
	return f.record("remove", args)
}
func (f *fakeBot) AutoRegister(context.Context, *tgbot.Message) error {
	return f.record("auto", nil)
}

func TestParseCommand(t *testing.T) {
	cmd, target, args, ok := parseCommand("/Register@FileBot 2  1h")
	assert.True(t, ok)
	assert.Equal(t, "register", cmd)
	assert.Equal(t, "FileBot", target)
	assert.Equal(t, []string{"2", "1h"}, args)

	_, _, _, ok = parseCommand("hello")
	assert.False(t, ok)
	_, _, _, ok = parseCommand("/")
	assert.False(t, ok)
}

func TestDispatch(t *testing.T) {
	cases := []struct {
		text string
		want []call
	}{
		{"/start abc", []call{{"start", []string{"abc"}}}},
		{"/START", []call{{"start", []string{}}}},
		{"/help", []call{{"help", nil}}},
		{"/register 1 24h", []call{{"register", []string{"1", "24h"}}}},
		{"/list@filebot", []call{{"list", nil}}},
		{"/remove tok", []call{{"remove", []string{"tok"}}}},
		{"/start@otherbot abc", nil},
		{"/unknown", []call{{"auto", nil}}},
		{"", []call{{"auto", nil}}},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			bot := &fakeBot{}
			c := New(context.Background(), bot, zap.NewNop())
			c.HandleUpdate(context.Background(), &tgbot.Update{
				UpdateID: 1,
				Message:  &tgbot.Message{Text: tc.text, Chat: tgbot.Chat{ID: 5}},
			})
			assert.Equal(t, tc.want, bot.all())
		})
	}
}

func TestHandleUpdateIgnoresNonMessages(t *testing.T) {
	bot := &fakeBot{}
	c := New(context.Background(), bot, zap.NewNop())
	c.HandleUpdate(context.Background(), &tgbot.Update{UpdateID: 1, EditedMessage: &tgbot.Message{Text: "/list"}})
	assert.Empty(t, bot.all())
}

func TestHealth(t *testing.T) {
	h := NewRouter(New(context.Background(), &fakeBot{}, zap.NewNop()), zap.NewNop(), "")
	for _, path := range []string{"/", "/healthz"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "File delivery bot is running!", rec.Body.String())
	}
}

func TestWebhook(t *testing.T) {
	bot := &fakeBot{}
	c := New(context.Background(), bot, zap.NewNop())
	h := NewRouter(c, zap.NewNop(), "")

	body := `{"update_id":10,"message":{"message_id":1,"chat":{"id":5,"type":"private"},"from":{"id":7,"is_bot":false,"first_name":"a"},"text":"/start tok"}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	c.Wait()
	assert.Equal(t, []call{{"start", []string{"tok"}}}, bot.all())
}

func TestWebhookMalformedBody(t *testing.T) {
	bot := &fakeBot{}
	c := New(context.Background(), bot, zap.NewNop())
	h := NewRouter(c, zap.NewNop(), "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader("{not json")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	c.Wait()
	assert.Empty(t, bot.all())
}

func TestWebhookSecret(t *testing.T) {
	bot := &fakeBot{}
	c := New(context.Background(), bot, zap.NewNop())
	h := NewRouter(c, zap.NewNop(), "s3cret")
	body := `{"update_id":11,"message":{"message_id":1,"chat":{"id":5,"type":"private"},"text":"/help"}}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body))
	req.Header.Set(middleware.SecretHeader, "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool { return len(bot.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "help", bot.all()[0].name)
}

func TestShutdownFinishesInFlightUpdates(t *testing.T) {
	parent, stop := context.WithCancel(context.Background())
	bot := &fakeBot{block: make(chan struct{})}
	c := New(parent, bot, zap.NewNop())
	h := NewRouter(c, zap.NewNop(), "")

	body := `{"update_id":12,"message":{"message_id":1,"chat":{"id":5,"type":"private"},"text":"/start tok"}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	stop()
	done := make(chan struct{})
	go func() {
		c.Shutdown()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("shutdown returned while an update was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(bot.block)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not return")
	}

	bot.mu.Lock()
	defer bot.mu.Unlock()
	assert.NoError(t, bot.startErr)
	assert.Equal(t, []call{{"start", []string{"tok"}}}, bot.calls)
	assert.Error(t, c.ctx.Err())
}
