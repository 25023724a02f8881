package tgbot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const getMeResult = `{"ok":true,"result":{"id":123,"is_bot":true,"first_name":"Bot","username":"movie_bot"}}`

type recorded struct {
	method string
	params url.Values
}

type callLog struct {
	mu    sync.Mutex
	calls []recorded
}

func (l *callLog) at(i int) recorded {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[i]
}

// newTestServer answers the getMe handshake itself and hands every other
// call to handler.
func newTestServer(t *testing.T, handler func(method string, params url.Values) (int, string), opts ...Option) (*Client, *callLog) {
	t.Helper()
	log := &callLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/bot123:secret/"))
		method := strings.TrimPrefix(r.URL.Path, "/bot123:secret/")
		if method == "getMe" {
			_, _ = io.WriteString(w, getMeResult)
			return
		}
		_ = r.ParseForm()
		log.mu.Lock()
		log.calls = append(log.calls, recorded{method: method, params: r.PostForm})
		log.mu.Unlock()
		status, resp := handler(method, r.PostForm)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, resp)
	}))
	t.Cleanup(srv.Close)
	opts = append([]Option{WithAPIURL(srv.URL), WithRateLimit(0, 0), WithMaxRetries(2)}, opts...)
	c, err := New("123:secret", opts...)
	require.NoError(t, err)
	return c, log
}

func TestNewChecksToken(t *testing.T) {
	c, _ := newTestServer(t, func(string, url.Values) (int, string) { return 200, `{"ok":true,"result":true}` })
	assert.Equal(t, "123", c.BotID())
	assert.Equal(t, "movie_bot", c.Self().Username)

	me, err := c.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "movie_bot", me.Username)
	assert.True(t, me.IsBot)
}

func TestNewRejectsBadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	_, err := New("123:wrong", WithAPIURL(srv.URL))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "wrong")
}

func TestCopyMessage(t *testing.T) {
	c, calls := newTestServer(t, func(string, url.Values) (int, string) {
		return 200, `{"ok":true,"result":{"message_id":77}}`
	})

	id, err := c.CopyMessage(context.Background(), 10, -100500, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)
	assert.Equal(t, "copyMessage", calls.at(0).method)
	p := calls.at(0).params
	assert.Equal(t, "10", p.Get("chat_id"))
	assert.Equal(t, "-100500", p.Get("from_chat_id"))
	assert.Equal(t, "42", p.Get("message_id"))
}

func TestSendMediaSelectsMethod(t *testing.T) {
	c, calls := newTestServer(t, func(string, url.Values) (int, string) {
		return 200, `{"ok":true,"result":{"message_id":5,"chat":{"id":10,"type":"private"}}}`
	})

	for _, kind := range []MediaKind{"", MediaVideo, MediaAnimation, MediaAudio} {
		_, err := c.SendMedia(context.Background(), kind, 10, "FILE", "movie.mkv")
		require.NoError(t, err)
	}
	assert.Equal(t, "sendDocument", calls.at(0).method)
	assert.Equal(t, "FILE", calls.at(0).params.Get("document"))
	assert.Equal(t, "movie.mkv", calls.at(0).params.Get("caption"))
	assert.Equal(t, "sendVideo", calls.at(1).method)
	assert.Equal(t, "FILE", calls.at(1).params.Get("video"))
	assert.Equal(t, "sendAnimation", calls.at(2).method)
	assert.Equal(t, "sendAudio", calls.at(3).method)

	_, err := c.SendMedia(context.Background(), "sticker", 10, "FILE", "")
	assert.Error(t, err)
}

func TestAPIErrorIsPermanent(t *testing.T) {
	var n atomic.Int32
	c, _ := newTestServer(t, func(string, url.Values) (int, string) {
		n.Add(1)
		return 400, `{"ok":false,"error_code":400,"description":"Bad Request: wrong file identifier"}`
	})

	_, err := c.SendMedia(context.Background(), MediaDocument, 10, "gone", "")
	require.Error(t, err)
	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, 400, apiErr.Code)
	assert.Contains(t, apiErr.Description, "wrong file identifier")
	assert.Equal(t, int32(1), n.Load())
	assert.NotContains(t, err.Error(), "secret")
}

func TestServerErrorsAreRetried(t *testing.T) {
	var n atomic.Int32
	c, _ := newTestServer(t, func(string, url.Values) (int, string) {
		if n.Add(1) < 3 {
			return 502, `{"ok":false,"error_code":502,"description":"Bad Gateway"}`
		}
		return 200, `{"ok":true,"result":true}`
	})

	require.NoError(t, c.DeleteMessage(context.Background(), 10, 5))
	assert.Equal(t, int32(3), n.Load())
}

func TestSendsAreNotRepeatedAfterTimeout(t *testing.T) {
	var n atomic.Int32
	c, _ := newTestServer(t, func(string, url.Values) (int, string) {
		if n.Add(1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		return 200, fmt.Sprintf(`{"ok":true,"result":{"message_id":%d}}`, n.Load())
	}, WithRequestTimeout(100*time.Millisecond))

	_, err := c.CopyMessage(context.Background(), 10, -100500, 42)
	require.Error(t, err)
	assert.Equal(t, int32(1), n.Load())

	_, err = c.SendMessage(context.Background(), 10, "hi")
	require.NoError(t, err)
	assert.Equal(t, int32(2), n.Load())
}

func TestSendServerErrorIsNotRepeated(t *testing.T) {
	var n atomic.Int32
	c, _ := newTestServer(t, func(string, url.Values) (int, string) {
		n.Add(1)
		return 502, `{"ok":false,"error_code":502,"description":"Bad Gateway"}`
	})

	_, err := c.SendMedia(context.Background(), MediaDocument, 10, "FILE", "")
	require.Error(t, err)
	assert.Equal(t, int32(1), n.Load())
}

func TestSendRetriesAfterFloodWait(t *testing.T) {
	var n atomic.Int32
	c, _ := newTestServer(t, func(string, url.Values) (int, string) {
		if n.Add(1) == 1 {
			return 429, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 0","parameters":{"retry_after":0}}`
		}
		return 200, `{"ok":true,"result":{"message_id":9}}`
	})

	id, err := c.CopyMessage(context.Background(), 10, -100500, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.Equal(t, int32(2), n.Load())
}

func TestDeleteIsRepeatedAfterTimeout(t *testing.T) {
	var n atomic.Int32
	c, _ := newTestServer(t, func(string, url.Values) (int, string) {
		if n.Add(1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		return 200, `{"ok":true,"result":true}`
	}, WithRequestTimeout(100*time.Millisecond))

	require.NoError(t, c.DeleteMessage(context.Background(), 10, 5))
	assert.Equal(t, int32(2), n.Load())
}

func TestSetWebhook(t *testing.T) {
	c, calls := newTestServer(t, func(string, url.Values) (int, string) {
		return 200, `{"ok":true,"result":true}`
	})

	require.NoError(t, c.SetWebhook(context.Background(), "https://bot.example.com/webhook", "s3cret"))
	p := calls.at(0).params
	assert.Equal(t, "setWebhook", calls.at(0).method)
	assert.Equal(t, "https://bot.example.com/webhook", p.Get("url"))
	assert.Equal(t, "s3cret", p.Get("secret_token"))
	assert.Equal(t, `["message"]`, p.Get("allowed_updates"))
}

func TestForwardedFrom(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"message_id":1,"chat":{"id":5,"type":"private"},
		"forward_origin":{"type":"channel","date":1,"chat":{"id":-1001,"type":"channel"},"message_id":33}}`), &m))
	chatID, msgID, ok := m.ForwardedFrom()
	assert.True(t, ok)
	assert.Equal(t, int64(-1001), chatID)
	assert.Equal(t, int64(33), msgID)

	legacy := Message{ForwardFromChat: &Chat{ID: -1002}, ForwardFromMessageID: 9}
	chatID, msgID, ok = legacy.ForwardedFrom()
	assert.True(t, ok)
	assert.Equal(t, int64(-1002), chatID)
	assert.Equal(t, int64(9), msgID)

	user := Message{ForwardOrigin: &MessageOrigin{Type: "user"}}
	_, _, ok = user.ForwardedFrom()
	assert.False(t, ok)
}
