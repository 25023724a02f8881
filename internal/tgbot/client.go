// Package tgbot wraps the Telegram Bot API client with rate limiting,
// retries and the update types the webhook receives.
package tgbot

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tgdrive/filebot/internal/logging"
	"github.com/tgdrive/filebot/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultAPIURL = "https://api.telegram.org"

type Client struct {
	api        *tgbotapi.BotAPI
	limiter    *rate.Limiter
	maxRetries uint64
}

type options struct {
	apiURL     string
	httpClient *http.Client
	timeout    time.Duration
	rate       int
	burst      int
	maxRetries int
}

type Option func(*options)

func WithAPIURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.apiURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithRateLimit caps outbound calls at perSecond with the given burst.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond, burst int) Option {
	return func(o *options) {
		o.rate = perSecond
		o.burst = burst
	}
}

func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = max(n, 0) }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// New connects to the Bot API and checks the token with getMe.
func New(token string, opts ...Option) (*Client, error) {
	o := &options{
		apiURL:     DefaultAPIURL,
		timeout:    30 * time.Second,
		rate:       30,
		burst:      5,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(o)
	}
	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: o.timeout}
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, o.apiURL+"/bot%s/%s", hc)
	if err != nil {
		return nil, errors.Wrap(redact(err), "connect bot api")
	}

	c := &Client{api: api, maxRetries: uint64(o.maxRetries)}
	if o.rate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(o.rate), max(o.burst, 1))
	}
	return c, nil
}

// Self is the bot account the token belongs to.
func (c *Client) Self() User {
	return fromUser(c.api.Self)
}

func (c *Client) BotID() string {
	return strconv.FormatInt(c.api.Self.ID, 10)
}

func (c *Client) newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = time.Minute
	return backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
}

// repeatable lists the methods whose effect is the same when Telegram
// receives them twice. Anything else may only be repeated when the request
// provably never reached the Bot API.
var repeatable = map[string]bool{
	"getMe":          true,
	"sendChatAction": true,
	"deleteMessage":  true,
	"setWebhook":     true,
	"deleteWebhook":  true,
}

// do runs fn under the rate limiter. A 429 waits for the advertised
// retry_after and is retried for every method. Transport failures and 5xx
// are retried for repeatable methods; other methods only retry failed dials.
func (c *Client) do(ctx context.Context, method string, fn func() error) error {
	lg := logging.FromContext(ctx).Named("tgbot")
	safe := repeatable[method]

	op := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		if apiErr, ok := fromAPIError(method, err); ok {
			if !apiErr.Temporary() || (!safe && apiErr.Code != http.StatusTooManyRequests) {
				return backoff.Permanent(apiErr)
			}
			if apiErr.RetryAfter > 0 {
				select {
				case <-time.After(time.Duration(apiErr.RetryAfter) * time.Second):
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				}
			}
			return apiErr
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		err = errors.Wrap(redact(err), method)
		if !safe && !isDialError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.RetryNotify(op, c.newBackoff(ctx), func(err error, d time.Duration) {
		lg.Debug("retrying bot api call", zap.String("method", method), zap.Duration("in", d), zap.Error(err))
	})
	metrics.BotAPICalls.WithLabelValues(method, metrics.Result(err)).Inc()
	return err
}

// isDialError reports whether err happened while connecting, before any
// part of the request was written.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// redact strips the request url, which carries the token, from transport
// errors.
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
