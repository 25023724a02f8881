package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/tgdrive/filebot/internal/logging"
	"go.uber.org/zap"
)

// SecretHeader carries the secret passed to setWebhook on every update.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type Middleware = func(http.Handler) http.Handler

func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := r.WithContext(logging.WithLogger(r.Context(), lg))
			next.ServeHTTP(w, req)
		})
	}
}

// WebhookSecret rejects requests whose secret header does not match. An
// empty secret disables the check.
func WebhookSecret(secret string) Middleware {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(SecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				logging.FromContext(r.Context()).Warn("webhook secret mismatch", zap.String("ip", r.RemoteAddr))
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
