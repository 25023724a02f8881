package tgbot

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Error is an unsuccessful Bot API response.
type Error struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("tgbot: %s: %d %s", e.Method, e.Code, e.Description)
}

// Temporary reports whether repeating the call may succeed.
func (e *Error) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func fromAPIError(method string, err error) (*Error, bool) {
	var api *tgbotapi.Error
	if !errors.As(err, &api) || api == nil {
		return nil, false
	}
	return &Error{
		Method:      method,
		Code:        api.Code,
		Description: api.Message,
		RetryAfter:  api.RetryAfter,
	}, true
}
