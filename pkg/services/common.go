package services

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/tgdrive/filebot/internal/tgbot"
)

var (
	ErrTokenNotFound   = errors.New("token not found")
	ErrTokenCollision  = errors.New("could not generate a unique token")
	ErrQuotaExhausted  = errors.New("token used maximum times")
	ErrInvalidRecord   = errors.New("record must be either copy or file mode")
	ErrNoMedia         = errors.New("message carries no usable media")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrDeliveryFailure = errors.New("delivery failed")
)

// Messenger is the subset of the Bot API the workflows talk to.
type Messenger interface {
	GetMe(ctx context.Context) (*tgbot.User, error)
	SendMessage(ctx context.Context, chatID int64, text string) (*tgbot.Message, error)
	CopyMessage(ctx context.Context, chatID, fromChatID, messageID int64) (int64, error)
	SendMedia(ctx context.Context, kind tgbot.MediaKind, chatID int64, fileID, caption string) (*tgbot.Message, error)
	SendChatAction(ctx context.Context, chatID int64, action string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// Admins is the set of user ids allowed to register and manage files.
type Admins map[int64]struct{}

func NewAdmins(ids ...int64) Admins {
	a := make(Admins, len(ids))
	for _, id := range ids {
		a[id] = struct{}{}
	}
	return a
}

func (a Admins) Contains(id int64) bool {
	_, ok := a[id]
	return ok
}

func usesText(n int) string {
	if n < 0 {
		return "unlimited"
	}
	return strconv.Itoa(n)
}
