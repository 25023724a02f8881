package tgbot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me tgbotapi.User
	err := c.do(ctx, "getMe", func() (err error) {
		me, err = c.api.GetMe()
		return err
	})
	if err != nil {
		return nil, err
	}
	u := fromUser(me)
	return &u, nil
}

func (c *Client) send(ctx context.Context, method string, msg tgbotapi.Chattable) (*Message, error) {
	var sent tgbotapi.Message
	err := c.do(ctx, method, func() (err error) {
		sent, err = c.api.Send(msg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromMessage(&sent), nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	return c.send(ctx, "sendMessage", tgbotapi.NewMessage(chatID, text))
}

// CopyMessage duplicates a message without a link to the original and
// returns the id of the new message.
func (c *Client) CopyMessage(ctx context.Context, chatID, fromChatID, messageID int64) (int64, error) {
	var id tgbotapi.MessageID
	err := c.do(ctx, "copyMessage", func() (err error) {
		id, err = c.api.CopyMessage(tgbotapi.NewCopyMessage(chatID, fromChatID, int(messageID)))
		return err
	})
	if err != nil {
		return 0, err
	}
	return int64(id.MessageID), nil
}

// SendMedia re-sends previously uploaded media by its file id. An empty
// kind sends a document.
func (c *Client) SendMedia(ctx context.Context, kind MediaKind, chatID int64, fileID, caption string) (*Message, error) {
	file := tgbotapi.FileID(fileID)
	switch kind {
	case "", MediaDocument:
		m := tgbotapi.NewDocument(chatID, file)
		m.Caption = caption
		return c.send(ctx, "sendDocument", m)
	case MediaVideo:
		m := tgbotapi.NewVideo(chatID, file)
		m.Caption = caption
		return c.send(ctx, "sendVideo", m)
	case MediaAnimation:
		m := tgbotapi.NewAnimation(chatID, file)
		m.Caption = caption
		return c.send(ctx, "sendAnimation", m)
	case MediaAudio:
		m := tgbotapi.NewAudio(chatID, file)
		m.Caption = caption
		return c.send(ctx, "sendAudio", m)
	default:
		return nil, fmt.Errorf("tgbot: unknown media kind %q", kind)
	}
}

func (c *Client) request(ctx context.Context, method string, req tgbotapi.Chattable) error {
	return c.do(ctx, method, func() error {
		_, err := c.api.Request(req)
		return err
	})
}

func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return c.request(ctx, "sendChatAction", tgbotapi.NewChatAction(chatID, action))
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.request(ctx, "deleteMessage", tgbotapi.NewDeleteMessage(chatID, int(messageID)))
}

// SetWebhook points the bot at url. Only message updates are requested.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	allowed, err := json.Marshal([]string{"message"})
	if err != nil {
		return errors.Wrap(err, "encode allowed updates")
	}
	params := tgbotapi.Params{
		"url":             url,
		"allowed_updates": string(allowed),
	}
	params.AddNonEmpty("secret_token", secret)
	return c.do(ctx, "setWebhook", func() error {
		_, err := c.api.MakeRequest("setWebhook", params)
		return err
	})
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.request(ctx, "deleteWebhook", tgbotapi.DeleteWebhookConfig{})
}

func fromUser(u tgbotapi.User) User {
	return User{
		ID:        u.ID,
		IsBot:     u.IsBot,
		FirstName: u.FirstName,
		Username:  u.UserName,
	}
}

func fromMessage(m *tgbotapi.Message) *Message {
	out := &Message{
		MessageID: int64(m.MessageID),
		Date:      int64(m.Date),
		Text:      m.Text,
		Caption:   m.Caption,
	}
	if m.Chat != nil {
		out.Chat = Chat{ID: m.Chat.ID, Type: m.Chat.Type, Title: m.Chat.Title, Username: m.Chat.UserName}
	}
	if m.From != nil {
		u := fromUser(*m.From)
		out.From = &u
	}
	return out
}
