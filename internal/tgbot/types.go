package tgbot

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

// MessageOrigin describes where a forwarded message came from. Only the
// "channel" origin carries both a chat and a message id.
type MessageOrigin struct {
	Type      string `json:"type"`
	Date      int64  `json:"date"`
	Chat      *Chat  `json:"chat,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
}

type Document struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileName     string `json:"file_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

type Video struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileName     string `json:"file_name,omitempty"`
	Duration     int    `json:"duration"`
	FileSize     int64  `json:"file_size,omitempty"`
}

type Animation struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileName     string `json:"file_name,omitempty"`
	Duration     int    `json:"duration"`
}

type Audio struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileName     string `json:"file_name,omitempty"`
	Title        string `json:"title,omitempty"`
	Performer    string `json:"performer,omitempty"`
}

type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

type Message struct {
	MessageID      int64           `json:"message_id"`
	From           *User           `json:"from,omitempty"`
	SenderChat     *Chat           `json:"sender_chat,omitempty"`
	Chat           Chat            `json:"chat"`
	Date           int64           `json:"date"`
	Text           string          `json:"text,omitempty"`
	Entities       []MessageEntity `json:"entities,omitempty"`
	Caption        string          `json:"caption,omitempty"`
	ReplyToMessage *Message        `json:"reply_to_message,omitempty"`
	ForwardOrigin  *MessageOrigin  `json:"forward_origin,omitempty"`

	// Deprecated forward fields, still sent by some clients and proxies.
	ForwardFromChat      *Chat `json:"forward_from_chat,omitempty"`
	ForwardFromMessageID int64 `json:"forward_from_message_id,omitempty"`

	Document  *Document  `json:"document,omitempty"`
	Video     *Video     `json:"video,omitempty"`
	Animation *Animation `json:"animation,omitempty"`
	Audio     *Audio     `json:"audio,omitempty"`
}

// ForwardedFrom returns the origin chat and message id of a message
// forwarded from a channel, or ok=false.
func (m *Message) ForwardedFrom() (chatID, messageID int64, ok bool) {
	if o := m.ForwardOrigin; o != nil && o.Chat != nil && o.MessageID != 0 {
		return o.Chat.ID, o.MessageID, true
	}
	if m.ForwardFromChat != nil && m.ForwardFromMessageID != 0 {
		return m.ForwardFromChat.ID, m.ForwardFromMessageID, true
	}
	return 0, 0, false
}

type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message,omitempty"`
	EditedMessage *Message `json:"edited_message,omitempty"`
	ChannelPost   *Message `json:"channel_post,omitempty"`
}

type MediaKind string

const (
	MediaDocument  MediaKind = "document"
	MediaVideo     MediaKind = "video"
	MediaAnimation MediaKind = "animation"
	MediaAudio     MediaKind = "audio"
)

const ActionUploadDocument = tgbotapi.ChatUploadDocument
