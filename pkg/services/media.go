package services

import (
	"github.com/tgdrive/filebot/internal/tgbot"
	"github.com/tgdrive/filebot/pkg/models"
)

// extractor pulls one kind of attachment out of a message. ok is false
// when the message does not carry that kind.
type extractor struct {
	kind     tgbot.MediaKind
	fallback string
	extract  func(m *tgbot.Message) (fileID, name string, ok bool)
}

// mediaExtractors is the attachment priority list; the first match wins.
var mediaExtractors = []extractor{
	{
		kind:     tgbot.MediaDocument,
		fallback: "file",
		extract: func(m *tgbot.Message) (string, string, bool) {
			if m.Document == nil {
				return "", "", false
			}
			return m.Document.FileID, m.Document.FileName, true
		},
	},
	{
		kind:     tgbot.MediaVideo,
		fallback: "video.mp4",
		extract: func(m *tgbot.Message) (string, string, bool) {
			if m.Video == nil {
				return "", "", false
			}
			return m.Video.FileID, m.Video.FileName, true
		},
	},
	{
		kind:     tgbot.MediaAnimation,
		fallback: "animation.mp4",
		extract: func(m *tgbot.Message) (string, string, bool) {
			if m.Animation == nil {
				return "", "", false
			}
			return m.Animation.FileID, m.Animation.FileName, true
		},
	},
	{
		kind:     tgbot.MediaAudio,
		fallback: "audio",
		extract: func(m *tgbot.Message) (string, string, bool) {
			if m.Audio == nil {
				return "", "", false
			}
			return m.Audio.FileID, m.Audio.FileName, true
		},
	},
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// recordFromMessage builds the delivery part of a token record for m.
// Channel forwards are re-sent by copying the original post; anything else
// needs an attachment whose file id can be re-sent.
func recordFromMessage(m *tgbot.Message) (*models.Token, error) {
	if chatID, msgID, ok := m.ForwardedFrom(); ok {
		var docName string
		if m.Document != nil {
			docName = m.Document.FileName
		}
		return &models.Token{
			SendMethod:    models.SendCopy,
			FromChatID:    &chatID,
			FromMessageID: &msgID,
			Filename:      firstNonEmpty(docName, m.Caption, "file"),
		}, nil
	}

	for _, ex := range mediaExtractors {
		fileID, name, ok := ex.extract(m)
		if !ok || fileID == "" {
			continue
		}
		kind := string(ex.kind)
		return &models.Token{
			SendMethod: models.SendFile,
			MediaType:  &kind,
			FileID:     &fileID,
			Filename:   firstNonEmpty(name, m.Caption, ex.fallback),
		}, nil
	}
	return nil, ErrNoMedia
}
