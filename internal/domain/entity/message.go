package entity

import (
	"strings"
	"time"
)

const (
	MessageStatusSent = "sent"
	MessageStatusRead = "read"
)

const (
	AttachmentTypeImage    = "image"
	AttachmentTypeVideo    = "video"
	AttachmentTypeDocument = "document"
)

type Message struct {
	ID         string      `json:"id" firestore:"id"`
	ChatID     string      `json:"chat_id" firestore:"chatId"`
	SenderID   string      `json:"sender_id" firestore:"senderId"`
	Text       string      `json:"text" firestore:"text"`
	Timestamp  time.Time   `json:"timestamp" firestore:"timestamp"`
	Status     string      `json:"status" firestore:"status"` // "sent" or "read"
	Attachment *Attachment `json:"attachment,omitempty" firestore:"attachment,omitempty"`
}

type Attachment struct {
	URL  string `json:"url" firestore:"url"`
	Name string `json:"name" firestore:"name"`
	Size int64  `json:"size" firestore:"size"`
	Type string `json:"type" firestore:"type"` // "image", "video" or "document"
}

// Before compares messages by the ordering key (timestamp, id). The id
// breaks ties when server-assigned timestamps collide under rapid sends.
func (m *Message) Before(other *Message) bool {
	if !m.Timestamp.Equal(other.Timestamp) {
		return m.Timestamp.Before(other.Timestamp)
	}
	return m.ID < other.ID
}

// AttachmentTypeFromMIME maps an upload MIME type to the attachment kind.
// Never user-supplied directly.
func AttachmentTypeFromMIME(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return AttachmentTypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return AttachmentTypeVideo
	default:
		return AttachmentTypeDocument
	}
}
