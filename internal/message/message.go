package message

import (
	"strings"
	"time"
)

// Kind classifies a direct message by its payload.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
)

// RemovedMarker prefixes the content of messages whose attachment was dropped.
const RemovedMarker = "[Attachment removed] "

// KindForMime maps a mime type onto the message kind used to display it.
func KindForMime(mime string) Kind {
	mime = strings.ToLower(mime)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	default:
		return KindDocument
	}
}

// IsFile reports whether the kind carries an attachment.
func (k Kind) IsFile() bool { return k != KindText && k != "" }

// Message is the canonical record returned to callers regardless of which
// backend stored it.
type Message struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"sender_id"`
	ReceiverID string      `json:"receiver_id"`
	Content    string      `json:"content"`
	Kind       Kind        `json:"kind"`
	Attachment *Attachment `json:"attachment"`
	Read       bool        `json:"read"`
	CreatedAt  time.Time   `json:"created_at"`
	EditedAt   *time.Time  `json:"edited_at,omitempty"`
}

// Key returns the conversation the message belongs to.
func (m Message) Key() ConversationKey {
	return NewConversationKey(m.SenderID, m.ReceiverID)
}

// Attachment describes a stored binary payload. Locator is a public URL for
// remote uploads or a self-contained data URL for local ones.
type Attachment struct {
	ID         string `json:"id"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	Locator    string `json:"locator"`
	Context    string `json:"context,omitempty"`
	Checksum   string `json:"checksum,omitempty"`
	Compressed bool   `json:"compressed"`
}

// User is the minimal profile surfaced for conversation partners.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}
