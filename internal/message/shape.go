package message

import (
	"time"
)

// RemoteRecord mirrors a row of the remote `messages` table.
type RemoteRecord struct {
	ID              string     `json:"id"`
	SenderID        string     `json:"sender_id"`
	ReceiverID      string     `json:"receiver_id"`
	ConversationKey string     `json:"conversation_key"`
	Content         string     `json:"content"`
	MessageType     string     `json:"message_type"`
	AttachmentID    *string    `json:"attachment_id"`
	FileURL         *string    `json:"file_url"`
	FileName        *string    `json:"file_name"`
	FileSize        *int64     `json:"file_size"`
	MimeType        *string    `json:"mime_type"`
	Compressed      bool       `json:"compressed"`
	IsRead          bool       `json:"is_read"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

// LocalRecord is the shape kept in the local store's messages collection.
// Timestamp is unix milliseconds; older records only carry CreatedAt.
type LocalRecord struct {
	ID           string  `json:"id"`
	SenderID     string  `json:"senderId"`
	ReceiverID   string  `json:"receiverId"`
	Content      string  `json:"content"`
	Type         string  `json:"type"`
	AttachmentID *string `json:"attachmentId"`
	FileURL      *string `json:"fileUrl"`
	FileName     *string `json:"fileName"`
	FileSize     *int64  `json:"fileSize"`
	MimeType     *string `json:"mimeType"`
	Checksum     string  `json:"checksum,omitempty"`
	Compressed   bool    `json:"compressed,omitempty"`
	Read         bool    `json:"read"`
	Timestamp    int64   `json:"timestamp,omitempty"`
	CreatedAt    string  `json:"createdAt,omitempty"`
	EditedAt     int64   `json:"editedAt,omitempty"`
}

// Created resolves the record's creation time from either alias.
func (r LocalRecord) Created() time.Time {
	if r.Timestamp > 0 {
		return time.UnixMilli(r.Timestamp).UTC()
	}
	if r.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, r.CreatedAt); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// HasFile reports whether the record still holds an attachment.
func (r LocalRecord) HasFile() bool {
	return Kind(r.Type).IsFile()
}

// Strip drops the attachment and keeps the text, marking the removal.
func (r *LocalRecord) Strip() {
	r.AttachmentID = nil
	r.FileURL = nil
	r.FileName = nil
	r.FileSize = nil
	r.MimeType = nil
	r.Checksum = ""
	r.Compressed = false
	r.Type = string(KindText)
	r.Content = RemovedMarker + r.Content
}

// NewLocalRecord converts a canonical message for local storage.
func NewLocalRecord(m Message) LocalRecord {
	rec := LocalRecord{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Type:       string(m.Kind),
		Read:       m.Read,
		Timestamp:  m.CreatedAt.UnixMilli(),
	}
	if m.EditedAt != nil {
		rec.EditedAt = m.EditedAt.UnixMilli()
	}
	if a := m.Attachment; a != nil && m.Kind.IsFile() {
		rec.AttachmentID = strPtr(a.ID)
		rec.FileURL = strPtr(a.Locator)
		rec.FileName = strPtr(a.FileName)
		size := a.Size
		rec.FileSize = &size
		rec.MimeType = strPtr(a.MimeType)
		rec.Checksum = a.Checksum
		rec.Compressed = a.Compressed
	}
	return rec
}

// FromLocal maps a local record onto the canonical shape.
func FromLocal(r LocalRecord) Message {
	m := Message{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Content:    r.Content,
		Kind:       normalizeKind(r.Type),
		Read:       r.Read,
		CreatedAt:  r.Created(),
	}
	if r.EditedAt > 0 {
		t := time.UnixMilli(r.EditedAt).UTC()
		m.EditedAt = &t
	}
	if m.Kind.IsFile() && r.FileURL != nil {
		m.Attachment = &Attachment{
			ID:         deref(r.AttachmentID),
			FileName:   deref(r.FileName),
			MimeType:   deref(r.MimeType),
			Size:       derefInt(r.FileSize),
			Locator:    *r.FileURL,
			Context:    "message",
			Checksum:   r.Checksum,
			Compressed: r.Compressed,
		}
	}
	return m
}

// FromRemote maps a remote row onto the canonical shape.
func FromRemote(r RemoteRecord) Message {
	m := Message{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Content:    r.Content,
		Kind:       normalizeKind(r.MessageType),
		Read:       r.IsRead,
		CreatedAt:  r.CreatedAt.UTC(),
	}
	if r.UpdatedAt != nil && r.UpdatedAt.After(r.CreatedAt) {
		t := r.UpdatedAt.UTC()
		m.EditedAt = &t
	}
	if m.Kind.IsFile() && r.FileURL != nil {
		m.Attachment = &Attachment{
			ID:         deref(r.AttachmentID),
			FileName:   deref(r.FileName),
			MimeType:   deref(r.MimeType),
			Size:       derefInt(r.FileSize),
			Locator:    *r.FileURL,
			Context:    "message",
			Compressed: r.Compressed,
		}
	}
	return m
}

func normalizeKind(s string) Kind {
	switch k := Kind(s); k {
	case KindImage, KindDocument, KindVideo, KindAudio:
		return k
	case "file":
		return KindDocument
	default:
		return KindText
	}
}

func strPtr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}
