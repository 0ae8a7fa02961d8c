package dm

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"hackhub/internal/attachment"
	"hackhub/internal/message"
	"hackhub/internal/remote"
)

// decodeRow maps a column-keyed row onto a tagged struct.
func decodeRow[T any](row remote.Row) (T, error) {
	var out T
	data, err := json.Marshal(row)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode %T row: %w", out, err)
	}
	return out, nil
}

func remoteMessages(rows []remote.Row) ([]message.Message, error) {
	out := make([]message.Message, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeRow[message.RemoteRecord](row)
		if err != nil {
			return nil, err
		}
		out = append(out, message.FromRemote(rec))
	}
	return out, nil
}

func textRow(id, sender, receiver, content string, now time.Time) remote.Row {
	return remote.Row{
		"id":               id,
		"sender_id":        sender,
		"receiver_id":      receiver,
		"conversation_key": message.NewConversationKey(sender, receiver).String(),
		"content":          content,
		"message_type":     string(message.KindText),
		"is_read":          false,
		"created_at":       now,
	}
}

func fileRow(id, sender, receiver, content string, up attachment.Upload, now time.Time) remote.Row {
	a := up.Attachment
	row := textRow(id, sender, receiver, content, now)
	row["message_type"] = string(message.KindForMime(a.MimeType))
	row["attachment_id"] = a.ID
	row["file_url"] = a.Locator
	row["file_name"] = a.FileName
	row["file_size"] = a.Size
	row["mime_type"] = a.MimeType
	row["compressed"] = a.Compressed
	return row
}

func attachmentRow(messageID, uploader string, up attachment.Upload, now time.Time) remote.Row {
	a := up.Attachment
	return remote.Row{
		"id":             a.ID,
		"message_id":     messageID,
		"uploader_id":    uploader,
		"file_name":      a.FileName,
		"mime_type":      a.MimeType,
		"file_size":      a.Size,
		"bucket":         up.Bucket,
		"storage_path":   up.Path,
		"public_url":     a.Locator,
		"upload_context": a.Context,
		"checksum":       a.Checksum,
		"compressed":     a.Compressed,
		"created_at":     now,
	}
}

// strippedPatch nulls every attachment column and turns the row into text.
func strippedPatch(content string) remote.Row {
	return remote.Row{
		"message_type":  string(message.KindText),
		"content":       message.RemovedMarker + content,
		"attachment_id": nil,
		"file_url":      nil,
		"file_name":     nil,
		"file_size":     nil,
		"mime_type":     nil,
		"compressed":    false,
	}
}

type attachmentRecord struct {
	ID          string `json:"id"`
	MessageID   string `json:"message_id"`
	UploaderID  string `json:"uploader_id"`
	Bucket      string `json:"bucket"`
	StoragePath string `json:"storage_path"`
	FileSize    int64  `json:"file_size"`
}

func rowString(row remote.Row, col string) string {
	s, _ := row[col].(string)
	return s
}

func rowInt(row remote.Row, col string) int64 {
	switch v := row[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func sortChronological(msgs []message.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}
