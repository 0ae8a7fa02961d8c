package dm

import (
	"context"
	"encoding/json"
	"strings"

	"hackhub/internal/apperr"
	"hackhub/internal/message"
	"hackhub/internal/remote"
	"hackhub/internal/storage"
)

func notSender(id string) error {
	return apperr.Forbidden(id, "message was sent by another user")
}

// EditMessage replaces the text of a message editorID sent. Read state is
// kept and edited_at is set. The remote is tried first; a message it does not
// know is looked up locally.
func (s *Service) EditMessage(ctx context.Context, id, editorID, content string) (message.Message, error) {
	if strings.TrimSpace(content) == "" {
		return message.Message{}, apperr.Validation(id, "message is empty")
	}
	if s.useRemote(ctx) {
		m, found, err := s.editRemote(ctx, id, editorID, content)
		switch {
		case err != nil:
			if err := s.fallback(ctx, "EditMessage", err); err != nil {
				return message.Message{}, err
			}
		case found:
			return m, nil
		}
	}
	var out message.Message
	err := s.local.Mutate(ctx, id, func(doc *storage.Document) (bool, error) {
		rec, err := localRecord(doc, id)
		if err != nil {
			return false, err
		}
		if rec.SenderID != editorID {
			return false, notSender(id)
		}
		rec.Content = content
		rec.EditedAt = s.now().UnixMilli()
		out = message.FromLocal(rec)
		return true, doc.Put(storage.CollectionMessages, id, rec)
	})
	if err != nil {
		return message.Message{}, err
	}
	s.metrics.LocalWrites.Add(1)
	return out, nil
}

// remoteMessage looks a message up by id.
func (s *Service) remoteMessage(ctx context.Context, id string) (message.RemoteRecord, bool, error) {
	rows, err := s.remote.Select(ctx, remote.TableMessages, remote.Query{
		Where: []remote.Cond{remote.Eq("id", id)},
		Limit: 1,
	})
	if err != nil || len(rows) == 0 {
		return message.RemoteRecord{}, false, err
	}
	rec, err := decodeRow[message.RemoteRecord](rows[0])
	if err != nil {
		return message.RemoteRecord{}, false, err
	}
	return rec, true, nil
}

// editRemote stores the edit once the row is known to exist. From then on a
// failure is the caller's answer; the local store never held this message.
func (s *Service) editRemote(ctx context.Context, id, editorID, content string) (message.Message, bool, error) {
	rec, found, err := s.remoteMessage(ctx, id)
	if err != nil || !found {
		return message.Message{}, false, err
	}
	if rec.SenderID != editorID {
		return message.Message{}, false, notSender(id)
	}
	now := s.timestamp()
	n, err := s.remote.Update(ctx, remote.TableMessages, []remote.Cond{remote.Eq("id", id)}, remote.Row{
		"content":    content,
		"updated_at": now,
	})
	if err != nil {
		return message.Message{}, false, apperr.Unavailable(id, "edit was not stored", err)
	}
	if n == 0 {
		return message.Message{}, false, nil
	}
	rec.Content = content
	rec.UpdatedAt = &now
	return message.FromRemote(rec), true, nil
}

// DeleteMessage removes a message requesterID sent and, on the remote, its
// attachment.
func (s *Service) DeleteMessage(ctx context.Context, id, requesterID string) error {
	if s.useRemote(ctx) {
		found, err := s.deleteRemote(ctx, id, requesterID)
		switch {
		case err != nil:
			if err := s.fallback(ctx, "DeleteMessage", err); err != nil {
				return err
			}
		case found:
			return nil
		}
	}
	err := s.local.Mutate(ctx, id, func(doc *storage.Document) (bool, error) {
		rec, err := localRecord(doc, id)
		if err != nil {
			return false, err
		}
		if rec.SenderID != requesterID {
			return false, notSender(id)
		}
		return doc.Remove(storage.CollectionMessages, id), nil
	})
	if err != nil {
		return err
	}
	s.metrics.LocalWrites.Add(1)
	return nil
}

func (s *Service) deleteRemote(ctx context.Context, id, requesterID string) (bool, error) {
	rec, found, err := s.remoteMessage(ctx, id)
	if err != nil || !found {
		return false, err
	}
	if rec.SenderID != requesterID {
		return false, notSender(id)
	}
	if _, err := s.remote.Delete(ctx, remote.TableMessages, []remote.Cond{remote.Eq("id", id)}); err != nil {
		return false, apperr.Unavailable(id, "message was not deleted", err)
	}
	if rec.AttachmentID == nil {
		return true, nil
	}
	// the message is gone, so a failure here only orphans the object
	att, ok, err := s.remoteAttachment(ctx, *rec.AttachmentID)
	if err == nil && ok {
		err = s.removeAttachment(ctx, att)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("attachment", *rec.AttachmentID).Msg("attachment left behind after message delete")
	}
	return true, nil
}

func (s *Service) remoteAttachment(ctx context.Context, id string) (attachmentRecord, bool, error) {
	rows, err := s.remote.Select(ctx, remote.TableAttachments, remote.Query{
		Where: []remote.Cond{remote.Eq("id", id)},
		Limit: 1,
	})
	if err != nil || len(rows) == 0 {
		return attachmentRecord{}, false, err
	}
	att, err := decodeRow[attachmentRecord](rows[0])
	if err != nil {
		return attachmentRecord{}, false, err
	}
	return att, true, nil
}

// removeAttachment deletes the stored object and then its metadata row.
func (s *Service) removeAttachment(ctx context.Context, att attachmentRecord) error {
	if s.objects != nil && att.StoragePath != "" {
		if err := s.objects.Remove(ctx, att.Bucket, att.StoragePath); err != nil {
			return err
		}
	}
	_, err := s.remote.Delete(ctx, remote.TableAttachments, []remote.Cond{remote.Eq("id", att.ID)})
	return err
}

// DeleteAttachment destroys one attachment requesterID uploaded. Messages
// that carried it stay, converted to text with the removal marker, and are
// rewritten before the attachment itself goes.
func (s *Service) DeleteAttachment(ctx context.Context, attachmentID, requesterID string) error {
	if s.useRemote(ctx) {
		found, err := s.deleteAttachmentRemote(ctx, attachmentID, requesterID)
		switch {
		case err != nil:
			if err := s.fallback(ctx, "DeleteAttachment", err); err != nil {
				return err
			}
		case found:
			return nil
		}
	}
	err := s.local.Mutate(ctx, attachmentID, func(doc *storage.Document) (bool, error) {
		carriers := map[string]message.LocalRecord{}
		for id, raw := range doc.Records(storage.CollectionMessages) {
			var rec message.LocalRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				continue
			}
			if rec.AttachmentID == nil || *rec.AttachmentID != attachmentID {
				continue
			}
			if rec.SenderID != requesterID {
				return false, apperr.Forbidden(attachmentID, "attachment belongs to another user")
			}
			carriers[id] = rec
		}
		if len(carriers) == 0 {
			return false, apperr.NotFound(attachmentID, "no such attachment")
		}
		for id, rec := range carriers {
			rec.Strip()
			if err := doc.Put(storage.CollectionMessages, id, rec); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	s.metrics.LocalWrites.Add(1)
	return nil
}

// deleteAttachmentRemote never leaves a message pointing at a removed object:
// carriers are stripped first, the object and its row go last. Once the
// attachment is known remotely, failures are returned instead of retried
// against the local store.
func (s *Service) deleteAttachmentRemote(ctx context.Context, id, requesterID string) (bool, error) {
	att, hasRow, err := s.remoteAttachment(ctx, id)
	if err != nil {
		return false, err
	}
	carriers, err := s.remote.Select(ctx, remote.TableMessages, remote.Query{
		Where: []remote.Cond{remote.Eq("attachment_id", id)},
	})
	if err != nil {
		return false, err
	}
	if !hasRow && len(carriers) == 0 {
		return false, nil
	}
	owner := att.UploaderID
	if owner == "" && len(carriers) > 0 {
		owner = rowString(carriers[0], "sender_id")
	}
	if owner != requesterID {
		return false, apperr.Forbidden(id, "attachment belongs to another user")
	}
	for _, row := range carriers {
		_, err := s.remote.Update(ctx, remote.TableMessages,
			[]remote.Cond{remote.Eq("id", rowString(row, "id"))},
			strippedPatch(rowString(row, "content")))
		if err != nil {
			return false, apperr.Unavailable(id, "attachment was not removed", err)
		}
	}
	if hasRow {
		if err := s.removeAttachment(ctx, att); err != nil {
			return false, apperr.Unavailable(id, "messages were stripped but the attachment was not removed", err)
		}
	}
	return true, nil
}

func localRecord(doc *storage.Document, id string) (message.LocalRecord, error) {
	var rec message.LocalRecord
	raw, ok := doc.Records(storage.CollectionMessages)[id]
	if !ok {
		return rec, apperr.NotFound(id, "no such message")
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}
