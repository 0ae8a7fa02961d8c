package dm

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"hackhub/internal/apperr"
	"hackhub/internal/attachment"
	"hackhub/internal/message"
	"hackhub/internal/remote"
	"hackhub/internal/storage"
)

func checkParticipants(sender, receiver string) error {
	if strings.TrimSpace(sender) == "" {
		return apperr.Validation("sender", "sender id is required")
	}
	if strings.TrimSpace(receiver) == "" {
		return apperr.Validation("receiver", "receiver id is required")
	}
	return nil
}

// SendText stores a text message.
func (s *Service) SendText(ctx context.Context, sender, receiver, content string) (message.Message, error) {
	if err := checkParticipants(sender, receiver); err != nil {
		return message.Message{}, err
	}
	if strings.TrimSpace(content) == "" {
		return message.Message{}, apperr.Validation("content", "message is empty")
	}
	if s.useRemote(ctx) {
		row, err := s.remote.Insert(ctx, remote.TableMessages, textRow(uuid.NewString(), sender, receiver, content, s.timestamp()))
		if err == nil {
			return s.insertedMessage(row)
		}
		if err := s.fallback(ctx, "SendText", err); err != nil {
			return message.Message{}, err
		}
	}
	m := message.Message{
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		Kind:       message.KindText,
		CreatedAt:  s.timestamp(),
	}
	return s.storeLocal(ctx, "content", m)
}

// SendFile validates, recompresses and stores one attachment. The payload is
// validated against the ceiling of the backend about to store it, before any
// image work, and failures are returned before anything is written.
func (s *Service) SendFile(ctx context.Context, sender, receiver string, file attachment.File, content string) (message.Message, error) {
	if err := checkParticipants(sender, receiver); err != nil {
		return message.Message{}, err
	}
	limits := s.pipeline.Limits()
	remotePath := s.objects != nil && s.useRemote(ctx)
	ceiling := limits.LocalMaxBytes
	if remotePath {
		ceiling = limits.RemoteMaxBytes
	}
	prep, err := s.pipeline.Prepare(file, ceiling)
	if err != nil {
		s.metrics.RejectedUploads.Add(1)
		return message.Message{}, err
	}
	if remotePath {
		m, err := s.sendFileRemote(ctx, sender, receiver, prep, content)
		if err == nil {
			return m, nil
		}
		if err := s.fallback(ctx, "SendFile", err); err != nil {
			return message.Message{}, err
		}
	}
	att, err := s.pipeline.PersistLocal(prep)
	if err != nil {
		s.metrics.RejectedUploads.Add(1)
		return message.Message{}, err
	}
	m := message.Message{
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		Kind:       message.KindForMime(att.MimeType),
		Attachment: &att,
		CreatedAt:  s.timestamp(),
	}
	return s.storeLocal(ctx, att.FileName, m)
}

// sendFileRemote uploads the object, then writes the attachment and message
// rows. Anything written before a failure is removed again.
func (s *Service) sendFileRemote(ctx context.Context, sender, receiver string, prep attachment.Prepared, content string) (message.Message, error) {
	bucket := s.buckets.For("message")
	up, err := s.pipeline.PersistRemote(ctx, s.objects, bucket, sender, "message", prep)
	if err != nil {
		return message.Message{}, err
	}
	now := s.timestamp()
	id := uuid.NewString()
	if _, err := s.remote.Insert(ctx, remote.TableAttachments, attachmentRow(id, sender, up, now)); err != nil {
		s.discardUpload(ctx, up)
		return message.Message{}, err
	}
	row, err := s.remote.Insert(ctx, remote.TableMessages, fileRow(id, sender, receiver, content, up, now))
	if err != nil {
		if _, derr := s.remote.Delete(ctx, remote.TableAttachments, []remote.Cond{remote.Eq("id", up.Attachment.ID)}); derr != nil {
			s.log.Warn().Err(derr).Str("attachment", up.Attachment.ID).Msg("orphaned attachment row")
		}
		s.discardUpload(ctx, up)
		return message.Message{}, err
	}
	m, err := s.insertedMessage(row)
	if err != nil {
		return message.Message{}, err
	}
	if m.Attachment != nil {
		m.Attachment.Checksum = up.Attachment.Checksum
	}
	return m, nil
}

func (s *Service) discardUpload(ctx context.Context, up attachment.Upload) {
	if err := s.objects.Remove(ctx, up.Bucket, up.Path); err != nil {
		s.log.Warn().Err(err).Str("bucket", up.Bucket).Str("path", up.Path).Msg("orphaned object")
	}
}

// SendFiles sends each file as its own message. content goes with the first
// file. Files that fail are reported in an *apperr.BatchError while the rest
// are still sent.
func (s *Service) SendFiles(ctx context.Context, sender, receiver string, files []attachment.File, content string) ([]message.Message, error) {
	if err := checkParticipants(sender, receiver); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apperr.Validation("files", "no files given")
	}
	sent := make([]message.Message, 0, len(files))
	var batch apperr.BatchError
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		caption := ""
		if i == 0 {
			caption = content
		}
		m, err := s.SendFile(ctx, sender, receiver, f, caption)
		if err != nil {
			name := f.Name
			if item := apperr.ItemOf(err); item != "" {
				name = item
			}
			batch.Add(name, err)
			continue
		}
		sent = append(sent, m)
	}
	return sent, batch.Err()
}

func (s *Service) insertedMessage(row remote.Row) (message.Message, error) {
	rec, err := decodeRow[message.RemoteRecord](row)
	if err != nil {
		return message.Message{}, err
	}
	return message.FromRemote(rec), nil
}

// storeLocal assigns a local id and writes the record. item names what a
// quota failure should point at.
func (s *Service) storeLocal(ctx context.Context, item string, m message.Message) (message.Message, error) {
	m.ID = storage.NewID(m.CreatedAt)
	rec := message.NewLocalRecord(m)
	err := s.local.Mutate(ctx, item, func(doc *storage.Document) (bool, error) {
		return true, doc.Put(storage.CollectionMessages, m.ID, rec)
	})
	if err != nil {
		return message.Message{}, err
	}
	s.metrics.LocalWrites.Add(1)
	return message.FromLocal(rec), nil
}
