package dm

import (
	"context"
	"encoding/json"

	"hackhub/internal/message"
	"hackhub/internal/remote"
	"hackhub/internal/storage"
)

const (
	BackendRemote = "remote"
	BackendLocal  = "local"
)

// Usage summarizes stored attachments on the active backend. Local is always
// the local document's quota state, whichever backend served the counts.
type Usage struct {
	Backend      string        `json:"backend"`
	MessageCount int64         `json:"message_count"`
	FileCount    int64         `json:"file_count"`
	TotalBytes   int64         `json:"total_bytes"`
	Local        storage.Quota `json:"local"`
}

func (s *Service) GetStorageUsage(ctx context.Context) (Usage, error) {
	quota, err := s.local.Quota(ctx)
	if err != nil {
		return Usage{}, err
	}
	if s.useRemote(ctx) {
		u, err := s.remoteUsage(ctx)
		if err == nil {
			u.Local = quota
			return u, nil
		}
		if err := s.fallback(ctx, "GetStorageUsage", err); err != nil {
			return Usage{}, err
		}
	}
	u := Usage{Backend: BackendLocal, Local: quota}
	err = s.local.View(ctx, func(doc *storage.Document) error {
		for _, raw := range doc.Records(storage.CollectionMessages) {
			var rec message.LocalRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				continue
			}
			u.MessageCount++
			if rec.HasFile() {
				u.FileCount++
				if rec.FileSize != nil {
					u.TotalBytes += *rec.FileSize
				}
			}
		}
		return nil
	})
	return u, err
}

func (s *Service) remoteUsage(ctx context.Context) (Usage, error) {
	total, err := s.remote.Count(ctx, remote.TableMessages, nil)
	if err != nil {
		return Usage{}, err
	}
	rows, err := s.remote.Select(ctx, remote.TableAttachments, remote.Query{
		Where: []remote.Cond{remote.Eq("upload_context", "message")},
	})
	if err != nil {
		return Usage{}, err
	}
	u := Usage{Backend: BackendRemote, MessageCount: total, FileCount: int64(len(rows))}
	for _, row := range rows {
		u.TotalBytes += rowInt(row, "file_size")
	}
	return u, nil
}

// Cleanup applies the per-conversation retention limits to local storage.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	return s.evicted(s.policy.Cleanup(ctx))
}

// AggressiveCleanup drops file-bearing messages past the retention window.
// Text messages are never touched.
func (s *Service) AggressiveCleanup(ctx context.Context) (int, error) {
	return s.evicted(s.policy.AgeCleanup(ctx))
}

// StripAllAttachments removes every local attachment, keeping the messages.
func (s *Service) StripAllAttachments(ctx context.Context) (int, error) {
	return s.evicted(s.policy.StripAll(ctx))
}

// ClearLocalMessages empties the local messages collection.
func (s *Service) ClearLocalMessages(ctx context.Context) (int, error) {
	n, err := s.local.Clear(ctx, storage.CollectionMessages)
	if err != nil {
		return 0, err
	}
	s.log.Warn().Int("removed", n).Msg("local messages cleared")
	return s.evicted(n, nil)
}

func (s *Service) evicted(n int, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	s.metrics.Evicted.Add(uint64(n))
	return n, nil
}
