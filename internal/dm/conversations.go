package dm

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"hackhub/internal/apperr"
	"hackhub/internal/message"
	"hackhub/internal/remote"
	"hackhub/internal/storage"
)

// GetMessages returns the conversation oldest first. With the remote up,
// messages that were stored locally during an earlier fallback are merged in.
func (s *Service) GetMessages(ctx context.Context, key message.ConversationKey) ([]message.Message, error) {
	if key.Low == "" || key.High == "" {
		return nil, apperr.Validation(key.String(), "conversation key needs two participants")
	}
	if s.useRemote(ctx) {
		msgs, err := s.remoteConversation(ctx, key)
		if err == nil {
			return s.withLocal(ctx, key, msgs), nil
		}
		if err := s.fallback(ctx, "GetMessages", err); err != nil {
			return nil, err
		}
	}
	return s.localConversation(ctx, key)
}

func (s *Service) remoteConversation(ctx context.Context, key message.ConversationKey) ([]message.Message, error) {
	rows, err := s.remote.Select(ctx, remote.TableMessages, remote.Query{
		Where:   []remote.Cond{remote.Eq("conversation_key", key.String())},
		OrderBy: "created_at",
	})
	if err != nil {
		return nil, err
	}
	msgs, err := remoteMessages(rows)
	if err != nil {
		return nil, err
	}
	sortChronological(msgs)
	return msgs, nil
}

func (s *Service) withLocal(ctx context.Context, key message.ConversationKey, msgs []message.Message) []message.Message {
	local, err := s.localConversation(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("conversation", key.String()).Msg("local messages not merged")
		return msgs
	}
	if len(local) == 0 {
		return msgs
	}
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		seen[m.ID] = true
	}
	for _, m := range local {
		if !seen[m.ID] {
			msgs = append(msgs, m)
		}
	}
	sortChronological(msgs)
	return msgs
}

func (s *Service) localConversation(ctx context.Context, key message.ConversationKey) ([]message.Message, error) {
	recs, err := storage.AllAs[message.LocalRecord](ctx, s.local, storage.CollectionMessages)
	if err != nil {
		return nil, err
	}
	out := make([]message.Message, 0)
	for _, rec := range recs {
		if message.NewConversationKey(rec.SenderID, rec.ReceiverID) == key {
			out = append(out, message.FromLocal(rec))
		}
	}
	sortChronological(out)
	return out, nil
}

// ListConversationPartners returns everyone selfID has exchanged messages
// with, most recent conversation first. Partners without a known profile come
// back with only their id.
func (s *Service) ListConversationPartners(ctx context.Context, selfID string) ([]message.User, error) {
	if selfID == "" {
		return nil, apperr.Validation("user", "user id is required")
	}
	if s.useRemote(ctx) {
		users, err := s.remotePartners(ctx, selfID)
		if err == nil {
			return users, nil
		}
		if err := s.fallback(ctx, "ListConversationPartners", err); err != nil {
			return nil, err
		}
	}
	return s.localPartners(ctx, selfID)
}

func (s *Service) remotePartners(ctx context.Context, selfID string) ([]message.User, error) {
	last := map[string]time.Time{}
	for _, col := range []string{"sender_id", "receiver_id"} {
		rows, err := s.remote.Select(ctx, remote.TableMessages, remote.Query{
			Where: []remote.Cond{remote.Eq(col, selfID)},
		})
		if err != nil {
			return nil, err
		}
		msgs, err := remoteMessages(rows)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			notePartner(last, m.Key().Other(selfID), m.CreatedAt)
		}
	}
	ids := byRecency(last)
	if len(ids) == 0 {
		return []message.User{}, nil
	}
	rows, err := s.remote.Select(ctx, remote.TableProfiles, remote.Query{
		Where: []remote.Cond{remote.In("id", ids)},
	})
	if err != nil {
		return nil, err
	}
	profiles := make(map[string]message.User, len(rows))
	for _, row := range rows {
		u, err := decodeRow[message.User](row)
		if err != nil {
			return nil, err
		}
		profiles[u.ID] = u
	}
	s.cacheProfiles(ctx, profiles)
	return resolvePartners(ids, profiles), nil
}

// cacheProfiles keeps remote profiles in the local store so partner names
// survive a later fallback.
func (s *Service) cacheProfiles(ctx context.Context, profiles map[string]message.User) {
	if len(profiles) == 0 || s.local == nil {
		return
	}
	err := s.local.Mutate(ctx, storage.CollectionProfiles, func(doc *storage.Document) (bool, error) {
		for id, u := range profiles {
			if err := doc.Put(storage.CollectionProfiles, id, u); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		s.log.Debug().Err(err).Msg("profile cache not updated")
	}
}

func (s *Service) localPartners(ctx context.Context, selfID string) ([]message.User, error) {
	last := map[string]time.Time{}
	profiles := map[string]message.User{}
	err := s.local.View(ctx, func(doc *storage.Document) error {
		for _, raw := range doc.Records(storage.CollectionMessages) {
			var rec message.LocalRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				continue
			}
			key := message.NewConversationKey(rec.SenderID, rec.ReceiverID)
			if key.Has(selfID) {
				notePartner(last, key.Other(selfID), rec.Created())
			}
		}
		for id, raw := range doc.Records(storage.CollectionProfiles) {
			var u message.User
			if err := json.Unmarshal(raw, &u); err == nil {
				if u.ID == "" {
					u.ID = id
				}
				profiles[u.ID] = u
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolvePartners(byRecency(last), profiles), nil
}

func notePartner(last map[string]time.Time, id string, at time.Time) {
	if prev, ok := last[id]; !ok || at.After(prev) {
		last[id] = at
	}
}

func byRecency(last map[string]time.Time) []string {
	ids := make([]string, 0, len(last))
	for id := range last {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if !last[ids[i]].Equal(last[ids[j]]) {
			return last[ids[i]].After(last[ids[j]])
		}
		return ids[i] < ids[j]
	})
	return ids
}

func resolvePartners(ids []string, profiles map[string]message.User) []message.User {
	out := make([]message.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := profiles[id]; ok {
			out = append(out, u)
			continue
		}
		out = append(out, message.User{ID: id})
	}
	return out
}

// MarkRead flags every unread message addressed to readerID in the
// conversation and returns how many changed. Local copies are marked as well
// since GetMessages shows them next to remote rows.
func (s *Service) MarkRead(ctx context.Context, key message.ConversationKey, readerID string) (int, error) {
	if !key.Has(readerID) {
		return 0, apperr.Validation(readerID, "reader is not part of the conversation")
	}
	var marked int
	if s.useRemote(ctx) {
		n, err := s.remote.Update(ctx, remote.TableMessages, []remote.Cond{
			remote.Eq("conversation_key", key.String()),
			remote.Eq("receiver_id", readerID),
			remote.Eq("is_read", false),
		}, remote.Row{"is_read": true})
		if err == nil {
			marked = int(n)
		} else if err := s.fallback(ctx, "MarkRead", err); err != nil {
			return 0, err
		}
	}
	n, err := s.markLocalRead(ctx, key, readerID)
	if err != nil {
		return marked, err
	}
	return marked + n, nil
}

func (s *Service) markLocalRead(ctx context.Context, key message.ConversationKey, readerID string) (int, error) {
	var n int
	err := s.local.Mutate(ctx, key.String(), func(doc *storage.Document) (bool, error) {
		for id, raw := range doc.Records(storage.CollectionMessages) {
			var rec message.LocalRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				continue
			}
			if rec.Read || rec.ReceiverID != readerID || message.NewConversationKey(rec.SenderID, rec.ReceiverID) != key {
				continue
			}
			rec.Read = true
			if err := doc.Put(storage.CollectionMessages, id, rec); err != nil {
				return false, err
			}
			n++
		}
		return n > 0, nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.LocalWrites.Add(1)
	}
	return n, nil
}
