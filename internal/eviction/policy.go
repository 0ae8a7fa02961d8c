// Package eviction bounds the local messages collection. None of these run on
// their own; maintenance callers invoke them.
package eviction

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"hackhub/internal/message"
	"hackhub/internal/storage"
)

const (
	DefaultTextPerConversation  = 30
	DefaultFilesPerConversation = 10
	DefaultFileMaxAge           = 7 * 24 * time.Hour
)

// Limits are the retention tiers applied per conversation.
type Limits struct {
	TextPerConversation  int
	FilesPerConversation int
	FileMaxAge           time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		TextPerConversation:  DefaultTextPerConversation,
		FilesPerConversation: DefaultFilesPerConversation,
		FileMaxAge:           DefaultFileMaxAge,
	}
}

type Policy struct {
	store  *storage.LocalStore
	limits Limits
	now    func() time.Time
	log    zerolog.Logger
}

func NewPolicy(store *storage.LocalStore, limits Limits, log zerolog.Logger) *Policy {
	return &Policy{store: store, limits: limits, now: time.Now, log: log}
}

// WithClock swaps the time source.
func (p *Policy) WithClock(now func() time.Time) *Policy {
	p.now = now
	return p
}

type entry struct {
	id  string
	rec message.LocalRecord
}

func decodeAll(doc *storage.Document) []entry {
	recs := doc.Records(storage.CollectionMessages)
	out := make([]entry, 0, len(recs))
	for id, raw := range recs {
		var rec message.LocalRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		out = append(out, entry{id: id, rec: rec})
	}
	return out
}

func newestFirst(entries []entry) {
	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].rec.Created(), entries[j].rec.Created()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].id > entries[j].id
	})
}

// Cleanup keeps the newest text-bearing and file-bearing messages of every
// conversation up to the configured counts and removes the rest.
func (p *Policy) Cleanup(ctx context.Context) (int, error) {
	var removed int
	err := p.store.Mutate(ctx, storage.CollectionMessages, func(doc *storage.Document) (bool, error) {
		removed = p.trimConversations(doc)
		return removed > 0, nil
	})
	if err != nil {
		return 0, err
	}
	p.log.Info().Int("removed", removed).Msg("standard cleanup finished")
	return removed, nil
}

// AgeCleanup removes file-bearing messages strictly older than FileMaxAge.
// Text and the per-conversation limits are left alone.
func (p *Policy) AgeCleanup(ctx context.Context) (int, error) {
	var removed int
	err := p.store.Mutate(ctx, storage.CollectionMessages, func(doc *storage.Document) (bool, error) {
		removed = p.dropExpiredFiles(doc)
		return removed > 0, nil
	})
	if err != nil {
		return 0, err
	}
	p.log.Info().Int("removed", removed).Dur("max_age", p.limits.FileMaxAge).Msg("age cleanup finished")
	return removed, nil
}

// StripAll removes every attachment but keeps each message and its text.
func (p *Policy) StripAll(ctx context.Context) (int, error) {
	var stripped int
	err := p.store.Mutate(ctx, storage.CollectionMessages, func(doc *storage.Document) (bool, error) {
		for _, e := range decodeAll(doc) {
			if !e.rec.HasFile() {
				continue
			}
			e.rec.Strip()
			if err := doc.Put(storage.CollectionMessages, e.id, e.rec); err != nil {
				return false, err
			}
			stripped++
		}
		return stripped > 0, nil
	})
	if err != nil {
		return 0, err
	}
	p.log.Warn().Int("stripped", stripped).Msg("stripped all local attachments")
	return stripped, nil
}

func (p *Policy) trimConversations(doc *storage.Document) int {
	type partitions struct{ text, files []entry }
	byKey := map[message.ConversationKey]*partitions{}
	for _, e := range decodeAll(doc) {
		key := message.NewConversationKey(e.rec.SenderID, e.rec.ReceiverID)
		part, ok := byKey[key]
		if !ok {
			part = &partitions{}
			byKey[key] = part
		}
		if e.rec.HasFile() {
			part.files = append(part.files, e)
		} else {
			part.text = append(part.text, e)
		}
	}

	var removed int
	evict := func(entries []entry, keep int) {
		if len(entries) <= keep {
			return
		}
		newestFirst(entries)
		for _, e := range entries[keep:] {
			if doc.Remove(storage.CollectionMessages, e.id) {
				removed++
			}
		}
	}
	for _, part := range byKey {
		evict(part.text, p.limits.TextPerConversation)
		evict(part.files, p.limits.FilesPerConversation)
	}
	return removed
}

func (p *Policy) dropExpiredFiles(doc *storage.Document) int {
	cutoff := p.now().Add(-p.limits.FileMaxAge)
	var removed int
	for _, e := range decodeAll(doc) {
		if !e.rec.HasFile() {
			continue
		}
		if e.rec.Created().Before(cutoff) && doc.Remove(storage.CollectionMessages, e.id) {
			removed++
		}
	}
	return removed
}
