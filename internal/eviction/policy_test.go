package eviction

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackhub/internal/message"
	"hackhub/internal/storage"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	return storage.NewLocalStore(storage.NewMemoryMedium(0), storage.Options{Logger: zerolog.Nop()})
}

func textRecord(id, from, to string, at time.Time) message.LocalRecord {
	return message.NewLocalRecord(message.Message{
		ID: id, SenderID: from, ReceiverID: to, Content: "text " + id,
		Kind: message.KindText, CreatedAt: at,
	})
}

func fileRecord(id, from, to string, at time.Time) message.LocalRecord {
	return message.NewLocalRecord(message.Message{
		ID: id, SenderID: from, ReceiverID: to, Content: "file " + id,
		Kind: message.KindImage, CreatedAt: at,
		Attachment: &message.Attachment{
			ID: "att-" + id, FileName: id + ".jpg", MimeType: "image/jpeg",
			Size: 3, Locator: "data:image/jpeg;base64,AAAA",
		},
	})
}

func seed(t *testing.T, store *storage.LocalStore, recs ...message.LocalRecord) {
	t.Helper()
	err := store.Mutate(context.Background(), "seed", func(doc *storage.Document) (bool, error) {
		for _, rec := range recs {
			if err := doc.Put(storage.CollectionMessages, rec.ID, rec); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	require.NoError(t, err)
}

func load(t *testing.T, store *storage.LocalStore) map[string]message.LocalRecord {
	t.Helper()
	recs, err := storage.AllAs[message.LocalRecord](context.Background(), store, storage.CollectionMessages)
	require.NoError(t, err)
	out := make(map[string]message.LocalRecord, len(recs))
	for _, r := range recs {
		out[r.ID] = r
	}
	return out
}

func TestCleanupKeepsNewestPerPartition(t *testing.T) {
	store := newStore(t)
	var recs []message.LocalRecord
	for i := 0; i < 40; i++ {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = to, from
		}
		recs = append(recs, textRecord(fmt.Sprintf("t%02d", i), from, to, baseTime.Add(time.Duration(i)*time.Minute)))
	}
	for i := 0; i < 15; i++ {
		recs = append(recs, fileRecord(fmt.Sprintf("f%02d", i), "alice", "bob", baseTime.Add(time.Duration(i)*time.Minute)))
	}
	seed(t, store, recs...)

	removed, err := NewPolicy(store, DefaultLimits(), zerolog.Nop()).Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, removed)

	left := load(t, store)
	var texts, files int
	for id, r := range left {
		if r.HasFile() {
			files++
		} else {
			texts++
		}
		switch id[0] {
		case 't':
			assert.GreaterOrEqual(t, id, "t10", "oldest text messages should go first")
		case 'f':
			assert.GreaterOrEqual(t, id, "f05", "oldest file messages should go first")
		}
	}
	assert.Equal(t, 30, texts)
	assert.Equal(t, 10, files)
}

func TestCleanupScopesPerConversation(t *testing.T) {
	store := newStore(t)
	var recs []message.LocalRecord
	for i := 0; i < 31; i++ {
		recs = append(recs, textRecord(fmt.Sprintf("ab%02d", i), "a", "b", baseTime.Add(time.Duration(i)*time.Second)))
		recs = append(recs, textRecord(fmt.Sprintf("ac%02d", i), "c", "a", baseTime.Add(time.Duration(i)*time.Second)))
	}
	recs = append(recs, textRecord("lonely", "x", "y", baseTime))
	seed(t, store, recs...)

	removed, err := NewPolicy(store, DefaultLimits(), zerolog.Nop()).Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	left := load(t, store)
	assert.NotContains(t, left, "ab00")
	assert.NotContains(t, left, "ac00")
	assert.Contains(t, left, "lonely")
}

func TestCleanupNothingToDo(t *testing.T) {
	store := newStore(t)
	seed(t, store, textRecord("one", "a", "b", baseTime))
	removed, err := NewPolicy(store, DefaultLimits(), zerolog.Nop()).Cleanup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestAgeCleanupBoundary(t *testing.T) {
	store := newStore(t)
	now := baseTime
	seed(t, store,
		fileRecord("young", "a", "b", now.Add(-7*24*time.Hour+time.Second)),
		fileRecord("old", "a", "b", now.Add(-7*24*time.Hour-time.Second)),
		textRecord("ancient-text", "a", "b", now.Add(-30*24*time.Hour)),
	)

	policy := NewPolicy(store, DefaultLimits(), zerolog.Nop()).WithClock(func() time.Time { return now })
	removed, err := policy.AgeCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	left := load(t, store)
	assert.Contains(t, left, "young")
	assert.NotContains(t, left, "old")
	assert.Contains(t, left, "ancient-text", "age rule only applies to file-bearing messages")
}

func TestAgeCleanupIgnoresConversationLimits(t *testing.T) {
	store := newStore(t)
	now := baseTime
	var recs []message.LocalRecord
	for i := 0; i < 12; i++ {
		recs = append(recs, fileRecord(fmt.Sprintf("f%02d", i), "a", "b", now.Add(-time.Duration(i)*time.Hour)))
	}
	for i := 0; i < 35; i++ {
		recs = append(recs, textRecord(fmt.Sprintf("t%02d", i), "a", "b", now.Add(-time.Duration(i)*time.Minute)))
	}
	recs = append(recs, fileRecord("stale", "a", "b", now.Add(-8*24*time.Hour)))
	seed(t, store, recs...)

	policy := NewPolicy(store, DefaultLimits(), zerolog.Nop()).WithClock(func() time.Time { return now })
	removed, err := policy.AgeCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	left := load(t, store)
	assert.Len(t, left, 47)
	assert.NotContains(t, left, "stale")
	assert.Contains(t, left, "f11")
	assert.Contains(t, left, "t34")
}

func TestStripAllKeepsMessagesAndText(t *testing.T) {
	store := newStore(t)
	seed(t, store,
		fileRecord("f1", "a", "b", baseTime),
		fileRecord("f2", "b", "c", baseTime.Add(time.Minute)),
		textRecord("t1", "a", "b", baseTime.Add(2*time.Minute)),
	)
	before := load(t, store)

	stripped, err := NewPolicy(store, DefaultLimits(), zerolog.Nop()).StripAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stripped)

	after := load(t, store)
	require.Len(t, after, len(before))
	for id, rec := range after {
		assert.Nil(t, rec.FileURL, id)
		assert.Nil(t, rec.FileName, id)
		assert.Nil(t, rec.FileSize, id)
		assert.Nil(t, rec.MimeType, id)
		assert.Nil(t, rec.AttachmentID, id)
		assert.Equal(t, string(message.KindText), rec.Type)
		assert.Equal(t, before[id].Created(), rec.Created())
		if before[id].HasFile() {
			assert.True(t, strings.HasPrefix(rec.Content, message.RemovedMarker), id)
			assert.Equal(t, message.RemovedMarker+before[id].Content, rec.Content)
		} else {
			assert.Equal(t, before[id].Content, rec.Content)
		}
	}

	again, err := NewPolicy(store, DefaultLimits(), zerolog.Nop()).StripAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again)
}
