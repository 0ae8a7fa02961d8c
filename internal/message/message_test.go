package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationKeyIsOrderIndependent(t *testing.T) {
	pairs := [][2]string{{"alice", "bob"}, {"b", "a"}, {"same", "same"}, {"", "x"}}
	for _, p := range pairs {
		assert.Equal(t, NewConversationKey(p[0], p[1]), NewConversationKey(p[1], p[0]))
	}
	key := NewConversationKey("zed", "amy")
	assert.Equal(t, "amy:zed", key.String())
	assert.Equal(t, "amy", key.Other("zed"))
	assert.True(t, key.Has("amy"))
	assert.False(t, key.Has("bob"))
}

func TestParseConversationKey(t *testing.T) {
	key, err := ParseConversationKey("u2:u1")
	require.NoError(t, err)
	assert.Equal(t, NewConversationKey("u1", "u2"), key)

	_, err = ParseConversationKey("nope")
	assert.Error(t, err)
}

func TestKindForMime(t *testing.T) {
	assert.Equal(t, KindImage, KindForMime("image/PNG"))
	assert.Equal(t, KindVideo, KindForMime("video/mp4"))
	assert.Equal(t, KindAudio, KindForMime("audio/ogg"))
	assert.Equal(t, KindDocument, KindForMime("application/pdf"))
	assert.False(t, KindText.IsFile())
	assert.True(t, KindDocument.IsFile())
}

func TestReadStateConvergesAcrossShapes(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	remote := FromRemote(RemoteRecord{
		ID: "m1", SenderID: "a", ReceiverID: "b", Content: "hi",
		MessageType: "text", IsRead: true, CreatedAt: created,
	})
	local := FromLocal(LocalRecord{
		ID: "m1", SenderID: "a", ReceiverID: "b", Content: "hi",
		Type: "text", Read: true, Timestamp: created.UnixMilli(),
	})
	assert.Equal(t, remote, local)

	rj, err := json.Marshal(remote)
	require.NoError(t, err)
	lj, err := json.Marshal(local)
	require.NoError(t, err)
	assert.JSONEq(t, string(rj), string(lj))
	assert.Contains(t, string(rj), `"read":true`)
}

func TestLocalCreatedAlias(t *testing.T) {
	rec := LocalRecord{CreatedAt: "2024-01-02T03:04:05Z"}
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), rec.Created())
	rec.Timestamp = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, 2025, rec.Created().Year())
}

func TestLocalRecordRoundTripKeepsAttachment(t *testing.T) {
	m := Message{
		ID: "x", SenderID: "a", ReceiverID: "b", Kind: KindImage,
		CreatedAt: time.UnixMilli(1700000000000).UTC(),
		Attachment: &Attachment{ID: "att", FileName: "p.jpg", MimeType: "image/jpeg",
			Size: 10, Locator: "data:image/jpeg;base64,AA==", Context: "message", Compressed: true},
	}
	got := FromLocal(NewLocalRecord(m))
	assert.Equal(t, m, got)
}

func TestStripKeepsContent(t *testing.T) {
	rec := NewLocalRecord(Message{ID: "x", Kind: KindDocument, Content: "report",
		Attachment: &Attachment{ID: "a", Locator: "data:,", FileName: "r.pdf"}})
	rec.Strip()
	m := FromLocal(rec)
	assert.Equal(t, KindText, m.Kind)
	assert.Nil(t, m.Attachment)
	assert.Equal(t, RemovedMarker+"report", m.Content)
	assert.Nil(t, rec.FileURL)
	assert.Nil(t, rec.FileSize)
}
