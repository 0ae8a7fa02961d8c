package storage

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hackhub/internal/apperr"
	"hackhub/internal/crypto"
)

const (
	// DefaultKey is the medium slot holding every local collection.
	DefaultKey = "hackhub_local_db"

	CollectionMessages = "messages"
	CollectionProfiles = "profiles"

	documentVersion = 1
)

// Document is the whole local state. Each collection maps record id to the
// record's JSON so records stay individually addressable.
type Document struct {
	Version     int                                   `json:"version"`
	Revision    int64                                 `json:"revision"`
	UpdatedAt   int64                                 `json:"updatedAt"`
	Collections map[string]map[string]json.RawMessage `json:"collections"`
}

func newDocument() *Document {
	return &Document{Version: documentVersion, Collections: map[string]map[string]json.RawMessage{}}
}

// Records returns the collection, creating it when missing.
func (d *Document) Records(collection string) map[string]json.RawMessage {
	recs, ok := d.Collections[collection]
	if !ok {
		recs = map[string]json.RawMessage{}
		d.Collections[collection] = recs
	}
	return recs
}

// Put encodes v under id.
func (d *Document) Put(collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	d.Records(collection)[id] = data
	return nil
}

func (d *Document) Remove(collection, id string) bool {
	recs := d.Records(collection)
	if _, ok := recs[id]; !ok {
		return false
	}
	delete(recs, id)
	return true
}

// Quota is derived from the stored document on demand.
type Quota struct {
	EstimatedBytes int64 `json:"estimated_bytes"`
	SoftLimit      int64 `json:"soft_limit"`
	HardLimit      int64 `json:"hard_limit"`
	NearLimit      bool  `json:"near_limit"`
}

// Options configure a LocalStore.
type Options struct {
	Key       string
	SoftLimit int64
	HardLimit int64
	Sealer    *crypto.Sealer
	Logger    zerolog.Logger
	Now       func() time.Time
}

// LocalStore is the embedded single-document store. Every mutation loads the
// full document, applies the change and writes the full document back.
// Writers inside one process are serialized; see DESIGN.md for the
// cross-process story.
type LocalStore struct {
	mu     sync.Mutex
	medium Medium
	key    string
	soft   int64
	hard   int64
	sealer *crypto.Sealer
	log    zerolog.Logger
	now    func() time.Time
}

func NewLocalStore(medium Medium, opts Options) *LocalStore {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &LocalStore{
		medium: medium,
		key:    opts.Key,
		soft:   opts.SoftLimit,
		hard:   opts.HardLimit,
		sealer: opts.Sealer,
		log:    opts.Logger,
		now:    opts.Now,
	}
}

func (s *LocalStore) Close() error {
	if s == nil || s.medium == nil {
		return nil
	}
	return s.medium.Close()
}

// NewID returns a timestamp-prefixed id with a random suffix so records added
// within the same millisecond do not collide.
func NewID(now time.Time) string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d-%d", now.UnixMilli(), now.UnixNano())
	}
	return fmt.Sprintf("%d-%x", now.UnixMilli(), b)
}

func (s *LocalStore) load(ctx context.Context) (*Document, error) {
	raw, ok, err := s.medium.Load(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load local document: %w", err)
	}
	if !ok || raw == "" {
		return newDocument(), nil
	}
	plain, err := s.sealer.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("open local document: %w", err)
	}
	doc := newDocument()
	if err := json.Unmarshal([]byte(plain), doc); err != nil {
		return nil, fmt.Errorf("decode local document: %w", err)
	}
	if doc.Collections == nil {
		doc.Collections = map[string]map[string]json.RawMessage{}
	}
	return doc, nil
}

// save rewrites the whole document. item names what the caller was writing
// so a quota failure can point at it.
func (s *LocalStore) save(ctx context.Context, doc *Document, item string) error {
	doc.Revision++
	doc.UpdatedAt = s.now().UnixMilli()
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode local document: %w", err)
	}
	stored, err := s.sealer.Seal(string(data))
	if err != nil {
		return fmt.Errorf("seal local document: %w", err)
	}
	if err := s.medium.Store(ctx, s.key, stored); err != nil {
		if errors.Is(err, ErrMediumFull) {
			return apperr.QuotaExceeded(item, err)
		}
		return fmt.Errorf("store local document: %w", err)
	}
	if size := EstimateSize(stored); s.soft > 0 && size > s.soft {
		s.log.Warn().
			Int64("estimated_bytes", size).
			Int64("soft_limit", s.soft).
			Msg("local store above soft limit, run cleanup")
	}
	return nil
}

// Mutate loads the document, runs fn and writes the document back when fn
// reports a change.
func (s *LocalStore) Mutate(ctx context.Context, item string, fn func(doc *Document) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	changed, err := fn(doc)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.save(ctx, doc, item)
}

// View runs fn against a freshly loaded document without writing.
func (s *LocalStore) View(ctx context.Context, fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	return fn(doc)
}

// Get decodes the record into out.
func (s *LocalStore) Get(ctx context.Context, collection, id string, out any) error {
	return s.View(ctx, func(doc *Document) error {
		data, ok := doc.Records(collection)[id]
		if !ok {
			return apperr.NotFound(id, fmt.Sprintf("no %s record", collection))
		}
		return json.Unmarshal(data, out)
	})
}

// Add stores rec and returns its id. A record without an "id" field gets a
// generated one.
func (s *LocalStore) Add(ctx context.Context, collection string, rec any) (string, error) {
	fields, err := toFields(rec)
	if err != nil {
		return "", err
	}
	id, _ := fields["id"].(string)
	if id == "" {
		id = NewID(s.now())
		fields["id"] = id
	}
	err = s.Mutate(ctx, id, func(doc *Document) (bool, error) {
		return true, doc.Put(collection, id, fields)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update shallow-merges patch into the record. A nil value stores null.
func (s *LocalStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	return s.Mutate(ctx, id, func(doc *Document) (bool, error) {
		data, ok := doc.Records(collection)[id]
		if !ok {
			return false, apperr.NotFound(id, fmt.Sprintf("no %s record", collection))
		}
		fields := map[string]any{}
		if err := json.Unmarshal(data, &fields); err != nil {
			return false, err
		}
		for k, v := range patch {
			if k == "id" {
				continue
			}
			fields[k] = v
		}
		return true, doc.Put(collection, id, fields)
	})
}

func (s *LocalStore) Delete(ctx context.Context, collection, id string) error {
	return s.Mutate(ctx, id, func(doc *Document) (bool, error) {
		if !doc.Remove(collection, id) {
			return false, apperr.NotFound(id, fmt.Sprintf("no %s record", collection))
		}
		return true, nil
	})
}

// Clear drops every record of the collection and returns how many went.
func (s *LocalStore) Clear(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.Mutate(ctx, collection, func(doc *Document) (bool, error) {
		n = len(doc.Records(collection))
		if n == 0 {
			return false, nil
		}
		doc.Collections[collection] = map[string]json.RawMessage{}
		return true, nil
	})
	return n, err
}

// All returns the raw records of a collection ordered by id.
func (s *LocalStore) All(ctx context.Context, collection string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := s.View(ctx, func(doc *Document) error {
		recs := doc.Records(collection)
		ids := make([]string, 0, len(recs))
		for id := range recs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out = make([]json.RawMessage, 0, len(ids))
		for _, id := range ids {
			out = append(out, recs[id])
		}
		return nil
	})
	return out, err
}

// AllAs decodes every record of a collection into T, skipping records that
// no longer decode.
func AllAs[T any](ctx context.Context, s *LocalStore, collection string) ([]T, error) {
	raw, err := s.All(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, data := range raw {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			s.log.Debug().Err(err).Str("collection", collection).Msg("skip undecodable record")
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// EstimatedSizeBytes reports the stored document size as UTF-16 length x 2.
func (s *LocalStore) EstimatedSizeBytes(ctx context.Context) (int64, error) {
	raw, _, err := s.medium.Load(ctx, s.key)
	if err != nil {
		return 0, err
	}
	return EstimateSize(raw), nil
}

func (s *LocalStore) Quota(ctx context.Context) (Quota, error) {
	size, err := s.EstimatedSizeBytes(ctx)
	if err != nil {
		return Quota{}, err
	}
	return Quota{
		EstimatedBytes: size,
		SoftLimit:      s.soft,
		HardLimit:      s.hard,
		NearLimit:      s.soft > 0 && size > s.soft,
	}, nil
}

func toFields(rec any) (map[string]any, error) {
	if m, ok := rec.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("record must encode as an object: %w", err)
	}
	return fields, nil
}
