package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const localBucket = "local"

// BoltMedium persists the document in a single BoltDB bucket. Bolt holds an
// exclusive file lock, so a second process opening the same path waits for
// the timeout and fails instead of racing on the document.
type BoltMedium struct {
	db    *bbolt.DB
	limit int64
}

func OpenBoltMedium(path string, limit int64) (*BoltMedium, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(localBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltMedium{db: db, limit: limit}, nil
}

func (m *BoltMedium) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

func (m *BoltMedium) Load(_ context.Context, key string) (string, bool, error) {
	var (
		out   string
		found bool
	)
	err := m.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(localBucket))
		if bucket == nil {
			return nil
		}
		if data := bucket.Get([]byte(key)); data != nil {
			out = string(data)
			found = true
		}
		return nil
	})
	return out, found, err
}

func (m *BoltMedium) Store(_ context.Context, key, value string) error {
	if err := checkLimit(m.limit, value); err != nil {
		return err
	}
	return m.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(localBucket))
		return bucket.Put([]byte(key), []byte(value))
	})
}
