package postgres

import (
	"context"

	"github.com/pkg/errors"

	"hackhub/internal/remote"
)

const (
	TableMessages    = remote.TableMessages
	TableAttachments = remote.TableAttachments
	TableProfiles    = remote.TableProfiles
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE,
		full_name TEXT,
		avatar_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		conversation_key TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		message_type TEXT NOT NULL DEFAULT 'text',
		attachment_id TEXT,
		file_url TEXT,
		file_name TEXT,
		file_size BIGINT,
		mime_type TEXT,
		compressed BOOLEAN NOT NULL DEFAULT FALSE,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_key, created_at)`,
	`CREATE TABLE IF NOT EXISTS message_attachments (
		id TEXT PRIMARY KEY,
		message_id TEXT,
		uploader_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		file_size BIGINT NOT NULL,
		bucket TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		public_url TEXT NOT NULL,
		upload_context TEXT NOT NULL DEFAULT 'message',
		checksum TEXT,
		compressed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables the hybrid router reads and writes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "postgres.Migrate")
		}
	}
	return nil
}
