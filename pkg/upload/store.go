package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	mterrors "github.com/otherjamesbrown/minute-cli/pkg/errors"
)

// SessionStore persists resumable upload sessions so an interrupted upload
// can continue in a later process.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, uploadID string) (*Session, error)
	Delete(ctx context.Context, uploadID string) error
}

// FileSessionStore keeps one JSON file per session under a directory.
type FileSessionStore struct {
	dir string
}

// NewFileSessionStore creates a FileSessionStore rooted at dir.
func NewFileSessionStore(dir string) *FileSessionStore {
	return &FileSessionStore{dir: dir}
}

func (s *FileSessionStore) path(uploadID string) string {
	return filepath.Join(s.dir, uploadID+".json")
}

func (s *FileSessionStore) Save(ctx context.Context, session *Session) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := os.WriteFile(s.path(session.UploadID), data, 0o644); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

func (s *FileSessionStore) Get(ctx context.Context, uploadID string) (*Session, error) {
	data, err := os.ReadFile(s.path(uploadID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("upload session %s: %w", uploadID, mterrors.ErrNotFound)
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &session, nil
}

func (s *FileSessionStore) Delete(ctx context.Context, uploadID string) error {
	err := os.Remove(s.path(uploadID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// RedisSessionStore keeps sessions in Redis with an expiry, so abandoned
// uploads clean themselves up.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSessionStore creates a RedisSessionStore. A zero ttl keeps
// sessions for 24 hours.
func NewRedisSessionStore(client *redis.Client, prefix string, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if prefix == "" {
		prefix = "minute"
	}
	return &RedisSessionStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSessionStore) key(uploadID string) string {
	return s.prefix + ":upload:" + uploadID
}

func (s *RedisSessionStore) Save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(session.UploadID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, uploadID string) (*Session, error) {
	data, err := s.client.Get(ctx, s.key(uploadID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("upload session %s: %w", uploadID, mterrors.ErrNotFound)
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, uploadID string) error {
	if err := s.client.Del(ctx, s.key(uploadID)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
