package meeting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"

	mterrors "github.com/otherjamesbrown/minute-cli/pkg/errors"
)

// storeKey is the single key the whole meeting list lives under.
const storeKey = "meetings"

// Store is the whole-list persistence contract the pipeline depends on.
// Load returns an empty slice when nothing has been saved yet; Save always
// overwrites the entire list.
type Store interface {
	Load(ctx context.Context) ([]*Meeting, error)
	Save(ctx context.Context, meetings []*Meeting) error
}

// Get returns the meeting with the given id from the store, or ErrNotFound.
func Get(ctx context.Context, s Store, id string) (*Meeting, error) {
	meetings, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range meetings {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, fmt.Errorf("meeting %s: %w", id, mterrors.ErrNotFound)
}

// Upsert replaces the meeting with the same id, or appends it, and saves the
// whole list back.
func Upsert(ctx context.Context, s Store, m *Meeting) error {
	meetings, err := s.Load(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range meetings {
		if existing.ID == m.ID {
			meetings[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		meetings = append(meetings, m)
	}
	return s.Save(ctx, meetings)
}

// Remove deletes the meeting with the given id. Removing a missing id is a
// no-op.
func Remove(ctx context.Context, s Store, id string) error {
	meetings, err := s.Load(ctx)
	if err != nil {
		return err
	}
	kept := meetings[:0]
	for _, m := range meetings {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	return s.Save(ctx, kept)
}

// FileStore persists the meeting list as a single JSON document on disk.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore rooted at dir. The list is written to
// <dir>/meetings.json.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, storeKey+".json")}
}

// Load reads the whole meeting list. A missing file yields an empty list.
func (s *FileStore) Load(ctx context.Context) ([]*Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*Meeting{}, nil
		}
		return nil, fmt.Errorf("reading meeting list: %w", err)
	}

	var meetings []*Meeting
	if err := json.Unmarshal(data, &meetings); err != nil {
		return nil, fmt.Errorf("decoding meeting list: %w", err)
	}
	if meetings == nil {
		meetings = []*Meeting{}
	}
	return meetings, nil
}

// Save overwrites the whole meeting list atomically (write to a temp file,
// then rename into place).
func (s *FileStore) Save(ctx context.Context, meetings []*Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if meetings == nil {
		meetings = []*Meeting{}
	}
	data, err := json.MarshalIndent(meetings, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding meeting list: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing meeting list: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing meeting list: %w", err)
	}
	return nil
}

// RedisStore persists the meeting list as a single JSON value in Redis,
// honoring the same whole-list read/write contract as FileStore.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a RedisStore. keyPrefix namespaces the list key so
// multiple installs can share one Redis.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	key := storeKey
	if keyPrefix != "" {
		key = keyPrefix + ":" + storeKey
	}
	return &RedisStore{client: client, key: key}
}

// Load reads the whole meeting list. A missing key yields an empty list.
func (s *RedisStore) Load(ctx context.Context) ([]*Meeting, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Meeting{}, nil
		}
		return nil, fmt.Errorf("reading meeting list: %w", err)
	}

	var meetings []*Meeting
	if err := json.Unmarshal(data, &meetings); err != nil {
		return nil, fmt.Errorf("decoding meeting list: %w", err)
	}
	if meetings == nil {
		meetings = []*Meeting{}
	}
	return meetings, nil
}

// Save overwrites the whole meeting list.
func (s *RedisStore) Save(ctx context.Context, meetings []*Meeting) error {
	if meetings == nil {
		meetings = []*Meeting{}
	}
	data, err := json.Marshal(meetings)
	if err != nil {
		return fmt.Errorf("encoding meeting list: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("writing meeting list: %w", err)
	}
	return nil
}
