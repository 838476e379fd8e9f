package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/bequbed/jellyfin-trakt-sync/config"
	"github.com/bequbed/jellyfin-trakt-sync/models"
)

// Store persists the sync cache.
type Store interface {
	Load(ctx context.Context) (map[string]models.CacheEntry, error)
	// Save writes the complete set of entries.
	Save(ctx context.Context, entries map[string]models.CacheEntry) error
}

// EntryWriter is implemented by stores that can persist a single entry
// without rewriting the whole cache.
type EntryWriter interface {
	Put(ctx context.Context, entry models.CacheEntry) error
}

// JSONStore keeps the cache in a single JSON file.
type JSONStore struct {
	fs   afero.Fs
	path string
}

type cacheFile struct {
	SyncedItems map[string]cacheRecord `json:"synced_items"`
}

type cacheRecord struct {
	Timestamp int64  `json:"timestamp"`
	Name      string `json:"name"`
	Type      string `json:"type"`
}

// NewJSONStore creates a store backed by path on fsys.
func NewJSONStore(fsys afero.Fs, path string) *JSONStore {
	return &JSONStore{fs: fsys, path: path}
}

// Load reads the cache file. A missing or empty file is an empty cache.
func (s *JSONStore) Load(_ context.Context) (map[string]models.CacheEntry, error) {
	entries := make(map[string]models.CacheEntry)

	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sync cache: %w", err)
	}
	if len(data) == 0 {
		return entries, nil
	}

	var decoded cacheFile
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode sync cache: %w", err)
	}
	for id, rec := range decoded.SyncedItems {
		if id == "" {
			continue
		}
		entries[id] = models.CacheEntry{
			SourceID:   id,
			RecordedAt: time.Unix(rec.Timestamp, 0),
			Title:      rec.Name,
			Kind:       models.ParseMediaKind(rec.Type),
		}
	}
	return entries, nil
}

// Save rewrites the cache file atomically.
func (s *JSONStore) Save(_ context.Context, entries map[string]models.CacheEntry) error {
	out := cacheFile{SyncedItems: make(map[string]cacheRecord, len(entries))}
	for id, entry := range entries {
		out.SyncedItems[id] = cacheRecord{
			Timestamp: entry.RecordedAt.Unix(),
			Name:      entry.Title,
			Type:      string(entry.Kind),
		}
	}

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create sync cache dir: %w", err)
		}
	}
	if err := config.WriteJSONAtomic(s.fs, s.path, out); err != nil {
		return fmt.Errorf("write sync cache: %w", err)
	}
	return nil
}
