package mount

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"nzbengine/pkg/apperrors"
)

// Store is the source of truth for mount lifecycle state. NzbStreamService
// is parameterized over this interface, never a concrete implementation, so
// the backend (memory, file, Redis) is a deployment choice.
type Store interface {
	GetMount(ctx context.Context, id string) (*Info, error)
	PutMount(ctx context.Context, info *Info) error
	TouchMount(ctx context.Context, id string) error
}

// MemoryStore is the default, process-lifetime-only backend.
type MemoryStore struct {
	mu     sync.RWMutex
	mounts map[string]*Info
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mounts: make(map[string]*Info)}
}

func (s *MemoryStore) GetMount(ctx context.Context, id string) (*Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.mounts[id]
	if !ok {
		return nil, &apperrors.MountNotFound{ID: id}
	}
	cp := *info
	return &cp, nil
}

func (s *MemoryStore) PutMount(ctx context.Context, info *Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *info
	s.mounts[info.ID] = &cp
	return nil
}

func (s *MemoryStore) TouchMount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.mounts[id]
	if !ok {
		return &apperrors.MountNotFound{ID: id}
	}
	info.LastAccessAt = time.Now()
	return nil
}

// FileStore persists the whole mount table as one atomically-written JSON
// snapshot on an afero.Fs, giving single-node durability across restarts.
type FileStore struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewFileStore builds a store backed by path on fs, loading any existing
// snapshot. A missing file is not an error — it means an empty table.
func NewFileStore(fs afero.Fs, path string) (*FileStore, error) {
	s := &FileStore{fs: fs, path: path}
	if _, err := fs.Stat(path); err == nil {
		if _, err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *FileStore) load() (map[string]*Info, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return map[string]*Info{}, nil
	}
	var table map[string]*Info
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, &apperrors.MalformedNzb{Reason: "mount store snapshot: " + err.Error()}
	}
	return table, nil
}

func (s *FileStore) save(table map[string]*Info) error {
	data, err := json.Marshal(table)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return err
	}
	return s.fs.Rename(tmp, s.path)
}

func (s *FileStore) GetMount(ctx context.Context, id string) (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.load()
	if err != nil {
		return nil, err
	}
	info, ok := table[id]
	if !ok {
		return nil, &apperrors.MountNotFound{ID: id}
	}
	return info, nil
}

func (s *FileStore) PutMount(ctx context.Context, info *Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.load()
	if err != nil {
		return err
	}
	table[info.ID] = info
	return s.save(table)
}

func (s *FileStore) TouchMount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.load()
	if err != nil {
		return err
	}
	info, ok := table[id]
	if !ok {
		return &apperrors.MountNotFound{ID: id}
	}
	info.LastAccessAt = time.Now()
	return s.save(table)
}

// RedisStore persists mounts in Redis, giving durability shared across
// multiple service instances.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a store against an already-configured client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "nzbengine:mount:"}
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) GetMount(ctx context.Context, id string) (*Info, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, &apperrors.MountNotFound{ID: id}
	}
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, &apperrors.MalformedNzb{Reason: "mount record: " + err.Error()}
	}
	return &info, nil
}

func (s *RedisStore) PutMount(ctx context.Context, info *Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(info.ID), data, 0).Err()
}

func (s *RedisStore) TouchMount(ctx context.Context, id string) error {
	info, err := s.GetMount(ctx, id)
	if err != nil {
		return err
	}
	info.LastAccessAt = time.Now()
	return s.PutMount(ctx, info)
}
