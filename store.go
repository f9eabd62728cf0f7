package visionkit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// CacheStore is a durable key-value store for serialized cache records.
// Implementations must be safe for concurrent use.
type CacheStore interface {
	// Get returns the value stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// cacheFileName is the file a FileStore keeps its entries in.
const cacheFileName = "cache.json"

// errCorruptCache marks a cache document that exists but cannot be decoded.
var errCorruptCache = errors.New("corrupt cache document")

// readFile is os.ReadFile, replaceable in tests to inject read failures.
var readFile = os.ReadFile

// FileStore keeps all entries in a single JSON document, rewritten
// atomically under a cross-process file lock.
type FileStore struct {
	// dir contains cache.json and its lock file.
	dir string

	// lockTimeout is the maximum duration to wait for file lock acquisition.
	lockTimeout time.Duration

	// mu protects concurrent in-process access to cache.json.
	mu sync.RWMutex
}

// Ensure FileStore implements CacheStore.
var _ CacheStore = (*FileStore)(nil)

// NewFileStore returns a FileStore rooted at dir, creating dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create cache directory: %v", ErrStorageError, err)
	}
	return &FileStore{dir: dir, lockTimeout: DefaultLockTimeout}, nil
}

func (s *FileStore) path() string {
	return filepath.Join(s.dir, cacheFileName)
}

// load reads cache.json. A missing file is an empty store.
func (s *FileStore) load() (map[string][]byte, error) {
	data, err := readFile(s.path())
	if os.IsNotExist(err) {
		return make(map[string][]byte), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageError, err)
	}

	entries := make(map[string][]byte)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w: %s: %v", ErrStorageError, errCorruptCache, cacheFileName, err)
	}
	return entries, nil
}

// Get returns the value stored under key, or ErrCacheMiss.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	value, ok := entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return value, nil
}

// Put stores value under key. A corrupt cache file is replaced; read
// failures are returned and leave the file untouched.
func (s *FileStore) Put(_ context.Context, key string, value []byte) error {
	return s.update(func(entries map[string][]byte) bool {
		entries[key] = slices.Clone(value)
		return true
	})
}

// Delete removes key. Deleting an absent key leaves the file untouched.
func (s *FileStore) Delete(_ context.Context, key string) error {
	return s.update(func(entries map[string][]byte) bool {
		if _, ok := entries[key]; !ok {
			return false
		}
		delete(entries, key)
		return true
	})
}

// update applies fn to the entries and writes them back if fn reports a change.
func (s *FileStore) update(fn func(map[string][]byte) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return withFileLock(filepath.Join(s.dir, cacheFileName+".lock"), s.lockTimeout, func() error {
		entries, err := s.load()
		switch {
		case errors.Is(err, errCorruptCache):
			// Undecodable contents are dropped rather than blocking writes.
			entries = make(map[string][]byte)
		case err != nil:
			return err
		}
		if !fn(entries) {
			return nil
		}

		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("%w: failed to marshal cache: %v", ErrStorageError, err)
		}
		return atomicWriteFile(s.path(), data)
	})
}

// MemoryStore is an in-process CacheStore. Entries do not survive restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// Ensure MemoryStore implements CacheStore.
var _ CacheStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

// Get returns the value stored under key, or ErrCacheMiss.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return slices.Clone(value), nil
}

// Put stores value under key.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = slices.Clone(value)
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
