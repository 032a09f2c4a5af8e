package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Store is what callers need from a typed cache.
type Store[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T) error
	Delete(key string) error
}

var _ Store[int] = (*FileCache[int])(nil)

type record struct {
	Data     json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"stored_at"`
	Checksum string          `json:"checksum"`
}

// FileCache keeps one JSON file per key. Entries older than ttl, or whose
// checksum no longer matches their data, are dropped on read. A zero ttl
// never expires.
type FileCache[T any] struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

func NewFileCache[T any](dir string, ttl time.Duration) *FileCache[T] {
	return &FileCache[T]{dir: dir, ttl: ttl, now: time.Now}
}

func (fc *FileCache[T]) GenerateKey(params ...interface{}) string {
	return Key(params...)
}

func (fc *FileCache[T]) path(key string) string {
	return filepath.Join(fc.dir, key+".json")
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (fc *FileCache[T]) Get(key string) (T, bool) {
	var zero T
	content, err := os.ReadFile(fc.path(key))
	if err != nil {
		return zero, false
	}

	var rec record
	if err := json.Unmarshal(content, &rec); err != nil || rec.Checksum != checksum(rec.Data) {
		logrus.WithField("key", key).Debug("dropping corrupt cache entry")
		fc.Delete(key)
		return zero, false
	}
	if fc.ttl > 0 && fc.now().Sub(rec.StoredAt) > fc.ttl {
		return zero, false
	}

	var data T
	if err := json.Unmarshal(rec.Data, &data); err != nil {
		return zero, false
	}
	return data, true
}

func (fc *FileCache[T]) Set(key string, data T) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	content, err := json.Marshal(record{Data: raw, StoredAt: fc.now(), Checksum: checksum(raw)})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return WriteAtomic(fc.path(key), content)
}

func (fc *FileCache[T]) Delete(key string) error {
	if err := os.Remove(fc.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}
