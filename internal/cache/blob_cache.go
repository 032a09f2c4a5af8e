package cache

import (
	"os"
	"path/filepath"
)

// BlobCache stores raw downloads, such as GeoTIFF responses, as one file
// per key with the given extension.
type BlobCache struct {
	dir string
	ext string
}

func NewBlobCache(dir, ext string) *BlobCache {
	return &BlobCache{dir: dir, ext: ext}
}

func (bc *BlobCache) Path(key string) string {
	return filepath.Join(bc.dir, key+bc.ext)
}

// Get returns the stored bytes. Empty files count as misses.
func (bc *BlobCache) Get(key string) ([]byte, bool) {
	content, err := os.ReadFile(bc.Path(key))
	if err != nil || len(content) == 0 {
		return nil, false
	}
	return content, true
}

func (bc *BlobCache) Set(key string, content []byte) error {
	return WriteAtomic(bc.Path(key), content)
}
