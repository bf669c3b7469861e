package cache

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// Cache is the local on-disk store for downloaded dataset files.
type Cache struct {
	root string
}

// New creates a Cache rooted at root.
func New(root string) *Cache {
	return &Cache{root: root}
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// Dataset returns the cache slot for one (bucket, prefix) pair. The slot
// directory name is the xxh64 digest of "bucket/prefix", so distinct datasets
// never share a directory and repeat invocations land in the same one. The
// prefix is cleaned first: "datasets/x/" and "datasets/x" are the same
// dataset and must share a slot.
func (c *Cache) Dataset(bucket, prefix string) *Dataset {
	key := fmt.Sprintf("%016x", xxhash.Sum64String(bucket+"/"+path.Clean(prefix)))
	return &Dataset{dir: filepath.Join(c.root, key)}
}

// Dataset is the cached copy of a single LeRobot dataset. Its layout mirrors
// the remote one: meta/, data/<chunk>/, videos/<chunk>/<camera>/.
type Dataset struct {
	dir string
}

// Dir returns the dataset's cache directory.
func (d *Dataset) Dir() string {
	return d.dir
}

// MetaDir returns the cached meta directory.
func (d *Dataset) MetaDir() string {
	return filepath.Join(d.dir, "meta")
}

// MetaPath returns the path of a file inside the cached meta directory.
func (d *Dataset) MetaPath(name string) string {
	return filepath.Join(d.MetaDir(), name)
}

// DataPath returns the cached path for a data file of one chunk.
func (d *Dataset) DataPath(chunk, name string) string {
	return filepath.Join(d.dir, "data", chunk, name)
}

// VideoPath returns the cached path for a video file of one chunk and camera.
func (d *Dataset) VideoPath(chunk, camera, name string) string {
	return filepath.Join(d.dir, "videos", chunk, camera, name)
}

// Has reports whether a cached file already exists at path.
func (d *Dataset) Has(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cache: failed to create directory %s: %w", dir, err)
	}

	return nil
}
