package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// ObjectStore abstracts the bucket operations the loader needs, so the fetch
// logic can be tested without Google credentials.
type ObjectStore interface {
	// List returns the names of all objects under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// ListDirs returns the base names of the immediate "subdirectories"
	// under prefix, discovered via delimiter listing.
	ListDirs(ctx context.Context, prefix string) ([]string, error)

	// Download copies an object to a local file.
	Download(ctx context.Context, object, dest string) error
}

// Bucket is an ObjectStore backed by a Google Cloud Storage bucket.
// Authentication uses ambient application default credentials.
type Bucket struct {
	client *storage.Client
	handle *storage.BucketHandle
	name   string
}

// Option configures a Bucket.
type Option func(*Bucket)

// WithProject sets the project billed for requests, for requester-pays
// buckets.
func WithProject(project string) Option {
	return func(b *Bucket) {
		if project != "" {
			b.handle = b.handle.UserProject(project)
		}
	}
}

// Open creates a Bucket for the named GCS bucket.
func Open(ctx context.Context, name string, opts ...Option) (*Bucket, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: failed to create storage client: %w", err)
	}

	b := &Bucket{
		client: client,
		handle: client.Bucket(name),
		name:   name,
	}
	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.name
}

// Close releases the underlying client.
func (b *Bucket) Close() error {
	return b.client.Close()
}

// List returns the names of all objects under prefix.
func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string

	it := b.handle.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs: failed to list %s/%s: %w", b.name, prefix, err)
		}

		names = append(names, attrs.Name)
	}

	return names, nil
}

// ListDirs returns the base names of the immediate subdirectories under
// prefix. A trailing slash is appended if missing; without it GCS would not
// report sub-prefixes.
func (b *Bucket) ListDirs(ctx context.Context, prefix string) ([]string, error) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var dirs []string

	it := b.handle.Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs: failed to list dirs under %s/%s: %w", b.name, prefix, err)
		}

		if attrs.Prefix != "" {
			dirs = append(dirs, path.Base(strings.TrimSuffix(attrs.Prefix, "/")))
		}
	}

	return dirs, nil
}

// Download copies an object to dest. The object is written to a temporary
// file in the destination directory and renamed into place, so an
// interrupted download never leaves a final-named partial file behind.
func (b *Bucket) Download(ctx context.Context, object, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("gcs: failed to create directory for %s: %w", dest, err)
	}

	reader, err := b.handle.Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("gcs: failed to open %s/%s: %w", b.name, object, err)
	}
	defer reader.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".partial-*")
	if err != nil {
		return fmt.Errorf("gcs: failed to create temp file for %s: %w", dest, err)
	}

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("gcs: failed to download %s/%s: %w", b.name, object, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("gcs: failed to finalize %s: %w", dest, err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("gcs: failed to move %s into place: %w", dest, err)
	}

	return nil
}
