package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ekisa-team/lerobot-preview/internal/cache"
	"github.com/ekisa-team/lerobot-preview/internal/dataset"
	"github.com/ekisa-team/lerobot-preview/internal/gcs"
)

// Error definitions for the loader package.
var (
	ErrEpisodeNotFound    = errors.New("episode not found in any data chunk")
	ErrMetadataIncomplete = errors.New("dataset metadata is incomplete")
)

// Options tunes blob downloads.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	Workers    int
}

// Loader fetches LeRobot dataset files from an object store into the local
// cache.
type Loader struct {
	store  gcs.ObjectStore
	ds     *cache.Dataset
	prefix string
	opts   Options
}

// New creates a Loader for one dataset, identified by its object prefix
// inside the store.
func New(store gcs.ObjectStore, ds *cache.Dataset, prefix string, opts Options) *Loader {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	return &Loader{
		store:  store,
		ds:     ds,
		prefix: prefix,
		opts:   opts,
	}
}

// SyncMetadata mirrors the dataset's meta directory into the cache and
// discovers its chunk layout. The manifest file is written last and acts as
// the completion marker: when it already exists the whole step is skipped, and
// an interrupted sync is redone from wherever it stopped.
func (l *Loader) SyncMetadata(ctx context.Context) (*dataset.Manifest, error) {
	manifestPath := l.ds.MetaPath(dataset.ManifestFile)
	if l.ds.Has(manifestPath) {
		slog.Debug("Metadata already cached, skipping sync", "path", manifestPath)
		return dataset.LoadManifest(manifestPath)
	}

	if err := cache.EnsureDir(l.ds.MetaDir()); err != nil {
		return nil, err
	}

	objects, err := l.store.List(ctx, path.Join(l.prefix, dataset.MetaDirName))
	if err != nil {
		return nil, fmt.Errorf("loader: failed to list metadata: %w", err)
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: no objects under %s", ErrMetadataIncomplete, path.Join(l.prefix, dataset.MetaDirName))
	}

	for _, object := range objects {
		if err := l.download(ctx, object, l.ds.MetaPath(path.Base(object))); err != nil {
			return nil, err
		}
	}

	if err := l.stashEpisodeListing(); err != nil {
		return nil, err
	}

	dataDirs, err := l.store.ListDirs(ctx, path.Join(l.prefix, "data"))
	if err != nil {
		return nil, fmt.Errorf("loader: failed to list data chunks: %w", err)
	}
	if len(dataDirs) == 0 {
		return nil, fmt.Errorf("%w: no data chunks under %s", ErrMetadataIncomplete, path.Join(l.prefix, "data"))
	}
	sort.Strings(dataDirs)

	// Cameras are laid out identically in every chunk, so probing the first
	// one is enough. Datasets without videos yield an empty list.
	videoDirs, err := l.store.ListDirs(ctx, path.Join(l.prefix, "videos", dataDirs[0]))
	if err != nil {
		return nil, fmt.Errorf("loader: failed to list video dirs: %w", err)
	}
	sort.Strings(videoDirs)

	manifest := &dataset.Manifest{DataDirs: dataDirs, VideoDirs: videoDirs}
	if err := dataset.SaveManifest(manifestPath, manifest); err != nil {
		return nil, err
	}

	slog.Info("Metadata synced", "data_chunks", len(dataDirs), "cameras", len(videoDirs))
	return manifest, nil
}

// stashEpisodeListing moves the full upstream episode listing aside and
// starts an empty episodes.jsonl. The viewer reads episodes.jsonl, and it must
// describe only the episodes actually present in the cache.
func (l *Loader) stashEpisodeListing() error {
	episodesPath := l.ds.MetaPath(dataset.EpisodesFile)
	allPath := l.ds.MetaPath(dataset.AllEpisodesFile)

	if !l.ds.Has(allPath) {
		if err := os.Rename(episodesPath, allPath); err != nil {
			return fmt.Errorf("%w: missing %s: %v", ErrMetadataIncomplete, dataset.EpisodesFile, err)
		}
	}

	if err := os.WriteFile(episodesPath, nil, 0o644); err != nil {
		return fmt.Errorf("loader: failed to reset %s: %w", dataset.EpisodesFile, err)
	}

	return nil
}

// FetchEpisode downloads the data and video files of one episode into the
// cache and registers the episode in the cached episodes.jsonl. The episode
// name must be exact, e.g. "episode_000017".
func (l *Loader) FetchEpisode(ctx context.Context, episode string) error {
	index, err := dataset.ParseEpisodeIndex(episode)
	if err != nil {
		return err
	}

	manifest, err := dataset.LoadManifest(l.ds.MetaPath(dataset.ManifestFile))
	if err != nil {
		return fmt.Errorf("%w: metadata not synced: %v", ErrMetadataIncomplete, err)
	}

	found := false
	for _, chunk := range manifest.DataDirs {
		objects, err := l.store.List(ctx, path.Join(l.prefix, "data", chunk, episode))
		if err != nil {
			return fmt.Errorf("loader: failed to probe chunk %s: %w", chunk, err)
		}
		if len(objects) == 0 {
			continue
		}

		slog.Info("Episode located", "episode", episode, "chunk", chunk, "files", len(objects))
		if err := l.fetchChunkFiles(ctx, manifest, chunk, episode, objects); err != nil {
			return err
		}

		// Episodes live in exactly one chunk.
		found = true
		break
	}

	if !found {
		return fmt.Errorf("%w: %s", ErrEpisodeNotFound, episode)
	}

	return l.registerEpisode(index)
}

// fetchChunkFiles downloads an episode's data files and, per camera, its
// video files, with bounded parallelism.
func (l *Loader) fetchChunkFiles(ctx context.Context, manifest *dataset.Manifest, chunk, episode string, dataObjects []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)

	for _, object := range dataObjects {
		g.Go(func() error {
			return l.download(gctx, object, l.ds.DataPath(chunk, path.Base(object)))
		})
	}

	for _, camera := range manifest.VideoDirs {
		g.Go(func() error {
			videoPrefix := path.Join(l.prefix, "videos", chunk, camera, episode)
			objects, err := l.store.List(gctx, videoPrefix)
			if err != nil {
				return fmt.Errorf("loader: failed to list videos for camera %s: %w", camera, err)
			}

			for _, object := range objects {
				if err := l.download(gctx, object, l.ds.VideoPath(chunk, camera, path.Base(object))); err != nil {
					return err
				}
			}

			return nil
		})
	}

	return g.Wait()
}

// registerEpisode appends the episode's record from the stashed full listing
// into the cached episodes.jsonl, once.
func (l *Loader) registerEpisode(index int) error {
	all, err := dataset.LoadRecords(l.ds.MetaPath(dataset.AllEpisodesFile))
	if err != nil {
		return err
	}

	previous, err := dataset.LoadRecords(l.ds.MetaPath(dataset.EpisodesFile))
	if err != nil {
		return err
	}

	for _, record := range previous {
		if record.Index == index {
			slog.Debug("Episode already registered", "episode_index", index)
			return nil
		}
	}

	for _, record := range all {
		if record.Index == index {
			return dataset.AppendRecord(l.ds.MetaPath(dataset.EpisodesFile), record)
		}
	}

	return fmt.Errorf("%w: episode_index %d missing from %s", ErrMetadataIncomplete, index, dataset.AllEpisodesFile)
}

// download fetches one object into the cache unless it is already there,
// retrying transient failures with a fixed delay and a per-attempt timeout.
func (l *Loader) download(ctx context.Context, object, dest string) error {
	if l.ds.Has(dest) {
		slog.Debug("File already cached, skipping", "dest", dest)
		return nil
	}

	var lastErr error
	for attempt := range l.opts.MaxRetries {
		if attempt > 0 {
			slog.Info("Retrying download", "object", object, "attempt", attempt+1, "last_error", lastErr)
			select {
			case <-time.After(l.opts.RetryDelay):
			case <-ctx.Done():
				return fmt.Errorf("loader: download canceled: %w", ctx.Err())
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
		err := l.store.Download(attemptCtx, object, dest)
		cancel()

		if err == nil {
			slog.Info("Downloaded", "object", object, "dest", filepath.Base(dest), "attempt", attempt+1)
			return nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return fmt.Errorf("loader: download canceled: %w", err)
		}

		slog.Error("Failed to download object", "object", object, "attempt", attempt+1, "error", err)
	}

	return fmt.Errorf("loader: giving up on %s after %d attempts: %w", object, l.opts.MaxRetries, lastErr)
}
