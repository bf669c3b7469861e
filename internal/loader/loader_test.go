package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/lerobot-preview/internal/cache"
	"github.com/ekisa-team/lerobot-preview/internal/dataset"
)

// fakeStore is an in-memory ObjectStore.
type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	downloads map[string]int
	listCalls int
	failures  map[string]int // object -> remaining induced failures
}

func newFakeStore(objects map[string][]byte) *fakeStore {
	return &fakeStore{
		objects:   objects,
		downloads: make(map[string]int),
		failures:  make(map[string]int),
	}
}

func (s *fakeStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listCalls++

	var names []string
	for name := range s.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *fakeStore) ListDirs(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listCalls++

	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	seen := make(map[string]bool)
	for name := range s.objects {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if i := strings.Index(rest, "/"); i > 0 {
			seen[rest[:i]] = true
		}
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (s *fakeStore) Download(_ context.Context, object, dest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failures[object] > 0 {
		s.failures[object]--
		return fmt.Errorf("induced failure for %s", object)
	}

	data, ok := s.objects[object]
	if !ok {
		return fmt.Errorf("object not found: %s", object)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}

	s.downloads[object]++
	return nil
}

func (s *fakeStore) downloadCount(object string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads[object]
}

const testPrefix = "datasets/pick-place"

func testObjects() map[string][]byte {
	key := func(parts ...string) string {
		return path.Join(append([]string{testPrefix}, parts...)...)
	}

	return map[string][]byte{
		key("meta", "info.json"):   []byte(`{"robot_type": "so100", "fps": 30, "total_episodes": 2}`),
		key("meta", "tasks.jsonl"): []byte(`{"task_index": 0, "task": "pick up the cube"}` + "\n"),
		key("meta", "episodes.jsonl"): []byte(
			`{"episode_index": 0, "length": 412}` + "\n" +
				`{"episode_index": 1, "length": 508}` + "\n"),
		key("data", "chunk-000", "episode_000000.parquet"):            []byte("parquet-0"),
		key("data", "chunk-000", "episode_000001.parquet"):            []byte("parquet-1"),
		key("videos", "chunk-000", "cam_top", "episode_000000.mp4"):   []byte("video-0-top"),
		key("videos", "chunk-000", "cam_top", "episode_000001.mp4"):   []byte("video-1-top"),
		key("videos", "chunk-000", "cam_wrist", "episode_000000.mp4"): []byte("video-0-wrist"),
		key("videos", "chunk-000", "cam_wrist", "episode_000001.mp4"): []byte("video-1-wrist"),
	}
}

func newTestLoader(t *testing.T, store *fakeStore) (*Loader, *cache.Dataset) {
	t.Helper()

	ds := cache.New(t.TempDir()).Dataset("robot-data", testPrefix)
	ldr := New(store, ds, testPrefix, Options{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		Timeout:    time.Second,
		Workers:    2,
	})
	return ldr, ds
}

func TestSyncMetadata(t *testing.T) {
	store := newFakeStore(testObjects())
	ldr, ds := newTestLoader(t, store)

	manifest, err := ldr.SyncMetadata(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"chunk-000"}, manifest.DataDirs)
	assert.Equal(t, []string{"cam_top", "cam_wrist"}, manifest.VideoDirs)

	// The upstream listing is stashed and episodes.jsonl starts empty.
	assert.True(t, ds.Has(ds.MetaPath(dataset.AllEpisodesFile)))
	assert.True(t, ds.Has(ds.MetaPath(dataset.InfoFile)))

	records, err := dataset.LoadRecords(ds.MetaPath(dataset.EpisodesFile))
	require.NoError(t, err)
	assert.Empty(t, records)

	all, err := dataset.LoadRecords(ds.MetaPath(dataset.AllEpisodesFile))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSyncMetadata_Idempotent(t *testing.T) {
	store := newFakeStore(testObjects())
	ldr, _ := newTestLoader(t, store)

	first, err := ldr.SyncMetadata(context.Background())
	require.NoError(t, err)

	calls := store.listCalls
	second, err := ldr.SyncMetadata(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, calls, store.listCalls, "cached metadata must not hit the store")
}

func TestSyncMetadata_EmptyDataset(t *testing.T) {
	store := newFakeStore(map[string][]byte{})
	ldr, _ := newTestLoader(t, store)

	_, err := ldr.SyncMetadata(context.Background())
	assert.ErrorIs(t, err, ErrMetadataIncomplete)
}

func TestFetchEpisode(t *testing.T) {
	store := newFakeStore(testObjects())
	ldr, ds := newTestLoader(t, store)

	_, err := ldr.SyncMetadata(context.Background())
	require.NoError(t, err)

	require.NoError(t, ldr.FetchEpisode(context.Background(), "episode_000001"))

	assert.True(t, ds.Has(ds.DataPath("chunk-000", "episode_000001.parquet")))
	assert.True(t, ds.Has(ds.VideoPath("chunk-000", "cam_top", "episode_000001.mp4")))
	assert.True(t, ds.Has(ds.VideoPath("chunk-000", "cam_wrist", "episode_000001.mp4")))

	// Only the requested episode is fetched.
	assert.False(t, ds.Has(ds.DataPath("chunk-000", "episode_000000.parquet")))

	records, err := dataset.LoadRecords(ds.MetaPath(dataset.EpisodesFile))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Index)
}

func TestFetchEpisode_RepeatDoesNotDuplicate(t *testing.T) {
	store := newFakeStore(testObjects())
	ldr, ds := newTestLoader(t, store)

	_, err := ldr.SyncMetadata(context.Background())
	require.NoError(t, err)

	require.NoError(t, ldr.FetchEpisode(context.Background(), "episode_000001"))
	require.NoError(t, ldr.FetchEpisode(context.Background(), "episode_000001"))

	records, err := dataset.LoadRecords(ds.MetaPath(dataset.EpisodesFile))
	require.NoError(t, err)
	assert.Len(t, records, 1)

	object := path.Join(testPrefix, "data", "chunk-000", "episode_000001.parquet")
	assert.Equal(t, 1, store.downloadCount(object), "cached file must not be re-downloaded")
}

func TestFetchEpisode_NotFound(t *testing.T) {
	store := newFakeStore(testObjects())
	ldr, _ := newTestLoader(t, store)

	_, err := ldr.SyncMetadata(context.Background())
	require.NoError(t, err)

	err = ldr.FetchEpisode(context.Background(), "episode_000099")
	assert.ErrorIs(t, err, ErrEpisodeNotFound)
}

func TestFetchEpisode_InvalidName(t *testing.T) {
	store := newFakeStore(testObjects())
	ldr, _ := newTestLoader(t, store)

	err := ldr.FetchEpisode(context.Background(), "not-an-episode")
	assert.ErrorIs(t, err, dataset.ErrInvalidEpisodeName)
	assert.Equal(t, 0, store.listCalls, "malformed names must fail before any store call")
}

func TestFetchEpisode_WithoutMetadata(t *testing.T) {
	store := newFakeStore(testObjects())
	ldr, _ := newTestLoader(t, store)

	err := ldr.FetchEpisode(context.Background(), "episode_000001")
	assert.ErrorIs(t, err, ErrMetadataIncomplete)
}

func TestDownloadRetry(t *testing.T) {
	store := newFakeStore(testObjects())
	object := path.Join(testPrefix, "data", "chunk-000", "episode_000001.parquet")
	store.failures[object] = 2 // fail twice, then succeed

	ldr, ds := newTestLoader(t, store)

	_, err := ldr.SyncMetadata(context.Background())
	require.NoError(t, err)

	require.NoError(t, ldr.FetchEpisode(context.Background(), "episode_000001"))
	assert.True(t, ds.Has(ds.DataPath("chunk-000", "episode_000001.parquet")))
}

func TestDownloadRetry_Exhausted(t *testing.T) {
	store := newFakeStore(testObjects())
	object := path.Join(testPrefix, "data", "chunk-000", "episode_000001.parquet")
	store.failures[object] = 10

	ldr, _ := newTestLoader(t, store)

	_, err := ldr.SyncMetadata(context.Background())
	require.NoError(t, err)

	err = ldr.FetchEpisode(context.Background(), "episode_000001")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrEpisodeNotFound))
}
