package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// Well-known file names inside a LeRobot dataset's meta directory, plus the
// names this tool maintains in its local cache. The viewer reads
// episodes.jsonl, so the cache keeps the full upstream listing under a
// different name and rebuilds episodes.jsonl with only previewed episodes.
const (
	MetaDirName     = "meta"
	InfoFile        = "info.json"
	EpisodesFile    = "episodes.jsonl"
	AllEpisodesFile = "rerun_all_episodes.jsonl"
	ManifestFile    = "rerun_meta.json"
)

// Manifest records the chunk layout of a dataset so that data and video
// subdirectories are listed against the bucket only once.
type Manifest struct {
	DataDirs  []string `json:"subdirs"`
	VideoDirs []string `json:"video_subdirs"`
}

// SaveManifest writes the manifest as JSON to path.
func SaveManifest(path string, m *Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("dataset: failed to encode manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("dataset: failed to write manifest: %w", err)
	}

	return nil
}

// LoadManifest reads a manifest previously written by SaveManifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("dataset: failed to decode manifest: %w", err)
	}

	return &m, nil
}

// EpisodeRecord is one line of episodes.jsonl. Only the index is interpreted;
// the raw line is preserved so unknown fields survive a round trip.
type EpisodeRecord struct {
	Index int
	Raw   json.RawMessage
}

// LoadRecords reads a JSONL file of episode records.
func LoadRecords(path string) ([]EpisodeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: failed to open %s: %w", path, err)
	}
	defer f.Close()

	var records []EpisodeRecord

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var probe struct {
			Index int `json:"episode_index"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			return nil, fmt.Errorf("dataset: malformed record in %s: %w", path, err)
		}

		records = append(records, EpisodeRecord{
			Index: probe.Index,
			Raw:   json.RawMessage(append([]byte(nil), line...)),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dataset: failed to read %s: %w", path, err)
	}

	return records, nil
}

// AppendRecord appends a record line to a JSONL file.
func AppendRecord(path string, record EpisodeRecord) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("dataset: failed to open %s for append: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(record.Raw, '\n')); err != nil {
		return fmt.Errorf("dataset: failed to append to %s: %w", path, err)
	}

	return nil
}

// Info is the subset of meta/info.json this tool reports on.
type Info struct {
	CodebaseVersion string  `json:"codebase_version"`
	RobotType       string  `json:"robot_type"`
	FPS             float64 `json:"fps"`
	TotalEpisodes   int     `json:"total_episodes"`
	TotalVideos     int     `json:"total_videos"`
}

// LoadInfo reads a dataset's info.json.
func LoadInfo(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: failed to read info: %w", err)
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("dataset: failed to decode info: %w", err)
	}

	return &info, nil
}
