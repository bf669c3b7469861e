package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInvalidEpisodeName indicates a name that does not follow the
// "episode_{index}" convention.
var ErrInvalidEpisodeName = errors.New("invalid episode name")

const episodePrefix = "episode_"

// ParseEpisodeIndex extracts the numeric index from an episode name of the
// form "episode_{index}". A file extension, if present, is ignored, so both
// "episode_000017" and "episode_000017.parquet" resolve to 17.
func ParseEpisodeIndex(name string) (int, error) {
	stem := filepath.Base(name)
	stem = strings.TrimSuffix(stem, filepath.Ext(stem))

	if !strings.HasPrefix(stem, episodePrefix) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidEpisodeName, name)
	}

	index, err := strconv.Atoi(strings.Split(stem, "_")[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidEpisodeName, name)
	}

	return index, nil
}
