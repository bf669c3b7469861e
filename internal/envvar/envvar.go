package envvar

const (
	// Env is the environment variable used to determine the environment
	Env = "LEROBOT_PREVIEW_ENV"

	// CacheDir is the environment variable used to override the cache root directory
	CacheDir = "LEROBOT_PREVIEW_CACHE_DIR"

	// RerunBin is the environment variable used to override the Rerun Viewer binary
	RerunBin = "LEROBOT_PREVIEW_RERUN_BIN"
)
