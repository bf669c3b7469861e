package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultConfigPath returns the default directory for lerobot-preview config files.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "lerobot-preview", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "lerobot-preview")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "lerobot-preview")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "lerobot-preview")
		}
		return filepath.Join(home, ".config", "lerobot-preview")
	}
}

// DefaultCacheRoot returns the default directory for cached episodes.
func DefaultCacheRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "lerobot-preview")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "lerobot-preview", "cache")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "lerobot-preview")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "lerobot-preview")
		}
		return filepath.Join(home, ".cache", "lerobot-preview")
	}
}
