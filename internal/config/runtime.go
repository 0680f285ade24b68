package config

import (
	"os"
	"path/filepath"
)

// GetRuntimePath resolves MEMCHAIN_RUNTIME_PATH before any .env file is
// loaded, since the .env file itself lives there.
func GetRuntimePath() string {
	return resolveRuntimePath(os.Getenv("MEMCHAIN_RUNTIME_PATH"))
}

func resolveRuntimePath(path string) string {
	if path == "" {
		path = ".memchain"
	}

	if !filepath.IsAbs(path) {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path)
	}
	return path
}
