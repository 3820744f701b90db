package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultDatabasePath = "~/.botkit/references.db"

// ResolvePath turns a configured database path into a clean absolute path.
// An empty path selects ~/.botkit/references.db and a leading ~ is expanded to
// the home directory.
func ResolvePath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		trimmed = defaultDatabasePath
	}

	expanded, err := expandHome(trimmed)
	if err != nil {
		return "", err
	}

	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve absolute database path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
