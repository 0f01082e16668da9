package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LogStorage manages saving step logs to files
type LogStorage struct {
	BaseDir string
}

// NewLogStorage creates a new log storage handler
func NewLogStorage(baseDir string) *LogStorage {
	return &LogStorage{BaseDir: baseDir}
}

// SaveLog saves the (already masked) output of one step as
// <base>/<runID>/<NN>_<step>.log and returns the path.
func (ls *LogStorage) SaveLog(runID string, index int, step, output string) (string, error) {
	dir := filepath.Join(ls.BaseDir, sanitize(runID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}

	filename := fmt.Sprintf("%02d_%s.log", index+1, sanitize(step))
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(output), 0o644); err != nil {
		return "", fmt.Errorf("write log: %w", err)
	}
	return path, nil
}

// ReadLog returns a previously saved log.
func (ls *LogStorage) ReadLog(path string) (string, error) {
	rel, err := filepath.Rel(ls.BaseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("log %s is outside %s", path, ls.BaseDir)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// sanitize keeps step names usable as file names
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.' || r == '/':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "step"
	}
	return b.String()
}
