package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"swiftly/internal/paths"
)

// New creates a logger that writes to a timestamped file inside the home
// logs directory. The returned closer should be closed when logging is no
// longer needed.
func New(h paths.Home) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(h.LogsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure logs directory: %w", err)
	}

	filename := time.Now().Format("20060102-150405") + ".log"
	filePath := filepath.Join(h.LogsDir, filename)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logger := log.New(file, "", log.LstdFlags|log.Lmicroseconds)
	return logger, file, nil
}

// Discard returns a logger that drops everything, for commands that run
// before a home exists.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// Prune removes all but the newest keep log files.
func Prune(h paths.Home, keep int) error {
	entries, err := os.ReadDir(h.LogsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read logs directory: %w", err)
	}
	var logs []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && filepath.Ext(entry.Name()) == ".log" {
			logs = append(logs, entry.Name())
		}
	}
	// ReadDir sorts by name and names are timestamps.
	if len(logs) <= keep {
		return nil
	}
	for _, name := range logs[:len(logs)-keep] {
		if err := os.Remove(filepath.Join(h.LogsDir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove old log %s: %w", name, err)
		}
	}
	return nil
}
