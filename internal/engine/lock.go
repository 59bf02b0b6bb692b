package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// errLocked is returned by tryLock when another process holds the lock.
var errLocked = errors.New("home is locked by another swiftly process")

const lockRetryInterval = 100 * time.Millisecond

// acquireLock takes an exclusive advisory lock on path, retrying until ctx
// is done. The OS drops the lock when the process exits, so a crash never
// leaves a stale lock behind.
func acquireLock(ctx context.Context, path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		err := tryLock(f)
		if err == nil {
			return func() {
				_ = unlock(f)
				_ = f.Close()
			}, nil
		}
		if !errors.Is(err, errLocked) {
			f.Close()
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("acquire lock: %w: %w", errLocked, ctx.Err())
		case <-ticker.C:
		}
	}
}
