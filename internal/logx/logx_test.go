package logx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"swiftly/internal/paths"
)

func TestNewWritesIntoLogsDir(t *testing.T) {
	home := paths.New(t.TempDir())
	logger, closer, err := New(home)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Printf("installing %s", "5.7.1")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(home.LogsDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one log file, got %d", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(home.LogsDir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "installing 5.7.1") {
		t.Fatalf("log missing message: %s", data)
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	home := paths.New(t.TempDir())
	if err := os.MkdirAll(home.LogsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	names := []string{"20240101-000000.log", "20240102-000000.log", "20240103-000000.log", "keep.txt"}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(home.LogsDir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := Prune(home, 1); err != nil {
		t.Fatalf("prune: %v", err)
	}

	entries, err := os.ReadDir(home.LogsDir)
	if err != nil {
		t.Fatal(err)
	}
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	if strings.Join(left, ",") != "20240103-000000.log,keep.txt" {
		t.Fatalf("unexpected remaining files %v", left)
	}
}
