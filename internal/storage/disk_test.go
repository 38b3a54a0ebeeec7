package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMeasureDiskUsage(t *testing.T) {
	dir := t.TempDir()

	// Single file
	f1 := filepath.Join(dir, "index.json")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := MeasureDiskUsage(f1)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalBytes != 5 || got.Paths[f1] != 5 {
		t.Errorf("single file: got %+v, want 5 bytes", got)
	}

	// Directory
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}

	// Multiple paths, a missing one and an empty one
	got, err = MeasureDiskUsage(f1, sub, filepath.Join(dir, "missing"), "")
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalBytes != 8 {
		t.Errorf("file+dir: got %d bytes, want 8", got.TotalBytes)
	}
	if got.Paths[sub] != 3 {
		t.Errorf("dir: got %d bytes, want 3", got.Paths[sub])
	}
	if len(got.Paths) != 3 {
		t.Errorf("expected 3 measured paths, got %v", got.Paths)
	}
}

func TestDatabaseFiles(t *testing.T) {
	files := DatabaseFiles("/data/dreamdb.db")
	want := []string{"/data/dreamdb.db", "/data/dreamdb.db-wal", "/data/dreamdb.db-shm"}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}
