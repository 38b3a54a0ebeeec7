package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

const testDebounce = 100 * time.Millisecond

type recorder struct {
	mu      sync.Mutex
	changed []string
	removed []string
}

func (r *recorder) FileChanged(path string) {
	r.mu.Lock()
	r.changed = append(r.changed, path)
	r.mu.Unlock()
}

func (r *recorder) FileRemoved(path string) {
	r.mu.Lock()
	r.removed = append(r.removed, path)
	r.mu.Unlock()
}

func (r *recorder) snapshot() (changed, removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.changed...), append([]string(nil), r.removed...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func countSuffix(paths []string, suffix string) int {
	n := 0
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			n++
		}
	}
	return n
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".json", ".csv"}, true, rec, WithDebounce(testDebounce))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "products.json")
	for i := 0; i < 5; i++ {
		if err := writeFile(path, `[{"id":"1","name":"lamp"}]`); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := writeFile(filepath.Join(dir, "notes.txt"), "skip me"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		changed, _ := rec.snapshot()
		return countSuffix(changed, "products.json") > 0
	})
	time.Sleep(3 * testDebounce)

	changed, _ := rec.snapshot()
	if n := countSuffix(changed, "products.json"); n != 1 {
		t.Errorf("expected one debounced change for products.json, got %d: %v", n, changed)
	}
	if countSuffix(changed, "notes.txt") != 0 {
		t.Errorf("notes.txt should be ignored: %v", changed)
	}
}

func TestWatcher_ReportsRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.csv")
	if err := writeFile(path, "id,total\n1,10\n"); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{"csv"}, false, rec, WithDebounce(testDebounce))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, removed := rec.snapshot()
		return countSuffix(removed, "orders.csv") == 1
	})
}

func TestWatcher_NewDirectoryIsSynced(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".json", ".csv"}, true, rec, WithDebounce(testDebounce))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	nested := filepath.Join(dir, "exports", "2024")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "customers.csv"), "id,name\n1,ana\n"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "ignore.xyz"), "skip"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		changed, _ := rec.snapshot()
		return countSuffix(changed, "customers.csv") > 0
	})
	changed, _ := rec.snapshot()
	if countSuffix(changed, "ignore.xyz") != 0 {
		t.Errorf("ignore.xyz should not be reported: %v", changed)
	}
}

func TestWatcher_AddRemoveDirectory(t *testing.T) {
	base := t.TempDir()
	first := filepath.Join(base, "first")
	second := filepath.Join(base, "second")
	rec := &recorder{}
	w := NewWatcher([]string{first}, nil, true, rec, WithDebounce(testDebounce))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if _, err := os.Stat(first); err != nil {
		t.Fatalf("root should be created on Start: %v", err)
	}
	if err := w.AddDirectory(second, false); err != nil {
		t.Fatal(err)
	}
	if err := w.AddDirectory(second, false); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	sort.Strings(dirs)
	if len(dirs) != 2 || dirs[1] != second {
		t.Fatalf("expected both roots, got %v", dirs)
	}

	if err := w.RemoveDirectory(second); err != nil {
		t.Fatal(err)
	}
	if got := w.Directories(); len(got) != 1 || got[0] != first {
		t.Fatalf("expected only %s, got %v", first, got)
	}
	if err := writeFile(filepath.Join(second, "late.json"), "[]"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(3 * testDebounce)
	changed, _ := rec.snapshot()
	if countSuffix(changed, "late.json") != 0 {
		t.Errorf("removed root should not report changes: %v", changed)
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{
		"a.json":     "[]",
		"b.md":       "skip",
		"sub/c.csv":  "id\n1\n",
		"sub/d.xlsx": "",
	} {
		if err := writeFile(filepath.Join(dir, name), content); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name      string
		recursive bool
		want      []string
	}{
		{"recursive", true, []string{"a.json", "c.csv", "d.xlsx"}},
		{"top level only", false, []string{"a.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			w := NewWatcher([]string{dir}, []string{".json", ".csv", ".xlsx"}, tt.recursive, rec)
			w.SyncExistingFiles()
			changed, _ := rec.snapshot()
			var got []string
			for _, p := range changed {
				got = append(got, filepath.Base(p))
			}
			sort.Strings(got)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path string
		exts []string
		want bool
	}{
		{"/data/rows.json", []string{".json"}, true},
		{"/data/ROWS.CSV", []string{"csv"}, true},
		{"/data/rows.jsonl", []string{".json"}, false},
		{"/data/rows", []string{".json"}, false},
		{"/data/anything.bin", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.exts); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.exts, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/a", "/a", true},
		{"/a", "/a/b/c.json", true},
		{"/a", "/ab/c.json", false},
		{"/a/b", "/a", false},
		{"/a", "/a/..b/x", true},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func TestHandlerFuncs_NilSafe(t *testing.T) {
	var got string
	h := HandlerFuncs{Changed: func(p string) { got = p }}
	h.FileChanged("x.json")
	h.FileRemoved("x.json")
	if got != "x.json" {
		t.Errorf("got %q", got)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
