package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/dreamdb/internal/models"
	"github.com/hyperjump/dreamdb/internal/server"
)

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"orders"}, "orders"},
		{"multiple words", []string{"pending", "orders"}, "pending orders"},
		{"single quoted phrase", []string{"pending orders"}, "pending orders"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildSearchQuery(tt.args); got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestReadRows(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{"object", `{"id":"1","name":"lamp"}`, 1, false},
		{"array", ` [{"id":"1"},{"id":"2"}] `, 2, false},
		{"empty", "  ", 0, true},
		{"null element", `[{"id":"1"},null]`, 0, true},
		{"scalar", `42`, 0, true},
		{"null", `null`, 0, true},
		{"broken", `{"id":`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := readRows([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(rows) != tt.want {
				t.Errorf("got %d rows, want %d", len(rows), tt.want)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("debug: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// t.TempDir may sit behind a symlink (macOS /var -> /private/var).
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  host: \"127.0.0.1\"\n  port: 9000\n"
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Addr() != "127.0.0.1:9000" {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("explicit missing config should fail")
	}
}

// writeTestConfig writes a config using the mock embedder and the pure Go SQLite driver.
func writeTestConfig(t *testing.T) (configPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`storage:
  driver: sqlite
  database_path: %s
embedding:
  provider: mock
  dimensions: 32
index:
  path: %s
  compression: zstd
`, filepath.Join(dir, "rows.db"), filepath.Join(dir, "vectors.json.zst"))
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return configPath, dir
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_InsertSearchDeleteStatus(t *testing.T) {
	configPath, dir := writeTestConfig(t)

	out, err := execute(t, "", "--config", configPath, "insert", "products",
		`[{"id":"p1","name":"desk lamp","in_stock":true},{"id":"p2","name":"office chair","in_stock":false}]`)
	if err != nil {
		t.Fatalf("insert: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Inserted 2 row(s) into products (2 indexed, 0 unchanged)") {
		t.Errorf("insert output: %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "vectors.json.zst")); err != nil {
		t.Fatalf("index not persisted: %v", err)
	}

	out, err = execute(t, `{"id":"p3","name":"floor lamp"}`, "--config", configPath, "insert", "products", "-")
	if err != nil {
		t.Fatalf("insert from stdin: %v\n%s", err, out)
	}

	out, err = execute(t, "", "--config", configPath, "search", "--server", "", "-o", "json", "desk", "lamp")
	if err != nil {
		t.Fatalf("search: %v\n%s", err, out)
	}
	var resp models.SearchResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("search output is not JSON: %v\n%s", err, out)
	}
	if len(resp.Results) == 0 || resp.Results[0].Key != "products_p1" {
		t.Errorf("expected products_p1 first, got %+v", resp.Results)
	}

	if out, err = execute(t, "", "--config", configPath, "delete", "products", "p2"); err != nil {
		t.Fatalf("delete: %v\n%s", err, out)
	}

	out, err = execute(t, "", "--config", configPath, "status", "--server", "", "-o", "json")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	var status server.StatusResponse
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("status output is not JSON: %v\n%s", err, out)
	}
	if status.Rows != 2 || status.VectorIndexSize != 2 || status.Config.Compression != "zstd" {
		t.Errorf("status: %+v", status)
	}
}

func TestCLI_ImportAndReindex(t *testing.T) {
	configPath, dir := writeTestConfig(t)
	csvPath := filepath.Join(dir, "orders.csv")
	if err := os.WriteFile(csvPath, []byte("id,status,total\no1,pending,12.5\no2,delivered,3\n"), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "", "--config", configPath, "import", csvPath)
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	if !strings.Contains(out, "orders: 2 row(s), 2 indexed") {
		t.Errorf("import output: %q", out)
	}

	out, err = execute(t, "", "--config", configPath, "reindex", "orders")
	if err != nil {
		t.Fatalf("reindex: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Scanned 2 row(s) in 1 table(s), indexed 0") {
		t.Errorf("reindex output: %q", out)
	}

	if _, err := execute(t, "", "--config", configPath, "import", filepath.Join(dir, "config.yaml")); err == nil {
		t.Error("importing an unsupported file should fail")
	}
}

func TestCLI_Version(t *testing.T) {
	out, err := execute(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "dreamdb version dev\n" {
		t.Errorf("version output: %q", out)
	}
}

func TestCLI_SearchRequiresQuery(t *testing.T) {
	if _, err := execute(t, "", "search", "--server", "", "  "); err == nil {
		t.Error("blank query should fail")
	}
}
