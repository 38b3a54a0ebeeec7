package vector

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how snapshot bytes are wrapped on disk.
type Compression string

const (
	// CompressionNone writes plain JSON.
	CompressionNone Compression = "none"
	// CompressionZstd writes a zstd frame around the JSON document.
	CompressionZstd Compression = "zstd"
	// CompressionLZ4 writes an LZ4 frame around the JSON document.
	CompressionLZ4 Compression = "lz4"
)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// ParseCompression resolves a compression name; empty means none.
func ParseCompression(name string) (Compression, error) {
	switch Compression(strings.ToLower(strings.TrimSpace(name))) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd, "zst":
		return CompressionZstd, nil
	case CompressionLZ4:
		return CompressionLZ4, nil
	default:
		return "", fmt.Errorf("unknown compression %q (supported: none, zstd, lz4)", name)
	}
}

// snapshotDoc is the persisted document. Pointer fields distinguish missing from zero.
type snapshotDoc struct {
	Dimension        *int                 `json:"dimension"`
	SimilarityMetric *string              `json:"similarityMetric"`
	Vectors          map[string][]float32 `json:"vectors"`
}

// Persist writes the store to path (or Config.PersistPath when path is empty).
// It is a no-op when nothing changed since the last successful persist. The map is copied
// under the read lock and the file is written without holding it; the write goes to a
// temporary file that is renamed into place.
func (s *Store) Persist(path string) error {
	if path == "" {
		path = s.cfg.PersistPath
	}
	if path == "" {
		return &IOError{Op: "persist", Path: path, Err: errors.New("no persist path configured")}
	}
	snap, dirty := s.snapshot()
	if !dirty {
		return nil
	}
	data, err := encodeSnapshot(snap, s.cfg.Compression)
	if err != nil {
		return &IOError{Op: "encode", Path: path, Err: err}
	}
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	s.markPersisted(snap.version)
	return nil
}

func encodeSnapshot(snap snapshot, c Compression) ([]byte, error) {
	dim := snap.dimension
	metric := string(snap.metric)
	raw, err := json.Marshal(snapshotDoc{Dimension: &dim, SimilarityMetric: &metric, Vectors: snap.vectors})
	if err != nil {
		return nil, err
	}
	switch c {
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return raw, nil
	}
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &IOError{Op: "create snapshot dir", Path: filepath.Dir(path), Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return &IOError{Op: "create snapshot file", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return &IOError{Op: "write snapshot", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return &IOError{Op: "sync snapshot", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &IOError{Op: "close snapshot", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return &IOError{Op: "rename snapshot", Path: path, Err: err}
	}
	return nil
}

// Load reads a snapshot and reconstructs a store with the persisted dimension, metric and
// vectors. The returned store is clean and uses path as its PersistPath.
func Load(path string) (*Store, error) {
	doc, comp, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	s, err := NewStore(Config{
		Dimension:   *doc.Dimension,
		Metric:      Metric(*doc.SimilarityMetric),
		PersistPath: path,
		Compression: comp,
	})
	if err != nil {
		return nil, &CorruptFormatError{Path: path, Reason: "invalid header", Err: err}
	}
	s.vectors = doc.Vectors
	return s, nil
}

// Open returns a store for cfg, restoring cfg.PersistPath when the snapshot exists.
// A snapshot whose dimension or metric disagrees with cfg is rejected.
func Open(cfg Config) (*Store, error) {
	s, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.PersistPath == "" {
		return s, nil
	}
	if _, err := os.Stat(cfg.PersistPath); errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	doc, _, err := readSnapshot(cfg.PersistPath)
	if err != nil {
		return nil, err
	}
	if *doc.Dimension != s.cfg.Dimension {
		return nil, &CorruptFormatError{Path: cfg.PersistPath,
			Reason: fmt.Sprintf("snapshot dimension %d does not match configured %d", *doc.Dimension, s.cfg.Dimension)}
	}
	if Metric(*doc.SimilarityMetric) != s.cfg.Metric {
		return nil, &CorruptFormatError{Path: cfg.PersistPath,
			Reason: fmt.Sprintf("snapshot metric %q does not match configured %q", *doc.SimilarityMetric, s.cfg.Metric)}
	}
	s.vectors = doc.Vectors
	return s, nil
}

func readSnapshot(path string) (*snapshotDoc, Compression, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", &IOError{Op: "read snapshot", Path: path, Err: err}
	}
	raw, comp, err := decompress(data)
	if err != nil {
		return nil, "", &CorruptFormatError{Path: path, Reason: "decompress", Err: err}
	}
	var doc snapshotDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, "", &CorruptFormatError{Path: path, Reason: "parse", Err: err}
	}
	if err := checkSnapshot(&doc); err != nil {
		return nil, "", &CorruptFormatError{Path: path, Reason: err.Error()}
	}
	return &doc, comp, nil
}

func decompress(data []byte) ([]byte, Compression, error) {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, "", err
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		return out, CompressionZstd, err
	case bytes.HasPrefix(data, lz4Magic):
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		return out, CompressionLZ4, err
	default:
		return data, CompressionNone, nil
	}
}

func checkSnapshot(doc *snapshotDoc) error {
	if doc.Dimension == nil {
		return errors.New("missing dimension")
	}
	if doc.SimilarityMetric == nil {
		return errors.New("missing similarityMetric")
	}
	if doc.Vectors == nil {
		return errors.New("missing vectors")
	}
	if *doc.Dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", *doc.Dimension)
	}
	metric, err := ParseMetric(*doc.SimilarityMetric)
	if err != nil {
		return err
	}
	*doc.SimilarityMetric = string(metric)
	for id, vec := range doc.Vectors {
		if id == "" {
			return errors.New("empty vector id")
		}
		if len(vec) != *doc.Dimension {
			return fmt.Errorf("vector %q has length %d, expected %d", id, len(vec), *doc.Dimension)
		}
		for _, v := range vec {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return fmt.Errorf("vector %q has a non-finite component", id)
			}
		}
	}
	return nil
}
