package vector

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func benchStore(b *testing.B, n, dim int) *Store {
	b.Helper()
	s, err := NewStore(Config{Dimension: dim, Metric: MetricCosine})
	if err != nil {
		b.Fatal(err)
	}
	recs := make([]Record, n)
	for i := range recs {
		v := make([]float32, dim)
		v[0] = float32(i) / float32(n)
		v[i%dim] += 1
		recs[i] = Record{ID: fmt.Sprintf("rows_%d", i), Vector: v}
	}
	if err := s.AddBatch(recs); err != nil {
		b.Fatal(err)
	}
	return s
}

func BenchmarkStoreSearch(b *testing.B) {
	s := benchStore(b, 1000, 384)
	ctx := context.Background()
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Search(ctx, query, WithTopK(10))
	}
}

func BenchmarkPersist(b *testing.B) {
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		b.Run(string(c), func(b *testing.B) {
			s := benchStore(b, 1000, 64)
			s.cfg.Compression = c
			path := filepath.Join(b.TempDir(), "vectors")
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				s.Clear()
				_ = s.Add("rows_0", make([]float32, 64))
				if err := s.Persist(path); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
