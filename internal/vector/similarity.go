package vector

import (
	"fmt"
	"math"
	"strings"
)

// cosineEpsilon keeps cosine similarity defined for zero vectors.
const cosineEpsilon = 1e-12

// Metric names a similarity metric. Higher scores always mean more similar.
type Metric string

const (
	// MetricCosine is dot(a,b) / (|a|*|b| + 1e-12).
	MetricCosine Metric = "cosine"
	// MetricEuclidean is 1 / (1 + L2 distance).
	MetricEuclidean Metric = "euclidean"
	// MetricDotProduct is the raw inner product.
	MetricDotProduct Metric = "dot"
	// MetricManhattan is 1 / (1 + L1 distance).
	MetricManhattan Metric = "manhattan"
)

// SimilarityFunc scores two equal-length vectors.
type SimilarityFunc func(a, b []float32) float64

// ParseMetric resolves a metric name (case-insensitive, with a few aliases).
// The empty string selects cosine.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cosine":
		return MetricCosine, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	case "dot", "dotproduct", "dot_product", "inner_product":
		return MetricDotProduct, nil
	case "manhattan", "l1":
		return MetricManhattan, nil
	default:
		return "", &ValidationError{Kind: ErrUnknownMetric, Index: -1, Detail: fmt.Sprintf("%q", name)}
	}
}

// Func returns the scoring function for m, or nil for an unsupported metric.
func (m Metric) Func() SimilarityFunc {
	switch m {
	case MetricCosine:
		return CosineSimilarity
	case MetricEuclidean:
		return EuclideanSimilarity
	case MetricDotProduct:
		return InnerProduct
	case MetricManhattan:
		return ManhattanSimilarity
	default:
		return nil
	}
}

// InnerProduct returns the inner product of two vectors.
func InnerProduct(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns dot(a,b) / (|a|*|b| + eps). Zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + cosineEpsilon)
}

// EuclideanSimilarity maps L2 distance into (0, 1].
func EuclideanSimilarity(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return 1 / (1 + math.Sqrt(sum))
}

// ManhattanSimilarity maps L1 distance into (0, 1].
func ManhattanSimilarity(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return 1 / (1 + sum)
}
