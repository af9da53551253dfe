package store

import (
	"context"
	"errors"
	"math"
	"sort"

	"campus-assistant/internal/models"
)

var ErrLengthMismatch = errors.New("chunks and embeddings length mismatch")

// ChunkStore holds the chunks of the current collection generation together with
// their embeddings. Reset drops the generation; everything else reads or appends.
type ChunkStore interface {
	Reset(ctx context.Context) error
	Add(ctx context.Context, chunks []models.Chunk, embeddings [][]float32) error
	GetAll(ctx context.Context) ([]models.Chunk, error)
	SimilarityQuery(ctx context.Context, embedding []float32, k int) ([]models.RetrievalResult, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// EuclideanDistance returns the L2 distance between a and b over their common length
func EuclideanDistance(a, b []float32) float64 {
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// RankByDistance orders chunks by Euclidean distance from query and keeps the k
// closest. Ties keep input order.
func RankByDistance(query []float32, chunks []models.Chunk, vectors [][]float32, k int) []models.RetrievalResult {
	n := min(len(chunks), len(vectors))
	results := make([]models.RetrievalResult, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, models.RetrievalResult{
			Chunk:    chunks[i],
			Distance: EuclideanDistance(query, vectors[i]),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k >= 0 && k < len(results) {
		results = results[:k]
	}
	return results
}
