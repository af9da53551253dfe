package store

import (
	"context"
	"sync"

	"campus-assistant/internal/models"
)

// MemoryStore keeps chunks and vectors in process memory. It backs tests and the
// in-memory vector_store type.
type MemoryStore struct {
	mu      sync.RWMutex
	chunks  []models.Chunk
	vectors [][]float32

	// QueryErr, when set, is returned by SimilarityQuery
	QueryErr error
	// AddErr, when set, is returned by Add after the chunks were written
	AddErr error
	// queries counts SimilarityQuery calls
	queries int
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.vectors = nil
	return nil
}

func (s *MemoryStore) Add(ctx context.Context, chunks []models.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return ErrLengthMismatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	s.vectors = append(s.vectors, embeddings...)
	return s.AddErr
}

func (s *MemoryStore) GetAll(ctx context.Context) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out, nil
}

func (s *MemoryStore) SimilarityQuery(ctx context.Context, embedding []float32, k int) ([]models.RetrievalResult, error) {
	s.mu.Lock()
	s.queries++
	s.mu.Unlock()
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return RankByDistance(embedding, s.chunks, s.vectors, k), nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Queries reports how many similarity queries were served
func (s *MemoryStore) Queries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries
}

func (s *MemoryStore) Close() error { return nil }
