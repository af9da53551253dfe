package qdrantdb

import (
	"context"
	"fmt"

	"campus-assistant/internal/config"
	"campus-assistant/internal/models"

	qd "github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"
)

const (
	payloadChunkID   = "chunk_id"
	payloadText      = "text"
	payloadStartChar = "start_char"
	payloadEndChar   = "end_char"
)

// Store keeps chunks in a Qdrant collection. Point ids are the chunk sequence
// numbers so a scroll returns chunks in document order.
type Store struct {
	client         *qd.Client
	collectionName string
	dim            uint64
}

func New(ctx context.Context, cfg *config.VectorStoreConfig, dim int) (*Store, error) {
	client, err := qd.NewClient(&qd.Config{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	s := &Store{client: client, collectionName: cfg.Collection, dim: uint64(dim)}
	if err := s.ensureCollectionExists(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollectionExists(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", s.collectionName, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: s.collectionName,
		VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
			Size:     s.dim,
			Distance: qd.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collectionName, err)
	}
	log.Info().Str("collection", s.collectionName).Uint64("dim", s.dim).Msg("created qdrant collection")
	return nil
}

func (s *Store) Reset(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", s.collectionName, err)
	}
	return s.ensureCollectionExists(ctx)
}

func (s *Store) Add(ctx context.Context, chunks []models.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("failed to upsert points: %d chunks, %d embeddings", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}
	offset, err := s.Count(ctx)
	if err != nil {
		return err
	}

	_, err = s.client.Upsert(ctx, &qd.UpsertPoints{
		CollectionName: s.collectionName,
		Points:         buildPoints(chunks, embeddings, offset),
		Wait:           qd.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points to collection %s: %w", s.collectionName, err)
	}
	return nil
}

func (s *Store) GetAll(ctx context.Context) ([]models.Chunk, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	points, err := s.client.Scroll(ctx, &qd.ScrollPoints{
		CollectionName: s.collectionName,
		Limit:          qd.PtrOf(uint32(n)),
		WithPayload:    qd.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll collection %s: %w", s.collectionName, err)
	}
	chunks := make([]models.Chunk, 0, len(points))
	for _, p := range points {
		chunks = append(chunks, payloadToChunk(p.GetPayload()))
	}
	return chunks, nil
}

// SimilarityQuery uses the collection's Euclid metric, so the score is the distance
func (s *Store) SimilarityQuery(ctx context.Context, embedding []float32, k int) ([]models.RetrievalResult, error) {
	points, err := s.client.Query(ctx, &qd.QueryPoints{
		CollectionName: s.collectionName,
		Query:          qd.NewQuery(embedding...),
		Limit:          qd.PtrOf(uint64(k)),
		WithPayload:    qd.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", s.collectionName, err)
	}
	results := make([]models.RetrievalResult, 0, len(points))
	for _, p := range points {
		results = append(results, models.RetrievalResult{
			Chunk:    payloadToChunk(p.GetPayload()),
			Distance: float64(p.GetScore()),
		})
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qd.CountPoints{
		CollectionName: s.collectionName,
		Exact:          qd.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(n), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func buildPoints(chunks []models.Chunk, embeddings [][]float32, offset int) []*qd.PointStruct {
	points := make([]*qd.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &qd.PointStruct{
			Id:      qd.NewIDNum(uint64(offset + i)),
			Vectors: qd.NewVectorsDense(embeddings[i]),
			Payload: map[string]*qd.Value{
				payloadChunkID:   qd.NewValueString(c.ID),
				payloadText:      qd.NewValueString(c.Text),
				payloadStartChar: qd.NewValueInt(int64(c.StartChar)),
				payloadEndChar:   qd.NewValueInt(int64(c.EndChar)),
			},
		}
	}
	return points
}

func payloadToChunk(payload map[string]*qd.Value) models.Chunk {
	c := models.Chunk{
		ID:   payload[payloadChunkID].GetStringValue(),
		Text: payload[payloadText].GetStringValue(),
	}
	start, okStart := payload[payloadStartChar]
	end, okEnd := payload[payloadEndChar]
	if okStart && okEnd {
		c.StartChar = int(start.GetIntegerValue())
		c.EndChar = int(end.GetIntegerValue())
		c.HasOffsets = true
	}
	return c
}
