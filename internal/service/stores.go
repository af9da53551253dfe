package service

import (
	"context"
	"fmt"

	"campus-assistant/internal/chromemdb"
	"campus-assistant/internal/config"
	"campus-assistant/internal/db"
	"campus-assistant/internal/embedding"
	"campus-assistant/internal/qdrantdb"
	"campus-assistant/internal/rag"
	"campus-assistant/internal/store"
	"campus-assistant/internal/wiki"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

// NewStore opens the chunk store selected by cfg.VectorStore.Type
func NewStore(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder) (store.ChunkStore, error) {
	log.Debug().Str("type", cfg.VectorStore.Type).Msg("Opening chunk store")
	switch cfg.VectorStore.Type {
	case "chromem":
		return chromemdb.NewVectorDBManager(&cfg.VectorStore, embedding.ChromemFunc(embedder))
	case "pgvector":
		return db.NewStore(ctx, &cfg.VectorStore.Database, cfg.EmbedLLM.Dimension)
	case "qdrant":
		return qdrantdb.New(ctx, &cfg.VectorStore, cfg.EmbedLLM.Dimension)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown vector store type %q", cfg.VectorStore.Type)
	}
}

// NewLookup returns the Wikipedia client, or nil when the fallback is disabled
func NewLookup(cfg *config.WikipediaConfig) rag.Lookup {
	if cfg.Disabled {
		return nil
	}
	return wiki.NewClient(cfg)
}
