package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"campus-assistant/internal/config"
	"campus-assistant/internal/models"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// ChunkRecord is one row of the chunk table. The table name comes from config, so
// queries set it with ModelTableExpr.
type ChunkRecord struct {
	bun.BaseModel `bun:"table:chunks"`
	Seq           int64           `bun:"seq,pk"`
	ChunkID       string          `bun:"chunk_id,notnull"`
	Content       string          `bun:"content,notnull"`
	StartChar     int             `bun:"start_char"`
	EndChar       int             `bun:"end_char"`
	Embedding     pgvector.Vector `bun:"embedding,type:vector"`
	Distance      float64         `bun:"distance,scanonly"`
}

// Store is a chunk store on Postgres with the pgvector extension
type Store struct {
	db    *bun.DB
	table string
	dim   int
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is required")
	}
	dsn := cfg.DSN
	if !strings.Contains(dsn, "sslmode=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "sslmode=disable"
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

// NewStore connects, makes sure the vector extension and chunk table exist and
// returns the store
func NewStore(ctx context.Context, cfg *config.DatabaseConfig, dim int) (*Store, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := &Store{db: NewDB(sqldb, cfg.Debug), table: cfg.Table, dim: dim}
	if err := s.InitDB(ctx); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

// InitDB creates the extension, the chunk table and its hnsw index
func (s *Store) InitDB(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.table, s.dim) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
	}
	return nil
}

func schemaStatements(table string, dim int) []string {
	t := pq.QuoteIdentifier(table)
	idx := pq.QuoteIdentifier(table + "_embedding_idx")
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq bigint PRIMARY KEY,
	chunk_id text NOT NULL UNIQUE,
	content text NOT NULL,
	start_char integer,
	end_char integer,
	embedding vector(%d)
)`, t, dim),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_l2_ops)", idx, t),
	}
}

// DropDocuments drops the chunk table
func (s *Store) DropDocuments(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+pq.QuoteIdentifier(s.table))
	return err
}

func (s *Store) Reset(ctx context.Context) error {
	if err := s.DropDocuments(ctx); err != nil {
		return fmt.Errorf("failed to drop chunks: %w", err)
	}
	return s.InitDB(ctx)
}

func (s *Store) Add(ctx context.Context, chunks []models.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("failed to store chunks: %d chunks, %d embeddings", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}
	offset, err := s.Count(ctx)
	if err != nil {
		return err
	}
	records := toRecords(chunks, embeddings, offset)
	_, err = s.db.NewInsert().
		Model(&records).
		ModelTableExpr("?", bun.Ident(s.table)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	log.Debug().Int("chunks", len(records)).Str("table", s.table).Msg("stored chunks")
	return nil
}

func (s *Store) GetAll(ctx context.Context) ([]models.Chunk, error) {
	var records []ChunkRecord
	err := s.db.NewSelect().
		Model(&records).
		ModelTableExpr("?", bun.Ident(s.table)).
		Column("seq", "chunk_id", "content", "start_char", "end_char").
		Order("seq").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	chunks := make([]models.Chunk, len(records))
	for i, r := range records {
		chunks[i] = r.toChunk()
	}
	return chunks, nil
}

// SimilarityQuery orders by L2 distance, the same metric as the brute-force fallback
func (s *Store) SimilarityQuery(ctx context.Context, embedding []float32, k int) ([]models.RetrievalResult, error) {
	vec := pgvector.NewVector(embedding)
	var records []ChunkRecord
	err := s.db.NewSelect().
		Model(&records).
		ModelTableExpr("?", bun.Ident(s.table)).
		Column("seq", "chunk_id", "content", "start_char", "end_char").
		ColumnExpr("embedding <-> ? AS distance", vec).
		OrderExpr("embedding <-> ?", vec).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	results := make([]models.RetrievalResult, len(records))
	for i, r := range records {
		results[i] = models.RetrievalResult{Chunk: r.toChunk(), Distance: r.Distance}
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().
		Model((*ChunkRecord)(nil)).
		ModelTableExpr("?", bun.Ident(s.table)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func toRecords(chunks []models.Chunk, embeddings [][]float32, offset int) []ChunkRecord {
	records := make([]ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = ChunkRecord{
			Seq:       int64(offset + i),
			ChunkID:   c.ID,
			Content:   c.Text,
			StartChar: c.StartChar,
			EndChar:   c.EndChar,
			Embedding: pgvector.NewVector(embeddings[i]),
		}
	}
	return records
}

func (r ChunkRecord) toChunk() models.Chunk {
	return models.Chunk{
		ID:         r.ChunkID,
		Text:       r.Content,
		StartChar:  r.StartChar,
		EndChar:    r.EndChar,
		HasOffsets: true,
	}
}
