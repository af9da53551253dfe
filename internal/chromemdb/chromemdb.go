package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"campus-assistant/internal/config"
	"campus-assistant/internal/models"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

// metadata keys stored with every chunk document
const (
	metaStartChar = "start_char"
	metaEndChar   = "end_char"
)

const (
	compress = false
)

var ErrNoCollection = errors.New("chromem collection is not open")

// VectorDBManager encapsulates the chromem-go database operations and serves as
// the default chunk store
type VectorDBManager struct {
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	embed          chromem.EmbeddingFunc
	dbPath         string
	inMemory       bool
	encryptionKey  string
	filePath       string
}

// NewVectorDBManager opens (or creates) the chromem database described by cfg and
// its collection. embed is used only for documents added without an embedding.
func NewVectorDBManager(cfg *config.VectorStoreConfig, embed chromem.EmbeddingFunc) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:             db,
		collectionName: cfg.Collection,
		embed:          embed,
		dbPath:         cfg.Path,
		inMemory:       cfg.InMemory,
		encryptionKey:  cfg.EncryptionKey,
		filePath:       filepath.Join(cfg.Path, cfg.Collection+".chromem"),
	}

	if m.inMemory && m.encryptionKey != "" {
		if _, err := os.Stat(m.filePath); err == nil {
			log.Info().Str("file", m.filePath).Msg("restoring collection snapshot")
			if err := m.Import(context.Background()); err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if _, err := m.GetOrCreateCollection(); err != nil {
		return nil, err
	}
	return m, nil
}

// GetOrCreateCollection opens the managed collection, creating it when missing
func (m *VectorDBManager) GetOrCreateCollection() (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(m.collectionName, nil, m.embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

// open returns the managed collection, or ErrNoCollection after a failed reset
func (m *VectorDBManager) open() (*chromem.Collection, error) {
	if m.collection == nil {
		return nil, ErrNoCollection
	}
	return m.collection, nil
}

// Reset drops the collection and starts an empty one under the same name
func (m *VectorDBManager) Reset(ctx context.Context) error {
	if err := m.DeleteCollection(); err != nil {
		return err
	}
	_, err := m.GetOrCreateCollection()
	return err
}

// Add stores chunks with their precomputed embeddings
func (m *VectorDBManager) Add(ctx context.Context, chunks []models.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("failed to add documents: %d chunks, %d embeddings", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:      c.ID,
			Content: c.Text,
			Metadata: map[string]string{
				metaStartChar: strconv.Itoa(c.StartChar),
				metaEndChar:   strconv.Itoa(c.EndChar),
			},
			Embedding: embeddings[i],
		}
	}
	return m.CreateDocs(ctx, docs)
}

// CreateDocs adds multiple documents
func (m *VectorDBManager) CreateDocs(ctx context.Context, documents []chromem.Document) error {
	c, err := m.open()
	if err != nil {
		return err
	}
	if err := c.AddDocuments(ctx, documents, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}
	return nil
}

// GetAll returns the chunks in id order. chromem has no listing call, so the
// sequential chunk ids of the current generation are walked.
func (m *VectorDBManager) GetAll(ctx context.Context) ([]models.Chunk, error) {
	c, err := m.open()
	if err != nil {
		return nil, err
	}
	n := c.Count()
	chunks := make([]models.Chunk, 0, n)
	for i := 0; len(chunks) < n; i++ {
		// ids are dense from zero, a gap larger than the collection means foreign ids
		if i >= 2*n+1 {
			log.Warn().Int("found", len(chunks)).Int("count", n).Msg("collection holds documents outside the chunk id sequence")
			break
		}
		doc, err := c.GetByID(ctx, models.ChunkID(i))
		if err != nil {
			continue
		}
		chunks = append(chunks, toChunk(doc.ID, doc.Content, doc.Metadata))
	}
	return chunks, nil
}

// SimilarityQuery returns the k nearest chunks. chromem ranks by cosine similarity,
// distance is reported as 1 - similarity.
func (m *VectorDBManager) SimilarityQuery(ctx context.Context, embedding []float32, k int) ([]models.RetrievalResult, error) {
	c, err := m.open()
	if err != nil {
		return nil, err
	}
	n := c.Count()
	if n == 0 || k <= 0 {
		return nil, nil
	}
	results, err := m.SearchWithQueryOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: embedding,
		NResults:       min(k, n),
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.RetrievalResult, 0, len(results))
	for _, r := range results {
		out = append(out, models.RetrievalResult{
			Chunk:    toChunk(r.ID, r.Content, r.Metadata),
			Distance: float64(1 - r.Similarity),
		})
	}
	return out, nil
}

// SearchWithQueryOptions performs a similarity search by text or embedding
func (m *VectorDBManager) SearchWithQueryOptions(ctx context.Context, opts chromem.QueryOptions) ([]chromem.Result, error) {
	// exit if query or embedding is not provided
	if opts.QueryText == "" && opts.QueryEmbedding == nil {
		return nil, errors.New("either query or embedding must be provided")
	}

	c, err := m.open()
	if err != nil {
		return nil, err
	}
	results, err := c.QueryWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	return results, nil
}

func (m *VectorDBManager) Count(ctx context.Context) (int, error) {
	c, err := m.open()
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

// DeleteCollection drops the managed collection
func (m *VectorDBManager) DeleteCollection() error {
	err := m.db.DeleteCollection(m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	m.collection = nil
	return nil
}

// Export writes an encrypted snapshot of the collection next to the database path
func (m *VectorDBManager) Export(ctx context.Context) error {
	if m.encryptionKey == "" {
		return errors.New("encryption key is required")
	}
	if m.collection == nil {
		return errors.New("collection is required")
	}
	if m.dbPath == "" {
		return errors.New("db path is required")
	}

	log.Debug().
		Str("collection", m.collectionName).
		Str("file", m.filePath).
		Bool("compress", compress).
		Msg("exporting collection")
	err := m.db.ExportToFile(m.filePath, compress, m.encryptionKey, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import restores the collection from the snapshot written by Export
func (m *VectorDBManager) Import(ctx context.Context) error {
	err := m.db.ImportFromFile(m.filePath, m.encryptionKey, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	_, err = m.GetOrCreateCollection()
	return err
}

// Close exports in-memory databases when an encryption key is configured. Persistent
// databases are written on every add.
func (m *VectorDBManager) Close() error {
	if m.inMemory && m.encryptionKey != "" {
		return m.Export(context.Background())
	}
	return nil
}

func toChunk(id, content string, meta map[string]string) models.Chunk {
	c := models.Chunk{ID: id, Text: content}
	start, errStart := strconv.Atoi(meta[metaStartChar])
	end, errEnd := strconv.Atoi(meta[metaEndChar])
	if errStart == nil && errEnd == nil {
		c.StartChar = start
		c.EndChar = end
		c.HasOffsets = true
	}
	return c
}
