// Package vectorstore builds and queries per-product embedding indexes.
//
// Each product gets its own chromem-go persistent database under the
// vector-store root ({root}/{productID}), holding a single collection of
// embedded document chunks. The directory is the artifact the mirror
// service synchronizes to remote storage.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/kbchat/internal/pool"
)

const chunkCollection = "chunks"

var (
	// ErrIndexNotFound is returned when no built index exists for a product.
	ErrIndexNotFound = errors.New("embedding index not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Config holds configuration for the index service.
type Config struct {
	// Root is the vector-store root directory; one index dir per product.
	Root string

	// ChunkSize is the splitter chunk size in characters.
	ChunkSize int

	// ChunkOverlap is the splitter overlap in characters.
	ChunkOverlap int

	// Compress enables gzip compression for persisted index files.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Root == "" {
		c.Root = "vectorStore"
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 200
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, chunk size)", ErrInvalidConfig)
	}
	return nil
}

// Service builds, opens, and deletes product indexes.
type Service struct {
	config   Config
	embedder Embedder
	logger   *zap.Logger
}

// NewService creates a new index service.
func NewService(config Config, embedder Embedder, logger *zap.Logger) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &Service{
		config:   config,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// Dir returns the index directory for a product.
func (s *Service) Dir(productID string) string {
	return pool.Dir(s.config.Root, productID)
}

// Exists reports whether a local index directory exists for the product.
func (s *Service) Exists(productID string) bool {
	info, err := os.Stat(s.Dir(productID))
	return err == nil && info.IsDir()
}

// Build constructs the embedding index for a product from its documents.
//
// Rebuilds are always from scratch: any prior index for the product is
// removed before the new one is persisted. The persisted directory is
// valid as soon as Build returns.
func (s *Service) Build(ctx context.Context, productID string, docs []schema.Document) (*Index, error) {
	if err := pool.ValidateProductID(productID); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	chunks, err := s.split(docs)
	if err != nil {
		return nil, fmt.Errorf("splitting documents: %w", err)
	}

	dir := s.Dir(productID)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("removing previous index %s: %w", dir, err)
	}

	db, err := chromem.NewPersistentDB(dir, s.config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating index database: %w", err)
	}

	collection, err := db.GetOrCreateCollection(chunkCollection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.PageContent
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	chromemDocs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		chromemDocs[i] = chromem.Document{
			ID:        uuid.NewString(),
			Content:   chunk.PageContent,
			Metadata:  flattenMetadata(chunk.Metadata),
			Embedding: vectors[i],
		}
	}

	// Concurrency of 1: embeddings are already computed.
	if err := collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	s.logger.Info("built embedding index",
		zap.String("product_id", productID),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.String("path", dir),
	)

	return &Index{productID: productID, collection: collection}, nil
}

// Open loads a previously built index for a product.
//
// Returns ErrIndexNotFound if no index directory exists or it holds no
// chunk collection.
func (s *Service) Open(productID string) (*Index, error) {
	if err := pool.ValidateProductID(productID); err != nil {
		return nil, err
	}

	if !s.Exists(productID) {
		return nil, fmt.Errorf("%w: no local index for product %q", ErrIndexNotFound, productID)
	}

	db, err := chromem.NewPersistentDB(s.Dir(productID), s.config.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}

	collection := db.GetCollection(chunkCollection, s.embeddingFunc())
	if collection == nil || collection.Count() == 0 {
		return nil, fmt.Errorf("%w: index for product %q is empty", ErrIndexNotFound, productID)
	}

	s.logger.Debug("opened embedding index",
		zap.String("product_id", productID),
		zap.Int("chunks", collection.Count()),
	)

	return &Index{productID: productID, collection: collection}, nil
}

// Delete removes the local index for a product. Deleting a missing
// index is not an error.
func (s *Service) Delete(productID string) error {
	if err := pool.ValidateProductID(productID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.Dir(productID)); err != nil {
		return fmt.Errorf("deleting index for product %q: %w", productID, err)
	}
	return nil
}

// split cuts documents into overlapping chunks for embedding.
func (s *Service) split(docs []schema.Document) ([]schema.Document, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.config.ChunkSize),
		textsplitter.WithChunkOverlap(s.config.ChunkOverlap),
	)
	return textsplitter.SplitDocuments(splitter, docs)
}

// embeddingFunc adapts the Embedder to chromem's query-time interface.
func (s *Service) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// Index is a read-only handle on one product's chunk collection.
type Index struct {
	productID  string
	collection *chromem.Collection
}

// ProductID returns the product this index belongs to.
func (ix *Index) ProductID() string {
	return ix.productID
}

// Count returns the number of stored chunks.
func (ix *Index) Count() int {
	return ix.collection.Count()
}

// Search returns up to k chunks most similar to the query, highest
// similarity first.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if query == "" {
		return nil, errors.New("query cannot be empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	// chromem requires nResults <= stored document count.
	count := ix.collection.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if k > count {
		k = count
	}

	results, err := ix.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		}
	}

	return searchResults, nil
}

// flattenMetadata converts loader metadata to chromem's string map.
func flattenMetadata(metadata map[string]any) map[string]string {
	if metadata == nil {
		return nil
	}

	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}
