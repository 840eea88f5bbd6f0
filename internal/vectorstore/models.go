package vectorstore

import "context"

// SearchResult is a retrieved chunk with its similarity score.
type SearchResult struct {
	// ID is the chunk identifier.
	ID string `json:"id"`

	// Content is the chunk text.
	Content string `json:"content"`

	// Score is the similarity score, higher is closer.
	Score float32 `json:"score"`

	// Metadata carries chunk metadata such as the source file name.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Embedder generates vector embeddings from text.
//
// Implementations can call a hosted API (OpenAI) or, in tests, produce
// deterministic vectors.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns a slice of embeddings (one per input text) or an error.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
