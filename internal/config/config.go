// Package config provides configuration loading for kbchat.
package config

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/kbchat/internal/logging"
)

// ErrInvalidConfig indicates missing or invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration for kbchat.
type Config struct {
	Paths   PathsConfig    `koanf:"paths"`
	OpenAI  OpenAIConfig   `koanf:"openai"`
	Storage StorageConfig  `koanf:"storage"`
	Chat    ChatConfig     `koanf:"chat"`
	Logging logging.Config `koanf:"logging"`
}

// PathsConfig holds the two working directories. Both are resolved
// relative to the process working directory unless absolute.
type PathsConfig struct {
	// KnowledgeRoot holds one subfolder of source documents per product.
	KnowledgeRoot string `koanf:"knowledge_root"`

	// VectorRoot holds one built index directory per product.
	VectorRoot string `koanf:"vector_root"`
}

// OpenAIConfig holds settings for the hosted chat and embedding APIs.
type OpenAIConfig struct {
	// APIKey authenticates against the hosted API. Usually supplied via
	// the OPENAI_API_KEY environment variable.
	APIKey string `koanf:"api_key"`

	// BaseURL overrides the API endpoint. Empty means the provider default.
	BaseURL string `koanf:"base_url"`

	// ChatModel is the chat-completion model.
	ChatModel string `koanf:"chat_model"`

	// EmbeddingModel is the embedding model.
	EmbeddingModel string `koanf:"embedding_model"`
}

// StorageConfig holds settings for the remote object-storage mirror.
// Credentials are never configured here; they resolve from the ambient
// environment (AWS_ACCESS_KEY_ID / MINIO_ACCESS_KEY chains).
type StorageConfig struct {
	// Bucket is the bucket holding index mirrors.
	Bucket string `koanf:"bucket"`

	// Endpoint is the S3-compatible endpoint host.
	Endpoint string `koanf:"endpoint"`

	// Region is the bucket region, if the endpoint needs one.
	Region string `koanf:"region"`

	// Insecure disables TLS. Useful against local MinIO in development.
	Insecure bool `koanf:"insecure"`
}

// ChatConfig holds retrieval and chunking settings.
type ChatConfig struct {
	// RetrievalK is how many chunks are retrieved per question.
	RetrievalK int `koanf:"retrieval_k"`

	// ChunkSize is the splitter chunk size in characters.
	ChunkSize int `koanf:"chunk_size"`

	// ChunkOverlap is the splitter overlap in characters.
	ChunkOverlap int `koanf:"chunk_overlap"`
}

// ApplyDefaults sets default values for missing configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Paths.KnowledgeRoot == "" {
		c.Paths.KnowledgeRoot = "productKnowledgePool"
	}
	if c.Paths.VectorRoot == "" {
		c.Paths.VectorRoot = "vectorStore"
	}

	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = "gpt-3.5-turbo-0125"
	}
	if c.OpenAI.EmbeddingModel == "" {
		c.OpenAI.EmbeddingModel = "text-embedding-ada-002"
	}

	if c.Storage.Endpoint == "" {
		c.Storage.Endpoint = "s3.amazonaws.com"
	}

	if c.Chat.RetrievalK == 0 {
		c.Chat.RetrievalK = 15
	}
	if c.Chat.ChunkSize == 0 {
		c.Chat.ChunkSize = 1000
	}
	if c.Chat.ChunkOverlap == 0 {
		c.Chat.ChunkOverlap = 200
	}

	c.Logging.ApplyDefaults()
}

// Validate validates the configuration.
//
// The bucket is deliberately not required here: local-only builds and
// chat against a local index work without remote storage. The mirror
// service enforces bucket and credential requirements itself.
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("%w: openai api_key required (set OPENAI_API_KEY)", ErrInvalidConfig)
	}
	if c.Chat.RetrievalK <= 0 {
		return fmt.Errorf("%w: chat retrieval_k must be positive", ErrInvalidConfig)
	}
	if c.Chat.ChunkSize <= 0 {
		return fmt.Errorf("%w: chat chunk_size must be positive", ErrInvalidConfig)
	}
	if c.Chat.ChunkOverlap < 0 || c.Chat.ChunkOverlap >= c.Chat.ChunkSize {
		return fmt.Errorf("%w: chat chunk_overlap must be in [0, chunk_size)", ErrInvalidConfig)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
