package main

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/kbchat/internal/config"
	"github.com/fyrsmithlabs/kbchat/internal/embeddings"
	"github.com/fyrsmithlabs/kbchat/internal/knowledge"
	"github.com/fyrsmithlabs/kbchat/internal/logging"
	"github.com/fyrsmithlabs/kbchat/internal/mirror"
	"github.com/fyrsmithlabs/kbchat/internal/pool"
	"github.com/fyrsmithlabs/kbchat/internal/vectorstore"
)

// app holds the wired services shared by the commands.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	knowledge *knowledge.Service
	mirror    *mirror.Service // nil when no bucket is configured
}

// newApp loads configuration and wires all services.
//
// The remote mirror is only created when a bucket is configured, so
// local-only setups work without any storage credentials.
func newApp() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	if err := pool.Bootstrap(cfg.Paths.KnowledgeRoot, cfg.Paths.VectorRoot); err != nil {
		return nil, fmt.Errorf("preparing working directories: %w", err)
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.EmbeddingModel,
		BaseURL: cfg.OpenAI.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding service: %w", err)
	}

	indexes, err := vectorstore.NewService(vectorstore.Config{
		Root:         cfg.Paths.VectorRoot,
		ChunkSize:    cfg.Chat.ChunkSize,
		ChunkOverlap: cfg.Chat.ChunkOverlap,
	}, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	loader := pool.NewLoader(cfg.Paths.KnowledgeRoot, logger)

	var (
		mirrorSvc *mirror.Service
		remote    knowledge.Mirror
	)
	if cfg.Storage.Bucket != "" {
		mirrorSvc, err = mirror.NewService(mirror.Config{
			Bucket:   cfg.Storage.Bucket,
			Endpoint: cfg.Storage.Endpoint,
			Region:   cfg.Storage.Region,
			Insecure: cfg.Storage.Insecure,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating storage mirror: %w", err)
		}
		remote = mirrorSvc
	}

	kb, err := knowledge.NewService(loader, indexes, remote, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		knowledge: kb,
		mirror:    mirrorSvc,
	}, nil
}

// chatModel creates the hosted chat-completion client.
func (a *app) chatModel() (llms.Model, error) {
	opts := []openai.Option{
		openai.WithToken(a.cfg.OpenAI.APIKey),
		openai.WithModel(a.cfg.OpenAI.ChatModel),
	}
	if a.cfg.OpenAI.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(a.cfg.OpenAI.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating chat model: %w", err)
	}
	return model, nil
}

// close flushes buffered log entries.
func (a *app) close() {
	_ = a.logger.Sync()
}
