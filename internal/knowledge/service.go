// Package knowledge orchestrates the pipeline from a product's document
// set to a queryable embedding index, local and mirrored.
package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/kbchat/internal/mirror"
	"github.com/fyrsmithlabs/kbchat/internal/vectorstore"
)

// ErrRemoteNotConfigured is returned when a remote operation is
// requested but no mirror service was configured.
var ErrRemoteNotConfigured = errors.New("remote storage not configured")

// DocumentLoader reads a product's document set.
type DocumentLoader interface {
	LoadDocuments(ctx context.Context, productID string) ([]schema.Document, error)
}

// IndexStore builds and opens local embedding indexes.
type IndexStore interface {
	Build(ctx context.Context, productID string, docs []schema.Document) (*vectorstore.Index, error)
	Open(productID string) (*vectorstore.Index, error)
	Dir(productID string) string
}

// Mirror synchronizes index artifacts with remote storage.
type Mirror interface {
	Upload(ctx context.Context, productID, localDir string) error
	Download(ctx context.Context, productID, localDir string) error
	Exists(ctx context.Context, productID string) (bool, error)
}

// Service ties the loader, index store, and mirror together.
type Service struct {
	loader  DocumentLoader
	indexes IndexStore
	mirror  Mirror // nil means local-only operation
	logger  *zap.Logger
}

// NewService creates the orchestration service. The mirror may be nil
// for local-only use; remote operations then fail with
// ErrRemoteNotConfigured.
func NewService(loader DocumentLoader, indexes IndexStore, m Mirror, logger *zap.Logger) (*Service, error) {
	if loader == nil {
		return nil, errors.New("document loader is required")
	}
	if indexes == nil {
		return nil, errors.New("index store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		loader:  loader,
		indexes: indexes,
		mirror:  m,
		logger:  logger,
	}, nil
}

// BuildLocal builds the embedding index for a product from its
// knowledge-pool documents, persisting it locally only.
func (s *Service) BuildLocal(ctx context.Context, productID string) (*vectorstore.Index, error) {
	docs, err := s.loader.LoadDocuments(ctx, productID)
	if err != nil {
		return nil, err
	}

	index, err := s.indexes.Build(ctx, productID, docs)
	if err != nil {
		return nil, fmt.Errorf("building index for product %q: %w", productID, err)
	}

	return index, nil
}

// BuildRemote builds the local index and uploads it to the remote
// mirror.
//
// A missing or empty pool folder fails before anything is uploaded. If
// the upload fails after the local build succeeded, the local artifact
// is kept; only the remote state is reported as failed.
func (s *Service) BuildRemote(ctx context.Context, productID string) error {
	if s.mirror == nil {
		return ErrRemoteNotConfigured
	}

	if _, err := s.BuildLocal(ctx, productID); err != nil {
		return err
	}

	if err := s.mirror.Upload(ctx, productID, s.indexes.Dir(productID)); err != nil {
		return fmt.Errorf("syncing index for product %q: %w", productID, err)
	}

	s.logger.Info("built and mirrored index", zap.String("product_id", productID))
	return nil
}

// Resolve returns a queryable index for the product, preferring the
// local copy and falling back to downloading the remote mirror.
//
// Returns vectorstore.ErrIndexNotFound when neither exists.
func (s *Service) Resolve(ctx context.Context, productID string) (*vectorstore.Index, error) {
	index, err := s.indexes.Open(productID)
	if err == nil {
		return index, nil
	}
	if !errors.Is(err, vectorstore.ErrIndexNotFound) {
		return nil, err
	}

	if s.mirror == nil {
		return nil, err
	}

	s.logger.Debug("no local index, trying remote mirror", zap.String("product_id", productID))

	if err := s.mirror.Download(ctx, productID, s.indexes.Dir(productID)); err != nil {
		if errors.Is(err, mirror.ErrMirrorNotFound) {
			return nil, fmt.Errorf("%w: product %q has no index locally or remotely",
				vectorstore.ErrIndexNotFound, productID)
		}
		return nil, err
	}

	return s.indexes.Open(productID)
}
