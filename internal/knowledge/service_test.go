package knowledge_test

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/kbchat/internal/knowledge"
	"github.com/fyrsmithlabs/kbchat/internal/mirror"
	"github.com/fyrsmithlabs/kbchat/internal/pool"
	"github.com/fyrsmithlabs/kbchat/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// hashEmbedder returns deterministic normalized vectors for testing.
type hashEmbedder struct{}

func (hashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = makeEmbedding(text)
	}
	return vectors, nil
}

func (hashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return makeEmbedding(text), nil
}

func makeEmbedding(text string) []float32 {
	const size = 32
	embedding := make([]float32, size)
	hash := 0
	for _, c := range text {
		hash = (hash*31 + int(c)) % 1000
	}
	var sumSq float32
	for i := range embedding {
		embedding[i] = float32((hash+i)%100) / 100.0
		sumSq += embedding[i] * embedding[i]
	}
	if sumSq > 0 {
		norm := 1.0 / float32(sqrt64(float64(sumSq)))
		for i := range embedding {
			embedding[i] *= norm
		}
	}
	return embedding
}

func sqrt64(x float64) float64 {
	z := x / 2
	for i := 0; i < 20; i++ {
		z = (z + x/z) / 2
	}
	return z
}

// fakeLoader serves canned documents per product.
type fakeLoader struct {
	docs map[string][]schema.Document
}

func (f *fakeLoader) LoadDocuments(ctx context.Context, productID string) ([]schema.Document, error) {
	docs, ok := f.docs[productID]
	if !ok || len(docs) == 0 {
		return nil, pool.ErrPoolNotFound
	}
	return docs, nil
}

// fakeMirror keeps uploaded artifacts in memory as relpath -> bytes.
type fakeMirror struct {
	artifacts map[string]map[string][]byte
	uploadErr error
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{artifacts: make(map[string]map[string][]byte)}
}

func (f *fakeMirror) Upload(ctx context.Context, productID, localDir string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}

	snapshot := make(map[string][]byte)
	err := filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		snapshot[rel] = content
		return nil
	})
	if err != nil {
		return err
	}

	f.artifacts[productID] = snapshot
	return nil
}

func (f *fakeMirror) Download(ctx context.Context, productID, localDir string) error {
	snapshot, ok := f.artifacts[productID]
	if !ok {
		return mirror.ErrMirrorNotFound
	}

	for rel, content := range snapshot {
		dest := filepath.Join(localDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dest, content, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMirror) Exists(ctx context.Context, productID string) (bool, error) {
	_, ok := f.artifacts[productID]
	return ok, nil
}

func newIndexStore(t *testing.T) (*vectorstore.Service, string) {
	t.Helper()

	root := filepath.Join(t.TempDir(), "vectorStore")
	svc, err := vectorstore.NewService(vectorstore.Config{Root: root}, hashEmbedder{}, zap.NewNop())
	require.NoError(t, err)
	return svc, root
}

func usbDocs() []schema.Document {
	return []schema.Document{{
		PageContent: "The device charges via USB-C.",
		Metadata:    map[string]any{"source": "manual.txt"},
	}}
}

func TestService_BuildRemote(t *testing.T) {
	indexes, _ := newIndexStore(t)
	m := newFakeMirror()
	loader := &fakeLoader{docs: map[string][]schema.Document{"SKU123": usbDocs()}}

	svc, err := knowledge.NewService(loader, indexes, m, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, svc.BuildRemote(context.Background(), "SKU123"))

	// Local artifact and remote mirror both exist.
	_, err = indexes.Open("SKU123")
	require.NoError(t, err)
	exists, err := m.Exists(context.Background(), "SKU123")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestService_BuildRemote_MissingPool(t *testing.T) {
	indexes, _ := newIndexStore(t)
	m := newFakeMirror()

	svc, err := knowledge.NewService(&fakeLoader{}, indexes, m, zap.NewNop())
	require.NoError(t, err)

	err = svc.BuildRemote(context.Background(), "SKU404")
	assert.ErrorIs(t, err, pool.ErrPoolNotFound)

	// Nothing may reach remote storage for a product with no documents.
	exists, _ := m.Exists(context.Background(), "SKU404")
	assert.False(t, exists)
}

func TestService_BuildRemote_UploadFailureKeepsLocal(t *testing.T) {
	indexes, _ := newIndexStore(t)
	m := newFakeMirror()
	m.uploadErr = mirror.ErrRemote
	loader := &fakeLoader{docs: map[string][]schema.Document{"SKU123": usbDocs()}}

	svc, err := knowledge.NewService(loader, indexes, m, zap.NewNop())
	require.NoError(t, err)

	err = svc.BuildRemote(context.Background(), "SKU123")
	assert.ErrorIs(t, err, mirror.ErrRemote)

	// Remote sync failure does not roll back the local build.
	_, err = indexes.Open("SKU123")
	assert.NoError(t, err)
}

func TestService_BuildRemote_NoMirrorConfigured(t *testing.T) {
	indexes, _ := newIndexStore(t)
	loader := &fakeLoader{docs: map[string][]schema.Document{"SKU123": usbDocs()}}

	svc, err := knowledge.NewService(loader, indexes, nil, zap.NewNop())
	require.NoError(t, err)

	err = svc.BuildRemote(context.Background(), "SKU123")
	assert.ErrorIs(t, err, knowledge.ErrRemoteNotConfigured)
}

func TestService_Resolve_PrefersLocal(t *testing.T) {
	indexes, _ := newIndexStore(t)
	loader := &fakeLoader{docs: map[string][]schema.Document{"SKU123": usbDocs()}}

	svc, err := knowledge.NewService(loader, indexes, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.BuildLocal(context.Background(), "SKU123")
	require.NoError(t, err)

	index, err := svc.Resolve(context.Background(), "SKU123")
	require.NoError(t, err)
	assert.Equal(t, 1, index.Count())
}

func TestService_Resolve_FetchesRemoteMirror(t *testing.T) {
	ctx := context.Background()
	m := newFakeMirror()
	loader := &fakeLoader{docs: map[string][]schema.Document{"SKU123": usbDocs()}}

	// Build and mirror with one index store, resolve with a fresh one
	// (fresh vector root), simulating a second machine.
	buildIndexes, _ := newIndexStore(t)
	builder, err := knowledge.NewService(loader, buildIndexes, m, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, builder.BuildRemote(ctx, "SKU123"))

	freshIndexes, _ := newIndexStore(t)
	resolver, err := knowledge.NewService(loader, freshIndexes, m, zap.NewNop())
	require.NoError(t, err)

	index, err := resolver.Resolve(ctx, "SKU123")
	require.NoError(t, err)
	assert.Equal(t, 1, index.Count())

	results, err := index.Search(ctx, "The device charges via USB-C.", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "USB-C")
}

func TestService_Resolve_NotFoundAnywhere(t *testing.T) {
	indexes, _ := newIndexStore(t)

	svc, err := knowledge.NewService(&fakeLoader{}, indexes, newFakeMirror(), zap.NewNop())
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), "SKU404")
	assert.ErrorIs(t, err, vectorstore.ErrIndexNotFound)
}

func TestService_Resolve_NotFoundLocalOnly(t *testing.T) {
	indexes, _ := newIndexStore(t)

	svc, err := knowledge.NewService(&fakeLoader{}, indexes, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), "SKU404")
	assert.ErrorIs(t, err, vectorstore.ErrIndexNotFound)
}
