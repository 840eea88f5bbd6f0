package pool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unioffice/spreadsheet"
	"go.uber.org/zap"
)

// Loader reads a product's document set from the knowledge pool.
//
// Only the top level of the product folder is scanned; the pool
// convention is flat per-product folders. Files are parsed according to
// their extension; unknown extensions are skipped, not errors.
type Loader struct {
	root   string
	logger *zap.Logger
}

// NewLoader creates a Loader over the given knowledge-pool root.
func NewLoader(root string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{root: root, logger: logger}
}

// LoadDocuments loads every parseable file under the product's folder.
//
// Returns ErrPoolNotFound if the folder is missing or yields no
// documents, so callers never build an empty index.
func (l *Loader) LoadDocuments(ctx context.Context, productID string) ([]schema.Document, error) {
	if err := ValidateProductID(productID); err != nil {
		return nil, err
	}

	dir := Dir(l.root, productID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no folder for product %q at %s", ErrPoolNotFound, productID, dir)
		}
		return nil, fmt.Errorf("reading pool folder %s: %w", dir, err)
	}

	var docs []schema.Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		name := entry.Name()
		path := filepath.Join(dir, name)

		loaded, err := l.loadFile(ctx, path, name)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", name, err)
		}
		docs = append(docs, loaded...)
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no loadable documents for product %q", ErrPoolNotFound, productID)
	}

	l.logger.Debug("loaded product documents",
		zap.String("product_id", productID),
		zap.Int("documents", len(docs)),
	)

	return docs, nil
}

// loadFile dispatches to a parser by file extension.
func (l *Loader) loadFile(ctx context.Context, path, name string) ([]schema.Document, error) {
	ext := strings.ToLower(filepath.Ext(name))

	var (
		docs []schema.Document
		err  error
	)

	switch ext {
	case ".txt", ".md":
		docs, err = l.loadText(path, name)
	case ".pdf":
		docs, err = l.loadPDF(ctx, path, name)
	case ".docx", ".doc":
		docs, err = l.loadWord(path, name)
	case ".xlsx", ".xls":
		docs, err = l.loadExcel(path, name)
	default:
		l.logger.Debug("skipping file with unsupported extension",
			zap.String("file", name),
			zap.String("extension", ext),
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	l.logger.Debug("parsed file",
		zap.String("file", name),
		zap.Int("documents", len(docs)),
	)
	return docs, nil
}

func (l *Loader) loadText(path, name string) ([]schema.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Binary files masquerading as text are skipped.
	if !utf8.Valid(content) {
		l.logger.Debug("skipping non-UTF8 file", zap.String("file", name))
		return nil, nil
	}

	text := strings.TrimSpace(string(content))
	if text == "" {
		return nil, nil
	}

	return []schema.Document{{
		PageContent: text,
		Metadata:    sourceMetadata(name),
	}}, nil
}

func (l *Loader) loadPDF(ctx context.Context, path, name string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	docs, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing pdf: %w", err)
	}

	for i := range docs {
		docs[i].Metadata = mergeSourceMetadata(docs[i].Metadata, name)
	}
	return docs, nil
}

func (l *Loader) loadWord(path, name string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	doc, err := document.Read(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parsing word document: %w", err)
	}
	defer doc.Close()

	var sb strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			sb.WriteString(run.Text())
		}
		sb.WriteString("\n")
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, nil
	}

	return []schema.Document{{
		PageContent: text,
		Metadata:    sourceMetadata(name),
	}}, nil
}

func (l *Loader) loadExcel(path, name string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	wb, err := spreadsheet.Read(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parsing spreadsheet: %w", err)
	}
	defer wb.Close()

	// One document per sheet keeps retrieval granular, mirroring
	// element-mode spreadsheet loading.
	var docs []schema.Document
	for _, sheet := range wb.Sheets() {
		var sb strings.Builder
		for _, row := range sheet.Rows() {
			var cells []string
			for _, cell := range row.Cells() {
				if v := cell.GetString(); v != "" {
					cells = append(cells, v)
				}
			}
			if len(cells) > 0 {
				sb.WriteString(strings.Join(cells, "\t"))
				sb.WriteString("\n")
			}
		}

		text := strings.TrimSpace(sb.String())
		if text == "" {
			continue
		}

		meta := sourceMetadata(name)
		meta["sheet"] = sheet.Name()
		docs = append(docs, schema.Document{PageContent: text, Metadata: meta})
	}

	return docs, nil
}

func sourceMetadata(name string) map[string]any {
	return map[string]any{"source": name}
}

func mergeSourceMetadata(meta map[string]any, name string) map[string]any {
	if meta == nil {
		meta = make(map[string]any, 1)
	}
	meta["source"] = name
	return meta
}
