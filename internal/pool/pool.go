// Package pool manages the local knowledge pool: the directory tree of
// source documents, one subfolder per product.
package pool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var (
	// ErrPoolNotFound is returned when a product has no knowledge-pool
	// folder, or the folder holds no loadable documents.
	ErrPoolNotFound = errors.New("product knowledge pool not found")

	// ErrInvalidProductID indicates a product identifier that cannot be
	// used as a directory name or remote prefix.
	ErrInvalidProductID = errors.New("invalid product id")
)

// productIDPattern restricts identifiers to names that are safe as both
// filesystem directories and object-storage prefixes.
var productIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateProductID checks that id is usable as a storage key.
func ValidateProductID(id string) error {
	if !productIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidProductID, id)
	}
	return nil
}

// Bootstrap ensures the knowledge-pool root and the vector-store root
// exist. Calling it repeatedly is a no-op once the directories are there.
func Bootstrap(knowledgeRoot, vectorRoot string) error {
	for _, dir := range []string{knowledgeRoot, vectorRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}

// Dir returns the pool folder for a product under root.
func Dir(root, productID string) string {
	return filepath.Join(root, productID)
}
