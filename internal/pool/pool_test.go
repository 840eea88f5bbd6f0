package pool_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/kbchat/internal/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrap_Idempotent(t *testing.T) {
	base := t.TempDir()
	knowledge := filepath.Join(base, "productKnowledgePool")
	vectors := filepath.Join(base, "vectorStore")

	require.NoError(t, pool.Bootstrap(knowledge, vectors))
	assert.DirExists(t, knowledge)
	assert.DirExists(t, vectors)

	// Second call must not error or disturb existing content.
	marker := filepath.Join(knowledge, "SKU123")
	require.NoError(t, os.Mkdir(marker, 0o755))
	require.NoError(t, pool.Bootstrap(knowledge, vectors))
	assert.DirExists(t, marker)
}

func TestValidateProductID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{id: "SKU123"},
		{id: "device-2.4_rev"},
		{id: "", wantErr: true},
		{id: "../escape", wantErr: true},
		{id: "a/b", wantErr: true},
		{id: ".hidden", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := pool.ValidateProductID(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, pool.ErrInvalidProductID)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDir(t *testing.T) {
	assert.Equal(t, filepath.Join("root", "SKU123"), pool.Dir("root", "SKU123"))
}
