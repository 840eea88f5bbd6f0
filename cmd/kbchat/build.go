package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var localOnly bool

func init() {
	buildCmd.Flags().BoolVar(&localOnly, "local-only", false, "Build the index locally without uploading it")
}

// buildCmd builds a product's embedding index from its document folder.
var buildCmd = &cobra.Command{
	Use:   "build <product-id>",
	Short: "Build the embedding index for a product",
	Long: `Build the embedding index for a product from its document folder.

The product's documents are read from <knowledge-root>/<product-id>,
split into chunks, embedded, and persisted as an index under
<vector-root>/<product-id>. An existing index for the product is
replaced. Unless --local-only is given and a storage bucket is
configured, the finished index is uploaded to object storage so other
machines can use it.

Examples:
  # Build and mirror the index for one product
  kbchat build SKU123

  # Build without touching remote storage
  kbchat build SKU123 --local-only`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	productID := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()

	if localOnly || a.mirror == nil {
		index, err := a.knowledge.BuildLocal(ctx, productID)
		if err != nil {
			return err
		}
		cmd.Printf("Built local index for %s (%d chunks)\n", productID, index.Count())
		return nil
	}

	if err := a.mirror.CheckBucket(ctx); err != nil {
		return fmt.Errorf("checking storage bucket: %w", err)
	}

	if err := a.knowledge.BuildRemote(ctx, productID); err != nil {
		return err
	}

	cmd.Printf("Built and uploaded index for %s\n", productID)
	return nil
}
