// Package main implements the kbchat CLI: build product knowledge
// indexes and chat about products using retrieved context.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// configFile is the YAML config path; empty means ./kbchat.yaml.
	configFile string
	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	// Local .env files are a convenience for development; a missing
	// file is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kbchat",
	Short: "Product knowledge chatbot",
	Long: `kbchat answers questions about products from their own documents.

Each product has a folder of source documents under the knowledge root.
kbchat builds an embedding index per product, optionally mirrors it to
S3-compatible object storage, and answers questions by retrieving the
most relevant chunks and asking a hosted chat model.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./kbchat.yaml)")
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
}
