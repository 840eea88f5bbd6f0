package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/kbchat/internal/chat"
)

// askCmd answers a single question about a product.
var askCmd = &cobra.Command{
	Use:   "ask <product-id> <question>",
	Short: "Ask a single question about a product",
	Long: `Ask a single question about a product and print the answer.

The product's index is opened from the local vector root if present,
otherwise downloaded from object storage. The answer is grounded in
the most relevant document chunks.

Examples:
  kbchat ask SKU123 "How do I reset the device?"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	productID := args[0]
	question := strings.Join(args[1:], " ")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	model, err := a.chatModel()
	if err != nil {
		return err
	}

	session, err := chat.NewSessionForProduct(cmd.Context(), productID, a.knowledge, model,
		chat.Config{RetrievalK: a.cfg.Chat.RetrievalK, Output: cmd.OutOrStdout()}, a.logger)
	if err != nil {
		return err
	}

	return session.AskAndPrint(cmd.Context(), question)
}
