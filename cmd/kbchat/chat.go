package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/kbchat/internal/chat"
)

// chatCmd runs an interactive question loop for one product.
var chatCmd = &cobra.Command{
	Use:   "chat <product-id>",
	Short: "Chat interactively about a product",
	Long: `Start an interactive chat session about a product.

Questions are answered from the product's indexed documents. Follow-up
questions may refer to earlier turns; the session keeps the chat
history. Type "exit" or press Ctrl-D to quit.

Examples:
  kbchat chat SKU123`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	productID := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	model, err := a.chatModel()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	session, err := chat.NewSessionForProduct(ctx, productID, a.knowledge, model,
		chat.Config{RetrievalK: a.cfg.Chat.RetrievalK, Output: cmd.OutOrStdout()}, a.logger)
	if err != nil {
		return err
	}

	cmd.Printf("Chatting about %s. Type \"exit\" to quit.\n", productID)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		if err := session.AskAndPrint(ctx, question); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}

		if ctx.Err() != nil {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}
