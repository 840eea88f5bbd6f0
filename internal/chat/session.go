// Package chat answers free-text questions about one product by
// combining retrieved index chunks with a hosted chat-completion API.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/memory"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/kbchat/internal/vectorstore"
)

// ErrUpstream indicates the hosted chat-completion API was unreachable
// or returned an error.
var ErrUpstream = errors.New("chat completion API failure")

// Hosted API politeness limits, matching typical per-key quotas.
const (
	requestsPerSecond = 2
	requestBurst      = 4
)

// Retriever returns the chunks most relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]vectorstore.SearchResult, error)
}

// Resolver resolves a product's embedding index, local or remote.
type Resolver interface {
	Resolve(ctx context.Context, productID string) (*vectorstore.Index, error)
}

// Config holds session settings.
type Config struct {
	// RetrievalK is how many chunks are retrieved per question.
	RetrievalK int

	// Output receives AskAndPrint answers. Defaults to stdout.
	Output io.Writer
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.RetrievalK == 0 {
		c.RetrievalK = 15
	}
	if c.Output == nil {
		c.Output = os.Stdout
	}
}

// Session answers questions about one product. It holds a read-only
// reference to the product's index and accumulates chat history, so a
// session answers any number of questions. Sessions are not safe for
// concurrent use.
type Session struct {
	productID string
	model     llms.Model
	retriever Retriever
	history   *memory.ChatMessageHistory
	config    Config
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewSession creates a session over an already-resolved retriever.
func NewSession(productID string, model llms.Model, retriever Retriever, config Config, logger *zap.Logger) (*Session, error) {
	if model == nil {
		return nil, errors.New("chat model is required")
	}
	if retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	return &Session{
		productID: productID,
		model:     model,
		retriever: retriever,
		history:   memory.NewChatMessageHistory(),
		config:    config,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		logger:    logger,
	}, nil
}

// NewSessionForProduct resolves the product's index (local copy first,
// otherwise the remote mirror) and opens a session over it.
//
// Fails with vectorstore.ErrIndexNotFound when no index exists for the
// product anywhere.
func NewSessionForProduct(ctx context.Context, productID string, resolver Resolver, model llms.Model, config Config, logger *zap.Logger) (*Session, error) {
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}

	index, err := resolver.Resolve(ctx, productID)
	if err != nil {
		return nil, err
	}

	return NewSession(productID, model, index, config, logger)
}

// ProductID returns the product this session answers for.
func (s *Session) ProductID() string {
	return s.productID
}

// Ask answers a question using retrieved context and the chat model.
//
// Follow-up questions are first condensed against the session history
// into standalone questions, then the top-k chunks are retrieved and
// stuffed into the answer prompt together with the history. The hosted
// API is called once per step; failures surface as ErrUpstream.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", errors.New("question cannot be empty")
	}

	past, err := s.historyMessages(ctx)
	if err != nil {
		return "", err
	}

	standalone := question
	if len(past) > 0 {
		standalone, err = s.condense(ctx, past, question)
		if err != nil {
			return "", err
		}
	}

	results, err := s.retriever.Search(ctx, standalone, s.config.RetrievalK)
	if err != nil {
		return "", fmt.Errorf("retrieving context: %w", err)
	}

	answer, err := s.answer(ctx, past, question, results)
	if err != nil {
		return "", err
	}

	if err := s.history.AddUserMessage(ctx, question); err != nil {
		return "", fmt.Errorf("recording question: %w", err)
	}
	if err := s.history.AddAIMessage(ctx, answer); err != nil {
		return "", fmt.Errorf("recording answer: %w", err)
	}

	s.logger.Debug("answered question",
		zap.String("product_id", s.productID),
		zap.Int("retrieved_chunks", len(results)),
	)

	return answer, nil
}

// AskAndPrint answers like Ask and also writes the answer to the
// configured output. The answer text is identical to what Ask returns.
func (s *Session) AskAndPrint(ctx context.Context, question string) error {
	answer, err := s.Ask(ctx, question)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.config.Output, "\nAnswer:\n%s\n", answer); err != nil {
		return fmt.Errorf("writing answer: %w", err)
	}
	return nil
}

// condense rewrites the question into a standalone one using history.
func (s *Session) condense(ctx context.Context, past []llms.MessageContent, question string) (string, error) {
	messages := make([]llms.MessageContent, 0, len(past)+2)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, condenseSystemPrompt))
	messages = append(messages, past...)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, question))

	standalone, err := s.generate(ctx, messages)
	if err != nil {
		return "", err
	}

	standalone = strings.TrimSpace(standalone)
	if standalone == "" {
		return question, nil
	}
	return standalone, nil
}

// answer produces the final response from retrieved chunks and history.
func (s *Session) answer(ctx context.Context, past []llms.MessageContent, question string, results []vectorstore.SearchResult) (string, error) {
	var contextText strings.Builder
	for i, result := range results {
		if i > 0 {
			contextText.WriteString("\n\n")
		}
		contextText.WriteString(result.Content)
	}

	messages := make([]llms.MessageContent, 0, len(past)+2)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, answerSystemPrompt+contextText.String()))
	messages = append(messages, past...)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, question))

	return s.generate(ctx, messages)
}

// generate makes a single rate-limited call to the chat model.
func (s *Session) generate(ctx context.Context, messages []llms.MessageContent) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := s.model.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrUpstream)
	}

	return resp.Choices[0].Content, nil
}

// historyMessages converts stored history into prompt messages.
func (s *Session) historyMessages(ctx context.Context) ([]llms.MessageContent, error) {
	stored, err := s.history.Messages(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	messages := make([]llms.MessageContent, 0, len(stored))
	for _, msg := range stored {
		messages = append(messages, llms.TextParts(msg.GetType(), msg.GetContent()))
	}
	return messages, nil
}
