package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/gomantics/repochat/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// MaxTokensPerRequest is the maximum tokens per embedding request
	MaxTokensPerRequest = 8000

	// MaxTextsPerBatch is the maximum number of texts per batch request
	MaxTextsPerBatch = 2048
)

var ErrNoAPIKey = errors.New("openai api key is not configured")

// Client talks to the embeddings and chat completion endpoints
type Client struct {
	c              openai.Client
	embeddingModel string
	chatModel      string
}

// New creates a client for the given models. opts are passed to the
// underlying SDK client, e.g. option.WithBaseURL.
func New(apiKey, embeddingModel, chatModel string, opts ...option.RequestOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{
		c:              openai.NewClient(opts...),
		embeddingModel: embeddingModel,
		chatModel:      chatModel,
	}, nil
}

// NewFromConfig creates a client from the [openai] config section
func NewFromConfig() (*Client, error) {
	return New(config.Openai.ApiKey(), config.Openai.EmbeddingModel(), config.Openai.ChatModel())
}

// Embed returns one embedding per text, in order
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var all [][]float32
	for _, batch := range ChunkTextsForEmbedding(texts) {
		embeddings, err := c.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		all = append(all, embeddings...)
	}
	return all, nil
}

// EmbedOne embeds a single text
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	out, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("expected one embedding, got %d", len(out))
	}
	return out[0], nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.c.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// milvus stores float32
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			v[j] = float32(f)
		}
		out[d.Index] = v
	}
	return out, nil
}

// Complete runs a single-turn chat completion and returns the reply text
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.c.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to complete chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// EstimateTokens is a rough token count: ~4 characters per token
func EstimateTokens(text string) int {
	return len(text) / 4
}

// ChunkTextsForEmbedding splits texts into batches that fit the request
// limits. Oversized texts are truncated.
func ChunkTextsForEmbedding(texts []string) [][]string {
	var (
		batches [][]string
		current []string
		tokens  int
	)

	for _, text := range texts {
		if maxChars := MaxTokensPerRequest * 4; len(text) > maxChars {
			text = text[:maxChars]
		}
		n := EstimateTokens(text)

		if len(current) > 0 && (tokens+n > MaxTokensPerRequest || len(current) >= MaxTextsPerBatch) {
			batches = append(batches, current)
			current = nil
			tokens = 0
		}

		current = append(current, text)
		tokens += n
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
