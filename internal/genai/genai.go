// Package genai provides the LLM completion capability over the OpenAI API.
//
// No schema enforcement is guaranteed by the capability itself: callers that
// expect JSON must strip fences, parse, validate, and fall back on failure.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.ChatModelGPT4oMini

// Message is one prior conversation turn passed as completion context.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Completer is the completion capability consumed by extraction and dispatch.
// Implementations return the raw completion text with no post-processing.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteWithHistory(ctx context.Context, systemPrompt string, history []Message, userPrompt string) (string, error)
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding the environment.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	client openai.Client
	model  string
}

// NewClient initializes a GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable when not set via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	slog.Debug("GenAI.NewClient: client created", "model", model)
	return &Client{client: openai.NewClient(option.WithAPIKey(apiKey)), model: model}, nil
}

// Complete sends a single system+user exchange and returns the completion text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.CompleteWithHistory(ctx, systemPrompt, nil, userPrompt)
}

// CompleteWithHistory sends the system prompt, prior turns and the current
// user prompt as one completion request.
func (c *Client) CompleteWithHistory(ctx context.Context, systemPrompt string, history []Message, userPrompt string) (string, error) {
	messages := buildMessages(systemPrompt, history, userPrompt)
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("GenAI.CompleteWithHistory: completion failed", "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// buildMessages assembles the role-tagged message sequence. Unknown history
// roles are treated as user turns.
func buildMessages(systemPrompt string, history []Message, userPrompt string) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	for _, msg := range history {
		if msg.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(msg.Content))
		} else {
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	if userPrompt != "" {
		messages = append(messages, openai.UserMessage(userPrompt))
	}
	return messages
}
