package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/smartquiz/internal/llm/prompts"
	"github.com/pavelanni/smartquiz/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse is returned when the model produced no usable text.
var ErrEmptyResponse = errors.New("LLM returned an empty response")

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api          *openai.Client
	model        string
	format       model.OutputFormat
	minQuestions int
	maxQuestions int
}

// Option configures a Client.
type Option func(*Client)

// WithQuestionRange sets how many questions the prompt asks for.
func WithQuestionRange(minQ, maxQ int) Option {
	return func(c *Client) {
		c.minQuestions = minQ
		c.maxQuestions = maxQ
	}
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string, format model.OutputFormat, opts ...Option) (*Client, error) {
	if modelName == "" {
		return nil, errors.New("model name is required")
	}
	if format != model.FormatText && format != model.FormatJSON {
		return nil, fmt.Errorf("unknown output format %q", format)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	c := &Client{
		api:          openai.NewClientWithConfig(config),
		model:        modelName,
		format:       format,
		minQuestions: 5,
		maxQuestions: 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.minQuestions < 1 || c.maxQuestions < c.minQuestions {
		return nil, fmt.Errorf("invalid question range %d-%d", c.minQuestions, c.maxQuestions)
	}
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Format returns the output format requested from the model.
func (c *Client) Format() model.OutputFormat { return c.format }

// Ping checks that the endpoint is reachable and knows the configured model.
func (c *Client) Ping(ctx context.Context) error {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range list.Models {
		if m.ID == c.model {
			return nil
		}
	}
	slog.Warn("configured model not listed by endpoint", "model", c.model, "available", len(list.Models))
	return nil
}

// GenerateQuiz asks the model for multiple-choice questions about summary
// and returns its raw output.
func (c *Client) GenerateQuiz(ctx context.Context, summary string) (string, error) {
	prompt, err := prompts.BuildQuizPrompt(c.format, summary, c.minQuestions, c.maxQuestions)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
	}
	if c.format == model.FormatJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("LLM response", "raw", raw)
	if raw == "" {
		return "", ErrEmptyResponse
	}
	return raw, nil
}
