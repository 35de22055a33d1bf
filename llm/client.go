// Package llm backs the pipeline's classifier, extractors and narrator with
// an OpenAI-compatible chat model.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ncobase/placesearch/config"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	// DefaultModel is used when none is configured
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout bounds one model call
	DefaultTimeout = 10 * time.Second
)

var (
	// ErrAPIKeyNotSet is returned when no API key is configured
	ErrAPIKeyNotSet = errors.New("llm: api key not set")

	// ErrInvalidResponse is returned when the model reply is not the expected JSON
	ErrInvalidResponse = errors.New("llm: invalid response format")
)

// Client is a thin JSON-mode chat client.
type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewClient creates a client from cfg.
func NewClient(cfg *config.LLM) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	c := &Client{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c, nil
}

// ModelName returns the model in use.
func (c *Client) ModelName() string {
	return c.model
}

// completeJSON sends system and user prompts and decodes the JSON reply into out.
func (c *Client) completeJSON(ctx context.Context, system, user string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return fmt.Errorf("llm call failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return fmt.Errorf("%w: no choices returned", ErrInvalidResponse)
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
