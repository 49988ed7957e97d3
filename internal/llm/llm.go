// Package llm drafts newsletters through an OpenAI-compatible chat
// completions endpoint, one-shot or streamed.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"rss_digest/internal/model"
	"rss_digest/internal/prompt"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-4o-mini"

// ErrInvalidDraft is returned when the model's result does not satisfy the
// draft schema.
var ErrInvalidDraft = errors.New("invalid draft")

// ErrEmptyResponse is returned when the endpoint answers without content.
var ErrEmptyResponse = errors.New("empty model response")

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient openai.HTTPDoer
}

// Client produces validated drafts from prompts.
type Client struct {
	api      *openai.Client
	model    string
	validate *validator.Validate
	log      *slog.Logger
}

// New creates a Client.
func New(cfg Config, log *slog.Logger) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	m := cfg.Model
	if m == "" {
		m = DefaultModel
	}
	return &Client{
		api:      openai.NewClientWithConfig(oc),
		model:    m,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// Generate returns the complete draft for p.
func (c *Client) Generate(ctx context.Context, p prompt.Prompt) (*model.Draft, error) {
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, c.request(p))
	if err != nil {
		return nil, fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse
	}

	c.log.Debug("draft generated",
		"model", c.model,
		"duration", time.Since(start),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return c.ParseDraft(resp.Choices[0].Message.Content)
}

// Stream generates a draft incrementally. onPartial receives a best-effort
// decode of the output so far each time it grows into a new parseable
// state; it may be nil. The returned draft is complete and validated.
func (c *Client) Stream(ctx context.Context, p prompt.Prompt, onPartial func(model.Draft)) (*model.Draft, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, c.request(p))
	if err != nil {
		return nil, fmt.Errorf("create chat completion stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	var (
		buf  strings.Builder
		last string
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("receive chunk: %w", err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		buf.WriteString(chunk.Choices[0].Delta.Content)

		if onPartial == nil {
			continue
		}
		repaired, ok := RepairJSON(buf.String())
		if !ok || repaired == last {
			continue
		}
		last = repaired
		if d, ok := decodeDraft(repaired); ok {
			onPartial(d)
		}
	}

	if buf.Len() == 0 {
		return nil, ErrEmptyResponse
	}
	return c.ParseDraft(buf.String())
}

// ParseDraft decodes raw model output and validates it against the schema.
func (c *Client) ParseDraft(raw string) (*model.Draft, error) {
	var d model.Draft
	if err := unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}
	if err := c.validate.Struct(d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}
	return &d, nil
}

func (c *Client) request(p prompt.Prompt) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "newsletter_draft",
				Schema: DraftSchema(),
				Strict: true,
			},
		},
	}
}

// DraftSchema describes model.Draft for structured output. Strict mode
// requires every property, so additional_info is an empty string when the
// model has nothing to add.
func DraftSchema() *jsonschema.Definition {
	five := func(desc string) jsonschema.Definition {
		return jsonschema.Definition{
			Type:        jsonschema.Array,
			Description: desc,
			Items:       &jsonschema.Definition{Type: jsonschema.String},
		}
	}
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"titles":            five("Exactly five newsletter title suggestions"),
			"subjects":          five("Exactly five email subject lines"),
			"body":              {Type: jsonschema.String, Description: "Newsletter body in markdown"},
			"top_announcements": five("Exactly five most important announcements"),
			"additional_info":   {Type: jsonschema.String, Description: "Optional extra notes, empty if none"},
		},
		Required:             []string{"titles", "subjects", "body", "top_announcements", "additional_info"},
		AdditionalProperties: false,
	}
}
