package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openaiClient is the cross-validation backend. It is typically configured
// with a different underlying model than the primary client to reduce
// correlated blind spots during pass 4.
type openaiClient struct {
	client    openai.Client
	model     string
	maxTokens int
}

func newOpenAIClient(cfg Config) (Client, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	return &openaiClient{
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (c *openaiClient) SubmitPass(ctx context.Context, req PassRequest) (*PassResponse, error) {
	parts, err := c.buildParts(req)
	if err != nil {
		return nil, err
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage(parts),
	}
	if req.System != "" {
		messages = append([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
		}, messages...)
	}

	params := openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(c.maxTokensFor(req))),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.mapError(err)
	}

	slog.DebugContext(ctx, "model pass completed",
		"provider", ProviderOpenAI,
		"model", c.model,
		"purpose", req.Purpose,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response: %w", ErrMalformedResponse)
	}

	return &PassResponse{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
		Model: c.model,
	}, nil
}

func (c *openaiClient) Model() string {
	return c.model
}

func (c *openaiClient) maxTokensFor(req PassRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return c.maxTokens
}

// buildParts mirrors the Anthropic content layout using chat-completion
// parts. Images travel as base64 data URLs; PDFs are not accepted by the
// completions API, so PDF documents must be pre-rendered to pages before
// reaching this backend.
func (c *openaiClient) buildParts(req PassRequest) ([]openai.ChatCompletionContentPartUnionParam, error) {
	var parts []openai.ChatCompletionContentPartUnionParam

	for _, doc := range req.Documents {
		if len(doc.Data) == 0 {
			return nil, fmt.Errorf("document %q has no data: %w", doc.Name, ErrDocumentRead)
		}
		switch {
		case strings.HasPrefix(doc.MimeType, "image/"):
			dataURL := fmt.Sprintf("data:%s;base64,%s", doc.MimeType, base64.StdEncoding.EncodeToString(doc.Data))
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: dataURL,
			}))
		case strings.HasPrefix(doc.MimeType, "text/"):
			parts = append(parts, openai.TextContentPart(
				fmt.Sprintf("Document %q:\n%s", doc.Name, string(doc.Data))))
		default:
			return nil, fmt.Errorf("document %q has unsupported media type %q for validation backend: %w", doc.Name, doc.MimeType, ErrDocumentRead)
		}
	}

	if req.Context != "" {
		parts = append(parts, openai.TextContentPart(req.Context))
	}
	parts = append(parts, openai.TextContentPart(req.Instructions))

	return parts, nil
}

func (c *openaiClient) mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("openai pass: %w", ErrTimeout)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return fmt.Errorf("openai pass (status %d): %w", apiErr.StatusCode, ErrAuthentication)
		case apiErr.StatusCode == 429:
			return fmt.Errorf("openai pass: %w", ErrRateLimited)
		case apiErr.StatusCode == 408 || apiErr.StatusCode == 504:
			return fmt.Errorf("openai pass (status %d): %w", apiErr.StatusCode, ErrTimeout)
		}
	}
	return fmt.Errorf("openai pass: %w", err)
}
