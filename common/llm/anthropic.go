package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func newAnthropicClient(cfg Config) (Client, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	return &anthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (c *anthropicClient) SubmitPass(ctx context.Context, req PassRequest) (*PassResponse, error) {
	content, err := c.buildContent(req)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokensFor(req)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(content...),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, c.mapError(err)
	}

	slog.DebugContext(ctx, "model pass completed",
		"provider", ProviderAnthropic,
		"model", c.model,
		"purpose", req.Purpose,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason)

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &PassResponse{
		Text: text.String(),
		Usage: Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
		Model: c.model,
	}, nil
}

func (c *anthropicClient) Model() string {
	return c.model
}

func (c *anthropicClient) maxTokensFor(req PassRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return c.maxTokens
}

// buildContent assembles the user turn: documents first (image and PDF
// blocks), then prior state context, then the instruction template.
func (c *anthropicClient) buildContent(req PassRequest) ([]anthropic.ContentBlockParamUnion, error) {
	var content []anthropic.ContentBlockParamUnion

	for _, doc := range req.Documents {
		if len(doc.Data) == 0 {
			return nil, fmt.Errorf("document %q has no data: %w", doc.Name, ErrDocumentRead)
		}
		encoded := base64.StdEncoding.EncodeToString(doc.Data)
		switch {
		case doc.MimeType == "application/pdf":
			content = append(content, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
				Data: encoded,
			}))
		case strings.HasPrefix(doc.MimeType, "image/"):
			content = append(content, anthropic.NewImageBlockBase64(doc.MimeType, encoded))
		case strings.HasPrefix(doc.MimeType, "text/"):
			content = append(content, anthropic.NewTextBlock(
				fmt.Sprintf("Document %q:\n%s", doc.Name, string(doc.Data))))
		default:
			return nil, fmt.Errorf("document %q has unsupported media type %q: %w", doc.Name, doc.MimeType, ErrDocumentRead)
		}
	}

	if req.Context != "" {
		content = append(content, anthropic.NewTextBlock(req.Context))
	}
	content = append(content, anthropic.NewTextBlock(req.Instructions))

	return content, nil
}

func (c *anthropicClient) mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("anthropic pass: %w", ErrTimeout)
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return fmt.Errorf("anthropic pass (status %d): %w", apiErr.StatusCode, ErrAuthentication)
		case apiErr.StatusCode == 429:
			return fmt.Errorf("anthropic pass: %w", ErrRateLimited)
		case apiErr.StatusCode == 408 || apiErr.StatusCode == 504:
			return fmt.Errorf("anthropic pass (status %d): %w", apiErr.StatusCode, ErrTimeout)
		}
	}
	return fmt.Errorf("anthropic pass: %w", err)
}
