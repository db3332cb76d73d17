package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/invopop/jsonschema"
)

// Provider constants for model provider selection.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Purpose identifies what a pass asks the model to do. The client only uses
// it for logging; the instructions carry the actual task.
type Purpose string

const (
	PurposeExtract       Purpose = "extract"
	PurposeReview        Purpose = "review"
	PurposeDeepDive      Purpose = "deep_dive"
	PurposeCrossValidate Purpose = "cross_validate"
	PurposeFinalValidate Purpose = "final_validate"
)

// Typed failures for the caller to branch on with errors.Is. Provider
// clients wrap these around the underlying SDK error.
var (
	ErrAuthentication    = errors.New("model authentication failed")
	ErrRateLimited       = errors.New("model rate limited")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrTimeout           = errors.New("model call timed out")
	ErrDocumentRead      = errors.New("document unreadable")
)

// Document is one encoded document attached to a pass request.
type Document struct {
	Name     string
	MimeType string
	Data     []byte
}

// PassRequest is a single model invocation: all documents for the pass plus
// a deterministic, versioned instruction template and optional prior state.
type PassRequest struct {
	Purpose      Purpose
	System       string
	Instructions string
	Documents    []Document
	// Context carries the serialized current extraction state for review
	// and validation passes. Empty for initial extraction.
	Context     string
	MaxTokens   int
	Temperature *float64 // nil = model default, explicit 0 = deterministic
}

// Usage is normalized token accounting across providers.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// PassResponse is the best-effort text payload of one model call. Text is
// expected to contain JSON but is not guaranteed to parse; see ParseJSON.
type PassResponse struct {
	Text  string
	Usage Usage
	Model string
}

// Client is the uniform interface to a document-understanding model. It
// holds no session state and is safe to share across concurrent runs.
type Client interface {
	SubmitPass(ctx context.Context, req PassRequest) (*PassResponse, error)
	Model() string
}

// Config holds model client configuration.
type Config struct {
	Provider  string // "anthropic" or "openai"
	APIKey    string
	BaseURL   string // optional custom endpoint
	Model     string
	MaxTokens int
}

// NewClient creates a Client for the configured provider. Defaults to
// Anthropic if no provider is specified.
func NewClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderAnthropic
	}

	switch provider {
	case ProviderAnthropic:
		return newAnthropicClient(cfg)
	case ProviderOpenAI:
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", provider)
	}
}

// GenerateSchema generates a JSON schema from a response struct type. The
// schema is embedded in pass instructions so the model returns the expected
// shape.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

// IsRetryable reports whether a failed model call is worth retrying.
// Authentication failures and malformed responses are not; rate limits,
// timeouts, and network errors are.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		slog.DebugContext(ctx, "model error not retryable: context cancelled")
		return false
	}

	switch {
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrDocumentRead):
		return false
	case errors.Is(err, ErrRateLimited):
		slog.WarnContext(ctx, "model rate limited, will retry")
		return true
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		slog.WarnContext(ctx, "model call timed out, will retry")
		return true
	}

	// Network errors with no typed mapping are generally retryable
	slog.WarnContext(ctx, "model transport error, will retry", "error", err)
	return true
}
