// Package docs resolves document references into bytes for model submission
// and defines the page-renderer contract for large-document mode.
package docs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yabrams/precon-demo-sub001/common/llm"
	"github.com/yabrams/precon-demo-sub001/internal/model"
)

// PageRenderer turns a document buffer into ordered pages with rendered
// images and extracted text. Rendering lives outside this engine; the
// interface is the full contract.
type PageRenderer interface {
	RenderPages(ctx context.Context, doc llm.Document) ([]model.RenderedPage, error)
}

var mimeByExtension = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
	".txt":  "text/plain",
}

// Provider loads document bytes from a local path, a web fetch, or an
// in-memory buffer. Failures wrap llm.ErrDocumentRead so they surface as
// DOCUMENT_READ_ERROR.
type Provider struct {
	httpClient *http.Client
}

func NewProvider() *Provider {
	return &Provider{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Load resolves one document reference to its bytes and media type.
func (p *Provider) Load(ctx context.Context, doc model.ExtractionDocument) (llm.Document, error) {
	data, err := p.loadBytes(ctx, doc)
	if err != nil {
		return llm.Document{}, fmt.Errorf("loading document %q: %v: %w", doc.Name, err, llm.ErrDocumentRead)
	}
	if len(data) == 0 {
		return llm.Document{}, fmt.Errorf("document %q is empty: %w", doc.Name, llm.ErrDocumentRead)
	}

	mimeType := doc.MimeType
	if mimeType == "" {
		mimeType = DetectMimeType(doc.Name)
	}

	return llm.Document{
		Name:     doc.Name,
		MimeType: mimeType,
		Data:     data,
	}, nil
}

// LoadAll resolves every document in order. The first failure aborts; a run
// with an unreadable document cannot produce a trustworthy baseline.
func (p *Provider) LoadAll(ctx context.Context, docs []model.ExtractionDocument) ([]llm.Document, error) {
	out := make([]llm.Document, 0, len(docs))
	for _, d := range docs {
		loaded, err := p.Load(ctx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, loaded)
	}
	return out, nil
}

func (p *Provider) loadBytes(ctx context.Context, doc model.ExtractionDocument) ([]byte, error) {
	src := doc.Source
	switch {
	case len(src.Data) > 0:
		return src.Data, nil
	case src.Path != "":
		return os.ReadFile(src.Path)
	case src.URL != "":
		return p.fetch(ctx, src.URL)
	default:
		return nil, fmt.Errorf("document has no source")
	}
}

func (p *Provider) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// DetectMimeType maps a filename extension to a media type, defaulting to
// JPEG the way the original upload path did for unknown image uploads.
func DetectMimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if mt, ok := mimeByExtension[ext]; ok {
		return mt
	}
	return "image/jpeg"
}
