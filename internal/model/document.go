package model

// DocumentType categorizes a source document for pass routing.
// Specifications are excluded from the pass-1 document set and used
// as reference context in later passes.
type DocumentType string

const (
	DocumentTypeDrawing       DocumentType = "drawing"
	DocumentTypeSpecification DocumentType = "specification"
	DocumentTypeSchedule      DocumentType = "schedule"
	DocumentTypeAddendum      DocumentType = "addendum"
	DocumentTypeOther         DocumentType = "other"
)

// DocumentSource locates document bytes. Exactly one of Path, URL, or Data
// is set; the document provider resolves whichever is present.
type DocumentSource struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
	Data []byte `json:"-"`
}

// ExtractionDocument is an immutable reference to a caller-owned document.
// The engine never mutates it.
type ExtractionDocument struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Source    DocumentSource `json:"source"`
	Type      DocumentType   `json:"type"`
	MimeType  string         `json:"mime_type"`
	PageCount *int           `json:"page_count,omitempty"`
}
