package model

import "fmt"

// ErrorCode is the closed taxonomy of extraction failures.
type ErrorCode string

const (
	ErrCodeNoDocuments    ErrorCode = "NO_DOCUMENTS"
	ErrCodeDocumentRead   ErrorCode = "DOCUMENT_READ_ERROR"
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeRateLimit      ErrorCode = "RATE_LIMIT_ERROR"
	ErrCodeModelResponse  ErrorCode = "MODEL_RESPONSE_ERROR"
	ErrCodeTimeout        ErrorCode = "TIMEOUT_ERROR"
	ErrCodeUnknown        ErrorCode = "UNKNOWN_ERROR"
)

// ExtractionError is the structured failure returned to callers. PassNumber
// is zero when the failure happened outside a pass. Session carries whatever
// partial state existed when the run failed, so callers can show partial
// progress instead of an opaque failure.
type ExtractionError struct {
	Code       ErrorCode
	Message    string
	PassNumber int
	Session    *ExtractionSession
	Err        error
}

func (e *ExtractionError) Error() string {
	if e.PassNumber > 0 {
		return fmt.Sprintf("%s (pass %d): %s", e.Code, e.PassNumber, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError wraps err with a code and human message.
func NewExtractionError(code ErrorCode, message string, err error) *ExtractionError {
	return &ExtractionError{Code: code, Message: message, Err: err}
}
