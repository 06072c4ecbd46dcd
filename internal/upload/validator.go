package upload

import (
	"errors"
	"fmt"

	"courtside/internal/services"
)

// DefaultMaxBytes is the default upload ceiling (100 MiB).
const DefaultMaxBytes int64 = 100 * 1024 * 1024

var (
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrTooLarge        = errors.New("file too large")
)

// ValidationError explains why a candidate was rejected.
type ValidationError struct {
	Reason      error
	Name        string
	ContentType string
	Size        int64
	Limit       int64
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Reason, ErrTooLarge) {
		return fmt.Sprintf("%s: %s is %d bytes, limit %d", e.Reason, e.Name, e.Size, e.Limit)
	}
	return fmt.Sprintf("%s: %s is %q", e.Reason, e.Name, e.ContentType)
}

func (e *ValidationError) Unwrap() []error {
	return []error{e.Reason, services.ErrValidation}
}

func (e *ValidationError) ErrorKind() string { return "validation" }

// UserDetail describes the problem in terms the user can act on.
func (e *ValidationError) UserDetail() string {
	if errors.Is(e.Reason, ErrTooLarge) {
		return fmt.Sprintf("%s is %s, larger than the %s limit", e.Name, FormatFileSize(e.Size), FormatFileSize(e.Limit))
	}
	contentType := e.ContentType
	if contentType == "" {
		contentType = "an unknown type"
	}
	return fmt.Sprintf("%s is %s, not a video", e.Name, contentType)
}

// Validator enforces client-side upload constraints.
type Validator struct {
	maxBytes int64
}

// NewValidator returns a validator with the given inclusive size ceiling. A
// non-positive ceiling uses DefaultMaxBytes.
func NewValidator(maxBytes int64) Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return Validator{maxBytes: maxBytes}
}

// MaxBytes returns the inclusive size ceiling.
func (v Validator) MaxBytes() int64 {
	if v.maxBytes <= 0 {
		return DefaultMaxBytes
	}
	return v.maxBytes
}

// Validate checks the media type first, then the size.
func (v Validator) Validate(c Candidate) error {
	if !IsVideoType(c.ContentType) {
		return &ValidationError{Reason: ErrUnsupportedType, Name: c.Name, ContentType: c.ContentType, Size: c.Size, Limit: v.MaxBytes()}
	}
	if c.Size > v.MaxBytes() {
		return &ValidationError{Reason: ErrTooLarge, Name: c.Name, ContentType: c.ContentType, Size: c.Size, Limit: v.MaxBytes()}
	}
	return nil
}
