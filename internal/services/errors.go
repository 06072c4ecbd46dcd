package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrTransport      = errors.New("transport error")
	ErrServerRejected = errors.New("server rejected request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrFetch          = errors.New("status fetch failed")
	ErrNotFound       = errors.New("not found")
	ErrExternalTool   = errors.New("external tool error")
	ErrConfiguration  = errors.New("configuration error")
)

// ErrorClassifier allows errors to declare their classification.
type ErrorClassifier interface {
	ErrorKind() string
}

// UserDetailer is implemented by errors that carry a short detail suitable
// for showing to the user verbatim.
type UserDetailer interface {
	UserDetail() string
}

// Wrap builds an error message that includes operation context while tagging
// it with the provided marker. The marker should be one of the exported
// sentinel errors above.
func Wrap(marker error, operation, message string, err error) error {
	detail := buildDetail(operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// RemoteError describes a failed call to the analysis pipeline.
type RemoteError struct {
	Kind       error
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	kind := e.Kind
	if kind == nil {
		kind = ErrTransport
	}
	b.WriteString(kind.Error())
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RemoteError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Is matches ErrNotFound for 404 responses in addition to the error kind.
func (e *RemoteError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

func (e *RemoteError) ErrorKind() string {
	return KindName(e.Kind)
}

func (e *RemoteError) UserDetail() string {
	return e.Detail
}

// KindName returns the short classification for a sentinel marker.
func KindName(kind error) string {
	switch {
	case errors.Is(kind, ErrValidation):
		return "validation"
	case errors.Is(kind, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(kind, ErrServerRejected):
		return "server_rejected"
	case errors.Is(kind, ErrFetch):
		return "fetch"
	case errors.Is(kind, ErrNotFound):
		return "not_found"
	case errors.Is(kind, ErrExternalTool):
		return "external_tool"
	case errors.Is(kind, ErrConfiguration):
		return "configuration"
	default:
		return "transport"
	}
}

// IsRetryable reports whether retrying the same action later may succeed.
// Client-correctable failures (invalid file, bad credentials, rejected input)
// are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var remote *RemoteError
	if errors.As(err, &remote) && errors.Is(remote.Kind, ErrServerRejected) {
		return remote.StatusCode >= http.StatusInternalServerError || remote.StatusCode == http.StatusTooManyRequests
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnauthorized), errors.Is(err, ErrConfiguration):
		return false
	case errors.Is(err, ErrServerRejected):
		return false
	}
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrFetch) || errors.Is(err, context.DeadlineExceeded)
}

// UserMessage converts an error into a short actionable message. Problems the
// user can fix locally are worded differently from server-side failures that
// only a later retry can resolve.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	detail := userDetail(err)
	switch {
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	case errors.Is(err, ErrValidation):
		return withDetail("The file cannot be uploaded", detail) + " Choose a video file within the size limit and try again."
	case errors.Is(err, ErrUnauthorized):
		return "The pipeline rejected your credentials. Set api.token or COURTSIDE_API_TOKEN and sign in again."
	case errors.Is(err, ErrNotFound):
		return withDetail("The pipeline has no record of that job", detail) + " Check the job id with `courtside list`."
	case errors.Is(err, ErrServerRejected):
		if IsRetryable(err) {
			return withDetail("The pipeline failed while handling the request", detail) + " This is a server-side problem; retry later."
		}
		return withDetail("The pipeline rejected the request", detail)
	case errors.Is(err, ErrFetch):
		return "Could not refresh the job status after repeated attempts. The job may still be running; retry later with `courtside watch`."
	case errors.Is(err, ErrTransport), errors.Is(err, context.DeadlineExceeded):
		return "Could not reach the analysis pipeline. Check the connection or api.base_url and retry later."
	case errors.Is(err, ErrExternalTool):
		return withDetail("An external tool failed", err.Error())
	case errors.Is(err, ErrConfiguration):
		return withDetail("Configuration problem", err.Error())
	default:
		return err.Error()
	}
}

func userDetail(err error) string {
	var detailer UserDetailer
	if errors.As(err, &detailer) {
		return strings.TrimSpace(detailer.UserDetail())
	}
	return ""
}

func withDetail(prefix, detail string) string {
	if detail == "" {
		return prefix + "."
	}
	return prefix + ": " + strings.TrimSuffix(detail, ".") + "."
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
