package pipeline

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"courtside/internal/services"
)

const maxDetailLength = 200

func responseError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	kind := services.ErrServerRejected
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		kind = services.ErrUnauthorized
	}
	detail := extractDetail(body)
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	return &services.RemoteError{
		Kind:       kind,
		Op:         op,
		StatusCode: resp.StatusCode,
		Detail:     detail,
	}
}

// extractDetail pulls a human-readable message out of an error body. The
// pipeline reports {"detail": "..."} or a list of validation entries; proxies
// in front of it may return {"error": "..."} or plain text.
func extractDetail(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		if strings.HasPrefix(trimmed, "<") {
			return ""
		}
		return truncate(trimmed)
	}
	if detail := decodeDetail(payload.Detail); detail != "" {
		return truncate(detail)
	}
	if payload.Error != "" {
		return truncate(payload.Error)
	}
	return truncate(payload.Message)
}

func decodeDetail(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var entries []struct {
		Msg string `json:"msg"`
		Loc []any  `json:"loc"`
	}
	if err := json.Unmarshal(raw, &entries); err == nil {
		msgs := make([]string, 0, len(entries))
		for _, entry := range entries {
			if msg := strings.TrimSpace(entry.Msg); msg != "" {
				msgs = append(msgs, msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return strings.TrimSpace(string(raw))
}

func truncate(s string) string {
	if len(s) <= maxDetailLength {
		return s
	}
	return s[:maxDetailLength] + "..."
}
