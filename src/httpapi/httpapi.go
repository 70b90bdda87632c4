// Package httpapi holds the request/response plumbing shared by the history
// and run-control clients.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/iafilius/Chip8Dashboard/src/telemetry"
)

// maxErrorBody bounds how much of a non-JSON error body ends up in a message.
const maxErrorBody = 200

// RequestError is a failed request/response exchange: either the request
// never completed (Err set) or the server answered non-2xx (StatusCode set).
type RequestError struct {
	Op         string
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		if e.Message != "" {
			return fmt.Sprintf("%s: %s returned %d: %s", e.Op, e.URL, e.StatusCode, e.Message)
		}
		return fmt.Sprintf("%s: %s returned %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Do sends req and returns the body of a 2xx response. Anything else becomes a
// *RequestError. The outcome is counted on tel (which may be nil).
func Do(ctx context.Context, client *http.Client, req *http.Request, op string, tel *telemetry.Collector) (body []byte, err error) {
	defer func() { tel.RequestDone(op, err) }()
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, &RequestError{Op: op, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()
	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Op: op, URL: req.URL.String(), Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{Op: op, URL: req.URL.String(), StatusCode: resp.StatusCode, Message: ErrorMessage(body)}
	}
	return body, nil
}

// ErrorMessage extracts a human readable message from an error body. It
// understands {"error": ...}, {"detail": ...} and {"message": ...}; other
// bodies are returned trimmed.
func ErrorMessage(body []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, key := range []string{"error", "detail", "message"} {
			raw, ok := obj[key]
			if !ok {
				continue
			}
			var s string
			if json.Unmarshal(raw, &s) == nil {
				return s
			}
			return string(raw)
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}

// Message extracts the "message" field of a success body, falling back to
// the trimmed body text.
func Message(body []byte) string {
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return strings.TrimSpace(string(body))
}
