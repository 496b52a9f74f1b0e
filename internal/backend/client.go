// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client failures for user-facing messaging.
type ErrorType string

const (
	// ErrTypeNotRunning means the backend could not be reached at all.
	ErrTypeNotRunning ErrorType = "not_running"

	// ErrTypeConnection is a network-level failure mid-conversation.
	ErrTypeConnection ErrorType = "connection"

	// ErrTypeInvalidResponse means the backend answered with a body the
	// client could not interpret.
	ErrTypeInvalidResponse ErrorType = "invalid_response"

	// ErrTypeStream is a failure reported on an established stream.
	ErrTypeStream ErrorType = "stream"

	// ErrTypeUnknown is everything else.
	ErrTypeUnknown ErrorType = "unknown"
)

// ClientError is a categorized backend client failure.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrNotRunning is the sentinel for an unreachable backend.
var ErrNotRunning = errors.New("assistant backend is not running")

// IsNotRunning reports whether err indicates the backend is unreachable.
func IsNotRunning(err error) bool {
	if errors.Is(err, ErrNotRunning) {
		return true
	}
	var ce *ClientError
	return errors.As(err, &ce) && ce.Type == ErrTypeNotRunning
}

// IsCanceled reports whether err stems from context cancellation.
// Cancellation is a user action, never surfaced as an error.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Describe maps an error to the text shown in the transcript. The
// categorization is best-effort substring matching on the error chain,
// mirroring the loose taxonomy backends actually produce.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case IsNotRunning(err),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "server not running"):
		return "The assistant server is not running. Start the backend and try again."
	case typeIs(err, ErrTypeConnection),
		strings.Contains(lower, "connection error"),
		strings.Contains(lower, "no such host"),
		strings.Contains(lower, "network is unreachable"):
		return "Connection error: " + msg
	case typeIs(err, ErrTypeInvalidResponse),
		strings.Contains(lower, "invalid response format"),
		strings.Contains(lower, "malformed"):
		return "Invalid response format: " + msg
	case typeIs(err, ErrTypeStream),
		strings.Contains(lower, "streaming error"):
		return "Streaming error: " + msg
	default:
		return "Error: " + msg
	}
}

func typeIs(err error, t ErrorType) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Type == t
}

// =============================================================================
// CLIENT
// =============================================================================

// DefaultBaseURL is the conventional local backend address.
const DefaultBaseURL = "http://127.0.0.1:8787"

// ClientConfig holds client construction options.
type ClientConfig struct {
	// BaseURL of the backend, without trailing slash.
	BaseURL string

	// Timeout applies to the bounded calls (diagram, save). The query
	// stream intentionally runs without a client timeout; lifetime is
	// governed by the caller's context.
	Timeout time.Duration
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		BaseURL: DefaultBaseURL,
		Timeout: 60 * time.Second,
	}
}

// Client talks to the assistant backend.
type Client struct {
	baseURL string

	// httpClient serves bounded request/response calls.
	httpClient *http.Client

	// streamClient has no timeout; a long answer must not be cut off
	// mid-stream by a wall-clock limit.
	streamClient *http.Client
}

// NewClient creates a client with the default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a client with explicit configuration.
func NewClientWithConfig(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
	}
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// QUERY (STREAMED WITH FALLBACK)
// =============================================================================

// Query sends a conversational query. When the backend streams
// (text/event-stream), decoded events are delivered to fn in order;
// otherwise the full JSON body is synthesized into one chunk event
// followed by done, so callers see a single uniform shape.
//
// Cancellation of ctx aborts the request and returns ctx.Err().
func (c *Client) Query(ctx context.Context, req QueryRequest, fn StreamCallback) error {
	body, err := json.Marshal(req)
	if err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "encode query request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/query", bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "build query request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream, application/json")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return c.classifyTransport("query", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.errorFromStatus(resp)
	}

	if isEventStream(resp.Header.Get("Content-Type")) {
		return NewEventReader(resp.Body).Process(ctx, fn)
	}

	// Non-streaming fallback: the whole body arrives as one mutation.
	var qr QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "invalid response format", Cause: err}
	}
	fn(StreamEvent{Kind: EventChunk, Chunk: qr.Response})
	fn(StreamEvent{Kind: EventDone})
	return nil
}

func isEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(contentType, "text/event-stream")
	}
	return mediaType == "text/event-stream"
}

func (c *Client) classifyTransport(op string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "connection refused") {
		return &ClientError{
			Type:    ErrTypeNotRunning,
			Message: op + " failed",
			Cause:   fmt.Errorf("%w: %v", ErrNotRunning, err),
		}
	}
	return &ClientError{Type: ErrTypeConnection, Message: op + " failed", Cause: err}
}

// errorFromStatus converts a non-2xx response into a ClientError,
// folding the backend's hint, when present, into the message.
func (c *Client) errorFromStatus(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	msg := fmt.Sprintf("backend returned %s", resp.Status)
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error != "" {
		msg = eb.Error
		if eb.Hint != "" {
			msg += " (hint: " + eb.Hint + ")"
		}
	}

	t := ErrTypeInvalidResponse
	if resp.StatusCode >= http.StatusInternalServerError {
		t = ErrTypeConnection
	}
	return &ClientError{Type: t, Message: msg}
}

// =============================================================================
// DIAGRAM
// =============================================================================

// GenerateDiagram requests a diagram from the backend. The call honors
// ctx for cancellation and the bounded client timeout.
func (c *Client) GenerateDiagram(ctx context.Context, req DiagramRequest) (*DiagramResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeUnknown, Message: "encode diagram request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/diagram", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeUnknown, Message: "build diagram request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, c.classifyTransport("diagram generation", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromStatus(resp)
	}

	var dr DiagramResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "invalid diagram response", Cause: err}
	}
	return &dr, nil
}

// =============================================================================
// CHAT PERSISTENCE
// =============================================================================

// SaveTurn persists one finalized turn to the backend's chat store.
// Only workspace-scoped conversations call this; failures are the
// caller's to absorb.
func (c *Client) SaveTurn(ctx context.Context, workspaceID, role, content string) error {
	body, err := json.Marshal(SaveTurnRequest{
		WorkspaceID: workspaceID,
		Role:        role,
		Message:     content,
	})
	if err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "encode save request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/save", bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "build save request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return c.classifyTransport("chat save", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.errorFromStatus(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
