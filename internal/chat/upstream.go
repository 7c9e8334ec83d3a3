package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var ErrUpstreamTimeout = errors.New("upstream timeout")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	ID       string    `json:"id,omitempty"`
	Messages []Message `json:"messages"`
}

// Upstream produces a text stream for a conversation. The caller closes the
// returned reader; cancelling ctx must abort the in-flight call.
type Upstream interface {
	Stream(ctx context.Context, request Request) (io.ReadCloser, error)
}

// UpstreamError is a non-2xx answer from the upstream service.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("chat upstream: HTTP %d: %s", e.StatusCode, e.Message)
}

// HTTPUpstream POSTs the conversation as JSON and hands back the response
// body as the stream.
type HTTPUpstream struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

func NewHTTPUpstream(client *http.Client, endpoint, apiKey string) *HTTPUpstream {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPUpstream{client: client, endpoint: endpoint, apiKey: strings.TrimSpace(apiKey)}
}

func (u *HTTPUpstream) Stream(ctx context.Context, request Request) (io.ReadCloser, error) {
	if u.endpoint == "" {
		return nil, errors.New("chat upstream is not configured")
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Accept", "text/event-stream")
	if u.apiKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+u.apiKey)
	}

	response, err := u.client.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("send chat request: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		defer response.Body.Close()
		message, _ := io.ReadAll(io.LimitReader(response.Body, 4<<10))
		return nil, &UpstreamError{StatusCode: response.StatusCode, Message: strings.TrimSpace(string(message))}
	}

	return response.Body, nil
}
