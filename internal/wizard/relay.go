package wizard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"icp-wizard/internal/domain"
	"icp-wizard/internal/usecase"
)

// RelayFunc adapts a function to the Relay interface.
type RelayFunc func(ctx context.Context, history []domain.ChatMessage, finalize bool) (string, error)

func (f RelayFunc) Send(ctx context.Context, history []domain.ChatMessage, finalize bool) (string, error) {
	return f(ctx, history, finalize)
}

type relayer interface {
	Relay(ctx context.Context, in usecase.RelayInput) (usecase.RelayOutput, error)
}

// Local calls the relay use case in-process.
func Local(svc relayer) Relay {
	return RelayFunc(func(ctx context.Context, history []domain.ChatMessage, finalize bool) (string, error) {
		out, err := svc.Relay(ctx, usecase.RelayInput{History: history, Finalize: finalize})
		if err != nil {
			var relayErr *usecase.Error
			if errors.As(err, &relayErr) {
				return "", &RemoteError{Message: relayErr.UserMessage(), Code: string(relayErr.Code)}
			}
			return "", err
		}
		return out.Text, nil
	})
}

// RemoteError is an error payload returned by the relay endpoint.
type RemoteError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("relay: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// HTTPRelay posts the transcript to a running server's /api/icp route.
type HTTPRelay struct {
	url        string
	httpClient *http.Client
}

type HTTPOption func(*HTTPRelay)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPRelay) {
		if c != nil {
			r.httpClient = c
		}
	}
}

func NewHTTPRelay(serverURL string, opts ...HTTPOption) (*HTTPRelay, error) {
	base := strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if base == "" {
		return nil, errors.New("wizard: server url must not be empty")
	}
	r := &HTTPRelay{
		url:        base + "/api/icp",
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type relayRequest struct {
	History  []domain.ChatMessage `json:"history"`
	Finalize bool                 `json:"finalize"`
}

type relayResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (r *HTTPRelay) Send(ctx context.Context, history []domain.ChatMessage, finalize bool) (string, error) {
	if history == nil {
		history = []domain.ChatMessage{}
	}
	body, err := json.Marshal(relayRequest{History: history, Finalize: finalize})
	if err != nil {
		return "", fmt.Errorf("wizard: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("wizard: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("wizard: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("wizard: read response: %w", err)
	}
	var payload relayResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return "", &RemoteError{StatusCode: res.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return "", fmt.Errorf("wizard: decode response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", &RemoteError{StatusCode: res.StatusCode, Message: payload.Error, Code: payload.Code}
	}
	return payload.Text, nil
}
