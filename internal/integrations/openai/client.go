package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"icp-wizard/internal/credentials"
	"icp-wizard/internal/domain"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// ErrNoChoices is returned when the service answers without any completion choice.
var ErrNoChoices = fmt.Errorf("openai: no choices in response: %w", domain.ErrEmptyCompletion)

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Message    string
	Err        error
}

func (e *HTTPStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("openai: unexpected status %d from %s", e.StatusCode, e.URL)
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// UpstreamMessage returns the message supplied by the service, if any.
func (e *HTTPStatusError) UpstreamMessage() string {
	return e.Message
}

// Client is a focused OpenAI-compatible chat-completions client. The API key
// is resolved per call so a missing credential is reported before any request
// leaves the process.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	creds      credentials.Source
	api        sdk.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds each upstream call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a Client that authenticates with keys from creds.
func NewClient(creds credentials.Source, opts ...Option) (*Client, error) {
	if creds == nil {
		return nil, errors.New("openai: credential source must not be nil")
	}
	c := &Client{
		baseURL: DefaultBaseURL,
		creds:   creds,
	}
	for _, opt := range opts {
		opt(c)
	}

	sdkOpts := []option.RequestOption{
		option.WithBaseURL(normalizeBaseURL(c.baseURL)),
		// Failed calls are reported to the caller as-is.
		option.WithMaxRetries(0),
	}
	if c.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(c.httpClient))
	}
	if c.timeout > 0 {
		sdkOpts = append(sdkOpts, option.WithRequestTimeout(c.timeout))
	}
	c.api = sdk.NewClient(sdkOpts...)
	return c, nil
}

// normalizeBaseURL returns the API root with a trailing slash, appending /v1
// when the host root is given.
func normalizeBaseURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/"
}

func chatURL(baseURL string) string {
	return normalizeBaseURL(baseURL) + "chat/completions"
}

// Chat sends one completion request and returns the first choice's content.
func (c *Client) Chat(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if strings.TrimSpace(req.Model) == "" {
		return "", errors.New("openai: model must not be empty")
	}

	apiKey, err := c.creds.APIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("openai: resolve api key: %w", err)
	}

	resp, err := c.api.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:       req.Model,
		Messages:    toSDKMessages(req.Messages),
		Temperature: sdk.Float(req.Temperature),
	}, option.WithAPIKey(apiKey))
	if err != nil {
		wrapped := c.wrapError(err)
		c.dropRejectedKey(wrapped)
		return "", wrapped
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) wrapError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &HTTPStatusError{
			StatusCode: apiErr.StatusCode,
			URL:        chatURL(c.baseURL),
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return fmt.Errorf("openai: request failed: %w", err)
}

// invalidator is implemented by credential sources that cache the key.
type invalidator interface {
	Invalidate()
}

// dropRejectedKey clears a cached key the service answered 401 for, so a
// rotated key is read on the next call.
func (c *Client) dropRejectedKey(err error) {
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		return
	}
	if inv, ok := c.creds.(invalidator); ok {
		inv.Invalidate()
	}
}

func toSDKMessages(messages []domain.ChatMessage) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, sdk.SystemMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}
