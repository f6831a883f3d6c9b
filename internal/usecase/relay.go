package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"icp-wizard/internal/credentials"
	"icp-wizard/internal/domain"
	"icp-wizard/internal/icp"
)

const (
	defaultModel       = "gpt-4o-mini"
	defaultTemperature = 0.2
	defaultMaxHistory  = 100
)

type LLMClient interface {
	Chat(ctx context.Context, req domain.CompletionRequest) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type upstreamMessager interface {
	UpstreamMessage() string
}

type RelayConfig struct {
	Model         string
	FinalizeModel string
	Temperature   float64
	MaxHistory    int
}

type RelayService struct {
	llm        LLMClient
	cfg        RelayConfig
	schemaHint string
}

type RelayInput struct {
	History  []domain.ChatMessage
	Finalize bool
}

type RelayOutput struct {
	Text     string
	Fallback bool
}

func NewRelayService(llm LLMClient, cfg RelayConfig) (*RelayService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	cfg.FinalizeModel = strings.TrimSpace(cfg.FinalizeModel)
	if cfg.FinalizeModel == "" {
		cfg.FinalizeModel = cfg.Model
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return nil, fmt.Errorf("usecase: temperature %v out of range [0, 2]", cfg.Temperature)
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}

	schema, err := icp.CompactSchema()
	if err != nil {
		return nil, fmt.Errorf("usecase: %w", err)
	}

	return &RelayService{llm: llm, cfg: cfg, schemaHint: schema}, nil
}

// Relay forwards the conversation to the model. In finalize mode the model is
// asked for the four delimited ICP sections; the raw text is returned either way.
func (s *RelayService) Relay(ctx context.Context, in RelayInput) (RelayOutput, error) {
	if len(in.History) > s.cfg.MaxHistory {
		return RelayOutput{}, newError(ErrorInvalidInput, "history_too_long",
			fmt.Sprintf("history exceeds %d messages", s.cfg.MaxHistory), nil)
	}
	for i, m := range in.History {
		if !m.IsConversational() {
			return RelayOutput{}, newError(ErrorInvalidInput, "invalid_role",
				fmt.Sprintf("history[%d]: role must be %q or %q", i, domain.RoleUser, domain.RoleAssistant), nil)
		}
	}
	history := normalizeHistory(in.History)

	req := domain.CompletionRequest{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		Messages:    buildChatMessages(history),
	}
	fallback := chatFallback
	if in.Finalize {
		req.Model = s.cfg.FinalizeModel
		req.Messages = buildFinalizeMessages(history, s.schemaHint)
		fallback = finalizeFallback
	}

	raw, err := s.llm.Chat(ctx, req)
	// A response without any choice is handled like an empty reply.
	if err != nil && !errors.Is(err, domain.ErrEmptyCompletion) {
		return RelayOutput{}, classifyUpstreamError(err)
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		return RelayOutput{Text: fallback, Fallback: true}, nil
	}
	return RelayOutput{Text: text}, nil
}

func classifyUpstreamError(err error) *Error {
	if errors.Is(err, credentials.ErrMissing) {
		return newError(ErrorMissingCredential, "missing_credential", "OPENAI_API_KEY is not set on the server", err)
	}
	if errors.Is(err, context.Canceled) {
		return newError(ErrorUpstream, "request_canceled", "request canceled", err)
	}
	message := err.Error()
	var msgr upstreamMessager
	if errors.As(err, &msgr) && msgr.UpstreamMessage() != "" {
		message = msgr.UpstreamMessage()
	}
	if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
		return newError(ErrorRateLimited, "openai_rate_limited", message, err)
	}
	return newError(ErrorUpstream, "openai_error", message, err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
