// Package handler exposes the conversation relay over HTTP and as an AWS
// Lambda API Gateway proxy handler.
package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"icp-wizard/internal/domain"
	"icp-wizard/internal/usecase"
)

const (
	// Route is the single relay endpoint.
	Route = "/api/icp"

	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 1 << 20
)

// Relayer is the use case consumed by the handler.
type Relayer interface {
	Relay(ctx context.Context, in usecase.RelayInput) (usecase.RelayOutput, error)
}

type relayRequest struct {
	History  []domain.ChatMessage `json:"history"`
	Finalize bool                 `json:"finalize"`
}

type relayResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type Handler struct {
	relay  Relayer
	logger *log.Logger
}

type Option func(*Handler)

// WithLogger sets the logger used for request logs.
func WithLogger(l *log.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(r Relayer, opts ...Option) (*Handler, error) {
	if r == nil {
		return nil, errors.New("handler: relay use case must not be nil")
	}
	h := &Handler{relay: r, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle serves an API Gateway proxy event.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = newCorrelationID()
	}

	var status int
	var payload any
	switch body, err := eventBody(event); {
	case event.HTTPMethod != "" && event.HTTPMethod != http.MethodPost:
		status, payload = methodNotAllowed()
	case err != nil:
		h.logger.Warn("invalid base64 body", "correlation_id", correlationID, "err", err)
		status, payload = http.StatusBadRequest, errorResponse{
			Error: "request body is not valid base64",
			Code:  string(usecase.ErrorInvalidInput),
		}
	default:
		status, payload = h.process(ctx, correlationID, body)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}, nil
}

// ServeHTTP serves the relay route for the standalone web server.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	correlationID := strings.TrimSpace(r.Header.Get(correlationHeader))
	if correlationID == "" {
		correlationID = newCorrelationID()
	}
	w.Header().Set(correlationHeader, correlationID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		status, payload := methodNotAllowed()
		writeJSON(w, status, payload)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error: "request body too large",
				Code:  string(usecase.ErrorInvalidInput),
			})
			return
		}
		h.logger.Warn("read request body", "correlation_id", correlationID, "err", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "could not read request body",
			Code:  string(usecase.ErrorInvalidInput),
		})
		return
	}

	status, payload := h.process(r.Context(), correlationID, body)
	writeJSON(w, status, payload)
}

func (h *Handler) process(ctx context.Context, correlationID string, body []byte) (int, any) {
	logger := h.logger.With("correlation_id", correlationID)
	start := time.Now()

	req, err := decodeRequest(body)
	if err != nil {
		logger.Warn("invalid relay request", "err", err)
		return http.StatusBadRequest, errorResponse{
			Error: "request body must be JSON of the form {history, finalize}",
			Code:  string(usecase.ErrorInvalidInput),
		}
	}

	out, err := h.relay.Relay(ctx, usecase.RelayInput{History: req.History, Finalize: req.Finalize})
	if err != nil {
		status, resp := mapError(err)
		logger.Error("relay failed",
			"status", status,
			"code", resp.Code,
			"finalize", req.Finalize,
			"history", len(req.History),
			"duration", time.Since(start),
			"err", err,
		)
		return status, resp
	}

	logger.Info("relay completed",
		"finalize", req.Finalize,
		"history", len(req.History),
		"fallback", out.Fallback,
		"duration", time.Since(start),
	)
	return http.StatusOK, relayResponse{Text: out.Text}
}

// eventBody returns the raw request body. API Gateway base64-encodes bodies it
// treats as binary.
func eventBody(event events.APIGatewayProxyRequest) ([]byte, error) {
	if !event.IsBase64Encoded {
		return []byte(event.Body), nil
	}
	return base64.StdEncoding.DecodeString(event.Body)
}

// decodeRequest accepts an empty body as an empty chat turn, matching the
// defaults of history=[] and finalize=false.
func decodeRequest(body []byte) (relayRequest, error) {
	var req relayRequest
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return relayRequest{}, err
	}
	return req, nil
}

func mapError(err error) (int, errorResponse) {
	var relayErr *usecase.Error
	if !errors.As(err, &relayErr) {
		return http.StatusInternalServerError, errorResponse{
			Error: "Unknown error from API route",
			Code:  string(usecase.ErrorInternal),
		}
	}
	status := http.StatusInternalServerError
	switch relayErr.Code {
	case usecase.ErrorInvalidInput:
		status = http.StatusBadRequest
	case usecase.ErrorRateLimited:
		status = http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		status = http.StatusBadGateway
	}
	return status, errorResponse{Error: relayErr.UserMessage(), Code: string(relayErr.Code)}
}

func methodNotAllowed() (int, errorResponse) {
	return http.StatusMethodNotAllowed, errorResponse{
		Error: "method not allowed",
		Code:  string(usecase.ErrorInvalidInput),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// headerValue looks a header up case-insensitively; API Gateway preserves the
// client's casing.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var newCorrelationID = func() string {
	return uuid.NewString()
}
