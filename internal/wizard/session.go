// Package wizard implements the client side of the ICP interview: the
// in-memory transcript, the request serialization and the finalize export.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"icp-wizard/internal/domain"
	"icp-wizard/internal/icp"
)

const (
	Greeting     = "Let's define your ICP. What industry or vertical are your best customers in?"
	FinalizedAck = "Done. Your summary and files are ready."
)

var (
	// ErrBusy is returned when a request is already outstanding.
	ErrBusy = errors.New("wizard: a request is already in flight")
	// ErrEmptyInput is returned for blank submissions.
	ErrEmptyInput = errors.New("wizard: empty input")
)

// Relay sends the transcript to the conversation relay and returns its text.
type Relay interface {
	Send(ctx context.Context, history []domain.ChatMessage, finalize bool) (string, error)
}

type State int

const (
	StateComposing State = iota
	StateAwaitingReply
	StateAwaitingFinalize
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateComposing:
		return "composing"
	case StateAwaitingReply:
		return "awaiting reply"
	case StateAwaitingFinalize:
		return "awaiting finalize"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session holds one interview. All methods are safe for concurrent use; at
// most one relay call is outstanding at any time.
type Session struct {
	relay Relay

	mu      sync.Mutex
	history []domain.ChatMessage
	state   State
	busy    bool
	output  domain.FinalizeOutput
}

func NewSession(r Relay) (*Session, error) {
	if r == nil {
		return nil, errors.New("wizard: relay must not be nil")
	}
	return &Session{
		relay:   r,
		history: []domain.ChatMessage{{Role: domain.RoleAssistant, Content: Greeting}},
	}, nil
}

// History returns a copy of the transcript.
func (s *Session) History() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChatMessage(nil), s.history...)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Output returns the sections of the last successful finalize.
func (s *Session) Output() domain.FinalizeOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// Submit sends the transcript plus the user's answer and returns the next
// question. The answer and the reply are committed together, so a failed call
// leaves the transcript unchanged and the answer can be resubmitted.
func (s *Session) Submit(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return "", ErrBusy
	}
	s.busy = true
	prev := s.state
	s.state = StateAwaitingReply
	userMsg := domain.ChatMessage{Role: domain.RoleUser, Content: input}
	snapshot := append(append([]domain.ChatMessage(nil), s.history...), userMsg)
	s.mu.Unlock()

	reply, err := s.relay.Send(ctx, snapshot, false)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		s.state = restoreState(prev)
		return "", err
	}
	s.history = append(s.history, userMsg, domain.ChatMessage{Role: domain.RoleAssistant, Content: reply})
	s.state = restoreState(prev)
	return reply, nil
}

// Finalize requests the structured ICP and splits it into its sections.
func (s *Session) Finalize(ctx context.Context) (domain.FinalizeOutput, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return domain.FinalizeOutput{}, ErrBusy
	}
	s.busy = true
	prev := s.state
	s.state = StateAwaitingFinalize
	snapshot := append([]domain.ChatMessage(nil), s.history...)
	s.mu.Unlock()

	text, err := s.relay.Send(ctx, snapshot, true)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		s.state = restoreState(prev)
		return domain.FinalizeOutput{}, err
	}
	out := icp.Split(text)
	s.output = out
	s.state = StateFinalized
	s.history = append(s.history, domain.ChatMessage{Role: domain.RoleAssistant, Content: FinalizedAck})
	return out, nil
}

// restoreState returns to the state the session was in before the request;
// a finalized interview stays finalized while the user keeps chatting.
func restoreState(prev State) State {
	if prev == StateFinalized {
		return StateFinalized
	}
	return StateComposing
}
