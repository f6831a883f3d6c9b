package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"icp-wizard/internal/domain"
	"icp-wizard/internal/wizard"
)

type scriptedLines struct {
	lines   []string
	history []string
}

func (s *scriptedLines) Prompt(_ string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedLines) AppendHistory(item string) {
	s.history = append(s.history, item)
}

type prefixRenderer struct{}

func (prefixRenderer) Render(in string) (string, error) {
	return "rendered: " + in + "\n", nil
}

const finalizeText = "---MARKDOWN---\n# ICP\n---JSON---\n{\"firmographics\":{}}\n---CSV_COMPANIES---\ncompany_name,domain\nAcme,acme.com\n---CSV_PEOPLE---\nfirst_name,last_name\nAda,Lovelace"

func newTestChat(t *testing.T, relay wizard.Relay, lines ...string) (*chat, *bytes.Buffer) {
	t.Helper()
	session, err := wizard.NewSession(relay)
	require.NoError(t, err)
	var out bytes.Buffer
	return &chat{
		session: session,
		in:      &scriptedLines{lines: lines},
		out:     &out,
		md:      prefixRenderer{},
		outDir:  t.TempDir(),
	}, &out
}

func TestChat_InterviewAndFinalize(t *testing.T) {
	var calls []bool
	relay := wizard.RelayFunc(func(_ context.Context, _ []domain.ChatMessage, finalize bool) (string, error) {
		calls = append(calls, finalize)
		if finalize {
			return finalizeText, nil
		}
		return "Who signs the contract?", nil
	})
	c, out := newTestChat(t, relay, "Logistics", "  ", "/finalize")

	require.NoError(t, c.run(context.Background()))
	require.Equal(t, []bool{false, true}, calls)

	text := out.String()
	require.Contains(t, text, wizard.Greeting)
	require.Contains(t, text, "Who signs the contract?")
	require.Contains(t, text, wizard.FinalizedAck)
	require.Contains(t, text, "rendered: # ICP")

	for name, want := range map[string]string{
		"companies.csv": "company_name,domain\nAcme,acme.com",
		"people.csv":    "first_name,last_name\nAda,Lovelace",
		"icp.json":      `{"firmographics":{}}`,
	} {
		got, err := os.ReadFile(filepath.Join(c.outDir, name))
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}
	require.Equal(t, []string{"Logistics", "/finalize"}, c.in.(*scriptedLines).history)
}

func TestChat_RelayErrorKeepsGoing(t *testing.T) {
	n := 0
	relay := wizard.RelayFunc(func(context.Context, []domain.ChatMessage, bool) (string, error) {
		n++
		if n == 1 {
			return "", errors.New("OPENAI_API_KEY is not set on the server")
		}
		return "Next question", nil
	})
	c, out := newTestChat(t, relay, "Logistics", "Logistics")

	require.NoError(t, c.run(context.Background()))
	require.Contains(t, out.String(), "OPENAI_API_KEY is not set on the server")
	require.Contains(t, out.String(), "Next question")
	require.Len(t, c.session.History(), 3)
}

func TestChat_QuitStopsBeforeRelay(t *testing.T) {
	called := false
	relay := wizard.RelayFunc(func(context.Context, []domain.ChatMessage, bool) (string, error) {
		called = true
		return "", nil
	})
	c, _ := newTestChat(t, relay, "/quit", "Logistics")

	require.NoError(t, c.run(context.Background()))
	require.False(t, called)
}

func TestChat_UnknownCommand(t *testing.T) {
	relay := wizard.RelayFunc(func(context.Context, []domain.ChatMessage, bool) (string, error) {
		return "", nil
	})
	c, out := newTestChat(t, relay, "/nope")

	require.NoError(t, c.run(context.Background()))
	require.Contains(t, out.String(), "unknown command /nope")
}

func TestChat_FinalizeWithoutSummaryWritesNothing(t *testing.T) {
	relay := wizard.RelayFunc(func(context.Context, []domain.ChatMessage, bool) (string, error) {
		return "No finalize text returned; please try again.", nil
	})
	c, out := newTestChat(t, relay, "/finalize")

	require.NoError(t, c.run(context.Background()))
	require.Contains(t, out.String(), "no summary")
	entries, err := os.ReadDir(c.outDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestChat_PlainMarkdownWithoutRenderer(t *testing.T) {
	relay := wizard.RelayFunc(func(context.Context, []domain.ChatMessage, bool) (string, error) {
		return finalizeText, nil
	})
	c, out := newTestChat(t, relay, "/finalize")
	c.md = nil

	require.NoError(t, c.run(context.Background()))
	require.Contains(t, out.String(), "# ICP")
	require.NotContains(t, out.String(), "rendered:")
}
