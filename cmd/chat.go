package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"icp-wizard/internal/domain"
	"icp-wizard/internal/wizard"
)

const chatHelp = "Answer the questions. /finalize builds the ICP and writes the files, /quit exits."

// lineReader is the part of *liner.State the chat loop uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

type markdownRenderer interface {
	Render(in string) (string, error)
}

func newChatCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run the ICP interview in the terminal",
		Long: `chat runs the interview in the terminal. By default the model is called
in-process using OPENAI_API_KEY; with --server-url the transcript is sent to
a running "icp serve" instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			relay, err := a.chatRelay(cmd.Context())
			if err != nil {
				return err
			}
			session, err := wizard.NewSession(relay)
			if err != nil {
				return err
			}

			line := liner.NewLiner()
			defer func() { _ = line.Close() }()
			line.SetCtrlCAborts(true)

			c := &chat{
				session: session,
				in:      line,
				out:     cmd.OutOrStdout(),
				outDir:  a.cfg.OutDir,
			}
			r, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(100),
			)
			if err != nil {
				a.logger.Warn("markdown rendering disabled", "err", err)
			} else {
				c.md = r
			}
			return c.run(cmd.Context())
		},
	}
	cmd.Flags().String("server-url", "", "Base URL of a running icp serve to relay through")
	cmd.Flags().String("out-dir", ".", "Directory for companies.csv, people.csv and icp.json")
	return cmd
}

func (a *app) chatRelay(ctx context.Context) (wizard.Relay, error) {
	if a.cfg.ServerURL != "" {
		r, err := wizard.NewHTTPRelay(a.cfg.ServerURL)
		if err != nil {
			return nil, err
		}
		a.logger.Debug("relaying through server", "url", a.cfg.ServerURL)
		return r, nil
	}
	svc, err := a.relayService(ctx)
	if err != nil {
		return nil, err
	}
	return wizard.Local(svc), nil
}

type chat struct {
	session *wizard.Session
	in      lineReader
	out     io.Writer
	md      markdownRenderer
	outDir  string
}

func (c *chat) run(ctx context.Context) error {
	c.assistant(wizard.Greeting)
	fmt.Fprintln(c.out, hintStyle.Render(chatHelp))

	for {
		input, err := c.in.Prompt("you> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(c.out)
				return nil
			}
			return fmt.Errorf("chat: read input: %w", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		c.in.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			switch strings.ToLower(input) {
			case "/quit", "/exit":
				return nil
			case "/finalize":
				c.finalize(ctx)
			case "/help":
				fmt.Fprintln(c.out, hintStyle.Render(chatHelp))
			default:
				c.fail(fmt.Errorf("unknown command %s", input))
			}
			continue
		}

		fmt.Fprintln(c.out, hintStyle.Render("Assistant is thinking…"))
		reply, err := c.session.Submit(ctx, input)
		if err != nil {
			c.fail(err)
			continue
		}
		c.assistant(reply)
	}
}

func (c *chat) finalize(ctx context.Context) {
	fmt.Fprintln(c.out, hintStyle.Render("Building your ICP…"))
	out, err := c.session.Finalize(ctx)
	if err != nil {
		c.fail(err)
		return
	}
	if out.Markdown == "" {
		c.fail(errors.New("the model returned no summary; try /finalize again"))
		return
	}
	c.assistant(wizard.FinalizedAck)

	fmt.Fprintln(c.out, headingStyle.Render("Summary"))
	fmt.Fprintln(c.out, c.render(out.Markdown))
	c.section("ICP JSON", out.JSON)
	c.section("companies.csv", out.Companies)
	c.section("people.csv", out.People)

	c.export(out)
}

func (c *chat) export(out domain.FinalizeOutput) {
	paths, err := wizard.Export(c.outDir, out)
	if err != nil {
		c.fail(err)
		return
	}
	for _, p := range paths {
		fmt.Fprintf(c.out, "wrote %s\n", pathStyle.Render(p))
	}
}

func (c *chat) render(markdown string) string {
	if c.md == nil {
		return markdown
	}
	rendered, err := c.md.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}

func (c *chat) section(title, body string) {
	fmt.Fprintln(c.out, headingStyle.Render(title))
	fmt.Fprintln(c.out, body)
}

func (c *chat) assistant(text string) {
	fmt.Fprintf(c.out, "%s %s\n", assistantStyle.Render("Assistant:"), text)
}

func (c *chat) fail(err error) {
	fmt.Fprintf(c.out, "%s %v\n", errorStyle.Render("Error:"), err)
}
