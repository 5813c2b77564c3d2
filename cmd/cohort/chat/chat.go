// Package chatcmder provides the chat command, a terminal client for a
// running cohort gateway.
package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/cohort/pkg/cliui"
	"github.com/papercomputeco/cohort/pkg/config"
	"github.com/papercomputeco/cohort/pkg/logger"
	"github.com/papercomputeco/cohort/pkg/utils"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("cohort> ")
)

type chatCommander struct {
	gatewayTarget string
	threadID      string
	token         string
	markdown      bool
	debug         bool

	in  io.Reader
	out io.Writer

	logger *slog.Logger
}

const chatLongDesc string = `Chat with a running cohort gateway.

Each message is posted to the gateway's /chat endpoint and the answer is
streamed back as it is generated. Pass --thread to continue an earlier
conversation; otherwise the gateway assigns a new thread.

Examples:
  cohort chat
  cohort chat --thread 6f1c... --markdown
  cohort chat --gateway-target http://localhost:9090 --token $COHORT_TOKEN`

const chatShortDesc string = "Chat with a cohort gateway"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagGatewayTarget})
			cmder.gatewayTarget = v.GetString("client.gateway_target")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagGatewayTarget, &cmder.gatewayTarget)
	cmd.Flags().StringVarP(&cmder.threadID, "thread", "t", "", "Thread id to continue")
	cmd.Flags().StringVar(&cmder.token, "token", os.Getenv("COHORT_TOKEN"), "Bearer token for an authenticated gateway")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render each answer as markdown once it completes")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithWriter(os.Stderr))
	if ctx == nil {
		ctx = context.Background()
	}

	cl := &client{
		target: c.gatewayTarget,
		token:  c.token,
		http: &http.Client{
			// answers stream for up to the gateway's max turn duration
			Timeout: 5 * time.Minute,
		},
	}

	threadID, err := cl.resolveThread(ctx, c.threadID)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out)
	if c.threadID != "" && threadID == c.threadID {
		fmt.Fprintf(c.out, "  %s Resuming thread %s\n", cliui.SuccessMark, cliui.NameStyle.Render(threadID))
	} else {
		fmt.Fprintf(c.out, "  %s New thread %s\n", cliui.DimStyle.Render("●"), cliui.NameStyle.Render(threadID))
	}
	fmt.Fprintf(c.out, "  %s %s\n\n", cliui.KeyStyle.Render("Gateway:"), cliui.DimStyle.Render(c.gatewayTarget))
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, userPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		c.logger.Debug("sending chat message", "thread_id", threadID, "message", utils.Truncate(input, 40))

		if err := c.turn(ctx, cl, threadID, input); err != nil {
			fmt.Fprintf(c.out, "\n  %s %v\n\n", cliui.FailMark, err)
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

func (c *chatCommander) turn(ctx context.Context, cl *client, threadID, input string) error {
	if c.markdown {
		var answer string
		err := cliui.Step(c.out, "Thinking", func() error {
			var err error
			answer, err = cl.send(ctx, threadID, input, nil)
			return err
		})
		if err != nil {
			return err
		}

		rendered, err := cliui.RenderMarkdown(answer)
		if err != nil {
			c.logger.Debug("markdown rendering failed", "error", err)
		}
		fmt.Fprint(c.out, rendered)
		return nil
	}

	fmt.Fprint(c.out, assistantPrompt)
	printer := &cumulativePrinter{w: c.out}
	if _, err := cl.send(ctx, threadID, input, printer.update); err != nil {
		return err
	}
	fmt.Fprint(c.out, "\n\n")
	return nil
}

// cumulativePrinter turns the gateway's cumulative frames into terminal
// output, printing only what is new since the previous frame.
type cumulativePrinter struct {
	w    io.Writer
	last string
}

func (p *cumulativePrinter) update(text string) {
	if strings.HasPrefix(text, p.last) {
		fmt.Fprint(p.w, text[len(p.last):])
	} else {
		// the answer was rewritten; start over on a fresh line
		fmt.Fprintf(p.w, "\n%s%s", assistantPrompt, text)
	}
	p.last = text
}
