package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docquery/docquery/internal/ailink/content"
	"github.com/docquery/docquery/internal/ailink/driver"
	"github.com/docquery/docquery/internal/observability"
	"github.com/docquery/docquery/internal/ratelimit"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat; every request waits for a rate limiter slot",
	Long: `Read questions from stdin and send each one to the chat model.

Commands at the prompt:
  status            print the rate limiter status
  exit, quit, sair  leave the chat

Ctrl+C while a request is waiting for the limiter cancels that request.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(appOptions{driver: true})
		if err != nil {
			return err
		}
		defer a.Close()

		temperature := a.cfg.AILink.Temperature
		loop := &chatLoop{
			driver:      a.driver,
			limiter:     a.limiter,
			model:       a.cfg.AILink.ChatModel,
			temperature: &temperature,
			in:          cmd.InOrStdin(),
			out:         cmd.OutOrStdout(),
			scope:       interruptContext,
		}
		return loop.run(cmd.Context())
	},
}

// chatLoop is the REPL behind the chat command.
type chatLoop struct {
	driver      driver.Driver
	limiter     *ratelimit.Limiter
	model       string
	temperature *float64

	in  io.Reader
	out io.Writer
	// scope derives the context of a single request.
	scope func(context.Context) (context.Context, context.CancelFunc)
}

var chatExitWords = map[string]bool{"exit": true, "quit": true, "sair": true}

func (c *chatLoop) run(ctx context.Context) error {
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	_, _ = fmt.Fprintf(c.out, "Chat ready (%d requests per %s). Type 'status' for the limiter, 'exit' to leave.\n",
		c.limiter.MaxRequests(), c.limiter.Window())

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, _ = fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(c.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case chatExitWords[strings.ToLower(line)]:
			_, _ = fmt.Fprintln(c.out, "Bye.")
			return nil
		case strings.EqualFold(line, "status"):
			printStatus(c.out, c.limiter)
			continue
		}

		answer, err := c.ask(ctx, line)
		if err != nil {
			if errors.Is(err, ratelimit.ErrCancelled) {
				_, _ = fmt.Fprintln(c.out, "Request cancelled while waiting for the rate limiter.")
			} else {
				_, _ = fmt.Fprintf(c.out, "Error: %v\n", err)
			}
			observability.Logger().Debug("Chat request failed", zap.Error(err))
			continue
		}
		_, _ = fmt.Fprintln(c.out, answer)
	}
}

func (c *chatLoop) ask(ctx context.Context, question string) (string, error) {
	if c.scope != nil {
		var cancel context.CancelFunc
		ctx, cancel = c.scope(ctx)
		defer cancel()
	}

	if !c.limiter.Allowed() {
		st := c.limiter.Status()
		_, _ = fmt.Fprintf(c.out, "Rate limit reached, waiting %.1fs for a slot...\n", st.ResetInSeconds())
	}

	resp, err := c.driver.Complete(ctx, &driver.Request{
		Model:       c.model,
		Messages:    []content.Message{content.TextMessage(content.RoleUser, question)},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", err
	}
	return content.JoinText(resp.Content), nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
