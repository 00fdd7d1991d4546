// cmd/wellnavigator/chat.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sbgadvisor/WellNavigator2/internal/chat"
	classifysafety "github.com/sbgadvisor/WellNavigator2/internal/pipeline/guard/classify-safety"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5"))
	noteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

const replHelp = "Commands: /clear resets the conversation, /usage shows token usage, /prompts lists examples, /quit exits."

func newChatCmd() *cobra.Command {
	var rag, search bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal with a single session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Keep stdout for the conversation.
			cfg.Logging.Output = "stderr"
			if cfg.Logging.Level == "info" {
				cfg.Logging.Level = "warn"
			}
			if cmd.Flags().Changed("rag") {
				cfg.Session.RAGOn = rag
			}
			if cmd.Flags().Changed("search") {
				cfg.Session.SearchOn = search
			}

			zapLog := newLogger(cfg)
			defer zapLog.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, zapLog)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.pipeline.NewSession(nil)
			if err != nil {
				return err
			}
			r := &repl{pipeline: a.pipeline, session: sess, in: cmd.InOrStdin(), out: cmd.OutOrStdout()}
			return r.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&rag, "rag", false, "ground answers in the knowledge base")
	cmd.Flags().BoolVar(&search, "search", false, "ground answers in web search results")
	return cmd
}

// repl drives one session from a line-oriented terminal.
type repl struct {
	pipeline *chat.Pipeline
	session  *chat.Session
	in       io.Reader
	out      io.Writer
}

func (r *repl) Run(ctx context.Context) error {
	caps := r.pipeline.Capabilities(ctx)
	settings := r.session.Settings()

	fmt.Fprintln(r.out, titleStyle.Render("WellNavigator"))
	fmt.Fprintln(r.out, noteStyle.Render(fmt.Sprintf("model %s · knowledge base %s · web search %s",
		settings.Model, onOff(settings.RAGOn && caps.Retrieval), onOff(settings.SearchOn && caps.Search))))
	if !caps.Generation {
		fmt.Fprintln(r.out, warnStyle.Render("Generation is not configured; set OPENAI_API_KEY to get answers."))
	}
	fmt.Fprintln(r.out, noteStyle.Render(strings.ReplaceAll(classifysafety.Disclaimer(), "**", "")))
	fmt.Fprintln(r.out, noteStyle.Render(replHelp))

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "\n"+promptStyle.Render("you › "))
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			r.session.Clear()
			fmt.Fprintln(r.out, noteStyle.Render("Conversation cleared."))
			continue
		case "/usage":
			r.printUsage()
			continue
		case "/prompts":
			for _, p := range r.pipeline.SuggestedPrompts() {
				fmt.Fprintln(r.out, noteStyle.Render("  "+p))
			}
			continue
		case "/help":
			fmt.Fprintln(r.out, noteStyle.Render(replHelp))
			continue
		}

		if err := r.turn(ctx, line); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func (r *repl) turn(ctx context.Context, text string) error {
	stream, err := r.pipeline.ProcessTurn(ctx, r.session, text)
	if err != nil {
		return err
	}

	for chunk := range stream.Chunks() {
		fmt.Fprint(r.out, chunk)
	}
	fmt.Fprintln(r.out)

	res := stream.Result()
	for _, c := range res.Citations {
		ref := c.Source
		if c.URL != "" {
			ref = c.URL
		}
		fmt.Fprintln(r.out, noteStyle.Render(fmt.Sprintf("  [%s] %s", c.Label, ref)))
	}
	if res.Budget.Warning && !res.Budget.Exceeded {
		fmt.Fprintln(r.out, warnStyle.Render(res.Budget.Message))
	}
	if res.Outcome == chat.OutcomeCancelled {
		return ctx.Err()
	}
	return nil
}

func (r *repl) printUsage() {
	u := r.session.Usage()
	fmt.Fprintln(r.out, noteStyle.Render(u.Summary))
	fmt.Fprintln(r.out, noteStyle.Render(fmt.Sprintf("requests %d · tokens in %d · tokens out %d · cost $%.4f · avg latency %.2fs",
		u.TotalRequests, u.TotalTokensIn, u.TotalTokensOut, u.TotalCost, u.AvgLatency)))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
