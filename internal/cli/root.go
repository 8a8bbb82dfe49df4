// Package cli implements the agentui command line: the broker server and the
// agent-side commands that pose questions to a human.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xiaot623/agentui/internal/client"
	"github.com/xiaot623/agentui/internal/domain"
)

// globalOptions are the persistent flags shared by the agent-side commands.
type globalOptions struct {
	baseURL     string
	sessionID   string
	timeout     int
	waitTimeout int
}

func (o *globalOptions) client(opts ...client.Option) *client.Client {
	return client.New(o.baseURL, opts...)
}

// NewRootCommand builds the agentui command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "agentui",
		Short:         "Human-in-the-loop request broker for agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.baseURL, "base-url", "http://localhost:3001", "Broker base URL")
	pf.StringVar(&opts.sessionID, "session", "global", "Session to route requests to")
	pf.IntVar(&opts.timeout, "timeout", domain.DefaultTimeoutSeconds, "Request expiration in seconds (server-side)")
	pf.IntVar(&opts.waitTimeout, "wait-timeout", domain.DefaultWaitSeconds, "How long to wait for a response in seconds (0 = wait forever)")

	root.AddCommand(
		newServeCommand(),
		newConfirmCommand(opts),
		newSelectCommand(opts),
		newFormCommand(opts),
		newUploadCommand(opts),
		newTableCommand(opts),
		newImageCommand(opts),
		newRespondCommand(opts),
		newCancelCommand(opts),
		newEventsCommand(opts),
		newWatchCommand(opts),
	)
	return root
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "agentui:", err)
		stop()
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
