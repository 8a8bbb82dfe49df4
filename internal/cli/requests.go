package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xiaot623/agentui/internal/client"
	"github.com/xiaot623/agentui/internal/domain"
	"github.com/xiaot623/agentui/internal/logger"
)

func newRespondCommand(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "respond <request-id>",
		Short: "Answer a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readJSONArg(output, cmd.InOrStdin())
			if err != nil {
				return err
			}
			req, err := opts.client().SubmitResponse(cmd.Context(), args[0], raw)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), req)
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "Response JSON: inline, a file path, @file.json or - for stdin")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newCancelCommand(opts *globalOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <request-id>",
		Short: "Withdraw a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.client().CancelRequest(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), req)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the request")
	return cmd
}

func newEventsCommand(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events [request-id]",
		Short: "Print the audit trail of a request, or of the session when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				events []domain.HistoryEvent
				err    error
			)
			if len(args) == 1 {
				events, err = opts.client().RequestEvents(cmd.Context(), args[0])
			} else {
				events, err = opts.client().SessionEvents(cmd.Context(), opts.sessionID, limit)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), events)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Number of session events to show (0 = all)")
	return cmd
}

func newWatchCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream the events pushed to a session as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.Default()
			enc := json.NewEncoder(cmd.OutOrStdout())
			cl := opts.client(client.WithLogger(log))

			log.Info("watching session", zap.String("session_id", opts.sessionID), zap.String("base_url", opts.baseURL))
			return cl.Watch(cmd.Context(), opts.sessionID, func(evt domain.Event) {
				if err := enc.Encode(evt); err != nil {
					log.Warn("failed to print event", zap.Error(err))
				}
			})
		},
	}
}
