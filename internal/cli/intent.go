package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/omniagentpay/payguard/internal/client"
	"github.com/omniagentpay/payguard/internal/domain"
)

var (
	createFlags struct {
		amount           string
		currency         string
		recipient        string
		recipientAddress string
		wallet           string
		chain            string
		description      string
		agent            string
		tool             string
	}
	listFlags struct {
		status string
		limit  int
	}
	decisionFlags struct {
		by     string
		reason string
	}
)

var intentCmd = &cobra.Command{
	Use:   "intent",
	Short: "Manage payment intents on a payguard server",
}

var intentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a payment intent",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(createFlags.amount)
		if err != nil {
			return errors.Wrapf(err, "invalid --amount %q", createFlags.amount)
		}
		resp, err := apiClient().CreateIntent(cmd.Context(), domain.CreateIntentRequest{
			Amount:           amount,
			Currency:         createFlags.currency,
			Recipient:        createFlags.recipient,
			RecipientAddress: createFlags.recipientAddress,
			WalletID:         createFlags.wallet,
			Chain:            createFlags.chain,
			Description:      createFlags.description,
			AgentID:          createFlags.agent,
			Tool:             createFlags.tool,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var intentGetCmd = &cobra.Command{
	Use:   "get <intent-id>",
	Short: "Show a payment intent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiClient().GetIntent(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var intentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List payment intents",
	RunE: func(cmd *cobra.Command, args []string) error {
		intents, err := apiClient().ListIntents(cmd.Context(), listFlags.status, listFlags.limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(intents) == 0 {
			fmt.Fprintln(out, "no intents")
			return nil
		}
		fmt.Fprintf(out, "%-30s %-18s %-18s %12s %s\n", "ID", "STATUS", "APPROVAL", "AMOUNT", "WALLET")
		for _, in := range intents {
			fmt.Fprintf(out, "%-30s %-18s %-18s %12s %s\n",
				in.ID, in.Status, in.ApprovalState, in.Amount.String(), in.WalletID)
		}
		return nil
	},
}

var intentSimulateCmd = &cobra.Command{
	Use:   "simulate <intent-id>",
	Short: "Evaluate guards for an intent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiClient().SimulateIntent(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var intentApproveCmd = &cobra.Command{
	Use:   "approve <intent-id>",
	Short: "Approve an intent awaiting a human decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiClient().ApproveIntent(cmd.Context(), args[0], decisionRequest())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var intentRejectCmd = &cobra.Command{
	Use:   "reject <intent-id>",
	Short: "Reject an intent awaiting a human decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiClient().RejectIntent(cmd.Context(), args[0], decisionRequest())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var intentExecuteCmd = &cobra.Command{
	Use:   "execute <intent-id>",
	Short: "Execute an approved intent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiClient().ExecuteIntent(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var intentReplayCmd = &cobra.Command{
	Use:   "replay <intent-id>",
	Short: "Re-evaluate an intent against the current guards",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := apiClient().ReplayIntent(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var intentEventsCmd = &cobra.Command{
	Use:   "events <intent-id>",
	Short: "Show the event timeline of an intent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := apiClient().GetIntentEvents(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, ev := range events {
			fmt.Fprintf(out, "%s  %-22s %s\n", time.UnixMilli(ev.Ts).UTC().Format(time.RFC3339Nano), ev.Type, string(ev.Payload))
		}
		return nil
	},
}

var intentWatchCmd = &cobra.Command{
	Use:   "watch [intent-id]",
	Short: "Stream intent events as they happen",
	Long: `Stream events over the websocket endpoint. With an intent id the stream
ends once the intent reaches a final outcome; without one it follows every
intent until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var intentID string
		if len(args) == 1 {
			intentID = args[0]
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		return apiClient().WatchEvents(ctx, intentID, func(ev domain.Event) bool {
			fmt.Fprintf(out, "%s  %-22s %-28s %s\n", time.UnixMilli(ev.Ts).UTC().Format(time.RFC3339Nano),
				ev.Type, ev.IntentID, string(ev.Payload))
			return intentID == "" || !finalEvent(ev.Type)
		})
	},
}

// finalEvent reports whether no further events follow for the intent.
func finalEvent(t domain.EventType) bool {
	switch t {
	case domain.EventTypeSimulationFailed, domain.EventTypeBlocked, domain.EventTypeRejected, domain.EventTypeApprovalExpired,
		domain.EventTypeExecutionSucceeded, domain.EventTypeExecutionFailed:
		return true
	}
	return false
}

func init() {
	f := intentCreateCmd.Flags()
	f.StringVar(&createFlags.amount, "amount", "", "Payment amount")
	f.StringVar(&createFlags.currency, "currency", "USDC", "Currency")
	f.StringVar(&createFlags.recipient, "recipient", "", "Recipient name")
	f.StringVar(&createFlags.recipientAddress, "recipient-address", "", "Recipient address or URL")
	f.StringVar(&createFlags.wallet, "wallet", "", "Source wallet id")
	f.StringVar(&createFlags.chain, "chain", "", "Source chain")
	f.StringVar(&createFlags.description, "description", "", "Free-form description")
	f.StringVar(&createFlags.agent, "agent", "", "Proposing agent id")
	f.StringVar(&createFlags.tool, "tool", "", "Agent tool name")
	_ = intentCreateCmd.MarkFlagRequired("amount")
	_ = intentCreateCmd.MarkFlagRequired("wallet")

	intentListCmd.Flags().StringVar(&listFlags.status, "status", "", "Filter by status")
	intentListCmd.Flags().IntVar(&listFlags.limit, "limit", 50, "Maximum number of intents")

	for _, c := range []*cobra.Command{intentApproveCmd, intentRejectCmd} {
		c.Flags().StringVar(&decisionFlags.by, "by", "", "Who made the decision")
		c.Flags().StringVar(&decisionFlags.reason, "reason", "", "Reason for the decision")
	}

	intentCmd.AddCommand(intentCreateCmd, intentGetCmd, intentListCmd, intentSimulateCmd,
		intentApproveCmd, intentRejectCmd, intentExecuteCmd, intentReplayCmd, intentEventsCmd, intentWatchCmd)
	rootCmd.AddCommand(intentCmd)
}

func apiClient() *client.Client {
	return client.New(serverURL, 60*time.Second)
}

func decisionRequest() domain.ApprovalDecisionRequest {
	return domain.ApprovalDecisionRequest{DecidedBy: decisionFlags.by, Reason: decisionFlags.reason}
}
