package cli

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/omniagentpay/payguard/internal/config"
	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/guard"
)

var evalFlags struct {
	rules            string
	amount           string
	currency         string
	recipient        string
	recipientAddress string
	wallet           string
	chain            string
	agent            string
	tool             string
	spentToday       string
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Dry-run a payment against a rules file without a server",
	Long: `Evaluate a payment candidate against the guards in a rules file and
print the per-guard results. Spend history is empty unless --spent-today is
given.

  payguard evaluate --rules rules.yaml --amount 250 --recipient-address 0xabc --wallet w1`,
	RunE: evaluateCommand,
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVar(&evalFlags.rules, "rules", "", "Path to rules YAML file")
	f.StringVar(&evalFlags.amount, "amount", "", "Payment amount")
	f.StringVar(&evalFlags.currency, "currency", "USDC", "Currency")
	f.StringVar(&evalFlags.recipient, "recipient", "", "Recipient name")
	f.StringVar(&evalFlags.recipientAddress, "recipient-address", "", "Recipient address or URL")
	f.StringVar(&evalFlags.wallet, "wallet", "", "Source wallet id")
	f.StringVar(&evalFlags.chain, "chain", "", "Source chain")
	f.StringVar(&evalFlags.agent, "agent", "", "Proposing agent id")
	f.StringVar(&evalFlags.tool, "tool", "", "Agent tool name")
	f.StringVar(&evalFlags.spentToday, "spent-today", "", "Spend already settled today, counted as one transaction an hour ago")
	_ = evaluateCmd.MarkFlagRequired("rules")
	_ = evaluateCmd.MarkFlagRequired("amount")
	rootCmd.AddCommand(evaluateCmd)
}

func evaluateCommand(cmd *cobra.Command, args []string) error {
	rules, err := config.LoadRules(evalFlags.rules)
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(evalFlags.amount)
	if err != nil {
		return errors.Wrapf(err, "invalid --amount %q", evalFlags.amount)
	}
	c := domain.PaymentCandidate{
		Amount:           amount,
		Currency:         evalFlags.currency,
		Recipient:        evalFlags.recipient,
		RecipientAddress: evalFlags.recipientAddress,
		WalletID:         evalFlags.wallet,
		Chain:            evalFlags.chain,
		AgentID:          evalFlags.agent,
		Tool:             evalFlags.tool,
	}
	if err := c.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	var entries []domain.SpendEntry
	if evalFlags.spentToday != "" {
		spent, err := decimal.NewFromString(evalFlags.spentToday)
		if err != nil {
			return errors.Wrapf(err, "invalid --spent-today %q", evalFlags.spentToday)
		}
		ts := now.Add(-time.Hour)
		if dayStart := domain.PeriodDay.Start(now); ts.Before(dayStart) {
			ts = dayStart
		}
		entries = append(entries, domain.SpendEntry{Amount: spent, Timestamp: ts})
	}
	spend := domain.NewSpendSnapshot(c.WalletID, now, entries)

	results := guard.NewEvaluator().Evaluate(cmd.Context(), c, rules, spend)
	required, _ := guard.HumanApprovalRequired(c, rules)
	return printJSON(cmd.OutOrStdout(), domain.EvaluateResponse{
		Allowed:               guard.Allowed(results),
		HumanApprovalRequired: required,
		Results:               results,
		SpendSnapshot:         spend,
	})
}
