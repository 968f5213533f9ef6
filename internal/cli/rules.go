package cli

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/omniagentpay/payguard/internal/config"
	"github.com/omniagentpay/payguard/internal/guard"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Work with guard rule files",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a guard rules YAML file",
	Long: `Parse a rules file and validate every guard's configuration the way the
server does before accepting it.

  payguard rules check rules.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: rulesCheckCommand,
}

func init() {
	rulesCmd.AddCommand(rulesCheckCmd)
	rootCmd.AddCommand(rulesCmd)
}

func rulesCheckCommand(cmd *cobra.Command, args []string) error {
	rules, err := config.LoadRules(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	evaluator := guard.NewEvaluator()
	invalid := 0
	for _, rule := range rules {
		state := "enabled"
		if !rule.Enabled {
			state = "disabled"
		}
		if err := evaluator.Validate(cmd.Context(), rule); err != nil {
			invalid++
			fmt.Fprintf(out, "FAIL  %-20s %-13s %s\n", rule.ID, rule.Kind, err)
			continue
		}
		fmt.Fprintf(out, "OK    %-20s %-13s %s\n", rule.ID, rule.Kind, state)
	}
	if invalid > 0 {
		return errors.Newf("%d of %d guards are invalid", invalid, len(rules))
	}
	fmt.Fprintf(out, "%d guards valid\n", len(rules))
	return nil
}
