// Package cli implements the payguard command line.
package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version = "0.1.0-dev"

	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "payguard",
	Short: "payguard - guard evaluation and payment intents for AI agents",
	Long: `payguard decides whether payments proposed by AI agents are allowed,
blocked or need a human decision, and drives each payment intent through
simulate, approve, execute and confirm.`,
	SilenceUsage: true,
}

func init() {
	defaultURL := os.Getenv("PAYGUARD_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "payguard API base URL (env PAYGUARD_URL)")
}

func Execute() error {
	return rootCmd.Execute()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
