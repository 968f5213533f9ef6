package main

import (
	"os"

	"github.com/omniagentpay/payguard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
