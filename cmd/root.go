package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "payments-nicky",
	Short: "Nicky payment gateway service",
	Long:  "A billing gateway service that creates Nicky crypto payment requests for invoices and reconciles finished payments into client balances.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
