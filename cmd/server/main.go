package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"amlcore/internal/platform/config"
)

var Version = "dev"

// main keeps the process entry small: commands load configuration and hand
// off to the wiring in app.go. Business logic lives in internal packages.
func main() {
	rootCmd := &cobra.Command{
		Use:           "amlcore",
		Short:         "AML compliance service for recording and classifying financial operations",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("env-file")
			return config.LoadDotEnv(path)
		},
	}
	rootCmd.PersistentFlags().String("env-file", ".env", "optional dotenv file seeding the environment")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
