package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rekogctl",
	Short: "Run and manage the rekognition server",
	Long: `rekogctl runs the image analysis server and provides administrative
commands for its database, accounts and stored results.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
