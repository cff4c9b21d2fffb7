package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "carecam",
	Short: "Visitor recognition and reminder assistant",
	Long: `carecam watches a camera, tells the patient who is visiting, reminds them
of what is due and answers simple questions through a chat assistant.

Configuration is read from environment variables; a .env file in the working
directory is loaded first when present.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
