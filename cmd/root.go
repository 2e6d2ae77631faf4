package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rawsidecar",
	Short: "A CLI tool that turns RAW photo dumps into annotated XMP sidecars",
	Long: `rawsidecar scans a directory tree of RAW and cinema captures, groups
shots by capture time and visual similarity, describes each group with a
vision model, and writes the result as XMP sidecars next to every
affected file.`,
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
