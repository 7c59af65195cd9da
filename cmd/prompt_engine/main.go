// Package main provides the entry point for the writing prompt engine: the
// HTTP API server plus operational commands.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "prompt_engine",
	Short: "Writing prompt generation service",
	Long: `prompt_engine researches a user's interests, composes a writing prompt and an
illustration for each, and serves them over a REST API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (YAML, JSON or TOML); environment variables override it")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
