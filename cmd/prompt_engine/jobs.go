package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonathan/ink-prompts/internal/observability"
	"github.com/jonathan/ink-prompts/internal/types"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the daily generation sweep once and wait for its jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		result, err := a.orchestrator.RunDailyGenerationForAllUsers(ctx)
		if err != nil {
			return err
		}
		a.orchestrator.Dispatcher().Wait()
		if verbose {
			observability.NewPrinter(os.Stdout).PrintDailyRun(result)
			return nil
		}
		return printJSON(result)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Fail jobs stuck past the job timeout",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		n, err := a.orchestrator.ReconcileStuckJobs(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Failed %d stale job(s)\n", n)
		return nil
	},
}

var (
	generateUser string
	verbose      bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate prompts for one user and wait for the job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		userID, err := a.resolveUser(ctx, generateUser)
		if err != nil {
			return err
		}
		job, err := a.orchestrator.GenerateAndWait(ctx, userID)
		if err != nil {
			return err
		}
		if !verbose {
			return printJSON(job)
		}

		printer := observability.NewPrinter(os.Stdout)
		printer.PrintJob(job)
		prompts, err := a.store.ListPrompts(ctx, types.PromptFilter{
			UserID: userID,
			Limit:  len(job.SelectedInterests),
		})
		if err != nil {
			return err
		}
		printer.PrintPrompts(prompts)
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVarP(&generateUser, "user", "u", "", "External user id")
	_ = generateCmd.MarkFlagRequired("user")
	generateCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print a readable summary instead of JSON")
	sweepCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print a readable summary instead of JSON")

	rootCmd.AddCommand(sweepCmd, reconcileCmd, generateCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withStore opens the store without building the generation stack.
func withStore(ctx context.Context, fn func(st store) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close() //nolint:errcheck
	return fn(st)
}
