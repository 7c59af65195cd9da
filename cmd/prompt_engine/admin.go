package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/ink-prompts/internal/config"
	"github.com/jonathan/ink-prompts/internal/server"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(st store) error {
			if err := st.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Schema is up to date")
			return nil
		})
	},
}

var (
	interestsUser string
	interestsList []string
)

var interestsCmd = &cobra.Command{
	Use:   "interests",
	Short: "Manage user interests",
}

var interestsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace a user's interests, creating the user if needed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		return withStore(ctx, func(st store) error {
			if err := st.EnsureSchema(ctx); err != nil {
				return err
			}
			return setInterests(ctx, st, interestsUser, interestsList)
		})
	},
}

func setInterests(ctx context.Context, st store, externalID string, raw []string) error {
	interests := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, i := range raw {
		i = strings.TrimSpace(i)
		key := strings.ToLower(i)
		if i == "" || seen[key] {
			continue
		}
		seen[key] = true
		interests = append(interests, i)
	}

	userID, err := st.EnsureUser(ctx, externalID)
	if err != nil {
		return err
	}
	if err := st.SetUserInterests(ctx, userID, interests); err != nil {
		return err
	}
	fmt.Printf("User %s (%s) now has %d interest(s)\n", externalID, userID, len(interests))
	return nil
}

var tokenUser string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for local development",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.IsDevelopment() {
			return fmt.Errorf("tokens can only be minted with APP_ENV=development")
		}
		jwtCfg, err := config.NewJWTConfig(cfg.Auth)
		if err != nil {
			return err
		}
		token, err := server.NewJWTService(jwtCfg).GenerateToken(tokenUser)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	interestsSetCmd.Flags().StringVarP(&interestsUser, "user", "u", "", "External user id")
	interestsSetCmd.Flags().StringSliceVarP(&interestsList, "interests", "i", nil, "Comma separated interests")
	_ = interestsSetCmd.MarkFlagRequired("user")
	interestsCmd.AddCommand(interestsSetCmd)

	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "External user id (token subject)")
	_ = tokenCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(migrateCmd, interestsCmd, tokenCmd)
}
