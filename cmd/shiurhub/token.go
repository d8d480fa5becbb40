package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/beisanytime/shiurhub/identity"
)

var tokenCmd = &cobra.Command{
	Use:   "token <email>",
	Short: "Mint a bearer token for an email",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().Duration("ttl", 30*24*time.Hour, "token lifetime")

	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	ttl, _ := cmd.Flags().GetDuration("ttl")

	verifier := identity.NewVerifier(cfg.Identity)
	token, err := verifier.GenerateToken(args[0], ttl)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
