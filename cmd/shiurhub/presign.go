package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/beisanytime/shiurhub/objectstore"
)

var presignCmd = &cobra.Command{
	Use:   "presign <method> <object-key>",
	Short: "Print a presigned URL for an object",
	Long: `Presign produces a time-limited URL for a single object operation,
useful for manual uploads or debugging expired links.`,
	Args: cobra.ExactArgs(2),
	RunE: runPresign,
}

func init() {
	presignCmd.Flags().Duration("expires", time.Hour, "validity window")

	rootCmd.AddCommand(presignCmd)
}

func runPresign(cmd *cobra.Command, args []string) error {
	method, objectKey := args[0], args[1]
	expires, _ := cmd.Flags().GetDuration("expires")

	gateway, err := objectstore.NewGateway(cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("create object store gateway: %w", err)
	}

	signedURL, err := gateway.PresignedURL(method, objectKey, expires)
	if err != nil {
		return fmt.Errorf("presign: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), signedURL)
	return nil
}
