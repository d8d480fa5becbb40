package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/beisanytime/shiurhub/config"
)

var version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "shiurhub",
	Short:   "Shiur catalog server with presigned object-store uploads",
	Long: `Shiurhub serves a catalog of recorded shiurim. Uploads go straight
from the client to an S3-compatible bucket via presigned URLs; this
server owns the metadata, the category indexes and the social layer.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configFiles(cmd), cmd.Flags())
		if err != nil {
			return err
		}
		setupLogging(cfg.Log)
		return nil
	},
}

func configFiles(cmd *cobra.Command) []string {
	file, _ := cmd.Flags().GetString("config")
	if file == "" {
		return nil
	}
	return []string{file}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("kv-type", "", "kv backend: memory, sqlite, postgres, bolt (env: SHIURHUB_KV_TYPE)")
	rootCmd.PersistentFlags().String("kv-dsn", "", "kv connection string or file path (env: SHIURHUB_KV_DSN)")
	rootCmd.PersistentFlags().String("endpoint", "", "object store endpoint URL (env: SHIURHUB_OBJECTSTORE_ENDPOINT)")
	rootCmd.PersistentFlags().String("bucket", "", "object store bucket (env: SHIURHUB_OBJECTSTORE_BUCKET)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
