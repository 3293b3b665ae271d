package main

import (
	"fmt"
	"os"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	debug   bool
	opts    *auth.Options
	zlogger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "authd",
	Short: "Multi-tenant authentication service",
	Long: `authd serves login, token verification, role switching and refresh
endpoints backed by PostgreSQL or SQLite.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if debug {
			zlogger, err = zap.NewDevelopment()
		} else {
			zlogger, err = zap.NewProduction()
		}
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}

		opts, err = auth.LoadOptions(nil)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if dsn, _ := cmd.Flags().GetString("db-url"); dsn != "" {
			opts.DatabaseURL = dsn
		}

		if err := opts.Validate(auth.NewZapLogger(zlogger)); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if zlogger != nil {
			_ = zlogger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable development logging")
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: DATABASE_URL)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
