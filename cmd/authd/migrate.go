package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/repository"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

var prune bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the schema",
	Long:  `Creates every table and index if missing. With --prune, expired sessions and refresh tokens are deleted as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := auth.NewZapLogger(zlogger)

		db, err := repository.Open(ctx, opts.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		repos := repository.NewRepositoryManager(db)
		if err := migrateSchema(ctx, repos); err != nil {
			return err
		}
		logger.Info("schema ready", "database", repository.DetectDatabaseType(opts.DatabaseURL))

		if !prune {
			return nil
		}

		res, err := auth.NewAuthenticator(repos.Stores(), opts).WithLogger(logger).PruneExpired(ctx)
		if err != nil {
			return err
		}
		logger.Info("pruned expired rows", "sessions", res.Sessions, "refresh_tokens", res.RefreshTokens)
		return nil
	},
}

// migrateSchema creates every table and index in one transaction.
func migrateSchema(ctx context.Context, repos *repository.Manager) error {
	err := repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return repository.CreateSchema(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Long:  `Hashes the argument, or the first line of stdin when no argument is given.`,
	Short: "Print a bcrypt hash using the configured cost",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if len(args) == 1 {
			password = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read password from stdin: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		hash, err := auth.NewBcryptHasher(opts.GetBcryptCost()).HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&prune, "prune", false, "Delete expired sessions and refresh tokens")
}
