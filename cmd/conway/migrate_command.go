package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"conway-token-lab/internal/storage/migrations"
	pgstore "conway-token-lab/internal/storage/postgres"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var postgresOnly bool
	var clickhouseOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded PostgreSQL and ClickHouse schema",
		Long: `Apply the embedded schema to every configured cache database.

PostgreSQL holds the token-URI cache (cache.postgres_dsn); ClickHouse holds
ownership scan records (cache.clickhouse_dsn). Migrations are idempotent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if postgresOnly && clickhouseOnly {
				return errors.New("--postgres and --clickhouse are mutually exclusive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.log().Named("migrations")
			out := cmd.OutOrStdout()

			doPostgres := !clickhouseOnly && cfg.Cache.PostgresDSN != ""
			doClickhouse := !postgresOnly && cfg.Cache.ClickhouseDSN != ""
			if !doPostgres && !doClickhouse {
				return errors.New("no database configured; set cache.postgres_dsn or cache.clickhouse_dsn")
			}

			if doPostgres {
				pool, err := pgstore.NewPool(cmd.Context(), cfg.Cache.PostgresDSN)
				if err != nil {
					return fmt.Errorf("connect to postgres: %w", err)
				}
				err = migrations.RunPostgresMigrations(cmd.Context(), pool, logger)
				pool.Close()
				if err != nil {
					return fmt.Errorf("postgres migrations: %w", err)
				}
				fmt.Fprintln(out, "PostgreSQL schema up to date")
			}

			if doClickhouse {
				conn, err := migrations.RunClickhouseMigrations(cmd.Context(), cfg.Cache.ClickhouseDSN, logger)
				if err != nil {
					return fmt.Errorf("clickhouse migrations: %w", err)
				}
				conn.Close()
				fmt.Fprintln(out, "ClickHouse schema up to date")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&postgresOnly, "postgres", false, "Only migrate PostgreSQL")
	cmd.Flags().BoolVar(&clickhouseOnly, "clickhouse", false, "Only migrate ClickHouse")
	return cmd
}
