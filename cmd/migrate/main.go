package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"rss_digest/migrations"
)

func main() {
	var dbPath string

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the digest database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", envOrDefault("DATABASE_PATH", "./data/digest.db"), "path to sqlite database")

	// withProvider opens the database and hands a goose provider to fn.
	withProvider := func(fn func(ctx context.Context, cmd *cobra.Command, p *goose.Provider) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			db, err := sql.Open("sqlite", dbPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()

			p, err := migrations.NewProvider(db)
			if err != nil {
				return err
			}
			return fn(cmd.Context(), cmd, p)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Migrate to the latest version",
			RunE: withProvider(func(ctx context.Context, cmd *cobra.Command, p *goose.Provider) error {
				results, err := p.Up(ctx)
				printResults(cmd, results...)
				return err
			}),
		},
		&cobra.Command{
			Use:   "up-one",
			Short: "Migrate one version up",
			RunE: withProvider(func(ctx context.Context, cmd *cobra.Command, p *goose.Provider) error {
				r, err := p.UpByOne(ctx)
				if errors.Is(err, goose.ErrNoNextVersion) {
					fmt.Fprintln(cmd.OutOrStdout(), "already at the latest version")
					return nil
				}
				printResults(cmd, r)
				return err
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back one version",
			RunE: withProvider(func(ctx context.Context, cmd *cobra.Command, p *goose.Provider) error {
				r, err := p.Down(ctx)
				printResults(cmd, r)
				return err
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: withProvider(func(ctx context.Context, cmd *cobra.Command, p *goose.Provider) error {
				statuses, err := p.Status(ctx)
				if err != nil {
					return fmt.Errorf("status: %w", err)
				}
				for _, s := range statuses {
					applied := "pending"
					if s.State == goose.StateApplied {
						applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-22s %s\n", applied, s.Source.Path)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show current version",
			RunE: withProvider(func(ctx context.Context, cmd *cobra.Command, p *goose.Provider) error {
				v, err := p.GetDBVersion(ctx)
				if err != nil {
					return fmt.Errorf("version: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d\n", v)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Roll back all migrations",
			RunE: withProvider(func(ctx context.Context, cmd *cobra.Command, p *goose.Provider) error {
				results, err := p.DownTo(ctx, 0)
				printResults(cmd, results...)
				return err
			}),
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func printResults(cmd *cobra.Command, results ...*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-4s %s (%s)\n", r.Direction, r.Source.Path, r.Duration)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
