package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"tg_harvest/internal/config"
	"tg_harvest/migrations"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var dbPath string
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the harvest journal schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", envOrDefault("JOURNAL_PATH", "./data/journal.db"), "path to the journal database")

	for _, c := range migrations.Commands {
		name := c.Name
		root.AddCommand(&cobra.Command{
			Use:   name,
			Short: c.Usage,
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				db, err := sql.Open("sqlite", dbPath)
				if err != nil {
					return fmt.Errorf("open database: %w", err)
				}
				defer func() { _ = db.Close() }()

				if err := migrations.Apply(db, name); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				return nil
			},
		})
	}

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
