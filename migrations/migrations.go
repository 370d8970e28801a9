// Package migrations embeds the harvest journal schema and applies it with goose.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// FS contains the embedded SQL migration files.
//
//go:embed *.sql
var FS embed.FS

// Commands lists the operations accepted by Apply.
var Commands = []struct {
	Name  string
	Usage string
}{
	{"up", "Migrate the journal to the latest version"},
	{"up-one", "Migrate one version up"},
	{"down", "Roll back one version"},
	{"status", "Show migration status"},
	{"version", "Show current version"},
	{"reset", "Roll back all migrations"},
}

// Run silently brings the journal schema up to date.
func Run(db *sql.DB) error {
	goose.SetLogger(goose.NopLogger())
	if err := Apply(db, "up"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Apply runs one goose command against the embedded migrations.
func Apply(db *sql.DB, command string) error {
	goose.SetBaseFS(FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	switch command {
	case "up":
		return goose.Up(db, ".")
	case "up-one":
		return goose.UpByOne(db, ".")
	case "down":
		return goose.Down(db, ".")
	case "status":
		return goose.Status(db, ".")
	case "version":
		return goose.Version(db, ".")
	case "reset":
		return goose.Reset(db, ".")
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}
