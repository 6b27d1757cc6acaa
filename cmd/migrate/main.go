// Database migration CLI tool for the run audit store
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ajitpratap0/finadvisor/internal/config"
	"github.com/ajitpratap0/finadvisor/internal/db"
)

func main() {
	command := flag.String("command", "migrate", "Command to run: migrate or status")
	dbURL := flag.String("db", os.Getenv("DATABASE_URL"), "Database connection URL")
	migrationsDir := flag.String("migrations", "migrations", "Path to migrations directory")
	flag.Parse()

	config.InitLogger("info", "console")

	if *dbURL == "" {
		*dbURL = fmt.Sprintf("postgres://postgres@localhost:%d/finadvisor?sslmode=disable", config.PostgresPort)
	}

	ctx := context.Background()

	migrator, closeDB, err := db.OpenMigrator(ctx, *dbURL, *migrationsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeDB(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close database connection: %v\n", err)
		}
	}()

	switch *command {
	case "migrate":
		applied, err := migrator.Migrate(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Applied %d migration(s)\n", applied)
	case "status":
		current, statuses, err := migrator.Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status check failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Current version: %d\n", current)
		for _, s := range statuses {
			mark := "pending"
			if s.Applied {
				mark = "applied"
			}
			fmt.Printf("  %03d  %-8s %s\n", s.Version, mark, s.Description)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		fmt.Fprintf(os.Stderr, "Usage: migrate -command=[migrate|status]\n")
		os.Exit(1)
	}
}
