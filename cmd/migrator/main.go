package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ZhengyiNLP/sister-expense-tracker/repository"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("migrator", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var driver, dsn string
	fs.StringVar(&driver, "driver", os.Getenv("STORAGE_DRIVER"), "postgres or sqlite")
	fs.StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "database connection string")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dialect := repository.Dialect(driver)
	if dialect != repository.DialectPostgres && dialect != repository.DialectSQLite {
		return fmt.Errorf("driver must be postgres or sqlite, got %q", driver)
	}
	if dsn == "" {
		return fmt.Errorf("dsn is required")
	}

	// opening the store applies every pending migration
	store, err := repository.OpenSQLStore(context.Background(), dialect, dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Fprintln(stdout, "migrations applied successfully")
	return nil
}
