package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Fabrica-Labs/forma/core/pkg/config"
	"github.com/Fabrica-Labs/forma/core/pkg/store"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // cgo-free sqlite driver
)

// driverNames maps the config driver to the database/sql driver name.
var driverNames = map[string]string{
	"postgres": "postgres",
	"sqlite":   "sqlite",
}

func runInitDBCmd(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	fs := flag.NewFlagSet("initdb", flag.ContinueOnError)
	fs.SetOutput(stderr)
	driver := fs.String("driver", cfg.DBDriver, "database driver (postgres or sqlite)")
	dsn := fs.String("dsn", cfg.DatabaseURL, "database connection string")
	timeout := fs.Duration("timeout", 30*time.Second, "schema creation timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	name, ok := driverNames[*driver]
	if !ok {
		fmt.Fprintf(stderr, "error: unsupported driver %q (postgres or sqlite)\n", *driver)
		return 2
	}

	db, err := sql.Open(name, *dsn)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := store.NewSQLStore(db, slog.Default()).Init(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "store schema ready (%s)\n", *driver)
	return 0
}
