// Command migrate applies or rolls back database migrations.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"staffgate.org/internal/migrate"
)

func main() {
	var (
		dsn = flag.String("dsn", os.Getenv("STAFFGATE_DB_DSN"), "database DSN")
		dir = flag.String("dir", "ops/migrations/sql", "migration directory")
	)
	flag.Parse()

	if err := run(*dsn, *dir, flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(dsn, dir, action string) error {
	if dsn == "" {
		return fmt.Errorf("database DSN is required (-dsn or STAFFGATE_DB_DSN)")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	mgr := migrate.New(db, dir)
	switch action {
	case "", "up":
		applied, err := mgr.Up(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("nothing to apply")
			return nil
		}
		for _, v := range applied {
			fmt.Println("applied", v)
		}
		return nil
	case "down":
		version, err := mgr.Down(ctx)
		if err != nil {
			return err
		}
		if version == "" {
			fmt.Println("nothing to roll back")
			return nil
		}
		fmt.Println("rolled back", version)
		return nil
	default:
		return fmt.Errorf("unknown action %q (want up or down)", action)
	}
}
