package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn      = flag.String("dsn", os.Getenv("ZOMI_PG_DSN"), "PostgreSQL DSN")
		sqlPath  = flag.String("migrations", "migrations/sql", "Path to SQL migrations")
		seedPath = flag.String("seeds", "migrations/seeds", "Path to SQL seeds")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or ZOMI_PG_DSN")
	}
	if flag.NArg() == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	runner := migrate.NewRunner(db, *sqlPath, *seedPath)

	switch cmd := flag.Arg(0); cmd {
	case "up":
		var n int
		if n, err = runner.Up(ctx); err == nil {
			fmt.Printf("applied %d migration(s)\n", n)
		}
	case "down":
		err = runner.Down(ctx)
	case "seed":
		var n int
		if n, err = runner.Seed(ctx); err == nil {
			fmt.Printf("applied %d seed(s)\n", n)
		}
	case "status":
		var names []string
		if names, err = runner.Status(ctx); err == nil {
			for _, name := range names {
				fmt.Println(name)
			}
		}
	default:
		log.Fatalf("unknown command %q", cmd)
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
