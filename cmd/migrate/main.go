package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"admintable.org/internal/migrate"
	"admintable.org/internal/storage/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("ADMINTABLE_STORAGE_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "", "directory of SQL migrations; the bundled session store schema when empty")
		seedsPath      = flag.String("seeds", "", "directory of SQL seeds, relative to the migrations filesystem")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or ADMINTABLE_STORAGE_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var (
		fsys fs.FS = pg.Migrations()
		dir        = pg.MigrationsDir
	)
	if *migrationsPath != "" {
		fsys, dir = os.DirFS(*migrationsPath), "."
	}
	mgr := migrate.NewManager(db, fsys, dir, migrate.WithSeedsDir(*seedsPath))

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			fmt.Println("applied", name)
		}
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
