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
	"github.com/joho/godotenv"

	"eventguard.org/internal/auth"
	"eventguard.org/internal/directory"
	"eventguard.org/internal/ids"
	"eventguard.org/internal/migrate"
	"eventguard.org/internal/roles"
	"eventguard.org/internal/store/pg"
	"eventguard.org/migrations"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	dsn := flag.String("dsn", os.Getenv("EVENTGUARD_PG_DSN"), "PostgreSQL DSN")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or EVENTGUARD_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status|seed-head]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, migrations.Files)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	case "seed-head":
		err = seedHead(ctx, db)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// seedHead creates the initial approved head account so someone can
// unlock approvals on a fresh install. Credentials come from
// EVENTGUARD_SEED_HEAD_EMAIL and EVENTGUARD_SEED_HEAD_PASSWORD.
func seedHead(ctx context.Context, db *sql.DB) error {
	email := os.Getenv("EVENTGUARD_SEED_HEAD_EMAIL")
	password := os.Getenv("EVENTGUARD_SEED_HEAD_PASSWORD")
	if email == "" || password == "" {
		return fmt.Errorf("EVENTGUARD_SEED_HEAD_EMAIL and EVENTGUARD_SEED_HEAD_PASSWORD are required")
	}

	store := pg.NewWithDB(db)
	if _, err := store.FindByEmail(ctx, email); err == nil {
		log.Printf("head account %s already exists", email)
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u := &directory.User{
		ID:           ids.New(),
		Username:     "head",
		Email:        email,
		PasswordHash: hash,
		Role:         roles.Head,
		Approved:     true,
	}
	if err := store.Create(ctx, u); err != nil {
		return err
	}
	log.Printf("seeded head account %s", email)
	return nil
}
