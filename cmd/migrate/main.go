package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"abtrust/adapters/db/postgres/migrations"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate <up|down|status> [database_url]")
	}
	command := os.Args[1]

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if len(os.Args) > 2 {
		databaseURL = os.Args[2]
	}
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	migrator := migrations.NewMigrator(db.DB)

	switch command {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			log.Fatalf("❌ Migration failed: %v", err)
		}
		log.Println("✅ Database is up to date")
	case "down":
		if err := migrator.Down(ctx); err != nil {
			log.Fatalf("❌ Rollback failed: %v", err)
		}
		log.Println("✅ Rolled back the latest migration")
	case "status":
		statuses, err := migrator.Status(ctx)
		if err != nil {
			log.Fatalf("Failed to read migration status: %v", err)
		}
		for _, s := range statuses {
			mark := "⏳ pending"
			if s.Applied {
				mark = "✅ applied"
			}
			fmt.Printf("%-40s %s\n", s.Version, mark)
		}
	default:
		log.Fatalf("Unknown command %q (expected up, down or status)", command)
	}
}
