package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/noah-isme/inventario-pricing/internal/db"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	switch *direction {
	case "up":
		if err := db.Up(dbURL); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
	case "down":
		if err := db.Down(dbURL); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
	default:
		log.Fatalf("Unknown direction %q", *direction)
	}
	log.Printf("Migrations %s completed", *direction)
}
