package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/phonginreallife/oncall-notifier/db"
	"github.com/phonginreallife/oncall-notifier/internal/config"
)

func main() {
	printOnly := flag.Bool("print", false, "Print the schema statements instead of applying them")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("ONCALL_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *printOnly {
		dialect, _, err := db.ParseDatabaseURL(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Invalid DATABASE_URL: %v", err)
		}
		for _, stmt := range db.SchemaStatements(dialect) {
			fmt.Println(stmt + ";")
		}
		return
	}

	ctx := context.Background()
	pg, dialect, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pg.Close()

	log.Printf("Running migration (%s)...", dialect)
	if err := db.Migrate(ctx, pg, dialect); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration applied successfully!")
}
