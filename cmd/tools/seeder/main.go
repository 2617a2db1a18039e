package main

import (
	"database/sql"
	"flag"
	"log"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/noah-isme/inventario-pricing/internal/config"
)

// The seeder writes the initial tax settings row from the PRICING_DEFAULT_* variables.
// An existing row is left alone unless -force is given.
func main() {
	force := flag.Bool("force", false, "overwrite existing tax settings")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	conflict := "DO NOTHING"
	if *force {
		conflict = `DO UPDATE SET
			iva_percent = EXCLUDED.iva_percent,
			iva_applies = EXCLUDED.iva_applies,
			ice_percent = EXCLUDED.ice_percent,
			ice_applies = EXCLUDED.ice_applies,
			default_margin = EXCLUDED.default_margin,
			revision = EXCLUDED.revision,
			updated_at = now()`
	}

	res, err := db.Exec(`
		INSERT INTO pricing_settings (id, iva_percent, iva_applies, ice_percent, ice_applies, default_margin, revision)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) `+conflict,
		cfg.DefaultIVAPercent.String(), cfg.DefaultIVAPercent.IsPositive(),
		cfg.DefaultICEPercent.String(), cfg.DefaultICEPercent.IsPositive(),
		cfg.DefaultMarginPercent.String(), uuid.NewString(),
	)
	if err != nil {
		log.Fatalf("Failed to seed tax settings: %v", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Println("Tax settings already present, nothing to do (use -force to overwrite)")
		return
	}
	log.Printf("Seeded tax settings: IVA %s%%, ICE %s%%, margin %s%%",
		cfg.DefaultIVAPercent.StringFixed(2), cfg.DefaultICEPercent.StringFixed(2), cfg.DefaultMarginPercent.StringFixed(2))
	log.Println("Seeding completed successfully!")
}
