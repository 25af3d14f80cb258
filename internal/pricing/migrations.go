package pricing

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	// Migration 1: pricing ledger
	`CREATE TABLE IF NOT EXISTS model_pricing (
		id                                 TEXT PRIMARY KEY,
		model_name                         TEXT NOT NULL,
		provider                           TEXT NOT NULL,
		input_price_per_million            TEXT NOT NULL,
		output_price_per_million           TEXT NOT NULL,
		image_input_price_per_million      TEXT,
		audio_input_price_per_million      TEXT,
		audio_output_price_per_million     TEXT,
		video_input_price_per_million      TEXT,
		web_search_call_price_per_thousand TEXT,
		effective_from                     DATETIME NOT NULL,
		created_at                         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_pricing_model ON model_pricing(model_name, effective_from);
	CREATE INDEX IF NOT EXISTS idx_pricing_provider ON model_pricing(provider);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
