// Package pricing implements the append-only pricing ledger and its
// synchronization against external price feeds. Rates are stored as exact
// decimal strings; float arithmetic never touches a price.
package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"

	"github.com/davidbz/hearth/internal/domain"
)

const pricingColumns = `id, model_name, provider,
	input_price_per_million, output_price_per_million,
	image_input_price_per_million, audio_input_price_per_million,
	audio_output_price_per_million, video_input_price_per_million,
	web_search_call_price_per_thousand,
	effective_from, created_at`

// Store implements domain.PricingRepository on SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the ledger database at the given path and runs
// pending migrations.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert appends rows to the ledger. Missing IDs and timestamps are filled
// in; existing rows are never touched.
func (s *Store) Insert(ctx context.Context, rows ...*domain.ModelPricing) error {
	for _, row := range rows {
		if row.ID == "" {
			row.ID = uuid.New().String()
		}
		if row.EffectiveFrom.IsZero() {
			row.EffectiveFrom = time.Now().UTC()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}

		_, err := s.db.ExecContext(ctx,
			`INSERT INTO model_pricing (`+pricingColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ID, row.ModelName, row.Provider,
			row.InputPricePerMillion.String(), row.OutputPricePerMillion.String(),
			optionalString(row.ImageInputPricePerMillion),
			optionalString(row.AudioInputPricePerMillion),
			optionalString(row.AudioOutputPricePerMillion),
			optionalString(row.VideoInputPricePerMillion),
			optionalString(row.WebSearchCallPricePerThousand),
			row.EffectiveFrom.UTC(), row.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert pricing row: %w", err)
		}
	}
	return nil
}

// CurrentPrice returns the row for model with the greatest
// EffectiveFrom <= asOf, or domain.ErrNoPrice when none exists.
func (s *Store) CurrentPrice(ctx context.Context, modelName string, asOf time.Time) (*domain.ModelPricing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pricingColumns+` FROM model_pricing
		 WHERE model_name = ? AND effective_from <= ?
		 ORDER BY effective_from DESC, created_at DESC
		 LIMIT 1`,
		modelName, asOf.UTC(),
	)

	pricing, err := scanPricing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoPrice
	}
	if err != nil {
		return nil, fmt.Errorf("query current price: %w", err)
	}
	return pricing, nil
}

// LatestPerModel returns the current row for every model as of asOf.
func (s *Store) LatestPerModel(ctx context.Context, asOf time.Time) (map[string]*domain.ModelPricing, error) {
	rows, err := s.listCurrent(ctx, asOf)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]*domain.ModelPricing, len(rows))
	for _, row := range rows {
		latest[row.ModelName] = row
	}
	return latest, nil
}

// ListCurrent returns the current row for every model, ordered by provider
// then model name.
func (s *Store) ListCurrent(ctx context.Context, asOf time.Time) ([]*domain.ModelPricing, error) {
	return s.listCurrent(ctx, asOf)
}

func (s *Store) listCurrent(ctx context.Context, asOf time.Time) ([]*domain.ModelPricing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pricingColumns+` FROM model_pricing
		 WHERE effective_from <= ?
		 ORDER BY provider, model_name, effective_from DESC, created_at DESC`,
		asOf.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query current prices: %w", err)
	}
	defer rows.Close()

	var result []*domain.ModelPricing
	seen := make(map[string]bool)
	for rows.Next() {
		pricing, err := scanPricing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pricing row: %w", err)
		}
		// Rows arrive newest first within each model; keep only the head.
		if seen[pricing.ModelName] {
			continue
		}
		seen[pricing.ModelName] = true
		result = append(result, pricing)
	}
	return result, rows.Err()
}

// History returns all rows newest first, optionally filtered by model.
func (s *Store) History(ctx context.Context, modelName string) ([]*domain.ModelPricing, error) {
	query := `SELECT ` + pricingColumns + ` FROM model_pricing`
	var args []any
	if modelName != "" {
		query += ` WHERE model_name = ?`
		args = append(args, modelName)
	}
	query += ` ORDER BY effective_from DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pricing history: %w", err)
	}
	defer rows.Close()

	var result []*domain.ModelPricing
	for rows.Next() {
		pricing, err := scanPricing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pricing row: %w", err)
		}
		result = append(result, pricing)
	}
	return result, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPricing(row scanner) (*domain.ModelPricing, error) {
	var (
		pricing        domain.ModelPricing
		input, output  string
		image, audioIn sql.NullString
		audioOut       sql.NullString
		video, search  sql.NullString
	)

	err := row.Scan(
		&pricing.ID, &pricing.ModelName, &pricing.Provider,
		&input, &output,
		&image, &audioIn, &audioOut, &video, &search,
		&pricing.EffectiveFrom, &pricing.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if pricing.InputPricePerMillion, err = decimal.NewFromString(input); err != nil {
		return nil, fmt.Errorf("parse input price: %w", err)
	}
	if pricing.OutputPricePerMillion, err = decimal.NewFromString(output); err != nil {
		return nil, fmt.Errorf("parse output price: %w", err)
	}
	if pricing.ImageInputPricePerMillion, err = optionalDecimal(image); err != nil {
		return nil, err
	}
	if pricing.AudioInputPricePerMillion, err = optionalDecimal(audioIn); err != nil {
		return nil, err
	}
	if pricing.AudioOutputPricePerMillion, err = optionalDecimal(audioOut); err != nil {
		return nil, err
	}
	if pricing.VideoInputPricePerMillion, err = optionalDecimal(video); err != nil {
		return nil, err
	}
	if pricing.WebSearchCallPricePerThousand, err = optionalDecimal(search); err != nil {
		return nil, err
	}

	pricing.EffectiveFrom = pricing.EffectiveFrom.UTC()
	pricing.CreatedAt = pricing.CreatedAt.UTC()
	return &pricing, nil
}

func optionalString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func optionalDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, fmt.Errorf("parse optional price: %w", err)
	}
	return &d, nil
}
