// Package persistence is the pgx/v5-backed durable tier: the instrument
// spec store's tier 2 and the fire-and-forget order/config/pnl writer the
// engine uses to recover state across restarts.
package persistence

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mm-engine/internal/domain"
	"mm-engine/internal/logging"
)

// DB wraps the connection pool every persistence component shares.
type DB struct {
	sql *sql.DB
	log *logging.Logger
}

// Open dials dsn via the pgx stdlib driver and verifies connectivity.
// Schema creation is the migration runner's job, not this constructor's.
func Open(dsn string, log *logging.Logger) (*DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &DB{sql: sqlDB, log: log}, nil
}

func (d *DB) Close() error { return d.sql.Close() }

// LoadSpec satisfies specs.Store's durable tier.
func (d *DB) LoadSpec(ctx context.Context, key domain.SpecKey) (domain.InstrumentSpec, bool, error) {
	table := specTable(key.Venue)
	query := `SELECT symbol, base_coin, quote_coin, price_place, volume_place, min_trade_num,
		size_multiplier, maker_fee_rate, taker_fee_rate, status, fetched_at FROM ` + table + `
		WHERE symbol = $1`
	row := d.sql.QueryRowContext(ctx, query, key.Symbol)

	var spec domain.InstrumentSpec
	spec.Venue = key.Venue
	if err := row.Scan(&spec.Symbol, &spec.BaseCoin, &spec.QuoteCoin, &spec.PricePlace, &spec.VolumePlace,
		&spec.MinTradeNum, &spec.SizeMultiplier, &spec.MakerFeeRate, &spec.TakerFeeRate, &spec.Status, &spec.FetchedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.InstrumentSpec{}, false, nil
		}
		return domain.InstrumentSpec{}, false, err
	}
	return spec, true, nil
}

// SaveSpec upserts a fetched spec into its venue-appropriate table.
func (d *DB) SaveSpec(ctx context.Context, spec domain.InstrumentSpec) error {
	table := specTable(spec.Venue)
	_, err := d.sql.ExecContext(ctx, `INSERT INTO `+table+` (
		symbol, base_coin, quote_coin, price_place, volume_place, min_trade_num,
		size_multiplier, maker_fee_rate, taker_fee_rate, status, fetched_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	ON CONFLICT (symbol) DO UPDATE SET
		base_coin = EXCLUDED.base_coin, quote_coin = EXCLUDED.quote_coin,
		price_place = EXCLUDED.price_place, volume_place = EXCLUDED.volume_place,
		min_trade_num = EXCLUDED.min_trade_num, size_multiplier = EXCLUDED.size_multiplier,
		maker_fee_rate = EXCLUDED.maker_fee_rate, taker_fee_rate = EXCLUDED.taker_fee_rate,
		status = EXCLUDED.status, fetched_at = EXCLUDED.fetched_at`,
		spec.Symbol, spec.BaseCoin, spec.QuoteCoin, spec.PricePlace, spec.VolumePlace,
		spec.MinTradeNum, spec.SizeMultiplier, spec.MakerFeeRate, spec.TakerFeeRate, spec.Status, spec.FetchedAt)
	return err
}

// ListSpecs returns every row in a venue's spec table.
func (d *DB) ListSpecs(ctx context.Context, venue domain.VenueKind) ([]domain.InstrumentSpec, error) {
	table := specTable(venue)
	rows, err := d.sql.QueryContext(ctx, `SELECT symbol, base_coin, quote_coin, price_place, volume_place,
		min_trade_num, size_multiplier, maker_fee_rate, taker_fee_rate, status, fetched_at FROM `+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.InstrumentSpec
	for rows.Next() {
		var spec domain.InstrumentSpec
		spec.Venue = venue
		if err := rows.Scan(&spec.Symbol, &spec.BaseCoin, &spec.QuoteCoin, &spec.PricePlace, &spec.VolumePlace,
			&spec.MinTradeNum, &spec.SizeMultiplier, &spec.MakerFeeRate, &spec.TakerFeeRate, &spec.Status, &spec.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, rows.Err()
}

func specTable(venue domain.VenueKind) string {
	if venue == domain.VenueSpot {
		return "spot_specs"
	}
	return "contract_specs"
}
