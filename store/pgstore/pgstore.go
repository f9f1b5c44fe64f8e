// Copyright (c) 2025 BVK Chaitanya

// Package pgstore implements the snapshot store on PostgreSQL.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bvk/pipwatch/gobs"
	"github.com/bvk/pipwatch/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = &Store{}

// New connects to the database and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("could not parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("could not connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Migrate creates the table and helper functions if they don't exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("could not apply snapshots schema: %w", err)
	}
	return nil
}

const upsertSQL = `
INSERT INTO snapshots AS s (
    symbol, date, start_price, start_price_time, initial_threshold_price,
    previous_threshold, pips_from_start, direction, thresholds_list, "timestamp")
VALUES (
    $1, $2, $3::numeric, $4, $5::numeric,
    $6::numeric, $7::numeric, $8, numeric_array_union('{}', $9::numeric[]), $10)
ON CONFLICT (symbol, date) DO UPDATE SET
    start_price             = EXCLUDED.start_price,
    start_price_time        = EXCLUDED.start_price_time,
    initial_threshold_price = EXCLUDED.initial_threshold_price,
    previous_threshold      = EXCLUDED.previous_threshold,
    pips_from_start         = EXCLUDED.pips_from_start,
    direction               = EXCLUDED.direction,
    thresholds_list         = numeric_array_union(s.thresholds_list, EXCLUDED.thresholds_list),
    "timestamp"             = EXCLUDED."timestamp",
    update_time             = now()
RETURNING (xmax = 0) AS inserted`

func (s *Store) Upsert(ctx context.Context, u *store.Update) (bool, error) {
	if err := u.Check(); err != nil {
		return false, err
	}
	thresholds := make([]string, 0, len(u.Thresholds))
	for _, v := range u.Thresholds {
		thresholds = append(thresholds, v.String())
	}

	var inserted bool
	row := s.pool.QueryRow(ctx, upsertSQL,
		u.Symbol, u.Date, u.StartPrice.String(), u.StartPriceTime.UTC(), u.InitialThresholdPrice.String(),
		u.PreviousThreshold.String(), u.PipsFromStart.String(), string(u.Direction), thresholds, u.Timestamp.UTC())
	if err := row.Scan(&inserted); err != nil {
		return false, fmt.Errorf("could not upsert snapshot for %s on %s: %w", u.Symbol, u.Date, err)
	}
	return inserted, nil
}

func (s *Store) Exists(ctx context.Context, symbol, date string) (bool, error) {
	var found bool
	const q = `SELECT EXISTS (SELECT 1 FROM snapshots WHERE symbol = $1 AND date = $2)`
	if err := s.pool.QueryRow(ctx, q, symbol, date).Scan(&found); err != nil {
		return false, fmt.Errorf("could not check snapshot for %s on %s: %w", symbol, date, err)
	}
	return found, nil
}

const selectSQL = `
SELECT symbol, date, start_price::text, start_price_time, initial_threshold_price::text,
       previous_threshold::text, pips_from_start::text, direction, thresholds_list::text[],
       "timestamp", create_time, update_time
FROM snapshots`

func scanSnapshot(row pgx.Row) (*gobs.Snapshot, error) {
	var (
		v          gobs.Snapshot
		start      string
		initial    string
		previous   string
		pips       string
		thresholds []string
	)
	err := row.Scan(&v.Symbol, &v.Date, &start, &v.StartPriceTime, &initial,
		&previous, &pips, &v.Direction, &thresholds,
		&v.Timestamp, &v.CreateTime, &v.UpdateTime)
	if err != nil {
		return nil, err
	}

	parse := func(s string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("could not parse numeric value %q: %w", s, err)
		}
		return d, nil
	}
	if v.StartPrice, err = parse(start); err != nil {
		return nil, err
	}
	if v.InitialThresholdPrice, err = parse(initial); err != nil {
		return nil, err
	}
	if v.PreviousThreshold, err = parse(previous); err != nil {
		return nil, err
	}
	if v.PipsFromStart, err = parse(pips); err != nil {
		return nil, err
	}
	for _, t := range thresholds {
		d, err := parse(t)
		if err != nil {
			return nil, err
		}
		v.Thresholds = append(v.Thresholds, d)
	}
	v.StartPriceTime = v.StartPriceTime.UTC()
	v.Timestamp = v.Timestamp.UTC()
	v.CreateTime = v.CreateTime.UTC()
	v.UpdateTime = v.UpdateTime.UTC()
	return &v, nil
}

func (s *Store) Get(ctx context.Context, symbol, date string) (*gobs.Snapshot, error) {
	row := s.pool.QueryRow(ctx, selectSQL+` WHERE symbol = $1 AND date = $2`, symbol, date)
	v, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("snapshot for %s on %s: %w", symbol, date, os.ErrNotExist)
		}
		return nil, fmt.Errorf("could not get snapshot for %s on %s: %w", symbol, date, err)
	}
	return v, nil
}

func (s *Store) List(ctx context.Context, date string) ([]*gobs.Snapshot, error) {
	rows, err := s.pool.Query(ctx, selectSQL+` WHERE date = $1 ORDER BY symbol`, date)
	if err != nil {
		return nil, fmt.Errorf("could not query snapshots for %s: %w", date, err)
	}
	defer rows.Close()

	var snapshots []*gobs.Snapshot
	for rows.Next() {
		v, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan snapshot row: %w", err)
		}
		snapshots = append(snapshots, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate snapshot rows: %w", err)
	}
	return snapshots, nil
}

// Prune deletes snapshots older than the given date.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE date < $1`, before.Format(store.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("could not prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
