package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xtxerr/trending/internal/accessor"
	"github.com/xtxerr/trending/internal/errors"
)

// Load is one recorded catalog load.
type Load struct {
	ID        int64     `json:"id"`
	Site      string    `json:"site"`
	Source    string    `json:"source"`
	Kind      string    `json:"kind"`
	Trigger   string    `json:"trigger"`
	StartedAt time.Time `json:"startedAt"`
	Duration  int64     `json:"durationMs"`
	Channels  int       `json:"channels"`
	Error     string    `json:"error,omitempty"`
}

// Record stores one load event.
func (s *Store) Record(ctx context.Context, ev accessor.LoadEvent) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var loadErr sql.NullString
	if ev.Err != nil {
		loadErr = sql.NullString{String: ev.Err.Error(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_loads (site, source, kind, load_trigger, started_at, duration_ms, channels, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.Site, ev.Source, ev.Kind, string(ev.Trigger), ev.Start.UTC(),
		ev.Duration.Milliseconds(), ev.Channels, loadErr)
	if err != nil {
		return errors.Kind(errors.ErrDatabase, fmt.Errorf("insert catalog load: %w", err))
	}
	return nil
}

// Observer returns an accessor.Observer that records every event. Write
// failures are logged, never returned to the loader.
func (s *Store) Observer() accessor.Observer {
	return func(ev accessor.LoadEvent) {
		if err := s.Record(context.Background(), ev); err != nil {
			log.Warn("failed to record catalog load",
				"site", ev.Site,
				"source", ev.Source,
				"kind", ev.Kind,
				"error", err)
		}
	}
}

// Recent returns up to limit loads of site, newest first. An empty site
// returns loads of every site.
func (s *Store) Recent(ctx context.Context, site string, limit int) ([]Load, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, errors.NewInvalidValue("limit", limit, "must be positive")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, site, source, kind, load_trigger, started_at, duration_ms, channels, error
		FROM catalog_loads
		WHERE ? = '' OR site = ?
		ORDER BY id DESC
		LIMIT ?
	`, site, site, limit)
	if err != nil {
		return nil, errors.Kind(errors.ErrDatabase, fmt.Errorf("query catalog loads: %w", err))
	}
	defer rows.Close()

	var loads []Load
	for rows.Next() {
		var l Load
		var loadErr sql.NullString
		if err := rows.Scan(&l.ID, &l.Site, &l.Source, &l.Kind, &l.Trigger,
			&l.StartedAt, &l.Duration, &l.Channels, &loadErr); err != nil {
			return nil, errors.Kind(errors.ErrDatabase, fmt.Errorf("scan catalog load: %w", err))
		}
		l.Error = loadErr.String
		loads = append(loads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Kind(errors.ErrDatabase, err)
	}
	return loads, nil
}
