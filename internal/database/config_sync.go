package database

import (
	"context"
	"fmt"
	"time"

	"rentcal/internal/config"
)

// SyncResourcesFromConfig applies resources.yaml to the database.
// It upserts resources, replaces config-sourced blackout dates, and marks
// resources missing from the file inactive. Manually set blackouts are kept.
func (db *DB) SyncResourcesFromConfig(ctx context.Context, cfg *config.ResourcesConfig) error {
	if cfg == nil {
		return fmt.Errorf("resources config is nil")
	}

	seen := make(map[string]struct{}, len(cfg.Resources))
	for _, rc := range cfg.Resources {
		res, err := rc.Model()
		if err != nil {
			return fmt.Errorf("sync resource %s: %w", rc.ID, err)
		}
		if err := db.UpsertResource(ctx, res); err != nil {
			return err
		}
		seen[res.ID] = struct{}{}

		if _, err := db.ExecContext(ctx,
			`DELETE FROM blackout_dates WHERE resource_id = ? AND source = 'config'`, res.ID); err != nil {
			return fmt.Errorf("reset blackouts of %s: %w", res.ID, err)
		}
		for _, b := range cfg.BlackoutsFor(res.ID) {
			if err := db.setBlackoutDate(ctx, b, "config"); err != nil {
				return err
			}
		}
	}

	// Deactivate resources that disappeared from config.
	rows, err := db.QueryContext(ctx, `SELECT id FROM resources WHERE is_active = 1`)
	if err != nil {
		return err
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	now := time.Now()
	for _, id := range stale {
		if _, err := db.ExecContext(ctx,
			`UPDATE resources SET is_active = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("deactivate resource %s: %w", id, err)
		}
		db.logger.Info().Str("resource_id", id).Msg("resource removed from config, deactivated")
	}

	return nil
}
