package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,

	`CREATE TABLE IF NOT EXISTS fleet_alerts (
		id               UUID PRIMARY KEY,
		type             TEXT NOT NULL,
		severity         TEXT NOT NULL,
		plate            TEXT NOT NULL,
		normalized_plate TEXT NOT NULL,
		driver           TEXT,
		location         TEXT,
		contract         TEXT,
		speed            NUMERIC(7,2),
		latitude         NUMERIC(10,6),
		longitude        NUMERIC(10,6),
		source           TEXT NOT NULL,
		details          TEXT,
		status           TEXT NOT NULL DEFAULT 'PENDING',
		alert_time       TIMESTAMPTZ NOT NULL,
		raw_vehicle      JSONB,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,

	// backstop for the read-then-check-then-insert race between overlapping
	// cycles: a second insert of the same detection fails on this index
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_fleet_alerts_plate_type_time
		ON fleet_alerts(normalized_plate, type, alert_time);`,

	// the dedup gate queries by plate + type over a trailing time range
	`CREATE INDEX IF NOT EXISTS idx_fleet_alerts_dedup
		ON fleet_alerts(normalized_plate, type, alert_time DESC);`,

	`CREATE INDEX IF NOT EXISTS idx_fleet_alerts_status ON fleet_alerts(status);`,
	`CREATE INDEX IF NOT EXISTS idx_fleet_alerts_severity ON fleet_alerts(severity);`,
	`CREATE INDEX IF NOT EXISTS idx_fleet_alerts_alert_time ON fleet_alerts(alert_time);`,
	`CREATE INDEX IF NOT EXISTS idx_fleet_alerts_created_at ON fleet_alerts(created_at);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
