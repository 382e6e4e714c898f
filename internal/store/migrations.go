package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS county_risk (
    fips TEXT PRIMARY KEY,
    county TEXT,
    state_name TEXT,
    state_abbr TEXT,
    svi REAL NOT NULL DEFAULT 0,
    svi_scored BOOLEAN NOT NULL DEFAULT FALSE,
    ml_risk REAL NOT NULL DEFAULT 0,
    events INTEGER NOT NULL DEFAULT 0,
    risk REAL NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_county_risk_state ON county_risk(state_abbr);

CREATE TABLE IF NOT EXISTS model_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feature_set TEXT NOT NULL,
    events INTEGER NOT NULL,
    positives INTEGER NOT NULL,
    auc REAL,
    accuracy REAL NOT NULL,
    counties INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    trained_at DATETIME NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "Telemetry analysis runs",
		SQL: `
CREATE TABLE IF NOT EXISTS analysis_runs (
    id TEXT PRIMARY KEY,
    filename TEXT,
    rows INTEGER NOT NULL,
    sources INTEGER NOT NULL,
    anomalies INTEGER NOT NULL,
    contamination REAL NOT NULL,
    model TEXT,
    r2 REAL,
    mape REAL,
    quality_json TEXT,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_created ON analysis_runs(created_at);
`,
	},
	{
		Version:     3,
		Description: "Alert subscriptions",
		SQL: `
CREATE TABLE IF NOT EXISTS alert_subscriptions (
    id TEXT PRIMARY KEY,
    phone TEXT NOT NULL,
    fips TEXT,
    state TEXT,
    lat REAL NOT NULL,
    lon REAL NOT NULL,
    facility TEXT,
    sensitivity REAL NOT NULL DEFAULT 1,
    threshold REAL NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at DATETIME NOT NULL,
    last_sent_at DATETIME,
    UNIQUE(phone, lat, lon)
);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Printf("migrations: completed %d", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
