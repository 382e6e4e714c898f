package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/solixa/internal/models"
)

// ReplaceCountyRisk swaps the whole county table in one transaction.
func (s *Store) ReplaceCountyRisk(rows []models.CountyRisk, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin county tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM county_risk"); err != nil {
		return fmt.Errorf("clear county risk: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO county_risk (fips, county, state_name, state_abbr, svi, svi_scored, ml_risk, events, risk, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare county insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(r.FIPS, r.County, r.StateName, r.StateAbbr, r.SVI, r.SVIScored, r.MLRisk, r.Events, r.Risk, now); err != nil {
			return fmt.Errorf("insert county %s: %w", r.FIPS, err)
		}
	}
	return tx.Commit()
}

const countyColumns = `fips, county, state_name, state_abbr, svi, svi_scored, ml_risk, events, risk`

func scanCounty(row interface{ Scan(...any) error }) (models.CountyRisk, error) {
	var c models.CountyRisk
	var county, stateName, stateAbbr sql.NullString
	err := row.Scan(&c.FIPS, &county, &stateName, &stateAbbr, &c.SVI, &c.SVIScored, &c.MLRisk, &c.Events, &c.Risk)
	c.County, c.StateName, c.StateAbbr = county.String, stateName.String, stateAbbr.String
	return c, err
}

// GetCountyRisk returns nil when the county is not in the table.
func (s *Store) GetCountyRisk(fips string) (*models.CountyRisk, error) {
	c, err := scanCounty(s.db.QueryRow(`SELECT `+countyColumns+` FROM county_risk WHERE fips = ?`, fips))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCountyRisk returns counties ordered by descending risk. An empty state
// lists every county; limit <= 0 means no limit.
func (s *Store) ListCountyRisk(state string, limit int) ([]models.CountyRisk, error) {
	query := `SELECT ` + countyColumns + ` FROM county_risk`
	var args []any
	if state != "" {
		query += ` WHERE state_abbr = ?`
		args = append(args, state)
	}
	query += ` ORDER BY risk DESC, fips ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CountyRisk
	for rows.Next() {
		c, err := scanCounty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CountCountyRisk() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM county_risk`).Scan(&n)
	return n, err
}
