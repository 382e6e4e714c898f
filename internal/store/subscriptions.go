package store

import (
	"database/sql"
	"time"

	"github.com/lox/solixa/internal/models"
)

// UpsertSubscription registers a phone for a location. Re-subscribing the
// same phone and location updates its settings and reactivates it.
func (s *Store) UpsertSubscription(sub models.Subscription) (string, error) {
	var id string
	err := s.db.QueryRow(`
		INSERT INTO alert_subscriptions (id, phone, fips, state, lat, lon, facility, sensitivity, threshold, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE, ?)
		ON CONFLICT(phone, lat, lon) DO UPDATE SET
			fips = excluded.fips,
			state = excluded.state,
			facility = excluded.facility,
			sensitivity = excluded.sensitivity,
			threshold = excluded.threshold,
			active = TRUE
		RETURNING id
	`, sub.ID, sub.Phone, sub.FIPS, sub.State, sub.Lat, sub.Lon, sub.Facility, sub.Sensitivity, sub.Threshold, sub.CreatedAt).Scan(&id)
	return id, err
}

func (s *Store) ActiveSubscriptions() ([]models.Subscription, error) {
	rows, err := s.db.Query(`
		SELECT id, phone, fips, state, lat, lon, facility, sensitivity, threshold, active, created_at, last_sent_at
		FROM alert_subscriptions
		WHERE active = TRUE
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Subscription
	for rows.Next() {
		var sub models.Subscription
		var fips, state, facility sql.NullString
		if err := rows.Scan(&sub.ID, &sub.Phone, &fips, &state, &sub.Lat, &sub.Lon, &facility,
			&sub.Sensitivity, &sub.Threshold, &sub.Active, &sub.CreatedAt, &sub.LastSentAt); err != nil {
			return nil, err
		}
		sub.FIPS, sub.State, sub.Facility = fips.String, state.String, facility.String
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) MarkSubscriptionSent(id string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE alert_subscriptions SET last_sent_at = ? WHERE id = ?`, at, id)
	return err
}

func (s *Store) DeactivateSubscription(id string) error {
	_, err := s.db.Exec(`UPDATE alert_subscriptions SET active = FALSE WHERE id = ?`, id)
	return err
}
