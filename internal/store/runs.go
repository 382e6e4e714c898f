package store

import (
	"database/sql"

	"github.com/lox/solixa/internal/models"
)

func (s *Store) InsertModelRun(r models.ModelRun) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO model_runs (feature_set, events, positives, auc, accuracy, counties, duration_ms, trained_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.FeatureSet, r.Events, r.Positives, r.AUC, r.Accuracy, r.Counties, r.DurationMS, r.TrainedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestModelRun returns nil when no model has been trained.
func (s *Store) LatestModelRun() (*models.ModelRun, error) {
	var r models.ModelRun
	err := s.db.QueryRow(`
		SELECT id, feature_set, events, positives, auc, accuracy, counties, duration_ms, trained_at
		FROM model_runs
		ORDER BY trained_at DESC, id DESC
		LIMIT 1
	`).Scan(&r.ID, &r.FeatureSet, &r.Events, &r.Positives, &r.AUC, &r.Accuracy, &r.Counties, &r.DurationMS, &r.TrainedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) InsertAnalysisRun(r models.AnalysisRun) error {
	_, err := s.db.Exec(`
		INSERT INTO analysis_runs (id, filename, rows, sources, anomalies, contamination, model, r2, mape, quality_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Filename, r.Rows, r.Sources, r.Anomalies, r.Contamination, r.Model, r.R2, r.MAPE, r.QualityJSON, r.CreatedAt)
	return err
}

// RecentAnalysisRuns returns the newest runs first.
func (s *Store) RecentAnalysisRuns(limit int) ([]models.AnalysisRun, error) {
	rows, err := s.db.Query(`
		SELECT id, filename, rows, sources, anomalies, contamination, model, r2, mape, quality_json, created_at
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AnalysisRun
	for rows.Next() {
		var r models.AnalysisRun
		var filename, model, quality sql.NullString
		if err := rows.Scan(&r.ID, &filename, &r.Rows, &r.Sources, &r.Anomalies, &r.Contamination, &model, &r.R2, &r.MAPE, &quality, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Filename, r.Model, r.QualityJSON = filename.String, model.String, quality.String
		out = append(out, r)
	}
	return out, rows.Err()
}
