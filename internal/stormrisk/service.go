package stormrisk

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lox/solixa/internal/artifact"
	"github.com/lox/solixa/internal/config"
	"github.com/lox/solixa/internal/metrics"
	"github.com/lox/solixa/internal/models"
	"github.com/lox/solixa/internal/store"
)

// Service serves the storm model and county table, training lazily on first
// use or when the stored model has gone stale. Concurrent callers share a
// single training run.
type Service struct {
	cfg   config.StormConfig
	fs    FeatureSet
	repo  artifact.Repository
	store *store.Store

	group singleflight.Group

	mu      sync.RWMutex
	bundle  *Bundle
	metrics *Metrics
	// failure holds the last untrainable-history error so lookups do not
	// retrain on every call. Train and Refresh clear it.
	failure error

	sviOnce sync.Once
	svi     SVITable
	sviErr  error
}

func NewService(cfg config.StormConfig, repo artifact.Repository, st *store.Store) (*Service, error) {
	fs, err := ParseFeatureSet(cfg.FeatureSet)
	if err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, fs: fs, repo: repo, store: st}, nil
}

// Train loads every event file, fits the model, writes artifacts and replaces
// the county table. It always attempts a run, even after an earlier
// untrainable history.
func (s *Service) Train(ctx context.Context) (*TrainResult, error) {
	v, err, shared := s.group.Do("train", func() (any, error) {
		return s.train(ctx)
	})
	if shared {
		log.Printf("stormrisk: joined in-flight training run")
	}
	if err != nil {
		return nil, err
	}
	return v.(*TrainResult), nil
}

func (s *Service) train(ctx context.Context) (*TrainResult, error) {
	start := time.Now()
	res, err := s.fit()
	if err != nil {
		status := "error"
		switch {
		case errors.Is(err, ErrNoEvents):
			status = "no_events"
		case errors.Is(err, ErrUntrainable):
			status = "untrainable"
		}
		if Untrainable(err) {
			s.mu.Lock()
			s.failure = err
			s.mu.Unlock()
			log.Printf("stormrisk: history cannot train a model, county lookups fall back to SVI: %v", err)
		}
		metrics.ModelTrainingRuns.WithLabelValues(status).Inc()
		return nil, err
	}
	elapsed := time.Since(start)
	metrics.ModelTrainingDuration.Observe(elapsed.Seconds())

	if err := s.persist(ctx, res, elapsed); err != nil {
		metrics.ModelTrainingRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ModelTrainingRuns.WithLabelValues("ok").Inc()

	s.mu.Lock()
	s.bundle, s.metrics, s.failure = res.Bundle, res.Metrics, nil
	s.mu.Unlock()
	return res, nil
}

func (s *Service) fit() (*TrainResult, error) {
	files, err := EventFiles(s.cfg.EventsGlob)
	if err != nil {
		return nil, err
	}
	events, err := LoadEvents(files)
	if err != nil {
		return nil, err
	}
	svi, err := s.sviTable()
	if err != nil {
		return nil, err
	}
	log.Printf("stormrisk: loaded %d events from %d files, %d SVI counties", len(events), len(files), len(svi))
	return Train(events, svi, s.fs)
}

func (s *Service) persist(ctx context.Context, res *TrainResult, elapsed time.Duration) error {
	bundle, err := res.Bundle.Marshal()
	if err != nil {
		return fmt.Errorf("encode model bundle: %w", err)
	}
	if err := s.repo.Save(ctx, ModelArtifact, bundle); err != nil {
		return err
	}
	m, err := json.Marshal(res.Metrics)
	if err != nil {
		return fmt.Errorf("encode model metrics: %w", err)
	}
	if err := s.repo.Save(ctx, MetricsArtifact, m); err != nil {
		return err
	}

	if err := s.store.ReplaceCountyRisk(res.Counties, res.Bundle.TrainedAt); err != nil {
		return fmt.Errorf("store county risk: %w", err)
	}
	run := models.ModelRun{
		FeatureSet: string(res.Bundle.FeatureSet),
		Events:     res.Metrics.TrainRows + res.Metrics.TestRows,
		Positives:  res.Metrics.Positives,
		Accuracy:   res.Metrics.Accuracy,
		Counties:   len(res.Counties),
		DurationMS: elapsed.Milliseconds(),
		TrainedAt:  res.Bundle.TrainedAt,
	}
	if res.Metrics.AUC != nil {
		run.AUC = sql.NullFloat64{Float64: *res.Metrics.AUC, Valid: true}
	}
	if _, err := s.store.InsertModelRun(run); err != nil {
		return fmt.Errorf("record model run: %w", err)
	}
	return nil
}

// Stale reports whether the stored model is missing or past its max age.
func (s *Service) Stale(ctx context.Context) (bool, error) {
	return s.repo.IsStale(ctx, ModelArtifact)
}

// Refresh retrains when the stored model is stale. It reports whether a
// training run happened.
func (s *Service) Refresh(ctx context.Context) (bool, error) {
	stale, err := s.Stale(ctx)
	if err != nil {
		return false, err
	}
	if !stale {
		return false, nil
	}
	if _, err := s.Train(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ensure makes the model and county table available, loading artifacts when
// they are fresh and training otherwise. A remembered untrainable history is
// returned without another training run.
func (s *Service) ensure(ctx context.Context) error {
	s.mu.RLock()
	loaded, failure := s.bundle != nil, s.failure
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	if failure != nil {
		return failure
	}

	stale, err := s.Stale(ctx)
	if err != nil {
		return err
	}
	if !stale {
		n, err := s.store.CountCountyRisk()
		if err != nil {
			return fmt.Errorf("count county risk: %w", err)
		}
		if n > 0 {
			err := s.loadArtifacts(ctx)
			if err == nil {
				return nil
			}
			log.Printf("stormrisk: stored artifacts unusable, retraining: %v", err)
		}
	}
	_, err = s.Train(ctx)
	return err
}

func (s *Service) loadArtifacts(ctx context.Context) error {
	data, err := s.repo.Load(ctx, ModelArtifact)
	if err != nil {
		return err
	}
	bundle, err := UnmarshalBundle(data)
	if err != nil {
		return err
	}
	data, err = s.repo.Load(ctx, MetricsArtifact)
	if err != nil {
		return err
	}
	var m Metrics
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode model metrics: %w", err)
	}

	s.mu.Lock()
	s.bundle, s.metrics = bundle, &m
	s.mu.Unlock()
	log.Printf("stormrisk: loaded %s model trained at %s", bundle.FeatureSet, bundle.TrainedAt.Format(time.RFC3339))
	return nil
}

func (s *Service) Model(ctx context.Context) (*Bundle, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundle, nil
}

func (s *Service) Metrics(ctx context.Context) (*Metrics, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics, nil
}

func (s *Service) Evaluation(ctx context.Context) (*Evaluation, error) {
	m, err := s.Metrics(ctx)
	if err != nil {
		return nil, err
	}
	return m.Evaluation(), nil
}

// County returns the county row, or nil when the county is unknown. When the
// storm history cannot train a model, counties with an SVI entry get an
// SVI-only row.
func (s *Service) County(ctx context.Context, fips string) (*CountyRisk, error) {
	fips = zfill(fips, 5)
	if err := s.ensure(ctx); err != nil {
		if Untrainable(err) {
			return s.sviCounty(fips)
		}
		return nil, err
	}
	return s.store.GetCountyRisk(fips)
}

func (s *Service) sviCounty(fips string) (*CountyRisk, error) {
	t, err := s.sviTable()
	if err != nil {
		return nil, err
	}
	rec, ok := t[fips]
	if !ok {
		return nil, nil
	}
	row := sviRow(fips, rec)
	return &row, nil
}

// CountyRisk returns the blended risk for a county, 0 when unknown.
func (s *Service) CountyRisk(ctx context.Context, fips string) (float64, error) {
	c, err := s.County(ctx, fips)
	if err != nil || c == nil {
		return 0, err
	}
	return c.Risk, nil
}

// Counties lists counties by descending risk, optionally for one state.
func (s *Service) Counties(ctx context.Context, state string, limit int) ([]CountyRisk, error) {
	if err := s.ensure(ctx); err != nil {
		if Untrainable(err) {
			return nil, nil
		}
		return nil, err
	}
	return s.store.ListCountyRisk(state, limit)
}

// SVI returns the county's vulnerability index without needing a model.
func (s *Service) SVI(_ context.Context, fips string) (float64, error) {
	t, err := s.sviTable()
	if err != nil {
		return 0, err
	}
	return t.Score(zfill(fips, 5)), nil
}

func (s *Service) sviTable() (SVITable, error) {
	s.sviOnce.Do(func() {
		s.svi, s.sviErr = LoadSVI(s.cfg.SVIPath)
	})
	return s.svi, s.sviErr
}
