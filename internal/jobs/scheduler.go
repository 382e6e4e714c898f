package jobs

import (
	"context"
	"log"
	"time"

	"github.com/lox/solixa/internal/alerting"
)

// ModelRefresher is satisfied by *stormrisk.Service.
type ModelRefresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// Sweeper is satisfied by *alerting.Evaluator.
type Sweeper interface {
	Sweep(ctx context.Context) (alerting.SweepResult, error)
}

type Scheduler struct {
	model           ModelRefresher
	alerts          Sweeper
	refreshInterval time.Duration
	sweepInterval   time.Duration
}

func NewScheduler(model ModelRefresher, alerts Sweeper, refreshInterval, sweepInterval time.Duration) *Scheduler {
	if refreshInterval <= 0 {
		refreshInterval = time.Hour
	}
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Minute
	}
	return &Scheduler{
		model:           model,
		alerts:          alerts,
		refreshInterval: refreshInterval,
		sweepInterval:   sweepInterval,
	}
}

// Run checks the model once immediately, then loops until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.refreshModel(ctx)

	refreshTicker := time.NewTicker(s.refreshInterval)
	sweepTicker := time.NewTicker(s.sweepInterval)
	defer refreshTicker.Stop()
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: shutting down")
			return
		case <-refreshTicker.C:
			s.refreshModel(ctx)
		case <-sweepTicker.C:
			s.sweepAlerts(ctx)
		}
	}
}

func (s *Scheduler) refreshModel(ctx context.Context) {
	if s.model == nil {
		return
	}
	trained, err := s.model.Refresh(ctx)
	if err != nil {
		log.Printf("scheduler: refresh storm model: %v", err)
		return
	}
	if trained {
		log.Println("scheduler: storm model retrained")
	}
}

func (s *Scheduler) sweepAlerts(ctx context.Context) {
	if s.alerts == nil {
		return
	}
	if _, err := s.alerts.Sweep(ctx); err != nil {
		log.Printf("scheduler: alert sweep: %v", err)
	}
}
