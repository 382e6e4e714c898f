// Package alerting sends SMS notices to subscribers whose location crosses
// their blackout risk threshold.
package alerting

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lox/solixa/internal/blackout"
	"github.com/lox/solixa/internal/metrics"
	"github.com/lox/solixa/internal/models"
	"github.com/lox/solixa/internal/store"
)

// Assessor is satisfied by *blackout.Service.
type Assessor interface {
	Assess(ctx context.Context, req blackout.Request) (*blackout.Result, error)
}

type Evaluator struct {
	store    *store.Store
	assessor Assessor
	notifier Notifier
	now      func() time.Time
}

func NewEvaluator(st *store.Store, assessor Assessor, notifier Notifier) *Evaluator {
	return &Evaluator{store: st, assessor: assessor, notifier: notifier, now: time.Now}
}

type SweepResult struct {
	Checked int `json:"checked"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Sweep assesses every active subscription and notifies those at or above
// their threshold. Each subscription is notified at most once per UTC day.
func (e *Evaluator) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	subs, err := e.store.ActiveSubscriptions()
	if err != nil {
		return res, fmt.Errorf("load subscriptions: %w", err)
	}

	now := e.now().UTC()
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++
		if sentToday(sub, now) {
			res.Skipped++
			continue
		}

		result, err := e.assessor.Assess(ctx, RequestFor(sub))
		if err != nil {
			log.Printf("alerting: assess subscription %s: %v", sub.ID, err)
			res.Failed++
			continue
		}
		if result.Assessment.Score < sub.Threshold {
			continue
		}

		if err := e.notifier.Send(ctx, sub.Phone, Message(sub, result)); err != nil {
			log.Printf("alerting: notify subscription %s: %v", sub.ID, err)
			metrics.AlertsSent.WithLabelValues("error").Inc()
			res.Failed++
			continue
		}
		metrics.AlertsSent.WithLabelValues("ok").Inc()
		if err := e.store.MarkSubscriptionSent(sub.ID, now); err != nil {
			return res, fmt.Errorf("mark subscription %s sent: %w", sub.ID, err)
		}
		res.Sent++
	}

	if res.Checked > 0 {
		log.Printf("alerting: sweep checked %d, sent %d, skipped %d, failed %d",
			res.Checked, res.Sent, res.Skipped, res.Failed)
	}
	return res, nil
}

// Test sends a message to one phone immediately, bypassing thresholds.
func (e *Evaluator) Test(ctx context.Context, phone string) error {
	err := e.notifier.Send(ctx, phone, "Solixa test alert: notifications are working.")
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.AlertsSent.WithLabelValues(status).Inc()
	return err
}

func RequestFor(sub models.Subscription) blackout.Request {
	return blackout.Request{
		Lat:         sub.Lat,
		Lon:         sub.Lon,
		State:       sub.State,
		FIPS:        sub.FIPS,
		Facility:    sub.Facility,
		Sensitivity: sub.Sensitivity,
	}
}

func sentToday(sub models.Subscription, now time.Time) bool {
	if !sub.LastSentAt.Valid {
		return false
	}
	y1, m1, d1 := sub.LastSentAt.Time.UTC().Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Message renders the SMS body.
func Message(sub models.Subscription, r *blackout.Result) string {
	a := r.Assessment
	msg := fmt.Sprintf("Solixa alert: %s blackout risk (%.0f%%) near %.2f,%.2f.", a.Level, a.Score*100, sub.Lat, sub.Lon)
	if r.Weather.ActiveAlerts > 0 {
		msg += fmt.Sprintf(" %d active weather alert(s).", r.Weather.ActiveAlerts)
	}
	return msg + " Charge devices and check backup power."
}
