package sched

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"compliance_framework/config"
	"compliance_framework/pipeline"
)

var (
	// ErrNoCredentials short-circuits a run before any network call when
	// the extraction provider key is absent. Deployment-safety gate, not a
	// pipeline concern.
	ErrNoCredentials = errors.New("extraction provider credentials missing")

	// ErrRunInProgress rejects overlapping runs.
	ErrRunInProgress = errors.New("pipeline run already in progress")
)

// Trigger fires the reconciliation pipeline once per day at the configured
// UTC hour, with a single-flight guard shared with manual triggers.
type Trigger struct {
	cfg     config.Config
	service *pipeline.Service
	mu      sync.Mutex
	running bool
	now     func() time.Time
}

func New(cfg config.Config, service *pipeline.Service) *Trigger {
	return &Trigger{cfg: cfg, service: service, now: time.Now}
}

// Start launches the daily loop. It returns immediately; the loop stops
// when ctx is cancelled.
func (t *Trigger) Start(ctx context.Context) {
	go func() {
		for {
			next := nextRun(t.now().UTC(), t.cfg.Pipeline.ScheduleHourUTC)
			timer := time.NewTimer(next.Sub(t.now().UTC()))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				if _, err := t.RunOnce(ctx); err != nil {
					log.Printf("scheduled run skipped: %v", err)
				}
			}
		}
	}()
}

// RunOnce executes one pipeline pass, honoring the credentials gate and
// the single-flight guard.
func (t *Trigger) RunOnce(ctx context.Context) (pipeline.RunResult, error) {
	if t.cfg.Pipeline.ExtractAPIKey == "" {
		return pipeline.RunResult{}, ErrNoCredentials
	}
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return pipeline.RunResult{}, ErrRunInProgress
	}
	t.running = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	result, err := t.service.ProcessPending(ctx)
	if err != nil {
		return result, err
	}
	log.Printf("run %s: processed=%d appended=%d skipped=%d", result.RunID, result.Processed, result.Appended, result.Skipped)
	return result, nil
}

// nextRun returns the next occurrence of hour (UTC) strictly after now.
func nextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
