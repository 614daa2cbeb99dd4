package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
	"github.com/onurcolak/retention-outbox-service/internal/service"
	"github.com/onurcolak/retention-outbox-service/pkg/logger"
	"github.com/onurcolak/retention-outbox-service/pkg/webhook"
)

const defaultInterval = 5 * time.Minute

// jobSource returns the jobs of one tick in the order they must run.
type jobSource interface {
	Jobs() []service.Job
}

type alerter interface {
	SendAlert(ctx context.Context, alert webhook.Alert) error
}

type Scheduler struct {
	jobs           jobSource
	alerts         alerter
	interval       time.Duration
	alertThreshold int // consecutive failed runs of one job before alerting

	// Internal state
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
	mu       sync.RWMutex

	// Statistics
	lastRunAt       time.Time
	runsCount       int64
	lastAlertSentAt time.Time
	jobStats        map[string]*JobStats
}

// JobStats tracks one job across ticks.
type JobStats struct {
	Runs                int64            `json:"runs"`
	LastRunAt           time.Time        `json:"lastRunAt,omitempty"`
	LastDuration        time.Duration    `json:"lastDuration"`
	LastResult          domain.JobResult `json:"lastResult"`
	LastError           string           `json:"lastError,omitempty"`
	ConsecutiveFailures int              `json:"consecutiveFailures"`
}

// NewScheduler takes a nil alerts client when no webhook is configured.
func NewScheduler(jobs jobSource, alerts alerter, interval time.Duration, alertThreshold int) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{
		jobs:           jobs,
		alerts:         alerts,
		interval:       interval,
		alertThreshold: alertThreshold,
		jobStats:       make(map[string]*JobStats),
	}
}

func (s *Scheduler) StartWithParams(ctx context.Context, interval time.Duration, alertThreshold int) error {
	if interval <= 0 {
		interval = defaultInterval
	}

	s.mu.Lock()
	s.interval = interval
	s.alertThreshold = alertThreshold
	for _, st := range s.jobStats {
		st.ConsecutiveFailures = 0
	}
	s.mu.Unlock()

	return s.Start(ctx)
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is already running")
		return nil
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	stopChan, doneChan := s.stopChan, s.doneChan
	s.mu.Unlock()

	logger.Infof("Starting scheduler with interval: %v", s.interval)

	go s.run(ctx, stopChan, doneChan)

	return nil
}

func (s *Scheduler) run(ctx context.Context, stopChan <-chan struct{}, doneChan chan struct{}) {
	defer close(doneChan)

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Infof("Scheduler running. Next execution in %v", s.interval)

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
			logger.Debugf("Next execution in %v", s.interval)

		case <-stopChan:
			logger.Warnf("Scheduler received stop signal")
			return

		case <-ctx.Done():
			logger.Warnf("Scheduler context cancelled")
			s.mu.Lock()
			// A Stop racing with the cancel may already have cleared this run.
			if s.doneChan == doneChan {
				s.running = false
			}
			s.mu.Unlock()
			return
		}
	}
}

// tick runs every job once, in order. A failing job does not stop the ones
// after it.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	s.lastRunAt = time.Now()
	s.runsCount++
	runNumber := s.runsCount
	s.mu.Unlock()

	logger.Infof("[Run #%d] Starting pipeline at %s", runNumber, s.lastRunAt.Format(time.RFC3339))

	for _, job := range s.jobs.Jobs() {
		if ctx.Err() != nil {
			logger.Warnf("[Run #%d] Context done, skipping remaining jobs", runNumber)
			return
		}
		s.runJob(ctx, runNumber, job)
	}
}

func (s *Scheduler) runJob(ctx context.Context, runNumber int64, job service.Job) {
	start := time.Now()
	result, err := job.Run(ctx, domain.RunOptions{})
	duration := time.Since(start)

	failed := err != nil || (result.Errors > 0 && !result.Progressed())

	s.mu.Lock()
	st, ok := s.jobStats[job.Name]
	if !ok {
		st = &JobStats{}
		s.jobStats[job.Name] = st
	}
	st.Runs++
	st.LastRunAt = start
	st.LastDuration = duration
	st.LastResult = result
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}

	var sendAlert bool
	if failed {
		st.ConsecutiveFailures++
		logger.Warnf("[Run #%d] Job %s failed (consecutive count: %d/%d)",
			runNumber, job.Name, st.ConsecutiveFailures, s.alertThreshold)
		sendAlert = s.alertThreshold > 0 && st.ConsecutiveFailures >= s.alertThreshold && s.alerts != nil
	} else {
		if st.ConsecutiveFailures > 0 {
			logger.Debugf("[Run #%d] Resetting consecutive failure count of %s (was: %d)",
				runNumber, job.Name, st.ConsecutiveFailures)
		}
		st.ConsecutiveFailures = 0
	}
	consecutive := st.ConsecutiveFailures
	s.mu.Unlock()

	if err != nil {
		logger.Errorf("[Run #%d] Job %s returned error: %v", runNumber, job.Name, err)
	} else {
		logger.Infof("[Run #%d] Job %s done in %v (scanned=%d errors=%d)",
			runNumber, job.Name, duration, result.Scanned, result.Errors)
	}

	if sendAlert {
		go s.sendAlert(job.Name, runNumber, consecutive)
	}
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is not running")
		return nil
	}

	s.running = false
	stopChan := s.stopChan
	doneChan := s.doneChan
	s.mu.Unlock()

	close(stopChan)
	<-doneChan

	logger.Infof("Scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make(map[string]JobStats, len(s.jobStats))
	for name, st := range s.jobStats {
		jobs[name] = *st
	}

	status := SchedulerStatus{
		Running:         s.running,
		LastRunAt:       s.lastRunAt,
		RunsCount:       s.runsCount,
		Interval:        s.interval,
		AlertThreshold:  s.alertThreshold,
		LastAlertSentAt: s.lastAlertSentAt,
		Jobs:            jobs,
	}

	if s.running && !s.lastRunAt.IsZero() {
		status.NextRunAt = s.lastRunAt.Add(s.interval)
	}

	return status
}

func (s *Scheduler) sendAlert(jobName string, runNumber int64, consecutiveFailures int) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.alerts.SendAlert(ctx, webhook.Alert{
		Alert:               "consecutive_job_failure",
		Job:                 jobName,
		RunNumber:           runNumber,
		ConsecutiveFailures: consecutiveFailures,
		Message:             fmt.Sprintf("Job %s failed for %d consecutive runs", jobName, consecutiveFailures),
		Timestamp:           time.Now().UTC(),
	})
	if err != nil {
		logger.Errorf("Failed to send alert for job %s: %v", jobName, err)
		return
	}

	s.mu.Lock()
	s.lastAlertSentAt = time.Now()
	s.mu.Unlock()
	logger.Infof("Alert sent for job %s (consecutive failures: %d)", jobName, consecutiveFailures)
}

type SchedulerStatus struct {
	Running         bool                `json:"running"`
	LastRunAt       time.Time           `json:"lastRunAt,omitempty"`
	NextRunAt       time.Time           `json:"nextRunAt,omitempty"`
	RunsCount       int64               `json:"runsCount"`
	Interval        time.Duration       `json:"interval"`
	AlertThreshold  int                 `json:"alertThreshold"`
	LastAlertSentAt time.Time           `json:"lastAlertSentAt,omitempty"`
	Jobs            map[string]JobStats `json:"jobs"`
}
